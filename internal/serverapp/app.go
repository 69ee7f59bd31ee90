package serverapp

import (
	"database/sql"
	"fmt"
	"net/http"
	"sync"

	"datascope/internal/aggregation"
	"datascope/internal/config"
	"datascope/internal/dbexec"
	"datascope/internal/logging"
	"datascope/internal/metadata"
	"datascope/internal/observability"
)

// App owns runtime resources for the datascope server lifecycle.
type App struct {
	cfg    *config.Config
	logger *logging.Logger

	loggerProvider *observability.LoggerProvider

	meterProvider  *observability.MeterProvider
	aggMetrics     *observability.AggregationMetrics
	tracerProvider *observability.TracerProvider

	catalogDB  *sql.DB
	storeDB    *sql.DB
	dbStatsReg interface{ Unregister() error }

	queryExecutor dbexec.QueryExecutor
	store         metadata.Store
	computer      *aggregation.Computer

	handler http.Handler

	serverAddr string
	srv        *http.Server

	cleanup cleanupStack

	stateMu      sync.Mutex
	initialized  bool
	started      bool
	serverErrors chan error

	shutdownOnce sync.Once
}

// New creates an App lifecycle wrapper.
func New(cfg *config.Config, logger *logging.Logger) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	return &App{
		cfg:    cfg,
		logger: logger,
	}, nil
}

// AttachLoggerProvider registers an optional logger provider for shutdown cleanup.
func (a *App) AttachLoggerProvider(provider *observability.LoggerProvider) {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	a.loggerProvider = provider
}
