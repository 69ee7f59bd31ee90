package serverapp

import (
	"context"
	"fmt"
	"log/slog"

	"datascope/internal/aggregation"
	"datascope/internal/dbexec"
	"datascope/internal/metadata"
)

// Init initializes all runtime resources. It is idempotent.
func (a *App) Init(ctx context.Context) error {
	a.stateMu.Lock()
	if a.initialized {
		a.stateMu.Unlock()
		return nil
	}
	a.stateMu.Unlock()

	if ctx == nil {
		ctx = context.Background()
	}

	cleanup := cleanupStack{}
	success := false
	defer func() {
		if !success {
			cleanup.run(context.Background(), a.logger)
		}
	}()

	if a.loggerProvider != nil {
		cleanup.push("logger provider", func(shutdownCtx context.Context) error {
			return a.loggerProvider.Shutdown(shutdownCtx, a.logger.Logger)
		})
	}

	meterProvider, aggMetrics, err := initMetrics(a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry metrics: %w", err)
	}
	if meterProvider != nil {
		cleanup.push("meter provider", func(shutdownCtx context.Context) error {
			return meterProvider.Shutdown(shutdownCtx, a.logger.Logger)
		})
	}

	tracerProvider, err := initTracing(a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry tracing: %w", err)
	}
	if tracerProvider != nil {
		cleanup.push("tracer provider", func(shutdownCtx context.Context) error {
			return tracerProvider.Shutdown(shutdownCtx, a.logger.Logger)
		})
	}

	a.logger.Info("opening metadata catalog",
		slog.String("path", a.cfg.Metadata.Path),
	)

	catalogDB, err := openCatalog(a.cfg)
	if err != nil {
		return fmt.Errorf("failed to open metadata catalog: %w", err)
	}
	cleanup.push("metadata catalog", func(_ context.Context) error {
		return catalogDB.Close()
	})

	if err := catalogDB.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to verify metadata catalog: %w", err)
	}

	a.logger.Info("opening analytical store",
		slog.String("path", a.cfg.Store.Path),
		slog.Bool("read_only", a.cfg.Store.ReadOnly),
	)

	storeDB, dbStatsReg, err := openStore(a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("failed to open analytical store: %w", err)
	}
	cleanup.push("analytical store", func(_ context.Context) error {
		if dbStatsReg != nil {
			if err := dbStatsReg.Unregister(); err != nil {
				a.logger.Warn("failed to unregister store stats metrics", slog.String("error", err.Error()))
			}
		}
		return storeDB.Close()
	})

	if err := configureStore(ctx, a.cfg, a.logger, storeDB); err != nil {
		return fmt.Errorf("failed to prepare analytical store: %w", err)
	}

	queryExecutor := dbexec.NewTimeoutExecutor(dbexec.NewStandardExecutor(storeDB), a.cfg.Store.QueryTimeout)
	store := metadata.NewSQLStore(catalogDB)

	computer := aggregation.NewComputer(queryExecutor, store, aggregation.Options{
		HistogramBuckets:  a.cfg.Aggregation.HistogramBuckets,
		ColumnConcurrency: a.cfg.Aggregation.ColumnConcurrency,
		Logger:            a.logger.Logger,
		Metrics:           aggMetrics,
	})

	router := buildRouter(a.cfg, a.logger, computer, store, catalogDB, storeDB, meterProvider)
	handler := wrapHTTPHandler(a.cfg, a.logger, router)

	serverAddr := fmt.Sprintf(":%d", a.cfg.Server.Port)
	srv := buildServer(a.cfg, handler, serverAddr)
	cleanup.push("HTTP server", func(shutdownCtx context.Context) error {
		return srv.Shutdown(shutdownCtx)
	})

	a.stateMu.Lock()
	a.meterProvider = meterProvider
	a.aggMetrics = aggMetrics
	a.tracerProvider = tracerProvider
	a.catalogDB = catalogDB
	a.storeDB = storeDB
	a.dbStatsReg = dbStatsReg
	a.queryExecutor = queryExecutor
	a.store = store
	a.computer = computer
	a.handler = handler
	a.serverAddr = serverAddr
	a.srv = srv
	a.cleanup = cleanup
	a.initialized = true
	a.stateMu.Unlock()

	success = true
	return nil
}
