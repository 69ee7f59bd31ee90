package serverapp

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"datascope/internal/config"
	"datascope/internal/logging"
)

func testLogger() *logging.Logger {
	return logging.NewLogger(logging.Config{Level: "error", Format: "text"})
}

func TestNew_RequiresConfigAndLogger(t *testing.T) {
	_, err := New(nil, testLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config is required")

	_, err = New(&config.Config{}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "logger is required")
}

func TestStart_BeforeInitFails(t *testing.T) {
	app, err := New(&config.Config{}, testLogger())
	require.NoError(t, err)

	_, err = app.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not initialized")
}

func TestWaitForStop_ServerError(t *testing.T) {
	app, err := New(&config.Config{}, testLogger())
	require.NoError(t, err)

	serverErrors := make(chan error, 1)
	serverErrors <- errors.New("listen tcp: address already in use")

	reason, err := app.WaitForStop(nil, serverErrors)
	assert.Equal(t, "server_error", reason)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "address already in use")
}

func TestWaitForStop_NilChannels(t *testing.T) {
	app, err := New(&config.Config{}, testLogger())
	require.NoError(t, err)

	_, err = app.WaitForStop(nil, nil)
	require.Error(t, err)
}

func TestCleanupStack_RunsInReverseOrder(t *testing.T) {
	var order []string
	stack := cleanupStack{}
	stack.push("first", func(context.Context) error {
		order = append(order, "first")
		return nil
	})
	stack.push("second", func(context.Context) error {
		order = append(order, "second")
		return errors.New("boom")
	})
	stack.push("third", func(context.Context) error {
		order = append(order, "third")
		return nil
	})

	stack.run(context.Background(), testLogger())

	assert.Equal(t, []string{"third", "second", "first"}, order)
}

func TestShutdown_Idempotent(t *testing.T) {
	app, err := New(&config.Config{}, testLogger())
	require.NoError(t, err)

	calls := 0
	app.cleanup.push("resource", func(context.Context) error {
		calls++
		return nil
	})

	require.NoError(t, app.Shutdown(context.Background()))
	require.NoError(t, app.Shutdown(context.Background()))
	assert.Equal(t, 1, calls)
}

func TestHTTPRootSpanName(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/healthz", "GET /healthz"},
		{"/metrics", "GET /metrics"},
		{"/datasets/demo/tables", "GET /datasets/*"},
		{"/datasets/demo/tables/samples/aggregations", "GET /datasets/*"},
		{"/unknown", "GET /*"},
	}
	for _, tt := range tests {
		r := httptest.NewRequest(http.MethodGet, tt.path, nil)
		assert.Equal(t, tt.want, httpRootSpanName(r), tt.path)
	}

	assert.Equal(t, "HTTP /*", httpRootSpanName(nil))
}

func TestHealthHandler_ReportsStoreFailure(t *testing.T) {
	catalogDB, catalogMock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer catalogDB.Close()

	storeDB, storeMock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer storeDB.Close()

	catalogMock.ExpectPing()
	storeMock.ExpectPing().WillReturnError(errors.New("store offline"))

	handler := healthHandler(catalogDB, storeDB, time.Second)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Contains(t, rr.Body.String(), `"store":"failed"`)
}

func TestHealthHandler_Healthy(t *testing.T) {
	catalogDB, catalogMock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer catalogDB.Close()

	storeDB, storeMock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer storeDB.Close()

	catalogMock.ExpectPing()
	storeMock.ExpectPing()

	handler := healthHandler(catalogDB, storeDB, time.Second)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"status":"healthy"`)
}
