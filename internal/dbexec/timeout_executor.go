package dbexec

import (
	"context"
	"database/sql"
	"time"
)

// TimeoutExecutor bounds every query with a deadline relative to its start.
// Aggregation requests fan out many store queries; the per-query deadline
// keeps one slow scan from holding the whole request open, while request
// cancellation still propagates through the parent context.
type TimeoutExecutor struct {
	next    QueryExecutor
	timeout time.Duration
}

// NewTimeoutExecutor wraps next with a per-query timeout. A non-positive
// timeout disables the deadline and returns next unchanged.
func NewTimeoutExecutor(next QueryExecutor, timeout time.Duration) QueryExecutor {
	if timeout <= 0 {
		return next
	}
	return &TimeoutExecutor{next: next, timeout: timeout}
}

func (e *TimeoutExecutor) QueryContext(ctx context.Context, query string, args ...any) (Rows, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	rows, err := e.next.QueryContext(ctx, query, args...)
	if err != nil {
		cancel()
		return nil, err
	}
	return &cancelRows{Rows: rows, cancel: cancel}, nil
}

func (e *TimeoutExecutor) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	return e.next.ExecContext(ctx, query, args...)
}

// cancelRows releases the deadline context when the result set is closed,
// not when QueryContext returns, since rows are consumed afterwards.
type cancelRows struct {
	Rows
	cancel context.CancelFunc
}

func (r *cancelRows) Close() error {
	defer r.cancel()
	return r.Rows.Close()
}
