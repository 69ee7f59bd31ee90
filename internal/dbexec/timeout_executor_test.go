package dbexec

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type deadlineCapture struct {
	next     QueryExecutor
	deadline time.Time
	hadOne   bool
}

func (c *deadlineCapture) QueryContext(ctx context.Context, query string, args ...any) (Rows, error) {
	c.deadline, c.hadOne = ctx.Deadline()
	return c.next.QueryContext(ctx, query, args...)
}

func (c *deadlineCapture) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	c.deadline, c.hadOne = ctx.Deadline()
	return c.next.ExecContext(ctx, query, args...)
}

func TestTimeoutExecutorAppliesDeadline(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"one"}).AddRow(1))

	capture := &deadlineCapture{next: NewStandardExecutor(db)}
	exec := NewTimeoutExecutor(capture, 30*time.Second)

	rows, err := exec.QueryContext(context.Background(), "SELECT 1")
	require.NoError(t, err)
	require.True(t, rows.Next())
	require.NoError(t, rows.Close())

	assert.True(t, capture.hadOne, "expected a deadline on the query context")
	assert.WithinDuration(t, time.Now().Add(30*time.Second), capture.deadline, 5*time.Second)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTimeoutExecutorDisabledPassesThrough(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	inner := NewStandardExecutor(db)
	assert.Same(t, QueryExecutor(inner), NewTimeoutExecutor(inner, 0))
}

func TestStandardExecutorNilDB(t *testing.T) {
	exec := NewStandardExecutor(nil)
	_, err := exec.QueryContext(context.Background(), "SELECT 1")
	assert.ErrorIs(t, err, sql.ErrConnDone)
}
