package inventory

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type recordedStatement struct {
	sql  string
	args []any
}

// recordingConn captures statements and answers every QueryRow with row.
type recordingConn struct {
	statements []recordedStatement
	row        pgx.Row
}

func (c *recordingConn) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	c.statements = append(c.statements, recordedStatement{sql: sql, args: args})
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (c *recordingConn) Query(context.Context, string, ...any) (pgx.Rows, error) {
	panic("unexpected Query")
}

func (c *recordingConn) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	c.statements = append(c.statements, recordedStatement{sql: sql, args: args})
	return c.row
}

type balanceRow struct {
	qty, avg decimal.Decimal
	at       time.Time
}

func (r balanceRow) Scan(dest ...any) error {
	*dest[0].(*decimal.Decimal) = r.qty
	*dest[1].(*decimal.Decimal) = r.avg
	*dest[2].(*time.Time) = r.at
	return nil
}

func TestGetBalanceForUpdateCreatesRowBeforeLocking(t *testing.T) {
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	conn := &recordingConn{row: balanceRow{qty: decimal.Zero, avg: decimal.Zero, at: at}}
	tx := NewTxRepository(conn)

	bal, err := tx.GetBalanceForUpdate(context.Background(), "MAIN", "p-1")
	require.NoError(t, err)
	require.True(t, bal.Qty.IsZero())
	require.Equal(t, at, bal.UpdatedAt)

	require.Len(t, conn.statements, 2)
	require.Contains(t, conn.statements[0].sql, "ON CONFLICT (location_id, product_id) DO NOTHING")
	require.Equal(t, []any{"MAIN", "p-1"}, conn.statements[0].args)
	require.Contains(t, conn.statements[1].sql, "FOR UPDATE")
}
