package basic

import (
	"context"
	"database/sql"
	"time"

	core "repokit/data/db"
	"repokit/data/db/dialect"
	"repokit/logging"
)

// queryer 是 *sql.DB 与 *sql.Tx 的公共子集
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// executor 统一 DB 与 Tx 的读写路径：按方言改写占位符，并以 debug 级别记录语句与耗时。
type executor struct {
	q       queryer
	dialect dialect.Dialect
	logger  logging.Logger
}

func (e executor) trace(ctx context.Context, query string, args []any, start time.Time, err error) {
	fields := []logging.Field{
		logging.String("sql", query),
		logging.Int("args", len(args)),
		logging.Duration("elapsed", time.Since(start)),
	}
	if err != nil {
		fields = append(fields, logging.Error(err))
	}
	e.logger.Debug(ctx, "sql", fields...)
}

func (e executor) Query(ctx context.Context, query string, args ...any) (core.IRows, error) {
	query = e.dialect.Rebind(query)
	start := time.Now()
	rows, err := e.q.QueryContext(ctx, query, args...)
	e.trace(ctx, query, args, start, err)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (e executor) QueryRow(ctx context.Context, query string, args ...any) core.IRow {
	query = e.dialect.Rebind(query)
	start := time.Now()
	row := e.q.QueryRowContext(ctx, query, args...)
	e.trace(ctx, query, args, start, row.Err())
	return row
}

func (e executor) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	query = e.dialect.Rebind(query)
	start := time.Now()
	res, err := e.q.ExecContext(ctx, query, args...)
	e.trace(ctx, query, args, start, err)
	return res, err
}

// Tx 事务。实现 core.ITransaction，可以作为 IDatabase 透传给数据源。
type Tx struct {
	executor
	db *sql.DB
	tx *sql.Tx
}

// Begin 嵌套事务由 uow 在上层合并，这里明确拒绝。
func (t *Tx) Begin(ctx context.Context) (core.ITransaction, error) {
	return nil, errNestedTx
}

func (t *Tx) BeginTx(ctx context.Context, opts *sql.TxOptions) (core.ITransaction, error) {
	return nil, errNestedTx
}

func (t *Tx) Ping(ctx context.Context) error { return t.db.PingContext(ctx) }
func (t *Tx) Close() error                   { return nil }
func (t *Tx) Raw() any                       { return t.tx }
func (t *Tx) Commit() error                  { return t.tx.Commit() }
func (t *Tx) Rollback() error                { return t.tx.Rollback() }
func (t *Tx) GetDialectName() string         { return string(t.dialect.Name()) }
