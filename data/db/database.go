// Package db 提供通用的数据库抽象接口
//
// 设计目标：
// 1. 隔离具体驱动（sqlite、pgx 等），SQL 数据源只依赖本包接口
// 2. 支持事务，并允许通过 context 传递当前事务
// 3. 便于单元测试（Mock）
package db

import (
	"context"
	"database/sql"
)

// IDatabase 通用数据库接口
type IDatabase interface {
	Query(ctx context.Context, query string, args ...any) (IRows, error)
	QueryRow(ctx context.Context, query string, args ...any) IRow
	Exec(ctx context.Context, query string, args ...any) (sql.Result, error)

	Begin(ctx context.Context) (ITransaction, error)
	BeginTx(ctx context.Context, opts *sql.TxOptions) (ITransaction, error)

	Ping(ctx context.Context) error
	Close() error

	// Raw 返回原始连接（*sql.DB / *sql.Tx）
	Raw() any
}

// IDialectNameProvider 可选接口：提供底层数据库方言名称
//
// 实现方应返回诸如 "sqlite"、"postgres"、"pgx" 等 driver 名，
// 供 dialect 包推断占位符风格等能力。
type IDialectNameProvider interface {
	GetDialectName() string
}

// ITransaction 事务接口
type ITransaction interface {
	IDatabase

	Commit() error
	Rollback() error
}

// IRows 查询结果集接口
type IRows interface {
	Next() bool
	Scan(dest ...any) error
	Close() error
	Err() error
	Columns() ([]string, error)
}

// IRow 单行结果接口
type IRow interface {
	Scan(dest ...any) error
	Err() error
}

// DBConfig 数据库配置
type DBConfig struct {
	Driver   string // sqlite, pgx, postgres ...
	Database string // DSN

	// 连接池配置
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // 秒
	ConnMaxIdleTime int // 秒
}

type txKey struct{}

// WithTransaction 返回携带事务的 context，供数据源在同一事务中读写。
func WithTransaction(ctx context.Context, tx ITransaction) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

// TransactionFrom 取出 context 中的事务
func TransactionFrom(ctx context.Context) (ITransaction, bool) {
	if ctx == nil {
		return nil, false
	}
	tx, ok := ctx.Value(txKey{}).(ITransaction)
	if !ok || tx == nil {
		return nil, false
	}
	// 已提交或回滚的事务不再对外暴露，执行器回退到连接池
	if d, ok := tx.(interface{ Done() bool }); ok && d.Done() {
		return nil, false
	}
	return tx, true
}

// Executor 优先返回 context 中的事务，否则返回 fallback。
func Executor(ctx context.Context, fallback IDatabase) IDatabase {
	if tx, ok := TransactionFrom(ctx); ok {
		return tx
	}
	return fallback
}
