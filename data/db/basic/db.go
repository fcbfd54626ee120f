package basic

import (
	"context"
	"database/sql"
	stdErrors "errors"
	"time"

	core "repokit/data/db"
	"repokit/data/db/dialect"
	"repokit/logging"
)

var errNestedTx = stdErrors.New("basic: nested transactions are not supported")

// DB 基于 database/sql 的 core.IDatabase 实现
type DB struct {
	executor
	db     *sql.DB
	driver string
}

// New 打开连接池并 Ping 一次。
//
// 调用方必须确保所配置的 Driver 已通过空导入注册
// （例如 `_ "modernc.org/sqlite"` 或 `_ "github.com/jackc/pgx/v5/stdlib"`）。
func New(config core.DBConfig) (*DB, error) {
	driver := config.Driver
	if driver == "" {
		driver = "sqlite"
	}
	db, err := sql.Open(driver, config.Database)
	if err != nil {
		return nil, err
	}
	applyPool(db, config)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &DB{
		executor: executor{
			q:       db,
			dialect: dialect.New(driver),
			logger:  logging.ComponentLogger("db").WithFields(logging.String("driver", driver)),
		},
		db:     db,
		driver: driver,
	}, nil
}

func applyPool(db *sql.DB, config core.DBConfig) {
	if config.MaxOpenConns > 0 {
		db.SetMaxOpenConns(config.MaxOpenConns)
	}
	if config.MaxIdleConns > 0 {
		db.SetMaxIdleConns(config.MaxIdleConns)
	}
	if config.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(time.Duration(config.ConnMaxLifetime) * time.Second)
	}
	if config.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(time.Duration(config.ConnMaxIdleTime) * time.Second)
	}
}

func (d *DB) Begin(ctx context.Context) (core.ITransaction, error) {
	return d.BeginTx(ctx, nil)
}

func (d *DB) BeginTx(ctx context.Context, opts *sql.TxOptions) (core.ITransaction, error) {
	tx, err := d.db.BeginTx(ctx, opts)
	if err != nil {
		return nil, err
	}
	return &Tx{executor: executor{q: tx, dialect: d.dialect, logger: d.logger}, db: d.db, tx: tx}, nil
}

func (d *DB) Ping(ctx context.Context) error { return d.db.PingContext(ctx) }
func (d *DB) Close() error                   { return d.db.Close() }
func (d *DB) Raw() any                       { return d.db }

// GetDialectName 返回配置的 driver 名，dialect 包据此推断方言
func (d *DB) GetDialectName() string { return d.driver }

// ExecScript 依次执行多条 DDL/DML（建表与测试准备），不改写占位符
func (d *DB) ExecScript(ctx context.Context, statements ...string) error {
	for _, stmt := range statements {
		if _, err := d.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
