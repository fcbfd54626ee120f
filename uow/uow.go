// Package uow 提供基于数据库事务的工作单元。
//
// 事务保存在 context 中，SQL 数据源通过 db.Executor(ctx, fallback) 自动加入；
// 嵌套 Begin 加入外层事务，只有最外层 Commit 真正提交。
// 在事务内登记的 AfterCommit 回调（例如变更通知）在提交成功后执行，回滚时丢弃。
package uow

import (
	"context"
	stdErrors "errors"
	"sync"

	"github.com/google/uuid"

	"repokit/data/db"
	"repokit/errors"
	"repokit/logging"
)

// ErrRolledBack 内层作用域已回滚，外层 Commit 改为回滚
var ErrRolledBack = stdErrors.New("uow: transaction marked rollback-only by a nested scope")

// Hook 提交成功后执行的回调
type Hook func(ctx context.Context) error

// UnitOfWork 工作单元管理器，本身无状态，可在多个 goroutine 间共享
type UnitOfWork struct {
	db     db.IDatabase
	logger logging.Logger
}

// Option 配置项
type Option func(*UnitOfWork)

// WithLogger 指定日志实例
func WithLogger(logger logging.Logger) Option {
	return func(u *UnitOfWork) {
		if logger != nil {
			u.logger = logger
		}
	}
}

// New 创建工作单元管理器
func New(database db.IDatabase, opts ...Option) *UnitOfWork {
	u := &UnitOfWork{db: database, logger: logging.ComponentLogger("uow")}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

type scopeKey struct{}

type scope struct {
	mu           sync.Mutex
	id           string
	parent       context.Context
	tx           db.ITransaction
	depth        int
	rollbackOnly bool
	done         bool
	hooks        []Hook
}

// scopedTx 放入 context 的事务；作用域结束后 db.TransactionFrom 不再返回它
type scopedTx struct {
	db.ITransaction
	s *scope
}

func (t scopedTx) Done() bool {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	return t.s.done
}

func scopeFrom(ctx context.Context) *scope {
	if ctx == nil {
		return nil
	}
	s, _ := ctx.Value(scopeKey{}).(*scope)
	return s
}

func activeScope(ctx context.Context) *scope {
	s := scopeFrom(ctx)
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return nil
	}
	return s
}

// Begin 开始工作单元，返回携带事务的 context。
// 已处于工作单元中时加入外层事务。
func (u *UnitOfWork) Begin(ctx context.Context) (context.Context, error) {
	if s := activeScope(ctx); s != nil {
		s.mu.Lock()
		s.depth++
		s.mu.Unlock()
		return ctx, nil
	}
	if u.db == nil {
		return ctx, errors.NewInvalidArgument("db", "unit of work has no database")
	}

	tx, err := u.db.Begin(ctx)
	if err != nil {
		return ctx, errors.WrapError(err, errors.ErrCodeDatabase, "begin transaction failed")
	}
	s := &scope{id: uuid.NewString(), tx: tx, parent: ctx}
	ctx = context.WithValue(ctx, scopeKey{}, s)
	ctx = db.WithTransaction(ctx, scopedTx{ITransaction: tx, s: s})
	u.logger.Debug(ctx, "unit of work started", logging.String("uow_id", s.id))
	return ctx, nil
}

// Commit 提交工作单元。内层作用域只减少嵌套计数；
// 最外层提交成功后依次执行 AfterCommit 回调，回调失败只记录日志。
// 回调收到的是 Begin 之前的 context，其中不再携带已提交的事务。
func (u *UnitOfWork) Commit(ctx context.Context) error {
	s := scopeFrom(ctx)
	if s == nil {
		return errors.NewInvalidArgument("ctx", "no unit of work in context")
	}

	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return errors.NewError(errors.ErrCodeConflict, "unit of work already completed")
	}
	if s.depth > 0 {
		s.depth--
		s.mu.Unlock()
		return nil
	}
	s.done = true
	rollbackOnly := s.rollbackOnly
	hooks := s.hooks
	s.hooks = nil
	s.mu.Unlock()

	if rollbackOnly {
		if err := s.tx.Rollback(); err != nil {
			return errors.WrapError(stdErrors.Join(ErrRolledBack, err), errors.ErrCodeDatabase, "rollback transaction failed")
		}
		return ErrRolledBack
	}
	if err := s.tx.Commit(); err != nil {
		return errors.WrapError(err, errors.ErrCodeDatabase, "commit transaction failed")
	}
	u.logger.Debug(ctx, "unit of work committed", logging.String("uow_id", s.id), logging.Int("hooks", len(hooks)))

	for _, hook := range hooks {
		if err := hook(s.parent); err != nil {
			u.logger.Warn(ctx, "after-commit hook failed", logging.String("uow_id", s.id), logging.Error(err))
		}
	}
	return nil
}

// Rollback 回滚工作单元并丢弃回调。
// 内层作用域回滚会把整个事务标记为只可回滚；已完成的工作单元再次回滚是空操作，
// 因此可以放心地 defer Rollback。
func (u *UnitOfWork) Rollback(ctx context.Context) error {
	s := scopeFrom(ctx)
	if s == nil {
		return errors.NewInvalidArgument("ctx", "no unit of work in context")
	}

	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return nil
	}
	if s.depth > 0 {
		s.depth--
		s.rollbackOnly = true
		s.mu.Unlock()
		return nil
	}
	s.done = true
	discarded := len(s.hooks)
	s.hooks = nil
	s.mu.Unlock()

	if err := s.tx.Rollback(); err != nil {
		return errors.WrapError(err, errors.ErrCodeDatabase, "rollback transaction failed")
	}
	u.logger.Debug(ctx, "unit of work rolled back", logging.String("uow_id", s.id), logging.Int("discarded_hooks", discarded))
	return nil
}

// Do 在工作单元中执行 fn：返回 nil 时提交，否则回滚；fn panic 时先回滚再继续 panic。
func (u *UnitOfWork) Do(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	if fn == nil {
		return errors.NewInvalidArgument("fn", "function is nil")
	}
	txCtx, err := u.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			_ = u.Rollback(txCtx)
			panic(r)
		}
	}()

	if err := fn(txCtx); err != nil {
		if rbErr := u.Rollback(txCtx); rbErr != nil {
			u.logger.Error(txCtx, "rollback after failure failed", logging.Error(rbErr))
		}
		return err
	}
	return u.Commit(txCtx)
}

// HasTransaction ctx 是否处于未完成的工作单元中
func HasTransaction(ctx context.Context) bool {
	return activeScope(ctx) != nil
}

// ID 返回当前工作单元标识，不在工作单元中时返回空串
func ID(ctx context.Context) string {
	if s := activeScope(ctx); s != nil {
		return s.id
	}
	return ""
}

// AfterCommit 在当前工作单元中登记提交回调；不在工作单元中时返回 false，由调用方立即执行。
func AfterCommit(ctx context.Context, hook Hook) bool {
	if hook == nil {
		return false
	}
	s := scopeFrom(ctx)
	if s == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return false
	}
	s.hooks = append(s.hooks, hook)
	return true
}
