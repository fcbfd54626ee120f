package repository

import (
	"context"

	"repokit/errors"
	"repokit/page"
	"repokit/query"
)

// Result 异步操作结果，通道上恰好投递一次后关闭。Found 只对单行查询有意义。
type Result[V any] struct {
	Value V
	Found bool
	Err   error
}

// 异步版本与同步版本走同一条执行路径；参数错误在调用方 goroutine 中同步判定，
// 直接投递到通道，不会触达数据源。

// SearchAsync Search 的异步版本
func (r *Repository[T]) SearchAsync(ctx context.Context, q *query.MultipleResultQuery[T]) <-chan Result[[]T] {
	if q == nil {
		return done(Result[[]T]{Err: nilQuery()})
	}
	return async(ctx, func(ctx context.Context) Result[[]T] {
		items, err := r.Search(ctx, q)
		return Result[[]T]{Value: items, Err: err}
	})
}

// SearchPageAsync SearchPage 的异步版本
func (r *Repository[T]) SearchPageAsync(ctx context.Context, q *query.MultipleResultQuery[T]) <-chan Result[*page.List[T]] {
	if q == nil {
		return done(Result[*page.List[T]]{Err: nilQuery()})
	}
	return async(ctx, func(ctx context.Context) Result[*page.List[T]] {
		l, err := r.SearchPage(ctx, q)
		return Result[*page.List[T]]{Value: l, Err: err}
	})
}

// SingleOrDefaultAsync SingleOrDefault 的异步版本
func (r *Repository[T]) SingleOrDefaultAsync(ctx context.Context, q *query.SingleResultQuery[T]) <-chan Result[T] {
	if q == nil {
		return done(Result[T]{Err: nilQuery()})
	}
	return async(ctx, func(ctx context.Context) Result[T] {
		v, found, err := r.SingleOrDefault(ctx, q)
		return Result[T]{Value: v, Found: found, Err: err}
	})
}

// FirstOrDefaultAsync FirstOrDefault 的异步版本
func (r *Repository[T]) FirstOrDefaultAsync(ctx context.Context, q *query.SingleResultQuery[T]) <-chan Result[T] {
	if q == nil {
		return done(Result[T]{Err: nilQuery()})
	}
	return async(ctx, func(ctx context.Context) Result[T] {
		v, found, err := r.FirstOrDefault(ctx, q)
		return Result[T]{Value: v, Found: found, Err: err}
	})
}

// CountAsync Count 的异步版本
func (r *Repository[T]) CountAsync(ctx context.Context, p query.Predicate[T]) <-chan Result[int64] {
	return async(ctx, func(ctx context.Context) Result[int64] {
		n, err := r.Count(ctx, p)
		return Result[int64]{Value: n, Err: err}
	})
}

// AnyAsync Any 的异步版本
func (r *Repository[T]) AnyAsync(ctx context.Context, p query.Predicate[T]) <-chan Result[bool] {
	return async(ctx, func(ctx context.Context) Result[bool] {
		ok, err := r.Any(ctx, p)
		return Result[bool]{Value: ok, Err: err}
	})
}

// SearchAsAsync SearchAs 的异步版本
func SearchAsAsync[T, R any](ctx context.Context, r *Repository[T], q *query.MultipleProjection[T, R]) <-chan Result[[]R] {
	if err := checkProjection(r, q == nil, q != nil && q.Selector() == nil); err != nil {
		return done(Result[[]R]{Err: err})
	}
	return async(ctx, func(ctx context.Context) Result[[]R] {
		items, err := SearchAs(ctx, r, q)
		return Result[[]R]{Value: items, Err: err}
	})
}

func nilQuery() error {
	return errors.NewInvalidArgument("query", "query is nil")
}

func async[V any](ctx context.Context, exec func(context.Context) Result[V]) <-chan Result[V] {
	ch := make(chan Result[V], 1)
	go func() {
		defer close(ch)
		ch <- exec(ctx)
	}()
	return ch
}

func done[V any](res Result[V]) <-chan Result[V] {
	ch := make(chan Result[V], 1)
	ch <- res
	close(ch)
	return ch
}
