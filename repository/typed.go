package repository

import (
	"context"

	"repokit/compiler"
	"repokit/errors"
	"repokit/page"
	"repokit/query"
)

// 带投影的查询。Go 方法不能携带额外类型参数，因此以泛型函数提供。

// SearchAs 执行带投影的多结果查询
func SearchAs[T, R any](ctx context.Context, r *Repository[T], q *query.MultipleProjection[T, R]) ([]R, error) {
	if err := checkProjection(r, q == nil, q != nil && q.Selector() == nil); err != nil {
		return nil, err
	}
	res, err := r.execute(ctx, "search", q.Seal())
	if err != nil {
		return nil, err
	}
	return compiler.Project(res.Items, q.Selector()), nil
}

// SearchPageAs 执行带投影的多结果查询并包装为分页结果
func SearchPageAs[T, R any](ctx context.Context, r *Repository[T], q *query.MultipleProjection[T, R]) (*page.List[R], error) {
	if err := checkProjection(r, q == nil, q != nil && q.Selector() == nil); err != nil {
		return nil, err
	}
	res, err := r.execute(ctx, "search_page", q.Seal())
	if err != nil {
		return nil, err
	}
	return page.Map(toPage(res), q.Selector()), nil
}

// SingleOrDefaultAs 带投影的 SingleOrDefault
func SingleOrDefaultAs[T, R any](ctx context.Context, r *Repository[T], q *query.SingleProjection[T, R]) (R, bool, error) {
	var zero R
	if err := checkProjection(r, q == nil, q != nil && q.Selector() == nil); err != nil {
		return zero, false, err
	}
	item, found, err := single(r.execute(ctx, "single_or_default", limit(q.Seal(), 2)))
	return projectOne(item, found, err, q.Selector())
}

// FirstOrDefaultAs 带投影的 FirstOrDefault
func FirstOrDefaultAs[T, R any](ctx context.Context, r *Repository[T], q *query.SingleProjection[T, R]) (R, bool, error) {
	var zero R
	if err := checkProjection(r, q == nil, q != nil && q.Selector() == nil); err != nil {
		return zero, false, err
	}
	item, found, err := first(r.execute(ctx, "first_or_default", limit(q.Seal(), 1)))
	return projectOne(item, found, err, q.Selector())
}

// LastOrDefaultAs 带投影的 LastOrDefault
func LastOrDefaultAs[T, R any](ctx context.Context, r *Repository[T], q *query.SingleProjection[T, R]) (R, bool, error) {
	var zero R
	if err := checkProjection(r, q == nil, q != nil && q.Selector() == nil); err != nil {
		return zero, false, err
	}
	item, found, err := last(r.execute(ctx, "last_or_default", q.Seal()))
	return projectOne(item, found, err, q.Selector())
}

func checkProjection[T any](r *Repository[T], nilQuery, nilSelector bool) error {
	switch {
	case r == nil:
		return errors.NewInvalidArgument("repository", "repository is nil")
	case nilQuery:
		return errors.NewInvalidArgument("query", "query is nil")
	case nilSelector:
		return errors.NewInvalidArgument("selector", "selector is nil")
	}
	return nil
}

// projectOne 未找到或出错时不调用投影
func projectOne[T, R any](item T, found bool, err error, fn func(T) R) (R, bool, error) {
	var zero R
	if err != nil || !found {
		return zero, false, err
	}
	return fn(item), true, nil
}
