package repository

import (
	"cmp"
	"context"
	"time"

	"repokit/compiler"
	"repokit/errors"
	"repokit/query"
)

// Number 可求和、求平均的数值类型
type Number interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 |
		~float32 | ~float64
}

// Max 匹配行上 selector 的最大值；无匹配行时返回 ErrNoElements
func Max[T any, K cmp.Ordered](ctx context.Context, r *Repository[T], selector func(T) K, p query.Predicate[T]) (K, error) {
	return fold(ctx, r, "max", selector, p, func(acc, v K) K { return max(acc, v) })
}

// Min 匹配行上 selector 的最小值；无匹配行时返回 ErrNoElements
func Min[T any, K cmp.Ordered](ctx context.Context, r *Repository[T], selector func(T) K, p query.Predicate[T]) (K, error) {
	return fold(ctx, r, "min", selector, p, func(acc, v K) K { return min(acc, v) })
}

// Sum 匹配行上 selector 之和；无匹配行时为 0
func Sum[T any, N Number](ctx context.Context, r *Repository[T], selector func(T) N, p query.Predicate[T]) (N, error) {
	total, err := fold(ctx, r, "sum", selector, p, func(acc, v N) N { return acc + v })
	if errors.IsErrorCode(err, errors.ErrCodeNoElements) {
		return 0, nil
	}
	return total, err
}

// Average 匹配行上 selector 的平均值；无匹配行时返回 ErrNoElements
func Average[T any, N Number](ctx context.Context, r *Repository[T], selector func(T) N, p query.Predicate[T]) (float64, error) {
	if err := checkSelector(r, selector == nil); err != nil {
		return 0, err
	}
	var (
		sum float64
		n   int
	)
	err := r.each(ctx, "average", p, func(item T) {
		sum += float64(selector(item))
		n++
	})
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, ErrNoElements
	}
	return sum / float64(n), nil
}

func fold[T, K any](ctx context.Context, r *Repository[T], op string, selector func(T) K, p query.Predicate[T], step func(acc, v K) K) (K, error) {
	var acc K
	if err := checkSelector(r, selector == nil); err != nil {
		return acc, err
	}
	seen := false
	err := r.each(ctx, op, p, func(item T) {
		v := selector(item)
		if !seen {
			acc, seen = v, true
			return
		}
		acc = step(acc, v)
	})
	if err != nil {
		var zero K
		return zero, err
	}
	if !seen {
		return acc, ErrNoElements
	}
	return acc, nil
}

// each 以流式方式遍历匹配行，避免聚合时物化整个结果集。
// selector 是 Go 函数，无法下推为 SQL 聚合，因此 SQL 数据源也会把每一行匹配数据传回进程；
// 只需要行数时用 Count，大表聚合应直接写 SQL（sqlsource.Table.FromSQL）。
func (r *Repository[T]) each(ctx context.Context, op string, p query.Predicate[T], fn func(T)) (err error) {
	start := time.Now()
	rows := 0
	defer func() { r.observe(ctx, op, start, err, rows) }()

	for item, err := range compiler.Enumerate(ctx, r.store.Query(), query.State[T]{Predicate: p}) {
		if err != nil {
			return err
		}
		fn(item)
		rows++
	}
	return nil
}

func checkSelector[T any](r *Repository[T], nilSelector bool) error {
	switch {
	case r == nil:
		return errors.NewInvalidArgument("repository", "repository is nil")
	case nilSelector:
		return errors.NewInvalidArgument("selector", "selector is nil")
	}
	return nil
}
