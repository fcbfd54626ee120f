// Package compiler 把密封后的查询描述编译为对数据源的固定操作序列并执行：
//
//	选项 → 关联加载 → 过滤 → 稳定多键排序 → 取前 N 行 → 分页 → 投影
//
// 分页启用时额外执行一次只含选项、关联与过滤的计数查询以得到 TotalCount。
// 计数与分页是两次独立的数据源访问，数据源在两者之间被修改时结果可能不一致。
package compiler

import (
	"context"
	"iter"
	"time"

	"repokit/logging"
	"repokit/query"
	"repokit/source"
)

// Compiled 编译结果
type Compiled[T any] struct {
	// Query 完整查询（含排序、取前 N 行与分页窗口）
	Query source.Queryable[T]
	// Count 计数查询，仅在分页启用时非 nil
	Count source.Queryable[T]
	// Skipped 无法解析而被跳过的排序指令
	Skipped []query.Sorting[T]
	// Selector 同类型投影，nil 表示恒等
	Selector func(T) T
}

// Result 执行结果。Paging.TotalCount 仅在分页启用时有意义。
type Result[T any] struct {
	Items  []T
	Paging query.Paging
}

// Compile 按固定顺序把状态应用到 base 上，不访问数据源。
func Compile[T any](base source.Queryable[T], st query.State[T]) Compiled[T] {
	q := base.WithOptions(st.Options)
	if len(st.Includes) > 0 {
		q = q.Include(st.Includes...)
	}
	if !st.Predicate.IsZero() {
		q = q.Where(st.Predicate)
	}
	filtered := q

	sorter, _ := q.(source.PathSorter)
	var resolved, skipped []query.Sorting[T]
	for _, s := range st.Sortings {
		if _, err := s.Comparator(); err != nil {
			skipped = append(skipped, s)
			continue
		}
		if sorter != nil && s.ByPath() && !sorter.CanSortBy(s.Path) {
			skipped = append(skipped, s)
			continue
		}
		resolved = append(resolved, s)
	}
	if len(resolved) > 0 {
		q = q.OrderBy(resolved...)
	}

	if st.Topping.IsEnabled() {
		q = q.Take(st.Topping.TopRows)
	}

	c := Compiled[T]{Skipped: skipped, Selector: st.Selector}
	if st.Paging.IsEnabled() {
		q = q.Skip(st.Paging.Skip()).Take(st.Paging.PageSize)
		c.Count = filtered
	}
	c.Query = q
	return c
}

// Execute 编译并物化结果。数据源错误原样返回，不重试。
func Execute[T any](ctx context.Context, base source.Queryable[T], st query.State[T]) (Result[T], error) {
	start := time.Now()
	log := logger()
	c := Compile(base, st)
	logSkipped(ctx, log, c.Skipped)

	res := Result[T]{Paging: st.Paging}
	if c.Count != nil {
		if err := ctx.Err(); err != nil {
			return Result[T]{}, err
		}
		total, err := c.Count.Count(ctx)
		if err != nil {
			return Result[T]{}, err
		}
		res.Paging = res.Paging.WithTotalCount(total)
	}

	if err := ctx.Err(); err != nil {
		return Result[T]{}, err
	}
	items, err := c.Query.ToList(ctx)
	if err != nil {
		return Result[T]{}, err
	}
	if c.Selector != nil {
		for i := range items {
			items[i] = c.Selector(items[i])
		}
	}
	res.Items = items

	log.Debug(ctx, "query executed",
		logging.Int("rows", len(items)),
		logging.Bool("paged", c.Count != nil),
		logging.Int64("total_count", res.Paging.TotalCount),
		logging.Duration("elapsed", time.Since(start)))
	return res, nil
}

// Enumerate 惰性逐行执行；不计算 TotalCount。遇到错误时产出 (零值, err) 后结束。
func Enumerate[T any](ctx context.Context, base source.Queryable[T], st query.State[T]) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		c := Compile(base, st)
		logSkipped(ctx, logger(), c.Skipped)
		if err := ctx.Err(); err != nil {
			var zero T
			yield(zero, err)
			return
		}
		stopped := false
		err := c.Query.Each(ctx, func(item T) error {
			if c.Selector != nil {
				item = c.Selector(item)
			}
			if !yield(item, nil) {
				stopped = true
				return errStop
			}
			return nil
		})
		if err != nil && !stopped {
			var zero T
			yield(zero, err)
		}
	}
}

// Project 在执行之后应用 T -> R 投影
func Project[T, R any](items []T, fn func(T) R) []R {
	out := make([]R, len(items))
	for i, item := range items {
		out[i] = fn(item)
	}
	return out
}

type stopError struct{}

func (stopError) Error() string { return "compiler: enumeration stopped" }

var errStop error = stopError{}

func logger() logging.Logger {
	return logging.ComponentLogger("compiler")
}

func logSkipped[T any](ctx context.Context, log logging.Logger, skipped []query.Sorting[T]) {
	for _, s := range skipped {
		log.Debug(ctx, "sort directive skipped", logging.String("path", s.Path))
	}
}
