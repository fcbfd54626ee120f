package memory

import (
	"context"
	"slices"

	"repokit/query"
	"repokit/source"
)

// 每扫描多少行检查一次 context
const cancelCheckInterval = 256

type view[T any] struct {
	store      *Store[T]
	opts       query.Options
	includes   []string
	predicates []query.Predicate[T]
	sortings   []query.Sorting[T]
	window     source.Window
}

func (v *view[T]) clone() *view[T] {
	return &view[T]{
		store:      v.store,
		opts:       v.opts,
		includes:   slices.Clone(v.includes),
		predicates: slices.Clone(v.predicates),
		sortings:   slices.Clone(v.sortings),
		window:     v.window,
	}
}

func (v *view[T]) WithOptions(opts query.Options) source.Queryable[T] {
	c := v.clone()
	c.opts = opts
	return c
}

func (v *view[T]) Include(paths ...string) source.Queryable[T] {
	c := v.clone()
	for _, p := range paths {
		if p != "" && !slices.Contains(c.includes, p) {
			c.includes = append(c.includes, p)
		}
	}
	return c
}

func (v *view[T]) Where(p query.Predicate[T]) source.Queryable[T] {
	if p.IsZero() {
		return v
	}
	c := v.clone()
	c.predicates = append(c.predicates, p)
	return c
}

func (v *view[T]) OrderBy(sortings ...query.Sorting[T]) source.Queryable[T] {
	if len(sortings) == 0 {
		return v
	}
	c := v.clone()
	c.sortings = append(c.sortings, sortings...)
	return c
}

func (v *view[T]) Take(n int) source.Queryable[T] {
	c := v.clone()
	c.window = c.window.Take(n)
	return c
}

func (v *view[T]) Skip(n int) source.Queryable[T] {
	c := v.clone()
	c.window = c.window.Skip(n)
	return c
}

func (v *view[T]) Count(ctx context.Context) (int64, error) {
	rows, err := v.filtered(ctx)
	if err != nil {
		return 0, err
	}
	return v.window.Clamp(int64(len(rows))), nil
}

func (v *view[T]) ToList(ctx context.Context) ([]T, error) {
	rows, err := v.filtered(ctx)
	if err != nil {
		return nil, err
	}
	if compare, _ := query.Chain(v.sortings); compare != nil {
		slices.SortStableFunc(rows, compare)
	}
	return slices.Clone(source.Slice(rows, v.window)), nil
}

func (v *view[T]) Each(ctx context.Context, fn func(T) error) error {
	rows, err := v.ToList(ctx)
	if err != nil {
		return err
	}
	for i, row := range rows {
		if i%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		if err := fn(row); err != nil {
			return err
		}
	}
	return nil
}

// filtered 快照 → 关联加载 → 全局过滤器与查询条件
func (v *view[T]) filtered(ctx context.Context) ([]T, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rows := v.store.snapshot()

	if err := v.load(ctx, rows); err != nil {
		return nil, err
	}

	predicates := v.predicates
	if !v.opts.IgnoresQueryFilters() && len(v.store.filters) > 0 {
		predicates = append(slices.Clone(v.store.filters), v.predicates...)
	}
	if len(predicates) == 0 {
		return rows, nil
	}
	p := query.And(predicates...)

	out := rows[:0]
	for i, row := range rows {
		if i%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		ok, err := p.Evaluate(row)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, row)
		}
	}
	return out, nil
}

func (v *view[T]) load(ctx context.Context, rows []T) error {
	paths := slices.Clone(v.includes)
	if !v.opts.IgnoresAutoIncludes() {
		for _, p := range v.store.autoIncludes {
			if !slices.Contains(paths, p) {
				paths = append(paths, p)
			}
		}
	}
	for _, p := range paths {
		loader, ok := v.store.relations[p]
		if !ok {
			return &source.UnknownIncludeError{Source: "memory." + v.store.name, Path: p}
		}
		if err := loader(ctx, rows); err != nil {
			return err
		}
	}
	return nil
}
