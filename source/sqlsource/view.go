package sqlsource

import (
	"context"
	"math"
	"slices"

	sq "github.com/Masterminds/squirrel"

	core "repokit/data/db"
	"repokit/logging"
	"repokit/query"
	"repokit/source"
)

type orderTerm struct {
	column string
	desc   bool
}

// view 不可变的查询视图；构造阶段的错误记录在 err 中，执行时返回
type view[T any] struct {
	table    *Table[T]
	opts     query.Options
	includes []string
	conds    []sq.Sqlizer
	orders   []orderTerm
	window   source.Window
	err      error
}

func (v *view[T]) clone() *view[T] {
	return &view[T]{
		table:    v.table,
		opts:     v.opts,
		includes: slices.Clone(v.includes),
		conds:    slices.Clone(v.conds),
		orders:   slices.Clone(v.orders),
		window:   v.window,
		err:      v.err,
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
	if p.IsZero() || v.err != nil {
		return v
	}
	c := v.clone()
	w := whereBuilder[T]{schema: v.table.schema, dialect: v.table.dialect, source: v.table.name()}
	cond, err := w.build(p)
	if err != nil {
		c.err = err
		return c
	}
	c.conds = append(c.conds, cond)
	return c
}

func (v *view[T]) OrderBy(sortings ...query.Sorting[T]) source.Queryable[T] {
	if len(sortings) == 0 || v.err != nil {
		return v
	}
	c := v.clone()
	for _, s := range sortings {
		if !s.ByPath() {
			c.err = source.Unsupported(v.table.name(), "sort by key accessor")
			return c
		}
		col, err := v.table.schema.resolve(s.Path)
		if err != nil {
			// 与内存数据源一致：无法映射的排序路径跳过
			v.table.logger.Debug(context.Background(), "sort path skipped", logging.String("path", s.Path))
			continue
		}
		c.orders = append(c.orders, orderTerm{column: col, desc: s.Descending()})
	}
	return c
}

// CanSortBy 实现 source.PathSorter：路径必须映射到本表的列
func (v *view[T]) CanSortBy(path string) bool {
	_, err := v.table.schema.resolve(path)
	return err == nil
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
	if err := v.check(ctx); err != nil {
		return 0, err
	}
	t := v.table
	b := v.where(t.builder.Select("COUNT(*)").From(t.quote(t.schema.table)))
	stmt, args, err := b.ToSql()
	if err != nil {
		return 0, err
	}
	t.logger.Debug(ctx, "count", logging.String("sql", stmt))

	var total int64
	if err := core.Executor(ctx, t.db).QueryRow(ctx, stmt, args...).Scan(&total); err != nil {
		return 0, t.readError(ctx, err)
	}
	return v.window.Clamp(total), nil
}

func (v *view[T]) ToList(ctx context.Context) ([]T, error) {
	var items []T
	if err := v.scan(ctx, func(item T) error {
		items = append(items, item)
		return nil
	}); err != nil {
		return nil, err
	}
	if err := v.load(ctx, items); err != nil {
		return nil, err
	}
	if items == nil {
		items = []T{}
	}
	return items, nil
}

// Each 没有关联需要加载时逐行流式回调，否则先物化再回调
func (v *view[T]) Each(ctx context.Context, fn func(T) error) error {
	if len(v.paths()) == 0 {
		if err := v.check(ctx); err != nil {
			return err
		}
		return v.scan(ctx, fn)
	}
	items, err := v.ToList(ctx)
	if err != nil {
		return err
	}
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(item); err != nil {
			return err
		}
	}
	return nil
}

// check 返回构造阶段的错误、context 错误以及未注册的关联路径
func (v *view[T]) check(ctx context.Context) error {
	if v.err != nil {
		return v.err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	for _, p := range v.paths() {
		if _, ok := v.table.relations[p]; !ok {
			return &source.UnknownIncludeError{Source: v.table.name(), Path: p}
		}
	}
	return nil
}

func (v *view[T]) scan(ctx context.Context, fn func(T) error) error {
	if err := v.check(ctx); err != nil {
		return err
	}
	t := v.table
	stmt, args, err := v.selectSQL()
	if err != nil {
		return err
	}
	t.logger.Debug(ctx, "select", logging.String("sql", stmt))

	rows, err := core.Executor(ctx, t.db).Query(ctx, stmt, args...)
	if err != nil {
		return t.readError(ctx, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return err
	}
	for rows.Next() {
		var item T
		if err := t.scanRow(rows, cols, &item); err != nil {
			return err
		}
		if err := fn(item); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return t.readError(ctx, err)
	}
	return nil
}

func (v *view[T]) selectSQL() (string, []any, error) {
	t := v.table
	cols := t.schema.selectColumns()
	for i, c := range cols {
		cols[i] = t.quote(c)
	}
	b := v.where(t.builder.Select(cols...).From(t.quote(t.schema.table)))

	for _, o := range v.orders {
		b = b.OrderBy(v.orderClause(o))
	}
	// 主键兜底，保证分页结果确定
	for _, k := range t.schema.keys {
		if !slices.ContainsFunc(v.orders, func(o orderTerm) bool { return o.column == k.name }) {
			b = b.OrderBy(t.quote(k.name) + " ASC")
		}
	}

	if limit, ok := v.window.Limit(); ok {
		b = b.Limit(uint64(limit))
	} else if v.window.Offset() > 0 {
		b = b.Limit(math.MaxInt64)
	}
	if off := v.window.Offset(); off > 0 {
		b = b.Offset(uint64(off))
	}
	return b.ToSql()
}

func (v *view[T]) orderClause(o orderTerm) string {
	return v.table.dialect.OrderTerm(v.table.quote(o.column), o.desc)
}

func (v *view[T]) where(b sq.SelectBuilder) sq.SelectBuilder {
	conds := v.conds
	if !v.opts.IgnoresQueryFilters() && len(v.table.filters) > 0 {
		conds = append(slices.Clone(v.table.filters), v.conds...)
	}
	if len(conds) == 0 {
		return b
	}
	return b.Where(sq.And(conds))
}

func (v *view[T]) paths() []string {
	paths := v.includes
	if !v.opts.IgnoresAutoIncludes() {
		for _, p := range v.table.autoIncludes {
			if !slices.Contains(paths, p) {
				paths = append(slices.Clone(paths), p)
			}
		}
	}
	return paths
}

func (v *view[T]) load(ctx context.Context, items []T) error {
	if len(items) == 0 {
		return nil
	}
	for _, p := range v.paths() {
		if err := v.table.relations[p](ctx, items); err != nil {
			return err
		}
	}
	return nil
}

func (t *Table[T]) readError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return err
}
