// Package repository 提供按实体类型的仓储门面。
//
// 仓储只做参数校验与委托：读操作把查询描述交给 compiler 执行，写操作交给数据源的 Writer；
// 查询逻辑本身不在这里。数据源返回的错误原样透传。
package repository

import (
	"context"
	"iter"
	"reflect"
	"time"

	"repokit/changefeed"
	"repokit/compiler"
	"repokit/errors"
	"repokit/logging"
	"repokit/metrics"
	"repokit/page"
	"repokit/query"
	"repokit/source"
	"repokit/uow"
)

// ErrNoElements 聚合操作作用于空集合
var ErrNoElements = errors.ErrNoElements

// Repository 实体 T 的仓储
type Repository[T any] struct {
	store   source.Store[T]
	name    string
	logger  logging.Logger
	metrics *metrics.Metrics
	feed    *changefeed.Publisher
	uow     *uow.UnitOfWork
}

// Option 仓储配置项
type Option[T any] func(*Repository[T])

// WithLogger 指定日志实例
func WithLogger[T any](logger logging.Logger) Option[T] {
	return func(r *Repository[T]) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithMetrics 启用 Prometheus 指标
func WithMetrics[T any](m *metrics.Metrics) Option[T] {
	return func(r *Repository[T]) { r.metrics = m }
}

// WithChangeFeed 写操作成功后发布变更通知
func WithChangeFeed[T any](p *changefeed.Publisher) Option[T] {
	return func(r *Repository[T]) { r.feed = p }
}

// WithUnitOfWork 批量写操作（*Range）在同一工作单元中执行
func WithUnitOfWork[T any](u *uow.UnitOfWork) Option[T] {
	return func(r *Repository[T]) { r.uow = u }
}

// WithEntityName 覆盖实体名（日志、指标与变更通知使用）
func WithEntityName[T any](name string) Option[T] {
	return func(r *Repository[T]) {
		if name != "" {
			r.name = name
		}
	}
}

// New 创建仓储。store 为 nil 时返回参数错误。
func New[T any](store source.Store[T], opts ...Option[T]) (*Repository[T], error) {
	if store == nil {
		return nil, errors.NewInvalidArgument("store", "store is nil")
	}
	r := &Repository[T]{store: store, name: entityName[T](store)}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = logging.ComponentLogger("repository").WithFields(logging.String("entity", r.name))
	}
	return r, nil
}

func entityName[T any](store any) string {
	if n, ok := store.(source.Named); ok && n.EntityName() != "" {
		return n.EntityName()
	}
	t := reflect.TypeOf((*T)(nil)).Elem()
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// EntityName 实体名
func (r *Repository[T]) EntityName() string { return r.name }

// MultipleResultQuery 创建多结果查询描述
func (r *Repository[T]) MultipleResultQuery() *query.MultipleResultQuery[T] {
	return query.NewMultiple[T]()
}

// SingleResultQuery 创建单结果查询描述
func (r *Repository[T]) SingleResultQuery() *query.SingleResultQuery[T] {
	return query.NewSingle[T]()
}

// Search 执行多结果查询
func (r *Repository[T]) Search(ctx context.Context, q *query.MultipleResultQuery[T]) ([]T, error) {
	if q == nil {
		return nil, nilQuery()
	}
	res, err := r.execute(ctx, "search", q.Seal())
	if err != nil {
		return nil, err
	}
	return res.Items, nil
}

// SearchPage 执行多结果查询并包装为分页结果。
// 未启用分页时整个结果视为第 1 页，TotalCount 为结果行数。
func (r *Repository[T]) SearchPage(ctx context.Context, q *query.MultipleResultQuery[T]) (*page.List[T], error) {
	if q == nil {
		return nil, nilQuery()
	}
	res, err := r.execute(ctx, "search_page", q.Seal())
	if err != nil {
		return nil, err
	}
	return toPage(res), nil
}

func toPage[T any](res compiler.Result[T]) *page.List[T] {
	if !res.Paging.IsEnabled() {
		return page.New(res.Items, 1, 0, int64(len(res.Items)))
	}
	return page.FromPaging(res.Items, res.Paging)
}

// Enumerate 惰性逐行执行多结果查询
func (r *Repository[T]) Enumerate(ctx context.Context, q *query.MultipleResultQuery[T]) iter.Seq2[T, error] {
	if q == nil {
		return func(yield func(T, error) bool) {
			var zero T
			yield(zero, nilQuery())
		}
	}
	return compiler.Enumerate(ctx, r.store.Query(), q.Seal())
}

// ToQueryable 把多结果查询编译为数据源原生的可组合查询，调用方可继续追加条件后自行物化。
// 结果包含筛选、排序、取前 N 行与分页窗口；同类型投影不在其中，无法解析的排序路径被丢弃。
func (r *Repository[T]) ToQueryable(q *query.MultipleResultQuery[T]) (source.Queryable[T], error) {
	if q == nil {
		return nil, nilQuery()
	}
	c := compiler.Compile(r.store.Query(), q.Seal())
	if len(c.Skipped) > 0 {
		r.logger.Debug(context.Background(), "sort instructions skipped", logging.Int("skipped", len(c.Skipped)))
	}
	return c.Query, nil
}

// SingleOrDefault 返回唯一匹配行；无匹配时 found 为 false，多于一行时返回冲突错误。
func (r *Repository[T]) SingleOrDefault(ctx context.Context, q *query.SingleResultQuery[T]) (T, bool, error) {
	var zero T
	if q == nil {
		return zero, false, nilQuery()
	}
	return single(r.execute(ctx, "single_or_default", limit(q.Seal(), 2)))
}

// FirstOrDefault 返回第一行
func (r *Repository[T]) FirstOrDefault(ctx context.Context, q *query.SingleResultQuery[T]) (T, bool, error) {
	var zero T
	if q == nil {
		return zero, false, nilQuery()
	}
	return first(r.execute(ctx, "first_or_default", limit(q.Seal(), 1)))
}

// LastOrDefault 返回最后一行（需要物化全部匹配行）
func (r *Repository[T]) LastOrDefault(ctx context.Context, q *query.SingleResultQuery[T]) (T, bool, error) {
	var zero T
	if q == nil {
		return zero, false, nilQuery()
	}
	return last(r.execute(ctx, "last_or_default", q.Seal()))
}

// Count 统计匹配行数，零值谓词统计全部
func (r *Repository[T]) Count(ctx context.Context, p query.Predicate[T]) (n int64, err error) {
	start := time.Now()
	defer func() { r.observe(ctx, "count", start, err, 0) }()

	c := compiler.Compile(r.store.Query(), query.State[T]{Predicate: p})
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return c.Query.Count(ctx)
}

// Any 是否存在匹配行
func (r *Repository[T]) Any(ctx context.Context, p query.Predicate[T]) (bool, error) {
	res, err := r.execute(ctx, "any", query.State[T]{Predicate: p, Topping: query.Topping{TopRows: 1}})
	if err != nil {
		return false, err
	}
	return len(res.Items) > 0, nil
}

func (r *Repository[T]) execute(ctx context.Context, op string, st query.State[T]) (res compiler.Result[T], err error) {
	start := time.Now()
	defer func() { r.observe(ctx, op, start, err, len(res.Items)) }()
	return compiler.Execute(ctx, r.store.Query(), st)
}

func (r *Repository[T]) observe(ctx context.Context, op string, start time.Time, err error, rows int) {
	r.metrics.Observe(r.name, op, start, err)
	r.metrics.AddRows(r.name, op, rows)
	if err != nil && !errors.IsInvalidArgument(err) {
		r.logger.Debug(ctx, "repository operation failed", logging.String("op", op), logging.Error(err))
	}
}

// limit 在快照上设置取前 N 行，不影响调用方的描述
func limit[T any](st query.State[T], n int) query.State[T] {
	st = st.Clone()
	st.Topping = query.Topping{TopRows: n}
	return st
}

func single[T any](res compiler.Result[T], err error) (T, bool, error) {
	var zero T
	if err != nil {
		return zero, false, err
	}
	switch len(res.Items) {
	case 0:
		return zero, false, nil
	case 1:
		return res.Items[0], true, nil
	default:
		return zero, false, errors.NewError(errors.ErrCodeConflict, "sequence contains more than one element")
	}
}

func first[T any](res compiler.Result[T], err error) (T, bool, error) {
	var zero T
	if err != nil || len(res.Items) == 0 {
		return zero, false, err
	}
	return res.Items[0], true, nil
}

func last[T any](res compiler.Result[T], err error) (T, bool, error) {
	var zero T
	if err != nil || len(res.Items) == 0 {
		return zero, false, err
	}
	return res.Items[len(res.Items)-1], true, nil
}
