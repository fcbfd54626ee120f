// Package source 定义编译器消费的可查询数据源契约。
//
// Queryable 的组合方法（WithOptions/Include/Where/OrderBy/Take/Skip）都返回新的视图，
// 不修改接收者，也不访问数据源；构造阶段的错误（不支持的谓词、未知关联等）
// 延迟到 Count/ToList/Each 时返回。
package source

import (
	"context"

	"repokit/query"
)

// Queryable 对数据源的一个惰性视图
type Queryable[T any] interface {
	// WithOptions 设置透传开关（跟踪、拆分查询、忽略全局过滤器、忽略自动关联）
	WithOptions(opts query.Options) Queryable[T]
	// Include 追加关联加载路径
	Include(paths ...string) Queryable[T]
	// Where 以 AND 追加过滤条件
	Where(p query.Predicate[T]) Queryable[T]
	// OrderBy 追加排序键（已有排序之后的次级键），排序必须稳定
	OrderBy(sortings ...query.Sorting[T]) Queryable[T]
	Take(n int) Queryable[T]
	Skip(n int) Queryable[T]

	Count(ctx context.Context) (int64, error)
	ToList(ctx context.Context) ([]T, error)
	// Each 逐行回调，fn 返回错误时停止
	Each(ctx context.Context, fn func(T) error) error
}

// PathSorter 可选接口：数据源声明能否按某个字段路径排序。
// 编译器把不支持的路径与无法解析的路径一样计入 Compiled.Skipped。
type PathSorter interface {
	CanSortBy(path string) bool
}

// Provider 提供某实体类型的基础查询视图
type Provider[T any] interface {
	Query() Queryable[T]
}

// ProviderFunc 函数形式的 Provider，常用于给关联加载器传入带 Include 的视图
type ProviderFunc[T any] func() Queryable[T]

func (f ProviderFunc[T]) Query() Queryable[T] { return f() }

// Writer 实体写入
type Writer[T any] interface {
	Insert(ctx context.Context, entity *T) error
	Update(ctx context.Context, entity *T) error
	Delete(ctx context.Context, entity *T) error
}

// Store 可读写的数据源
type Store[T any] interface {
	Provider[T]
	Writer[T]
}

// Keyed 可选接口：返回实体主键，用于变更通知
type Keyed[T any] interface {
	Keys(entity *T) []any
}

// Named 可选接口：返回实体名（表名或集合名）
type Named interface {
	EntityName() string
}
