// Package query 提供查询描述（过滤、排序、关联加载、分页、取前 N 行、投影）及其流式构造器。
//
// 构造器方法都返回自身以便链式调用，不会返回错误：nil / 空参数被静默忽略。
// 查询描述交给编译器时被密封（Seal），之后的构造调用被忽略并记录警告日志。
package query

import (
	"context"
	"strings"
	"sync/atomic"

	"repokit/logging"
)

// Builder 是各类查询描述共享的构造器实现，Q 为外层具体类型，用于链式返回。
type Builder[T any, Q any] struct {
	state    State[T]
	filtered bool
	sealed   atomic.Bool
	self     Q
}

func (b *Builder[T, Q]) init(self Q, st State[T], filtered bool) {
	b.self = self
	b.state = st
	b.filtered = filtered
}

// mutable 密封后返回 false 并记录警告
func (b *Builder[T, Q]) mutable(op string) bool {
	if !b.sealed.Load() {
		return true
	}
	logging.ComponentLogger("query").Warn(context.Background(),
		"query descriptor is sealed, builder call ignored", logging.String("op", op))
	return false
}

// AndFilter 以 AND 追加过滤条件；第一次设置过滤时直接赋值
func (b *Builder[T, Q]) AndFilter(p Predicate[T]) Q {
	b.addFilter("AndFilter", p, And[T])
	return b.self
}

// OrFilter 以 OR 追加过滤条件；第一次设置过滤时直接赋值，
// 避免与“恒真”默认值做 OR 导致条件失效。
func (b *Builder[T, Q]) OrFilter(p Predicate[T]) Q {
	b.addFilter("OrFilter", p, Or[T])
	return b.self
}

func (b *Builder[T, Q]) addFilter(op string, p Predicate[T], combine func(...Predicate[T]) Predicate[T]) {
	if p.IsZero() || !b.mutable(op) {
		return
	}
	if !b.filtered {
		b.state.Predicate = p
		b.filtered = true
		return
	}
	b.state.Predicate = combine(b.state.Predicate, p)
}

// Include 追加关联加载路径，空路径忽略，重复路径只保留一次
func (b *Builder[T, Q]) Include(paths ...string) Q {
	if len(paths) == 0 || !b.mutable("Include") {
		return b.self
	}
	for _, p := range paths {
		p = strings.TrimSpace(p)
		if p == "" || containsPath(b.state.Includes, p) {
			continue
		}
		b.state.Includes = append(b.state.Includes, p)
	}
	return b.self
}

func containsPath(paths []string, p string) bool {
	for _, existing := range paths {
		if existing == p {
			return true
		}
	}
	return false
}

func (b *Builder[T, Q]) OrderBy(path string) Q {
	return b.sortByPath("OrderBy", path, Ascending)
}

func (b *Builder[T, Q]) OrderByDescending(path string) Q {
	return b.sortByPath("OrderByDescending", path, Descending)
}

// ThenBy 与 OrderBy 等价，主次顺序只由调用先后决定
func (b *Builder[T, Q]) ThenBy(path string) Q {
	return b.sortByPath("ThenBy", path, Ascending)
}

func (b *Builder[T, Q]) ThenByDescending(path string) Q {
	return b.sortByPath("ThenByDescending", path, Descending)
}

func (b *Builder[T, Q]) OrderByKey(key Key[T]) Q {
	return b.sortByKey("OrderByKey", key, Ascending)
}

func (b *Builder[T, Q]) OrderByKeyDescending(key Key[T]) Q {
	return b.sortByKey("OrderByKeyDescending", key, Descending)
}

func (b *Builder[T, Q]) ThenByKey(key Key[T]) Q {
	return b.sortByKey("ThenByKey", key, Ascending)
}

func (b *Builder[T, Q]) ThenByKeyDescending(key Key[T]) Q {
	return b.sortByKey("ThenByKeyDescending", key, Descending)
}

func (b *Builder[T, Q]) sortByPath(op, path string, dir Direction) Q {
	path = strings.TrimSpace(path)
	if path == "" || !b.mutable(op) {
		return b.self
	}
	b.state.Sortings = append(b.state.Sortings, Sorting[T]{Path: path, Direction: dir})
	return b.self
}

func (b *Builder[T, Q]) sortByKey(op string, key Key[T], dir Direction) Q {
	if key.IsZero() || !b.mutable(op) {
		return b.self
	}
	b.state.Sortings = append(b.state.Sortings, Sorting[T]{Key: key, Direction: dir})
	return b.self
}

func (b *Builder[T, Q]) UseIgnoreQueryFilters(ignore bool) Q {
	if b.mutable("UseIgnoreQueryFilters") {
		b.state.Options.IgnoreQueryFilters = &ignore
	}
	return b.self
}

func (b *Builder[T, Q]) UseIgnoreAutoIncludes(ignore bool) Q {
	if b.mutable("UseIgnoreAutoIncludes") {
		b.state.Options.IgnoreAutoIncludes = &ignore
	}
	return b.self
}

func (b *Builder[T, Q]) UseQueryTrackingBehavior(behavior TrackingBehavior) Q {
	if b.mutable("UseQueryTrackingBehavior") {
		b.state.Options.Tracking = &behavior
	}
	return b.self
}

func (b *Builder[T, Q]) UseQuerySplittingBehavior(behavior SplittingBehavior) Q {
	if b.mutable("UseQuerySplittingBehavior") {
		b.state.Options.Splitting = &behavior
	}
	return b.self
}

// Seal 密封查询描述并返回快照。可重复调用，并发安全。
func (b *Builder[T, Q]) Seal() State[T] {
	b.sealed.Store(true)
	return b.state.Clone()
}

// IsSealed 是否已密封
func (b *Builder[T, Q]) IsSealed() bool { return b.sealed.Load() }

// Snapshot 返回当前状态副本，不密封
func (b *Builder[T, Q]) Snapshot() State[T] { return b.state.Clone() }

// HasFilter 是否设置过过滤条件
func (b *Builder[T, Q]) HasFilter() bool { return b.filtered }

func (b *Builder[T, Q]) Predicate() Predicate[T] { return b.state.Predicate }
func (b *Builder[T, Q]) Includes() []string      { return append([]string(nil), b.state.Includes...) }
func (b *Builder[T, Q]) Sortings() []Sorting[T]  { return append([]Sorting[T](nil), b.state.Sortings...) }
func (b *Builder[T, Q]) Options() Options        { return b.state.Options.clone() }

// copyState 供投影转换使用的深拷贝
func (b *Builder[T, Q]) copyState() (State[T], bool) {
	return b.state.Clone(), b.filtered
}

// pageable 多结果查询描述共享的分页与取前 N 行
type pageable[T any, Q any] struct {
	Builder[T, Q]
}

// Page 设置分页；pageSize <= 0 等价于关闭分页
func (p *pageable[T, Q]) Page(pageIndex, pageSize int) Q {
	if p.mutable("Page") {
		p.state.Paging = Paging{PageIndex: pageIndex, PageSize: pageSize}
	}
	return p.self
}

// Top 设置取前 N 行；topRows <= 0 等价于关闭
func (p *pageable[T, Q]) Top(topRows int) Q {
	if p.mutable("Top") {
		p.state.Topping = Topping{TopRows: topRows}
	}
	return p.self
}

func (p *pageable[T, Q]) Paging() Paging   { return p.state.Paging }
func (p *pageable[T, Q]) Topping() Topping { return p.state.Topping }
