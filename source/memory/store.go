// Package memory 基于切片的内存数据源，实现 source.Store。
//
// 读取时先对数据做快照，再依次执行关联加载、过滤、稳定排序与取行窗口，
// 与 SQL 数据源保持相同的语义，主要用于测试与小规模数据。
package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"repokit/errors"
	"repokit/query"
	"repokit/source"
)

// Option 配置 Store
type Option[T any] func(*Store[T])

// WithName 设置实体名（用于日志与变更通知）
func WithName[T any](name string) Option[T] {
	return func(s *Store[T]) {
		if name != "" {
			s.name = name
		}
	}
}

// WithQueryFilter 注册全局过滤器（如软删除），查询设置 IgnoreQueryFilters 时跳过
func WithQueryFilter[T any](p query.Predicate[T]) Option[T] {
	return func(s *Store[T]) {
		if !p.IsZero() {
			s.filters = append(s.filters, p)
		}
	}
}

// WithRelation 注册关联加载器
func WithRelation[T any](path string, loader source.Loader[T]) Option[T] {
	return func(s *Store[T]) {
		if path != "" && loader != nil {
			s.relations[path] = loader
		}
	}
}

// WithAutoInclude 每次查询都加载的关联，查询设置 IgnoreAutoIncludes 时跳过
func WithAutoInclude[T any](paths ...string) Option[T] {
	return func(s *Store[T]) {
		s.autoIncludes = append(s.autoIncludes, paths...)
	}
}

// Store 内存数据源
type Store[T any] struct {
	mu    sync.RWMutex
	items []T
	key   func(T) any

	name         string
	filters      []query.Predicate[T]
	relations    map[string]source.Loader[T]
	autoIncludes []string
}

// New 创建内存数据源，key 返回实体主键（必须可比较）
func New[T any](key func(T) any, opts ...Option[T]) *Store[T] {
	s := &Store[T]{
		key:       key,
		name:      fmt.Sprintf("%T", *new(T)),
		relations: make(map[string]source.Loader[T]),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Seed 直接追加数据，不做主键冲突检查
func (s *Store[T]) Seed(items ...T) *Store[T] {
	s.mu.Lock()
	s.items = append(s.items, items...)
	s.mu.Unlock()
	return s
}

// Len 当前行数（不考虑全局过滤器）
func (s *Store[T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

func (s *Store[T]) EntityName() string { return s.name }

// Keys 实现 source.Keyed
func (s *Store[T]) Keys(entity *T) []any {
	if entity == nil {
		return nil
	}
	return []any{s.key(*entity)}
}

// Query 返回基础查询视图
func (s *Store[T]) Query() source.Queryable[T] {
	return &view[T]{store: s}
}

func (s *Store[T]) snapshot() []T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.items)
}

func (s *Store[T]) indexOf(k any) int {
	for i, item := range s.items {
		if s.key(item) == k {
			return i
		}
	}
	return -1
}

func (s *Store[T]) Insert(ctx context.Context, entity *T) error {
	if entity == nil {
		return errors.NewInvalidArgument("entity", "must not be nil")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	k := s.key(*entity)
	if s.indexOf(k) >= 0 {
		return errors.NewError(errors.ErrCodeConflict, fmt.Sprintf("%s: duplicate key %v", s.name, k))
	}
	s.items = append(s.items, *entity)
	return nil
}

func (s *Store[T]) Update(ctx context.Context, entity *T) error {
	if entity == nil {
		return errors.NewInvalidArgument("entity", "must not be nil")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	k := s.key(*entity)
	i := s.indexOf(k)
	if i < 0 {
		return errors.NewError(errors.ErrCodeNotFound, fmt.Sprintf("%s: key %v not found", s.name, k))
	}
	s.items[i] = *entity
	return nil
}

func (s *Store[T]) Delete(ctx context.Context, entity *T) error {
	if entity == nil {
		return errors.NewInvalidArgument("entity", "must not be nil")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	k := s.key(*entity)
	i := s.indexOf(k)
	if i < 0 {
		return errors.NewError(errors.ErrCodeNotFound, fmt.Sprintf("%s: key %v not found", s.name, k))
	}
	s.items = slices.Delete(s.items, i, i+1)
	return nil
}

var (
	_ source.Store[struct{}] = (*Store[struct{}])(nil)
	_ source.Keyed[struct{}] = (*Store[struct{}])(nil)
	_ source.Named           = (*Store[struct{}])(nil)
)
