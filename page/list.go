// Package page 提供分页结果的只读视图。
package page

import (
	"encoding/json"

	"repokit/query"
)

// List 一页结果及其分页元数据，构造后不可修改
type List[T any] struct {
	items      []T
	pageIndex  int
	pageSize   int
	totalCount int64
	totalPages int
}

// New 由一页数据与分页参数构造。pageIndex <= 0 按 1 处理。
//
// 元数据总是被计算，空页同样返回完整的页码信息。
func New[T any](items []T, pageIndex, pageSize int, totalCount int64) *List[T] {
	if pageIndex <= 0 {
		pageIndex = 1
	}
	l := &List[T]{
		items:      append([]T(nil), items...),
		pageIndex:  pageIndex,
		pageSize:   pageSize,
		totalCount: totalCount,
	}
	if pageSize > 0 {
		l.totalPages = int((totalCount + int64(pageSize) - 1) / int64(pageSize))
	}
	return l
}

// FromPaging 由执行后的分页规格构造（TotalCount 已由执行器填写）
func FromPaging[T any](items []T, p query.Paging) *List[T] {
	return New(items, p.Index(), p.PageSize, p.TotalCount)
}

// Map 对每个元素做投影，分页元数据保持不变
func Map[T, R any](l *List[T], fn func(T) R) *List[R] {
	out := make([]R, len(l.items))
	for i, item := range l.items {
		out[i] = fn(item)
	}
	return &List[R]{
		items:      out,
		pageIndex:  l.pageIndex,
		pageSize:   l.pageSize,
		totalCount: l.totalCount,
		totalPages: l.totalPages,
	}
}

// Items 返回元素副本
func (l *List[T]) Items() []T { return append([]T(nil), l.items...) }

// At 返回第 i 个元素
func (l *List[T]) At(i int) T { return l.items[i] }

// Count 本页元素个数
func (l *List[T]) Count() int { return len(l.items) }

func (l *List[T]) PageIndex() int    { return l.pageIndex }
func (l *List[T]) PageSize() int     { return l.pageSize }
func (l *List[T]) TotalCount() int64 { return l.totalCount }
func (l *List[T]) TotalPages() int   { return l.totalPages }

func (l *List[T]) HasPreviousPage() bool { return l.pageIndex-1 > 0 }

func (l *List[T]) HasNextPage() bool {
	return l.totalPages > 0 && l.pageIndex+1 <= l.totalPages
}

type listJSON[T any] struct {
	Items           []T   `json:"items"`
	PageIndex       int   `json:"page_index"`
	PageSize        int   `json:"page_size"`
	Count           int   `json:"count"`
	TotalCount      int64 `json:"total_count"`
	TotalPages      int   `json:"total_pages"`
	HasPreviousPage bool  `json:"has_previous_page"`
	HasNextPage     bool  `json:"has_next_page"`
}

// MarshalJSON 输出元素与全部分页元数据
func (l *List[T]) MarshalJSON() ([]byte, error) {
	items := l.items
	if items == nil {
		items = []T{}
	}
	return json.Marshal(listJSON[T]{
		Items:           items,
		PageIndex:       l.pageIndex,
		PageSize:        l.pageSize,
		Count:           len(l.items),
		TotalCount:      l.totalCount,
		TotalPages:      l.totalPages,
		HasPreviousPage: l.HasPreviousPage(),
		HasNextPage:     l.HasNextPage(),
	})
}
