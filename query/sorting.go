package query

import (
	"cmp"
	"fmt"
)

// Direction 排序方向
type Direction int

const (
	Ascending Direction = iota
	Descending
)

func (d Direction) String() string {
	if d == Descending {
		return "desc"
	}
	return "asc"
}

// Key 静态排序键，由 By 构造
type Key[T any] struct {
	compare func(a, b T) int
}

// By 用访问器函数构造排序键；fn 为 nil 时返回零值（被构造器忽略）。
func By[T any, K cmp.Ordered](fn func(T) K) Key[T] {
	if fn == nil {
		return Key[T]{}
	}
	return Key[T]{compare: func(a, b T) int { return cmp.Compare(fn(a), fn(b)) }}
}

// IsZero 是否为空键
func (k Key[T]) IsZero() bool { return k.compare == nil }

// Sorting 一条排序指令：字段路径或静态键二选一，外加方向。
type Sorting[T any] struct {
	Path      string
	Key       Key[T]
	Direction Direction
}

// ByPath 是否为动态字段路径排序
func (s Sorting[T]) ByPath() bool { return s.Key.IsZero() }

// Descending 是否降序
func (s Sorting[T]) Descending() bool { return s.Direction == Descending }

func (s Sorting[T]) String() string {
	if s.ByPath() {
		return s.Path + " " + s.Direction.String()
	}
	return "key " + s.Direction.String()
}

// Comparator 把排序指令编译为比较函数（已包含方向）。
//
// 字段路径无法解析或终端类型不可排序时返回 ErrUnresolvedPath，
// 调用方据此跳过该指令。
func (s Sorting[T]) Comparator() (func(a, b T) int, error) {
	var base func(a, b T) int
	if !s.ByPath() {
		base = s.Key.compare
	} else {
		acc, err := ResolvePath[T](s.Path)
		if err != nil {
			return nil, err
		}
		if !acc.Orderable() {
			return nil, fmt.Errorf("%w: %q is not orderable (%s)", ErrUnresolvedPath, s.Path, acc.Type())
		}
		base = func(a, b T) int {
			va, _ := acc.Value(a)
			vb, _ := acc.Value(b)
			n, _ := CompareValues(va, vb)
			return n
		}
	}
	if s.Direction == Descending {
		return func(a, b T) int { return base(b, a) }, nil
	}
	return base, nil
}

// Chain 把多条排序指令合成一个多键比较函数，无法解析的指令被跳过并通过 skipped 返回。
// 没有可用指令时 compare 为 nil。
func Chain[T any](sortings []Sorting[T]) (compare func(a, b T) int, skipped []Sorting[T]) {
	var comparators []func(a, b T) int
	for _, s := range sortings {
		c, err := s.Comparator()
		if err != nil {
			skipped = append(skipped, s)
			continue
		}
		comparators = append(comparators, c)
	}
	if len(comparators) == 0 {
		return nil, skipped
	}
	return func(a, b T) int {
		for _, c := range comparators {
			if n := c(a, b); n != 0 {
				return n
			}
		}
		return 0
	}, skipped
}
