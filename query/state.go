package query

import "slices"

// State 查询描述的不可变快照，由 Seal 产出，交给编译器执行。
type State[T any] struct {
	Predicate Predicate[T]
	Includes  []string
	Sortings  []Sorting[T]
	Options   Options
	Paging    Paging
	Topping   Topping

	// Selector 同类型投影（未类型化的查询描述上 Select 设置），nil 表示恒等
	Selector func(T) T
}

// Clone 深拷贝切片与选项；谓词树本身不可变，直接共享。
func (s State[T]) Clone() State[T] {
	return State[T]{
		Predicate: s.Predicate,
		Includes:  slices.Clone(s.Includes),
		Sortings:  slices.Clone(s.Sortings),
		Options:   s.Options.clone(),
		Paging:    s.Paging,
		Topping:   s.Topping,
		Selector:  s.Selector,
	}
}

// Descriptor 可被密封并交给编译器的查询描述
type Descriptor[T any] interface {
	Seal() State[T]
	IsSealed() bool
}
