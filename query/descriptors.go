package query

// MultipleResultQuery 返回多行结果的查询描述（支持分页与取前 N 行）
type MultipleResultQuery[T any] struct {
	pageable[T, *MultipleResultQuery[T]]
}

// NewMultiple 创建空的多结果查询描述
func NewMultiple[T any]() *MultipleResultQuery[T] {
	q := &MultipleResultQuery[T]{}
	q.init(q, State[T]{}, false)
	return q
}

// Select 设置同类型投影，nil 忽略
func (q *MultipleResultQuery[T]) Select(fn func(T) T) *MultipleResultQuery[T] {
	if fn != nil && q.mutable("Select") {
		q.state.Selector = fn
	}
	return q
}

// SingleResultQuery 返回单行结果的查询描述
type SingleResultQuery[T any] struct {
	Builder[T, *SingleResultQuery[T]]
}

// NewSingle 创建空的单结果查询描述
func NewSingle[T any]() *SingleResultQuery[T] {
	q := &SingleResultQuery[T]{}
	q.init(q, State[T]{}, false)
	return q
}

// Select 设置同类型投影，nil 忽略
func (q *SingleResultQuery[T]) Select(fn func(T) T) *SingleResultQuery[T] {
	if fn != nil && q.mutable("Select") {
		q.state.Selector = fn
	}
	return q
}

// MultipleProjection 带 T -> R 投影的多结果查询描述
type MultipleProjection[T, R any] struct {
	pageable[T, *MultipleProjection[T, R]]
	selector func(T) R
}

// Select 替换投影，nil 忽略
func (q *MultipleProjection[T, R]) Select(fn func(T) R) *MultipleProjection[T, R] {
	if fn != nil && q.mutable("Select") {
		q.selector = fn
	}
	return q
}

// Selector 当前投影，可能为 nil
func (q *MultipleProjection[T, R]) Selector() func(T) R { return q.selector }

// SingleProjection 带 T -> R 投影的单结果查询描述
type SingleProjection[T, R any] struct {
	Builder[T, *SingleProjection[T, R]]
	selector func(T) R
}

// Select 替换投影，nil 忽略
func (q *SingleProjection[T, R]) Select(fn func(T) R) *SingleProjection[T, R] {
	if fn != nil && q.mutable("Select") {
		q.selector = fn
	}
	return q
}

// Selector 当前投影，可能为 nil
func (q *SingleProjection[T, R]) Selector() func(T) R { return q.selector }

// Select 把多结果查询描述转换为带投影的新描述。
//
// 过滤、关联、排序、分页、取前 N 行与开关全部深拷贝，原描述保持可独立使用；
// 原描述上的同类型投影不会带入。q 为 nil 时返回 nil。
func Select[T, R any](q *MultipleResultQuery[T], fn func(T) R) *MultipleProjection[T, R] {
	if q == nil {
		return nil
	}
	st, filtered := q.copyState()
	st.Selector = nil
	p := &MultipleProjection[T, R]{selector: fn}
	p.init(p, st, filtered)
	return p
}

// SelectSingle 把单结果查询描述转换为带投影的新描述，语义同 Select。
func SelectSingle[T, R any](q *SingleResultQuery[T], fn func(T) R) *SingleProjection[T, R] {
	if q == nil {
		return nil
	}
	st, filtered := q.copyState()
	st.Selector = nil
	p := &SingleProjection[T, R]{selector: fn}
	p.init(p, st, filtered)
	return p
}
