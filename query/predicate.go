package query

import (
	"fmt"
	"reflect"
	"strings"
)

// Op 比较运算符
type Op string

const (
	OpEq       Op = "eq"
	OpNe       Op = "ne"
	OpGt       Op = "gt"
	OpGte      Op = "gte"
	OpLt       Op = "lt"
	OpLte      Op = "lte"
	OpIn       Op = "in"
	OpContains Op = "contains"
	OpPrefix   Op = "prefix"
	OpIsNull   Op = "is_null"
	OpNotNull  Op = "not_null"
)

// Kind 谓词节点类型
type Kind int

const (
	KindNone Kind = iota
	KindCondition
	KindMatch
	KindAnd
	KindOr
	KindNot
)

// Condition 作用于字段路径的比较条件
type Condition struct {
	Path  string
	Op    Op
	Value any
}

// Values 返回 In 条件的候选值，切片参数会被展开
func (c Condition) Values() []any {
	return toSlice(c.Value)
}

// Predicate 是 T 上的布尔表达式树。
//
// 零值表示“未设置过滤”，匹配所有行。树节点在构造后不再修改，可以安全地在多个查询间共享。
type Predicate[T any] struct {
	node *node[T]
}

type node[T any] struct {
	kind     Kind
	cond     Condition
	match    func(T) bool
	operands []Predicate[T]
}

func newCondition[T any](path string, op Op, value any) Predicate[T] {
	return Predicate[T]{node: &node[T]{kind: KindCondition, cond: Condition{Path: path, Op: op, Value: value}}}
}

// Eq 与 nil 比较等价于 IsNull，Ne 与 nil 比较等价于 NotNull
func Eq[T any](path string, value any) Predicate[T]  { return newCondition[T](path, OpEq, value) }
func Ne[T any](path string, value any) Predicate[T]  { return newCondition[T](path, OpNe, value) }
func Gt[T any](path string, value any) Predicate[T]  { return newCondition[T](path, OpGt, value) }
func Gte[T any](path string, value any) Predicate[T] { return newCondition[T](path, OpGte, value) }
func Lt[T any](path string, value any) Predicate[T]  { return newCondition[T](path, OpLt, value) }
func Lte[T any](path string, value any) Predicate[T] { return newCondition[T](path, OpLte, value) }

// In 字段值属于 values 之一
func In[T any](path string, values ...any) Predicate[T] {
	return newCondition[T](path, OpIn, append([]any(nil), values...))
}

// Contains 字符串字段包含子串
func Contains[T any](path, substr string) Predicate[T] {
	return newCondition[T](path, OpContains, substr)
}

// HasPrefix 字符串字段以 prefix 开头
func HasPrefix[T any](path, prefix string) Predicate[T] {
	return newCondition[T](path, OpPrefix, prefix)
}

func IsNull[T any](path string) Predicate[T]  { return newCondition[T](path, OpIsNull, nil) }
func NotNull[T any](path string) Predicate[T] { return newCondition[T](path, OpNotNull, nil) }

// Match 进程内谓词，只有内存数据源能执行；fn 为 nil 时返回零值。
func Match[T any](fn func(T) bool) Predicate[T] {
	if fn == nil {
		return Predicate[T]{}
	}
	return Predicate[T]{node: &node[T]{kind: KindMatch, match: fn}}
}

// And 组合多个谓词，零值操作数被忽略
func And[T any](ps ...Predicate[T]) Predicate[T] {
	return combine(KindAnd, ps)
}

// Or 组合多个谓词，零值操作数被忽略
func Or[T any](ps ...Predicate[T]) Predicate[T] {
	return combine(KindOr, ps)
}

// Not 取反，零值取反仍为零值
func Not[T any](p Predicate[T]) Predicate[T] {
	if p.IsZero() {
		return p
	}
	return Predicate[T]{node: &node[T]{kind: KindNot, operands: []Predicate[T]{p}}}
}

func combine[T any](kind Kind, ps []Predicate[T]) Predicate[T] {
	operands := make([]Predicate[T], 0, len(ps))
	for _, p := range ps {
		if p.IsZero() {
			continue
		}
		// 同类节点展平，保持树浅
		if p.node.kind == kind {
			operands = append(operands, p.node.operands...)
			continue
		}
		operands = append(operands, p)
	}
	switch len(operands) {
	case 0:
		return Predicate[T]{}
	case 1:
		return operands[0]
	}
	return Predicate[T]{node: &node[T]{kind: kind, operands: operands}}
}

// IsZero 是否未设置任何条件
func (p Predicate[T]) IsZero() bool { return p.node == nil }

// Kind 返回节点类型
func (p Predicate[T]) Kind() Kind {
	if p.node == nil {
		return KindNone
	}
	return p.node.kind
}

// Condition 返回比较条件（仅 KindCondition 有意义）
func (p Predicate[T]) Condition() Condition {
	if p.node == nil {
		return Condition{}
	}
	return p.node.cond
}

// Operands 返回子节点副本（And/Or/Not）
func (p Predicate[T]) Operands() []Predicate[T] {
	if p.node == nil {
		return nil
	}
	return append([]Predicate[T](nil), p.node.operands...)
}

// Func 返回进程内谓词（仅 KindMatch）
func (p Predicate[T]) Func() func(T) bool {
	if p.node == nil {
		return nil
	}
	return p.node.match
}

func (p Predicate[T]) String() string {
	if p.node == nil {
		return "true"
	}
	switch p.node.kind {
	case KindCondition:
		c := p.node.cond
		if c.Op == OpIsNull || c.Op == OpNotNull {
			return fmt.Sprintf("%s %s", c.Path, c.Op)
		}
		return fmt.Sprintf("%s %s %v", c.Path, c.Op, c.Value)
	case KindMatch:
		return "match(fn)"
	case KindNot:
		return "not(" + p.node.operands[0].String() + ")"
	default:
		sep := " and "
		if p.node.kind == KindOr {
			sep = " or "
		}
		parts := make([]string, len(p.node.operands))
		for i, op := range p.node.operands {
			parts[i] = op.String()
		}
		return "(" + strings.Join(parts, sep) + ")"
	}
}

// Visitor 把谓词树翻译为 R（例如 SQL 片段）
type Visitor[T, R any] interface {
	VisitCondition(c Condition) (R, error)
	VisitMatch(fn func(T) bool) (R, error)
	VisitAnd(operands []R) (R, error)
	VisitOr(operands []R) (R, error)
	VisitNot(operand R) (R, error)
}

// Accept 自底向上遍历谓词树。零值谓词返回 R 的零值。
func Accept[T, R any](p Predicate[T], v Visitor[T, R]) (R, error) {
	var zero R
	if p.node == nil {
		return zero, nil
	}
	switch p.node.kind {
	case KindCondition:
		return v.VisitCondition(p.node.cond)
	case KindMatch:
		return v.VisitMatch(p.node.match)
	}

	results := make([]R, 0, len(p.node.operands))
	for _, op := range p.node.operands {
		r, err := Accept(op, v)
		if err != nil {
			return zero, err
		}
		results = append(results, r)
	}
	switch p.node.kind {
	case KindAnd:
		return v.VisitAnd(results)
	case KindOr:
		return v.VisitOr(results)
	case KindNot:
		return v.VisitNot(results[0])
	}
	return zero, fmt.Errorf("query: unknown predicate kind %d", p.node.kind)
}

// Evaluate 在进程内对 v 求值；零值谓词恒为 true。
// 字段路径无法解析时返回 ErrUnresolvedPath。
func (p Predicate[T]) Evaluate(v T) (bool, error) {
	if p.node == nil {
		return true, nil
	}
	switch p.node.kind {
	case KindCondition:
		return evalCondition(v, p.node.cond)
	case KindMatch:
		return p.node.match(v), nil
	case KindNot:
		ok, err := p.node.operands[0].Evaluate(v)
		return !ok, err
	case KindAnd:
		for _, op := range p.node.operands {
			ok, err := op.Evaluate(v)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	case KindOr:
		for _, op := range p.node.operands {
			ok, err := op.Evaluate(v)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	}
	return false, fmt.Errorf("query: unknown predicate kind %d", p.node.kind)
}

func evalCondition[T any](v T, c Condition) (bool, error) {
	acc, err := ResolvePath[T](c.Path)
	if err != nil {
		return false, err
	}
	val, present := acc.Value(v)

	switch c.Op {
	case OpIsNull:
		return !present, nil
	case OpNotNull:
		return present, nil
	case OpIn:
		if !present {
			return false, nil
		}
		for _, candidate := range toSlice(c.Value) {
			if equalValues(val, candidate) {
				return true, nil
			}
		}
		return false, nil
	case OpContains, OpPrefix:
		s, ok := val.(string)
		if !ok {
			rv := reflect.ValueOf(val)
			if !rv.IsValid() || rv.Kind() != reflect.String {
				return false, nil
			}
			s = rv.String()
		}
		needle := fmt.Sprint(c.Value)
		if c.Op == OpContains {
			return strings.Contains(s, needle), nil
		}
		return strings.HasPrefix(s, needle), nil
	case OpEq:
		if c.Value == nil {
			return !present, nil
		}
		return present && equalValues(val, c.Value), nil
	case OpNe:
		if c.Value == nil {
			return present, nil
		}
		return !present || !equalValues(val, c.Value), nil
	}

	if !present {
		return false, nil
	}
	n, ok := CompareValues(val, c.Value)
	if !ok {
		return false, fmt.Errorf("query: cannot compare %q (%T) with %T", c.Path, val, c.Value)
	}
	switch c.Op {
	case OpGt:
		return n > 0, nil
	case OpGte:
		return n >= 0, nil
	case OpLt:
		return n < 0, nil
	case OpLte:
		return n <= 0, nil
	}
	return false, fmt.Errorf("query: unknown operator %q", c.Op)
}

func equalValues(a, b any) bool {
	if n, ok := CompareValues(a, b); ok {
		return n == 0
	}
	return reflect.DeepEqual(a, b)
}

func toSlice(v any) []any {
	if items, ok := v.([]any); ok {
		// In(path, []int{1,2}) 这种单参数切片写法展开
		if len(items) == 1 {
			rv := reflect.ValueOf(items[0])
			if rv.IsValid() && rv.Kind() == reflect.Slice {
				return toSlice(items[0])
			}
		}
		return items
	}
	rv := reflect.ValueOf(v)
	if !rv.IsValid() || rv.Kind() != reflect.Slice {
		return []any{v}
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out
}
