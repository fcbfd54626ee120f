package sqlsource

import (
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"repokit/data/db/dialect"
	"repokit/query"
	"repokit/source"
)

// whereBuilder 把谓词树翻译为 squirrel 条件，列名经过方言引用
type whereBuilder[T any] struct {
	schema  *schema
	dialect dialect.Dialect
	source  string
}

func (w whereBuilder[T]) build(p query.Predicate[T]) (sq.Sqlizer, error) {
	return query.Accept[T, sq.Sqlizer](p, w)
}

func (w whereBuilder[T]) VisitCondition(c query.Condition) (sq.Sqlizer, error) {
	name, err := w.schema.resolve(c.Path)
	if err != nil {
		return nil, err
	}
	col := w.dialect.QuoteIdentifier(name)

	switch c.Op {
	case query.OpEq:
		return sq.Eq{col: c.Value}, nil
	case query.OpNe:
		if c.Value == nil {
			return sq.NotEq{col: nil}, nil
		}
		// NULL 视为“不等于”任何值
		return sq.Or{sq.NotEq{col: c.Value}, sq.Eq{col: nil}}, nil
	case query.OpGt:
		return sq.Gt{col: c.Value}, nil
	case query.OpGte:
		return sq.GtOrEq{col: c.Value}, nil
	case query.OpLt:
		return sq.Lt{col: c.Value}, nil
	case query.OpLte:
		return sq.LtOrEq{col: c.Value}, nil
	case query.OpIn:
		return sq.Eq{col: c.Values()}, nil
	case query.OpIsNull:
		return sq.Eq{col: nil}, nil
	case query.OpNotNull:
		return sq.NotEq{col: nil}, nil
	case query.OpContains, query.OpPrefix:
		return w.dialect.Substring(col, toString(c.Value), c.Op == query.OpPrefix), nil
	}
	return nil, source.Unsupported(w.source, "operator "+string(c.Op))
}

func (w whereBuilder[T]) VisitMatch(func(T) bool) (sq.Sqlizer, error) {
	return nil, source.Unsupported(w.source, "in-process predicate")
}

func (w whereBuilder[T]) VisitAnd(operands []sq.Sqlizer) (sq.Sqlizer, error) {
	return sq.And(operands), nil
}

func (w whereBuilder[T]) VisitOr(operands []sq.Sqlizer) (sq.Sqlizer, error) {
	return sq.Or(operands), nil
}

func (w whereBuilder[T]) VisitNot(operand sq.Sqlizer) (sq.Sqlizer, error) {
	return not{operand}, nil
}

// not 取反前把 UNKNOWN 折叠为 FALSE：涉及 NULL 列的条件在进程内求值为 false，
// 取反后应为 true，而 SQL 三值逻辑的 NOT UNKNOWN 仍是 UNKNOWN。
type not struct{ inner sq.Sqlizer }

func (n not) ToSql() (string, []any, error) {
	s, args, err := n.inner.ToSql()
	if err != nil {
		return "", nil, err
	}
	return "NOT COALESCE((" + s + "), FALSE)", args, nil
}

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	if v == nil {
		return ""
	}
	return fmt.Sprint(v)
}
