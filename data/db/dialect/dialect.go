// Package dialect 封装不同数据库之间的语法差异（占位符、标识符引用、错误识别）。
package dialect

import (
	stdErrors "errors"
	"strconv"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgconn"

	core "repokit/data/db"
)

// Name 标准化的数据库方言名称
type Name string

const (
	NameSQLite   Name = "sqlite"
	NamePostgres Name = "postgres"
	NameUnknown  Name = ""
)

// Dialect 表示当前数据库的方言能力
type Dialect struct {
	name Name
}

// New 根据 driver 名构造方言（大小写不敏感），pgx 视为 postgres。
func New(name string) Dialect {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "sqlite", "sqlite3":
		return Dialect{name: NameSQLite}
	case "postgres", "postgresql", "pgx":
		return Dialect{name: NamePostgres}
	default:
		return Dialect{name: NameUnknown}
	}
}

// FromDatabase 从 IDatabase 实例推断方言
//
// 需要 IDatabase 可选实现 IDialectNameProvider 接口；否则返回 Unknown。
func FromDatabase(db core.IDatabase) Dialect {
	if db == nil {
		return Dialect{name: NameUnknown}
	}
	if p, ok := db.(core.IDialectNameProvider); ok {
		return New(p.GetDialectName())
	}
	return Dialect{name: NameUnknown}
}

// Name 返回标准化方言名
func (d Dialect) Name() Name {
	return d.name
}

// PlaceholderFormat 返回 squirrel 使用的占位符风格
func (d Dialect) PlaceholderFormat() sq.PlaceholderFormat {
	if d.name == NamePostgres {
		return sq.Dollar
	}
	return sq.Question
}

// QuoteIdentifier 对标识符逐段加双引号，Unknown 方言原样返回。
//
// 支持 schema.table、table.column 等带点形式；不负责校验标识符语法。
func (d Dialect) QuoteIdentifier(name string) string {
	if name == "" || d.name == NameUnknown {
		return name
	}
	parts := strings.Split(name, ".")
	for i, p := range parts {
		if p == "" {
			continue
		}
		parts[i] = `"` + strings.ReplaceAll(p, `"`, `""`) + `"`
	}
	return strings.Join(parts, ".")
}

// Rebind 将通用占位符 ? 转换为方言特定形式。
//
// 仅 Postgres 需要替换为 $1、$2...；已是 $n 形式的语句不含 ?，保持原样。
// 简单字符扫描，不识别字符串字面量中的 ?。
func (d Dialect) Rebind(query string) string {
	if query == "" || d.name != NamePostgres || !strings.Contains(query, "?") {
		return query
	}
	var sb strings.Builder
	sb.Grow(len(query) + 4)
	argIndex := 1
	for i := 0; i < len(query); i++ {
		ch := query[i]
		if ch == '?' {
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(argIndex))
			argIndex++
		} else {
			sb.WriteByte(ch)
		}
	}
	return sb.String()
}

// 约束冲突相关错误码
const (
	pgUniqueViolation       = "23505"
	sqliteConstraintPrimary = 1555 // SQLITE_CONSTRAINT_PRIMARYKEY
	sqliteConstraintUnique  = 2067 // SQLITE_CONSTRAINT_UNIQUE
	sqliteConstraintRowID   = 2579 // SQLITE_CONSTRAINT_ROWID
)

// IsUniqueViolation 判断唯一键/主键冲突。
// 优先识别驱动的结构化错误（pgconn.PgError、modernc sqlite 扩展错误码），其余按消息关键字兜底。
func (d Dialect) IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if stdErrors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	var coded interface{ Code() int }
	if d.name == NameSQLite && stdErrors.As(err, &coded) {
		switch coded.Code() {
		case sqliteConstraintPrimary, sqliteConstraintUnique, sqliteConstraintRowID:
			return true
		}
		return false
	}
	msg := strings.ToLower(err.Error())
	switch d.name {
	case NameSQLite:
		return strings.Contains(msg, "unique constraint failed")
	case NamePostgres:
		return strings.Contains(msg, "duplicate key") || strings.Contains(msg, pgUniqueViolation)
	default:
		return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "unique constraint")
	}
}

// OrderTerm 生成排序项。NULL 视为最小值：升序在前、降序在后；
// SQLite 默认即如此，Postgres 需要显式 NULLS FIRST/LAST。
func (d Dialect) OrderTerm(quotedColumn string, desc bool) string {
	switch {
	case desc && d.name == NamePostgres:
		return quotedColumn + " DESC NULLS LAST"
	case desc:
		return quotedColumn + " DESC"
	case d.name == NamePostgres:
		return quotedColumn + " ASC NULLS FIRST"
	default:
		return quotedColumn + " ASC"
	}
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// Substring 区分大小写的子串 / 前缀匹配。
// SQLite 的 LIKE 对 ASCII 不区分大小写，改用 instr。
func (d Dialect) Substring(quotedColumn, needle string, prefix bool) sq.Sqlizer {
	if d.name == NameSQLite {
		if prefix {
			return sq.Expr("instr("+quotedColumn+", ?) = 1", needle)
		}
		return sq.Expr("instr("+quotedColumn+", ?) > 0", needle)
	}
	pattern := likeEscaper.Replace(needle) + "%"
	if !prefix {
		pattern = "%" + pattern
	}
	return sq.Expr(quotedColumn+` LIKE ? ESCAPE '\'`, pattern)
}
