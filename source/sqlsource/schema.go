package sqlsource

import (
	"fmt"
	"reflect"
	"strings"

	"repokit/query"
)

type column struct {
	name          string
	field         string
	index         []int
	typ           reflect.Type
	primaryKey    bool
	autoIncrement bool
}

// schema 结构体与表的映射：标量字段对应列，切片/映射/结构体字段视为关联，不参与映射
type schema struct {
	typ     reflect.Type
	table   string
	columns []column
	byName  map[string]column
	keys    []column
	// 字段路径 -> 列名的显式覆盖，如 "Type.Id" -> "type_id"
	paths map[string]string
}

func buildSchema(t reflect.Type) (*schema, error) {
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("sqlsource: %s is not a struct", t)
	}
	s := &schema{
		typ:    t,
		table:  toSnakeCase(t.Name()) + "s",
		byName: make(map[string]column),
		paths:  make(map[string]string),
	}
	if name, ok := tableNameOf(t); ok {
		s.table = name
	}

	var walk func(reflect.Type, []int)
	walk = func(cur reflect.Type, prefix []int) {
		for i := 0; i < cur.NumField(); i++ {
			f := cur.Field(i)
			if !f.IsExported() {
				continue
			}
			index := append(append([]int(nil), prefix...), i)

			// 内嵌结构体展开
			if f.Anonymous && f.Type.Kind() == reflect.Struct && !isTimeType(f.Type) {
				walk(f.Type, index)
				continue
			}
			if !isScalarField(f.Type) {
				continue
			}
			name, pk, auto, skip := parseColumnTag(f)
			if skip {
				continue
			}
			if name == "" {
				name = toSnakeCase(f.Name)
			}
			c := column{name: name, field: f.Name, index: index, typ: f.Type, primaryKey: pk, autoIncrement: auto}
			if _, dup := s.byName[name]; dup {
				s.replace(c)
			} else {
				s.columns = append(s.columns, c)
			}
			s.byName[name] = c
		}
	}
	walk(t, nil)

	if len(s.columns) == 0 {
		return nil, fmt.Errorf("sqlsource: %s has no mappable fields", t)
	}
	for _, c := range s.columns {
		if c.primaryKey {
			s.keys = append(s.keys, c)
		}
	}
	if len(s.keys) == 0 {
		if c, ok := s.byName["id"]; ok {
			c.primaryKey = true
			c.autoIncrement = isIntegerType(c.typ)
			s.replace(c)
			s.keys = []column{c}
		}
	}
	return s, nil
}

// replace 同名列以后出现的定义为准（最内层覆盖外层）
func (s *schema) replace(c column) {
	for i := range s.columns {
		if s.columns[i].name == c.name {
			s.columns[i] = c
		}
	}
	s.byName[c.name] = c
}

func (s *schema) setKeys(names []string) error {
	keys := make([]column, 0, len(names))
	for _, n := range names {
		c, ok := s.byName[n]
		if !ok {
			return fmt.Errorf("sqlsource: key column %q not mapped on %s", n, s.typ)
		}
		keys = append(keys, c)
	}
	s.keys = keys
	return nil
}

// resolve 把字段路径解析为列名：显式覆盖 → 字段名 → 忽略大小写的字段名 → 列名
func (s *schema) resolve(path string) (string, error) {
	if col, ok := s.paths[path]; ok {
		return col, nil
	}
	if !strings.Contains(path, ".") {
		for _, c := range s.columns {
			if c.field == path {
				return c.name, nil
			}
		}
		for _, c := range s.columns {
			if strings.EqualFold(c.field, path) {
				return c.name, nil
			}
		}
		if c, ok := s.byName[path]; ok {
			return c.name, nil
		}
	}
	return "", fmt.Errorf("%w: %q has no column on table %s", query.ErrUnresolvedPath, path, s.table)
}

func (s *schema) selectColumns() []string {
	out := make([]string, len(s.columns))
	for i, c := range s.columns {
		out[i] = c.name
	}
	return out
}

func isScalarField(t reflect.Type) bool {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if isTimeType(t) {
		return true
	}
	switch t.Kind() {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64,
		reflect.String:
		return true
	default:
		return false
	}
}

func isIntegerType(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return true
	default:
		return false
	}
}

func isTimeType(t reflect.Type) bool {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.PkgPath() == "time" && t.Name() == "Time"
}

// parseColumnTag 依次读取 gorm（column/primaryKey/autoIncrement）、db、json 标签；
// db:"-" 表示不映射。
func parseColumnTag(f reflect.StructField) (name string, primaryKey, autoIncrement, skip bool) {
	if tag := f.Tag.Get("gorm"); tag != "" {
		for _, part := range strings.Split(tag, ";") {
			part = strings.TrimSpace(part)
			switch {
			case part == "-":
				return "", false, false, true
			case strings.HasPrefix(part, "column:"):
				name = strings.TrimPrefix(part, "column:")
			case strings.EqualFold(part, "primaryKey"), strings.EqualFold(part, "primary_key"):
				primaryKey = true
			case strings.EqualFold(part, "autoIncrement"):
				autoIncrement = true
			}
		}
	}
	if name != "" {
		return name, primaryKey, autoIncrement, false
	}
	if tag := f.Tag.Get("db"); tag != "" {
		if tag == "-" {
			return "", false, false, true
		}
		return strings.Split(tag, ",")[0], primaryKey, autoIncrement, false
	}
	if tag := f.Tag.Get("json"); tag != "" && tag != "-" {
		name = strings.Split(tag, ",")[0]
	}
	return name, primaryKey, autoIncrement, false
}

func toSnakeCase(s string) string {
	var sb strings.Builder
	runes := []rune(s)
	for i, r := range runes {
		if r >= 'A' && r <= 'Z' {
			// "TypeID" -> type_id，连续大写视为一个词
			if i > 0 && (runes[i-1] < 'A' || runes[i-1] > 'Z' || (i+1 < len(runes) && runes[i+1] >= 'a' && runes[i+1] <= 'z')) {
				sb.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// tableNameOf 值或指针接收者实现 TableName() 时使用其返回值
func tableNameOf(t reflect.Type) (string, bool) {
	if m, ok := reflect.New(t).Interface().(interface{ TableName() string }); ok {
		return m.TableName(), true
	}
	return "", false
}

func fieldByIndexSafe(v reflect.Value, index []int) reflect.Value {
	for _, i := range index {
		if v.Kind() == reflect.Ptr {
			if v.IsNil() {
				return reflect.Value{}
			}
			v = v.Elem()
		}
		if v.Kind() != reflect.Struct || i < 0 || i >= v.NumField() {
			return reflect.Value{}
		}
		v = v.Field(i)
	}
	return v
}
