package query

import (
	stdErrors "errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"repokit/cache"
)

// ErrUnresolvedPath 字段路径无法解析（空段、字段不存在、中间段不是结构体等）
var ErrUnresolvedPath = stdErrors.New("query: unresolved field path")

// Accessor 是字段路径编译后的访问器。
//
// 路径按 "." 切分，每一段依次在结构体导出字段上解析：
// 先精确匹配字段名，再忽略大小写匹配，最后匹配 json / db 标签名。
// 中间段遇到指针会自动解引用；运行时遇到 nil 指针返回 nil 值。
type Accessor struct {
	path     string
	segments [][]int
	typ      reflect.Type
}

// Path 返回原始路径
func (a *Accessor) Path() string { return a.path }

// Type 返回终端字段类型（已去掉指针）
func (a *Accessor) Type() reflect.Type { return a.typ }

// Orderable 终端字段是否可以参与排序比较
func (a *Accessor) Orderable() bool { return isOrderableType(a.typ) }

// Value 读取 v 上的字段值。路径上出现 nil 指针时返回 (nil, false)。
func (a *Accessor) Value(v any) (any, bool) {
	rv := reflect.ValueOf(v)
	for _, index := range a.segments {
		rv = indirect(rv)
		if !rv.IsValid() {
			return nil, false
		}
		rv = fieldByIndexSafe(rv, index)
		if !rv.IsValid() {
			return nil, false
		}
	}
	rv = indirect(rv)
	if !rv.IsValid() {
		return nil, false
	}
	return rv.Interface(), true
}

type pathKey struct {
	typ  reflect.Type
	path string
}

type pathEntry struct {
	accessor *Accessor
	err      error
}

// 路径可能来自外部输入（例如排序参数），缓存需要有上限
var pathCache = cache.New[pathKey, pathEntry](cache.Config{Name: "field_paths", MaxSize: 4096})

// ResolvePath 为类型 T 编译字段路径，结果按 (类型, 路径) 缓存。
func ResolvePath[T any](path string) (*Accessor, error) {
	return ResolvePathOf(reflect.TypeOf((*T)(nil)).Elem(), path)
}

// ResolvePathOf 同 ResolvePath，类型在运行时给出
func ResolvePathOf(t reflect.Type, path string) (*Accessor, error) {
	key := pathKey{typ: t, path: path}
	e := pathCache.GetOrCreate(key, func() pathEntry {
		acc, err := compilePath(t, path)
		return pathEntry{accessor: acc, err: err}
	})
	return e.accessor, e.err
}

func compilePath(t reflect.Type, path string) (*Accessor, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("%w: empty path", ErrUnresolvedPath)
	}
	acc := &Accessor{path: path}
	cur := t
	for _, seg := range strings.Split(path, ".") {
		cur = derefType(cur)
		if cur.Kind() != reflect.Struct || isTimeType(cur) {
			return nil, fmt.Errorf("%w: %q (segment %q on non-struct %s)", ErrUnresolvedPath, path, seg, cur)
		}
		f, ok := lookupField(cur, strings.TrimSpace(seg))
		if !ok {
			return nil, fmt.Errorf("%w: %q (no field %q on %s)", ErrUnresolvedPath, path, seg, cur)
		}
		acc.segments = append(acc.segments, f.Index)
		cur = f.Type
	}
	acc.typ = derefType(cur)
	return acc, nil
}

func lookupField(t reflect.Type, name string) (reflect.StructField, bool) {
	if name == "" {
		return reflect.StructField{}, false
	}
	fields := reflect.VisibleFields(t)
	for _, f := range fields {
		if f.IsExported() && f.Name == name {
			return f, true
		}
	}
	for _, f := range fields {
		if f.IsExported() && strings.EqualFold(f.Name, name) {
			return f, true
		}
	}
	for _, f := range fields {
		if !f.IsExported() {
			continue
		}
		if tagName(f, "json") == name || tagName(f, "db") == name {
			return f, true
		}
	}
	return reflect.StructField{}, false
}

func tagName(f reflect.StructField, key string) string {
	tag := f.Tag.Get(key)
	if tag == "" || tag == "-" {
		return ""
	}
	return strings.Split(tag, ",")[0]
}

func derefType(t reflect.Type) reflect.Type {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t
}

func indirect(v reflect.Value) reflect.Value {
	for v.IsValid() && (v.Kind() == reflect.Ptr || v.Kind() == reflect.Interface) {
		if v.IsNil() {
			return reflect.Value{}
		}
		v = v.Elem()
	}
	return v
}

// fieldByIndexSafe 沿内嵌字段索引访问，遇到 nil 内嵌指针返回无效值
func fieldByIndexSafe(v reflect.Value, index []int) reflect.Value {
	for _, i := range index {
		v = indirect(v)
		if !v.IsValid() || v.Kind() != reflect.Struct || i < 0 || i >= v.NumField() {
			return reflect.Value{}
		}
		v = v.Field(i)
	}
	return v
}

func isTimeType(t reflect.Type) bool {
	t = derefType(t)
	return t.PkgPath() == "time" && t.Name() == "Time"
}

func isOrderableType(t reflect.Type) bool {
	if t == nil {
		return false
	}
	if isTimeType(t) {
		return true
	}
	switch t.Kind() {
	case reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64:
		return true
	default:
		return false
	}
}

// CompareValues 比较两个标量值：数值按数值大小（整型/浮点混合时转为 float64），
// 字符串按字节序，bool 中 false < true，time.Time 按时间先后。
// nil 小于任何非 nil 值。类型不可比较时第二个返回值为 false。
func CompareValues(a, b any) (int, bool) {
	switch {
	case a == nil && b == nil:
		return 0, true
	case a == nil:
		return -1, true
	case b == nil:
		return 1, true
	}
	na, ok := normalize(a)
	if !ok {
		return 0, false
	}
	nb, ok := normalize(b)
	if !ok {
		return 0, false
	}

	switch x := na.(type) {
	case int64:
		switch y := nb.(type) {
		case int64:
			return cmpOrdered(x, y), true
		case uint64:
			if x < 0 {
				return -1, true
			}
			return cmpOrdered(uint64(x), y), true
		case float64:
			return cmpOrdered(float64(x), y), true
		}
	case uint64:
		switch y := nb.(type) {
		case uint64:
			return cmpOrdered(x, y), true
		case int64:
			if y < 0 {
				return 1, true
			}
			return cmpOrdered(x, uint64(y)), true
		case float64:
			return cmpOrdered(float64(x), y), true
		}
	case float64:
		switch y := nb.(type) {
		case float64:
			return cmpOrdered(x, y), true
		case int64:
			return cmpOrdered(x, float64(y)), true
		case uint64:
			return cmpOrdered(x, float64(y)), true
		}
	case string:
		if y, ok := nb.(string); ok {
			return strings.Compare(x, y), true
		}
	case bool:
		if y, ok := nb.(bool); ok {
			switch {
			case x == y:
				return 0, true
			case !x:
				return -1, true
			default:
				return 1, true
			}
		}
	case time.Time:
		if y, ok := nb.(time.Time); ok {
			return x.Compare(y), true
		}
	}
	return 0, false
}

func cmpOrdered[V int64 | uint64 | float64](a, b V) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// normalize 把具名类型与各宽度的数值统一为 int64/uint64/float64/string/bool/time.Time
func normalize(v any) (any, bool) {
	if t, ok := v.(time.Time); ok {
		return t, true
	}
	rv := indirect(reflect.ValueOf(v))
	if !rv.IsValid() {
		return nil, false
	}
	if rv.Type().ConvertibleTo(timeType) && isTimeType(rv.Type()) {
		return rv.Convert(timeType).Interface(), true
	}
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return rv.Uint(), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	case reflect.String:
		return rv.String(), true
	case reflect.Bool:
		return rv.Bool(), true
	default:
		return nil, false
	}
}

var timeType = reflect.TypeOf(time.Time{})
