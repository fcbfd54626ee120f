package source

import (
	"context"
	"fmt"
	"reflect"

	"repokit/query"
)

// Loader 为一批已物化的行加载关联数据（就地修改切片元素）
type Loader[T any] func(ctx context.Context, items []T) error

// BelongsTo 多对一关联：收集本批行的外键 fk，在 related 中按 relatedKey 路径一次查出，
// 通过 set 挂载；找不到或外键为空时传入 nil。
func BelongsTo[T, R any](related Provider[R], relatedKey string, fk func(T) any, set func(*T, *R)) Loader[T] {
	return func(ctx context.Context, items []T) error {
		keys := distinctKeys(items, fk)
		if len(keys) == 0 {
			for i := range items {
				set(&items[i], nil)
			}
			return nil
		}
		rows, index, err := fetchRelated(ctx, related, relatedKey, keys)
		if err != nil {
			return err
		}
		first := make(map[string]*R, len(rows))
		for i := range rows {
			k := index[i]
			if _, ok := first[k]; !ok {
				first[k] = &rows[i]
			}
		}
		for i := range items {
			var target *R
			if k, ok := keyString(fk(items[i])); ok {
				target = first[k]
			}
			set(&items[i], target)
		}
		return nil
	}
}

// HasMany 一对多关联：related 中 foreignKey 路径等于本行主键 pk 的所有行，保持 related 的顺序。
func HasMany[T, R any](related Provider[R], foreignKey string, pk func(T) any, set func(*T, []R)) Loader[T] {
	return func(ctx context.Context, items []T) error {
		keys := distinctKeys(items, pk)
		if len(keys) == 0 {
			for i := range items {
				set(&items[i], nil)
			}
			return nil
		}
		rows, index, err := fetchRelated(ctx, related, foreignKey, keys)
		if err != nil {
			return err
		}
		groups := make(map[string][]R)
		for i, row := range rows {
			groups[index[i]] = append(groups[index[i]], row)
		}
		for i := range items {
			var children []R
			if k, ok := keyString(pk(items[i])); ok {
				children = groups[k]
			}
			set(&items[i], children)
		}
		return nil
	}
}

func fetchRelated[R any](ctx context.Context, related Provider[R], path string, keys []any) ([]R, []string, error) {
	acc, err := query.ResolvePath[R](path)
	if err != nil {
		return nil, nil, err
	}
	rows, err := related.Query().Where(query.In[R](path, keys...)).ToList(ctx)
	if err != nil {
		return nil, nil, err
	}
	index := make([]string, len(rows))
	for i, row := range rows {
		v, _ := acc.Value(row)
		index[i], _ = keyString(v)
	}
	return rows, index, nil
}

func distinctKeys[T any](items []T, key func(T) any) []any {
	seen := make(map[string]bool, len(items))
	var keys []any
	for _, item := range items {
		v := key(item)
		k, ok := keyString(v)
		if !ok || seen[k] {
			continue
		}
		seen[k] = true
		keys = append(keys, deref(v))
	}
	return keys
}

// keyString 把键值规范为字符串，使 int 与 int64 等不同宽度的同值键相等；nil 返回 false
func keyString(v any) (string, bool) {
	v = deref(v)
	if v == nil {
		return "", false
	}
	return fmt.Sprint(v), true
}

func deref(v any) any {
	rv := reflect.ValueOf(v)
	for rv.IsValid() && rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	if !rv.IsValid() {
		return nil
	}
	return rv.Interface()
}
