package source

// Window 取行窗口（OFFSET + LIMIT）。Take/Skip 按调用顺序代数组合，
// 例如 Take(10).Skip(20).Take(20) 得到空窗口，保证“先取前 N 行再分页”的语义。
type Window struct {
	offset  int
	limit   int
	limited bool
}

// Take 最多保留 n 行，n < 0 忽略
func (w Window) Take(n int) Window {
	if n < 0 {
		return w
	}
	if !w.limited || n < w.limit {
		w.limit = n
	}
	w.limited = true
	return w
}

// Skip 跳过 n 行，n <= 0 忽略
func (w Window) Skip(n int) Window {
	if n <= 0 {
		return w
	}
	w.offset += n
	if w.limited {
		w.limit -= n
		if w.limit < 0 {
			w.limit = 0
		}
	}
	return w
}

func (w Window) Offset() int { return w.offset }

// Limit 返回上限；第二个返回值为 false 表示不限
func (w Window) Limit() (int, bool) { return w.limit, w.limited }

// IsZero 是否没有任何限制
func (w Window) IsZero() bool { return w.offset == 0 && !w.limited }

// Clamp 把窗口作用于 total 行后的行数
func (w Window) Clamp(total int64) int64 {
	n := total - int64(w.offset)
	if n < 0 {
		n = 0
	}
	if w.limited && n > int64(w.limit) {
		n = int64(w.limit)
	}
	return n
}

// Slice 把窗口作用于切片，返回子切片（不复制）
func Slice[T any](items []T, w Window) []T {
	start := w.offset
	if start > len(items) {
		start = len(items)
	}
	end := len(items)
	if w.limited && start+w.limit < end {
		end = start + w.limit
	}
	return items[start:end]
}
