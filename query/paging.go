package query

// Paging 分页规格。
//
// PageSize > 0 时启用；PageIndex 从 1 开始，<= 0 按 1 处理（不跳过，但仍取 PageSize 条）。
// TotalCount 由执行器在分页查询后填写，调用方不应设置。
type Paging struct {
	PageIndex  int   `json:"page_index"`
	PageSize   int   `json:"page_size"`
	TotalCount int64 `json:"total_count"`
}

// IsEnabled 是否启用分页
func (p Paging) IsEnabled() bool { return p.PageSize > 0 }

// Index 规范化后的页码
func (p Paging) Index() int {
	if p.PageIndex <= 0 {
		return 1
	}
	return p.PageIndex
}

// Skip 需要跳过的行数，未启用分页时为 0
func (p Paging) Skip() int {
	if !p.IsEnabled() {
		return 0
	}
	return (p.Index() - 1) * p.PageSize
}

// WithTotalCount 返回填入总数后的副本
func (p Paging) WithTotalCount(total int64) Paging {
	p.TotalCount = total
	return p
}

// Topping 取前 N 行规格，TopRows > 0 时启用
type Topping struct {
	TopRows int `json:"top_rows"`
}

// IsEnabled 是否启用
func (t Topping) IsEnabled() bool { return t.TopRows > 0 }
