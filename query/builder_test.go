package query

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilder_FirstFilterAssigns(t *testing.T) {
	t.Run("首次 OrFilter 直接赋值", func(t *testing.T) {
		q := NewMultiple[blog]().OrFilter(Eq[blog]("ID", 2))
		assert.True(t, q.HasFilter())
		assert.Equal(t, []int{2}, ids(filter(t, sampleBlogs(), q.Predicate())))
	})

	t.Run("之后的 OrFilter 组合", func(t *testing.T) {
		q := NewMultiple[blog]().OrFilter(Eq[blog]("ID", 2)).OrFilter(Eq[blog]("ID", 4))
		assert.Equal(t, []int{2, 4}, ids(filter(t, sampleBlogs(), q.Predicate())))
	})

	t.Run("AND 与 OR 混用按调用顺序结合", func(t *testing.T) {
		q := NewMultiple[blog]().
			AndFilter(Eq[blog]("TypeID", 1)).
			OrFilter(Eq[blog]("ID", 4))
		assert.Equal(t, []int{1, 3, 4}, ids(filter(t, sampleBlogs(), q.Predicate())))
	})

	t.Run("零值谓词被忽略", func(t *testing.T) {
		q := NewMultiple[blog]().OrFilter(Predicate[blog]{})
		assert.False(t, q.HasFilter())
		assert.Len(t, filter(t, sampleBlogs(), q.Predicate()), 5)
	})
}

func TestBuilder_Include(t *testing.T) {
	q := NewMultiple[blog]().Include("Type", "", "  ", "Posts.Comments").Include("Type")
	assert.Equal(t, []string{"Type", "Posts.Comments"}, q.Includes())
}

func TestBuilder_IgnoresBlankArguments(t *testing.T) {
	q := NewMultiple[blog]().OrderBy("").ThenByDescending("  ").Select(nil)
	st := q.Snapshot()
	assert.Empty(t, st.Sortings)
	assert.Nil(t, st.Selector)
}

func TestBuilder_PagingAndTopping(t *testing.T) {
	tests := []struct {
		name         string
		index, size  int
		top          int
		pagingOn     bool
		toppingOn    bool
		expectedSkip int
	}{
		{"Page(1,0) 关闭分页", 1, 0, 0, false, false, 0},
		{"Page(0,0) 关闭分页", 0, 0, 0, false, false, 0},
		{"Page(3,20)", 3, 20, 0, true, false, 40},
		{"页码 <= 0 按第一页处理", -2, 10, 0, true, false, 0},
		{"Top(10)", 0, 0, 10, false, true, 0},
		{"Top(-1) 关闭", 0, 0, -1, false, false, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := NewMultiple[blog]().Page(tt.index, tt.size).Top(tt.top)
			assert.Equal(t, tt.pagingOn, q.Paging().IsEnabled())
			assert.Equal(t, tt.toppingOn, q.Topping().IsEnabled())
			assert.Equal(t, tt.expectedSkip, q.Paging().Skip())
		})
	}
}

func TestBuilder_Options(t *testing.T) {
	q := NewMultiple[blog]()
	assert.False(t, q.Options().IgnoresQueryFilters())
	assert.Nil(t, q.Options().Tracking)

	q.UseIgnoreQueryFilters(true).
		UseIgnoreAutoIncludes(true).
		UseQueryTrackingBehavior(NoTracking).
		UseQuerySplittingBehavior(SplitQuery)

	opts := q.Options()
	assert.True(t, opts.IgnoresQueryFilters())
	assert.True(t, opts.IgnoresAutoIncludes())
	assert.Equal(t, NoTracking, opts.TrackingOr(TrackAll))
	assert.Equal(t, SplitQuery, opts.SplittingOr(SingleQuery))

	// 返回的是副本
	*opts.IgnoreQueryFilters = false
	assert.True(t, q.Options().IgnoresQueryFilters())
}

func TestBuilder_Seal(t *testing.T) {
	q := NewMultiple[blog]().AndFilter(Eq[blog]("ID", 1)).OrderBy("ID").Page(1, 10)
	st := q.Seal()
	assert.True(t, q.IsSealed())

	q.AndFilter(Eq[blog]("ID", 2)).OrderBy("Title").Include("Type").Page(2, 5).Top(3).UseIgnoreQueryFilters(true)

	after := q.Seal()
	assert.Equal(t, st.Paging, after.Paging)
	assert.Len(t, after.Sortings, 1)
	assert.Empty(t, after.Includes)
	assert.False(t, after.Topping.IsEnabled())
	assert.Nil(t, after.Options.IgnoreQueryFilters)
	assert.Equal(t, []int{1}, ids(filter(t, sampleBlogs(), after.Predicate)))

	// 快照与描述互不影响
	st.Sortings[0].Path = "Title"
	assert.Equal(t, "ID", q.Sortings()[0].Path)
}

func TestBuilder_SealConcurrent(t *testing.T) {
	q := NewMultiple[blog]().OrderBy("ID").Include("Type")
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			st := q.Seal()
			assert.Len(t, st.Sortings, 1)
		}()
	}
	wg.Wait()
	assert.True(t, q.IsSealed())
}

type blogSummary struct {
	ID    int
	Title string
}

func TestSelect_DeepCopies(t *testing.T) {
	q := NewMultiple[blog]().
		AndFilter(Eq[blog]("TypeID", 1)).
		Include("Type").
		OrderByDescending("ID").
		Page(2, 5).
		Top(20).
		UseQueryTrackingBehavior(NoTracking).
		Select(func(b blog) blog { return b })

	p := Select(q, func(b blog) blogSummary { return blogSummary{ID: b.ID, Title: b.Title} })
	require.NotNil(t, p)
	assert.True(t, p.HasFilter())
	assert.Equal(t, q.Includes(), p.Includes())
	assert.Equal(t, q.Paging(), p.Paging())
	assert.Equal(t, q.Topping(), p.Topping())
	assert.Equal(t, NoTracking, p.Options().TrackingOr(TrackAll))
	assert.Nil(t, p.Snapshot().Selector)
	assert.NotNil(t, p.Selector())

	// 转换后两者独立
	p.Include("Posts").OrderBy("Title").Page(1, 50)
	q.Include("Owner")
	assert.Equal(t, []string{"Type", "Owner"}, q.Includes())
	assert.Equal(t, []string{"Type", "Posts"}, p.Includes())
	assert.Len(t, q.Sortings(), 1)
	assert.Equal(t, 5, q.Paging().PageSize)

	// 转换后的首次 OrFilter 不会丢掉已有条件
	p.OrFilter(Eq[blog]("ID", 4))
	assert.Equal(t, []int{1, 3, 4}, ids(filter(t, sampleBlogs(), p.Predicate())))

	assert.Nil(t, Select[blog, blogSummary](nil, nil))
}

func TestSelect_ReplaceSelector(t *testing.T) {
	p := Select(NewMultiple[blog](), func(b blog) string { return b.Title })
	p.Select(func(b blog) string { return b.Url }).Select(nil)
	assert.Equal(t, "u", p.Selector()(blog{Url: "u", Title: "t"}))
}

func TestSelectSingle(t *testing.T) {
	s := NewSingle[blog]().AndFilter(Eq[blog]("ID", 3)).Include("Type")
	p := SelectSingle(s, func(b blog) int { return b.TypeID })
	require.NotNil(t, p)
	assert.Equal(t, []string{"Type"}, p.Includes())
	assert.Equal(t, []int{3}, ids(filter(t, sampleBlogs(), p.Predicate())))
	assert.Equal(t, 7, p.Selector()(blog{TypeID: 7}))
	assert.Nil(t, SelectSingle[blog, int](nil, nil))
}
