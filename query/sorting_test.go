package query

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sortBlogs(items []blog, sortings []Sorting[blog]) ([]blog, []Sorting[blog]) {
	out := slices.Clone(items)
	cmpFn, skipped := Chain(sortings)
	if cmpFn != nil {
		slices.SortStableFunc(out, cmpFn)
	}
	return out, skipped
}

func TestSorting_PathAndKeyAgree(t *testing.T) {
	items := sampleBlogs()[:4]

	byPath, _ := sortBlogs(items, NewMultiple[blog]().OrderByDescending("Type.Id").Sortings())
	byKey, _ := sortBlogs(items, NewMultiple[blog]().
		OrderByKeyDescending(By(func(b blog) int { return b.Type.ID })).Sortings())

	assert.Equal(t, ids(byKey), ids(byPath))
	assert.Equal(t, []int{2, 4, 1, 3}, ids(byPath))
}

func TestSorting_StableMultiKey(t *testing.T) {
	q := NewMultiple[blog]().OrderBy("TypeID").ThenByDescending("CreatedAt")
	got, skipped := sortBlogs(sampleBlogs(), q.Sortings())
	assert.Empty(t, skipped)
	assert.Equal(t, []int{5, 1, 3, 2, 4}, ids(got))

	// 只有主键时，相等元素保持原始顺序
	got, _ = sortBlogs(sampleBlogs(), NewMultiple[blog]().OrderBy("TypeID").Sortings())
	assert.Equal(t, []int{5, 1, 3, 2, 4}, ids(got))
}

func TestSorting_UnresolvedSkipped(t *testing.T) {
	q := NewMultiple[blog]().
		OrderBy("Nope.Field").
		OrderBy("Tags").
		ThenByDescending("ID")

	got, skipped := sortBlogs(sampleBlogs(), q.Sortings())
	require.Len(t, skipped, 2)
	assert.Equal(t, "Nope.Field", skipped[0].Path)
	// 后面的指令成为主排序
	assert.Equal(t, []int{5, 4, 3, 2, 1}, ids(got))
}

func TestSorting_NilValuesFirst(t *testing.T) {
	got, _ := sortBlogs(sampleBlogs(), NewMultiple[blog]().OrderBy("Type.Description").ThenBy("ID").Sortings())
	assert.Equal(t, []int{5, 2, 4, 1, 3}, ids(got))
}

func TestChain_Empty(t *testing.T) {
	cmpFn, skipped := Chain[blog](nil)
	assert.Nil(t, cmpFn)
	assert.Empty(t, skipped)
}

func TestBy_Nil(t *testing.T) {
	assert.True(t, By[blog, int](nil).IsZero())
	assert.Empty(t, NewMultiple[blog]().OrderByKey(By[blog, int](nil)).Sortings())
}
