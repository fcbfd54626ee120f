package sqlsource

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"repokit/query"
	"repokit/repository"
)

func TestRepositoryOverSQL(t *testing.T) {
	blogs, _ := setup(t)
	r, err := repository.New[blog](blogs)
	require.NoError(t, err)
	assert.Equal(t, "blogs", r.EntityName())
	ctx := context.Background()

	l, err := r.SearchPage(ctx, r.MultipleResultQuery().
		AndFilter(query.Eq[blog]("TypeId", 1)).
		Include("Type").
		OrderByDescending("Rating").
		ThenBy("Id").
		Page(2, 5))
	require.NoError(t, err)
	assert.Equal(t, int64(16), l.TotalCount())
	assert.Equal(t, 4, l.TotalPages())
	assert.Equal(t, 5, l.Count())
	assert.Equal(t, "tech", l.At(0).Type.Name)

	top, err := r.Search(ctx, r.MultipleResultQuery().OrderByDescending("Id").Top(3))
	require.NoError(t, err)
	assert.Equal(t, []int{50, 49, 48}, ids(top))

	titles, err := repository.SearchAs(ctx, r, query.Select(
		r.MultipleResultQuery().AndFilter(query.Lte[blog]("Id", 2)).OrderBy("Id"),
		func(b blog) string { return b.Title }))
	require.NoError(t, err)
	assert.Equal(t, []string{"Blog 01", "Blog 02"}, titles)

	n, err := r.Count(ctx, query.HasPrefix[blog]("Title", "Blog 4"))
	require.NoError(t, err)
	assert.Equal(t, int64(10), n)
}
