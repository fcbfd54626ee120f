package main

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"repokit/config"
	core "repokit/data/db"
	"repokit/data/db/basic"
	"repokit/errors"
	"repokit/examples/blogging"
	"repokit/idgen"
	"repokit/logging"
	"repokit/query"
	"repokit/uow"
)

var testQueryConfig = config.QueryConfig{DefaultPageSize: 4, MaxPageSize: 10}

func seeded(t *testing.T) *blogging.Repositories {
	t.Helper()
	ctx := context.Background()
	d, err := basic.New(core.DBConfig{Driver: "sqlite", Database: ":memory:", MaxOpenConns: 1})
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	require.NoError(t, blogging.Migrate(ctx, d))

	logger := logging.NewNoopLogger()
	stores, err := blogging.NewStores(d, logger)
	require.NoError(t, err)
	u := uow.New(d)
	repos, err := blogging.NewRepositories(stores, blogging.Deps{Logger: logger, UnitOfWork: u})
	require.NoError(t, err)
	ids, err := idgen.New(2)
	require.NoError(t, err)
	require.NoError(t, blogging.Seed(ctx, u, repos, ids, blogging.SeedOptions{Blogs: 12, PostsPerBlog: 1}))
	return repos
}

func TestApplySort(t *testing.T) {
	q := query.NewMultiple[blogging.Blog]()
	require.NoError(t, applySort(q, " -Rating, Type.Id ,+Title,"))

	s := q.Sortings()
	require.Len(t, s, 3)
	assert.Equal(t, "Rating", s[0].Path)
	assert.Equal(t, query.Descending, s[0].Direction)
	assert.Equal(t, "Type.Id", s[1].Path)
	assert.Equal(t, query.Ascending, s[1].Direction)
	assert.Equal(t, "Title", s[2].Path)

	err := applySort(query.NewMultiple[blogging.Blog](), "Id,-")
	assert.True(t, errors.IsInvalidArgument(err))
}

func TestBuildBlogQueryValidates(t *testing.T) {
	repos := seeded(t)

	_, err := buildBlogQuery(repos.Blogs, testQueryConfig, searchOptions{Page: 1, Size: 11})
	assert.True(t, errors.IsInvalidArgument(err))
	assert.Equal(t, "size", errors.ParamOf(err))

	_, err = buildBlogQuery(repos.Blogs, testQueryConfig, searchOptions{Page: -1})
	assert.Equal(t, "page", errors.ParamOf(err))

	_, err = buildBlogQuery(repos.Blogs, testQueryConfig, searchOptions{Include: []string{"Author"}})
	assert.Equal(t, "include", errors.ParamOf(err))

	q, err := buildBlogQuery(repos.Blogs, testQueryConfig, searchOptions{Page: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, q.Paging().PageIndex)
	assert.Equal(t, testQueryConfig.DefaultPageSize, q.Paging().PageSize)
}

func TestSearchBlogsTable(t *testing.T) {
	repos := seeded(t)
	var out bytes.Buffer

	err := searchBlogs(context.Background(), &out, testQueryConfig, repos, searchOptions{
		TypeName: "tech",
		Sort:     "-Id",
		Page:     1,
		Size:     2,
		Include:  []string{"Type", "Posts"},
	})
	require.NoError(t, err)
	text := out.String()
	assert.Contains(t, text, "ID")
	assert.Contains(t, text, "Blog 012")
	assert.Contains(t, text, "tech")
	assert.Contains(t, text, "page 1/2, 2 of 4 blogs")
}

func TestSearchBlogsJSON(t *testing.T) {
	repos := seeded(t)
	var out bytes.Buffer

	err := searchBlogs(context.Background(), &out, testQueryConfig, repos, searchOptions{
		TitleContains: "Blog 00",
		Top:           3,
		Sort:          "Title",
		JSON:          true,
	})
	require.NoError(t, err)

	var decoded struct {
		Items []blogging.Blog `json:"items"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &decoded))
	require.Len(t, decoded.Items, 3)
	assert.Equal(t, "Blog 001", decoded.Items[0].Title)
	assert.Equal(t, "Blog 003", decoded.Items[2].Title)
}

func TestSearchBlogsUnknownType(t *testing.T) {
	repos := seeded(t)
	err := searchBlogs(context.Background(), &bytes.Buffer{}, testQueryConfig, repos, searchOptions{TypeName: "sports"})
	assert.True(t, errors.IsInvalidArgument(err))
	assert.Equal(t, "type", errors.ParamOf(err))
}

func TestDescribe(t *testing.T) {
	msg := describe(errors.NewInvalidArgument("size", "must not exceed 10"))
	assert.Contains(t, msg, "must not exceed 10")
	assert.Contains(t, msg, "(param size)")
}
