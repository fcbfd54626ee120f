package sqlsource

import (
	"context"
	stdErrors "errors"
	"fmt"
	"reflect"
	"testing"

	sq "github.com/Masterminds/squirrel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	core "repokit/data/db"
	"repokit/compiler"
	"repokit/data/db/basic"
	"repokit/errors"
	"repokit/query"
	"repokit/source"
	"repokit/source/memory"
)

type blogType struct {
	Id   int    `db:"id"`
	Name string `db:"name"`
}

func (blogType) TableName() string { return "blog_types" }

type blog struct {
	Id       int
	Title    string
	TypeId   int
	Type     *blogType
	Rating   float64
	Archived bool
	Note     *string
}

var ddl = []string{
	`CREATE TABLE blog_types (id INTEGER PRIMARY KEY, name TEXT NOT NULL)`,
	`CREATE TABLE blogs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		title TEXT NOT NULL,
		type_id INTEGER NOT NULL,
		rating REAL NOT NULL DEFAULT 0,
		archived INTEGER NOT NULL DEFAULT 0,
		note TEXT
	)`,
}

func setup(t *testing.T, opts ...Option[blog]) (*Table[blog], *basic.DB) {
	t.Helper()
	d, err := basic.New(core.DBConfig{Driver: "sqlite", Database: ":memory:", MaxOpenConns: 1})
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	ctx := context.Background()
	require.NoError(t, d.ExecScript(ctx, ddl...))

	types, err := New[blogType](d)
	require.NoError(t, err)
	for i, name := range []string{"tech", "life", "news"} {
		require.NoError(t, types.Insert(ctx, &blogType{Id: i + 1, Name: name}))
	}

	opts = append([]Option[blog]{
		WithTable[blog]("blogs"),
		WithColumn[blog]("Type.Id", "type_id"),
		WithRelation("Type", source.BelongsTo[blog, blogType](types, "Id",
			func(b blog) any { return b.TypeId },
			func(b *blog, bt *blogType) { b.Type = bt })),
	}, opts...)
	blogs, err := New[blog](d, opts...)
	require.NoError(t, err)

	for i := 1; i <= 50; i++ {
		b := blog{
			Title:    fmt.Sprintf("Blog %02d", i),
			TypeId:   i%3 + 1,
			Rating:   float64(i%5) + 0.5,
			Archived: i <= 5,
		}
		if i == 1 {
			note := "x"
			b.Note = &note
		}
		require.NoError(t, blogs.Insert(ctx, &b))
		require.Equal(t, i, b.Id)
	}
	return blogs, d
}

func ids(items []blog) []int {
	out := make([]int, len(items))
	for i, b := range items {
		out[i] = b.Id
	}
	return out
}

func count(t *testing.T, q source.Queryable[blog]) int64 {
	t.Helper()
	n, err := q.Count(context.Background())
	require.NoError(t, err)
	return n
}

func TestSchema(t *testing.T) {
	s, err := buildSchema(reflect.TypeOf(blog{}))
	require.NoError(t, err)
	assert.Equal(t, "blogs", s.table)
	assert.Equal(t, []string{"id", "title", "type_id", "rating", "archived", "note"}, s.selectColumns())
	require.Len(t, s.keys, 1)
	assert.True(t, s.keys[0].autoIncrement)

	col, err := s.resolve("typeid")
	require.NoError(t, err)
	assert.Equal(t, "type_id", col)

	_, err = s.resolve("Type.Name")
	assert.ErrorIs(t, err, query.ErrUnresolvedPath)

	assert.Equal(t, "http_server", toSnakeCase("HTTPServer"))
	assert.Equal(t, "type_id", toSnakeCase("TypeID"))
}

func TestView_FilterSortWindow(t *testing.T) {
	blogs, _ := setup(t)
	ctx := context.Background()

	items, err := blogs.Query().
		Where(query.Eq[blog]("TypeId", 1)).
		OrderBy(query.Sorting[blog]{Path: "Id", Direction: query.Descending}).
		Take(5).
		ToList(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{48, 45, 42, 39, 36}, ids(items))

	assert.Equal(t, int64(16), count(t, blogs.Query().Where(query.Eq[blog]("TypeId", 1))))
	assert.Equal(t, int64(6), count(t, blogs.Query().Where(query.Eq[blog]("TypeId", 1)).Skip(10)))
	assert.Equal(t, int64(0), count(t, blogs.Query().Take(0)))

	// 只有 OFFSET 时同样生效
	items, err = blogs.Query().Skip(47).ToList(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{48, 49, 50}, ids(items))
}

func TestView_StringMatchIsCaseSensitive(t *testing.T) {
	blogs, _ := setup(t)

	assert.Equal(t, int64(0), count(t, blogs.Query().Where(query.Contains[blog]("Title", "blog"))))
	assert.Equal(t, int64(10), count(t, blogs.Query().Where(query.Contains[blog]("Title", "Blog 1"))))
	assert.Equal(t, int64(9), count(t, blogs.Query().Where(query.HasPrefix[blog]("Title", "Blog 0"))))
	assert.Equal(t, int64(0), count(t, blogs.Query().Where(query.Contains[blog]("Title", "%"))))
}

func TestView_NullSemantics(t *testing.T) {
	blogs, _ := setup(t)

	assert.Equal(t, int64(49), count(t, blogs.Query().Where(query.Ne[blog]("Note", "x"))))
	assert.Equal(t, int64(49), count(t, blogs.Query().Where(query.IsNull[blog]("Note"))))
	assert.Equal(t, int64(49), count(t, blogs.Query().Where(query.Eq[blog]("Note", nil))))
	assert.Equal(t, int64(1), count(t, blogs.Query().Where(query.NotNull[blog]("Note"))))
}

func TestView_Combinators(t *testing.T) {
	blogs, _ := setup(t)

	assert.Equal(t, int64(2), count(t, blogs.Query().Where(query.Or(
		query.Eq[blog]("Id", 1), query.Eq[blog]("Id", 2)))))
	assert.Equal(t, int64(47), count(t, blogs.Query().Where(query.Not(query.In[blog]("Id", 1, 2, 3)))))
	assert.Equal(t, int64(3), count(t, blogs.Query().Where(query.In[blog]("Id", []int{4, 5, 6}))))
	assert.Equal(t, int64(0), count(t, blogs.Query().Where(query.In[blog]("Id"))))
	assert.Equal(t, int64(10), count(t, blogs.Query().Where(query.And(
		query.Gt[blog]("Id", 10), query.Lte[blog]("Id", 20)))))
}

// 取反作用于可空列时，SQL 与内存数据源返回相同的行
func TestView_NotMatchesMemoryOnNullableColumn(t *testing.T) {
	blogs, _ := setup(t)
	rows, err := blogs.Query().ToList(context.Background())
	require.NoError(t, err)
	mem := memory.New[blog](func(b blog) any { return b.Id }).Seed(rows...)

	tests := []struct {
		name string
		p    query.Predicate[blog]
		want int64
	}{
		{"ne", query.Ne[blog]("Note", "x"), 49},
		{"not eq", query.Not(query.Eq[blog]("Note", "x")), 49},
		{"not in", query.Not(query.In[blog]("Note", "x", "y")), 49},
		{"not contains", query.Not(query.Contains[blog]("Note", "x")), 49},
		{"not gt", query.Not(query.Gt[blog]("Note", "a")), 49},
		{"not and", query.Not(query.And(query.Eq[blog]("Note", "x"), query.Gt[blog]("Id", 0))), 49},
		{"not or", query.Not(query.Or(query.Eq[blog]("Note", "x"), query.Eq[blog]("Id", 2))), 48},
		{"not not", query.Not(query.Not(query.Eq[blog]("Note", "x"))), 1},
		{"not is null", query.Not(query.IsNull[blog]("Note")), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, count(t, blogs.Query().Where(tt.p)), "sql")
			assert.Equal(t, tt.want, count(t, mem.Query().Where(tt.p)), "memory")
		})
	}
}

func TestView_DeferredErrors(t *testing.T) {
	blogs, _ := setup(t)
	ctx := context.Background()

	q := blogs.Query().Where(query.Match(func(b blog) bool { return true }))
	_, err := q.ToList(ctx)
	assert.ErrorIs(t, err, errors.ErrUnsupported)
	_, err = q.Count(ctx)
	assert.ErrorIs(t, err, errors.ErrUnsupported)

	_, err = blogs.Query().OrderBy(query.Sorting[blog]{Key: query.By(func(b blog) int { return b.Id })}).ToList(ctx)
	assert.ErrorIs(t, err, errors.ErrUnsupported)

	_, err = blogs.Query().Where(query.Eq[blog]("Type.Name", "tech")).ToList(ctx)
	assert.ErrorIs(t, err, query.ErrUnresolvedPath)

	_, err = blogs.Query().Include("Posts").ToList(ctx)
	var unknown *source.UnknownIncludeError
	require.True(t, stdErrors.As(err, &unknown))
	assert.Equal(t, "Posts", unknown.Path)
}

func TestView_UnmappedSortSkipped(t *testing.T) {
	blogs, _ := setup(t)
	items, err := blogs.Query().
		OrderBy(query.Sorting[blog]{Path: "Type.Name"}).
		Take(3).
		ToList(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, ids(items))
}

func TestCompile_ReportsUnmappedSortPath(t *testing.T) {
	blogs, _ := setup(t)
	st := query.NewMultiple[blog]().OrderBy("Type.Name").ThenByDescending("Id").Seal()

	c := compiler.Compile[blog](blogs.Query(), st)
	require.Len(t, c.Skipped, 1)
	assert.Equal(t, "Type.Name", c.Skipped[0].Path)

	items, err := c.Query.Take(2).ToList(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{50, 49}, ids(items))
}

func TestView_ColumnOverrideAndInclude(t *testing.T) {
	blogs, _ := setup(t)
	ctx := context.Background()

	assert.Equal(t, int64(17), count(t, blogs.Query().Where(query.Eq[blog]("Type.Id", 2))))

	items, err := blogs.Query().
		Include("Type").
		OrderBy(query.Sorting[blog]{Path: "Type.Id", Direction: query.Descending}).
		ToList(ctx)
	require.NoError(t, err)
	require.Len(t, items, 50)
	require.NotNil(t, items[0].Type)
	assert.Equal(t, 3, items[0].Type.Id)
	assert.Equal(t, "news", items[0].Type.Name)
	assert.Equal(t, 1, items[49].Type.Id)
	// 同键内按主键升序
	assert.Equal(t, 2, items[0].Id)
	assert.Equal(t, 5, items[1].Id)
}

func TestView_QueryFilter(t *testing.T) {
	blogs, _ := setup(t, WithQueryFilter[blog](sq.Eq{"archived": false}))

	assert.Equal(t, int64(45), count(t, blogs.Query()))
	ignore := true
	assert.Equal(t, int64(50), count(t, blogs.Query().WithOptions(query.Options{IgnoreQueryFilters: &ignore})))
}

func TestView_AutoInclude(t *testing.T) {
	blogs, _ := setup(t, WithAutoInclude[blog]("Type"))
	ctx := context.Background()

	items, err := blogs.Query().Take(1).ToList(ctx)
	require.NoError(t, err)
	require.NotNil(t, items[0].Type)

	ignore := true
	items, err = blogs.Query().WithOptions(query.Options{IgnoreAutoIncludes: &ignore}).Take(1).ToList(ctx)
	require.NoError(t, err)
	assert.Nil(t, items[0].Type)
}

func TestView_Each(t *testing.T) {
	blogs, _ := setup(t)
	var seen []int
	err := blogs.Query().Where(query.Lte[blog]("Id", 3)).Each(context.Background(), func(b blog) error {
		seen = append(seen, b.Id)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, seen)

	stop := stdErrors.New("stop")
	err = blogs.Query().Each(context.Background(), func(blog) error { return stop })
	assert.ErrorIs(t, err, stop)
}

func TestView_Cancellation(t *testing.T) {
	blogs, _ := setup(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := blogs.Query().ToList(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTable_Writes(t *testing.T) {
	blogs, _ := setup(t)
	ctx := context.Background()

	b := blog{Title: "New", TypeId: 2}
	require.NoError(t, blogs.Insert(ctx, &b))
	assert.Equal(t, 51, b.Id)
	assert.Equal(t, []any{51}, blogs.Keys(&b))

	b.Title = "Renamed"
	require.NoError(t, blogs.Update(ctx, &b))
	items, err := blogs.Query().Where(query.Eq[blog]("Id", 51)).ToList(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", items[0].Title)

	dup := blog{Id: 51, Title: "dup", TypeId: 1}
	assert.True(t, errors.IsConflict(blogs.Insert(ctx, &dup)))

	require.NoError(t, blogs.Delete(ctx, &b))
	assert.True(t, errors.IsNotFound(blogs.Delete(ctx, &b)))
	assert.True(t, errors.IsNotFound(blogs.Update(ctx, &b)))

	err = blogs.Insert(ctx, nil)
	assert.True(t, errors.IsInvalidArgument(err))
}

func TestTable_JoinsTransaction(t *testing.T) {
	blogs, d := setup(t)
	ctx := context.Background()

	tx, err := d.Begin(ctx)
	require.NoError(t, err)
	txCtx := core.WithTransaction(ctx, tx)

	require.NoError(t, blogs.Insert(txCtx, &blog{Title: "in tx", TypeId: 1}))
	n, err := blogs.Query().Count(txCtx)
	require.NoError(t, err)
	assert.Equal(t, int64(51), n)
	require.NoError(t, tx.Rollback())

	assert.Equal(t, int64(50), count(t, blogs.Query()))
}

func TestTable_FromSQL(t *testing.T) {
	blogs, _ := setup(t)
	ctx := context.Background()

	items, err := blogs.FromSQL(ctx,
		"SELECT id, title, note, 'ignored' AS extra FROM blogs WHERE type_id = ? AND id <= ? ORDER BY id DESC", 2, 10)
	require.NoError(t, err)
	assert.Equal(t, []int{10, 7, 4, 1}, ids(items))
	assert.Equal(t, "Blog 10", items[0].Title)
	require.NotNil(t, items[3].Note)
	assert.Equal(t, "x", *items[3].Note)
	// 未选择的列保持零值
	assert.Zero(t, items[0].TypeId)

	items, err = blogs.FromSQL(ctx, "SELECT * FROM blogs WHERE id < 0")
	require.NoError(t, err)
	assert.NotNil(t, items)
	assert.Empty(t, items)

	_, err = blogs.FromSQL(ctx, "  ")
	assert.True(t, errors.IsInvalidArgument(err))
	_, err = blogs.FromSQL(ctx, "SELECT * FROM missing_table")
	assert.Error(t, err)
}

func TestTable_ExecSQL(t *testing.T) {
	blogs, d := setup(t)
	ctx := context.Background()

	n, err := blogs.ExecSQL(ctx, "UPDATE blogs SET archived = 1 WHERE type_id = ?", 3)
	require.NoError(t, err)
	assert.Equal(t, int64(17), n)
	assert.Equal(t, int64(20), count(t, blogs.Query().Where(query.Eq[blog]("Archived", true))))

	_, err = blogs.ExecSQL(ctx, "INSERT INTO blogs (id, title, type_id) VALUES (?, ?, ?)", 1, "dup", 1)
	assert.True(t, errors.IsConflict(err))

	// 事务中执行的语句随事务回滚
	tx, err := d.Begin(ctx)
	require.NoError(t, err)
	txCtx := core.WithTransaction(ctx, tx)
	n, err = blogs.ExecSQL(txCtx, "DELETE FROM blogs WHERE id > ?", 40)
	require.NoError(t, err)
	assert.Equal(t, int64(10), n)
	items, err := blogs.FromSQL(txCtx, "SELECT id FROM blogs WHERE id > ?", 40)
	require.NoError(t, err)
	assert.Empty(t, items)
	require.NoError(t, tx.Rollback())

	assert.Equal(t, int64(50), count(t, blogs.Query()))
}

func TestNew_Validation(t *testing.T) {
	_, err := New[blog](nil)
	assert.True(t, errors.IsInvalidArgument(err))

	d, err := basic.New(core.DBConfig{Driver: "sqlite", Database: ":memory:", MaxOpenConns: 1})
	require.NoError(t, err)
	defer d.Close()

	_, err = New[int](d)
	assert.True(t, errors.IsInvalidArgument(err))

	_, err = New[blog](d, WithKey[blog]("nope"))
	assert.True(t, errors.IsInvalidArgument(err))
}
