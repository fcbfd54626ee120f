package repository

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"repokit/query"
	"repokit/source"
	"repokit/source/memory"
)

type blogType struct {
	Id   int
	Name string
}

type blog struct {
	Id     int
	Title  string
	TypeId int
	Type   *blogType
	Rating float64
}

var blogTypes = []blogType{{1, "tech"}, {2, "life"}, {3, "news"}}

func newStore() *memory.Store[blog] {
	types := memory.New(func(t blogType) any { return t.Id }).Seed(blogTypes...)
	store := memory.New(func(b blog) any { return b.Id },
		memory.WithName[blog]("blogs"),
		memory.WithRelation("Type", source.BelongsTo[blog, blogType](types, "Id",
			func(b blog) any { return b.TypeId },
			func(b *blog, t *blogType) { b.Type = t })),
	)
	for i := 1; i <= 50; i++ {
		store.Seed(blog{
			Id:     i,
			Title:  fmt.Sprintf("Blog %02d", i),
			TypeId: blogTypes[i%3].Id,
			Rating: float64(i%5) + 0.5,
		})
	}
	return store
}

func newRepo(t *testing.T, opts ...Option[blog]) (*Repository[blog], *memory.Store[blog]) {
	t.Helper()
	store := newStore()
	r, err := New[blog](store, opts...)
	require.NoError(t, err)
	return r, store
}

func ids(items []blog) []int {
	out := make([]int, len(items))
	for i, b := range items {
		out[i] = b.Id
	}
	return out
}

func typeIs(id int) query.Predicate[blog] { return query.Eq[blog]("TypeId", id) }
