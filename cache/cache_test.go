package cache

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCache_BasicOperations(t *testing.T) {
	c := New[string, int](Config{Name: "test", MaxSize: 10})

	c.Set("a", 1)
	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	_, ok = c.Get("missing")
	assert.False(t, ok)

	c.Set("a", 2)
	v, _ = c.Get("a")
	assert.Equal(t, 2, v)
	assert.Equal(t, 1, c.Len())

	assert.True(t, c.Delete("a"))
	assert.False(t, c.Delete("a"))
	assert.Equal(t, 0, c.Len())
}

func TestCache_EvictsLeastRecentlyUsed(t *testing.T) {
	c := New[int, string](Config{Name: "lru", MaxSize: 2})
	c.Set(1, "one")
	c.Set(2, "two")
	// 访问 1 后 2 变为最旧
	c.Get(1)
	c.Set(3, "three")

	_, ok := c.Get(2)
	assert.False(t, ok)
	_, ok = c.Get(1)
	assert.True(t, ok)
	_, ok = c.Get(3)
	assert.True(t, ok)

	s := c.Stats()
	assert.Equal(t, int64(1), s.Evictions)
	assert.Equal(t, 2, s.Size)
	assert.Equal(t, int64(3), s.Hits)
	assert.Equal(t, int64(1), s.Misses)
	assert.InDelta(t, 0.75, s.HitRate(), 1e-9)
	assert.Contains(t, c.String(), "lru")
}

func TestCache_GetOrCreate(t *testing.T) {
	c := New[string, int](Config{MaxSize: 0})
	calls := 0
	create := func() int { calls++; return 42 }

	assert.Equal(t, 42, c.GetOrCreate("k", create))
	assert.Equal(t, 42, c.GetOrCreate("k", create))
	assert.Equal(t, 1, calls)

	c.Clear()
	assert.Equal(t, 0, c.Len())
}

func TestCache_Concurrent(t *testing.T) {
	c := New[int, int](Config{MaxSize: 16})
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				c.Set(i%32, g)
				c.Get(i % 32)
			}
		}(g)
	}
	wg.Wait()
	assert.LessOrEqual(t, c.Len(), 16)
}
