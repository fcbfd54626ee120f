// Package cache 提供容量受限的并发安全 LRU 缓存
package cache

import (
	"container/list"
	"fmt"
	"sync"
)

// Cache 泛型 LRU 缓存。超过 MaxSize 时驱逐最久未使用的条目。
//
//	paths := cache.New[string, *Accessor](cache.Config{Name: "field_paths", MaxSize: 1024})
//	paths.Set(path, acc)
//	acc, ok := paths.Get(path)
type Cache[K comparable, V any] struct {
	name    string
	maxSize int

	mu    sync.Mutex
	items map[K]*list.Element
	lru   *list.List // 最近使用的在前
	stats Stats
}

type entry[K comparable, V any] struct {
	key   K
	value V
}

// Config 缓存配置
type Config struct {
	Name string
	// MaxSize 最大条目数，<= 0 表示不限
	MaxSize int
}

// Stats 命中统计
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	Size      int
}

// HitRate 命中率，无访问时为 0
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

func New[K comparable, V any](config Config) *Cache[K, V] {
	return &Cache[K, V]{
		name:    config.Name,
		maxSize: config.MaxSize,
		items:   make(map[K]*list.Element),
		lru:     list.New(),
	}
}

func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[key]; ok {
		c.lru.MoveToFront(el)
		c.stats.Hits++
		return el.Value.(*entry[K, V]).value, true
	}
	c.stats.Misses++
	var zero V
	return zero, false
}

// Set 写入或覆盖，必要时驱逐最旧条目
func (c *Cache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[key]; ok {
		el.Value.(*entry[K, V]).value = value
		c.lru.MoveToFront(el)
		return
	}
	c.items[key] = c.lru.PushFront(&entry[K, V]{key: key, value: value})
	for c.maxSize > 0 && c.lru.Len() > c.maxSize {
		oldest := c.lru.Back()
		c.lru.Remove(oldest)
		delete(c.items, oldest.Value.(*entry[K, V]).key)
		c.stats.Evictions++
	}
}

// GetOrCreate 未命中时调用 create 并缓存结果。
// create 在锁外执行，并发未命中时可能被调用多次，以最后一次写入为准。
func (c *Cache[K, V]) GetOrCreate(key K, create func() V) V {
	if v, ok := c.Get(key); ok {
		return v
	}
	v := create()
	c.Set(key, v)
	return v
}

func (c *Cache[K, V]) Delete(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	el, ok := c.items[key]
	if !ok {
		return false
	}
	c.lru.Remove(el)
	delete(c.items, key)
	return true
}

func (c *Cache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[K]*list.Element)
	c.lru.Init()
}

func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

func (c *Cache[K, V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.Size = c.lru.Len()
	return s
}

func (c *Cache[K, V]) String() string {
	s := c.Stats()
	return fmt.Sprintf("cache(%s size=%d/%d hits=%d misses=%d evictions=%d)",
		c.name, s.Size, c.maxSize, s.Hits, s.Misses, s.Evictions)
}
