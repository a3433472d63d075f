package cache

import (
	"sync"
	"time"
)

// Cache 通用缓存接口
type Cache[K comparable, V any] interface {
	Get(key K) (V, bool)
	Set(key K, value V)
	Delete(key K)
	Len() int
}

// InMemoryCache 带 TTL 与容量上限的内存缓存。
// 过期项在读取或写入时惰性清理，不启动后台 goroutine。
type InMemoryCache[K comparable, V any] struct {
	items    map[K]cacheItem[V]
	mu       sync.Mutex
	ttl      time.Duration
	capacity int
	now      func() time.Time
}

type cacheItem[V any] struct {
	value     V
	expiresAt time.Time
}

// NewInMemoryCache 创建缓存；capacity <= 0 表示不限容量
func NewInMemoryCache[K comparable, V any](ttl time.Duration, capacity int) *InMemoryCache[K, V] {
	return &InMemoryCache[K, V]{
		items:    make(map[K]cacheItem[V]),
		ttl:      ttl,
		capacity: capacity,
		now:      time.Now,
	}
}

// Get 获取缓存值
func (c *InMemoryCache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	item, ok := c.items[key]
	if !ok {
		var zero V
		return zero, false
	}
	if !c.now().Before(item.expiresAt) {
		delete(c.items, key)
		var zero V
		return zero, false
	}
	return item.value, true
}

// Set 写入缓存。满了先清理过期项，仍然满则淘汰最早过期的一项
func (c *InMemoryCache[K, V]) Set(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if _, exists := c.items[key]; !exists && c.capacity > 0 && len(c.items) >= c.capacity {
		c.evict(now)
	}
	c.items[key] = cacheItem[V]{value: value, expiresAt: now.Add(c.ttl)}
}

func (c *InMemoryCache[K, V]) evict(now time.Time) {
	var (
		oldest    K
		oldestAt  time.Time
		haveOldest bool
	)
	for k, it := range c.items {
		if !now.Before(it.expiresAt) {
			delete(c.items, k)
			continue
		}
		if !haveOldest || it.expiresAt.Before(oldestAt) {
			oldest, oldestAt, haveOldest = k, it.expiresAt, true
		}
	}
	if len(c.items) >= c.capacity && haveOldest {
		delete(c.items, oldest)
	}
}

// Delete 删除缓存项
func (c *InMemoryCache[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
}

// Len 当前条目数（含尚未清理的过期项）
func (c *InMemoryCache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}
