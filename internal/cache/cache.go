package cache

import (
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

type entry struct {
	value  any
	expiry time.Time
}

// Cache 简单的内存 TTL 缓存。过期在读取时惰性清理；
// GetOrLoad 用 singleflight 合并并发的同 key 加载。
type Cache struct {
	mu         sync.Mutex
	entries    map[string]entry
	defaultTTL time.Duration
	group      singleflight.Group
}

// New 创建缓存，defaultTTL 为默认过期时间
func New(defaultTTL time.Duration) *Cache {
	return &Cache{
		entries:    make(map[string]entry),
		defaultTTL: defaultTTL,
	}
}

// Get 读取缓存，key 不存在或已过期返回 (nil, false)
func (c *Cache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if time.Now().After(e.expiry) {
		delete(c.entries, key)
		return nil, false
	}
	return e.value, true
}

// Set 写入缓存。ttl <= 0 时使用默认过期时间。
func (c *Cache) Set(key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = entry{value: value, expiry: time.Now().Add(ttl)}
}

// GetOrLoad 命中直接返回；未命中时调用 loader 并写入缓存。
// 并发的同 key 未命中只触发一次 loader。
func (c *Cache) GetOrLoad(key string, loader func() (any, error)) (any, error) {
	if value, ok := c.Get(key); ok {
		return value, nil
	}

	value, err, _ := c.group.Do(key, func() (any, error) {
		// 排队期间可能已有别的调用填好了缓存
		if value, ok := c.Get(key); ok {
			return value, nil
		}
		value, err := loader()
		if err != nil {
			return nil, err
		}
		c.Set(key, value, 0)
		return value, nil
	})
	return value, err
}

// Clear 清空缓存
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]entry)
}
