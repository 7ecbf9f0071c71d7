package access

import (
	"context"
	"sync"
	"time"

	"advisor/internal/logger"
)

const DefaultTTL = 300 * time.Second

// Cache 授权名单的时间窗缓存：整表读开销只在 TTL 过期后发生一次。
// 集合整体替换、不逐元素修改，读到的要么是刷新前、要么是刷新后的快照。
type Cache struct {
	store RecordStore
	ttl   time.Duration
	nowFn func() time.Time

	mu          sync.RWMutex
	ids         map[int64]struct{}
	grantedAt   map[int64]time.Time
	lastRefresh time.Time
}

func NewCache(store RecordStore, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		store: store,
		ttl:   ttl,
		nowFn:     time.Now,
		ids:       make(map[int64]struct{}),
		grantedAt: make(map[int64]time.Time),
	}
}

// IsAuthorized 判定用户是否在名单内；快照过期时先同步刷新再回答。
// 刷新失败保留上一份快照（fail open to last-known-good）。
func (c *Cache) IsAuthorized(ctx context.Context, userID int64) bool {
	c.mu.RLock()
	stale := c.nowFn().Sub(c.lastRefresh) > c.ttl
	c.mu.RUnlock()
	if stale {
		if _, err := c.Refresh(ctx); err != nil {
			logger.Warnf("access: refresh failed, serving last-known-good set: %v", err)
		}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.ids[userID]
	return ok
}

// Refresh 全量重建集合。并发调用安全：后写者胜，不暴露半成品集合；
// 刷新窗口内发生的 Grant 在换入快照时并回，不会丢失。
func (c *Cache) Refresh(ctx context.Context) (int, error) {
	start := c.nowFn()
	records, err := c.store.All(ctx)
	if err != nil {
		return c.size(), err
	}
	fresh := make(map[int64]struct{}, len(records))
	for _, rec := range records {
		fresh[rec.UserID] = struct{}{}
	}
	c.mu.Lock()
	for id, at := range c.grantedAt {
		if _, persisted := fresh[id]; persisted && at.Before(start) {
			delete(c.grantedAt, id)
			continue
		}
		fresh[id] = struct{}{}
	}
	c.ids = fresh
	c.lastRefresh = c.nowFn()
	c.mu.Unlock()
	return len(fresh), nil
}

// Grant 立即写入内存集合，再追加到外部日志。时间戳一并重置，
// 避免紧随其后的过期刷新用旧快照覆盖掉新授权。
// 日志写入失败不回滚内存授权（fail open），错误返回给调用方记录。
func (c *Cache) Grant(ctx context.Context, rec Record) error {
	c.mu.Lock()
	c.ids[rec.UserID] = struct{}{}
	c.grantedAt[rec.UserID] = c.nowFn()
	c.lastRefresh = c.nowFn()
	c.mu.Unlock()
	return c.store.Append(ctx, rec)
}

// AuthorizedIDs 返回当前快照的副本（广播用）。
func (c *Cache) AuthorizedIDs() []int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]int64, 0, len(c.ids))
	for id := range c.ids {
		out = append(out, id)
	}
	return out
}

func (c *Cache) size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.ids)
}
