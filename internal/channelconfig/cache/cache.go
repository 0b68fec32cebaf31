package cache

import (
	"context"
	"sync"
	"time"

	"github.com/smallbiznis/payflow/internal/clock"
	"github.com/smallbiznis/payflow/internal/channelconfig/domain"
	"gorm.io/gorm"
)

type cacheKey struct {
	tenantID    int64
	subTypeCode int32
}

type entry struct {
	cfg       *domain.ChannelConfig
	expiresAt time.Time
}

// Cache is a TTL read-through cache over the channel config repository.
// Expired entries are refetched on access; writes go through Invalidate.
type Cache struct {
	db    *gorm.DB
	repo  domain.Repository
	clock clock.Clock
	ttl   time.Duration

	mu      sync.RWMutex
	entries map[cacheKey]entry
}

func New(db *gorm.DB, repo domain.Repository, clk clock.Clock, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Cache{
		db:      db,
		repo:    repo,
		clock:   clk,
		ttl:     ttl,
		entries: make(map[cacheKey]entry),
	}
}

func (c *Cache) Get(ctx context.Context, tenantID int64, subTypeCode int32) (*domain.ChannelConfig, error) {
	key := cacheKey{tenantID: tenantID, subTypeCode: subTypeCode}
	now := c.clock.Now()

	c.mu.RLock()
	cached, ok := c.entries[key]
	c.mu.RUnlock()
	if ok && now.Before(cached.expiresAt) {
		return cached.cfg, nil
	}

	cfg, err := c.repo.Find(ctx, c.db, tenantID, subTypeCode)
	if err != nil {
		return nil, err
	}
	if !cfg.Enabled {
		return nil, domain.ErrConfigDisabled
	}

	c.mu.Lock()
	c.entries[key] = entry{cfg: cfg, expiresAt: now.Add(c.ttl)}
	c.mu.Unlock()

	return cfg, nil
}

func (c *Cache) Invalidate(tenantID int64, subTypeCode int32) {
	c.mu.Lock()
	delete(c.entries, cacheKey{tenantID: tenantID, subTypeCode: subTypeCode})
	c.mu.Unlock()
}

// InvalidateTenant drops every cached config for the tenant.
func (c *Cache) InvalidateTenant(tenantID int64) {
	c.mu.Lock()
	for key := range c.entries {
		if key.tenantID == tenantID {
			delete(c.entries, key)
		}
	}
	c.mu.Unlock()
}

var _ domain.Provider = (*Cache)(nil)
