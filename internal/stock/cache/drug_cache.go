package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/logiclinic/logiclinic-backend/internal/stock/repository"
	"github.com/logiclinic/logiclinic-backend/pkg/logger"
)

// Stats holds cache hit/miss counters
type Stats struct {
	Hits          int64 `json:"hits"`
	Misses        int64 `json:"misses"`
	TotalRequests int64 `json:"total_requests"`
	L1Keys        int   `json:"l1_keys"`
}

// DrugCache is a two-level cache for the drug catalog. The catalog is
// read on every stock operation but changes rarely, so lookups go to a
// local map first, then Redis, then the database. Keys carry the tenant
// ID so entries never leak across tenants.
type DrugCache struct {
	l1      map[string]*l1Entry
	l1Mutex sync.RWMutex

	redis *redis.Client
	ttl   time.Duration

	logger *logger.Logger

	statsMutex sync.RWMutex
	hits       int64
	misses     int64
}

type l1Entry struct {
	drug      *repository.Drug
	expiresAt time.Time
}

// NewDrugCache creates a new drug cache. The redis client may be nil, in
// which case only the in-process level is used.
func NewDrugCache(redisClient *redis.Client, ttl time.Duration, log *logger.Logger) *DrugCache {
	c := &DrugCache{
		l1:     make(map[string]*l1Entry),
		redis:  redisClient,
		ttl:    ttl,
		logger: log,
	}

	go c.cleanupL1()

	return c
}

func cacheKey(tenantID, drugID string) string {
	return fmt.Sprintf("drug:%s:%s", tenantID, drugID)
}

// Get looks up a drug, local map first, Redis second. Returns nil on miss.
func (c *DrugCache) Get(ctx context.Context, tenantID, drugID string) *repository.Drug {
	key := cacheKey(tenantID, drugID)

	if drug := c.getL1(key); drug != nil {
		c.recordHit()
		return drug
	}

	if drug := c.getL2(ctx, key); drug != nil {
		c.setL1(key, drug)
		c.recordHit()
		return drug
	}

	c.recordMiss()
	return nil
}

// Set stores a drug in both levels
func (c *DrugCache) Set(ctx context.Context, tenantID string, drug *repository.Drug) {
	key := cacheKey(tenantID, drug.ID)
	c.setL1(key, drug)

	if c.redis == nil {
		return
	}

	data, err := json.Marshal(drug)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.Warn().Err(err).Str("drug_id", drug.ID).Msg("failed to cache drug in redis")
	}
}

// Invalidate drops a drug from both levels, e.g. after a catalog update
func (c *DrugCache) Invalidate(ctx context.Context, tenantID, drugID string) {
	key := cacheKey(tenantID, drugID)

	c.l1Mutex.Lock()
	delete(c.l1, key)
	c.l1Mutex.Unlock()

	if c.redis == nil {
		return
	}
	if err := c.redis.Del(ctx, key).Err(); err != nil {
		c.logger.Warn().Err(err).Str("drug_id", drugID).Msg("failed to invalidate drug in redis")
	}
}

// GetStats returns cache counters
func (c *DrugCache) GetStats() Stats {
	c.statsMutex.RLock()
	hits, misses := c.hits, c.misses
	c.statsMutex.RUnlock()

	c.l1Mutex.RLock()
	keys := len(c.l1)
	c.l1Mutex.RUnlock()

	return Stats{
		Hits:          hits,
		Misses:        misses,
		TotalRequests: hits + misses,
		L1Keys:        keys,
	}
}

func (c *DrugCache) getL1(key string) *repository.Drug {
	c.l1Mutex.RLock()
	defer c.l1Mutex.RUnlock()

	entry, ok := c.l1[key]
	if !ok || time.Now().After(entry.expiresAt) {
		return nil
	}
	return entry.drug
}

func (c *DrugCache) setL1(key string, drug *repository.Drug) {
	c.l1Mutex.Lock()
	defer c.l1Mutex.Unlock()

	c.l1[key] = &l1Entry{
		drug:      drug,
		expiresAt: time.Now().Add(c.ttl),
	}
}

func (c *DrugCache) getL2(ctx context.Context, key string) *repository.Drug {
	if c.redis == nil {
		return nil
	}

	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn().Err(err).Str("key", key).Msg("redis lookup failed")
		}
		return nil
	}

	var drug repository.Drug
	if err := json.Unmarshal(data, &drug); err != nil {
		return nil
	}
	return &drug
}

func (c *DrugCache) recordHit() {
	c.statsMutex.Lock()
	c.hits++
	c.statsMutex.Unlock()
}

func (c *DrugCache) recordMiss() {
	c.statsMutex.Lock()
	c.misses++
	c.statsMutex.Unlock()
}

// cleanupL1 sweeps expired entries from the local map
func (c *DrugCache) cleanupL1() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		now := time.Now()
		c.l1Mutex.Lock()
		for key, entry := range c.l1 {
			if now.After(entry.expiresAt) {
				delete(c.l1, key)
			}
		}
		c.l1Mutex.Unlock()
	}
}
