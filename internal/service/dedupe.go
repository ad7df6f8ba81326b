package service

import (
	"context"
	"time"

	"textreply/backend/pkg/cache"
	"textreply/backend/pkg/logger"
)

const dedupeKeyPrefix = "textreply:mid:"

// Deduper remembers Messenger message ids so webhook redeliveries are handled once.
type Deduper interface {
	// FirstSeen records mid and reports whether it had not been seen before.
	FirstSeen(ctx context.Context, mid string) bool
}

// SetNXer is the slice of a redis client the deduper needs
type SetNXer interface {
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) (bool, error)
}

// RedisDeduper shares seen ids across instances through redis.
type RedisDeduper struct {
	store SetNXer
	ttl   time.Duration
	log   *logger.Logger
}

// NewRedisDeduper creates a deduper keeping ids for ttl
func NewRedisDeduper(store SetNXer, ttl time.Duration, log *logger.Logger) *RedisDeduper {
	if log == nil {
		log = logger.Nop()
	}
	return &RedisDeduper{store: store, ttl: ttl, log: log}
}

// FirstSeen treats a redis failure as first sight so no message is dropped.
func (d *RedisDeduper) FirstSeen(ctx context.Context, mid string) bool {
	ok, err := d.store.SetNX(ctx, dedupeKeyPrefix+mid, 1, d.ttl)
	if err != nil {
		d.log.Warn("Dedupe store unavailable, processing event", "mid", mid, "error", err.Error())
		return true
	}
	return ok
}

// MemoryDeduper keeps seen ids in process memory.
type MemoryDeduper struct {
	cache *cache.Cache
}

// NewMemoryDeduper creates an in-process deduper holding at most maxItems ids
func NewMemoryDeduper(ttl time.Duration, maxItems int) *MemoryDeduper {
	return &MemoryDeduper{cache: cache.New(ttl, maxItems)}
}

func (d *MemoryDeduper) FirstSeen(_ context.Context, mid string) bool {
	return d.cache.Add(mid, struct{}{})
}

// Run evicts expired ids until ctx is done.
func (d *MemoryDeduper) Run(ctx context.Context) {
	d.cache.Run(ctx, time.Minute)
}
