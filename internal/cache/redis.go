package cache

import (
	"context"
	"errors"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/qs-lzh/training-booking/internal/guard"
)

type RedisCache struct {
	Client *redis.Client
}

// NewRedisCache accepts either a bare host:port or a redis:// URL.
func NewRedisCache(url string) (*RedisCache, error) {
	opts := &redis.Options{
		Addr:     url,
		Password: "",
		DB:       0,
	}
	if strings.HasPrefix(url, "redis://") || strings.HasPrefix(url, "rediss://") {
		parsed, err := redis.ParseURL(url)
		if err != nil {
			return nil, err
		}
		opts = parsed
	}
	return &RedisCache{Client: redis.NewClient(opts)}, nil
}

func (r *RedisCache) Ping(ctx context.Context) error {
	return r.Client.Ping(ctx).Err()
}

func (r *RedisCache) Close() error {
	return r.Client.Close()
}

// RedisGuard keeps slot counters in redis so several service instances share
// them. Every check-and-update runs as one lua script.
type RedisGuard struct {
	cache  *RedisCache
	load   guard.Loader
	logger *zap.Logger
}

var _ guard.CapacityGuard = (*RedisGuard)(nil)

func NewRedisGuard(cache *RedisCache, load guard.Loader, logger *zap.Logger) *RedisGuard {
	return &RedisGuard{
		cache:  cache,
		load:   load,
		logger: logger,
	}
}

func (g *RedisGuard) TryAcquire(ctx context.Context, sessionID uint, capacity int) (bool, error) {
	key := MakeSessionSlotsUsedKey(sessionID)
	for attempt := 0; attempt < 2; attempt++ {
		res, err := acquireSlotScript.Run(ctx, g.cache.Client, []string{key}, capacity).Int64()
		if err != nil {
			return false, err
		}
		switch {
		case res == codeFull:
			return false, nil
		case res == codeNotLoaded:
			if err := g.loadCounter(ctx, sessionID); err != nil {
				return false, err
			}
			continue
		case res > 0:
			return true, nil
		}
	}
	return false, errNotLoaded
}

func (g *RedisGuard) Release(ctx context.Context, sessionID uint) error {
	key := MakeSessionSlotsUsedKey(sessionID)
	res, err := releaseSlotScript.Run(ctx, g.cache.Client, []string{key}).Int64()
	if err != nil {
		return err
	}
	switch res {
	case codeNotLoaded:
		// the store already reflects the committed cancel
		return g.loadCounter(ctx, sessionID)
	case codeUnderflow:
		g.logger.DPanic("capacity guard underflow", zap.Uint("session_id", sessionID))
	}
	return nil
}

// Reset seeds counters that are missing. Other instances may hold slots that
// are acquired but not yet committed, so a live counter is never overwritten.
func (g *RedisGuard) Reset(ctx context.Context, counts map[uint]int) error {
	if len(counts) == 0 {
		return nil
	}

	args := make([]any, 0, len(counts)*2)
	for sessionID, n := range counts {
		args = append(args, MakeSessionSlotsUsedKey(sessionID), n)
	}
	seeded, err := seedSlotsScript.Run(ctx, g.cache.Client, []string{}, args...).Int()
	if err != nil {
		return err
	}
	g.logger.Debug("slot counters seeded",
		zap.Int("seeded", seeded),
		zap.Int("kept", len(counts)-seeded),
	)
	return nil
}

func (g *RedisGuard) Forget(ctx context.Context, sessionID uint) error {
	return g.cache.Client.Del(ctx, MakeSessionSlotsUsedKey(sessionID)).Err()
}

// Used returns the stored counter; ok is false when the key is absent.
func (g *RedisGuard) Used(ctx context.Context, sessionID uint) (used int, ok bool, err error) {
	used, err = g.cache.Client.Get(ctx, MakeSessionSlotsUsedKey(sessionID)).Int()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return used, true, nil
}

// loadCounter seeds a missing key from the store. SETNX keeps a value another
// instance wrote in the meantime.
func (g *RedisGuard) loadCounter(ctx context.Context, sessionID uint) error {
	n := 0
	if g.load != nil {
		var err error
		n, err = g.load(ctx, sessionID)
		if err != nil {
			return err
		}
	}
	return g.cache.Client.SetNX(ctx, MakeSessionSlotsUsedKey(sessionID), n, 0).Err()
}
