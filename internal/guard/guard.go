package guard

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// CapacityGuard hands out per-session slots. It caches a count that can always
// be rebuilt from the reservation store, so it is never the source of truth.
type CapacityGuard interface {
	// TryAcquire takes a slot when fewer than capacity are in use.
	TryAcquire(ctx context.Context, sessionID uint, capacity int) (bool, error)
	// Release gives one slot back. The counter never drops below zero.
	Release(ctx context.Context, sessionID uint) error
	// Reset loads the given active counts. A process-local guard replaces
	// every counter; a guard shared between instances keeps live counters.
	Reset(ctx context.Context, counts map[uint]int) error
	// Forget drops the counter of a deleted session.
	Forget(ctx context.Context, sessionID uint) error
}

// Loader returns the number of active reservations of a session. It is used
// the first time a session is touched.
type Loader func(ctx context.Context, sessionID uint) (int, error)

type slotCounter struct {
	mu     sync.Mutex
	used   int
	loaded bool
}

type MemoryGuard struct {
	mu       sync.Mutex
	counters map[uint]*slotCounter
	load     Loader
	logger   *zap.Logger
}

var _ CapacityGuard = (*MemoryGuard)(nil)

func NewMemoryGuard(load Loader, logger *zap.Logger) *MemoryGuard {
	return &MemoryGuard{
		counters: make(map[uint]*slotCounter),
		load:     load,
		logger:   logger,
	}
}

func (g *MemoryGuard) counter(sessionID uint) *slotCounter {
	g.mu.Lock()
	defer g.mu.Unlock()
	c, ok := g.counters[sessionID]
	if !ok {
		c = &slotCounter{}
		g.counters[sessionID] = c
	}
	return c
}

// ensureLoaded must be called with c.mu held.
func (g *MemoryGuard) ensureLoaded(ctx context.Context, sessionID uint, c *slotCounter) error {
	if c.loaded {
		return nil
	}
	if g.load != nil {
		n, err := g.load(ctx, sessionID)
		if err != nil {
			return err
		}
		c.used = n
	}
	c.loaded = true
	return nil
}

func (g *MemoryGuard) TryAcquire(ctx context.Context, sessionID uint, capacity int) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	c := g.counter(sessionID)
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := g.ensureLoaded(ctx, sessionID, c); err != nil {
		return false, err
	}
	if c.used >= capacity {
		return false, nil
	}
	c.used++
	return true, nil
}

func (g *MemoryGuard) Release(ctx context.Context, sessionID uint) error {
	c := g.counter(sessionID)
	c.mu.Lock()
	defer c.mu.Unlock()

	// an unloaded counter already reflects the committed cancel once loaded
	if !c.loaded {
		return g.ensureLoaded(ctx, sessionID, c)
	}
	if c.used <= 0 {
		g.logger.DPanic("capacity guard underflow",
			zap.Uint("session_id", sessionID),
			zap.Int("used", c.used),
		)
		c.used = 0
		return nil
	}
	c.used--
	return nil
}

func (g *MemoryGuard) Reset(ctx context.Context, counts map[uint]int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	fresh := make(map[uint]*slotCounter, len(counts))
	for id, n := range counts {
		fresh[id] = &slotCounter{used: n, loaded: true}
	}
	g.mu.Lock()
	g.counters = fresh
	g.mu.Unlock()
	return nil
}

func (g *MemoryGuard) Forget(_ context.Context, sessionID uint) error {
	g.mu.Lock()
	delete(g.counters, sessionID)
	g.mu.Unlock()
	return nil
}

// Used reports the cached count, mainly for diagnostics.
func (g *MemoryGuard) Used(sessionID uint) (int, bool) {
	g.mu.Lock()
	c, ok := g.counters[sessionID]
	g.mu.Unlock()
	if !ok {
		return 0, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.used, c.loaded
}
