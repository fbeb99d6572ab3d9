package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

func newTestGuard(t *testing.T, load func(context.Context, uint) (int, error), logger *zap.Logger) (*RedisGuard, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c, err := NewRedisCache(mr.Addr())
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return NewRedisGuard(c, load, logger), mr
}

func TestRedisGuard_ConcurrentAcquire(t *testing.T) {
	const capacity = 10
	g, _ := newTestGuard(t, nil, zaptest.NewLogger(t))
	ctx := context.Background()

	var wg sync.WaitGroup
	var granted int64
	for i := 0; i < capacity*3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := g.TryAcquire(ctx, 42, capacity)
			if err != nil {
				t.Errorf("acquire: %v", err)
				return
			}
			if ok {
				atomic.AddInt64(&granted, 1)
			}
		}()
	}
	wg.Wait()

	if granted != capacity {
		t.Fatalf("expected %d granted, got %d", capacity, granted)
	}
	used, ok, err := g.Used(ctx, 42)
	if err != nil || !ok || used != capacity {
		t.Fatalf("expected used=%d, got %d ok=%v err=%v", capacity, used, ok, err)
	}
}

func TestRedisGuard_LoadsMissingCounter(t *testing.T) {
	var calls int64
	load := func(context.Context, uint) (int, error) {
		atomic.AddInt64(&calls, 1)
		return 1, nil
	}
	g, mr := newTestGuard(t, load, zaptest.NewLogger(t))
	ctx := context.Background()

	ok, err := g.TryAcquire(ctx, 3, 2)
	if err != nil || !ok {
		t.Fatalf("expected slot, ok=%v err=%v", ok, err)
	}
	if ok, _ := g.TryAcquire(ctx, 3, 2); ok {
		t.Fatal("expected full session")
	}
	if calls != 1 {
		t.Fatalf("expected one load, got %d", calls)
	}
	if got, _ := mr.Get(MakeSessionSlotsUsedKey(3)); got != "2" {
		t.Fatalf("expected counter 2, got %q", got)
	}
}

func TestRedisGuard_ReleaseUnderflowClamps(t *testing.T) {
	g, mr := newTestGuard(t, nil, zap.NewNop())
	ctx := context.Background()

	if err := g.Reset(ctx, map[uint]int{5: 1}); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if err := g.Release(ctx, 5); err != nil {
		t.Fatalf("release: %v", err)
	}
	if err := g.Release(ctx, 5); err != nil {
		t.Fatalf("underflow release: %v", err)
	}
	if got, _ := mr.Get(MakeSessionSlotsUsedKey(5)); got != "0" {
		t.Fatalf("expected counter clamped at 0, got %q", got)
	}
}

func TestRedisGuard_ResetSeedsMissingCounters(t *testing.T) {
	g, mr := newTestGuard(t, nil, zaptest.NewLogger(t))
	ctx := context.Background()

	mr.Set(MakeSessionSlotsUsedKey(1), "2")
	mr.Set("unrelated", "keep")
	if err := g.Reset(ctx, map[uint]int{1: 3, 2: 1}); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if got, _ := mr.Get(MakeSessionSlotsUsedKey(1)); got != "2" {
		t.Fatalf("expected live counter 2 to be kept, got %q", got)
	}
	if got, _ := mr.Get(MakeSessionSlotsUsedKey(2)); got != "1" {
		t.Fatalf("expected counter 1, got %q", got)
	}
	if !mr.Exists("unrelated") {
		t.Fatal("reset must not touch foreign keys")
	}

	if err := g.Forget(ctx, 2); err != nil {
		t.Fatalf("forget: %v", err)
	}
	if _, ok, _ := g.Used(ctx, 2); ok {
		t.Fatal("expected counter to be gone")
	}
}

func TestRedisGuard_SharedCounterSurvivesRestart(t *testing.T) {
	mr := miniredis.RunT(t)
	newGuard := func() *RedisGuard {
		c, err := NewRedisCache(mr.Addr())
		if err != nil {
			t.Fatalf("new cache: %v", err)
		}
		t.Cleanup(func() { c.Close() })
		// nothing committed yet
		load := func(context.Context, uint) (int, error) { return 0, nil }
		return NewRedisGuard(c, load, zaptest.NewLogger(t))
	}
	a, b := newGuard(), newGuard()
	ctx := context.Background()

	okA, err := a.TryAcquire(ctx, 7, 1)
	if err != nil || !okA {
		t.Fatalf("first instance: ok=%v err=%v", okA, err)
	}

	// the second instance starts while the first one's slot is in flight
	if err := b.Reset(ctx, map[uint]int{}); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if err := b.Reset(ctx, map[uint]int{7: 0}); err != nil {
		t.Fatalf("reset: %v", err)
	}
	okB, err := b.TryAcquire(ctx, 7, 1)
	if err != nil {
		t.Fatalf("second instance: %v", err)
	}
	if okB {
		t.Fatal("both instances were granted the single slot")
	}
	if used, _, _ := b.Used(ctx, 7); used != 1 {
		t.Fatalf("expected used=1, got %d", used)
	}
}
