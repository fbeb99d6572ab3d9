package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/qs-lzh/training-booking/config"
	"github.com/qs-lzh/training-booking/internal/clock"
	"github.com/qs-lzh/training-booking/internal/model"
	"github.com/qs-lzh/training-booking/internal/service"
	"github.com/qs-lzh/training-booking/internal/service/domain"
)

func testConfig(mode string) *config.Config {
	return &config.Config{
		AppEnv:          "development",
		Location:        time.UTC,
		GuardBackend:    config.GuardMemory,
		EntitlementMode: mode,
		ReserveRate:     120,
	}
}

func TestInitRebuildsGuardFromStore(t *testing.T) {
	now := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	a := New(testConfig(config.EntitlementAllowAll), nil, nil, nil, zaptest.NewLogger(t), WithClock(clock.NewManual(now)))
	ctx := context.Background()

	session := &model.TrainingSession{
		Title:           "Row",
		StartTime:       now.Add(time.Hour),
		EndTime:         now.Add(2 * time.Hour),
		Capacity:        2,
		DifficultyLevel: model.DifficultyBeginner,
	}
	if err := a.Store.Sessions().Create(ctx, session); err != nil {
		t.Fatal(err)
	}
	// rows written behind the guard's back, as after a restart
	for _, holder := range []uint{1, 2} {
		res := &model.Reservation{SessionID: session.ID, HolderID: holder, ReservedAt: now, State: model.ReservationActive}
		if err := a.Store.Reservations().Create(ctx, res); err != nil {
			t.Fatal(err)
		}
	}

	if err := a.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	if _, err := a.ReservationWorkflow.Reserve(ctx, session.ID, 3); !errors.Is(err, service.ErrSessionFull) {
		t.Fatalf("expected ErrSessionFull after rebuild, got %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestSubscriptionModeGatesReservations(t *testing.T) {
	now := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	a := New(testConfig(config.EntitlementSubscription), nil, nil, nil, zaptest.NewLogger(t), WithClock(clock.NewManual(now)))
	ctx := context.Background()

	session, err := a.SessionService.CreateSession(ctx, domainInput(now))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := a.ReservationWorkflow.Reserve(ctx, session.ID, 8); !errors.Is(err, service.ErrNotEntitled) {
		t.Fatalf("expected ErrNotEntitled, got %v", err)
	}
	if _, err := a.SubscriptionService.Grant(ctx, 8, 7); err != nil {
		t.Fatal(err)
	}
	if _, err := a.ReservationWorkflow.Reserve(ctx, session.ID, 8); err != nil {
		t.Fatalf("expected reservation after grant, got %v", err)
	}
}

func domainInput(now time.Time) domain.SessionInput {
	return domain.SessionInput{
		Title:     "Climb",
		StartTime: now.Add(time.Hour),
		EndTime:   now.Add(2 * time.Hour),
		Capacity:  4,
	}
}
