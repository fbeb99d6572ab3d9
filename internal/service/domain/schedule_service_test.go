package domain

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/qs-lzh/training-booking/internal/repository"
	"github.com/qs-lzh/training-booking/internal/service"
)

func TestGetWeek_BucketsByConfiguredZone(t *testing.T) {
	tokyo := time.FixedZone("JST", 9*60*60)
	f := newFixture(t, repository.NewMemoryStore(), nil)
	ctx := context.Background()

	// 2026-03-02 20:00 UTC is already Tuesday in Tokyo
	late, err := f.sessions.CreateSession(ctx, SessionInput{
		Title:     "Late yoga",
		StartTime: time.Date(2026, 3, 2, 20, 0, 0, 0, time.UTC),
		EndTime:   time.Date(2026, 3, 2, 21, 0, 0, 0, time.UTC),
		Capacity:  1,
	})
	if err != nil {
		t.Fatal(err)
	}
	early, err := f.sessions.CreateSession(ctx, SessionInput{
		Title:     "Early run",
		StartTime: time.Date(2026, 3, 2, 1, 0, 0, 0, time.UTC),
		EndTime:   time.Date(2026, 3, 2, 2, 0, 0, 0, time.UTC),
		Capacity:  3,
	})
	if err != nil {
		t.Fatal(err)
	}

	f.clock.Set(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	res, err := f.engine.Reserve(ctx, late.ID, 11)
	if err != nil {
		t.Fatal(err)
	}

	schedule := NewScheduleQueryService(f.store, tokyo)
	start := time.Date(2026, 3, 2, 0, 0, 0, 0, tokyo)
	holder := uint(11)
	days, err := schedule.GetWeek(ctx, start, start.AddDate(0, 0, 7), &holder)
	if err != nil {
		t.Fatal(err)
	}

	if len(days) != 7 {
		t.Fatalf("expected 7 day buckets, got %d", len(days))
	}
	if got := days[0].Date.Format(time.DateOnly); got != "2026-03-02" {
		t.Fatalf("unexpected first day %s", got)
	}
	if len(days[0].Sessions) != 1 || days[0].Sessions[0].ID != early.ID {
		t.Fatalf("expected the early run on monday, got %+v", days[0].Sessions)
	}
	if len(days[1].Sessions) != 1 || days[1].Sessions[0].ID != late.ID {
		t.Fatalf("expected the late yoga on tuesday, got %+v", days[1].Sessions)
	}
	for i := 2; i < 7; i++ {
		if days[i].Sessions == nil || len(days[i].Sessions) != 0 {
			t.Fatalf("expected empty bucket for day %d", i)
		}
	}

	yoga := days[1].Sessions[0]
	if !yoga.IsFull || yoga.RemainingSpaces != 0 {
		t.Fatalf("expected the late yoga to be full, got %+v", yoga)
	}
	if !yoga.UserHasReservation || yoga.UserReservationID == nil || *yoga.UserReservationID != res.ID {
		t.Fatalf("expected holder reservation to be flagged, got %+v", yoga)
	}
	run := days[0].Sessions[0]
	if run.IsFull || run.RemainingSpaces != 3 || run.UserHasReservation {
		t.Fatalf("unexpected early run view %+v", run)
	}
}

func TestGetWeek_WithoutHolder(t *testing.T) {
	f := newFixture(t, repository.NewMemoryStore(), nil)
	ctx := context.Background()
	session := f.session(t, 2)
	f.engine.Reserve(ctx, session.ID, 1)

	schedule := NewScheduleQueryService(f.store, nil)
	days, err := schedule.GetWeek(ctx, monday, monday.AddDate(0, 0, 1), nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(days) != 1 || len(days[0].Sessions) != 1 {
		t.Fatalf("unexpected schedule %+v", days)
	}
	view := days[0].Sessions[0]
	if view.RemainingSpaces != 1 || view.UserHasReservation {
		t.Fatalf("unexpected view %+v", view)
	}
}

func TestGetWeek_InvalidRange(t *testing.T) {
	schedule := NewScheduleQueryService(repository.NewMemoryStore(), time.UTC)
	ctx := context.Background()

	if _, err := schedule.GetWeek(ctx, monday, monday, nil); !errors.Is(err, service.ErrInvalidSession) {
		t.Fatalf("expected invalid range error, got %v", err)
	}
	if _, err := schedule.GetWeek(ctx, monday, monday.AddDate(1, 0, 0), nil); !errors.Is(err, service.ErrInvalidSession) {
		t.Fatalf("expected range limit error, got %v", err)
	}
}
