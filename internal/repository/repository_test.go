package repository

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/qs-lzh/training-booking/internal/model"
)

var base = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func newSQLiteStore(t *testing.T) Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "booking.db")
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	if err := db.AutoMigrate(model.All()...); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return NewGormStore(db)
}

func forEachStore(t *testing.T, fn func(t *testing.T, store Store)) {
	t.Run("memory", func(t *testing.T) { fn(t, NewMemoryStore()) })
	t.Run("sqlite", func(t *testing.T) { fn(t, newSQLiteStore(t)) })
}

func mustSession(t *testing.T, store Store, start time.Time, capacity int) *model.TrainingSession {
	t.Helper()
	session := &model.TrainingSession{
		Title:           "Morning strength",
		StartTime:       start,
		EndTime:         start.Add(time.Hour),
		Capacity:        capacity,
		DifficultyLevel: model.DifficultyBeginner,
	}
	if err := store.Sessions().Create(context.Background(), session); err != nil {
		t.Fatalf("create session: %v", err)
	}
	return session
}

func mustReserve(t *testing.T, store Store, sessionID, holderID uint) *model.Reservation {
	t.Helper()
	res := &model.Reservation{
		SessionID:  sessionID,
		HolderID:   holderID,
		ReservedAt: base,
		State:      model.ReservationActive,
	}
	if err := store.Reservations().Create(context.Background(), res); err != nil {
		t.Fatalf("create reservation: %v", err)
	}
	return res
}

func TestSessionRepo_CRUD(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		session := mustSession(t, store, base, 5)
		if session.ID == 0 {
			t.Fatal("expected id to be assigned")
		}

		got, err := store.Sessions().GetByID(ctx, session.ID)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if got.Title != "Morning strength" || got.Capacity != 5 {
			t.Fatalf("unexpected session %+v", got)
		}

		got.Capacity = 8
		got.Title = "Evening strength"
		if err := store.Sessions().Update(ctx, got); err != nil {
			t.Fatalf("update: %v", err)
		}
		got, _ = store.Sessions().GetByID(ctx, session.ID)
		if got.Capacity != 8 || got.Title != "Evening strength" {
			t.Fatalf("update not applied: %+v", got)
		}

		if err := store.Sessions().Delete(ctx, session.ID); err != nil {
			t.Fatalf("delete: %v", err)
		}
		if _, err := store.Sessions().GetByID(ctx, session.ID); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
		if err := store.Sessions().Delete(ctx, session.ID); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound on second delete, got %v", err)
		}
	})
}

func TestSessionRepo_MarkCancelledOnce(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		session := mustSession(t, store, base, 5)

		first := base.Add(time.Minute)
		changed, err := store.Sessions().MarkCancelled(ctx, session.ID, "flooding", first)
		if err != nil || !changed {
			t.Fatalf("first cancel: changed=%v err=%v", changed, err)
		}
		changed, err = store.Sessions().MarkCancelled(ctx, session.ID, "again", first.Add(time.Hour))
		if err != nil || changed {
			t.Fatalf("second cancel: changed=%v err=%v", changed, err)
		}

		got, _ := store.Sessions().GetByID(ctx, session.ID)
		if !got.IsCancelled || got.CancellationReason != "flooding" {
			t.Fatalf("unexpected session %+v", got)
		}
		if got.CancelledAt == nil || !got.CancelledAt.Equal(first) {
			t.Fatalf("expected cancelled_at %v, got %v", first, got.CancelledAt)
		}
	})
}

func TestSessionRepo_ListByStartRange(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		late := mustSession(t, store, base.Add(48*time.Hour), 5)
		early := mustSession(t, store, base, 5)
		mustSession(t, store, base.Add(7*24*time.Hour), 5)

		got, err := store.Sessions().ListByStartRange(context.Background(), base, base.Add(7*24*time.Hour))
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("expected 2 sessions, got %d", len(got))
		}
		if got[0].ID != early.ID || got[1].ID != late.ID {
			t.Fatalf("expected start-time order, got %d then %d", got[0].ID, got[1].ID)
		}
	})
}

func TestReservationRepo_DuplicateActive(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		session := mustSession(t, store, base, 5)
		first := mustReserve(t, store, session.ID, 7)

		dup := &model.Reservation{SessionID: session.ID, HolderID: 7, ReservedAt: base, State: model.ReservationActive}
		if err := store.Reservations().Create(ctx, dup); !errors.Is(err, ErrDuplicateActive) {
			t.Fatalf("expected ErrDuplicateActive, got %v", err)
		}

		// a cancelled row does not block a new booking
		if ok, err := store.Reservations().Cancel(ctx, first.ID, "", base); err != nil || !ok {
			t.Fatalf("cancel: ok=%v err=%v", ok, err)
		}
		mustReserve(t, store, session.ID, 7)

		n, err := store.Reservations().CountActive(ctx, session.ID)
		if err != nil || n != 1 {
			t.Fatalf("expected 1 active, got %d (%v)", n, err)
		}
	})
}

func TestReservationRepo_CancelTransitionsOnce(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		session := mustSession(t, store, base, 5)
		res := mustReserve(t, store, session.ID, 1)

		at := base.Add(time.Minute)
		ok, err := store.Reservations().Cancel(ctx, res.ID, "sick", at)
		if err != nil || !ok {
			t.Fatalf("first cancel: ok=%v err=%v", ok, err)
		}
		ok, err = store.Reservations().Cancel(ctx, res.ID, "other", at.Add(time.Hour))
		if err != nil || ok {
			t.Fatalf("second cancel: ok=%v err=%v", ok, err)
		}

		got, err := store.Reservations().GetByID(ctx, res.ID)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if got.IsActive() || got.CancellationReason != "sick" || got.CancelledAt == nil || !got.CancelledAt.Equal(at) {
			t.Fatalf("unexpected reservation %+v", got)
		}
	})
}

func TestReservationRepo_CountsAndLists(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		a := mustSession(t, store, base, 5)
		b := mustSession(t, store, base.Add(time.Hour), 5)
		r1 := mustReserve(t, store, a.ID, 1)
		mustReserve(t, store, a.ID, 2)
		mustReserve(t, store, b.ID, 1)

		if n, err := store.Reservations().CancelMany(ctx, []uint{r1.ID}, "", base); err != nil || n != 1 {
			t.Fatalf("cancel many: n=%d err=%v", n, err)
		}

		counts, err := store.Reservations().CountActiveBySessions(ctx, nil)
		if err != nil {
			t.Fatalf("count: %v", err)
		}
		if counts[a.ID] != 1 || counts[b.ID] != 1 {
			t.Fatalf("unexpected counts %v", counts)
		}

		only, err := store.Reservations().CountActiveBySessions(ctx, []uint{b.ID})
		if err != nil || len(only) != 1 || only[b.ID] != 1 {
			t.Fatalf("unexpected filtered counts %v (%v)", only, err)
		}

		all, _ := store.Reservations().ListBySession(ctx, a.ID)
		if len(all) != 2 {
			t.Fatalf("expected 2 rows for session a, got %d", len(all))
		}
		active, _ := store.Reservations().ListActive(ctx, a.ID)
		if len(active) != 1 || active[0].HolderID != 2 {
			t.Fatalf("unexpected active rows %+v", active)
		}

		mine, _ := store.Reservations().ListActiveByHolder(ctx, 1, []uint{a.ID, b.ID})
		if len(mine) != 1 || mine[0].SessionID != b.ID {
			t.Fatalf("unexpected holder rows %+v", mine)
		}

		n, err := store.Reservations().DeleteBySession(ctx, a.ID)
		if err != nil || n != 2 {
			t.Fatalf("delete by session: n=%d err=%v", n, err)
		}
	})
}

func TestStore_TransactionRollsBack(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		session := mustSession(t, store, base, 5)
		boom := errors.New("boom")

		err := store.Transaction(ctx, func(tx Store) error {
			res := &model.Reservation{SessionID: session.ID, HolderID: 3, ReservedAt: base, State: model.ReservationActive}
			if err := tx.Reservations().Create(ctx, res); err != nil {
				return err
			}
			if _, err := tx.Sessions().MarkCancelled(ctx, session.ID, "x", base); err != nil {
				return err
			}
			return boom
		})
		if !errors.Is(err, boom) {
			t.Fatalf("expected boom, got %v", err)
		}

		n, _ := store.Reservations().CountActive(ctx, session.ID)
		if n != 0 {
			t.Fatalf("expected rollback of reservation, got %d active", n)
		}
		got, _ := store.Sessions().GetByID(ctx, session.ID)
		if got.IsCancelled {
			t.Fatal("expected rollback of session cancel")
		}
	})
}

func TestSubscriptionRepo_HasCovering(t *testing.T) {
	forEachStore(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		sub := &model.Subscription{HolderID: 4, StartsAt: base, EndsAt: base.Add(30 * 24 * time.Hour)}
		if err := store.Subscriptions().Create(ctx, sub); err != nil {
			t.Fatalf("create: %v", err)
		}

		cases := []struct {
			name   string
			holder uint
			at     time.Time
			want   bool
		}{
			{"at start", 4, base, true},
			{"inside", 4, base.Add(time.Hour), true},
			{"at end", 4, base.Add(30 * 24 * time.Hour), false},
			{"before", 4, base.Add(-time.Second), false},
			{"other holder", 5, base.Add(time.Hour), false},
		}
		for _, tc := range cases {
			got, err := store.Subscriptions().HasCovering(ctx, tc.holder, tc.at)
			if err != nil {
				t.Fatalf("%s: %v", tc.name, err)
			}
			if got != tc.want {
				t.Errorf("%s: got %v, want %v", tc.name, got, tc.want)
			}
		}
	})
}
