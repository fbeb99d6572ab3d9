package domain

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/qs-lzh/training-booking/internal/clock"
	"github.com/qs-lzh/training-booking/internal/guard"
	"github.com/qs-lzh/training-booking/internal/model"
	"github.com/qs-lzh/training-booking/internal/repository"
	"github.com/qs-lzh/training-booking/internal/service"
)

type ReservationEngine interface {
	Reserve(ctx context.Context, sessionID, holderID uint) (*model.Reservation, error)
	// Cancel cancels a holder's own reservation. Cancelling twice succeeds.
	Cancel(ctx context.Context, reservationID, holderID uint, reason string) (*CancelResult, error)
	CancelAsAdmin(ctx context.Context, reservationID uint, reason string) (*CancelResult, error)
	// CancelSession cancels the session and every active reservation in it.
	CancelSession(ctx context.Context, sessionID uint, reason string) (*SessionCancellation, error)
	RemainingCapacity(ctx context.Context, sessionID uint) (int, error)
}

type CancelResult struct {
	Reservation model.Reservation
	// Transitioned is false when the reservation was already cancelled.
	Transitioned bool
}

type SessionCancellation struct {
	Session   model.TrainingSession
	Cancelled []model.Reservation
	// Transitioned is false when the session had been cancelled before.
	Transitioned bool
}

type reservationEngine struct {
	store       repository.Store
	guard       guard.CapacityGuard
	entitlement EntitlementChecker
	clock       clock.Clock
	logger      *zap.Logger
}

var _ ReservationEngine = (*reservationEngine)(nil)

func NewReservationEngine(store repository.Store, g guard.CapacityGuard, entitlement EntitlementChecker, clk clock.Clock, logger *zap.Logger) *reservationEngine {
	return &reservationEngine{
		store:       store,
		guard:       g,
		entitlement: entitlement,
		clock:       clk,
		logger:      logger,
	}
}

func (e *reservationEngine) Reserve(ctx context.Context, sessionID, holderID uint) (*model.Reservation, error) {
	now := e.clock.Now().UTC()

	session, err := e.store.Sessions().GetByID(ctx, sessionID)
	if err != nil {
		return nil, storeErr("load session", err)
	}
	if session.IsCancelled {
		return nil, service.ErrSessionCancelled
	}
	if !now.Before(session.EndTime) {
		return nil, service.ErrSessionEnded
	}

	entitled, err := e.entitlement.IsEntitled(ctx, holderID)
	if err != nil {
		return nil, service.NewStorageError("check entitlement", err)
	}
	if !entitled {
		return nil, service.ErrNotEntitled
	}

	if _, err := e.store.Reservations().FindActive(ctx, sessionID, holderID); err == nil {
		return nil, service.ErrAlreadyReserved
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, storeErr("find active reservation", err)
	}

	acquired, err := e.guard.TryAcquire(ctx, sessionID, session.Capacity)
	if err != nil {
		return nil, service.NewStorageError("acquire slot", err)
	}
	if !acquired {
		return nil, service.ErrSessionFull
	}

	reservation := &model.Reservation{
		SessionID:  sessionID,
		HolderID:   holderID,
		ReservedAt: now,
		State:      model.ReservationActive,
	}
	err = e.store.Transaction(ctx, func(tx repository.Store) error {
		locked, err := tx.Sessions().GetByIDForUpdate(ctx, sessionID)
		if err != nil {
			return storeErr("lock session", err)
		}
		if locked.IsCancelled {
			return service.ErrSessionCancelled
		}
		if err := tx.Reservations().Create(ctx, reservation); err != nil {
			if errors.Is(err, repository.ErrDuplicateActive) {
				return service.ErrAlreadyReserved
			}
			return storeErr("create reservation", err)
		}
		return nil
	})
	if err != nil {
		e.release(ctx, sessionID)
		return nil, storeErr("commit reservation", err)
	}

	e.logger.Info("reservation created",
		zap.Uint("reservation_id", reservation.ID),
		zap.Uint("session_id", sessionID),
		zap.Uint("holder_id", holderID),
	)
	return reservation, nil
}

func (e *reservationEngine) Cancel(ctx context.Context, reservationID, holderID uint, reason string) (*CancelResult, error) {
	return e.cancel(ctx, reservationID, &holderID, reason)
}

func (e *reservationEngine) CancelAsAdmin(ctx context.Context, reservationID uint, reason string) (*CancelResult, error) {
	return e.cancel(ctx, reservationID, nil, reason)
}

// cancel skips the ownership check when holderID is nil.
func (e *reservationEngine) cancel(ctx context.Context, reservationID uint, holderID *uint, reason string) (*CancelResult, error) {
	reservation, err := e.store.Reservations().GetByID(ctx, reservationID)
	if err != nil {
		return nil, storeErr("load reservation", err)
	}
	if holderID != nil && reservation.HolderID != *holderID {
		return nil, service.ErrForbidden
	}
	if !reservation.IsActive() {
		return &CancelResult{Reservation: *reservation}, nil
	}

	now := e.clock.Now().UTC()
	transitioned, err := e.store.Reservations().Cancel(ctx, reservationID, reason, now)
	if err != nil {
		return nil, storeErr("cancel reservation", err)
	}
	if !transitioned {
		// a concurrent cancel won; report the state it left behind
		current, err := e.store.Reservations().GetByID(ctx, reservationID)
		if err != nil {
			return nil, storeErr("reload reservation", err)
		}
		return &CancelResult{Reservation: *current}, nil
	}

	e.release(ctx, reservation.SessionID)

	reservation.State = model.ReservationCancelled
	reservation.CancelledAt = &now
	reservation.CancellationReason = reason
	e.logger.Info("reservation cancelled",
		zap.Uint("reservation_id", reservation.ID),
		zap.Uint("session_id", reservation.SessionID),
		zap.Bool("by_admin", holderID == nil),
	)
	return &CancelResult{Reservation: *reservation, Transitioned: true}, nil
}

func (e *reservationEngine) CancelSession(ctx context.Context, sessionID uint, reason string) (*SessionCancellation, error) {
	now := e.clock.Now().UTC()
	var out SessionCancellation

	err := e.store.Transaction(ctx, func(tx repository.Store) error {
		session, err := tx.Sessions().GetByIDForUpdate(ctx, sessionID)
		if err != nil {
			return storeErr("lock session", err)
		}
		if !session.IsCancelled {
			changed, err := tx.Sessions().MarkCancelled(ctx, sessionID, reason, now)
			if err != nil {
				return storeErr("mark session cancelled", err)
			}
			out.Transitioned = changed
			session.IsCancelled = true
			session.CancelledAt = &now
			session.CancellationReason = reason
		}

		active, err := tx.Reservations().ListActive(ctx, sessionID)
		if err != nil {
			return storeErr("list active reservations", err)
		}
		ids := make([]uint, 0, len(active))
		for _, r := range active {
			ids = append(ids, r.ID)
		}
		if _, err := tx.Reservations().CancelMany(ctx, ids, reason, now); err != nil {
			return storeErr("cancel reservations", err)
		}

		for i := range active {
			active[i].State = model.ReservationCancelled
			active[i].CancelledAt = &now
			active[i].CancellationReason = reason
		}
		out.Session = *session
		out.Cancelled = active
		return nil
	})
	if err != nil {
		return nil, storeErr("cancel session", err)
	}

	for range out.Cancelled {
		e.release(ctx, sessionID)
	}
	e.logger.Info("session cancelled",
		zap.Uint("session_id", sessionID),
		zap.Int("reservations_cancelled", len(out.Cancelled)),
		zap.String("reason", reason),
	)
	return &out, nil
}

func (e *reservationEngine) RemainingCapacity(ctx context.Context, sessionID uint) (int, error) {
	session, err := e.store.Sessions().GetByID(ctx, sessionID)
	if err != nil {
		return 0, storeErr("load session", err)
	}
	n, err := e.store.Reservations().CountActive(ctx, sessionID)
	if err != nil {
		return 0, storeErr("count active reservations", err)
	}
	return remaining(session.Capacity, n), nil
}

// release gives a slot back even when the request context is already done.
func (e *reservationEngine) release(ctx context.Context, sessionID uint) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := e.guard.Release(ctx, sessionID); err != nil {
		e.logger.Error("failed to release slot",
			zap.Uint("session_id", sessionID),
			zap.Error(err),
		)
	}
}

func remaining(capacity, active int) int {
	if left := capacity - active; left > 0 {
		return left
	}
	return 0
}

var businessErrors = []error{
	service.ErrNotFound,
	service.ErrNotEntitled,
	service.ErrAlreadyReserved,
	service.ErrSessionFull,
	service.ErrSessionCancelled,
	service.ErrSessionEnded,
	service.ErrForbidden,
	service.ErrInvalidSession,
}

// storeErr maps repository errors onto service errors. Anything the service
// does not know about becomes a StorageError.
func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, repository.ErrNotFound) {
		return service.ErrNotFound
	}
	var se *service.StorageError
	if errors.As(err, &se) {
		return err
	}
	for _, target := range businessErrors {
		if errors.Is(err, target) {
			return err
		}
	}
	return service.NewStorageError(op, err)
}
