package workflow

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/qs-lzh/training-booking/internal/model"
	"github.com/qs-lzh/training-booking/internal/mq"
	"github.com/qs-lzh/training-booking/internal/service/domain"
)

// publishTimeout bounds a publish that runs after the request's work is done.
const publishTimeout = 5 * time.Second

// ReservationWorkflow runs engine operations and announces what changed.
// Events go out only after the engine committed; a failed publish is logged
// and never fails the operation.
type ReservationWorkflow struct {
	engine    domain.ReservationEngine
	publisher mq.Publisher
	logger    *zap.Logger
}

func NewReservationWorkflow(engine domain.ReservationEngine, publisher mq.Publisher, logger *zap.Logger) *ReservationWorkflow {
	return &ReservationWorkflow{
		engine:    engine,
		publisher: publisher,
		logger:    logger,
	}
}

func (w *ReservationWorkflow) Reserve(ctx context.Context, sessionID, holderID uint) (*model.Reservation, error) {
	reservation, err := w.engine.Reserve(ctx, sessionID, holderID)
	if err != nil {
		return nil, err
	}

	w.publish(ctx, mq.ReservationCreatedQueue, mq.ReservationCreatedMessage{
		ReservationID: reservation.ID,
		SessionID:     reservation.SessionID,
		HolderID:      reservation.HolderID,
		ReservedAt:    reservation.ReservedAt,
	})
	return reservation, nil
}

func (w *ReservationWorkflow) Cancel(ctx context.Context, reservationID, holderID uint, reason string) (*model.Reservation, error) {
	out, err := w.engine.Cancel(ctx, reservationID, holderID, reason)
	if err != nil {
		return nil, err
	}
	w.announceCancel(ctx, out)
	return &out.Reservation, nil
}

func (w *ReservationWorkflow) CancelAsAdmin(ctx context.Context, reservationID uint, reason string) (*model.Reservation, error) {
	out, err := w.engine.CancelAsAdmin(ctx, reservationID, reason)
	if err != nil {
		return nil, err
	}
	w.announceCancel(ctx, out)
	return &out.Reservation, nil
}

func (w *ReservationWorkflow) CancelSession(ctx context.Context, sessionID uint, reason string) (*domain.SessionCancellation, error) {
	out, err := w.engine.CancelSession(ctx, sessionID, reason)
	if err != nil {
		return nil, err
	}
	if !out.Transitioned && len(out.Cancelled) == 0 {
		return out, nil
	}

	message := mq.SessionCancelledMessage{
		SessionID:      out.Session.ID,
		Title:          out.Session.Title,
		Reason:         out.Session.CancellationReason,
		ReservationIDs: make([]uint, 0, len(out.Cancelled)),
		HolderIDs:      make([]uint, 0, len(out.Cancelled)),
	}
	if out.Session.CancelledAt != nil {
		message.CancelledAt = *out.Session.CancelledAt
	}
	for _, r := range out.Cancelled {
		message.ReservationIDs = append(message.ReservationIDs, r.ID)
		message.HolderIDs = append(message.HolderIDs, r.HolderID)
	}
	w.publish(ctx, mq.SessionCancelledQueue, message)
	return out, nil
}

func (w *ReservationWorkflow) RemainingCapacity(ctx context.Context, sessionID uint) (int, error) {
	return w.engine.RemainingCapacity(ctx, sessionID)
}

func (w *ReservationWorkflow) announceCancel(ctx context.Context, out *domain.CancelResult) {
	if !out.Transitioned {
		return
	}
	message := mq.ReservationCancelledMessage{
		ReservationID: out.Reservation.ID,
		SessionID:     out.Reservation.SessionID,
		HolderID:      out.Reservation.HolderID,
		Reason:        out.Reservation.CancellationReason,
	}
	if out.Reservation.CancelledAt != nil {
		message.CancelledAt = *out.Reservation.CancelledAt
	}
	w.publish(ctx, mq.ReservationCancelledQueue, message)
}

func (w *ReservationWorkflow) publish(ctx context.Context, queue string, message any) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := w.publisher.Publish(ctx, queue, message); err != nil {
		w.logger.Error("failed to publish event",
			zap.String("queue", queue),
			zap.Error(err),
		)
	}
}
