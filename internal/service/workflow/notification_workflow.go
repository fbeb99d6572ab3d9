package workflow

import (
	"encoding/json"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/qs-lzh/training-booking/internal/mq"
)

// NotificationWorkflow tells holders that their session was cancelled. There
// is no delivery channel yet, so every notice is a structured log line.
type NotificationWorkflow struct {
	logger *zap.Logger
}

func NewNotificationWorkflow(logger *zap.Logger) *NotificationWorkflow {
	return &NotificationWorkflow{
		logger: logger,
	}
}

func (w *NotificationWorkflow) Start(mqConn *amqp.Connection) error {
	if err := w.ConsumeSessionCancelled(mqConn); err != nil {
		return err
	}
	return nil
}

func (w *NotificationWorkflow) ConsumeSessionCancelled(conn *amqp.Connection) error {
	ch, err := mq.NewConsumerChannel(conn)
	if err != nil {
		return err
	}

	msgs, err := ch.Consume(mq.SessionCancelledQueue, "", false, false, false, false, nil)
	if err != nil {
		return err
	}

	go func() {
		for msg := range msgs {
			if err := w.handleSessionCancelled(msg); err != nil {
				w.logger.Error("failed to handle session cancellation", zap.Error(err))
			}
		}
	}()

	return nil
}

func (w *NotificationWorkflow) handleSessionCancelled(msg amqp.Delivery) error {
	var message mq.SessionCancelledMessage
	if err := json.Unmarshal(msg.Body, &message); err != nil {
		msg.Nack(false, false)
		return err
	}

	for i, holderID := range message.HolderIDs {
		fields := []zap.Field{
			zap.Uint("holder_id", holderID),
			zap.Uint("session_id", message.SessionID),
			zap.String("title", message.Title),
			zap.String("reason", message.Reason),
			zap.Time("cancelled_at", message.CancelledAt),
		}
		if i < len(message.ReservationIDs) {
			fields = append(fields, zap.Uint("reservation_id", message.ReservationIDs[i]))
		}
		w.logger.Info("notify holder: session cancelled", fields...)
	}

	msg.Ack(false)

	return nil
}
