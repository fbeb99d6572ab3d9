package mq

import "time"

// Queue names and message definitions

// published after a reservation commits
const (
	ReservationCreatedQueue = "reservation.created"
)

type ReservationCreatedMessage struct {
	ReservationID uint      `json:"reservation_id"`
	SessionID     uint      `json:"session_id"`
	HolderID      uint      `json:"holder_id"`
	ReservedAt    time.Time `json:"reserved_at"`
}

// published when a holder or an admin cancels a single reservation
const (
	ReservationCancelledQueue = "reservation.cancelled"
)

type ReservationCancelledMessage struct {
	ReservationID uint      `json:"reservation_id"`
	SessionID     uint      `json:"session_id"`
	HolderID      uint      `json:"holder_id"`
	Reason        string    `json:"reason"`
	CancelledAt   time.Time `json:"cancelled_at"`
}

// published after an admin cancels a whole session
// consumed by the notification workflow to tell every affected holder
const (
	SessionCancelledQueue = "session.cancelled"
)

type SessionCancelledMessage struct {
	SessionID      uint      `json:"session_id"`
	Title          string    `json:"title"`
	Reason         string    `json:"reason"`
	CancelledAt    time.Time `json:"cancelled_at"`
	ReservationIDs []uint    `json:"reservation_ids"`
	HolderIDs      []uint    `json:"holder_ids"`
}

// Queues lists every queue the service declares.
var Queues = []string{
	ReservationCreatedQueue,
	ReservationCancelledQueue,
	SessionCancelledQueue,
}
