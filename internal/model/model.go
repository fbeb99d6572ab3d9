package model

import (
	"time"
)

type DifficultyLevel string

const (
	DifficultyBeginner     DifficultyLevel = "beginner"
	DifficultyIntermediate DifficultyLevel = "intermediate"
	DifficultyAdvanced     DifficultyLevel = "advanced"
)

func (d DifficultyLevel) Valid() bool {
	switch d {
	case DifficultyBeginner, DifficultyIntermediate, DifficultyAdvanced:
		return true
	}
	return false
}

type TrainingSession struct {
	ID                 uint            `gorm:"primaryKey" json:"id"`
	Title              string          `gorm:"size:128;not null" json:"title"`
	Description        string          `gorm:"type:text" json:"description"`
	Location           string          `gorm:"size:128" json:"location"`
	TrainerName        string          `gorm:"size:128" json:"trainer_name"`
	StartTime          time.Time       `gorm:"not null;index" json:"start_time"`
	EndTime            time.Time       `gorm:"not null" json:"end_time"`
	Capacity           int             `gorm:"not null" json:"capacity"`
	DifficultyLevel    DifficultyLevel `gorm:"type:varchar(16);not null;default:beginner" json:"difficulty_level"`
	IsCancelled        bool            `gorm:"not null;default:false" json:"is_cancelled"`
	CancelledAt        *time.Time      `json:"cancelled_at,omitempty"`
	CancellationReason string          `gorm:"type:text" json:"cancellation_reason,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

type ReservationState string

const (
	ReservationActive    ReservationState = "active"
	ReservationCancelled ReservationState = "cancelled"
)

// Reservation rows are never deleted except together with their session.
// At most one active row exists per (SessionID, HolderID); the partial unique
// index below enforces that in SQL stores.
type Reservation struct {
	ID                 uint             `gorm:"primaryKey" json:"id"`
	SessionID          uint             `gorm:"not null;index;uniqueIndex:idx_reservation_active_holder,where:state = 'active'" json:"session_id"`
	HolderID           uint             `gorm:"not null;index;uniqueIndex:idx_reservation_active_holder,where:state = 'active'" json:"holder_id"`
	ReservedAt         time.Time        `gorm:"not null" json:"reserved_at"`
	State              ReservationState `gorm:"type:varchar(16);not null;index" json:"state"`
	CancelledAt        *time.Time       `json:"cancelled_at,omitempty"`
	CancellationReason string           `gorm:"type:text" json:"cancellation_reason,omitempty"`
}

func (r *Reservation) IsActive() bool {
	return r.State == ReservationActive
}

type Subscription struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	HolderID  uint      `gorm:"not null;index" json:"holder_id"`
	StartsAt  time.Time `gorm:"not null" json:"starts_at"`
	EndsAt    time.Time `gorm:"not null" json:"ends_at"`
	CreatedAt time.Time `json:"created_at"`
}

// CoversAt reports whether the subscription is valid at t.
func (s *Subscription) CoversAt(t time.Time) bool {
	return !t.Before(s.StartsAt) && t.Before(s.EndsAt)
}

// All lists every persisted model, in migration order.
func All() []any {
	return []any{&TrainingSession{}, &Reservation{}, &Subscription{}}
}
