package repository

import (
	"context"

	"gorm.io/gorm"
)

// Store groups the repositories that have to change together.
// Transaction runs fn against a view in which every write commits or none does.
type Store interface {
	Sessions() SessionRepo
	Reservations() ReservationRepo
	Subscriptions() SubscriptionRepo
	Transaction(ctx context.Context, fn func(tx Store) error) error
}

type gormStore struct {
	db            *gorm.DB
	sessions      *sessionRepoGorm
	reservations  *reservationRepoGorm
	subscriptions *subscriptionRepoGorm
}

var _ Store = (*gormStore)(nil)

func NewGormStore(db *gorm.DB) *gormStore {
	return &gormStore{
		db:            db,
		sessions:      NewSessionRepoGorm(db),
		reservations:  NewReservationRepoGorm(db),
		subscriptions: NewSubscriptionRepoGorm(db),
	}
}

func (s *gormStore) Sessions() SessionRepo {
	return s.sessions
}

func (s *gormStore) Reservations() ReservationRepo {
	return s.reservations
}

func (s *gormStore) Subscriptions() SubscriptionRepo {
	return s.subscriptions
}

func (s *gormStore) Transaction(ctx context.Context, fn func(tx Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormStore{
			db:            tx,
			sessions:      s.sessions.WithTx(tx),
			reservations:  s.reservations.WithTx(tx),
			subscriptions: s.subscriptions.WithTx(tx),
		})
	})
}
