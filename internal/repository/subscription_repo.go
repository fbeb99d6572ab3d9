package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/qs-lzh/training-booking/internal/model"
)

type SubscriptionRepo interface {
	Create(ctx context.Context, subscription *model.Subscription) error
	ListByHolder(ctx context.Context, holderID uint) ([]model.Subscription, error)
	HasCovering(ctx context.Context, holderID uint, at time.Time) (bool, error)
}

type subscriptionRepoGorm struct {
	db *gorm.DB
}

var _ SubscriptionRepo = (*subscriptionRepoGorm)(nil)

func NewSubscriptionRepoGorm(db *gorm.DB) *subscriptionRepoGorm {
	return &subscriptionRepoGorm{
		db: db,
	}
}

func (r *subscriptionRepoGorm) WithTx(tx *gorm.DB) *subscriptionRepoGorm {
	return &subscriptionRepoGorm{
		db: tx,
	}
}

func (r *subscriptionRepoGorm) Create(ctx context.Context, subscription *model.Subscription) error {
	return gorm.G[model.Subscription](r.db).Create(ctx, subscription)
}

func (r *subscriptionRepoGorm) ListByHolder(ctx context.Context, holderID uint) ([]model.Subscription, error) {
	return gorm.G[model.Subscription](r.db).
		Where("holder_id = ?", holderID).
		Order("starts_at ASC").
		Find(ctx)
}

func (r *subscriptionRepoGorm) HasCovering(ctx context.Context, holderID uint, at time.Time) (bool, error) {
	at = at.UTC()
	n, err := gorm.G[model.Subscription](r.db).
		Where("holder_id = ? AND starts_at <= ? AND ends_at > ?", holderID, at, at).
		Count(ctx, "*")
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
