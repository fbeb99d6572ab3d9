package domain

import (
	"context"
	"errors"
	"time"

	"github.com/qs-lzh/training-booking/internal/clock"
	"github.com/qs-lzh/training-booking/internal/model"
	"github.com/qs-lzh/training-booking/internal/repository"
)

// EntitlementChecker answers whether a holder may reserve right now. Answers
// are never cached.
type EntitlementChecker interface {
	IsEntitled(ctx context.Context, holderID uint) (bool, error)
}

type subscriptionEntitlement struct {
	repo  repository.SubscriptionRepo
	clock clock.Clock
}

var _ EntitlementChecker = (*subscriptionEntitlement)(nil)

func NewSubscriptionEntitlement(repo repository.SubscriptionRepo, clk clock.Clock) *subscriptionEntitlement {
	return &subscriptionEntitlement{
		repo:  repo,
		clock: clk,
	}
}

func (e *subscriptionEntitlement) IsEntitled(ctx context.Context, holderID uint) (bool, error) {
	return e.repo.HasCovering(ctx, holderID, e.clock.Now())
}

type allowAll struct{}

// AllowAll entitles every holder.
func AllowAll() EntitlementChecker {
	return allowAll{}
}

func (allowAll) IsEntitled(context.Context, uint) (bool, error) {
	return true, nil
}

var ErrInvalidGrant = errors.New("a holder and a positive number of days are required")

// SubscriptionService grants subscriptions from the command line.
type SubscriptionService interface {
	Grant(ctx context.Context, holderID uint, days int) (*model.Subscription, error)
	ListByHolder(ctx context.Context, holderID uint) ([]model.Subscription, error)
}

type subscriptionService struct {
	repo  repository.SubscriptionRepo
	clock clock.Clock
}

var _ SubscriptionService = (*subscriptionService)(nil)

func NewSubscriptionService(repo repository.SubscriptionRepo, clk clock.Clock) *subscriptionService {
	return &subscriptionService{
		repo:  repo,
		clock: clk,
	}
}

func (s *subscriptionService) Grant(ctx context.Context, holderID uint, days int) (*model.Subscription, error) {
	if holderID == 0 || days <= 0 {
		return nil, ErrInvalidGrant
	}
	now := s.clock.Now().UTC()
	sub := &model.Subscription{
		HolderID: holderID,
		StartsAt: now,
		EndsAt:   now.Add(time.Duration(days) * 24 * time.Hour),
	}
	if err := s.repo.Create(ctx, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

func (s *subscriptionService) ListByHolder(ctx context.Context, holderID uint) ([]model.Subscription, error) {
	return s.repo.ListByHolder(ctx, holderID)
}
