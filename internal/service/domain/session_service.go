package domain

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/qs-lzh/training-booking/internal/guard"
	"github.com/qs-lzh/training-booking/internal/model"
	"github.com/qs-lzh/training-booking/internal/repository"
	"github.com/qs-lzh/training-booking/internal/service"
)

type SessionInput struct {
	Title           string                `json:"title"`
	Description     string                `json:"description"`
	Location        string                `json:"location"`
	TrainerName     string                `json:"trainer_name"`
	StartTime       time.Time             `json:"start_time"`
	EndTime         time.Time             `json:"end_time"`
	Capacity        int                   `json:"capacity"`
	DifficultyLevel model.DifficultyLevel `json:"difficulty_level"`
}

// SessionPatch carries the fields an admin edit changes; nil means unchanged.
type SessionPatch struct {
	Title           *string                `json:"title"`
	Description     *string                `json:"description"`
	Location        *string                `json:"location"`
	TrainerName     *string                `json:"trainer_name"`
	StartTime       *time.Time             `json:"start_time"`
	EndTime         *time.Time             `json:"end_time"`
	Capacity        *int                   `json:"capacity"`
	DifficultyLevel *model.DifficultyLevel `json:"difficulty_level"`
}

type SessionService interface {
	CreateSession(ctx context.Context, input SessionInput) (*model.TrainingSession, error)
	UpdateSession(ctx context.Context, id uint, patch SessionPatch) (*model.TrainingSession, error)
	GetSession(ctx context.Context, id uint) (*model.TrainingSession, error)
	ListSessions(ctx context.Context, from, to time.Time) ([]model.TrainingSession, error)
	// DeleteSession removes the session and all of its reservations.
	DeleteSession(ctx context.Context, id uint) error
	ListReservations(ctx context.Context, sessionID uint) ([]model.Reservation, error)
	ListHolderReservations(ctx context.Context, holderID uint) ([]model.Reservation, error)
}

type sessionService struct {
	store  repository.Store
	guard  guard.CapacityGuard
	logger *zap.Logger
}

var _ SessionService = (*sessionService)(nil)

func NewSessionService(store repository.Store, g guard.CapacityGuard, logger *zap.Logger) *sessionService {
	return &sessionService{
		store:  store,
		guard:  g,
		logger: logger,
	}
}

func (s *sessionService) CreateSession(ctx context.Context, input SessionInput) (*model.TrainingSession, error) {
	session := &model.TrainingSession{
		Title:           strings.TrimSpace(input.Title),
		Description:     input.Description,
		Location:        input.Location,
		TrainerName:     input.TrainerName,
		StartTime:       input.StartTime.UTC(),
		EndTime:         input.EndTime.UTC(),
		Capacity:        input.Capacity,
		DifficultyLevel: input.DifficultyLevel,
	}
	if session.DifficultyLevel == "" {
		session.DifficultyLevel = model.DifficultyBeginner
	}
	if err := validateSession(session); err != nil {
		return nil, err
	}
	if err := s.store.Sessions().Create(ctx, session); err != nil {
		return nil, storeErr("create session", err)
	}
	s.logger.Info("session created", zap.Uint("session_id", session.ID), zap.Int("capacity", session.Capacity))
	return session, nil
}

func (s *sessionService) UpdateSession(ctx context.Context, id uint, patch SessionPatch) (*model.TrainingSession, error) {
	var updated *model.TrainingSession
	err := s.store.Transaction(ctx, func(tx repository.Store) error {
		session, err := tx.Sessions().GetByIDForUpdate(ctx, id)
		if err != nil {
			return storeErr("lock session", err)
		}
		if session.IsCancelled {
			return service.ErrSessionCancelled
		}
		patch.apply(session)
		if err := validateSession(session); err != nil {
			return err
		}
		if err := tx.Sessions().Update(ctx, session); err != nil {
			return storeErr("update session", err)
		}
		updated = session
		return nil
	})
	if err != nil {
		return nil, storeErr("update session", err)
	}
	return updated, nil
}

func (p SessionPatch) apply(session *model.TrainingSession) {
	if p.Title != nil {
		session.Title = strings.TrimSpace(*p.Title)
	}
	if p.Description != nil {
		session.Description = *p.Description
	}
	if p.Location != nil {
		session.Location = *p.Location
	}
	if p.TrainerName != nil {
		session.TrainerName = *p.TrainerName
	}
	if p.StartTime != nil {
		session.StartTime = p.StartTime.UTC()
	}
	if p.EndTime != nil {
		session.EndTime = p.EndTime.UTC()
	}
	if p.Capacity != nil {
		session.Capacity = *p.Capacity
	}
	if p.DifficultyLevel != nil {
		session.DifficultyLevel = *p.DifficultyLevel
	}
}

func (s *sessionService) GetSession(ctx context.Context, id uint) (*model.TrainingSession, error) {
	session, err := s.store.Sessions().GetByID(ctx, id)
	if err != nil {
		return nil, storeErr("load session", err)
	}
	return session, nil
}

func (s *sessionService) ListSessions(ctx context.Context, from, to time.Time) ([]model.TrainingSession, error) {
	var (
		sessions []model.TrainingSession
		err      error
	)
	if from.IsZero() && to.IsZero() {
		sessions, err = s.store.Sessions().ListAll(ctx)
	} else {
		sessions, err = s.store.Sessions().ListByStartRange(ctx, from, to)
	}
	if err != nil {
		return nil, storeErr("list sessions", err)
	}
	return sessions, nil
}

func (s *sessionService) DeleteSession(ctx context.Context, id uint) error {
	var removed int
	err := s.store.Transaction(ctx, func(tx repository.Store) error {
		if _, err := tx.Sessions().GetByIDForUpdate(ctx, id); err != nil {
			return storeErr("lock session", err)
		}
		n, err := tx.Reservations().DeleteBySession(ctx, id)
		if err != nil {
			return storeErr("delete reservations", err)
		}
		removed = n
		if err := tx.Sessions().Delete(ctx, id); err != nil {
			return storeErr("delete session", err)
		}
		return nil
	})
	if err != nil {
		return storeErr("delete session", err)
	}

	if err := s.guard.Forget(ctx, id); err != nil {
		s.logger.Warn("failed to drop slot counter", zap.Uint("session_id", id), zap.Error(err))
	}
	s.logger.Info("session deleted", zap.Uint("session_id", id), zap.Int("reservations_deleted", removed))
	return nil
}

func (s *sessionService) ListReservations(ctx context.Context, sessionID uint) ([]model.Reservation, error) {
	if _, err := s.store.Sessions().GetByID(ctx, sessionID); err != nil {
		return nil, storeErr("load session", err)
	}
	reservations, err := s.store.Reservations().ListBySession(ctx, sessionID)
	if err != nil {
		return nil, storeErr("list reservations", err)
	}
	return reservations, nil
}

func (s *sessionService) ListHolderReservations(ctx context.Context, holderID uint) ([]model.Reservation, error) {
	reservations, err := s.store.Reservations().ListByHolder(ctx, holderID)
	if err != nil {
		return nil, storeErr("list holder reservations", err)
	}
	return reservations, nil
}

func validateSession(session *model.TrainingSession) error {
	var problems []string
	if session.Title == "" {
		problems = append(problems, "title is required")
	}
	if session.StartTime.IsZero() || session.EndTime.IsZero() {
		problems = append(problems, "start_time and end_time are required")
	} else if !session.StartTime.Before(session.EndTime) {
		problems = append(problems, "start_time must be before end_time")
	}
	if session.Capacity <= 0 {
		problems = append(problems, "capacity must be positive")
	}
	if !session.DifficultyLevel.Valid() {
		problems = append(problems, fmt.Sprintf("unknown difficulty level %q", session.DifficultyLevel))
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", service.ErrInvalidSession, strings.Join(problems, "; "))
	}
	return nil
}
