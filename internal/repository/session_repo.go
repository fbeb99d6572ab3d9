package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/qs-lzh/training-booking/internal/model"
)

type SessionRepo interface {
	Create(ctx context.Context, session *model.TrainingSession) error
	GetByID(ctx context.Context, id uint) (*model.TrainingSession, error)
	// GetByIDForUpdate locks the row until the surrounding transaction ends.
	GetByIDForUpdate(ctx context.Context, id uint) (*model.TrainingSession, error)
	Update(ctx context.Context, session *model.TrainingSession) error
	// MarkCancelled flips is_cancelled once; it reports whether this call did it.
	MarkCancelled(ctx context.Context, id uint, reason string, at time.Time) (bool, error)
	Delete(ctx context.Context, id uint) error
	ListByStartRange(ctx context.Context, from, to time.Time) ([]model.TrainingSession, error)
	ListAll(ctx context.Context) ([]model.TrainingSession, error)
}

type sessionRepoGorm struct {
	db *gorm.DB
}

var _ SessionRepo = (*sessionRepoGorm)(nil)

func NewSessionRepoGorm(db *gorm.DB) *sessionRepoGorm {
	return &sessionRepoGorm{
		db: db,
	}
}

func (r *sessionRepoGorm) WithTx(tx *gorm.DB) *sessionRepoGorm {
	return &sessionRepoGorm{
		db: tx,
	}
}

func (r *sessionRepoGorm) Create(ctx context.Context, session *model.TrainingSession) error {
	if err := gorm.G[model.TrainingSession](r.db).Create(ctx, session); err != nil {
		return translateErr(err)
	}
	return nil
}

func (r *sessionRepoGorm) GetByID(ctx context.Context, id uint) (*model.TrainingSession, error) {
	session, err := gorm.G[model.TrainingSession](r.db).Where("id = ?", id).First(ctx)
	if err != nil {
		return nil, translateErr(err)
	}
	return &session, nil
}

func (r *sessionRepoGorm) GetByIDForUpdate(ctx context.Context, id uint) (*model.TrainingSession, error) {
	var session model.TrainingSession
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&session).Error
	if err != nil {
		return nil, translateErr(err)
	}
	return &session, nil
}

func (r *sessionRepoGorm) Update(ctx context.Context, session *model.TrainingSession) error {
	res := r.db.WithContext(ctx).Model(session).Select("*").Omit("created_at").Updates(session)
	if res.Error != nil {
		return translateErr(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *sessionRepoGorm) MarkCancelled(ctx context.Context, id uint, reason string, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&model.TrainingSession{}).
		Where("id = ? AND is_cancelled = ?", id, false).
		Updates(map[string]any{
			"is_cancelled":        true,
			"cancelled_at":        at,
			"cancellation_reason": reason,
			"updated_at":          at,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *sessionRepoGorm) Delete(ctx context.Context, id uint) error {
	n, err := gorm.G[model.TrainingSession](r.db).Where("id = ?", id).Delete(ctx)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *sessionRepoGorm) ListByStartRange(ctx context.Context, from, to time.Time) ([]model.TrainingSession, error) {
	sessions, err := gorm.G[model.TrainingSession](r.db).
		Where("start_time >= ? AND start_time < ?", from.UTC(), to.UTC()).
		Order("start_time ASC, id ASC").
		Find(ctx)
	if err != nil {
		return nil, err
	}
	return sessions, nil
}

func (r *sessionRepoGorm) ListAll(ctx context.Context) ([]model.TrainingSession, error) {
	sessions, err := gorm.G[model.TrainingSession](r.db).Order("id ASC").Find(ctx)
	if err != nil {
		return nil, err
	}
	return sessions, nil
}
