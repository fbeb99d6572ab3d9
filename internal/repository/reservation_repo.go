package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/qs-lzh/training-booking/internal/model"
)

type ReservationRepo interface {
	// Create inserts an active reservation. A second active row for the same
	// (session, holder) fails with ErrDuplicateActive.
	Create(ctx context.Context, reservation *model.Reservation) error
	GetByID(ctx context.Context, id uint) (*model.Reservation, error)
	FindActive(ctx context.Context, sessionID, holderID uint) (*model.Reservation, error)
	CountActive(ctx context.Context, sessionID uint) (int, error)
	// CountActiveBySessions counts active rows per session. A nil ids slice
	// counts every session.
	CountActiveBySessions(ctx context.Context, sessionIDs []uint) (map[uint]int, error)
	ListActive(ctx context.Context, sessionID uint) ([]model.Reservation, error)
	ListBySession(ctx context.Context, sessionID uint) ([]model.Reservation, error)
	ListByHolder(ctx context.Context, holderID uint) ([]model.Reservation, error)
	ListActiveByHolder(ctx context.Context, holderID uint, sessionIDs []uint) ([]model.Reservation, error)
	// Cancel moves an active reservation to cancelled and reports whether this
	// call made the transition.
	Cancel(ctx context.Context, id uint, reason string, at time.Time) (bool, error)
	CancelMany(ctx context.Context, ids []uint, reason string, at time.Time) (int, error)
	DeleteBySession(ctx context.Context, sessionID uint) (int, error)
}

type reservationRepoGorm struct {
	db *gorm.DB
}

var _ ReservationRepo = (*reservationRepoGorm)(nil)

func NewReservationRepoGorm(db *gorm.DB) *reservationRepoGorm {
	return &reservationRepoGorm{
		db: db,
	}
}

func (r *reservationRepoGorm) WithTx(tx *gorm.DB) *reservationRepoGorm {
	return &reservationRepoGorm{
		db: tx,
	}
}

func (r *reservationRepoGorm) Create(ctx context.Context, reservation *model.Reservation) error {
	if err := gorm.G[model.Reservation](r.db).Create(ctx, reservation); err != nil {
		return translateErr(err)
	}
	return nil
}

func (r *reservationRepoGorm) GetByID(ctx context.Context, id uint) (*model.Reservation, error) {
	reservation, err := gorm.G[model.Reservation](r.db).Where("id = ?", id).First(ctx)
	if err != nil {
		return nil, translateErr(err)
	}
	return &reservation, nil
}

func (r *reservationRepoGorm) FindActive(ctx context.Context, sessionID, holderID uint) (*model.Reservation, error) {
	reservation, err := gorm.G[model.Reservation](r.db).
		Where("session_id = ? AND holder_id = ? AND state = ?", sessionID, holderID, model.ReservationActive).
		First(ctx)
	if err != nil {
		return nil, translateErr(err)
	}
	return &reservation, nil
}

func (r *reservationRepoGorm) CountActive(ctx context.Context, sessionID uint) (int, error) {
	n, err := gorm.G[model.Reservation](r.db).
		Where("session_id = ? AND state = ?", sessionID, model.ReservationActive).
		Count(ctx, "*")
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

type sessionCount struct {
	SessionID uint
	Total     int
}

func (r *reservationRepoGorm) CountActiveBySessions(ctx context.Context, sessionIDs []uint) (map[uint]int, error) {
	counts := make(map[uint]int)
	if sessionIDs != nil && len(sessionIDs) == 0 {
		return counts, nil
	}

	q := r.db.WithContext(ctx).
		Model(&model.Reservation{}).
		Select("session_id, COUNT(*) AS total").
		Where("state = ?", model.ReservationActive)
	if sessionIDs != nil {
		q = q.Where("session_id IN ?", sessionIDs)
	}

	var rows []sessionCount
	if err := q.Group("session_id").Scan(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		counts[row.SessionID] = row.Total
	}
	return counts, nil
}

func (r *reservationRepoGorm) ListActive(ctx context.Context, sessionID uint) ([]model.Reservation, error) {
	return gorm.G[model.Reservation](r.db).
		Where("session_id = ? AND state = ?", sessionID, model.ReservationActive).
		Order("id ASC").
		Find(ctx)
}

func (r *reservationRepoGorm) ListBySession(ctx context.Context, sessionID uint) ([]model.Reservation, error) {
	return gorm.G[model.Reservation](r.db).
		Where("session_id = ?", sessionID).
		Order("id ASC").
		Find(ctx)
}

func (r *reservationRepoGorm) ListByHolder(ctx context.Context, holderID uint) ([]model.Reservation, error) {
	return gorm.G[model.Reservation](r.db).
		Where("holder_id = ?", holderID).
		Order("reserved_at DESC, id DESC").
		Find(ctx)
}

func (r *reservationRepoGorm) ListActiveByHolder(ctx context.Context, holderID uint, sessionIDs []uint) ([]model.Reservation, error) {
	if sessionIDs != nil && len(sessionIDs) == 0 {
		return nil, nil
	}
	q := gorm.G[model.Reservation](r.db).
		Where("holder_id = ? AND state = ?", holderID, model.ReservationActive)
	if sessionIDs != nil {
		q = q.Where("session_id IN ?", sessionIDs)
	}
	return q.Order("id ASC").Find(ctx)
}

func (r *reservationRepoGorm) Cancel(ctx context.Context, id uint, reason string, at time.Time) (bool, error) {
	n, err := r.cancelWhere(r.db.WithContext(ctx).Where("id = ?", id), reason, at)
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *reservationRepoGorm) CancelMany(ctx context.Context, ids []uint, reason string, at time.Time) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	return r.cancelWhere(r.db.WithContext(ctx).Where("id IN ?", ids), reason, at)
}

func (r *reservationRepoGorm) cancelWhere(q *gorm.DB, reason string, at time.Time) (int, error) {
	res := q.Model(&model.Reservation{}).
		Where("state = ?", model.ReservationActive).
		Updates(map[string]any{
			"state":               model.ReservationCancelled,
			"cancelled_at":        at,
			"cancellation_reason": reason,
		})
	if res.Error != nil {
		return 0, res.Error
	}
	return int(res.RowsAffected), nil
}

func (r *reservationRepoGorm) DeleteBySession(ctx context.Context, sessionID uint) (int, error) {
	return gorm.G[model.Reservation](r.db).Where("session_id = ?", sessionID).Delete(ctx)
}
