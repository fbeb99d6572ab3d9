package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/qs-lzh/training-booking/internal/model"
)

// MemoryStore keeps everything in process memory. Transactions hold the store
// lock for their whole duration and work on a copy that replaces the live
// state only when fn succeeds.
type MemoryStore struct {
	mu    sync.RWMutex
	state *memState
}

var _ Store = (*MemoryStore)(nil)

type memState struct {
	sessions      map[uint]model.TrainingSession
	reservations  map[uint]model.Reservation
	subscriptions map[uint]model.Subscription
	nextSession   uint
	nextRes       uint
	nextSub       uint
}

func newMemState() *memState {
	return &memState{
		sessions:      make(map[uint]model.TrainingSession),
		reservations:  make(map[uint]model.Reservation),
		subscriptions: make(map[uint]model.Subscription),
	}
}

func (s *memState) clone() *memState {
	c := &memState{
		sessions:      make(map[uint]model.TrainingSession, len(s.sessions)),
		reservations:  make(map[uint]model.Reservation, len(s.reservations)),
		subscriptions: make(map[uint]model.Subscription, len(s.subscriptions)),
		nextSession:   s.nextSession,
		nextRes:       s.nextRes,
		nextSub:       s.nextSub,
	}
	for k, v := range s.sessions {
		c.sessions[k] = v
	}
	for k, v := range s.reservations {
		c.reservations[k] = v
	}
	for k, v := range s.subscriptions {
		c.subscriptions[k] = v
	}
	return c
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: newMemState()}
}

func (m *MemoryStore) Sessions() SessionRepo {
	return &sessionRepoMemory{view: lockedView{m}}
}

func (m *MemoryStore) Reservations() ReservationRepo {
	return &reservationRepoMemory{view: lockedView{m}}
}

func (m *MemoryStore) Subscriptions() SubscriptionRepo {
	return &subscriptionRepoMemory{view: lockedView{m}}
}

func (m *MemoryStore) Transaction(ctx context.Context, fn func(tx Store) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	work := m.state.clone()
	if err := fn(&memTxStore{view: txView{work}}); err != nil {
		return err
	}
	m.state = work
	return nil
}

type memTxStore struct {
	view txView
}

func (t *memTxStore) Sessions() SessionRepo {
	return &sessionRepoMemory{view: t.view}
}

func (t *memTxStore) Reservations() ReservationRepo {
	return &reservationRepoMemory{view: t.view}
}

func (t *memTxStore) Subscriptions() SubscriptionRepo {
	return &subscriptionRepoMemory{view: t.view}
}

// Transaction inside a transaction joins the outer one.
func (t *memTxStore) Transaction(ctx context.Context, fn func(tx Store) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(t)
}

type memView interface {
	read(ctx context.Context, fn func(s *memState) error) error
	write(ctx context.Context, fn func(s *memState) error) error
}

type lockedView struct {
	m *MemoryStore
}

func (v lockedView) read(ctx context.Context, fn func(s *memState) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	v.m.mu.RLock()
	defer v.m.mu.RUnlock()
	return fn(v.m.state)
}

func (v lockedView) write(ctx context.Context, fn func(s *memState) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	return fn(v.m.state)
}

// txView runs under the lock already held by MemoryStore.Transaction.
type txView struct {
	s *memState
}

func (v txView) read(ctx context.Context, fn func(s *memState) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(v.s)
}

func (v txView) write(ctx context.Context, fn func(s *memState) error) error {
	return v.read(ctx, fn)
}

type sessionRepoMemory struct {
	view memView
}

var _ SessionRepo = (*sessionRepoMemory)(nil)

func (r *sessionRepoMemory) Create(ctx context.Context, session *model.TrainingSession) error {
	return r.view.write(ctx, func(s *memState) error {
		s.nextSession++
		session.ID = s.nextSession
		now := time.Now().UTC()
		if session.CreatedAt.IsZero() {
			session.CreatedAt = now
		}
		session.UpdatedAt = now
		s.sessions[session.ID] = *session
		return nil
	})
}

func (r *sessionRepoMemory) GetByID(ctx context.Context, id uint) (*model.TrainingSession, error) {
	var out model.TrainingSession
	err := r.view.read(ctx, func(s *memState) error {
		session, ok := s.sessions[id]
		if !ok {
			return ErrNotFound
		}
		out = session
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// GetByIDForUpdate needs no extra locking: writers are already serialised.
func (r *sessionRepoMemory) GetByIDForUpdate(ctx context.Context, id uint) (*model.TrainingSession, error) {
	return r.GetByID(ctx, id)
}

func (r *sessionRepoMemory) Update(ctx context.Context, session *model.TrainingSession) error {
	return r.view.write(ctx, func(s *memState) error {
		old, ok := s.sessions[session.ID]
		if !ok {
			return ErrNotFound
		}
		session.CreatedAt = old.CreatedAt
		session.UpdatedAt = time.Now().UTC()
		s.sessions[session.ID] = *session
		return nil
	})
}

func (r *sessionRepoMemory) MarkCancelled(ctx context.Context, id uint, reason string, at time.Time) (bool, error) {
	var changed bool
	err := r.view.write(ctx, func(s *memState) error {
		session, ok := s.sessions[id]
		if !ok || session.IsCancelled {
			return nil
		}
		session.IsCancelled = true
		session.CancelledAt = &at
		session.CancellationReason = reason
		session.UpdatedAt = at
		s.sessions[id] = session
		changed = true
		return nil
	})
	return changed, err
}

func (r *sessionRepoMemory) Delete(ctx context.Context, id uint) error {
	return r.view.write(ctx, func(s *memState) error {
		if _, ok := s.sessions[id]; !ok {
			return ErrNotFound
		}
		delete(s.sessions, id)
		return nil
	})
}

func (r *sessionRepoMemory) ListByStartRange(ctx context.Context, from, to time.Time) ([]model.TrainingSession, error) {
	return r.list(ctx, func(session *model.TrainingSession) bool {
		return !session.StartTime.Before(from) && session.StartTime.Before(to)
	})
}

func (r *sessionRepoMemory) ListAll(ctx context.Context) ([]model.TrainingSession, error) {
	sessions, err := r.list(ctx, func(*model.TrainingSession) bool { return true })
	if err != nil {
		return nil, err
	}
	sort.Slice(sessions, func(i, j int) bool { return sessions[i].ID < sessions[j].ID })
	return sessions, nil
}

func (r *sessionRepoMemory) list(ctx context.Context, keep func(*model.TrainingSession) bool) ([]model.TrainingSession, error) {
	var out []model.TrainingSession
	err := r.view.read(ctx, func(s *memState) error {
		for _, session := range s.sessions {
			if keep(&session) {
				out = append(out, session)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].StartTime.Before(out[j].StartTime)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

type reservationRepoMemory struct {
	view memView
}

var _ ReservationRepo = (*reservationRepoMemory)(nil)

func (r *reservationRepoMemory) Create(ctx context.Context, reservation *model.Reservation) error {
	return r.view.write(ctx, func(s *memState) error {
		if reservation.State == model.ReservationActive {
			for _, existing := range s.reservations {
				if existing.IsActive() &&
					existing.SessionID == reservation.SessionID &&
					existing.HolderID == reservation.HolderID {
					return ErrDuplicateActive
				}
			}
		}
		s.nextRes++
		reservation.ID = s.nextRes
		s.reservations[reservation.ID] = *reservation
		return nil
	})
}

func (r *reservationRepoMemory) GetByID(ctx context.Context, id uint) (*model.Reservation, error) {
	var out model.Reservation
	err := r.view.read(ctx, func(s *memState) error {
		reservation, ok := s.reservations[id]
		if !ok {
			return ErrNotFound
		}
		out = reservation
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *reservationRepoMemory) FindActive(ctx context.Context, sessionID, holderID uint) (*model.Reservation, error) {
	found, err := r.filter(ctx, func(res *model.Reservation) bool {
		return res.IsActive() && res.SessionID == sessionID && res.HolderID == holderID
	})
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, ErrNotFound
	}
	return &found[0], nil
}

func (r *reservationRepoMemory) CountActive(ctx context.Context, sessionID uint) (int, error) {
	found, err := r.ListActive(ctx, sessionID)
	if err != nil {
		return 0, err
	}
	return len(found), nil
}

func (r *reservationRepoMemory) CountActiveBySessions(ctx context.Context, sessionIDs []uint) (map[uint]int, error) {
	wanted := make(map[uint]bool, len(sessionIDs))
	for _, id := range sessionIDs {
		wanted[id] = true
	}
	counts := make(map[uint]int)
	err := r.view.read(ctx, func(s *memState) error {
		for _, res := range s.reservations {
			if !res.IsActive() {
				continue
			}
			if sessionIDs != nil && !wanted[res.SessionID] {
				continue
			}
			counts[res.SessionID]++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return counts, nil
}

func (r *reservationRepoMemory) ListActive(ctx context.Context, sessionID uint) ([]model.Reservation, error) {
	return r.filter(ctx, func(res *model.Reservation) bool {
		return res.IsActive() && res.SessionID == sessionID
	})
}

func (r *reservationRepoMemory) ListBySession(ctx context.Context, sessionID uint) ([]model.Reservation, error) {
	return r.filter(ctx, func(res *model.Reservation) bool {
		return res.SessionID == sessionID
	})
}

func (r *reservationRepoMemory) ListByHolder(ctx context.Context, holderID uint) ([]model.Reservation, error) {
	found, err := r.filter(ctx, func(res *model.Reservation) bool {
		return res.HolderID == holderID
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(found, func(i, j int) bool {
		if !found[i].ReservedAt.Equal(found[j].ReservedAt) {
			return found[i].ReservedAt.After(found[j].ReservedAt)
		}
		return found[i].ID > found[j].ID
	})
	return found, nil
}

func (r *reservationRepoMemory) ListActiveByHolder(ctx context.Context, holderID uint, sessionIDs []uint) ([]model.Reservation, error) {
	wanted := make(map[uint]bool, len(sessionIDs))
	for _, id := range sessionIDs {
		wanted[id] = true
	}
	return r.filter(ctx, func(res *model.Reservation) bool {
		if !res.IsActive() || res.HolderID != holderID {
			return false
		}
		return sessionIDs == nil || wanted[res.SessionID]
	})
}

func (r *reservationRepoMemory) Cancel(ctx context.Context, id uint, reason string, at time.Time) (bool, error) {
	n, err := r.CancelMany(ctx, []uint{id}, reason, at)
	return n == 1, err
}

func (r *reservationRepoMemory) CancelMany(ctx context.Context, ids []uint, reason string, at time.Time) (int, error) {
	var n int
	err := r.view.write(ctx, func(s *memState) error {
		for _, id := range ids {
			res, ok := s.reservations[id]
			if !ok || !res.IsActive() {
				continue
			}
			cancelledAt := at
			res.State = model.ReservationCancelled
			res.CancelledAt = &cancelledAt
			res.CancellationReason = reason
			s.reservations[id] = res
			n++
		}
		return nil
	})
	return n, err
}

func (r *reservationRepoMemory) DeleteBySession(ctx context.Context, sessionID uint) (int, error) {
	var n int
	err := r.view.write(ctx, func(s *memState) error {
		for id, res := range s.reservations {
			if res.SessionID == sessionID {
				delete(s.reservations, id)
				n++
			}
		}
		return nil
	})
	return n, err
}

func (r *reservationRepoMemory) filter(ctx context.Context, keep func(*model.Reservation) bool) ([]model.Reservation, error) {
	var out []model.Reservation
	err := r.view.read(ctx, func(s *memState) error {
		for _, res := range s.reservations {
			if keep(&res) {
				out = append(out, res)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type subscriptionRepoMemory struct {
	view memView
}

var _ SubscriptionRepo = (*subscriptionRepoMemory)(nil)

func (r *subscriptionRepoMemory) Create(ctx context.Context, subscription *model.Subscription) error {
	return r.view.write(ctx, func(s *memState) error {
		s.nextSub++
		subscription.ID = s.nextSub
		if subscription.CreatedAt.IsZero() {
			subscription.CreatedAt = time.Now().UTC()
		}
		s.subscriptions[subscription.ID] = *subscription
		return nil
	})
}

func (r *subscriptionRepoMemory) ListByHolder(ctx context.Context, holderID uint) ([]model.Subscription, error) {
	var out []model.Subscription
	err := r.view.read(ctx, func(s *memState) error {
		for _, sub := range s.subscriptions {
			if sub.HolderID == holderID {
				out = append(out, sub)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartsAt.Before(out[j].StartsAt) })
	return out, nil
}

func (r *subscriptionRepoMemory) HasCovering(ctx context.Context, holderID uint, at time.Time) (bool, error) {
	subs, err := r.ListByHolder(ctx, holderID)
	if err != nil {
		return false, err
	}
	for i := range subs {
		if subs[i].CoversAt(at) {
			return true, nil
		}
	}
	return false, nil
}
