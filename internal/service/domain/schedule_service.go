package domain

import (
	"context"
	"fmt"
	"time"

	"github.com/qs-lzh/training-booking/internal/model"
	"github.com/qs-lzh/training-booking/internal/repository"
	"github.com/qs-lzh/training-booking/internal/service"
)

// maxScheduleDays bounds the range a single GetWeek call may cover.
const maxScheduleDays = 62

type SessionView struct {
	model.TrainingSession
	RemainingSpaces    int   `json:"remaining_spaces"`
	IsFull             bool  `json:"is_full"`
	UserHasReservation bool  `json:"user_has_reservation"`
	UserReservationID  *uint `json:"user_reservation_id,omitempty"`
}

type DaySchedule struct {
	// Date is midnight of the day in the schedule's location.
	Date     time.Time     `json:"date"`
	Sessions []SessionView `json:"sessions"`
}

type ScheduleQueryService interface {
	// GetWeek lists sessions starting in [start, end), one bucket per calendar
	// day. holderID is optional.
	GetWeek(ctx context.Context, start, end time.Time, holderID *uint) ([]DaySchedule, error)
}

type scheduleQueryService struct {
	store    repository.Store
	location *time.Location
}

var _ ScheduleQueryService = (*scheduleQueryService)(nil)

func NewScheduleQueryService(store repository.Store, location *time.Location) *scheduleQueryService {
	if location == nil {
		location = time.UTC
	}
	return &scheduleQueryService{
		store:    store,
		location: location,
	}
}

func (s *scheduleQueryService) GetWeek(ctx context.Context, start, end time.Time, holderID *uint) ([]DaySchedule, error) {
	start = startOfDay(start, s.location)
	end = startOfDay(end, s.location)
	if !start.Before(end) {
		return nil, fmt.Errorf("%w: start must be before end", service.ErrInvalidSession)
	}

	var days []DaySchedule
	index := make(map[string]int)
	for d := start; d.Before(end); d = d.AddDate(0, 0, 1) {
		if len(days) == maxScheduleDays {
			return nil, fmt.Errorf("%w: range exceeds %d days", service.ErrInvalidSession, maxScheduleDays)
		}
		index[d.Format(time.DateOnly)] = len(days)
		days = append(days, DaySchedule{Date: d, Sessions: []SessionView{}})
	}

	sessions, err := s.store.Sessions().ListByStartRange(ctx, start, end)
	if err != nil {
		return nil, storeErr("list sessions", err)
	}
	if len(sessions) == 0 {
		return days, nil
	}

	ids := make([]uint, 0, len(sessions))
	for _, session := range sessions {
		ids = append(ids, session.ID)
	}
	counts, err := s.store.Reservations().CountActiveBySessions(ctx, ids)
	if err != nil {
		return nil, storeErr("count reservations", err)
	}

	mine := make(map[uint]uint)
	if holderID != nil {
		held, err := s.store.Reservations().ListActiveByHolder(ctx, *holderID, ids)
		if err != nil {
			return nil, storeErr("list holder reservations", err)
		}
		for _, r := range held {
			mine[r.SessionID] = r.ID
		}
	}

	for _, session := range sessions {
		local := session.StartTime.In(s.location)
		i, ok := index[local.Format(time.DateOnly)]
		if !ok {
			continue
		}
		left := remaining(session.Capacity, counts[session.ID])
		view := SessionView{
			TrainingSession: session,
			RemainingSpaces: left,
			IsFull:          left <= 0,
		}
		if id, ok := mine[session.ID]; ok {
			view.UserHasReservation = true
			view.UserReservationID = &id
		}
		days[i].Sessions = append(days[i].Sessions, view)
	}
	return days, nil
}

func startOfDay(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}
