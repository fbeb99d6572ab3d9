package handler

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/qs-lzh/training-booking/internal/app"
)

type ReserveHandler struct {
	app *app.App
}

func NewReserveHandler(app *app.App) *ReserveHandler {
	return &ReserveHandler{
		app: app,
	}
}

type ReserveRequest struct {
	HolderID uint `json:"holder_id" binding:"required"`
}

type CancelRequest struct {
	HolderID uint   `json:"holder_id" binding:"required"`
	Reason   string `json:"reason"`
}

func (h *ReserveHandler) HandleReserve(ctx *gin.Context) {
	sessionID, ok := idParam(ctx)
	if !ok {
		return
	}
	var req ReserveRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badRequest(ctx, err)
		return
	}

	reservation, err := h.app.ReservationWorkflow.Reserve(ctx.Request.Context(), sessionID, req.HolderID)
	if err != nil {
		writeError(ctx, h.app.Logger, err)
		return
	}

	ctx.JSON(201, gin.H{
		"message":     "Session reserved successfully",
		"status":      reservation.State,
		"reservation": reservation,
	})
}

func (h *ReserveHandler) HandleCancel(ctx *gin.Context) {
	reservationID, ok := idParam(ctx)
	if !ok {
		return
	}
	var req CancelRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		badRequest(ctx, err)
		return
	}

	reservation, err := h.app.ReservationWorkflow.Cancel(ctx.Request.Context(), reservationID, req.HolderID, req.Reason)
	if err != nil {
		writeError(ctx, h.app.Logger, err)
		return
	}

	ctx.JSON(200, gin.H{
		"message":     "Reservation cancelled",
		"status":      reservation.State,
		"reservation": reservation,
	})
}

func (h *ReserveHandler) HandleCapacity(ctx *gin.Context) {
	sessionID, ok := idParam(ctx)
	if !ok {
		return
	}

	left, err := h.app.ReservationWorkflow.RemainingCapacity(ctx.Request.Context(), sessionID)
	if err != nil {
		writeError(ctx, h.app.Logger, err)
		return
	}

	ctx.JSON(200, gin.H{
		"session_id":       sessionID,
		"remaining_spaces": left,
		"is_full":          left <= 0,
	})
}

// HandleSchedule serves GET /schedule?start=YYYY-MM-DD&end=YYYY-MM-DD&holder_id=N.
// Without start the week begins today; without end it lasts seven days. The
// schedule service snaps both bounds to midnight in the configured zone.
func (h *ReserveHandler) HandleSchedule(ctx *gin.Context) {
	loc := h.app.Config.Location

	start := h.app.Clock.Now()
	if raw := ctx.Query("start"); raw != "" {
		t, err := time.ParseInLocation(time.DateOnly, raw, loc)
		if err != nil {
			badRequest(ctx, fmt.Errorf("start: %w", err))
			return
		}
		start = t
	}
	end := start.AddDate(0, 0, 7)
	if raw := ctx.Query("end"); raw != "" {
		t, err := time.ParseInLocation(time.DateOnly, raw, loc)
		if err != nil {
			badRequest(ctx, fmt.Errorf("end: %w", err))
			return
		}
		end = t
	}

	var holderID *uint
	if raw := ctx.Query("holder_id"); raw != "" {
		id, err := parseID(raw)
		if err != nil {
			badRequest(ctx, fmt.Errorf("holder_id: %w", err))
			return
		}
		holderID = &id
	}

	days, err := h.app.ScheduleService.GetWeek(ctx.Request.Context(), start, end, holderID)
	if err != nil {
		writeError(ctx, h.app.Logger, err)
		return
	}

	ctx.JSON(200, gin.H{
		"time_zone": loc.String(),
		"days":      days,
	})
}

func (h *ReserveHandler) HandleHolderReservations(ctx *gin.Context) {
	holderID, ok := idParam(ctx)
	if !ok {
		return
	}

	reservations, err := h.app.SessionService.ListHolderReservations(ctx.Request.Context(), holderID)
	if err != nil {
		writeError(ctx, h.app.Logger, err)
		return
	}

	ctx.JSON(200, gin.H{
		"holder_id":    holderID,
		"reservations": reservations,
	})
}

func idParam(ctx *gin.Context) (uint, bool) {
	id, err := parseID(ctx.Param("id"))
	if err != nil {
		badRequest(ctx, fmt.Errorf("id: %w", err))
		return 0, false
	}
	return id, true
}

func parseID(raw string) (uint, error) {
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, err
	}
	if id == 0 {
		return 0, errors.New("must be positive")
	}
	return uint(id), nil
}
