package handler

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/qs-lzh/training-booking/internal/app"
	"github.com/qs-lzh/training-booking/internal/service/domain"
)

// AdminHandler serves the admin panel. Authentication happens in front of
// this service.
type AdminHandler struct {
	app *app.App
}

func NewAdminHandler(app *app.App) *AdminHandler {
	return &AdminHandler{
		app: app,
	}
}

type CancelReasonRequest struct {
	Reason string `json:"reason"`
}

func (h *AdminHandler) HandleCreateSession(ctx *gin.Context) {
	var input domain.SessionInput
	if err := ctx.ShouldBindJSON(&input); err != nil {
		badRequest(ctx, err)
		return
	}

	session, err := h.app.SessionService.CreateSession(ctx.Request.Context(), input)
	if err != nil {
		writeError(ctx, h.app.Logger, err)
		return
	}
	ctx.JSON(201, session)
}

// HandleListSessions serves GET /admin/sessions?from=YYYY-MM-DD&to=YYYY-MM-DD.
// Without both bounds every session is listed.
func (h *AdminHandler) HandleListSessions(ctx *gin.Context) {
	loc := h.app.Config.Location
	var from, to time.Time
	for _, bound := range []struct {
		name string
		dst  *time.Time
	}{{"from", &from}, {"to", &to}} {
		raw := ctx.Query(bound.name)
		if raw == "" {
			continue
		}
		t, err := time.ParseInLocation(time.DateOnly, raw, loc)
		if err != nil {
			badRequest(ctx, fmt.Errorf("%s: %w", bound.name, err))
			return
		}
		*bound.dst = t
	}
	if from.IsZero() != to.IsZero() {
		badRequest(ctx, fmt.Errorf("from and to must be given together"))
		return
	}

	sessions, err := h.app.SessionService.ListSessions(ctx.Request.Context(), from, to)
	if err != nil {
		writeError(ctx, h.app.Logger, err)
		return
	}
	ctx.JSON(200, gin.H{"sessions": sessions})
}

func (h *AdminHandler) HandleGetSession(ctx *gin.Context) {
	sessionID, ok := idParam(ctx)
	if !ok {
		return
	}

	session, err := h.app.SessionService.GetSession(ctx.Request.Context(), sessionID)
	if err != nil {
		writeError(ctx, h.app.Logger, err)
		return
	}
	left, err := h.app.ReservationWorkflow.RemainingCapacity(ctx.Request.Context(), sessionID)
	if err != nil {
		writeError(ctx, h.app.Logger, err)
		return
	}
	ctx.JSON(200, gin.H{
		"session":          session,
		"remaining_spaces": left,
	})
}

func (h *AdminHandler) HandleUpdateSession(ctx *gin.Context) {
	sessionID, ok := idParam(ctx)
	if !ok {
		return
	}
	var patch domain.SessionPatch
	if err := ctx.ShouldBindJSON(&patch); err != nil {
		badRequest(ctx, err)
		return
	}

	session, err := h.app.SessionService.UpdateSession(ctx.Request.Context(), sessionID, patch)
	if err != nil {
		writeError(ctx, h.app.Logger, err)
		return
	}
	ctx.JSON(200, session)
}

func (h *AdminHandler) HandleDeleteSession(ctx *gin.Context) {
	sessionID, ok := idParam(ctx)
	if !ok {
		return
	}

	if err := h.app.SessionService.DeleteSession(ctx.Request.Context(), sessionID); err != nil {
		writeError(ctx, h.app.Logger, err)
		return
	}
	ctx.Status(204)
}

func (h *AdminHandler) HandleCancelSession(ctx *gin.Context) {
	sessionID, ok := idParam(ctx)
	if !ok {
		return
	}
	var req CancelReasonRequest
	if err := bindOptionalJSON(ctx, &req); err != nil {
		badRequest(ctx, err)
		return
	}

	out, err := h.app.ReservationWorkflow.CancelSession(ctx.Request.Context(), sessionID, req.Reason)
	if err != nil {
		writeError(ctx, h.app.Logger, err)
		return
	}
	ctx.JSON(200, gin.H{
		"message":                "Session cancelled",
		"session":                out.Session,
		"cancelled_reservations": len(out.Cancelled),
	})
}

func (h *AdminHandler) HandleListReservations(ctx *gin.Context) {
	sessionID, ok := idParam(ctx)
	if !ok {
		return
	}

	reservations, err := h.app.SessionService.ListReservations(ctx.Request.Context(), sessionID)
	if err != nil {
		writeError(ctx, h.app.Logger, err)
		return
	}
	ctx.JSON(200, gin.H{
		"session_id":   sessionID,
		"reservations": reservations,
	})
}

func (h *AdminHandler) HandleCancelReservation(ctx *gin.Context) {
	reservationID, ok := idParam(ctx)
	if !ok {
		return
	}
	var req CancelReasonRequest
	if err := bindOptionalJSON(ctx, &req); err != nil {
		badRequest(ctx, err)
		return
	}

	reservation, err := h.app.ReservationWorkflow.CancelAsAdmin(ctx.Request.Context(), reservationID, req.Reason)
	if err != nil {
		writeError(ctx, h.app.Logger, err)
		return
	}
	ctx.JSON(200, gin.H{
		"message":     "Reservation cancelled",
		"reservation": reservation,
	})
}

// bindOptionalJSON accepts an empty body.
func bindOptionalJSON(ctx *gin.Context, dst any) error {
	if ctx.Request.ContentLength == 0 {
		return nil
	}
	return ctx.ShouldBindJSON(dst)
}
