package handler

import (
	"errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/qs-lzh/training-booking/internal/service"
)

// writeError turns a service error into the response the booking and admin
// UIs expect.
func writeError(ctx *gin.Context, logger *zap.Logger, err error) {
	switch {
	case errors.Is(err, service.ErrSessionFull):
		ctx.JSON(409, gin.H{
			"error":   "Session full",
			"message": "Sorry, this session is fully booked",
		})
	case errors.Is(err, service.ErrAlreadyReserved):
		ctx.JSON(409, gin.H{
			"error":   "Already reserved",
			"message": "You already have a place in this session",
		})
	case errors.Is(err, service.ErrNotEntitled):
		ctx.JSON(402, gin.H{
			"error":    "Subscription required",
			"message":  "An active subscription is needed to book sessions",
			"redirect": "/subscriptions",
		})
	case errors.Is(err, service.ErrNotFound):
		ctx.JSON(404, gin.H{
			"error":   "Not found",
			"message": "The requested session or reservation does not exist",
		})
	case errors.Is(err, service.ErrForbidden):
		ctx.JSON(403, gin.H{
			"error":   "Forbidden",
			"message": "This reservation belongs to someone else",
		})
	case errors.Is(err, service.ErrSessionCancelled):
		ctx.JSON(409, gin.H{
			"error":   "Session cancelled",
			"message": "This session has been cancelled",
		})
	case errors.Is(err, service.ErrSessionEnded):
		ctx.JSON(410, gin.H{
			"error":   "Session ended",
			"message": "This session is already over",
		})
	case errors.Is(err, service.ErrInvalidSession):
		ctx.JSON(400, gin.H{
			"error":  "Invalid request",
			"detail": err.Error(),
		})
	case errors.Is(err, service.ErrStorage):
		logger.Error("storage failure",
			zap.String("request_id", ctx.GetString(requestIDKey)),
			zap.Error(err),
		)
		ctx.JSON(503, gin.H{
			"error":     "Service unavailable",
			"message":   "Please try again in a moment",
			"retryable": true,
		})
	default:
		logger.Error("unexpected error",
			zap.String("request_id", ctx.GetString(requestIDKey)),
			zap.Error(err),
		)
		ctx.JSON(500, gin.H{
			"error":   "Internal server error",
			"message": "Something went wrong, please try again later",
		})
	}
}

func badRequest(ctx *gin.Context, err error) {
	ctx.JSON(400, gin.H{
		"error":  "Invalid request format",
		"detail": err.Error(),
	})
}
