package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/qs-lzh/training-booking/internal/app"
)

func NewRouter(app *app.App) *gin.Engine {
	if app.Config.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery(), RequestID(), RequestLogger(app.Logger))

	reserve := NewReserveHandler(app)
	admin := NewAdminHandler(app)
	limiter := NewIPRateLimiter(app.Config.ReserveRate, app.Logger)

	r.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(200, gin.H{"status": "ok"})
	})

	r.POST("/sessions/:id/reservations", limiter.Middleware(), reserve.HandleReserve)
	r.DELETE("/reservations/:id", limiter.Middleware(), reserve.HandleCancel)
	r.GET("/sessions/:id/capacity", reserve.HandleCapacity)
	r.GET("/schedule", reserve.HandleSchedule)
	r.GET("/holders/:id/reservations", reserve.HandleHolderReservations)

	adminGroup := r.Group("/admin")
	{
		adminGroup.POST("/sessions", admin.HandleCreateSession)
		adminGroup.GET("/sessions", admin.HandleListSessions)
		adminGroup.GET("/sessions/:id", admin.HandleGetSession)
		adminGroup.PATCH("/sessions/:id", admin.HandleUpdateSession)
		adminGroup.DELETE("/sessions/:id", admin.HandleDeleteSession)
		adminGroup.POST("/sessions/:id/cancel", admin.HandleCancelSession)
		adminGroup.GET("/sessions/:id/reservations", admin.HandleListReservations)
		adminGroup.POST("/reservations/:id/cancel", admin.HandleCancelReservation)
	}

	return r
}
