package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/qs-lzh/training-booking/internal/app"
	"github.com/qs-lzh/training-booking/internal/cache"
	"github.com/qs-lzh/training-booking/internal/handler"
	"github.com/qs-lzh/training-booking/internal/mq"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := bootstrap()
		if err != nil {
			return err
		}
		defer logger.Sync()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		db, err := openDB(cfg, logger)
		if err != nil {
			return err
		}

		var redisCache *cache.RedisCache
		if cfg.CacheURL != "" {
			redisCache, err = cache.NewRedisCache(cfg.CacheURL)
			if err != nil {
				return err
			}
			if err := redisCache.Ping(ctx); err != nil {
				return err
			}
			logger.Info("connected to redis", zap.String("guard_backend", cfg.GuardBackend))
		}

		var mqConn *amqp.Connection
		if cfg.MQURL != "" {
			mqConn, err = mq.NewMQConn(cfg.MQURL)
			if err != nil {
				return err
			}
			logger.Info("connected to rabbitmq")
		}

		a := app.New(cfg, db, redisCache, mqConn, logger)
		defer a.Close()
		if err := a.Init(ctx); err != nil {
			return err
		}

		srv := &http.Server{
			Addr:              cfg.Addr,
			Handler:           handler.NewRouter(a),
			ReadHeaderTimeout: 5 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			logger.Info("listening", zap.String("addr", cfg.Addr))
			errCh <- srv.ListenAndServe()
		}()

		select {
		case err := <-errCh:
			if !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		case <-ctx.Done():
		}

		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	},
}
