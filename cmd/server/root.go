package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/qs-lzh/training-booking/config"
	"github.com/qs-lzh/training-booking/internal/database"
	"github.com/qs-lzh/training-booking/internal/util"
)

var rootCmd = &cobra.Command{
	Use:   "training-booking",
	Short: "Reservation service for training sessions",
	Long: `training-booking owns the reservation of fixed-capacity training sessions.
It serves the booking and admin HTTP APIs and manages the database schema.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(subscriptionCmd)
}

// bootstrap loads the config and builds the logger every command needs.
func bootstrap() (*config.Config, *zap.Logger, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, err
	}
	logger, err := util.NewLogger(cfg.AppEnv)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

// openDB returns nil for the in-memory store.
func openDB(cfg *config.Config, logger *zap.Logger) (*gorm.DB, error) {
	if cfg.UsesMemoryStore() {
		logger.Warn("using the in-memory store, data is lost on exit")
		return nil, nil
	}
	db, err := database.Open(cfg.DatabaseDSN, logger)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}
