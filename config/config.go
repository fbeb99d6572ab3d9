package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
	_ "time/tzdata"

	"github.com/qs-lzh/training-booking/internal/util"
)

const (
	GuardMemory = "memory"
	GuardRedis  = "redis"

	EntitlementSubscription = "subscription"
	EntitlementAllowAll     = "allow-all"

	// MemoryDSN keeps everything in process memory. Nothing survives a restart.
	MemoryDSN = "memory"
)

type Config struct {
	AppEnv      string
	Addr        string
	DatabaseDSN string
	CacheURL    string
	MQURL       string

	TimeZone        string
	Location        *time.Location
	GuardBackend    string
	EntitlementMode string
	ReserveRate     int // reserve requests per minute per client IP
}

func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

func (c *Config) UsesMemoryStore() bool {
	return c.DatabaseDSN == MemoryDSN
}

func LoadConfig() (*Config, error) {
	if err := util.LoadEnv(); err != nil {
		return nil, err
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds and validates a Config from getenv, reporting every
// problem at once.
func FromEnv(getenv func(string) string) (*Config, error) {
	cfg := &Config{
		AppEnv:          withDefault(getenv("APP_ENV"), "development"),
		Addr:            withDefault(getenv("ADDR"), ":4000"),
		DatabaseDSN:     getenv("DATABASE_DSN"),
		CacheURL:        getenv("CACHE_URL"),
		MQURL:           getenv("RABBIT_MQ_URL"),
		TimeZone:        withDefault(getenv("TIME_ZONE"), "UTC"),
		GuardBackend:    withDefault(getenv("GUARD_BACKEND"), GuardMemory),
		EntitlementMode: withDefault(getenv("ENTITLEMENT_MODE"), EntitlementSubscription),
		ReserveRate:     120,
	}

	var errs []error
	if cfg.DatabaseDSN == "" {
		errs = append(errs, errors.New("DATABASE_DSN is required"))
	}
	if cfg.AppEnv != "development" && cfg.AppEnv != "production" {
		errs = append(errs, fmt.Errorf("APP_ENV must be development or production, got %q", cfg.AppEnv))
	}

	loc, err := time.LoadLocation(cfg.TimeZone)
	if err != nil {
		errs = append(errs, fmt.Errorf("TIME_ZONE: %w", err))
	}
	cfg.Location = loc

	switch cfg.GuardBackend {
	case GuardMemory:
	case GuardRedis:
		if cfg.CacheURL == "" {
			errs = append(errs, errors.New("CACHE_URL is required when GUARD_BACKEND=redis"))
		}
	default:
		errs = append(errs, fmt.Errorf("GUARD_BACKEND must be %s or %s, got %q", GuardMemory, GuardRedis, cfg.GuardBackend))
	}

	if cfg.EntitlementMode != EntitlementSubscription && cfg.EntitlementMode != EntitlementAllowAll {
		errs = append(errs, fmt.Errorf("ENTITLEMENT_MODE must be %s or %s, got %q", EntitlementSubscription, EntitlementAllowAll, cfg.EntitlementMode))
	}

	if raw := getenv("RESERVE_RATE_PER_MIN"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			errs = append(errs, fmt.Errorf("RESERVE_RATE_PER_MIN must be a positive integer, got %q", raw))
		} else {
			cfg.ReserveRate = n
		}
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return cfg, nil
}

func withDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
