package config

import (
	"strings"
	"testing"
)

func envOf(vars map[string]string) func(string) string {
	return func(key string) string { return vars[key] }
}

func TestFromEnv_Defaults(t *testing.T) {
	cfg, err := FromEnv(envOf(map[string]string{"DATABASE_DSN": "sqlite:booking.db"}))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Addr != ":4000" || cfg.AppEnv != "development" || cfg.ReserveRate != 120 {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.GuardBackend != GuardMemory || cfg.EntitlementMode != EntitlementSubscription {
		t.Fatalf("unexpected backends %+v", cfg)
	}
	if cfg.Location.String() != "UTC" {
		t.Fatalf("expected UTC, got %s", cfg.Location)
	}
	if cfg.IsProduction() {
		t.Fatal("development expected")
	}
}

func TestFromEnv_Overrides(t *testing.T) {
	cfg, err := FromEnv(envOf(map[string]string{
		"APP_ENV":              "production",
		"DATABASE_DSN":         "host=db user=app",
		"CACHE_URL":            "localhost:6379",
		"GUARD_BACKEND":        "redis",
		"ENTITLEMENT_MODE":     "allow-all",
		"TIME_ZONE":            "Europe/Berlin",
		"RESERVE_RATE_PER_MIN": "30",
	}))
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.IsProduction() || cfg.GuardBackend != GuardRedis || cfg.ReserveRate != 30 {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if cfg.Location.String() != "Europe/Berlin" {
		t.Fatalf("unexpected location %s", cfg.Location)
	}
}

func TestFromEnv_CollectsAllProblems(t *testing.T) {
	_, err := FromEnv(envOf(map[string]string{
		"APP_ENV":              "staging",
		"GUARD_BACKEND":        "redis",
		"ENTITLEMENT_MODE":     "maybe",
		"TIME_ZONE":            "Mars/Olympus",
		"RESERVE_RATE_PER_MIN": "-1",
	}))
	if err == nil {
		t.Fatal("expected an error")
	}
	for _, want := range []string{"DATABASE_DSN", "APP_ENV", "CACHE_URL", "ENTITLEMENT_MODE", "TIME_ZONE", "RESERVE_RATE_PER_MIN"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("expected error to mention %s, got %v", want, err)
		}
	}
}

func TestFromEnv_MemoryStore(t *testing.T) {
	cfg, err := FromEnv(envOf(map[string]string{"DATABASE_DSN": MemoryDSN}))
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.UsesMemoryStore() {
		t.Fatal("expected the in-memory store")
	}
}
