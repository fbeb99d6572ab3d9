package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
)

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestSubscriptionGrantThenList(t *testing.T) {
	t.Setenv("DATABASE_DSN", "sqlite:"+filepath.Join(t.TempDir(), "booking.db"))
	t.Setenv("APP_ENV", "development")

	out, err := runCommand(t, "subscription", "list", "--holder", "4")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(out, "Holder 4 has no subscriptions") {
		t.Fatalf("unexpected output %q", out)
	}

	out, err = runCommand(t, "subscription", "grant", "--holder", "4", "--days", "14")
	if err != nil {
		t.Fatalf("grant: %v", err)
	}
	if !strings.Contains(out, "Granted subscription #1 to holder 4") {
		t.Fatalf("unexpected output %q", out)
	}

	out, err = runCommand(t, "subscription", "list", "--holder", "4")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(out, "#1") || !strings.Contains(out, "active") {
		t.Fatalf("expected the granted subscription to be listed as active, got %q", out)
	}
}

func TestSubscriptionListRejectsMemoryStore(t *testing.T) {
	t.Setenv("DATABASE_DSN", "memory")
	t.Setenv("APP_ENV", "development")

	if _, err := runCommand(t, "subscription", "list", "--holder", "4"); err == nil {
		t.Fatal("expected an error for the in-memory store")
	}
}
