// Package tests runs the repositories and the HTTP stack against a real
// Postgres. Everything here skips unless DATABASE_URL is set.
package tests

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"testing"

	"go.uber.org/zap"

	"github.com/kamdhenuseva/server/internal/db"
)

// OpenDB connects to DATABASE_URL, migrates it and empties every table.
// The test is skipped when DATABASE_URL is unset.
func OpenDB(t *testing.T) *sql.DB {
	t.Helper()
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("DATABASE_URL not set; skipping integration test")
	}

	ctx := context.Background()
	conn, err := db.Open(ctx, url, db.DefaultPool, zap.NewNop())
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	if err := db.Migrate(ctx, conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if err := TruncateAll(ctx, conn); err != nil {
		t.Fatal(err)
	}
	return conn
}

// TruncateAll empties all application tables for a clean test state.
func TruncateAll(ctx context.Context, conn *sql.DB) error {
	_, err := conn.ExecContext(ctx, "TRUNCATE TABLE puja_orders, donations, sessions, accounts RESTART IDENTITY CASCADE")
	if err != nil {
		return fmt.Errorf("truncate tables: %w", err)
	}
	return nil
}
