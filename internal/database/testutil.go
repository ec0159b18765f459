package database

import (
	"context"
	"os"
	"testing"
)

// TestEngine returns a connected engine for testing, closed on cleanup.
// Skips the test if TEST_DATABASE_URL is not set.
func TestEngine(t *testing.T) *Engine {
	t.Helper()

	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping integration test")
	}

	ctx := context.Background()
	engine, err := Connect(ctx, dbURL)
	if err != nil {
		t.Fatalf("failed to connect to test database: %v", err)
	}

	t.Cleanup(func() {
		engine.Close()
	})

	return engine
}

// CreateScratchTable creates a table for the test and drops it on cleanup.
// It is a regular table, not TEMP, so other connections can see it.
func CreateScratchTable(t *testing.T, engine *Engine, name string) {
	t.Helper()

	ctx := context.Background()
	_, err := engine.Pool().Exec(ctx, "CREATE TABLE IF NOT EXISTS "+name+" (id SERIAL PRIMARY KEY, note TEXT NOT NULL)")
	if err != nil {
		t.Fatalf("failed to create table %s: %v", name, err)
	}

	t.Cleanup(func() {
		_, _ = engine.Pool().Exec(context.Background(), "DROP TABLE IF EXISTS "+name)
	})
}
