package database

import (
	"context"
	"os"
	"sync"
	"testing"
)

var (
	testEngine     *Engine
	testEngineOnce sync.Once
	testEngineErr  error
)

// TestSharedEngine returns an engine shared by all tests in the process.
// Skips the test if TEST_DATABASE_URL is not set.
func TestSharedEngine(t *testing.T) *Engine {
	t.Helper()

	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping integration test")
	}

	testEngineOnce.Do(func() {
		testEngine, testEngineErr = Connect(context.Background(), dbURL)
	})

	if testEngineErr != nil {
		t.Fatalf("failed to setup test database: %v", testEngineErr)
	}

	return testEngine
}

// TestSession returns a session on the shared engine that is rolled back and
// closed when the test completes, so tests never leave data behind.
//
// Usage:
//
//	s := database.TestSession(t)
//	_, err := s.Exec(ctx, "INSERT INTO ...")
//	// rolled back after the test
func TestSession(t *testing.T) *Session {
	t.Helper()

	s := NewSessionFactory(TestSharedEngine(t)).New()

	t.Cleanup(func() {
		_ = s.Close(context.Background())
	})

	return s
}
