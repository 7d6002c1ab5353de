// Package testutil holds shared test fixtures.
package testutil

import (
	"context"
	"testing"

	"github.com/xiaot623/tgrelay/internal/messenger"
	store "github.com/xiaot623/tgrelay/internal/repository"
)

func NewTestSQLiteStore(t *testing.T) *store.SQLiteStore {
	t.Helper()

	s, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create sqlite store: %v", err)
	}

	t.Cleanup(func() {
		_ = s.Close()
	})

	return s
}

// StartLoop runs a loop over platform for the duration of the test.
func StartLoop(t *testing.T, platform messenger.Platform, opts ...messenger.LoopOption) *messenger.Loop {
	t.Helper()

	loop := messenger.NewLoop(platform, opts...)
	if err := loop.Start(context.Background()); err != nil {
		t.Fatalf("failed to start loop: %v", err)
	}
	t.Cleanup(loop.Stop)

	return loop
}
