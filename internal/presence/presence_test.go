package presence

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xiaot623/tgrelay/internal/domain"
	"github.com/xiaot623/tgrelay/internal/testutil"
)

func TestStoreTracker(t *testing.T) {
	ctx := context.Background()
	s := testutil.NewTestSQLiteStore(t)
	now := time.Now()

	_, err := s.AppendMessage(ctx, 1, domain.RoleUser, domain.Text("hi"), now.Add(-2*time.Minute))
	require.NoError(t, err)
	_, err = s.AppendMessage(ctx, 2, domain.RoleUser, domain.Text("hi"), now.Add(-10*time.Minute))
	require.NoError(t, err)
	_, err = s.AppendMessage(ctx, 3, domain.RoleAdmin, domain.Text("hi"), now)
	require.NoError(t, err)

	tracker := NewStoreTracker(s, 5*time.Minute)
	for id, want := range map[int64]bool{1: true, 2: false, 3: false} {
		online, err := tracker.IsOnline(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, want, online, "user %d", id)
	}
}

func TestRedisTracker(t *testing.T) {
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set")
	}
	ctx := context.Background()
	tracker, err := NewRedisTracker(ctx, url, time.Second)
	require.NoError(t, err)
	defer tracker.Close()

	id := time.Now().UnixNano()
	online, err := tracker.IsOnline(ctx, id)
	require.NoError(t, err)
	assert.False(t, online)

	require.NoError(t, tracker.Touch(ctx, id))
	online, err = tracker.IsOnline(ctx, id)
	require.NoError(t, err)
	assert.True(t, online)

	require.Eventually(t, func() bool {
		online, err := tracker.IsOnline(ctx, id)
		return err == nil && !online
	}, 3*time.Second, 100*time.Millisecond)
}
