// Package presence answers whether an end-user is currently online.
package presence

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	store "github.com/xiaot623/tgrelay/internal/repository"
)

// DefaultWindow is how long a user counts as online after their last message.
const DefaultWindow = 5 * time.Minute

// Tracker records user activity and reports online status.
type Tracker interface {
	Touch(ctx context.Context, userID int64) error
	IsOnline(ctx context.Context, userID int64) (bool, error)
}

// StoreTracker derives presence from persisted user messages. Touch is a no-op
// because the message itself is the activity record.
type StoreTracker struct {
	store  store.Store
	window time.Duration
	now    func() time.Time
}

// NewStoreTracker creates a tracker backed by the message store.
func NewStoreTracker(s store.Store, window time.Duration) *StoreTracker {
	if window <= 0 {
		window = DefaultWindow
	}
	return &StoreTracker{store: s, window: window, now: time.Now}
}

func (t *StoreTracker) Touch(context.Context, int64) error { return nil }

func (t *StoreTracker) IsOnline(ctx context.Context, userID int64) (bool, error) {
	ok, err := t.store.ExistsRecentActivity(ctx, userID, t.now().Add(-t.window))
	if err != nil {
		return false, fmt.Errorf("failed to check activity: %w", err)
	}
	return ok, nil
}

// RedisTracker keeps one expiring key per active user.
type RedisTracker struct {
	client *redis.Client
	window time.Duration
	prefix string
}

// NewRedisTracker connects to url (redis://...) and pings it.
func NewRedisTracker(ctx context.Context, url string, window time.Duration) (*RedisTracker, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return NewRedisTrackerWithClient(client, window), nil
}

// NewRedisTrackerWithClient wraps an existing client.
func NewRedisTrackerWithClient(client *redis.Client, window time.Duration) *RedisTracker {
	if window <= 0 {
		window = DefaultWindow
	}
	return &RedisTracker{client: client, window: window, prefix: "presence:"}
}

func (t *RedisTracker) key(userID int64) string {
	return t.prefix + strconv.FormatInt(userID, 10)
}

func (t *RedisTracker) Touch(ctx context.Context, userID int64) error {
	if err := t.client.Set(ctx, t.key(userID), time.Now().Unix(), t.window).Err(); err != nil {
		return fmt.Errorf("failed to touch presence: %w", err)
	}
	return nil
}

func (t *RedisTracker) IsOnline(ctx context.Context, userID int64) (bool, error) {
	n, err := t.client.Exists(ctx, t.key(userID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to read presence: %w", err)
	}
	return n > 0, nil
}

// Close closes the redis client.
func (t *RedisTracker) Close() error {
	return t.client.Close()
}
