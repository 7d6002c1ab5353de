// Package store persists conversations and the user directory.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/xiaot623/tgrelay/internal/domain"
)

// ErrNotFound is returned when an update targets a missing row.
var ErrNotFound = errors.New("not found")

// Store defines the persistence operations used by the relay.
type Store interface {
	// Messages
	AppendMessage(ctx context.Context, conversationID int64, role domain.Role, body domain.Body, at time.Time) (*domain.Message, error)
	ListRecent(ctx context.Context, conversationID int64, limit int) ([]domain.Message, error)
	CountMessages(ctx context.Context) (int, error)
	CountDistinctSendersSince(ctx context.Context, since time.Time) (int, error)
	ExistsRecentActivity(ctx context.Context, conversationID int64, since time.Time) (bool, error)
	LastActivity(ctx context.Context, conversationID int64) (*time.Time, error)

	// Users
	UpsertUser(ctx context.Context, user *domain.User) (bool, error)
	GetUser(ctx context.Context, userID int64) (*domain.User, error)
	ListUsers(ctx context.Context, page, pageSize int) ([]domain.User, int, error)
	ListUserIDs(ctx context.Context) ([]int64, error)
	CountUsers(ctx context.Context) (int, error)
	CountUsersCreatedOn(ctx context.Context, day time.Time) (int, error)
	SetInviteLink(ctx context.Context, userID int64, link string) (bool, error)
	SetLabel(ctx context.Context, userID int64, label string) error

	Close() error
}

// dayBounds returns the unix second range [start, end) of the local calendar day containing t.
func dayBounds(t time.Time) (int64, int64) {
	y, m, d := t.Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, t.Location())
	return start.Unix(), start.AddDate(0, 0, 1).Unix()
}

// offset converts a 1-based page into a row offset.
func offset(page, pageSize int) int {
	if page < 1 {
		page = 1
	}
	return (page - 1) * pageSize
}
