package domain

import (
	"strings"
	"time"
)

// Message is one persisted entry in a conversation.
type Message struct {
	ID             int64     `json:"id"`
	ConversationID int64     `json:"user_id"`
	Role           Role      `json:"sender"`
	Body           Body      `json:"message"`
	CreatedAt      time.Time `json:"timestamp"`
}

// User is an end-user known to the relay.
type User struct {
	ID         int64     `json:"user_id"`
	FullName   string    `json:"full_name"`
	Username   string    `json:"username"`
	JoinDate   time.Time `json:"join_date"`
	InviteLink string    `json:"invite_link,omitempty"`
	PhotoURL   string    `json:"photo_url,omitempty"`
	Label      string    `json:"label,omitempty"`
}

// Contact is the platform's view of a user as carried on an inbound event.
type Contact struct {
	ID        int64
	FirstName string
	LastName  string
	Username  string
}

// FullName joins first and last name.
func (c Contact) FullName() string {
	return strings.TrimSpace(c.FirstName + " " + c.LastName)
}

// UserSummary is the minimal user payload attached to notifications.
type UserSummary struct {
	UserID   int64  `json:"user_id"`
	FullName string `json:"full_name,omitempty"`
	Username string `json:"username,omitempty"`
}

// UserStatus describes a user's presence.
type UserStatus struct {
	UserID       int64      `json:"user_id"`
	FullName     string     `json:"full_name"`
	Username     string     `json:"username"`
	PhotoURL     string     `json:"photo_url,omitempty"`
	IsOnline     bool       `json:"is_online"`
	LastActivity *time.Time `json:"last_activity"`
}

// UserWithStatus is a directory entry with its online flag.
type UserWithStatus struct {
	User
	IsOnline bool `json:"is_online"`
}

// DashboardStats aggregates counters for the admin dashboard.
type DashboardStats struct {
	TotalUsers    int `json:"total_users"`
	ActiveUsers   int `json:"active_users"`
	TotalMessages int `json:"total_messages"`
	NewJoinsToday int `json:"new_joins_today"`
}
