package service

import (
	"context"
	"fmt"

	"github.com/xiaot623/tgrelay/internal/domain"
	store "github.com/xiaot623/tgrelay/internal/repository"
)

// UsersPage is one page of the user directory.
type UsersPage struct {
	Users    []domain.UserWithStatus `json:"users"`
	Total    int                     `json:"total"`
	Page     int                     `json:"page"`
	PageSize int                     `json:"page_size"`
}

func (s *Service) ListUsers(ctx context.Context, page, pageSize int) (*UsersPage, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 10
	}
	users, total, err := s.store.ListUsers(ctx, page, pageSize)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}

	out := make([]domain.UserWithStatus, 0, len(users))
	for _, u := range users {
		online, err := s.presence.IsOnline(ctx, u.ID)
		if err != nil {
			s.logger.Warn().Err(err).Int64("user_id", u.ID).Msg("presence lookup failed")
		}
		out = append(out, domain.UserWithStatus{User: u, IsOnline: online})
	}
	return &UsersPage{Users: out, Total: total, Page: page, PageSize: pageSize}, nil
}

// UserStatus returns profile and presence. It returns store.ErrNotFound for an
// unknown user.
func (s *Service) UserStatus(ctx context.Context, userID int64) (*domain.UserStatus, error) {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if user == nil {
		return nil, store.ErrNotFound
	}

	online, err := s.presence.IsOnline(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get presence: %w", err)
	}
	last, err := s.store.LastActivity(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get last activity: %w", err)
	}

	return &domain.UserStatus{
		UserID:       user.ID,
		FullName:     user.FullName,
		Username:     user.Username,
		PhotoURL:     user.PhotoURL,
		IsOnline:     online,
		LastActivity: last,
	}, nil
}

func (s *Service) SetLabel(ctx context.Context, userID int64, label string) error {
	if err := s.store.SetLabel(ctx, userID, label); err != nil {
		return fmt.Errorf("failed to set label: %w", err)
	}
	return nil
}

// ChannelInviteURL returns the public channel link.
func (s *Service) ChannelInviteURL() string {
	return s.config.ChannelURL
}
