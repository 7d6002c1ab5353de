package service

import (
	"context"
	"fmt"

	"github.com/xiaot623/tgrelay/internal/domain"
)

func (s *Service) DashboardStats(ctx context.Context) (*domain.DashboardStats, error) {
	now := s.now()

	total, err := s.store.CountUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count users: %w", err)
	}
	active, err := s.store.CountDistinctSendersSince(ctx, now.Add(-s.config.ActiveWindow))
	if err != nil {
		return nil, fmt.Errorf("failed to count active users: %w", err)
	}
	messages, err := s.store.CountMessages(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count messages: %w", err)
	}
	joins, err := s.store.CountUsersCreatedOn(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("failed to count new joins: %w", err)
	}

	return &domain.DashboardStats{
		TotalUsers:    total,
		ActiveUsers:   active,
		TotalMessages: messages,
		NewJoinsToday: joins,
	}, nil
}
