package service

import (
	"context"
	"fmt"

	"github.com/xiaot623/tgrelay/internal/domain"
)

// ChatMessages returns the latest messages of a conversation, oldest first.
func (s *Service) ChatMessages(ctx context.Context, userID int64) ([]domain.Message, error) {
	messages, err := s.store.ListRecent(ctx, userID, ChatHistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to get messages: %w", err)
	}
	if messages == nil {
		messages = []domain.Message{}
	}
	return messages, nil
}
