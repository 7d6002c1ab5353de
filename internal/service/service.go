// Package service answers the admin dashboard's queries.
package service

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/xiaot623/tgrelay/internal/presence"
	store "github.com/xiaot623/tgrelay/internal/repository"
)

// ChatHistoryLimit is how many messages a chat view loads.
const ChatHistoryLimit = 100

type Config struct {
	ActiveWindow time.Duration
	ChannelURL   string
}

type Service struct {
	store    store.Store
	presence presence.Tracker
	config   Config
	logger   zerolog.Logger
	now      func() time.Time
}

func New(st store.Store, tracker presence.Tracker, cfg Config, logger zerolog.Logger) *Service {
	if cfg.ActiveWindow <= 0 {
		cfg.ActiveWindow = time.Hour
	}
	return &Service{
		store:    st,
		presence: tracker,
		config:   cfg,
		logger:   logger.With().Str("component", "service").Logger(),
		now:      time.Now,
	}
}
