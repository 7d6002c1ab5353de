package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/xiaot623/tgrelay/internal/adapter/telegram"
	"github.com/xiaot623/tgrelay/internal/classify"
	"github.com/xiaot623/tgrelay/internal/config"
	"github.com/xiaot623/tgrelay/internal/hub"
	"github.com/xiaot623/tgrelay/internal/inbound"
	"github.com/xiaot623/tgrelay/internal/logging"
	"github.com/xiaot623/tgrelay/internal/membership"
	"github.com/xiaot623/tgrelay/internal/messenger"
	"github.com/xiaot623/tgrelay/internal/notify"
	"github.com/xiaot623/tgrelay/internal/policy"
	"github.com/xiaot623/tgrelay/internal/presence"
	"github.com/xiaot623/tgrelay/internal/relay"
	store "github.com/xiaot623/tgrelay/internal/repository"
	"github.com/xiaot623/tgrelay/internal/service"
	"github.com/xiaot623/tgrelay/internal/tempstore"
	httpserver "github.com/xiaot623/tgrelay/internal/transport/http"
	v1 "github.com/xiaot623/tgrelay/internal/transport/http/v1"
	"github.com/xiaot623/tgrelay/internal/transport/ws"
)

func newServeCommand(load func() (*config.Config, error)) *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the bot and the admin API",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			if port > 0 {
				cfg.HTTPPort = port
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return serve(cfg)
		},
	}
	cmd.Flags().IntVarP(&port, "port", "p", 0, "Override HTTP_PORT")
	return cmd
}

func serve(cfg *config.Config) error {
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	logger.Info().
		Int("http_port", cfg.HTTPPort).
		Int64("channel_id", cfg.ChannelID).
		Str("version", version).
		Msg("starting relay")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize store
	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	defer db.Close()

	// Temp storage and its janitor
	temp, err := tempstore.New(cfg.TempDir)
	if err != nil {
		return err
	}
	janitor := tempstore.NewJanitor(temp, cfg.JanitorSchedule, cfg.JanitorMaxAge, logger)
	if !janitor.Validate() {
		return fmt.Errorf("invalid JANITOR_SCHEDULE %q", cfg.JanitorSchedule)
	}
	go janitor.Run(ctx)

	// Initialize policy engine
	policyEngine, err := policy.NewEngine(ctx, policy.DefaultPolicy)
	if err != nil {
		return fmt.Errorf("failed to initialize policy engine: %w", err)
	}

	classifier := classify.New(classify.WithLogger(logger))

	bot, err := telegram.NewClient(cfg.BotToken, cfg.PollTimeout, logger)
	if err != nil {
		return fmt.Errorf("failed to create telegram client: %w", err)
	}

	tracker, closeTracker, err := newTracker(ctx, cfg, db)
	if err != nil {
		return err
	}
	defer closeTracker()

	// Notification fan-out
	h := hub.NewHub(logger)
	go h.Run(ctx)
	sink := notify.Multi{h}
	if cfg.AMQPURL != "" {
		amqpSink, err := notify.DialAMQP(cfg.AMQPURL, cfg.AMQPExchange, logger)
		if err != nil {
			return fmt.Errorf("failed to connect to AMQP: %w", err)
		}
		defer amqpSink.Close()
		sink = append(sink, amqpSink)
	}

	members := membership.New(bot, db, membership.Config{
		ChannelID:   cfg.ChannelID,
		WelcomeText: cfg.WelcomeText,
	}, logger)
	if !members.Enabled() {
		logger.Warn().Msg("CHANNEL_ID not set, channel onboarding disabled")
	}
	events := inbound.New(bot, db, sink, tracker, classifier, members, logger)

	loop := messenger.NewLoop(bot,
		messenger.WithSource(bot),
		messenger.WithHandler(events),
		messenger.WithQueueSize(cfg.QueueSize),
		messenger.WithJobTimeout(cfg.LoopJobTimeout),
		messenger.WithLogger(logger),
	)
	if err := loop.Start(ctx); err != nil {
		return err
	}
	defer loop.Stop()

	bridge := relay.NewBridge(loop, db, sink, temp, classifier, policyEngine, relay.Config{
		SendTimeout:        cfg.SendTimeout,
		SingleMediaTimeout: cfg.SingleMediaTimeout,
		GroupSendTimeout:   cfg.GroupSendTimeout,
		LocatorTimeout:     cfg.LocatorTimeout,
		Limits:             policy.Limits{ImageBytes: cfg.MaxImageBytes, FileBytes: cfg.MaxFileBytes},
	}, logger)

	svc := service.New(db, tracker, service.Config{
		ActiveWindow: cfg.ActiveWindow,
		ChannelURL:   cfg.ChannelURL,
	}, logger)

	wsServer := ws.NewServer(ws.Config{
		AllowedOrigins: cfg.AllowedOrigins,
		PingInterval:   cfg.PingInterval,
		WriteTimeout:   cfg.WriteTimeout,
		ReadTimeout:    cfg.ReadTimeout,
		MaxMessageSize: cfg.MaxMessageSize,
	}, h, logger)

	e := httpserver.NewServer(httpserver.Config{
		AllowedOrigins:    cfg.AllowedOrigins,
		DashboardPassword: cfg.DashboardPassword,
	}, v1.NewHandler(svc, bridge, version), wsServer, logger)

	errCh := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.HTTPPort)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	logger.Info().Int("port", cfg.HTTPPort).Msg("admin API started")

	var runErr error
	select {
	case <-ctx.Done():
	case <-loop.Stopped():
		runErr = errors.New("messenger loop exited")
	case err := <-errCh:
		runErr = fmt.Errorf("http server: %w", err)
	}

	logger.Info().Msg("shutting down relay")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown HTTP server gracefully")
	}

	logger.Info().Msg("relay stopped")
	return runErr
}

// newTracker prefers Redis presence when REDIS_URL is set.
func newTracker(ctx context.Context, cfg *config.Config, db store.Store) (presence.Tracker, func(), error) {
	if cfg.RedisURL == "" {
		return presence.NewStoreTracker(db, cfg.OnlineWindow), func() {}, nil
	}
	tracker, err := presence.NewRedisTracker(ctx, cfg.RedisURL, cfg.OnlineWindow)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return tracker, func() { _ = tracker.Close() }, nil
}

func newLogger(cfg *config.Config) zerolog.Logger {
	return logging.NewWithWriter(os.Stderr, cfg.LogLevel, "console")
}
