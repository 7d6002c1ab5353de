// Package config provides configuration for the relay service.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds the relay configuration.
type Config struct {
	// Server settings
	HTTPPort       int      `env:"HTTP_PORT" envDefault:"5001"`
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envDefault:"http://localhost:3000,http://127.0.0.1:3000" envSeparator:","`
	// DashboardPassword enables bearer auth on the admin API when set.
	DashboardPassword string `env:"DASHBOARD_PASSWORD"`

	// Database
	DatabaseURL string `env:"DATABASE_URL" envDefault:"file:relay.db?cache=shared&mode=rwc"`

	// Telegram
	BotToken       string        `env:"BOT_TOKEN"`
	ChannelID      int64         `env:"CHANNEL_ID"`
	ChannelURL     string        `env:"CHANNEL_URL"`
	WelcomeText    string        `env:"WELCOME_TEXT" envDefault:"🎉 Hi {mention}, you are now a member of {title}!"`
	PollTimeout    int           `env:"POLL_TIMEOUT_SECONDS" envDefault:"30"`
	QueueSize      int           `env:"LOOP_QUEUE_SIZE" envDefault:"256"`
	LoopJobTimeout time.Duration `env:"LOOP_JOB_TIMEOUT" envDefault:"5m"`

	// Timeouts
	SendTimeout        time.Duration `env:"SEND_TIMEOUT" envDefault:"30s"`
	SingleMediaTimeout time.Duration `env:"SINGLE_MEDIA_TIMEOUT" envDefault:"60s"`
	GroupSendTimeout   time.Duration `env:"GROUP_SEND_TIMEOUT" envDefault:"120s"`
	LocatorTimeout     time.Duration `env:"LOCATOR_TIMEOUT" envDefault:"30s"`

	// Upload limits
	MaxImageBytes int64 `env:"MAX_IMAGE_BYTES" envDefault:"20971520"`
	MaxFileBytes  int64 `env:"MAX_FILE_BYTES" envDefault:"52428800"`

	// Temp storage
	TempDir         string        `env:"TEMP_DIR"`
	JanitorSchedule string        `env:"JANITOR_SCHEDULE" envDefault:"*/10 * * * *"`
	JanitorMaxAge   time.Duration `env:"JANITOR_MAX_AGE" envDefault:"1h"`

	// Presence and dashboard windows
	OnlineWindow time.Duration `env:"ONLINE_WINDOW" envDefault:"5m"`
	ActiveWindow time.Duration `env:"ACTIVE_WINDOW" envDefault:"60m"`

	// Optional infrastructure
	RedisURL     string `env:"REDIS_URL"`
	AMQPURL      string `env:"AMQP_URL"`
	AMQPExchange string `env:"AMQP_EXCHANGE" envDefault:"relay.events"`

	// WebSocket settings
	PingInterval   time.Duration `env:"WS_PING_INTERVAL" envDefault:"30s"`
	WriteTimeout   time.Duration `env:"WS_WRITE_TIMEOUT" envDefault:"10s"`
	ReadTimeout    time.Duration `env:"WS_READ_TIMEOUT" envDefault:"60s"`
	MaxMessageSize int64         `env:"WS_MAX_MESSAGE_SIZE" envDefault:"65536"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`
}

// Load reads an optional .env file and then the process environment.
func Load(files ...string) (*Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load env file: %w", err)
	}
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// Validate checks what the serve command needs.
func (c *Config) Validate() error {
	var errs []error
	if c.BotToken == "" {
		errs = append(errs, errors.New("BOT_TOKEN is required"))
	}
	if c.HTTPPort <= 0 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d", c.HTTPPort))
	}
	if c.MaxImageBytes <= 0 || c.MaxFileBytes <= 0 {
		errs = append(errs, errors.New("upload limits must be positive"))
	}
	for name, d := range map[string]time.Duration{
		"SEND_TIMEOUT":         c.SendTimeout,
		"SINGLE_MEDIA_TIMEOUT": c.SingleMediaTimeout,
		"GROUP_SEND_TIMEOUT":   c.GroupSendTimeout,
		"LOCATOR_TIMEOUT":      c.LocatorTimeout,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive", name))
		}
	}
	return errors.Join(errs...)
}
