// Package http provides the HTTP server of the relay.
package http

import (
	"crypto/subtle"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	v1 "github.com/xiaot623/tgrelay/internal/transport/http/v1"
	"github.com/xiaot623/tgrelay/internal/transport/ws"
)

// Config holds the HTTP middleware settings.
type Config struct {
	AllowedOrigins    []string
	DashboardPassword string
}

// NewServer creates and configures the admin HTTP server. Both the REST routes
// and the WebSocket feed sit behind the same auth.
func NewServer(cfg Config, handler *v1.Handler, wsServer *ws.Server, logger zerolog.Logger) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(requestLogger(logger))
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: cfg.AllowedOrigins,
	}))
	if cfg.DashboardPassword != "" {
		e.Use(keyAuth(cfg.DashboardPassword))
	}

	// Register Routes
	handler.RegisterRoutes(e)
	e.GET("/ws", wsServer.HandleWebSocket)

	return e
}

func keyAuth(password string) echo.MiddlewareFunc {
	return middleware.KeyAuthWithConfig(middleware.KeyAuthConfig{
		KeyLookup:  "header:Authorization,query:token",
		AuthScheme: "Bearer",
		Skipper: func(c echo.Context) bool {
			return c.Path() == "/health" || c.Request().Method == "OPTIONS"
		},
		Validator: func(key string, c echo.Context) (bool, error) {
			return subtle.ConstantTimeCompare([]byte(key), []byte(password)) == 1, nil
		},
	})
}

func requestLogger(logger zerolog.Logger) echo.MiddlewareFunc {
	log := logger.With().Str("component", "http").Logger()
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:   true,
		LogURI:      true,
		LogMethod:   true,
		LogLatency:  true,
		LogRemoteIP: true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			evt := log.Info()
			if v.Error != nil || v.Status >= 500 {
				evt = log.Error().Err(v.Error)
			}
			uri := v.URI
			if i := strings.Index(uri, "token="); i >= 0 {
				uri = uri[:i] + "token=REDACTED"
			}
			evt.Str("method", v.Method).
				Str("uri", uri).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("remote_ip", v.RemoteIP).
				Msg("request")
			return nil
		},
	})
}
