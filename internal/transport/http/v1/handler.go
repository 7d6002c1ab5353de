// Package v1 provides the admin HTTP handlers.
package v1

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/tgrelay/internal/domain"
	"github.com/xiaot623/tgrelay/internal/relay"
	"github.com/xiaot623/tgrelay/internal/service"
)

// Handler handles HTTP requests.
type Handler struct {
	service *service.Service
	relay   *relay.Bridge
	version string
}

// NewHandler creates a new handler.
func NewHandler(service *service.Service, bridge *relay.Bridge, version string) *Handler {
	return &Handler{
		service: service,
		relay:   bridge,
		version: version,
	}
}

// RegisterRoutes registers the admin routes with the echo server.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	// Conversations
	e.POST("/chat/:user_id", h.SendChat)
	e.GET("/chat/:user_id/messages", h.GetChatMessages)
	e.POST("/send_one", h.SendOne)
	e.POST("/send_all", h.SendAll)

	// Users
	e.POST("/user/:user_id/label", h.SetLabel)
	e.GET("/user-status/:user_id", h.GetUserStatus)
	e.GET("/dashboard-users", h.ListUsers)

	// Dashboard
	e.GET("/dashboard-stats", h.GetStats)
	e.GET("/get_channel_invite_link", h.GetChannelInviteLink)

	e.GET("/health", h.Health)
}

// Health returns health status.
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": h.version,
	})
}

// statusFor maps a relay result to an HTTP status code.
func statusFor(r domain.Result) int {
	if r.OK() {
		return http.StatusOK
	}
	if r.Failure == domain.FailureValidation {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func errorJSON(c echo.Context, code int, message string) error {
	return c.JSON(code, map[string]string{"status": string(domain.StatusError), "message": message})
}

func userIDParam(c echo.Context) (int64, error) {
	return strconv.ParseInt(c.Param("user_id"), 10, 64)
}
