package v1

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	store "github.com/xiaot623/tgrelay/internal/repository"
)

type labelRequest struct {
	Label string `json:"label"`
}

// SetLabel sets the operator label of a user.
// POST /user/:user_id/label
func (h *Handler) SetLabel(c echo.Context) error {
	userID, err := userIDParam(c)
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid user_id")
	}
	var req labelRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid request body")
	}

	if err := h.service.SetLabel(c.Request().Context(), userID, req.Label); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return errorJSON(c, http.StatusNotFound, "user not found")
		}
		return errorJSON(c, http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"user_id": userID,
		"label":   req.Label,
	})
}

// GetUserStatus returns presence and last activity.
// GET /user-status/:user_id
func (h *Handler) GetUserStatus(c echo.Context) error {
	userID, err := userIDParam(c)
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid user_id")
	}

	status, err := h.service.UserStatus(c.Request().Context(), userID)
	if errors.Is(err, store.ErrNotFound) {
		return errorJSON(c, http.StatusNotFound, "user not found")
	}
	if err != nil {
		return errorJSON(c, http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, status)
}

// ListUsers returns one page of users with online flags.
// GET /dashboard-users?page=1&page_size=10
func (h *Handler) ListUsers(c echo.Context) error {
	page := 1
	if p := c.QueryParam("page"); p != "" {
		if val, err := strconv.Atoi(p); err == nil {
			page = val
		}
	}
	pageSize := 10
	if ps := c.QueryParam("page_size"); ps != "" {
		if val, err := strconv.Atoi(ps); err == nil {
			pageSize = val
		}
	}

	result, err := h.service.ListUsers(c.Request().Context(), page, pageSize)
	if err != nil {
		return errorJSON(c, http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, result)
}

// GetStats returns dashboard counters.
// GET /dashboard-stats
func (h *Handler) GetStats(c echo.Context) error {
	stats, err := h.service.DashboardStats(c.Request().Context())
	if err != nil {
		return errorJSON(c, http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, stats)
}

// GetChannelInviteLink returns the public channel URL.
// GET /get_channel_invite_link
func (h *Handler) GetChannelInviteLink(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"invite_link": h.service.ChannelInviteURL()})
}
