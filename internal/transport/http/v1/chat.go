package v1

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/xiaot623/tgrelay/internal/domain"
	"github.com/xiaot623/tgrelay/internal/relay"
)

// SendChat sends text and/or files to one user.
// POST /chat/:user_id (multipart: message, files)
func (h *Handler) SendChat(c echo.Context) error {
	userID, err := userIDParam(c)
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid user_id")
	}

	message := c.FormValue("message")
	var attachments []domain.Attachment
	form, err := c.MultipartForm()
	if err != nil && !errors.Is(err, http.ErrNotMultipart) {
		return errorJSON(c, http.StatusBadRequest, "invalid multipart form")
	}
	if form != nil {
		for _, fh := range form.File["files"] {
			attachments = append(attachments, attachmentFrom(fh))
		}
	}

	result := h.relay.SendBatch(c.Request().Context(), userID, message, attachments)
	return c.JSON(statusFor(result), result)
}

func attachmentFrom(fh *multipart.FileHeader) domain.Attachment {
	return domain.Attachment{
		Name:     fh.Filename,
		MimeType: fh.Header.Get("Content-Type"),
		Size:     fh.Size,
		Open: func() (io.ReadCloser, error) {
			return fh.Open()
		},
	}
}

// GetChatMessages returns the conversation history.
// GET /chat/:user_id/messages
func (h *Handler) GetChatMessages(c echo.Context) error {
	userID, err := userIDParam(c)
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid user_id")
	}

	messages, err := h.service.ChatMessages(c.Request().Context(), userID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, messages)
}

type sendOneRequest struct {
	UserID  int64  `json:"user_id" form:"user_id"`
	Message string `json:"message" form:"message"`
}

// SendOne sends a text message to one user.
// POST /send_one
func (h *Handler) SendOne(c echo.Context) error {
	var req sendOneRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid request body")
	}
	if req.UserID == 0 || strings.TrimSpace(req.Message) == "" {
		return errorJSON(c, http.StatusBadRequest, "Missing user_id or message")
	}

	result := h.relay.SendText(c.Request().Context(), req.UserID, req.Message)
	return c.JSON(statusFor(result), result)
}

type sendAllRequest struct {
	Message string `json:"message" form:"message"`
}

// SendAll broadcasts a text message to every user.
// POST /send_all
func (h *Handler) SendAll(c echo.Context) error {
	var req sendAllRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid request body")
	}

	report, err := h.relay.Broadcast(c.Request().Context(), req.Message)
	if errors.Is(err, relay.ErrValidation) {
		return errorJSON(c, http.StatusBadRequest, "Missing message")
	}
	if err != nil {
		return errorJSON(c, http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"status": "ok",
		"count":  report.Submitted,
		"total":  report.Total,
		"failed": report.Failed,
	})
}
