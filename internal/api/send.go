package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/dekoor/whatsapp-crm-backend/internal/models"
	"github.com/dekoor/whatsapp-crm-backend/internal/store"
)

// MessageSender sends outbound messages through the provider and returns the
// assigned wamid.
type MessageSender interface {
	SendText(ctx context.Context, to, body string) (string, error)
	SendMedia(ctx context.Context, to, fileURL, fileType string) (string, error)
}

// MessageNotifier pushes outbound messages to inbox clients.
type MessageNotifier interface {
	NotifyMessage(msg models.Message)
}

type SendHandler struct {
	store    store.ContactStore
	sender   MessageSender
	notifier MessageNotifier
	window   time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

func NewSendHandler(st store.ContactStore, sender MessageSender, notifier MessageNotifier, window time.Duration, logger *slog.Logger) *SendHandler {
	return &SendHandler{
		store:    st,
		sender:   sender,
		notifier: notifier,
		window:   window,
		logger:   logger.With("component", "api"),
		now:      time.Now,
	}
}

type SendRequest struct {
	Text     string `json:"text"`
	FileURL  string `json:"fileUrl"`
	FileType string `json:"fileType"`
}

// Send delivers a free-form message inside the provider's session window.
// Platform policy: the contact must have written first, and the last inbound
// message must be younger than the window.
func (h *SendHandler) Send(c *gin.Context) {
	waID := c.Param("waId")

	var req SendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	if (req.Text == "") == (req.FileURL == "") {
		respondError(c, http.StatusBadRequest, "exactly one of text or fileUrl is required")
		return
	}
	if req.FileURL != "" && req.FileType != "image" && req.FileType != "document" {
		respondError(c, http.StatusBadRequest, "fileType must be image or document")
		return
	}

	ctx := c.Request.Context()
	lastReceived, err := h.store.LastReceivedAt(ctx, waID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			respondError(c, http.StatusForbidden, "contact has not started a conversation")
			return
		}
		h.logger.Error("session window check failed", "error", err, "wa_id", waID)
		respondError(c, http.StatusInternalServerError, "failed to check messaging window")
		return
	}
	if h.now().Sub(lastReceived) > h.window {
		respondError(c, http.StatusForbidden, "messaging window expired")
		return
	}

	var wamid string
	if req.Text != "" {
		wamid, err = h.sender.SendText(ctx, waID, req.Text)
	} else {
		wamid, err = h.sender.SendMedia(ctx, waID, req.FileURL, req.FileType)
	}
	if err != nil {
		h.logger.Error("send failed", "error", err, "wa_id", waID)
		respondError(c, http.StatusInternalServerError, "failed to send message")
		return
	}

	record := models.Message{
		ID:        uuid.NewString(),
		WaID:      waID,
		Text:      req.Text,
		FileURL:   req.FileURL,
		FileType:  req.FileType,
		Direction: models.DirectionOutbound,
		Status:    models.StatusSent,
		Wamid:     wamid,
		Timestamp: h.now().UTC(),
	}
	if err := h.store.AppendMessage(ctx, &record); err != nil {
		// The provider accepted the message; later status updates for
		// this wamid will be no-ops.
		h.logger.Error("outbound message persist failed", "error", err, "wamid", wamid)
	}
	if h.notifier != nil {
		h.notifier.NotifyMessage(record)
	}

	respondOK(c, gin.H{"wamid": wamid})
}
