package api

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dekoor/whatsapp-crm-backend/internal/models"
	"github.com/dekoor/whatsapp-crm-backend/internal/store"
)

type ContactHandler struct {
	store  store.ContactStore
	logger *slog.Logger
}

func NewContactHandler(st store.ContactStore, logger *slog.Logger) *ContactHandler {
	return &ContactHandler{store: st, logger: logger.With("component", "api")}
}

// GetContacts lists contacts ordered by most recent activity.
func (h *ContactHandler) GetContacts(c *gin.Context) {
	contacts, err := h.store.ListContacts(c.Request.Context())
	if err != nil {
		h.logger.Error("list contacts failed", "error", err)
		respondError(c, http.StatusInternalServerError, "failed to list contacts")
		return
	}
	if contacts == nil {
		contacts = []models.Contact{}
	}
	c.JSON(http.StatusOK, contacts)
}

// GetMessages lists one contact's conversation oldest-first and clears the
// unread counter, matching inbox read semantics.
func (h *ContactHandler) GetMessages(c *gin.Context) {
	waID := c.Param("waId")

	messages, err := h.store.ListMessages(c.Request.Context(), waID)
	if err != nil {
		h.logger.Error("list messages failed", "error", err, "wa_id", waID)
		respondError(c, http.StatusInternalServerError, "failed to list messages")
		return
	}
	if messages == nil {
		messages = []models.Message{}
	}

	if err := h.store.ResetUnread(c.Request.Context(), waID); err != nil {
		h.logger.Warn("reset unread failed", "error", err, "wa_id", waID)
	}

	c.JSON(http.StatusOK, messages)
}
