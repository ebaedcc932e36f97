package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/dekoor/whatsapp-crm-backend/internal/attribution"
	"github.com/dekoor/whatsapp-crm-backend/internal/models"
	"github.com/dekoor/whatsapp-crm-backend/internal/store"
)

// ConversionSender dispatches one conversion event for a contact.
type ConversionSender interface {
	Send(ctx context.Context, eventName, waID string, value *float64) error
}

type ConversionHandler struct {
	engine ConversionSender
	logger *slog.Logger
}

func NewConversionHandler(engine ConversionSender, logger *slog.Logger) *ConversionHandler {
	return &ConversionHandler{engine: engine, logger: logger.With("component", "api")}
}

// MarkRegistration records a CompleteRegistration conversion. Idempotent per
// contact: a second call answers 400 without dispatching.
func (h *ConversionHandler) MarkRegistration(c *gin.Context) {
	h.dispatch(c, models.EventCompleteRegistration, nil)
}

type PurchaseRequest struct {
	Value json.RawMessage `json:"value"`
}

// MarkPurchase records a Purchase conversion with its monetary value. The
// frontend sends the value either as a number or a quoted string.
func (h *ConversionHandler) MarkPurchase(c *gin.Context) {
	var req PurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid request body")
		return
	}
	value, err := parseValue(req.Value)
	if err != nil || value <= 0 {
		respondError(c, http.StatusBadRequest, "a positive numeric value is required")
		return
	}
	h.dispatch(c, models.EventPurchase, &value)
}

func parseValue(raw json.RawMessage) (float64, error) {
	if len(raw) == 0 {
		return 0, errors.New("value is required")
	}
	var num float64
	if err := json.Unmarshal(raw, &num); err == nil {
		return num, nil
	}
	var str string
	if err := json.Unmarshal(raw, &str); err != nil {
		return 0, err
	}
	return strconv.ParseFloat(strings.TrimSpace(str), 64)
}

// SendViewContent manually records a ViewContent conversion.
func (h *ConversionHandler) SendViewContent(c *gin.Context) {
	h.dispatch(c, models.EventViewContent, nil)
}

func (h *ConversionHandler) dispatch(c *gin.Context, eventName string, value *float64) {
	waID := c.Param("waId")

	err := h.engine.Send(c.Request.Context(), eventName, waID, value)
	switch {
	case err == nil:
		respondOK(c, gin.H{"event": eventName})
	case errors.Is(err, attribution.ErrAlreadySent):
		respondError(c, http.StatusBadRequest, "conversion already processed for this contact")
	case errors.Is(err, attribution.ErrNotConfigured):
		// Degraded mode: the action is acknowledged but nothing was
		// sent, so it can be retried once credentials exist.
		respondOK(c, gin.H{"event": eventName, "message": "analytics credentials not configured; event not sent"})
	case errors.Is(err, attribution.ErrNoUserData):
		respondError(c, http.StatusBadRequest, "contact has no hashable identifier")
	case errors.Is(err, store.ErrNotFound):
		respondError(c, http.StatusNotFound, "contact not found")
	default:
		h.logger.Error("conversion dispatch failed", "error", err, "event", eventName, "wa_id", waID)
		respondError(c, http.StatusInternalServerError, "failed to send conversion event")
	}
}
