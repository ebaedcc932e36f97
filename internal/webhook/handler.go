package webhook

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dekoor/whatsapp-crm-backend/internal/metrics"
)

// MessageIngestor persists an inbound message event.
type MessageIngestor interface {
	IngestMessage(ctx context.Context, ev *MessageEvent) error
}

// StatusReconciler applies a delivery status update to a sent message.
type StatusReconciler interface {
	ReconcileStatus(ctx context.Context, st StatusUpdate) error
}

type Handler struct {
	verifyToken string
	ingestor    MessageIngestor
	reconciler  StatusReconciler
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

func NewHandler(verifyToken string, ingestor MessageIngestor, reconciler StatusReconciler, m *metrics.Metrics, logger *slog.Logger) *Handler {
	return &Handler{
		verifyToken: verifyToken,
		ingestor:    ingestor,
		reconciler:  reconciler,
		metrics:     m,
		logger:      logger.With("component", "webhook"),
	}
}

// Verify answers Meta's one-time subscription handshake.
func (h *Handler) Verify(c *gin.Context) {
	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	challenge := c.Query("hub.challenge")

	if mode == "" || token == "" {
		c.Status(http.StatusNotFound)
		return
	}
	if mode != "subscribe" || token != h.verifyToken {
		h.logger.Warn("webhook verification failed", "mode", mode)
		c.Status(http.StatusForbidden)
		return
	}
	h.logger.Info("webhook verified")
	c.String(http.StatusOK, challenge)
}

// Receive handles webhook deliveries. It always answers 200: a non-2xx
// response makes the provider resend, and a resend can duplicate side
// effects. Processing errors are logged and swallowed.
func (h *Handler) Receive(c *gin.Context) {
	var payload Payload
	if err := c.ShouldBindJSON(&payload); err != nil {
		h.logger.Warn("unparseable webhook payload", "error", err)
		h.metrics.WebhookEvents.WithLabelValues("unparseable").Inc()
		c.Status(http.StatusOK)
		return
	}

	event := Classify(payload)
	h.metrics.WebhookEvents.WithLabelValues(event.Kind.String()).Inc()

	switch event.Kind {
	case EventMessage:
		if err := h.ingestor.IngestMessage(c.Request.Context(), event.Message); err != nil {
			h.logger.Error("message ingestion failed", "error", err, "from", event.Message.Message.From)
			h.metrics.Errors.WithLabelValues("ingest").Inc()
		}
	case EventStatus:
		if err := h.reconciler.ReconcileStatus(c.Request.Context(), *event.Status); err != nil {
			h.logger.Error("status reconciliation failed", "error", err, "wamid", event.Status.ID)
			h.metrics.Errors.WithLabelValues("reconcile").Inc()
		}
	}

	c.Status(http.StatusOK)
}
