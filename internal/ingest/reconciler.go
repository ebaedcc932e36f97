package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dekoor/whatsapp-crm-backend/internal/metrics"
	"github.com/dekoor/whatsapp-crm-backend/internal/store"
	"github.com/dekoor/whatsapp-crm-backend/internal/webhook"
)

// StatusNotifier pushes applied status transitions to inbox clients.
type StatusNotifier interface {
	NotifyStatus(waID, wamid, status string)
}

// Reconciler applies delivery status updates to previously sent messages.
// Transitions only ever move forward along sent -> delivered -> read; the
// provider delivers at-least-once and out of order.
type Reconciler struct {
	store    store.ContactStore
	notifier StatusNotifier
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

func NewReconciler(st store.ContactStore, notifier StatusNotifier, m *metrics.Metrics, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		store:    st,
		notifier: notifier,
		metrics:  m,
		logger:   logger.With("component", "reconcile"),
	}
}

// ReconcileStatus locates the message by provider id, scoped to the status
// event's recipient, and applies the update if it is forward progress.
// Missing records and stale updates are logged no-ops.
func (r *Reconciler) ReconcileStatus(ctx context.Context, st webhook.StatusUpdate) error {
	if st.ID == "" || st.RecipientID == "" {
		r.metrics.StatusUpdates.WithLabelValues("invalid").Inc()
		return nil
	}

	applied, err := r.store.ApplyStatus(ctx, st.RecipientID, st.ID, st.Status)
	if err != nil {
		return fmt.Errorf("apply status: %w", err)
	}
	if applied {
		r.metrics.StatusUpdates.WithLabelValues("applied").Inc()
		if r.notifier != nil {
			r.notifier.NotifyStatus(st.RecipientID, st.ID, st.Status)
		}
		return nil
	}

	// Not applied: distinguish an unknown message from a stale update so
	// the logs stay useful.
	if _, lookupErr := r.store.FindMessageByWamid(ctx, st.RecipientID, st.ID); lookupErr != nil {
		if errors.Is(lookupErr, store.ErrNotFound) {
			r.logger.Info("status update for unknown message", "wamid", st.ID, "recipient", st.RecipientID)
			r.metrics.StatusUpdates.WithLabelValues("not_found").Inc()
			return nil
		}
		return fmt.Errorf("lookup message: %w", lookupErr)
	}

	r.logger.Debug("stale status update ignored", "wamid", st.ID, "status", st.Status)
	r.metrics.StatusUpdates.WithLabelValues("stale").Inc()
	return nil
}
