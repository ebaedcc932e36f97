package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/dekoor/whatsapp-crm-backend/internal/metrics"
	"github.com/dekoor/whatsapp-crm-backend/internal/models"
	"github.com/dekoor/whatsapp-crm-backend/internal/store"
	"github.com/dekoor/whatsapp-crm-backend/internal/webhook"
)

// Summary placeholders shown in the inbox for non-text messages.
const (
	placeholderImage    = "📷 Imagen"
	placeholderVideo    = "🎥 Video"
	placeholderAudio    = "🎙️ Audio"
	placeholderDocument = "📄 Documento"
)

const dedupTTL = 7 * 24 * time.Hour

// MediaFetcher captures a provider media binary into durable storage and
// returns the durable URL.
type MediaFetcher interface {
	FetchAndStore(ctx context.Context, mediaID, mimeType string) (string, error)
}

// ConversionSender dispatches one conversion event for a contact.
type ConversionSender interface {
	Send(ctx context.Context, eventName, waID string, value *float64) error
}

// DedupGuard claims an inbound message id once. Duplicate webhook deliveries
// of the same id are dropped before any store write.
type DedupGuard interface {
	ClaimOnce(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// Notifier pushes realtime inbox updates. Implementations are best-effort.
type Notifier interface {
	NotifyMessage(msg models.Message)
	NotifyContact(waID string)
}

// Ingestor persists inbound messages: resolves content by type, captures
// media, detects first-touch ad attribution, and triggers conversion events
// for newly attributed contacts.
type Ingestor struct {
	store       store.ContactStore
	media       MediaFetcher
	conversions ConversionSender
	dedup       DedupGuard
	notifier    Notifier
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

func NewIngestor(st store.ContactStore, media MediaFetcher, conversions ConversionSender, dedup DedupGuard, notifier Notifier, m *metrics.Metrics, logger *slog.Logger) *Ingestor {
	return &Ingestor{
		store:       st,
		media:       media,
		conversions: conversions,
		dedup:       dedup,
		notifier:    notifier,
		metrics:     m,
		logger:      logger.With("component", "ingest"),
	}
}

// IngestMessage handles one classified inbound message event. Message and
// contact persistence are authoritative; media capture and conversion
// dispatch are best-effort and never fail the ingestion.
func (i *Ingestor) IngestMessage(ctx context.Context, ev *webhook.MessageEvent) error {
	msg := ev.Message
	waID := msg.From

	if i.dedup != nil && msg.ID != "" {
		fresh, err := i.dedup.ClaimOnce(ctx, "inbound:"+msg.ID, dedupTTL)
		if err != nil {
			i.logger.Warn("dedup guard unavailable, continuing", "error", err)
		} else if !fresh {
			i.logger.Info("duplicate webhook delivery dropped", "message_id", msg.ID, "wa_id", waID)
			i.metrics.MessagesIngested.WithLabelValues("duplicate").Inc()
			return nil
		}
	}

	summary, fileURL := i.resolveContent(ctx, &msg)
	timestamp := parseTimestamp(msg.Timestamp)

	record := models.Message{
		ID:        uuid.NewString(),
		WaID:      waID,
		Text:      summary,
		FileURL:   fileURL,
		FileType:  msg.Type,
		Direction: models.DirectionReceived,
		Status:    models.StatusReceived,
		Timestamp: timestamp,
	}
	if err := i.store.AppendMessage(ctx, &record); err != nil {
		return fmt.Errorf("append message: %w", err)
	}

	name := waID
	if ev.Profile != nil && ev.Profile.Profile.Name != "" {
		name = ev.Profile.Profile.Name
	}
	if err := i.store.UpsertContactSummary(ctx, waID, name, summary, timestamp); err != nil {
		return fmt.Errorf("upsert contact: %w", err)
	}

	newAdContact := i.attachReferral(ctx, waID, msg.Referral, timestamp)

	i.metrics.MessagesIngested.WithLabelValues(msg.Type).Inc()
	if i.notifier != nil {
		i.notifier.NotifyMessage(record)
		i.notifier.NotifyContact(waID)
	}

	if newAdContact {
		i.sendAdConversions(ctx, waID)
	}
	return nil
}

// resolveContent maps the declared message type to a summary line and, for
// media types, captures the binary. Capture failure degrades to text-only
// persistence.
func (i *Ingestor) resolveContent(ctx context.Context, msg *webhook.InboundMessage) (summary, fileURL string) {
	switch msg.Type {
	case "text":
		if msg.Text != nil {
			return msg.Text.Body, ""
		}
		return "", ""
	case "image":
		return placeholderImage, i.captureMedia(ctx, msg)
	case "video":
		return placeholderVideo, i.captureMedia(ctx, msg)
	case "audio":
		return placeholderAudio, ""
	case "document":
		return placeholderDocument, ""
	default:
		return fmt.Sprintf("[%s no soportado]", msg.Type), ""
	}
}

func (i *Ingestor) captureMedia(ctx context.Context, msg *webhook.InboundMessage) string {
	ref := msg.MediaRef()
	if ref == nil || i.media == nil {
		return ""
	}
	url, err := i.media.FetchAndStore(ctx, ref.ID, ref.MimeType)
	if err != nil {
		i.logger.Warn("media capture failed, storing message without file", "error", err, "media_id", ref.ID)
		i.metrics.Errors.WithLabelValues("media").Inc()
		return ""
	}
	return url
}

// attachReferral applies first-touch attribution. It returns true only when
// this message attached the referral, i.e. the contact is newly
// ad-attributed.
func (i *Ingestor) attachReferral(ctx context.Context, waID string, ref *webhook.Referral, at time.Time) bool {
	if ref == nil || ref.SourceType != "ad" {
		return false
	}

	attached, err := i.store.AttachAdReferral(ctx, waID, models.AdReferral{
		SourceID:   ref.SourceID,
		Headline:   ref.Headline,
		SourceType: ref.SourceType,
		SourceURL:  ref.SourceURL,
		CtwaClid:   ref.CtwaClid,
		ReceivedAt: at,
	})
	if err != nil {
		i.logger.Error("referral attach failed", "error", err, "wa_id", waID)
		i.metrics.Errors.WithLabelValues("referral").Inc()
		return false
	}
	if !attached {
		i.logger.Debug("referral already attached, first touch wins", "wa_id", waID)
	}
	return attached
}

// sendAdConversions fires ViewContent and Lead for a newly ad-attributed
// contact. The message is already persisted, so dispatch failures are logged
// and swallowed.
func (i *Ingestor) sendAdConversions(ctx context.Context, waID string) {
	for _, event := range []string{models.EventViewContent, models.EventLead} {
		if err := i.conversions.Send(ctx, event, waID, nil); err != nil {
			i.logger.Warn("ad conversion dispatch failed", "error", err, "event", event, "wa_id", waID)
		}
	}
}

func parseTimestamp(raw string) time.Time {
	if raw != "" {
		if secs, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return time.Unix(secs, 0).UTC()
		}
	}
	return time.Now().UTC()
}
