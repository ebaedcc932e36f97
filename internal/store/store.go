package store

import (
	"context"
	"errors"
	"time"

	"github.com/dekoor/whatsapp-crm-backend/internal/models"
)

// ErrNotFound marks a missing contact or message.
var ErrNotFound = errors.New("store: not found")

// ContactStore defines the persistence operations used by the ingestion and
// attribution paths. All mutations are scoped to a single contact.
type ContactStore interface {
	GetContact(ctx context.Context, waID string) (*models.Contact, error)
	ListContacts(ctx context.Context) ([]models.Contact, error)

	// UpsertContactSummary merges the inbound-message summary into the
	// contact row, creating it on first sight. The unread counter is
	// incremented atomically in the same statement.
	UpsertContactSummary(ctx context.Context, waID, name, lastMessage string, at time.Time) error

	// AttachAdReferral attaches a first-touch referral. It is a no-op and
	// returns false when a referral is already stored.
	AttachAdReferral(ctx context.Context, waID string, ref models.AdReferral) (bool, error)

	AppendMessage(ctx context.Context, msg *models.Message) error
	ListMessages(ctx context.Context, waID string) ([]models.Message, error)
	FindMessageByWamid(ctx context.Context, waID, wamid string) (*models.Message, error)

	// ApplyStatus moves an outbound message's delivery status forward.
	// Backward or same-stage transitions leave the row untouched and
	// return false.
	ApplyStatus(ctx context.Context, waID, wamid, status string) (bool, error)

	// MarkConversionSent flips the idempotency cell for one conversion
	// event type. The check and the set happen in a single conditional
	// update; false means the cell was already set.
	MarkConversionSent(ctx context.Context, waID, eventName string, value *float64, currency string) (bool, error)

	// LastReceivedAt returns the timestamp of the most recent inbound
	// message, or ErrNotFound when the contact never wrote in.
	LastReceivedAt(ctx context.Context, waID string) (time.Time, error)

	ResetUnread(ctx context.Context, waID string) error
}

// ConversionSent reports whether the idempotency cell for the given event
// name is already set on the contact.
func ConversionSent(c *models.Contact, eventName string) bool {
	switch eventName {
	case models.EventViewContent:
		return c.ViewContentSent
	case models.EventLead:
		return c.LeadEventSent
	case models.EventCompleteRegistration:
		return c.RegistrationStatus == models.ConversionCompleted
	case models.EventPurchase:
		return c.PurchaseStatus == models.ConversionCompleted
	default:
		return false
	}
}
