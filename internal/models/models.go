package models

import (
	"time"
)

// Message directions.
const (
	DirectionReceived = "received"
	DirectionOutbound = "outbound"
)

// Delivery statuses. Outbound messages move forward-only along
// sending/sent -> delivered -> read; inbound messages stay "received".
const (
	StatusReceived  = "received"
	StatusSending   = "sending"
	StatusSent      = "sent"
	StatusDelivered = "delivered"
	StatusRead      = "read"
)

// StatusRank orders outbound delivery statuses. Unknown statuses rank 0 so
// they never overwrite a known one.
func StatusRank(status string) int {
	switch status {
	case StatusSending, StatusSent:
		return 1
	case StatusDelivered:
		return 2
	case StatusRead:
		return 3
	default:
		return 0
	}
}

// Conversion event names accepted by the Conversions API.
const (
	EventViewContent          = "ViewContent"
	EventLead                 = "Lead"
	EventCompleteRegistration = "CompleteRegistration"
	EventPurchase             = "Purchase"
)

// ConversionCompleted marks a finished registration/purchase status cell.
const ConversionCompleted = "completed"

// Contact represents a WhatsApp conversation partner keyed by wa_id.
type Contact struct {
	WaID          string     `gorm:"primaryKey;type:varchar(50)" json:"wa_id"`
	Name          string     `gorm:"type:varchar(255)" json:"name"`
	Email         string     `gorm:"type:varchar(255)" json:"email,omitempty"`
	LastMessage   string     `gorm:"type:text" json:"last_message"`
	LastMessageAt *time.Time `json:"last_message_at"`
	UnreadCount   int        `gorm:"not null;default:0" json:"unread_count"`

	// First-touch ad referral. Nullable columns, written exactly once;
	// a later ad-attributed message never overwrites them.
	AdSourceID   *string    `gorm:"type:varchar(255)" json:"ad_source_id,omitempty"`
	AdHeadline   *string    `gorm:"type:text" json:"ad_headline,omitempty"`
	AdSourceType *string    `gorm:"type:varchar(50)" json:"ad_source_type,omitempty"`
	AdSourceURL  *string    `gorm:"type:text" json:"ad_source_url,omitempty"`
	AdCtwaClid   *string    `gorm:"type:text" json:"ad_ctwa_clid,omitempty"`
	AdReceivedAt *time.Time `json:"ad_received_at,omitempty"`

	// Conversion idempotency cells. Each transitions at most once and
	// never reverts.
	ViewContentSent    bool     `gorm:"not null;default:false" json:"view_content_sent"`
	LeadEventSent      bool     `gorm:"not null;default:false" json:"lead_event_sent"`
	RegistrationStatus string   `gorm:"type:varchar(20);default:''" json:"registration_status"`
	PurchaseStatus     string   `gorm:"type:varchar(20);default:''" json:"purchase_status"`
	PurchaseValue      *float64 `json:"purchase_value,omitempty"`
	Currency           string   `gorm:"type:varchar(10)" json:"currency,omitempty"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Contact) TableName() string {
	return "contacts"
}

// HasAdReferral reports whether a first-touch referral is already attached.
func (c *Contact) HasAdReferral() bool {
	return c.AdSourceID != nil
}

// AdReferral carries referral fields parsed from an inbound message before
// they are attached to a contact.
type AdReferral struct {
	SourceID   string
	Headline   string
	SourceType string
	SourceURL  string
	CtwaClid   string
	ReceivedAt time.Time
}

// Message is one entry in a contact's conversation log.
type Message struct {
	ID        string    `gorm:"primaryKey;type:varchar(64)" json:"id"`
	WaID      string    `gorm:"index;not null;type:varchar(50)" json:"wa_id"`
	Text      string    `gorm:"type:text" json:"text"`
	FileURL   string    `gorm:"type:text" json:"file_url,omitempty"`
	FileType  string    `gorm:"type:varchar(50)" json:"file_type,omitempty"`
	Direction string    `gorm:"type:varchar(20);not null" json:"direction"`
	Status    string    `gorm:"type:varchar(20);not null" json:"status"`
	Wamid     string    `gorm:"index;type:varchar(255)" json:"wamid,omitempty"`
	Timestamp time.Time `gorm:"index" json:"timestamp"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (Message) TableName() string {
	return "messages"
}
