package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/dekoor/whatsapp-crm-backend/internal/models"
)

// GormStore implements ContactStore on top of gorm. Postgres is used when a
// DATABASE_URL is configured; sqlite otherwise.
type GormStore struct {
	db     *gorm.DB
	logger *slog.Logger
}

// Open connects to the configured database and runs auto-migration.
func Open(databaseURL, sqlitePath string, logger *slog.Logger) (*GormStore, error) {
	var dialector gorm.Dialector
	if databaseURL != "" {
		dialector = postgres.Open(databaseURL)
	} else {
		dialector = sqlite.Open(sqlitePath)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &GormStore{db: db, logger: logger.With("component", "store")}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

// NewWithDB wraps an existing gorm handle and runs auto-migration. Used by
// tests with an in-memory sqlite database.
func NewWithDB(db *gorm.DB, logger *slog.Logger) (*GormStore, error) {
	s := &GormStore{db: db, logger: logger.With("component", "store")}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *GormStore) migrate() error {
	if err := s.db.AutoMigrate(&models.Contact{}, &models.Message{}); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}
	return nil
}

func (s *GormStore) GetContact(ctx context.Context, waID string) (*models.Contact, error) {
	var contact models.Contact
	err := s.db.WithContext(ctx).First(&contact, "wa_id = ?", waID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get contact %s: %w", waID, err)
	}
	return &contact, nil
}

func (s *GormStore) ListContacts(ctx context.Context) ([]models.Contact, error) {
	var contacts []models.Contact
	err := s.db.WithContext(ctx).
		Order("last_message_at DESC").
		Find(&contacts).Error
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	return contacts, nil
}

func (s *GormStore) UpsertContactSummary(ctx context.Context, waID, name, lastMessage string, at time.Time) error {
	contact := models.Contact{
		WaID:          waID,
		Name:          name,
		LastMessage:   lastMessage,
		LastMessageAt: &at,
		UnreadCount:   1,
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "wa_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			// Keep the stored name when the provider omitted the profile.
			"name":            gorm.Expr("CASE WHEN excluded.name <> '' THEN excluded.name ELSE contacts.name END"),
			"last_message":    lastMessage,
			"last_message_at": at,
			"unread_count":    gorm.Expr("contacts.unread_count + 1"),
		}),
	}).Create(&contact).Error
	if err != nil {
		return fmt.Errorf("upsert contact %s: %w", waID, err)
	}
	return nil
}

func (s *GormStore) AttachAdReferral(ctx context.Context, waID string, ref models.AdReferral) (bool, error) {
	res := s.db.WithContext(ctx).Model(&models.Contact{}).
		Where("wa_id = ? AND ad_received_at IS NULL", waID).
		Updates(map[string]interface{}{
			"ad_source_id":   nullable(ref.SourceID),
			"ad_headline":    nullable(ref.Headline),
			"ad_source_type": nullable(ref.SourceType),
			"ad_source_url":  nullable(ref.SourceURL),
			"ad_ctwa_clid":   nullable(ref.CtwaClid),
			"ad_received_at": ref.ReceivedAt,
		})
	if res.Error != nil {
		return false, fmt.Errorf("attach referral %s: %w", waID, res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (s *GormStore) AppendMessage(ctx context.Context, msg *models.Message) error {
	if err := s.db.WithContext(ctx).Create(msg).Error; err != nil {
		return fmt.Errorf("append message for %s: %w", msg.WaID, err)
	}
	return nil
}

func (s *GormStore) ListMessages(ctx context.Context, waID string) ([]models.Message, error) {
	var messages []models.Message
	err := s.db.WithContext(ctx).
		Where("wa_id = ?", waID).
		Order("timestamp ASC").
		Find(&messages).Error
	if err != nil {
		return nil, fmt.Errorf("list messages for %s: %w", waID, err)
	}
	return messages, nil
}

func (s *GormStore) FindMessageByWamid(ctx context.Context, waID, wamid string) (*models.Message, error) {
	var msg models.Message
	err := s.db.WithContext(ctx).
		First(&msg, "wa_id = ? AND wamid = ?", waID, wamid).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find message %s: %w", wamid, err)
	}
	return &msg, nil
}

// forwardFrom lists the statuses each delivery status may legally replace.
var forwardFrom = map[string][]string{
	models.StatusSent:      {models.StatusSending},
	models.StatusDelivered: {models.StatusSending, models.StatusSent},
	models.StatusRead:      {models.StatusSending, models.StatusSent, models.StatusDelivered},
}

func (s *GormStore) ApplyStatus(ctx context.Context, waID, wamid, status string) (bool, error) {
	from, ok := forwardFrom[status]
	if !ok {
		return false, nil
	}
	res := s.db.WithContext(ctx).Model(&models.Message{}).
		Where("wa_id = ? AND wamid = ? AND direction = ?", waID, wamid, models.DirectionOutbound).
		Where("status IN ?", from).
		Update("status", status)
	if res.Error != nil {
		return false, fmt.Errorf("apply status %s to %s: %w", status, wamid, res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (s *GormStore) MarkConversionSent(ctx context.Context, waID, eventName string, value *float64, currency string) (bool, error) {
	tx := s.db.WithContext(ctx).Model(&models.Contact{}).Where("wa_id = ?", waID)
	updates := map[string]interface{}{}

	switch eventName {
	case models.EventViewContent:
		tx = tx.Where("view_content_sent = ?", false)
		updates["view_content_sent"] = true
	case models.EventLead:
		tx = tx.Where("lead_event_sent = ?", false)
		updates["lead_event_sent"] = true
	case models.EventCompleteRegistration:
		tx = tx.Where("COALESCE(registration_status, '') <> ?", models.ConversionCompleted)
		updates["registration_status"] = models.ConversionCompleted
	case models.EventPurchase:
		tx = tx.Where("COALESCE(purchase_status, '') <> ?", models.ConversionCompleted)
		updates["purchase_status"] = models.ConversionCompleted
		if value != nil {
			updates["purchase_value"] = *value
			updates["currency"] = currency
		}
	default:
		return false, fmt.Errorf("unknown conversion event %q", eventName)
	}

	res := tx.Updates(updates)
	if res.Error != nil {
		return false, fmt.Errorf("mark %s sent for %s: %w", eventName, waID, res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (s *GormStore) LastReceivedAt(ctx context.Context, waID string) (time.Time, error) {
	var msg models.Message
	err := s.db.WithContext(ctx).
		Where("wa_id = ? AND direction = ?", waID, models.DirectionReceived).
		Order("timestamp DESC").
		First(&msg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return time.Time{}, ErrNotFound
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("last received for %s: %w", waID, err)
	}
	return msg.Timestamp, nil
}

func (s *GormStore) ResetUnread(ctx context.Context, waID string) error {
	err := s.db.WithContext(ctx).Model(&models.Contact{}).
		Where("wa_id = ?", waID).
		Update("unread_count", 0).Error
	if err != nil {
		return fmt.Errorf("reset unread for %s: %w", waID, err)
	}
	return nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
