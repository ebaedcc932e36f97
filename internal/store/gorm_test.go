package store

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/dekoor/whatsapp-crm-backend/internal/models"
)

func newTestStore(t *testing.T) *GormStore {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	s, err := NewWithDB(db, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("init store: %v", err)
	}
	return s
}

func TestUpsertContactSummary(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	if err := s.UpsertContactSummary(ctx, "5215550001111", "Ana", "hola", at); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	c, err := s.GetContact(ctx, "5215550001111")
	if err != nil {
		t.Fatalf("get contact: %v", err)
	}
	if c.Name != "Ana" || c.LastMessage != "hola" || c.UnreadCount != 1 {
		t.Fatalf("got name=%q last=%q unread=%d, want Ana/hola/1", c.Name, c.LastMessage, c.UnreadCount)
	}

	// A later message without a profile keeps the stored name and keeps
	// incrementing the counter.
	if err := s.UpsertContactSummary(ctx, "5215550001111", "", "¿sigue disponible?", at.Add(time.Minute)); err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	c, err = s.GetContact(ctx, "5215550001111")
	if err != nil {
		t.Fatalf("get contact: %v", err)
	}
	if c.Name != "Ana" {
		t.Errorf("name overwritten by empty profile: %q", c.Name)
	}
	if c.LastMessage != "¿sigue disponible?" {
		t.Errorf("last message not updated: %q", c.LastMessage)
	}
	if c.UnreadCount != 2 {
		t.Errorf("unread = %d, want 2", c.UnreadCount)
	}
}

func TestGetContactNotFound(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.GetContact(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestAttachAdReferralFirstTouchWins(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	if err := s.UpsertContactSummary(ctx, "52111", "Ana", "hola", at); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	attached, err := s.AttachAdReferral(ctx, "52111", models.AdReferral{
		SourceID:   "ad-1",
		Headline:   "Gran promoción",
		SourceType: "ad",
		ReceivedAt: at,
	})
	if err != nil || !attached {
		t.Fatalf("first attach = (%v, %v), want (true, nil)", attached, err)
	}

	attached, err = s.AttachAdReferral(ctx, "52111", models.AdReferral{
		SourceID:   "ad-2",
		SourceType: "ad",
		ReceivedAt: at.Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("second attach: %v", err)
	}
	if attached {
		t.Fatal("second attach reported true, first touch must win")
	}

	c, err := s.GetContact(ctx, "52111")
	if err != nil {
		t.Fatalf("get contact: %v", err)
	}
	if c.AdSourceID == nil || *c.AdSourceID != "ad-1" {
		t.Errorf("ad_source_id = %v, want ad-1", c.AdSourceID)
	}
	if c.AdHeadline == nil || *c.AdHeadline != "Gran promoción" {
		t.Errorf("ad_headline = %v, want Gran promoción", c.AdHeadline)
	}
}

func TestAttachAdReferralUnknownContact(t *testing.T) {
	s := newTestStore(t)
	attached, err := s.AttachAdReferral(context.Background(), "ghost", models.AdReferral{SourceID: "ad-1", SourceType: "ad", ReceivedAt: time.Now()})
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	if attached {
		t.Fatal("attach to missing contact reported true")
	}
}

func seedOutbound(t *testing.T, s *GormStore, waID, wamid, status string) {
	t.Helper()
	err := s.AppendMessage(context.Background(), &models.Message{
		ID:        "msg-" + wamid,
		WaID:      waID,
		Text:      "hola",
		Direction: models.DirectionOutbound,
		Status:    status,
		Wamid:     wamid,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("seed message: %v", err)
	}
}

func TestApplyStatusMonotonic(t *testing.T) {
	tests := []struct {
		name    string
		initial string
		apply   string
		want    bool
	}{
		{"sent to delivered", models.StatusSent, models.StatusDelivered, true},
		{"sent to read skipping delivered", models.StatusSent, models.StatusRead, true},
		{"delivered to read", models.StatusDelivered, models.StatusRead, true},
		{"delivered back to sent", models.StatusDelivered, models.StatusSent, false},
		{"read back to delivered", models.StatusRead, models.StatusDelivered, false},
		{"sent repeated", models.StatusSent, models.StatusSent, false},
		{"unknown status", models.StatusSent, "banana", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestStore(t)
			seedOutbound(t, s, "52111", "wamid.1", tt.initial)

			applied, err := s.ApplyStatus(context.Background(), "52111", "wamid.1", tt.apply)
			if err != nil {
				t.Fatalf("apply: %v", err)
			}
			if applied != tt.want {
				t.Fatalf("applied = %v, want %v", applied, tt.want)
			}

			msg, err := s.FindMessageByWamid(context.Background(), "52111", "wamid.1")
			if err != nil {
				t.Fatalf("find: %v", err)
			}
			wantStatus := tt.initial
			if tt.want {
				wantStatus = tt.apply
			}
			if msg.Status != wantStatus {
				t.Errorf("status = %q, want %q", msg.Status, wantStatus)
			}
		})
	}
}

func TestApplyStatusScoping(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedOutbound(t, s, "52111", "wamid.1", models.StatusSent)

	// Wrong recipient: no-op.
	applied, err := s.ApplyStatus(ctx, "52999", "wamid.1", models.StatusDelivered)
	if err != nil || applied {
		t.Fatalf("cross-recipient apply = (%v, %v), want (false, nil)", applied, err)
	}

	// Inbound messages never take delivery statuses.
	err = s.AppendMessage(ctx, &models.Message{
		ID:        "msg-in",
		WaID:      "52111",
		Direction: models.DirectionReceived,
		Status:    models.StatusReceived,
		Wamid:     "wamid.in",
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("seed inbound: %v", err)
	}
	applied, err = s.ApplyStatus(ctx, "52111", "wamid.in", models.StatusDelivered)
	if err != nil || applied {
		t.Fatalf("inbound apply = (%v, %v), want (false, nil)", applied, err)
	}
}

func TestMarkConversionSent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if err := s.UpsertContactSummary(ctx, "52111", "Ana", "hola", time.Now().UTC()); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	marked, err := s.MarkConversionSent(ctx, "52111", models.EventViewContent, nil, "MXN")
	if err != nil || !marked {
		t.Fatalf("first ViewContent = (%v, %v), want (true, nil)", marked, err)
	}
	marked, err = s.MarkConversionSent(ctx, "52111", models.EventViewContent, nil, "MXN")
	if err != nil {
		t.Fatalf("second ViewContent: %v", err)
	}
	if marked {
		t.Fatal("second ViewContent reported true, cell must flip once")
	}

	value := 199.99
	marked, err = s.MarkConversionSent(ctx, "52111", models.EventPurchase, &value, "MXN")
	if err != nil || !marked {
		t.Fatalf("purchase = (%v, %v), want (true, nil)", marked, err)
	}
	c, err := s.GetContact(ctx, "52111")
	if err != nil {
		t.Fatalf("get contact: %v", err)
	}
	if c.PurchaseStatus != models.ConversionCompleted {
		t.Errorf("purchase_status = %q, want completed", c.PurchaseStatus)
	}
	if c.PurchaseValue == nil || *c.PurchaseValue != 199.99 {
		t.Errorf("purchase_value = %v, want 199.99", c.PurchaseValue)
	}
	if c.Currency != "MXN" {
		t.Errorf("currency = %q, want MXN", c.Currency)
	}

	if _, err := s.MarkConversionSent(ctx, "52111", "Checkout", nil, "MXN"); err == nil {
		t.Fatal("unknown event accepted")
	}
}

func TestLastReceivedAt(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.LastReceivedAt(ctx, "52111"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}

	older := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	newer := older.Add(2 * time.Hour)
	for i, ts := range []time.Time{older, newer} {
		err := s.AppendMessage(ctx, &models.Message{
			ID:        "msg-" + string(rune('a'+i)),
			WaID:      "52111",
			Direction: models.DirectionReceived,
			Status:    models.StatusReceived,
			Timestamp: ts,
		})
		if err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	// Outbound messages never count toward the session window.
	seedOutbound(t, s, "52111", "wamid.out", models.StatusSent)

	got, err := s.LastReceivedAt(ctx, "52111")
	if err != nil {
		t.Fatalf("last received: %v", err)
	}
	if !got.Equal(newer) {
		t.Errorf("last received = %v, want %v", got, newer)
	}
}

func TestListMessagesOrderedOldestFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	for i, text := range []string{"tercero", "primero", "segundo"} {
		offset := []time.Duration{2 * time.Hour, 0, time.Hour}[i]
		err := s.AppendMessage(ctx, &models.Message{
			ID:        text,
			WaID:      "52111",
			Text:      text,
			Direction: models.DirectionReceived,
			Status:    models.StatusReceived,
			Timestamp: base.Add(offset),
		})
		if err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	msgs, err := s.ListMessages(ctx, "52111")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	want := []string{"primero", "segundo", "tercero"}
	if len(msgs) != len(want) {
		t.Fatalf("got %d messages, want %d", len(msgs), len(want))
	}
	for i, w := range want {
		if msgs[i].Text != w {
			t.Errorf("msgs[%d] = %q, want %q", i, msgs[i].Text, w)
		}
	}
}

func TestResetUnread(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	at := time.Now().UTC()
	for i := 0; i < 3; i++ {
		if err := s.UpsertContactSummary(ctx, "52111", "Ana", "hola", at); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}

	if err := s.ResetUnread(ctx, "52111"); err != nil {
		t.Fatalf("reset: %v", err)
	}
	c, err := s.GetContact(ctx, "52111")
	if err != nil {
		t.Fatalf("get contact: %v", err)
	}
	if c.UnreadCount != 0 {
		t.Errorf("unread = %d, want 0", c.UnreadCount)
	}
}

func TestListContactsRecentFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	if err := s.UpsertContactSummary(ctx, "52111", "Ana", "hola", base); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := s.UpsertContactSummary(ctx, "52222", "Beto", "buenas", base.Add(time.Hour)); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	contacts, err := s.ListContacts(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(contacts) != 2 {
		t.Fatalf("got %d contacts, want 2", len(contacts))
	}
	if contacts[0].WaID != "52222" || contacts[1].WaID != "52111" {
		t.Errorf("order = [%s %s], want most recent first", contacts[0].WaID, contacts[1].WaID)
	}
}
