package attribution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dekoor/whatsapp-crm-backend/internal/capi"
	"github.com/dekoor/whatsapp-crm-backend/internal/metrics"
	"github.com/dekoor/whatsapp-crm-backend/internal/models"
	"github.com/dekoor/whatsapp-crm-backend/internal/store"
)

var (
	// ErrAlreadySent short-circuits a second dispatch for a
	// (contact, event-type) pair whose cell is already set.
	ErrAlreadySent = errors.New("attribution: conversion already processed")

	// ErrNotConfigured marks missing Conversions API credentials. Callers
	// treat it as a warned no-op, never a failure.
	ErrNotConfigured = errors.New("attribution: conversions api not configured")

	// ErrNoUserData aborts a dispatch that would carry no hashable
	// user identifier.
	ErrNoUserData = errors.New("attribution: no hashable user identifier")
)

const (
	leadSourceAd      = "Anuncio de WhatsApp"
	leadSourceOrganic = "Orgánico"
)

// Dispatcher sends built conversion events to the analytics API.
type Dispatcher interface {
	Configured() bool
	SendEvents(ctx context.Context, events []capi.Event) error
}

// Engine decides whether a conversion event must be sent for a
// (contact, event-type) pair, builds the privacy-hashed payload, dispatches
// it, and records the at-most-once cell afterwards.
type Engine struct {
	store      store.ContactStore
	dispatcher Dispatcher
	currency   string
	metrics    *metrics.Metrics
	logger     *slog.Logger
	now        func() time.Time
}

func NewEngine(st store.ContactStore, dispatcher Dispatcher, currency string, m *metrics.Metrics, logger *slog.Logger) *Engine {
	return &Engine{
		store:      st,
		dispatcher: dispatcher,
		currency:   currency,
		metrics:    m,
		logger:     logger.With("component", "attribution"),
		now:        time.Now,
	}
}

// Send dispatches one conversion event for the contact. value is only used
// for Purchase events. The idempotency cell is flipped strictly after a
// successful dispatch so a failed send stays retryable.
func (e *Engine) Send(ctx context.Context, eventName, waID string, value *float64) error {
	if !e.dispatcher.Configured() {
		e.logger.Warn("conversions api not configured, skipping dispatch", "event", eventName, "wa_id", waID)
		e.metrics.Conversions.WithLabelValues(eventName, "unconfigured").Inc()
		return ErrNotConfigured
	}

	contact, err := e.store.GetContact(ctx, waID)
	if err != nil {
		return fmt.Errorf("load contact: %w", err)
	}

	if store.ConversionSent(contact, eventName) {
		e.metrics.Conversions.WithLabelValues(eventName, "duplicate").Inc()
		return ErrAlreadySent
	}

	event, err := e.buildEvent(eventName, contact, value)
	if err != nil {
		e.metrics.Conversions.WithLabelValues(eventName, "invalid").Inc()
		return err
	}

	if err := e.dispatcher.SendEvents(ctx, []capi.Event{event}); err != nil {
		e.metrics.Conversions.WithLabelValues(eventName, "failed").Inc()
		return fmt.Errorf("dispatch %s for %s: %w", eventName, waID, err)
	}

	marked, err := e.store.MarkConversionSent(ctx, waID, eventName, value, e.currency)
	if err != nil {
		// The event reached the API but the cell write failed; a retry
		// would double-send, which the deterministic event id absorbs.
		return fmt.Errorf("mark %s sent for %s: %w", eventName, waID, err)
	}
	if !marked {
		e.logger.Warn("conversion cell already set by concurrent dispatch", "event", eventName, "wa_id", waID)
	}

	e.metrics.Conversions.WithLabelValues(eventName, "sent").Inc()
	e.logger.Info("conversion event sent", "event", eventName, "wa_id", waID)
	return nil
}

func (e *Engine) buildEvent(eventName string, contact *models.Contact, value *float64) (capi.Event, error) {
	user := capi.UserData{}
	if ph := capi.HashPhone(contact.WaID); ph != "" {
		user.Ph = []string{ph}
	}
	if fn := capi.HashText(contact.Name); fn != "" {
		user.Fn = fn
	}
	if em := capi.HashText(contact.Email); em != "" {
		user.Em = []string{em}
	}
	if len(user.Ph) == 0 && user.Fn == "" && len(user.Em) == 0 {
		return capi.Event{}, ErrNoUserData
	}

	custom := map[string]any{}
	if contact.HasAdReferral() {
		custom["lead_source"] = leadSourceAd
		if contact.AdHeadline != nil {
			custom["ad_headline"] = *contact.AdHeadline
		}
		if contact.AdSourceID != nil {
			custom["ad_source_id"] = *contact.AdSourceID
		}
	} else {
		custom["lead_source"] = leadSourceOrganic
	}
	if eventName == models.EventPurchase && value != nil {
		custom["value"] = *value
		custom["currency"] = e.currency
	}

	eventTime := e.now()
	return capi.Event{
		EventName:    eventName,
		EventTime:    eventTime.Unix(),
		EventID:      capi.EventID(eventName, contact.WaID, eventTime),
		ActionSource: "chat",
		UserData:     user,
		CustomData:   custom,
	}, nil
}
