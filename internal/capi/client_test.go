package capi

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestConfigured(t *testing.T) {
	tests := []struct {
		name    string
		pixelID string
		token   string
		want    bool
	}{
		{"both present", "pix-1", "tok-1", true},
		{"missing pixel", "", "tok-1", false},
		{"missing token", "pix-1", "", false},
		{"both missing", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(Config{PixelID: tt.pixelID, Token: tt.token}, discardLogger(), nil)
			if got := c.Configured(); got != tt.want {
				t.Fatalf("Configured() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSendEvents(t *testing.T) {
	var gotPath, gotAuth string
	var gotEnvelope struct {
		Data []Event `json:"data"`
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotEnvelope); err != nil {
			t.Errorf("decode envelope: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, PixelID: "pix-1", Token: "tok-1"}, discardLogger(), nil)
	event := Event{
		EventName:    "Lead",
		EventTime:    1700000000,
		EventID:      "abc123",
		ActionSource: "chat",
		UserData:     UserData{Ph: []string{"deadbeef"}},
		CustomData:   map[string]any{"lead_source": "Anuncio de WhatsApp"},
	}
	if err := c.SendEvents(context.Background(), []Event{event}); err != nil {
		t.Fatalf("send: %v", err)
	}

	if gotPath != "/pix-1/events" {
		t.Errorf("path = %q, want /pix-1/events", gotPath)
	}
	if gotAuth != "Bearer tok-1" {
		t.Errorf("auth = %q, want bearer token", gotAuth)
	}
	if len(gotEnvelope.Data) != 1 {
		t.Fatalf("envelope carried %d events, want 1", len(gotEnvelope.Data))
	}
	sent := gotEnvelope.Data[0]
	if sent.EventName != "Lead" || sent.EventID != "abc123" || sent.ActionSource != "chat" {
		t.Errorf("event = %+v", sent)
	}
	if len(sent.UserData.Ph) != 1 || sent.UserData.Ph[0] != "deadbeef" {
		t.Errorf("user data = %+v", sent.UserData)
	}
}

func TestSendEventsAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"error":{"message":"invalid pixel"}}`)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, PixelID: "pix-1", Token: "tok-1"}, discardLogger(), nil)
	err := c.SendEvents(context.Background(), []Event{{EventName: "Lead"}})
	if err == nil {
		t.Fatal("4xx response must surface as an error")
	}
	if !strings.Contains(err.Error(), "status=400") {
		t.Errorf("error %q does not carry the status code", err)
	}
}

func TestSendEventsUnconfigured(t *testing.T) {
	c := New(Config{}, discardLogger(), nil)
	if err := c.SendEvents(context.Background(), []Event{{EventName: "Lead"}}); err == nil {
		t.Fatal("unconfigured client must refuse to dispatch")
	}
}
