package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dekoor/whatsapp-crm-backend/internal/models"
)

func contactRouter(st *fakeAPIStore) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewContactHandler(st, testLogger())

	r := gin.New()
	r.GET("/api/contacts", h.GetContacts)
	r.GET("/api/contacts/:waId/messages", h.GetMessages)
	return r
}

func getJSON(t *testing.T, r *gin.Engine, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestGetContactsEmptyListIsArray(t *testing.T) {
	r := contactRouter(&fakeAPIStore{})

	w := getJSON(t, r, "/api/contacts")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if body := w.Body.String(); body != "[]" {
		t.Errorf("body = %q, want empty JSON array", body)
	}
}

func TestGetContacts(t *testing.T) {
	at := time.Now().UTC()
	st := &fakeAPIStore{contacts: []models.Contact{
		{WaID: "52222", Name: "Beto", LastMessage: "buenas", LastMessageAt: &at, UnreadCount: 2},
		{WaID: "52111", Name: "Ana", LastMessage: "hola"},
	}}
	r := contactRouter(st)

	w := getJSON(t, r, "/api/contacts")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var got []models.Contact
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 2 || got[0].WaID != "52222" || got[0].UnreadCount != 2 {
		t.Errorf("contacts = %+v", got)
	}
}

func TestGetContactsStoreError(t *testing.T) {
	r := contactRouter(&fakeAPIStore{listErr: errors.New("db down")})

	w := getJSON(t, r, "/api/contacts")
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
}

func TestGetMessagesResetsUnread(t *testing.T) {
	st := &fakeAPIStore{messages: []models.Message{
		{ID: "m1", WaID: "52111", Text: "hola", Direction: models.DirectionReceived},
	}}
	r := contactRouter(st)

	w := getJSON(t, r, "/api/contacts/52111/messages")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var got []models.Message
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 1 || got[0].Text != "hola" {
		t.Errorf("messages = %+v", got)
	}
	if len(st.resetCalls) != 1 || st.resetCalls[0] != "52111" {
		t.Errorf("reset calls = %v, want one for 52111", st.resetCalls)
	}
}
