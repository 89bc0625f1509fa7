package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/arturkryukov/livescan/internal/blob"
	"github.com/arturkryukov/livescan/internal/service"
	"github.com/arturkryukov/livescan/internal/session"
)

type consentFixture struct {
	router   *chi.Mux
	signer   *session.Signer
	uploader *blob.MemoryUploader
}

func newConsentFixture(t *testing.T) *consentFixture {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	signer := session.NewSigner("test-session-secret")
	uploader := blob.NewMemoryUploader()
	consents := service.NewConsentService(uploader, "test-consent-secret", "test-salt", logger)
	handler := NewConsentHandler(signer, consents, logger)

	r := chi.NewRouter()
	r.Post("/api/init", handler.Init)
	r.Post("/api/consent/{type}", handler.RecordConsent)
	return &consentFixture{router: r, signer: signer, uploader: uploader}
}

// postConsent выполняет POST /api/consent/{typ} с указанной сессией.
func (f *consentFixture) postConsent(t *testing.T, typ, sessionID, token string) *httptest.ResponseRecorder {
	t.Helper()

	body, _ := json.Marshal(map[string]string{
		"session_id":    sessionID,
		"session_token": token,
	})
	req := httptest.NewRequest(http.MethodPost, "/api/consent/"+typ, bytes.NewReader(body))
	req.Header.Set("User-Agent", "test-agent")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func TestInit_IssuesVerifiableSession(t *testing.T) {
	f := newConsentFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/api/init", nil)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Ожидался 200, получен %d", rec.Code)
	}

	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Ошибка разбора ответа: %v", err)
	}
	if _, err := uuid.Parse(resp["session_id"]); err != nil {
		t.Errorf("session_id не UUID: %s", resp["session_id"])
	}
	if !f.signer.Verify(resp["session_id"], resp["session_token"]) {
		t.Error("Выданная подпись сессии не проходит проверку")
	}
}

func TestRecordConsent_WritesReceipt(t *testing.T) {
	f := newConsentFixture(t)
	sessionID, token := f.signer.Issue()

	rec := f.postConsent(t, "document", sessionID, token)
	if rec.Code != http.StatusOK {
		t.Fatalf("Ожидался 200, получен %d: %s", rec.Code, rec.Body.String())
	}

	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Ошибка разбора ответа: %v", err)
	}
	if resp["status"] != "ok" {
		t.Errorf("Неожиданный статус: %s", resp["status"])
	}

	if _, ok := f.uploader.Get("consents/session_" + sessionID + "/consent.document.json"); !ok {
		t.Error("Квитанция не записана в хранилище")
	}
}

func TestRecordConsent_InvalidSessionID(t *testing.T) {
	f := newConsentFixture(t)
	_, token := f.signer.Issue()

	rec := f.postConsent(t, "document", "не-uuid", token)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("Ожидался 400, получен %d", rec.Code)
	}
	if f.uploader.Len() != 0 {
		t.Error("Квитанция записана несмотря на отказ")
	}
}

func TestRecordConsent_BadSignature(t *testing.T) {
	f := newConsentFixture(t)
	sessionID, _ := f.signer.Issue()

	rec := f.postConsent(t, "sms", sessionID, "поддельная подпись")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("Ожидался 403, получен %d", rec.Code)
	}
	if f.uploader.Len() != 0 {
		t.Error("Квитанция записана несмотря на отказ")
	}
}

func TestRecordConsent_UnknownType(t *testing.T) {
	f := newConsentFixture(t)
	sessionID, token := f.signer.Issue()

	rec := f.postConsent(t, "voice", sessionID, token)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("Ожидался 404, получен %d", rec.Code)
	}
}

func TestRecordConsent_StorageFailure(t *testing.T) {
	f := newConsentFixture(t)
	sessionID, token := f.signer.Issue()
	f.uploader.FailNext = true

	rec := f.postConsent(t, "document", sessionID, token)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("Ожидался 500, получен %d", rec.Code)
	}
}
