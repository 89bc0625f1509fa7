package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/arturkryukov/livescan/internal/blob"
	"github.com/arturkryukov/livescan/internal/domain/model"
)

func newTestConsentService(uploader blob.Uploader) *ConsentService {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewConsentService(uploader, "test-consent-secret", "test-salt", logger)
	svc.now = func() time.Time {
		return time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	}
	return svc
}

func TestRecord_DocumentConsent(t *testing.T) {
	uploader := blob.NewMemoryUploader()
	svc := newTestConsentService(uploader)

	sessionID := "4f3c2a10-1111-2222-3333-444455556666"
	if err := svc.Record(context.Background(), model.ConsentDocument, sessionID, "203.0.113.7", "test-agent"); err != nil {
		t.Fatalf("Record вернул ошибку: %v", err)
	}

	data, ok := uploader.Get("consents/session_" + sessionID + "/consent.document.json")
	if !ok {
		t.Fatal("Квитанция не записана под ожидаемым ключом")
	}

	var rec map[string]any
	if err := json.Unmarshal(data, &rec); err != nil {
		t.Fatalf("Ошибка разбора квитанции: %v", err)
	}
	if rec["consent_given"] != true {
		t.Error("consent_given должен быть true")
	}
	if rec["consent_type"] != "document_handling" {
		t.Errorf("Неожиданный consent_type: %v", rec["consent_type"])
	}
	if rec["consent_version"] != "doc_v1.0" {
		t.Errorf("Неожиданный consent_version: %v", rec["consent_version"])
	}
	if _, has := rec["consent_scope"]; has {
		t.Error("У согласия document не должно быть consent_scope")
	}
	if rec["timestamp_utc"] != "2026-03-14T12:00:00Z" {
		t.Errorf("Неожиданный timestamp_utc: %v", rec["timestamp_utc"])
	}
	if rec["user_agent"] != "test-agent" {
		t.Errorf("Неожиданный user_agent: %v", rec["user_agent"])
	}
}

func TestRecord_SMSConsentHasScope(t *testing.T) {
	uploader := blob.NewMemoryUploader()
	svc := newTestConsentService(uploader)

	sessionID := "4f3c2a10-1111-2222-3333-444455556666"
	if err := svc.Record(context.Background(), model.ConsentSMS, sessionID, "203.0.113.7", "test-agent"); err != nil {
		t.Fatalf("Record вернул ошибку: %v", err)
	}

	data, ok := uploader.Get("consents/session_" + sessionID + "/consent.sms.json")
	if !ok {
		t.Fatal("Квитанция не записана под ожидаемым ключом")
	}

	var rec map[string]any
	if err := json.Unmarshal(data, &rec); err != nil {
		t.Fatalf("Ошибка разбора квитанции: %v", err)
	}
	if rec["consent_type"] != "sms_transactional" {
		t.Errorf("Неожиданный consent_type: %v", rec["consent_type"])
	}
	if rec["consent_scope"] != "one_time_transactional" {
		t.Errorf("Неожиданный consent_scope: %v", rec["consent_scope"])
	}
	if rec["consent_version"] != "sms_v1.0" {
		t.Errorf("Неожиданный consent_version: %v", rec["consent_version"])
	}
}

func TestRecord_SignatureVerifiable(t *testing.T) {
	uploader := blob.NewMemoryUploader()
	svc := newTestConsentService(uploader)

	sessionID := "4f3c2a10-1111-2222-3333-444455556666"
	if err := svc.Record(context.Background(), model.ConsentDocument, sessionID, "203.0.113.7", "test-agent"); err != nil {
		t.Fatalf("Record вернул ошибку: %v", err)
	}

	data, _ := uploader.Get("consents/session_" + sessionID + "/consent.document.json")

	var rec map[string]any
	if err := json.Unmarshal(data, &rec); err != nil {
		t.Fatalf("Ошибка разбора квитанции: %v", err)
	}
	sig, _ := rec["signature"].(string)
	if sig == "" {
		t.Fatal("В квитанции нет подписи")
	}

	// Пересчитываем подпись поверх квитанции без поля signature.
	delete(rec, "signature")
	msg, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("Ошибка канонизации: %v", err)
	}
	mac := hmac.New(sha256.New, []byte("test-consent-secret"))
	mac.Write(msg)
	want := hex.EncodeToString(mac.Sum(nil))
	if sig != want {
		t.Errorf("Подпись не сходится: получено %s, ожидалось %s", sig, want)
	}
}

func TestRecord_IPNotStoredRaw(t *testing.T) {
	uploader := blob.NewMemoryUploader()
	svc := newTestConsentService(uploader)

	ip := "203.0.113.7"
	sessionID := "4f3c2a10-1111-2222-3333-444455556666"
	if err := svc.Record(context.Background(), model.ConsentDocument, sessionID, ip, "test-agent"); err != nil {
		t.Fatalf("Record вернул ошибку: %v", err)
	}

	data, _ := uploader.Get("consents/session_" + sessionID + "/consent.document.json")

	var rec map[string]any
	if err := json.Unmarshal(data, &rec); err != nil {
		t.Fatalf("Ошибка разбора квитанции: %v", err)
	}
	sum := sha256.Sum256([]byte(ip + "test-salt"))
	if rec["ip_hash"] != hex.EncodeToString(sum[:]) {
		t.Errorf("Неожиданный ip_hash: %v", rec["ip_hash"])
	}
}

func TestRecord_UploaderFailure(t *testing.T) {
	uploader := blob.NewMemoryUploader()
	uploader.FailNext = true
	svc := newTestConsentService(uploader)

	err := svc.Record(context.Background(), model.ConsentDocument, "4f3c2a10-1111-2222-3333-444455556666", "203.0.113.7", "test-agent")
	if err == nil {
		t.Error("Ожидалась ошибка при сбое хранилища")
	}
}

func TestRecord_UnknownType(t *testing.T) {
	svc := newTestConsentService(blob.NewMemoryUploader())
	if err := svc.Record(context.Background(), model.ConsentType("voice"), "id", "ip", "ua"); err == nil {
		t.Error("Ожидалась ошибка для неизвестного типа согласия")
	}
}
