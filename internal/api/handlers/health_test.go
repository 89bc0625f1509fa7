package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
)

func TestHealthLive(t *testing.T) {
	h := NewHealthHandler(t.TempDir())

	rec := httptest.NewRecorder()
	h.HealthLive(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("Ожидался 200, получен %d", rec.Code)
	}

	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Ошибка разбора ответа: %v", err)
	}
	if resp["status"] != "ok" {
		t.Errorf("Неожиданный статус: %v", resp["status"])
	}
	if resp["service"] != "livescan" {
		t.Errorf("Неожиданное имя сервиса: %v", resp["service"])
	}
}

func TestHealthReady_OK(t *testing.T) {
	h := NewHealthHandler(t.TempDir())

	rec := httptest.NewRecorder()
	h.HealthReady(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("Ожидался 200, получен %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHealthReady_WorkDirMissing(t *testing.T) {
	h := NewHealthHandler(filepath.Join(t.TempDir(), "нет-такого-каталога"))

	rec := httptest.NewRecorder()
	h.HealthReady(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("Ожидался 503, получен %d", rec.Code)
	}

	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Ошибка разбора ответа: %v", err)
	}
	if resp["status"] != "fail" {
		t.Errorf("Неожиданный статус: %v", resp["status"])
	}
}
