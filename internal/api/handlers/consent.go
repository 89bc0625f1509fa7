// consent.go — обработчики сессий и квитанций согласия.
package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	apierrors "github.com/arturkryukov/livescan/internal/api/errors"
	"github.com/arturkryukov/livescan/internal/api/middleware"
	"github.com/arturkryukov/livescan/internal/domain/model"
	"github.com/arturkryukov/livescan/internal/service"
	"github.com/arturkryukov/livescan/internal/session"
)

// consentRequest — тело запроса POST /api/consent/{type}.
type consentRequest struct {
	SessionID    string `json:"session_id"`
	SessionToken string `json:"session_token"`
}

// ConsentHandler реализует /api/init и /api/consent/{type}.
type ConsentHandler struct {
	signer   *session.Signer
	consents *service.ConsentService
	logger   *slog.Logger
}

// NewConsentHandler создаёт обработчик сессий и согласий.
func NewConsentHandler(signer *session.Signer, consents *service.ConsentService, logger *slog.Logger) *ConsentHandler {
	return &ConsentHandler{
		signer:   signer,
		consents: consents,
		logger:   logger.With(slog.String("component", "consent_handler")),
	}
}

// Init обрабатывает POST /api/init: выдаёт идентификатор сессии и его
// подпись. Сервер ничего не хранит, подпись проверяется пересчётом.
func (h *ConsentHandler) Init(w http.ResponseWriter, _ *http.Request) {
	sessionID, token := h.signer.Issue()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"session_id":    sessionID,
		"session_token": token,
	})
}

// RecordConsent обрабатывает POST /api/consent/{type}.
//
// Порядок проверок: формат session_id (400) → подпись сессии (403) →
// тип согласия (404 на уровне роутера не гарантирован, проверяем сами).
// Квитанция пишется в blob-хранилище до ответа: согласие без квитанции
// не считается зафиксированным.
func (h *ConsentHandler) RecordConsent(w http.ResponseWriter, r *http.Request) {
	typ := model.ConsentType(chi.URLParam(r, "type"))
	if !typ.Valid() {
		apierrors.NotFound(w, "Неизвестный тип согласия")
		return
	}

	var req consentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, "Некорректное тело запроса")
		return
	}

	if _, err := uuid.Parse(req.SessionID); err != nil {
		apierrors.ValidationError(w, "Invalid session_id")
		return
	}
	if !h.signer.Verify(req.SessionID, req.SessionToken) {
		apierrors.Forbidden(w, "Invalid session token")
		return
	}

	if err := h.consents.Record(r.Context(), typ, req.SessionID, middleware.ClientIP(r), r.UserAgent()); err != nil {
		h.logger.ErrorContext(r.Context(), "Ошибка записи квитанции согласия",
			slog.String("session_id", req.SessionID),
			slog.String("type", string(typ)),
			slog.String("error", err.Error()),
		)
		apierrors.InternalError(w, "Failed to record consent")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
