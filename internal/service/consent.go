// consent.go — формирование и запись подписанных квитанций согласия.
package service

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/arturkryukov/livescan/internal/blob"
	"github.com/arturkryukov/livescan/internal/domain/model"
)

// Машинные имена и версии текстов согласий.
const (
	consentMethodCheckbox = "checkbox"

	documentConsentType    = "document_handling"
	documentConsentVersion = "doc_v1.0"

	smsConsentType    = "sms_transactional"
	smsConsentScope   = "one_time_transactional"
	smsConsentVersion = "sms_v1.0"
)

// ConsentService записывает квитанции согласий в blob-хранилище.
// Квитанция подписывается HMAC-SHA256 поверх канонического JSON
// (ключи отсортированы) и после записи сервисом не читается.
type ConsentService struct {
	uploader blob.Uploader
	secret   []byte
	ipSalt   string
	logger   *slog.Logger

	now func() time.Time
}

// NewConsentService создаёт сервис с указанным хранилищем и секретом подписи.
func NewConsentService(uploader blob.Uploader, signingSecret, ipSalt string, logger *slog.Logger) *ConsentService {
	return &ConsentService{
		uploader: uploader,
		secret:   []byte(signingSecret),
		ipSalt:   ipSalt,
		logger:   logger.With("component", "consent"),
		now:      time.Now,
	}
}

// Record строит квитанцию согласия типа typ для сессии sessionID
// и записывает её под ключ consents/session_{id}/consent.{type}.json.
func (s *ConsentService) Record(ctx context.Context, typ model.ConsentType, sessionID, clientIP, userAgent string) error {
	if !typ.Valid() {
		return fmt.Errorf("неизвестный тип согласия: %s", typ)
	}
	if userAgent == "" {
		userAgent = "unknown"
	}

	rec := model.ConsentRecord{
		ConsentGiven:  true,
		ConsentMethod: consentMethodCheckbox,
		TimestampUTC:  s.now().UTC().Format(time.RFC3339),
		IPHash:        s.hashIP(clientIP),
		UserAgent:     userAgent,
	}
	switch typ {
	case model.ConsentDocument:
		rec.ConsentType = documentConsentType
		rec.ConsentVersion = documentConsentVersion
	case model.ConsentSMS:
		rec.ConsentType = smsConsentType
		rec.ConsentScope = smsConsentScope
		rec.ConsentVersion = smsConsentVersion
	}

	sig, err := s.sign(rec)
	if err != nil {
		return err
	}
	rec.Signature = sig

	payload, err := canonicalJSON(rec)
	if err != nil {
		return err
	}

	key := fmt.Sprintf("consents/session_%s/consent.%s.json", sessionID, typ)
	if err := s.uploader.Put(ctx, key, payload, "application/json"); err != nil {
		return fmt.Errorf("ошибка записи квитанции согласия: %w", err)
	}

	s.logger.InfoContext(ctx, "Квитанция согласия записана",
		"session_id", sessionID, "type", string(typ))
	return nil
}

// sign вычисляет hex HMAC-SHA256 поверх канонической формы квитанции
// без поля signature.
func (s *ConsentService) sign(rec model.ConsentRecord) (string, error) {
	rec.Signature = ""
	msg, err := canonicalJSON(rec)
	if err != nil {
		return "", err
	}
	mac := hmac.New(sha256.New, s.secret)
	mac.Write(msg)
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// hashIP возвращает SHA-256 от IP с солью; сырой адрес не сохраняется.
func (s *ConsentService) hashIP(ip string) string {
	sum := sha256.Sum256([]byte(ip + s.ipSalt))
	return hex.EncodeToString(sum[:])
}

// canonicalJSON сериализует квитанцию с отсортированными ключами.
// Промежуточная map нужна потому, что encoding/json сортирует ключи
// только у map, а у структур сохраняет порядок объявления полей.
func canonicalJSON(rec model.ConsentRecord) ([]byte, error) {
	direct, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("ошибка сериализации квитанции: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(direct, &m); err != nil {
		return nil, fmt.Errorf("ошибка канонизации квитанции: %w", err)
	}
	out, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("ошибка канонизации квитанции: %w", err)
	}
	return out, nil
}
