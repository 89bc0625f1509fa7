// Пакет session — выдача и проверка HMAC-подписанных сессионных токенов.
//
// Сессия stateless: сервер не хранит ничего, кроме ключа подписи.
// Токен — hex(HMAC-SHA256(session_id)), проверяется пересчётом.
// В отличие от PIN токена скачивания, сравнение здесь constant-time:
// сессионный токен — полноценный bearer credential.
package session

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"

	"github.com/google/uuid"
)

// Signer — подпись и проверка сессионных идентификаторов.
type Signer struct {
	secret []byte
}

// NewSigner создаёт Signer с указанным ключом подписи.
// Пустой ключ недопустим — отклоняется на уровне config.Load.
func NewSigner(secret string) *Signer {
	return &Signer{secret: []byte(secret)}
}

// Issue выдаёт новую сессию: случайный идентификатор и его подпись.
func (s *Signer) Issue() (sessionID, token string) {
	sessionID = uuid.New().String()
	return sessionID, s.Sign(sessionID)
}

// Sign возвращает hex(HMAC-SHA256(sessionID)).
func (s *Signer) Sign(sessionID string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(sessionID))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify проверяет подпись сессии. Сравнение constant-time (hmac.Equal).
func (s *Signer) Verify(sessionID, token string) bool {
	expected := s.Sign(sessionID)
	return hmac.Equal([]byte(expected), []byte(token))
}
