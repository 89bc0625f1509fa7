// Пакет sms — отправка SMS со ссылкой на скачивание и PIN-кодом.
// Внешний провайдер (Twilio) скрыт за интерфейсом Sender,
// в тестах используется MemorySender.
package sms

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Sender — доставка ссылки на скачивание по SMS.
type Sender interface {
	// SendDownloadLink отправляет SMS с URL, PIN и сроком действия.
	// Возвращает идентификатор сообщения у провайдера.
	SendDownloadLink(ctx context.Context, phone, url, pin string, ttl time.Duration) (string, error)
}

// Message — отправленное SMS (для проверок в тестах).
type Message struct {
	Phone string
	URL   string
	PIN   string
	TTL   time.Duration
}

// MemorySender — Sender, складывающий сообщения в память. Только для тестов.
type MemorySender struct {
	mu       sync.Mutex
	messages []Message

	// FailNext — если true, следующий вызов вернёт ошибку
	FailNext bool
}

// NewMemorySender создаёт пустой MemorySender.
func NewMemorySender() *MemorySender {
	return &MemorySender{}
}

// SendDownloadLink реализует Sender.
func (s *MemorySender) SendDownloadLink(_ context.Context, phone, url, pin string, ttl time.Duration) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailNext {
		s.FailNext = false
		return "", fmt.Errorf("memory sender: принудительная ошибка отправки")
	}

	s.messages = append(s.messages, Message{Phone: phone, URL: url, PIN: pin, TTL: ttl})
	return fmt.Sprintf("mem-%d", len(s.messages)), nil
}

// Messages возвращает копию отправленных сообщений.
func (s *MemorySender) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.messages...)
}
