// Пакет email — отправка готового PDF вложением на email получателей.
// Внешний провайдер (SendGrid) скрыт за интерфейсом Sender,
// в тестах используется MemorySender.
package email

import (
	"context"
	"fmt"
	"sync"
)

// Sender — доставка PDF по email.
type Sender interface {
	// SendPDF отправляет файл pdfPath вложением всем получателям.
	SendPDF(ctx context.Context, to []string, pdfPath string) error
}

// Message — отправленное письмо (для проверок в тестах).
type Message struct {
	To      []string
	PDFPath string
}

// MemorySender — Sender, складывающий письма в память. Только для тестов.
type MemorySender struct {
	mu       sync.Mutex
	messages []Message

	// FailNext — если true, следующий вызов SendPDF вернёт ошибку
	FailNext bool
}

// NewMemorySender создаёт пустой MemorySender.
func NewMemorySender() *MemorySender {
	return &MemorySender{}
}

// SendPDF реализует Sender.
func (s *MemorySender) SendPDF(_ context.Context, to []string, pdfPath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailNext {
		s.FailNext = false
		return fmt.Errorf("memory sender: принудительная ошибка отправки")
	}

	s.messages = append(s.messages, Message{
		To:      append([]string(nil), to...),
		PDFPath: pdfPath,
	})
	return nil
}

// Messages возвращает копию отправленных писем.
func (s *MemorySender) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.messages...)
}
