package email

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

const (
	defaultSubject = "Ваша форма Live Scan"
	defaultBody    = "<p>Во вложении — отсканированная форма Live Scan в формате PDF.</p>"
)

// SendGridSender — Sender поверх SendGrid API v3.
type SendGridSender struct {
	client   *sendgrid.Client
	from     string
	fromName string
	logger   *slog.Logger
}

// NewSendGridSender создаёт отправителя с указанным API-ключом и адресом отправителя.
func NewSendGridSender(apiKey, from, fromName string, logger *slog.Logger) *SendGridSender {
	return &SendGridSender{
		client:   sendgrid.NewSendClient(apiKey),
		from:     from,
		fromName: fromName,
		logger:   logger.With("component", "sendgrid"),
	}
}

// SendPDF реализует Sender. Файл вкладывается целиком в base64,
// получатели добавляются в одну персонализацию.
func (s *SendGridSender) SendPDF(ctx context.Context, to []string, pdfPath string) error {
	data, err := os.ReadFile(pdfPath)
	if err != nil {
		return fmt.Errorf("ошибка чтения PDF %s: %w", pdfPath, err)
	}

	m := mail.NewV3Mail()
	m.SetFrom(mail.NewEmail(s.fromName, s.from))
	m.Subject = defaultSubject

	p := mail.NewPersonalization()
	for _, rcpt := range to {
		p.AddTos(mail.NewEmail("", rcpt))
	}
	m.AddPersonalizations(p)
	m.AddContent(mail.NewContent("text/html", defaultBody))

	att := mail.NewAttachment()
	att.SetContent(base64.StdEncoding.EncodeToString(data))
	att.SetType("application/pdf")
	att.SetFilename(filepath.Base(pdfPath))
	att.SetDisposition("attachment")
	m.AddAttachment(att)

	resp, err := s.client.SendWithContext(ctx, m)
	if err != nil {
		return fmt.Errorf("ошибка отправки email через SendGrid: %w", err)
	}
	if resp.StatusCode != 200 && resp.StatusCode != 202 {
		return fmt.Errorf("SendGrid вернул статус %d: %s", resp.StatusCode, resp.Body)
	}

	s.logger.Info("Email отправлен",
		"recipients", len(to),
		"attachment", filepath.Base(pdfPath),
		"status", resp.StatusCode)
	return nil
}
