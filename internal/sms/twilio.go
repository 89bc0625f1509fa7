package sms

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// TwilioSender — Sender поверх Twilio Programmable Messaging.
type TwilioSender struct {
	client *twilio.RestClient
	from   string
	logger *slog.Logger
}

// NewTwilioSender создаёт отправителя с указанными учётными данными
// и номером отправителя.
func NewTwilioSender(accountSID, authToken, from string, logger *slog.Logger) *TwilioSender {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	return &TwilioSender{
		client: client,
		from:   from,
		logger: logger.With("component", "twilio"),
	}
}

// SendDownloadLink реализует Sender. Текст сообщения содержит ссылку,
// PIN и срок действия в минутах.
func (s *TwilioSender) SendDownloadLink(ctx context.Context, phone, url, pin string, ttl time.Duration) (string, error) {
	body := fmt.Sprintf(
		"Ваша форма Live Scan готова. Скачайте её по ссылке: %s\nPIN-код: %s\nСсылка действует %d минут и работает только один раз.",
		url, pin, int(ttl.Minutes()))

	params := &twilioApi.CreateMessageParams{}
	params.SetTo(phone)
	params.SetFrom(s.from)
	params.SetBody(body)

	resp, err := s.client.Api.CreateMessage(params)
	if err != nil {
		return "", fmt.Errorf("ошибка отправки SMS через Twilio: %w", err)
	}

	sid := ""
	if resp.Sid != nil {
		sid = *resp.Sid
	}
	s.logger.InfoContext(ctx, "SMS отправлено", "sid", sid)
	return sid, nil
}
