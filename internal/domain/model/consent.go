// consent.go — модель квитанции согласия (consent receipt).
// Неизменяемый подписанный JSON-документ, записывается один раз
// в blob-хранилище и далее этим сервисом не читается.
package model

// ConsentType — тип согласия.
type ConsentType string

const (
	// ConsentDocument — согласие на обработку документа
	ConsentDocument ConsentType = "document"
	// ConsentSMS — согласие на транзакционное SMS
	ConsentSMS ConsentType = "sms"
)

// Valid проверяет, что тип согласия известен.
func (c ConsentType) Valid() bool {
	return c == ConsentDocument || c == ConsentSMS
}

// ConsentRecord — содержимое квитанции согласия.
// Поля сериализуются в канонический JSON (ключи отсортированы),
// подпись — HMAC-SHA256 поверх канонической формы без поля signature.
type ConsentRecord struct {
	// ConsentGiven — факт согласия (всегда true, квитанция пишется только при согласии)
	ConsentGiven bool `json:"consent_given"`

	// ConsentType — машинное имя типа согласия (document_handling, sms_transactional)
	ConsentType string `json:"consent_type"`

	// ConsentMethod — способ выражения согласия
	ConsentMethod string `json:"consent_method"`

	// ConsentScope — область действия (только для SMS)
	ConsentScope string `json:"consent_scope,omitempty"`

	// ConsentVersion — версия текста согласия
	ConsentVersion string `json:"consent_version"`

	// TimestampUTC — время согласия (RFC3339, UTC)
	TimestampUTC string `json:"timestamp_utc"`

	// IPHash — SHA-256 от IP клиента с солью (сырой IP не храним)
	IPHash string `json:"ip_hash"`

	// UserAgent — User-Agent клиента
	UserAgent string `json:"user_agent"`

	// Signature — HMAC-SHA256 (hex) поверх канонического JSON остальных полей
	Signature string `json:"signature,omitempty"`
}
