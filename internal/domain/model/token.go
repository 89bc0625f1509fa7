// Пакет model — доменные модели Live Scan Backend.
// DownloadToken — одноразовый, ограниченный по времени грант на скачивание
// одного файла. Живёт только в памяти процесса (in-memory store).
package model

import (
	"time"
)

// DefaultMaxAttempts — количество попыток ввода PIN до блокировки токена.
const DefaultMaxAttempts = 3

// DownloadToken — запись о выданной ссылке на скачивание.
// Токен передаётся в URL, PIN доставляется отдельным каналом (SMS),
// поэтому утечка одного токена не даёт доступа к файлу.
type DownloadToken struct {
	// Token — непредсказуемый идентификатор (UUID v4)
	Token string

	// FilePath — абсолютный путь к PDF на диске.
	// Файл удаляется после успешного скачивания или при sweep.
	FilePath string

	// PIN — короткий числовой секрет (4 цифры).
	// Никогда не возвращается в API-ответах.
	PIN string

	// ExpiresAt — абсолютное время истечения (UTC)
	ExpiresAt time.Time

	// Used — флаг одноразового потребления.
	// После установки в true токен больше не выдаёт файл.
	Used bool

	// Attempts — количество неудачных проверок PIN.
	// Только растёт, никогда не сбрасывается.
	Attempts int

	// MaxAttempts — лимит неудачных попыток (политика, фиксируется при создании)
	MaxAttempts int

	// Locked — постоянная блокировка после исчерпания попыток.
	// Монотонный флаг: установленный, не снимается.
	Locked bool
}

// IsExpired проверяет, истёк ли срок действия токена.
func (t *DownloadToken) IsExpired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}
