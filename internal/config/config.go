// Пакет config — загрузка и валидация конфигурации Live Scan Backend
// из переменных окружения.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Режимы доставки результата сканирования.
const (
	// DeliveryEmail — PDF отправляется вложением на email получателей
	DeliveryEmail = "email"
	// DeliverySMS — получателю уходит SMS со ссылкой и PIN
	DeliverySMS = "sms"
)

// Config содержит все параметры конфигурации Live Scan Backend.
type Config struct {
	// Порт HTTP-сервера
	Port int
	// Корневая директория рабочих директорий запросов
	WorkDir string
	// Максимальный размер загружаемого изображения в байтах
	MaxUploadSize int64
	// Срок жизни токена скачивания
	TokenTTL time.Duration
	// Интервал периодического sweep истёкших токенов
	SweepInterval time.Duration
	// Лимит неудачных попыток PIN до блокировки токена
	MaxPINAttempts int
	// Режим доставки: email или sms
	DeliveryMode string
	// Базовый URL страницы скачивания (обязателен для sms)
	DownloadBaseURL string

	// Ключ подписи сессионных токенов (обязательный)
	SessionSigningSecret string
	// Ключ подписи квитанций согласия (обязательный)
	ConsentSigningSecret string
	// Соль для хэширования IP в квитанциях
	IPHashSalt string

	// Разрешённые CORS origins (список через запятую, * — все)
	CORSOrigins []string
	// Лимит запросов /api/scan на клиента в минуту
	RateLimitPerMinute int

	// Twilio (обязательны в режиме sms)
	TwilioAccountSID string
	TwilioAuthToken  string
	TwilioFromNumber string

	// SendGrid (обязательны в режиме email)
	SendGridAPIKey    string
	SendGridFromEmail string
	SendGridFromName  string

	// Cloudflare R2 — blob-хранилище квитанций согласия (обязательные)
	R2AccountID       string
	R2AccessKeyID     string
	R2SecretAccessKey string
	R2Bucket          string

	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string

	// Таймаут graceful shutdown HTTP-сервера
	ShutdownTimeout time.Duration
	// Интервал проверки зависимостей topologymetrics
	DephealthCheckInterval time.Duration
	// Имя группы в метриках topologymetrics
	DephealthGroup string
	// Имя владельца пода для метки name в topologymetrics
	DephealthName string
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
// Отсутствие обязательного секрета — фатальная ошибка конфигурации:
// процесс не должен стартовать.
func Load() (*Config, error) {
	cfg := &Config{}

	// LS_PORT — порт HTTP-сервера (по умолчанию 8000)
	port, err := getEnvInt("LS_PORT", 8000)
	if err != nil {
		return nil, fmt.Errorf("LS_PORT: %w", err)
	}
	if port <= 0 || port > 65535 {
		return nil, fmt.Errorf("LS_PORT: значение %d вне допустимого диапазона 1-65535", port)
	}
	cfg.Port = port

	// LS_WORK_DIR — обязательный
	cfg.WorkDir, err = getEnvRequired("LS_WORK_DIR")
	if err != nil {
		return nil, err
	}

	// LS_MAX_UPLOAD_SIZE — максимальный размер изображения (по умолчанию 10 MiB)
	maxUpload, err := getEnvInt64("LS_MAX_UPLOAD_SIZE", 10*1024*1024)
	if err != nil {
		return nil, fmt.Errorf("LS_MAX_UPLOAD_SIZE: %w", err)
	}
	if maxUpload <= 0 {
		return nil, fmt.Errorf("LS_MAX_UPLOAD_SIZE: значение должно быть положительным")
	}
	cfg.MaxUploadSize = maxUpload

	// LS_TOKEN_TTL — срок жизни токена скачивания (по умолчанию 1h)
	cfg.TokenTTL, err = getEnvDuration("LS_TOKEN_TTL", time.Hour)
	if err != nil {
		return nil, fmt.Errorf("LS_TOKEN_TTL: %w", err)
	}

	// LS_TOKEN_SWEEP_INTERVAL — интервал sweep (по умолчанию 60s)
	cfg.SweepInterval, err = getEnvDuration("LS_TOKEN_SWEEP_INTERVAL", time.Minute)
	if err != nil {
		return nil, fmt.Errorf("LS_TOKEN_SWEEP_INTERVAL: %w", err)
	}

	// LS_MAX_PIN_ATTEMPTS — лимит попыток PIN (по умолчанию 3)
	cfg.MaxPINAttempts, err = getEnvInt("LS_MAX_PIN_ATTEMPTS", 3)
	if err != nil {
		return nil, fmt.Errorf("LS_MAX_PIN_ATTEMPTS: %w", err)
	}
	if cfg.MaxPINAttempts <= 0 {
		return nil, fmt.Errorf("LS_MAX_PIN_ATTEMPTS: значение должно быть положительным")
	}

	// LS_DELIVERY_MODE — режим доставки (по умолчанию email)
	cfg.DeliveryMode = getEnvDefault("LS_DELIVERY_MODE", DeliveryEmail)
	if cfg.DeliveryMode != DeliveryEmail && cfg.DeliveryMode != DeliverySMS {
		return nil, fmt.Errorf("LS_DELIVERY_MODE: недопустимое значение %q, допустимые: email, sms", cfg.DeliveryMode)
	}

	// LS_DOWNLOAD_BASE_URL — база ссылки в SMS (обязателен в режиме sms)
	cfg.DownloadBaseURL = strings.TrimRight(getEnvDefault("LS_DOWNLOAD_BASE_URL", ""), "/")
	if cfg.DeliveryMode == DeliverySMS && cfg.DownloadBaseURL == "" {
		return nil, fmt.Errorf("LS_DOWNLOAD_BASE_URL: обязателен при LS_DELIVERY_MODE=sms")
	}

	// LS_SESSION_SIGNING_SECRET — обязательный
	cfg.SessionSigningSecret, err = getEnvRequired("LS_SESSION_SIGNING_SECRET")
	if err != nil {
		return nil, err
	}

	// LS_CONSENT_SIGNING_SECRET — обязательный
	cfg.ConsentSigningSecret, err = getEnvRequired("LS_CONSENT_SIGNING_SECRET")
	if err != nil {
		return nil, err
	}

	// LS_IP_HASH_SALT — соль хэширования IP (опционально)
	cfg.IPHashSalt = getEnvDefault("LS_IP_HASH_SALT", "")

	// LS_CORS_ORIGINS — разрешённые origins (по умолчанию *)
	cfg.CORSOrigins = splitNonEmpty(getEnvDefault("LS_CORS_ORIGINS", "*"))

	// LS_RATE_LIMIT_PER_MINUTE — лимит /api/scan (по умолчанию 3)
	cfg.RateLimitPerMinute, err = getEnvInt("LS_RATE_LIMIT_PER_MINUTE", 3)
	if err != nil {
		return nil, fmt.Errorf("LS_RATE_LIMIT_PER_MINUTE: %w", err)
	}
	if cfg.RateLimitPerMinute <= 0 {
		return nil, fmt.Errorf("LS_RATE_LIMIT_PER_MINUTE: значение должно быть положительным")
	}

	// Провайдер SMS: учётные данные Twilio обязательны в режиме sms
	cfg.TwilioAccountSID = getEnvDefault("TWILIO_ACCOUNT_SID", "")
	cfg.TwilioAuthToken = getEnvDefault("TWILIO_AUTH_TOKEN", "")
	cfg.TwilioFromNumber = getEnvDefault("TWILIO_FROM_NUMBER", "")
	if cfg.DeliveryMode == DeliverySMS {
		if cfg.TwilioAccountSID == "" || cfg.TwilioAuthToken == "" || cfg.TwilioFromNumber == "" {
			return nil, fmt.Errorf("TWILIO_ACCOUNT_SID, TWILIO_AUTH_TOKEN, TWILIO_FROM_NUMBER: обязательны при LS_DELIVERY_MODE=sms")
		}
	}

	// Провайдер email: учётные данные SendGrid обязательны в режиме email
	cfg.SendGridAPIKey = getEnvDefault("SENDGRID_API_KEY", "")
	cfg.SendGridFromEmail = getEnvDefault("SENDGRID_FROM_EMAIL", "")
	cfg.SendGridFromName = getEnvDefault("SENDGRID_FROM_NAME", "Live Scan")
	if cfg.DeliveryMode == DeliveryEmail {
		if cfg.SendGridAPIKey == "" || cfg.SendGridFromEmail == "" {
			return nil, fmt.Errorf("SENDGRID_API_KEY, SENDGRID_FROM_EMAIL: обязательны при LS_DELIVERY_MODE=email")
		}
	}

	// Cloudflare R2 — обязательные (квитанции согласия)
	cfg.R2AccountID, err = getEnvRequired("R2_ACCOUNT_ID")
	if err != nil {
		return nil, err
	}
	cfg.R2AccessKeyID, err = getEnvRequired("R2_ACCESS_KEY_ID")
	if err != nil {
		return nil, err
	}
	cfg.R2SecretAccessKey, err = getEnvRequired("R2_SECRET_ACCESS_KEY")
	if err != nil {
		return nil, err
	}
	cfg.R2Bucket, err = getEnvRequired("R2_BUCKET_NAME")
	if err != nil {
		return nil, err
	}

	// LS_LOG_LEVEL — уровень логирования (по умолчанию info)
	cfg.LogLevel, err = parseLogLevel(getEnvDefault("LS_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("LS_LOG_LEVEL: %w", err)
	}

	// LS_LOG_FORMAT — формат логов (по умолчанию json)
	cfg.LogFormat = getEnvDefault("LS_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("LS_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	// LS_SHUTDOWN_TIMEOUT — таймаут graceful shutdown (по умолчанию 5s)
	cfg.ShutdownTimeout, err = getEnvDuration("LS_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("LS_SHUTDOWN_TIMEOUT: %w", err)
	}

	// LS_DEPHEALTH_CHECK_INTERVAL — интервал проверки зависимостей (по умолчанию 15s)
	cfg.DephealthCheckInterval, err = getEnvDuration("LS_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("LS_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}

	// LS_DEPHEALTH_GROUP — имя группы в метриках topologymetrics
	cfg.DephealthGroup = getEnvDefault("LS_DEPHEALTH_GROUP", "livescan")

	// DEPHEALTH_NAME — имя владельца пода для метки name в topologymetrics
	cfg.DephealthName = getEnvDefault("DEPHEALTH_NAME", "livescan")

	return cfg, nil
}

// R2Endpoint возвращает S3-совместимый endpoint Cloudflare R2.
func (c *Config) R2Endpoint() string {
	return fmt.Sprintf("https://%s.r2.cloudflarestorage.com", c.R2AccountID)
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvInt64 возвращает int64 значение переменной окружения или значение по умолчанию.
func getEnvInt64(key string, defaultVal int64) (int64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h)", val)
	}
	return d, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}

// splitNonEmpty разбивает строку по запятым, отбрасывая пустые элементы.
func splitNonEmpty(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
