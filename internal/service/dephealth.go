// dephealth.go — интеграция с topologymetrics SDK для мониторинга зависимостей.
//
// Live Scan Backend мониторит внешние провайдеры:
//   - Twilio API — доставка SMS (critical в режиме sms)
//   - SendGrid API — доставка email (critical в режиме email)
//   - Cloudflare R2 — хранилище квитанций согласия (critical)
//
// Метрики доступны на /metrics вместе с остальными Prometheus-метриками:
//   - app_dependency_health — состояние зависимости (1 = ok, 0 = fail)
//   - app_dependency_latency_seconds — задержка проверки
//   - app_dependency_status — категория статуса
//   - app_dependency_status_detail — детальный статус
package service

import (
	"context"
	"log/slog"

	"github.com/BigKAA/topologymetrics/sdk-go/dephealth"
	_ "github.com/BigKAA/topologymetrics/sdk-go/dephealth/checks/httpcheck" // регистрация HTTP checker factory
	"github.com/prometheus/client_golang/prometheus"

	"github.com/arturkryukov/livescan/internal/config"
)

// URL внешних провайдеров для health-проверок.
const (
	twilioHealthURL   = "https://api.twilio.com"
	sendgridHealthURL = "https://api.sendgrid.com"
)

// DephealthService — сервис мониторинга зависимостей через topologymetrics.
type DephealthService struct {
	dh     *dephealth.DepHealth
	logger *slog.Logger
}

// NewDephealthService создаёт сервис мониторинга зависимостей.
// Метрики регистрируются в глобальном Prometheus registry.
//
// Критичность провайдера зависит от режима доставки: в режиме email
// недоступный Twilio не мешает работе, и наоборот. R2 критичен всегда:
// без квитанции согласия конвейер не принимает запросы.
func NewDephealthService(cfg *config.Config, logger *slog.Logger) (*DephealthService, error) {
	return newDephealthService(cfg, logger)
}

// NewDephealthServiceWithRegisterer создаёт сервис с указанным Prometheus
// registerer. Используется в тестах для изоляции метрик.
func NewDephealthServiceWithRegisterer(cfg *config.Config, logger *slog.Logger, registerer prometheus.Registerer) (*DephealthService, error) {
	return newDephealthService(cfg, logger, dephealth.WithRegisterer(registerer))
}

// newDephealthService — внутренний конструктор.
func newDephealthService(cfg *config.Config, logger *slog.Logger, extraOpts ...dephealth.Option) (*DephealthService, error) {
	depOpts := func(rawURL string, critical bool) []dephealth.DependencyOption {
		return []dephealth.DependencyOption{
			dephealth.FromURL(rawURL),
			dephealth.CheckInterval(cfg.DephealthCheckInterval),
			dephealth.Critical(critical),
			dephealth.WithHTTPTLSSkipVerify(false),
		}
	}

	opts := make([]dephealth.Option, 0, 4+len(extraOpts))
	opts = append(opts,
		dephealth.WithLogger(logger),
		dephealth.HTTP("twilio",
			depOpts(twilioHealthURL, cfg.DeliveryMode == config.DeliverySMS)...),
		dephealth.HTTP("sendgrid",
			depOpts(sendgridHealthURL, cfg.DeliveryMode == config.DeliveryEmail)...),
		dephealth.HTTP("r2",
			depOpts(cfg.R2Endpoint(), true)...),
	)
	opts = append(opts, extraOpts...)

	dh, err := dephealth.New(cfg.DephealthName, cfg.DephealthGroup, opts...)
	if err != nil {
		return nil, err
	}

	return &DephealthService{
		dh:     dh,
		logger: logger.With(slog.String("component", "dephealth")),
	}, nil
}

// Start запускает периодическую проверку зависимостей.
func (ds *DephealthService) Start(ctx context.Context) error {
	ds.logger.Info("Мониторинг зависимостей запущен (Twilio + SendGrid + R2)")
	return ds.dh.Start(ctx)
}

// Stop останавливает мониторинг зависимостей.
func (ds *DephealthService) Stop() {
	ds.dh.Stop()
	ds.logger.Info("Мониторинг зависимостей остановлен")
}

// Health возвращает текущее состояние зависимостей.
// Ключ — имя зависимости, значение — true если ok.
func (ds *DephealthService) Health() map[string]bool {
	return ds.dh.Health()
}
