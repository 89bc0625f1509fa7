// Точка входа Live Scan Backend — сервиса приёма сканов документов,
// конвертации в PDF и защищённой доставки.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/arturkryukov/livescan/internal/api/handlers"
	"github.com/arturkryukov/livescan/internal/api/middleware"
	"github.com/arturkryukov/livescan/internal/blob"
	"github.com/arturkryukov/livescan/internal/config"
	"github.com/arturkryukov/livescan/internal/email"
	"github.com/arturkryukov/livescan/internal/imaging"
	"github.com/arturkryukov/livescan/internal/pdf"
	"github.com/arturkryukov/livescan/internal/server"
	"github.com/arturkryukov/livescan/internal/service"
	"github.com/arturkryukov/livescan/internal/session"
	"github.com/arturkryukov/livescan/internal/sms"
	"github.com/arturkryukov/livescan/internal/tokenstore"
)

func main() {
	// Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ошибка конфигурации: %v\n", err)
		os.Exit(1)
	}

	// Настройка логгера
	logger := config.SetupLogger(cfg)
	logger.Info("Live Scan Backend запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
		slog.String("delivery_mode", cfg.DeliveryMode),
		slog.String("work_dir", cfg.WorkDir),
	)

	// --- Инициализация компонентов ---

	// 1. Рабочий каталог
	if err := os.MkdirAll(cfg.WorkDir, 0o750); err != nil {
		logger.Error("Ошибка создания рабочего каталога", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx := context.Background()

	// 2. Хранилище токенов скачивания
	tokens := tokenstore.New(cfg.MaxPINAttempts)

	// 3. Внешние провайдеры
	emailSender := email.NewSendGridSender(cfg.SendGridAPIKey, cfg.SendGridFromEmail, cfg.SendGridFromName, logger)
	smsSender := sms.NewTwilioSender(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioFromNumber, logger)

	uploader, err := blob.NewR2Uploader(ctx, cfg.R2Endpoint(), cfg.R2AccessKeyID, cfg.R2SecretAccessKey, cfg.R2Bucket, logger)
	if err != nil {
		logger.Error("Ошибка инициализации R2", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 4. Сервисы
	scanSvc := service.NewScanService(cfg,
		imaging.NewDocumentProcessor(logger),
		pdf.NewA4Renderer(),
		emailSender, smsSender, tokens, logger)
	consentSvc := service.NewConsentService(uploader, cfg.ConsentSigningSecret, cfg.IPHashSalt, logger)
	signer := session.NewSigner(cfg.SessionSigningSecret)

	// 5. Фоновые процессы

	// 5.1 Sweeper — уборка истёкших токенов и их файлов
	sweeper := service.NewSweeper(tokens, cfg.WorkDir, cfg.SweepInterval, logger)
	sweeper.Start(ctx)
	defer sweeper.Stop()

	// 5.2 topologymetrics — мониторинг внешних провайдеров
	dephealthSvc, dephealthErr := service.NewDephealthService(cfg, logger)
	if dephealthErr != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", dephealthErr.Error()),
		)
	} else {
		if startErr := dephealthSvc.Start(ctx); startErr != nil {
			logger.Warn("Ошибка запуска topologymetrics",
				slog.String("error", startErr.Error()),
			)
		} else {
			defer dephealthSvc.Stop()
			logger.Info("topologymetrics запущен",
				slog.String("check_interval", cfg.DephealthCheckInterval.String()),
			)
		}
	}

	// 6. Handlers
	rateLimiter := middleware.NewRateLimiter(cfg.RateLimitPerMinute)
	apiHandler := handlers.NewAPIHandler(
		handlers.NewScanHandler(scanSvc, cfg, logger),
		handlers.NewDownloadHandler(tokens, cfg.WorkDir, logger),
		handlers.NewConsentHandler(signer, consentSvc, logger),
		handlers.NewHealthHandler(cfg.WorkDir),
		rateLimiter.Middleware(),
	)

	// 7. HTTP-сервер
	srv := server.New(cfg, logger, apiHandler)
	if err := srv.Run(); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
