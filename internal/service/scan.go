// Пакет service — бизнес-логика Live Scan.
// scan.go — конвейер обработки скана: валидация, сохранение, обработка
// изображения, сборка PDF и доставка (email или SMS со ссылкой).
package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	apierrors "github.com/arturkryukov/livescan/internal/api/errors"
	"github.com/arturkryukov/livescan/internal/config"
	"github.com/arturkryukov/livescan/internal/email"
	"github.com/arturkryukov/livescan/internal/imaging"
	"github.com/arturkryukov/livescan/internal/pdf"
	"github.com/arturkryukov/livescan/internal/sms"
	"github.com/arturkryukov/livescan/internal/tokenstore"
)

// Prometheus метрики конвейера
var (
	// scansTotal — количество обработанных сканов по результату.
	scansTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ls_scans_total",
			Help: "Общее количество запросов обработки скана по результатам",
		},
		[]string{"result", "delivery"},
	)

	// scanDuration — длительность полного конвейера.
	scanDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ls_scan_pipeline_duration_seconds",
		Help:    "Длительность конвейера обработки скана",
		Buckets: prometheus.DefBuckets,
	})
)

// ScanParams — параметры запроса обработки скана.
type ScanParams struct {
	// Reader — поток данных загружаемого изображения
	Reader io.Reader
	// Filename — оригинальное имя файла
	Filename string
	// ContentType — MIME-тип файла
	ContentType string
	// Size — размер файла (из multipart part)
	Size int64
	// ConsentGiven — подтверждение согласия из формы
	ConsentGiven bool
	// Emails — получатели через запятую (режим email)
	Emails string
	// Phone — номер телефона получателя (режим sms)
	Phone string
}

// ScanResult — результат успешной обработки.
type ScanResult struct {
	// Delivery — фактический способ доставки (email или sms)
	Delivery string
	// SentTo — адреса, на которые отправлен PDF (режим email)
	SentTo []string
}

// ScanError — ошибка конвейера с HTTP-кодом.
type ScanError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *ScanError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// ScanService — сервис конвейера обработки сканов.
type ScanService struct {
	cfg       *config.Config
	processor imaging.Processor
	renderer  pdf.Renderer
	email     email.Sender
	sms       sms.Sender
	tokens    *tokenstore.Store
	logger    *slog.Logger
}

// NewScanService создаёт сервис конвейера.
func NewScanService(
	cfg *config.Config,
	processor imaging.Processor,
	renderer pdf.Renderer,
	emailSender email.Sender,
	smsSender sms.Sender,
	tokens *tokenstore.Store,
	logger *slog.Logger,
) *ScanService {
	return &ScanService{
		cfg:       cfg,
		processor: processor,
		renderer:  renderer,
		email:     emailSender,
		sms:       smsSender,
		tokens:    tokens,
		logger:    logger.With(slog.String("component", "scan_service")),
	}
}

// Scan выполняет полный конвейер обработки.
//
// Поток:
//  1. Валидация: согласие → тип файла → размер → получатели
//  2. Свежий рабочий каталог {LS_WORK_DIR}/{uuid}
//  3. Сохранение загрузки под фиксированным именем upload.<ext>
//  4. Обработка изображения → сборка PDF
//  5. Доставка: email (вложение) или sms (токен + ссылка + PIN)
//
// Уборка только после успеха: в режиме email удаляется весь рабочий
// каталог, в режиме sms — промежуточные файлы (PDF живёт до скачивания
// или sweep). При любой ошибке каталог остаётся на диске для разбора,
// клиенту уходит общий ответ без деталей.
func (s *ScanService) Scan(ctx context.Context, params ScanParams) (*ScanResult, *ScanError) {
	timer := prometheus.NewTimer(scanDuration)
	defer timer.ObserveDuration()

	// 1. Согласие обязательно
	if !params.ConsentGiven {
		scansTotal.WithLabelValues("rejected", s.cfg.DeliveryMode).Inc()
		return nil, &ScanError{
			StatusCode: 400,
			Code:       apierrors.CodeValidationError,
			Message:    "Consent is required",
		}
	}

	// 2. Принимаем только изображения
	if !strings.HasPrefix(params.ContentType, "image/") {
		scansTotal.WithLabelValues("rejected", s.cfg.DeliveryMode).Inc()
		return nil, &ScanError{
			StatusCode: 400,
			Code:       apierrors.CodeValidationError,
			Message:    "Invalid image file",
		}
	}

	// 3. Лимит размера до записи на диск
	if params.Size > s.cfg.MaxUploadSize {
		scansTotal.WithLabelValues("rejected", s.cfg.DeliveryMode).Inc()
		return nil, &ScanError{
			StatusCode: 413,
			Code:       apierrors.CodeFileTooLarge,
			Message:    fmt.Sprintf("File size %d bytes exceeds limit %d bytes", params.Size, s.cfg.MaxUploadSize),
		}
	}

	// 4. Получатели
	recipients := splitEmails(params.Emails)
	if s.cfg.DeliveryMode == config.DeliveryEmail && len(recipients) == 0 {
		scansTotal.WithLabelValues("rejected", s.cfg.DeliveryMode).Inc()
		return nil, &ScanError{
			StatusCode: 400,
			Code:       apierrors.CodeValidationError,
			Message:    "At least one email required",
		}
	}
	phone := strings.TrimSpace(params.Phone)
	if s.cfg.DeliveryMode == config.DeliverySMS && phone == "" {
		scansTotal.WithLabelValues("rejected", s.cfg.DeliveryMode).Inc()
		return nil, &ScanError{
			StatusCode: 400,
			Code:       apierrors.CodeValidationError,
			Message:    "Phone number is required",
		}
	}

	// 5. Рабочий каталог запроса
	workDir := filepath.Join(s.cfg.WorkDir, uuid.New().String())
	if err := os.MkdirAll(workDir, 0o750); err != nil {
		s.logger.ErrorContext(ctx, "Ошибка создания рабочего каталога",
			slog.String("dir", workDir), slog.String("error", err.Error()))
		scansTotal.WithLabelValues("error", s.cfg.DeliveryMode).Inc()
		return nil, internalScanError()
	}

	uploadPath := filepath.Join(workDir, "upload"+uploadExt(params.Filename))
	if err := saveUpload(uploadPath, params.Reader, s.cfg.MaxUploadSize); err != nil {
		s.logger.ErrorContext(ctx, "Ошибка сохранения загрузки",
			slog.String("path", uploadPath), slog.String("error", err.Error()))
		scansTotal.WithLabelValues("error", s.cfg.DeliveryMode).Inc()
		return nil, internalScanError()
	}

	// 6. Обработка изображения
	processedPath, err := s.processor.Process(uploadPath)
	if err != nil {
		s.logger.ErrorContext(ctx, "Ошибка обработки изображения",
			slog.String("path", uploadPath), slog.String("error", err.Error()))
		scansTotal.WithLabelValues("error", s.cfg.DeliveryMode).Inc()
		return nil, internalScanError()
	}

	// 7. Сборка PDF
	pdfPath := filepath.Join(workDir, "scan.pdf")
	if err := s.renderer.Render(processedPath, pdfPath); err != nil {
		s.logger.ErrorContext(ctx, "Ошибка сборки PDF",
			slog.String("path", processedPath), slog.String("error", err.Error()))
		scansTotal.WithLabelValues("error", s.cfg.DeliveryMode).Inc()
		return nil, internalScanError()
	}

	// 8. Доставка
	if s.cfg.DeliveryMode == config.DeliverySMS {
		if serr := s.deliverSMS(ctx, pdfPath, phone, uploadPath, processedPath); serr != nil {
			scansTotal.WithLabelValues("error", s.cfg.DeliveryMode).Inc()
			return nil, serr
		}
		scansTotal.WithLabelValues("success", s.cfg.DeliveryMode).Inc()
		return &ScanResult{Delivery: config.DeliverySMS}, nil
	}

	if err := s.email.SendPDF(ctx, recipients, pdfPath); err != nil {
		s.logger.ErrorContext(ctx, "Ошибка отправки email",
			slog.Int("recipients", len(recipients)), slog.String("error", err.Error()))
		scansTotal.WithLabelValues("error", s.cfg.DeliveryMode).Inc()
		return nil, internalScanError()
	}

	// Уборка только после успешной отправки
	if err := os.RemoveAll(workDir); err != nil {
		s.logger.Warn("Ошибка удаления рабочего каталога",
			slog.String("dir", workDir), slog.String("error", err.Error()))
	}

	s.logger.InfoContext(ctx, "Скан отправлен по email",
		slog.Int("recipients", len(recipients)))
	scansTotal.WithLabelValues("success", s.cfg.DeliveryMode).Inc()
	return &ScanResult{Delivery: config.DeliveryEmail, SentTo: recipients}, nil
}

// deliverSMS выдаёт токен на готовый PDF и отправляет SMS со ссылкой
// и PIN. Промежуточные файлы удаляются, PDF остаётся до скачивания
// или истечения срока.
func (s *ScanService) deliverSMS(ctx context.Context, pdfPath, phone, uploadPath, processedPath string) *ScanError {
	token, pin, err := s.tokens.Create(pdfPath, s.cfg.TokenTTL)
	if err != nil {
		s.logger.ErrorContext(ctx, "Ошибка выдачи токена", slog.String("error", err.Error()))
		return internalScanError()
	}

	url := s.cfg.DownloadBaseURL + "/" + token
	sid, err := s.sms.SendDownloadLink(ctx, phone, url, pin, s.cfg.TokenTTL)
	if err != nil {
		// Токен без доставленного SMS бесполезен и опасен: гасим его
		s.tokens.Invalidate(token)
		s.logger.ErrorContext(ctx, "Ошибка отправки SMS", slog.String("error", err.Error()))
		return internalScanError()
	}

	for _, p := range []string{uploadPath, processedPath} {
		if p != pdfPath {
			_ = os.Remove(p)
		}
	}

	s.logger.InfoContext(ctx, "Скан доставлен ссылкой по SMS",
		slog.String("token", token), slog.String("sms_sid", sid))
	return nil
}

// saveUpload пишет поток в dst, страхуясь лимитом размера на случай,
// когда заявленный Size меньше фактического.
func saveUpload(dst string, r io.Reader, limit int64) error {
	f, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer f.Close()

	n, err := io.Copy(f, io.LimitReader(r, limit+1))
	if err != nil {
		return err
	}
	if n > limit {
		return fmt.Errorf("размер загрузки превышает лимит %d байт", limit)
	}
	return f.Sync()
}

// uploadExt возвращает расширение для сохранённой загрузки.
// Неизвестные расширения приводятся к .jpg.
func uploadExt(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".png":
		return ".png"
	case ".jpeg":
		return ".jpeg"
	default:
		return ".jpg"
	}
}

// splitEmails разбирает список получателей через запятую,
// отбрасывая пустые элементы.
func splitEmails(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if e := strings.TrimSpace(part); e != "" {
			out = append(out, e)
		}
	}
	return out
}

// internalScanError — общий ответ 500 без деталей (детали только в логах).
func internalScanError() *ScanError {
	return &ScanError{
		StatusCode: 500,
		Code:       apierrors.CodeInternalError,
		Message:    "Failed to process scan or send email",
	}
}
