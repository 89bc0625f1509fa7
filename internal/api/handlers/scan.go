// scan.go — обработчик приёма скана: multipart-форма с изображением,
// флагом согласия и получателями.
package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	apierrors "github.com/arturkryukov/livescan/internal/api/errors"
	"github.com/arturkryukov/livescan/internal/config"
	"github.com/arturkryukov/livescan/internal/service"
)

// multipartOverhead — запас к лимиту тела на границы и поля формы.
const multipartOverhead = 64 * 1024

// ScanHandler реализует POST /api/scan.
type ScanHandler struct {
	svc    *service.ScanService
	cfg    *config.Config
	logger *slog.Logger
}

// NewScanHandler создаёт обработчик приёма сканов.
func NewScanHandler(svc *service.ScanService, cfg *config.Config, logger *slog.Logger) *ScanHandler {
	return &ScanHandler{
		svc:    svc,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "scan_handler")),
	}
}

// Scan обрабатывает POST /api/scan.
//
// Поля формы: file (изображение), consent (true/false), emails (список
// через запятую), phone (режим sms). Вся валидация и конвейер — в
// ScanService, здесь только разбор multipart и формат ответа.
func (h *ScanHandler) Scan(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxUploadSize+multipartOverhead)

	if err := r.ParseMultipartForm(h.cfg.MaxUploadSize + multipartOverhead); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			apierrors.FileTooLarge(w, "Uploaded file exceeds the size limit")
			return
		}
		apierrors.ValidationError(w, "Некорректная multipart-форма")
		return
	}
	defer func() {
		_ = r.MultipartForm.RemoveAll()
	}()

	file, header, err := r.FormFile("file")
	if err != nil {
		apierrors.ValidationError(w, "Поле file обязательно")
		return
	}
	defer file.Close()

	result, serr := h.svc.Scan(r.Context(), service.ScanParams{
		Reader:       file,
		Filename:     header.Filename,
		ContentType:  header.Header.Get("Content-Type"),
		Size:         header.Size,
		ConsentGiven: r.FormValue("consent") == "true",
		Emails:       r.FormValue("emails"),
		Phone:        r.FormValue("phone"),
	})
	if serr != nil {
		apierrors.WriteError(w, serr.StatusCode, serr.Code, serr.Message)
		return
	}

	resp := map[string]any{
		"status":   "success",
		"delivery": result.Delivery,
	}
	if result.Delivery == config.DeliveryEmail {
		resp["sent_to"] = result.SentTo
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
}
