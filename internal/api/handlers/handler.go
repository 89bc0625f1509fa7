// handler.go — APIHandler собирает доменные обработчики и регистрирует
// маршруты на chi-роутере.
package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// APIHandler — единая точка регистрации всех endpoints.
type APIHandler struct {
	scan     *ScanHandler
	download *DownloadHandler
	consent  *ConsentHandler
	health   *HealthHandler

	// scanLimiter — rate limit только для /api/scan
	scanLimiter func(http.Handler) http.Handler
}

// NewAPIHandler создаёт единый handler для всех endpoints.
// scanLimiter применяется только к POST /api/scan.
func NewAPIHandler(
	scan *ScanHandler,
	download *DownloadHandler,
	consent *ConsentHandler,
	health *HealthHandler,
	scanLimiter func(http.Handler) http.Handler,
) *APIHandler {
	return &APIHandler{
		scan:        scan,
		download:    download,
		consent:     consent,
		health:      health,
		scanLimiter: scanLimiter,
	}
}

// Register монтирует все маршруты приложения.
func (h *APIHandler) Register(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			if h.scanLimiter != nil {
				r.Use(h.scanLimiter)
			}
			r.Post("/scan", h.scan.Scan)
		})
		r.Post("/download/verify", h.download.VerifyAndDownload)
		r.Post("/init", h.consent.Init)
		r.Post("/consent/{type}", h.consent.RecordConsent)
	})

	r.Get("/health/live", h.health.HealthLive)
	r.Get("/health/ready", h.health.HealthReady)
	r.Handle("/metrics", promhttp.Handler())
}
