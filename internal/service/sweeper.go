// sweeper.go — сервис фоновой уборки истёкших токенов скачивания.
//
// Sweeper выполняет две задачи:
//  1. Удаляет из хранилища записи токенов с истёкшим сроком (любой статус)
//  2. Удаляет с диска файлы и рабочие каталоги выметенных записей
//
// Запускается как горутина с периодическим тикером (LS_TOKEN_SWEEP_INTERVAL).
package service

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/arturkryukov/livescan/internal/tokenstore"
)

// Prometheus метрики sweeper
var (
	// sweepRunsTotal — количество запусков уборки.
	sweepRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ls_sweep_runs_total",
		Help: "Общее количество запусков уборки истёкших токенов",
	})

	// sweepFilesDeletedTotal — количество удалённых с диска файлов.
	sweepFilesDeletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ls_sweep_files_deleted_total",
		Help: "Общее количество файлов, удалённых уборкой",
	})

	// sweepDurationSeconds — длительность выполнения уборки.
	sweepDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ls_sweep_duration_seconds",
		Help:    "Длительность выполнения уборки в секундах",
		Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5},
	})
)

// SweepResult — результат одного запуска уборки.
type SweepResult struct {
	// RemovedTokens — количество выметенных записей токенов
	RemovedTokens int
	// DeletedFiles — количество удалённых с диска файлов и каталогов
	DeletedFiles int
	// Errors — количество ошибок удаления
	Errors int
	// Duration — длительность выполнения
	Duration time.Duration
}

// Sweeper — сервис фоновой уборки токенов и их файлов.
type Sweeper struct {
	tokens   *tokenstore.Store
	workDir  string
	interval time.Duration
	logger   *slog.Logger

	mu     sync.Mutex // защита от параллельного запуска RunOnce
	cancel context.CancelFunc
}

// NewSweeper создаёт сервис уборки.
// workDir — корень рабочих каталогов: каталоги выметенных токенов
// удаляются только внутри него.
func NewSweeper(tokens *tokenstore.Store, workDir string, interval time.Duration, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		tokens:   tokens,
		workDir:  workDir,
		interval: interval,
		logger:   logger.With(slog.String("component", "sweeper")),
	}
}

// Start запускает фоновую горутину уборки с периодическим тикером.
// Вызывается один раз при старте приложения.
func (s *Sweeper) Start(ctx context.Context) {
	sweepCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	go s.run(sweepCtx)

	s.logger.Info("Sweeper запущен",
		slog.String("interval", s.interval.String()),
	)
}

// Stop останавливает фоновый процесс уборки.
func (s *Sweeper) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.logger.Info("Sweeper остановлен")
}

// run — основной цикл фоновой горутины.
func (s *Sweeper) run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce()
		}
	}
}

// RunOnce выполняет один цикл уборки.
// Потокобезопасен: использует mutex для защиты от параллельного запуска.
//
// Порядок обработки:
//  1. Store.Sweep удаляет истёкшие записи (независимо от used/locked)
//  2. Для каждой записи удаляется файл и его рабочий каталог
//
// Удаление идемпотентно: отсутствие файла (уже скачан и удалён
// обработчиком) ошибкой не считается.
func (s *Sweeper) RunOnce() *SweepResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	result := &SweepResult{}

	removed := s.tokens.Sweep(time.Now().UTC())
	result.RemovedTokens = len(removed)

	for _, rec := range removed {
		deleted, err := s.removeArtifact(rec.FilePath)
		if err != nil {
			result.Errors++
			s.logger.Warn("Ошибка удаления файла истёкшего токена",
				slog.String("path", rec.FilePath),
				slog.String("error", err.Error()),
			)
			continue
		}
		if deleted {
			result.DeletedFiles++
		}
	}

	result.Duration = time.Since(start)

	sweepRunsTotal.Inc()
	sweepFilesDeletedTotal.Add(float64(result.DeletedFiles))
	sweepDurationSeconds.Observe(result.Duration.Seconds())

	if result.RemovedTokens > 0 {
		s.logger.Info("Уборка завершена",
			slog.Int("removed_tokens", result.RemovedTokens),
			slog.Int("deleted_files", result.DeletedFiles),
			slog.Int("errors", result.Errors),
			slog.Duration("duration", result.Duration),
		)
	}

	return result
}

// removeArtifact удаляет файл токена вместе с его рабочим каталогом,
// если каталог лежит непосредственно под workDir. Возвращает true,
// если что-то действительно было удалено.
func (s *Sweeper) removeArtifact(path string) (bool, error) {
	if path == "" {
		return false, nil
	}

	dir := filepath.Dir(path)
	if filepath.Dir(dir) == filepath.Clean(s.workDir) {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			return false, nil
		}
		return true, os.RemoveAll(dir)
	}

	// Файл вне рабочей структуры: удаляем только сам файл
	err := os.Remove(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
