// download.go — обработчик защищённого скачивания по токену и PIN.
package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	apierrors "github.com/arturkryukov/livescan/internal/api/errors"
	"github.com/arturkryukov/livescan/internal/tokenstore"
)

// Клиентские сообщения состояний токена. Формулировки — часть контракта
// с фронтендом, не менять без согласования.
const (
	msgInvalidLink  = "Invalid or expired link"
	msgAlreadyUsed  = "This link has already been used"
	msgLocked       = "This link has been locked due to multiple invalid PIN attempts"
	msgFileGone     = "File not available"
	pinMismatchTmpl = "Invalid PIN. %d attempt(s) remaining."
)

// verifyRequest — тело запроса POST /api/download/verify.
type verifyRequest struct {
	Token string `json:"token"`
	PIN   string `json:"pin"`
}

// DownloadHandler реализует выдачу PDF по паре (token, PIN).
type DownloadHandler struct {
	tokens  *tokenstore.Store
	workDir string
	logger  *slog.Logger
}

// NewDownloadHandler создаёт обработчик скачивания.
// workDir — корень рабочих каталогов: после выдачи файла удаляется весь
// каталог запроса, если он лежит непосредственно под workDir.
func NewDownloadHandler(tokens *tokenstore.Store, workDir string, logger *slog.Logger) *DownloadHandler {
	return &DownloadHandler{
		tokens:  tokens,
		workDir: workDir,
		logger:  logger.With(slog.String("component", "download_handler")),
	}
}

// VerifyAndDownload обрабатывает POST /api/download/verify.
//
// Каждому исходу конечного автомата соответствует свой ответ:
//   - Absent (нет или истёк) → 404
//   - Used → 403
//   - Locked → 403
//   - PinMismatch → 403 с количеством оставшихся попыток
//   - Success → поток application/pdf, затем удаление файла
//
// Удаление файла зарегистрировано через defer и происходит после
// передачи тела ответа на любом пути выхода, включая обрыв соединения
// клиентом посреди передачи. Токен к этому моменту уже погашен
// в Verify, повторная выдача невозможна в любом случае.
func (h *DownloadHandler) VerifyAndDownload(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, "Некорректное тело запроса")
		return
	}
	if req.Token == "" || req.PIN == "" {
		apierrors.ValidationError(w, "Поля token и pin обязательны")
		return
	}

	out := h.tokens.Verify(req.Token, req.PIN)
	switch out.State {
	case tokenstore.StateAbsent:
		apierrors.NotFound(w, msgInvalidLink)
		return
	case tokenstore.StateUsed:
		apierrors.Forbidden(w, msgAlreadyUsed)
		return
	case tokenstore.StateLocked:
		apierrors.Forbidden(w, msgLocked)
		return
	case tokenstore.StatePinMismatch:
		apierrors.Forbidden(w, fmt.Sprintf(pinMismatchTmpl, out.Remaining))
		return
	case tokenstore.StateSuccess:
		// продолжаем ниже
	default:
		apierrors.InternalError(w, "Внутренняя ошибка")
		return
	}

	f, err := os.Open(out.FilePath)
	if err != nil {
		// Токен уже погашен: тупик «PIN верный, файла нет» — осознанная
		// цена гарантии одноразовости.
		h.logger.Warn("Файл токена отсутствует",
			slog.String("path", out.FilePath),
			slog.String("error", err.Error()),
		)
		apierrors.NotFound(w, msgFileGone)
		return
	}
	defer f.Close()
	defer h.removeArtifact(out.FilePath)

	h.tokens.Invalidate(req.Token)

	info, err := f.Stat()
	if err != nil {
		apierrors.NotFound(w, msgFileGone)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", filepath.Base(out.FilePath)))
	w.Header().Set("Content-Length", fmt.Sprintf("%d", info.Size()))
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, f); err != nil {
		// Обрыв клиента: файл всё равно удаляется, токен уже погашен
		h.logger.Warn("Передача файла прервана",
			slog.String("path", out.FilePath),
			slog.String("error", err.Error()),
		)
	}
}

// removeArtifact удаляет выданный файл вместе с его рабочим каталогом,
// если каталог лежит непосредственно под workDir.
func (h *DownloadHandler) removeArtifact(path string) {
	dir := filepath.Dir(path)
	if filepath.Dir(dir) == filepath.Clean(h.workDir) {
		if err := os.RemoveAll(dir); err != nil {
			h.logger.Warn("Ошибка удаления рабочего каталога",
				slog.String("dir", dir), slog.String("error", err.Error()))
		}
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		h.logger.Warn("Ошибка удаления файла",
			slog.String("path", path), slog.String("error", err.Error()))
	}
}
