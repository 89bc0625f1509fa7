// Пакет tokenstore — потокобезопасное in-memory хранилище токенов скачивания.
//
// Единственный авторитет по вопросу «может ли пара (token, PIN) сейчас
// открыть файл». Хранилище не персистентное: при рестарте процесса все
// выданные ссылки становятся недействительными — это осознанное решение,
// токены короткоживущие.
//
// Конкурентность: один глобальный mutex на всё хранилище. Контент-ция
// низкая (единицы запросов в минуту), зато проверка-и-установка used,
// инкремент attempts и установка locked выполняются атомарно per-token.
package tokenstore

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/arturkryukov/livescan/internal/domain/model"
)

// Prometheus метрики хранилища токенов
var (
	// tokensCreatedTotal — количество выданных токенов.
	tokensCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ls_tokens_created_total",
		Help: "Общее количество выданных токенов скачивания",
	})

	// verifyTotal — количество проверок PIN по результатам.
	verifyTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ls_token_verify_total",
			Help: "Общее количество проверок (token, PIN) по результатам",
		},
		[]string{"outcome"},
	)

	// tokensSweptTotal — количество токенов, удалённых sweep'ом.
	tokensSweptTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ls_tokens_swept_total",
		Help: "Общее количество истёкших токенов, удалённых периодическим sweep",
	})
)

// State — результат проверки (token, PIN).
type State int

const (
	// StateAbsent — токен не существует или истёк (неразличимо для клиента)
	StateAbsent State = iota
	// StateUsed — ссылка уже использована
	StateUsed
	// StateLocked — заблокирована после исчерпания попыток PIN
	StateLocked
	// StatePinMismatch — PIN не совпал, остались попытки
	StatePinMismatch
	// StateSuccess — PIN совпал, токен помечен использованным
	StateSuccess
)

// String возвращает имя состояния для логов и метрик.
func (s State) String() string {
	switch s {
	case StateAbsent:
		return "absent"
	case StateUsed:
		return "used"
	case StateLocked:
		return "locked"
	case StatePinMismatch:
		return "pin_mismatch"
	case StateSuccess:
		return "success"
	default:
		return "unknown"
	}
}

// Outcome — итог Verify: состояние, путь к файлу (только при Success)
// и количество оставшихся попыток (только при PinMismatch).
type Outcome struct {
	State     State
	FilePath  string
	Remaining int
}

// Store — in-memory хранилище токенов скачивания.
type Store struct {
	mu          sync.Mutex
	tokens      map[string]*model.DownloadToken
	maxAttempts int
	now         func() time.Time // подменяется в тестах
}

// New создаёт пустое хранилище.
// maxAttempts — лимит неудачных проверок PIN до блокировки (обычно 3).
func New(maxAttempts int) *Store {
	if maxAttempts <= 0 {
		maxAttempts = model.DefaultMaxAttempts
	}
	return &Store{
		tokens:      make(map[string]*model.DownloadToken),
		maxAttempts: maxAttempts,
		now:         time.Now,
	}
}

// Create регистрирует новый токен для файла filePath со сроком жизни ttl.
// Возвращает идентификатор токена (для URL) и PIN (для SMS).
// Токен — UUID v4, PIN — 4 случайные десятичные цифры из crypto/rand.
func (s *Store) Create(filePath string, ttl time.Duration) (token, pin string, err error) {
	pin, err = generatePIN()
	if err != nil {
		return "", "", fmt.Errorf("генерация PIN: %w", err)
	}

	token = uuid.New().String()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.tokens[token] = &model.DownloadToken{
		Token:       token,
		FilePath:    filePath,
		PIN:         pin,
		ExpiresAt:   s.now().UTC().Add(ttl),
		MaxAttempts: s.maxAttempts,
	}

	tokensCreatedTotal.Inc()
	return token, pin, nil
}

// Lookup возвращает копию записи токена без PIN или nil, если токен
// отсутствует либо истёк. Истёкшая запись удаляется как побочный эффект
// (lazy deletion). Повторный Lookup по истёкшему токену безопасен:
// удаление идемпотентно.
func (s *Store) Lookup(token string) *model.DownloadToken {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.tokens[token]
	if !ok {
		return nil
	}
	if rec.IsExpired(s.now().UTC()) {
		delete(s.tokens, token)
		return nil
	}

	copied := *rec
	copied.PIN = "" // PIN не покидает хранилище вне Verify
	return &copied
}

// Verify выполняет проверку (token, PIN) — конечный автомат выдачи файла.
//
// Порядок проверок:
//  1. Запись отсутствует → Absent
//  2. Истёк срок → Absent (запись удаляется, lazy deletion)
//  3. Уже использован → Used
//  4. Заблокирован → Locked
//  5. PIN не совпал → attempts++; при достижении лимита — Locked, иначе
//     PinMismatch с количеством оставшихся попыток
//  6. PIN совпал → used = true, Success
//
// Used устанавливается здесь безусловно: даже если файл потом не удастся
// отдать, токен повторно не сработает. Сравнение PIN обычное (==):
// PIN четырёхзначный и ограничен тремя попытками, тайминг-канал не даёт
// атакующему ничего полезного.
func (s *Store) Verify(token, suppliedPIN string) Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := s.verifyLocked(token, suppliedPIN)
	verifyTotal.WithLabelValues(out.State.String()).Inc()
	return out
}

func (s *Store) verifyLocked(token, suppliedPIN string) Outcome {
	rec, ok := s.tokens[token]
	if !ok {
		return Outcome{State: StateAbsent}
	}

	if rec.IsExpired(s.now().UTC()) {
		delete(s.tokens, token)
		return Outcome{State: StateAbsent}
	}

	if rec.Used {
		return Outcome{State: StateUsed}
	}

	if rec.Locked {
		return Outcome{State: StateLocked}
	}

	if suppliedPIN != rec.PIN {
		rec.Attempts++
		if rec.Attempts >= rec.MaxAttempts {
			rec.Locked = true
			return Outcome{State: StateLocked}
		}
		return Outcome{
			State:     StatePinMismatch,
			Remaining: rec.MaxAttempts - rec.Attempts,
		}
	}

	rec.Used = true
	return Outcome{State: StateSuccess, FilePath: rec.FilePath}
}

// Invalidate идемпотентно помечает токен использованным.
// Вызов по отсутствующему или уже использованному токену — no-op.
func (s *Store) Invalidate(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec, ok := s.tokens[token]; ok {
		rec.Used = true
	}
}

// Sweep удаляет все записи с expires_at раньше now, независимо от
// used/locked. Возвращает удалённые записи (их файлы чистит вызывающий).
func (s *Store) Sweep(now time.Time) []*model.DownloadToken {
	s.mu.Lock()
	defer s.mu.Unlock()

	var removed []*model.DownloadToken
	for token, rec := range s.tokens {
		if rec.ExpiresAt.Before(now) {
			removed = append(removed, rec)
			delete(s.tokens, token)
		}
	}

	tokensSweptTotal.Add(float64(len(removed)))
	return removed
}

// Len возвращает текущее количество записей в хранилище.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tokens)
}

// SetClock подменяет источник времени. Только для тестов.
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// generatePIN возвращает 4 случайные десятичные цифры из crypto/rand.
// rand.Int на диапазоне 10000 даёт равномерное распределение,
// ведущие нули сохраняются форматированием.
func generatePIN() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(10000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%04d", n.Int64()), nil
}
