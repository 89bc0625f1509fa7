// ratelimit.go — per-client ограничение частоты запросов.
// Лимитер на каждый клиентский IP хранится в expirable LRU:
// неактивные клиенты вытесняются по TTL, память ограничена размером кэша.
package middleware

import (
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/time/rate"

	apierrors "github.com/arturkryukov/livescan/internal/api/errors"
)

// rateLimitedTotal — количество запросов, отклонённых лимитером.
var rateLimitedTotal = promauto.NewCounter(prometheus.CounterOpts{
	Name: "ls_rate_limited_total",
	Help: "Общее количество запросов, отклонённых rate limiter",
})

// maxTrackedClients — ёмкость LRU-кэша лимитеров.
const maxTrackedClients = 4096

// RateLimiter — ограничитель частоты запросов по клиентскому IP.
type RateLimiter struct {
	limiters *expirable.LRU[string, *rate.Limiter]
	limit    rate.Limit
	burst    int
}

// NewRateLimiter создаёт лимитер perMinute запросов в минуту на клиента.
// Burst равен perMinute: клиент может выбрать весь минутный лимит разом.
func NewRateLimiter(perMinute int) *RateLimiter {
	return &RateLimiter{
		limiters: expirable.NewLRU[string, *rate.Limiter](maxTrackedClients, nil, 10*time.Minute),
		limit:    rate.Every(time.Minute / time.Duration(perMinute)),
		burst:    perMinute,
	}
}

// Allow сообщает, разрешён ли сейчас запрос от указанного клиента.
func (rl *RateLimiter) Allow(clientIP string) bool {
	limiter, ok := rl.limiters.Get(clientIP)
	if !ok {
		limiter = rate.NewLimiter(rl.limit, rl.burst)
		rl.limiters.Add(clientIP, limiter)
	}
	return limiter.Allow()
}

// Middleware возвращает HTTP middleware, отклоняющий 429-м превышения лимита.
func (rl *RateLimiter) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !rl.Allow(ClientIP(r)) {
				rateLimitedTotal.Inc()
				apierrors.RateLimited(w, "Слишком много запросов, повторите позже")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP возвращает IP клиента: первый адрес из X-Forwarded-For
// (сервис работает за reverse proxy), иначе RemoteAddr без порта.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx >= 0 {
			xff = xff[:idx]
		}
		return strings.TrimSpace(xff)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
