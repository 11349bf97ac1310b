package service

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// максимальное число отслеживаемых ключей; при переполнении вытесняются самые старые окна
const rateLimitMaxKeys = 100_000

type rateWindow struct {
	start time.Time
	count int
}

// RateLimiter — фиксированное окно попыток на ключ (IP клиента или идентификатор).
// Окна живут в expirable.LRU с TTL, равным длине окна, и вычищаются фоном.
// Механизм приблизительный и работает в пределах одного процесса.
type RateLimiter struct {
	mu      sync.Mutex
	windows *expirable.LRU[string, *rateWindow]
	limit   int
	window  time.Duration
	now     func() time.Time
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		windows: expirable.NewLRU[string, *rateWindow](rateLimitMaxKeys, nil, window),
		limit:   limit,
		window:  window,
		now:     time.Now,
	}
}

// Allow учитывает попытку. false — лимит исчерпан, retryAfter — время до конца окна.
func (l *RateLimiter) Allow(key string) (bool, time.Duration) {
	if l.limit <= 0 {
		return true, 0
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.windows.Get(key)
	if !ok || now.Sub(w.start) >= l.window {
		w = &rateWindow{start: now}
		l.windows.Add(key, w)
	}
	if w.count >= l.limit {
		return false, w.start.Add(l.window).Sub(now)
	}
	w.count++
	return true, 0
}

// Reset забывает окно ключа (например, после успешного входа).
func (l *RateLimiter) Reset(key string) {
	l.windows.Remove(key)
}

// Len — число активных окон.
func (l *RateLimiter) Len() int {
	return l.windows.Len()
}
