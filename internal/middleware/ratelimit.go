package middleware

import (
	"net/http"
	"sync"
	"time"
)

// RateLimiter — скользящее окно по ключу (IP или user_id).
type RateLimiter struct {
	mu     sync.Mutex
	times  map[string][]time.Time
	max    int
	window time.Duration
	now    func() time.Time
}

func NewRateLimiter(max int, window time.Duration) *RateLimiter {
	return &RateLimiter{times: make(map[string][]time.Time), max: max, window: window, now: time.Now}
}

func (l *RateLimiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	cutoff := now.Add(-l.window)
	slice := l.times[key]
	i := 0
	for _, t := range slice {
		if t.After(cutoff) {
			slice[i] = t
			i++
		}
	}
	slice = slice[:i]
	if len(slice) >= l.max {
		l.times[key] = slice
		return false
	}
	l.times[key] = append(slice, now)
	return true
}

// Sweep удаляет ключи без запросов в текущем окне.
func (l *RateLimiter) Sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()
	cutoff := l.now().Add(-l.window)
	for k, slice := range l.times {
		if len(slice) == 0 || !slice[len(slice)-1].After(cutoff) {
			delete(l.times, k)
		}
	}
}

// RateLimit ограничивает запросы по IP и по user_id (если он уже в контексте). 429 при превышении.
// perUser <= 0 отключает лимит по пользователю.
func RateLimit(perIP, perUser int, window time.Duration) func(http.Handler) http.Handler {
	byIP := NewRateLimiter(perIP, window)
	var byUser *RateLimiter
	if perUser > 0 {
		byUser = NewRateLimiter(perUser, window)
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !byIP.Allow(clientIP(r)) {
				writeJSONError(w, http.StatusTooManyRequests, "too_many_requests", "Too Many Attempts.")
				return
			}
			if userID := GetUserID(r.Context()); userID != "" && byUser != nil {
				if !byUser.Allow("u:" + userID) {
					writeJSONError(w, http.StatusTooManyRequests, "too_many_requests", "Too Many Attempts.")
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
