package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/convo/internal/logger"
	"github.com/convo/internal/metrics"
)

// RequestLog логирует запрос (method, path, status, user) и его длительность.
// Медленные запросы попадают в лог через DeferLogDuration.
func RequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		defer logger.DeferLogDuration("http "+r.Method+" "+r.URL.Path, start)()
		next.ServeHTTP(ww, r)
		if ww.Status() >= http.StatusInternalServerError {
			logger.Errorw("http request failed",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"user_id", GetUserID(r.Context()),
				"request_id", chimw.GetReqID(r.Context()),
			)
		}
	})
}

// Metrics считает запросы и латентность по шаблону маршрута chi (не по сырому пути).
func Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		metrics.HTTPRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		metrics.HTTPDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
