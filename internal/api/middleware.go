package api

import (
	"log/slog"
	"net/http"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/shaiso/menustats/internal/telemetry"
)

// Middleware — функция-обёртка для http.Handler.
type Middleware func(http.Handler) http.Handler

// Chain применяет middleware в порядке слева направо.
// Chain(m1, m2)(handler) = m1(m2(handler))
func Chain(middlewares ...Middleware) Middleware {
	return func(next http.Handler) http.Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}

// pathParams — параметры маршрутов, которые попадают в логи.
var pathParams = []string{"restaurant_id", "task_id"}

// requestAttrs собирает атрибуты лога запроса: маршрут и параметры пути.
// Работает, когда middleware навешан на маршрут внутри ServeMux.
func requestAttrs(r *http.Request) []any {
	attrs := []any{"method", r.Method, "route", route(r)}
	for _, name := range pathParams {
		if v := r.PathValue(name); v != "" {
			attrs = append(attrs, name, v)
		}
	}
	return attrs
}

// route возвращает шаблон маршрута, а не путь: метки метрик не растут
// с каждым task_id.
func route(r *http.Request) string {
	if r.Pattern != "" {
		return r.Pattern
	}
	return "unmatched"
}

// Logging пишет строку лога на каждый запрос.
func Logging(logger *slog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := record(w)

			next.ServeHTTP(rec, r)

			attrs := append(requestAttrs(r),
				"status", rec.status,
				"bytes", rec.bytes,
				"duration_ms", time.Since(start).Milliseconds(),
			)

			level := slog.LevelInfo
			if rec.status >= http.StatusInternalServerError {
				level = slog.LevelWarn
			}
			logger.Log(r.Context(), level, "http request", attrs...)
		})
	}
}

// Metrics считает запросы в menustats_api_http_requests_total{route,code}.
func Metrics() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := record(w)
			next.ServeHTTP(rec, r)
			telemetry.HTTPRequestsTotal.WithLabelValues(route(r), strconv.Itoa(rec.status)).Inc()
		})
	}
}

// Recovery превращает панику обработчика в 500.
func Recovery(logger *slog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := record(w)
			defer func() {
				if err := recover(); err != nil {
					logger.Error("panic recovered",
						append(requestAttrs(r), "error", err, "stack", string(debug.Stack()))...,
					)
					// Заголовки уже ушли, ответ не исправить
					if !rec.wroteHeader {
						InternalError(rec, logger, nil)
					}
				}
			}()

			next.ServeHTTP(rec, r)
		})
	}
}

// statusRecorder запоминает код и размер ответа.
type statusRecorder struct {
	http.ResponseWriter
	status      int
	bytes       int
	wroteHeader bool
}

// record оборачивает w. Уже обёрнутый writer возвращается как есть,
// так что вся цепочка видит один и тот же статус.
func record(w http.ResponseWriter) *statusRecorder {
	if rec, ok := w.(*statusRecorder); ok {
		return rec
	}
	return &statusRecorder{ResponseWriter: w, status: http.StatusOK}
}

func (rw *statusRecorder) WriteHeader(status int) {
	if rw.wroteHeader {
		return
	}
	rw.status = status
	rw.wroteHeader = true
	rw.ResponseWriter.WriteHeader(status)
}

func (rw *statusRecorder) Write(b []byte) (int, error) {
	if !rw.wroteHeader {
		rw.WriteHeader(http.StatusOK)
	}
	n, err := rw.ResponseWriter.Write(b)
	rw.bytes += n
	return n, err
}

// Unwrap открывает исходный writer для http.ResponseController.
func (rw *statusRecorder) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}
