// Package metrics регистрирует метрики Prometheus сервисов платформы.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "schoolhub_http_requests_total",
		Help: "HTTP requests by route, method and status.",
	}, []string{"route", "method", "status"})

	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "schoolhub_http_request_duration_seconds",
		Help:    "HTTP request latency by route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route", "method"})

	NotificationsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "schoolhub_notifications_sent_total",
		Help: "Notifications by channel (inapp, email, push) and type.",
	}, []string{"channel", "type"})

	EmailsDelivered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "schoolhub_emails_delivered_total",
		Help: "Emails handled by the sender, by provider and result.",
	}, []string{"provider", "result"})

	WebsocketConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "schoolhub_websocket_connections",
		Help: "Open websocket connections.",
	})

	PaymentEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "schoolhub_payment_events_total",
		Help: "Stripe webhook events by type and result.",
	}, []string{"type", "result"})

	SchedulerRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "schoolhub_scheduler_runs_total",
		Help: "Scheduler job runs by job and result.",
	}, []string{"job", "result"})
)

// Middleware считает запросы и время ответа по шаблону маршрута chi.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
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
		HTTPRequests.WithLabelValues(route, r.Method, strconv.Itoa(status)).Inc()
		HTTPDuration.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}

// Result возвращает метку результата для err.
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
