package middleware

import (
	"strconv"
	"time"

	applogger "FxRollup/pkg/logger"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type httpMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	inFlight *prometheus.GaugeVec
}

func newHTTPMetrics(reg prometheus.Registerer) *httpMetrics {
	f := promauto.With(reg)
	return &httpMetrics{
		requests: f.NewCounterVec(
			prometheus.CounterOpts{Name: "fxrollup_http_requests_total", Help: "HTTP requests"},
			[]string{"route", "method", "status"},
		),
		duration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "fxrollup_http_request_duration_seconds",
				Help:    "HTTP request duration",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"route", "method", "class"},
		),
		inFlight: f.NewGaugeVec(
			prometheus.GaugeOpts{Name: "fxrollup_http_in_flight_requests", Help: "In-flight HTTP requests"},
			[]string{"route"},
		),
	}
}

// Metrics records request metrics labelled by route template, logging 5xx
// responses as errors and requests slower than slow as warnings.
func Metrics(reg prometheus.Registerer, l *applogger.Logger, slow time.Duration) echo.MiddlewareFunc {
	m := newHTTPMetrics(reg)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			method := c.Request().Method
			m.inFlight.WithLabelValues(route).Inc()
			start := time.Now()

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			m.inFlight.WithLabelValues(route).Dec()
			code := c.Response().Status
			took := time.Since(start)
			m.requests.WithLabelValues(route, method, strconv.Itoa(code)).Inc()
			m.duration.WithLabelValues(route, method, statusClass(code)).Observe(took.Seconds())

			switch {
			case code >= 500:
				l.Error("http request failed",
					applogger.String("route", route),
					applogger.String("method", method),
					applogger.Int("status", code),
					applogger.Duration("took_ms", took))
			case slow > 0 && took >= slow:
				l.Warn("http request slow",
					applogger.String("route", route),
					applogger.String("method", method),
					applogger.Int("status", code),
					applogger.Duration("took_ms", took))
			}
			return nil
		}
	}
}

func statusClass(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
