package middleware

import (
	"errors"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"

	"BrentShift/pkg/logger"
)

type httpCollectors struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	inFlight prometheus.Gauge
}

func newHTTPCollectors(reg prometheus.Registerer) *httpCollectors {
	c := &httpCollectors{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "brentshift_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"route", "method", "status"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "brentshift_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 120},
			},
			[]string{"route", "method", "class"},
		),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "brentshift_http_in_flight_requests",
			Help: "Current number of in-flight HTTP requests",
		}),
	}
	c.requests = register(reg, c.requests).(*prometheus.CounterVec)
	c.duration = register(reg, c.duration).(*prometheus.HistogramVec)
	c.inFlight = register(reg, c.inFlight).(prometheus.Gauge)
	return c
}

// register returns the already registered collector when an identical one exists.
func register(reg prometheus.Registerer, c prometheus.Collector) prometheus.Collector {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			return are.ExistingCollector
		}
		panic(err)
	}
	return c
}

// Metrics records request counts and latency labelled by the route template, not the raw URL.
// Requests slower than slow are logged as warnings.
func Metrics(reg prometheus.Registerer, log *logger.Logger, slow time.Duration) echo.MiddlewareFunc {
	m := newHTTPCollectors(reg)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			m.inFlight.Inc()
			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			}
			m.inFlight.Dec()

			route, method := c.Path(), c.Request().Method
			if route == "" {
				route = "unmatched"
			}
			status := c.Response().Status
			elapsed := time.Since(start)
			m.requests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
			m.duration.WithLabelValues(route, method, statusClass(status)).Observe(elapsed.Seconds())

			if slow > 0 && elapsed >= slow {
				log.Warn("http request slow",
					logger.String("route", route),
					logger.String("method", method),
					logger.Int("status", status),
					logger.Duration("duration", elapsed))
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
