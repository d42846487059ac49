package server

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// metrics holds the OTel instruments, created once per Server by
// newMetrics, for HTTP
// request handling, generalized from the request/latency instruments
// the teacher wires for its own external calls.
type metrics struct {
	requests metric.Int64Counter
	duration metric.Float64Histogram
}

var (
	providerOnce sync.Once
	meterName    = "github.com/tideline/notebook/server"
)

// InitMeterProvider installs a stdout metric exporter as the global
// OTel meter provider. Call once at process startup; safe to call
// multiple times.
func InitMeterProvider() {
	providerOnce.Do(func() {
		exporter, err := stdoutmetric.New()
		if err != nil {
			slog.Error("init stdout metric exporter", "error", err)
			return
		}
		provider := sdkmetric.NewMeterProvider(
			sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(60*time.Second))),
		)
		otel.SetMeterProvider(provider)
	})
}

func newMetrics() *metrics {
	m := otel.Meter(meterName)
	requests, _ := m.Int64Counter("notebook.server.requests",
		metric.WithDescription("HTTP requests handled"),
		metric.WithUnit("{request}"),
	)
	duration, _ := m.Float64Histogram("notebook.server.request.duration",
		metric.WithDescription("HTTP request duration"),
		metric.WithUnit("ms"),
	)
	return &metrics{requests: requests, duration: duration}
}

func (m *metrics) recordRequest(method, path string, d time.Duration) {
	if m == nil || m.requests == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("method", method), attribute.String("path", path))
	m.requests.Add(context.Background(), 1, attrs)
	m.duration.Record(context.Background(), float64(d.Milliseconds()), attrs)
}
