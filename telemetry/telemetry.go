// Package telemetry wires structured logging and OpenTelemetry metrics for
// the chat client.
package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// InitLogger initializes structured JSON logging with rotation. Logs go only
// to the file, keeping stdout free for the interactive chat.
func InitLogger(level slog.Level) (*slog.Logger, error) {
	logDir := "logs"
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create logs directory: %w", err)
	}

	rotated := &lumberjack.Logger{
		Filename:   filepath.Join(logDir, "pochat.log"),
		MaxSize:    10, // MB
		MaxBackups: 3,
		MaxAge:     28,
		Compress:   true,
	}

	handler := slog.NewJSONHandler(rotated, &slog.HandlerOptions{Level: level})
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger, nil
}

// InitMetrics initializes the OpenTelemetry meter provider with a rotating
// file exporter and returns the chat metric set plus a shutdown func.
func InitMetrics(ctx context.Context) (*Metrics, func(), error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName("pochat"),
			semconv.ServiceVersion("1.0.0"),
		),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create resource: %w", err)
	}

	logDir := "logs"
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, nil, fmt.Errorf("failed to create logs directory: %w", err)
	}

	metricsFile := &lumberjack.Logger{
		Filename:   filepath.Join(logDir, "pochat_metrics.log"),
		MaxSize:    10, // MB
		MaxBackups: 3,
		MaxAge:     28,
		Compress:   true,
	}

	exporter, err := stdoutmetric.New(
		stdoutmetric.WithWriter(metricsFile),
		stdoutmetric.WithPrettyPrint(),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create metric exporter: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter,
			sdkmetric.WithInterval(10*time.Second))),
	)
	otel.SetMeterProvider(mp)

	metrics, err := newMetrics(mp.Meter("pochat"))
	if err != nil {
		return nil, nil, err
	}

	shutdown := func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := mp.Shutdown(shutdownCtx); err != nil {
			slog.Error("failed to shut down meter provider", "error", err)
		}
	}
	return metrics, shutdown, nil
}

// Metrics is the chat pipeline metric set. A nil *Metrics is a valid no-op
// receiver so callers can run without telemetry.
type Metrics struct {
	streamsStarted metric.Int64Counter
	streamsFailed  metric.Int64Counter
	eventsReceived metric.Int64Counter
}

func newMetrics(meter metric.Meter) (*Metrics, error) {
	streamsStarted, err := meter.Int64Counter("pochat.streams.started",
		metric.WithDescription("Chat streams opened"))
	if err != nil {
		return nil, fmt.Errorf("failed to create counter: %w", err)
	}
	streamsFailed, err := meter.Int64Counter("pochat.streams.failed",
		metric.WithDescription("Chat streams ended in a transport or pipeline error"))
	if err != nil {
		return nil, fmt.Errorf("failed to create counter: %w", err)
	}
	eventsReceived, err := meter.Int64Counter("pochat.events.received",
		metric.WithDescription("SSE events received, by kind"))
	if err != nil {
		return nil, fmt.Errorf("failed to create counter: %w", err)
	}
	return &Metrics{
		streamsStarted: streamsStarted,
		streamsFailed:  streamsFailed,
		eventsReceived: eventsReceived,
	}, nil
}

// StreamStarted records one opened chat stream.
func (m *Metrics) StreamStarted(ctx context.Context) {
	if m == nil {
		return
	}
	m.streamsStarted.Add(ctx, 1)
}

// StreamFailed records one failed chat stream.
func (m *Metrics) StreamFailed(ctx context.Context) {
	if m == nil {
		return
	}
	m.streamsFailed.Add(ctx, 1)
}

// EventReceived records one received SSE event of the given kind.
func (m *Metrics) EventReceived(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	m.eventsReceived.Add(ctx, 1, metric.WithAttributes(attribute.String("event.kind", kind)))
}
