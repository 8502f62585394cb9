package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("failed to collect metrics: %v", err)
	}
	return rm
}

func sumFor(rm metricdata.ResourceMetrics, name string, attr attribute.KeyValue) int64 {
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, dp := range sum.DataPoints {
				if value, ok := dp.Attributes.Value(attr.Key); ok && value == attr.Value {
					total += dp.Value
				}
			}
		}
	}
	return total
}

func TestMetricsRecordsCounters(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	m := New(provider.Meter("test"))
	ctx := context.Background()

	m.Matched(ctx, "reminder", 3)
	m.Delivery(ctx, "reminder", "delivered")
	m.Delivery(ctx, "reminder", "token_invalid")
	m.Chunk(ctx, "reminder", nil)
	m.Chunk(ctx, "reminder", errors.New("boom"))
	m.Run(ctx, "reminder", time.Second, nil)

	rm := collect(t, reader)
	if got := sumFor(rm, "reconciler.records.matched", attribute.String("job", "reminder")); got != 3 {
		t.Fatalf("expected 3 matched, got %d", got)
	}
	if got := sumFor(rm, "reconciler.notifications", attribute.String("outcome", "token_invalid")); got != 1 {
		t.Fatalf("expected 1 token_invalid delivery, got %d", got)
	}
	if got := sumFor(rm, "reconciler.chunks", attribute.String("status", "error")); got != 1 {
		t.Fatalf("expected 1 failed chunk, got %d", got)
	}
	if got := sumFor(rm, "reconciler.runs", attribute.String("status", "ok")); got != 1 {
		t.Fatalf("expected 1 ok run, got %d", got)
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	t.Parallel()

	var m *Metrics
	m.Matched(context.Background(), "x", 1)
	m.Delivery(context.Background(), "x", "delivered")
	m.Run(context.Background(), "x", time.Second, nil)
}
