package telemetry

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/electwix/querycache/internal/stats"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]float64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out := make(map[string]float64)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				for _, dp := range data.DataPoints {
					if v, ok := dp.Attributes.Value("cache"); !ok || v.AsString() != "primary" {
						t.Fatalf("%s: missing cache attribute", m.Name)
					}
					out[m.Name] = float64(dp.Value)
				}
			case metricdata.Gauge[float64]:
				for _, dp := range data.DataPoints {
					out[m.Name] = dp.Value
				}
			}
		}
	}
	return out
}

func TestRegisterStatistics(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer func() { _ = provider.Shutdown(context.Background()) }()

	s := stats.New()
	reg, err := RegisterStatistics(provider.Meter("querycache"), s, attribute.String("cache", "primary"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	s.Lookup(true)
	s.Lookup(true)
	s.Lookup(false)
	s.Lookup(true)
	s.Invalidated(2)
	s.Evicted(1)

	want := map[string]float64{
		MetricHits:          3,
		MetricMisses:        1,
		MetricLookups:       4,
		MetricInvalidations: 2,
		MetricEvictions:     1,
		MetricHitRatio:      0.75,
	}
	if diff := cmp.Diff(want, collect(t, reader)); diff != "" {
		t.Fatalf("metrics mismatch (-want +got):\n%s", diff)
	}

	if err := reg.Unregister(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := collect(t, reader); len(got) != 0 {
		t.Fatalf("metrics after Unregister = %v", got)
	}
}
