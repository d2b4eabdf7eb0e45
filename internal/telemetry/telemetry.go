// Package telemetry exports cache statistics as OpenTelemetry metrics.
package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/electwix/querycache/internal/stats"
)

// Metric names.
const (
	MetricHits          = "querycache.hits"
	MetricMisses        = "querycache.misses"
	MetricLookups       = "querycache.lookups"
	MetricInvalidations = "querycache.invalidations"
	MetricEvictions     = "querycache.evictions"
	MetricHitRatio      = "querycache.hit_ratio"
)

// RegisterStatistics registers observable instruments reading s on every
// collection. attrs are attached to every observation. Unregister the
// returned registration to stop reporting.
func RegisterStatistics(meter metric.Meter, s *stats.Statistics, attrs ...attribute.KeyValue) (metric.Registration, error) {
	counters := []struct {
		name string
		desc string
		read func(stats.Snapshot) uint64
	}{
		{MetricHits, "Lookups answered from the cache.", func(s stats.Snapshot) uint64 { return s.Hits }},
		{MetricMisses, "Lookups not answered from the cache.", func(s stats.Snapshot) uint64 { return s.Misses }},
		{MetricLookups, "Cache lookups.", func(s stats.Snapshot) uint64 { return s.Lookups }},
		{MetricInvalidations, "Entries removed by deletes and table invalidations.", func(s stats.Snapshot) uint64 { return s.Invalidations }},
		{MetricEvictions, "Entries removed by the eviction policy.", func(s stats.Snapshot) uint64 { return s.Evictions }},
	}

	instruments := make([]metric.Int64ObservableCounter, len(counters))
	observables := make([]metric.Observable, 0, len(counters)+1)
	for i, c := range counters {
		inst, err := meter.Int64ObservableCounter(c.name, metric.WithDescription(c.desc), metric.WithUnit("{entry}"))
		if err != nil {
			return nil, fmt.Errorf("telemetry: create %s: %w", c.name, err)
		}
		instruments[i] = inst
		observables = append(observables, inst)
	}
	ratio, err := meter.Float64ObservableGauge(MetricHitRatio, metric.WithDescription("Hits divided by lookups."), metric.WithUnit("1"))
	if err != nil {
		return nil, fmt.Errorf("telemetry: create %s: %w", MetricHitRatio, err)
	}
	observables = append(observables, ratio)

	opt := metric.WithAttributes(attrs...)
	reg, err := meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		snap := s.Snapshot()
		for i, c := range counters {
			o.ObserveInt64(instruments[i], int64(c.read(snap)), opt)
		}
		o.ObserveFloat64(ratio, snap.HitRatio(), opt)
		return nil
	}, observables...)
	if err != nil {
		return nil, fmt.Errorf("telemetry: register callback: %w", err)
	}
	return reg, nil
}
