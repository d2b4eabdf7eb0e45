package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"golang.org/x/sync/errgroup"

	"github.com/electwix/querycache/internal/cache"
	"github.com/electwix/querycache/internal/config"
	"github.com/electwix/querycache/internal/invalidation"
	"github.com/electwix/querycache/internal/logging"
	"github.com/electwix/querycache/internal/stats"
	"github.com/electwix/querycache/internal/telemetry"
)

// busLink connects the cache to the Redis invalidation channel for the
// lifetime of one run.
type busLink struct {
	client *redis.Client
	bus    *invalidation.RedisBus
	sub    *invalidation.Subscription
	group  *errgroup.Group
	cancel context.CancelFunc
	logger logging.Logger
}

func newBusLink(cfg config.InvalidationConfig, logger logging.Logger) *busLink {
	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	return &busLink{
		client: client,
		bus: invalidation.NewRedisBus(client,
			invalidation.WithChannel(cfg.Channel),
			invalidation.WithLogger(logger),
		),
		logger: logger,
	}
}

// Start subscribes and applies invalidations published by other processes
// to qc until Close.
func (l *busLink) Start(ctx context.Context, qc *cache.QueryCache) error {
	sub, err := l.bus.Subscribe(ctx)
	if err != nil {
		return err
	}
	ctx, l.cancel = context.WithCancel(ctx)
	l.sub = sub
	l.group, ctx = errgroup.WithContext(ctx)
	l.group.Go(func() error {
		return sub.Run(ctx, func(_ context.Context, m invalidation.Message) {
			n := qc.ApplyRemote(m.Tables)
			l.logger.Debug("applied remote invalidation", "origin", m.Origin, "tables", m.Tables, "removed", n)
		})
	})
	return nil
}

// Close stops the subscription and closes the client.
func (l *busLink) Close() {
	if l.cancel != nil {
		l.cancel()
	}
	if l.group != nil {
		if err := l.group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
			l.logger.Warn("invalidation subscription failed", "error", err)
		}
	}
	if l.sub != nil {
		_ = l.sub.Close()
	}
	_ = l.client.Close()
}

// metricsExport collects the cache counters through an OpenTelemetry manual
// reader.
type metricsExport struct {
	reader       *sdkmetric.ManualReader
	provider     *sdkmetric.MeterProvider
	registration metric.Registration
}

func newMetricsExport(s *stats.Statistics) (*metricsExport, error) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	reg, err := telemetry.RegisterStatistics(provider.Meter("qcache"), s, attribute.String("cache", "qcache"))
	if err != nil {
		_ = provider.Shutdown(context.Background())
		return nil, fmt.Errorf("telemetry: %w", err)
	}
	return &metricsExport{reader: reader, provider: provider, registration: reg}, nil
}

// Print collects once and writes one line per metric, sorted by name.
func (m *metricsExport) Print(ctx context.Context, w io.Writer) error {
	var rm metricdata.ResourceMetrics
	if err := m.reader.Collect(ctx, &rm); err != nil {
		return fmt.Errorf("telemetry: collect: %w", err)
	}
	var lines []string
	for _, sm := range rm.ScopeMetrics {
		for _, md := range sm.Metrics {
			switch data := md.Data.(type) {
			case metricdata.Sum[int64]:
				for _, dp := range data.DataPoints {
					lines = append(lines, fmt.Sprintf("%s %d", md.Name, dp.Value))
				}
			case metricdata.Gauge[float64]:
				for _, dp := range data.DataPoints {
					lines = append(lines, fmt.Sprintf("%s %.2f", md.Name, dp.Value))
				}
			}
		}
	}
	slices.Sort(lines)
	_, _ = fmt.Fprintln(w)
	for _, line := range lines {
		_, _ = fmt.Fprintln(w, line)
	}
	return nil
}

func (m *metricsExport) Close(ctx context.Context) {
	_ = m.registration.Unregister()
	_ = m.provider.Shutdown(ctx)
}
