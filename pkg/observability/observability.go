// Package observability collects RED (Rate, Errors, Duration) metrics
// for the admission pipeline on the OpenTelemetry metric API. A manual
// reader backs the /api/metrics endpoint; no exporter is wired, the
// process is its own scrape target.
package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// Metrics owns the meter provider and the pipeline instruments.
type Metrics struct {
	reader   *sdkmetric.ManualReader
	provider *sdkmetric.MeterProvider

	processed metric.Int64Counter
	allowed   metric.Int64Counter
	blocked   metric.Int64Counter
	duration  metric.Float64Histogram
}

// New builds a metrics pipeline with a manual reader.
func New() (*Metrics, error) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	meter := provider.Meter("cockpit")

	processed, err := meter.Int64Counter("cockpit.changes.processed",
		metric.WithDescription("Change requests that entered the admission pipeline"))
	if err != nil {
		return nil, fmt.Errorf("create processed counter: %w", err)
	}
	allowed, err := meter.Int64Counter("cockpit.changes.allowed",
		metric.WithDescription("Change requests that were applied to disk"))
	if err != nil {
		return nil, fmt.Errorf("create allowed counter: %w", err)
	}
	blocked, err := meter.Int64Counter("cockpit.changes.blocked",
		metric.WithDescription("Change requests rejected by a pipeline gate"))
	if err != nil {
		return nil, fmt.Errorf("create blocked counter: %w", err)
	}
	duration, err := meter.Float64Histogram("cockpit.pipeline.duration",
		metric.WithDescription("Admission pipeline latency"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, fmt.Errorf("create duration histogram: %w", err)
	}

	return &Metrics{
		reader:    reader,
		provider:  provider,
		processed: processed,
		allowed:   allowed,
		blocked:   blocked,
		duration:  duration,
	}, nil
}

// RecordChange accounts one pipeline run. blockReason is empty for an
// applied change and carries the gate's error kind otherwise.
func (m *Metrics) RecordChange(ctx context.Context, elapsed time.Duration, blockReason string) {
	m.processed.Add(ctx, 1)
	if blockReason == "" {
		m.allowed.Add(ctx, 1)
		m.duration.Record(ctx, elapsed.Seconds())
		return
	}
	m.blocked.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", blockReason)))
	m.duration.Record(ctx, elapsed.Seconds())
}

// Snapshot drains the manual reader into a flat name→value map, the
// shape /api/metrics serves. Counters sum across attribute sets;
// histograms contribute _count and _sum entries.
func (m *Metrics) Snapshot(ctx context.Context) (map[string]float64, error) {
	var rm metricdata.ResourceMetrics
	if err := m.reader.Collect(ctx, &rm); err != nil {
		return nil, fmt.Errorf("collect metrics: %w", err)
	}

	out := make(map[string]float64)
	for _, scope := range rm.ScopeMetrics {
		for _, met := range scope.Metrics {
			switch data := met.Data.(type) {
			case metricdata.Sum[int64]:
				var total int64
				for _, dp := range data.DataPoints {
					total += dp.Value
				}
				out[met.Name] = float64(total)
			case metricdata.Sum[float64]:
				var total float64
				for _, dp := range data.DataPoints {
					total += dp.Value
				}
				out[met.Name] = total
			case metricdata.Histogram[float64]:
				var count uint64
				var sum float64
				for _, dp := range data.DataPoints {
					count += dp.Count
					sum += dp.Sum
				}
				out[met.Name+"_count"] = float64(count)
				out[met.Name+"_sum"] = sum
			}
		}
	}
	return out, nil
}

// Shutdown flushes and releases the meter provider.
func (m *Metrics) Shutdown(ctx context.Context) error {
	return m.provider.Shutdown(ctx)
}
