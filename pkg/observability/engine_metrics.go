package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	metricLoadsTotal     = "lossdiff.dataset.loads.total"
	metricLoadDuration   = "lossdiff.dataset.load.duration.seconds"
	metricRecordsLoaded  = "lossdiff.dataset.records.total"
	metricDatasetRecords = "lossdiff.dataset.records"
	metricWindowUpdates  = "lossdiff.window.updates.total"
	metricWindowRecords  = "lossdiff.window.records"

	// LoadCommitted marks a load that replaced the dataset.
	LoadCommitted = "committed"
	// LoadFailed marks a load rejected by the parser.
	LoadFailed = "failed"
	// LoadSuperseded marks a load discarded because a newer one was issued.
	LoadSuperseded = "superseded"
)

var loadBucketBoundaries = []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5}

// EngineMetrics holds instruments for dataset loads and window changes.
type EngineMetrics struct {
	loadsTotal     metric.Int64Counter
	loadDuration   metric.Float64Histogram
	recordsLoaded  metric.Int64Counter
	datasetRecords metric.Int64Gauge
	windowUpdates  metric.Int64Counter
	windowRecords  metric.Int64Gauge
}

// NewEngineMetrics creates engine instruments from the given meter.
func NewEngineMetrics(mt metric.Meter) (*EngineMetrics, error) {
	b := newMetricBuilder(mt)

	em := &EngineMetrics{
		loadsTotal:     b.counter(metricLoadsTotal, "Dataset loads by outcome", "{load}"),
		loadDuration:   b.histogram(metricLoadDuration, "Parse and diff duration per load", "s", loadBucketBoundaries...),
		recordsLoaded:  b.counter(metricRecordsLoaded, "Records accepted across committed loads", "{record}"),
		datasetRecords: b.gauge(metricDatasetRecords, "Records in the current dataset", "{record}"),
		windowUpdates:  b.counter(metricWindowUpdates, "Applied window changes", "{update}"),
		windowRecords:  b.gauge(metricWindowRecords, "Records in the current window", "{record}"),
	}

	if b.err != nil {
		return nil, b.err
	}

	return em, nil
}

// RecordLoad records one load attempt. Records counts only for committed loads.
// Safe to call on a nil receiver.
func (em *EngineMetrics) RecordLoad(ctx context.Context, outcome string, records int, duration time.Duration) {
	if em == nil {
		return
	}

	attrs := metric.WithAttributes(attribute.String(attrStatus, outcome))

	em.loadsTotal.Add(ctx, 1, attrs)
	em.loadDuration.Record(ctx, duration.Seconds(), attrs)

	if outcome == LoadCommitted {
		em.recordsLoaded.Add(ctx, int64(records))
		em.datasetRecords.Record(ctx, int64(records))
	}
}

// RecordWindow records an applied window of size records.
// Safe to call on a nil receiver.
func (em *EngineMetrics) RecordWindow(ctx context.Context, records int) {
	if em == nil {
		return
	}

	em.windowUpdates.Add(ctx, 1)
	em.windowRecords.Record(ctx, int64(records))
}
