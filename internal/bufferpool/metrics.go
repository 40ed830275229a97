package bufferpool

import (
	"context"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// Metrics wraps the OpenTelemetry instruments the buffer pool manager and
// hash index emit through. Constructed from a metric.Meter handed back by
// pkg/telemetry; when telemetry is disabled that Meter is the otel noop
// implementation, so Metrics never needs its own enabled/disabled branch.
type Metrics struct {
	hits           metric.Int64Counter
	misses         metric.Int64Counter
	evictions      metric.Int64Counter
	dirtyEvictions metric.Int64Counter
	poolExhausted  metric.Int64Counter
	splits         metric.Int64Counter
}

// NewMetrics registers pagevault's buffer-pool instruments against meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	if m.hits, err = meter.Int64Counter("pagevault_bpm_hits_total",
		metric.WithDescription("Pages fetched that were already resident")); err != nil {
		return nil, err
	}
	if m.misses, err = meter.Int64Counter("pagevault_bpm_misses_total",
		metric.WithDescription("Pages fetched that required loading from the page store")); err != nil {
		return nil, err
	}
	if m.evictions, err = meter.Int64Counter("pagevault_bpm_evictions_total",
		metric.WithDescription("Frames evicted to make room for a new or fetched page")); err != nil {
		return nil, err
	}
	if m.dirtyEvictions, err = meter.Int64Counter("pagevault_bpm_dirty_evictions_total",
		metric.WithDescription("Evictions that required a write-back")); err != nil {
		return nil, err
	}
	if m.poolExhausted, err = meter.Int64Counter("pagevault_bpm_pool_exhausted_total",
		metric.WithDescription("New/fetch calls that failed because no frame was evictable")); err != nil {
		return nil, err
	}
	if m.splits, err = meter.Int64Counter("pagevault_ehi_splits_total",
		metric.WithDescription("Bucket splits performed by the extendible hash index")); err != nil {
		return nil, err
	}
	return m, nil
}

// NewNopMetrics returns a Metrics backed by the otel noop meter, for
// callers that don't want to wire pkg/telemetry. New falls back to it when
// given a nil Metrics, as the tests do.
func NewNopMetrics() *Metrics {
	m, _ := NewMetrics(noop.NewMeterProvider().Meter(""))
	return m
}

func (m *Metrics) Hit() {
	if m == nil || m.hits == nil {
		return
	}
	m.hits.Add(context.Background(), 1)
}

func (m *Metrics) Miss() {
	if m == nil || m.misses == nil {
		return
	}
	m.misses.Add(context.Background(), 1)
}

// Eviction records a frame eviction, split by whether it required a
// write-back.
func (m *Metrics) Eviction(dirty bool) {
	if m == nil || m.evictions == nil {
		return
	}
	m.evictions.Add(context.Background(), 1)
	if dirty && m.dirtyEvictions != nil {
		m.dirtyEvictions.Add(context.Background(), 1)
	}
}

func (m *Metrics) PoolExhausted() {
	if m == nil || m.poolExhausted == nil {
		return
	}
	m.poolExhausted.Add(context.Background(), 1)
}

func (m *Metrics) Split() {
	if m == nil || m.splits == nil {
		return
	}
	m.splits.Add(context.Background(), 1)
}

// RegisterDirectoryGauge wires an observable gauge for the hash index's
// current directory size (2^GlobalDepth), matching
// pagevault_ehi_directory_size from SPEC_FULL.md §3.3.
func RegisterDirectoryGauge[K comparable, V any](meter metric.Meter, idx *ExtendibleHashIndex[K, V]) error {
	gauge, err := meter.Int64ObservableGauge("pagevault_ehi_directory_size",
		metric.WithDescription("Current extendible hash directory size (2^global_depth)"))
	if err != nil {
		return err
	}
	_, err = meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		o.ObserveInt64(gauge, int64(1)<<uint(idx.GlobalDepth()))
		return nil
	}, gauge)
	return err
}
