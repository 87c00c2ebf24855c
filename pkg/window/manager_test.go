package window_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/Sumatoshi-tech/lossdiff/pkg/lossdata"
	"github.com/Sumatoshi-tech/lossdiff/pkg/lossstats"
	"github.com/Sumatoshi-tech/lossdiff/pkg/observability"
	"github.com/Sumatoshi-tech/lossdiff/pkg/window"
)

const sampleTrace = "1,10,8\n2,9,9\n3,5,10\n"

type recorder struct {
	mu     sync.Mutex
	events []window.Event
}

func (r *recorder) observe(ev window.Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recorder) kinds() []window.EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]window.EventKind, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Kind
	}

	return out
}

func loadedManager(t *testing.T, opts ...window.Option) *window.Manager {
	t.Helper()

	m := window.NewManager(opts...)

	_, err := m.Load(context.Background(), sampleTrace)
	require.NoError(t, err)

	return m
}

func TestManager_EmptyView(t *testing.T) {
	t.Parallel()

	m := window.NewManager()
	view := m.View()

	assert.False(t, view.Loaded)
	assert.Zero(t, view.Len)
	assert.Empty(t, view.Diffs)
	assert.Equal(t, lossstats.Statistics{}, view.Stats)
}

func TestManager_LoadResetsWindowToFullRange(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	m := window.NewManager()
	m.Subscribe(rec.observe)

	view, err := m.Load(context.Background(), sampleTrace)
	require.NoError(t, err)

	assert.True(t, view.Loaded)
	assert.Equal(t, 0, view.Start)
	assert.Equal(t, 3, view.End)
	assert.Equal(t, 3, view.Len)
	require.Len(t, view.Diffs, 3)
	assert.InDelta(t, 0.25, view.Diffs[0].RelativeDiff, 1e-12)
	assert.InDelta(t, -0.5, view.Diffs[2].RelativeDiff, 1e-12)
	assert.Equal(t, lossstats.Extremum{Value: 2, Step: 1}, view.Stats.MaxDiff)
	assert.InDelta(t, -1.0, view.Stats.MeanDiff, 1e-12)

	assert.Equal(t, []window.EventKind{window.EventLoaded}, rec.kinds())
	assert.Equal(t, view, m.View())
}

func TestManager_SetWindowWorkedExample(t *testing.T) {
	t.Parallel()

	m := loadedManager(t)

	view, err := m.SetWindow(context.Background(), 0, 2)
	require.NoError(t, err)

	assert.Equal(t, 0, view.Start)
	assert.Equal(t, 2, view.End)
	assert.Equal(t, 3, view.Len)
	require.Len(t, view.Losses, 2)
	require.Len(t, view.Diffs, 2)

	assert.Equal(t, lossstats.Extremum{Value: 2, Step: 1}, view.Stats.MaxDiff)
	assert.Equal(t, lossstats.Extremum{Value: 0, Step: 2}, view.Stats.MinDiff)
	assert.Equal(t, lossstats.Extremum{Value: 0, Step: 2}, view.Stats.MinPositiveDiff)
	assert.False(t, view.Stats.HasMaxNegative())
}

func TestManager_SetWindowClamps(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		start, end int
		wantStart  int
		wantEnd    int
	}{
		{name: "in_range", start: 1, end: 2, wantStart: 1, wantEnd: 2},
		{name: "negative_start", start: -5, end: 2, wantStart: 0, wantEnd: 2},
		{name: "end_past_len", start: 1, end: 99, wantStart: 1, wantEnd: 3},
		{name: "both_out_of_range", start: -1, end: 10, wantStart: 0, wantEnd: 3},
		{name: "end_below_start_floors_up", start: 2, end: 1, wantStart: 2, wantEnd: 2},
		{name: "start_past_len", start: 7, end: 1, wantStart: 3, wantEnd: 3},
		{name: "empty_window", start: 1, end: 1, wantStart: 1, wantEnd: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			m := loadedManager(t)

			view, err := m.SetWindow(context.Background(), tt.start, tt.end)
			require.NoError(t, err)

			assert.Equal(t, tt.wantStart, view.Start)
			assert.Equal(t, tt.wantEnd, view.End)
			assert.Len(t, view.Diffs, tt.wantEnd-tt.wantStart)
			assert.LessOrEqual(t, view.Start, view.End)
			assert.LessOrEqual(t, view.End, view.Len)
		})
	}
}

func TestManager_EmptyWindowHasZeroStats(t *testing.T) {
	t.Parallel()

	m := loadedManager(t)

	view, err := m.SetWindow(context.Background(), 2, 2)
	require.NoError(t, err)
	assert.Equal(t, lossstats.Statistics{}, view.Stats)
}

func TestManager_SetWindowIdempotent(t *testing.T) {
	t.Parallel()

	m := loadedManager(t)
	ctx := context.Background()

	first, err := m.SetWindow(ctx, 1, 3)
	require.NoError(t, err)

	second, err := m.SetWindow(ctx, 1, 3)
	require.NoError(t, err)

	assert.Equal(t, first.Stats, second.Stats)
	assert.Equal(t, first, second)
}

func TestManager_SetWindowWithoutDataset(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	m := window.NewManager()
	m.Subscribe(rec.observe)

	_, err := m.SetWindow(context.Background(), 0, 1)
	require.ErrorIs(t, err, window.ErrNoDataset)

	_, err = m.TriggerReplot(context.Background())
	require.ErrorIs(t, err, window.ErrNoDataset)

	assert.Empty(t, rec.kinds())
	assert.False(t, m.View().Loaded)
}

func TestManager_EmptyDatasetIsLoaded(t *testing.T) {
	t.Parallel()

	m := window.NewManager()

	view, err := m.Load(context.Background(), "")
	require.NoError(t, err)
	assert.True(t, view.Loaded)
	assert.Zero(t, view.Len)

	view, err = m.SetWindow(context.Background(), -3, 4)
	require.NoError(t, err)
	assert.Equal(t, 0, view.Start)
	assert.Equal(t, 0, view.End)
	assert.Equal(t, lossstats.Statistics{}, view.Stats)
}

func TestManager_StagedBounds(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	m := loadedManager(t)
	m.Subscribe(rec.observe)

	before := m.View()

	m.SetWindowStart(1)
	m.SetWindowEnd(2)

	assert.Equal(t, before, m.View(), "staging must not recompute")
	assert.Empty(t, rec.kinds(), "staging must not publish")

	view, err := m.TriggerReplot(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, view.Start)
	assert.Equal(t, 2, view.End)
	assert.Equal(t, []window.EventKind{window.EventWindow}, rec.kinds())
}

func TestManager_StagedBoundsClampedOnReplot(t *testing.T) {
	t.Parallel()

	m := loadedManager(t)
	m.SetWindowStart(-10)
	m.SetWindowEnd(100)

	view, err := m.TriggerReplot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, view.Start)
	assert.Equal(t, 3, view.End)
}

func TestManager_LoadResetsStagedBounds(t *testing.T) {
	t.Parallel()

	m := loadedManager(t)
	m.SetWindowStart(2)
	m.SetWindowEnd(2)

	_, err := m.Load(context.Background(), "1,1,1\n2,2,2\n3,3,3\n4,4,4\n")
	require.NoError(t, err)

	view, err := m.TriggerReplot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, view.Start)
	assert.Equal(t, 4, view.End)
}

func TestManager_LoadFailureKeepsState(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	m := loadedManager(t)

	before, err := m.SetWindow(context.Background(), 1, 2)
	require.NoError(t, err)

	m.Subscribe(rec.observe)

	_, err = m.Load(context.Background(), "1,2,3\n4,five,6\n")
	require.ErrorIs(t, err, lossdata.ErrNotNumeric)

	var pe *lossdata.ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, 1, pe.Row)

	assert.Equal(t, before, m.View())
	require.Equal(t, []window.EventKind{window.EventLoadFailed}, rec.kinds())
	assert.ErrorIs(t, rec.events[0].Err, lossdata.ErrParse)
	assert.Equal(t, before, rec.events[0].View)
}

func TestManager_LoadFailureOnEmpty(t *testing.T) {
	t.Parallel()

	m := window.NewManager()

	_, err := m.Load(context.Background(), "step,a,b\n")
	require.Error(t, err)
	assert.False(t, m.View().Loaded)

	_, err = m.SetWindow(context.Background(), 0, 1)
	require.ErrorIs(t, err, window.ErrNoDataset)
}

// blockingReader releases its content only when told to, so a test can hold
// a load mid-read while a newer one completes.
type blockingReader struct {
	release chan struct{}
	r       io.Reader
}

func (b *blockingReader) Read(p []byte) (int, error) {
	<-b.release

	return b.r.Read(p)
}

func TestManager_StaleLoadIsDiscarded(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	m := window.NewManager()
	m.Subscribe(rec.observe)

	slow := &blockingReader{release: make(chan struct{}), r: strings.NewReader("9,9,9\n")}

	type result struct {
		view window.View
		err  error
	}

	done := make(chan result, 1)
	reserved := make(chan struct{})

	go func() {
		// LoadFrom reserves its ticket before the first Read.
		r := &signalReader{once: &sync.Once{}, signal: reserved, r: slow}
		view, err := m.LoadFrom(context.Background(), r)
		done <- result{view: view, err: err}
	}()

	<-reserved

	fresh, err := m.Load(context.Background(), sampleTrace)
	require.NoError(t, err)

	close(slow.release)

	stale := <-done
	require.ErrorIs(t, stale.err, window.ErrSuperseded)

	assert.Equal(t, fresh, m.View())
	assert.Equal(t, 3, m.View().Len)
	assert.Equal(t, []window.EventKind{window.EventLoaded}, rec.kinds())
}

func TestManager_StaleFailurePublishesNothing(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	m := window.NewManager()
	m.Subscribe(rec.observe)

	slow := &blockingReader{release: make(chan struct{}), r: strings.NewReader("not,a,row\n")}
	reserved := make(chan struct{})
	done := make(chan error, 1)

	go func() {
		_, err := m.LoadFrom(context.Background(), &signalReader{once: &sync.Once{}, signal: reserved, r: slow})
		done <- err
	}()

	<-reserved

	_, err := m.Load(context.Background(), sampleTrace)
	require.NoError(t, err)

	close(slow.release)

	require.ErrorIs(t, <-done, window.ErrSuperseded)
	assert.Equal(t, []window.EventKind{window.EventLoaded}, rec.kinds())
}

type signalReader struct {
	once   *sync.Once
	signal chan struct{}
	r      io.Reader
}

func (s *signalReader) Read(p []byte) (int, error) {
	s.once.Do(func() { close(s.signal) })

	return s.r.Read(p)
}

func TestManager_LoadFrom(t *testing.T) {
	t.Parallel()

	m := window.NewManager()

	view, err := m.LoadFrom(context.Background(), strings.NewReader(sampleTrace))
	require.NoError(t, err)
	assert.Equal(t, 3, view.Len)
	assert.Equal(t, uint64(1), view.Generation)
}

var errDiskGone = errors.New("disk gone")

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errDiskGone }

func TestManager_LoadFromReadError(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	m := loadedManager(t)
	before := m.View()
	m.Subscribe(rec.observe)

	_, err := m.LoadFrom(context.Background(), failingReader{})
	require.ErrorIs(t, err, errDiskGone)
	assert.NotErrorIs(t, err, lossdata.ErrParse)
	assert.Equal(t, before, m.View())

	require.Equal(t, []window.EventKind{window.EventLoadFailed}, rec.kinds())
	assert.ErrorIs(t, rec.events[0].Err, errDiskGone)
	assert.Equal(t, before, rec.events[0].View)
}

func TestManager_StaleReadErrorIsSuperseded(t *testing.T) {
	t.Parallel()

	rec := &recorder{}
	m := window.NewManager()
	m.Subscribe(rec.observe)

	slow := &blockingReader{release: make(chan struct{}), r: failingReader{}}
	reserved := make(chan struct{})
	done := make(chan error, 1)

	go func() {
		_, err := m.LoadFrom(context.Background(), &signalReader{once: &sync.Once{}, signal: reserved, r: slow})
		done <- err
	}()

	<-reserved

	_, err := m.Load(context.Background(), sampleTrace)
	require.NoError(t, err)

	close(slow.release)

	require.ErrorIs(t, <-done, window.ErrSuperseded)
	assert.Equal(t, []window.EventKind{window.EventLoaded}, rec.kinds())
}

func TestManager_LoadFromCancelled(t *testing.T) {
	t.Parallel()

	m := window.NewManager()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec := &recorder{}
	m.Subscribe(rec.observe)

	_, err := m.LoadFrom(ctx, strings.NewReader(sampleTrace))
	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, m.View().Loaded)
	assert.Equal(t, []window.EventKind{window.EventLoadFailed}, rec.kinds())
}

func TestManager_GenerationIncreases(t *testing.T) {
	t.Parallel()

	m := window.NewManager()
	ctx := context.Background()

	first, err := m.Load(ctx, sampleTrace)
	require.NoError(t, err)

	second, err := m.Load(ctx, "1,1,2\n")
	require.NoError(t, err)

	assert.Greater(t, second.Generation, first.Generation)

	windowed, err := m.SetWindow(ctx, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, second.Generation, windowed.Generation)
}

func TestManager_ObserversInOrderAndUnsubscribe(t *testing.T) {
	t.Parallel()

	m := window.NewManager()

	var order []string

	m.Subscribe(func(window.Event) { order = append(order, "first") })
	unsubscribe := m.Subscribe(func(window.Event) { order = append(order, "second") })

	_, err := m.Load(context.Background(), sampleTrace)
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second"}, order)

	unsubscribe()
	unsubscribe()

	_, err = m.SetWindow(context.Background(), 0, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second", "first"}, order)
}

func TestManager_ViewSlicesAreClipped(t *testing.T) {
	t.Parallel()

	m := loadedManager(t)

	view, err := m.SetWindow(context.Background(), 0, 1)
	require.NoError(t, err)

	_ = append(view.Diffs, lossdata.DiffRecord{Step: 99})

	full, err := m.SetWindow(context.Background(), 0, 3)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, full.Diffs[1].Step, 0)
}

func TestManager_WithEpsilon(t *testing.T) {
	t.Parallel()

	m := window.NewManager(window.WithEpsilon(0.5))

	view, err := m.Load(context.Background(), "1,0,0\n")
	require.NoError(t, err)
	assert.InDelta(t, 0.0, view.Diffs[0].RelativeDiff, 0)
}

func TestManager_Telemetry(t *testing.T) {
	t.Parallel()

	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	t.Cleanup(func() {
		require.NoError(t, tp.Shutdown(context.Background()))
		require.NoError(t, mp.Shutdown(context.Background()))
	})

	em, err := observability.NewEngineMetrics(mp.Meter("test"))
	require.NoError(t, err)

	m := loadedManager(t, window.WithTracer(tp.Tracer("test")), window.WithMetrics(em))

	_, err = m.SetWindow(context.Background(), 0, 2)
	require.NoError(t, err)

	names := make([]string, 0)
	for _, s := range exporter.GetSpans() {
		names = append(names, s.Name)
	}

	assert.Equal(t, []string{"lossdiff.window.load", "lossdiff.window.set"}, names)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	found := make(map[string]bool)
	for _, sm := range rm.ScopeMetrics {
		for _, metric := range sm.Metrics {
			found[metric.Name] = true
		}
	}

	assert.True(t, found["lossdiff.dataset.loads.total"])
	assert.True(t, found["lossdiff.window.updates.total"])
}
