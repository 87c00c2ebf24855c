// Package window owns the loaded loss trace and the visible window over it.
//
// A Manager holds at most one dataset. Loads are guarded by a generation
// ticket so that a slow, older load never replaces a newer one, and every
// state change is published to subscribed observers as an Event.
package window

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"

	"github.com/Sumatoshi-tech/lossdiff/pkg/lossdata"
	"github.com/Sumatoshi-tech/lossdiff/pkg/lossstats"
	"github.com/Sumatoshi-tech/lossdiff/pkg/mathutil"
	"github.com/Sumatoshi-tech/lossdiff/pkg/observability"
)

// Sentinel errors.
var (
	// ErrSuperseded is returned by a load whose result was discarded because a
	// newer load was issued while it ran.
	ErrSuperseded = errors.New("load superseded by a newer load")
	// ErrNoDataset is returned by window operations before the first successful load.
	ErrNoDataset = errors.New("no dataset loaded")
)

// EventKind names what changed.
type EventKind string

const (
	// EventLoaded follows a committed load; the window spans the whole dataset.
	EventLoaded EventKind = "loaded"
	// EventWindow follows an applied window change.
	EventWindow EventKind = "window"
	// EventLoadFailed follows a failed read or parse of the newest load. The view is unchanged.
	EventLoadFailed EventKind = "load_failed"
)

// Event is delivered to observers after every published state change.
type Event struct {
	Kind EventKind
	View View
	// Err is the read or parse error for EventLoadFailed, nil otherwise.
	Err error
}

// Observer receives events synchronously while the manager holds its lock.
// It must return promptly and must not call back into the manager.
type Observer func(Event)

// View is an immutable snapshot of the manager's published state.
type View struct {
	// Generation is the ticket of the load that produced the dataset.
	Generation uint64 `json:"generation"`
	// Loaded is false until the first successful load.
	Loaded bool `json:"loaded"`
	// Start and End bound the window, half-open, 0 <= Start <= End <= Len.
	Start int `json:"start"`
	End   int `json:"end"`
	// Len is the number of records in the whole dataset.
	Len int `json:"len"`

	Losses []lossdata.LossRecord `json:"losses"`
	Diffs  []lossdata.DiffRecord `json:"diffs"`
	Stats  lossstats.Statistics  `json:"stats"`
}

// Option configures a Manager.
type Option func(*Manager)

// WithEpsilon sets the 0/0 guard used when deriving relative differences.
func WithEpsilon(eps float64) Option {
	return func(m *Manager) { m.epsilon = eps }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// WithTracer sets the tracer used for load and window spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(m *Manager) { m.tracer = tracer }
}

// WithMetrics sets the engine metric instruments.
func WithMetrics(metrics *observability.EngineMetrics) Option {
	return func(m *Manager) { m.metrics = metrics }
}

type subscription struct {
	id int
	fn Observer
}

// Manager holds the dataset, the window over it and the observer set.
// It is safe for concurrent use.
type Manager struct {
	epsilon float64
	logger  *slog.Logger
	tracer  trace.Tracer
	metrics *observability.EngineMetrics

	mu sync.Mutex

	// issued is the newest load ticket handed out.
	issued uint64

	loaded      bool
	generation  uint64
	records     []lossdata.LossRecord
	diffs       []lossdata.DiffRecord
	start, end  int
	stagedStart int
	stagedEnd   int
	view        View

	observers []subscription
	nextSubID int
}

// NewManager creates an empty Manager.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		epsilon: lossdata.DefaultEpsilon,
		logger:  slog.New(slog.DiscardHandler),
		tracer:  nooptrace.NewTracerProvider().Tracer(""),
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Load parses raw, derives differences and commits the result as the new
// dataset with the window reset to the full range.
//
// A parse failure leaves dataset and window untouched and returns the
// *lossdata.ParseError; observers see EventLoadFailed only if this was still
// the newest load. If a newer load was issued meanwhile, the result is dropped
// silently and ErrSuperseded is returned.
func (m *Manager) Load(ctx context.Context, raw string) (View, error) {
	ticket := m.reserve()

	return m.load(ctx, ticket, func() ([]lossdata.LossRecord, error) {
		return lossdata.ParseString(raw)
	})
}

// LoadFrom is Load for a reader. The generation is reserved before reading, so
// a load started later always wins even if this read finishes last. A read or
// context error is handled like a parse failure.
func (m *Manager) LoadFrom(ctx context.Context, r io.Reader) (View, error) {
	ticket := m.reserve()

	return m.load(ctx, ticket, func() ([]lossdata.LossRecord, error) {
		raw, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("read dataset: %w", err)
		}

		err = ctx.Err()
		if err != nil {
			return nil, fmt.Errorf("read dataset: %w", err)
		}

		return lossdata.ParseString(string(raw))
	})
}

func (m *Manager) reserve() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.issued++

	return m.issued
}

func (m *Manager) load(ctx context.Context, ticket uint64, parse func() ([]lossdata.LossRecord, error)) (View, error) {
	ctx, span := m.tracer.Start(ctx, "lossdiff.window.load",
		trace.WithAttributes(attribute.Int64("window.generation", int64(ticket))), //nolint:gosec // tickets stay far below MaxInt64.
	)
	defer span.End()

	started := time.Now()

	records, loadErr := parse()

	var diffs []lossdata.DiffRecord
	if loadErr == nil {
		diffs = lossdata.ComputeDiffs(records, m.epsilon)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if ticket != m.issued {
		m.metrics.RecordLoad(ctx, observability.LoadSuperseded, 0, time.Since(started))
		m.logger.DebugContext(ctx, "load superseded", "generation", ticket, "newest", m.issued)
		span.SetAttributes(attribute.Bool("window.superseded", true))

		return View{}, ErrSuperseded
	}

	if loadErr != nil {
		m.metrics.RecordLoad(ctx, observability.LoadFailed, 0, time.Since(started))
		m.logger.WarnContext(ctx, "load failed", "generation", ticket, "error", loadErr)
		span.RecordError(loadErr)
		span.SetStatus(codes.Error, "load failed")

		m.publish(Event{Kind: EventLoadFailed, View: m.view, Err: loadErr})

		return View{}, loadErr
	}

	m.loaded = true
	m.generation = ticket
	m.records = records
	m.diffs = diffs
	m.stagedStart, m.stagedEnd = 0, len(records)
	m.apply(0, len(records))

	m.metrics.RecordLoad(ctx, observability.LoadCommitted, len(records), time.Since(started))
	m.logger.InfoContext(ctx, "dataset loaded", "generation", ticket, "records", len(records))
	span.SetAttributes(attribute.Int("dataset.records", len(records)))

	m.publish(Event{Kind: EventLoaded, View: m.view})

	return m.view, nil
}

// SetWindow clamps start and end into [0, Len], raises end to start when it
// falls below, recomputes the visible slices and Statistics, and publishes
// EventWindow. The staged bounds follow the applied ones.
func (m *Manager) SetWindow(ctx context.Context, start, end int) (View, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.setWindowLocked(ctx, start, end)
}

// SetWindowStart stages a start bound for the next TriggerReplot.
func (m *Manager) SetWindowStart(v int) {
	m.mu.Lock()
	m.stagedStart = v
	m.mu.Unlock()
}

// SetWindowEnd stages an end bound for the next TriggerReplot.
func (m *Manager) SetWindowEnd(v int) {
	m.mu.Lock()
	m.stagedEnd = v
	m.mu.Unlock()
}

// TriggerReplot applies the staged bounds as SetWindow would.
func (m *Manager) TriggerReplot(ctx context.Context) (View, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.setWindowLocked(ctx, m.stagedStart, m.stagedEnd)
}

func (m *Manager) setWindowLocked(ctx context.Context, start, end int) (View, error) {
	if !m.loaded {
		return View{}, ErrNoDataset
	}

	_, span := m.tracer.Start(ctx, "lossdiff.window.set",
		trace.WithAttributes(
			attribute.Int("window.requested_start", start),
			attribute.Int("window.requested_end", end),
		),
	)
	defer span.End()

	n := len(m.records)
	start = mathutil.Clamp(start, 0, n)
	end = max(mathutil.Clamp(end, 0, n), start)

	m.stagedStart, m.stagedEnd = start, end
	m.apply(start, end)

	m.metrics.RecordWindow(ctx, end-start)
	m.logger.DebugContext(ctx, "window applied", "start", start, "end", end)
	span.SetAttributes(attribute.Int("window.start", start), attribute.Int("window.end", end))

	m.publish(Event{Kind: EventWindow, View: m.view})

	return m.view, nil
}

// apply stores bounds that are already clamped and rebuilds the view.
func (m *Manager) apply(start, end int) {
	m.start, m.end = start, end

	diffs := slices.Clip(m.diffs[start:end])

	m.view = View{
		Generation: m.generation,
		Loaded:     true,
		Start:      start,
		End:        end,
		Len:        len(m.records),
		Losses:     slices.Clip(m.records[start:end]),
		Diffs:      diffs,
		Stats:      lossstats.Aggregate(diffs),
	}
}

// View returns the most recently published view, or the zero View before the
// first successful load.
func (m *Manager) View() View {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.view
}

// Subscribe registers fn for all future events, in subscription order.
// The returned function removes it; it must not be called from inside an observer.
func (m *Manager) Subscribe(fn Observer) (unsubscribe func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextSubID++
	id := m.nextSubID
	m.observers = append(m.observers, subscription{id: id, fn: fn})

	var once sync.Once

	return func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()

			m.observers = slices.DeleteFunc(m.observers, func(s subscription) bool { return s.id == id })
		})
	}
}

// publish must be called with mu held.
func (m *Manager) publish(ev Event) {
	for _, s := range m.observers {
		s.fn(ev)
	}
}
