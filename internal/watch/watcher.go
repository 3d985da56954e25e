// Package watch runs the fetch-extract-dispatch cycle: pull the incident
// grid for each configured communications center, build records, drop
// already-seen ones, enrich the rest from their detail panels, and hand the
// formatted messages to the dispatcher.
package watch

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/vladse1/CHP/internal/cad"
	"github.com/vladse1/CHP/internal/extract"
	"github.com/vladse1/CHP/internal/incident"
	"github.com/vladse1/CHP/internal/model"
	"github.com/vladse1/CHP/internal/monitoring"
	"github.com/vladse1/CHP/internal/notify"
	"github.com/vladse1/CHP/internal/seen"
)

// Config controls a Watcher's cycle behavior.
type Config struct {
	// Centers are the communications centers to poll, by dropdown text.
	Centers []string
	// FetchDetails enables the per-incident detail postback that yields
	// coordinates and detail lines.
	FetchDetails bool
	// Filter admits incidents by type; nil admits everything.
	Filter *incident.TypeFilter
	// Recent caps the buffer of dispatched incidents kept for the status
	// API. Default: 50.
	Recent int
}

// CycleStats summarizes one completed cycle.
type CycleStats struct {
	Cycle        string    `json:"cycle"`
	StartedAt    time.Time `json:"started_at"`
	DurationMS   int64     `json:"duration_ms"`
	Rows         int       `json:"rows"`
	Filtered     int       `json:"filtered"`
	Malformed    int       `json:"malformed"`
	New          int       `json:"new"`
	Dispatched   int       `json:"dispatched"`
	CenterErrors int       `json:"center_errors"`
}

// DispatchedIncident is one delivered incident in the recent buffer.
type DispatchedIncident struct {
	Key          string                `json:"key"`
	Record       *model.IncidentRecord `json:"record"`
	DispatchedAt time.Time             `json:"dispatched_at"`
}

// Status is the watcher state served by the status API.
type Status struct {
	Ready     bool       `json:"ready"`
	Centers   []string   `json:"centers"`
	LastCycle CycleStats `json:"last_cycle"`
	SeenCount int        `json:"seen_count"`
}

// Watcher drives cycles against a CAD source and remembers what it has
// already dispatched.
type Watcher struct {
	source   cad.Source
	store    seen.Store
	format   *notify.Formatter
	dispatch notify.Dispatcher
	metrics  *monitoring.Metrics
	cfg      Config

	ready atomic.Bool

	mu     sync.Mutex
	last   CycleStats
	recent []DispatchedIncident
}

// New creates a Watcher. All collaborators, metrics included, must be
// non-nil.
func New(source cad.Source, store seen.Store, format *notify.Formatter, dispatch notify.Dispatcher, metrics *monitoring.Metrics, cfg Config) *Watcher {
	if cfg.Recent <= 0 {
		cfg.Recent = 50
	}
	return &Watcher{
		source:   source,
		store:    store,
		format:   format,
		dispatch: dispatch,
		metrics:  metrics,
		cfg:      cfg,
	}
}

// RunCycle executes one fetch-extract-dispatch pass over every configured
// center. Centers fail independently; the returned error is non-nil only
// when no center produced a listing. Failed dispatches are not marked seen,
// so the next cycle retries them.
func (w *Watcher) RunCycle(ctx context.Context) (CycleStats, error) {
	stats := CycleStats{
		Cycle:     uuid.New().String(),
		StartedAt: time.Now().UTC(),
	}
	if len(w.cfg.Centers) == 0 {
		return stats, eris.New("watch: no centers configured")
	}

	log := zap.L().With(zap.String("cycle", stats.Cycle))
	w.metrics.CyclesTotal.Inc()

	for _, center := range w.cfg.Centers {
		listing, err := w.source.Listing(ctx, center)
		if err != nil {
			stats.CenterErrors++
			log.Error("watch: center listing failed",
				zap.String("center", center),
				zap.Error(err),
			)
			continue
		}
		w.processListing(ctx, log, listing, &stats)
	}

	var err error
	if stats.CenterErrors == len(w.cfg.Centers) {
		w.metrics.CycleErrors.Inc()
		err = eris.Errorf("watch: listing failed for all %d centers", len(w.cfg.Centers))
	}

	stats.DurationMS = time.Since(stats.StartedAt).Milliseconds()
	w.metrics.CycleDuration.Observe(time.Since(stats.StartedAt).Seconds())
	if n, lerr := w.store.Len(ctx); lerr == nil {
		w.metrics.SeenEntries.Set(float64(n))
	}

	w.ready.Store(err == nil)
	w.mu.Lock()
	w.last = stats
	w.mu.Unlock()

	log.Info("watch: cycle complete",
		zap.Int("rows", stats.Rows),
		zap.Int("filtered", stats.Filtered),
		zap.Int("malformed", stats.Malformed),
		zap.Int("new", stats.New),
		zap.Int("dispatched", stats.Dispatched),
		zap.Int("center_errors", stats.CenterErrors),
		zap.Int64("duration_ms", stats.DurationMS),
	)
	return stats, err
}

func (w *Watcher) processListing(ctx context.Context, log *zap.Logger, listing *cad.Listing, stats *CycleStats) {
	for _, row := range listing.Rows {
		stats.Rows++
		w.metrics.RowsTotal.Inc()

		if !w.cfg.Filter.Match(row.Fields[model.FieldType]) {
			stats.Filtered++
			w.metrics.FilteredRows.Inc()
			continue
		}

		rec, err := incident.Build(listing.Center, row.Fields)
		if err != nil {
			stats.Malformed++
			w.metrics.MalformedRows.Inc()
			log.Warn("watch: skipping malformed row",
				zap.String("center", listing.Center),
				zap.Error(err),
			)
			continue
		}

		key := rec.Key()
		known, err := w.store.Contains(ctx, key)
		if err != nil {
			// Without a dedup answer a dispatch could repeat every cycle,
			// so the row waits for the store to come back.
			log.Error("watch: seen lookup failed",
				zap.String("incident", rec.Number),
				zap.Error(err),
			)
			continue
		}
		if known {
			continue
		}
		stats.New++
		w.metrics.IncidentsNew.Inc()

		if w.cfg.FetchDetails && row.DetailTarget != "" {
			w.enrich(ctx, log, listing, row.DetailTarget, rec)
		}

		text := w.format.Format(rec)
		if err := w.dispatch.Dispatch(ctx, rec, text); err != nil {
			w.metrics.DispatchErrors.Inc()
			log.Error("watch: dispatch failed",
				zap.String("incident", rec.Number),
				zap.String("center", rec.CommCenter),
				zap.Error(err),
			)
			continue
		}
		stats.Dispatched++
		w.metrics.DispatchesTotal.Inc()

		if err := w.store.Add(ctx, key); err != nil {
			// Delivered but not recorded; the next cycle may send it again.
			log.Error("watch: marking incident seen failed",
				zap.String("incident", rec.Number),
				zap.Error(err),
			)
		}
		w.remember(DispatchedIncident{Key: key, Record: rec, DispatchedAt: time.Now().UTC()})
	}
}

// enrich issues the row's detail postback and attaches coordinates and
// detail lines to the record. Detail failures leave the record bare; the
// incident still goes out.
func (w *Watcher) enrich(ctx context.Context, log *zap.Logger, listing *cad.Listing, target string, rec *model.IncidentRecord) {
	panel, err := w.source.Detail(ctx, listing, target)
	if err != nil {
		w.metrics.DetailErrors.Inc()
		log.Warn("watch: detail postback failed",
			zap.String("incident", rec.Number),
			zap.String("center", rec.CommCenter),
			zap.Error(err),
		)
		return
	}
	if c, ok := extract.ResolveCoordinates(panel.Doc); ok {
		rec.Coordinates = &c
	}
	rec.Details = extract.DetailLines(panel.Doc)
}

func (w *Watcher) remember(d DispatchedIncident) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.recent = append(w.recent, d)
	if len(w.recent) > w.cfg.Recent {
		w.recent = w.recent[len(w.recent)-w.cfg.Recent:]
	}
}

// Ready reports whether the most recent cycle completed against at least
// one center.
func (w *Watcher) Ready() bool {
	return w.ready.Load()
}

// Status returns the watcher state for the status API.
func (w *Watcher) Status(ctx context.Context) Status {
	w.mu.Lock()
	last := w.last
	w.mu.Unlock()

	s := Status{
		Ready:     w.Ready(),
		Centers:   w.cfg.Centers,
		LastCycle: last,
	}
	if n, err := w.store.Len(ctx); err == nil {
		s.SeenCount = n
	}
	return s
}

// Recent returns the dispatched-incident buffer, newest first.
func (w *Watcher) Recent() []DispatchedIncident {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]DispatchedIncident, len(w.recent))
	for i, d := range w.recent {
		out[len(w.recent)-1-i] = d
	}
	return out
}
