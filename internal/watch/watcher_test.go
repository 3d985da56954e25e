package watch

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"

	"github.com/vladse1/CHP/internal/cad"
	"github.com/vladse1/CHP/internal/incident"
	"github.com/vladse1/CHP/internal/model"
	"github.com/vladse1/CHP/internal/monitoring"
	"github.com/vladse1/CHP/internal/notify"
	"github.com/vladse1/CHP/internal/seen"
)

type fakeSource struct {
	mu       sync.Mutex
	listings map[string]*cad.Listing
	errs     map[string]error
	panels   map[string]*cad.Panel
	detErr   error
	listed   int
	detailed int
}

func (f *fakeSource) Centers(context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, 0, len(f.listings))
	for name := range f.listings {
		names = append(names, name)
	}
	return names, nil
}

func (f *fakeSource) Listing(_ context.Context, center string) (*cad.Listing, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listed++
	if err := f.errs[center]; err != nil {
		return nil, err
	}
	if l, ok := f.listings[center]; ok {
		return l, nil
	}
	return &cad.Listing{Center: center}, nil
}

func (f *fakeSource) Detail(_ context.Context, _ *cad.Listing, target string) (*cad.Panel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.detailed++
	if f.detErr != nil {
		return nil, f.detErr
	}
	if p, ok := f.panels[target]; ok {
		return p, nil
	}
	return nil, assert.AnError
}

func (f *fakeSource) listingCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listed
}

type fakeDispatcher struct {
	mu    sync.Mutex
	fail  int
	recs  []*model.IncidentRecord
	texts []string
}

func (f *fakeDispatcher) Dispatch(_ context.Context, rec *model.IncidentRecord, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail > 0 {
		f.fail--
		return assert.AnError
	}
	f.recs = append(f.recs, rec)
	f.texts = append(f.texts, text)
	return nil
}

func (f *fakeDispatcher) sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.texts...)
}

func gridRow(num, tm, typ, loc string) cad.Row {
	return cad.Row{Fields: map[string]string{
		model.FieldNumber:   num,
		model.FieldTime:     tm,
		model.FieldType:     typ,
		model.FieldLocation: loc,
	}}
}

func newTestWatcher(t *testing.T, src cad.Source, d notify.Dispatcher, cfg Config) *Watcher {
	t.Helper()
	store := seen.NewMemory(time.Hour)
	t.Cleanup(func() { _ = store.Close() })
	return New(src, store, notify.NewFormatter(700), d, monitoring.NewMetricsForTesting(), cfg)
}

func TestRunCycle_DispatchesNewIncidents(t *testing.T) {
	src := &fakeSource{listings: map[string]*cad.Listing{
		"Golden Gate": {Center: "Golden Gate", Rows: []cad.Row{
			gridRow("0042", "6:41 PM", "Trfc Collision-Unkn Inj", "US-101 N / Lombard St"),
			gridRow("0043", "6:50 PM", "Traffic Hazard", "I-80 E / Treasure Island"),
		}},
	}}
	d := &fakeDispatcher{}
	w := newTestWatcher(t, src, d, Config{Centers: []string{"Golden Gate"}})

	stats, err := w.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Rows)
	assert.Equal(t, 2, stats.New)
	assert.Equal(t, 2, stats.Dispatched)
	assert.Zero(t, stats.Malformed)
	assert.True(t, w.Ready())

	texts := d.sent()
	require.Len(t, texts, 2)
	assert.Contains(t, texts[0], "US-101 N / Lombard St")
	assert.Contains(t, texts[1], "I-80 E / Treasure Island")
}

func TestRunCycle_SecondCycleDispatchesNothing(t *testing.T) {
	src := &fakeSource{listings: map[string]*cad.Listing{
		"Golden Gate": {Center: "Golden Gate", Rows: []cad.Row{
			gridRow("0042", "6:41 PM", "Trfc Collision-Unkn Inj", "US-101 N / Lombard St"),
		}},
	}}
	d := &fakeDispatcher{}
	w := newTestWatcher(t, src, d, Config{Centers: []string{"Golden Gate"}})

	_, err := w.RunCycle(context.Background())
	require.NoError(t, err)
	stats, err := w.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Rows)
	assert.Zero(t, stats.New)
	assert.Zero(t, stats.Dispatched)
	assert.Len(t, d.sent(), 1)
}

func TestRunCycle_FailedDispatchRetriesNextCycle(t *testing.T) {
	src := &fakeSource{listings: map[string]*cad.Listing{
		"Golden Gate": {Center: "Golden Gate", Rows: []cad.Row{
			gridRow("0042", "6:41 PM", "Trfc Collision-Unkn Inj", "US-101 N / Lombard St"),
		}},
	}}
	d := &fakeDispatcher{fail: 1}
	w := newTestWatcher(t, src, d, Config{Centers: []string{"Golden Gate"}})

	stats, err := w.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.New)
	assert.Zero(t, stats.Dispatched)
	assert.Empty(t, d.sent())

	// Not marked seen, so the next cycle sends it.
	stats, err = w.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Dispatched)
	assert.Len(t, d.sent(), 1)
}

func TestRunCycle_MalformedRowSkipped(t *testing.T) {
	src := &fakeSource{listings: map[string]*cad.Listing{
		"Golden Gate": {Center: "Golden Gate", Rows: []cad.Row{
			{Fields: map[string]string{
				model.FieldNumber: "0042",
				model.FieldType:   "Trfc Collision-Unkn Inj",
			}},
			gridRow("0043", "6:50 PM", "Traffic Hazard", "I-80 E / Treasure Island"),
		}},
	}}
	d := &fakeDispatcher{}
	w := newTestWatcher(t, src, d, Config{Centers: []string{"Golden Gate"}})

	stats, err := w.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Malformed)
	assert.Equal(t, 1, stats.Dispatched)
	assert.Len(t, d.sent(), 1)
}

func TestRunCycle_TypeFilter(t *testing.T) {
	filter, err := incident.NewTypeFilter(`Collision`)
	require.NoError(t, err)

	src := &fakeSource{listings: map[string]*cad.Listing{
		"Golden Gate": {Center: "Golden Gate", Rows: []cad.Row{
			gridRow("0042", "6:41 PM", "Trfc Collision-Unkn Inj", "US-101 N / Lombard St"),
			gridRow("0043", "6:50 PM", "Traffic Hazard", "I-80 E / Treasure Island"),
		}},
	}}
	d := &fakeDispatcher{}
	w := newTestWatcher(t, src, d, Config{Centers: []string{"Golden Gate"}, Filter: filter})

	stats, err := w.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Filtered)
	assert.Equal(t, 1, stats.Dispatched)
	require.Len(t, d.sent(), 1)
	assert.Contains(t, d.sent()[0], "US-101 N / Lombard St")
}

func TestRunCycle_CenterFailuresAreIsolated(t *testing.T) {
	src := &fakeSource{
		listings: map[string]*cad.Listing{
			"Golden Gate": {Center: "Golden Gate", Rows: []cad.Row{
				gridRow("0042", "6:41 PM", "Trfc Collision-Unkn Inj", "US-101 N / Lombard St"),
			}},
		},
		errs: map[string]error{"Inland": assert.AnError},
	}
	d := &fakeDispatcher{}
	w := newTestWatcher(t, src, d, Config{Centers: []string{"Inland", "Golden Gate"}})

	stats, err := w.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, stats.CenterErrors)
	assert.Equal(t, 1, stats.Dispatched)
	assert.True(t, w.Ready())
}

func TestRunCycle_AllCentersFailing(t *testing.T) {
	src := &fakeSource{errs: map[string]error{
		"Inland":      assert.AnError,
		"Golden Gate": assert.AnError,
	}}
	w := newTestWatcher(t, src, &fakeDispatcher{}, Config{Centers: []string{"Inland", "Golden Gate"}})

	_, err := w.RunCycle(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "all 2 centers")
	assert.False(t, w.Ready())
}

func TestRunCycle_NoCentersConfigured(t *testing.T) {
	w := newTestWatcher(t, &fakeSource{}, &fakeDispatcher{}, Config{})

	_, err := w.RunCycle(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no centers configured")
}

const detailPanelHTML = `<html><body><table>
<tr><td>Lat/Lon:</td><td><a href="http://maps.google.com/?q=34.0522,-118.2437">34.0522 -118.2437</a></td></tr>
<tr><td>Detail Information</td></tr>
<tr><td>6:41 PM</td><td>12</td><td>[5] VEH BLOCKING #2</td></tr>
<tr><td>Unit Information</td></tr>
</table></body></html>`

func parsePanel(t *testing.T, src string) *cad.Panel {
	t.Helper()
	doc, err := html.Parse(strings.NewReader(src))
	require.NoError(t, err)
	return &cad.Panel{Doc: doc}
}

func TestRunCycle_DetailEnrichment(t *testing.T) {
	row := gridRow("0042", "6:41 PM", "Trfc Collision-Unkn Inj", "US-101 N / Lombard St")
	row.DetailTarget = "gvIncidents$ctl02$ctl00"

	src := &fakeSource{
		listings: map[string]*cad.Listing{
			"Golden Gate": {Center: "Golden Gate", Rows: []cad.Row{row}},
		},
		panels: map[string]*cad.Panel{
			"gvIncidents$ctl02$ctl00": parsePanel(t, detailPanelHTML),
		},
	}
	d := &fakeDispatcher{}
	w := newTestWatcher(t, src, d, Config{Centers: []string{"Golden Gate"}, FetchDetails: true})

	stats, err := w.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Dispatched)

	require.Len(t, d.recs, 1)
	require.True(t, d.recs[0].HasCoordinates())
	assert.InDelta(t, 34.0522, d.recs[0].Coordinates.Lat, 1e-9)

	require.Len(t, d.sent(), 1)
	text := d.sent()[0]
	assert.Contains(t, text,
		"https://www.google.com/maps/dir/?api=1&destination=34.0522,-118.2437&travelmode=driving")
	assert.Contains(t, text, "› 6:41 PM: [5] VEH BLOCKING #2")
}

func TestRunCycle_DetailFailureStillDispatches(t *testing.T) {
	row := gridRow("0042", "6:41 PM", "Trfc Collision-Unkn Inj", "US-101 N / Lombard St")
	row.DetailTarget = "gvIncidents$ctl02$ctl00"

	src := &fakeSource{
		listings: map[string]*cad.Listing{
			"Golden Gate": {Center: "Golden Gate", Rows: []cad.Row{row}},
		},
		detErr: assert.AnError,
	}
	d := &fakeDispatcher{}
	w := newTestWatcher(t, src, d, Config{Centers: []string{"Golden Gate"}, FetchDetails: true})

	stats, err := w.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Dispatched)

	require.Len(t, d.recs, 1)
	assert.False(t, d.recs[0].HasCoordinates())
	assert.NotContains(t, d.sent()[0], "http")
}

func TestRunCycle_DetailSkippedWhenDisabled(t *testing.T) {
	row := gridRow("0042", "6:41 PM", "Trfc Collision-Unkn Inj", "US-101 N / Lombard St")
	row.DetailTarget = "gvIncidents$ctl02$ctl00"

	src := &fakeSource{listings: map[string]*cad.Listing{
		"Golden Gate": {Center: "Golden Gate", Rows: []cad.Row{row}},
	}}
	w := newTestWatcher(t, src, &fakeDispatcher{}, Config{Centers: []string{"Golden Gate"}})

	_, err := w.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Zero(t, src.detailed)
}

func TestRecent_NewestFirstAndCapped(t *testing.T) {
	src := &fakeSource{listings: map[string]*cad.Listing{
		"Golden Gate": {Center: "Golden Gate", Rows: []cad.Row{
			gridRow("0041", "6:40 PM", "Traffic Hazard", "Loc A"),
			gridRow("0042", "6:41 PM", "Traffic Hazard", "Loc B"),
			gridRow("0043", "6:42 PM", "Traffic Hazard", "Loc C"),
		}},
	}}
	w := newTestWatcher(t, src, &fakeDispatcher{}, Config{Centers: []string{"Golden Gate"}, Recent: 2})

	_, err := w.RunCycle(context.Background())
	require.NoError(t, err)

	recent := w.Recent()
	require.Len(t, recent, 2)
	assert.Equal(t, "Loc C", recent[0].Record.Location)
	assert.Equal(t, "Loc B", recent[1].Record.Location)
}

func TestStatus(t *testing.T) {
	src := &fakeSource{listings: map[string]*cad.Listing{
		"Golden Gate": {Center: "Golden Gate", Rows: []cad.Row{
			gridRow("0042", "6:41 PM", "Trfc Collision-Unkn Inj", "US-101 N / Lombard St"),
		}},
	}}
	w := newTestWatcher(t, src, &fakeDispatcher{}, Config{Centers: []string{"Golden Gate"}})

	status := w.Status(context.Background())
	assert.False(t, status.Ready)
	assert.Zero(t, status.SeenCount)

	_, err := w.RunCycle(context.Background())
	require.NoError(t, err)

	status = w.Status(context.Background())
	assert.True(t, status.Ready)
	assert.Equal(t, 1, status.SeenCount)
	assert.Equal(t, 1, status.LastCycle.Dispatched)
	assert.Equal(t, []string{"Golden Gate"}, status.Centers)
}
