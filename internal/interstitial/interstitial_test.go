package interstitial

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AlexKimmel/adgate/internal/decision"
	"github.com/AlexKimmel/adgate/internal/freqcap"
	"github.com/AlexKimmel/adgate/internal/freqcap/memory"
	"github.com/AlexKimmel/adgate/internal/mainloop"
	"github.com/AlexKimmel/adgate/internal/sdk"
)

var t0 = time.Date(2026, 2, 3, 10, 0, 0, 0, time.UTC)

func strp(v string) *string { return &v }
func intp(v int) *int       { return &v }
func boolp(v bool) *bool    { return &v }

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type fetchResult struct {
	d   *decision.FillDecision
	err error
}

type fakeFetcher struct {
	mu      sync.Mutex
	calls   int
	results []fetchResult
	// gate, when set, holds every fetch until a value is sent
	gate chan struct{}
}

func (f *fakeFetcher) Fetch(ctx context.Context, partnerID, appID, placementID string) (*decision.FillDecision, error) {
	f.mu.Lock()
	f.calls++
	var r fetchResult
	if len(f.results) > 0 {
		r = f.results[0]
		if len(f.results) > 1 {
			f.results = f.results[1:]
		}
	}
	gate := f.gate
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}
	return r.d, r.err
}

func (f *fakeFetcher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type report struct {
	requestID string
	trackURL  string
	visible   int
}

type fakeReporter struct {
	mu      sync.Mutex
	reports []report
}

func (r *fakeReporter) Report(requestID, trackURL string, visibleSeconds int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, report{requestID, trackURL, visibleSeconds})
}

func (r *fakeReporter) Reports() []report {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]report(nil), r.reports...)
}

type fakeSurface struct {
	sessions chan *Session
}

func (s *fakeSurface) Present(sess *Session) { s.sessions <- sess }

type harness struct {
	ad       *Ad
	loop     *mainloop.Loop
	identity *sdk.Identity
	store    *freqcap.Store
	clock    *fakeClock
	fetcher  *fakeFetcher
	reporter *fakeReporter
	surface  *fakeSurface
	events   chan Event
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	log := zerolog.Nop()

	store, err := freqcap.NewStore(context.Background(), memory.New(), freqcap.Options{Logger: log})
	require.NoError(t, err)

	loop := mainloop.New()
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = loop.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-loop.Done()
	})

	h := &harness{
		loop:     loop,
		identity: sdk.NewIdentity(),
		store:    store,
		clock:    &fakeClock{now: t0},
		fetcher:  &fakeFetcher{},
		reporter: &fakeReporter{},
		surface:  &fakeSurface{sessions: make(chan *Session, 4)},
		events:   make(chan Event, 16),
	}
	h.ad, err = New(Config{
		PlacementID: "main_menu",
		Identity:    h.identity,
		Store:       store,
		Gate:        freqcap.NewGate(store, log, nil),
		Fetcher:     h.fetcher,
		Reporter:    h.reporter,
		Surface:     h.surface,
		Loop:        loop,
		Listener:    ListenerFunc(func(e Event) { h.events <- e }),
		Clock:       h.clock.Now,
		Logger:      log,
	})
	require.NoError(t, err)
	return h
}

func (h *harness) configure(t *testing.T) {
	t.Helper()
	require.NoError(t, h.identity.Configure("P", "A"))
}

func (h *harness) next(t *testing.T) Event {
	t.Helper()
	select {
	case e := <-h.events:
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func (h *harness) session(t *testing.T) *Session {
	t.Helper()
	select {
	case s := <-h.surface.sessions:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for presentation")
		return nil
	}
}

// sync waits until every task posted so far has run.
func (h *harness) sync(t *testing.T) {
	t.Helper()
	require.NoError(t, h.loop.Call(context.Background(), func() {}))
}

func (h *harness) onLoop(t *testing.T, fn func()) {
	t.Helper()
	require.NoError(t, h.loop.Call(context.Background(), fn))
}

func filled() *decision.FillDecision {
	return &decision.FillDecision{
		RequestID:   strp("r-1"),
		FinalURL:    strp("https://x/ad"),
		Allow:       boolp(true),
		CooldownSec: intp(30),
		TTL:         intp(600),
	}
}

func TestLoad_NotInitialized(t *testing.T) {
	h := newHarness(t)

	h.ad.Load()
	e := h.next(t)

	assert.Equal(t, EventLoadFailed, e.Kind)
	assert.Equal(t, ReasonNotInitialized, e.Reason)
	assert.ErrorIs(t, e.Err, ErrNotInitialized)
	assert.Equal(t, "main_menu", e.PlacementID)
	assert.Equal(t, StateIdle, h.ad.State())
	assert.Equal(t, 0, h.fetcher.Calls())
}

func TestLoad_FrequencyCappedMakesNoRequest(t *testing.T) {
	h := newHarness(t)
	h.configure(t)
	h.onLoop(t, func() { h.store.RecordShow(t0.Add(-10 * time.Second)) })

	h.ad.Load()
	e := h.next(t)

	assert.Equal(t, EventLoadFailed, e.Kind)
	assert.Equal(t, ReasonFrequencyCapped, e.Reason)
	assert.ErrorIs(t, e.Err, ErrFrequencyCapped)
	assert.Equal(t, StateIdle, h.ad.State())
	assert.Equal(t, 0, h.fetcher.Calls())
}

func TestLoad_Filled(t *testing.T) {
	h := newHarness(t)
	h.configure(t)
	h.fetcher.results = []fetchResult{{d: filled()}}

	h.ad.Load()
	e := h.next(t)

	assert.Equal(t, EventLoaded, e.Kind)
	assert.True(t, h.ad.IsReady())
	assert.Equal(t, 1, h.fetcher.Calls())
}

func TestLoad_NoFillStillAppliesRestrictions(t *testing.T) {
	h := newHarness(t)
	h.configure(t)
	h.fetcher.results = []fetchResult{{d: &decision.FillDecision{
		Allow:       boolp(false),
		CooldownSec: intp(300),
		TTL:         intp(600),
	}}}

	h.ad.Load()
	e := h.next(t)

	assert.Equal(t, EventLoadFailed, e.Kind)
	assert.Equal(t, ReasonNoFill, e.Reason)
	assert.ErrorIs(t, e.Err, ErrNoFill)
	assert.Equal(t, StateIdle, h.ad.State())

	h.onLoop(t, func() {
		assert.Equal(t, 300*time.Second, h.store.EffectiveCooldown(t0.Add(time.Minute)))
	})
}

func TestLoad_AbsentAllowIsNoFill(t *testing.T) {
	h := newHarness(t)
	h.configure(t)
	h.fetcher.results = []fetchResult{{d: &decision.FillDecision{FinalURL: strp("https://x/ad")}}}

	h.ad.Load()
	e := h.next(t)

	assert.Equal(t, EventLoadFailed, e.Kind)
	assert.Equal(t, ReasonNoFill, e.Reason)
}

func TestLoad_FetchErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		reason Reason
	}{
		{name: "decoding", err: errors.Join(decision.ErrDecoding, errors.New("bad json")), reason: ReasonDecodingFailure},
		{name: "no data", err: decision.ErrNoData, reason: ReasonTransportFailure},
		{name: "timeout", err: context.DeadlineExceeded, reason: ReasonTransportFailure},
		{name: "network", err: errors.New("dial tcp: connection refused"), reason: ReasonTransportFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.configure(t)
			h.fetcher.results = []fetchResult{{err: tt.err}}

			h.ad.Load()
			e := h.next(t)

			assert.Equal(t, EventLoadFailed, e.Kind)
			assert.Equal(t, tt.reason, e.Reason)
			assert.ErrorIs(t, e.Err, tt.err)
			assert.Equal(t, StateIdle, h.ad.State())
		})
	}
}

func TestLoad_AfterFailureCanRetry(t *testing.T) {
	h := newHarness(t)
	h.configure(t)
	h.fetcher.results = []fetchResult{{err: errors.New("offline")}, {d: filled()}}

	h.ad.Load()
	assert.Equal(t, EventLoadFailed, h.next(t).Kind)

	h.ad.Load()
	assert.Equal(t, EventLoaded, h.next(t).Kind)
	assert.Equal(t, 2, h.fetcher.Calls())
}

func TestLoad_WhileLoadingIsIgnored(t *testing.T) {
	h := newHarness(t)
	h.configure(t)
	h.fetcher.gate = make(chan struct{})
	h.fetcher.results = []fetchResult{{d: filled()}}

	h.ad.Load()
	h.ad.Load()
	h.sync(t)
	assert.Equal(t, StateLoading, h.ad.State())

	close(h.fetcher.gate)
	assert.Equal(t, EventLoaded, h.next(t).Kind)
	h.sync(t)

	assert.Equal(t, 1, h.fetcher.Calls())
	assert.Empty(t, h.events)
}

func TestLoad_WhenReadyReusesDecision(t *testing.T) {
	h := newHarness(t)
	h.configure(t)
	h.fetcher.results = []fetchResult{{d: filled()}}

	h.ad.Load()
	assert.Equal(t, EventLoaded, h.next(t).Kind)

	h.ad.Load()
	assert.Equal(t, EventLoaded, h.next(t).Kind)
	assert.Equal(t, 1, h.fetcher.Calls())
}

func TestShow_BeforeLoad(t *testing.T) {
	h := newHarness(t)
	h.configure(t)

	for i := 0; i < 2; i++ {
		h.ad.Show()
		e := h.next(t)
		assert.Equal(t, EventShowFailed, e.Kind)
		assert.Equal(t, ReasonAdNotReady, e.Reason)
		assert.ErrorIs(t, e.Err, ErrAdNotReady)
		assert.Equal(t, StateIdle, h.ad.State())
	}
	assert.Empty(t, h.surface.sessions)
}

func TestShow_BadURLKeepsReady(t *testing.T) {
	tests := []struct {
		name   string
		url    *string
		reason Reason
	}{
		{name: "absent", url: nil, reason: ReasonMissingAdURL},
		{name: "empty", url: strp(""), reason: ReasonMissingAdURL},
		{name: "relative", url: strp("/ad/1"), reason: ReasonInvalidAdURL},
		{name: "unparseable", url: strp("https://bad host/"), reason: ReasonInvalidAdURL},
		{name: "not http", url: strp("javascript:alert(1)"), reason: ReasonInvalidAdURL},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.configure(t)
			d := filled()
			d.FinalURL = tt.url
			h.fetcher.results = []fetchResult{{d: d}}

			h.ad.Load()
			require.Equal(t, EventLoaded, h.next(t).Kind)

			for i := 0; i < 2; i++ {
				h.ad.Show()
				e := h.next(t)
				assert.Equal(t, EventShowFailed, e.Kind)
				assert.Equal(t, tt.reason, e.Reason)
				assert.Equal(t, StateReady, h.ad.State())
			}
			assert.Empty(t, h.surface.sessions)
		})
	}
}

func TestShow_MinVisible(t *testing.T) {
	tests := []struct {
		name        string
		sessionGate *int
		expected    time.Duration
	}{
		{name: "default", expected: 20 * time.Second},
		{name: "from session gate", sessionGate: intp(7), expected: 7 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.configure(t)
			d := filled()
			d.SessionGate = tt.sessionGate
			h.fetcher.results = []fetchResult{{d: d}}

			h.ad.Load()
			require.Equal(t, EventLoaded, h.next(t).Kind)
			h.ad.Show()

			s := h.session(t)
			assert.Equal(t, "https://x/ad", s.URL.String())
			assert.Equal(t, tt.expected, s.MinVisible)
			assert.NotEmpty(t, s.ID)
			h.sync(t)
			assert.Equal(t, StatePresenting, h.ad.State())
		})
	}
}

func TestPresentation_DismissWithoutPaint(t *testing.T) {
	h := newHarness(t)
	h.configure(t)
	h.fetcher.results = []fetchResult{{d: filled()}}

	h.ad.Load()
	require.Equal(t, EventLoaded, h.next(t).Kind)
	h.ad.Show()
	s := h.session(t)

	s.Dismissed()
	e := h.next(t)
	assert.Equal(t, EventHidden, e.Kind)
	assert.Zero(t, e.Visible)
	assert.Empty(t, h.reporter.Reports())
	assert.Equal(t, StateIdle, h.ad.State())

	h.onLoop(t, func() {
		_, ok := h.store.LastShow()
		assert.False(t, ok, "a render failure must not consume the cap")
	})
}

func TestPresentation_CallbacksFireOnce(t *testing.T) {
	h := newHarness(t)
	h.configure(t)
	h.fetcher.results = []fetchResult{{d: filled()}}

	h.ad.Load()
	require.Equal(t, EventLoaded, h.next(t).Kind)
	h.ad.Show()
	s := h.session(t)

	s.Painted()
	s.Painted()
	assert.Equal(t, EventDisplayed, h.next(t).Kind)
	s.Clicked()
	assert.Equal(t, EventClicked, h.next(t).Kind)

	h.clock.Set(t0.Add(5 * time.Second))
	s.Dismissed()
	s.Dismissed()
	assert.Equal(t, EventHidden, h.next(t).Kind)

	// callbacks from a finished session are stale
	s.Clicked()
	h.sync(t)
	assert.Empty(t, h.events)
	assert.Len(t, h.reporter.Reports(), 1)
}

func TestPresentation_NoRequestIDSuppressesReport(t *testing.T) {
	h := newHarness(t)
	h.configure(t)
	d := filled()
	d.RequestID = nil
	h.fetcher.results = []fetchResult{{d: d}}

	h.ad.Load()
	require.Equal(t, EventLoaded, h.next(t).Kind)
	h.ad.Show()
	s := h.session(t)
	s.Painted()
	require.Equal(t, EventDisplayed, h.next(t).Kind)
	h.clock.Set(t0.Add(3 * time.Second))
	s.Dismissed()
	require.Equal(t, EventHidden, h.next(t).Kind)

	assert.Empty(t, h.reporter.Reports())
}

func TestDestroy_DropsInFlightFetch(t *testing.T) {
	h := newHarness(t)
	h.configure(t)
	h.fetcher.gate = make(chan struct{})
	h.fetcher.results = []fetchResult{{d: filled()}}

	h.ad.Load()
	h.sync(t)
	require.Equal(t, StateLoading, h.ad.State())

	h.ad.Destroy()
	h.sync(t)
	close(h.fetcher.gate)

	assert.Never(t, func() bool { return len(h.events) > 0 }, 200*time.Millisecond, 10*time.Millisecond)
	assert.Equal(t, StateIdle, h.ad.State())

	h.ad.Load()
	h.sync(t)
	assert.Equal(t, 1, h.fetcher.Calls())
}

func TestDestroy_DropsSurfaceCallbacks(t *testing.T) {
	h := newHarness(t)
	h.configure(t)
	h.fetcher.results = []fetchResult{{d: filled()}}

	h.ad.Load()
	require.Equal(t, EventLoaded, h.next(t).Kind)
	h.ad.Show()
	s := h.session(t)

	h.ad.Destroy()
	s.Painted()
	s.Dismissed()
	h.sync(t)

	assert.Empty(t, h.events)
	assert.Empty(t, h.reporter.Reports())
	h.onLoop(t, func() {
		_, ok := h.store.LastShow()
		assert.False(t, ok)
	})
}

func TestListener_MayReenter(t *testing.T) {
	h := newHarness(t)
	h.configure(t)
	h.fetcher.results = []fetchResult{{d: filled()}}

	h.ad.SetListener(ListenerFunc(func(e Event) {
		h.events <- e
		if e.Kind == EventLoaded {
			h.ad.Show()
		}
	}))
	h.ad.Load()

	assert.Equal(t, EventLoaded, h.next(t).Kind)
	s := h.session(t)
	assert.Equal(t, "https://x/ad", s.URL.String())
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
	_, err = New(Config{PlacementID: "p"})
	assert.Error(t, err)
}

func TestLifecycle_ServerCooldownScenario(t *testing.T) {
	h := newHarness(t)
	h.configure(t)
	h.fetcher.results = []fetchResult{{d: filled()}}

	h.ad.Load()
	require.Equal(t, EventLoaded, h.next(t).Kind)
	h.ad.Show()
	s := h.session(t)
	s.Painted()
	require.Equal(t, EventDisplayed, h.next(t).Kind)

	h.clock.Set(t0.Add(12 * time.Second))
	s.Dismissed()
	e := h.next(t)
	require.Equal(t, EventHidden, e.Kind)
	assert.Equal(t, 12*time.Second, e.Visible)
	assert.Equal(t, []report{{requestID: "r-1", trackURL: "", visible: 12}}, h.reporter.Reports())

	h.clock.Set(t0.Add(22 * time.Second))
	h.ad.Load()
	e = h.next(t)
	assert.Equal(t, ReasonFrequencyCapped, e.Reason)
	assert.Equal(t, 1, h.fetcher.Calls())

	h.clock.Set(t0.Add(31 * time.Second))
	h.ad.Load()
	assert.Equal(t, EventLoaded, h.next(t).Kind)
	assert.Equal(t, 2, h.fetcher.Calls())
}
