// Package interstitial implements the lifecycle of one interstitial ad unit:
// eligibility, fetch, readiness, display and consumption.
package interstitial

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync/atomic"
	"time"
	"weak"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/AlexKimmel/adgate/internal/decision"
	"github.com/AlexKimmel/adgate/internal/freqcap"
	"github.com/AlexKimmel/adgate/internal/obs"
	"github.com/AlexKimmel/adgate/internal/sdk"
)

// DefaultMinVisible applies when the decision carries no session gate.
const DefaultMinVisible = 20 * time.Second

type State int32

const (
	StateIdle State = iota
	StateLoading
	StateReady
	StatePresenting
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StatePresenting:
		return "presenting"
	default:
		return "unknown"
	}
}

type Fetcher interface {
	Fetch(ctx context.Context, partnerID, appID, placementID string) (*decision.FillDecision, error)
}

type Reporter interface {
	Report(requestID, trackURL string, visibleSeconds int)
}

// Dispatcher is the owner loop; see mainloop.Loop.
type Dispatcher interface {
	Post(fn func()) bool
}

type Config struct {
	PlacementID string
	Identity    *sdk.Identity
	Store       *freqcap.Store
	Gate        *freqcap.Gate
	Fetcher     Fetcher
	Reporter    Reporter
	Surface     Surface
	Loop        Dispatcher
	Listener    Listener

	// Clock defaults to time.Now.
	Clock             func() time.Time
	DefaultMinVisible time.Duration
	Logger            zerolog.Logger
	Metrics           *obs.Metrics
}

// Ad is one interstitial placement. All state lives on the owner loop;
// public methods post to it and return immediately. Outcomes arrive through
// the Listener.
type Ad struct {
	placementID       string
	identity          *sdk.Identity
	store             *freqcap.Store
	gate              *freqcap.Gate
	fetcher           Fetcher
	reporter          Reporter
	surface           Surface
	loop              Dispatcher
	clock             func() time.Time
	defaultMinVisible time.Duration
	log               zerolog.Logger
	metrics           *obs.Metrics

	snapshot atomic.Int32

	// owned by the loop
	state       State
	listener    Listener
	decision    *decision.FillDecision
	session     *Session
	cancelFetch context.CancelFunc
	destroyed   bool
}

func New(cfg Config) (*Ad, error) {
	switch {
	case cfg.PlacementID == "":
		return nil, errors.New("interstitial: placement id is required")
	case cfg.Identity == nil, cfg.Store == nil, cfg.Gate == nil:
		return nil, errors.New("interstitial: identity, store and gate are required")
	case cfg.Fetcher == nil, cfg.Reporter == nil, cfg.Surface == nil, cfg.Loop == nil:
		return nil, errors.New("interstitial: fetcher, reporter, surface and loop are required")
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.DefaultMinVisible <= 0 {
		cfg.DefaultMinVisible = DefaultMinVisible
	}

	return &Ad{
		placementID:       cfg.PlacementID,
		identity:          cfg.Identity,
		store:             cfg.Store,
		gate:              cfg.Gate,
		fetcher:           cfg.Fetcher,
		reporter:          cfg.Reporter,
		surface:           cfg.Surface,
		loop:              cfg.Loop,
		clock:             cfg.Clock,
		defaultMinVisible: cfg.DefaultMinVisible,
		log:               obs.Component(cfg.Logger, "interstitial").With().Str("placement", cfg.PlacementID).Logger(),
		metrics:           cfg.Metrics,
		listener:          cfg.Listener,
	}, nil
}

func (a *Ad) PlacementID() string { return a.placementID }

// State is a snapshot; it may lag a transition that is still being posted.
func (a *Ad) State() State { return State(a.snapshot.Load()) }

func (a *Ad) IsReady() bool { return a.State() == StateReady }

func (a *Ad) SetListener(l Listener) {
	a.loop.Post(func() {
		if !a.destroyed {
			a.listener = l
		}
	})
}

// Load starts a new fill request if the unit is idle and eligible.
func (a *Ad) Load() {
	a.loop.Post(a.load)
}

// Show hands a loaded ad to the surface.
func (a *Ad) Show() {
	a.loop.Post(a.show)
}

// Destroy detaches the unit. A fetch or surface callback that completes
// afterwards is dropped.
func (a *Ad) Destroy() {
	a.loop.Post(func() {
		if a.destroyed {
			return
		}
		a.destroyed = true
		if a.cancelFetch != nil {
			a.cancelFetch()
			a.cancelFetch = nil
		}
		a.decision = nil
		a.session = nil
		a.listener = nil
		a.setState(StateIdle)
		a.log.Debug().Msg("destroyed")
	})
}

func (a *Ad) load() {
	if a.destroyed {
		return
	}
	switch a.state {
	case StateLoading:
		a.log.Debug().Msg("load already in flight")
		return
	case StatePresenting:
		a.log.Warn().Msg("load ignored while presenting")
		return
	case StateReady:
		a.log.Debug().Msg("already loaded")
		a.emit(Event{Kind: EventLoaded})
		return
	}

	partnerID, appID, ok := a.identity.Credentials()
	if !ok {
		a.log.Error().Msg("sdk not initialized, configure the identity first")
		a.failLoad(ErrNotInitialized)
		return
	}

	if dec := a.gate.Check(a.clock()); !dec.Allowed {
		a.failLoad(fmt.Errorf("%w: %s needs %s, %s passed",
			ErrFrequencyCapped, dec.Source, dec.Cooldown, dec.Elapsed.Truncate(time.Second)))
		return
	}

	a.setState(StateLoading)
	ctx, cancel := context.WithCancel(context.Background())
	a.cancelFetch = cancel

	// the fetch goroutine must not keep the Ad alive
	self := weak.Make(a)
	fetcher, loop, placementID := a.fetcher, a.loop, a.placementID
	go func() {
		d, err := fetcher.Fetch(ctx, partnerID, appID, placementID)
		cancel()
		loop.Post(func() {
			ad := self.Value()
			if ad == nil || ad.destroyed {
				return
			}
			ad.finishLoad(d, err)
		})
	}()
}

func (a *Ad) finishLoad(d *decision.FillDecision, err error) {
	a.cancelFetch = nil
	if a.state != StateLoading {
		return
	}
	if err == nil && d == nil {
		err = decision.ErrNoData
	}
	if err != nil {
		a.setState(StateIdle)
		a.failLoad(err)
		return
	}

	// restrictions apply whether or not the server filled
	a.store.ApplyServerRestrictions(d.CooldownSec, d.TTL, a.clock())

	if !d.Allowed() {
		a.setState(StateIdle)
		a.failLoad(ErrNoFill)
		return
	}

	a.decision = d
	a.setState(StateReady)
	a.log.Info().Msg("interstitial loaded")
	a.metrics.ObserveLoad(a.placementID, "loaded")
	a.emit(Event{Kind: EventLoaded})
}

func (a *Ad) failLoad(err error) {
	reason := ReasonOf(err)
	a.log.Info().Err(err).Str("reason", string(reason)).Msg("load failed")
	a.metrics.ObserveLoad(a.placementID, string(reason))
	a.emit(Event{Kind: EventLoadFailed, Err: err, Reason: reason})
}

func (a *Ad) show() {
	if a.destroyed {
		return
	}
	if a.state != StateReady {
		a.failShow(ErrAdNotReady)
		return
	}

	// a bad URL leaves the unit Ready; callers must load again to recover
	raw := a.decision.AdURL()
	if raw == "" {
		a.failShow(ErrMissingAdURL)
		return
	}
	u, err := parseAdURL(raw)
	if err != nil {
		a.failShow(fmt.Errorf("%w: %q", ErrInvalidAdURL, raw))
		return
	}

	s := &Session{
		ID:         uuid.NewString(),
		URL:        u,
		MinVisible: a.decision.MinVisible(a.defaultMinVisible),
		ad:         weak.Make(a),
		loop:       a.loop,
	}
	a.session = s
	a.setState(StatePresenting)
	a.log.Info().Str("session", s.ID).Str("url", u.String()).Dur("min_visible", s.MinVisible).Msg("presenting")
	a.surface.Present(s)
}

func (a *Ad) failShow(err error) {
	reason := ReasonOf(err)
	a.log.Warn().Err(err).Str("reason", string(reason)).Msg("show failed")
	a.emit(Event{Kind: EventShowFailed, Err: err, Reason: reason})
}

// painted starts the frequency-cap clock. An ad that never renders does not
// consume the cap.
func (a *Ad) painted(s *Session) {
	if a.session != s || !s.paintedAt.IsZero() {
		return
	}
	now := a.clock()
	s.paintedAt = now
	a.store.RecordShow(now)
	a.metrics.ObserveDisplay(a.placementID)
	a.emit(Event{Kind: EventDisplayed})
}

func (a *Ad) dismissed(s *Session) {
	if a.session != s {
		return
	}

	var visible time.Duration
	if !s.paintedAt.IsZero() {
		visible = a.clock().Sub(s.paintedAt)
		a.log.Info().Str("session", s.ID).Int("visible_sec", int(visible.Seconds())).Msg("ad dismissed")
		if requestID, ok := a.decision.RequestIDValue(); ok {
			a.reporter.Report(requestID, a.decision.TrackURLValue(), int(visible.Seconds()))
		}
	} else {
		a.log.Warn().Str("session", s.ID).Msg("dismissed before first paint")
	}

	a.decision = nil
	a.session = nil
	a.setState(StateIdle)
	a.emit(Event{Kind: EventHidden, Visible: visible})
}

func (a *Ad) clicked(s *Session) {
	if a.session != s {
		return
	}
	a.emit(Event{Kind: EventClicked})
}

func (a *Ad) setState(s State) {
	a.state = s
	a.snapshot.Store(int32(s))
}

func (a *Ad) emit(e Event) {
	e.PlacementID = a.placementID
	if a.listener != nil {
		a.listener.OnEvent(e)
	}
}

func parseAdURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("not an absolute http(s) url")
	}
	return u, nil
}
