// Package mediation adapts interstitial ads to a host mediation SDK that
// drives third-party networks through a load/show delegate contract.
package mediation

import (
	"errors"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/AlexKimmel/adgate/internal/interstitial"
	"github.com/AlexKimmel/adgate/internal/obs"
	"github.com/AlexKimmel/adgate/internal/sdk"
)

const (
	SDKVersion     = "1.0.0"
	AdapterVersion = "1.0.0.0"

	DefaultPartnerID = "test_partner"
	DefaultAppID     = "test_app"
)

// HostError is the small error vocabulary the host SDK understands.
type HostError int

const (
	HostUnspecified HostError = iota
	HostNotInitialized
	HostNoFill
	HostAdNotReady
)

func (e HostError) String() string {
	switch e {
	case HostNotInitialized:
		return "not_initialized"
	case HostNoFill:
		return "no_fill"
	case HostAdNotReady:
		return "ad_not_ready"
	default:
		return "unspecified"
	}
}

func (e HostError) Error() string { return "host: " + e.String() }

// MapError translates an ad failure for the host. A frequency-capped load is
// reported as no fill so the host's waterfall moves on.
func MapError(err error) HostError {
	switch {
	case errors.Is(err, interstitial.ErrNotInitialized):
		return HostNotInitialized
	case errors.Is(err, interstitial.ErrNoFill), errors.Is(err, interstitial.ErrFrequencyCapped):
		return HostNoFill
	case errors.Is(err, interstitial.ErrAdNotReady):
		return HostAdNotReady
	default:
		return HostUnspecified
	}
}

// HostDelegate receives lifecycle callbacks on the owner loop.
type HostDelegate interface {
	DidLoad()
	DidFailToLoad(HostError)
	DidDisplay()
	DidFailToDisplay(HostError)
	DidHide()
	DidClick()
}

// Deps are the collaborators every ad created by the adapter shares.
// PlacementID, Listener and Identity in Ad are filled in by the adapter.
type Deps struct {
	Identity *sdk.Identity
	Ad       interstitial.Config
	Logger   zerolog.Logger
}

type Adapter struct {
	identity *sdk.Identity
	base     interstitial.Config
	log      zerolog.Logger

	mu sync.Mutex
	ad *interstitial.Ad
}

func New(deps Deps) (*Adapter, error) {
	if deps.Identity == nil {
		return nil, errors.New("mediation: identity is required")
	}
	return &Adapter{
		identity: deps.Identity,
		base:     deps.Ad,
		log:      obs.Component(deps.Logger, "mediation"),
	}, nil
}

// Initialize configures the SDK identity from the host's server parameters.
func (a *Adapter) Initialize(params map[string]string) error {
	partnerID := param(params, "partner_id", DefaultPartnerID)
	appID := param(params, "app_id", DefaultAppID)
	if err := a.identity.Configure(partnerID, appID); err != nil {
		return err
	}
	a.log.Info().Str("partner_id", partnerID).Str("app_id", appID).Msg("adapter initialized")
	return nil
}

// LoadAd replaces any previous ad with a fresh one for placementID and
// starts loading it.
func (a *Adapter) LoadAd(placementID string, d HostDelegate) error {
	cfg := a.base
	cfg.PlacementID = placementID
	cfg.Identity = a.identity
	cfg.Listener = &bridge{delegate: d, log: a.log}

	ad, err := interstitial.New(cfg)
	if err != nil {
		return err
	}

	a.mu.Lock()
	prev := a.ad
	a.ad = ad
	a.mu.Unlock()

	if prev != nil {
		prev.Destroy()
	}
	a.log.Debug().Str("placement", placementID).Msg("load requested")
	ad.Load()
	return nil
}

// ShowAd presents the loaded ad. Without one the host is told right away.
func (a *Adapter) ShowAd(d HostDelegate) {
	a.mu.Lock()
	ad := a.ad
	a.mu.Unlock()

	if ad == nil || !ad.IsReady() {
		a.log.Warn().Msg("show requested without a ready ad")
		d.DidFailToDisplay(HostAdNotReady)
		return
	}
	ad.SetListener(&bridge{delegate: d, log: a.log})
	ad.Show()
}

func (a *Adapter) Destroy() {
	a.mu.Lock()
	ad := a.ad
	a.ad = nil
	a.mu.Unlock()

	if ad != nil {
		ad.Destroy()
	}
}

func param(params map[string]string, key, fallback string) string {
	if v := strings.TrimSpace(params[key]); v != "" {
		return v
	}
	return fallback
}

type bridge struct {
	delegate HostDelegate
	log      zerolog.Logger
}

func (b *bridge) OnEvent(e interstitial.Event) {
	b.log.Debug().Str("placement", e.PlacementID).Stringer("event", e.Kind).Msg("forwarding to host")
	switch e.Kind {
	case interstitial.EventLoaded:
		b.delegate.DidLoad()
	case interstitial.EventLoadFailed:
		b.delegate.DidFailToLoad(MapError(e.Err))
	case interstitial.EventShowFailed:
		b.delegate.DidFailToDisplay(MapError(e.Err))
	case interstitial.EventDisplayed:
		b.delegate.DidDisplay()
	case interstitial.EventHidden:
		b.delegate.DidHide()
	case interstitial.EventClicked:
		b.delegate.DidClick()
	}
}
