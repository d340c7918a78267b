package main

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/AlexKimmel/adgate/internal/config"
	"github.com/AlexKimmel/adgate/internal/mediation"
)

// hostDelegate plays the host mediation SDK: it turns callbacks into
// messages the demo loop can wait on.
type hostDelegate struct {
	log    zerolog.Logger
	events chan string
}

func (d *hostDelegate) DidLoad()    { d.send("loaded") }
func (d *hostDelegate) DidDisplay() { d.send("displayed") }
func (d *hostDelegate) DidHide()    { d.send("hidden") }
func (d *hostDelegate) DidClick()   { d.send("clicked") }

func (d *hostDelegate) DidFailToLoad(e mediation.HostError) {
	d.log.Warn().Stringer("error", e).Msg("host: load failed")
	d.send("load_failed")
}

func (d *hostDelegate) DidFailToDisplay(e mediation.HostError) {
	d.log.Warn().Stringer("error", e).Msg("host: display failed")
	d.send("display_failed")
}

// send never blocks the owner loop.
func (d *hostDelegate) send(ev string) {
	select {
	case d.events <- ev:
	default:
		d.log.Warn().Str("event", ev).Msg("host event dropped")
	}
}

func (d *hostDelegate) wait(ctx context.Context, want ...string) (string, bool) {
	for {
		select {
		case <-ctx.Done():
			return "", false
		case ev := <-d.events:
			for _, w := range want {
				if ev == w {
					return ev, true
				}
			}
		}
	}
}

// runDemo drives cfg.Rounds load and show cycles through the adapter.
func runDemo(ctx context.Context, adapter *mediation.Adapter, cfg config.Demo, logger zerolog.Logger) {
	d := &hostDelegate{log: logger.With().Str("component", "demo").Logger(), events: make(chan string, 16)}

	for round := 1; round <= cfg.Rounds; round++ {
		rlog := d.log.With().Int("round", round).Logger()

		if err := adapter.LoadAd(cfg.Placement, d); err != nil {
			rlog.Error().Err(err).Msg("load request rejected")
			return
		}
		ev, ok := d.wait(ctx, "loaded", "load_failed")
		if !ok {
			return
		}
		if ev == "loaded" {
			adapter.ShowAd(d)
			if ev, ok = d.wait(ctx, "hidden", "display_failed"); !ok {
				return
			}
		}
		rlog.Info().Str("outcome", ev).Msg("round finished")

		if round == cfg.Rounds {
			return
		}
		t := time.NewTimer(cfg.Interval())
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}
}
