package freqcap

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/AlexKimmel/adgate/internal/obs"
)

// Gate combines the store's effective cooldown with the last show time.
type Gate struct {
	store   *Store
	log     zerolog.Logger
	metrics *obs.Metrics
}

func NewGate(store *Store, logger zerolog.Logger, metrics *obs.Metrics) *Gate {
	return &Gate{store: store, log: obs.Component(logger, "gate"), metrics: metrics}
}

func (g *Gate) CanLoad(now time.Time) bool {
	return g.Check(now).Allowed
}

// Check denies while less than the effective cooldown has passed since the
// last show. Reaching the cooldown exactly allows.
func (g *Gate) Check(now time.Time) Decision {
	cooldown, src := g.store.Cooldown(now)
	dec := Decision{Allowed: true, Cooldown: cooldown, Source: src}

	last, ok := g.store.LastShow()
	if !ok {
		return dec
	}
	dec.Elapsed = now.Sub(last)
	if dec.Elapsed < cooldown {
		dec.Allowed = false
		g.log.Info().
			Str("source", string(src)).
			Dur("need", cooldown).
			Dur("passed", dec.Elapsed).
			Msg("load blocked")
		g.metrics.ObserveCapped(string(src))
	}
	return dec
}
