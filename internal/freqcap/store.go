package freqcap

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/AlexKimmel/adgate/internal/obs"
)

const persistTimeout = 2 * time.Second

type serverRestrictions struct {
	cooldown *time.Duration
	ttl      *time.Duration
	setAt    time.Time
}

// Store is the single source of truth for frequency-cap state. It is not
// safe for concurrent use: callers serialize access on their owner loop.
type Store struct {
	showLog  ShowLog
	localCap time.Duration
	log      zerolog.Logger
	metrics  *obs.Metrics

	lastShow    time.Time
	hasLastShow bool

	// nil when no server restrictions are active
	server *serverRestrictions
}

type Options struct {
	LocalCap time.Duration
	Logger   zerolog.Logger
	Metrics  *obs.Metrics
}

// NewStore reads the persisted last-show time once; later reads are served
// from memory.
func NewStore(ctx context.Context, showLog ShowLog, opts Options) (*Store, error) {
	if opts.LocalCap <= 0 {
		opts.LocalCap = DefaultLocalCap
	}
	s := &Store{
		showLog:  showLog,
		localCap: opts.LocalCap,
		log:      obs.Component(opts.Logger, "freqcap"),
		metrics:  opts.Metrics,
	}

	t, ok, err := showLog.LastShow(ctx)
	if err != nil {
		return nil, fmt.Errorf("read last show: %w", err)
	}
	s.lastShow, s.hasLastShow = t, ok
	if ok {
		s.log.Debug().Time("last_show", t).Msg("restored last show time")
	}
	return s, nil
}

func (s *Store) LocalCap() time.Duration { return s.localCap }

func (s *Store) LastShow() (time.Time, bool) { return s.lastShow, s.hasLastShow }

// RecordShow starts the frequency-cap clock at now. A failed write keeps the
// in-memory value and is only logged.
func (s *Store) RecordShow(now time.Time) {
	s.lastShow, s.hasLastShow = now, true

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := s.showLog.RecordShow(ctx, now); err != nil {
		s.log.Error().Err(err).Msg("persist last show time")
	}
}

// ApplyServerRestrictions replaces any active restrictions. An absent value
// clears the stored one; the timestamp is stamped either way.
func (s *Store) ApplyServerRestrictions(cooldownSec, ttlSec *int, now time.Time) {
	s.server = &serverRestrictions{
		cooldown: seconds(cooldownSec),
		ttl:      seconds(ttlSec),
		setAt:    now,
	}

	ev := s.log.Debug()
	if cooldownSec != nil {
		ev = ev.Int("cooldown_sec", *cooldownSec)
	}
	if ttlSec != nil {
		ev = ev.Int("ttl_sec", *ttlSec)
	}
	ev.Msg("server restrictions applied")
}

// IsTTLExpired reports whether the server restrictions outlived their TTL.
// When it returns true the restrictions have been cleared: this call is a
// state transition, not a pure read.
func (s *Store) IsTTLExpired(now time.Time) bool {
	r := s.server
	if r == nil || r.ttl == nil || *r.ttl <= 0 {
		return false
	}
	if now.Sub(r.setAt) <= *r.ttl {
		return false
	}

	s.log.Info().Dur("ttl", *r.ttl).Msg("server restrictions expired")
	s.server = nil
	s.metrics.ObserveExpired()
	return true
}

// EffectiveCooldown is the server cooldown while one is active, otherwise the
// local cap. It may clear expired restrictions.
func (s *Store) EffectiveCooldown(now time.Time) time.Duration {
	d, _ := s.Cooldown(now)
	return d
}

// Cooldown is EffectiveCooldown plus the rule that produced it.
func (s *Store) Cooldown(now time.Time) (time.Duration, Source) {
	if s.IsTTLExpired(now) {
		return s.localCap, SourceLocal
	}
	if s.server != nil && s.server.cooldown != nil {
		return *s.server.cooldown, SourceServer
	}
	return s.localCap, SourceLocal
}

func seconds(v *int) *time.Duration {
	if v == nil {
		return nil
	}
	d := time.Duration(*v) * time.Second
	return &d
}
