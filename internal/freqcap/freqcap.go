// Package freqcap holds the frequency-cap state of the process and the gate
// that decides whether a new interstitial load may start.
package freqcap

import (
	"context"
	"time"
)

// DefaultLocalCap applies whenever no server cooldown is active.
const DefaultLocalCap = 90 * time.Second

// ShowLog persists the last time an ad reached the screen.
type ShowLog interface {
	// LastShow reports ok=false when nothing was ever recorded.
	LastShow(ctx context.Context) (t time.Time, ok bool, err error)
	RecordShow(ctx context.Context, t time.Time) error
	Close() error
}

// Source names the rule that produced a cooldown.
type Source string

const (
	SourceLocal  Source = "local_cap"
	SourceServer Source = "server_cooldown"
)

type Decision struct {
	Allowed  bool
	Cooldown time.Duration // effective cooldown at decision time
	Elapsed  time.Duration // time since last show, zero when never shown
	Source   Source
}
