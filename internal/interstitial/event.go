package interstitial

import "time"

type EventKind int

const (
	EventLoaded EventKind = iota
	EventLoadFailed
	EventShowFailed
	EventDisplayed
	EventHidden
	EventClicked
)

func (k EventKind) String() string {
	switch k {
	case EventLoaded:
		return "loaded"
	case EventLoadFailed:
		return "load_failed"
	case EventShowFailed:
		return "show_failed"
	case EventDisplayed:
		return "displayed"
	case EventHidden:
		return "hidden"
	case EventClicked:
		return "clicked"
	default:
		return "unknown"
	}
}

type Event struct {
	Kind        EventKind
	PlacementID string
	// Err and Reason are set for EventLoadFailed and EventShowFailed.
	Err    error
	Reason Reason
	// Visible is how long the ad was on screen, set for EventHidden.
	Visible time.Duration
}

// Listener receives events on the owner loop. Implementations must not
// block; they may call back into the Ad.
type Listener interface {
	OnEvent(Event)
}

type ListenerFunc func(Event)

func (f ListenerFunc) OnEvent(e Event) { f(e) }
