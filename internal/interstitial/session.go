package interstitial

import (
	"net/url"
	"sync"
	"time"
	"weak"
)

// Surface presents an ad fullscreen. Present is called on the owner loop and
// must return quickly; the surface then calls Painted and Dismissed on the
// session exactly once each, in that order, from any goroutine.
type Surface interface {
	Present(s *Session)
}

// Session is one display of one ad.
type Session struct {
	ID         string
	URL        *url.URL
	MinVisible time.Duration

	ad   weak.Pointer[Ad]
	loop Dispatcher

	paintOnce   sync.Once
	dismissOnce sync.Once

	// owned by the loop
	paintedAt time.Time
}

// Painted reports the first paint of the ad content.
func (s *Session) Painted() {
	s.paintOnce.Do(func() {
		s.post(func(a *Ad) { a.painted(s) })
	})
}

// Dismissed reports that the surface closed.
func (s *Session) Dismissed() {
	s.dismissOnce.Do(func() {
		s.post(func(a *Ad) { a.dismissed(s) })
	})
}

// Clicked reports a tap on the ad content.
func (s *Session) Clicked() {
	s.post(func(a *Ad) { a.clicked(s) })
}

func (s *Session) post(fn func(a *Ad)) {
	ref := s.ad
	s.loop.Post(func() {
		a := ref.Value()
		if a == nil || a.destroyed {
			return
		}
		fn(a)
	})
}
