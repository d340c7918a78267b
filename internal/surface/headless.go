// Package surface provides presentation surfaces for environments without a
// screen.
package surface

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/AlexKimmel/adgate/internal/interstitial"
	"github.com/AlexKimmel/adgate/internal/obs"
)

// Headless "shows" an ad by painting immediately and dismissing after a
// fixed dwell. With no dwell it stays for the session's minimum visible time.
type Headless struct {
	dwell time.Duration
	log   zerolog.Logger

	wg       sync.WaitGroup
	quit     chan struct{}
	quitOnce sync.Once
}

func NewHeadless(dwell time.Duration, logger zerolog.Logger) *Headless {
	return &Headless{
		dwell: dwell,
		log:   obs.Component(logger, "surface"),
		quit:  make(chan struct{}),
	}
}

func (h *Headless) Present(s *interstitial.Session) {
	dwell := h.dwell
	if dwell <= 0 {
		dwell = s.MinVisible
	}

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		h.log.Info().Str("session", s.ID).Str("url", s.URL.String()).Dur("dwell", dwell).Msg("presenting")
		s.Painted()

		t := time.NewTimer(dwell)
		defer t.Stop()
		select {
		case <-t.C:
		case <-h.quit:
			h.log.Debug().Str("session", s.ID).Msg("closed early")
		}
		s.Dismissed()
	}()
}

// Close dismisses every open session and waits for them.
func (h *Headless) Close() {
	h.quitOnce.Do(func() { close(h.quit) })
	h.wg.Wait()
}
