// Package impression sends the best-effort viewability beacon after an
// interstitial is dismissed.
package impression

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/AlexKimmel/adgate/internal/obs"
	"github.com/AlexKimmel/adgate/internal/transport"
)

const beaconTimeout = 10 * time.Second

type Config struct {
	// FallbackURL is used when the decision carried no usable track URL.
	FallbackURL string
	Transport   http.RoundTripper
	Logger      zerolog.Logger
	Metrics     *obs.Metrics
}

type Reporter struct {
	fallback string
	http     *http.Client
	log      zerolog.Logger
	metrics  *obs.Metrics
	inflight sync.WaitGroup
}

func New(cfg Config) *Reporter {
	return &Reporter{
		fallback: cfg.FallbackURL,
		http:     transport.NewClient(cfg.Transport, beaconTimeout),
		log:      obs.Component(cfg.Logger, "impression"),
		metrics:  cfg.Metrics,
	}
}

// Report fires one GET in the background and returns immediately. Failures
// are logged and counted, never returned.
func (r *Reporter) Report(requestID, trackURL string, visibleSeconds int) {
	target, ok := BeaconURL(r.fallback, requestID, trackURL, visibleSeconds)
	if !ok {
		r.log.Warn().Str("request_id", requestID).Msg("no usable tracking url, beacon dropped")
		r.metrics.ObserveImpression("dropped")
		return
	}

	r.inflight.Add(1)
	go func() {
		defer r.inflight.Done()
		r.send(target)
	}()
	r.log.Info().Str("url", target).Int("was_visible", visibleSeconds).Msg("impression tracking sent")
}

func (r *Reporter) send(target string) {
	ctx, cancel := context.WithTimeout(context.Background(), beaconTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		r.metrics.ObserveImpression("error")
		return
	}
	resp, err := r.http.Do(req)
	if err != nil {
		r.log.Debug().Err(err).Msg("impression beacon failed")
		r.metrics.ObserveImpression("error")
		return
	}
	_ = resp.Body.Close()
	r.metrics.ObserveImpression("sent")
}

// Wait blocks until every beacon started so far has finished.
func (r *Reporter) Wait() {
	r.inflight.Wait()
}

// BeaconURL builds the beacon target. A parseable absolute trackURL keeps its
// query and gets was_visible replaced or appended; anything else falls back
// to the fixed endpoint with request_id, event=impression and was_visible.
func BeaconURL(fallback, requestID, trackURL string, visibleSeconds int) (string, bool) {
	visible := strconv.Itoa(visibleSeconds)

	if u, ok := absoluteURL(trackURL); ok {
		u.RawQuery = withParam(u.RawQuery, "was_visible", visible)
		return u.String(), true
	}

	u, ok := absoluteURL(fallback)
	if !ok {
		return "", false
	}
	u.RawQuery = strings.Join([]string{
		"request_id=" + url.QueryEscape(requestID),
		"event=impression",
		"was_visible=" + visible,
	}, "&")
	return u.String(), true
}

func absoluteURL(raw string) (*url.URL, bool) {
	if strings.TrimSpace(raw) == "" {
		return nil, false
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, false
	}
	return u, true
}

// withParam drops every existing key from rawQuery, keeping the order of the
// remaining pairs, and appends key=value.
func withParam(rawQuery, key, value string) string {
	var kept []string
	for _, pair := range strings.Split(rawQuery, "&") {
		if pair == "" {
			continue
		}
		name, _, _ := strings.Cut(pair, "=")
		if n, err := url.QueryUnescape(name); err == nil && n == key {
			continue
		}
		kept = append(kept, pair)
	}
	kept = append(kept, url.QueryEscape(key)+"="+url.QueryEscape(value))
	return strings.Join(kept, "&")
}
