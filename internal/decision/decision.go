// Package decision fetches fill decisions from the remote ad-decision
// endpoint.
package decision

import (
	"errors"
	"time"
)

var (
	// ErrNoData indicates the endpoint answered with an empty body.
	ErrNoData = errors.New("empty fill decision response")

	// ErrDecoding indicates the response body was not a fill decision.
	ErrDecoding = errors.New("undecodable fill decision response")
)

// FillDecision is one answer of the ad-decision endpoint. Every field is
// optional on the wire.
type FillDecision struct {
	RequestID   *string `json:"request_id"`
	FinalURL    *string `json:"final_url"`
	TTL         *int    `json:"ttl"`
	Allow       *bool   `json:"allow"`
	CooldownSec *int    `json:"cooldown_sec"`
	SessionGate *int    `json:"session_gate"`
	Fallback    *bool   `json:"fallback"`
	TrackURL    *string `json:"track_url"`
}

// Allowed treats an absent verdict as no fill.
func (d *FillDecision) Allowed() bool {
	return d != nil && d.Allow != nil && *d.Allow
}

// AdURL returns the final URL, or "" when absent.
func (d *FillDecision) AdURL() string {
	if d == nil || d.FinalURL == nil {
		return ""
	}
	return *d.FinalURL
}

func (d *FillDecision) RequestIDValue() (string, bool) {
	if d == nil || d.RequestID == nil {
		return "", false
	}
	return *d.RequestID, true
}

func (d *FillDecision) TrackURLValue() string {
	if d == nil || d.TrackURL == nil {
		return ""
	}
	return *d.TrackURL
}

// MinVisible is the on-screen time before a close control may appear.
func (d *FillDecision) MinVisible(fallback time.Duration) time.Duration {
	if d == nil || d.SessionGate == nil {
		return fallback
	}
	return time.Duration(*d.SessionGate) * time.Second
}
