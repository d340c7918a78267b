package freqcap_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AlexKimmel/adgate/internal/freqcap"
	"github.com/AlexKimmel/adgate/internal/freqcap/memory"
)

var t0 = time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC)

func intp(v int) *int { return &v }

func newStore(t *testing.T, log freqcap.ShowLog) *freqcap.Store {
	t.Helper()
	s, err := freqcap.NewStore(context.Background(), log, freqcap.Options{Logger: zerolog.Nop()})
	require.NoError(t, err)
	return s
}

func TestNewStore_RestoresLastShow(t *testing.T) {
	s := newStore(t, memory.NewAt(t0))

	last, ok := s.LastShow()
	require.True(t, ok)
	assert.True(t, last.Equal(t0))
	assert.Equal(t, freqcap.DefaultLocalCap, s.LocalCap())
}

type failingLog struct{}

func (failingLog) LastShow(context.Context) (time.Time, bool, error) {
	return time.Time{}, false, errors.New("disk gone")
}

func (failingLog) RecordShow(context.Context, time.Time) error { return errors.New("disk gone") }

func (failingLog) Close() error { return nil }

func TestNewStore_ReadError(t *testing.T) {
	_, err := freqcap.NewStore(context.Background(), failingLog{}, freqcap.Options{Logger: zerolog.Nop()})
	assert.Error(t, err)
}

func TestRecordShow_Persists(t *testing.T) {
	log := memory.New()
	s := newStore(t, log)

	s.RecordShow(t0)

	got, ok, err := log.LastShow(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, got.Equal(t0))
}

func TestEffectiveCooldown(t *testing.T) {
	tests := []struct {
		name     string
		cooldown *int
		ttl      *int
		at       time.Duration
		expected time.Duration
	}{
		{name: "no restrictions uses local cap", at: 0, expected: 90 * time.Second},
		{name: "server cooldown within ttl", cooldown: intp(30), ttl: intp(600), at: 600 * time.Second, expected: 30 * time.Second},
		{name: "server cooldown after ttl", cooldown: intp(30), ttl: intp(600), at: 601 * time.Second, expected: 90 * time.Second},
		{name: "absent cooldown falls back to local cap", ttl: intp(600), at: time.Second, expected: 90 * time.Second},
		{name: "zero ttl never expires", cooldown: intp(10), ttl: intp(0), at: 48 * time.Hour, expected: 10 * time.Second},
		{name: "absent ttl never expires", cooldown: intp(10), at: 48 * time.Hour, expected: 10 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStore(t, memory.New())
			if tt.cooldown != nil || tt.ttl != nil {
				s.ApplyServerRestrictions(tt.cooldown, tt.ttl, t0)
			}
			assert.Equal(t, tt.expected, s.EffectiveCooldown(t0.Add(tt.at)))
		})
	}
}

func TestTTLExpiry_ClearsRestrictions(t *testing.T) {
	s := newStore(t, memory.New())
	s.ApplyServerRestrictions(intp(30), intp(600), t0)

	assert.False(t, s.IsTTLExpired(t0.Add(600*time.Second)))
	assert.True(t, s.IsTTLExpired(t0.Add(601*time.Second)))
	// already cleared, so it cannot expire twice
	assert.False(t, s.IsTTLExpired(t0.Add(602*time.Second)))

	// reverted for good, even at a time that would be inside the old TTL
	assert.Equal(t, 90*time.Second, s.EffectiveCooldown(t0.Add(10*time.Second)))
}

func TestEffectiveCooldown_RevertsAfterTTL(t *testing.T) {
	s := newStore(t, memory.New())
	s.ApplyServerRestrictions(intp(30), intp(600), t0)

	assert.Equal(t, 90*time.Second, s.EffectiveCooldown(t0.Add(601*time.Second)))
	assert.Equal(t, 90*time.Second, s.EffectiveCooldown(t0.Add(602*time.Second)))
}

func TestApplyServerRestrictions_ClearsAbsentValues(t *testing.T) {
	s := newStore(t, memory.New())
	s.ApplyServerRestrictions(intp(30), intp(600), t0)
	s.ApplyServerRestrictions(nil, intp(5), t0.Add(time.Second))

	d, src := s.Cooldown(t0.Add(2 * time.Second))
	assert.Equal(t, 90*time.Second, d)
	assert.Equal(t, freqcap.SourceLocal, src)

	s.ApplyServerRestrictions(intp(45), nil, t0.Add(3*time.Second))
	d, src = s.Cooldown(t0.Add(24 * time.Hour))
	assert.Equal(t, 45*time.Second, d)
	assert.Equal(t, freqcap.SourceServer, src)
}
