package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*ShowLog, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	l, err := Connect(context.Background(), Options{Addr: mr.Addr(), MaxRetries: 1}, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l, mr
}

func TestShowLog_RoundTrip(t *testing.T) {
	l, mr := setupTestRedis(t)
	ctx := context.Background()

	_, ok, err := l.LastShow(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	shown := time.Date(2026, 5, 2, 8, 30, 0, 0, time.UTC)
	require.NoError(t, l.RecordShow(ctx, shown))

	got, ok, err := l.LastShow(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, got.Equal(shown))

	raw, err := mr.Get(DefaultKey)
	require.NoError(t, err)
	assert.Equal(t, "1777710600000", raw)
}

func TestShowLog_CorruptValue(t *testing.T) {
	l, mr := setupTestRedis(t)
	require.NoError(t, mr.Set(DefaultKey, "yesterday"))

	_, _, err := l.LastShow(context.Background())
	assert.Error(t, err)
}

func TestConnect_Unreachable(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	addr := mr.Addr()
	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err = Connect(ctx, Options{Addr: addr, MaxRetries: 1}, zerolog.Nop())
	assert.Error(t, err)
}
