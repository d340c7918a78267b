package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShowLog(t *testing.T) {
	ctx := context.Background()
	l := New()

	_, ok, err := l.LastShow(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	at := time.Date(2026, 5, 2, 8, 30, 0, 0, time.UTC)
	require.NoError(t, l.RecordShow(ctx, at))

	got, ok, err := l.LastShow(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, at, got)
}

func TestNewAt(t *testing.T) {
	at := time.Date(2026, 5, 2, 8, 30, 0, 0, time.UTC)
	got, ok, err := NewAt(at).LastShow(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, at, got)
}
