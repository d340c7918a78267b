package memory

import (
	"context"
	"sync"
	"time"
)

// ShowLog keeps the last show time in process memory only.
type ShowLog struct {
	mu       sync.Mutex
	lastShow time.Time
	ok       bool
}

func New() *ShowLog {
	return &ShowLog{}
}

// NewAt returns a log that already holds t, as if restored from disk.
func NewAt(t time.Time) *ShowLog {
	return &ShowLog{lastShow: t, ok: true}
}

func (l *ShowLog) Close() error { return nil }

func (l *ShowLog) LastShow(_ context.Context) (time.Time, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastShow, l.ok, nil
}

func (l *ShowLog) RecordShow(_ context.Context, t time.Time) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lastShow, l.ok = t, true
	return nil
}
