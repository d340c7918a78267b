package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// LastShowKey is the stable key the last show time is stored under.
const LastShowKey = "adgate:last_show_time"

// ShowLog stores the last show time as unix milliseconds in a small
// key/value table so it survives process restarts.
type ShowLog struct {
	db *sql.DB
}

func Open(path string) (*ShowLog, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// a single connection keeps ":memory:" databases shared
	db.SetMaxOpenConns(1)

	l := &ShowLog{db: db}
	if err := l.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return l, nil
}

func (l *ShowLog) migrate() error {
	_, err := l.db.Exec(`
CREATE TABLE IF NOT EXISTS kv (
	key TEXT PRIMARY KEY,
	value INTEGER NOT NULL,
	updated_at TEXT NOT NULL
);
`)
	return err
}

func (l *ShowLog) Close() error {
	return l.db.Close()
}

func (l *ShowLog) LastShow(ctx context.Context) (time.Time, bool, error) {
	var ms int64
	err := l.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, LastShowKey).Scan(&ms)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	if ms <= 0 {
		return time.Time{}, false, nil
	}
	return time.UnixMilli(ms), true, nil
}

func (l *ShowLog) RecordShow(ctx context.Context, t time.Time) error {
	_, err := l.db.ExecContext(ctx, `
INSERT INTO kv(key, value, updated_at) VALUES (?, ?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
`,
		LastShowKey,
		t.UnixMilli(),
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	return err
}
