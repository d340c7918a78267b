package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
)

const DefaultKey = "adgate:last_show_time"

type Options struct {
	Addr       string
	Password   string
	DB         int
	Key        string
	MaxRetries uint64 // connect attempts beyond the first
}

// ShowLog stores the last show time in Redis, for deployments where several
// processes share one frequency cap.
type ShowLog struct {
	client *redis.Client
	key    string
}

// Connect dials Redis and pings it with exponential backoff.
func Connect(ctx context.Context, opts Options, logger zerolog.Logger) (*ShowLog, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), opts.MaxRetries), ctx)
	err := backoff.Retry(func() error {
		if err := client.Ping(ctx).Err(); err != nil {
			logger.Warn().Err(err).Str("addr", opts.Addr).Msg("redis connection failed, retrying")
			return err
		}
		return nil
	}, b)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis at %s: %w", opts.Addr, err)
	}

	logger.Info().Str("addr", opts.Addr).Msg("connected to redis")
	return New(client, opts.Key), nil
}

func New(client *redis.Client, key string) *ShowLog {
	if key == "" {
		key = DefaultKey
	}
	return &ShowLog{client: client, key: key}
}

func (l *ShowLog) Close() error {
	return l.client.Close()
}

func (l *ShowLog) LastShow(ctx context.Context) (time.Time, bool, error) {
	v, err := l.client.Get(ctx, l.key).Result()
	if err == redis.Nil {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("get %s: %w", l.key, err)
	}

	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse %s: %w", l.key, err)
	}
	if ms <= 0 {
		return time.Time{}, false, nil
	}
	return time.UnixMilli(ms), true, nil
}

func (l *ShowLog) RecordShow(ctx context.Context, t time.Time) error {
	if err := l.client.Set(ctx, l.key, strconv.FormatInt(t.UnixMilli(), 10), 0).Err(); err != nil {
		return fmt.Errorf("set %s: %w", l.key, err)
	}
	return nil
}
