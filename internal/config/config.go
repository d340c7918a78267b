package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultDecisionURL = "https://api.adw.net/applovin/request"
	DefaultTrackURL    = "https://api.adw.net/applovin/track"
)

type SDK struct {
	PartnerID      string `yaml:"partner_id" env:"PARTNER_ID"`
	AppID          string `yaml:"app_id" env:"APP_ID"`
	TrackingStatus string `yaml:"tracking_status" env:"TRACKING_STATUS"` // authorized, denied, restricted, notDetermined, unknown
}

type Endpoints struct {
	DecisionURL    string `yaml:"decision_url" env:"DECISION_URL"`
	TrackURL       string `yaml:"track_url" env:"TRACK_URL"`
	FetchTimeoutMS int    `yaml:"fetch_timeout_ms" env:"FETCH_TIMEOUT_MS"`
}

type Capping struct {
	FrequencyCapSeconds       int `yaml:"frequency_cap_seconds" env:"FREQUENCY_CAP_SECONDS"`
	DefaultSessionGateSeconds int `yaml:"default_session_gate_seconds" env:"DEFAULT_SESSION_GATE_SECONDS"`
}

type Store struct {
	Backend        string `yaml:"backend" env:"BACKEND"` // "memory","sqlite","redis"
	SQLitePath     string `yaml:"sqlite_path" env:"SQLITE_PATH"`
	RedisAddr      string `yaml:"redis_addr" env:"REDIS_ADDR"`
	RedisPassword  string `yaml:"redis_password" env:"REDIS_PASSWORD"`
	RedisDB        int    `yaml:"redis_db" env:"REDIS_DB"`
	RedisKey       string `yaml:"redis_key" env:"REDIS_KEY"`
	ConnectRetries int    `yaml:"connect_retries" env:"CONNECT_RETRIES"`
}

type Observability struct {
	LogLevel       string `yaml:"log_level" env:"LOG_LEVEL"`             // "debug","info","warn","error"
	MetricsAddr    string `yaml:"metrics_addr" env:"METRICS_ADDR"`       // empty disables the ops server
	PrometheusPath string `yaml:"prometheus_path" env:"PROMETHEUS_PATH"` // e.g. "/metrics"
}

type Demo struct {
	Placement  string `yaml:"placement" env:"PLACEMENT"`
	Rounds     int    `yaml:"rounds" env:"ROUNDS"`
	IntervalMS int    `yaml:"interval_ms" env:"INTERVAL_MS"`
	DwellMS    int    `yaml:"dwell_ms" env:"DWELL_MS"` // 0 means stay for the session gate
}

type Root struct {
	SDK           SDK           `yaml:"sdk" envPrefix:"SDK_"`
	Endpoints     Endpoints     `yaml:"endpoints" envPrefix:"ENDPOINTS_"`
	Capping       Capping       `yaml:"capping" envPrefix:"CAPPING_"`
	Store         Store         `yaml:"store" envPrefix:"STORE_"`
	Observability Observability `yaml:"observability" envPrefix:"OBS_"`
	Demo          Demo          `yaml:"demo" envPrefix:"DEMO_"`
}

func (e Endpoints) FetchTimeout() time.Duration {
	if e.FetchTimeoutMS <= 0 {
		return 5 * time.Second
	}
	return time.Duration(e.FetchTimeoutMS) * time.Millisecond
}

func (c Capping) FrequencyCap() time.Duration {
	return time.Duration(c.FrequencyCapSeconds) * time.Second
}

func (c Capping) DefaultSessionGate() time.Duration {
	return time.Duration(c.DefaultSessionGateSeconds) * time.Second
}

func (d Demo) Interval() time.Duration {
	return time.Duration(d.IntervalMS) * time.Millisecond
}

func (d Demo) Dwell() time.Duration {
	return time.Duration(d.DwellMS) * time.Millisecond
}

// Load reads the YAML file at path (a missing file is not an error), then
// overlays ADGATE_* environment variables, optionally sourced from a .env file.
func Load(path string) (*Root, error) {
	var cfg Root

	b, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, err
	}

	// .env is optional; absence is the normal case outside local development
	_ = godotenv.Load()

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: "ADGATE_"}); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Root) {
	if cfg.SDK.TrackingStatus == "" {
		cfg.SDK.TrackingStatus = "notDetermined"
	}
	if cfg.Endpoints.DecisionURL == "" {
		cfg.Endpoints.DecisionURL = DefaultDecisionURL
	}
	if cfg.Endpoints.TrackURL == "" {
		cfg.Endpoints.TrackURL = DefaultTrackURL
	}
	if cfg.Endpoints.FetchTimeoutMS <= 0 {
		cfg.Endpoints.FetchTimeoutMS = 5000
	}
	if cfg.Capping.FrequencyCapSeconds <= 0 {
		cfg.Capping.FrequencyCapSeconds = 90
	}
	if cfg.Capping.DefaultSessionGateSeconds <= 0 {
		cfg.Capping.DefaultSessionGateSeconds = 20
	}
	if cfg.Store.Backend == "" {
		cfg.Store.Backend = "sqlite"
	}
	if cfg.Store.SQLitePath == "" {
		cfg.Store.SQLitePath = "./data/adgate.db"
	}
	if cfg.Store.RedisAddr == "" {
		cfg.Store.RedisAddr = "localhost:6379"
	}
	if cfg.Store.RedisKey == "" {
		cfg.Store.RedisKey = "adgate:last_show_time"
	}
	if cfg.Store.ConnectRetries <= 0 {
		cfg.Store.ConnectRetries = 5
	}
	if cfg.Observability.LogLevel == "" {
		cfg.Observability.LogLevel = "info"
	}
	if cfg.Observability.PrometheusPath == "" {
		cfg.Observability.PrometheusPath = "/metrics"
	}
	if cfg.Demo.Placement == "" {
		cfg.Demo.Placement = "interstitial"
	}
	if cfg.Demo.Rounds <= 0 {
		cfg.Demo.Rounds = 1
	}
	if cfg.Demo.IntervalMS <= 0 {
		cfg.Demo.IntervalMS = 30_000
	}
}

func (c *Root) Validate() error {
	for name, raw := range map[string]string{
		"endpoints.decision_url": c.Endpoints.DecisionURL,
		"endpoints.track_url":    c.Endpoints.TrackURL,
	} {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("invalid %s: %q", name, raw)
		}
	}

	switch c.SDK.TrackingStatus {
	case "authorized", "denied", "restricted", "notDetermined", "unknown":
	default:
		return fmt.Errorf("invalid sdk.tracking_status: %q", c.SDK.TrackingStatus)
	}

	switch c.Store.Backend {
	case "memory", "sqlite", "redis":
	default:
		return fmt.Errorf("invalid store.backend: %q (want memory, sqlite or redis)", c.Store.Backend)
	}
	return nil
}
