package decision

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/AlexKimmel/adgate/internal/obs"
	"github.com/AlexKimmel/adgate/internal/transport"
)

// DefaultTimeout sits above the host mediation layer's own load timeout so
// a failure here is reported before the host gives up.
const DefaultTimeout = 5 * time.Second

const maxBodyBytes = 1 << 20

var tracer = otel.Tracer("github.com/AlexKimmel/adgate/internal/decision")

type Config struct {
	BaseURL   string
	Timeout   time.Duration
	Transport http.RoundTripper
	Consent   Consent
	Logger    zerolog.Logger
	Metrics   *obs.Metrics
}

type Client struct {
	base    *url.URL
	timeout time.Duration
	http    *http.Client
	consent Consent
	log     zerolog.Logger
	metrics *obs.Metrics
}

func New(cfg Config) (*Client, error) {
	u, err := url.Parse(cfg.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid decision url %q", cfg.BaseURL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Consent == nil {
		cfg.Consent = StaticConsent(TrackingNotDetermined)
	}
	return &Client{
		base:    u,
		timeout: cfg.Timeout,
		http:    transport.NewClient(cfg.Transport, cfg.Timeout),
		consent: cfg.Consent,
		log:     obs.Component(cfg.Logger, "decision"),
		metrics: cfg.Metrics,
	}, nil
}

// Fetch makes a single attempt to get a fill decision for placementID.
// Exactly one of the results is non-nil.
func (c *Client) Fetch(ctx context.Context, partnerID, appID, placementID string) (_ *FillDecision, err error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	ctx, span := tracer.Start(ctx, "decision.Fetch",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("adgate.partner_id", partnerID),
			attribute.String("adgate.app_id", appID),
			attribute.String("adgate.placement", placementID),
		),
	)
	defer func() {
		result := "ok"
		if err != nil {
			result = resultLabel(err)
			span.RecordError(err)
			span.SetStatus(codes.Error, result)
		}
		c.metrics.ObserveFetch(result, time.Since(start))
		span.End()
	}()

	u := *c.base
	q := u.Query()
	q.Set("partner_id", partnerID)
	q.Set("app_id", appID)
	q.Set("placement", placementID)
	q.Set("idfa_status", string(c.consent.TrackingStatus()))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build decision request: %w", err)
	}
	reqID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", reqID)
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	log := c.log.With().Str("placement", placementID).Str("req_id", reqID).Logger()

	resp, err := c.http.Do(req)
	if err != nil {
		log.Warn().Err(err).Msg("decision request failed")
		return nil, fmt.Errorf("fetch decision: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		log.Warn().Err(err).Msg("read decision response")
		return nil, fmt.Errorf("read decision response: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		log.Warn().Int("status", resp.StatusCode).Msg("decision endpoint returned an error status")
	}
	if len(body) == 0 {
		return nil, ErrNoData
	}
	log.Debug().Int("status", resp.StatusCode).RawJSON("body", rawOrQuoted(body)).Msg("raw decision response")

	d, err := Decode(body)
	if err != nil {
		log.Warn().Err(err).Msg("decode decision response")
		return nil, err
	}
	return d, nil
}

// Decode parses a response body. A JSON object with none of the known fields
// is a valid decision without fill.
func Decode(body []byte) (*FillDecision, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, ErrNoData
	}
	if bytes.Equal(trimmed, []byte("null")) {
		return nil, fmt.Errorf("%w: null body", ErrDecoding)
	}

	var d FillDecision
	if err := json.Unmarshal(trimmed, &d); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecoding, err)
	}
	return &d, nil
}

func rawOrQuoted(body []byte) []byte {
	if json.Valid(body) {
		return body
	}
	q, _ := json.Marshal(string(body))
	return q
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNoData):
		return "no_data"
	case errors.Is(err, ErrDecoding):
		return "decoding"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "transport"
	}
}
