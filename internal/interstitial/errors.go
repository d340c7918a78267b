package interstitial

import (
	"errors"

	"github.com/AlexKimmel/adgate/internal/decision"
)

var (
	// ErrNotInitialized indicates Load ran before the SDK identity was configured.
	ErrNotInitialized = errors.New("sdk not initialized")

	// ErrFrequencyCapped indicates the frequency gate denied the load.
	ErrFrequencyCapped = errors.New("frequency cap")

	// ErrNoFill indicates the decision endpoint declined to fill.
	ErrNoFill = errors.New("no fill")

	// ErrAdNotReady indicates Show ran without a loaded ad.
	ErrAdNotReady = errors.New("ad not ready")

	// ErrMissingAdURL indicates the loaded decision has no final URL.
	ErrMissingAdURL = errors.New("missing ad url")

	// ErrInvalidAdURL indicates the final URL is not an absolute http(s) URL.
	ErrInvalidAdURL = errors.New("invalid ad url")
)

// Reason classifies a failure for listeners.
type Reason string

const (
	ReasonNone             Reason = ""
	ReasonNotInitialized   Reason = "not_initialized"
	ReasonFrequencyCapped  Reason = "frequency_capped"
	ReasonNoFill           Reason = "no_fill"
	ReasonTransportFailure Reason = "transport_failure"
	ReasonDecodingFailure  Reason = "decoding_failure"
	ReasonAdNotReady       Reason = "ad_not_ready"
	ReasonMissingAdURL     Reason = "missing_ad_url"
	ReasonInvalidAdURL     Reason = "invalid_ad_url"
)

// ReasonOf maps any error produced by an Ad to its Reason. Errors from the
// fetch path that are not decoding problems count as transport failures.
func ReasonOf(err error) Reason {
	switch {
	case err == nil:
		return ReasonNone
	case errors.Is(err, ErrNotInitialized):
		return ReasonNotInitialized
	case errors.Is(err, ErrFrequencyCapped):
		return ReasonFrequencyCapped
	case errors.Is(err, ErrNoFill):
		return ReasonNoFill
	case errors.Is(err, ErrAdNotReady):
		return ReasonAdNotReady
	case errors.Is(err, ErrMissingAdURL):
		return ReasonMissingAdURL
	case errors.Is(err, ErrInvalidAdURL):
		return ReasonInvalidAdURL
	case errors.Is(err, decision.ErrDecoding):
		return ReasonDecodingFailure
	default:
		return ReasonTransportFailure
	}
}
