package decision

// TrackingStatus is the user's ad-tracking consent as reported to the
// decision endpoint.
type TrackingStatus string

const (
	TrackingAuthorized    TrackingStatus = "authorized"
	TrackingDenied        TrackingStatus = "denied"
	TrackingRestricted    TrackingStatus = "restricted"
	TrackingNotDetermined TrackingStatus = "notDetermined"
	TrackingUnknown       TrackingStatus = "unknown"
)

type Consent interface {
	TrackingStatus() TrackingStatus
}

// StaticConsent reports a fixed status.
type StaticConsent TrackingStatus

func (s StaticConsent) TrackingStatus() TrackingStatus {
	return ParseTrackingStatus(string(s))
}

// ParseTrackingStatus maps unrecognized values to TrackingUnknown.
func ParseTrackingStatus(s string) TrackingStatus {
	switch TrackingStatus(s) {
	case TrackingAuthorized, TrackingDenied, TrackingRestricted, TrackingNotDetermined:
		return TrackingStatus(s)
	case "":
		return TrackingNotDetermined
	default:
		return TrackingUnknown
	}
}
