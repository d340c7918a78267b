package obs

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is safe to use as a nil pointer; every recorder is a no-op then.
type Metrics struct {
	LoadsTotal          *prometheus.CounterVec
	FetchDuration       *prometheus.HistogramVec
	FrequencyCapped     *prometheus.CounterVec
	RestrictionsExpired prometheus.Counter
	DisplaysTotal       *prometheus.CounterVec
	ImpressionsTotal    *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		LoadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "adgate_loads_total",
				Help: "Interstitial load attempts by outcome",
			},
			[]string{"placement", "result"},
		),
		FetchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "adgate_fetch_duration_seconds",
				Help:    "Fill decision fetch duration in seconds",
				Buckets: []float64{.05, .1, .25, .5, 1, 2, 3, 5},
			},
			[]string{"result"},
		),
		FrequencyCapped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "adgate_frequency_capped_total",
				Help: "Load attempts denied by the frequency gate",
			},
			[]string{"source"},
		),
		RestrictionsExpired: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "adgate_restrictions_expired_total",
				Help: "Server restrictions cleared after their TTL",
			},
		),
		DisplaysTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "adgate_displays_total",
				Help: "Interstitials that reached first paint",
			},
			[]string{"placement"},
		),
		ImpressionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "adgate_impressions_total",
				Help: "Viewability beacons by outcome",
			},
			[]string{"result"},
		),
	}

	reg.MustRegister(m.LoadsTotal, m.FetchDuration, m.FrequencyCapped, m.RestrictionsExpired, m.DisplaysTotal, m.ImpressionsTotal)
	return m
}

func (m *Metrics) ObserveLoad(placement, result string) {
	if m == nil {
		return
	}
	m.LoadsTotal.WithLabelValues(placement, result).Inc()
}

func (m *Metrics) ObserveFetch(result string, d time.Duration) {
	if m == nil {
		return
	}
	m.FetchDuration.WithLabelValues(result).Observe(d.Seconds())
}

func (m *Metrics) ObserveCapped(source string) {
	if m == nil {
		return
	}
	m.FrequencyCapped.WithLabelValues(source).Inc()
}

func (m *Metrics) ObserveExpired() {
	if m == nil {
		return
	}
	m.RestrictionsExpired.Inc()
}

func (m *Metrics) ObserveDisplay(placement string) {
	if m == nil {
		return
	}
	m.DisplaysTotal.WithLabelValues(placement).Inc()
}

func (m *Metrics) ObserveImpression(result string) {
	if m == nil {
		return
	}
	m.ImpressionsTotal.WithLabelValues(result).Inc()
}
