package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Login outcome label values.
const (
	OutcomeFinalized          = "finalized"
	OutcomeRejected           = "rejected"
	OutcomeRegistrationDenied = "registration_denied"
	OutcomeUsernameCollision  = "username_collision"
	OutcomeGuardDenied        = "guard_denied"
	OutcomeError              = "error"
)

// Metrics holds the bridge's Prometheus metrics.
type Metrics struct {
	LoginsTotal         *prometheus.CounterVec
	LoginDuration       prometheus.Histogram
	RegistrationsTotal  prometheus.Counter
	RolesGranted        prometheus.Histogram
	SyncWarningsTotal   *prometheus.CounterVec
	GateEvictionsTotal  prometheus.Counter
	RuleParseIssues     prometheus.Gauge
	SessionsActive      prometheus.Gauge
}

// NewMetrics creates and registers all metrics on the given registry. A nil
// registry uses the default one.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	m := &Metrics{
		LoginsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "samlbridge_logins_total",
				Help: "Login events by terminal outcome",
			},
			[]string{"outcome"},
		),
		LoginDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "samlbridge_login_duration_seconds",
				Help:    "End-to-end duration of one login event",
				Buckets: prometheus.DefBuckets,
			},
		),
		RegistrationsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "samlbridge_registrations_total",
				Help: "Accounts created through just-in-time registration",
			},
		),
		RolesGranted: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "samlbridge_roles_granted",
				Help:    "Number of roles granted per role evaluation",
				Buckets: []float64{0, 1, 2, 3, 5, 8, 13},
			},
		),
		SyncWarningsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "samlbridge_sync_warnings_total",
				Help: "Non-fatal attribute synchronization warnings by field",
			},
			[]string{"field"},
		),
		GateEvictionsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "samlbridge_gate_evictions_total",
				Help: "Local sessions ended by the local-login gate",
			},
		),
		RuleParseIssues: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "samlbridge_rolemap_parse_issues",
				Help: "Parse issues in the currently loaded role-population rules",
			},
		),
		SessionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "samlbridge_sessions_active",
				Help: "Local sessions currently tracked by the session store",
			},
		),
	}

	var registerer prometheus.Registerer = prometheus.DefaultRegisterer
	if registry != nil {
		registerer = registry
	}
	registerer.MustRegister(
		m.LoginsTotal,
		m.LoginDuration,
		m.RegistrationsTotal,
		m.RolesGranted,
		m.SyncWarningsTotal,
		m.GateEvictionsTotal,
		m.RuleParseIssues,
		m.SessionsActive,
	)
	return m
}

// Handler returns the scrape handler for the given registry, or the default
// handler for a nil registry.
func Handler(registry *prometheus.Registry) http.Handler {
	if registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
