package challengeAuth

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// Event names recorded on challengeauth_events_total.
const (
	EventLoginInit             = "login_init"
	EventLoginDecoy            = "login_decoy"
	EventLoginSuccess          = "login_success"
	EventLoginFailure          = "login_failure"
	EventLoginRateLimited      = "login_rate_limited"
	EventLoginReplay           = "login_replay"
	EventEmailNotVerified      = "email_not_verified"
	EventPasswordExpired       = "password_expired"
	EventMFARequired           = "mfa_required"
	EventMFASuccess            = "mfa_success"
	EventMFAFailure            = "mfa_failure"
	EventMFAActivated          = "mfa_activated"
	EventMFADeactivated        = "mfa_deactivated"
	EventRegistration          = "registration"
	EventVerificationIssued    = "verification_code_issued"
	EventVerificationExhausted = "verification_slots_exhausted"
	EventEmailConfirmed        = "email_confirmed"
	EventPermissionCacheHit    = "permission_cache_hit"
	EventPermissionCacheMiss   = "permission_cache_miss"
	EventPermissionDenied      = "permission_denied"
	EventGrantChanged          = "grant_changed"
)

// EventNames lists every event counted by the engine.
var EventNames = []string{
	EventLoginInit, EventLoginDecoy, EventLoginSuccess, EventLoginFailure,
	EventLoginRateLimited, EventLoginReplay, EventEmailNotVerified,
	EventPasswordExpired, EventMFARequired, EventMFASuccess, EventMFAFailure,
	EventMFAActivated, EventMFADeactivated, EventRegistration,
	EventVerificationIssued, EventVerificationExhausted, EventEmailConfirmed,
	EventPermissionCacheHit, EventPermissionCacheMiss, EventPermissionDenied,
	EventGrantChanged,
}

// Metrics wraps the engine's Prometheus collectors and keeps a plain copy of
// each counter for Snapshot. A nil *Metrics records nothing.
type Metrics struct {
	events *prometheus.CounterVec
	counts map[string]*atomic.Uint64
}

// NewMetrics creates the collectors and registers them on reg when non-nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "challengeauth_events_total",
			Help: "Authentication and authorization events by name.",
		}, []string{"event"}),
		counts: make(map[string]*atomic.Uint64, len(EventNames)),
	}
	for _, name := range EventNames {
		m.counts[name] = new(atomic.Uint64)
	}
	if reg != nil {
		reg.MustRegister(m.events)
	}
	return m
}

func (m *Metrics) inc(event string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(event).Inc()
	if c, ok := m.counts[event]; ok {
		c.Add(1)
	}
}

// Snapshot returns the current count of every event in EventNames.
func (m *Metrics) Snapshot() map[string]uint64 {
	out := make(map[string]uint64, len(EventNames))
	for _, name := range EventNames {
		if m != nil {
			out[name] = m.counts[name].Load()
		} else {
			out[name] = 0
		}
	}
	return out
}
