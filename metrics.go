package authsentry

import "sync/atomic"

// MetricID identifies a specific counter in the in-process metrics system.
type MetricID uint8

const (
	// MetricLoginSuccess is an exported constant used by the authentication engine.
	MetricLoginSuccess MetricID = iota
	// MetricLoginFailure is an exported constant used by the authentication engine.
	MetricLoginFailure
	// MetricLoginRateLimited is an exported constant used by the authentication engine.
	MetricLoginRateLimited
	// MetricAccountLocked is an exported constant used by the authentication engine.
	MetricAccountLocked
	// MetricTwoFactorRequired is an exported constant used by the authentication engine.
	MetricTwoFactorRequired
	// MetricTwoFactorSuccess is an exported constant used by the authentication engine.
	MetricTwoFactorSuccess
	// MetricTwoFactorFailure is an exported constant used by the authentication engine.
	MetricTwoFactorFailure
	// MetricBackupCodeUsed is an exported constant used by the authentication engine.
	MetricBackupCodeUsed
	// MetricSessionCreated is an exported constant used by the authentication engine.
	MetricSessionCreated
	// MetricSessionInvalidated is an exported constant used by the authentication engine.
	MetricSessionInvalidated
	// MetricSessionExpired is an exported constant used by the authentication engine.
	MetricSessionExpired
	// MetricLogout is an exported constant used by the authentication engine.
	MetricLogout
	// MetricLogoutAll is an exported constant used by the authentication engine.
	MetricLogoutAll
	// MetricRefreshSuccess is an exported constant used by the authentication engine.
	MetricRefreshSuccess
	// MetricRefreshFailure is an exported constant used by the authentication engine.
	MetricRefreshFailure
	// MetricRegisterSuccess is an exported constant used by the authentication engine.
	MetricRegisterSuccess
	// MetricPasswordChange is an exported constant used by the authentication engine.
	MetricPasswordChange
	// MetricPasswordResetRequest is an exported constant used by the authentication engine.
	MetricPasswordResetRequest
	// MetricPasswordResetSuccess is an exported constant used by the authentication engine.
	MetricPasswordResetSuccess
	// MetricPasswordResetFailure is an exported constant used by the authentication engine.
	MetricPasswordResetFailure
	// MetricEmailVerificationRequest is an exported constant used by the authentication engine.
	MetricEmailVerificationRequest
	// MetricEmailVerificationSuccess is an exported constant used by the authentication engine.
	MetricEmailVerificationSuccess
	// MetricEmailVerificationFailure is an exported constant used by the authentication engine.
	MetricEmailVerificationFailure

	metricIDCount
)

// Metrics holds atomic counters. All operations are no-ops when disabled.
type Metrics struct {
	enabled  bool
	counters [metricIDCount]atomic.Uint64
}

// MetricsSnapshot is a point-in-time copy of all counters.
type MetricsSnapshot struct {
	Counters map[MetricID]uint64
}

// NewMetrics creates a [Metrics] instance configured by cfg.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{enabled: cfg.Enabled}
}

// Inc increments the counter for id.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	m.counters[id].Add(1)
}

// Snapshot returns a deep copy of all counters.
func (m *Metrics) Snapshot() MetricsSnapshot {
	snap := MetricsSnapshot{
		Counters: make(map[MetricID]uint64, int(metricIDCount)),
	}
	if m == nil || !m.enabled {
		return snap
	}
	for id := MetricID(0); id < metricIDCount; id++ {
		snap.Counters[id] = m.counters[id].Load()
	}
	return snap
}
