package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Usage rejection reasons.
const (
	ReasonInsufficientCredits = "insufficient_credits"
	ReasonNoSubscription      = "no_subscription"
)

// Auth outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// LedgerMetrics counts credit consumption and authentication events.
// A nil *LedgerMetrics is a no-op.
type LedgerMetrics struct {
	consumed *prometheus.CounterVec
	rejected *prometheus.CounterVec
	auth     *prometheus.CounterVec
}

// NewLedgerMetrics registers the ledger collectors on reg.
func NewLedgerMetrics(reg prometheus.Registerer) *LedgerMetrics {
	if reg == nil {
		return &LedgerMetrics{}
	}
	consumed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cp_credits_consumed_total",
		Help: "Credits debited by metered capability usage.",
	}, []string{"capability"})
	rejected := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cp_usage_rejected_total",
		Help: "Usage events rejected before metering.",
	}, []string{"reason"})
	auth := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cp_auth_events_total",
		Help: "Register, login and logout attempts by outcome.",
	}, []string{"event", "outcome"})
	reg.MustRegister(consumed, rejected, auth)
	return &LedgerMetrics{consumed: consumed, rejected: rejected, auth: auth}
}

func (l *LedgerMetrics) CreditsConsumed(capability string, credits int) {
	if l == nil || l.consumed == nil || credits <= 0 {
		return
	}
	l.consumed.WithLabelValues(normalizeLabel(capability)).Add(float64(credits))
}

func (l *LedgerMetrics) UsageRejected(reason string) {
	if l == nil || l.rejected == nil {
		return
	}
	l.rejected.WithLabelValues(normalizeLabel(reason)).Inc()
}

func (l *LedgerMetrics) AuthEvent(event string, ok bool) {
	if l == nil || l.auth == nil {
		return
	}
	outcome := OutcomeFailure
	if ok {
		outcome = OutcomeSuccess
	}
	l.auth.WithLabelValues(normalizeLabel(event), outcome).Inc()
}
