package obs

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Метрики движка доступа.
var (
	decisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fieldgate_decisions_total",
			Help: "Total number of authorization decisions.",
		},
		[]string{"object", "action", "outcome", "reason"},
	)

	decisionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "fieldgate_decision_duration_seconds",
			Help:    "Authorization decision latencies in seconds.",
			Buckets: prometheus.DefBuckets, // [0.005..10]
		},
		[]string{"object", "action"},
	)

	integrityFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fieldgate_integrity_failures_total",
			Help: "Resolutions aborted by corrupted configuration.",
		},
	)

	criteriaRulesSkipped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fieldgate_criteria_rules_skipped_total",
			Help: "Sharing rules skipped because their type is not evaluable.",
		},
	)
)

// Регистрация метрик в default-регистре.
func Init() {
	prometheus.MustRegister(decisionsTotal, decisionDuration, integrityFailures, criteriaRulesSkipped)
}

// Хэндлер Prometheus.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveDecision records the outcome and latency of one resolved check.
func ObserveDecision(object, action string, allowed bool, reason string, d time.Duration) {
	outcome := "denied"
	if allowed {
		outcome = "allowed"
	}
	decisionsTotal.WithLabelValues(object, action, outcome, reason).Inc()
	decisionDuration.WithLabelValues(object, action).Observe(d.Seconds())
}

// IncIntegrityFailure counts a resolution aborted by corrupted configuration.
func IncIntegrityFailure() {
	integrityFailures.Inc()
}

// IncCriteriaRuleSkipped counts a sharing rule the engine refused to evaluate.
func IncCriteriaRuleSkipped() {
	criteriaRulesSkipped.Inc()
}
