package modguard

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// FailurePolicy names how a component treats an unavailable dependency.
// The rate limiter uses FailClosed and the scoring pipeline uses FailOpen;
// components never choose per call site.
type FailurePolicy string

const (
	FailClosed FailurePolicy = "fail_closed" // Treat the guarded call as denied
	FailOpen   FailurePolicy = "fail_open"   // Treat the guarded call as allowed
)

var failurePolicyTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "modguard_failure_policy_total",
	Help: "Number of dependency failures handled, by component and policy",
}, []string{"component", "policy"})

// Handle records err for component and reports whether the guarded
// operation may proceed.
func (p FailurePolicy) Handle(logger *zap.Logger, component string, err error) (proceed bool) {
	failurePolicyTotal.WithLabelValues(component, string(p)).Inc()
	if logger != nil {
		logger.Error("dependency failure",
			zap.String("component", component),
			zap.String("policy", string(p)),
			zap.Error(err))
	}
	return p == FailOpen
}
