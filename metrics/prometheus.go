// Package metrics exports engine decisions to Prometheus.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// PrometheusObserver counts decisions by check kind and outcome. Install it
// with rbac.WithObserver.
type PrometheusObserver struct {
	decisions *prometheus.CounterVec
}

// NewPrometheusObserver registers rbac_decisions_total on reg. A nil reg uses
// the default registerer.
func NewPrometheusObserver(reg prometheus.Registerer) (*PrometheusObserver, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	decisions := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rbac_decisions_total",
			Help: "Authorization decisions by check kind and result.",
		},
		[]string{"check", "result"},
	)
	if err := reg.Register(decisions); err != nil {
		return nil, err
	}
	return &PrometheusObserver{decisions: decisions}, nil
}

func (o *PrometheusObserver) ObserveDecision(check string, allowed bool) {
	o.decisions.WithLabelValues(check, result(allowed)).Inc()
}

func result(allowed bool) string {
	if allowed {
		return "allow"
	}
	return "deny"
}
