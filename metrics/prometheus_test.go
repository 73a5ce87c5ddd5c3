package metrics

import (
	"testing"

	"github.com/oarkflow/rbac"
	"github.com/prometheus/client_golang/prometheus"
)

func counterValue(t *testing.T, reg *prometheus.Registry, check, result string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != "rbac_decisions_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			labels := map[string]string{}
			for _, lp := range m.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			if labels["check"] == check && labels["result"] == result {
				return m.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func TestPrometheusObserverCountsDecisions(t *testing.T) {
	reg := prometheus.NewRegistry()
	obs, err := NewPrometheusObserver(reg)
	if err != nil {
		t.Fatalf("new observer: %v", err)
	}
	e := rbac.NewEngine(rbac.NewStoreWithDefaults(), rbac.WithObserver(obs))
	e.Store().SetRoles("s1", []string{rbac.RoleStudent})

	ac := rbac.NewAccessContext("s1")
	e.HasPermission("s1", "course.view", ac)
	e.HasPermission("s1", "course.view", ac)
	e.HasPermission("s1", "course.delete", ac)
	e.HasRole("s1", rbac.RoleAdmin)

	if got := counterValue(t, reg, "has_permission", "allow"); got != 2 {
		t.Fatalf("has_permission allow = %v, want 2", got)
	}
	if got := counterValue(t, reg, "has_permission", "deny"); got != 1 {
		t.Fatalf("has_permission deny = %v, want 1", got)
	}
	if got := counterValue(t, reg, "has_role", "deny"); got != 1 {
		t.Fatalf("has_role deny = %v, want 1", got)
	}
}

func TestPrometheusObserverDuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := NewPrometheusObserver(reg); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if _, err := NewPrometheusObserver(reg); err == nil {
		t.Fatal("expected AlreadyRegisteredError on second register")
	}
}
