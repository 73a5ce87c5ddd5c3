package rbac

import (
	"testing"
	"time"

	"github.com/oarkflow/rbac/logger"
)

func newSeededEngine(t *testing.T, opts ...EngineOption) (*Engine, *Store) {
	t.Helper()
	s := NewStoreWithDefaults()
	return NewEngine(s, opts...), s
}

func TestFailClosedWithoutRoles(t *testing.T) {
	e, _ := newSeededEngine(t)
	ac := NewAccessContext("nobody")
	if e.HasPermission("nobody", "course.view", ac) {
		t.Fatal("HasPermission should deny an identity without roles")
	}
	if e.HasAnyPermission("nobody", []string{"course.view", "chat.participate"}, ac) {
		t.Fatal("HasAnyPermission should deny an identity without roles")
	}
	if e.CanAccessResource("nobody", "course", "view", ac) {
		t.Fatal("CanAccessResource should deny an identity without roles")
	}
	if e.HasRoleHierarchy("nobody", 1) {
		t.Fatal("HasRoleHierarchy(>0) should deny an identity without roles")
	}
	if !e.HasRoleHierarchy("nobody", 0) {
		t.Fatal("an identity without roles ranks 0")
	}
}

func TestUnknownPermissionDeniesAndWarns(t *testing.T) {
	rec := logger.NewRecorder()
	e, s := newSeededEngine(t, WithLogger(rec))
	s.SetRoles("root", []string{RoleAdmin})

	if e.HasPermission("root", "does.not.exist", nil) {
		t.Fatal("unknown permission must deny, even for admin")
	}
	warns := rec.Entries("warn")
	if len(warns) != 1 || warns[0].Get("permission") != "does.not.exist" {
		t.Fatalf("expected one warning naming the permission, got %+v", warns)
	}
}

func TestSeedScenarios(t *testing.T) {
	e, s := newSeededEngine(t)
	s.SetRoles("stu", []string{RoleStudent})
	s.SetRoles("tea", []string{RoleTeacher})
	s.SetRoles("adm", []string{RoleAdmin})

	cases := []struct {
		identity   string
		permission string
		want       bool
	}{
		{"stu", "course.view", true},
		{"stu", "course.edit", false},
		{"tea", "course.edit", true},
		{"tea", "user.delete", false},
		{"adm", "user.delete", true},
		{"adm", "system.configure", true},
	}
	for _, c := range cases {
		if got := e.HasPermission(c.identity, c.permission, NewAccessContext(c.identity)); got != c.want {
			t.Errorf("HasPermission(%s, %s) = %v, want %v", c.identity, c.permission, got, c.want)
		}
	}
}

func TestOwnGradeCondition(t *testing.T) {
	e, s := newSeededEngine(t)
	s.SetRoles("stu", []string{RoleStudent})

	own := NewAccessContext("stu").WithResource(ResourceContext{Type: "grade", OwnerID: "stu"})
	other := NewAccessContext("stu").WithResource(ResourceContext{Type: "grade", OwnerID: "someone"})

	if !e.CanAccessResource("stu", "grade", "view", own) {
		t.Fatal("student should view own grade")
	}
	if e.CanAccessResource("stu", "grade", "view", other) {
		t.Fatal("student should not view another student's grade")
	}
	if e.CanAccessResource("stu", "grade", "view", nil) {
		t.Fatal("missing context must fail closed")
	}
}

func TestConditionANDSemantics(t *testing.T) {
	s := NewStore()
	_ = s.RegisterPermission(&Permission{
		ID: "report.export", Resource: "report", Action: "export",
		Conditions: []Condition{{Field: "user.organizationId", Operator: OpEquals, Value: "org-1"}},
	})
	_ = s.RegisterRole(&Role{
		ID: "analyst", Hierarchy: 1, Permissions: []string{"report.export"},
		Conditions: []Condition{
			{Field: "user.type", Operator: OpEquals, Value: "staff"},
			{Field: "user.departmentId", Operator: OpEquals, Value: "finance"},
		},
	})
	s.SetRoles("ann", []string{"analyst"})
	e := NewEngine(s)

	ac := NewAccessContext("ann")
	ac.User.Type = "staff"
	ac.User.OrganizationID = "org-1"
	ac.User.DepartmentID = "marketing"
	if e.HasPermission("ann", "report.export", ac) {
		t.Fatal("one failing role condition must deny")
	}

	ac.User.DepartmentID = "finance"
	if !e.HasPermission("ann", "report.export", ac) {
		t.Fatal("all role and permission conditions hold; expected allow")
	}

	ac.User.OrganizationID = "org-2"
	if e.HasPermission("ann", "report.export", ac) {
		t.Fatal("failing permission condition must deny")
	}
}

func TestRoleConditionOnOneRoleDoesNotBlockAnother(t *testing.T) {
	s := NewStoreWithDefaults()
	_ = s.RegisterRole(&Role{
		ID: "night_moderator", Hierarchy: 1, Permissions: []string{"chat.moderate"},
		Conditions: []Condition{{Field: "env.hour", Operator: OpGreaterThan, Value: 20}},
	})
	s.SetRoles("m", []string{"night_moderator", RoleTeacher})
	e := NewEngine(s)

	noon := NewAccessContext("m").WithEnvironment(EnvironmentContext{Timestamp: time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)})
	d := e.Explain("m", "chat.moderate", noon)
	if !d.Allowed || d.MatchedBy != RoleTeacher {
		t.Fatalf("teacher role should grant when night role fails: %+v", d)
	}
}

func TestHasAllPermissions(t *testing.T) {
	e, s := newSeededEngine(t)
	s.SetRoles("tea", []string{RoleTeacher})
	ac := NewAccessContext("tea")
	if !e.HasAllPermissions("tea", []string{"course.view", "course.edit"}, ac) {
		t.Fatal("teacher holds both")
	}
	if e.HasAllPermissions("tea", []string{"course.view", "user.delete"}, ac) {
		t.Fatal("teacher lacks user.delete")
	}
	if e.HasAllPermissions("tea", nil, ac) {
		t.Fatal("empty list must deny")
	}
	if e.HasAnyPermission("tea", nil, ac) {
		t.Fatal("empty list must deny")
	}
}

func TestHierarchyMonotonicity(t *testing.T) {
	e, s := newSeededEngine(t)
	s.SetRoles("a", []string{RoleStudent})
	s.SetRoles("b", []string{RoleStudent, RoleAdmin})

	if !e.HasRoleHierarchy("b", 3) {
		t.Fatal("B holds a rank-3 role")
	}
	if e.HasRoleHierarchy("a", 3) {
		t.Fatal("A only holds rank 1")
	}
	if !e.HasRoleHierarchy("a", 1) {
		t.Fatal("A holds rank 1")
	}
	if got := e.MaxHierarchy("b"); got != 3 {
		t.Fatalf("MaxHierarchy(b) = %d", got)
	}
}

func TestHierarchyDoesNotImplyPermissions(t *testing.T) {
	s := NewStoreWithDefaults()
	_ = s.RegisterRole(&Role{ID: "director", Hierarchy: 10, Permissions: []string{"analytics.view"}})
	s.SetRoles("d", []string{"director"})
	e := NewEngine(s)
	if e.HasPermission("d", "course.view", NewAccessContext("d")) {
		t.Fatal("a senior role must not inherit junior permissions")
	}
	if !e.HasRoleHierarchy("d", 3) {
		t.Fatal("director outranks admin")
	}
}

func TestCanAccessResourceEquivalence(t *testing.T) {
	e, s := newSeededEngine(t)
	s.SetRoles("stu", []string{RoleStudent})
	s.SetRoles("tea", []string{RoleTeacher})
	s.SetRoles("adm", []string{RoleAdmin})

	contexts := []*AccessContext{
		nil,
		NewAccessContext("stu").WithResource(ResourceContext{Type: "grade", OwnerID: "stu"}),
		NewAccessContext("stu").WithResource(ResourceContext{Type: "grade", OwnerID: "x"}),
	}
	pairs := map[[2]string]bool{{"course", "archive"}: true}
	for _, p := range s.ListPermissions() {
		pairs[[2]string{p.Resource, p.Action}] = true
	}

	for _, id := range []string{"stu", "tea", "adm", "nobody"} {
		for pair := range pairs {
			resource, action := pair[0], pair[1]
			for _, ac := range contexts {
				want := e.HasAnyPermission(id, s.PermissionIDsFor(resource, action), ac)
				if got := e.CanAccessResource(id, resource, action, ac); got != want {
					t.Errorf("CanAccessResource(%s, %s, %s) = %v, HasAnyPermission = %v", id, resource, action, got, want)
				}
			}
		}
	}
}

func TestHasRoleAndHasAnyRole(t *testing.T) {
	e, s := newSeededEngine(t)
	s.SetRoles("tea", []string{RoleTeacher})
	if !e.HasRole("tea", RoleTeacher) || e.HasRole("tea", RoleAdmin) {
		t.Fatal("HasRole is plain membership")
	}
	if !e.HasAnyRole("tea", []string{RoleAdmin, RoleTeacher}) {
		t.Fatal("HasAnyRole should match teacher")
	}
	if e.HasAnyRole("tea", nil) || e.HasAnyRole("nobody", []string{RoleTeacher}) {
		t.Fatal("HasAnyRole should deny")
	}
}

func TestExplainReasons(t *testing.T) {
	e, s := newSeededEngine(t)
	s.SetRoles("stu", []string{RoleStudent})

	cases := []struct {
		identity, permission string
		ac                   *AccessContext
		allowed              bool
		reason               string
	}{
		{"stu", "course.view", nil, true, "role grant"},
		{"stu", "nope", nil, false, "unknown permission"},
		{"ghost", "course.view", nil, false, "no roles assigned"},
		{"stu", "grade.view.own", NewAccessContext("stu").WithResource(ResourceContext{OwnerID: "x"}), false, "no role grants permission under context"},
	}
	for _, c := range cases {
		d := e.Explain(c.identity, c.permission, c.ac)
		if d.Allowed != c.allowed || d.Reason != c.reason {
			t.Errorf("Explain(%s, %s) = %v %q, want %v %q", c.identity, c.permission, d.Allowed, d.Reason, c.allowed, c.reason)
		}
		if len(d.Trace) == 0 {
			t.Errorf("Explain(%s, %s) produced no trace", c.identity, c.permission)
		}
	}

	d := e.ExplainResource("stu", "course", "archive", nil)
	if d.Allowed || d.Reason != "no matching permission" {
		t.Fatalf("ExplainResource unmatched = %+v", d)
	}
	d = e.ExplainResource("stu", "grade", "view", NewAccessContext("stu").WithResource(ResourceContext{OwnerID: "stu"}))
	if !d.Allowed || d.MatchedBy != RoleStudent {
		t.Fatalf("ExplainResource own grade = %+v", d)
	}
}

func TestGenerateAccessReport(t *testing.T) {
	fixed := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	e, s := newSeededEngine(t, WithClock(func() time.Time { return fixed }))
	s.SetRoles("both", []string{RoleStudent, RoleTeacher})

	r := e.GenerateAccessReport("both")
	if len(r.Roles) != 2 {
		t.Fatalf("expected 2 roles, got %d", len(r.Roles))
	}
	seen := map[string]int{}
	for _, p := range r.Permissions {
		seen[p.ID]++
	}
	for id, n := range seen {
		if n != 1 {
			t.Fatalf("permission %s reported %d times", id, n)
		}
	}
	if seen["grade.view.own"] != 1 {
		t.Fatal("conditional permissions are part of potential access")
	}
	if len(r.Permissions) != len(studentPermissions)+len(teacherPermissions)-3 {
		t.Fatalf("unexpected union size %d", len(r.Permissions))
	}
	gradeActions := r.ResourceAccess["grade"]
	if len(gradeActions) != 2 {
		t.Fatalf("grade actions should be de-duplicated, got %v", gradeActions)
	}
	if !r.GeneratedAt.Equal(fixed) {
		t.Fatalf("GeneratedAt = %v", r.GeneratedAt)
	}

	empty := e.GenerateAccessReport("nobody")
	if len(empty.Roles) != 0 || len(empty.Permissions) != 0 || len(empty.ResourceAccess) != 0 {
		t.Fatalf("unknown identity should yield an empty report: %+v", empty)
	}
}

func TestBatchCheck(t *testing.T) {
	e, s := newSeededEngine(t)
	s.SetRoles("stu", []string{RoleStudent})
	got := e.BatchCheck([]CheckRequest{
		{Identity: "stu", PermissionID: "course.view"},
		{Identity: "stu", Resource: "course", Action: "update"},
		{Identity: "stu", Resource: "assignment", Action: "submit"},
		{Identity: "stu", PermissionID: "missing"},
	})
	want := []bool{true, false, true, false}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("BatchCheck[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

type countingObserver struct {
	counts map[string]int
}

func (c *countingObserver) ObserveDecision(check string, allowed bool) {
	if allowed {
		check += ":allow"
	} else {
		check += ":deny"
	}
	c.counts[check]++
}

func TestObserverSeesEveryDecision(t *testing.T) {
	obs := &countingObserver{counts: map[string]int{}}
	e, s := newSeededEngine(t, WithObserver(obs))
	s.SetRoles("stu", []string{RoleStudent})
	e.HasPermission("stu", "course.view", nil)
	e.CanAccessResource("stu", "course", "delete", nil)
	e.HasRoleHierarchy("stu", 2)
	if obs.counts["has_permission:allow"] != 1 || obs.counts["can_access_resource:deny"] != 1 || obs.counts["has_role_hierarchy:deny"] != 1 {
		t.Fatalf("unexpected observer counts: %v", obs.counts)
	}
}

func TestNewEngineRejectsNilOptions(t *testing.T) {
	e := NewEngine(nil, WithLogger(nil), WithClock(nil))
	if e.Store() == nil {
		t.Fatal("nil store should be replaced with an empty store")
	}
	if e.now == nil || e.logger == nil {
		t.Fatal("invalid options must leave defaults in place")
	}
}
