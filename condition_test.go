package rbac

import (
	"encoding/json"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func conditionContext() *AccessContext {
	ac := NewAccessContext("u1")
	ac.User.Type = "teacher"
	ac.User.Roles = []string{"teacher", "mentor"}
	ac.User.OrganizationID = "org-1"
	ac.User.Metadata = map[string]any{"level": 4, "code": "42", "answer": 42, "profile": map[string]any{"country": "np"}}
	ac.WithResource(ResourceContext{ID: "c-9", Type: "course", OwnerID: "u1", Metadata: map[string]any{"tags": []string{"math", "intro"}}})
	ac.WithEnvironment(EnvironmentContext{
		IP:        "10.0.0.7",
		UserAgent: "Mozilla/5.0 (X11; Linux)",
		Timestamp: time.Date(2026, 3, 4, 14, 30, 0, 0, time.UTC),
	})
	return ac
}

func TestConditionEvaluate(t *testing.T) {
	ac := conditionContext()
	cases := []struct {
		name string
		cond Condition
		want bool
	}{
		{"equals", Condition{"user.type", OpEquals, "teacher"}, true},
		{"equals mismatch", Condition{"user.type", OpEquals, "student"}, false},
		{"not_equals", Condition{"user.type", OpNotEquals, "student"}, true},
		{"not_equals missing field", Condition{"user.departmentId", OpNotEquals, "x"}, false},
		{"in", Condition{"user.type", OpIn, []any{"teacher", "admin"}}, true},
		{"in scalar value", Condition{"user.type", OpIn, "teacher"}, false},
		{"not_in", Condition{"user.type", OpNotIn, []string{"student"}}, true},
		{"not_in member", Condition{"user.type", OpNotIn, []string{"teacher"}}, false},
		{"roles in", Condition{"user.roles", OpIn, []any{"mentor"}}, true},
		{"roles contains", Condition{"user.roles", OpContains, "teacher"}, true},
		{"string contains", Condition{"environment.userAgent", OpContains, "Linux"}, true},
		{"greater_than", Condition{"user.metadata.level", OpGreaterThan, 3}, true},
		{"greater_than float", Condition{"user.metadata.level", OpGreaterThan, 4.5}, false},
		{"less_than", Condition{"user.metadata.level", OpLessThan, 5}, true},
		{"nested metadata", Condition{"user.metadata.profile.country", OpEquals, "np"}, true},
		{"metadata list", Condition{"resource.metadata.tags", OpContains, "math"}, true},
		{"owner reference", Condition{"resource.ownerId", OpEquals, "$user.id"}, true},
		{"missing reference", Condition{"resource.ownerId", OpEquals, "$user.departmentId"}, false},
		{"hour", Condition{"env.hour", OpGreaterThan, 9}, true},
		{"weekday", Condition{"env.weekday", OpIn, []any{"monday", "wednesday"}}, true},
		{"timestamp before", Condition{"environment.timestamp", OpLessThan, "2026-12-31T00:00:00Z"}, true},
		{"timestamp after", Condition{"environment.timestamp", OpGreaterThan, "2027-01-01T00:00:00Z"}, false},
		{"incomparable", Condition{"user.type", OpGreaterThan, true}, false},
		{"unknown operator", Condition{"user.type", Operator("matches"), "teacher"}, false},
		{"unknown field", Condition{"user.shoeSize", OpEquals, 42}, false},
		{"nil value", Condition{"user.type", OpEquals, nil}, false},
		{"number equals number kind", Condition{"user.metadata.level", OpEquals, 4.0}, true},
		{"numeric string never equals number", Condition{"user.metadata.code", OpEquals, 42}, false},
		{"number never equals numeric string", Condition{"user.metadata.level", OpEquals, "4"}, false},
		{"numeric string not in numbers", Condition{"user.metadata.code", OpIn, []any{42, 7}}, false},
		{"numeric string ordering", Condition{"user.metadata.code", OpGreaterThan, 41}, true},
		{"string reference against number", Condition{"user.metadata.code", OpEquals, "$user.metadata.answer"}, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := c.cond.Evaluate(ac); got != c.want {
				t.Fatalf("%s = %v, want %v", c.cond.String(), got, c.want)
			}
		})
	}
}

func TestConditionNilContext(t *testing.T) {
	for _, op := range []Operator{OpEquals, OpNotEquals, OpIn, OpNotIn, OpGreaterThan, OpLessThan, OpContains} {
		if (Condition{Field: "user.id", Operator: op, Value: "x"}).Evaluate(nil) {
			t.Fatalf("%s should be false without a context", op)
		}
	}
}

func TestConditionMissingResourceAndEnvironment(t *testing.T) {
	ac := NewAccessContext("u1")
	if (Condition{Field: "resource.type", Operator: OpNotEquals, Value: "course"}).Evaluate(ac) {
		t.Fatal("absent resource must fail closed")
	}
	if (Condition{Field: "env.hour", Operator: OpLessThan, Value: 24}).Evaluate(ac) {
		t.Fatal("absent environment must fail closed")
	}
}

func TestParseField(t *testing.T) {
	cases := map[string]FieldRef{
		"user.id":                 {Key: FieldUserID},
		"resource.owner_id":       {Key: FieldResourceOwnerID},
		"resource.ownerId":        {Key: FieldResourceOwnerID},
		"env.ip":                  {Key: FieldEnvIP},
		"environment.weekday":     {Key: FieldEnvWeekday},
		"user.metadata.team.name": {Key: FieldUserMetadata, Attr: "team.name"},
		"resource.metadata.tier":  {Key: FieldResourceMetadata, Attr: "tier"},
		"user.metadata.":          {Key: FieldUnknown},
		"resource.owner.id":       {Key: FieldUnknown},
		"":                        {Key: FieldUnknown},
	}
	for path, want := range cases {
		if got := ParseField(path); got != want {
			t.Errorf("ParseField(%q) = %+v, want %+v", path, got, want)
		}
	}
}

func TestParseFieldMemoized(t *testing.T) {
	want := ParseField("env.weekday")
	fieldRefs.RLock()
	cached, ok := fieldRefs.m["env.weekday"]
	fieldRefs.RUnlock()
	if !ok || cached != want {
		t.Fatalf("expected env.weekday to be memoized, got %v %v", cached, ok)
	}
	allocs := testing.AllocsPerRun(100, func() {
		_ = ParseField("env.weekday")
	})
	if allocs != 0 {
		t.Fatalf("memoized ParseField allocated %v times", allocs)
	}
}

func TestParseCondition(t *testing.T) {
	cases := []struct {
		in   string
		want Condition
	}{
		{`resource.ownerId equals $user.id`, Condition{"resource.ownerId", OpEquals, "$user.id"}},
		{`user.type == "teacher"`, Condition{"user.type", OpEquals, "teacher"}},
		{`user.type in ["teacher", 'admin']`, Condition{"user.type", OpIn, []any{"teacher", "admin"}}},
		{`user.type not in [student, guest]`, Condition{"user.type", OpNotIn, []any{"student", "guest"}}},
		{`user.metadata.level > 3`, Condition{"user.metadata.level", OpGreaterThan, 3}},
		{`user.metadata.score < 2.5`, Condition{"user.metadata.score", OpLessThan, 2.5}},
		{`user.metadata.active != false`, Condition{"user.metadata.active", OpNotEquals, false}},
		{`environment.userAgent contains "Mobile Safari"`, Condition{"environment.userAgent", OpContains, "Mobile Safari"}},
	}
	for _, c := range cases {
		got, err := ParseCondition(c.in)
		if err != nil {
			t.Fatalf("ParseCondition(%q): %v", c.in, err)
		}
		if got.Field != c.want.Field || got.Operator != c.want.Operator || !equalValues(got.Value, c.want.Value) {
			t.Errorf("ParseCondition(%q) = %#v, want %#v", c.in, got, c.want)
		}
	}
}

func TestParseConditionErrors(t *testing.T) {
	for _, in := range []string{
		``,
		`user.type`,
		`user.type equals`,
		`user.type like "x"`,
		`user.type not equals x`,
		`user.height equals 3`,
		`user.type in [a, b`,
		`user.type equals "open`,
	} {
		if _, err := ParseCondition(in); err == nil {
			t.Errorf("ParseCondition(%q) should fail", in)
		}
	}
}

func TestConditionParserCacheReturnsCopies(t *testing.T) {
	p, err := NewConditionParser(ConditionCacheConfig{NumCounters: 100, MaxCost: 1 << 10, BufferItems: 64})
	if err != nil {
		t.Fatalf("new parser: %v", err)
	}
	const src = `user.type in [teacher, admin]`
	first, err := p.Parse(src)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	p.Wait()
	first.Value.([]any)[0] = "mutated"

	second, err := p.Parse(src)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if second.Value.([]any)[0] != "teacher" {
		t.Fatalf("cached condition was mutated through a returned copy: %v", second.Value)
	}
}

func TestConditionStringRoundtrip(t *testing.T) {
	for _, c := range []Condition{
		{"resource.ownerId", OpEquals, "$user.id"},
		{"user.type", OpIn, []any{"teacher", "admin"}},
		{"user.metadata.level", OpGreaterThan, 3},
		{"environment.userAgent", OpContains, "Mobile Safari"},
	} {
		parsed, err := ParseCondition(c.String())
		if err != nil {
			t.Fatalf("reparse %q: %v", c.String(), err)
		}
		if parsed.Field != c.Field || parsed.Operator != c.Operator || !equalValues(parsed.Value, c.Value) {
			t.Fatalf("roundtrip %q = %#v", c.String(), parsed)
		}
	}
}

func TestConditionDecodeForms(t *testing.T) {
	var fromYAML struct {
		Conditions []Condition `yaml:"conditions"`
	}
	doc := `
conditions:
  - "resource.ownerId equals $user.id"
  - field: user.metadata.level
    operator: greater_than
    value: 2
`
	if err := yaml.Unmarshal([]byte(doc), &fromYAML); err != nil {
		t.Fatalf("yaml: %v", err)
	}
	if len(fromYAML.Conditions) != 2 || fromYAML.Conditions[0].Value != "$user.id" || fromYAML.Conditions[1].Value != 2 {
		t.Fatalf("yaml decode = %#v", fromYAML.Conditions)
	}

	var fromJSON []Condition
	raw := `["user.type in [teacher]", {"field": "user.metadata.level", "operator": "less_than", "value": 10}]`
	if err := json.Unmarshal([]byte(raw), &fromJSON); err != nil {
		t.Fatalf("json: %v", err)
	}
	if len(fromJSON) != 2 || fromJSON[1].Value != 10 {
		t.Fatalf("json decode = %#v", fromJSON)
	}

	if err := json.Unmarshal([]byte(`["user.type resembles x"]`), &fromJSON); err == nil {
		t.Fatal("invalid compact condition should fail to decode")
	}
}
