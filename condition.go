package rbac

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/oarkflow/date"
	"gopkg.in/yaml.v3"
)

// Operator is a condition comparison.
type Operator string

const (
	OpEquals      Operator = "equals"
	OpNotEquals   Operator = "not_equals"
	OpIn          Operator = "in"
	OpNotIn       Operator = "not_in"
	OpGreaterThan Operator = "greater_than"
	OpLessThan    Operator = "less_than"
	OpContains    Operator = "contains"
)

// Valid reports whether op is one of the supported operators.
func (op Operator) Valid() bool {
	switch op {
	case OpEquals, OpNotEquals, OpIn, OpNotIn, OpGreaterThan, OpLessThan, OpContains:
		return true
	}
	return false
}

// Condition is a field/operator/value predicate over an AccessContext.
// A string Value starting with "$" refers to another field, e.g. "$user.id".
type Condition struct {
	Field    string   `json:"field" yaml:"field"`
	Operator Operator `json:"operator" yaml:"operator"`
	Value    any      `json:"value" yaml:"value"`
}

// Evaluate resolves the field against ac and applies the operator. It never
// panics: unknown operators, unknown fields, absent values and type mismatches
// all evaluate to false.
func (c Condition) Evaluate(ac *AccessContext) bool {
	if ac == nil {
		return false
	}
	left, ok := ParseField(c.Field).Resolve(ac)
	if !ok {
		return false
	}
	right, ok := c.resolveValue(ac)
	if !ok {
		return false
	}
	switch c.Operator {
	case OpEquals:
		return equalValues(left, right)
	case OpNotEquals:
		return !equalValues(left, right)
	case OpIn:
		list, ok := toList(right)
		return ok && memberOf(left, list)
	case OpNotIn:
		list, ok := toList(right)
		return ok && !memberOf(left, list)
	case OpGreaterThan:
		cmp, ok := orderValues(left, right)
		return ok && cmp > 0
	case OpLessThan:
		cmp, ok := orderValues(left, right)
		return ok && cmp < 0
	case OpContains:
		return containsValue(left, right)
	}
	return false
}

func (c Condition) String() string {
	switch v := c.Value.(type) {
	case string:
		if strings.HasPrefix(v, "$") {
			return fmt.Sprintf("%s %s %s", c.Field, c.Operator, v)
		}
		return fmt.Sprintf("%s %s %q", c.Field, c.Operator, v)
	case nil:
		return fmt.Sprintf("%s %s null", c.Field, c.Operator)
	}
	if list, ok := toList(c.Value); ok {
		parts := make([]string, len(list))
		for i, it := range list {
			if s, ok := it.(string); ok {
				parts[i] = strconv.Quote(s)
			} else {
				parts[i] = fmt.Sprint(it)
			}
		}
		return fmt.Sprintf("%s %s [%s]", c.Field, c.Operator, strings.Join(parts, ", "))
	}
	return fmt.Sprintf("%s %s %v", c.Field, c.Operator, c.Value)
}

func (c Condition) resolveValue(ac *AccessContext) (any, bool) {
	if s, ok := c.Value.(string); ok && len(s) > 1 && s[0] == '$' {
		return ParseField(s[1:]).Resolve(ac)
	}
	if c.Value == nil {
		return nil, false
	}
	return c.Value, true
}

// evaluateAll is the AND over conds. An empty list passes.
func evaluateAll(conds []Condition, ac *AccessContext) (bool, int) {
	for i, c := range conds {
		if !c.Evaluate(ac) {
			return false, i
		}
	}
	return true, -1
}

// UnmarshalYAML accepts the mapping form and the compact string form
// "resource.ownerId equals $user.id".
func (c *Condition) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		parsed, err := ParseCondition(node.Value)
		if err != nil {
			return err
		}
		*c = parsed
		return nil
	}
	type plain Condition
	var p plain
	if err := node.Decode(&p); err != nil {
		return err
	}
	*c = Condition(p)
	c.Value = normalizeDecoded(c.Value)
	return nil
}

// UnmarshalJSON accepts the object form and the compact string form.
func (c *Condition) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		parsed, err := ParseCondition(s)
		if err != nil {
			return err
		}
		*c = parsed
		return nil
	}
	type plain Condition
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*c = Condition(p)
	c.Value = normalizeDecoded(c.Value)
	return nil
}

// normalizeDecoded turns whole float64 values from JSON into ints so that
// round-tripped configs compare the same way as hand-built ones.
func normalizeDecoded(v any) any {
	switch vv := v.(type) {
	case float64:
		if vv == float64(int64(vv)) {
			return int(vv)
		}
	case []any:
		for i := range vv {
			vv[i] = normalizeDecoded(vv[i])
		}
	}
	return v
}

// ============================================================================
// VALUE COMPARISON
// ============================================================================

// equalValues backs equals, in and contains. Strings only equal strings and
// numbers only equal numbers; a numeric string never equals a number. Times
// accept RFC3339 strings on the other side.
func equalValues(a, b any) bool {
	if at, ok := a.(time.Time); ok {
		bt, ok := toTime(b)
		return ok && at.Equal(bt)
	}
	if bt, ok := b.(time.Time); ok {
		at, ok := toTime(a)
		return ok && at.Equal(bt)
	}
	if as, ok := a.(string); ok {
		bs, ok := b.(string)
		return ok && as == bs
	}
	if _, ok := b.(string); ok {
		return false
	}
	if ab, ok := a.(bool); ok {
		bb, ok := b.(bool)
		return ok && ab == bb
	}
	if af, ok := toNumber(a); ok {
		bf, ok := toNumber(b)
		return ok && af == bf
	}
	al, aok := toList(a)
	bl, bok := toList(b)
	if aok && bok {
		if len(al) != len(bl) {
			return false
		}
		for i := range al {
			if !equalValues(al[i], bl[i]) {
				return false
			}
		}
		return true
	}
	return false
}

// memberOf is true when v (or, for list values such as user.roles, any
// element of v) equals an element of list.
func memberOf(v any, list []any) bool {
	if vl, ok := toList(v); ok {
		for _, item := range vl {
			if memberOf(item, list) {
				return true
			}
		}
		return false
	}
	for _, item := range list {
		if equalValues(v, item) {
			return true
		}
	}
	return false
}

func containsValue(haystack, needle any) bool {
	if hs, ok := haystack.(string); ok {
		ns, ok := needle.(string)
		return ok && strings.Contains(hs, ns)
	}
	if hl, ok := toList(haystack); ok {
		for _, item := range hl {
			if equalValues(item, needle) {
				return true
			}
		}
	}
	return false
}

// orderValues compares numbers, times and strings. ok is false when the two
// values have no common ordering.
func orderValues(a, b any) (int, bool) {
	if at, ok := a.(time.Time); ok {
		bt, ok := toTime(b)
		if !ok {
			return 0, false
		}
		return at.Compare(bt), true
	}
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		switch {
		case af < bf:
			return -1, true
		case af > bf:
			return 1, true
		}
		return 0, true
	}
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		return strings.Compare(as, bs), true
	}
	return 0, false
}

// toFloat is toNumber plus numeric strings; ordering uses it.
func toFloat(v any) (float64, bool) {
	if s, ok := v.(string); ok {
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		return f, err == nil
	}
	return toNumber(v)
}

func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func toTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case *time.Time:
		if t == nil {
			return time.Time{}, false
		}
		return *t, true
	case string:
		if parsed, err := time.Parse(time.RFC3339, t); err == nil {
			return parsed, true
		}
		parsed, err := date.Parse(t)
		return parsed, err == nil
	case int64:
		return time.Unix(t, 0), true
	case int:
		return time.Unix(int64(t), 0), true
	}
	return time.Time{}, false
}

func toList(v any) ([]any, bool) {
	switch l := v.(type) {
	case []any:
		return l, true
	case []string:
		out := make([]any, len(l))
		for i := range l {
			out[i] = l[i]
		}
		return out, true
	case []int:
		out := make([]any, len(l))
		for i := range l {
			out[i] = l[i]
		}
		return out, true
	case []float64:
		out := make([]any, len(l))
		for i := range l {
			out[i] = l[i]
		}
		return out, true
	}
	return nil, false
}
