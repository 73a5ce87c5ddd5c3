package rbac

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/dgraph-io/ristretto"
)

// operatorAliases maps the symbols accepted by the compact syntax onto operators.
var operatorAliases = map[string]Operator{
	"equals":       OpEquals,
	"==":           OpEquals,
	"=":            OpEquals,
	"not_equals":   OpNotEquals,
	"!=":           OpNotEquals,
	"in":           OpIn,
	"not_in":       OpNotIn,
	"greater_than": OpGreaterThan,
	">":            OpGreaterThan,
	"less_than":    OpLessThan,
	"<":            OpLessThan,
	"contains":     OpContains,
}

// ConditionParser parses the compact "<field> <operator> <value>" form used by
// config files and the DSL. Parsed conditions are memoised in a ristretto cache
// keyed by the source text; config reloads hit the same strings repeatedly.
type ConditionParser struct {
	cache *ristretto.Cache
}

// ConditionCacheConfig sizes the parser cache. Zero values pick defaults.
type ConditionCacheConfig struct {
	NumCounters int64
	MaxCost     int64
	BufferItems int64
}

func NewConditionParser(cfg ConditionCacheConfig) (*ConditionParser, error) {
	if cfg.NumCounters <= 0 {
		cfg.NumCounters = 10_000
	}
	if cfg.MaxCost <= 0 {
		cfg.MaxCost = 1 << 20
	}
	if cfg.BufferItems <= 0 {
		cfg.BufferItems = 64
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: cfg.NumCounters,
		MaxCost:     cfg.MaxCost,
		BufferItems: cfg.BufferItems,
	})
	if err != nil {
		return nil, fmt.Errorf("condition cache: %w", err)
	}
	return &ConditionParser{cache: cache}, nil
}

var (
	defaultParserOnce sync.Once
	defaultParser     *ConditionParser
)

// ParseCondition parses s with a shared parser.
func ParseCondition(s string) (Condition, error) {
	defaultParserOnce.Do(func() {
		// the default sizes are constants ristretto always accepts
		defaultParser, _ = NewConditionParser(ConditionCacheConfig{})
	})
	return defaultParser.Parse(s)
}

// Parse turns "resource.ownerId equals $user.id" into a Condition. Values may be
// quoted strings, numbers, booleans, $field references, bare words or bracketed
// lists: user.type in ["teacher", "admin"].
func (p *ConditionParser) Parse(s string) (Condition, error) {
	s = strings.TrimSpace(s)
	if p != nil && p.cache != nil {
		if v, ok := p.cache.Get(s); ok {
			if c, ok := v.(Condition); ok {
				return copyCondition(c), nil
			}
		}
	}
	c, err := parseCondition(s)
	if err != nil {
		return Condition{}, err
	}
	if p != nil && p.cache != nil {
		p.cache.Set(s, c, int64(len(s))+1)
	}
	return copyCondition(c), nil
}

// Wait blocks until pending cache writes are visible. Tests use it.
func (p *ConditionParser) Wait() {
	if p != nil && p.cache != nil {
		p.cache.Wait()
	}
}

func copyCondition(c Condition) Condition {
	c.Value = cloneValue(c.Value)
	return c
}

func parseCondition(s string) (Condition, error) {
	field, rest := nextToken(s)
	if field == "" {
		return Condition{}, fmt.Errorf("empty condition")
	}
	opTok, rest := nextToken(rest)
	if opTok == "not" {
		var in string
		in, rest = nextToken(rest)
		if in != "in" {
			return Condition{}, fmt.Errorf("condition %q: expected 'in' after 'not'", s)
		}
		opTok = "not_in"
	}
	op, ok := operatorAliases[opTok]
	if !ok {
		return Condition{}, fmt.Errorf("condition %q: unsupported operator %q", s, opTok)
	}
	if !ParseField(field).Known() {
		return Condition{}, fmt.Errorf("condition %q: unknown field %q", s, field)
	}
	rest = strings.TrimSpace(rest)
	if rest == "" {
		return Condition{}, fmt.Errorf("condition %q: missing value", s)
	}
	val, err := parseValue(rest)
	if err != nil {
		return Condition{}, fmt.Errorf("condition %q: %w", s, err)
	}
	return Condition{Field: field, Operator: op, Value: val}, nil
}

func nextToken(s string) (string, string) {
	s = strings.TrimLeft(s, " \t")
	i := strings.IndexAny(s, " \t")
	if i < 0 {
		return s, ""
	}
	return s[:i], s[i+1:]
}

func parseValue(s string) (any, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "[") {
		if !strings.HasSuffix(s, "]") {
			return nil, fmt.Errorf("unterminated list %q", s)
		}
		inner := strings.TrimSpace(s[1 : len(s)-1])
		out := make([]any, 0)
		if inner == "" {
			return out, nil
		}
		for _, part := range splitList(inner) {
			v, err := parseScalar(part)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	}
	return parseScalar(s)
}

func parseScalar(s string) (any, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("empty value")
	}
	if s[0] == '"' || s[0] == '\'' {
		if len(s) < 2 || s[len(s)-1] != s[0] {
			return nil, fmt.Errorf("unterminated string %s", s)
		}
		if s[0] == '"' {
			return strconv.Unquote(s)
		}
		return s[1 : len(s)-1], nil
	}
	switch s {
	case "true":
		return true, nil
	case "false":
		return false, nil
	}
	if i, err := strconv.Atoi(s); err == nil {
		return i, nil
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f, nil
	}
	return s, nil
}

// splitList splits on commas outside quotes. Inside quotes a backslash
// escapes the next byte, matching strconv.Quote output.
func splitList(s string) []string {
	var (
		parts []string
		quote byte
		start int
	)
	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch {
		case quote != 0:
			if ch == '\\' {
				i++
			} else if ch == quote {
				quote = 0
			}
		case ch == '"' || ch == '\'':
			quote = ch
		case ch == ',':
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}
	return append(parts, s[start:])
}
