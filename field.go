package rbac

import (
	"strings"
	"sync"
)

// FieldKey enumerates every Access Context attribute a condition may read.
// Dot-paths are mapped onto this closed set once, so evaluation never walks
// arbitrary structure.
type FieldKey uint8

const (
	FieldUnknown FieldKey = iota
	FieldUserID
	FieldUserType
	FieldUserRoles
	FieldUserOrganizationID
	FieldUserDepartmentID
	FieldUserMetadata
	FieldResourceID
	FieldResourceType
	FieldResourceOwnerID
	FieldResourceOrganizationID
	FieldResourceMetadata
	FieldEnvIP
	FieldEnvUserAgent
	FieldEnvTimestamp
	FieldEnvSessionID
	FieldEnvHour
	FieldEnvWeekday
)

var fieldPaths = map[string]FieldKey{
	"user.id":                  FieldUserID,
	"user.type":                FieldUserType,
	"user.roles":               FieldUserRoles,
	"user.organizationId":      FieldUserOrganizationID,
	"user.organization_id":     FieldUserOrganizationID,
	"user.departmentId":        FieldUserDepartmentID,
	"user.department_id":       FieldUserDepartmentID,
	"resource.id":              FieldResourceID,
	"resource.type":            FieldResourceType,
	"resource.ownerId":         FieldResourceOwnerID,
	"resource.owner_id":        FieldResourceOwnerID,
	"resource.organizationId":  FieldResourceOrganizationID,
	"resource.organization_id": FieldResourceOrganizationID,
	"environment.ip":           FieldEnvIP,
	"environment.userAgent":    FieldEnvUserAgent,
	"environment.user_agent":   FieldEnvUserAgent,
	"environment.timestamp":    FieldEnvTimestamp,
	"environment.sessionId":    FieldEnvSessionID,
	"environment.session_id":   FieldEnvSessionID,
	"environment.hour":         FieldEnvHour,
	"environment.weekday":      FieldEnvWeekday,
}

var metadataPrefixes = []struct {
	prefix string
	key    FieldKey
}{
	{"user.metadata.", FieldUserMetadata},
	{"resource.metadata.", FieldResourceMetadata},
}

// FieldRef is a parsed condition field. Attr holds the metadata path for the
// metadata keys and is empty otherwise.
type FieldRef struct {
	Key  FieldKey
	Attr string
}

// maxFieldRefs bounds the memo; paths past it are parsed on every call.
const maxFieldRefs = 4096

var fieldRefs = struct {
	sync.RWMutex
	m map[string]FieldRef
}{m: make(map[string]FieldRef)}

// ParseField maps a dot-path onto a FieldRef. "env." is accepted as an alias of
// "environment.". Unrecognised paths yield FieldUnknown. Results are memoized
// per path, so conditions evaluated repeatedly parse their fields once.
func ParseField(path string) FieldRef {
	fieldRefs.RLock()
	ref, ok := fieldRefs.m[path]
	fieldRefs.RUnlock()
	if ok {
		return ref
	}
	ref = parseField(path)
	fieldRefs.Lock()
	if len(fieldRefs.m) < maxFieldRefs {
		fieldRefs.m[path] = ref
	}
	fieldRefs.Unlock()
	return ref
}

func parseField(path string) FieldRef {
	path = strings.TrimSpace(path)
	if strings.HasPrefix(path, "env.") {
		path = "environment." + path[4:]
	}
	if k, ok := fieldPaths[path]; ok {
		return FieldRef{Key: k}
	}
	for _, mp := range metadataPrefixes {
		if len(path) > len(mp.prefix) && strings.HasPrefix(path, mp.prefix) {
			return FieldRef{Key: mp.key, Attr: path[len(mp.prefix):]}
		}
	}
	return FieldRef{Key: FieldUnknown}
}

// Known reports whether the path resolved to a supported attribute.
func (f FieldRef) Known() bool { return f.Key != FieldUnknown }

// Resolve reads the attribute from ac. The second result is false when the
// attribute is absent: nil context parts, empty strings, zero timestamps and
// missing metadata keys all count as absent.
func (f FieldRef) Resolve(ac *AccessContext) (any, bool) {
	if ac == nil {
		return nil, false
	}
	switch f.Key {
	case FieldUserID:
		return nonEmpty(ac.User.ID)
	case FieldUserType:
		return nonEmpty(ac.User.Type)
	case FieldUserRoles:
		if len(ac.User.Roles) == 0 {
			return nil, false
		}
		return ac.User.Roles, true
	case FieldUserOrganizationID:
		return nonEmpty(ac.User.OrganizationID)
	case FieldUserDepartmentID:
		return nonEmpty(ac.User.DepartmentID)
	case FieldUserMetadata:
		return lookupMetadata(ac.User.Metadata, f.Attr)
	}
	if f.Key >= FieldResourceID && f.Key <= FieldResourceMetadata {
		r := ac.Resource
		if r == nil {
			return nil, false
		}
		switch f.Key {
		case FieldResourceID:
			return nonEmpty(r.ID)
		case FieldResourceType:
			return nonEmpty(r.Type)
		case FieldResourceOwnerID:
			return nonEmpty(r.OwnerID)
		case FieldResourceOrganizationID:
			return nonEmpty(r.OrganizationID)
		case FieldResourceMetadata:
			return lookupMetadata(r.Metadata, f.Attr)
		}
	}
	env := ac.Environment
	if env == nil {
		return nil, false
	}
	switch f.Key {
	case FieldEnvIP:
		return nonEmpty(env.IP)
	case FieldEnvUserAgent:
		return nonEmpty(env.UserAgent)
	case FieldEnvSessionID:
		return nonEmpty(env.SessionID)
	case FieldEnvTimestamp:
		if env.Timestamp.IsZero() {
			return nil, false
		}
		return env.Timestamp, true
	case FieldEnvHour:
		if env.Timestamp.IsZero() {
			return nil, false
		}
		return env.Timestamp.Hour(), true
	case FieldEnvWeekday:
		if env.Timestamp.IsZero() {
			return nil, false
		}
		return strings.ToLower(env.Timestamp.Weekday().String()), true
	}
	return nil, false
}

func nonEmpty(s string) (any, bool) {
	if s == "" {
		return nil, false
	}
	return s, true
}

// lookupMetadata walks nested map[string]any values along a dot-separated attr.
func lookupMetadata(m map[string]any, attr string) (any, bool) {
	if m == nil || attr == "" {
		return nil, false
	}
	var cur any = m
	for attr != "" {
		seg := attr
		if i := strings.IndexByte(attr, '.'); i >= 0 {
			seg, attr = attr[:i], attr[i+1:]
		} else {
			attr = ""
		}
		mm, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		if cur, ok = mm[seg]; !ok || cur == nil {
			return nil, false
		}
	}
	return cur, true
}
