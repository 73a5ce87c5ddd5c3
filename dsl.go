package rbac

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"
)

// DSL Syntax:
// permission <id> <resource> <action> [desc:"<text>"] [when:"<condition>"]...
// role <id> <name> [rank:<n>] [perms:<id,id>] [desc:"<text>"] [system] [when:"<condition>"]...
// assign <identity> <role,role>
// engine seed_defaults=<bool> type:<user_type>=<role>
//
// Values containing spaces are quoted with " or '; inside quotes a backslash
// escapes the next character. Conditions use the compact
// form accepted by ParseCondition, e.g. when:'resource.ownerId equals $user.id'.

type DSLParser struct {
	line int
}

func NewDSLParser() *DSLParser {
	return &DSLParser{}
}

type DSLEncoder struct {
	buf []byte
	err error
}

func NewDSLEncoder() *DSLEncoder {
	return &DSLEncoder{buf: make([]byte, 0, 4096)}
}

// Encode writes cfg as DSL. Values that no DSL line can carry (line breaks,
// commas inside list ids, '=' in type mapping values) are rejected.
func (e *DSLEncoder) Encode(cfg *Config) ([]byte, error) {
	e.buf = e.buf[:0]
	e.err = nil
	var tmp [20]byte

	if cfg.Engine.SeedDefaults || len(cfg.Engine.TypeMapping) > 0 {
		e.buf = append(e.buf, "engine"...)
		if cfg.Engine.SeedDefaults {
			e.buf = append(e.buf, " seed_defaults=true"...)
		}
		types := make([]string, 0, len(cfg.Engine.TypeMapping))
		for t := range cfg.Engine.TypeMapping {
			types = append(types, t)
		}
		sort.Strings(types)
		for _, t := range types {
			role := cfg.Engine.TypeMapping[t]
			if strings.Contains(role, "=") {
				e.fail(fmt.Errorf("type mapping %s: role %q contains '='", t, role))
			}
			e.buf = append(e.buf, " type:"...)
			e.token(t + "=" + role)
		}
		e.buf = append(e.buf, '\n')
	}

	for _, p := range cfg.Permissions {
		e.buf = append(e.buf, "permission "...)
		e.token(p.ID)
		e.buf = append(e.buf, ' ')
		e.token(p.Resource)
		e.buf = append(e.buf, ' ')
		e.token(p.Action)
		if p.Description != "" {
			e.buf = append(e.buf, " desc:"...)
			e.token(p.Description)
		}
		e.appendConditions(p.Conditions)
		e.buf = append(e.buf, '\n')
	}

	for _, r := range cfg.Roles {
		e.buf = append(e.buf, "role "...)
		e.token(r.ID)
		e.buf = append(e.buf, ' ')
		e.token(r.Name)
		e.buf = append(e.buf, " rank:"...)
		e.buf = append(e.buf, strconv.AppendInt(tmp[:0], int64(r.Hierarchy), 10)...)
		if len(r.Permissions) > 0 {
			e.buf = append(e.buf, " perms:"...)
			e.idList(r.Permissions)
		}
		if r.Description != "" {
			e.buf = append(e.buf, " desc:"...)
			e.token(r.Description)
		}
		if r.IsSystem {
			e.buf = append(e.buf, " system"...)
		}
		e.appendConditions(r.Conditions)
		e.buf = append(e.buf, '\n')
	}

	for _, a := range cfg.Assignments {
		if len(a.Roles) == 0 {
			continue
		}
		e.buf = append(e.buf, "assign "...)
		e.token(a.Identity)
		e.buf = append(e.buf, ' ')
		e.idList(a.Roles)
		e.buf = append(e.buf, '\n')
	}

	if e.err != nil {
		return nil, e.err
	}
	out := make([]byte, len(e.buf))
	copy(out, e.buf)
	return out, nil
}

func (e *DSLEncoder) appendConditions(conds []Condition) {
	for _, c := range conds {
		e.buf = append(e.buf, " when:"...)
		e.token(c.String())
	}
}

func (e *DSLEncoder) fail(err error) {
	if e.err == nil {
		e.err = err
	}
}

func (e *DSLEncoder) token(s string) {
	if strings.ContainsAny(s, "\r\n") {
		e.fail(fmt.Errorf("value %q contains a line break", s))
	}
	e.buf = appendQuoted(e.buf, s)
}

func (e *DSLEncoder) idList(ids []string) {
	for _, id := range ids {
		if id == "" || strings.Contains(id, ",") {
			e.fail(fmt.Errorf("id %q cannot be written in a comma list", id))
		}
	}
	e.token(strings.Join(ids, ","))
}

// appendQuoted writes s bare when it has no blanks, quotes or backslashes.
// Otherwise it wraps s in the quote character s does not contain (double
// quotes when it has both) and backslash-escapes that quote and backslashes.
func appendQuoted(buf []byte, s string) []byte {
	if s != "" && !strings.ContainsAny(s, " \t\"'\\") {
		return append(buf, s...)
	}
	q := byte('"')
	if strings.ContainsRune(s, '"') && !strings.ContainsRune(s, '\'') {
		q = '\''
	}
	buf = append(buf, q)
	for i := 0; i < len(s); i++ {
		if s[i] == q || s[i] == '\\' {
			buf = append(buf, '\\')
		}
		buf = append(buf, s[i])
	}
	return append(buf, q)
}

func (p *DSLParser) Parse(data []byte) (*Config, error) {
	cfg := &Config{
		Version:     1,
		Permissions: make([]*Permission, 0, 32),
		Roles:       make([]*Role, 0, 8),
		Assignments: make([]Assignment, 0, 16),
	}

	p.line = 0
	start := 0
	for i := 0; i <= len(data); i++ {
		if i == len(data) || data[i] == '\n' {
			p.line++
			line := bytes.TrimSpace(data[start:i])
			start = i + 1

			if len(line) == 0 || line[0] == '#' {
				continue
			}

			parts, err := splitLineBytes(line)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", p.line, err)
			}
			if len(parts) == 0 {
				continue
			}

			switch parts[0] {
			case "permission":
				err = p.parsePermission(cfg, parts[1:])
			case "role":
				err = p.parseRole(cfg, parts[1:])
			case "assign":
				err = p.parseAssign(cfg, parts[1:])
			case "engine":
				err = p.parseEngine(cfg, parts[1:])
			default:
				err = fmt.Errorf("unknown directive: %s", parts[0])
			}
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", p.line, err)
			}
		}
	}

	return cfg, nil
}

// splitLineBytes splits on blanks outside quotes. A quote may open mid-token
// (when:"a b") and is stripped from the result. Inside quotes a backslash
// escapes the next byte.
func splitLineBytes(line []byte) ([]string, error) {
	parts := make([]string, 0, 8)
	var (
		cur     []byte
		quote   byte
		inWord  bool
		escaped bool
	)
	for _, ch := range line {
		switch {
		case escaped:
			cur = append(cur, ch)
			escaped = false
		case quote != 0:
			switch ch {
			case '\\':
				escaped = true
			case quote:
				quote = 0
			default:
				cur = append(cur, ch)
			}
		case ch == '"' || ch == '\'':
			quote = ch
			inWord = true
		case ch == ' ' || ch == '\t':
			if inWord {
				parts = append(parts, string(cur))
				cur = cur[:0]
				inWord = false
			}
		default:
			cur = append(cur, ch)
			inWord = true
		}
	}
	if quote != 0 || escaped {
		return nil, fmt.Errorf("unterminated quote")
	}
	if inWord {
		parts = append(parts, string(cur))
	}
	return parts, nil
}

func (p *DSLParser) parsePermission(cfg *Config, parts []string) error {
	if len(parts) < 3 {
		return fmt.Errorf("permission requires: <id> <resource> <action> [desc:<text>] [when:<condition>]")
	}
	perm := &Permission{
		ID:       parts[0],
		Resource: parts[1],
		Action:   parts[2],
	}
	for _, opt := range parts[3:] {
		switch {
		case strings.HasPrefix(opt, "desc:"):
			perm.Description = opt[5:]
		case strings.HasPrefix(opt, "when:"):
			c, err := ParseCondition(opt[5:])
			if err != nil {
				return err
			}
			perm.Conditions = append(perm.Conditions, c)
		default:
			return fmt.Errorf("permission %s: unknown option %q", perm.ID, opt)
		}
	}
	cfg.Permissions = append(cfg.Permissions, perm)
	return nil
}

func (p *DSLParser) parseRole(cfg *Config, parts []string) error {
	if len(parts) < 2 {
		return fmt.Errorf("role requires: <id> <name> [rank:<n>] [perms:<ids>] [desc:<text>] [system] [when:<condition>]")
	}
	role := &Role{
		ID:          parts[0],
		Name:        parts[1],
		Permissions: []string{},
	}
	for _, opt := range parts[2:] {
		switch {
		case opt == "system":
			role.IsSystem = true
		case strings.HasPrefix(opt, "rank:"):
			n, err := strconv.Atoi(opt[5:])
			if err != nil {
				return fmt.Errorf("role %s: invalid rank %q", role.ID, opt[5:])
			}
			role.Hierarchy = n
		case strings.HasPrefix(opt, "perms:"):
			role.Permissions = splitIDs(opt[6:])
		case strings.HasPrefix(opt, "desc:"):
			role.Description = opt[5:]
		case strings.HasPrefix(opt, "when:"):
			c, err := ParseCondition(opt[5:])
			if err != nil {
				return err
			}
			role.Conditions = append(role.Conditions, c)
		default:
			return fmt.Errorf("role %s: unknown option %q", role.ID, opt)
		}
	}
	cfg.Roles = append(cfg.Roles, role)
	return nil
}

func (p *DSLParser) parseAssign(cfg *Config, parts []string) error {
	if len(parts) < 2 {
		return fmt.Errorf("assign requires: <identity> <role,role>")
	}
	cfg.Assignments = append(cfg.Assignments, Assignment{
		Identity: parts[0],
		Roles:    splitIDs(strings.Join(parts[1:], ",")),
	})
	return nil
}

func (p *DSLParser) parseEngine(cfg *Config, parts []string) error {
	for _, kv := range parts {
		idx := strings.LastIndex(kv, "=")
		if idx == -1 {
			return fmt.Errorf("engine option %q: expected key=value", kv)
		}
		key, val := kv[:idx], kv[idx+1:]
		switch {
		case key == "seed_defaults":
			b, err := strconv.ParseBool(val)
			if err != nil {
				return fmt.Errorf("engine seed_defaults: %w", err)
			}
			cfg.Engine.SeedDefaults = b
		case strings.HasPrefix(key, "type:"):
			if cfg.Engine.TypeMapping == nil {
				cfg.Engine.TypeMapping = make(map[string]string)
			}
			cfg.Engine.TypeMapping[key[5:]] = val
		default:
			return fmt.Errorf("unknown engine option: %s", key)
		}
	}
	return nil
}

func splitIDs(s string) []string {
	out := make([]string, 0, 4)
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			if id := strings.TrimSpace(s[start:i]); id != "" {
				out = append(out, id)
			}
			start = i + 1
		}
	}
	return out
}

// Binary format: magic, format version, config version, then tagged sections
// of <tag:1><len:4><payload>. Conditions travel in their compact string form.
const (
	protoMagic   = 0x52424143 // "RBAC"
	protoVersion = 1
)

const (
	sectionPermissions byte = iota + 1
	sectionRoles
	sectionAssignments
	sectionEngine
)

type BinaryEncoder struct {
	buf *bytes.Buffer
	err error
}

func NewBinaryEncoder() *BinaryEncoder {
	return &BinaryEncoder{buf: &bytes.Buffer{}}
}

// Encode fails when a string, list or section exceeds the width of its
// length prefix.
func (e *BinaryEncoder) Encode(cfg *Config) ([]byte, error) {
	e.buf.Reset()
	e.err = nil
	binary.Write(e.buf, binary.LittleEndian, uint32(protoMagic))
	binary.Write(e.buf, binary.LittleEndian, uint16(protoVersion))
	binary.Write(e.buf, binary.LittleEndian, cfg.Version)

	e.writeSection(sectionPermissions, func() { e.encodePermissions(cfg.Permissions) })
	e.writeSection(sectionRoles, func() { e.encodeRoles(cfg.Roles) })
	e.writeSection(sectionAssignments, func() { e.encodeAssignments(cfg.Assignments) })
	e.writeSection(sectionEngine, func() { e.encodeEngine(&cfg.Engine) })
	if e.err != nil {
		return nil, e.err
	}

	out := make([]byte, e.buf.Len())
	copy(out, e.buf.Bytes())
	return out, nil
}

func (e *BinaryEncoder) writeSection(tag byte, fn func()) {
	tmp := &bytes.Buffer{}
	oldBuf := e.buf
	e.buf = tmp
	fn()
	e.buf = oldBuf
	if uint64(tmp.Len()) > math.MaxUint32 {
		e.fail(fmt.Errorf("section %d: %d bytes exceeds the format limit", tag, tmp.Len()))
		return
	}
	e.buf.WriteByte(tag)
	binary.Write(e.buf, binary.LittleEndian, uint32(tmp.Len()))
	e.buf.Write(tmp.Bytes())
}

func (e *BinaryEncoder) fail(err error) {
	if e.err == nil {
		e.err = err
	}
}

// writeCount writes n as a uint16 prefix.
func (e *BinaryEncoder) writeCount(n int, what string) {
	if n > math.MaxUint16 {
		e.fail(fmt.Errorf("%s: %d entries exceeds the format limit of %d", what, n, math.MaxUint16))
		n = 0
	}
	binary.Write(e.buf, binary.LittleEndian, uint16(n))
}

func (e *BinaryEncoder) writeStr(s string) {
	if len(s) > math.MaxUint16 {
		e.fail(fmt.Errorf("string of %d bytes exceeds the format limit of %d", len(s), math.MaxUint16))
		s = ""
	}
	binary.Write(e.buf, binary.LittleEndian, uint16(len(s)))
	e.buf.WriteString(s)
}

func (e *BinaryEncoder) writeStrs(ss []string) {
	e.writeCount(len(ss), "string list")
	for _, s := range ss {
		e.writeStr(s)
	}
}

func (e *BinaryEncoder) writeConditions(conds []Condition) {
	if len(conds) > math.MaxUint8 {
		e.fail(fmt.Errorf("%d conditions exceeds the format limit of %d", len(conds), math.MaxUint8))
		conds = nil
	}
	binary.Write(e.buf, binary.LittleEndian, uint8(len(conds)))
	for _, c := range conds {
		e.writeStr(c.String())
	}
}

func (e *BinaryEncoder) encodePermissions(perms []*Permission) {
	e.writeCount(len(perms), "permissions")
	for _, p := range perms {
		e.writeStr(p.ID)
		e.writeStr(p.Resource)
		e.writeStr(p.Action)
		e.writeStr(p.Description)
		e.writeConditions(p.Conditions)
	}
}

func (e *BinaryEncoder) encodeRoles(roles []*Role) {
	e.writeCount(len(roles), "roles")
	for _, r := range roles {
		e.writeStr(r.ID)
		e.writeStr(r.Name)
		e.writeStr(r.Description)
		binary.Write(e.buf, binary.LittleEndian, int32(r.Hierarchy))
		if r.IsSystem {
			e.buf.WriteByte(1)
		} else {
			e.buf.WriteByte(0)
		}
		e.writeStrs(r.Permissions)
		e.writeConditions(r.Conditions)
	}
}

func (e *BinaryEncoder) encodeAssignments(assignments []Assignment) {
	e.writeCount(len(assignments), "assignments")
	for _, a := range assignments {
		e.writeStr(a.Identity)
		e.writeStrs(a.Roles)
	}
}

func (e *BinaryEncoder) encodeEngine(cfg *EngineConfig) {
	if cfg.SeedDefaults {
		e.buf.WriteByte(1)
	} else {
		e.buf.WriteByte(0)
	}
	types := make([]string, 0, len(cfg.TypeMapping))
	for t := range cfg.TypeMapping {
		types = append(types, t)
	}
	sort.Strings(types)
	e.writeCount(len(types), "type mapping")
	for _, t := range types {
		e.writeStr(t)
		e.writeStr(cfg.TypeMapping[t])
	}
}

type BinaryDecoder struct {
	r *bytes.Reader
}

func NewBinaryDecoder(data []byte) *BinaryDecoder {
	return &BinaryDecoder{r: bytes.NewReader(data)}
}

func (d *BinaryDecoder) Decode() (*Config, error) {
	var magic uint32
	var ver, cfgVer uint16
	if err := binary.Read(d.r, binary.LittleEndian, &magic); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if magic != protoMagic {
		return nil, fmt.Errorf("invalid magic: %x", magic)
	}
	if err := binary.Read(d.r, binary.LittleEndian, &ver); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if ver != protoVersion {
		return nil, fmt.Errorf("unsupported binary version %d", ver)
	}
	if err := binary.Read(d.r, binary.LittleEndian, &cfgVer); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	cfg := &Config{Version: cfgVer}

	for {
		var tag byte
		if err := binary.Read(d.r, binary.LittleEndian, &tag); err == io.EOF {
			break
		} else if err != nil {
			return nil, err
		}

		var size uint32
		if err := binary.Read(d.r, binary.LittleEndian, &size); err != nil {
			return nil, fmt.Errorf("section %d: %w", tag, err)
		}
		if int64(size) > int64(d.r.Len()) {
			return nil, fmt.Errorf("section %d: size %d exceeds remaining %d bytes", tag, size, d.r.Len())
		}
		data := make([]byte, size)
		if _, err := io.ReadFull(d.r, data); err != nil {
			return nil, fmt.Errorf("section %d: %w", tag, err)
		}
		sr := &sectionReader{r: bytes.NewReader(data)}

		switch tag {
		case sectionPermissions:
			cfg.Permissions = sr.permissions()
		case sectionRoles:
			cfg.Roles = sr.roles()
		case sectionAssignments:
			cfg.Assignments = sr.assignments()
		case sectionEngine:
			cfg.Engine = sr.engine()
		}
		if sr.err != nil {
			return nil, fmt.Errorf("section %d: %w", tag, sr.err)
		}
	}

	return cfg, nil
}

// sectionReader keeps the first read error so decode loops stay linear.
type sectionReader struct {
	r   *bytes.Reader
	err error
}

func (s *sectionReader) read(v any) {
	if s.err != nil {
		return
	}
	s.err = binary.Read(s.r, binary.LittleEndian, v)
}

func (s *sectionReader) str() string {
	var l uint16
	s.read(&l)
	if s.err != nil {
		return ""
	}
	b := make([]byte, l)
	if _, err := io.ReadFull(s.r, b); err != nil {
		s.err = err
		return ""
	}
	return string(b)
}

func (s *sectionReader) strs() []string {
	var n uint16
	s.read(&n)
	out := make([]string, 0, n)
	for i := 0; i < int(n) && s.err == nil; i++ {
		out = append(out, s.str())
	}
	return out
}

func (s *sectionReader) flag() bool {
	var b uint8
	s.read(&b)
	return b == 1
}

func (s *sectionReader) conditions() []Condition {
	var n uint8
	s.read(&n)
	if n == 0 {
		return nil
	}
	out := make([]Condition, 0, n)
	for i := 0; i < int(n) && s.err == nil; i++ {
		c, err := ParseCondition(s.str())
		if err != nil && s.err == nil {
			s.err = err
		}
		out = append(out, c)
	}
	return out
}

func (s *sectionReader) permissions() []*Permission {
	var n uint16
	s.read(&n)
	out := make([]*Permission, 0, n)
	for i := 0; i < int(n) && s.err == nil; i++ {
		out = append(out, &Permission{
			ID:          s.str(),
			Resource:    s.str(),
			Action:      s.str(),
			Description: s.str(),
			Conditions:  s.conditions(),
		})
	}
	return out
}

func (s *sectionReader) roles() []*Role {
	var n uint16
	s.read(&n)
	out := make([]*Role, 0, n)
	for i := 0; i < int(n) && s.err == nil; i++ {
		r := &Role{ID: s.str(), Name: s.str(), Description: s.str()}
		var rank int32
		s.read(&rank)
		r.Hierarchy = int(rank)
		r.IsSystem = s.flag()
		r.Permissions = s.strs()
		r.Conditions = s.conditions()
		out = append(out, r)
	}
	return out
}

func (s *sectionReader) assignments() []Assignment {
	var n uint16
	s.read(&n)
	out := make([]Assignment, 0, n)
	for i := 0; i < int(n) && s.err == nil; i++ {
		out = append(out, Assignment{Identity: s.str(), Roles: s.strs()})
	}
	return out
}

func (s *sectionReader) engine() EngineConfig {
	cfg := EngineConfig{SeedDefaults: s.flag()}
	var n uint16
	s.read(&n)
	if n > 0 {
		cfg.TypeMapping = make(map[string]string, n)
	}
	for i := 0; i < int(n) && s.err == nil; i++ {
		t := s.str()
		cfg.TypeMapping[t] = s.str()
	}
	return cfg
}
