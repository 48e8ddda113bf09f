// Package ruleset implements the filter/dispatch layer: priority
// mask, property filter, host selector, and tag selector, evaluated per
// message per action and routed to each action whose filters all pass.
package ruleset

import (
	"strings"

	"github.com/rsyslog-go/daemon/internal/message"
)

// PriMask is a 24-entry table indexed by facility; each entry is a
// bitmask over severities 0..7 plus a sentinel bit for "no-pri" messages.
type PriMask struct {
	table [24]uint16
}

const noPriBit uint16 = 1 << 8

// NewPriMaskAll returns a mask matching every facility/severity ("*").
func NewPriMaskAll() *PriMask {
	m := &PriMask{}
	for f := range m.table {
		m.table[f] = 0xFF | noPriBit
	}
	return m
}

// NewPriMaskNone returns a mask matching nothing.
func NewPriMaskNone() *PriMask {
	return &PriMask{}
}

// SetFacilityNone clears all severities for a facility ("facility.none").
func (p *PriMask) SetFacilityNone(f message.Facility) {
	if int(f) < len(p.table) {
		p.table[f] = 0
	}
}

// SetEquals sets exactly one severity for a facility ("=pri").
func (p *PriMask) SetEquals(f message.Facility, sev message.Severity) {
	if int(f) < len(p.table) {
		p.table[f] |= 1 << uint(sev)
	}
}

// SetInverse sets every severity except sev for a facility ("!pri").
func (p *PriMask) SetInverse(f message.Facility, sev message.Severity) {
	if int(f) >= len(p.table) {
		return
	}
	for s := message.Severity(0); s <= 7; s++ {
		if s != sev {
			p.table[f] |= 1 << uint(s)
		}
	}
}

// SetAtOrAbove sets sev and every more severe (numerically lower) level,
// the conventional "facility.severity" meaning for a single entry without
// "=" or "!".
func (p *PriMask) SetAtOrAbove(f message.Facility, sev message.Severity) {
	if int(f) >= len(p.table) {
		return
	}
	for s := message.Severity(0); s <= sev; s++ {
		p.table[f] |= 1 << uint(s)
	}
}

// Match reports whether m's facility/severity passes this mask.
func (p *PriMask) Match(m *message.Message) bool {
	if int(m.Facility) >= len(p.table) {
		return false
	}
	return p.table[m.Facility]&(1<<uint(m.Severity)) != 0
}

// PropertyOp is the comparison operator for a property filter.
type PropertyOp int

const (
	OpNop PropertyOp = iota
	OpContains
	OpIsEqual
	OpStartsWith
)

// PropertyFilter implements (property-name, op, value, negated) with
// case-sensitive comparison on decoded property strings.
type PropertyFilter struct {
	Property string
	Op       PropertyOp
	Value    string
	Negated  bool
}

// Match evaluates the filter against m.
func (f *PropertyFilter) Match(m *message.Message) bool {
	if f.Op == OpNop {
		return true
	}
	actual := propertyValue(m, f.Property)

	var matched bool
	switch f.Op {
	case OpContains:
		matched = strings.Contains(actual, f.Value)
	case OpIsEqual:
		matched = actual == f.Value
	case OpStartsWith:
		matched = strings.HasPrefix(actual, f.Value)
	}

	if f.Negated {
		return !matched
	}
	return matched
}

func propertyValue(m *message.Message, name string) string {
	switch name {
	case "msg":
		return string(m.MSG)
	case "hostname":
		return m.Hostname
	case "app-name", "programname":
		return m.AppName
	case "syslogtag", "tag":
		return m.Tag
	case "procid":
		return m.ProcID
	case "msgid":
		return m.MsgID
	case "inputname":
		return m.InputName
	default:
		if v, ok := m.Metadata[name]; ok {
			return v
		}
		return ""
	}
}

// HostSelector implements optional include (+host) or exclude (-host)
// with reset ("*") producing no comparison.
type HostSelector struct {
	Include bool
	Host    string // empty or "*" disables the comparison
}

// Match reports whether m's hostname satisfies the selector.
func (h *HostSelector) Match(m *message.Message) bool {
	if h.Host == "" || h.Host == "*" {
		return true
	}
	eq := m.Hostname == h.Host
	if h.Include {
		return eq
	}
	return !eq
}

// TagSelector implements program-name (tag) selection with "!" negation,
// similar semantics to HostSelector.
type TagSelector struct {
	Negated bool
	Pattern string // empty or "*" disables the comparison
}

// Match reports whether m's tag satisfies the selector.
func (t *TagSelector) Match(m *message.Message) bool {
	if t.Pattern == "" || t.Pattern == "*" {
		return true
	}
	eq := strings.HasPrefix(m.Tag, t.Pattern)
	if t.Negated {
		return !eq
	}
	return eq
}

// Rule binds a set of filters to one action name; a message matches the
// rule only if every configured filter passes.
type Rule struct {
	Action   string
	Host     *HostSelector
	Tag      *TagSelector
	Pri      *PriMask
	Property *PropertyFilter
}

// Match evaluates host-selector -> program-selector -> main filter in
// order, short-circuiting on the first failure.
func (r *Rule) Match(m *message.Message) bool {
	if r.Host != nil && !r.Host.Match(m) {
		return false
	}
	if r.Tag != nil && !r.Tag.Match(m) {
		return false
	}
	if r.Pri != nil && !r.Pri.Match(m) {
		return false
	}
	if r.Property != nil && !r.Property.Match(m) {
		return false
	}
	return true
}

// Dispatcher holds a named collection of rules and routes batches of
// messages to the actions whose rule matches.
type Dispatcher struct {
	Name  string
	Rules []*Rule
}

// New constructs an empty, named ruleset.
func New(name string) *Dispatcher {
	return &Dispatcher{Name: name}
}

// AddRule appends a rule to the dispatcher.
func (d *Dispatcher) AddRule(r *Rule) {
	d.Rules = append(d.Rules, r)
}

// Route evaluates every rule against m and returns the action name of
// each rule whose filter passed, in rule order; a name appears once per
// matching rule.
func (d *Dispatcher) Route(m *message.Message) []string {
	var actions []string
	for _, r := range d.Rules {
		if r.Match(m) {
			actions = append(actions, r.Action)
		}
	}
	return actions
}

// ProcessBatch evaluates every message in batch against the ruleset and
// invokes deliver(action, msg) for each (message, matching action) pair,
// preserving batch order.
func (d *Dispatcher) ProcessBatch(batch []*message.Message, deliver func(action string, m *message.Message)) {
	for _, m := range batch {
		for _, action := range d.Route(m) {
			deliver(action, m)
		}
	}
}

// legacyHostnameTagRewrite rewrites HOSTNAME into TAG when the hostname
// position holds TAG-like characters (a trailing ':' before the first
// space). Off by default; only applied when explicitly enabled.
func legacyHostnameTagRewrite(m *message.Message) {
	if m.Hostname == "" {
		return
	}
	if strings.HasSuffix(m.Hostname, ":") {
		m.Tag = m.Hostname
		m.Hostname = ""
	}
}

// ApplyLegacyHostnameTagRewrite runs legacyHostnameTagRewrite when enabled
// is true; exported so the ruleset's caller can opt in via
// configuration.
func ApplyLegacyHostnameTagRewrite(m *message.Message, enabled bool) {
	if enabled {
		legacyHostnameTagRewrite(m)
	}
}
