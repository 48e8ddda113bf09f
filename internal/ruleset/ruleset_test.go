package ruleset

import (
	"testing"

	"github.com/rsyslog-go/daemon/internal/message"
	"github.com/stretchr/testify/assert"
)

func TestPriMaskEqualsAndInverse(t *testing.T) {
	m := NewPriMaskNone()
	m.SetEquals(message.FacilityUser, message.SeverityErr)

	msg := &message.Message{Facility: message.FacilityUser, Severity: message.SeverityErr}
	assert.True(t, m.Match(msg))

	msg.Severity = message.SeverityInfo
	assert.False(t, m.Match(msg))

	inv := NewPriMaskNone()
	inv.SetInverse(message.FacilityUser, message.SeverityErr)
	assert.True(t, inv.Match(msg))
	msg.Severity = message.SeverityErr
	assert.False(t, inv.Match(msg))
}

func TestPriMaskAll(t *testing.T) {
	m := NewPriMaskAll()
	msg := &message.Message{Facility: message.FacilityDaemon, Severity: message.SeverityDebug}
	assert.True(t, m.Match(msg))
}

func TestPropertyFilterOps(t *testing.T) {
	msg := &message.Message{Tag: "sshd:", MSG: []byte("Failed password")}

	contains := &PropertyFilter{Property: "msg", Op: OpContains, Value: "Failed"}
	assert.True(t, contains.Match(msg))

	negated := &PropertyFilter{Property: "msg", Op: OpContains, Value: "Accepted", Negated: true}
	assert.True(t, negated.Match(msg))

	eq := &PropertyFilter{Property: "tag", Op: OpIsEqual, Value: "sshd:"}
	assert.True(t, eq.Match(msg))

	prefix := &PropertyFilter{Property: "tag", Op: OpStartsWith, Value: "ssh"}
	assert.True(t, prefix.Match(msg))
}

func TestHostAndTagSelectors(t *testing.T) {
	msg := &message.Message{Hostname: "web01", Tag: "nginx:"}

	include := &HostSelector{Include: true, Host: "web01"}
	assert.True(t, include.Match(msg))

	exclude := &HostSelector{Include: false, Host: "web01"}
	assert.False(t, exclude.Match(msg))

	reset := &HostSelector{Host: "*"}
	assert.True(t, reset.Match(msg))

	tagSel := &TagSelector{Pattern: "nginx"}
	assert.True(t, tagSel.Match(msg))

	negTag := &TagSelector{Negated: true, Pattern: "nginx"}
	assert.False(t, negTag.Match(msg))
}

func TestDispatcherRouteAndProcessBatch(t *testing.T) {
	d := New("default")
	d.AddRule(&Rule{Action: "forward-all", Pri: NewPriMaskAll()})
	d.AddRule(&Rule{
		Action: "errors-only",
		Pri:    priMaskFor(message.FacilityUser, message.SeverityErr),
	})

	batch := []*message.Message{
		{Facility: message.FacilityUser, Severity: message.SeverityErr},
		{Facility: message.FacilityUser, Severity: message.SeverityInfo},
	}

	delivered := map[string]int{}
	d.ProcessBatch(batch, func(action string, m *message.Message) {
		delivered[action]++
	})

	assert.Equal(t, 2, delivered["forward-all"])
	assert.Equal(t, 1, delivered["errors-only"])
}

func priMaskFor(f message.Facility, sev message.Severity) *PriMask {
	m := NewPriMaskNone()
	m.SetEquals(f, sev)
	return m
}

func TestLegacyHostnameTagRewriteGatedByFlag(t *testing.T) {
	msg := &message.Message{Hostname: "app:"}
	ApplyLegacyHostnameTagRewrite(msg, false)
	assert.Equal(t, "app:", msg.Hostname)

	ApplyLegacyHostnameTagRewrite(msg, true)
	assert.Equal(t, "", msg.Hostname)
	assert.Equal(t, "app:", msg.Tag)
}
