package stats

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTargetLabel(t *testing.T) {
	assert.Equal(t, "tcp-10.0.0.1-514", TargetLabel("tcp", "10.0.0.1", 514))
	assert.Equal(t, "udp-logs.example.com-10514", TargetLabel("udp", "logs.example.com", 10514))
}

func TestInputCountersAccumulate(t *testing.T) {
	r := NewRegistry("rsyslogd_test", "", nil)

	in := r.Input("imdocker")
	in.AddSubmitted(3)
	in.AddSubmitted(2)
	in.AddRatelimitDiscarded(1)
	in.AddCurlErrors(4)

	assert.Equal(t, uint64(5), in.Submitted())
	assert.Equal(t, uint64(1), in.RatelimitDiscarded())
	assert.Equal(t, uint64(4), in.CurlErrors())

	// Same name returns the same counter set.
	assert.Same(t, in, r.Input("imdocker"))
}

func TestTargetCountersDistinctPerLabel(t *testing.T) {
	r := NewRegistry("rsyslogd_test", "", nil)

	a := r.Target(TargetLabel("tcp", "10.0.0.1", 514))
	b := r.Target(TargetLabel("tcp", "10.0.0.2", 514))
	assert.NotSame(t, a, b)
	assert.Same(t, a, r.Target(TargetLabel("tcp", "10.0.0.1", 514)))

	a.AddBytesSent(100)
	a.AddMessagesSent(2)
}

func TestSnapshotIsValidJSONWithCounters(t *testing.T) {
	r := NewRegistry("rsyslogd_test", "", nil)

	in := r.Input("imdocker")
	in.AddSubmitted(7)
	in.AddRatelimitDiscarded(2)

	r.SetTargetTotals(func() map[string][2]uint64 {
		return map[string][2]uint64{
			"tcp-10.0.0.1-514": {4096, 32},
		}
	})

	raw := r.Snapshot(time.Unix(1700000000, 0))

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &decoded))

	assert.Equal(t, "rsyslogd_test", decoded["origin"])
	assert.EqualValues(t, 7, decoded["imdocker.submitted"])
	assert.EqualValues(t, 2, decoded["imdocker.ratelimit.discarded"])
	assert.EqualValues(t, 0, decoded["imdocker.curl.errors"])
	assert.EqualValues(t, 4096, decoded["tcp-10.0.0.1-514.bytes.sent"])
	assert.EqualValues(t, 32, decoded["tcp-10.0.0.1-514.messages.sent"])
}
