package action

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPollTickClamping(t *testing.T) {
	assert.Equal(t, 50*time.Millisecond, pollTick(0))
	assert.Equal(t, 50*time.Millisecond, pollTick(100*time.Millisecond))
	assert.Equal(t, 250*time.Millisecond, pollTick(5*time.Second))
	assert.Equal(t, 500*time.Millisecond, pollTick(time.Minute))
}

func TestBrokerHost(t *testing.T) {
	assert.Equal(t, "localhost", brokerHost("tcp://localhost:1883"))
	assert.Equal(t, "broker.example.com", brokerHost("ssl://broker.example.com:8883"))
	assert.Equal(t, "bare-host", brokerHost("bare-host"))
	assert.Equal(t, "host", brokerHost("host:1883"))
}

func TestCreateMQTTTLSConfigDerivesServerName(t *testing.T) {
	cfg := OMMQTTConfig{
		TLSEnabled: true,
		Brokers:    []string{"ssl://broker.example.com:8883"},
	}
	tc, err := createMQTTTLSConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, "broker.example.com", tc.ServerName)
	assert.EqualValues(t, 0x0303, tc.MinVersion) // TLS 1.2 floor
	assert.False(t, tc.InsecureSkipVerify)
}

func TestCreateMQTTTLSConfigExplicitServerNameWins(t *testing.T) {
	cfg := OMMQTTConfig{
		TLSEnabled:    true,
		Brokers:       []string{"ssl://broker.example.com:8883"},
		TLSServerName: "override.example.com",
	}
	tc, err := createMQTTTLSConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, "override.example.com", tc.ServerName)
}

func TestCreateMQTTTLSConfigMissingCAFails(t *testing.T) {
	cfg := OMMQTTConfig{
		TLSEnabled: true,
		CACertFile: "/nonexistent/ca.pem",
	}
	_, err := createMQTTTLSConfig(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read CA cert")
}

func TestNewOMMQTTBuildsWithoutConnecting(t *testing.T) {
	a, err := NewOMMQTT(OMMQTTConfig{
		Name:           "ommqtt",
		Brokers:        []string{"tcp://localhost:1883"},
		ClientID:       "test-client",
		QoS:            1,
		Topic:          "syslog",
		KeepAlive:      30 * time.Second,
		ConnectTimeout: time.Second,
		WriteTimeout:   time.Second,
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, "ommqtt", a.Name())
	assert.False(t, a.connected(), "construction must not dial the broker")
	require.NoError(t, a.Close())
}
