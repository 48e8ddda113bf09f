package action

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"runtime"
	"strings"
	"sync/atomic"
	"time"

	mqttlib "github.com/eclipse/paho.mqtt.golang"
	"github.com/rsyslog-go/daemon/internal/message"
	"github.com/rsyslog-go/daemon/internal/ports"
)

// OMMQTTConfig configures the MQTT output action.
type OMMQTTConfig struct {
	Name string

	Brokers        []string
	ClientID       string
	QoS            byte
	Topic          string
	KeepAlive      time.Duration
	ConnectTimeout time.Duration
	WriteTimeout   time.Duration
	OrderMatters   bool

	TLSEnabled         bool
	CACertFile         string
	ClientCertFile     string
	ClientKeyFile      string
	TLSServerName      string
	InsecureSkipVerify bool
}

// OMMQTT publishes each message to an MQTT topic, an alternate output
// driver exercising the same transaction contract as the forwarder.
type OMMQTT struct {
	cfg    OMMQTTConfig
	logger ports.Logger

	client      mqttlib.Client
	isConnected atomic.Bool
}

var _ ports.OutputAction = (*OMMQTT)(nil)

// NewOMMQTT builds the action; the broker connection is made lazily at
// the first BeginTransaction so a down broker suspends rather than
// failing startup.
func NewOMMQTT(cfg OMMQTTConfig, logger ports.Logger) (*OMMQTT, error) {
	a := &OMMQTT{cfg: cfg, logger: logger}

	opts := mqttlib.NewClientOptions()
	for _, broker := range cfg.Brokers {
		opts.AddBroker(broker)
	}
	opts.SetClientID(cfg.ClientID)
	opts.SetCleanSession(true)
	opts.SetOrderMatters(cfg.OrderMatters)
	opts.SetKeepAlive(cfg.KeepAlive)
	opts.SetConnectTimeout(cfg.ConnectTimeout)
	opts.SetAutoReconnect(true)
	opts.SetProtocolVersion(4) // MQTT 3.1.1

	if cfg.TLSEnabled {
		tlsConf, err := createMQTTTLSConfig(cfg)
		if err != nil {
			return nil, fmt.Errorf("ommqtt: tls config: %w", err)
		}
		opts.SetTLSConfig(tlsConf)
	}

	opts.SetOnConnectHandler(func(mqttlib.Client) {
		a.isConnected.Store(true)
		if a.logger != nil {
			a.logger.Info("ommqtt connected")
		}
	})
	opts.SetConnectionLostHandler(func(_ mqttlib.Client, err error) {
		a.isConnected.Store(false)
		if a.logger != nil {
			a.logger.Warn("ommqtt connection lost", ports.Field{Key: "error", Value: err})
		}
	})

	a.client = mqttlib.NewClient(opts)
	return a, nil
}

// Name returns the action name.
func (a *OMMQTT) Name() string { return a.cfg.Name }

// BeginTransaction ensures the broker connection is up; a connect
// failure suspends the action rather than disabling it.
func (a *OMMQTT) BeginTransaction(ctx context.Context) ports.ActionStatus {
	if a.connected() {
		return ports.ActionOK
	}
	if err := a.connect(ctx); err != nil {
		if a.logger != nil {
			a.logger.Warn("ommqtt connect failed", ports.Field{Key: "error", Value: err})
		}
		return ports.ActionSuspended
	}
	return ports.ActionOK
}

// DoAction publishes one message.
func (a *OMMQTT) DoAction(ctx context.Context, m *message.Message) ports.ActionStatus {
	if !a.connected() {
		return ports.ActionSuspended
	}
	token := a.client.Publish(a.cfg.Topic, a.cfg.QoS, false, message.FormatStdFwdFmt(m))
	if err := a.waitForToken(ctx, token, a.cfg.WriteTimeout, "publish"); err != nil {
		if a.logger != nil {
			a.logger.Warn("ommqtt publish failed", ports.Field{Key: "error", Value: err})
		}
		return ports.ActionSuspended
	}
	return ports.ActionOK
}

// CommitTransaction is a no-op: QoS handling happens per publish.
func (a *OMMQTT) CommitTransaction(ctx context.Context) ports.ActionStatus {
	return ports.ActionOK
}

// HUP forces a clean reconnect so the broker address is re-resolved.
func (a *OMMQTT) HUP(ctx context.Context) error {
	if a.connected() {
		a.client.Disconnect(250)
		a.isConnected.Store(false)
	}
	return nil
}

// Close disconnects from the broker.
func (a *OMMQTT) Close() error {
	if a.client != nil {
		a.client.Disconnect(uint(a.cfg.WriteTimeout.Milliseconds()))
		a.isConnected.Store(false)
	}
	return nil
}

func (a *OMMQTT) connected() bool {
	return a.client != nil && a.client.IsConnected() && a.isConnected.Load()
}

func (a *OMMQTT) connect(ctx context.Context) error {
	token := a.client.Connect()

	waitUntil := time.Now().Add(a.cfg.ConnectTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(waitUntil) {
		waitUntil = dl
	}

	tick := pollTick(a.cfg.ConnectTimeout)
	for !token.WaitTimeout(tick) && time.Now().Before(waitUntil) && ctx.Err() == nil {
		runtime.Gosched()
	}

	if err := token.Error(); err != nil {
		return err
	}
	if !a.client.IsConnected() {
		return fmt.Errorf("ommqtt: connect timeout after %s", a.cfg.ConnectTimeout)
	}
	a.isConnected.Store(true)
	return nil
}

// waitForToken waits for a Paho token to complete, honoring both ctx and
// a max wait duration, polling with a bounded tick so shutdown is never
// stuck behind a long blocking wait.
func (a *OMMQTT) waitForToken(ctx context.Context, token mqttlib.Token, wait time.Duration, op string) error {
	deadline := time.Now().Add(wait)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}

	tick := pollTick(wait)
	for {
		if token.WaitTimeout(tick) {
			if err := token.Error(); err != nil {
				return fmt.Errorf("%s failed: %w", op, err)
			}
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("%s timeout after %s", op, wait)
		}
	}
}

// pollTick derives a polling tick from a timeout, clamped to [50ms, 500ms].
func pollTick(wait time.Duration) time.Duration {
	tick := wait / 20
	if tick < 50*time.Millisecond {
		tick = 50 * time.Millisecond
	}
	if tick > 500*time.Millisecond {
		tick = 500 * time.Millisecond
	}
	return tick
}

func createMQTTTLSConfig(cfg OMMQTTConfig) (*tls.Config, error) {
	tc := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
	}

	if cfg.CACertFile != "" {
		caCert, err := os.ReadFile(cfg.CACertFile)
		if err != nil {
			return nil, fmt.Errorf("read CA cert: %w", err)
		}
		caPool := x509.NewCertPool()
		if !caPool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("append CA cert")
		}
		tc.RootCAs = caPool
	}

	if cfg.ClientCertFile != "" && cfg.ClientKeyFile != "" {
		clientCert, err := tls.LoadX509KeyPair(cfg.ClientCertFile, cfg.ClientKeyFile)
		if err != nil {
			return nil, fmt.Errorf("load client cert: %w", err)
		}
		tc.Certificates = []tls.Certificate{clientCert}
	}

	serverName := cfg.TLSServerName
	if serverName == "" && len(cfg.Brokers) > 0 {
		serverName = brokerHost(cfg.Brokers[0])
	}
	tc.ServerName = serverName

	return tc, nil
}

// brokerHost strips the scheme and port off a broker URL.
func brokerHost(broker string) string {
	if idx := strings.Index(broker, "://"); idx != -1 {
		broker = broker[idx+3:]
	}
	if idx := strings.LastIndex(broker, ":"); idx != -1 {
		broker = broker[:idx]
	}
	return broker
}
