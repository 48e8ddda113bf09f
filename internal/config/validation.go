package config

import (
	"fmt"
)

// Validate validates the configuration
func (c *Config) Validate() error {
	if err := validateApp(c); err != nil {
		return err
	}
	if err := validateQueue(c); err != nil {
		return err
	}
	if err := validateDiskQueue(c); err != nil {
		return err
	}
	if err := validateRatelimit(c); err != nil {
		return err
	}
	if err := validateRuleset(c); err != nil {
		return err
	}
	if err := validateForwarder(c); err != nil {
		return err
	}
	if err := validateMQTTOutput(c); err != nil {
		return err
	}
	if err := validateDockerInput(c); err != nil {
		return err
	}
	if err := validateLifecycle(c); err != nil {
		return err
	}
	if err := validateStats(c); err != nil {
		return err
	}
	return validateHealth(c)
}

func validateApp(c *Config) error {
	if c.App.Name == "" {
		return fmt.Errorf("app name must not be empty")
	}
	switch c.App.LogLevel {
	case "trace", "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return fmt.Errorf("invalid log level %q", c.App.LogLevel)
	}
	switch c.App.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log format %q", c.App.LogFormat)
	}
	if c.App.ValidateLevel < 0 {
		return fmt.Errorf("validate level must not be negative")
	}
	return nil
}

func validateQueue(c *Config) error {
	q := &c.Queue
	switch q.Type {
	case "direct", "linked-list", "fixed-array", "disk", "disk-assisted":
	default:
		return fmt.Errorf("invalid queue type %q", q.Type)
	}
	if q.Capacity <= 0 {
		return fmt.Errorf("queue capacity must be positive")
	}
	if q.HighWater > q.Capacity {
		return fmt.Errorf("queue high-water %d exceeds capacity %d", q.HighWater, q.Capacity)
	}
	if q.LowWater > q.HighWater {
		return fmt.Errorf("queue low-water %d exceeds high-water %d", q.LowWater, q.HighWater)
	}
	if q.DiscardMark > q.Capacity {
		return fmt.Errorf("queue discard-mark %d exceeds capacity %d", q.DiscardMark, q.Capacity)
	}
	if q.DiscardSeverity < -1 || q.DiscardSeverity > 7 {
		return fmt.Errorf("queue discard-severity must be -1..7 (-1 disables)")
	}
	if q.NumWorkers <= 0 {
		return fmt.Errorf("queue worker count must be positive")
	}
	if q.MaxWorkers < q.NumWorkers {
		return fmt.Errorf("queue max workers %d below worker count %d", q.MaxWorkers, q.NumWorkers)
	}
	if q.BatchSize <= 0 {
		return fmt.Errorf("queue batch size must be positive")
	}
	if err := validateWindowHour(q.DequeueWindowBegin); err != nil {
		return fmt.Errorf("dequeue window begin: %w", err)
	}
	if err := validateWindowHour(q.DequeueWindowEnd); err != nil {
		return fmt.Errorf("dequeue window end: %w", err)
	}
	if (q.DequeueWindowBegin < 0) != (q.DequeueWindowEnd < 0) {
		return fmt.Errorf("dequeue window must set both begin and end hours, or neither")
	}
	return nil
}

func validateWindowHour(h int) error {
	if h < -1 || h > 23 {
		return fmt.Errorf("hour %d out of range (-1 disables, else 0..23)", h)
	}
	return nil
}

func validateDiskQueue(c *Config) error {
	if c.Queue.Type != "disk" && c.Queue.Type != "disk-assisted" {
		return nil
	}
	d := &c.DiskQueue
	if len(d.Addresses) == 0 {
		return fmt.Errorf("disk-assisted queue requires at least one backend address")
	}
	if d.Stream == "" {
		return fmt.Errorf("disk-assisted queue requires a stream name")
	}
	if d.Group == "" {
		return fmt.Errorf("disk-assisted queue requires a consumer group name")
	}
	if d.MaxRetries < 0 {
		return fmt.Errorf("disk-assisted queue max retries must not be negative")
	}
	return nil
}

func validateRatelimit(c *Config) error {
	r := &c.Ratelimit
	if r.IntervalSeconds < 0 {
		return fmt.Errorf("ratelimit interval must not be negative")
	}
	if r.Burst < 0 {
		return fmt.Errorf("ratelimit burst must not be negative")
	}
	if r.DiscardSeverity < -1 || r.DiscardSeverity > 7 {
		return fmt.Errorf("ratelimit discard-severity must be -1..7 (-1 disables)")
	}
	switch r.KeySource {
	case "from-host", "from-host:port", "from-host-ip", "from-host-ip:port", "template":
	default:
		return fmt.Errorf("invalid ratelimit key source %q", r.KeySource)
	}
	if r.MaxStates < 0 {
		return fmt.Errorf("ratelimit max-states must not be negative")
	}
	return nil
}

func validateRuleset(c *Config) error {
	r := &c.Ruleset
	if r.Name == "" {
		return fmt.Errorf("ruleset name must not be empty")
	}
	if r.MaxLine <= 0 {
		return fmt.Errorf("max-line must be positive")
	}
	switch r.OversizePolicy {
	case "accept", "truncate", "split":
	default:
		return fmt.Errorf("invalid oversize policy %q", r.OversizePolicy)
	}
	return nil
}

func validateForwarder(c *Config) error {
	f := &c.Forwarder
	if !f.Enabled {
		return nil
	}
	if len(f.Targets) == 0 {
		return fmt.Errorf("forwarder requires at least one target")
	}
	if len(f.Ports) > len(f.Targets) {
		return fmt.Errorf("forwarder has %d ports for %d targets", len(f.Ports), len(f.Targets))
	}
	for _, p := range f.Ports {
		if p <= 0 || p > 65535 {
			return fmt.Errorf("forwarder port %d out of range", p)
		}
	}
	switch f.Protocol {
	case "udp", "tcp":
	default:
		return fmt.Errorf("invalid forwarder protocol %q", f.Protocol)
	}
	switch f.Framing {
	case "octet-stuffing", "octet-counting":
	default:
		return fmt.Errorf("invalid forwarder framing %q", f.Framing)
	}
	switch f.Compression {
	case "none", "single", "stream":
	default:
		return fmt.Errorf("invalid forwarder compression mode %q", f.Compression)
	}
	if f.CompressionLevel < 0 || f.CompressionLevel > 10 {
		return fmt.Errorf("forwarder compression level must be 0..10")
	}
	if f.SendBufferSize <= 0 || f.SendBufferSize > 16*1024 {
		return fmt.Errorf("forwarder send buffer size must be 1..16384 bytes")
	}
	if f.Protocol == "udp" && f.TLS.Enabled {
		return fmt.Errorf("forwarder TLS requires the tcp protocol")
	}
	if f.TLS.Enabled && f.TLS.ClientCertFile != "" && f.TLS.ClientKeyFile == "" {
		return fmt.Errorf("forwarder TLS client cert configured without a key")
	}
	return nil
}

func validateMQTTOutput(c *Config) error {
	m := &c.MQTTOutput
	if !m.Enabled {
		return nil
	}
	if len(m.Brokers) == 0 {
		return fmt.Errorf("mqtt output requires at least one broker")
	}
	if m.QoS > 2 {
		return fmt.Errorf("mqtt QoS must be 0, 1, or 2")
	}
	if m.Topic == "" {
		return fmt.Errorf("mqtt output requires a topic")
	}
	if m.TLS.Enabled && m.TLS.ClientCertFile != "" && m.TLS.ClientKeyFile == "" {
		return fmt.Errorf("mqtt TLS client cert configured without a key")
	}
	return nil
}

func validateDockerInput(c *Config) error {
	d := &c.DockerInput
	if !d.Enabled {
		return nil
	}
	if d.Endpoint == "" {
		return fmt.Errorf("docker input requires an endpoint")
	}
	if d.PollingInterval <= 0 {
		return fmt.Errorf("docker polling interval must be positive")
	}
	if d.DefaultFacility < 0 || d.DefaultFacility > 23 {
		return fmt.Errorf("docker default facility must be 0..23")
	}
	if d.DefaultSeverity < 0 || d.DefaultSeverity > 7 {
		return fmt.Errorf("docker default severity must be 0..7")
	}
	return nil
}

func validateLifecycle(c *Config) error {
	l := &c.Lifecycle
	if l.PidFile == "" {
		return fmt.Errorf(`pid file must be a path or "NONE"`)
	}
	if l.JanitorInterval < 0 {
		return fmt.Errorf("janitor interval must not be negative")
	}
	if l.MarkInterval < 0 {
		return fmt.Errorf("mark interval must not be negative")
	}
	if l.ErrorMessageCap < 0 {
		return fmt.Errorf("error message cap must not be negative")
	}
	return nil
}

func validateStats(c *Config) error {
	s := &c.Stats
	if !s.Enabled {
		return nil
	}
	if s.PrometheusPort <= 0 || s.PrometheusPort > 65535 {
		return fmt.Errorf("stats port %d out of range", s.PrometheusPort)
	}
	if s.Namespace == "" {
		return fmt.Errorf("stats namespace must not be empty")
	}
	return nil
}

func validateHealth(c *Config) error {
	h := &c.Health
	if !h.Enabled {
		return nil
	}
	if h.Port <= 0 || h.Port > 65535 {
		return fmt.Errorf("health port %d out of range", h.Port)
	}
	if c.Stats.Enabled && h.Port == c.Stats.PrometheusPort {
		return fmt.Errorf("health port %d conflicts with stats port", h.Port)
	}
	return nil
}
