package config

import (
	"os"
	"testing"
)

func TestGetDefaultsAndValidate_Succeeds(t *testing.T) {
	cfg := GetDefaults()
	if cfg == nil {
		t.Fatal("GetDefaults returned nil")
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate, got error: %v", err)
	}
}

func TestValidate_AppErrors(t *testing.T) {
	cfg := GetDefaults()
	cfg.App.Name = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for empty app name")
	}

	cfg = GetDefaults()
	cfg.App.LogLevel = "bad"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for invalid log level")
	}

	cfg = GetDefaults()
	cfg.App.LogFormat = "xml"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for invalid log format")
	}
}

func TestValidate_QueueErrors(t *testing.T) {
	cfg := GetDefaults()
	cfg.Queue.Type = "quantum"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unknown queue type")
	}

	cfg = GetDefaults()
	cfg.Queue.Capacity = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for zero capacity")
	}

	cfg = GetDefaults()
	cfg.Queue.DiscardMark = cfg.Queue.Capacity + 1
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for discard-mark above capacity")
	}

	cfg = GetDefaults()
	cfg.Queue.HighWater = cfg.Queue.Capacity + 1
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for high-water above capacity")
	}

	cfg = GetDefaults()
	cfg.Queue.DiscardSeverity = 8
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for discard-severity above 7")
	}

	cfg = GetDefaults()
	cfg.Queue.DequeueWindowBegin = 2
	cfg.Queue.DequeueWindowEnd = -1
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for half-configured dequeue window")
	}

	cfg = GetDefaults()
	cfg.Queue.DequeueWindowBegin = 25
	cfg.Queue.DequeueWindowEnd = 3
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for out-of-range window hour")
	}
}

func TestValidate_DiskQueueOnlyCheckedForDiskTypes(t *testing.T) {
	cfg := GetDefaults()
	cfg.DiskQueue.Addresses = nil
	if err := cfg.Validate(); err != nil {
		t.Fatalf("in-memory queue must not validate disk backend settings: %v", err)
	}

	cfg.Queue.Type = "disk-assisted"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for disk-assisted queue with no backend addresses")
	}
}

func TestValidate_ForwarderErrors(t *testing.T) {
	cfg := GetDefaults()
	cfg.Forwarder.Enabled = true
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for enabled forwarder with no targets")
	}

	cfg = GetDefaults()
	cfg.Forwarder.Enabled = true
	cfg.Forwarder.Targets = []string{"10.0.0.1"}
	cfg.Forwarder.Ports = []int{514, 515}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for more ports than targets")
	}

	cfg = GetDefaults()
	cfg.Forwarder.Enabled = true
	cfg.Forwarder.Targets = []string{"10.0.0.1"}
	cfg.Forwarder.Protocol = "sctp"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unsupported protocol")
	}

	cfg = GetDefaults()
	cfg.Forwarder.Enabled = true
	cfg.Forwarder.Targets = []string{"10.0.0.1"}
	cfg.Forwarder.SendBufferSize = 64 * 1024
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for send buffer above the 16KiB cap")
	}

	cfg = GetDefaults()
	cfg.Forwarder.Enabled = true
	cfg.Forwarder.Targets = []string{"10.0.0.1"}
	cfg.Forwarder.Protocol = "udp"
	cfg.Forwarder.TLS.Enabled = true
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for TLS over UDP")
	}
}

func TestValidate_DockerInputErrors(t *testing.T) {
	cfg := GetDefaults()
	cfg.DockerInput.Enabled = true
	cfg.DockerInput.Endpoint = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for docker input without endpoint")
	}

	cfg = GetDefaults()
	cfg.DockerInput.Enabled = true
	cfg.DockerInput.DefaultFacility = 30
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for facility out of range")
	}

	cfg = GetDefaults()
	cfg.DockerInput.Enabled = true
	cfg.DockerInput.DefaultSeverity = 9
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for severity out of range")
	}
}

func TestValidate_StatsAndHealthPortConflict(t *testing.T) {
	cfg := GetDefaults()
	cfg.Health.Port = cfg.Stats.PrometheusPort
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for health/stats port conflict")
	}
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("QUEUE_CAPACITY", "128")
	t.Setenv("FORWARDER_TARGETS", "10.0.0.1,10.0.0.2")
	t.Setenv("FORWARDER_PORTS", "514,10514")
	t.Setenv("RULESET_OVERSIZE_POLICY", "split")
	t.Setenv("DOCKER_POLLING_INTERVAL", "15s")

	cfg := GetDefaults()
	LoadFromEnvironment(cfg)

	if cfg.Queue.Capacity != 128 {
		t.Fatalf("QUEUE_CAPACITY not applied, got %d", cfg.Queue.Capacity)
	}
	if len(cfg.Forwarder.Targets) != 2 || cfg.Forwarder.Targets[1] != "10.0.0.2" {
		t.Fatalf("FORWARDER_TARGETS not applied, got %v", cfg.Forwarder.Targets)
	}
	if len(cfg.Forwarder.Ports) != 2 || cfg.Forwarder.Ports[1] != 10514 {
		t.Fatalf("FORWARDER_PORTS not applied, got %v", cfg.Forwarder.Ports)
	}
	if cfg.Ruleset.OversizePolicy != "split" {
		t.Fatalf("RULESET_OVERSIZE_POLICY not applied, got %q", cfg.Ruleset.OversizePolicy)
	}
	if cfg.DockerInput.PollingInterval.Seconds() != 15 {
		t.Fatalf("DOCKER_POLLING_INTERVAL not applied, got %v", cfg.DockerInput.PollingInterval)
	}
}

func TestEnvironmentLeavesUnsetValues(t *testing.T) {
	os.Unsetenv("QUEUE_CAPACITY")
	cfg := GetDefaults()
	want := cfg.Queue.Capacity
	LoadFromEnvironment(cfg)
	if cfg.Queue.Capacity != want {
		t.Fatalf("unset env must keep default, got %d want %d", cfg.Queue.Capacity, want)
	}
}
