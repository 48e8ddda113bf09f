// Package config loads, merges, and validates daemon configuration from defaults, environment, and flags.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all daemon configuration
type Config struct {
	App         AppConfig
	Queue       QueueConfig
	DiskQueue   DiskQueueConfig
	Ratelimit   RatelimitConfig
	Ruleset     RulesetConfig
	Action      ActionConfig
	Forwarder   ForwarderConfig
	MQTTOutput  MQTTOutputConfig
	DockerInput DockerInputConfig
	Lifecycle   LifecycleConfig
	Stats       StatsConfig
	Health      HealthConfig
}

// AppConfig holds application-level configuration
type AppConfig struct {
	Name            string
	Environment     string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// CLI surface (-f, -N, -o, -v and friends)
	ConfigFile    string
	ValidateLevel int    // -N: validate config only, exit afterwards
	EmitConfig    string // -o: path or "-" to emit expanded config and exit
	ShowVersion   bool
	Debug         bool   // -d
	ParserDebug   bool   // -D
	NoChdir       bool   // -C
	ChrootPath    string // -T
	ModulePath    string // -M
}

// QueueConfig holds main/ruleset queue configuration
type QueueConfig struct {
	Type string // direct, linked-list, fixed-array, disk, disk-assisted

	Capacity        int
	HighWater       int
	LowWater        int
	DiscardMark     int
	DiscardSeverity int

	NumWorkers       int
	MaxWorkers       int
	BatchSize        int
	MinMsgsPerWorker int
	DequeueSlowdown  time.Duration

	// Optional dequeue time window, hours 0..23; -1 disables.
	DequeueWindowBegin int
	DequeueWindowEnd   int

	EnqueueTimeout        time.Duration
	QueueShutdownTimeout  time.Duration
	ActionShutdownTimeout time.Duration
	WorkerShutdownTimeout time.Duration

	PersistOnShutdown    bool
	AbortOnFailedStartup bool
}

// DiskQueueConfig holds the disk-assisted spill backend settings
type DiskQueueConfig struct {
	Addresses []string
	Username  string
	Password  string
	DB        int

	Stream string
	Group  string

	MaxRetries         int
	RetryInterval      time.Duration
	ConnectTimeout     time.Duration
	ReadTimeout        time.Duration
	WriteTimeout       time.Duration
	CheckpointInterval time.Duration
	ReclaimMinIdle     time.Duration
}

// RatelimitConfig holds the input-side rate limiter settings
type RatelimitConfig struct {
	IntervalSeconds int
	Burst           int
	DiscardSeverity int

	// Per-source keyed sub-limits
	KeySource string // from-host, from-host:port, from-host-ip, from-host-ip:port, template
	MaxStates int
	TopN      int
}

// RulesetConfig holds ruleset and message-pipeline settings
type RulesetConfig struct {
	Name string

	MaxLine                int
	OversizePolicy         string // accept, truncate, split
	OversizeReportInterval time.Duration
	OversizeLogFile        string

	LegacyHostnameTagRewrite bool
}

// ActionConfig holds per-action driver defaults
type ActionConfig struct {
	ResumeInterval time.Duration

	RatelimitIntervalSeconds int
	RatelimitBurst           int
	RatelimitDiscardSeverity int

	SubQueueCapacity   int
	SubQueueNumWorkers int
}

// ForwarderConfig holds the omfwd target-pool settings
type ForwarderConfig struct {
	Enabled bool
	Name    string

	Targets []string
	Ports   []int

	Protocol  string // udp, tcp
	Framing   string // octet-stuffing, octet-counting
	Delimiter byte

	Compression             string // none, single, stream
	CompressionThreshold    int
	CompressionLevel        int
	FlushCompressionOnTxEnd bool

	SendBufferSize int

	RebindInterval     int64
	PoolResumeInterval time.Duration

	UDPSendDelay time.Duration
	SendToAll    bool
	LocalAddr    string
	LocalPort    int

	ConnErrSkip int
	DialTimeout time.Duration

	TLS       TLSConfig
	KeepAlive KeepAliveConfig
}

// TLSConfig holds TLS settings shared by the forwarder and the MQTT output
type TLSConfig struct {
	Enabled            bool
	CACertFile         string
	ClientCertFile     string
	ClientKeyFile      string
	InsecureSkipVerify bool
	ServerName         string
	MinVersion         string
	PermittedPeers     []string
}

// KeepAliveConfig holds TCP keep-alive tuning for forwarder targets
type KeepAliveConfig struct {
	Enabled  bool
	Time     time.Duration
	Interval time.Duration
	Probes   int
}

// MQTTOutputConfig holds the optional ommqtt output action settings
type MQTTOutputConfig struct {
	Enabled bool
	Name    string

	Brokers        []string
	ClientID       string
	QoS            byte
	Topic          string
	KeepAlive      time.Duration
	ConnectTimeout time.Duration
	WriteTimeout   time.Duration
	OrderMatters   bool

	TLS TLSConfig
}

// DockerInputConfig holds the imdocker input settings
type DockerInputConfig struct {
	Enabled bool

	Endpoint   string // unix socket path or tcp endpoint
	APIVersion string

	PollingInterval          time.Duration
	RetrieveNewLogsFromStart bool

	DefaultFacility int
	DefaultSeverity int
}

// LifecycleConfig holds signal/janitor/pidfile settings
type LifecycleConfig struct {
	PidFile    string // "NONE" disables
	Foreground bool   // -n

	JanitorInterval time.Duration
	MarkInterval    time.Duration

	PermitCtlC          bool
	AbortOnProgramError bool

	// ErrorMessageCap bounds error lines written to stderr; 0 = unlimited.
	ErrorMessageCap int
}

// StatsConfig holds the stats subsystem settings
type StatsConfig struct {
	Enabled          bool
	PrometheusPort   int
	Namespace        string
	Subsystem        string
	SnapshotInterval time.Duration
}

// HealthConfig holds health check configuration
type HealthConfig struct {
	Enabled       bool
	Port          int
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	CheckInterval time.Duration
}

// Load loads configuration from defaults, environment variables, and flags
func Load() (*Config, error) {
	RegisterFlags()

	cfg := GetDefaults()

	// Apply environment variables (they override defaults)
	LoadFromEnvironment(cfg)

	// Apply command-line flags (they override environment variables)
	ApplyFlags(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getInt64Env(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if v, err := strconv.ParseInt(value, 10, 64); err == nil {
			return v
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}

func getIntSliceEnv(key string, defaultValue []int) []int {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		result := make([]int, 0, len(parts))
		for _, part := range parts {
			if intVal, err := strconv.Atoi(strings.TrimSpace(part)); err == nil {
				result = append(result, intVal)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultValue
}

func generateClientID() string {
	hostname, _ := os.Hostname()
	return fmt.Sprintf("rsyslogd-%s-%d", hostname, os.Getpid())
}
