package config

import (
	"os"
	"runtime"
	"time"
)

// GetDefaults returns a Config with all default values
func GetDefaults() *Config {
	hostname, _ := os.Hostname()
	return &Config{
		App:         defaultApp(),
		Queue:       defaultQueue(),
		DiskQueue:   defaultDiskQueue(hostname),
		Ratelimit:   defaultRatelimit(),
		Ruleset:     defaultRuleset(),
		Action:      defaultAction(),
		Forwarder:   defaultForwarder(),
		MQTTOutput:  defaultMQTTOutput(),
		DockerInput: defaultDockerInput(),
		Lifecycle:   defaultLifecycle(),
		Stats:       defaultStats(),
		Health:      defaultHealth(),
	}
}

func defaultApp() AppConfig {
	return AppConfig{
		Name:            "rsyslogd",
		Environment:     "production",
		LogLevel:        "info",
		LogFormat:       "text",
		ShutdownTimeout: 30 * time.Second,
		ConfigFile:      "/etc/rsyslog.conf",
		ValidateLevel:   0,
	}
}

func defaultQueue() QueueConfig {
	maxWorkers := runtime.NumCPU()
	if maxWorkers < 2 {
		maxWorkers = 2
	}
	return QueueConfig{
		Type:                  "fixed-array",
		Capacity:              50000,
		HighWater:             45000,
		LowWater:              10000,
		DiscardMark:           49000,
		DiscardSeverity:       -1, // negative disables severity discards
		NumWorkers:            2,
		MaxWorkers:            maxWorkers,
		BatchSize:             128,
		MinMsgsPerWorker:      100,
		DequeueSlowdown:       0,
		DequeueWindowBegin:    -1,
		DequeueWindowEnd:      -1,
		EnqueueTimeout:        2 * time.Second,
		QueueShutdownTimeout:  10 * time.Second,
		ActionShutdownTimeout: 5 * time.Second,
		WorkerShutdownTimeout: 2 * time.Second,
		PersistOnShutdown:     true,
		AbortOnFailedStartup:  false,
	}
}

func defaultDiskQueue(hostname string) DiskQueueConfig {
	return DiskQueueConfig{
		Addresses:          []string{"localhost:6379"},
		DB:                 0,
		Stream:             "rsyslogd-spill-" + hostname,
		Group:              "rsyslogd",
		MaxRetries:         5,
		RetryInterval:      time.Second,
		ConnectTimeout:     5 * time.Second,
		ReadTimeout:        3 * time.Second,
		WriteTimeout:       3 * time.Second,
		CheckpointInterval: 30 * time.Second,
		ReclaimMinIdle:     time.Minute,
	}
}

func defaultRatelimit() RatelimitConfig {
	return RatelimitConfig{
		IntervalSeconds: 0, // 0 disables the daemon-wide limiter
		Burst:           10000,
		DiscardSeverity: -1,
		KeySource:       "from-host",
		MaxStates:       1000,
		TopN:            10,
	}
}

func defaultRuleset() RulesetConfig {
	return RulesetConfig{
		Name:                   "RSYSLOG_DefaultRuleset",
		MaxLine:                8096,
		OversizePolicy:         "truncate",
		OversizeReportInterval: 30 * time.Second,
	}
}

func defaultAction() ActionConfig {
	return ActionConfig{
		ResumeInterval:           30 * time.Second,
		RatelimitIntervalSeconds: 0,
		RatelimitBurst:           0,
		RatelimitDiscardSeverity: -1,
		SubQueueCapacity:         1024,
		SubQueueNumWorkers:       1,
	}
}

func defaultForwarder() ForwarderConfig {
	return ForwarderConfig{
		Enabled:                 false,
		Name:                    "omfwd",
		Protocol:                "tcp",
		Framing:                 "octet-stuffing",
		Delimiter:               '\n',
		Compression:             "none",
		CompressionThreshold:    60,
		CompressionLevel:        9,
		FlushCompressionOnTxEnd: true,
		SendBufferSize:          16 * 1024,
		RebindInterval:          0,
		PoolResumeInterval:      30 * time.Second,
		ConnErrSkip:             10,
		DialTimeout:             10 * time.Second,
		TLS: TLSConfig{
			MinVersion: "TLS1.2",
		},
	}
}

func defaultMQTTOutput() MQTTOutputConfig {
	return MQTTOutputConfig{
		Enabled:        false,
		Name:           "ommqtt",
		Brokers:        []string{"tcp://localhost:1883"},
		ClientID:       generateClientID(),
		QoS:            1,
		Topic:          "syslog",
		KeepAlive:      30 * time.Second,
		ConnectTimeout: 10 * time.Second,
		WriteTimeout:   5 * time.Second,
		OrderMatters:   true,
		TLS: TLSConfig{
			MinVersion: "TLS1.2",
		},
	}
}

func defaultDockerInput() DockerInputConfig {
	return DockerInputConfig{
		Enabled:                  false,
		Endpoint:                 "unix:///var/run/docker.sock",
		APIVersion:               "1.27",
		PollingInterval:          60 * time.Second,
		RetrieveNewLogsFromStart: true,
		DefaultFacility:          1, // user
		DefaultSeverity:          6, // info
	}
}

func defaultLifecycle() LifecycleConfig {
	return LifecycleConfig{
		PidFile:             "/var/run/rsyslogd.pid",
		Foreground:          false,
		JanitorInterval:     10 * time.Minute,
		MarkInterval:        0,
		PermitCtlC:          false,
		AbortOnProgramError: false,
		ErrorMessageCap:     0,
	}
}

func defaultStats() StatsConfig {
	return StatsConfig{
		Enabled:          true,
		PrometheusPort:   9090,
		Namespace:        "rsyslogd",
		Subsystem:        "",
		SnapshotInterval: 60 * time.Second,
	}
}

func defaultHealth() HealthConfig {
	return HealthConfig{
		Enabled:       true,
		Port:          8080,
		ReadTimeout:   5 * time.Second,
		WriteTimeout:  5 * time.Second,
		CheckInterval: 10 * time.Second,
	}
}
