package config

import (
	"flag"
	"time"
)

// RegisterFlags registers all command-line flags. The single-letter set
// mirrors the classic rsyslogd CLI; the long-form set exposes the
// knobs an operator most often overrides without editing the environment.
func RegisterFlags() {
	// Avoid redefining flags if already registered (tests may call multiple times)
	if flag.Lookup("f") != nil {
		return
	}

	registerCLIFlags()
	registerLogFlags()
	registerQueueFlags()
	registerForwarderFlags()
	registerDockerFlags()
}

func registerCLIFlags() {
	flag.String("f", "", "config file path")
	flag.String("i", "", `pid file path, or "NONE" to disable`)
	flag.Bool("n", false, "run in the foreground (do not daemonize)")
	flag.Int("N", 0, "validate configuration only and exit (level > 0)")
	flag.Bool("d", false, "enable debug mode")
	flag.Bool("D", false, "enable config parser debugging")
	flag.Bool("C", false, "do not chdir to / at startup")
	flag.String("T", "", "chroot to the given path at startup")
	flag.String("M", "", "module search path")
	flag.String("o", "", `emit fully-expanded config to the given path ("-" for stdout) and exit`)
	flag.Bool("v", false, "print version and exit")
}

func registerLogFlags() {
	flag.String("log-level", "", "log level (trace, debug, info, warn, error)")
	flag.String("log-format", "", "log format (text, json)")
}

func registerQueueFlags() {
	flag.String("queue-type", "", "main queue type (direct, linked-list, fixed-array, disk, disk-assisted)")
	flag.Int("queue-capacity", 0, "main queue capacity")
	flag.Int("queue-workers", 0, "main queue worker count")
	flag.Duration("queue-shutdown-timeout", 0, "queue drain timeout at shutdown")
}

func registerForwarderFlags() {
	flag.String("forward-targets", "", "comma-separated forwarder target hosts")
	flag.String("forward-protocol", "", "forwarder protocol (udp, tcp)")
	flag.String("forward-framing", "", "forwarder TCP framing (octet-stuffing, octet-counting)")
	flag.String("forward-compression", "", "forwarder compression mode (none, single, stream)")
}

func registerDockerFlags() {
	flag.Bool("docker-input", false, "enable the Docker container log input")
	flag.String("docker-endpoint", "", "Docker Engine endpoint (unix socket or tcp URL)")
	flag.Duration("docker-polling-interval", 0, "container list polling interval")
}

// ApplyFlags overrides cfg with every flag the user actually set on the
// command line. flag.Visit only yields set flags, so defaults and
// environment values survive untouched.
func ApplyFlags(cfg *Config) {
	if !flag.Parsed() {
		flag.Parse()
	}

	flag.Visit(func(f *flag.Flag) {
		applyFlag(cfg, f)
	})
}

func applyFlag(cfg *Config, f *flag.Flag) {
	get := func() flag.Getter { return f.Value.(flag.Getter) }

	switch f.Name {
	case "f":
		cfg.App.ConfigFile = get().Get().(string)
	case "i":
		cfg.Lifecycle.PidFile = get().Get().(string)
	case "n":
		cfg.Lifecycle.Foreground = get().Get().(bool)
	case "N":
		cfg.App.ValidateLevel = get().Get().(int)
	case "d":
		cfg.App.Debug = get().Get().(bool)
	case "D":
		cfg.App.ParserDebug = get().Get().(bool)
	case "C":
		cfg.App.NoChdir = get().Get().(bool)
	case "T":
		cfg.App.ChrootPath = get().Get().(string)
	case "M":
		cfg.App.ModulePath = get().Get().(string)
	case "o":
		cfg.App.EmitConfig = get().Get().(string)
	case "v":
		cfg.App.ShowVersion = get().Get().(bool)

	case "log-level":
		cfg.App.LogLevel = get().Get().(string)
	case "log-format":
		cfg.App.LogFormat = get().Get().(string)

	case "queue-type":
		cfg.Queue.Type = get().Get().(string)
	case "queue-capacity":
		cfg.Queue.Capacity = get().Get().(int)
	case "queue-workers":
		cfg.Queue.NumWorkers = get().Get().(int)
	case "queue-shutdown-timeout":
		cfg.Queue.QueueShutdownTimeout = get().Get().(time.Duration)

	case "forward-targets":
		if v := get().Get().(string); v != "" {
			cfg.Forwarder.Targets = splitComma(v)
			cfg.Forwarder.Enabled = true
		}
	case "forward-protocol":
		cfg.Forwarder.Protocol = get().Get().(string)
	case "forward-framing":
		cfg.Forwarder.Framing = get().Get().(string)
	case "forward-compression":
		cfg.Forwarder.Compression = get().Get().(string)

	case "docker-input":
		cfg.DockerInput.Enabled = get().Get().(bool)
	case "docker-endpoint":
		cfg.DockerInput.Endpoint = get().Get().(string)
	case "docker-polling-interval":
		cfg.DockerInput.PollingInterval = get().Get().(time.Duration)
	}
}

func splitComma(s string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	return out
}
