// Package main boots the syslog daemon, wiring configuration, logger,
// stats, the main queue, the ruleset dispatcher, output actions, and the
// container log input.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sync"

	"github.com/google/uuid"
	"github.com/rsyslog-go/daemon/internal/action"
	"github.com/rsyslog-go/daemon/internal/config"
	"github.com/rsyslog-go/daemon/internal/diag"
	"github.com/rsyslog-go/daemon/internal/docker"
	"github.com/rsyslog-go/daemon/internal/forwarder"
	"github.com/rsyslog-go/daemon/internal/lifecycle"
	"github.com/rsyslog-go/daemon/internal/logger"
	"github.com/rsyslog-go/daemon/internal/message"
	"github.com/rsyslog-go/daemon/internal/ports"
	"github.com/rsyslog-go/daemon/internal/queue"
	"github.com/rsyslog-go/daemon/internal/queue/diskqueue"
	"github.com/rsyslog-go/daemon/internal/ruleset"
	runtimex "github.com/rsyslog-go/daemon/internal/runtime"
	"github.com/rsyslog-go/daemon/internal/stats"
	"github.com/rsyslog-go/daemon/pkg/jsonx"
)

const version = "1.0.0"

// Application holds the daemon's wired components.
type Application struct {
	config *config.Config
	logger ports.Logger

	diag       *diag.Buffer
	statsReg   *stats.Registry
	statsSrv   *http.Server
	healthSrv  *http.Server
	mainQueue  *queue.Queue
	dispatcher *ruleset.Dispatcher
	actions    map[string]*action.Driver
	fwdPool    *forwarder.Pool
	dockerIn   *docker.Input
	controller *lifecycle.Controller

	inputCancel  context.CancelFunc
	snapshotStop chan struct{}
	wg           sync.WaitGroup
}

func main() {
	os.Exit(run())
}

// run contains the program logic and returns an exit code. Using this
// pattern ensures defers run and avoids exit-after-defer issues.
func run() int {
	ensureTZ()

	cfg, err := config.Load()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		return 1
	}

	if cfg.App.ShowVersion {
		fmt.Printf("rsyslogd %s\n", version)
		return 0
	}
	if cfg.App.EmitConfig != "" {
		return emitConfig(cfg)
	}
	if cfg.App.ValidateLevel > 0 {
		fmt.Println("configuration validated successfully")
		return 0
	}

	logLevel := cfg.App.LogLevel
	if cfg.App.Debug {
		logLevel = "debug"
	}
	logr, err := logger.NewLogrusLogger(logLevel, cfg.App.LogFormat)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		return 1
	}

	if err := lifecycle.WritePidFile(cfg.Lifecycle.PidFile); err != nil {
		logr.Error("startup refused", ports.Field{Key: "error", Value: err})
		return 1
	}
	defer func() { _ = lifecycle.RemovePidFile(cfg.Lifecycle.PidFile) }()

	app := &Application{
		config:  cfg,
		logger:  logr,
		diag:    diag.New(5, 500),
		actions: make(map[string]*action.Driver),
	}

	if err := app.Start(); err != nil {
		logr.Error("startup failed", ports.Field{Key: "error", Value: err})
		app.Shutdown()
		return 1
	}

	logr.Info("rsyslogd started",
		ports.Field{Key: "version", Value: version},
		ports.Field{Key: "queue_type", Value: cfg.Queue.Type},
	)

	app.controller.Run(context.Background())

	app.Shutdown()
	return 0
}

// ensureTZ pins TZ so timestamp rendering is stable: the system
// localtime when readable, UTC otherwise.
func ensureTZ() {
	if os.Getenv("TZ") != "" {
		return
	}
	if _, err := os.Stat("/etc/localtime"); err == nil {
		_ = os.Setenv("TZ", ":/etc/localtime")
		return
	}
	_ = os.Setenv("TZ", "UTC")
}

// emitConfig renders the fully-expanded configuration and exits.
func emitConfig(cfg *config.Config) int {
	raw, err := jsonx.Marshal(cfg)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "failed to render configuration: %v\n", err)
		return 1
	}
	if cfg.App.EmitConfig == "-" {
		fmt.Println(string(raw))
		return 0
	}
	if err := os.WriteFile(cfg.App.EmitConfig, append(raw, '\n'), 0o644); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "failed to write configuration: %v\n", err)
		return 1
	}
	return 0
}

// Start wires and starts every component in dependency order: stats,
// actions, ruleset, main queue, diag merge, lifecycle, inputs, health.
func (app *Application) Start() error {
	cfg := app.config

	_ = runtimex.ApplyProcessAffinity(runtimex.AffinitySpec{})

	if cfg.Stats.Enabled {
		app.statsReg = stats.NewRegistry(cfg.Stats.Namespace, cfg.Stats.Subsystem, app.logger)
		app.statsSrv = app.statsReg.Serve(cfg.Stats.PrometheusPort)
	}

	if err := app.buildActions(); err != nil {
		return err
	}
	app.buildRuleset()

	if err := app.buildMainQueue(); err != nil {
		return err
	}

	ctx := context.Background()
	for _, d := range app.actions {
		if err := d.Start(ctx); err != nil {
			return fmt.Errorf("start action %s: %w", d.Name(), err)
		}
	}
	if err := app.mainQueue.Start(ctx); err != nil {
		if cfg.Queue.AbortOnFailedStartup {
			return fmt.Errorf("start main queue: %w", err)
		}
		app.logger.Warn("main queue startup failed, degrading to direct mode",
			ports.Field{Key: "error", Value: err})
	}

	merged := app.diag.Merge(app.mainQueue)
	if merged > 0 {
		app.logger.Debug("staged diagnostics merged", ports.Field{Key: "count", Value: merged})
	}

	app.buildController()
	app.startInputs()
	app.startHealth()

	if cfg.Stats.Enabled && app.statsReg != nil {
		app.snapshotStop = make(chan struct{})
		go app.statsReg.RunSnapshotLoop(cfg.Stats.SnapshotInterval, app.snapshotStop)
	}

	return nil
}

// buildActions constructs the configured output actions wrapped in their
// drivers.
func (app *Application) buildActions() error {
	cfg := app.config

	if cfg.Forwarder.Enabled {
		app.fwdPool = forwarder.New(forwarderConfig(&cfg.Forwarder), app.logger)
		app.addAction(app.fwdPool)
		if app.statsReg != nil {
			app.statsReg.SetTargetTotals(app.fwdPool.Stats)
		}
	}

	if cfg.MQTTOutput.Enabled {
		m := cfg.MQTTOutput
		out, err := action.NewOMMQTT(action.OMMQTTConfig{
			Name:               m.Name,
			Brokers:            m.Brokers,
			ClientID:           m.ClientID,
			QoS:                m.QoS,
			Topic:              m.Topic,
			KeepAlive:          m.KeepAlive,
			ConnectTimeout:     m.ConnectTimeout,
			WriteTimeout:       m.WriteTimeout,
			OrderMatters:       m.OrderMatters,
			TLSEnabled:         m.TLS.Enabled,
			CACertFile:         m.TLS.CACertFile,
			ClientCertFile:     m.TLS.ClientCertFile,
			ClientKeyFile:      m.TLS.ClientKeyFile,
			TLSServerName:      m.TLS.ServerName,
			InsecureSkipVerify: m.TLS.InsecureSkipVerify,
		}, app.logger)
		if err != nil {
			return err
		}
		app.addAction(out)
	}

	return nil
}

// addAction wraps one output in a Driver with the shared action config.
func (app *Application) addAction(out ports.OutputAction) {
	cfg := app.config

	subQueue := queue.DefaultConfig()
	subQueue.Capacity = cfg.Action.SubQueueCapacity
	subQueue.NumWorkers = cfg.Action.SubQueueNumWorkers
	subQueue.MaxWorkers = cfg.Action.SubQueueNumWorkers
	subQueue.QueueShutdownTimeout = cfg.Queue.ActionShutdownTimeout
	subQueue.WorkerShutdownTimeout = cfg.Queue.WorkerShutdownTimeout

	var d *action.Driver
	d = action.New(action.Config{
		Name:                     out.Name(),
		ResumeInterval:           cfg.Action.ResumeInterval,
		RatelimitIntervalSeconds: cfg.Action.RatelimitIntervalSeconds,
		RatelimitBurst:           cfg.Action.RatelimitBurst,
		RatelimitDiscardSeverity: cfg.Action.RatelimitDiscardSeverity,
		SubQueue:                 subQueue,
	}, out, app.logger, func(m *message.Message) {
		app.runAction(d, m)
	})
	app.actions[out.Name()] = d
}

// runAction executes one message against an action driver as a
// single-element transaction; the driver's output batches internally
// (the forwarder's send buffer) so per-message commit stays cheap.
func (app *Application) runAction(d *action.Driver, m *message.Message) {
	ctx := context.Background()
	if status := d.BeginTransaction(ctx); status != ports.ActionOK {
		return
	}
	if status := d.DoAction(ctx, m); status != ports.ActionOK {
		return
	}
	d.CommitTransaction(ctx)
}

// buildRuleset assembles the dispatcher: every action receives every
// message that passes its filters; the default configuration routes all
// messages to all enabled actions.
func (app *Application) buildRuleset() {
	app.dispatcher = ruleset.New(app.config.Ruleset.Name)
	for name := range app.actions {
		app.dispatcher.AddRule(&ruleset.Rule{
			Action: name,
			Pri:    ruleset.NewPriMaskAll(),
		})
	}
}

// buildMainQueue constructs the main queue with its consumer: parse
// flagged messages, apply the legacy hostname/tag rewrite when enabled,
// dispatch to the ruleset, and fan out to matching action sub-queues.
func (app *Application) buildMainQueue() error {
	cfg := app.config

	var backend queue.Backend
	if cfg.Queue.Type == "disk" || cfg.Queue.Type == "disk-assisted" {
		b, err := diskqueue.New(diskqueue.Config{
			Addresses:      cfg.DiskQueue.Addresses,
			Username:       cfg.DiskQueue.Username,
			Password:       cfg.DiskQueue.Password,
			DB:             cfg.DiskQueue.DB,
			Stream:         cfg.DiskQueue.Stream,
			Group:          cfg.DiskQueue.Group,
			MaxRetries:     cfg.DiskQueue.MaxRetries,
			RetryInterval:  cfg.DiskQueue.RetryInterval,
			ConnectTimeout: cfg.DiskQueue.ConnectTimeout,
			ReadTimeout:    cfg.DiskQueue.ReadTimeout,
			WriteTimeout:   cfg.DiskQueue.WriteTimeout,
		}, app.logger, cfg.App.Name+"-"+uuid.NewString())
		if err != nil {
			if cfg.Queue.AbortOnFailedStartup {
				return fmt.Errorf("disk-assisted queue backend: %w", err)
			}
			app.logger.Warn("disk-assisted backend unavailable, continuing in-memory",
				ports.Field{Key: "error", Value: err})
		} else {
			backend = b
		}
	}

	app.mainQueue = queue.New(queueConfig(&cfg.Queue), app.logger, app.consume, backend)
	return nil
}

// consume is the main queue's worker callback.
func (app *Application) consume(m *message.Message) {
	if m.HasFlag(message.FlagNeedsParsing) && len(m.MSG) == 0 {
		_ = message.ParseLegacy(m, m.Raw, m.TimestampReceived)
	}
	ruleset.ApplyLegacyHostnameTagRewrite(m, app.config.Ruleset.LegacyHostnameTagRewrite)

	for _, name := range app.dispatcher.Route(m) {
		if d, ok := app.actions[name]; ok {
			_ = d.Submit(m, m.Flow)
		}
	}
}

// buildController wires the lifecycle controller: HUP hooks, janitor
// callbacks, and mark messages.
func (app *Application) buildController() {
	cfg := app.config

	app.controller = lifecycle.New(lifecycle.Config{
		JanitorInterval: cfg.Lifecycle.JanitorInterval,
		MarkInterval:    cfg.Lifecycle.MarkInterval,
		PermitCtlC:      cfg.Lifecycle.PermitCtlC,
		Debug:           cfg.App.Debug,
	}, app.logger)

	for _, d := range app.actions {
		driver := d
		app.controller.OnHUP(func(ctx context.Context) error {
			return driver.HUP(ctx)
		})
	}

	app.controller.SetMarkSink(app.mainQueue)

	if app.fwdPool != nil {
		pool := app.fwdPool
		app.controller.RegisterJanitor(func() {
			// Every target connection, idle or not, is torn down for a
			// fresh dial on the next send; there is no idle threshold.
			_ = pool.HUP(context.Background())
		})
	}

	lifecycle.DropCapabilities(app.logger)
}

// startInputs launches the configured inputs under a cancellable
// context so shutdown can stop them first.
func (app *Application) startInputs() {
	cfg := app.config

	inputCtx, cancel := context.WithCancel(context.Background())
	app.inputCancel = cancel

	if !cfg.DockerInput.Enabled {
		return
	}

	client, err := docker.NewEngineClient(cfg.DockerInput.Endpoint, cfg.DockerInput.APIVersion)
	if err != nil {
		app.logger.Error("docker input unavailable", ports.Field{Key: "error", Value: err})
		return
	}

	var counters *stats.InputCounters
	if app.statsReg != nil {
		counters = app.statsReg.Input("imdocker")
	}

	app.dockerIn = docker.New(docker.Config{
		PollingInterval:          cfg.DockerInput.PollingInterval,
		RetrieveNewLogsFromStart: cfg.DockerInput.RetrieveNewLogsFromStart,
		DefaultFacility:          message.Facility(cfg.DockerInput.DefaultFacility),
		DefaultSeverity:          message.Severity(cfg.DockerInput.DefaultSeverity),
		RatelimitIntervalSeconds: cfg.Ratelimit.IntervalSeconds,
		RatelimitBurst:           cfg.Ratelimit.Burst,
		Submit: message.SubmitOptions{
			MaxLine: cfg.Ruleset.MaxLine,
			Policy:  oversizePolicy(cfg.Ruleset.OversizePolicy),
		},
	}, client, app.mainQueue, counters, app.logger)

	app.wg.Add(1)
	go func() {
		defer app.wg.Done()
		app.dockerIn.Run(inputCtx)
	}()
}

// startHealth exposes liveness/readiness endpoints.
func (app *Application) startHealth() {
	cfg := app.config
	if !cfg.Health.Enabled {
		return
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		if app.mainQueue.State() != queue.StateRunning {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	app.healthSrv = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Health.Port),
		Handler:      mux,
		ReadTimeout:  cfg.Health.ReadTimeout,
		WriteTimeout: cfg.Health.WriteTimeout,
	}
	go func() {
		if err := app.healthSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			app.logger.Error("health listener failed", ports.Field{Key: "error", Value: err})
		}
	}()
}

// Shutdown stops components in reverse dependency order: inputs first,
// then the main queue (drained), then actions (final commit/flush), then
// the observability servers.
func (app *Application) Shutdown() {
	cfg := app.config
	ctx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	app.diag.Shutdown()

	if app.snapshotStop != nil {
		close(app.snapshotStop)
		app.snapshotStop = nil
	}

	if app.inputCancel != nil {
		app.inputCancel()
	}
	app.wg.Wait()

	if app.mainQueue != nil {
		if remaining, err := app.mainQueue.Destruct(ctx); err != nil {
			app.logger.Warn("main queue shutdown incomplete",
				ports.Field{Key: "remaining", Value: remaining},
				ports.Field{Key: "error", Value: err},
			)
		} else if remaining > 0 {
			app.logger.Warn("messages left in main queue at shutdown",
				ports.Field{Key: "remaining", Value: remaining})
		}
	}

	for _, d := range app.actions {
		if err := d.Destruct(ctx); err != nil {
			app.logger.Warn("action shutdown failed",
				ports.Field{Key: "action", Value: d.Name()},
				ports.Field{Key: "error", Value: err},
			)
		}
	}

	if app.healthSrv != nil {
		_ = app.healthSrv.Shutdown(ctx)
	}
	if app.statsSrv != nil {
		_ = app.statsSrv.Shutdown(ctx)
	}

	app.logger.Info("rsyslogd stopped")
}

// forwarderConfig maps the config section onto the forwarder package's
// typed configuration.
func forwarderConfig(f *config.ForwarderConfig) forwarder.Config {
	out := forwarder.DefaultConfig()
	out.Name = f.Name
	out.Targets = f.Targets
	out.Ports = f.Ports
	if f.Protocol == "udp" {
		out.Protocol = forwarder.ProtocolUDP
	} else {
		out.Protocol = forwarder.ProtocolTCP
	}
	if f.Framing == "octet-counting" {
		out.Framing = forwarder.FramingOctetCounting
	} else {
		out.Framing = forwarder.FramingOctetStuffing
	}
	if f.Delimiter != 0 {
		out.Delimiter = f.Delimiter
	}
	switch f.Compression {
	case "single":
		out.Compression = forwarder.CompressionSingle
	case "stream":
		out.Compression = forwarder.CompressionStream
	default:
		out.Compression = forwarder.CompressionNone
	}
	out.CompressionThreshold = f.CompressionThreshold
	out.CompressionLevel = f.CompressionLevel
	out.FlushCompressionOnTxEnd = f.FlushCompressionOnTxEnd
	out.SendBufferSize = f.SendBufferSize
	out.RebindInterval = f.RebindInterval
	out.PoolResumeInterval = f.PoolResumeInterval
	out.UDPSendDelay = f.UDPSendDelay
	out.SendToAll = f.SendToAll
	out.LocalAddr = f.LocalAddr
	out.LocalPort = f.LocalPort
	out.ConnErrSkip = f.ConnErrSkip
	out.DialTimeout = f.DialTimeout
	out.TLS = forwarder.TLSConfig{
		Enabled:            f.TLS.Enabled,
		CAFile:             f.TLS.CACertFile,
		CertFile:           f.TLS.ClientCertFile,
		KeyFile:            f.TLS.ClientKeyFile,
		ServerName:         f.TLS.ServerName,
		MinVersion:         f.TLS.MinVersion,
		InsecureSkipVerify: f.TLS.InsecureSkipVerify,
		PermittedPeers:     f.TLS.PermittedPeers,
	}
	out.KeepAlive = forwarder.KeepAliveConfig{
		Enabled:  f.KeepAlive.Enabled,
		Time:     f.KeepAlive.Time,
		Interval: f.KeepAlive.Interval,
		Probes:   f.KeepAlive.Probes,
	}
	return out
}

// queueConfig maps the config section onto the queue package's typed
// configuration.
func queueConfig(q *config.QueueConfig) queue.Config {
	out := queue.DefaultConfig()
	out.Type = queueType(q.Type)
	out.Capacity = q.Capacity
	out.HighWater = q.HighWater
	out.LowWater = q.LowWater
	out.DiscardMark = q.DiscardMark
	out.DiscardSeverity = q.DiscardSeverity
	out.NumWorkers = q.NumWorkers
	out.MaxWorkers = q.MaxWorkers
	out.BatchSize = q.BatchSize
	out.MinMsgsPerWorker = q.MinMsgsPerWorker
	out.DequeueSlowdown = q.DequeueSlowdown
	out.EnqueueTimeout = q.EnqueueTimeout
	out.QueueShutdownTimeout = q.QueueShutdownTimeout
	out.ActionShutdownTimeout = q.ActionShutdownTimeout
	out.WorkerShutdownTimeout = q.WorkerShutdownTimeout
	out.PersistOnShutdown = q.PersistOnShutdown
	out.AbortOnFailedStartup = q.AbortOnFailedStartup
	return out
}

func queueType(s string) queue.Type {
	switch s {
	case "direct":
		return queue.TypeDirect
	case "linked-list":
		return queue.TypeLinkedList
	case "disk":
		return queue.TypeDisk
	case "disk-assisted":
		return queue.TypeDiskAssisted
	default:
		return queue.TypeFixedArray
	}
}

func oversizePolicy(s string) message.OversizePolicy {
	switch s {
	case "truncate":
		return message.OversizeTruncate
	case "split":
		return message.OversizeSplit
	default:
		return message.OversizeAccept
	}
}
