package config

// LoadFromEnvironment overrides cfg with values taken from the process
// environment. Unset or unparsable variables leave the existing value in
// place.
func LoadFromEnvironment(cfg *Config) {
	applyAppEnv(cfg)
	applyQueueEnv(cfg)
	applyDiskQueueEnv(cfg)
	applyRatelimitEnv(cfg)
	applyRulesetEnv(cfg)
	applyActionEnv(cfg)
	applyForwarderEnv(cfg)
	applyMQTTOutputEnv(cfg)
	applyDockerInputEnv(cfg)
	applyLifecycleEnv(cfg)
	applyStatsEnv(cfg)
	applyHealthEnv(cfg)
}

func applyAppEnv(cfg *Config) {
	cfg.App.Name = getEnv("APP_NAME", cfg.App.Name)
	cfg.App.Environment = getEnv("APP_ENV", cfg.App.Environment)
	cfg.App.LogLevel = getEnv("LOG_LEVEL", cfg.App.LogLevel)
	cfg.App.LogFormat = getEnv("LOG_FORMAT", cfg.App.LogFormat)
	cfg.App.ShutdownTimeout = getDurationEnv("APP_SHUTDOWN_TIMEOUT", cfg.App.ShutdownTimeout)
	cfg.App.ConfigFile = getEnv("RSYSLOG_CONFIG_FILE", cfg.App.ConfigFile)
	cfg.App.ModulePath = getEnv("RSYSLOG_MODDIR", cfg.App.ModulePath)
}

func applyQueueEnv(cfg *Config) {
	cfg.Queue.Type = getEnv("QUEUE_TYPE", cfg.Queue.Type)
	cfg.Queue.Capacity = getIntEnv("QUEUE_CAPACITY", cfg.Queue.Capacity)
	cfg.Queue.HighWater = getIntEnv("QUEUE_HIGH_WATER", cfg.Queue.HighWater)
	cfg.Queue.LowWater = getIntEnv("QUEUE_LOW_WATER", cfg.Queue.LowWater)
	cfg.Queue.DiscardMark = getIntEnv("QUEUE_DISCARD_MARK", cfg.Queue.DiscardMark)
	cfg.Queue.DiscardSeverity = getIntEnv("QUEUE_DISCARD_SEVERITY", cfg.Queue.DiscardSeverity)
	cfg.Queue.NumWorkers = getIntEnv("QUEUE_WORKERS", cfg.Queue.NumWorkers)
	cfg.Queue.MaxWorkers = getIntEnv("QUEUE_MAX_WORKERS", cfg.Queue.MaxWorkers)
	cfg.Queue.BatchSize = getIntEnv("QUEUE_BATCH_SIZE", cfg.Queue.BatchSize)
	cfg.Queue.MinMsgsPerWorker = getIntEnv("QUEUE_MIN_MSGS_PER_WORKER", cfg.Queue.MinMsgsPerWorker)
	cfg.Queue.DequeueSlowdown = getDurationEnv("QUEUE_DEQUEUE_SLOWDOWN", cfg.Queue.DequeueSlowdown)
	cfg.Queue.DequeueWindowBegin = getIntEnv("QUEUE_DEQUEUE_WINDOW_BEGIN", cfg.Queue.DequeueWindowBegin)
	cfg.Queue.DequeueWindowEnd = getIntEnv("QUEUE_DEQUEUE_WINDOW_END", cfg.Queue.DequeueWindowEnd)
	cfg.Queue.EnqueueTimeout = getDurationEnv("QUEUE_ENQUEUE_TIMEOUT", cfg.Queue.EnqueueTimeout)
	cfg.Queue.QueueShutdownTimeout = getDurationEnv("QUEUE_SHUTDOWN_TIMEOUT", cfg.Queue.QueueShutdownTimeout)
	cfg.Queue.ActionShutdownTimeout = getDurationEnv("QUEUE_ACTION_SHUTDOWN_TIMEOUT", cfg.Queue.ActionShutdownTimeout)
	cfg.Queue.WorkerShutdownTimeout = getDurationEnv("QUEUE_WORKER_SHUTDOWN_TIMEOUT", cfg.Queue.WorkerShutdownTimeout)
	cfg.Queue.PersistOnShutdown = getBoolEnv("QUEUE_PERSIST_ON_SHUTDOWN", cfg.Queue.PersistOnShutdown)
	cfg.Queue.AbortOnFailedStartup = getBoolEnv("QUEUE_ABORT_ON_FAILED_STARTUP", cfg.Queue.AbortOnFailedStartup)
}

func applyDiskQueueEnv(cfg *Config) {
	cfg.DiskQueue.Addresses = getEnvSlice("DISKQUEUE_ADDRESSES", cfg.DiskQueue.Addresses)
	cfg.DiskQueue.Username = getEnv("DISKQUEUE_USERNAME", cfg.DiskQueue.Username)
	cfg.DiskQueue.Password = getEnv("DISKQUEUE_PASSWORD", cfg.DiskQueue.Password)
	cfg.DiskQueue.DB = getIntEnv("DISKQUEUE_DB", cfg.DiskQueue.DB)
	cfg.DiskQueue.Stream = getEnv("DISKQUEUE_STREAM", cfg.DiskQueue.Stream)
	cfg.DiskQueue.Group = getEnv("DISKQUEUE_GROUP", cfg.DiskQueue.Group)
	cfg.DiskQueue.MaxRetries = getIntEnv("DISKQUEUE_MAX_RETRIES", cfg.DiskQueue.MaxRetries)
	cfg.DiskQueue.RetryInterval = getDurationEnv("DISKQUEUE_RETRY_INTERVAL", cfg.DiskQueue.RetryInterval)
	cfg.DiskQueue.ConnectTimeout = getDurationEnv("DISKQUEUE_CONNECT_TIMEOUT", cfg.DiskQueue.ConnectTimeout)
	cfg.DiskQueue.ReadTimeout = getDurationEnv("DISKQUEUE_READ_TIMEOUT", cfg.DiskQueue.ReadTimeout)
	cfg.DiskQueue.WriteTimeout = getDurationEnv("DISKQUEUE_WRITE_TIMEOUT", cfg.DiskQueue.WriteTimeout)
	cfg.DiskQueue.CheckpointInterval = getDurationEnv("DISKQUEUE_CHECKPOINT_INTERVAL", cfg.DiskQueue.CheckpointInterval)
	cfg.DiskQueue.ReclaimMinIdle = getDurationEnv("DISKQUEUE_RECLAIM_MIN_IDLE", cfg.DiskQueue.ReclaimMinIdle)
}

func applyRatelimitEnv(cfg *Config) {
	cfg.Ratelimit.IntervalSeconds = getIntEnv("RATELIMIT_INTERVAL", cfg.Ratelimit.IntervalSeconds)
	cfg.Ratelimit.Burst = getIntEnv("RATELIMIT_BURST", cfg.Ratelimit.Burst)
	cfg.Ratelimit.DiscardSeverity = getIntEnv("RATELIMIT_DISCARD_SEVERITY", cfg.Ratelimit.DiscardSeverity)
	cfg.Ratelimit.KeySource = getEnv("RATELIMIT_KEY_SOURCE", cfg.Ratelimit.KeySource)
	cfg.Ratelimit.MaxStates = getIntEnv("RATELIMIT_MAX_STATES", cfg.Ratelimit.MaxStates)
	cfg.Ratelimit.TopN = getIntEnv("RATELIMIT_TOP_N", cfg.Ratelimit.TopN)
}

func applyRulesetEnv(cfg *Config) {
	cfg.Ruleset.Name = getEnv("RULESET_NAME", cfg.Ruleset.Name)
	cfg.Ruleset.MaxLine = getIntEnv("RULESET_MAX_LINE", cfg.Ruleset.MaxLine)
	cfg.Ruleset.OversizePolicy = getEnv("RULESET_OVERSIZE_POLICY", cfg.Ruleset.OversizePolicy)
	cfg.Ruleset.OversizeReportInterval = getDurationEnv("RULESET_OVERSIZE_REPORT_INTERVAL", cfg.Ruleset.OversizeReportInterval)
	cfg.Ruleset.OversizeLogFile = getEnv("RULESET_OVERSIZE_LOG_FILE", cfg.Ruleset.OversizeLogFile)
	cfg.Ruleset.LegacyHostnameTagRewrite = getBoolEnv("RULESET_LEGACY_HOSTNAME_TAG_REWRITE", cfg.Ruleset.LegacyHostnameTagRewrite)
}

func applyActionEnv(cfg *Config) {
	cfg.Action.ResumeInterval = getDurationEnv("ACTION_RESUME_INTERVAL", cfg.Action.ResumeInterval)
	cfg.Action.RatelimitIntervalSeconds = getIntEnv("ACTION_RATELIMIT_INTERVAL", cfg.Action.RatelimitIntervalSeconds)
	cfg.Action.RatelimitBurst = getIntEnv("ACTION_RATELIMIT_BURST", cfg.Action.RatelimitBurst)
	cfg.Action.RatelimitDiscardSeverity = getIntEnv("ACTION_RATELIMIT_DISCARD_SEVERITY", cfg.Action.RatelimitDiscardSeverity)
	cfg.Action.SubQueueCapacity = getIntEnv("ACTION_SUBQUEUE_CAPACITY", cfg.Action.SubQueueCapacity)
	cfg.Action.SubQueueNumWorkers = getIntEnv("ACTION_SUBQUEUE_WORKERS", cfg.Action.SubQueueNumWorkers)
}

func applyForwarderEnv(cfg *Config) {
	cfg.Forwarder.Enabled = getBoolEnv("FORWARDER_ENABLED", cfg.Forwarder.Enabled)
	cfg.Forwarder.Name = getEnv("FORWARDER_NAME", cfg.Forwarder.Name)
	cfg.Forwarder.Targets = getEnvSlice("FORWARDER_TARGETS", cfg.Forwarder.Targets)
	cfg.Forwarder.Ports = getIntSliceEnv("FORWARDER_PORTS", cfg.Forwarder.Ports)
	cfg.Forwarder.Protocol = getEnv("FORWARDER_PROTOCOL", cfg.Forwarder.Protocol)
	cfg.Forwarder.Framing = getEnv("FORWARDER_FRAMING", cfg.Forwarder.Framing)
	cfg.Forwarder.Compression = getEnv("FORWARDER_COMPRESSION", cfg.Forwarder.Compression)
	cfg.Forwarder.CompressionThreshold = getIntEnv("FORWARDER_COMPRESSION_THRESHOLD", cfg.Forwarder.CompressionThreshold)
	cfg.Forwarder.CompressionLevel = getIntEnv("FORWARDER_COMPRESSION_LEVEL", cfg.Forwarder.CompressionLevel)
	cfg.Forwarder.FlushCompressionOnTxEnd = getBoolEnv("FORWARDER_FLUSH_COMPRESSION_ON_TX_END", cfg.Forwarder.FlushCompressionOnTxEnd)
	cfg.Forwarder.SendBufferSize = getIntEnv("FORWARDER_SEND_BUFFER_SIZE", cfg.Forwarder.SendBufferSize)
	cfg.Forwarder.RebindInterval = getInt64Env("FORWARDER_REBIND_INTERVAL", cfg.Forwarder.RebindInterval)
	cfg.Forwarder.PoolResumeInterval = getDurationEnv("FORWARDER_POOL_RESUME_INTERVAL", cfg.Forwarder.PoolResumeInterval)
	cfg.Forwarder.UDPSendDelay = getDurationEnv("FORWARDER_UDP_SEND_DELAY", cfg.Forwarder.UDPSendDelay)
	cfg.Forwarder.SendToAll = getBoolEnv("FORWARDER_SEND_TO_ALL", cfg.Forwarder.SendToAll)
	cfg.Forwarder.LocalAddr = getEnv("FORWARDER_LOCAL_ADDR", cfg.Forwarder.LocalAddr)
	cfg.Forwarder.LocalPort = getIntEnv("FORWARDER_LOCAL_PORT", cfg.Forwarder.LocalPort)
	cfg.Forwarder.ConnErrSkip = getIntEnv("FORWARDER_CONN_ERR_SKIP", cfg.Forwarder.ConnErrSkip)
	cfg.Forwarder.DialTimeout = getDurationEnv("FORWARDER_DIAL_TIMEOUT", cfg.Forwarder.DialTimeout)
	applyTLSEnv("FORWARDER", &cfg.Forwarder.TLS)
	cfg.Forwarder.KeepAlive.Enabled = getBoolEnv("FORWARDER_KEEPALIVE_ENABLED", cfg.Forwarder.KeepAlive.Enabled)
	cfg.Forwarder.KeepAlive.Time = getDurationEnv("FORWARDER_KEEPALIVE_TIME", cfg.Forwarder.KeepAlive.Time)
	cfg.Forwarder.KeepAlive.Interval = getDurationEnv("FORWARDER_KEEPALIVE_INTERVAL", cfg.Forwarder.KeepAlive.Interval)
	cfg.Forwarder.KeepAlive.Probes = getIntEnv("FORWARDER_KEEPALIVE_PROBES", cfg.Forwarder.KeepAlive.Probes)
}

func applyMQTTOutputEnv(cfg *Config) {
	cfg.MQTTOutput.Enabled = getBoolEnv("MQTT_ENABLED", cfg.MQTTOutput.Enabled)
	cfg.MQTTOutput.Name = getEnv("MQTT_ACTION_NAME", cfg.MQTTOutput.Name)
	cfg.MQTTOutput.Brokers = getEnvSlice("MQTT_BROKERS", cfg.MQTTOutput.Brokers)
	cfg.MQTTOutput.ClientID = getEnv("MQTT_CLIENT_ID", cfg.MQTTOutput.ClientID)
	cfg.MQTTOutput.QoS = byte(getIntEnv("MQTT_QOS", int(cfg.MQTTOutput.QoS)))
	cfg.MQTTOutput.Topic = getEnv("MQTT_TOPIC", cfg.MQTTOutput.Topic)
	cfg.MQTTOutput.KeepAlive = getDurationEnv("MQTT_KEEP_ALIVE", cfg.MQTTOutput.KeepAlive)
	cfg.MQTTOutput.ConnectTimeout = getDurationEnv("MQTT_CONNECT_TIMEOUT", cfg.MQTTOutput.ConnectTimeout)
	cfg.MQTTOutput.WriteTimeout = getDurationEnv("MQTT_WRITE_TIMEOUT", cfg.MQTTOutput.WriteTimeout)
	cfg.MQTTOutput.OrderMatters = getBoolEnv("MQTT_ORDER_MATTERS", cfg.MQTTOutput.OrderMatters)
	applyTLSEnv("MQTT", &cfg.MQTTOutput.TLS)
}

func applyTLSEnv(prefix string, tls *TLSConfig) {
	tls.Enabled = getBoolEnv(prefix+"_TLS_ENABLED", tls.Enabled)
	tls.CACertFile = getEnv(prefix+"_CA_CERT", tls.CACertFile)
	tls.ClientCertFile = getEnv(prefix+"_CLIENT_CERT", tls.ClientCertFile)
	tls.ClientKeyFile = getEnv(prefix+"_CLIENT_KEY", tls.ClientKeyFile)
	tls.InsecureSkipVerify = getBoolEnv(prefix+"_TLS_INSECURE", tls.InsecureSkipVerify)
	tls.ServerName = getEnv(prefix+"_TLS_SERVER_NAME", tls.ServerName)
	tls.MinVersion = getEnv(prefix+"_TLS_MIN_VERSION", tls.MinVersion)
	tls.PermittedPeers = getEnvSlice(prefix+"_TLS_PERMITTED_PEERS", tls.PermittedPeers)
}

func applyDockerInputEnv(cfg *Config) {
	cfg.DockerInput.Enabled = getBoolEnv("DOCKER_INPUT_ENABLED", cfg.DockerInput.Enabled)
	cfg.DockerInput.Endpoint = getEnv("DOCKER_HOST", cfg.DockerInput.Endpoint)
	cfg.DockerInput.APIVersion = getEnv("DOCKER_API_VERSION", cfg.DockerInput.APIVersion)
	cfg.DockerInput.PollingInterval = getDurationEnv("DOCKER_POLLING_INTERVAL", cfg.DockerInput.PollingInterval)
	cfg.DockerInput.RetrieveNewLogsFromStart = getBoolEnv("DOCKER_RETRIEVE_NEW_LOGS_FROM_START", cfg.DockerInput.RetrieveNewLogsFromStart)
	cfg.DockerInput.DefaultFacility = getIntEnv("DOCKER_DEFAULT_FACILITY", cfg.DockerInput.DefaultFacility)
	cfg.DockerInput.DefaultSeverity = getIntEnv("DOCKER_DEFAULT_SEVERITY", cfg.DockerInput.DefaultSeverity)
}

func applyLifecycleEnv(cfg *Config) {
	cfg.Lifecycle.PidFile = getEnv("RSYSLOG_PIDFILE", cfg.Lifecycle.PidFile)
	cfg.Lifecycle.JanitorInterval = getDurationEnv("JANITOR_INTERVAL", cfg.Lifecycle.JanitorInterval)
	cfg.Lifecycle.MarkInterval = getDurationEnv("MARK_INTERVAL", cfg.Lifecycle.MarkInterval)
	cfg.Lifecycle.PermitCtlC = getBoolEnv("PERMIT_CTLC", cfg.Lifecycle.PermitCtlC)
	cfg.Lifecycle.AbortOnProgramError = getBoolEnv("ABORT_ON_PROGRAM_ERROR", cfg.Lifecycle.AbortOnProgramError)
	cfg.Lifecycle.ErrorMessageCap = getIntEnv("ERROR_MESSAGE_CAP", cfg.Lifecycle.ErrorMessageCap)
}

func applyStatsEnv(cfg *Config) {
	cfg.Stats.Enabled = getBoolEnv("STATS_ENABLED", cfg.Stats.Enabled)
	cfg.Stats.PrometheusPort = getIntEnv("STATS_PORT", cfg.Stats.PrometheusPort)
	cfg.Stats.Namespace = getEnv("STATS_NAMESPACE", cfg.Stats.Namespace)
	cfg.Stats.Subsystem = getEnv("STATS_SUBSYSTEM", cfg.Stats.Subsystem)
	cfg.Stats.SnapshotInterval = getDurationEnv("STATS_SNAPSHOT_INTERVAL", cfg.Stats.SnapshotInterval)
}

func applyHealthEnv(cfg *Config) {
	cfg.Health.Enabled = getBoolEnv("HEALTH_ENABLED", cfg.Health.Enabled)
	cfg.Health.Port = getIntEnv("HEALTH_PORT", cfg.Health.Port)
	cfg.Health.ReadTimeout = getDurationEnv("HEALTH_READ_TIMEOUT", cfg.Health.ReadTimeout)
	cfg.Health.WriteTimeout = getDurationEnv("HEALTH_WRITE_TIMEOUT", cfg.Health.WriteTimeout)
	cfg.Health.CheckInterval = getDurationEnv("HEALTH_CHECK_INTERVAL", cfg.Health.CheckInterval)
}
