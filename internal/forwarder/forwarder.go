// Package forwarder implements the omfwd output: a UDP
// or TCP pool with per-target connection state, framing, optional
// streaming/per-message compression, send-buffer batching, rebinding, and
// per-target suspend/resume driven by a resume timer. It satisfies
// ports.OutputAction so internal/action can drive it through the usual
// beginTransaction/doAction/commitTransaction contract.
//
package forwarder

import "time"

// Protocol selects the transport a target pool speaks.
type Protocol int

const (
	ProtocolUDP Protocol = iota
	ProtocolTCP
)

func (p Protocol) String() string {
	if p == ProtocolTCP {
		return "tcp"
	}
	return "udp"
}

// Framing selects how TCP messages are delimited on the wire.
type Framing int

const (
	// FramingOctetStuffing appends Delimiter (default LF) after each message.
	FramingOctetStuffing Framing = iota
	// FramingOctetCounting emits "<ascii-decimal-length> <payload>".
	FramingOctetCounting
)

// CompressionMode selects omfwd's compression behavior.
type CompressionMode int

const (
	CompressionNone CompressionMode = iota
	// CompressionSingle deflates each message standalone, above Threshold,
	// prefixed with a single 'z' marker; falls back to raw bytes if the
	// compressed form is not smaller.
	CompressionSingle
	// CompressionStream keeps one persistent deflate stream per target for
	// the life of the connection.
	CompressionStream
)

// maxSendBuffer is the hard cap on a target's TCP send buffer; the
// configurable size may only shrink it.
const maxSendBuffer = 16 * 1024

// maxUDPPayload is the largest single UDP datagram this pool will attempt
// to send without truncating.
const maxUDPPayload = 65507

// defaultPoolResumeInterval matches omfwd.c's poolResumeInterval default.
const defaultPoolResumeInterval = 30 * time.Second

// defaultCompressionLevel matches omfwd.c's compressionLevel default (9).
const defaultCompressionLevel = 9

// TLSConfig carries the TLS options for TCP targets: CA and client
// key/cert files, an expected server name, and a permitted-peer list
// checked against the verified leaf certificate. Anything beyond what
// crypto/tls's standard chain verification enforces is out of scope; a
// pluggable driver layer is not.
type TLSConfig struct {
	Enabled            bool
	CAFile             string
	CertFile           string
	KeyFile            string
	ServerName         string
	MinVersion         string
	InsecureSkipVerify bool
	PermittedPeers     []string
}

// KeepAliveConfig tunes optional TCP keep-alive probing on targets.
type KeepAliveConfig struct {
	Enabled  bool
	Time     time.Duration
	Interval time.Duration
	Probes   int
}

// Config configures a Pool. The forwarder owns N targets and M ports,
// M <= N; targets without their own port entry use ports[0].
type Config struct {
	Name string

	Targets []string
	Ports   []int

	Protocol Protocol
	Framing  Framing
	// Delimiter is the octet-stuffing terminator byte, default LF.
	Delimiter byte

	Compression             CompressionMode
	CompressionThreshold    int
	CompressionLevel        int // 0..10; 10 means "zlib default"
	FlushCompressionOnTxEnd bool

	SendBufferSize int // capped at maxSendBuffer

	// RebindInterval is the number of messages sent on a target before it
	// is torn down and reconnected, 0 disables rebinding.
	RebindInterval int64

	PoolResumeInterval time.Duration

	// UDPSendDelay paces consecutive sends in send-to-all mode.
	UDPSendDelay time.Duration
	SendToAll    bool
	LocalAddr    string
	LocalPort    int

	// ConnErrSkip: every Nth connection-class error on a target is logged;
	// 0 or 1 logs every occurrence. There is one count per target, shared
	// by every error kind; it is not kept per distinct error.
	ConnErrSkip int

	DialTimeout time.Duration
	TLS         TLSConfig
	KeepAlive   KeepAliveConfig
}

// DefaultConfig returns the classic omfwd defaults: octet-stuffed TCP
// with an LF delimiter, zlib level 9, a 30s pool resume interval.
func DefaultConfig() Config {
	return Config{
		Protocol:                ProtocolTCP,
		Framing:                 FramingOctetStuffing,
		Delimiter:               '\n',
		Compression:             CompressionNone,
		CompressionThreshold:    60,
		CompressionLevel:        defaultCompressionLevel,
		FlushCompressionOnTxEnd: true,
		SendBufferSize:          maxSendBuffer,
		PoolResumeInterval:      defaultPoolResumeInterval,
		ConnErrSkip:             10,
		DialTimeout:             10 * time.Second,
	}
}
