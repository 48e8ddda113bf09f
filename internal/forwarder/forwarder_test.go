package forwarder

import (
	"bytes"
	"compress/zlib"
	"context"
	"io"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/rsyslog-go/daemon/internal/message"
	"github.com/rsyslog-go/daemon/internal/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testLogger satisfies ports.Logger with no-ops, just enough to exercise
// forwarder code paths that log on connection errors.
type testLogger struct{}

func (testLogger) Trace(msg string, fields ...ports.Field)      {}
func (testLogger) Debug(msg string, fields ...ports.Field)      {}
func (testLogger) Info(msg string, fields ...ports.Field)       {}
func (testLogger) Warn(msg string, fields ...ports.Field)       {}
func (testLogger) Error(msg string, fields ...ports.Field)      {}
func (testLogger) Fatal(msg string, fields ...ports.Field)      {}
func (l testLogger) WithFields(fields ...ports.Field) ports.Logger { return l }

func newMsg(text string) *message.Message {
	m := message.Construct(time.Unix(1700000000, 0).UTC())
	m.Hostname = "host1"
	m.AppName = "app"
	m.Tag = "app:"
	m.Facility = message.FacilityUser
	m.Severity = message.SeverityInfo
	m.MSG = []byte(text)
	return m
}

// --- scenario A: a single UDP forward ---

func TestPool_SingleUDPForward(t *testing.T) {
	pc, addr := startUDPServer(t)
	defer pc.Close()

	host, portStr, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.Protocol = ProtocolUDP
	cfg.Targets = []string{host}
	cfg.Ports = []int{port}

	pool := New(cfg, testLogger{})
	defer pool.Close()

	status := pool.DoAction(context.Background(), newMsg("single udp message"))
	assert.Equal(t, ports.ActionOK, status)

	buf := make([]byte, 2048)
	_ = pc.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, _, err := pc.ReadFrom(buf)
	require.NoError(t, err)
	assert.Contains(t, string(buf[:n]), "single udp message")
}

// --- scenario B: TCP octet-counted frame ---

func TestPool_TCPOctetCounting(t *testing.T) {
	ln, addr := startTCPServer(t)
	defer ln.Close()

	host, portStr, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	received := make(chan []byte, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		buf := make([]byte, 4096)
		n, _ := conn.Read(buf)
		received <- buf[:n]
	}()

	cfg := DefaultConfig()
	cfg.Protocol = ProtocolTCP
	cfg.Framing = FramingOctetCounting
	cfg.Targets = []string{host}
	cfg.Ports = []int{port}

	pool := New(cfg, testLogger{})
	defer pool.Close()

	status := pool.DoAction(context.Background(), newMsg("octet counted"))
	require.Equal(t, ports.ActionOK, status)
	require.Equal(t, ports.ActionOK, pool.CommitTransaction(context.Background()))

	select {
	case data := <-received:
		s := string(data)
		sp := strings.IndexByte(s, ' ')
		require.Greater(t, sp, 0)
		n, err := strconv.Atoi(s[:sp])
		require.NoError(t, err)
		assert.Equal(t, n, len(s)-sp-1)
		assert.Contains(t, s, "octet counted")
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame")
	}
}

// --- scenario C: pool with one dead target ---

func TestPool_SkipsDeadTargetAndUsesNext(t *testing.T) {
	ln, addr := startTCPServer(t)
	defer ln.Close()

	host, portStr, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	received := make(chan []byte, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		buf := make([]byte, 4096)
		n, _ := conn.Read(buf)
		received <- buf[:n]
	}()

	cfg := DefaultConfig()
	cfg.Protocol = ProtocolTCP
	cfg.Targets = []string{"127.0.0.1", host}
	cfg.Ports = []int{1, port} // port 1 is reliably unreachable without root

	pool := New(cfg, testLogger{})
	defer pool.Close()

	status := pool.DoAction(context.Background(), newMsg("failover message"))
	require.Equal(t, ports.ActionOK, status)
	require.Equal(t, ports.ActionOK, pool.CommitTransaction(context.Background()))

	select {
	case data := <-received:
		assert.Contains(t, string(data), "failover message")
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame on surviving target")
	}
}

// --- framing and compression unit coverage ---

func TestFrame_OctetStuffingAndCounting(t *testing.T) {
	stuffed := frame(FramingOctetStuffing, '\n', []byte("hello"))
	assert.Equal(t, "hello\n", string(stuffed))

	counted := frame(FramingOctetCounting, '\n', []byte("hello"))
	assert.Equal(t, "5 hello", string(counted))
}

func TestCompressSingle_RoundTrips(t *testing.T) {
	payload := bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog "), 20)
	out := compressSingle(payload, 60, 9)
	require.NotEqual(t, payload, out)
	require.Equal(t, byte('z'), out[0])

	r, err := zlib.NewReader(bytes.NewReader(out[1:]))
	require.NoError(t, err)
	defer r.Close()
	roundTripped, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, payload, roundTripped)
}

func TestCompressSingle_BelowThresholdUnchanged(t *testing.T) {
	payload := []byte("short")
	out := compressSingle(payload, 60, 9)
	assert.Equal(t, payload, out)
}

func TestStreamCompressor_FlushIsDecodable(t *testing.T) {
	sc, err := newStreamCompressor(9)
	require.NoError(t, err)

	require.NoError(t, sc.Write([]byte("first frame\n")))
	chunk1, err := sc.Flush()
	require.NoError(t, err)
	require.NotEmpty(t, chunk1)

	require.NoError(t, sc.Write([]byte("second frame\n")))
	chunk2, err := sc.Flush()
	require.NoError(t, err)

	var all bytes.Buffer
	all.Write(chunk1)
	all.Write(chunk2)

	r, err := zlib.NewReader(&all)
	require.NoError(t, err)
	defer r.Close()
	// A sync flush does not terminate the zlib stream, so read exactly the
	// flushed bytes rather than reading to EOF.
	want := "first frame\nsecond frame\n"
	out := make([]byte, len(want))
	_, err = io.ReadFull(r, out)
	require.NoError(t, err)
	assert.Equal(t, want, string(out))
}

func startUDPServer(t *testing.T) (*net.UDPConn, string) {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	return conn, conn.LocalAddr().String()
}

func startTCPServer(t *testing.T) (net.Listener, string) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	return ln, ln.Addr().String()
}

func TestRebindArmsResumeTimer(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RebindInterval = 1
	cfg.PoolResumeInterval = time.Hour
	tg := newTarget("127.0.0.1", 514, cfg, testLogger{})

	tg.maybeRebind()

	err := tg.ensureConnected(context.Background())
	require.ErrorIs(t, err, errResumePending)
}

func TestPool_StreamCompressionBuffersUntilCommit(t *testing.T) {
	ln, addr := startTCPServer(t)
	defer ln.Close()

	host, portStr, err := net.SplitHostPort(addr)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	collected := make(chan []byte, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		var all bytes.Buffer
		buf := make([]byte, 4096)
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		for {
			n, rerr := conn.Read(buf)
			all.Write(buf[:n])
			if rerr != nil {
				break
			}
		}
		collected <- all.Bytes()
	}()

	cfg := DefaultConfig()
	cfg.Protocol = ProtocolTCP
	cfg.Compression = CompressionStream
	cfg.Targets = []string{host}
	cfg.Ports = []int{port}

	pool := New(cfg, testLogger{})
	ctx := context.Background()
	require.Equal(t, ports.ActionOK, pool.BeginTransaction(ctx))
	require.Equal(t, ports.ActionOK, pool.DoAction(ctx, newMsg("stream one")))
	require.Equal(t, ports.ActionOK, pool.DoAction(ctx, newMsg("stream two")))
	require.Equal(t, ports.ActionOK, pool.CommitTransaction(ctx))
	require.NoError(t, pool.Close())

	data := <-collected
	require.NotEmpty(t, data)

	r, err := zlib.NewReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer r.Close()
	out, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Contains(t, string(out), "stream one")
	assert.Contains(t, string(out), "stream two")
}
