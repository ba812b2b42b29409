package tunnel

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/SuperInstance/tripartite/internal/router"
)

// Config holds the Tunnel's timeout/backoff policy (spec.md §4.6/§5).
type Config struct {
	ConnectTimeout   time.Duration
	RequestTimeout   time.Duration
	HeartbeatInterval time.Duration
	PrewarmDebounce   time.Duration

	BackoffInitial time.Duration
	BackoffMult    float64
	BackoffCap     time.Duration
	MaxAttempts    int
}

// DefaultConfig returns spec.md §4.6/§5's documented defaults.
func DefaultConfig() Config {
	return Config{
		ConnectTimeout:    30 * time.Second,
		RequestTimeout:    60 * time.Second,
		HeartbeatInterval: 30 * time.Second,
		PrewarmDebounce:   60 * time.Second,
		BackoffInitial:    1 * time.Second,
		BackoffMult:       2.0,
		BackoffCap:        60 * time.Second,
		MaxAttempts:       10,
	}
}

// Dialer opens the raw transport the Tunnel layers TLS and framing over —
// injected so tests can substitute an in-memory pipe for a real net.Dial.
type Dialer interface {
	Dial(ctx context.Context) (net.Conn, error)
}

// TCPDialer dials a TLS connection to addr using tlsConfig.
type TCPDialer struct {
	Addr      string
	TLSConfig *tls.Config
}

func (d *TCPDialer) Dial(ctx context.Context) (net.Conn, error) {
	dialer := &net.Dialer{}
	raw, err := dialer.DialContext(ctx, "tcp", d.Addr)
	if err != nil {
		return nil, err
	}
	tlsConn := tls.Client(raw, d.TLSConfig)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		raw.Close()
		return nil, fmt.Errorf("%w: %v", ErrAuthFailed, err)
	}
	return tlsConn, nil
}

// Tunnel maintains one persistent framed connection to a remote peer.
type Tunnel struct {
	Config   Config
	Dialer   Dialer
	DeviceID string

	machine *Machine
	mu      sync.Mutex
	conn    net.Conn

	seq          uint64
	missedAcks   int
	lastPrewarm  time.Time
}

// NewTunnel constructs a Tunnel in StateDisconnected.
func NewTunnel(cfg Config, dialer Dialer, deviceID string) *Tunnel {
	return &Tunnel{Config: cfg, Dialer: dialer, DeviceID: deviceID, machine: NewMachine()}
}

// State returns the current observable state.
func (t *Tunnel) State() Snapshot { return t.machine.Current() }

// Subscribe observes every future state transition.
func (t *Tunnel) Subscribe() <-chan Snapshot { return t.machine.Subscribe() }

// Connect dials once and, on failure, enters the reconnect loop.
func (t *Tunnel) Connect(ctx context.Context) error {
	if err := t.machine.Transition(Snapshot{State: StateConnecting}); err != nil {
		return err
	}
	return t.dialAndReconnect(ctx)
}

func (t *Tunnel) dialAndReconnect(ctx context.Context) error {
	connectCtx, cancel := context.WithTimeout(ctx, t.connectTimeout())
	conn, err := t.Dialer.Dial(connectCtx)
	cancel()
	if err == nil {
		t.mu.Lock()
		t.conn = conn
		t.missedAcks = 0
		t.mu.Unlock()
		return t.machine.Transition(Snapshot{State: StateConnected, Since: time.Now()})
	}

	return t.reconnectLoop(ctx, err)
}

// reconnectLoop implements spec.md §4.6's exponential backoff policy:
// multiplier 2.0 starting at 1s, capped at 60s, failing after 10 attempts.
func (t *Tunnel) reconnectLoop(ctx context.Context, lastErr error) error {
	delay := t.Config.BackoffInitial
	for attempt := 1; attempt <= t.maxAttempts(); attempt++ {
		if err := t.machine.Transition(Snapshot{State: StateReconnecting, Attempt: attempt, LastError: lastErr}); err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		if err := t.machine.Transition(Snapshot{State: StateConnecting}); err != nil {
			return err
		}

		connectCtx, cancel := context.WithTimeout(ctx, t.connectTimeout())
		conn, err := t.Dialer.Dial(connectCtx)
		cancel()
		if err == nil {
			t.mu.Lock()
			t.conn = conn
			t.missedAcks = 0
			t.mu.Unlock()
			return t.machine.Transition(Snapshot{State: StateConnected, Since: time.Now()})
		}
		lastErr = err

		delay = time.Duration(float64(delay) * t.backoffMult())
		if delay > t.backoffCap() {
			delay = t.backoffCap()
		}
	}

	if err := t.machine.Transition(Snapshot{State: StateFailed, LastError: lastErr}); err != nil {
		return err
	}
	return fmt.Errorf("tunnel: exhausted %d reconnect attempts: %w", t.maxAttempts(), lastErr)
}

// Disconnect cleanly closes the connection and resets to StateDisconnected.
func (t *Tunnel) Disconnect() error {
	t.mu.Lock()
	conn := t.conn
	t.conn = nil
	t.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
	return t.machine.Transition(Snapshot{State: StateDisconnected})
}

type heartbeatPayload struct {
	DeviceID string  `json:"device_id"`
	Sequence uint64  `json:"sequence"`
	GPULoad  float64 `json:"gpu_load"`
	GPUTemp  float64 `json:"gpu_temp"`
}

type heartbeatAckPayload struct {
	ServerTime   int64  `json:"server_time"`
	LatencyMS    int64  `json:"latency_ms"`
	ServerStatus string `json:"server_status"`
}

// Heartbeat sends one heartbeat and waits for its ack, enforcing P12's
// strictly increasing sequence numbers within this tunnel's lifetime.
// Three consecutive missed acks trigger a disconnect/reconnect cycle.
func (t *Tunnel) Heartbeat(ctx context.Context, gpuLoad, gpuTemp float64) (int64, error) {
	conn, err := t.activeConn()
	if err != nil {
		return 0, err
	}

	seq := atomic.AddUint64(&t.seq, 1)
	payload, err := json.Marshal(heartbeatPayload{DeviceID: t.DeviceID, Sequence: seq, GPULoad: gpuLoad, GPUTemp: gpuTemp})
	if err != nil {
		return 0, err
	}

	if err := WriteFrame(conn, TypeHeartbeat, payload); err != nil {
		t.recordMissedAck(ctx)
		return 0, err
	}

	typ, respPayload, err := ReadFrame(conn)
	if err != nil || typ != TypeHeartbeatAck {
		t.recordMissedAck(ctx)
		if err != nil {
			return 0, err
		}
		return 0, &ProtocolError{Frame: respPayload, Cause: fmt.Errorf("expected HeartbeatAck, got type %d", typ)}
	}

	var ack heartbeatAckPayload
	if err := json.Unmarshal(respPayload, &ack); err != nil {
		return 0, &ProtocolError{Frame: respPayload, Cause: err}
	}
	t.mu.Lock()
	t.missedAcks = 0
	t.mu.Unlock()
	return ack.LatencyMS, nil
}

// recordMissedAck disconnects and reconnects once three consecutive acks
// have been missed (spec.md §4.6 Heartbeat).
func (t *Tunnel) recordMissedAck(ctx context.Context) {
	t.mu.Lock()
	t.missedAcks++
	missed := t.missedAcks
	t.mu.Unlock()
	if missed >= 3 {
		_ = t.Disconnect()
		go t.Connect(ctx)
	}
}

// MaybeSendPrewarm emits a PrewarmSignal when vitals cross spec.md §4.6's
// thresholds, debounced to at most once per PrewarmDebounce window.
func (t *Tunnel) MaybeSendPrewarm(gpuLoad, gpuTemp float64) (bool, error) {
	if gpuLoad <= 0.8 && gpuTemp <= 80.0 {
		return false, nil
	}
	t.mu.Lock()
	if time.Since(t.lastPrewarm) < t.Config.PrewarmDebounce {
		t.mu.Unlock()
		return false, nil
	}
	t.lastPrewarm = time.Now()
	t.mu.Unlock()

	conn, err := t.activeConn()
	if err != nil {
		return false, err
	}
	payload, _ := json.Marshal(map[string]float64{"gpu_load": gpuLoad, "gpu_temp": gpuTemp})
	if err := WriteFrame(conn, TypePrewarmSignal, payload); err != nil {
		return false, err
	}
	return true, nil
}

// Escalate implements router.RemotePeer: send an EscalationRequest frame,
// wait for its EscalationResponse.
func (t *Tunnel) Escalate(ctx context.Context, req router.EscalationRequest) (router.EscalationResponse, error) {
	conn, err := t.activeConn()
	if err != nil {
		return router.EscalationResponse{}, err
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return router.EscalationResponse{}, err
	}
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
		defer conn.SetDeadline(time.Time{})
	}
	if err := WriteFrame(conn, TypeEscalationRequest, payload); err != nil {
		return router.EscalationResponse{}, err
	}

	typ, respPayload, err := ReadFrame(conn)
	if err != nil {
		return router.EscalationResponse{}, err
	}
	if typ == TypeError {
		return router.EscalationResponse{}, &ProtocolError{Frame: respPayload, Cause: fmt.Errorf("remote returned an error frame")}
	}
	if typ != TypeEscalationResponse {
		return router.EscalationResponse{}, &ProtocolError{Frame: respPayload, Cause: fmt.Errorf("unexpected frame type %d", typ)}
	}

	var resp router.EscalationResponse
	if err := json.Unmarshal(respPayload, &resp); err != nil {
		return router.EscalationResponse{}, &ProtocolError{Frame: respPayload, Cause: err}
	}
	return resp, nil
}

func (t *Tunnel) activeConn() (net.Conn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conn == nil {
		return nil, ErrNotConnected
	}
	return t.conn, nil
}

func (t *Tunnel) connectTimeout() time.Duration {
	if t.Config.ConnectTimeout > 0 {
		return t.Config.ConnectTimeout
	}
	return DefaultConfig().ConnectTimeout
}

func (t *Tunnel) maxAttempts() int {
	if t.Config.MaxAttempts > 0 {
		return t.Config.MaxAttempts
	}
	return DefaultConfig().MaxAttempts
}

func (t *Tunnel) backoffMult() float64 {
	if t.Config.BackoffMult > 0 {
		return t.Config.BackoffMult
	}
	return DefaultConfig().BackoffMult
}

func (t *Tunnel) backoffCap() time.Duration {
	if t.Config.BackoffCap > 0 {
		return t.Config.BackoffCap
	}
	return DefaultConfig().BackoffCap
}
