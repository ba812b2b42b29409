package tunnel

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/SuperInstance/tripartite/internal/router"
)

type pipeDialer struct {
	conn net.Conn
	err  error
}

func (d *pipeDialer) Dial(ctx context.Context) (net.Conn, error) {
	if d.err != nil {
		return nil, d.err
	}
	return d.conn, nil
}

func TestConnectSuccess(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()
	tun := NewTunnel(DefaultConfig(), &pipeDialer{conn: client}, "device-1")

	if err := tun.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if tun.State().State != StateConnected {
		t.Fatalf("state = %v, want Connected", tun.State().State)
	}
}

func TestReconnectExhaustsToFailed(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BackoffInitial = time.Millisecond
	cfg.BackoffCap = 2 * time.Millisecond
	cfg.MaxAttempts = 2
	cfg.ConnectTimeout = 50 * time.Millisecond

	tun := NewTunnel(cfg, &pipeDialer{err: errors.New("connection refused")}, "device-1")
	err := tun.Connect(context.Background())
	if err == nil {
		t.Fatal("expected reconnect loop to fail")
	}
	if tun.State().State != StateFailed {
		t.Fatalf("state = %v, want Failed", tun.State().State)
	}
}

func TestHeartbeatSequenceIncreases(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	tun := NewTunnel(DefaultConfig(), &pipeDialer{conn: client}, "device-1")
	if err := tun.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	serverSeqs := make(chan uint64, 2)
	go func() {
		for i := 0; i < 2; i++ {
			typ, payload, err := ReadFrame(server)
			if err != nil || typ != TypeHeartbeat {
				return
			}
			var hb heartbeatPayload
			json.Unmarshal(payload, &hb)
			serverSeqs <- hb.Sequence

			ackPayload, _ := json.Marshal(heartbeatAckPayload{ServerTime: 1, LatencyMS: 5, ServerStatus: "ok"})
			WriteFrame(server, TypeHeartbeatAck, ackPayload)
		}
	}()

	if _, err := tun.Heartbeat(context.Background(), 0.1, 40); err != nil {
		t.Fatalf("Heartbeat: %v", err)
	}
	if _, err := tun.Heartbeat(context.Background(), 0.1, 40); err != nil {
		t.Fatalf("Heartbeat: %v", err)
	}

	first := <-serverSeqs
	second := <-serverSeqs
	if second <= first {
		t.Fatalf("sequence not strictly increasing: %d then %d", first, second)
	}
}

func TestEscalateRoundTrip(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	tun := NewTunnel(DefaultConfig(), &pipeDialer{conn: client}, "device-1")
	if err := tun.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	go func() {
		typ, payload, err := ReadFrame(server)
		if err != nil || typ != TypeEscalationRequest {
			return
		}
		var req router.EscalationRequest
		json.Unmarshal(payload, &req)

		resp := router.EscalationResponse{Text: "reply to " + req.RedactedQuery, TokensIn: 3, TokensOut: 4}
		respPayload, _ := json.Marshal(resp)
		WriteFrame(server, TypeEscalationResponse, respPayload)
	}()

	resp, err := tun.Escalate(context.Background(), router.EscalationRequest{RedactedQuery: "hello"})
	if err != nil {
		t.Fatalf("Escalate: %v", err)
	}
	if resp.Text != "reply to hello" {
		t.Fatalf("resp.Text = %q, want echoed reply", resp.Text)
	}
}

func TestPrewarmDebounced(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	cfg := DefaultConfig()
	cfg.PrewarmDebounce = time.Hour
	tun := NewTunnel(cfg, &pipeDialer{conn: client}, "device-1")
	if err := tun.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	go func() {
		ReadFrame(server) // drain the one expected PrewarmSignal frame
	}()

	sent, err := tun.MaybeSendPrewarm(0.95, 50)
	if err != nil {
		t.Fatalf("MaybeSendPrewarm: %v", err)
	}
	if !sent {
		t.Fatal("expected first prewarm signal to send")
	}

	sent2, err := tun.MaybeSendPrewarm(0.95, 50)
	if err != nil {
		t.Fatalf("MaybeSendPrewarm (debounced): %v", err)
	}
	if sent2 {
		t.Fatal("expected second prewarm signal within debounce window to be suppressed")
	}
}
