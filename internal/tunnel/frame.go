// Package tunnel implements the persistent, mTLS-authenticated, framed
// connection to a remote peer (spec.md §4.6).
package tunnel

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Type is the closed set of wire frame types (spec.md §4.6).
type Type byte

const (
	TypeHeartbeat          Type = 0x01
	TypeHeartbeatAck       Type = 0x02
	TypeEscalationRequest  Type = 0x03
	TypeEscalationResponse Type = 0x04
	TypeStreamChunk        Type = 0x05
	TypePrewarmSignal      Type = 0x06
	TypeError              Type = 0x07
)

// MaxFramePayload bounds a single frame's payload to guard against a
// malformed length prefix forcing an unbounded allocation.
const MaxFramePayload = 16 << 20 // 16 MiB

// WriteFrame writes one frame: [1-byte type][4-byte big-endian length][payload].
func WriteFrame(w io.Writer, typ Type, payload []byte) error {
	header := make([]byte, 5)
	header[0] = byte(typ)
	binary.BigEndian.PutUint32(header[1:], uint32(len(payload)))
	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("tunnel: write frame header: %w", err)
	}
	if len(payload) == 0 {
		return nil
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("tunnel: write frame payload: %w", err)
	}
	return nil
}

// ReadFrame reads one frame from r, enforcing MaxFramePayload.
func ReadFrame(r io.Reader) (Type, []byte, error) {
	header := make([]byte, 5)
	if _, err := io.ReadFull(r, header); err != nil {
		return 0, nil, fmt.Errorf("tunnel: read frame header: %w", err)
	}
	typ := Type(header[0])
	length := binary.BigEndian.Uint32(header[1:])
	if length > MaxFramePayload {
		return 0, nil, &ProtocolError{Cause: fmt.Errorf("frame length %d exceeds max %d", length, MaxFramePayload)}
	}
	if length == 0 {
		return typ, nil, nil
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return 0, nil, fmt.Errorf("tunnel: read frame payload: %w", err)
	}
	return typ, payload, nil
}

// KnownType reports whether typ is a member of the closed set.
func KnownType(typ Type) bool {
	switch typ {
	case TypeHeartbeat, TypeHeartbeatAck, TypeEscalationRequest, TypeEscalationResponse,
		TypeStreamChunk, TypePrewarmSignal, TypeError:
		return true
	default:
		return false
	}
}
