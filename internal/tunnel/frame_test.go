package tunnel

import (
	"bytes"
	"testing"
)

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteFrame(&buf, TypeHeartbeat, []byte(`{"sequence":1}`)); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	typ, payload, err := ReadFrame(&buf)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if typ != TypeHeartbeat || string(payload) != `{"sequence":1}` {
		t.Fatalf("got type=%v payload=%q", typ, payload)
	}
}

func TestFrameEmptyPayload(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteFrame(&buf, TypeHeartbeatAck, nil); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	typ, payload, err := ReadFrame(&buf)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if typ != TypeHeartbeatAck || len(payload) != 0 {
		t.Fatalf("got type=%v payload=%q", typ, payload)
	}
}

func TestFrameRejectsOversizedLength(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteByte(byte(TypeError))
	buf.Write([]byte{0xFF, 0xFF, 0xFF, 0xFF}) // length far beyond MaxFramePayload
	if _, _, err := ReadFrame(&buf); err == nil {
		t.Fatal("expected an error for an oversized frame length")
	}
}

func TestKnownType(t *testing.T) {
	if KnownType(Type(0x99)) {
		t.Fatal("0x99 is not in the closed set")
	}
	if !KnownType(TypeStreamChunk) {
		t.Fatal("TypeStreamChunk should be known")
	}
}
