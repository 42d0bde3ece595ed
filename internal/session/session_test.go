package session

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestTokensEqualRejectsDifferentLength(t *testing.T) {
	if TokensEqual("short", "muchlongertoken") {
		t.Fatalf("expected unequal-length tokens to compare unequal")
	}
}

func TestTokensEqualAcceptsMatch(t *testing.T) {
	if !TokensEqual("abc123", "abc123") {
		t.Fatalf("expected equal tokens to compare equal")
	}
}

func TestTokensEqualRejectsSameLengthMismatch(t *testing.T) {
	if TokensEqual("abc123", "abc124") {
		t.Fatalf("expected same-length mismatched tokens to compare unequal")
	}
}

func TestCodecRoundTripsFrames(t *testing.T) {
	var buf bytes.Buffer
	codec := NewCodec(&buf)

	req := Request{Type: "req", ID: json.RawMessage(`"1"`), Method: "ping"}
	if err := codec.WriteFrame(req); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	line, err := codec.ReadFrame()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var got Request
	if err := json.Unmarshal(line, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Method != "ping" {
		t.Fatalf("method = %q, want ping", got.Method)
	}
}

func TestCodecRejectsOversizedFrame(t *testing.T) {
	oversized := strings.Repeat("a", MaxFrameBytes+1) + "\n"
	codec := NewCodec(bytes.NewBufferString(oversized))
	_, err := codec.ReadFrame()
	if err != ErrPayloadTooLarge {
		t.Fatalf("expected ErrPayloadTooLarge, got %v", err)
	}
}

func TestNewEventDoesNotPresetSeq(t *testing.T) {
	e := NewEvent("tick", nil)
	if e.Seq != 0 {
		t.Fatalf("expected seq to be assigned by the caller, got %d", e.Seq)
	}
}
