package aldl

import (
	"testing"

	"github.com/go-test/deep"
)

func TestEncodeChecksumIsZeroSum(t *testing.T) {
	tests := []Frame{
		{Mode: ModeSeedKey, Payload: nil},
		{Mode: ModeFlashWrite, Payload: []byte{0x48, 0x20, 0x00, 0xAA, 0xBB, 0xCC}},
		{Mode: ModeDatalog, Payload: make([]byte, 57)},
	}
	for _, f := range tests {
		raw, err := Encode(f)
		if err != nil {
			t.Fatalf("Encode(%+v): %v", f, err)
		}
		if got := Sum(raw); got != 0 {
			t.Errorf("Encode(%+v) sum = 0x%02X, want 0", f, got)
		}
	}
}

func TestDecodeRoundTrip(t *testing.T) {
	want := Frame{Mode: ModeSeedKey, Payload: []byte{0x12, 0x34}}
	raw, err := Encode(want)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if diff := deep.Equal(want, got); diff != nil {
		t.Errorf("round trip mismatch: %v", diff)
	}
}

func TestDecodeRejectsBadDeviceID(t *testing.T) {
	raw := []byte{0x00, 0x04, byte(ModeSeedKey), 0xFC}
	if _, err := Decode(raw); err == nil {
		t.Fatal("Decode: want error for bad device id, got nil")
	}
}

func TestDecodeRejectsChecksumMismatch(t *testing.T) {
	raw := []byte{DeviceID, 0x04, byte(ModeSeedKey), 0x00}
	if _, err := Decode(raw); err == nil {
		t.Fatal("Decode: want error for checksum mismatch, got nil")
	}
}

func TestDecodeRejectsLengthMismatch(t *testing.T) {
	f := Frame{Mode: ModeSeedKey, Payload: []byte{0x12, 0x34}}
	raw, err := Encode(f)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	truncated := raw[:len(raw)-1]
	if _, err := Decode(truncated); err == nil {
		t.Fatal("Decode: want error for length mismatch, got nil")
	}
}

func TestReplyModeTogglesHighBit(t *testing.T) {
	if got, want := ReplyMode(ModeSeedKey), Mode(0x8D); got != want {
		t.Errorf("ReplyMode(%d) = 0x%02X, want 0x%02X", ModeSeedKey, got, want)
	}
}
