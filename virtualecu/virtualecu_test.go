package virtualecu

import (
	"encoding/binary"
	"testing"

	"github.com/kanjar-tools/aldlflash/aldl"
)

func TestSeedKeyDerivesKeyFromSeed(t *testing.T) {
	e := New(0x1234)
	if e.key != 0xA57D {
		t.Fatalf("key = 0x%04X, want 0xA57D", e.key)
	}

	req, _ := aldl.Encode(aldl.Frame{Mode: aldl.ModeSeedKey})
	replyRaw := e.Respond(req)
	reply, err := aldl.Decode(replyRaw)
	if err != nil {
		t.Fatalf("Decode seed reply: %v", err)
	}
	seed := binary.BigEndian.Uint16(reply.Payload)
	if seed != 0x1234 {
		t.Fatalf("seed reply = 0x%04X, want 0x1234", seed)
	}

	keyPayload := make([]byte, 2)
	binary.BigEndian.PutUint16(keyPayload, 0xA57D)
	req2, _ := aldl.Encode(aldl.Frame{Mode: aldl.ModeSeedKey, Payload: keyPayload})
	reply2Raw := e.Respond(req2)
	reply2, err := aldl.Decode(reply2Raw)
	if err != nil {
		t.Fatalf("Decode key reply: %v", err)
	}
	if reply2.Payload[0] != 0x00 {
		t.Errorf("key accept status = 0x%02X, want 0x00", reply2.Payload[0])
	}
	if !e.authenticated {
		t.Error("ECU not marked authenticated after correct key")
	}
}

func TestSeedKeyRejectsWrongKey(t *testing.T) {
	e := New(0x1234)
	req, _ := aldl.Encode(aldl.Frame{Mode: aldl.ModeSeedKey, Payload: []byte{0x00, 0x00}})
	replyRaw := e.Respond(req)
	reply, _ := aldl.Decode(replyRaw)
	if reply.Payload[0] == 0x00 {
		t.Error("ECU accepted an incorrect key")
	}
	if e.authenticated {
		t.Error("ECU marked authenticated after incorrect key")
	}
}

func TestSilenceProducesNoReply(t *testing.T) {
	e := New(0x1234)
	req, _ := aldl.Encode(aldl.Frame{Mode: aldl.ModeSilence})
	if reply := e.Respond(req); reply != nil {
		t.Errorf("Respond(silence) = %v, want nil", reply)
	}
	if !e.silenced {
		t.Error("ECU not marked silenced")
	}
}

func TestUploadBlockMarksKernelResidentOnceAllThreeArrive(t *testing.T) {
	e := New(0x1234)
	blocks := [][]byte{
		make([]byte, 171),
		make([]byte, 172),
		make([]byte, 156),
	}
	addrs := []int{0x0100, 0x0200, 0x0300}
	for i, b := range blocks {
		payload := make([]byte, 2+len(b))
		binary.BigEndian.PutUint16(payload[:2], uint16(addrs[i]))
		copy(payload[2:], b)
		req, _ := aldl.Encode(aldl.Frame{Mode: aldl.ModeUploadBlock, Payload: payload})
		if e.Respond(req) == nil {
			t.Fatalf("block %d: no reply", i)
		}
		if i < 2 && e.KernelResident() {
			t.Fatalf("kernel marked resident after only %d blocks", i+1)
		}
	}
	if !e.KernelResident() {
		t.Error("kernel not marked resident after all three blocks")
	}
}
