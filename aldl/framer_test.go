package aldl

import (
	"errors"
	"testing"
	"time"

	"github.com/kanjar-tools/aldlflash/internal/errs"
	"github.com/kanjar-tools/aldlflash/transport"
)

func TestExchangeSucceedsAfterCorruptReplies(t *testing.T) {
	lb := transport.NewLoopback()
	fr := New(lb, 200*time.Millisecond)

	req := Frame{Mode: ModeSeedKey}
	good, _ := Encode(Frame{Mode: ReplyMode(ModeSeedKey), Payload: []byte{0x12, 0x34}})

	// The loopback's Write path already deposits the echo in the same
	// buffer Framer.Send drains; we only need to stage replies behind
	// it: two corrupt replies, then a good one.
	go func() {
		time.Sleep(5 * time.Millisecond)
		lb.Feed(corrupt(good))
		time.Sleep(5 * time.Millisecond)
		lb.Feed(corrupt(good))
		time.Sleep(5 * time.Millisecond)
		lb.Feed(good)
	}()

	reply, err := fr.Exchange(req, ReplyMode(ModeSeedKey), 3)
	if err != nil {
		t.Fatalf("Exchange: %v", err)
	}
	if string(reply.Payload) != string([]byte{0x12, 0x34}) {
		t.Errorf("Exchange payload = %v, want [0x12 0x34]", reply.Payload)
	}
}

func TestExchangeExhaustsRetryBudget(t *testing.T) {
	lb := transport.NewLoopback()
	fr := New(lb, 20*time.Millisecond)

	req := Frame{Mode: ModeSeedKey}
	good, _ := Encode(Frame{Mode: ReplyMode(ModeSeedKey), Payload: []byte{0x12, 0x34}})

	go func() {
		for i := 0; i < 4; i++ {
			time.Sleep(5 * time.Millisecond)
			lb.Feed(corrupt(good))
		}
	}()

	_, err := fr.Exchange(req, ReplyMode(ModeSeedKey), 3)
	if err == nil {
		t.Fatal("Exchange: want error after exhausting retry budget, got nil")
	}
	var to *errs.TimeoutError
	if !errors.As(err, &to) {
		t.Errorf("Exchange error = %T (%v), want *errs.TimeoutError once the retry budget is exhausted", err, err)
	}
}

func corrupt(raw []byte) []byte {
	out := append([]byte(nil), raw...)
	out[len(out)-1] ^= 0xFF
	return out
}
