package aldl

import (
	"errors"
	"fmt"
	"time"

	"github.com/kanjar-tools/aldlflash/internal/errs"
	"github.com/kanjar-tools/aldlflash/transport"
)

// Framer drives a transport.Channel with ALDL framing: it transmits a
// request, discards the self-echo the half-duplex link produces, then
// reads and decodes the reply. All echo suppression lives here, not in
// the transport.
type Framer struct {
	ch      transport.Channel
	timeout time.Duration
}

// New wraps ch with ALDL framing, using timeout as the default
// per-frame deadline.
func New(ch transport.Channel, timeout time.Duration) *Framer {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Framer{ch: ch, timeout: timeout}
}

// Send transmits f and discards exactly as many bytes as were written
// (the self-echo) before returning. It does not wait for a reply.
func (fr *Framer) Send(f Frame) error {
	raw, err := Encode(f)
	if err != nil {
		return err
	}
	if _, err := fr.ch.Write(raw); err != nil {
		return err
	}
	deadline := time.Now().Add(fr.timeout)
	if _, err := fr.ch.ReadExact(len(raw), deadline); err != nil {
		return fmt.Errorf("discarding echo: %w", err)
	}
	return nil
}

// receiveReply reads a reply frame header (device id + length byte)
// byte-by-byte-safe: it reads device id and length first, then the
// remaining declared bytes, then decodes and validates the whole thing.
func (fr *Framer) receiveReply(deadline time.Time) (Frame, error) {
	head, err := fr.ch.ReadExact(2, deadline)
	if err != nil {
		return Frame{}, err
	}
	if head[0] != DeviceID {
		return Frame{}, &errs.FrameError{Reason: fmt.Sprintf("bad device id 0x%02X", head[0])}
	}
	total := decodeLength(head[1])
	if total < 4 {
		return Frame{}, &errs.FrameError{Reason: fmt.Sprintf("declared length %d too short", total)}
	}
	rest, err := fr.ch.ReadExact(total-2, deadline)
	if err != nil {
		return Frame{}, err
	}
	raw := append(append([]byte(nil), head...), rest...)
	return Decode(raw)
}

// Exchange transmits f, discards its echo, then reads a reply whose
// mode equals expectedMode. On any decode failure, timeout, or mode
// mismatch it retries the whole transmit/receive cycle up to retries
// additional times. A *errs.TransportError aborts immediately since the
// link itself is gone; any other failure that survives every retry
// surfaces as a *errs.TimeoutError, since from the caller's
// perspective no usable reply arrived within the allotted attempts
// regardless of why each individual attempt failed.
func (fr *Framer) Exchange(f Frame, expectedMode Mode, retries int) (Frame, error) {
	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		reply, err := fr.exchangeOnce(f)
		if err == nil {
			if reply.Mode != expectedMode {
				lastErr = &errs.ProtocolError{Reason: fmt.Sprintf("got mode %d, want %d", reply.Mode, expectedMode)}
				continue
			}
			return reply, nil
		}
		lastErr = err
		var te *errs.TransportError
		if errors.As(lastErr, &te) {
			// Fatal: the link itself is gone, no point retrying.
			return Frame{}, lastErr
		}
	}
	// The retry budget is exhausted: whatever kept failing (corrupt
	// checksum, truncated frame, wrong reply mode) behaves the same as
	// a timeout from the caller's perspective — no usable reply arrived
	// within the allotted attempts — so it surfaces as one.
	if to, ok := lastErr.(*errs.TimeoutError); ok {
		to.Retried = true
		return Frame{}, to
	}
	return Frame{}, &errs.TimeoutError{Op: fmt.Sprintf("exchange (last error: %v)", lastErr), Retried: true}
}

func (fr *Framer) exchangeOnce(f Frame) (Frame, error) {
	if err := fr.Send(f); err != nil {
		return Frame{}, err
	}
	deadline := time.Now().Add(fr.timeout)
	return fr.receiveReply(deadline)
}

// Broadcast sends f (e.g. mode 8 silence) without expecting any reply,
// discarding only the echo.
func (fr *Framer) Broadcast(f Frame) error {
	return fr.Send(f)
}
