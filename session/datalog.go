package session

import (
	"context"

	"github.com/kanjar-tools/aldlflash/aldl"
	"github.com/kanjar-tools/aldlflash/internal/errs"
)

// DatalogFieldCount is the width of the sensor snapshot mode 1 returns.
const DatalogFieldCount = 57

// DatalogFrame issues one mode-1 request and returns the raw 57-byte
// record. Only valid in StateIdle: datalog is available only before
// silence and is mutually exclusive with programming. Once Silence has
// run the ECU stops replying to mode 1 at all, so this refuses earlier
// rather than waiting out a timeout that can never succeed.
func (s *Session) DatalogFrame(ctx context.Context) ([]byte, error) {
	release, err := s.acquire()
	if err != nil {
		return nil, err
	}
	defer release()
	if err := s.requireState(StateIdle); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, &errs.Cancelled{Stage: "datalog"}
	}
	reply, err := s.framer.Exchange(aldl.Frame{Mode: aldl.ModeDatalog}, aldl.ReplyMode(aldl.ModeDatalog), s.cfg.FrameRetries)
	if err != nil {
		return nil, err
	}
	return reply.Payload, nil
}

// RAMRead performs a raw mode-9 peek. Unlike the flash-operation
// methods it is not gated on KernelResident: a real ECU answers RAM
// reads long before any kernel is uploaded, which is what lets
// Session.Info() surface connect-time metadata before flash
// programming even begins.
func (s *Session) RAMRead(ctx context.Context, addr, n int) ([]byte, error) {
	release, err := s.acquire()
	if err != nil {
		return nil, err
	}
	defer release()
	if err := ctx.Err(); err != nil {
		return nil, &errs.Cancelled{Stage: "ram_read"}
	}
	payload := []byte{byte(addr >> 8), byte(addr), byte(n)}
	reply, err := s.framer.Exchange(aldl.Frame{Mode: aldl.ModeRAMRead, Payload: payload}, aldl.ReplyMode(aldl.ModeRAMRead), s.cfg.FrameRetries)
	if err != nil {
		return nil, err
	}
	return reply.Payload, nil
}
