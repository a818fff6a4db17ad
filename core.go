// Package core is the thin public surface external collaborators drive:
// OpenSession, and on the returned Session, ReadImage/WriteImage/
// Datalog/Info/Close. It exists so an external collaborator (CLI,
// bench harness, test rig) never has to reach directly into
// session/flashops/transport; everything below this package is free
// to change shape as long as this surface holds.
// Modeled on the way jmchacon/6502's vcs package is the one entry
// point atari2600's cpu/pia6532/tia pieces are assembled behind.
package core

import (
	"context"
	"time"

	"github.com/kanjar-tools/aldlflash/bankmap"
	"github.com/kanjar-tools/aldlflash/flashops"
	"github.com/kanjar-tools/aldlflash/session"
	"github.com/kanjar-tools/aldlflash/transport"
)

// Mode selects which sectors and file range a WriteImage call touches.
// Re-exported here so callers of this package never need to import
// bankmap directly.
type Mode = bankmap.Mode

const (
	ModeBIN  = bankmap.ModeBIN
	ModeCAL  = bankmap.ModeCAL
	ModePROM = bankmap.ModePROM
)

// ProgressFunc reports (stage, bytes done, bytes total) for a
// long-running operation.
type ProgressFunc = flashops.ProgressFunc

// WriteOptions configures WriteImage beyond the per-mode defaults.
type WriteOptions = flashops.WriteOptions

// Report summarizes a completed write_image call.
type Report = flashops.Report

// Row is a decoded datalog record.
type Row = flashops.Row

// EcuInfo is the connect-time metadata a caller can read before any
// flash operation begins: a part-number-style tag and an OS ID read
// out of a fixed RAM window. Real hardware's exact layout is
// calibration-specific; this is the simulator/session pair's
// documented convention, not a claim about any particular controller's
// memory map.
type EcuInfo struct {
	PartNumber string
	OSID       uint16
}

// ecuInfoAddr/Len is the RAM window Info() peeks. An internal
// convention of this tool, reconstructed the same way bankRegisterAddr
// is: no available reference specifies the real address.
const (
	ecuInfoAddr = 0x0000
	ecuInfoLen  = 4
)

// Session is the public handle returned by OpenSession. It owns a
// transport and the session/kernel state machine underneath.
type Session struct {
	s *session.Session
}

// Config mirrors session.Config, re-exported so callers configure
// timeouts/retries/features without importing package session.
type Config = session.Config

// OpenSession opens transport and drives it to a flash-ready state:
// silence, seed/key authenticate, enter programming, and upload the
// kernel. The returned Session is already KernelResident;
// ReadImage/WriteImage may be called immediately.
func OpenSession(ctx context.Context, spec transport.Spec, cfg Config) (*Session, error) {
	ch, err := transport.Open(spec)
	if err != nil {
		return nil, err
	}
	s := session.Open(ch, cfg)
	if err := s.Silence(ctx); err != nil {
		return nil, err
	}
	if err := s.Authenticate(ctx); err != nil {
		return nil, err
	}
	if err := s.EnterProgramming(ctx); err != nil {
		return nil, err
	}
	if err := s.UploadKernel(ctx); err != nil {
		return nil, err
	}
	return &Session{s: s}, nil
}

// OpenDatalogSession opens transport without driving the
// silence/authenticate/programming sequence, for the datalog-only use
// case: datalog is only available before silence, and is mutually
// exclusive with programming. Call Datalog on the result;
// WriteImage/ReadImage are not valid on a Session opened this way
// until the caller separately authenticates it.
func OpenDatalogSession(spec transport.Spec, cfg Config) (*Session, error) {
	ch, err := transport.Open(spec)
	if err != nil {
		return nil, err
	}
	return &Session{s: session.Open(ch, cfg)}, nil
}

// ReadImage reads the full 128 KiB image.
func (c *Session) ReadImage(ctx context.Context, progress ProgressFunc) ([]byte, error) {
	return flashops.ReadFull(ctx, c.s, progress)
}

// WriteImage validates, erases, programs, and verifies image under
// mode.
func (c *Session) WriteImage(ctx context.Context, mode Mode, image []byte, opts WriteOptions, progress ProgressFunc) (Report, error) {
	return flashops.WriteImage(ctx, c.s, mode, image, opts, progress)
}

// Datalog starts a dedicated datalog worker at interval, handing each
// decoded row to sink until the returned cancellation token is called
// or sink returns an error. Only valid on a Session still in StateIdle
// (see OpenDatalogSession); a Session returned by OpenSession has
// already moved past Idle and will reject this.
func (c *Session) Datalog(ctx context.Context, interval time.Duration, sink func(Row) error) (cancel func() error) {
	return flashops.DatalogStream(ctx, c.s, interval, sink)
}

// Info reads the connect-time metadata window.
func (c *Session) Info(ctx context.Context) (EcuInfo, error) {
	raw, err := c.s.RAMRead(ctx, ecuInfoAddr, ecuInfoLen)
	if err != nil {
		return EcuInfo{}, err
	}
	if len(raw) < ecuInfoLen {
		return EcuInfo{}, nil
	}
	return EcuInfo{
		PartNumber: formatPartNumber(raw[:2]),
		OSID:       uint16(raw[2])<<8 | uint16(raw[3]),
	}, nil
}

func formatPartNumber(b []byte) string {
	const hex = "0123456789ABCDEF"
	out := make([]byte, 0, len(b)*2)
	for _, v := range b {
		out = append(out, hex[v>>4], hex[v&0x0F])
	}
	return string(out)
}

// LastReport returns the machine-readable stopping point of the most
// recent fatal error.
func (c *Session) LastReport() session.Report {
	return c.s.LastReport()
}

// Progress returns the most recent (stage, done, total) snapshot.
func (c *Session) Progress() (stage string, done, total int64) {
	return c.s.Progress()
}

// Cleanup sends the kernel's cleanup primitive and returns the ECU to
// its normal run mode, independent of Close.
func (c *Session) Cleanup(ctx context.Context) error {
	return c.s.Cleanup(ctx)
}

// Close releases the underlying transport.
func (c *Session) Close() error {
	return c.s.Close()
}
