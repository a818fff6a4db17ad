// Package session implements the silence → seed/key → programming
// mode → kernel upload → flash operation loop → cleanup state machine,
// owning the transport exclusively for its lifetime and enforcing the
// ordering guarantees at the type level: an operation illegal in the
// current state returns a *errs.ProtocolError rather than being
// attempted. Modeled on the way jmchacon/6502's cpu package
// centralizes a Chip's legal-state checks (cpu.InvalidCPUState) around
// a single owning struct rather than scattering them across callers.
package session

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kanjar-tools/aldlflash/aldl"
	"github.com/kanjar-tools/aldlflash/internal/errs"
	"github.com/kanjar-tools/aldlflash/kernel"
	"github.com/kanjar-tools/aldlflash/transport"
)

// State enumerates the session lifecycle.
type State int

const (
	StateUnimplemented  State = iota // Start of valid enumerations.
	StateIdle                       // No authentication performed yet.
	StateSilenced                   // Mode 8 broadcast sent; ECU chatter suppressed.
	StateAuthenticated              // Seed/key exchange succeeded.
	StateProgramming                // Mode 5 accepted; ECU in programming mode.
	StateKernelResident             // All three kernel blocks uploaded and acknowledged.
	StateFailed                     // Fatal error occurred; only Close is permitted.
	StateMax                        // End of valid enumerations.
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateSilenced:
		return "Silenced"
	case StateAuthenticated:
		return "Authenticated"
	case StateProgramming:
		return "Programming"
	case StateKernelResident:
		return "KernelResident"
	case StateFailed:
		return "Failed"
	default:
		return "Unimplemented"
	}
}

// Config holds the protocol timing parameters, retry budget, chunk
// size, and other tunables a caller sets when opening a session. It
// plays the role of jmchacon/6502's cpu.ChipDef: a plain struct of
// collaborators and knobs passed into a single Open/Init entry point.
type Config struct {
	// FrameTimeout is the per-frame exchange deadline, default 2s.
	FrameTimeout time.Duration
	// FrameRetries is how many additional attempts the framer makes
	// per frame exchange.
	FrameRetries int
	// SectorEraseTimeout defaults to 3s. EraseSector does not read it:
	// each erase exchange is bounded by FrameTimeout and FrameRetries.
	SectorEraseTimeout time.Duration
	// ChunkSize is the program-frame payload size, 32-64 bytes,
	// default 32.
	ChunkSize int
	// ByteRetryBudget is how many times a single mismatched byte is
	// reprogrammed before the sector is declared failed, default 10.
	ByteRetryBudget int
	// Features are the kernel byte patches to apply before upload.
	Features []kernel.Feature
	// Logger receives structured events (stage, sector, offset, attempt)
	// as the session progresses. Logging is a collaborator, not a core
	// concern, so nothing below this field ever formats output itself.
	// Defaults to slog.Default() if nil.
	Logger *slog.Logger
}

// defaults fills in any zero-valued fields of cfg with their documented
// defaults.
func (cfg Config) withDefaults() Config {
	if cfg.FrameTimeout <= 0 {
		cfg.FrameTimeout = 2 * time.Second
	}
	if cfg.FrameRetries <= 0 {
		cfg.FrameRetries = 3
	}
	if cfg.SectorEraseTimeout <= 0 {
		cfg.SectorEraseTimeout = 3 * time.Second
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 32
	}
	if cfg.ByteRetryBudget <= 0 {
		cfg.ByteRetryBudget = 10
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return cfg
}

// maxChunkSize is the largest program-frame payload the protocol
// allows.
const maxChunkSize = 64

// Report is the machine-readable record of a fatal error's stopping
// point: the last successful sector and offset, so a subsequent run
// can resume or compare against a bench-read image.
type Report struct {
	LastSector int
	LastOffset int
	Err        error
}

// progressSnapshot is published via a sequence counter so an observer
// goroutine can read consistent (stage, done, total) triples without
// locking, the way jmchacon/6502's cpu_test.go uses sync/atomic for
// its circular instruction buffer across a potential observer.
type progressSnapshot struct {
	seq   uint64
	stage string
	done  int64
	total int64
}

// Session owns a transport exclusively and drives it through the ALDL
// handshake and flash operation loop.
type Session struct {
	cfg    Config
	ch     transport.Channel
	framer *aldl.Framer

	mu    sync.Mutex
	state State
	busy  bool
	bank  int

	lastReport atomic.Value // Report

	progress atomic.Value // progressSnapshot
	progSeq  uint64
}

// Open constructs a Session over an already-opened transport. The
// session takes exclusive ownership of the transport from this point
// on and releases it on Close.
func Open(ch transport.Channel, cfg Config) *Session {
	cfg = cfg.withDefaults()
	s := &Session{
		cfg:    cfg,
		ch:     ch,
		framer: aldl.New(ch, cfg.FrameTimeout),
		state:  StateIdle,
	}
	s.publishProgress("idle", 0, 0)
	return s
}

// State returns the session's current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LastReport returns the report from the most recent fatal error, or
// the zero Report if none has occurred.
func (s *Session) LastReport() Report {
	if v := s.lastReport.Load(); v != nil {
		return v.(Report)
	}
	return Report{}
}

// Progress returns the most recently published (stage, done, total)
// triple. Safe to call from any goroutine, including one observing a
// running long operation, via a lock-free snapshot.
func (s *Session) Progress() (stage string, done, total int64) {
	v := s.progress.Load()
	if v == nil {
		return "", 0, 0
	}
	p := v.(progressSnapshot)
	return p.stage, p.done, p.total
}

func (s *Session) publishProgress(stage string, done, total int64) {
	s.progSeq++
	s.progress.Store(progressSnapshot{seq: s.progSeq, stage: stage, done: done, total: total})
}

// acquire marks the session busy for the duration of one operation,
// enforcing the single-threaded cooperative model: a second concurrent
// operation fails immediately with Busy.
func (s *Session) acquire() (release func(), err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy {
		return nil, &errs.Busy{}
	}
	if s.state == StateFailed {
		return nil, &errs.ProtocolError{Reason: "session failed, only Close is permitted"}
	}
	s.busy = true
	return func() {
		s.mu.Lock()
		s.busy = false
		s.mu.Unlock()
	}, nil
}

func (s *Session) setState(next State) {
	s.mu.Lock()
	s.state = next
	s.mu.Unlock()
}

func (s *Session) fail(err error, sector, offset int) error {
	s.setState(StateFailed)
	s.lastReport.Store(Report{LastSector: sector, LastOffset: offset, Err: err})
	s.cfg.Logger.Error("session failed", "sector", sector, "offset", offset, "err", err)
	return err
}

// requireState returns a ProtocolError if the session isn't currently
// in want, enforcing the session's ordering invariant at every entry
// point rather than only at the top of the call chain.
func (s *Session) requireState(want State) error {
	got := s.State()
	if got != want {
		return &errs.ProtocolError{Reason: fmt.Sprintf("operation requires state %s, session is %s", want, got)}
	}
	return nil
}

// Silence broadcasts mode 8 and transitions Idle -> Silenced. Must
// precede Authenticate.
func (s *Session) Silence(ctx context.Context) error {
	release, err := s.acquire()
	if err != nil {
		return err
	}
	defer release()
	if err := s.requireState(StateIdle); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return &errs.Cancelled{Stage: "silence"}
	}
	if err := s.framer.Broadcast(aldl.Frame{Mode: aldl.ModeSilence}); err != nil {
		return s.fail(err, -1, -1)
	}
	s.setState(StateSilenced)
	s.cfg.Logger.Info("session silenced")
	return nil
}

// seedKeyMagic mirrors virtualecu's constant; duplicated here (rather
// than imported) because the real seed/key transform is a property of
// the wire protocol the session speaks, independent of any particular
// ECU implementation: key = (seed+0x9349) mod 2^16.
const seedKeyMagic = 0x9349

// Authenticate runs the two-step seed/key exchange (mode 13) and
// transitions Silenced -> Authenticated. Any failure here is fatal.
func (s *Session) Authenticate(ctx context.Context) error {
	release, err := s.acquire()
	if err != nil {
		return err
	}
	defer release()
	if err := s.requireState(StateSilenced); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return &errs.Cancelled{Stage: "authenticate"}
	}

	seedReply, err := s.framer.Exchange(aldl.Frame{Mode: aldl.ModeSeedKey}, aldl.ReplyMode(aldl.ModeSeedKey), s.cfg.FrameRetries)
	if err != nil {
		return s.fail(err, -1, -1)
	}
	if len(seedReply.Payload) != 2 {
		return s.fail(&errs.AuthError{Reason: "seed reply had unexpected length"}, -1, -1)
	}
	seed := binary.BigEndian.Uint16(seedReply.Payload)
	key := (seed + seedKeyMagic) & 0xFFFF

	keyPayload := make([]byte, 2)
	binary.BigEndian.PutUint16(keyPayload, key)
	keyReply, err := s.framer.Exchange(aldl.Frame{Mode: aldl.ModeSeedKey, Payload: keyPayload}, aldl.ReplyMode(aldl.ModeSeedKey), s.cfg.FrameRetries)
	if err != nil {
		return s.fail(err, -1, -1)
	}
	if len(keyReply.Payload) != 1 || keyReply.Payload[0] != 0x00 {
		return s.fail(&errs.AuthError{Reason: "ECU rejected derived key"}, -1, -1)
	}
	s.setState(StateAuthenticated)
	s.cfg.Logger.Info("session authenticated", "seed", seed, "key", key)
	return nil
}

// EnterProgramming sends mode 5 and transitions Authenticated ->
// Programming.
func (s *Session) EnterProgramming(ctx context.Context) error {
	release, err := s.acquire()
	if err != nil {
		return err
	}
	defer release()
	if err := s.requireState(StateAuthenticated); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return &errs.Cancelled{Stage: "enter_programming"}
	}
	reply, err := s.framer.Exchange(aldl.Frame{Mode: aldl.ModeEnterProgramming}, aldl.ReplyMode(aldl.ModeEnterProgramming), s.cfg.FrameRetries)
	if err != nil {
		return s.fail(err, -1, -1)
	}
	if len(reply.Payload) != 1 || reply.Payload[0] != 0x00 {
		return s.fail(&errs.ProtocolError{Reason: "ECU refused programming mode"}, -1, -1)
	}
	s.setState(StateProgramming)
	return nil
}

// UploadKernel uploads the three kernel blocks (mode 6 x 3, patches
// applied before send per the configured Features) and transitions
// Programming -> KernelResident.
func (s *Session) UploadKernel(ctx context.Context) error {
	release, err := s.acquire()
	if err != nil {
		return err
	}
	defer release()
	if err := s.requireState(StateProgramming); err != nil {
		return err
	}

	payload, err := kernel.Load()
	if err != nil {
		return s.fail(err, -1, -1)
	}

	for i := 0; i < kernel.NumBlocks; i++ {
		if err := ctx.Err(); err != nil {
			return &errs.Cancelled{Stage: "upload_kernel"}
		}
		block, err := payload.Block(i, s.cfg.Features...)
		if err != nil {
			return s.fail(err, -1, -1)
		}
		addr, err := kernel.Addr(i)
		if err != nil {
			return s.fail(err, -1, -1)
		}
		req := make([]byte, 2+len(block))
		binary.BigEndian.PutUint16(req[:2], uint16(addr))
		copy(req[2:], block)
		reply, err := s.framer.Exchange(aldl.Frame{Mode: aldl.ModeUploadBlock, Payload: req}, aldl.ReplyMode(aldl.ModeUploadBlock), s.cfg.FrameRetries)
		if err != nil {
			return s.fail(err, -1, -1)
		}
		if len(reply.Payload) != 1 || reply.Payload[0] != 0x00 {
			return s.fail(&errs.ProtocolError{Reason: fmt.Sprintf("ECU rejected kernel block %d", i)}, -1, -1)
		}
		s.publishProgress("upload_kernel", int64(i+1), kernel.NumBlocks)
		s.cfg.Logger.Debug("kernel block uploaded", "block", i)
	}
	s.setState(StateKernelResident)
	s.cfg.Logger.Info("kernel resident")
	return nil
}

// Cleanup sends the kernel's cleanup byte and transitions
// KernelResident -> Idle. It is idempotent and best-effort: a failure
// to get an ACK does not prevent the session from returning to Idle,
// since the ECU resets regardless and the transport is about to be
// released.
func (s *Session) Cleanup(ctx context.Context) error {
	release, err := s.acquire()
	if err != nil {
		return err
	}
	defer release()
	if s.State() != StateKernelResident {
		// Idempotent: calling cleanup from any other state is a no-op.
		return nil
	}
	_ = s.framer.Broadcast(aldl.Frame{Mode: aldl.ModeFlashWrite, Payload: []byte{kernel.PrimitiveCleanup}})
	s.setState(StateIdle)
	return nil
}

// Close releases the session's transport. Always permitted, including
// from StateFailed.
func (s *Session) Close() error {
	return s.ch.Close()
}

// setBank issues the mode-10 RAM write that sets the bank register
// shadow, skipping the wire round trip when the requested bank is
// already the one in effect.
func (s *Session) setBank(bank int) error {
	s.mu.Lock()
	current := s.bank
	s.mu.Unlock()
	if current == bank {
		return nil
	}
	payload := []byte{0x00, bankRegisterAddr, byte(bank)}
	reply, err := s.framer.Exchange(aldl.Frame{Mode: aldl.ModeRAMWrite, Payload: payload}, aldl.ReplyMode(aldl.ModeRAMWrite), s.cfg.FrameRetries)
	if err != nil {
		return err
	}
	if len(reply.Payload) != 1 || reply.Payload[0] != 0x00 {
		return &errs.ProtocolError{Reason: "ECU rejected bank register write"}
	}
	s.mu.Lock()
	s.bank = bank
	s.mu.Unlock()
	return nil
}

// bankRegisterAddr mirrors virtualecu's constant: the RAM-shadowed
// address the kernel watches for bank switches. A mode-10 write there
// is how the session changes which 16 KiB window appears at the
// kernel-mediated CPU address space.
const bankRegisterAddr = 0x0040
