package core

import "github.com/kanjar-tools/aldlflash/internal/errs"

// The error taxonomy is defined once in the internal errs package so
// every layer (transport, aldl, flash, session, flashops)
// can construct and match it with errors.As without an import cycle;
// these aliases give external callers of this package's public API the
// same types without reaching into internal/errs directly, the way
// jmchacon/6502 keeps irq.Sender and memory.Bank as the one shared
// vocabulary its chip packages depend on.
type (
	TransportError  = errs.TransportError
	FrameError      = errs.FrameError
	TimeoutError    = errs.TimeoutError
	ProtocolError   = errs.ProtocolError
	AuthError       = errs.AuthError
	FlashError      = errs.FlashError
	ValidationError = errs.ValidationError
	Cancelled       = errs.Cancelled
	Busy            = errs.Busy
)

// FlashErrorKind re-exports the NOR-layer failure-mode enum.
type FlashErrorKind = errs.FlashErrorKind

const (
	EraseFailed      = errs.EraseFailed
	ProgramMismatch  = errs.ProgramMismatch
	ChecksumMismatch = errs.ChecksumMismatch
)
