// Package transport defines the byte-stream channel the ALDL framer drives
// and the concrete variants that implement it: real serial hardware, a
// direct driver handed an already-open io.ReadWriteCloser, an in-process
// loopback for testing the framer, and a virtual-ECU channel used as a
// test oracle. Every implementation here satisfies memory.Bank-style
// narrow interfaces the way jmchacon/6502's memory package does: a single
// Channel interface, multiple interchangeable backers.
package transport

import (
	"time"

	"github.com/kanjar-tools/aldlflash/internal/errs"
)

// Channel is the capability set every transport variant implements. The
// physical link is half-duplex: every Write is followed by a self-echo
// that a subsequent ReadExact will see first. Echo suppression is the
// framer's job (package aldl), not the transport's.
type Channel interface {
	// ReadExact blocks until n bytes have arrived or the deadline passes.
	// Returns a *errs.TimeoutError if the deadline elapses first.
	ReadExact(n int, deadline time.Time) ([]byte, error)
	// ReadAvailable returns whatever bytes are immediately available
	// without blocking, possibly none.
	ReadAvailable() ([]byte, error)
	// Write is best-effort synchronous; it returns once the bytes have
	// been handed to the underlying channel.
	Write(b []byte) (int, error)
	// Drain discards any bytes currently buffered for read, used to
	// resynchronize after a protocol violation.
	Drain() error
	// Close releases the channel. Idempotent.
	Close() error
}

// BaudChanger is an optional capability a transport may additionally
// implement to support a post-kernel baud ramp. The session never
// assumes a transport has it; it type-asserts opportunistically.
type BaudChanger interface {
	SetBaud(baud int) error
}

// Spec describes how to open a transport. Exactly one of the fields
// below should be populated; Kind selects which.
type Spec struct {
	Kind Kind

	// SerialPath and SerialBaud configure a real serial transport.
	SerialPath string
	SerialBaud int

	// Direct supplies an already-open duplex byte stream for
	// DirectTransport (e.g. a USB-serial chip driver's own handle).
	Direct DuplexStream

	// VirtualECU, if non-nil, is used directly as the backing ECU for a
	// VirtualECUTransport instead of constructing a default one.
	VirtualECU ECUResponder
}

// Kind selects which transport variant Open constructs.
type Kind int

const (
	KindUnimplemented Kind = iota // Start of valid enumerations.
	KindSerial                    // Real hardware over an OS serial device.
	KindDirect                    // Caller-supplied io.ReadWriteCloser.
	KindLoopback                  // In-process byte pipe, for framer tests.
	KindVirtualECU                // Simulated ECU, for protocol/session tests.
	KindMax                       // End of valid enumerations.
)

// DuplexStream is the minimal read/write/close surface DirectTransport
// wraps. io.ReadWriteCloser satisfies this directly.
type DuplexStream interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
}

// ECUResponder is implemented by package virtualecu's ECU type. Declared
// here (rather than importing virtualecu, which would create a cycle
// since virtualecu embeds a transport) so VirtualECUTransport can drive
// one without the two packages depending on each other directly.
type ECUResponder interface {
	// Respond consumes a raw frame written by the tool and returns the
	// raw reply frame bytes the ECU would have sent back, or nil if the
	// ECU stays silent (e.g. after mode 8).
	Respond(frame []byte) []byte
}

// Open constructs the transport variant named by spec.Kind.
func Open(spec Spec) (Channel, error) {
	switch spec.Kind {
	case KindSerial:
		return openSerial(spec.SerialPath, spec.SerialBaud)
	case KindDirect:
		if spec.Direct == nil {
			return nil, &errs.ValidationError{Reason: "direct transport requires a non-nil stream"}
		}
		return newDirect(spec.Direct), nil
	case KindLoopback:
		return NewLoopback(), nil
	case KindVirtualECU:
		return newVirtualECUTransport(spec.VirtualECU), nil
	default:
		return nil, &errs.ValidationError{Reason: "unknown transport kind"}
	}
}
