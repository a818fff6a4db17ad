package transport

import (
	"bytes"
	"sync"
	"time"

	"github.com/kanjar-tools/aldlflash/internal/errs"
)

// Loopback is an in-process byte pipe. Writes land directly in the read
// buffer, exactly mimicking the self-echo a real half-duplex link
// produces, so the framer's echo-suppression path can be exercised
// without hardware. Tests that additionally want a simulated ECU reply
// behind the echo should use VirtualECUTransport instead.
type Loopback struct {
	mu     sync.Mutex
	buf    bytes.Buffer
	closed bool
}

// NewLoopback constructs an empty loopback channel.
func NewLoopback() *Loopback {
	return &Loopback{}
}

// Feed injects bytes as if they arrived from the far end, ahead of
// whatever a Write would echo. Used by tests to stage a reply frame.
func (l *Loopback) Feed(b []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.buf.Write(b)
}

func (l *Loopback) Write(b []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return 0, &errs.TransportError{Op: "write", Err: errClosed}
	}
	n, _ := l.buf.Write(b)
	return n, nil
}

// pollInterval is how often ReadExact wakes to recheck the deadline and
// buffer state. Fine for a test double; a real transport never polls.
const pollInterval = 2 * time.Millisecond

func (l *Loopback) ReadExact(n int, deadline time.Time) ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for l.buf.Len() < n {
		if l.closed {
			return nil, &errs.TransportError{Op: "ReadExact", Err: errClosed}
		}
		if !time.Now().Before(deadline) {
			return nil, &errs.TimeoutError{Op: "ReadExact", Waited: deadline.String()}
		}
		l.mu.Unlock()
		time.Sleep(pollInterval)
		l.mu.Lock()
	}
	out := make([]byte, n)
	_, _ = l.buf.Read(out)
	return out, nil
}

func (l *Loopback) ReadAvailable() ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.buf.Len() == 0 {
		return nil, nil
	}
	out := make([]byte, l.buf.Len())
	_, _ = l.buf.Read(out)
	return out, nil
}

func (l *Loopback) Drain() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.buf.Reset()
	return nil
}

func (l *Loopback) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return nil
}
