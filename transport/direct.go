package transport

import (
	"bytes"
	"io"
	"time"

	"github.com/kanjar-tools/aldlflash/internal/errs"
)

// direct wraps a caller-supplied DuplexStream (e.g. a direct USB-serial
// chip driver) that is already open and configured. It adds the
// deadline-bound ReadExact and non-blocking ReadAvailable semantics the
// Channel interface requires but a bare io.ReadWriteCloser doesn't give.
type direct struct {
	s       DuplexStream
	pending bytes.Buffer
}

func newDirect(s DuplexStream) *direct {
	return &direct{s: s}
}

func (d *direct) Write(b []byte) (int, error) {
	n, err := d.s.Write(b)
	if err != nil {
		return n, &errs.TransportError{Op: "write", Err: err}
	}
	return n, nil
}

func (d *direct) ReadExact(n int, deadline time.Time) ([]byte, error) {
	for d.pending.Len() < n {
		if !time.Now().Before(deadline) {
			return nil, &errs.TimeoutError{Op: "ReadExact", Waited: deadline.String()}
		}
		chunk := make([]byte, n-d.pending.Len())
		read, err := d.s.Read(chunk)
		if read > 0 {
			d.pending.Write(chunk[:read])
		}
		if err != nil && err != io.EOF {
			return nil, &errs.TransportError{Op: "read", Err: err}
		}
		if read == 0 && err == io.EOF {
			return nil, &errs.TransportError{Op: "read", Err: errClosed}
		}
	}
	out := make([]byte, n)
	_, _ = d.pending.Read(out)
	return out, nil
}

func (d *direct) ReadAvailable() ([]byte, error) {
	if d.pending.Len() > 0 {
		out := make([]byte, d.pending.Len())
		_, _ = d.pending.Read(out)
		return out, nil
	}
	return nil, nil
}

func (d *direct) Drain() error {
	d.pending.Reset()
	return nil
}

func (d *direct) Close() error {
	if err := d.s.Close(); err != nil {
		return &errs.TransportError{Op: "close", Err: err}
	}
	return nil
}
