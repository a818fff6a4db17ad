package transport

import (
	"bytes"
	"time"

	"github.com/kanjar-tools/aldlflash/internal/errs"
)

// virtualECUTransport mimics the half-duplex wire exactly: a Write is
// immediately echoed into the read buffer (as the real link's electrical
// echo would be), and the simulated ECU's reply, if any, is appended
// behind it so a ReadExact that discards the echo first sees the reply
// next, same ordering a real bench session observes.
type virtualECUTransport struct {
	ecu    ECUResponder
	buf    bytes.Buffer
	closed bool
}

func newVirtualECUTransport(ecu ECUResponder) *virtualECUTransport {
	return &virtualECUTransport{ecu: ecu}
}

func (v *virtualECUTransport) Write(b []byte) (int, error) {
	if v.closed {
		return 0, &errs.TransportError{Op: "write", Err: errClosed}
	}
	v.buf.Write(b)
	if reply := v.ecu.Respond(b); len(reply) > 0 {
		v.buf.Write(reply)
	}
	return len(b), nil
}

func (v *virtualECUTransport) ReadExact(n int, deadline time.Time) ([]byte, error) {
	if v.buf.Len() < n {
		if v.closed {
			return nil, &errs.TransportError{Op: "ReadExact", Err: errClosed}
		}
		return nil, &errs.TimeoutError{Op: "ReadExact", Waited: deadline.String()}
	}
	out := make([]byte, n)
	_, _ = v.buf.Read(out)
	return out, nil
}

func (v *virtualECUTransport) ReadAvailable() ([]byte, error) {
	if v.buf.Len() == 0 {
		return nil, nil
	}
	out := make([]byte, v.buf.Len())
	_, _ = v.buf.Read(out)
	return out, nil
}

func (v *virtualECUTransport) Drain() error {
	v.buf.Reset()
	return nil
}

func (v *virtualECUTransport) Close() error {
	v.closed = true
	return nil
}
