package transport

import (
	"bytes"
	"time"

	"go.bug.st/serial"

	"github.com/kanjar-tools/aldlflash/internal/errs"
)

// defaultBaud matches the ALDL link's default rate.
const defaultBaud = 8192

// serialTransport drives a real OS serial device via go.bug.st/serial.
// ALDL is 8N1 at 8192 baud by default, which go.bug.st/serial's Mode
// defaults already express except for BaudRate.
type serialTransport struct {
	port    serial.Port
	pending bytes.Buffer
}

func openSerial(path string, baud int) (Channel, error) {
	if baud == 0 {
		baud = defaultBaud
	}
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, &errs.TransportError{Op: "open " + path, Err: err}
	}
	// A small non-zero read timeout lets ReadExact poll for the
	// remaining bytes instead of blocking the OS call past our own
	// deadline.
	if err := port.SetReadTimeout(50 * time.Millisecond); err != nil {
		_ = port.Close()
		return nil, &errs.TransportError{Op: "configure " + path, Err: err}
	}
	return &serialTransport{port: port}, nil
}

// SetBaud implements BaudChanger for the optional post-kernel baud ramp
// capability. Not part of the core contract.
func (s *serialTransport) SetBaud(baud int) error {
	mode := &serial.Mode{BaudRate: baud, DataBits: 8, Parity: serial.NoParity, StopBits: serial.OneStopBit}
	if err := s.port.SetMode(mode); err != nil {
		return &errs.TransportError{Op: "set baud", Err: err}
	}
	return nil
}

func (s *serialTransport) Write(b []byte) (int, error) {
	n, err := s.port.Write(b)
	if err != nil {
		return n, &errs.TransportError{Op: "write", Err: err}
	}
	return n, nil
}

func (s *serialTransport) ReadExact(n int, deadline time.Time) ([]byte, error) {
	for s.pending.Len() < n {
		if !time.Now().Before(deadline) {
			return nil, &errs.TimeoutError{Op: "ReadExact", Waited: deadline.String()}
		}
		chunk := make([]byte, n-s.pending.Len())
		read, err := s.port.Read(chunk)
		if err != nil {
			return nil, &errs.TransportError{Op: "read", Err: err}
		}
		if read > 0 {
			s.pending.Write(chunk[:read])
		}
	}
	out := make([]byte, n)
	_, _ = s.pending.Read(out)
	return out, nil
}

func (s *serialTransport) ReadAvailable() ([]byte, error) {
	if s.pending.Len() > 0 {
		out := make([]byte, s.pending.Len())
		_, _ = s.pending.Read(out)
		return out, nil
	}
	buf := make([]byte, 256)
	n, err := s.port.Read(buf)
	if err != nil {
		return nil, &errs.TransportError{Op: "read", Err: err}
	}
	if n == 0 {
		return nil, nil
	}
	return buf[:n], nil
}

func (s *serialTransport) Drain() error {
	s.pending.Reset()
	return s.port.ResetInputBuffer()
}

func (s *serialTransport) Close() error {
	if err := s.port.Close(); err != nil {
		return &errs.TransportError{Op: "close", Err: err}
	}
	return nil
}
