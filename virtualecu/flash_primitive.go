package virtualecu

import (
	"encoding/binary"

	"github.com/kanjar-tools/aldlflash/aldl"
	"github.com/kanjar-tools/aldlflash/bankmap"
	"github.com/kanjar-tools/aldlflash/kernel"
)

// handleFlashPrimitive dispatches a mode-16 frame to the resident
// kernel's erase/program/checksum/read/cleanup primitives. Payload
// layout: [primitive, addrHi, addrLo, args...], where addr is a CPU
// address within the bank currently shadowed by a prior mode-10 write
// to bankRegisterAddr.
func (e *ECU) handleFlashPrimitive(f aldl.Frame) (aldl.Frame, bool) {
	if len(f.Payload) == 0 {
		return aldl.Frame{Mode: aldl.ReplyMode(f.Mode), Payload: []byte{0x01}}, false
	}
	primitive := f.Payload[0]
	switch primitive {
	case kernel.PrimitiveCleanup:
		e.programming = false
		e.kernelResident = false
		e.authenticated = false
		e.silenced = false
		return aldl.Frame{}, true
	case kernel.PrimitiveErase:
		return e.primitiveErase(f)
	case kernel.PrimitiveProgram:
		return e.primitiveProgram(f)
	case kernel.PrimitiveRead:
		return e.primitiveRead(f)
	case kernel.PrimitiveChecksum:
		return e.primitiveChecksum(f)
	default:
		return aldl.Frame{Mode: aldl.ReplyMode(f.Mode), Payload: []byte{0x01}}, false
	}
}

func (e *ECU) cpuAddrFromPayload(payload []byte) (int, bool) {
	if len(payload) < 3 {
		return 0, false
	}
	return int(binary.BigEndian.Uint16(payload[1:3])), true
}

func (e *ECU) primitiveErase(f aldl.Frame) (aldl.Frame, bool) {
	cpuAddr, ok := e.cpuAddrFromPayload(f.Payload)
	if !ok {
		return aldl.Frame{Mode: aldl.ReplyMode(f.Mode), Payload: []byte{0x01}}, false
	}
	fileOffset, err := bankmap.BankToFileOffset(e.bank, cpuAddr)
	if err != nil {
		return aldl.Frame{Mode: aldl.ReplyMode(f.Mode), Payload: []byte{0x01}}, false
	}
	sector, err := bankmap.SectorFor(fileOffset)
	if err != nil {
		return aldl.Frame{Mode: aldl.ReplyMode(f.Mode), Payload: []byte{0x01}}, false
	}
	runUnlockedErase(e.chip, sector.FileStart)
	return aldl.Frame{Mode: aldl.ReplyMode(f.Mode), Payload: []byte{0x00}}, false
}

func (e *ECU) primitiveProgram(f aldl.Frame) (aldl.Frame, bool) {
	cpuAddr, ok := e.cpuAddrFromPayload(f.Payload)
	if !ok || len(f.Payload) < 4 {
		return aldl.Frame{Mode: aldl.ReplyMode(f.Mode), Payload: []byte{0x01}}, false
	}
	data := f.Payload[3:]
	fileStart, err := bankmap.BankToFileOffset(e.bank, cpuAddr)
	if err != nil {
		return aldl.Frame{Mode: aldl.ReplyMode(f.Mode), Payload: []byte{0x01}}, false
	}
	mismatch := false
	for i, b := range data {
		runUnlockedProgram(e.chip, fileStart+i, b)
		if e.chip.TookMismatch() {
			mismatch = true
		}
	}
	status := byte(0x00)
	if mismatch {
		status = 0x02
	}
	readback := make([]byte, len(data))
	for i := range readback {
		readback[i] = e.chip.Read(fileStart + i)
	}
	reply := append([]byte{status}, readback...)
	return aldl.Frame{Mode: aldl.ReplyMode(f.Mode), Payload: reply}, false
}

func (e *ECU) primitiveRead(f aldl.Frame) (aldl.Frame, bool) {
	if len(f.Payload) < 5 {
		return aldl.Frame{Mode: aldl.ReplyMode(f.Mode), Payload: nil}, false
	}
	cpuAddr := int(binary.BigEndian.Uint16(f.Payload[1:3]))
	n := int(binary.BigEndian.Uint16(f.Payload[3:5]))
	fileStart, err := bankmap.BankToFileOffset(e.bank, cpuAddr)
	if err != nil {
		return aldl.Frame{Mode: aldl.ReplyMode(f.Mode), Payload: nil}, false
	}
	out := make([]byte, n)
	for i := range out {
		out[i] = e.chip.Read(fileStart + i)
	}
	return aldl.Frame{Mode: aldl.ReplyMode(f.Mode), Payload: out}, false
}

// calWindowStart/End bound the calibration sector the checksum word
// covers.
const (
	calWindowStart  = 0x4000
	calWindowEnd    = 0x8000
	checksumWordOff = 0x4006
)

func (e *ECU) primitiveChecksum(f aldl.Frame) (aldl.Frame, bool) {
	var sum byte
	for off := calWindowStart; off < calWindowEnd; off++ {
		if off == checksumWordOff || off == checksumWordOff+1 {
			continue
		}
		sum += e.chip.Read(off)
	}
	// Two's-complement of the 8-bit window sum, placed in the high byte
	// with the low byte held at zero: the value a correctly checksummed
	// image carries in its embedded word, so write_image can compare
	// this primitive's result to that word directly.
	fix := -sum
	payload := make([]byte, 2)
	binary.BigEndian.PutUint16(payload, uint16(fix)<<8)
	return aldl.Frame{Mode: aldl.ReplyMode(f.Mode), Payload: payload}, false
}

// runUnlockedErase drives the chip's AMD unlock sequence and issues a
// sector erase at fileStart. It is the simulator's side of what the
// real kernel's erase primitive does internally.
func runUnlockedErase(c chipWriter, fileStart int) {
	c.Write(0x5555, 0xAA)
	c.Write(0x2AAA, 0x55)
	c.Write(0x5555, 0x80)
	c.Write(0x5555, 0xAA)
	c.Write(0x2AAA, 0x55)
	c.Write(fileStart, 0x30)
	for c.Busy() {
		c.Read(fileStart)
	}
}

// runUnlockedProgram drives the chip's AMD unlock sequence and issues
// a single byte program at addr.
func runUnlockedProgram(c chipWriter, addr int, data byte) {
	c.Write(0x5555, 0xAA)
	c.Write(0x2AAA, 0x55)
	c.Write(0x5555, 0xA0)
	c.Write(addr, data)
	for c.Busy() {
		c.Read(addr)
	}
}

// chipWriter is the slice of *flash.Chip's surface the unlock helpers
// need; declared narrowly so those helpers are easy to unit test
// against a fake if flash's own tests ever want to reuse them.
type chipWriter interface {
	Write(addr int, data byte)
	Read(addr int) byte
	Busy() bool
	TookMismatch() bool
}
