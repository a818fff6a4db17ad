// Package virtualecu simulates the controller side of every ALDL mode
// the protocol exercises, wrapping a *flash.Chip the way a real ECU
// wraps the actual Am29F010. It exists so the session state machine
// and flash operations can be driven and fault-tested without
// hardware: it pre-seeds its heartbeat so cold connect is instant, and
// supports deterministic fault injection for exercising the framer's
// retry discipline.
//
// Modeled on the way jmchacon/6502's atari2600 package pulls together
// several chip packages (cpu, pia6532, tia) behind one coherent device;
// here a single chip (flash) is pulled together with the ALDL mode
// dispatch table.
package virtualecu

import (
	"encoding/binary"

	"github.com/kanjar-tools/aldlflash/aldl"
	"github.com/kanjar-tools/aldlflash/bankmap"
	"github.com/kanjar-tools/aldlflash/flash"
	"github.com/kanjar-tools/aldlflash/kernel"
)

// seedKeyMagic is the constant the reference tool adds to the seed to
// derive the expected key: key = (seed+0x9349) mod 2^16.
const seedKeyMagic = 0x9349

// ramSize is large enough to hold the three kernel blocks at their
// documented load addresses plus headroom for mode 9/10 peeks/pokes.
const ramSize = 0x0400

// Fault lets a test deterministically corrupt or drop the ECU's next
// reply, exercising the framer's retry discipline without relying on
// real link noise.
type Fault int

const (
	FaultNone        Fault = iota // No fault injected.
	FaultCorruptOnce              // Corrupt the next reply's checksum once, then behave normally.
	FaultDropOnce                 // Drop (don't send) the next reply once.
)

// ECU simulates the controller. It satisfies transport.ECUResponder.
type ECU struct {
	seed uint16
	key  uint16

	silenced      bool
	authenticated bool
	programming   bool

	ram [ramSize]byte

	kernelResident bool
	kernelBlocks   [kernel.NumBlocks]bool

	bank int

	chip *flash.Chip

	pendingFault Fault
}

// New returns an ECU pre-seeded with seed, wrapping a freshly erased
// flash chip. A pre-seeded heartbeat makes cold connect instant: the
// ECU never simulates the normal-mode chatter a real controller emits
// before silence, since nothing in this pipeline consumes it.
func New(seed uint16) *ECU {
	return &ECU{
		seed: seed,
		key:  (seed + seedKeyMagic) & 0xFFFF,
		chip: flash.New(),
	}
}

// NewFromImage is like New but seeds the backing flash chip with image
// instead of starting fully erased, for round-trip tests that begin
// from a known-good image.
func NewFromImage(seed uint16, image []byte) (*ECU, error) {
	chip, err := flash.NewFromImage(image)
	if err != nil {
		return nil, err
	}
	return &ECU{
		seed: seed,
		key:  (seed + seedKeyMagic) & 0xFFFF,
		chip: chip,
	}, nil
}

// InjectFault arms f for the ECU's next reply.
func (e *ECU) InjectFault(f Fault) { e.pendingFault = f }

// Chip exposes the backing flash model for test assertions.
func (e *ECU) Chip() *flash.Chip { return e.chip }

// Respond implements transport.ECUResponder. req is the raw encoded
// frame the framer transmitted (after Decode would parse it). It
// returns the raw reply frame bytes, or nil for a mode with no reply
// (silence) or while a fault drops the reply.
func (e *ECU) Respond(req []byte) []byte {
	f, err := aldl.Decode(req)
	if err != nil {
		return nil
	}
	reply, noReply := e.dispatch(f)
	if noReply {
		return nil
	}
	raw, err := aldl.Encode(reply)
	if err != nil {
		return nil
	}
	return e.applyFault(raw)
}

func (e *ECU) applyFault(raw []byte) []byte {
	switch e.pendingFault {
	case FaultCorruptOnce:
		e.pendingFault = FaultNone
		out := append([]byte(nil), raw...)
		out[len(out)-1] ^= 0xFF
		return out
	case FaultDropOnce:
		e.pendingFault = FaultNone
		return nil
	default:
		return raw
	}
}

func (e *ECU) dispatch(f aldl.Frame) (reply aldl.Frame, noReply bool) {
	switch f.Mode {
	case aldl.ModeSilence:
		e.silenced = true
		return aldl.Frame{}, true
	case aldl.ModeSeedKey:
		return e.handleSeedKey(f)
	case aldl.ModeEnterProgramming:
		e.programming = true
		return aldl.Frame{Mode: aldl.ReplyMode(f.Mode), Payload: []byte{0x00}}, false
	case aldl.ModeUploadBlock:
		return e.handleUploadBlock(f)
	case aldl.ModeRAMRead:
		return e.handleRAMRead(f)
	case aldl.ModeRAMWrite:
		return e.handleRAMWrite(f)
	case aldl.ModeFlashWrite:
		return e.handleFlashPrimitive(f)
	case aldl.ModeDatalog:
		return e.handleDatalog(f)
	default:
		return aldl.Frame{Mode: aldl.ReplyMode(f.Mode), Payload: []byte{0xFF}}, false
	}
}

func (e *ECU) handleSeedKey(f aldl.Frame) (aldl.Frame, bool) {
	if len(f.Payload) == 0 {
		// Step 1: request the seed.
		payload := make([]byte, 2)
		binary.BigEndian.PutUint16(payload, e.seed)
		return aldl.Frame{Mode: aldl.ReplyMode(f.Mode), Payload: payload}, false
	}
	// Step 2: verify the key.
	status := byte(0x01)
	if len(f.Payload) == 2 && binary.BigEndian.Uint16(f.Payload) == e.key {
		e.authenticated = true
		status = 0x00
	}
	return aldl.Frame{Mode: aldl.ReplyMode(f.Mode), Payload: []byte{status}}, false
}

func (e *ECU) handleUploadBlock(f aldl.Frame) (aldl.Frame, bool) {
	if len(f.Payload) < 2 {
		return aldl.Frame{Mode: aldl.ReplyMode(f.Mode), Payload: []byte{0x01}}, false
	}
	addr := int(binary.BigEndian.Uint16(f.Payload[:2]))
	data := f.Payload[2:]
	for i, b := range data {
		if addr+i < len(e.ram) {
			e.ram[addr+i] = b
		}
	}
	for i := 0; i < kernel.NumBlocks; i++ {
		blockAddr, _ := kernel.Addr(i)
		if addr == blockAddr {
			e.kernelBlocks[i] = true
		}
	}
	allPresent := true
	for _, v := range e.kernelBlocks {
		allPresent = allPresent && v
	}
	e.kernelResident = allPresent
	return aldl.Frame{Mode: aldl.ReplyMode(f.Mode), Payload: []byte{0x00}}, false
}

func (e *ECU) handleRAMRead(f aldl.Frame) (aldl.Frame, bool) {
	if len(f.Payload) < 3 {
		return aldl.Frame{Mode: aldl.ReplyMode(f.Mode), Payload: nil}, false
	}
	addr := int(binary.BigEndian.Uint16(f.Payload[:2]))
	n := int(f.Payload[2])
	out := make([]byte, 0, n)
	for i := 0; i < n; i++ {
		if addr+i < len(e.ram) {
			out = append(out, e.ram[addr+i])
		} else {
			out = append(out, 0x00)
		}
	}
	return aldl.Frame{Mode: aldl.ReplyMode(f.Mode), Payload: out}, false
}

func (e *ECU) handleRAMWrite(f aldl.Frame) (aldl.Frame, bool) {
	if len(f.Payload) < 2 {
		return aldl.Frame{Mode: aldl.ReplyMode(f.Mode), Payload: []byte{0x01}}, false
	}
	addr := int(binary.BigEndian.Uint16(f.Payload[:2]))
	data := f.Payload[2:]
	if addr == bankRegisterAddr && len(data) == 1 {
		e.bank = int(data[0])
	}
	for i, b := range data {
		if addr+i < len(e.ram) {
			e.ram[addr+i] = b
		}
	}
	return aldl.Frame{Mode: aldl.ReplyMode(f.Mode), Payload: []byte{0x00}}, false
}

func (e *ECU) handleDatalog(f aldl.Frame) (aldl.Frame, bool) {
	if e.silenced {
		return aldl.Frame{}, true
	}
	record := make([]byte, datalogFieldCount)
	return aldl.Frame{Mode: aldl.ReplyMode(f.Mode), Payload: record}, false
}

// datalogFieldCount is the 57-field sensor snapshot width.
const datalogFieldCount = 57

// bankRegisterAddr is the RAM-shadowed bank register address the
// kernel watches. An internal convention of this simulator/session
// pair, reconstructed from the reference tool's observed behavior
// rather than from any published register map.
const bankRegisterAddr = 0x0040

// FileOffsetForCPU is a convenience wrapping bankmap.BankToFileOffset
// with the ECU's current bank shadow, used by flash operation code
// driving a VirtualECUTransport directly in tests.
func (e *ECU) FileOffsetForCPU(cpuAddr int) (int, error) {
	return bankmap.BankToFileOffset(e.bank, cpuAddr)
}

// KernelResident reports whether all three kernel blocks have arrived.
func (e *ECU) KernelResident() bool { return e.kernelResident }
