// Package flash implements the Am29F010 NOR flash command state machine:
// AMD unlock sequences, sector erase, byte program under the AND-only
// physical rule, and status-byte polling. It is the canonical reference
// for what the real chip does — the virtual ECU (package virtualecu)
// uses it as its storage. Snapshot/Restore let a caller predict an
// outcome without mutating the live model; package flashops does not
// call them. Modeled after the register/state-machine style of
// jmchacon/6502's pia6532 package: named command-byte constants, a
// small state enum, and Read/Write entry points.
package flash

import "fmt"

// ImageSize is the full 131072-byte (128 KiB) address space of the
// Am29F010.
const ImageSize = 131072

// SectorSize is the erase granularity: 16 KiB.
const SectorSize = 16 * 1024

// NumSectors is ImageSize / SectorSize.
const NumSectors = ImageSize / SectorSize

// State enumerates the Am29F010 command state machine. Any write
// tuple that doesn't match the expected next step in a sequence
// returns the chip to Read.
type State int

const (
	StateUnimplemented State = iota // Start of valid enumerations.
	StateRead                       // Normal array read; no command in progress.
	StateUnlock1Seen                // Saw 0x5555<-0xAA.
	StateUnlock2Seen                // Saw 0x5555<-0xAA, 0x2AAA<-0x55.
	StateProgramSetup               // Saw the program unlock sequence; next write programs a byte.
	StateEraseSetup1                // Saw the unlock sequence followed by 0x5555<-0x80.
	StateEraseSetup2                // Saw EraseSetup1 followed by a second 0x5555<-0xAA.
	StateSectorEraseConfirm         // Saw EraseSetup2 followed by 0x2AAA<-0x55; next write at a sector base with 0x30 erases it.
	StateProgramming                // A byte-program operation is in flight (modeled as instantaneous, but the status bits still toggle for one poll).
	StateErasing                    // A sector-erase operation is in flight.
	StateMax                        // End of valid enumerations.
)

func (s State) String() string {
	switch s {
	case StateRead:
		return "Read"
	case StateUnlock1Seen:
		return "Unlock1Seen"
	case StateUnlock2Seen:
		return "Unlock2Seen"
	case StateProgramSetup:
		return "ProgramSetup"
	case StateEraseSetup1:
		return "EraseSetup1"
	case StateEraseSetup2:
		return "EraseSetup2"
	case StateSectorEraseConfirm:
		return "SectorEraseConfirm"
	case StateProgramming:
		return "Programming"
	case StateErasing:
		return "Erasing"
	default:
		return "Unimplemented"
	}
}

// Unlock addresses and command bytes for the AMD command set.
const (
	unlockAddr1 = 0x5555
	unlockAddr2 = 0x2AAA

	cmdUnlock1      = 0xAA
	cmdUnlock2      = 0x55
	cmdProgramSetup = 0xA0
	cmdEraseSetup   = 0x80
	cmdEraseConfirm = byte(0x30) // written at the sector base address
	cmdResetToRead  = 0xF0
)

// Status bits returned while Programming/Erasing is in flight: DQ7 is
// the data polling bit (inverted from the final value), DQ6 toggles
// every read while busy, DQ5 signals timeout.
const (
	statusDQ7 = 0x80
	statusDQ6 = 0x40
	statusDQ5 = 0x20
)

// Chip is the Am29F010 state machine over a 128 KiB byte array.
type Chip struct {
	mem   [ImageSize]byte
	state State

	// toggle flips every status read while busy, modeling DQ6.
	toggle bool
	// busyReadsLeft counts down status reads before an in-flight
	// operation reports done; it is the simulated duration an
	// in-flight erase or program operation takes to settle.
	busyReadsLeft int
	busyTarget    byte // cell or fill value the in-flight op is working toward
	busyIsErase   bool
	busySector    int // sector index, valid only while busyIsErase
	busyAddr      int // byte address, valid only while programming

	// lastMismatch records a program operation whose AND-rule result
	// didn't match the intended value, for the caller to surface a
	// FlashError without this package depending on package errs.
	lastMismatch bool
}

// busyPollCount is how many status reads an in-flight operation takes
// before it reports done. Chosen small so unit tests don't spin; the
// session layer's own timeouts (up to 3s per sector) are independent
// of this simulated duration.
const busyPollCount = 2

// New returns a freshly erased chip (all 0xFF), matching factory state.
func New() *Chip {
	c := &Chip{state: StateRead}
	for i := range c.mem {
		c.mem[i] = 0xFF
	}
	return c
}

// NewFromImage returns a chip pre-loaded with the given 128 KiB image.
func NewFromImage(image []byte) (*Chip, error) {
	if len(image) != ImageSize {
		return nil, fmt.Errorf("flash: image must be %d bytes, got %d", ImageSize, len(image))
	}
	c := &Chip{state: StateRead}
	copy(c.mem[:], image)
	return c, nil
}

// State returns the chip's current command-sequence state.
func (c *Chip) State() State { return c.state }

// Image returns a copy of the full backing array.
func (c *Chip) Image() []byte {
	out := make([]byte, ImageSize)
	copy(out, c.mem[:])
	return out
}

// Read returns the byte the chip would present on the bus for addr. In
// StateRead this is the stored array contents. While an operation is
// in flight it's the DQ7/DQ6/DQ5 status encoding, and the operation
// completes after busyPollCount reads have happened.
func (c *Chip) Read(addr int) byte {
	switch c.state {
	case StateProgramming, StateErasing:
		return c.pollStatus(addr)
	default:
		return c.mem[addr&(ImageSize-1)]
	}
}

func (c *Chip) pollStatus(addr int) byte {
	c.busyReadsLeft--
	if c.busyReadsLeft > 0 {
		c.toggle = !c.toggle
		status := byte(0)
		if c.toggle {
			status |= statusDQ6
		}
		// DQ7 reads the complement of the target bit until done.
		if c.busyTarget&statusDQ7 == 0 {
			status |= statusDQ7
		}
		return status
	}
	// Operation completes on this read.
	if c.busyIsErase {
		for i := 0; i < SectorSize; i++ {
			c.mem[c.busySector*SectorSize+i] = 0xFF
		}
	} else {
		cell := c.mem[c.busyAddr&(ImageSize-1)]
		programmed := cell & c.busyTarget
		if programmed != c.busyTarget {
			c.lastMismatch = true
		}
		c.mem[c.busyAddr&(ImageSize-1)] = programmed
	}
	c.state = StateRead
	return c.mem[addr&(ImageSize-1)]
}

// TookMismatch reports whether the most recently completed program
// operation required a 0→1 transition the AND rule couldn't perform,
// and clears the flag.
func (c *Chip) TookMismatch() bool {
	m := c.lastMismatch
	c.lastMismatch = false
	return m
}

// Busy reports whether an erase or program operation is still polling.
func (c *Chip) Busy() bool {
	return (c.state == StateProgramming || c.state == StateErasing) && c.busyReadsLeft > 0
}

// Snapshot returns an independent copy of the chip's full state,
// suitable for the verification layer to predict an operation's
// outcome without mutating the live model.
func (c *Chip) Snapshot() *Chip {
	cp := *c
	return &cp
}

// Restore replaces c's state with other's, used to roll a prediction
// back after inspecting it.
func (c *Chip) Restore(other *Chip) {
	*c = *other
}

// StatusByte returns the DQ7/DQ6/DQ5 encoded status byte a caller
// would see by reading addr right now, without advancing the busy
// countdown the way Read does. Useful for callers that want to peek
// at progress without consuming a simulated poll.
func (c *Chip) StatusByte(addr int) byte {
	if c.state != StateProgramming && c.state != StateErasing {
		return c.mem[addr&(ImageSize-1)]
	}
	status := byte(0)
	if c.toggle {
		status |= statusDQ6
	}
	if c.busyTarget&statusDQ7 == 0 {
		status |= statusDQ7
	}
	return status
}
