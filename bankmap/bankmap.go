// Package bankmap is the pure function table translating file offsets
// to (bank register value, CPU address) and back, and enumerating the
// sectors each operation mode touches. It has no state and no I/O, in
// the same spirit as jmchacon/6502's disassemble package: a small set
// of pure functions over an address space, safe to call from any
// goroutine.
package bankmap

import "fmt"

// Bank register values for the three flash banks.
const (
	Bank48 = 0x48 // sectors 0-3, CPU [0x0000,0xFFFF]
	Bank58 = 0x58 // sectors 4-5, CPU [0x8000,0xFFFF]
	Bank50 = 0x50 // sectors 6-7, CPU [0x8000,0xFFFF]
)

// SectorSize and NumSectors mirror package flash's constants; declared
// independently here so bankmap has no dependency on the flash model,
// matching the narrow-interface style of jmchacon/6502's memory package.
const (
	SectorSize = 16 * 1024
	NumSectors = 8
	ImageSize  = NumSectors * SectorSize
)

// Sector describes one 16 KiB erase unit.
type Sector struct {
	Index     int
	FileStart int
	FileEnd   int // exclusive
	Bank      int
	CPUBase   int
}

// Sectors is the fixed table of all 8 sectors, in ascending file-offset
// order.
var Sectors = buildSectors()

func buildSectors() [NumSectors]Sector {
	var out [NumSectors]Sector
	for i := 0; i < NumSectors; i++ {
		start := i * SectorSize
		bank, cpu, err := FileOffsetToBank(start)
		if err != nil {
			panic(fmt.Sprintf("bankmap: internal inconsistency building sector table: %v", err))
		}
		out[i] = Sector{
			Index:     i,
			FileStart: start,
			FileEnd:   start + SectorSize,
			Bank:      bank,
			CPUBase:   cpu,
		}
	}
	return out
}

// Contains reports whether fileOffset falls within s's file range.
func (s Sector) Contains(fileOffset int) bool {
	return fileOffset >= s.FileStart && fileOffset < s.FileEnd
}

// FileOffsetToBank returns the bank register value and CPU address for
// a file offset, per the fixed mapping:
//
//	[0x00000,0x10000): bank=0x48, cpu=file_offset
//	[0x10000,0x18000): bank=0x58, cpu=file_offset-0x8000
//	[0x18000,0x20000): bank=0x50, cpu=file_offset-0x10000
func FileOffsetToBank(fileOffset int) (bank, cpuAddr int, err error) {
	switch {
	case fileOffset >= 0x00000 && fileOffset < 0x10000:
		return Bank48, fileOffset, nil
	case fileOffset >= 0x10000 && fileOffset < 0x18000:
		return Bank58, fileOffset - 0x8000, nil
	case fileOffset >= 0x18000 && fileOffset < 0x20000:
		return Bank50, fileOffset - 0x10000, nil
	default:
		return 0, 0, fmt.Errorf("bankmap: file offset 0x%05X out of range", fileOffset)
	}
}

// BankToFileOffset is the inverse of FileOffsetToBank: it recovers the
// file offset from a (bank, cpuAddr) pair. The mapping is a bijection
// on each bank's range, so this always round-trips for any value
// FileOffsetToBank could have produced.
func BankToFileOffset(bank, cpuAddr int) (fileOffset int, err error) {
	switch bank {
	case Bank48:
		if cpuAddr < 0x0000 || cpuAddr > 0xFFFF {
			return 0, fmt.Errorf("bankmap: cpu addr 0x%04X out of range for bank 0x%02X", cpuAddr, bank)
		}
		return cpuAddr, nil
	case Bank58:
		if cpuAddr < 0x8000 || cpuAddr > 0xFFFF {
			return 0, fmt.Errorf("bankmap: cpu addr 0x%04X out of range for bank 0x%02X", cpuAddr, bank)
		}
		return cpuAddr + 0x8000, nil
	case Bank50:
		if cpuAddr < 0x8000 || cpuAddr > 0xFFFF {
			return 0, fmt.Errorf("bankmap: cpu addr 0x%04X out of range for bank 0x%02X", cpuAddr, bank)
		}
		return cpuAddr + 0x10000, nil
	default:
		return 0, fmt.Errorf("bankmap: unknown bank 0x%02X", bank)
	}
}

// SectorFor returns the sector containing fileOffset.
func SectorFor(fileOffset int) (Sector, error) {
	for _, s := range Sectors {
		if s.Contains(fileOffset) {
			return s, nil
		}
	}
	return Sector{}, fmt.Errorf("bankmap: file offset 0x%05X maps to no sector", fileOffset)
}

// Mode selects which sectors an operation touches.
type Mode int

const (
	ModeUnimplemented Mode = iota // Start of valid enumerations.
	ModeBIN                       // Sectors 0-6, file range 0x2000..0x1C000.
	ModeCAL                       // Sector 1 only, file range 0x4000..0x8000.
	ModePROM                      // Sectors 0-7, file range 0x2000..0x20000.
	ModeMax                       // End of valid enumerations.
)

func (m Mode) String() string {
	switch m {
	case ModeBIN:
		return "BIN"
	case ModeCAL:
		return "CAL"
	case ModePROM:
		return "PROM"
	default:
		return "Unimplemented"
	}
}

// WriteRange is the file range a mode writes. The first 8 KiB of the
// image is reserved RAM-mapped space and is never written.
type WriteRange struct {
	Start, End int // End exclusive
}

// SectorsForMode returns the sector indices a mode erases, in
// ascending order, and the file range it writes.
func SectorsForMode(m Mode) (sectors []int, writeRange WriteRange, err error) {
	switch m {
	case ModeBIN:
		return []int{0, 1, 2, 3, 4, 5, 6}, WriteRange{0x2000, 0x1C000}, nil
	case ModeCAL:
		return []int{1}, WriteRange{0x4000, 0x8000}, nil
	case ModePROM:
		return []int{0, 1, 2, 3, 4, 5, 6, 7}, WriteRange{0x2000, 0x20000}, nil
	default:
		return nil, WriteRange{}, fmt.Errorf("bankmap: unknown mode %d", m)
	}
}
