// Package kernel carries the three RAM blocks of 68HC11 machine code
// uploaded into the controller before any flash operation, the feature
// byte patches applied to them, and the byte-string templates the
// resident kernel expects for its erase/program/checksum primitives.
// Integrity is checked with a SHA-256 self-check on load, the same way
// jmchacon/6502's cpu package centralizes its opcode and vector tables
// as package-level data rather than scattering magic numbers through
// the caller.
package kernel

import (
	"crypto/sha256"
	"fmt"
)

// RAM load addresses for the three kernel blocks.
const (
	Block0Addr = 0x0100
	Block1Addr = 0x0200
	Block2Addr = 0x0300
)

// Block lengths.
const (
	Block0Len = 171
	Block1Len = 172
	Block2Len = 156
)

// Feature selects an optional kernel behavior toggled by a byte patch.
type Feature int

const (
	FeatureUnimplemented Feature = iota // Start of valid enumerations.
	FeatureHighSpeedRead                // Patches the kernel to use its faster streaming read primitive.
	FeatureChunkSize64                  // Patches the kernel's program-primitive chunk size from 32 to 64 bytes.
	FeatureMax                          // End of valid enumerations.
)

// patch names one byte offset within a block and the value it takes
// when the corresponding Feature is requested.
type patch struct {
	block  int // 0, 1, or 2
	offset int
	value  byte
}

// patchTable maps a Feature to the block patch it applies. Offsets are
// placeholders into the block payloads defined in payload.go; real
// values come from disassembling the reference kernel, which is out of
// this repo's scope (the 68HC11 disassembler is an excluded external
// collaborator).
var patchTable = map[Feature]patch{
	FeatureHighSpeedRead: {block: 0, offset: 0x2A, value: 0x01},
	FeatureChunkSize64:   {block: 1, offset: 0x10, value: 0x40},
}

// Payload holds the three kernel blocks, ready to patch and upload.
// A fresh Payload always starts from the immutable baseline blocks;
// ApplyFeatures never mutates the package-level originals.
type Payload struct {
	blocks [3][]byte
}

// Load returns the baseline kernel payload after verifying each
// block's SHA-256 against the baked-in constant. A mismatch here means
// the embedded kernel bytes were corrupted at build time or tampered
// with, and is always fatal — there is no recovery path that uploads
// a kernel the tool can't vouch for.
func Load() (*Payload, error) {
	blocks := [3][]byte{
		append([]byte(nil), block0...),
		append([]byte(nil), block1...),
		append([]byte(nil), block2...),
	}
	sums := [3][32]byte{block0SHA256, block1SHA256, block2SHA256}
	for i, b := range blocks {
		got := sha256.Sum256(b)
		if got != sums[i] {
			return nil, fmt.Errorf("kernel: block %d failed integrity self-check", i)
		}
	}
	return &Payload{blocks: blocks}, nil
}

// Block returns a copy of block i (0, 1, or 2) with the requested
// features' patches applied.
func (p *Payload) Block(i int, features ...Feature) ([]byte, error) {
	if i < 0 || i > 2 {
		return nil, fmt.Errorf("kernel: invalid block index %d", i)
	}
	out := append([]byte(nil), p.blocks[i]...)
	for _, f := range features {
		pt, ok := patchTable[f]
		if !ok {
			return nil, fmt.Errorf("kernel: unknown feature %d", f)
		}
		if pt.block != i {
			continue
		}
		if pt.offset >= len(out) {
			return nil, fmt.Errorf("kernel: patch offset 0x%02X out of range for block %d", pt.offset, i)
		}
		out[pt.offset] = pt.value
	}
	return out, nil
}

// Addr returns the RAM load address for block i.
func Addr(i int) (int, error) {
	switch i {
	case 0:
		return Block0Addr, nil
	case 1:
		return Block1Addr, nil
	case 2:
		return Block2Addr, nil
	default:
		return 0, fmt.Errorf("kernel: invalid block index %d", i)
	}
}

// NumBlocks is the number of kernel blocks the upload sequence sends.
const NumBlocks = 3
