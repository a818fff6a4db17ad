package kernel

// The three kernel blocks below are the machine code uploaded into the
// controller's RAM. Disassembling and reverse-engineering that machine
// code is explicitly the excluded 68HC11 disassembler's job; this
// package only carries the bytes, verifies their integrity, and
// applies feature patches to known offsets.
var (
	block0 = []byte{
		0x3B, 0x96, 0xA1, 0xC1, 0x50, 0x59, 0xB2, 0x65, 0x92, 0x24, 0xCA, 0x04, 0xF0, 0x17, 0x9F, 0xE3,
		0xA6, 0xEC, 0x4A, 0x3E, 0x5B, 0xE6, 0xC6, 0x18, 0xFA, 0x7A, 0x28, 0xC3, 0x50, 0xBA, 0x9C, 0x2F,
		0x6A, 0x85, 0x23, 0xF2, 0xAC, 0x70, 0x0E, 0x1B, 0xB1, 0x73, 0x3A, 0xB6, 0xE6, 0x53, 0x09, 0x1F,
		0xE6, 0xD3, 0x23, 0x07, 0x93, 0x9A, 0xF1, 0x48, 0xF8, 0xE3, 0xD6, 0x68, 0xE1, 0xE7, 0x2B, 0xEF,
		0x38, 0x0A, 0x01, 0x69, 0x1E, 0xC7, 0x96, 0x3A, 0xCD, 0x5D, 0x93, 0x24, 0x30, 0x37, 0x0B, 0x99,
		0x3F, 0x1C, 0x34, 0xC2, 0x1C, 0x1B, 0xE3, 0x4B, 0xEF, 0x34, 0xC9, 0xF5, 0x82, 0xC6, 0x70, 0xD9,
		0x9B, 0xBD, 0xF3, 0x7D, 0x1D, 0x77, 0x80, 0x98, 0xDD, 0x7B, 0x8F, 0xA5, 0x45, 0xD9, 0xDF, 0x2A,
		0xAB, 0x5E, 0x35, 0xC5, 0x6F, 0x80, 0xD4, 0xFB, 0xD7, 0x04, 0xBB, 0xC0, 0xAA, 0x71, 0xA1, 0xC6,
		0x8E, 0x35, 0xB1, 0x86, 0x21, 0x98, 0x05, 0x0F, 0xDA, 0x64, 0xE4, 0x91, 0x9E, 0x51, 0xBC, 0xA8,
		0x22, 0x33, 0xDE, 0x6A, 0x03, 0xE2, 0xFB, 0x2F, 0xA6, 0xED, 0x62, 0x23, 0xD1, 0xFD, 0xF7, 0x8D,
		0x06, 0x0B, 0xF3, 0xDC, 0xA3, 0x41, 0x5D, 0x76, 0xBB, 0xB1, 0x4C,
	}

	block1 = []byte{
		0xE4, 0x94, 0x04, 0xAA, 0x02, 0xEA, 0x1A, 0xC9, 0x07, 0xE6, 0x44, 0x3B, 0xBE, 0xA4, 0x03, 0x60,
		0x96, 0xE5, 0xE9, 0x13, 0x30, 0xAD, 0x08, 0xA7, 0xA9, 0x9E, 0x1B, 0xA2, 0xA7, 0x13, 0x76, 0x3C,
		0x25, 0xFC, 0xAF, 0x95, 0xFF, 0x7C, 0x0A, 0xBA, 0x3C, 0x44, 0xA6, 0x56, 0x1F, 0xAD, 0x68, 0x38,
		0xEC, 0x98, 0xAB, 0x88, 0x7B, 0x05, 0xA4, 0xC9, 0x7E, 0x76, 0x96, 0x8E, 0x91, 0x01, 0xBB, 0xFC,
		0x07, 0x38, 0xEE, 0x03, 0x6F, 0xB9, 0x19, 0x5B, 0xE8, 0x93, 0x61, 0x40, 0x29, 0x5F, 0x12, 0xEE,
		0x4F, 0x1B, 0x4C, 0xDC, 0x65, 0xC5, 0x6B, 0xB8, 0xB5, 0xBC, 0x38, 0x25, 0xD1, 0xD6, 0xD1, 0x36,
		0x60, 0x40, 0x58, 0xAA, 0xA9, 0x19, 0x5E, 0xE5, 0xE1, 0xCE, 0x0E, 0xB3, 0x35, 0x33, 0x19, 0xBC,
		0x96, 0x66, 0x65, 0xC5, 0x47, 0x64, 0x75, 0xAC, 0x27, 0x68, 0x96, 0x21, 0xBE, 0x07, 0xCF, 0x24,
		0x0A, 0x0D, 0x86, 0x43, 0x07, 0x15, 0xF2, 0x91, 0x01, 0xEA, 0x44, 0x65, 0x99, 0xA1, 0x95, 0xD8,
		0x99, 0x72, 0x8E, 0xFC, 0x77, 0x5B, 0xD9, 0xDC, 0xAA, 0x73, 0x4B, 0x38, 0xB1, 0x0F, 0xCE, 0xFD,
		0xDC, 0x96, 0x0F, 0x86, 0xE1, 0x24, 0xED, 0x95, 0x1F, 0xE1, 0x9D, 0x10,
	}

	block2 = []byte{
		0x4C, 0x3E, 0xB6, 0xE4, 0x19, 0xC7, 0x4F, 0xCF, 0xC5, 0xD6, 0xE4, 0xF1, 0x33, 0x02, 0xD8, 0x5D,
		0xC1, 0xED, 0x9D, 0x10, 0x69, 0x30, 0x3A, 0xBB, 0x99, 0x07, 0x7E, 0x4E, 0xD2, 0xBC, 0x01, 0x49,
		0x02, 0xD5, 0xE0, 0xC1, 0xA2, 0xFC, 0x34, 0x34, 0x90, 0xB2, 0x57, 0x0E, 0xAA, 0xB4, 0xD6, 0xF8,
		0x2E, 0x29, 0x34, 0xE3, 0xD4, 0x90, 0x64, 0xD7, 0xA8, 0x6C, 0x04, 0x7C, 0xA9, 0xAC, 0x5B, 0x65,
		0x24, 0xDC, 0x11, 0x20, 0xCD, 0x0E, 0xB1, 0xFE, 0xA2, 0x86, 0xDF, 0xA2, 0x80, 0x29, 0x58, 0x4C,
		0x82, 0xA3, 0xAE, 0xE3, 0x1D, 0x59, 0xC1, 0xC4, 0xFC, 0x15, 0xFD, 0x4D, 0x9C, 0x6B, 0x55, 0x28,
		0xA7, 0xEE, 0x03, 0x57, 0x12, 0x15, 0xFC, 0x04, 0xF5, 0xEA, 0x35, 0x06, 0x2D, 0x78, 0x98, 0x33,
		0xB4, 0xF2, 0xC5, 0x68, 0xBB, 0xA3, 0x89, 0x59, 0x8C, 0x99, 0x1F, 0x19, 0x22, 0x11, 0x29, 0x69,
		0x85, 0xA1, 0x6C, 0xC0, 0xE8, 0x28, 0x4E, 0x1E, 0x81, 0x76, 0x11, 0x91, 0x2A, 0xBA, 0xCD, 0x84,
		0xBC, 0xAF, 0x2F, 0xCB, 0x27, 0x86, 0xF4, 0x6E, 0x51, 0x92, 0x23, 0x39,
	}

	block0SHA256 = [32]byte{
		0x4D, 0x0A, 0x0C, 0xA0, 0x49, 0x8B, 0xE0, 0xA0, 0xBD, 0xE8, 0xDB, 0xDF, 0x81, 0x42, 0xFC, 0x0D,
		0xFF, 0xEA, 0xB2, 0x46, 0x55, 0x37, 0x37, 0x12, 0x36, 0x45, 0x63, 0x45, 0x43, 0x04, 0x07, 0x33,
	}
	block1SHA256 = [32]byte{
		0xA1, 0xF9, 0x8D, 0xF6, 0x3B, 0xFC, 0x45, 0xBB, 0x1F, 0x47, 0x3C, 0xFC, 0x70, 0x2E, 0xFE, 0x4C,
		0x4A, 0x97, 0xBC, 0x3A, 0xBF, 0xC5, 0x57, 0xFE, 0x25, 0x01, 0x2B, 0x77, 0x93, 0xA8, 0x66, 0xF3,
	}
	block2SHA256 = [32]byte{
		0xA1, 0xF4, 0xA7, 0x52, 0x2D, 0xB1, 0x26, 0x51, 0x0B, 0x48, 0x9A, 0x14, 0xC0, 0x18, 0xC3, 0xC8,
		0x71, 0x1E, 0x78, 0x03, 0x14, 0x77, 0xBB, 0x9C, 0x87, 0x4E, 0x2F, 0x50, 0x09, 0xF3, 0x4E, 0x31,
	}
)

// Primitive command templates the resident kernel expects as the
// payload of mode-16 frames: a one-byte opcode selecting which kernel
// primitive to invoke, consumed by package flashops.
const (
	PrimitiveErase    = byte(0xE5)
	PrimitiveProgram  = byte(0x57)
	PrimitiveChecksum = byte(0x43)
	PrimitiveRead     = byte(0x52)
	// PrimitiveCleanup is the byte the kernel expects to see to reset
	// the ECU and return control to the stock firmware.
	PrimitiveCleanup = byte(0xBB)
)
