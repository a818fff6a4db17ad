package flashops

import (
	"bytes"
	"context"
	"testing"

	"github.com/kanjar-tools/aldlflash/bankmap"
	"github.com/kanjar-tools/aldlflash/session"
	"github.com/kanjar-tools/aldlflash/transport"
	"github.com/kanjar-tools/aldlflash/virtualecu"
)

func openKernelResidentSession(t *testing.T, ecu *virtualecu.ECU) *session.Session {
	t.Helper()
	ch, err := transport.Open(transport.Spec{Kind: transport.KindVirtualECU, VirtualECU: ecu})
	if err != nil {
		t.Fatalf("transport.Open: %v", err)
	}
	s := session.Open(ch, session.Config{})
	ctx := context.Background()
	if err := s.Silence(ctx); err != nil {
		t.Fatalf("Silence: %v", err)
	}
	if err := s.Authenticate(ctx); err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if err := s.EnterProgramming(ctx); err != nil {
		t.Fatalf("EnterProgramming: %v", err)
	}
	if err := s.UploadKernel(ctx); err != nil {
		t.Fatalf("UploadKernel: %v", err)
	}
	return s
}

// Writing a CAL image and reading it back should return a
// byte-identical window, plus leave a sector outside the write range
// untouched.
func TestWriteImageThenReadFullRoundTrips(t *testing.T) {
	image := make([]byte, ImageSize)
	for i := range image {
		image[i] = byte(i * 3)
	}
	fixed, err := FixBinChecksum(image)
	if err != nil {
		t.Fatalf("FixBinChecksum: %v", err)
	}

	ecu := virtualecu.New(0x1234)
	s := openKernelResidentSession(t, ecu)
	ctx := context.Background()

	report, err := WriteImage(ctx, s, bankmap.ModeCAL, fixed, WriteOptions{}, nil)
	if err != nil {
		t.Fatalf("WriteImage: %v", err)
	}
	if !report.ChecksumOK {
		t.Error("report.ChecksumOK = false")
	}

	full, err := ReadFull(ctx, s, nil)
	if err != nil {
		t.Fatalf("ReadFull: %v", err)
	}
	if len(full) != ImageSize {
		t.Fatalf("ReadFull returned %d bytes, want %d", len(full), ImageSize)
	}
	if !bytes.Equal(full[0x4000:0x8000], fixed[0x4000:0x8000]) {
		t.Error("CAL window did not round-trip byte-identically")
	}
	if !bytes.Equal(full[0x8000:0xC000], bytes.Repeat([]byte{0xFF}, 0x4000)) {
		t.Error("sector 2, outside the CAL write range, was disturbed")
	}
}

func TestWriteImageRejectsBadChecksum(t *testing.T) {
	image := make([]byte, ImageSize)
	// An all-zero window needs checksum word 0x0000; store 0x0100.
	image[checksumWordOff] = 0x01
	ecu := virtualecu.New(0x1234)
	s := openKernelResidentSession(t, ecu)
	if _, err := WriteImage(context.Background(), s, bankmap.ModeCAL, image, WriteOptions{}, nil); err == nil {
		t.Error("expected a checksum validation error")
	}
}

func TestWriteImageRejectsWrongLength(t *testing.T) {
	ecu := virtualecu.New(0x1234)
	s := openKernelResidentSession(t, ecu)
	if _, err := WriteImage(context.Background(), s, bankmap.ModeCAL, make([]byte, 10), WriteOptions{}, nil); err == nil {
		t.Error("expected a length validation error")
	}
}

func TestWriteImageRecoveryModeRequiresForce(t *testing.T) {
	image, _ := FixBinChecksum(make([]byte, ImageSize))
	ecu := virtualecu.New(0x1234)
	s := openKernelResidentSession(t, ecu)
	_, err := WriteImage(context.Background(), s, bankmap.ModeBIN, image, WriteOptions{RecoveryMode: true}, nil)
	if err == nil {
		t.Error("expected RecoveryMode without Force to be rejected")
	}
}

func TestWriteImageRecoveryModeIncludesBootSector(t *testing.T) {
	image, _ := FixBinChecksum(make([]byte, ImageSize))
	ecu := virtualecu.New(0x1234)
	s := openKernelResidentSession(t, ecu)
	report, err := WriteImage(context.Background(), s, bankmap.ModeBIN, image, WriteOptions{RecoveryMode: true, Force: true}, nil)
	if err != nil {
		t.Fatalf("WriteImage: %v", err)
	}
	found := false
	for _, idx := range report.SectorsErased {
		if idx == bankmap.NumSectors-1 {
			found = true
		}
	}
	if !found {
		t.Error("RecoveryMode did not include the boot sector")
	}
}
