package session

import (
	"context"
	"testing"

	"github.com/kanjar-tools/aldlflash/kernel"
	"github.com/kanjar-tools/aldlflash/transport"
	"github.com/kanjar-tools/aldlflash/virtualecu"
)

func openTestSession(t *testing.T, ecu *virtualecu.ECU) *Session {
	t.Helper()
	ch, err := transport.Open(transport.Spec{Kind: transport.KindVirtualECU, VirtualECU: ecu})
	if err != nil {
		t.Fatalf("transport.Open: %v", err)
	}
	return Open(ch, Config{})
}

func advanceToKernelResident(t *testing.T, s *Session) {
	t.Helper()
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
	if s.State() != StateKernelResident {
		t.Fatalf("state = %s, want KernelResident", s.State())
	}
}

func TestFullLifecycleReachesKernelResident(t *testing.T) {
	ecu := virtualecu.New(0x1234)
	s := openTestSession(t, ecu)
	advanceToKernelResident(t, s)
	if !ecu.KernelResident() {
		t.Error("ECU does not believe the kernel is resident")
	}
}

// Property 7: operations attempted out of order fail instead of being
// attempted against the wire.
func TestOrderingInvariantRejectsOutOfOrderCalls(t *testing.T) {
	ecu := virtualecu.New(0x1234)
	s := openTestSession(t, ecu)
	ctx := context.Background()

	if err := s.Authenticate(ctx); err == nil {
		t.Error("Authenticate before Silence should fail")
	}
	if err := s.EnterProgramming(ctx); err == nil {
		t.Error("EnterProgramming before Authenticate should fail")
	}
	if err := s.UploadKernel(ctx); err == nil {
		t.Error("UploadKernel before EnterProgramming should fail")
	}
	if _, err := s.ReadBytes(ctx, 0, 16); err == nil {
		t.Error("ReadBytes before KernelResident should fail")
	}
}

func TestAuthenticateRetriesDroppedSeedReply(t *testing.T) {
	ecu := virtualecu.New(0x1234)
	s := openTestSession(t, ecu)
	// Inject a fault so the first seed reply is dropped, forcing the
	// framer's retry budget; this exercises that a transport hiccup
	// during auth is retried rather than wedging the state machine.
	ctx := context.Background()
	if err := s.Silence(ctx); err != nil {
		t.Fatalf("Silence: %v", err)
	}
	ecu.InjectFault(virtualecu.FaultDropOnce)
	if err := s.Authenticate(ctx); err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if s.State() != StateAuthenticated {
		t.Fatalf("state = %s, want Authenticated", s.State())
	}
}

func TestCleanupReturnsToIdleAndIsIdempotent(t *testing.T) {
	ecu := virtualecu.New(0x1234)
	s := openTestSession(t, ecu)
	advanceToKernelResident(t, s)
	ctx := context.Background()
	if err := s.Cleanup(ctx); err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if s.State() != StateIdle {
		t.Fatalf("state = %s, want Idle", s.State())
	}
	if err := s.Cleanup(ctx); err != nil {
		t.Fatalf("second Cleanup: %v", err)
	}
}

func TestEraseThenProgramThenReadRoundTrips(t *testing.T) {
	ecu := virtualecu.New(0x1234)
	s := openTestSession(t, ecu)
	advanceToKernelResident(t, s)
	ctx := context.Background()

	const fileOffset = 0x4000
	if err := s.EraseSector(ctx, fileOffset); err != nil {
		t.Fatalf("EraseSector: %v", err)
	}
	data := []byte{0x01, 0x02, 0x03, 0x04, 0xFF, 0x00, 0x7E, 0x81}
	if err := s.ProgramBytes(ctx, fileOffset, data); err != nil {
		t.Fatalf("ProgramBytes: %v", err)
	}
	readback, err := s.ReadBytes(ctx, fileOffset, len(data))
	if err != nil {
		t.Fatalf("ReadBytes: %v", err)
	}
	for i := range data {
		if readback[i] != data[i] {
			t.Fatalf("byte %d = 0x%02X, want 0x%02X", i, readback[i], data[i])
		}
	}
}

func TestComputeChecksumAgreesWithManualSum(t *testing.T) {
	ecu := virtualecu.New(0x1234)
	s := openTestSession(t, ecu)
	advanceToKernelResident(t, s)
	ctx := context.Background()

	got, err := s.ComputeChecksum(ctx)
	if err != nil {
		t.Fatalf("ComputeChecksum: %v", err)
	}
	var sum byte
	chip := ecu.Chip()
	for off := 0x4000; off < 0x8000; off++ {
		if off == 0x4006 || off == 0x4007 {
			continue
		}
		sum += chip.Read(off)
	}
	want := uint16(-sum) << 8
	if got != want {
		t.Errorf("checksum = 0x%04X, want 0x%04X", got, want)
	}
}

// Feature patches applied during upload_kernel must reach the ECU's
// RAM image of the kernel (indirectly verified here by confirming
// UploadKernel still succeeds and reaches KernelResident with features
// requested, since virtualecu's RAM model doesn't interpret kernel
// opcodes itself).
func TestUploadKernelWithFeaturesStillReachesResident(t *testing.T) {
	ecu := virtualecu.New(0x1234)
	ch, err := transport.Open(transport.Spec{Kind: transport.KindVirtualECU, VirtualECU: ecu})
	if err != nil {
		t.Fatalf("transport.Open: %v", err)
	}
	s := Open(ch, Config{Features: []kernel.Feature{kernel.FeatureHighSpeedRead, kernel.FeatureChunkSize64}})
	advanceToKernelResident(t, s)
}

func TestBusyRejectsConcurrentOperation(t *testing.T) {
	ecu := virtualecu.New(0x1234)
	s := openTestSession(t, ecu)
	s.busy = true
	if err := s.Silence(context.Background()); err == nil {
		t.Error("Silence while busy should fail")
	}
}

func TestFailedStateOnlyPermitsClose(t *testing.T) {
	ecu := virtualecu.New(0x1234)
	s := openTestSession(t, ecu)
	s.setState(StateFailed)
	if err := s.Silence(context.Background()); err == nil {
		t.Error("Silence from Failed should be rejected")
	}
	if err := s.Close(); err != nil {
		t.Errorf("Close from Failed should succeed: %v", err)
	}
}
