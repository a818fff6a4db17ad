package session

import (
	"context"
	"encoding/binary"

	"github.com/kanjar-tools/aldlflash/aldl"
	"github.com/kanjar-tools/aldlflash/bankmap"
	"github.com/kanjar-tools/aldlflash/internal/errs"
	"github.com/kanjar-tools/aldlflash/kernel"
)

// EraseSector erases the sector containing fileOffset, retrying the
// whole erase once on failure before giving up. Requires
// KernelResident.
func (s *Session) EraseSector(ctx context.Context, fileOffset int) error {
	release, err := s.acquire()
	if err != nil {
		return err
	}
	defer release()
	if err := s.requireState(StateKernelResident); err != nil {
		return err
	}
	sector, err := bankmap.SectorFor(fileOffset)
	if err != nil {
		return s.fail(err, -1, -1)
	}

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		if err := ctx.Err(); err != nil {
			return &errs.Cancelled{Stage: "erase_sector"}
		}
		lastErr = s.eraseSectorOnce(sector)
		if lastErr == nil {
			s.cfg.Logger.Info("sector erased", "sector", sector.Index, "attempt", attempt)
			return nil
		}
		s.cfg.Logger.Warn("sector erase attempt failed", "sector", sector.Index, "attempt", attempt, "err", lastErr)
	}
	return s.fail(&errs.FlashError{Kind: errs.EraseFailed, Sector: sector.Index, Details: lastErr.Error()}, sector.Index, -1)
}

func (s *Session) eraseSectorOnce(sector bankmap.Sector) error {
	bank, cpuAddr, err := bankmap.FileOffsetToBank(sector.FileStart)
	if err != nil {
		return err
	}
	if err := s.setBank(bank); err != nil {
		return err
	}
	payload := make([]byte, 3)
	payload[0] = kernel.PrimitiveErase
	binary.BigEndian.PutUint16(payload[1:], uint16(cpuAddr))
	reply, err := s.framer.Exchange(aldl.Frame{Mode: aldl.ModeFlashWrite, Payload: payload}, aldl.ReplyMode(aldl.ModeFlashWrite), s.cfg.FrameRetries)
	if err != nil {
		return err
	}
	if len(reply.Payload) != 1 || reply.Payload[0] != 0x00 {
		return &errs.ProtocolError{Reason: "kernel reported erase failure"}
	}
	return nil
}

// ProgramBytes writes data starting at fileOffset, chunked to
// cfg.ChunkSize, retrying any chunk containing a mismatched byte up to
// cfg.ByteRetryBudget times before declaring the sector failed.
// Requires KernelResident.
func (s *Session) ProgramBytes(ctx context.Context, fileOffset int, data []byte) error {
	release, err := s.acquire()
	if err != nil {
		return err
	}
	defer release()
	if err := s.requireState(StateKernelResident); err != nil {
		return err
	}

	chunk := s.cfg.ChunkSize
	if chunk > maxChunkSize {
		chunk = maxChunkSize
	}
	for off := 0; off < len(data); off += chunk {
		if err := ctx.Err(); err != nil {
			return &errs.Cancelled{Stage: "program_bytes"}
		}
		end := off + chunk
		if end > len(data) {
			end = len(data)
		}
		if err := s.programChunkWithRetry(fileOffset+off, data[off:end]); err != nil {
			sector, _ := bankmap.SectorFor(fileOffset + off)
			return s.fail(err, sector.Index, fileOffset+off)
		}
		s.publishProgress("program_bytes", int64(end), int64(len(data)))
	}
	return nil
}

func (s *Session) programChunkWithRetry(fileOffset int, data []byte) error {
	var lastErr error
	for attempt := 0; attempt <= s.cfg.ByteRetryBudget; attempt++ {
		readback, mismatch, err := s.programChunkOnce(fileOffset, data)
		if err != nil {
			lastErr = err
			continue
		}
		if !mismatch {
			return nil
		}
		lastErr = &errs.FlashError{Kind: errs.ProgramMismatch, Offset: fileOffset, Details: "readback did not match intended bytes"}
		_ = readback
		s.cfg.Logger.Warn("program chunk mismatch, retrying", "offset", fileOffset, "attempt", attempt)
	}
	return lastErr
}

func (s *Session) programChunkOnce(fileOffset int, data []byte) (readback []byte, mismatch bool, err error) {
	bank, cpuAddr, err := bankmap.FileOffsetToBank(fileOffset)
	if err != nil {
		return nil, false, err
	}
	if err := s.setBank(bank); err != nil {
		return nil, false, err
	}
	payload := make([]byte, 3+len(data))
	payload[0] = kernel.PrimitiveProgram
	binary.BigEndian.PutUint16(payload[1:3], uint16(cpuAddr))
	copy(payload[3:], data)
	reply, err := s.framer.Exchange(aldl.Frame{Mode: aldl.ModeFlashWrite, Payload: payload}, aldl.ReplyMode(aldl.ModeFlashWrite), s.cfg.FrameRetries)
	if err != nil {
		return nil, false, err
	}
	if len(reply.Payload) < 1 {
		return nil, false, &errs.ProtocolError{Reason: "empty program reply"}
	}
	status := reply.Payload[0]
	readback = reply.Payload[1:]
	return readback, status != 0x00, nil
}

// ReadBytes reads n bytes starting at fileOffset via the resident
// kernel's read primitive. Valid from any state once the kernel is
// resident; also used for the pre-programming baseline read.
func (s *Session) ReadBytes(ctx context.Context, fileOffset, n int) ([]byte, error) {
	release, err := s.acquire()
	if err != nil {
		return nil, err
	}
	defer release()
	if err := s.requireState(StateKernelResident); err != nil {
		return nil, err
	}
	bank, cpuAddr, err := bankmap.FileOffsetToBank(fileOffset)
	if err != nil {
		return nil, s.fail(err, -1, fileOffset)
	}
	if err := s.setBank(bank); err != nil {
		return nil, s.fail(err, -1, fileOffset)
	}
	out := make([]byte, 0, n)
	const maxReadChunk = 64
	for len(out) < n {
		if err := ctx.Err(); err != nil {
			return nil, &errs.Cancelled{Stage: "read_bytes"}
		}
		want := n - len(out)
		if want > maxReadChunk {
			want = maxReadChunk
		}
		addr := cpuAddr + len(out)
		payload := make([]byte, 5)
		payload[0] = kernel.PrimitiveRead
		binary.BigEndian.PutUint16(payload[1:3], uint16(addr))
		binary.BigEndian.PutUint16(payload[3:5], uint16(want))
		reply, err := s.framer.Exchange(aldl.Frame{Mode: aldl.ModeFlashWrite, Payload: payload}, aldl.ReplyMode(aldl.ModeFlashWrite), s.cfg.FrameRetries)
		if err != nil {
			return nil, s.fail(err, -1, fileOffset+len(out))
		}
		out = append(out, reply.Payload...)
	}
	return out, nil
}

// ComputeChecksum asks the resident kernel for the on-chip checksum of
// the calibration window, returning it as reported by the ECU.
// Requires KernelResident.
func (s *Session) ComputeChecksum(ctx context.Context) (uint16, error) {
	release, err := s.acquire()
	if err != nil {
		return 0, err
	}
	defer release()
	if err := s.requireState(StateKernelResident); err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, &errs.Cancelled{Stage: "compute_checksum"}
	}
	reply, err := s.framer.Exchange(aldl.Frame{Mode: aldl.ModeFlashWrite, Payload: []byte{kernel.PrimitiveChecksum}}, aldl.ReplyMode(aldl.ModeFlashWrite), s.cfg.FrameRetries)
	if err != nil {
		return 0, s.fail(err, -1, -1)
	}
	if len(reply.Payload) != 2 {
		return 0, s.fail(&errs.ProtocolError{Reason: "checksum reply had unexpected length"}, -1, -1)
	}
	return binary.BigEndian.Uint16(reply.Payload), nil
}

// Resume re-establishes a session after a transport drop without
// re-running the full silence/authenticate/upload-kernel sequence when
// the ECU is known to still hold the kernel resident. The caller
// supplies the state the prior session reached; Resume simply adopts
// it, trusting the ECU hasn't reset (a full Cleanup+restart is
// required if it has).
func (s *Session) Resume(knownState State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateIdle {
		return &errs.ProtocolError{Reason: "Resume only valid immediately after Open"}
	}
	if knownState < StateSilenced || knownState >= StateFailed {
		return &errs.ProtocolError{Reason: "Resume requires a prior non-terminal state"}
	}
	s.state = knownState
	return nil
}
