package flashops

import (
	"bytes"
	"context"

	"github.com/kanjar-tools/aldlflash/bankmap"
	"github.com/kanjar-tools/aldlflash/internal/errs"
	"github.com/kanjar-tools/aldlflash/session"
)

// readChunk is the per-request size ReadFull asks the kernel's
// stream-read primitive for; smaller than the 64-byte program frame
// cap isn't required for reads, but staying at the same ceiling keeps
// the two operations' wire behavior symmetric.
const readChunk = 64

// ProgressFunc reports (stage, bytes done, bytes total) for a
// long-running flash operation.
type ProgressFunc func(stage string, done, total int64)

func noopProgress(string, int64, int64) {}

// ReadFull drives the resident kernel's stream-read primitive across
// the whole 128 KiB image in ascending file-offset order.
func ReadFull(ctx context.Context, s *session.Session, progress ProgressFunc) ([]byte, error) {
	if progress == nil {
		progress = noopProgress
	}
	out := make([]byte, 0, ImageSize)
	for off := 0; off < ImageSize; off += readChunk {
		if err := ctx.Err(); err != nil {
			return nil, &errs.Cancelled{Stage: "read_full"}
		}
		n := readChunk
		if off+n > ImageSize {
			n = ImageSize - off
		}
		chunk, err := s.ReadBytes(ctx, off, n)
		if err != nil {
			return nil, err
		}
		out = append(out, chunk...)
		progress("read_full", int64(len(out)), int64(ImageSize))
	}
	return out, nil
}

// WriteOptions configures WriteImage beyond the defaults each mode
// establishes.
type WriteOptions struct {
	// RecoveryMode includes sector 7 (the boot sector) in the
	// erase/program set even for modes that would normally exclude it,
	// for an explicit full-recovery write. Only meaningful when
	// combined with Force, since touching the boot sector outside its
	// normal mode (PROM) is otherwise refused.
	RecoveryMode bool
	// Force must be set alongside RecoveryMode to acknowledge the
	// boot-sector risk; WriteImage refuses RecoveryMode without it.
	Force bool
}

// Report summarizes a completed or failed WriteImage call.
type Report struct {
	Mode           bankmap.Mode
	SectorsErased  []int
	BytesWritten   int
	ChecksumOK     bool
	OnChipChecksum uint16
}

// WriteImage validates image, erases the sectors mode touches in
// ascending order, programs the write range in bank-register-aware
// chunks, verifies each sector by read-back, and finally compares the
// kernel's on-chip checksum to the image's embedded one.
func WriteImage(ctx context.Context, s *session.Session, mode bankmap.Mode, image []byte, opts WriteOptions, progress ProgressFunc) (Report, error) {
	if progress == nil {
		progress = noopProgress
	}
	if len(image) != ImageSize {
		return Report{}, &errs.ValidationError{Reason: "image length must be 131072 bytes"}
	}
	ok, err := VerifyBinChecksum(image)
	if err != nil {
		return Report{}, err
	}
	if !ok {
		return Report{}, &errs.ValidationError{Reason: "embedded checksum does not match calibration window contents"}
	}

	sectors, writeRange, err := bankmap.SectorsForMode(mode)
	if err != nil {
		return Report{}, &errs.ValidationError{Reason: err.Error()}
	}
	total := int64(writeRange.End - writeRange.Start)
	if opts.RecoveryMode {
		if !opts.Force {
			return Report{}, &errs.ValidationError{Reason: "RecoveryMode requires Force to touch the boot sector"}
		}
		sectors = withBootSector(sectors)
		if writeRange.End < ImageSize {
			total += bankmap.SectorSize
		}
	}

	report := Report{Mode: mode, SectorsErased: sectors}

	for _, idx := range sectors {
		if err := ctx.Err(); err != nil {
			return report, &errs.Cancelled{Stage: "write_image"}
		}
		sector := bankmap.Sectors[idx]
		if err := s.EraseSector(ctx, sector.FileStart); err != nil {
			return report, err
		}
		start := max(sector.FileStart, writeRange.Start)
		end := min(sector.FileEnd, writeRange.End)
		if opts.RecoveryMode && idx == bankmap.NumSectors-1 {
			// The boot sector just erased is programmed in full.
			start, end = sector.FileStart, sector.FileEnd
		}
		if start >= end {
			continue
		}
		if err := s.ProgramBytes(ctx, start, image[start:end]); err != nil {
			return report, err
		}
		readback, err := s.ReadBytes(ctx, start, end-start)
		if err != nil {
			return report, err
		}
		if !bytes.Equal(readback, image[start:end]) {
			return report, &errs.FlashError{Kind: errs.ProgramMismatch, Sector: idx, Offset: start, Details: "post-sector read-back did not match the image"}
		}
		report.BytesWritten += end - start
		progress("write_image", int64(report.BytesWritten), total)
	}

	onChip, err := s.ComputeChecksum(ctx)
	if err != nil {
		return report, err
	}
	report.OnChipChecksum = onChip
	want, err := ComputeBinChecksum(image)
	if err != nil {
		return report, err
	}
	report.ChecksumOK = onChip == want
	if !report.ChecksumOK {
		return report, &errs.FlashError{Kind: errs.ChecksumMismatch, Details: "on-chip checksum did not match the image's embedded checksum"}
	}
	return report, nil
}

// withBootSector adds sector 7 to sectors if not already present,
// keeping ascending order.
func withBootSector(sectors []int) []int {
	for _, s := range sectors {
		if s == bankmap.NumSectors-1 {
			return sectors
		}
	}
	return append(append([]int(nil), sectors...), bankmap.NumSectors-1)
}
