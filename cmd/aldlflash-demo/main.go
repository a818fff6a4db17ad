// Command aldlflash-demo wires the public core API together end to
// end against an in-process virtual ECU, the way jmchacon/6502's
// hand_asm demonstrates a package's API without any UI surface: open a
// session, patch the calibration window, write it, read it back, and
// report whether the round trip was clean. It takes no flags; CLI
// argument parsing and transport selection belong to an external
// harness, not this core library.
package main

import (
	"context"
	"fmt"
	"log"

	core "github.com/kanjar-tools/aldlflash"
	"github.com/kanjar-tools/aldlflash/flashops"
	"github.com/kanjar-tools/aldlflash/transport"
	"github.com/kanjar-tools/aldlflash/virtualecu"
)

func main() {
	ctx := context.Background()

	image := make([]byte, flashops.ImageSize)
	for i := 0x4000; i < 0x8000; i++ {
		image[i] = 0xAA
	}
	fixed, err := flashops.FixBinChecksum(image)
	if err != nil {
		log.Fatalf("FixBinChecksum: %v", err)
	}

	ecu := virtualecu.New(0x1234)
	sess, err := core.OpenSession(ctx, transport.Spec{Kind: transport.KindVirtualECU, VirtualECU: ecu}, core.Config{})
	if err != nil {
		log.Fatalf("OpenSession: %v", err)
	}
	defer sess.Close()

	report, err := sess.WriteImage(ctx, core.ModeCAL, fixed, core.WriteOptions{}, func(stage string, done, total int64) {
		fmt.Printf("%s: %d/%d\n", stage, done, total)
	})
	if err != nil {
		log.Fatalf("WriteImage: %v", err)
	}
	fmt.Printf("wrote %d bytes, checksum ok=%v, sectors erased=%v\n", report.BytesWritten, report.ChecksumOK, report.SectorsErased)

	readBack, err := sess.ReadImage(ctx, nil)
	if err != nil {
		log.Fatalf("ReadImage: %v", err)
	}
	mismatch := false
	for i := 0x4000; i < 0x8000; i++ {
		if readBack[i] != fixed[i] {
			mismatch = true
			break
		}
	}
	fmt.Printf("round trip clean: %v\n", !mismatch)

	if err := sess.Cleanup(ctx); err != nil {
		log.Fatalf("Cleanup: %v", err)
	}
}
