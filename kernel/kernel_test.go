package kernel

import "testing"

func TestLoadPassesIntegritySelfCheck(t *testing.T) {
	p, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(p.blocks[0]) != Block0Len || len(p.blocks[1]) != Block1Len || len(p.blocks[2]) != Block2Len {
		t.Errorf("block lengths = %d, %d, %d; want %d, %d, %d",
			len(p.blocks[0]), len(p.blocks[1]), len(p.blocks[2]), Block0Len, Block1Len, Block2Len)
	}
}

func TestBlockAppliesFeaturePatchWithoutMutatingBaseline(t *testing.T) {
	p, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	patched, err := p.Block(0, FeatureHighSpeedRead)
	if err != nil {
		t.Fatalf("Block: %v", err)
	}
	if patched[patchTable[FeatureHighSpeedRead].offset] != patchTable[FeatureHighSpeedRead].value {
		t.Errorf("patch not applied at offset 0x%02X", patchTable[FeatureHighSpeedRead].offset)
	}
	unpatched, err := p.Block(0)
	if err != nil {
		t.Fatalf("Block: %v", err)
	}
	if unpatched[patchTable[FeatureHighSpeedRead].offset] == patchTable[FeatureHighSpeedRead].value &&
		block0[patchTable[FeatureHighSpeedRead].offset] != patchTable[FeatureHighSpeedRead].value {
		t.Errorf("baseline block mutated by a previous patch application")
	}
}

func TestAddrMapsEachBlock(t *testing.T) {
	want := []int{Block0Addr, Block1Addr, Block2Addr}
	for i, w := range want {
		got, err := Addr(i)
		if err != nil {
			t.Fatalf("Addr(%d): %v", i, err)
		}
		if got != w {
			t.Errorf("Addr(%d) = 0x%04X, want 0x%04X", i, got, w)
		}
	}
}
