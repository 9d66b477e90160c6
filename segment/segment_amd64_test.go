package segment

import "testing"

func TestNewFlatGDTNullDescriptorIsZero(t *testing.T) {
	gdt := NewFlatGDT()
	if gdt[0] != 0 {
		t.Fatalf("expected the null descriptor to be all zero, got 0x%x", gdt[0])
	}
}

func TestNewFlatGDT64BitCodeDescriptorFlags(t *testing.T) {
	gdt := NewFlatGDT()
	desc := gdt[3]

	flags := uint32((desc >> 40) & 0x0000f0ff)
	if flags&flagPresent == 0 {
		t.Error("expected the 64-bit code descriptor to be present")
	}
	if flags&flagLong == 0 {
		t.Error("expected the 64-bit code descriptor to set the long-mode bit")
	}
	if flags&flagCode == 0 {
		t.Error("expected the 64-bit code descriptor to be a code segment")
	}
}

func TestNewTSSSetsStacks(t *testing.T) {
	tss := NewTSS(0xdead0000, 0xbeef0000)
	if tss.RSP[0] != 0xdead0000 {
		t.Errorf("rsp0 = 0x%x, want 0xdead0000", tss.RSP[0])
	}
	if tss.IST[0] != 0xbeef0000 {
		t.Errorf("ist[0] = 0x%x, want 0xbeef0000", tss.IST[0])
	}
	if tss.IOPB != tssSize {
		t.Errorf("iopb = %d, want %d (no I/O bitmap present)", tss.IOPB, tssSize)
	}
}

func TestBuildPerCPUGDTTSSDescriptorSpansTwoSlots(t *testing.T) {
	tss := NewTSS(0, 0)
	const tssAddr = uintptr(0x1000)

	gdt := Build(tss, tssAddr)

	base := uint32(gdt[gdtTSSLow]>>16) & 0x00ffffff
	base |= uint32(gdt[gdtTSSLow]>>32) & 0xff000000
	if uintptr(base) != tssAddr {
		t.Errorf("low 32 bits of TSS base = 0x%x, want 0x%x", base, tssAddr)
	}
	if gdt[gdtTSSHigh] != uint64(tssAddr>>32) {
		t.Errorf("high 32 bits of TSS base = 0x%x, want 0", gdt[gdtTSSHigh])
	}
}

func TestTSSSelectorMatchesGDTIndex(t *testing.T) {
	if TSSSelector != Selector(gdtTSSLow<<3) {
		t.Fatalf("TSSSelector = %d, want %d", TSSSelector, gdtTSSLow<<3)
	}
}
