package vmm

import (
	"testing"
	"unsafe"

	"ktf/mm"
	"ktf/mm/pmm"
)

// setupHostBackedPMM reserves a real Go-owned memory region and registers
// it with the PMM, so that frame addresses the mapper dereferences
// (tableView, zeroFrame) point at addressable host memory - the same
// trick the teacher's vmm_test.go uses with its `reservedPage` buffer.
func setupHostBackedPMM(t *testing.T, pages int) {
	t.Helper()
	buf := make([]byte, uintptr(pages)*mm.PageSize*2)
	base := alignedBase(buf)

	if err := pmm.Init([]pmm.Range{{Start: base, End: base + uintptr(pages)*mm.PageSize}}, nil); err != nil {
		t.Fatalf("pmm.Init: %v", err)
	}
}

func alignedBase(buf []byte) uintptr {
	addr := uintptr(unsafe.Pointer(&buf[0]))
	return (addr + mm.PageSize - 1) &^ (mm.PageSize - 1)
}

func TestVMapVUnmapRoundTrip(t *testing.T) {
	resetGlobals(t)
	setupHostBackedPMM(t, 64)

	if err := Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}

	dataFr, err := pmm.GetFreeFrames(mm.Order4K)
	if err != nil {
		t.Fatalf("GetFreeFrames: %v", err)
	}

	const va = 0x2000
	if err := vmap(va, dataFr.MFN, mm.Order4K, FlagPresent|FlagRW); err != nil {
		t.Fatalf("vmap: %v", err)
	}

	gotFrame, gotFlags, err := Walk(va, mm.Order4K)
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}
	if gotFrame != dataFr.MFN {
		t.Fatalf("Walk returned frame %v, want %v", gotFrame, dataFr.MFN)
	}
	if !pageTableEntry(gotFlags).HasFlags(FlagPresent | FlagRW) {
		t.Fatalf("Walk returned flags %x missing Present|RW", gotFlags)
	}

	if err := vunmap(va, mm.Order4K); err != nil {
		t.Fatalf("vunmap: %v", err)
	}

	if _, _, err := Walk(va, mm.Order4K); err == nil {
		t.Fatal("expected Walk to fail after vunmap")
	}
}

func TestGetFreePagesMultipleWindows(t *testing.T) {
	resetGlobals(t)
	setupHostBackedPMM(t, 64)

	if err := Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}

	va, err := GetFreePages(mm.Order4K, GFPIdent|GFPKernel, FlagPresent|FlagRW)
	if err != nil {
		t.Fatalf("GetFreePages: %v", err)
	}
	if va == 0 {
		t.Fatal("expected non-zero virtual address")
	}

	if _, _, err := Walk(va, mm.Order4K); err != nil {
		t.Fatalf("expected identity-window mapping to be present: %v", err)
	}

	if err := PutPages(va, mm.Order4K); err != nil {
		t.Fatalf("PutPages: %v", err)
	}
	if _, _, err := Walk(va, mm.Order4K); err == nil {
		t.Fatal("expected mapping to be gone after PutPages")
	}
}

func resetGlobals(t *testing.T) {
	t.Helper()
	rootTable = 0
}
