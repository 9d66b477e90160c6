package percpu

import (
	"testing"
	"unsafe"

	"ktf/cpu"
	"ktf/gate"
	"ktf/kernel"
	"ktf/mm"
	"ktf/mm/vmm"
	"ktf/segment"
)

// withMockedHW redirects every privileged/allocating indirection Init and
// Current use so they can run against plain Go memory instead of real page
// tables and MSRs; returns a restore func.
func withMockedHW(t *testing.T) func() {
	t.Helper()
	savedAlloc, savedWRMSR, savedRDMSR := allocPageFn, wrmsrFn, rdmsrFn
	savedGDT, savedTSS, savedIST := loadGDTFn, loadTSSFn, setISTFn
	savedBlocks := blocks

	var backing Block
	msrs := map[uint32]uint64{}

	allocPageFn = func(mm.Order, vmm.GFP, vmm.PageTableEntryFlag) (uintptr, *kernel.Error) {
		return uintptr(unsafe.Pointer(&backing)), nil
	}
	wrmsrFn = func(msr uint32, v uint64) { msrs[msr] = v }
	rdmsrFn = func(msr uint32) uint64 { return msrs[msr] }
	loadGDTFn = func(uintptr, uint16) {}
	loadTSSFn = func(segment.Selector) {}
	setISTFn = func(gate.InterruptNumber, uint8) {}

	return func() {
		allocPageFn, wrmsrFn, rdmsrFn = savedAlloc, savedWRMSR, savedRDMSR
		loadGDTFn, loadTSSFn, setISTFn = savedGDT, savedTSS, savedIST
		blocks = savedBlocks
	}
}

func TestInitRejectsOutOfRangeID(t *testing.T) {
	_, err := Init(MaxCPUs, 0, false)
	if err != ErrTooManyCPUs {
		t.Fatalf("expected ErrTooManyCPUs, got %v", err)
	}
}

func TestInitPopulatesBlockFields(t *testing.T) {
	defer withMockedHW(t)()

	b, err := Init(3, 7, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.ID != 3 || b.APICID != 7 || !b.BSP || !b.Enabled {
		t.Fatalf("unexpected block fields: %+v", *b)
	}
	if got := ByID(3); got != b {
		t.Fatalf("ByID(3) = %p, want %p", got, b)
	}
}

func TestInitSetsGSBaseToBlockAddress(t *testing.T) {
	defer withMockedHW(t)()

	b, err := Init(0, 0, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := Current(); got != b {
		t.Fatalf("Current() = %p, want %p", got, b)
	}
}

func TestInitSetsTSCAuxToCPUID(t *testing.T) {
	defer withMockedHW(t)()

	var captured uint64
	wrmsrFn = func(msr uint32, v uint64) {
		if msr == cpu.MSRTSCAux {
			captured = v
		}
	}

	if _, err := Init(5, 0, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if captured != 5 {
		t.Fatalf("TSC_AUX = %d, want 5", captured)
	}
}

func TestByIDOutOfRangeReturnsNil(t *testing.T) {
	if got := ByID(MaxCPUs); got != nil {
		t.Fatalf("expected nil, got %v", got)
	}
}
