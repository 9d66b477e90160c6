package goruntime

import (
	"testing"
	"unsafe"

	"ktf/kernel"
	"ktf/mm"
	"ktf/mm/vmm"
)

func withStubs(t *testing.T, reserve func(uintptr) (uintptr, *kernel.Error), alloc func() (mm.Frame, *kernel.Error), vmap func(uintptr, mm.Frame, vmm.PageTableEntryFlag) *kernel.Error) {
	t.Helper()
	prevReserve, prevAlloc, prevVmap := earlyReserveRegionFn, frameAllocFn, vmap4KFn
	earlyReserveRegionFn, frameAllocFn, vmap4KFn = reserve, alloc, vmap
	t.Cleanup(func() { earlyReserveRegionFn, frameAllocFn, vmap4KFn = prevReserve, prevAlloc, prevVmap })
}

func TestSysReserveReturnsEarlyReservedAddress(t *testing.T) {
	withStubs(t,
		func(size uintptr) (uintptr, *kernel.Error) { return 0x1000, nil },
		nil, nil,
	)

	var reserved bool
	p := sysReserve(nil, 4096, &reserved)
	if !reserved {
		t.Error("sysReserve should set *reserved = true on success")
	}
	if uintptr(p) != 0x1000 {
		t.Errorf("sysReserve returned %#x, want 0x1000", uintptr(p))
	}
}

func TestSysReservePanicsOnFailure(t *testing.T) {
	withStubs(t,
		func(size uintptr) (uintptr, *kernel.Error) {
			return 0, &kernel.Error{Module: "vmm", Message: "no space"}
		},
		nil, nil,
	)

	defer func() {
		if recover() == nil {
			t.Error("sysReserve should panic when the reservation fails")
		}
	}()
	var reserved bool
	sysReserve(nil, 4096, &reserved)
}

func TestSysMapRequiresReservedTrue(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("sysMap should panic when reserved=false")
		}
	}()
	var stat uint64
	sysMap(unsafe.Pointer(uintptr(0x2000)), 4096, false, &stat)
}

func TestSysMapMapsOnePagePerPageSize(t *testing.T) {
	var mapped []uintptr
	withStubs(t,
		nil,
		func() (mm.Frame, *kernel.Error) { return mm.Frame(1), nil },
		func(off uintptr, f mm.Frame, flags vmm.PageTableEntryFlag) *kernel.Error {
			mapped = append(mapped, off)
			return nil
		},
	)

	var stat uint64
	p := sysMap(unsafe.Pointer(vmm.WindowKernel.VAForFrame(0x4000)), 2*mm.PageSize, true, &stat)
	if p == nil {
		t.Fatal("sysMap returned nil on success")
	}
	if len(mapped) != 2 {
		t.Fatalf("mapped %d pages, want 2", len(mapped))
	}
	if mapped[0] != 0x4000 || mapped[1] != 0x4000+mm.PageSize {
		t.Errorf("mapped offsets = %v, want [0x4000, 0x4000+PageSize]", mapped)
	}
}

func TestSysAllocReservesThenMaps(t *testing.T) {
	var mapped []uintptr
	withStubs(t,
		func(size uintptr) (uintptr, *kernel.Error) { return vmm.WindowKernel.VAForFrame(0x8000), nil },
		func() (mm.Frame, *kernel.Error) { return mm.Frame(1), nil },
		func(off uintptr, f mm.Frame, flags vmm.PageTableEntryFlag) *kernel.Error {
			mapped = append(mapped, off)
			return nil
		},
	)

	var stat uint64
	p := sysAlloc(mm.PageSize, &stat)
	if uintptr(p) != vmm.WindowKernel.VAForFrame(0x8000) {
		t.Errorf("sysAlloc returned %#x, want the reserved VA", uintptr(p))
	}
	if len(mapped) != 1 || mapped[0] != 0x8000 {
		t.Errorf("mapped = %v, want [0x8000]", mapped)
	}
}

func TestSysAllocReturnsNilOnAllocFailure(t *testing.T) {
	withStubs(t,
		func(size uintptr) (uintptr, *kernel.Error) { return vmm.WindowKernel.VAForFrame(0x9000), nil },
		func() (mm.Frame, *kernel.Error) { return mm.InvalidFrame, &kernel.Error{Module: "pmm", Message: "out of frames"} },
		nil,
	)

	var stat uint64
	if p := sysAlloc(mm.PageSize, &stat); p != nil {
		t.Errorf("sysAlloc = %v, want nil on frame allocation failure", p)
	}
}

func TestGetRandomDataFillsEveryByteDeterministically(t *testing.T) {
	prevSeed := prngSeed
	defer func() { prngSeed = prevSeed }()

	prngSeed = 42
	a := make([]byte, 8)
	getRandomData(a)

	prngSeed = 42
	b := make([]byte, 8)
	getRandomData(b)

	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("getRandomData not deterministic for a fixed seed at index %d: %v vs %v", i, a, b)
		}
	}
}

func TestNanotimeIsMonotonicPlaceholder(t *testing.T) {
	if nanotime() == 0 {
		t.Error("nanotime should never return 0")
	}
}
