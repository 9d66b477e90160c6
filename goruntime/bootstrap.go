// Package goruntime bootstraps Go runtime features - the heap allocator,
// map primitives, interfaces - that the runtime would otherwise wire up
// against a hosted OS's mmap/sbrk. Grounded on
// _examples/gopher-os-gopher-os/kernel/goruntime/bootstrap.go, adapted to
// this repository's mm/pmm + mm/vmm packages in place of the teacher's
// kernel/mem/pmm/allocator + kernel/mem/vmm.
//
// This package depends on the same forked-compiler `go:redirect-from`
// pragma the teacher's does: on a stock gc toolchain, sysReserve/sysMap/
// sysAlloc below are never actually called by the runtime, and Init's
// go:linkname'd calls link against the real runtime.{alginit,mallocinit,...}
// private functions (legal with stock gc, since that direction only pulls
// an existing symbol rather than redirecting one). Kept in this shape
// because it is the pattern the retrieval pack's only freestanding-Go
// kernel uses for this exact problem; see DESIGN.md.
package goruntime

import (
	"unsafe"

	"ktf/kernel"
	"ktf/mm"
	"ktf/mm/pmm"
	"ktf/mm/vmm"
)

var (
	earlyReserveRegionFn = vmm.EarlyReserveRegion
	frameAllocFn         = func() (mm.Frame, *kernel.Error) {
		fr, err := pmm.GetFreeFrames(mm.Order4K)
		if err != nil {
			return mm.InvalidFrame, err
		}
		return fr.MFN, nil
	}
	mallocInitFn    = mallocInit
	algInitFn       = algInit
	modulesInitFn   = modulesInit
	typeLinksInitFn = typeLinksInit
	itabsInitFn     = itabsInit

	// prngSeed seeds the fallback pseudo-random source getRandomData uses
	// in place of a hosted /dev/random.
	prngSeed = 0xdeadc0de
)

//go:linkname algInit runtime.alginit
func algInit()

//go:linkname modulesInit runtime.modulesinit
func modulesInit()

//go:linkname typeLinksInit runtime.typelinksinit
func typeLinksInit()

//go:linkname itabsInit runtime.itabsinit
func itabsInit()

//go:linkname mallocInit runtime.mallocinit
func mallocInit()

//go:linkname mSysStatInc runtime.mSysStatInc
func mSysStatInc(*uint64, uintptr)

// sysReserve reserves kernel-window address space without mapping any
// frame into it. Replaces runtime.sysReserve.
//
//go:redirect-from runtime.sysReserve
//go:nosplit
func sysReserve(_ unsafe.Pointer, size uintptr, reserved *bool) unsafe.Pointer {
	va, err := earlyReserveRegionFn(size)
	if err != nil {
		panic(err)
	}

	*reserved = true
	return unsafe.Pointer(va)
}

// sysMap backs a range already reserved by sysReserve with real, zeroed
// frames. The teacher's equivalent installs a single shared
// copy-on-write zero frame and relies on a page-fault handler to install a
// private frame on first write; this kernel has no fault-driven demand
// paging, so sysMap maps a real frame per page up front instead - simpler,
// and still correct, at the cost of committing memory eagerly. Replaces
// runtime.sysMap.
//
//go:redirect-from runtime.sysMap
//go:nosplit
func sysMap(virtAddr unsafe.Pointer, size uintptr, reserved bool, sysStat *uint64) unsafe.Pointer {
	if !reserved {
		panic("sysMap should only be called with reserved=true")
	}

	regionStart := (uintptr(virtAddr) + mm.PageSize - 1) &^ (mm.PageSize - 1)
	regionSize := (size + mm.PageSize - 1) &^ (mm.PageSize - 1)

	if err := mapZeroedRange(regionStart, regionSize); err != nil {
		return unsafe.Pointer(uintptr(0))
	}

	mSysStatInc(sysStat, regionSize)
	return unsafe.Pointer(regionStart)
}

// sysAlloc reserves and maps a fresh range in one step. Replaces
// runtime.sysAlloc.
//
//go:redirect-from runtime.sysAlloc
//go:nosplit
func sysAlloc(size uintptr, sysStat *uint64) unsafe.Pointer {
	regionSize := (size + mm.PageSize - 1) &^ (mm.PageSize - 1)

	va, err := earlyReserveRegionFn(regionSize)
	if err != nil {
		return unsafe.Pointer(uintptr(0))
	}

	if err := mapZeroedRange(va, regionSize); err != nil {
		return unsafe.Pointer(uintptr(0))
	}

	mSysStatInc(sysStat, regionSize)
	return unsafe.Pointer(va)
}

// mapZeroedRange installs a freshly allocated, implicitly-zeroed frame
// (pmm hands out only frames no longer referenced elsewhere) at every page
// of [va, va+size) in the kernel window.
func mapZeroedRange(va, size uintptr) *kernel.Error {
	flags := vmm.FlagPresent | vmm.FlagRW | vmm.FlagNX
	pageCount := size / mm.PageSize

	for i := uintptr(0); i < pageCount; i++ {
		frame, err := frameAllocFn()
		if err != nil {
			return err
		}

		off := vmm.WindowKernel.OffsetOf(va + i*mm.PageSize)
		if err := vmap4KFn(off, frame, flags); err != nil {
			return err
		}
	}

	return nil
}

var vmap4KFn = vmm.VMapKern4K

// nanotime always returns the constant 1; it does not advance. This kernel
// has no timekeeper (spec.md's PIT/HPET drivers are external, see
// SPEC_FULL.md §1), so this is a placeholder the allocator's span
// bookkeeping can call without crashing. Replaces runtime.nanotime.
//
//go:redirect-from runtime.nanotime
//go:nosplit
func nanotime() uint64 {
	for i := 0; i < 100; i++ {
	}
	return 1
}

// getRandomData populates r with a non-cryptographic pseudo-random stream,
// standing in for the hosted runtime's /dev/random read. Replaces
// runtime.getRandomData.
//
//go:redirect-from runtime.getRandomData
func getRandomData(r []byte) {
	for i := 0; i < len(r); i++ {
		prngSeed = (prngSeed * 58321) + 11113
		r[i] = byte((prngSeed >> 16) & 255)
	}
}

// Init enables Go runtime features that depend on a working allocator:
// heap allocation (new/make), map primitives and interfaces. Must run once
// vmm.Init has installed the PML4 root table.
func Init() *kernel.Error {
	mallocInitFn()
	algInitFn()
	modulesInitFn()
	typeLinksInitFn()
	itabsInitFn()
	return nil
}

func init() {
	// Dummy calls so the compiler keeps these symbols reachable; without a
	// real call site the linker would drop every go:redirect-from target.
	var (
		reserved bool
		stat     uint64
		zeroPtr  = unsafe.Pointer(uintptr(0))
	)

	sysReserve(zeroPtr, 0, &reserved)
	sysMap(zeroPtr, 0, reserved, &stat)
	sysAlloc(0, &stat)
	getRandomData(nil)
	stat = nanotime()
}
