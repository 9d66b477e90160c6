package regions

import (
	"ktf/kernel"
	"ktf/mm"
	"ktf/mm/vmm"
)

// mapFn is indirected so tests can substitute a fake mapper instead of the
// real vmm (which needs live page tables and a PMM-backed frame allocator).
var mapFn = vmap

func vmap(win vmm.Window, offsetInWindow uintptr, mfn mm.Frame, prot vmm.PageTableEntryFlag) *kernel.Error {
	switch win {
	case vmm.WindowIdentity:
		return vmm.VMapIdent4K(offsetInWindow, mfn, prot)
	case vmm.WindowUser:
		return vmm.VMapUser4K(offsetInWindow, mfn, prot)
	default:
		return vmm.VMapKern4K(offsetInWindow, mfn, prot)
	}
}

// windowBase mirrors vmm's private window base table; spec.md §3 fixes
// these three values exactly, so duplicating them here (rather than
// exporting vmm's internal windowDef) keeps regions from needing a new
// vmm export solely for this arithmetic.
func windowBase(w vmm.Window) uintptr {
	switch w {
	case vmm.WindowUser:
		return 0x0000000000400000
	case vmm.WindowKernel:
		return 0xffffffff80000000
	default:
		return 0
	}
}

// MapAll walks every region in Table and installs a 4 KiB mapping for each
// page it spans, in its assigned window, using the region's default
// protection. The physical frame backing each page is derived from the
// region's virtual address minus its window's base — every region here
// describes a kernel-image page the bootloader already loaded contiguously
// at (window base + physical offset), per spec.md §2 stage 2.
func MapAll() *kernel.Error {
	for _, r := range Table {
		base := windowBase(r.Window)
		for va := r.Start &^ (mm.PageSize - 1); va < r.End; va += mm.PageSize {
			pa := va - base
			if err := mapFn(r.Window, va-base, mm.FrameFromAddress(pa), r.Prot); err != nil {
				return errRegionMapFailed
			}
		}
	}
	return nil
}

// Reclaim unmaps every "*.init" region and returns its frames to the PMM
// via vmm.PutPages, matching spec.md §2 stage 2's boot-time cleanup ("unmap
// and reclaim *.init sections").
func Reclaim() *kernel.Error {
	for _, r := range Table {
		if !isInitSection(r.Name) {
			continue
		}
		for va := r.Start &^ (mm.PageSize - 1); va < r.End; va += mm.PageSize {
			if err := vmm.PutPages(va, mm.Order4K); err != nil {
				return err
			}
		}
	}
	return nil
}
