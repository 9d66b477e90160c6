package vmm

import (
	"ktf/kernel"
	"ktf/mm"
	"ktf/mm/pmm"
)

// flushTLBFn is swapped out by tests; in the real kernel this reloads CR3
// (spec.md §4.2: "TLBs are flushed by reloading CR3 after each write").
var flushTLBFn = func() {}

func flushTLB() { flushTLBFn() }

// window/order helper pairs -------------------------------------------------

// VMapIdent4K installs a 4 KiB mapping in the identity window.
func VMapIdent4K(pa uintptr, mfn mm.Frame, flags PageTableEntryFlag) *kernel.Error {
	return vmap(WindowIdentity.addr(pa), mfn, mm.Order4K, flags)
}

// VMapIdent2M installs a 2 MiB mapping in the identity window.
func VMapIdent2M(pa uintptr, mfn mm.Frame, flags PageTableEntryFlag) *kernel.Error {
	return vmap(WindowIdentity.addr(pa), mfn, mm.Order2M, flags)
}

// VMapIdent1G installs a 1 GiB mapping in the identity window.
func VMapIdent1G(pa uintptr, mfn mm.Frame, flags PageTableEntryFlag) *kernel.Error {
	return vmap(WindowIdentity.addr(pa), mfn, mm.Order1G, flags)
}

// VMapKern4K installs a 4 KiB mapping in the kernel window.
func VMapKern4K(off uintptr, mfn mm.Frame, flags PageTableEntryFlag) *kernel.Error {
	return vmap(WindowKernel.addr(off), mfn, mm.Order4K, flags)
}

// VMapKern2M installs a 2 MiB mapping in the kernel window.
func VMapKern2M(off uintptr, mfn mm.Frame, flags PageTableEntryFlag) *kernel.Error {
	return vmap(WindowKernel.addr(off), mfn, mm.Order2M, flags)
}

// VMapKern1G installs a 1 GiB mapping in the kernel window.
func VMapKern1G(off uintptr, mfn mm.Frame, flags PageTableEntryFlag) *kernel.Error {
	return vmap(WindowKernel.addr(off), mfn, mm.Order1G, flags)
}

// VMapUser4K installs a 4 KiB mapping in the user window.
func VMapUser4K(off uintptr, mfn mm.Frame, flags PageTableEntryFlag) *kernel.Error {
	return vmap(WindowUser.addr(off), mfn, mm.Order4K, flags)
}

// VMapUser2M installs a 2 MiB mapping in the user window.
func VMapUser2M(off uintptr, mfn mm.Frame, flags PageTableEntryFlag) *kernel.Error {
	return vmap(WindowUser.addr(off), mfn, mm.Order2M, flags)
}

// VMapUser1G installs a 1 GiB mapping in the user window.
func VMapUser1G(off uintptr, mfn mm.Frame, flags PageTableEntryFlag) *kernel.Error {
	return vmap(WindowUser.addr(off), mfn, mm.Order1G, flags)
}

// VUnmap removes the mapping for absolute virtual address va at order. Use
// the Window.addr helper to compute va for a non-identity window.
func VUnmap(va uintptr, order mm.Order) *kernel.Error {
	return vunmap(va, order)
}

// GetFreePages allocates a frame of the given order from the PMM and maps
// it into every window requested by gfp, returning the identity-window
// virtual address of the new allocation (or the kernel-window address if
// GFPIdent was not requested).
func GetFreePages(order mm.Order, gfp GFP, flags PageTableEntryFlag) (uintptr, *kernel.Error) {
	fr, err := pmm.GetFreeFrames(order)
	if err != nil {
		return 0, err
	}

	pa := fr.MFN.Address()
	var retVA uintptr

	if gfp&GFPIdent != 0 {
		if err := vmap(WindowIdentity.addr(pa), fr.MFN, order, flags); err != nil {
			return 0, err
		}
		retVA = WindowIdentity.addr(pa)
	}
	if gfp&(GFPKernel|GFPKernelMap) != 0 {
		if err := vmap(WindowKernel.addr(pa), fr.MFN, order, flags); err != nil {
			return 0, err
		}
		if retVA == 0 {
			retVA = WindowKernel.addr(pa)
		}
	}
	if gfp&GFPUser != 0 {
		if err := vmap(WindowUser.addr(pa), fr.MFN, order, flags|FlagUser); err != nil {
			return 0, err
		}
		if retVA == 0 {
			retVA = WindowUser.addr(pa)
		}
	}

	return retVA, nil
}

// PutPages unmaps va (and its matching address in every other window that
// shares the same frame) and returns the underlying frame to the PMM. The
// frame and order are recovered from the PTE hierarchy itself, per
// spec.md §4.2.
func PutPages(va uintptr, order mm.Order) *kernel.Error {
	entry, err := pteAt(va, order)
	if err != nil || !entry.Present() {
		return errNotMapped
	}
	frame := entry.Frame()
	pa := frame.Address()

	for _, w := range []Window{WindowIdentity, WindowKernel, WindowUser} {
		_ = vunmap(w.addr(pa), order)
	}

	return pmm.PutFreeFrames(frame, order)
}
