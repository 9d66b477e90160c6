package vmm

import (
	"ktf/kernel"
	"ktf/mm"
	"ktf/mm/pmm"
	"ktf/sync"
)

var (
	errTableAllocFailed = &kernel.Error{Module: "vmm", Message: "failed to allocate page-table frame"}
	errNotMapped        = &kernel.Error{Module: "vmm", Message: "virtual address is not mapped"}

	// mmapLock is the "separate mmap lock (distinct from the PMM lock)"
	// spec.md §4.2 calls for.
	mmapLock sync.Spinlock

	rootTable mm.Frame
)

// Init allocates the PML4 root table and zeroes it. It must run once,
// before any other vmm call.
func Init() *kernel.Error {
	mmapLock.Acquire()
	defer mmapLock.Release()

	fr, err := pmm.GetFreeFrames(mm.Order4K)
	if err != nil {
		return errTableAllocFailed
	}
	rootTable = fr.MFN
	zeroFrame(rootTable)
	return nil
}

// RootTable returns the physical frame backing the current PML4 ("cr3").
func RootTable() mm.Frame { return rootTable }

// requisitionTable returns the child-table frame referenced by entry,
// allocating and zeroing a fresh one if entry is not yet present.
func requisitionTable(entry *pageTableEntry, prot PageTableEntryFlag) (mm.Frame, *kernel.Error) {
	if entry.Present() {
		return entry.Frame(), nil
	}

	fr, err := pmm.GetFreeFrames(mm.Order4K)
	if err != nil {
		return mm.InvalidFrame, errTableAllocFailed
	}
	zeroFrame(fr.MFN)

	*entry = 0
	entry.SetFrame(fr.MFN)
	// Intermediate levels get the permissive union of every protection a
	// descendant might need (spec.md §4.2); the leaf entry is where the
	// real restriction is enforced.
	entry.SetFlags(FlagPresent | FlagRW | (prot & FlagUser))
	return fr.MFN, nil
}

// vmap installs a mapping for (va, mfn, order, flags), allocating any
// missing intermediate table along the way. Large-page orders (2M/1G) set
// FlagPSE and stop the walk at the corresponding level.
func vmap(va uintptr, mfn mm.Frame, order mm.Order, flags PageTableEntryFlag) *kernel.Error {
	mmapLock.Acquire()
	defer mmapLock.Release()

	if rootTable == 0 {
		return errTableAllocFailed
	}

	pml4 := tableView(rootTable)
	pml4e := &pml4[pml4Index(va)]
	pdptFrame, err := requisitionTable(pml4e, flags)
	if err != nil {
		return err
	}

	if order == mm.Order1G {
		pdpt := tableView(pdptFrame)
		e := &pdpt[pdptIndex(va)]
		*e = 0
		e.SetFrame(mfn)
		e.SetFlags(flags | FlagPSE)
		flushTLB()
		return nil
	}

	pdpt := tableView(pdptFrame)
	pdpte := &pdpt[pdptIndex(va)]
	pdFrame, err := requisitionTable(pdpte, flags)
	if err != nil {
		return err
	}

	if order == mm.Order2M {
		pd := tableView(pdFrame)
		e := &pd[pdIndex(va)]
		*e = 0
		e.SetFrame(mfn)
		e.SetFlags(flags | FlagPSE)
		flushTLB()
		return nil
	}

	pd := tableView(pdFrame)
	pde := &pd[pdIndex(va)]
	ptFrame, err := requisitionTable(pde, flags)
	if err != nil {
		return err
	}

	pt := tableView(ptFrame)
	e := &pt[ptIndex(va)]
	*e = 0
	e.SetFrame(mfn)
	e.SetFlags(flags)
	flushTLB()
	return nil
}

// vunmap is vmap with the invalid MFN sentinel and empty flags, per
// spec.md §4.2.
func vunmap(va uintptr, order mm.Order) *kernel.Error {
	mmapLock.Acquire()
	defer mmapLock.Release()

	entry, err := pteAt(va, order)
	if err != nil {
		return nil // nothing mapped, nothing to do
	}
	*entry = 0
	flushTLB()
	return nil
}

// pteAt walks the active tables and returns the entry at the leaf level
// matching order, without allocating anything. It returns errNotMapped if
// any intermediate level is absent.
func pteAt(va uintptr, order mm.Order) (*pageTableEntry, *kernel.Error) {
	if rootTable == 0 {
		return nil, errNotMapped
	}

	pml4 := tableView(rootTable)
	pml4e := &pml4[pml4Index(va)]
	if !pml4e.Present() {
		return nil, errNotMapped
	}

	pdpt := tableView(pml4e.Frame())
	pdpte := &pdpt[pdptIndex(va)]
	if order == mm.Order1G {
		return pdpte, nil
	}
	if !pdpte.Present() {
		return nil, errNotMapped
	}

	pd := tableView(pdpte.Frame())
	pde := &pd[pdIndex(va)]
	if order == mm.Order2M {
		return pde, nil
	}
	if !pde.Present() {
		return nil, errNotMapped
	}

	pt := tableView(pde.Frame())
	return &pt[ptIndex(va)], nil
}

// Walk returns the (frame, flags) pair currently installed for va at
// order, or an error if nothing is mapped. Used by tests verifying the
// vmap/vunmap round-trip law in spec.md §8.
func Walk(va uintptr, order mm.Order) (mm.Frame, PageTableEntryFlag, *kernel.Error) {
	entry, err := pteAt(va, order)
	if err != nil || !entry.Present() {
		return mm.InvalidFrame, 0, errNotMapped
	}
	return entry.Frame(), PageTableEntryFlag(*entry) &^ PageTableEntryFlag(ptePhysPageMask), nil
}
