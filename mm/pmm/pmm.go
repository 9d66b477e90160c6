// Package pmm implements the physical frame allocator described in
// spec.md §4.1: buddy-style free/busy doubly-linked lists at the 4 KiB,
// 2 MiB and 1 GiB orders, bootstrapped from the Multiboot memory map.
//
// This REPLACES the teacher's (gopher-os) bitmap+bootmem two-stage
// allocator: the teacher's concern (a singleton, globally-locked
// physical allocator exposing an AllocFrame-shaped function that the vmm
// package registers itself against, see src/gopheros/kernel/mm/pmm/pmm.go)
// is kept, but the underlying data structure is the multi-order free/busy
// list spec.md calls for instead of a bitmap. See DESIGN.md.
package pmm

import (
	"ktf/kernel"
	"ktf/list"
	"ktf/mm"
	"ktf/sync"
)

const headIdx = list.None

var (
	errFrameListEmpty  = &kernel.Error{Module: "pmm", Message: "free list is empty for requested order"}
	errNoMatchingFrame = &kernel.Error{Module: "pmm", Message: "no busy frame matches the given mfn/order"}
	errPredicateFailed = &kernel.Error{Module: "pmm", Message: "no free frame satisfies the supplied predicate"}
)

// Allocator owns every physical frame not claimed by a kernel section. A
// single lock (spec.md §4.1, §5) serializes every mutation.
type Allocator struct {
	lock sync.Spinlock

	arena []frame
	// byMFN maps a frame's starting MFN to its arena index, independent
	// of order, for O(1) put_free_frames/reclaim_frame lookups. It
	// replaces the original's linear "locate the matching busy frame by
	// MFN" scan, which is not kept; indexing keeps boot-time carving of a
	// multi-GiB range from being quadratic.
	byMFN map[mm.Frame]int

	free [mm.NumOrders]list.List
	busy [mm.NumOrders]list.List
}

// global is the singleton physical allocator, mirroring the teacher's
// package-level bootMemAllocator/bitmapAllocator pair.
var global Allocator

// Range describes one Multiboot-reported AVAILABLE physical memory range,
// [Start, End).
type Range struct {
	Start, End uintptr
}

// ReservedFn reports whether physAddr already belongs to a mapped kernel
// section (and must therefore be skipped during bootstrap carving).
type ReservedFn func(physAddr uintptr) bool

// Init bootstraps the global allocator from the given AVAILABLE ranges,
// skipping any address the reserved function claims. See carveRange for
// the "align up then grow, then align down" policy spec.md §4.1 mandates.
func Init(ranges []Range, reserved ReservedFn) *kernel.Error {
	return global.init(ranges, reserved)
}

func (a *Allocator) init(ranges []Range, reserved ReservedFn) *kernel.Error {
	a.byMFN = make(map[mm.Frame]int)
	a.arena = nil
	for i := range a.free {
		a.free[i].Init(headIdx)
		a.busy[i].Init(headIdx)
	}

	for _, r := range ranges {
		carveRange(r.Start, r.End, func(addr uintptr, order mm.Order) {
			if reserved != nil && rangeReserved(addr, order.Size(), reserved) {
				return
			}
			a.addFreeFrame(mm.FrameFromAddress(addr), order)
		})
	}

	return nil
}

func rangeReserved(addr uintptr, size uintptr, reserved ReservedFn) bool {
	for off := uintptr(0); off < size; off += mm.PageSize {
		if reserved(addr + off) {
			return true
		}
	}
	return false
}

func (a *Allocator) nodeOf(idx int) *list.Node { return &a.arena[idx].node }

func (a *Allocator) addFreeFrame(mfn mm.Frame, order mm.Order) {
	idx := len(a.arena)
	a.arena = append(a.arena, frame{mfn: mfn, order: order})
	a.byMFN[mfn] = idx
	a.free[order].PushBack(idx, headIdx, a.nodeOf)
}

// GetFreeFrames removes the head of the free list at order, moves it to
// the busy list at order, and returns it. It fails only when that list is
// empty - no splitting is ever performed (spec.md §4.1).
func GetFreeFrames(order mm.Order) (Frame, *kernel.Error) {
	return global.getFreeFrames(order)
}

func (a *Allocator) getFreeFrames(order mm.Order) (Frame, *kernel.Error) {
	a.lock.Acquire()
	defer a.lock.Release()

	idx := a.free[order].Front()
	if idx == list.None {
		return Frame{}, errFrameListEmpty
	}

	a.free[order].Remove(idx, headIdx, a.nodeOf)
	fr := &a.arena[idx]
	fr.refCount = 1
	fr.busy = true
	a.busy[order].PushBack(idx, headIdx, a.nodeOf)

	return fr.snapshot(), nil
}

// Predicate is evaluated against each busy-eligible free frame in turn by
// GetFreeFramesCond.
type Predicate func(Frame) bool

// GetFreeFramesCond performs a linear scan across orders, from 4 KiB to
// 1 GiB, returning the first free frame for which predicate holds. On a
// match, fulfillment is identical to GetFreeFrames: the frame moves from
// free to busy for its own order.
func GetFreeFramesCond(predicate Predicate) (Frame, *kernel.Error) {
	return global.getFreeFramesCond(predicate)
}

func (a *Allocator) getFreeFramesCond(predicate Predicate) (Frame, *kernel.Error) {
	a.lock.Acquire()

	for order := mm.Order4K; int(order) < mm.NumOrders; order++ {
		for idx := a.free[order].Front(); idx != list.None; idx = a.nodeOf(idx).Next(headIdx) {
			if predicate(a.arena[idx].snapshot()) {
				a.free[order].Remove(idx, headIdx, a.nodeOf)
				fr := &a.arena[idx]
				fr.refCount = 1
				fr.busy = true
				a.busy[order].PushBack(idx, headIdx, a.nodeOf)
				a.lock.Release()
				return fr.snapshot(), nil
			}
		}
	}

	a.lock.Release()
	return Frame{}, errPredicateFailed
}

// PutFreeFrames locates the busy frame matching mfn within the order's busy
// list, decrements its reference count, and returns it to the free list
// once the count reaches zero (spec.md §4.1).
func PutFreeFrames(mfn mm.Frame, order mm.Order) *kernel.Error {
	return global.putFreeFrames(mfn, order)
}

func (a *Allocator) putFreeFrames(mfn mm.Frame, order mm.Order) *kernel.Error {
	a.lock.Acquire()
	defer a.lock.Release()

	idx, ok := a.byMFN[mfn]
	if !ok || a.arena[idx].order != order || !a.arena[idx].busy {
		return errNoMatchingFrame
	}

	fr := &a.arena[idx]
	if fr.refCount > 0 {
		fr.refCount--
	}
	if fr.refCount > 0 {
		return nil
	}

	a.busy[order].Remove(idx, headIdx, a.nodeOf)
	fr.busy = false
	fr.flags = 0
	a.free[order].PushFront(idx, headIdx, a.nodeOf)
	return nil
}

// ReclaimFrame pushes a never-before-allocated frame (e.g. a reclaimed
// *.init section page, see the regions package) onto the free list.
func ReclaimFrame(mfn mm.Frame, order mm.Order) *kernel.Error {
	return global.reclaimFrame(mfn, order)
}

func (a *Allocator) reclaimFrame(mfn mm.Frame, order mm.Order) *kernel.Error {
	a.lock.Acquire()
	defer a.lock.Release()

	if _, exists := a.byMFN[mfn]; exists {
		return &kernel.Error{Module: "pmm", Message: "frame already tracked"}
	}

	a.addFreeFrame(mfn, order)
	return nil
}

// FreeCount returns the number of frames currently on the free list for
// order. Exposed for tests exercising the PMM's round-trip invariant
// (spec.md §8).
func FreeCount(order mm.Order) int { return global.free[order].Len() }

// BusyCount returns the number of frames currently on the busy list for
// order.
func BusyCount(order mm.Order) int { return global.busy[order].Len() }
