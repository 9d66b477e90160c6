package pmm

import (
	"ktf/list"
	"ktf/mm"
)

// Flag describes auxiliary frame state beyond its free/busy list
// membership (spec.md §3 Frame attributes).
type Flag uint8

const (
	// FlagMapped indicates the frame is currently installed in at least
	// one VMM window.
	FlagMapped Flag = 1 << iota
	// FlagUncacheable indicates the frame has been mapped with a
	// cache-disable PTE flag by some caller (e.g. an MMIO window).
	FlagUncacheable
	// FlagPageTable indicates the frame backs an intermediate page-table
	// level rather than caller data.
	FlagPageTable
)

// frame is the arena-resident record for one physical allocation unit.
// It embeds a list.Node so it can live on exactly one of the free/busy
// lists for its order (spec.md invariant 1).
type frame struct {
	node list.Node

	mfn      mm.Frame
	order    mm.Order
	refCount uint32
	flags    Flag

	// busy is true while the frame sits on a busy list; used only for
	// sanity assertions, the real source of truth is list membership.
	busy bool
}

// Frame is the read-only view of a frame record handed back to callers.
type Frame struct {
	MFN      mm.Frame
	Order    mm.Order
	RefCount uint32
	Flags    Flag
}

func (f *frame) snapshot() Frame {
	return Frame{MFN: f.mfn, Order: f.order, RefCount: f.refCount, Flags: f.flags}
}
