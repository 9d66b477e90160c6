package vmm

import (
	"ktf/kernel"
	"ktf/mm"
)

// earlyReserveLastUsed tracks the last reserved virtual address in the
// kernel window and is decreased after each reservation; it starts at the
// top of the 64-bit address space and is only ever used during early boot,
// before the task scheduler starts handing out memory through the normal
// GetFreePages path. Grounded on
// _examples/gopher-os-gopher-os/kernel/mem/vmm/addr_space.go's
// EarlyReserveRegion, which the same bump-down-from-the-top scheme.
var earlyReserveLastUsed = ^uintptr(0)

var errEarlyReserveNoSpace = &kernel.Error{Module: "vmm", Message: "remaining kernel window address space not large enough to satisfy reservation request"}

// EarlyReserveRegion reserves a page-aligned contiguous range of virtual
// addresses in the kernel window, rounding size up to a page multiple, and
// returns the reserved range's starting absolute virtual address. It
// reserves address space only - callers still need vmap (via
// VMapKern4K/2M/1G) to back any of it with real frames.
func EarlyReserveRegion(size uintptr) (uintptr, *kernel.Error) {
	size = (size + mm.PageSize - 1) &^ (mm.PageSize - 1)

	if size > earlyReserveLastUsed {
		return 0, errEarlyReserveNoSpace
	}

	earlyReserveLastUsed -= size
	return earlyReserveLastUsed, nil
}
