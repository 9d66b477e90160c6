package vmm

import (
	"unsafe"

	"ktf/mm"
)

// tableView exposes the entriesPerTable slots of a page-table frame as a
// Go slice. It relies on the frame being reachable through the identity
// window (base 0, see window.go) - true for every page-table frame this
// mapper allocates, since page tables are always also identity-mapped so
// the walk below can dereference them directly instead of needing a
// separate scratch-page trick for every level.
func tableView(f mm.Frame) *[entriesPerTable]pageTableEntry {
	return (*[entriesPerTable]pageTableEntry)(unsafe.Pointer(f.Address()))
}

// zeroFrame clears an entire page-table frame through the identity window.
func zeroFrame(f mm.Frame) {
	view := tableView(f)
	for i := range view {
		view[i] = 0
	}
}

// levelIndex returns the index into the table at the given level (0=PML4
// down to 3=PT) for virtual address va.
func levelIndex(level int, va uintptr) uintptr {
	switch level {
	case 0:
		return pml4Index(va)
	case 1:
		return pdptIndex(va)
	case 2:
		return pdIndex(va)
	default:
		return ptIndex(va)
	}
}

// leafLevel returns the table level (1=PDPT, 2=PD, 3=PT) at which order's
// mapping terminates.
func leafLevel(order mm.Order) int {
	switch order {
	case mm.Order1G:
		return 1
	case mm.Order2M:
		return 2
	default:
		return 3
	}
}
