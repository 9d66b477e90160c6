package pmm

import "ktf/mm"

const (
	size4K = mm.PageSize
	size2M = size4K << 9
	size1G = size4K << 18
)

func alignUp(addr, align uintptr) uintptr {
	return (addr + align - 1) &^ (align - 1)
}

// carveRange decomposes [start, end) into the canonical order sequence
// spec.md §4.1 mandates: 4 KiB frames up to the next 2 MiB boundary, then
// 2 MiB frames up to the next 1 GiB boundary, then 1 GiB frames until the
// remaining tail is smaller than 1 GiB, at which point the policy tapers
// back down through 2 MiB and 4 KiB frames to consume the remainder.
//
// "Align up then grow, then align down" guarantees the 4 KiB frames that
// the very first mappings need (before any page tables exist, only 4 KiB
// frames can be addressed) are found at the front of the 4 KiB free list.
func carveRange(start, end uintptr, emit func(addr uintptr, order mm.Order)) {
	if end <= start {
		return
	}

	addr := start

	align2M := alignUp(addr, size2M)
	for addr < end && addr < align2M {
		emit(addr, mm.Order4K)
		addr += size4K
	}
	if addr >= end {
		return
	}

	align1G := alignUp(addr, size1G)
	for addr+size2M <= end && addr < align1G {
		emit(addr, mm.Order2M)
		addr += size2M
	}
	if addr >= end {
		return
	}

	for addr+size1G <= end {
		emit(addr, mm.Order1G)
		addr += size1G
	}

	for addr+size2M <= end {
		emit(addr, mm.Order2M)
		addr += size2M
	}

	for addr+size4K <= end {
		emit(addr, mm.Order4K)
		addr += size4K
	}
}
