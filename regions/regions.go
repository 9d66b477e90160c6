// Package regions implements spec.md §2 stage 2 / SPEC_FULL.md §4.[NEW].8:
// a table mapping each linker-section range to an address-space window and
// default protection, populated at boot from the bootloader-supplied ELF
// section headers (multiboot.VisitElfSections) rather than from a custom
// linker script's __start_*/__end_* symbols, which the Go toolchain has no
// equivalent of. Grounded on original_source/include/mm/regions.h +
// mm/regions.c's addr_ranges table and _examples/gopher-os-gopher-os's
// VisitElfSections-driven section walk.
package regions

import (
	"strings"

	"ktf/kernel"
	"ktf/mm/vmm"
	"ktf/multiboot"
)

// Region is one named section plus the window it belongs in and its
// default page-table protection, matching spec.md §3 "Region".
type Region struct {
	Name   string
	Window vmm.Window
	Start  uintptr
	End    uintptr
	Prot   vmm.PageTableEntryFlag
}

// Table holds every region MapAll installed, populated by Discover.
var Table []Region

// initSectionPrefixes are the section-name prefixes Reclaim treats as
// reclaimable "*.init" regions, per spec.md §2 stage 2's boot-time cleanup.
var initSectionPrefixes = []string{".text.init", ".data.init", ".bss.init"}

func isInitSection(name string) bool {
	for _, p := range initSectionPrefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}

// protForSection derives a region's default protection from the ELF
// section flags the loader reported, matching original's L1_PROT /
// L1_PROT_RO distinction (writable sections get FlagRW, non-writable ones
// don't).
func protForSection(flags multiboot.ElfSectionFlag) vmm.PageTableEntryFlag {
	prot := vmm.FlagPresent
	if flags&multiboot.ElfSectionWritable != 0 {
		prot |= vmm.FlagRW
	}
	if flags&multiboot.ElfSectionExecutable == 0 {
		prot |= vmm.FlagNX
	}
	return prot
}

// windowForSection assigns the address-space window a section belongs in.
// original's addr_ranges table fixes this per-section at compile time via
// IDENT_RANGE/USER_RANGE/KERNEL_RANGE macros; here the same assignment is
// made from the section name, since user-mode sections are the only ones
// that need a non-kernel window and they're conventionally named with a
// ".user" suffix by the linker script the original build uses.
func windowForSection(name string) vmm.Window {
	switch {
	case strings.HasSuffix(name, ".user"):
		return vmm.WindowUser
	case strings.Contains(name, ".rmode"), strings.Contains(name, ".init"):
		return vmm.WindowIdentity
	default:
		return vmm.WindowKernel
	}
}

// Discover rebuilds Table from the bootloader's ELF-symbols tag. Must run
// after multiboot.SetInfoPtr and before MapAll.
func Discover() {
	Table = Table[:0]
	multiboot.VisitElfSections(func(name string, flags multiboot.ElfSectionFlag, address uintptr, size uint64) {
		if flags&multiboot.ElfSectionAllocated == 0 {
			return
		}
		Table = append(Table, Region{
			Name:   name,
			Window: windowForSection(name),
			Start:  address,
			End:    address + uintptr(size),
			Prot:   protForSection(flags),
		})
	})
}

// errRegionMapFailed wraps the first per-page mapping failure MapAll hits.
var errRegionMapFailed = &kernel.Error{Module: "regions", Message: "failed to map a region's page"}
