package regions

import (
	"testing"

	"ktf/kernel"
	"ktf/mm"
	"ktf/mm/vmm"
	"ktf/multiboot"
)

func TestIsInitSection(t *testing.T) {
	for _, tc := range []struct {
		name string
		want bool
	}{
		{".text.init", true},
		{".data.init", true},
		{".bss.init", true},
		{".text", false},
		{".rodata", false},
	} {
		if got := isInitSection(tc.name); got != tc.want {
			t.Errorf("isInitSection(%q) = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestProtForSectionWritableVsReadOnly(t *testing.T) {
	rw := protForSection(multiboot.ElfSectionAllocated | multiboot.ElfSectionWritable)
	if rw&vmm.FlagRW == 0 {
		t.Error("writable section should carry FlagRW")
	}

	ro := protForSection(multiboot.ElfSectionAllocated)
	if ro&vmm.FlagRW != 0 {
		t.Error("non-writable section must not carry FlagRW")
	}
	if ro&vmm.FlagNX == 0 {
		t.Error("non-executable section should carry FlagNX")
	}
}

func TestWindowForSection(t *testing.T) {
	for _, tc := range []struct {
		name string
		want vmm.Window
	}{
		{".text.user", vmm.WindowUser},
		{".data.rmode", vmm.WindowIdentity},
		{".text.init", vmm.WindowIdentity},
		{".text", vmm.WindowKernel},
		{".bss", vmm.WindowKernel},
	} {
		if got := windowForSection(tc.name); got != tc.want {
			t.Errorf("windowForSection(%q) = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestMapAllInstallsEveryRegionAsPageGranularMappings(t *testing.T) {
	prevTable := Table
	prevMapFn := mapFn
	defer func() { Table = prevTable; mapFn = prevMapFn }()

	const base = 0xffffffff80000000
	Table = []Region{
		{Name: ".text", Window: vmm.WindowKernel, Start: base, End: base + 2*mm.PageSize, Prot: vmm.FlagPresent},
	}

	var mapped []uintptr
	mapFn = func(win vmm.Window, offsetInWindow uintptr, mfn mm.Frame, prot vmm.PageTableEntryFlag) *kernel.Error {
		mapped = append(mapped, offsetInWindow)
		return nil
	}

	if err := MapAll(); err != nil {
		t.Fatalf("MapAll: %v", err)
	}
	if len(mapped) != 2 {
		t.Fatalf("mapped %d pages, want 2", len(mapped))
	}
	if mapped[0] != 0 || mapped[1] != mm.PageSize {
		t.Errorf("mapped offsets = %v, want [0, PageSize]", mapped)
	}
}
