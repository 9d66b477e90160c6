package acpi

import (
	"unsafe"

	"ktf/kernel"
	"ktf/acpi/table"
	"ktf/mm"
	"ktf/mm/vmm"
)

const (
	// ebdaSegmentPtr is the BIOS data area entry holding the EBDA's
	// segment (physical address = segment << 4), per
	// original_source/include/mm/regions.h's EBDA_ADDR_ENTRY.
	ebdaSegmentPtr uintptr = 0x40e
	ebdaScanLength uintptr = 1024

	// biosROMStart/biosROMStop bound the BIOS ROM window scanned when the
	// EBDA doesn't hold the RSDP, per the same header's
	// BIOS_ACPI_ROM_START/STOP.
	biosROMStart uintptr = 0xe0000
	biosROMStop  uintptr = 0x100000

	rsdpAlignment uintptr = 16
	acpiRev1      uint8   = 0
	acpiRev2Plus  uint8   = 2
)

var rsdpSignature = [8]byte{'R', 'S', 'D', ' ', 'P', 'T', 'R', ' '}

var errMissingRSDP = &kernel.Error{Module: "acpi", Message: "could not locate ACPI RSDP"}

// identityScanFn maps [lo, hi) 4 KiB-page by 4 KiB-page into the identity
// window so the byte scan below can dereference raw physical addresses;
// swapped out in tests.
var identityScanFn = func(lo, hi uintptr) *kernel.Error {
	for pa := lo & mm.PageMask; pa < hi; pa += mm.PageSize {
		if err := vmm.VMapIdent4K(pa, mm.FrameFromAddress(pa), vmm.FlagPresent); err != nil {
			return err
		}
	}
	return nil
}

// locateRSDP finds the root system descriptor pointer and returns the
// physical address of its RSDT (useXSDT=false) or XSDT (useXSDT=true). If
// hint is non-zero (the multiboot loader already handed one over) it is
// validated and used directly instead of scanning, per spec.md §4.2/§4.4.
func locateRSDP(hint uintptr) (sdtAddr uintptr, useXSDT bool, err *kernel.Error) {
	if hint != 0 {
		if err := identityScanFn(hint, hint+uintptr(unsafe.Sizeof(table.ExtRSDPDescriptor{}))); err != nil {
			return 0, false, err
		}
		if addr, xsdt, ok := readRSDPAt(hint); ok {
			return addr, xsdt, nil
		}
	}

	ebdaBase, e := readEBDABase()
	if e == nil {
		if addr, xsdt, ok := scanForRSDP(ebdaBase, ebdaBase+ebdaScanLength); ok {
			return addr, xsdt, nil
		}
	}

	if addr, xsdt, ok := scanForRSDP(biosROMStart, biosROMStop); ok {
		return addr, xsdt, nil
	}

	return 0, false, errMissingRSDP
}

func readEBDABase() (uintptr, *kernel.Error) {
	if err := identityScanFn(ebdaSegmentPtr, ebdaSegmentPtr+2); err != nil {
		return 0, err
	}
	segment := *(*uint16)(unsafe.Pointer(ebdaSegmentPtr))
	return uintptr(segment) << 4, nil
}

// scanForRSDP walks [lo, hi) in 16-byte strides looking for the RSDP
// signature, validating checksum on a hit.
func scanForRSDP(lo, hi uintptr) (addr uintptr, useXSDT bool, ok bool) {
	if err := identityScanFn(lo, hi); err != nil {
		return 0, false, false
	}

	for ptr := lo &^ (rsdpAlignment - 1); ptr < hi; ptr += rsdpAlignment {
		rsdp := (*table.RSDPDescriptor)(unsafe.Pointer(ptr))
		if rsdp.Signature != rsdpSignature {
			continue
		}
		if addr, xsdt, valid := validateRSDPAt(ptr); valid {
			return addr, xsdt, true
		}
	}
	return 0, false, false
}

func readRSDPAt(ptr uintptr) (addr uintptr, useXSDT bool, ok bool) {
	rsdp := (*table.RSDPDescriptor)(unsafe.Pointer(ptr))
	if rsdp.Signature != rsdpSignature {
		return 0, false, false
	}
	return validateRSDPAt(ptr)
}

func validateRSDPAt(ptr uintptr) (addr uintptr, useXSDT bool, ok bool) {
	rsdp := (*table.RSDPDescriptor)(unsafe.Pointer(ptr))

	if rsdp.Revision == acpiRev1 {
		if !checksumValid(ptr, uint32(unsafe.Sizeof(table.RSDPDescriptor{}))) {
			return 0, false, false
		}
		return uintptr(rsdp.RSDTAddr), false, true
	}

	ext := (*table.ExtRSDPDescriptor)(unsafe.Pointer(ptr))
	if !checksumValid(ptr, uint32(unsafe.Sizeof(table.ExtRSDPDescriptor{}))) {
		return 0, false, false
	}
	return uintptr(ext.XSDTAddr), true, true
}

// checksumValid sums length bytes starting at ptr; valid ACPI tables sum to
// zero mod 256.
func checksumValid(ptr uintptr, length uint32) bool {
	var sum uint8
	for i := uint32(0); i < length; i++ {
		sum += *(*uint8)(unsafe.Pointer(ptr + uintptr(i)))
	}
	return sum == 0
}
