// Package acpi walks the ACPI table directory (RSDT or XSDT, per spec.md
// §4.4) to enumerate CPUs, the local APIC address, I/O APICs and legacy IRQ
// overrides, falling back to the MP-table path (package mptables) when no
// RSDP can be found. Grounded on
// _examples/gopher-os-gopher-os/src/gopheros/device/acpi/acpi.go's
// map-then-walk structure, with wire-format struct shapes cross-checked
// against _examples/bobuhiro11-gokvm/acpi and semantics (FADT boot-flags,
// BSP detection via the caller-supplied APIC id) grounded on
// original_source/common/acpi.c.
package acpi

import (
	"io"
	"unsafe"

	"ktf/acpi/table"
	"ktf/kernel"
	"ktf/kfmt"
)

const (
	fadtSignature = "FACP"
	madtSignature = "APIC"
)

var errTableChecksumMismatch = &kernel.Error{Module: "acpi", Message: "detected checksum mismatch while parsing ACPI table"}

var sdtHeaderLen = unsafe.Sizeof(table.SDTHeader{})

// mapTable identity-maps enough pages at addr to read length bytes starting
// at its SDTHeader, then validates the checksum. Goes through
// identityScanFn (package-level, shared with locateRSDP) so tests can back
// "physical memory" with a plain Go byte slice instead of real
// identity-mapped pages.
func mapTable(addr uintptr, length uintptr) (*table.SDTHeader, *kernel.Error) {
	if err := identityScanFn(addr, addr+length); err != nil {
		return nil, err
	}
	header := (*table.SDTHeader)(unsafe.Pointer(addr))
	if !checksumValid(addr, header.Length) {
		return nil, errTableChecksumMismatch
	}
	return header, nil
}

// mapTableHeaderOnly maps just the fixed SDTHeader, reads its declared
// Length, then re-maps to cover the whole table — mirroring the teacher's
// two-stage mapACPITable (the length field itself isn't known until the
// header is already readable).
func mapTableHeaderOnly(addr uintptr) (*table.SDTHeader, *kernel.Error) {
	if err := identityScanFn(addr, addr+sdtHeaderLen); err != nil {
		return nil, err
	}
	header := (*table.SDTHeader)(unsafe.Pointer(addr))
	return mapTable(addr, uintptr(header.Length))
}

// Discover locates the ACPI tables and returns the decoded Topology.
// rsdpHint is the physical RSDP address the multiboot loader may have
// handed over (0 if unknown, triggering the EBDA/BIOS-ROM scan).
// bspCPUID is the calling CPU's own processor id, used to mark its LAPIC
// entry as BSP. w receives human-readable trace lines, same as the
// teacher's driver prints through its io.Writer.
func Discover(w io.Writer, rsdpHint uintptr, bspCPUID uint32) (*Topology, *kernel.Error) {
	sdtAddr, useXSDT, err := locateRSDP(rsdpHint)
	if err != nil {
		return nil, err
	}

	root, err := mapTableHeaderOnly(sdtAddr)
	if err != nil {
		return nil, err
	}

	entries, err := tableDirectory(sdtAddr, root, useXSDT)
	if err != nil {
		return nil, err
	}

	var (
		fadt *table.FADT
		madt *table.MADT
	)
	for _, addr := range entries {
		header, terr := mapTableHeaderOnly(addr)
		if terr == errTableChecksumMismatch {
			kfmt.Fprintf(w, "ACPI: table at 0x%x failed checksum, skipping\n", addr)
			continue
		}
		if terr != nil {
			return nil, terr
		}

		kfmt.Fprintf(w, "ACPI: %s at 0x%x length %d\n", string(header.Signature[:]), addr, header.Length)

		switch string(header.Signature[:]) {
		case fadtSignature:
			fadt = (*table.FADT)(unsafe.Pointer(header))
		case madtSignature:
			madt = (*table.MADT)(unsafe.Pointer(header))
		}
	}

	if madt == nil {
		return nil, errMissingMADT
	}

	topo, perr := processMADT(w, madt, bspCPUID)
	if perr != nil {
		return nil, perr
	}

	if fadt != nil {
		applyFADT(topo, fadt)
	}

	return topo, nil
}

var errMissingMADT = &kernel.Error{Module: "acpi", Message: "MADT table not present"}

func applyFADT(topo *Topology, fadt *table.FADT) {
	topo.LegacyDevices = fadt.BootArchitectureFlags&table.BootArchLegacyDevices != 0
	topo.I8042Present = fadt.BootArchitectureFlags&table.BootArchNo8042 == 0
	topo.VGAPresent = fadt.BootArchitectureFlags&table.BootArchVGANotPresent == 0

	if topo.LegacyDevices {
		topo.isaBus()
	}
}

// tableDirectory returns the physical addresses of every table the
// RSDT/XSDT root lists, decoding 4-byte (RSDT) or 8-byte (XSDT) pointers.
func tableDirectory(rootAddr uintptr, root *table.SDTHeader, useXSDT bool) ([]uintptr, *kernel.Error) {
	payloadLen := uintptr(root.Length) - sdtHeaderLen
	entriesStart := rootAddr + sdtHeaderLen

	if useXSDT {
		n := payloadLen / 8
		out := make([]uintptr, n)
		for i := uintptr(0); i < n; i++ {
			out[i] = uintptr(*(*uint64)(unsafe.Pointer(entriesStart + i*8)))
		}
		return out, nil
	}

	n := payloadLen / 4
	out := make([]uintptr, n)
	for i := uintptr(0); i < n; i++ {
		out[i] = uintptr(*(*uint32)(unsafe.Pointer(entriesStart + i*4)))
	}
	return out, nil
}
