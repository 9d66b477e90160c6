package mptables

import (
	"io"
	"unsafe"

	"ktf/acpi"
	"ktf/kernel"
	"ktf/kfmt"
	"ktf/mm"
	"ktf/mm/vmm"
)

const (
	// ebdaSegmentPtr is the BDA entry holding the EBDA segment, same field
	// acpi.locateRSDP reads (original_source/include/mm/regions.h's
	// EBDA_ADDR_ENTRY); mptables scans it independently since it may run
	// without ACPI ever having mapped it.
	ebdaSegmentPtr uintptr = 0x40e
	ebdaScanLength uintptr = 1024

	// baseMemSizePtr is the BDA word holding conventional memory size in
	// KiB. original_source's get_memory_range_end(KB(512)) walks the
	// multiboot memory map for the same number; that map isn't available
	// this early, so the well-known BDA field stands in for it (same
	// value on every PC-compatible BIOS).
	baseMemSizePtr uintptr = 0x413

	// biosROMStart/biosROMStop bound the last-resort scan window, per
	// regions.h's BIOS_ROM_ADDR_START (distinct from ACPI's
	// BIOS_ACPI_ROM_START: the MP spec and ACPI searches overlap but
	// don't coincide).
	biosROMStart uintptr = 0xf0000
	biosROMStop  uintptr = 0x100000

	mpfAlignment uintptr = 16
)

var (
	errMissingMPF     = &kernel.Error{Module: "mptables", Message: "no MP Floating Pointer Structure found"}
	errBadMPC         = &kernel.Error{Module: "mptables", Message: "MP Configuration Table missing or fails checksum"}
	errUnknownMPCType = &kernel.Error{Module: "mptables", Message: "unknown MP Configuration Table entry type"}
)

// identityScanFn maps [lo, hi) into the identity window page by page;
// mockable in tests the same way acpi's identityScanFn is.
var identityScanFn = func(lo, hi uintptr) *kernel.Error {
	for pa := lo & mm.PageMask; pa < hi; pa += mm.PageSize {
		if err := vmm.VMapIdent4K(pa, mm.FrameFromAddress(pa), vmm.FlagPresent); err != nil {
			return err
		}
	}
	return nil
}

func checksumValid(ptr uintptr, length uint32) bool {
	var sum uint8
	for i := uint32(0); i < length; i++ {
		sum += *(*uint8)(unsafe.Pointer(ptr + uintptr(i)))
	}
	return sum == 0
}

func validateMPF(ptr uintptr) bool {
	mpf := (*MPFloatingPointer)(unsafe.Pointer(ptr))
	if mpf.Signature != mpfSignature {
		return false
	}
	if mpf.Length != 1 {
		return false
	}
	if mpf.SpecRev < 1 || mpf.SpecRev > 4 {
		return false
	}
	return checksumValid(ptr, uint32(mpf.Length)*16)
}

// scanForMPF walks [lo, hi) in 16-byte strides for a valid MP Floating
// Pointer Structure.
func scanForMPF(lo, hi uintptr) (uintptr, bool) {
	if err := identityScanFn(lo, hi); err != nil {
		return 0, false
	}
	for ptr := lo &^ (mpfAlignment - 1); ptr < hi; ptr += mpfAlignment {
		if validateMPF(ptr) {
			return ptr, true
		}
	}
	return 0, false
}

func readEBDABase() (uintptr, *kernel.Error) {
	if err := identityScanFn(ebdaSegmentPtr, ebdaSegmentPtr+2); err != nil {
		return 0, err
	}
	seg := *(*uint16)(unsafe.Pointer(ebdaSegmentPtr))
	return uintptr(seg) << 4, nil
}

func readBaseMemTop() (uintptr, *kernel.Error) {
	if err := identityScanFn(baseMemSizePtr, baseMemSizePtr+2); err != nil {
		return 0, err
	}
	kb := *(*uint16)(unsafe.Pointer(baseMemSizePtr))
	return uintptr(kb) * 1024, nil
}

// locateMPF finds the MP Floating Pointer Structure, trying the EBDA, then
// the last 1 KiB below the top of base (conventional) memory, then the
// BIOS ROM window, mirroring original_source/smp/mptables.c's get_mpf_addr.
func locateMPF() (uintptr, *kernel.Error) {
	if ebda, err := readEBDABase(); err == nil {
		if addr, ok := scanForMPF(ebda, ebda+ebdaScanLength); ok {
			return addr, nil
		}
	}

	if top, err := readBaseMemTop(); err == nil && top >= 1024 {
		if addr, ok := scanForMPF(top-1024, top); ok {
			return addr, nil
		}
	}

	if addr, ok := scanForMPF(biosROMStart, biosROMStop); ok {
		return addr, nil
	}

	return 0, errMissingMPF
}

func validateMPC(ptr uintptr) bool {
	hdr := (*MPCHeader)(unsafe.Pointer(ptr))
	if hdr.Signature != mpcSignature {
		return false
	}
	if hdr.SpecRev < 1 || hdr.SpecRev > 4 {
		return false
	}
	return checksumValid(ptr, uint32(hdr.Length))
}

func decodeMPFlags(flags uint16) (acpi.Polarity, acpi.TriggerMode) {
	pol := acpi.PolarityBusDefault
	if flags&0x1 != 0 {
		pol = acpi.PolarityActiveHigh
	}
	trig := acpi.TriggerBusDefault
	if flags&0x2 != 0 {
		trig = acpi.TriggerEdge
	}
	return pol, trig
}

func isaBus(topo *acpi.Topology) *acpi.Bus {
	b, ok := topo.Buses["ISA"]
	if !ok {
		b = &acpi.Bus{Name: "ISA"}
		topo.Buses["ISA"] = b
	}
	return b
}

// processMPC walks the MP Configuration Table's entry stream, building an
// acpi.Topology identical in shape to the one ACPI discovery produces so
// downstream (apic/ioapic/smp) code doesn't need to care which path ran.
func processMPC(w io.Writer, hdr *MPCHeader) (*acpi.Topology, *kernel.Error) {
	topo := &acpi.Topology{
		LocalAPICAddress: uint64(hdr.LAPICBase),
		Buses:            make(map[string]*acpi.Bus),
	}
	kfmt.Fprintf(w, "MPTABLES: LAPIC Addr: 0x%x, Entries: %d\n", topo.LocalAPICAddress, hdr.EntryCount)

	cur := uintptr(unsafe.Pointer(hdr)) + unsafe.Sizeof(MPCHeader{})

	for i := uint16(0); i < hdr.EntryCount; i++ {
		typ := *(*MPCEntryType)(unsafe.Pointer(cur))

		switch typ {
		case MPCEntryProcessor:
			e := (*MPCProcessorEntry)(unsafe.Pointer(cur))
			kfmt.Fprintf(w, "MPTABLES: CPU: LAPIC ID=0x%x Enabled=%v BSP=%v\n", e.LAPICID, e.Enabled(), e.BSP())
			if e.Enabled() {
				topo.CPUs = append(topo.CPUs, acpi.LAPICInfo{
					CPUID:  uint32(e.LAPICID),
					APICID: uint32(e.LAPICID),
					BSP:    e.BSP(),
				})
			}
			cur += unsafe.Sizeof(MPCProcessorEntry{})

		case MPCEntryBus:
			e := (*MPCBusEntry)(unsafe.Pointer(cur))
			kfmt.Fprintf(w, "MPTABLES: BUS: ID=0x%x Type=%s\n", e.ID, string(e.TypeStr[:]))
			cur += unsafe.Sizeof(MPCBusEntry{})

		case MPCEntryIOAPIC:
			e := (*MPCIOAPICEntry)(unsafe.Pointer(cur))
			kfmt.Fprintf(w, "MPTABLES: IOAPIC: ID=0x%x Address=0x%x Enabled=%v\n", e.ID, e.Address, e.Enabled())
			if e.Enabled() {
				topo.IOAPICs = append(topo.IOAPICs, acpi.IOAPICInfo{ID: e.ID, Address: e.Address})
			}
			cur += unsafe.Sizeof(MPCIOAPICEntry{})

		case MPCEntryIOInterrupt:
			e := (*MPCIOIntEntry)(unsafe.Pointer(cur))
			pol, trig := decodeMPFlags(e.Flags)
			isaBus(topo).Overrides = append(isaBus(topo).Overrides, acpi.IRQOverride{
				Type:         acpi.IRQOverrideType(e.IntType),
				SourceIRQ:    e.SrcBusIRQ,
				DestGSI:      uint32(e.DstIOAPICIntIn),
				DestLAPICUID: uint32(e.DstIOAPICID),
				Polarity:     pol,
				Trigger:      trig,
			})
			cur += unsafe.Sizeof(MPCIOIntEntry{})

		case MPCEntryLocalInterrupt:
			e := (*MPCLocalIntEntry)(unsafe.Pointer(cur))
			pol, trig := decodeMPFlags(e.Flags)
			isaBus(topo).Overrides = append(isaBus(topo).Overrides, acpi.IRQOverride{
				Type:         acpi.IRQOverrideType(e.IntType),
				SourceIRQ:    e.SrcBusIRQ,
				DestLINT:     e.DstLAPICLINTn,
				DestLAPICUID: uint32(e.DstLAPICID),
				Polarity:     pol,
				Trigger:      trig,
			})
			cur += unsafe.Sizeof(MPCLocalIntEntry{})

		default:
			return nil, errUnknownMPCType
		}
	}

	return topo, nil
}

// Discover locates and parses the MP tables, returning the same Topology
// shape acpi.Discover produces. Callers invoke this only after acpi.Discover
// has failed to find an RSDP, per spec.md §4.4's fallback note.
func Discover(w io.Writer) (*acpi.Topology, *kernel.Error) {
	mpfAddr, err := locateMPF()
	if err != nil {
		return nil, err
	}

	mpf := (*MPFloatingPointer)(unsafe.Pointer(mpfAddr))
	kfmt.Fprintf(w, "MPTABLES: MPF at 0x%x, MPC base 0x%x\n", mpfAddr, mpf.MPCBase)

	if mpf.MPCType > 0 || mpf.MPCBase == 0 {
		return nil, errBadMPC
	}

	if err := identityScanFn(uintptr(mpf.MPCBase), uintptr(mpf.MPCBase)+unsafe.Sizeof(MPCHeader{})); err != nil {
		return nil, err
	}
	if !validateMPC(uintptr(mpf.MPCBase)) {
		return nil, errBadMPC
	}

	hdr := (*MPCHeader)(unsafe.Pointer(uintptr(mpf.MPCBase)))
	if err := identityScanFn(uintptr(mpf.MPCBase), uintptr(mpf.MPCBase)+uintptr(hdr.Length)); err != nil {
		return nil, err
	}

	return processMPC(w, hdr)
}
