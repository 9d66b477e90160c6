// Package ioapic programs I/O APIC redirection entries, translating the
// ISA IRQ overrides acpi.Discover (or mptables.Discover) found into a GSI,
// destination APIC id and vector, per spec.md §4.5: "for every (source
// IRQ, bus) pair, translate through the ISA overrides to a global system
// interrupt and a destination IOAPIC/pin. Write the redirection entry with
// polarity, trigger mode, delivery mode, destination APIC id, and vector."
//
// original_source's arch/x86/ioapic.c only keeps the bus/override
// bookkeeping that package acpi now owns directly as
// acpi.Topology.Buses; the IOAPIC itself has no dedicated original_source
// driver file, so the MMIO register layout below (IOREGSEL/IOWIN indirect
// access, the 64-bit redirection table entry format) is grounded on the
// public Intel I/O APIC specification instead, the same way acpi's
// x2APIC/SAPIC MADT entry types were.
package ioapic

import (
	"ktf/acpi"
	"ktf/gate"
	"ktf/kernel"
	"ktf/mm"
	"ktf/mm/vmm"
)

const (
	regIOAPICID  = 0x00
	regIOAPICVER = 0x01
	redirTableBase = 0x10 // entry n occupies regs 0x10+2n (low), 0x11+2n (high)
)

// DeliveryMode is the redirection entry's delivery-mode field (bits 8-10).
type DeliveryMode uint8

const (
	DeliveryFixed   DeliveryMode = 0x0
	DeliveryLowPrio DeliveryMode = 0x1
	DeliverySMI     DeliveryMode = 0x2
	DeliveryNMI     DeliveryMode = 0x4
	DeliveryInit    DeliveryMode = 0x5
	DeliveryExtINT  DeliveryMode = 0x7
)

// DestMode is the redirection entry's destination-mode field (bit 11).
type DestMode uint8

const (
	DestPhysical DestMode = 0
	DestLogical  DestMode = 1
)

// Entry is a decoded 64-bit I/O APIC redirection table entry.
type Entry struct {
	Vector      uint8
	Delivery    DeliveryMode
	DestMode    DestMode
	Polarity    acpi.Polarity
	Trigger     acpi.TriggerMode
	Masked      bool
	Destination uint8
}

const (
	entryPolarityBit = 1 << 13
	entryTriggerBit  = 1 << 15
	entryMaskBit     = 1 << 16
)

func (e Entry) encode() (low, high uint32) {
	low = uint32(e.Vector) | uint32(e.Delivery)<<8 | uint32(e.DestMode)<<11
	if e.Polarity == acpi.PolarityActiveLow {
		low |= entryPolarityBit
	}
	if e.Trigger == acpi.TriggerLevel {
		low |= entryTriggerBit
	}
	if e.Masked {
		low |= entryMaskBit
	}
	high = uint32(e.Destination) << 24
	return low, high
}

func decodeEntry(low, high uint32) Entry {
	e := Entry{
		Vector:      uint8(low & 0xff),
		Delivery:    DeliveryMode((low >> 8) & 0x7),
		DestMode:    DestMode((low >> 11) & 0x1),
		Masked:      low&entryMaskBit != 0,
		Destination: uint8(high >> 24),
	}
	if low&entryPolarityBit != 0 {
		e.Polarity = acpi.PolarityActiveLow
	} else {
		e.Polarity = acpi.PolarityActiveHigh
	}
	if low&entryTriggerBit != 0 {
		e.Trigger = acpi.TriggerLevel
	} else {
		e.Trigger = acpi.TriggerEdge
	}
	return e
}

// IOAPIC is one physical I/O APIC, addressed through its identity-mapped
// MMIO window (IOREGSEL at offset 0x00, IOWIN at offset 0x10).
type IOAPIC struct {
	base    uintptr
	GSIBase uint32
}

var (
	regSelWriteFn = func(base uintptr, reg uint8) { *(*uint32)(volatilePtr(base)) = uint32(reg) }
	winReadFn     = func(base uintptr) uint32 { return *(*uint32)(volatilePtr(base + 0x10)) }
	winWriteFn    = func(base uintptr, val uint32) { *(*uint32)(volatilePtr(base + 0x10)) = val }
)

func (io *IOAPIC) readReg(reg uint8) uint32 {
	regSelWriteFn(io.base, reg)
	return winReadFn(io.base)
}

func (io *IOAPIC) writeReg(reg uint8, val uint32) {
	regSelWriteFn(io.base, reg)
	winWriteFn(io.base, val)
}

// MaxRedirEntry returns the index of the highest redirection entry this
// IOAPIC implements (IOAPICVER bits 16-23).
func (io *IOAPIC) MaxRedirEntry() uint8 {
	return uint8(io.readReg(regIOAPICVER) >> 16)
}

// RedirectionEntry reads back redirection table entry pin.
func (io *IOAPIC) RedirectionEntry(pin uint8) Entry {
	low := io.readReg(redirTableBase + 2*pin)
	high := io.readReg(redirTableBase + 2*pin + 1)
	return decodeEntry(low, high)
}

// SetRedirectionEntry programs redirection table entry pin. The high dword
// (carrying the destination) is written first so a partially-programmed
// low dword never briefly unmasks delivery to the wrong destination.
func (io *IOAPIC) SetRedirectionEntry(pin uint8, e Entry) {
	low, high := e.encode()
	io.writeReg(redirTableBase+2*pin+1, high)
	io.writeReg(redirTableBase+2*pin, low)
}

// New identity-maps the given IOAPIC's MMIO page and returns a handle to it.
func New(info acpi.IOAPICInfo) (*IOAPIC, *kernel.Error) {
	pa := uintptr(info.Address)
	if err := vmm.VMapIdent4K(pa, mm.FrameFromAddress(pa), vmm.FlagPresent|vmm.FlagRW|vmm.FlagCacheDisable); err != nil {
		return nil, err
	}
	return &IOAPIC{base: pa, GSIBase: info.GSIBase}, nil
}

// RouteOverrides programs every IRQ override recorded against topo's buses
// onto whichever of ioapics owns the override's destination GSI, using
// edge/active-high fixed delivery to the BSP unless the override says
// otherwise. Vectors follow the legacy remap convention: GSI + FirstIRQVector.
func RouteOverrides(ioapics []*IOAPIC, topo *acpi.Topology, bspAPICID uint8) {
	for _, bus := range topo.Buses {
		for _, ov := range bus.Overrides {
			target := findIOAPIC(ioapics, ov.DestGSI)
			if target == nil {
				continue
			}
			pin := uint8(ov.DestGSI - target.GSIBase)
			target.SetRedirectionEntry(pin, Entry{
				Vector:      uint8(ov.DestGSI) + uint8(gate.FirstIRQVector),
				Delivery:    DeliveryFixed,
				DestMode:    DestPhysical,
				Polarity:    ov.Polarity,
				Trigger:     ov.Trigger,
				Destination: bspAPICID,
			})
		}
	}
}

// findIOAPIC returns the IOAPIC whose [GSIBase, GSIBase+MaxRedirEntry] range
// covers gsi, per each IOAPIC's own IOAPICVER entry-count field — a system
// can have several IOAPICs, each owning a disjoint GSI range.
func findIOAPIC(ioapics []*IOAPIC, gsi uint32) *IOAPIC {
	for _, io := range ioapics {
		if gsi < io.GSIBase {
			continue
		}
		if gsi-io.GSIBase <= uint32(io.MaxRedirEntry()) {
			return io
		}
	}
	return nil
}
