package acpi

import (
	"io"
	"unsafe"

	"ktf/acpi/table"
	"ktf/kernel"
	"ktf/kfmt"
)

// IRQOverrideType mirrors original_source's ACPI_MADT_IRQ_TYPE_* values.
type IRQOverrideType uint8

const (
	IRQOverrideInt IRQOverrideType = iota
	IRQOverrideNMI
	IRQOverrideSMI
	IRQOverrideExtINT
)

// Polarity decodes MPS INTI flags bits [1:0].
type Polarity uint8

const (
	PolarityBusDefault Polarity = iota
	PolarityActiveHigh
	polarityReserved
	PolarityActiveLow
)

// TriggerMode decodes MPS INTI flags bits [3:2].
type TriggerMode uint8

const (
	TriggerBusDefault TriggerMode = iota
	TriggerEdge
	triggerReserved
	TriggerLevel
)

func decodeMPSFlags(flags uint16) (Polarity, TriggerMode) {
	return Polarity(flags & 0x3), TriggerMode((flags >> 2) & 0x3)
}

// ioapicDestUnknown marks an override whose destination IOAPIC is not
// recorded in the MADT record, as original_source's IOAPIC_DEST_ID_UNKNOWN
// placeholder does. The value stays in place: ioapic.RouteOverrides
// (spec.md §4.5) finds the IOAPIC from the override's GSI when it routes
// and does not write the destination back.
const ioapicDestUnknown = 0xff

// IRQOverride is one entry in a Bus's override list, decoded from a MADT
// IRQ-source, NMI-source or LAPIC-NMI record.
type IRQOverride struct {
	Type         IRQOverrideType
	SourceIRQ    uint8
	DestGSI      uint32
	DestLINT     uint8
	DestLAPICUID uint32
	Polarity     Polarity
	Trigger      TriggerMode
}

// Bus is a named system bus (ISA, PCI) carrying a list of IRQ overrides.
type Bus struct {
	Name      string
	Overrides []IRQOverride
}

// IOAPICInfo is one physical IOAPIC as enumerated from MADT.
type IOAPICInfo struct {
	ID      uint8
	Address uint32
	GSIBase uint32
}

// LAPICInfo describes one enabled processor's local interrupt controller.
type LAPICInfo struct {
	CPUID  uint32
	APICID uint32
	BSP    bool
	X2APIC bool
}

// Topology is everything Discover learns from the MADT (plus the FADT
// fields that gate legacy driver init).
type Topology struct {
	LocalAPICAddress uint64
	CPUs             []LAPICInfo
	IOAPICs          []IOAPICInfo
	Buses            map[string]*Bus

	LegacyDevices bool
	I8042Present  bool
	VGAPresent    bool
}

const isaBusName = "ISA"

func (t *Topology) isaBus() *Bus {
	b, ok := t.Buses[isaBusName]
	if !ok {
		b = &Bus{Name: isaBusName}
		t.Buses[isaBusName] = b
	}
	return b
}

var errUnknownMADTEntry = &kernel.Error{Module: "acpi", Message: "unknown MADT entry type"}

// processMADT walks the MADT entry stream starting right after the fixed
// header, dispatching each record per spec.md §4.4. bspCPUID is the
// processor id of the CPU making the call (read from the LAPIC/x2APIC id
// register before ACPI discovery runs) and is used to flag the matching
// LAPIC entry as BSP, matching original_source's process_madt_entries.
func processMADT(w io.Writer, madt *table.MADT, bspCPUID uint32) (*Topology, *kernel.Error) {
	topo := &Topology{
		LocalAPICAddress: uint64(madt.LocalControllerAddress),
		Buses:            make(map[string]*Bus),
	}
	kfmt.Fprintf(w, "ACPI: [MADT] LAPIC Addr: 0x%x, Flags: 0x%x\n", topo.LocalAPICAddress, madt.Flags)

	base := uintptr(unsafe.Pointer(madt))
	end := base + uintptr(madt.Length)
	cur := base + unsafe.Sizeof(table.MADT{})

	for cur < end {
		entry := (*table.MADTEntry)(unsafe.Pointer(cur))
		data := cur + unsafe.Sizeof(table.MADTEntry{})

		switch entry.Type {
		case table.MADTEntryTypeLocalAPIC:
			e := (*table.MADTEntryLocalAPIC)(unsafe.Pointer(data))
			kfmt.Fprintf(w, "ACPI: [MADT] APIC Processor ID: %d, APIC ID: %d, Flags: 0x%x\n", e.ProcessorID, e.APICID, e.Flags)
			if e.Flags&table.LocalAPICEnabled != 0 {
				topo.CPUs = append(topo.CPUs, LAPICInfo{
					CPUID:  uint32(e.ProcessorID),
					APICID: uint32(e.APICID),
					BSP:    uint32(e.ProcessorID) == bspCPUID,
				})
			}

		case table.MADTEntryTypeIOAPIC:
			e := (*table.MADTEntryIOAPIC)(unsafe.Pointer(data))
			kfmt.Fprintf(w, "ACPI: [MADT] IOAPIC ID: %d, Base Address: 0x%x, GSI Base: 0x%x\n", e.APICID, e.Address, e.SysInterruptBase)
			topo.IOAPICs = append(topo.IOAPICs, IOAPICInfo{ID: e.APICID, Address: e.Address, GSIBase: e.SysInterruptBase})

		case table.MADTEntryTypeIntSrcOverride:
			e := (*table.MADTEntryInterruptSrcOverride)(unsafe.Pointer(data))
			pol, trig := decodeMPSFlags(e.Flags)
			topo.isaBus().Overrides = append(topo.isaBus().Overrides, IRQOverride{
				Type: IRQOverrideInt, SourceIRQ: e.IRQSrc, DestGSI: e.GlobalInterrupt,
				DestLAPICUID: ioapicDestUnknown, Polarity: pol, Trigger: trig,
			})

		case table.MADTEntryTypeNMISource:
			e := (*table.MADTEntryNMISource)(unsafe.Pointer(data))
			pol, trig := decodeMPSFlags(e.Flags)
			topo.isaBus().Overrides = append(topo.isaBus().Overrides, IRQOverride{
				Type: IRQOverrideNMI, DestGSI: e.GlobalInterrupt, Polarity: pol, Trigger: trig,
			})

		case table.MADTEntryTypeLocalAPICNMI:
			e := (*table.MADTEntryLocalAPICNMI)(unsafe.Pointer(data))
			pol, trig := decodeMPSFlags(e.Flags)
			topo.isaBus().Overrides = append(topo.isaBus().Overrides, IRQOverride{
				Type: IRQOverrideNMI, DestLAPICUID: uint32(e.Processor), DestLINT: e.LINT,
				Polarity: pol, Trigger: trig,
			})

		case table.MADTEntryTypeLocalAPICAddrOverride:
			e := (*table.MADTEntryLocalAPICAddrOverride)(unsafe.Pointer(data))
			topo.LocalAPICAddress = e.Address

		case table.MADTEntryTypeIOSAPIC:
			e := (*table.MADTEntryIOSAPIC)(unsafe.Pointer(data))
			topo.IOAPICs = append(topo.IOAPICs, IOAPICInfo{ID: e.ID, Address: uint32(e.Address), GSIBase: e.GSIBase})

		case table.MADTEntryTypeLocalSAPIC:
			e := (*table.MADTEntryLocalSAPIC)(unsafe.Pointer(data))
			if e.Flags&table.LocalAPICEnabled != 0 {
				topo.CPUs = append(topo.CPUs, LAPICInfo{
					CPUID:  uint32(e.ProcessorID),
					APICID: uint32(e.ID),
					BSP:    uint32(e.ProcessorID) == bspCPUID,
				})
			}

		case table.MADTEntryTypeLocalX2APIC:
			e := (*table.MADTEntryLocalX2APIC)(unsafe.Pointer(data))
			if e.Flags&table.LocalAPICEnabled != 0 {
				topo.CPUs = append(topo.CPUs, LAPICInfo{
					CPUID:  e.ACPIProcUID,
					APICID: e.X2APICID,
					BSP:    e.ACPIProcUID == bspCPUID,
					X2APIC: true,
				})
			}

		case table.MADTEntryTypeLocalX2APICNMI:
			e := (*table.MADTEntryLocalX2APICNMI)(unsafe.Pointer(data))
			pol, trig := decodeMPSFlags(e.Flags)
			topo.isaBus().Overrides = append(topo.isaBus().Overrides, IRQOverride{
				Type: IRQOverrideNMI, DestLAPICUID: e.ACPIProcUID, DestLINT: e.LINT,
				Polarity: pol, Trigger: trig,
			})

		default:
			return nil, errUnknownMADTEntry
		}

		cur += uintptr(entry.Length)
	}

	return topo, nil
}
