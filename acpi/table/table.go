// Package table defines the on-disk ACPI structures this kernel parses:
// RSDP (both ACPI 1.0 and the 2.0+ extended form), the common SDT header
// every table shares, FADT, and the full MADT entry stream. Layouts are
// bit-exact per the ACPI specification; field names follow the teacher's
// acpi/table package where one exists and extend it for the entry types
// spec.md names but the teacher never decoded.
package table

// RSDPDescriptor is the ACPI 1.0 root system descriptor pointer.
type RSDPDescriptor struct {
	// Signature must read "RSD PTR " (the final byte is a space).
	Signature [8]byte
	Checksum  uint8
	OEMID     [6]byte
	// Revision is 0 for ACPI 1.0, 2 for ACPI 2.0 through 6.x.
	Revision uint8
	RSDTAddr uint32
}

// ExtRSDPDescriptor is the ACPI 2.0+ RSDP: the 1.0 fields plus a 64-bit
// XSDT pointer and its own checksum over the extended length.
type ExtRSDPDescriptor struct {
	RSDPDescriptor
	Length           uint32
	XSDTAddr         uint64
	ExtendedChecksum uint8
	reserved         [3]byte
}

// SDTHeader is the common header prefixing every ACPI table (RSDT, XSDT,
// FADT, MADT, ...).
type SDTHeader struct {
	Signature       [4]byte
	Length          uint32
	Revision        uint8
	Checksum        uint8
	OEMID           [6]byte
	OEMTableID      [8]byte
	OEMRevision     uint32
	CreatorID       uint32
	CreatorRevision uint32
}

// AddressSpace identifies where a GenericAddress's register range lives.
type AddressSpace uint8

const (
	AddressSpaceSysMemory AddressSpace = iota
	AddressSpaceSysIO
	AddressSpacePCI
	AddressSpaceEmbController
	AddressSpaceSMBus
	AddressSpaceFuncFixedHW AddressSpace = 0x7f
)

// GenericAddress locates a register range within an AddressSpace.
type GenericAddress struct {
	Space      AddressSpace
	BitWidth   uint8
	BitOffset  uint8
	AccessSize uint8
	Address    uint64
}

// FADT64 holds the 64-bit pointer/block extensions ACPI 2.0+ adds to the
// FADT alongside the original 32-bit fields.
type FADT64 struct {
	FirmwareControl  uint64
	Dsdt             uint64
	PM1aEventBlock   GenericAddress
	PM1bEventBlock   GenericAddress
	PM1aControlBlock GenericAddress
	PM1bControlBlock GenericAddress
	PM2ControlBlock  GenericAddress
	PMTimerBlock     GenericAddress
	GPE0Block        GenericAddress
	GPE1Block        GenericAddress
}

// FADT (Fixed ACPI Description Table) Flags field bits. Legacy-device
// presence is not among them: it comes from BootArchitectureFlags below.
const (
	FADTFlagWBInvd          uint32 = 1 << 0
	FADTFlagProcC1          uint32 = 1 << 1
	FADTFlagPwrButton       uint32 = 1 << 4
	FADTFlagSleepButton     uint32 = 1 << 5
	FADTFlagTmrValExt       uint32 = 1 << 8
	FADTFlagRTCS4           uint32 = 1 << 19
)

// BootArchitectureFlags bits, ACPI 5.0+ FADT.
const (
	BootArchLegacyDevices uint16 = 1 << 0 // legacy (ISA) devices present
	BootArchNo8042        uint16 = 1 << 1
	BootArchVGANotPresent uint16 = 1 << 2
)

// FADT is the Fixed ACPI Description Table.
type FADT struct {
	SDTHeader

	FirmwareCtrl uint32
	Dsdt         uint32

	reserved uint8

	PreferredPowerManagementProfile uint8
	SCIInterrupt                    uint16
	SMICommandPort                  uint32
	AcpiEnable                      uint8
	AcpiDisable                     uint8
	S4BIOSReq                       uint8
	PSTATEControl                   uint8
	PM1aEventBlock                  uint32
	PM1bEventBlock                  uint32
	PM1aControlBlock                uint32
	PM1bControlBlock                uint32
	PM2ControlBlock                 uint32
	PMTimerBlock                    uint32
	GPE0Block                       uint32
	GPE1Block                       uint32
	PM1EventLength                  uint8
	PM1ControlLength                uint8
	PM2ControlLength                uint8
	PMTimerLength                   uint8
	GPE0Length                      uint8
	GPE1Length                      uint8
	GPE1Base                        uint8
	CStateControl                   uint8
	WorstC2Latency                  uint16
	WorstC3Latency                  uint16
	FlushSize                       uint16
	FlushStride                     uint16
	DutyOffset                      uint8
	DutyWidth                       uint8
	DayAlarm                        uint8
	MonthAlarm                      uint8
	Century                         uint8

	BootArchitectureFlags uint16

	reserved2 uint8
	Flags     uint32

	ResetReg GenericAddress

	ResetValue uint8
	reserved3  [3]uint8

	Ext FADT64
}

// MADT (Multiple APIC Description Table) header; a variable-length stream
// of MADTEntry records follows, starting right after Flags.
type MADT struct {
	SDTHeader

	LocalControllerAddress uint32
	Flags                  uint32
}

// MADTEntryType enumerates the MADT entry types spec.md §4.4 names. Values
// match the ACPI specification's MADT type byte; type 8 (Platform Interrupt
// Sources) is intentionally absent — spec.md never names it, so it falls
// through to the "unknown MADT entry type" fatal path like any other
// unrecognized type.
type MADTEntryType uint8

const (
	MADTEntryTypeLocalAPIC MADTEntryType = iota
	MADTEntryTypeIOAPIC
	MADTEntryTypeIntSrcOverride
	MADTEntryTypeNMISource
	MADTEntryTypeLocalAPICNMI
	MADTEntryTypeLocalAPICAddrOverride
	MADTEntryTypeIOSAPIC
	MADTEntryTypeLocalSAPIC
	_ // Platform Interrupt Sources (type 8) — not decoded, see above.
	MADTEntryTypeLocalX2APIC
	MADTEntryTypeLocalX2APICNMI
)

// MADTEntry is the type/length pair prefixing every MADT record; callers
// reinterpret the bytes following it based on Type.
type MADTEntry struct {
	Type   MADTEntryType
	Length uint8
}

// MADTEntryLocalAPIC describes one processor and its local interrupt
// controller (type 0).
type MADTEntryLocalAPIC struct {
	ProcessorID uint8
	APICID      uint8
	Flags       uint32
}

// LocalAPICEnabled is MADTEntryLocalAPIC.Flags bit 0: only enabled entries
// get a per-CPU block (spec.md §4.4 edge case).
const LocalAPICEnabled uint32 = 1 << 0

// MADTEntryIOAPIC describes an I/O APIC (type 1).
type MADTEntryIOAPIC struct {
	APICID           uint8
	reserved         uint8
	Address          uint32
	SysInterruptBase uint32
}

// MADTEntryInterruptSrcOverride remaps a legacy ISA IRQ to a global system
// interrupt with its own polarity/trigger mode (type 2).
type MADTEntryInterruptSrcOverride struct {
	BusSrc          uint8
	IRQSrc          uint8
	GlobalInterrupt uint32
	Flags           uint16
}

// MADTEntryNMISource configures a global NMI source (type 3).
type MADTEntryNMISource struct {
	Flags           uint16
	GlobalInterrupt uint32
}

// MADTEntryLocalAPICNMI wires a LINT pin to NMI delivery for one (or, if
// Processor == 0xff, every) local APIC (type 4).
type MADTEntryLocalAPICNMI struct {
	Processor uint8
	Flags     uint16
	LINT      uint8
}

// MADTEntryLocalAPICAddrOverride overrides the 32-bit local APIC address
// from the MADT header with a 64-bit one (type 5).
type MADTEntryLocalAPICAddrOverride struct {
	reserved        uint16
	Address         uint64
}

// MADTEntryIOSAPIC is the IA-64 I/O SAPIC variant of MADTEntryIOAPIC,
// carrying a 64-bit base address (type 6).
type MADTEntryIOSAPIC struct {
	ID               uint8
	reserved         uint8
	GSIBase          uint32
	Address          uint64
}

// MADTEntryLocalSAPIC is the IA-64 local SAPIC variant of
// MADTEntryLocalAPIC, with an extra EID byte and a NUL-terminated UID
// string trailer this kernel does not need to decode (type 7).
type MADTEntryLocalSAPIC struct {
	ProcessorID uint8
	ID          uint8
	EID         uint8
	reserved    [3]uint8
	Flags       uint32
	UIDValue    uint32
}

// MADTEntryLocalX2APIC is the x2APIC analogue of MADTEntryLocalAPIC, used
// once a processor's APIC id no longer fits in 8 bits (type 9).
type MADTEntryLocalX2APIC struct {
	reserved    uint16
	X2APICID    uint32
	Flags       uint32
	ACPIProcUID uint32
}

// MADTEntryLocalX2APICNMI is the x2APIC analogue of MADTEntryLocalAPICNMI
// (type 0xA).
type MADTEntryLocalX2APICNMI struct {
	Flags       uint16
	ACPIProcUID uint32
	LINT        uint8
	reserved    [3]uint8
}
