// Package mptables parses the Intel MultiProcessor Specification tables
// (MP Floating Pointer Structure + MP Configuration Table) as a fallback CPU
// topology source when no ACPI RSDP can be found, per spec.md §4.4's
// "MP-table fallback" note. Struct shapes are ported from
// original_source/include/smp/mptables.h; wire-format field names there
// follow the public Intel MP spec, cross-checked against
// _examples/bobuhiro11-gokvm/ebda/ebda.go (which authors these same tables
// for a KVM guest — this package reads them instead of writing them).
package mptables

// MPFloatingPointer is the 16-byte MP Floating Pointer Structure, always
// 16-byte aligned in memory.
type MPFloatingPointer struct {
	Signature [4]byte
	MPCBase   uint32
	Length    uint8
	SpecRev   uint8
	Checksum  uint8
	MPCType   uint8
	// features[0] packs rsvd0:6, imcrp:1 (bit 6) per the original bitfield.
	Features uint8
	_        [3]uint8
}

// IMCRMode reports whether the IMCR and PIC Mode are implemented (bit 6 of
// the feature byte), as opposed to Virtual Wire Mode.
func (m *MPFloatingPointer) IMCRMode() bool {
	return m.Features&(1<<6) != 0
}

var mpfSignature = [4]byte{'_', 'M', 'P', '_'}
var mpcSignature = [4]byte{'P', 'C', 'M', 'P'}

// MPCHeader is the fixed part of the MP Configuration Table; EntryCount
// variable-length entries immediately follow it.
type MPCHeader struct {
	Signature    [4]byte
	Length       uint16
	SpecRev      uint8
	Checksum     uint8
	OEMID        [8]byte
	ProductID    [12]byte
	OEMTablePtr  uint32
	OEMTableSize uint16
	EntryCount   uint16
	LAPICBase    uint32
	ExtLength    uint16
	ExtChecksum  uint8
	_            uint8
}

// MPCEntryType identifies which of the five fixed-size MP Configuration
// Table entry records follows.
type MPCEntryType uint8

const (
	MPCEntryProcessor MPCEntryType = iota
	MPCEntryBus
	MPCEntryIOAPIC
	MPCEntryIOInterrupt
	MPCEntryLocalInterrupt
)

// MPCProcessorEntry describes one logical CPU.
type MPCProcessorEntry struct {
	Type         MPCEntryType
	LAPICID      uint8
	LAPICVersion uint8
	CPUFlags     uint8
	CPUSignature uint32
	FeatureFlags uint32
	_            [2]uint32
}

const (
	mpcCPUEnabled = 1 << 0
	mpcCPUBSP     = 1 << 1
)

func (e *MPCProcessorEntry) Enabled() bool { return e.CPUFlags&mpcCPUEnabled != 0 }
func (e *MPCProcessorEntry) BSP() bool     { return e.CPUFlags&mpcCPUBSP != 0 }
func (e *MPCProcessorEntry) Stepping() uint8 { return uint8(e.CPUSignature & 0xf) }
func (e *MPCProcessorEntry) Model() uint8    { return uint8((e.CPUSignature >> 4) & 0xf) }
func (e *MPCProcessorEntry) Family() uint8   { return uint8((e.CPUSignature >> 8) & 0xf) }

// MPCBusEntry names one system bus (e.g. "ISA", "PCI").
type MPCBusEntry struct {
	Type    MPCEntryType
	ID      uint8
	TypeStr [6]byte
}

// MPCIOAPICEntry describes one I/O APIC.
type MPCIOAPICEntry struct {
	Type    MPCEntryType
	ID      uint8
	Version uint8
	Flags   uint8
	Address uint32
}

const mpcIOAPICUsable = 1 << 0

func (e *MPCIOAPICEntry) Enabled() bool { return e.Flags&mpcIOAPICUsable != 0 }

// MPCIntType enumerates the interrupt kinds MPCIOIntEntry/MPCLocalIntEntry
// carry, matching the original's MPC_IOINT_* constants.
type MPCIntType uint8

const (
	MPCIntINT MPCIntType = iota
	MPCIntNMI
	MPCIntSMI
	MPCIntExtINT
)

// MPCIOIntEntry assigns a bus IRQ line to an I/O APIC input pin.
type MPCIOIntEntry struct {
	Type           MPCEntryType
	IntType        MPCIntType
	Flags          uint16
	SrcBusID       uint8
	SrcBusIRQ      uint8
	DstIOAPICID    uint8
	DstIOAPICIntIn uint8
}

// MPCLocalIntEntry assigns a bus IRQ line to a local APIC LINT pin.
type MPCLocalIntEntry struct {
	Type          MPCEntryType
	IntType       MPCIntType
	Flags         uint16
	SrcBusID      uint8
	SrcBusIRQ     uint8
	DstLAPICID    uint8
	DstLAPICLINTn uint8
}
