package acpi

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"
	"unsafe"

	"ktf/acpi/table"
)

// appendEntry writes a MADTEntry header (type, length) followed by payload
// into buf.
func appendEntry(buf *bytes.Buffer, typ table.MADTEntryType, payload interface{}) {
	var p bytes.Buffer
	binary.Write(&p, binary.LittleEndian, payload)
	binary.Write(buf, binary.LittleEndian, table.MADTEntry{
		Type:   typ,
		Length: uint8(unsafe.Sizeof(table.MADTEntry{}) + uintptr(p.Len())),
	})
	buf.Write(p.Bytes())
}

func buildMADT(entries func(*bytes.Buffer)) []byte {
	var buf bytes.Buffer
	hdr := table.MADT{LocalControllerAddress: 0xfee00000, Flags: 1}
	binary.Write(&buf, binary.LittleEndian, hdr)
	entries(&buf)

	raw := buf.Bytes()
	madt := (*table.MADT)(unsafe.Pointer(&raw[0]))
	madt.Length = uint32(len(raw))
	return raw
}

func TestProcessMADTDecodesEnabledLocalAPICAsCPU(t *testing.T) {
	raw := buildMADT(func(buf *bytes.Buffer) {
		appendEntry(buf, table.MADTEntryTypeLocalAPIC, table.MADTEntryLocalAPIC{ProcessorID: 0, APICID: 0, Flags: table.LocalAPICEnabled})
		appendEntry(buf, table.MADTEntryTypeLocalAPIC, table.MADTEntryLocalAPIC{ProcessorID: 1, APICID: 1, Flags: 0})
	})
	madt := (*table.MADT)(unsafe.Pointer(&raw[0]))

	topo, err := processMADT(io.Discard, madt, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(topo.CPUs) != 1 {
		t.Fatalf("expected exactly one enabled CPU, got %d", len(topo.CPUs))
	}
	if !topo.CPUs[0].BSP {
		t.Error("expected processor 0 to be flagged BSP (matches bspCPUID)")
	}
}

func TestProcessMADTDecodesIOAPICAndOverride(t *testing.T) {
	raw := buildMADT(func(buf *bytes.Buffer) {
		appendEntry(buf, table.MADTEntryTypeIOAPIC, table.MADTEntryIOAPIC{APICID: 2, Address: 0xfec00000, SysInterruptBase: 0})
		appendEntry(buf, table.MADTEntryTypeIntSrcOverride, table.MADTEntryInterruptSrcOverride{BusSrc: 0, IRQSrc: 0, GlobalInterrupt: 2, Flags: 0})
	})
	madt := (*table.MADT)(unsafe.Pointer(&raw[0]))

	topo, err := processMADT(io.Discard, madt, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(topo.IOAPICs) != 1 || topo.IOAPICs[0].Address != 0xfec00000 {
		t.Fatalf("unexpected IOAPICs: %+v", topo.IOAPICs)
	}
	isa, ok := topo.Buses[isaBusName]
	if !ok || len(isa.Overrides) != 1 || isa.Overrides[0].DestGSI != 2 {
		t.Fatalf("expected one ISA override with GSI 2, got %+v", topo.Buses)
	}
}

func TestProcessMADTRejectsUnknownEntryType(t *testing.T) {
	raw := buildMADT(func(buf *bytes.Buffer) {
		appendEntry(buf, table.MADTEntryType(8), struct{ x uint32 }{})
	})
	madt := (*table.MADT)(unsafe.Pointer(&raw[0]))

	if _, err := processMADT(io.Discard, madt, 0); err != errUnknownMADTEntry {
		t.Fatalf("expected errUnknownMADTEntry, got %v", err)
	}
}

func TestProcessMADTLocalAPICAddrOverrideWins(t *testing.T) {
	raw := buildMADT(func(buf *bytes.Buffer) {
		appendEntry(buf, table.MADTEntryTypeLocalAPICAddrOverride, table.MADTEntryLocalAPICAddrOverride{Address: 0xfee01000})
	})
	madt := (*table.MADT)(unsafe.Pointer(&raw[0]))

	topo, err := processMADT(io.Discard, madt, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if topo.LocalAPICAddress != 0xfee01000 {
		t.Errorf("LocalAPICAddress = 0x%x, want 0xfee01000", topo.LocalAPICAddress)
	}
}
