package mptables

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"
	"unsafe"

	"ktf/kernel"
)

// noopScan replaces identityScanFn for every test here: "physical
// addresses" below are really just Go object addresses, already readable
// without any page-table work.
func noopScan(t *testing.T) func() {
	t.Helper()
	saved := identityScanFn
	identityScanFn = func(uintptr, uintptr) *kernel.Error { return nil }
	return func() { identityScanFn = saved }
}

func checksumFor(ptr unsafe.Pointer, length int) uint8 {
	var sum uint8
	base := uintptr(ptr)
	for i := 0; i < length; i++ {
		sum += *(*uint8)(unsafe.Pointer(base + uintptr(i)))
	}
	return uint8(0) - sum
}

func newValidMPF(mpcBase uint32) MPFloatingPointer {
	m := MPFloatingPointer{Signature: mpfSignature, MPCBase: mpcBase, Length: 1, SpecRev: 4}
	m.Checksum = checksumFor(unsafe.Pointer(&m), int(unsafe.Sizeof(m)))
	return m
}

func TestValidateMPFAcceptsWellFormedStructure(t *testing.T) {
	defer noopScan(t)()
	m := newValidMPF(0x1000)

	if !validateMPF(uintptr(unsafe.Pointer(&m))) {
		t.Fatal("expected a valid MPF to validate")
	}
}

func TestValidateMPFRejectsBadChecksum(t *testing.T) {
	defer noopScan(t)()
	m := newValidMPF(0x1000)
	m.Checksum ^= 0xff

	if validateMPF(uintptr(unsafe.Pointer(&m))) {
		t.Fatal("expected a corrupted MPF to be rejected")
	}
}

func TestValidateMPFRejectsWrongSignature(t *testing.T) {
	defer noopScan(t)()
	m := newValidMPF(0x1000)
	m.Signature = [4]byte{'X', 'X', 'X', 'X'}

	if validateMPF(uintptr(unsafe.Pointer(&m))) {
		t.Fatal("expected a bad signature to be rejected")
	}
}

// buildMPC packs an MPC header plus entries into a byte slice with a
// correct checksum, returning the raw bytes.
func buildMPC(entryCount uint16, lapicBase uint32, entries func(*bytes.Buffer)) []byte {
	hdr := MPCHeader{Signature: mpcSignature, SpecRev: 4, EntryCount: entryCount, LAPICBase: lapicBase}

	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, hdr)
	entries(&buf)

	raw := buf.Bytes()
	h := (*MPCHeader)(unsafe.Pointer(&raw[0]))
	h.Length = uint16(len(raw))
	h.Checksum = checksumFor(unsafe.Pointer(&raw[0]), len(raw))
	return raw
}

func TestProcessMPCDecodesEnabledProcessorAsCPU(t *testing.T) {
	raw := buildMPC(2, 0xfee00000, func(buf *bytes.Buffer) {
		binary.Write(buf, binary.LittleEndian, MPCProcessorEntry{Type: MPCEntryProcessor, LAPICID: 0, CPUFlags: mpcCPUEnabled | mpcCPUBSP})
		binary.Write(buf, binary.LittleEndian, MPCProcessorEntry{Type: MPCEntryProcessor, LAPICID: 1, CPUFlags: mpcCPUEnabled})
	})
	hdr := (*MPCHeader)(unsafe.Pointer(&raw[0]))

	topo, err := processMPC(io.Discard, hdr)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(topo.CPUs) != 2 {
		t.Fatalf("expected 2 CPUs, got %d", len(topo.CPUs))
	}
	if !topo.CPUs[0].BSP || topo.CPUs[1].BSP {
		t.Errorf("expected only CPU 0 to be BSP, got %+v", topo.CPUs)
	}
	if topo.LocalAPICAddress != 0xfee00000 {
		t.Errorf("LocalAPICAddress = 0x%x, want 0xfee00000", topo.LocalAPICAddress)
	}
}

func TestProcessMPCDecodesIOAPICAndIOInterrupt(t *testing.T) {
	raw := buildMPC(2, 0xfee00000, func(buf *bytes.Buffer) {
		binary.Write(buf, binary.LittleEndian, MPCIOAPICEntry{Type: MPCEntryIOAPIC, ID: 2, Address: 0xfec00000, Flags: mpcIOAPICUsable})
		binary.Write(buf, binary.LittleEndian, MPCIOIntEntry{Type: MPCEntryIOInterrupt, IntType: MPCIntINT, SrcBusIRQ: 0, DstIOAPICID: 2, DstIOAPICIntIn: 2})
	})
	hdr := (*MPCHeader)(unsafe.Pointer(&raw[0]))

	topo, err := processMPC(io.Discard, hdr)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(topo.IOAPICs) != 1 || topo.IOAPICs[0].Address != 0xfec00000 {
		t.Fatalf("unexpected IOAPICs: %+v", topo.IOAPICs)
	}
	isa, ok := topo.Buses["ISA"]
	if !ok || len(isa.Overrides) != 1 || isa.Overrides[0].DestGSI != 2 {
		t.Fatalf("expected one ISA override with GSI 2, got %+v", topo.Buses)
	}
}

func TestProcessMPCRejectsUnknownEntryType(t *testing.T) {
	raw := buildMPC(1, 0, func(buf *bytes.Buffer) {
		binary.Write(buf, binary.LittleEndian, struct {
			Type MPCEntryType
			pad  [19]byte
		}{Type: MPCEntryType(9)})
	})
	hdr := (*MPCHeader)(unsafe.Pointer(&raw[0]))

	if _, err := processMPC(io.Discard, hdr); err != errUnknownMPCType {
		t.Fatalf("expected errUnknownMPCType, got %v", err)
	}
}
