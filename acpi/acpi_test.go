package acpi

import (
	"bytes"
	"encoding/binary"
	"testing"
	"unsafe"

	"ktf/acpi/table"
	"ktf/kernel"
)

// noopScan replaces identityScanFn for every test here: the "physical
// addresses" used below are really just Go object addresses, already
// readable without any page-table work.
func noopScan(t *testing.T) func() {
	t.Helper()
	saved := identityScanFn
	identityScanFn = func(uintptr, uintptr) *kernel.Error { return nil }
	return func() { identityScanFn = saved }
}

func newRSDPRev1(valid bool) table.RSDPDescriptor {
	r := table.RSDPDescriptor{Signature: rsdpSignature, Revision: acpiRev1, RSDTAddr: 0xcafe0000}
	if valid {
		r.Checksum = checksumFor(unsafe.Pointer(&r), int(unsafe.Sizeof(r)))
	}
	return r
}

func checksumFor(ptr unsafe.Pointer, length int) uint8 {
	var sum uint8
	base := uintptr(ptr)
	for i := 0; i < length; i++ {
		sum += *(*uint8)(unsafe.Pointer(base + uintptr(i)))
	}
	return uint8(0) - sum
}

func TestValidateRSDPAtRev1Valid(t *testing.T) {
	defer noopScan(t)()
	r := newRSDPRev1(true)

	addr, useXSDT, ok := validateRSDPAt(uintptr(unsafe.Pointer(&r)))
	if !ok {
		t.Fatal("expected a valid rev1 RSDP to validate")
	}
	if useXSDT {
		t.Error("rev1 RSDP must not request XSDT")
	}
	if addr != 0xcafe0000 {
		t.Errorf("RSDT addr = 0x%x, want 0xcafe0000", addr)
	}
}

func TestValidateRSDPAtRev1BadChecksum(t *testing.T) {
	defer noopScan(t)()
	r := newRSDPRev1(false)

	if _, _, ok := validateRSDPAt(uintptr(unsafe.Pointer(&r))); ok {
		t.Fatal("expected an unchecksummed rev1 RSDP to be rejected")
	}
}

func TestValidateRSDPAtRev2UsesXSDT(t *testing.T) {
	defer noopScan(t)()
	ext := table.ExtRSDPDescriptor{
		RSDPDescriptor: table.RSDPDescriptor{Signature: rsdpSignature, Revision: acpiRev2Plus},
		Length:         uint32(unsafe.Sizeof(table.ExtRSDPDescriptor{})),
		XSDTAddr:       0xdeadbeef00,
	}
	ext.ExtendedChecksum = checksumFor(unsafe.Pointer(&ext), int(unsafe.Sizeof(ext)))

	addr, useXSDT, ok := validateRSDPAt(uintptr(unsafe.Pointer(&ext)))
	if !ok {
		t.Fatal("expected a valid rev2+ RSDP to validate")
	}
	if !useXSDT {
		t.Error("rev2+ RSDP must request XSDT")
	}
	if addr != 0xdeadbeef00 {
		t.Errorf("XSDT addr = 0x%x, want 0xdeadbeef00", addr)
	}
}

func TestLocateRSDPUsesHintWhenGiven(t *testing.T) {
	defer noopScan(t)()
	r := newRSDPRev1(true)

	addr, useXSDT, err := locateRSDP(uintptr(unsafe.Pointer(&r)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if useXSDT || addr != 0xcafe0000 {
		t.Fatalf("got (0x%x, %v), want (0xcafe0000, false)", addr, useXSDT)
	}
}

// buildRSDT packs an RSDT header plus n 4-byte table pointers into a byte
// slice and returns it alongside the expected pointer values.
func buildRSDT(ptrs []uint32) []byte {
	hdr := table.SDTHeader{Signature: [4]byte{'R', 'S', 'D', 'T'}}
	hdr.Length = uint32(unsafe.Sizeof(hdr)) + uint32(len(ptrs))*4

	buf := new(bytes.Buffer)
	binary.Write(buf, binary.LittleEndian, hdr)
	for _, p := range ptrs {
		binary.Write(buf, binary.LittleEndian, p)
	}

	raw := buf.Bytes()
	sum := checksumFor(unsafe.Pointer(&raw[0]), len(raw))
	raw[9] = sum // Checksum is the 10th byte of SDTHeader (sig[4]+len(4)+rev(1)+checksum)
	return raw
}

func TestTableDirectoryRSDT32Bit(t *testing.T) {
	raw := buildRSDT([]uint32{0x1000, 0x2000, 0x3000})
	header := (*table.SDTHeader)(unsafe.Pointer(&raw[0]))

	got, err := tableDirectory(uintptr(unsafe.Pointer(&raw[0])), header, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []uintptr{0x1000, 0x2000, 0x3000}
	if len(got) != len(want) {
		t.Fatalf("got %d entries, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("entry %d = 0x%x, want 0x%x", i, got[i], want[i])
		}
	}
}

func TestMapTableDetectsChecksumMismatch(t *testing.T) {
	defer noopScan(t)()
	raw := buildRSDT([]uint32{0x1000})
	raw[9] ^= 0xff // corrupt the checksum

	if _, err := mapTable(uintptr(unsafe.Pointer(&raw[0])), uintptr(len(raw))); err != errTableChecksumMismatch {
		t.Fatalf("expected errTableChecksumMismatch, got %v", err)
	}
}

func TestApplyFADTLegacyDevicesSynthesizesISABus(t *testing.T) {
	topo := &Topology{Buses: make(map[string]*Bus)}
	fadt := &table.FADT{BootArchitectureFlags: table.BootArchLegacyDevices}

	applyFADT(topo, fadt)

	if !topo.LegacyDevices {
		t.Error("expected LegacyDevices to be true")
	}
	if _, ok := topo.Buses[isaBusName]; !ok {
		t.Error("expected an implicit ISA bus to be synthesized")
	}
}

func TestApplyFADTVGANotPresent(t *testing.T) {
	topo := &Topology{Buses: make(map[string]*Bus)}
	fadt := &table.FADT{BootArchitectureFlags: table.BootArchVGANotPresent}

	applyFADT(topo, fadt)

	if topo.VGAPresent {
		t.Error("expected VGAPresent to be false when the FADT says VGA is absent")
	}
}
