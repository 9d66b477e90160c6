// Package multiboot parses the Multiboot2 information block a compliant
// loader hands the kernel at entry (spec.md §4.[NEW]/"Boot"): a fixed
// 8-byte header followed by a sequence of 8-byte-aligned tags, each
// prefixed by its own {type, size} header, terminated by a zero-type
// "end" tag. Grounded on
// _examples/gopher-os-gopher-os/kernel/hal/multiboot/multiboot.go's
// tagHeader/findTagByType walk, extended with every tag type spec.md names:
// cmdline, boot-loader-name, module, basic-meminfo, bootdev, mmap,
// framebuffer, EFI32/64 pointers, ACPI OLD/NEW RSDP, load-base.
package multiboot

import (
	"unsafe"

	"ktf/kfmt"
)

type tagType uint32

const (
	tagEnd tagType = iota
	tagCmdLine
	tagBootLoaderName
	tagModule
	tagBasicMemInfo
	tagBIOSBootDevice
	tagMemoryMap
	tagVBEInfo
	tagFramebufferInfo
	tagELFSymbols
	tagAPMTable
	tagEFI32
	tagEFI64
	tagSMBIOS
	tagACPIOldRSDP
	tagACPINewRSDP
	tagNetwork
	tagEFIMemoryMap
	tagEFIBootServices
	tagEFI32ImageHandle
	tagEFI64ImageHandle
	tagLoadBaseAddr
)

func (t tagType) String() string {
	switch t {
	case tagEnd:
		return "end"
	case tagCmdLine:
		return "cmdline"
	case tagBootLoaderName:
		return "boot-loader-name"
	case tagModule:
		return "module"
	case tagBasicMemInfo:
		return "basic-meminfo"
	case tagBIOSBootDevice:
		return "bootdev"
	case tagMemoryMap:
		return "mmap"
	case tagVBEInfo:
		return "vbe-info"
	case tagFramebufferInfo:
		return "framebuffer"
	case tagELFSymbols:
		return "elf-symbols"
	case tagAPMTable:
		return "apm-table"
	case tagEFI32:
		return "efi32-system-table"
	case tagEFI64:
		return "efi64-system-table"
	case tagSMBIOS:
		return "smbios"
	case tagACPIOldRSDP:
		return "acpi-old-rsdp"
	case tagACPINewRSDP:
		return "acpi-new-rsdp"
	case tagNetwork:
		return "network"
	case tagEFIMemoryMap:
		return "efi-mmap"
	case tagEFIBootServices:
		return "efi-boot-services-not-terminated"
	case tagEFI32ImageHandle:
		return "efi32-image-handle"
	case tagEFI64ImageHandle:
		return "efi64-image-handle"
	case tagLoadBaseAddr:
		return "load-base-addr"
	default:
		return "unknown"
	}
}

// header is the 8-byte block preceding the tag stream.
type header struct {
	totalSize uint32
	reserved  uint32
}

// tagHeader precedes every tag; size covers the header itself.
type tagHeader struct {
	tagType tagType
	size    uint32
}

// mmapHeader precedes the memory-map tag's entry array.
type mmapHeader struct {
	entrySize    uint32
	entryVersion uint32
}

// elfSectionsHeader precedes the ELF-symbols tag's section-header array.
type elfSectionsHeader struct {
	numSections        uint16
	entSize            uint16
	strtabSectionIndex uint16
	reserved           uint16
}

// elfSection64 mirrors a 64-bit ELF section header, as embedded by the
// "elf-symbols" tag.
type elfSection64 struct {
	nameIndex   uint32
	sectionType uint32
	flags       uint64
	address     uint64
	offset      uint64
	size        uint64
	link        uint32
	info        uint32
	addrAlign   uint64
	entSize     uint64
}

// ElfSectionFlag is an OR-able flag on an ELF section header.
type ElfSectionFlag uint64

const (
	ElfSectionWritable   ElfSectionFlag = 1 << 0
	ElfSectionAllocated  ElfSectionFlag = 1 << 1
	ElfSectionExecutable ElfSectionFlag = 1 << 2
)

// FramebufferType mirrors the Multiboot2 framebuffer tag's type field.
// spec.md restricts the console driver to INDEXED or RGB; EGA text mode is
// decoded here (it's a legal wire value) but has no console.Sink consumer.
type FramebufferType uint8

const (
	FramebufferTypeIndexed FramebufferType = iota
	FramebufferTypeRGB
	FramebufferTypeEGA
)

// FramebufferInfo describes the framebuffer the bootloader initialized.
type FramebufferInfo struct {
	PhysAddr      uint64
	Pitch         uint32
	Width, Height uint32
	Bpp           uint8
	Type          FramebufferType
}

// MemoryEntryType is a Multiboot2 memory-map entry's type field.
type MemoryEntryType uint32

const (
	MemAvailable MemoryEntryType = iota + 1
	MemReserved
	MemACPIReclaimable
	MemNVS
	memUnknown
)

// MemoryMapEntry is one entry of the bootloader-supplied memory map.
type MemoryMapEntry struct {
	PhysAddress uint64
	Length      uint64
	Type        MemoryEntryType
	reserved    uint32
}

// Module describes one boot module the loader placed in memory alongside
// the kernel (e.g. a test payload), per the "module" tag.
type Module struct {
	Start, End uintptr
	CmdLine    string
}

// BasicMemInfo reports the legacy lower/upper memory sizes (KiB) from the
// "basic-meminfo" tag, used only as a sanity check — the real memory map
// comes from VisitMemRegions.
type BasicMemInfo struct {
	LowerKB uint32
	UpperKB uint32
}

// BIOSBootDevice reports the "bootdev" tag's raw BIOS boot-device encoding.
type BIOSBootDevice struct {
	BIOSDevice, Partition, SubPartition uint32
}

var infoData uintptr

// SetInfoPtr records the physical address of the Multiboot2 info block the
// loader passed in. Must be called before any other function here.
func SetInfoPtr(ptr uintptr) {
	infoData = ptr
}

// MemRegionVisitor is invoked once per memory-map entry by VisitMemRegions.
// Return false to stop the scan early.
type MemRegionVisitor func(entry *MemoryMapEntry) bool

// VisitMemRegions walks every entry of the "mmap" tag, if present.
func VisitMemRegions(visitor MemRegionVisitor) {
	curPtr, size := findTagByType(tagMemoryMap)
	if size == 0 {
		return
	}

	hdr := (*mmapHeader)(unsafe.Pointer(curPtr))
	endPtr := curPtr + uintptr(size)
	curPtr += 8

	for curPtr != endPtr {
		entry := (*MemoryMapEntry)(unsafe.Pointer(curPtr))
		if entry.Type == 0 || entry.Type >= memUnknown {
			entry.Type = MemReserved
		}
		if !visitor(entry) {
			return
		}
		curPtr += uintptr(hdr.entrySize)
	}
}

// ElfSectionVisitor is invoked once per loaded-kernel-image ELF section by
// VisitElfSections.
type ElfSectionVisitor func(name string, flags ElfSectionFlag, address uintptr, size uint64)

// VisitElfSections walks the "elf-symbols" tag's section-header array,
// invoking visitor for each non-empty section. This is how regions.Table
// learns each linker section's address range without a custom linker
// script exposing __start_*/__end_* symbols — the Go toolchain doesn't
// support that, so the substrate asks the bootloader for the section
// headers it already parsed out of the kernel ELF image instead. Grounded
// on _examples/gopher-os-gopher-os/src/gopheros/multiboot/multiboot.go's
// VisitElfSections.
func VisitElfSections(visitor ElfSectionVisitor) {
	curPtr, size := findTagByType(tagELFSymbols)
	if size == 0 {
		return
	}

	hdr := (*elfSectionsHeader)(unsafe.Pointer(curPtr))
	secPtr := curPtr + 8
	sizeofSection := unsafe.Sizeof(elfSection64{})
	strTableSection := (*elfSection64)(unsafe.Pointer(secPtr + uintptr(hdr.strtabSectionIndex)*sizeofSection))

	for i := uint16(0); i < hdr.numSections; i, secPtr = i+1, secPtr+sizeofSection {
		sec := (*elfSection64)(unsafe.Pointer(secPtr))
		if sec.size == 0 {
			continue
		}

		nameAddr := uintptr(strTableSection.address) + uintptr(sec.nameIndex)
		end := nameAddr
		for *(*byte)(unsafe.Pointer(end)) != 0 {
			end++
		}
		name := *(*string)(unsafe.Pointer(&struct {
			data uintptr
			len  int
		}{nameAddr, int(end - nameAddr)}))

		visitor(name, ElfSectionFlag(sec.flags), uintptr(sec.address), sec.size)
	}
}

// CommandLine returns the kernel command line string, or "" if the loader
// didn't supply one.
func CommandLine() string {
	return readCString(tagCmdLine)
}

// BootLoaderName returns the bootloader's self-reported name.
func BootLoaderName() string {
	return readCString(tagBootLoaderName)
}

func readCString(t tagType) string {
	ptr, size := findTagByType(t)
	if size == 0 {
		return ""
	}
	buf := (*(*[1 << 20]byte)(unsafe.Pointer(ptr)))[:size]
	for i, b := range buf {
		if b == 0 {
			return string(buf[:i])
		}
	}
	return string(buf)
}

// GetBasicMemInfo returns the legacy lower/upper memory sizes and true, or
// false if the tag is absent.
func GetBasicMemInfo() (BasicMemInfo, bool) {
	ptr, size := findTagByType(tagBasicMemInfo)
	if size == 0 {
		return BasicMemInfo{}, false
	}
	type raw struct{ lower, upper uint32 }
	r := (*raw)(unsafe.Pointer(ptr))
	return BasicMemInfo{LowerKB: r.lower, UpperKB: r.upper}, true
}

// GetBIOSBootDevice returns the "bootdev" tag's contents and true, or false
// if absent (common on UEFI/EFI boots).
func GetBIOSBootDevice() (BIOSBootDevice, bool) {
	ptr, size := findTagByType(tagBIOSBootDevice)
	if size == 0 {
		return BIOSBootDevice{}, false
	}
	d := (*BIOSBootDevice)(unsafe.Pointer(ptr))
	return *d, true
}

// GetModule returns the first "module" tag found and true, or false if none
// was supplied. Multiple modules are uncommon for this substrate (spec.md's
// test payload is a single blob); later module tags are not returned by
// this or any other function here.
func GetModule() (Module, bool) {
	ptr, size := findTagByType(tagModule)
	if size == 0 {
		return Module{}, false
	}
	type raw struct{ start, end uint32 }
	r := (*raw)(unsafe.Pointer(ptr))
	cmdline := ""
	cmdPtr := ptr + 8
	buf := (*(*[1 << 16]byte)(unsafe.Pointer(cmdPtr)))[: size-8 : size-8]
	for i, b := range buf {
		if b == 0 {
			cmdline = string(buf[:i])
			break
		}
	}
	return Module{Start: uintptr(r.start), End: uintptr(r.end), CmdLine: cmdline}, true
}

// GetFramebufferInfo returns the framebuffer the bootloader initialized, or
// nil if no framebuffer tag is present.
func GetFramebufferInfo() *FramebufferInfo {
	ptr, size := findTagByType(tagFramebufferInfo)
	if size == 0 {
		return nil
	}
	return (*FramebufferInfo)(unsafe.Pointer(ptr))
}

// ACPIOldRSDP returns the physical address of the embedded RSDP (ACPI 1.0)
// copy the loader attached, suitable for passing to acpi.Discover as its
// rsdpHint argument, and true if the tag is present.
func ACPIOldRSDP() (uintptr, bool) {
	ptr, size := findTagByType(tagACPIOldRSDP)
	if size == 0 {
		return 0, false
	}
	return ptr, true
}

// ACPINewRSDP returns the physical address of the embedded RSDP (ACPI 2.0+,
// XSDT-capable) copy the loader attached, and true if present. Callers
// should prefer this over ACPIOldRSDP when both tags exist.
func ACPINewRSDP() (uintptr, bool) {
	ptr, size := findTagByType(tagACPINewRSDP)
	if size == 0 {
		return 0, false
	}
	return ptr, true
}

// EFI32SystemTable returns the 32-bit EFI system table pointer, if present.
func EFI32SystemTable() (uint32, bool) {
	ptr, size := findTagByType(tagEFI32)
	if size == 0 {
		return 0, false
	}
	return *(*uint32)(unsafe.Pointer(ptr)), true
}

// EFI64SystemTable returns the 64-bit EFI system table pointer, if present.
func EFI64SystemTable() (uint64, bool) {
	ptr, size := findTagByType(tagEFI64)
	if size == 0 {
		return 0, false
	}
	return *(*uint64)(unsafe.Pointer(ptr)), true
}

// LoadBaseAddr returns the kernel image's load base physical address, if
// the loader reported one (non-ELF loaders only).
func LoadBaseAddr() (uint32, bool) {
	ptr, size := findTagByType(tagLoadBaseAddr)
	if size == 0 {
		return 0, false
	}
	return *(*uint32)(unsafe.Pointer(ptr)), true
}

// DiscoverAndLog walks every tag once, logging its type name and size
// through w; a tag type outside the Multiboot2 types listed above is
// logged as "unknown" and skipped, matching spec.md's "unknown tags are
// logged and skipped" boot-flow requirement.
func DiscoverAndLog(w kfmtWriter) {
	curPtr := infoData + 8
	end := infoData + uintptr((*header)(unsafe.Pointer(infoData)).totalSize)

	for curPtr < end {
		th := (*tagHeader)(unsafe.Pointer(curPtr))
		if th.tagType == tagEnd {
			break
		}
		kfmt.Fprintf(w, "multiboot: tag %s (type %d, size %d)\n", th.tagType.String(), th.tagType, th.size)
		curPtr += tagStride(th.size)
	}
}

type kfmtWriter = interface {
	Write(p []byte) (n int, err error)
}

// findTagByType scans the tag stream for the first tag of type t, returning
// a pointer to its contents (past the 8-byte tag header) and the content
// length. Returns (0, 0) if no such tag exists, mirroring the teacher's
// findTagSection.
func findTagByType(t tagType) (uintptr, uint32) {
	curPtr := infoData + 8
	for {
		th := (*tagHeader)(unsafe.Pointer(curPtr))
		if th.tagType == tagEnd {
			return 0, 0
		}
		if th.tagType == t {
			return curPtr + 8, th.size - 8
		}
		curPtr += tagStride(th.size)
	}
}

// tagStride rounds a tag's size up to the next 8-byte boundary, per the
// Multiboot2 spec's tag alignment rule.
func tagStride(size uint32) uintptr {
	return uintptr((size + 7) &^ 7)
}
