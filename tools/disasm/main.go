// Command disasm is a host-side companion to the in-kernel panic path
// (spec.md §4.3): given a kernel ELF image and one or more fault addresses
// captured from a serial-console backtrace, it prints the disassembled
// instruction at each address. The kernel itself cannot link x86asm - it
// is not freestanding-safe - so this decoding step runs offline, after the
// fact, against the same image that was booted.
//
// Grounded on _examples/bobuhiro11-gokvm/machine/debug_amd64.go's
// x86asm.Decode/x86asm.GNUSyntax usage and
// _examples/gopher-os-gopher-os/tools/redirects's debug/elf-reading,
// flag-driven tool shape.
package main

import (
	"debug/elf"
	"flag"
	"fmt"
	"os"
	"strconv"

	"golang.org/x/arch/x86/x86asm"
)

// maxInstLen is the longest possible x86-64 instruction encoding; it bounds
// how many bytes instructionBytesAt ever reads for one decode attempt.
const maxInstLen = 15

func exit(err error) {
	fmt.Fprintf(os.Stderr, "disasm: %s\n", err)
	os.Exit(1)
}

// sectionFor returns the loaded-image section containing vaddr, or nil if
// none does - e.g. vaddr falls inside a .bss-like section with no file
// backing, which can't be disassembled.
func sectionFor(f *elf.File, vaddr uint64) *elf.Section {
	for _, sec := range f.Sections {
		if sec.Addr == 0 || sec.Size == 0 {
			continue
		}
		if vaddr >= sec.Addr && vaddr < sec.Addr+sec.Size {
			return sec
		}
	}
	return nil
}

// sliceAt returns up to maxInstLen bytes of data starting at the offset of
// vaddr within a section based at secAddr, clamped to data's length. Split
// out from instructionBytesAt so the offset/clamping arithmetic can be unit
// tested without an on-disk ELF image.
func sliceAt(data []byte, secAddr, vaddr uint64) ([]byte, error) {
	if vaddr < secAddr {
		return nil, fmt.Errorf("%#x: before section start %#x", vaddr, secAddr)
	}

	off := vaddr - secAddr
	end := off + maxInstLen
	if end > uint64(len(data)) {
		end = uint64(len(data))
	}
	if off >= end {
		return nil, fmt.Errorf("%#x: past the end of the section", vaddr)
	}

	return data[off:end], nil
}

// instructionBytesAt reads up to maxInstLen bytes starting at vaddr from
// the section that contains it.
func instructionBytesAt(f *elf.File, vaddr uint64) ([]byte, error) {
	sec := sectionFor(f, vaddr)
	if sec == nil {
		return nil, fmt.Errorf("%#x: no loaded section contains this address", vaddr)
	}

	data, err := sec.Data()
	if err != nil {
		return nil, fmt.Errorf("%#x: reading section %s: %w", vaddr, sec.Name, err)
	}

	return sliceAt(data, sec.Addr, vaddr)
}

// decodeAt decodes and formats the instruction at vaddr in GNU syntax,
// matching the mnemonic style a reader of an objdump-style backtrace
// would expect.
func decodeAt(f *elf.File, vaddr uint64) (string, error) {
	b, err := instructionBytesAt(f, vaddr)
	if err != nil {
		return "", err
	}

	inst, err := x86asm.Decode(b, 64)
	if err != nil {
		return "", fmt.Errorf("%#x: decoding %#02x: %w", vaddr, b, err)
	}

	return x86asm.GNUSyntax(inst, vaddr, nil), nil
}

func main() {
	flag.Parse()
	args := flag.Args()
	if len(args) < 2 {
		exit(fmt.Errorf("usage: disasm <kernel.elf> <fault_ip> [fault_ip ...]"))
	}

	f, err := elf.Open(args[0])
	if err != nil {
		exit(err)
	}
	defer f.Close()

	for _, raw := range args[1:] {
		addr, err := strconv.ParseUint(raw, 0, 64)
		if err != nil {
			exit(fmt.Errorf("%q: not a valid address: %w", raw, err))
		}

		asm, err := decodeAt(f, addr)
		if err != nil {
			fmt.Printf("fault_ip %#x: %s\n", addr, err)
			continue
		}
		fmt.Printf("fault_ip %#x: %s\n", addr, asm)
	}
}
