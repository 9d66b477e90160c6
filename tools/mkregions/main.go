// Command mkregions is a host-side code generator that reads a built
// kernel ELF image and emits a Go source file defining a static
// regions.StaticTable ([]Region) - the same {Name, Window, Start, End, Prot}
// information the regions package otherwise discovers at boot time from
// the bootloader's ELF-symbols tag. Building this table ahead of time
// avoids hand-maintained section-boundary symbols in a linker script (see
// SPEC_FULL.md's Host build interface).
//
// Grounded on _examples/gopher-os-gopher-os/tools/makelogo (flag-driven
// generator, go/parser+go/printer pretty-printing of the emitted source)
// and _examples/gopher-os-gopher-os/tools/redirects (debug/elf section
// walking). The window/protection classification rules are duplicated
// from the regions package rather than imported from it, because this
// tool must build and run on the host toolchain and regions pulls in
// packages (vmm, multiboot) written only against the freestanding runtime
// this kernel boots under.
package main

import (
	"bytes"
	"debug/elf"
	"errors"
	"flag"
	"fmt"
	"go/parser"
	"go/printer"
	"go/token"
	"os"
	"strings"
)

// window mirrors vmm.Window's three values without importing vmm.
type window int

const (
	windowIdentity window = iota
	windowUser
	windowKernel
)

func (w window) String() string {
	switch w {
	case windowIdentity:
		return "vmm.WindowIdentity"
	case windowUser:
		return "vmm.WindowUser"
	default:
		return "vmm.WindowKernel"
	}
}

// prot mirrors the vmm.FlagPresent/FlagRW/FlagNX bits a region is tagged
// with, formatted as a Go OR-expression in the generated source rather
// than a numeric copy of vmm's flag values, so the output stays correct
// even if those flag bit positions change.
type prot struct {
	rw bool
	nx bool
}

func (p prot) String() string {
	s := "vmm.FlagPresent"
	if p.rw {
		s += " | vmm.FlagRW"
	}
	if p.nx {
		s += " | vmm.FlagNX"
	}
	return s
}

type region struct {
	name   string
	win    window
	start  uint64
	end    uint64
	prot   prot
}

var initSectionPrefixes = []string{".text.init", ".data.init", ".bss.init"}

func isInitSection(name string) bool {
	for _, p := range initSectionPrefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}

func windowForSection(name string) window {
	switch {
	case strings.HasSuffix(name, ".user"):
		return windowUser
	case strings.Contains(name, ".rmode"), isInitSection(name):
		return windowIdentity
	default:
		return windowKernel
	}
}

func protForSection(flags elf.SectionFlag) prot {
	return prot{
		rw: flags&elf.SHF_WRITE != 0,
		nx: flags&elf.SHF_EXECINSTR == 0,
	}
}

func collectRegions(f *elf.File) []region {
	var regions []region
	for _, sec := range f.Sections {
		if sec.Flags&elf.SHF_ALLOC == 0 || sec.Size == 0 {
			continue
		}
		regions = append(regions, region{
			name:  sec.Name,
			win:   windowForSection(sec.Name),
			start: sec.Addr,
			end:   sec.Addr + sec.Size,
			prot:  protForSection(sec.Flags),
		})
	}
	return regions
}

func genSource(regions []region) string {
	var buf bytes.Buffer

	fmt.Fprint(&buf, `
package regions

import "ktf/mm/vmm"

// StaticTable was generated by tools/mkregions from a built kernel image;
// it is an alternative to regions.Discover's runtime ELF-symbols walk for
// builds that prefer a link-time-fixed table.
var StaticTable = []Region{
`)

	for _, r := range regions {
		fmt.Fprintf(&buf, "{Name: %q, Window: %s, Start: 0x%x, End: 0x%x, Prot: %s},\n",
			r.name, r.win, r.start, r.end, r.prot)
	}

	fmt.Fprint(&buf, "}\n")

	return buf.String()
}

func exit(err error) {
	fmt.Fprintf(os.Stderr, "mkregions: %s\n", err)
	os.Exit(1)
}

func runTool() error {
	output := flag.String("out", "-", "file to write the generated table to, or - for STDOUT")
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, "mkregions: generate regions.StaticTable from a kernel ELF image\n\n")
		fmt.Fprint(os.Stderr, "Usage: mkregions [options] kernel.elf\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		return errors.New("missing kernel image argument")
	}

	f, err := elf.Open(flag.Arg(0))
	if err != nil {
		return err
	}
	defer f.Close()

	src := genSource(collectRegions(f))

	fset := token.NewFileSet()
	astFile, err := parser.ParseFile(fset, "", src, parser.ParseComments)
	if err != nil {
		return err
	}

	if *output == "-" {
		return printer.Fprint(os.Stdout, fset, astFile)
	}

	out, err := os.Create(*output)
	if err != nil {
		return err
	}
	defer out.Close()

	return printer.Fprint(out, fset, astFile)
}

func main() {
	if err := runTool(); err != nil {
		exit(err)
	}
}
