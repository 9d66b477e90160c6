// Package percpu manages the per-CPU block described in spec.md §4.3/§4.6:
// each CPU's GDT, TSS and bring-up bookkeeping live in a single allocated
// block reachable through the gs segment base, so code running on any CPU
// can find "my" state without a lookup.
package percpu

import (
	"unsafe"

	"ktf/cpu"
	"ktf/gate"
	"ktf/kernel"
	"ktf/mm"
	"ktf/mm/vmm"
	"ktf/segment"
)

// MaxCPUs bounds how many per-CPU blocks can exist; spec.md §4.6 does not
// name a hard limit, but every static table (blocks, run queues) needs one.
const MaxCPUs = 64

// Block is the per-CPU state page. Its address (returned by Init) is the
// value written into MSRGSBase, so gs:0 always resolves to "this CPU's
// Block" from any context, including inside an interrupt handler.
type Block struct {
	ID       uint8
	APICID   uint8
	BSP      bool
	Enabled  bool
	Family   uint8
	Model    uint8
	Stepping uint8

	GDT segment.GDT
	TSS segment.TSS

	// RetToKernelSP and UserStack support the eventual user/kernel stack
	// switch on a ring transition; spec.md's task model is kernel-only for
	// now, so these stay unused placeholders matching the original's
	// ret2kern_sp/user_stack fields (kept for layout parity, not wired).
	RetToKernelSP uintptr
	UserStack     uintptr

	doubleFaultStack [4096]byte
}

// blockOrder is the allocation unit for a Block: the struct itself (TSS,
// GDT, double-fault stack and bookkeeping fields) exceeds one 4 KiB page,
// so each CPU gets a 2 MiB page instead of packing multiple blocks
// together or teaching the allocator a custom size.
const blockOrder = mm.Order2M

var blocks [MaxCPUs]*Block

// Indirected through function variables, same as the rest of the substrate,
// so tests can exercise Init/Current without actually issuing the
// privileged LGDT/LTR/WRMSR/RDMSR instructions.
var (
	allocPageFn = vmm.GetFreePages
	wrmsrFn     = cpu.WRMSR
	rdmsrFn     = cpu.RDMSR
	loadGDTFn   = segment.LoadGDT
	loadTSSFn   = segment.LoadTSS
	setISTFn    = gate.SetIST
)

// ErrTooManyCPUs is returned by Init once id >= MaxCPUs.
var ErrTooManyCPUs = &kernel.Error{Module: "percpu", Message: "cpu id exceeds MaxCPUs"}

// Init allocates and populates the per-CPU block for (id, apicID), builds
// its GDT/TSS around a freshly allocated double-fault stack, loads the GDT
// and TSS on the calling CPU, and points MSRGSBase at the new block so
// Current works from here on.
func Init(id, apicID uint8, bsp bool) (*Block, *kernel.Error) {
	if int(id) >= MaxCPUs {
		return nil, ErrTooManyCPUs
	}

	va, err := allocPageFn(blockOrder, vmm.GFPKernel, vmm.FlagPresent|vmm.FlagRW)
	if err != nil {
		return nil, err
	}

	b := (*Block)(unsafe.Pointer(va))
	*b = Block{ID: id, APICID: apicID, BSP: bsp, Enabled: true}

	dfStackTop := uintptr(unsafe.Pointer(&b.doubleFaultStack[0])) + uintptr(len(b.doubleFaultStack))
	b.TSS = *segment.NewTSS(dfStackTop, dfStackTop)
	b.GDT = segment.Build(&b.TSS, uintptr(unsafe.Pointer(&b.TSS)))

	loadGDTFn(uintptr(unsafe.Pointer(&b.GDT[0])), uint16(len(b.GDT)*8-1))
	loadTSSFn(segment.TSSSelector)
	setISTFn(gate.DoubleFault, 1)

	wrmsrFn(cpu.MSRGSBase, uint64(va))
	wrmsrFn(cpu.MSRTSCAux, uint64(id))
	blocks[id] = b
	return b, nil
}

// Current returns the calling CPU's block, as last installed by Init via
// MSRGSBase. Safe to call from interrupt context once Init has run.
func Current() *Block {
	return (*Block)(unsafe.Pointer(uintptr(rdmsrFn(cpu.MSRGSBase))))
}

// ByID returns the block registered for id, or nil if Init was never called
// for that CPU.
func ByID(id uint8) *Block {
	if int(id) >= MaxCPUs {
		return nil
	}
	return blocks[id]
}
