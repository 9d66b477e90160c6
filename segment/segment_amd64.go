// Package segment builds the GDT and TSS structures described in spec.md
// §4.3: a transient flat GDT used during the protected-mode-to-long-mode
// transition, and the final per-CPU GDT (with its TSS, used only for the
// double-fault IST1 stack and as a ring-0 rsp0 anchor since amd64 has no
// hardware task switching).
package segment

// Selector identifies a GDT/LDT entry plus the requested privilege level
// (bits 0-1) and table indicator (bit 2).
type Selector uint16

// Transient GDT selectors, used from the 32-bit trampoline through the jump
// to long mode. Indices match original_source/include/desc.h's
// GDT_NULL/GDT_KERN_CS32/GDT_KERN_DS32/GDT_KERN_CS64.
const (
	NullSelector     = Selector(0x00)
	KernCS32Selector = Selector(0x08)
	KernDS32Selector = Selector(0x10)
	KernCS64Selector = Selector(0x18)
)

// Final per-CPU GDT layout. amd64 needs no separate 32-bit descriptors once
// a CPU is running in long mode, but user-mode descriptors and the TSS
// (spanning two 8-byte slots, per the 16-byte system-descriptor format) push
// the table to 10 entries.
const (
	gdtNull = iota
	gdtKernCS32
	gdtKernDS32
	gdtKernCS64
	gdtUserCS32
	gdtUserDS32
	gdtUserCS64
	gdtReserved
	gdtTSSLow
	gdtTSSHigh
	gdtEntryCount
)

// Descriptor flag bits, matching original_source/include/desc.h's
// DESC_FLAG_* constants (the upper 16 bits of a segment descriptor's second
// dword).
const (
	flagPresent  = 0x0080
	flagDPL3     = 0x0060
	flagNotSys   = 0x0010
	flagCode     = 0x0008
	flagReadable = 0x0002
	flagLong     = 0x2000
	flagSize32   = 0x4000
	flagGranular = 0x8000
)

// descriptor packs one 8-byte flat segment descriptor. base/limit are
// ignored for 64-bit code/data descriptors (the CPU treats the segment as
// spanning all of linear address space in long mode) but are still encoded
// for the transient 32-bit descriptors.
func descriptor(flags uint32, base uint32, limit uint32) uint64 {
	return (uint64(base&0xff000000) << (56 - 24)) |
		(uint64(flags&0x0000f0ff) << 40) |
		(uint64(limit&0x000f0000) << (48 - 16)) |
		(uint64(base&0x00ffffff) << 16) |
		uint64(limit&0x0000ffff)
}

// FlatGDT is the transient GDT installed by the boot trampoline: null,
// 32-bit flat code/data (used briefly in protected mode), and 64-bit flat
// code (selected right before the far jump into long mode).
type FlatGDT [4]uint64

// NewFlatGDT builds the transient boot GDT.
func NewFlatGDT() FlatGDT {
	return FlatGDT{
		0,
		descriptor(flagPresent|flagNotSys|flagCode|flagReadable|flagSize32|flagGranular, 0, 0xfffff),
		descriptor(flagPresent|flagNotSys|flagReadable|flagSize32|flagGranular, 0, 0xfffff),
		descriptor(flagPresent|flagNotSys|flagCode|flagReadable|flagLong, 0, 0),
	}
}

// TSS is the amd64 task-state segment. Only rsp0 and ist[0] are meaningful
// here: amd64 has no hardware task switching, so the TSS exists solely to
// give the CPU a known-good stack to switch to on a ring transition (rsp0)
// or on double-fault (ist[0], selected by the IDT gate's IST field).
type TSS struct {
	reserved0 uint32
	RSP       [3]uint64
	reserved1 uint64
	IST       [7]uint64
	reserved2 uint64
	reserved3 uint16
	IOPB      uint16
}

// NewTSS builds a TSS with rsp0 set to the top of the current per-CPU
// kernel stack and ist[0] set to the top of a dedicated double-fault stack.
func NewTSS(rsp0, doubleFaultStackTop uintptr) *TSS {
	tss := &TSS{}
	tss.RSP[0] = uint64(rsp0)
	tss.IST[0] = uint64(doubleFaultStackTop)
	tss.IOPB = uint16(tssSize)
	return tss
}

const tssSize = 104 // sizeof(TSS): 4+24+8+56+8+2+2

// GDT is the final per-CPU GDT: one shared layout, a distinct TSS descriptor
// (and backing TSS) per CPU.
type GDT [gdtEntryCount]uint64

// Build assembles the per-CPU GDT around tss, located at tssAddr (the TSS
// must be identity-mapped for this descriptor's base field to resolve —
// percpu.Block guarantees that by living inside the per-CPU page).
func Build(tss *TSS, tssAddr uintptr) GDT {
	var g GDT
	g[gdtKernCS64] = descriptor(flagPresent|flagNotSys|flagCode|flagReadable|flagLong, 0, 0)
	g[gdtKernDS32] = descriptor(flagPresent|flagNotSys|flagReadable|flagSize32|flagGranular, 0, 0xfffff)
	g[gdtUserCS64] = descriptor(flagPresent|flagNotSys|flagCode|flagReadable|flagLong|flagDPL3, 0, 0)
	g[gdtUserDS32] = descriptor(flagPresent|flagNotSys|flagReadable|flagSize32|flagGranular|flagDPL3, 0, 0xfffff)

	limit := uint32(tssSize - 1)
	base := uint32(tssAddr)
	g[gdtTSSLow] = descriptor(flagPresent|flagCode|flagReadable, base, limit)
	g[gdtTSSHigh] = uint64(tssAddr >> 32)
	return g
}

// TSSSelector is the selector for the per-CPU TSS built by Build.
const TSSSelector = Selector(gdtTSSLow << 3)

// LoadGDT executes LGDT against the 10-byte {limit uint16; base uint64}
// operand LGDT expects, then loads DS, ES and SS with the kernel data
// selector (0x10) and clears FS and GS; CS is not reloaded. base/limit are
// passed as ordinary arguments rather than a Go struct: Go's alignment
// rules would insert 6 bytes of padding between a uint16 and a following
// uint64 field, which does not match the packed layout the CPU requires, so
// the operand is assembled on the stack inside the asm stub instead.
func LoadGDT(base uintptr, limit uint16)

// LoadTSS executes LTR with sel.
func LoadTSS(sel Selector)
