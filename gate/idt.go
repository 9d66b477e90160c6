package gate

import "unsafe"

// idtEntry is the amd64 interrupt-gate descriptor layout (Intel SDM vol.3
// §6.14.1): a 64-bit target address split across three fields plus a
// selector, type/attribute byte and IST index.
type idtEntry struct {
	offsetLow  uint16
	selector   uint16
	ist        uint8
	typeAttr   uint8
	offsetMid  uint16
	offsetHigh uint32
	reserved   uint32
}

const (
	gateTypeInterrupt = 0x8e // present, DPL=0, 64-bit interrupt gate
	kernelCodeSegSel  = 0x18 // fourth GDT entry; matches segment.KernCS64Selector
)

var idt [maxVectors]idtEntry

// vecStubAddr is implemented in gate_amd64.s: it returns the address of
// vecStub<N> for vector vec, resolved at link time since each stub is a
// distinct symbol.
func vecStubAddr(vec uint8) uintptr

// loadIDT executes LIDT against the idt array declared above.
func loadIDT()

// installIDT fills every gate with its vector's stub address and loads IDTR.
// All gates are present from the start; HandleInterrupt only ever swaps the
// Go-level handlers table entry, never the gate itself.
func installIDT() {
	buildIDT()
	loadIDT()
}

// setGateIST rewires idt[vec]'s IST field, used by HandleInterrupt to route
// a vector (normally just DoubleFault) onto its own known-good stack.
func setGateIST(vec InterruptNumber, ist uint8) {
	idt[vec].ist = ist
}

// SetIST rewires idt[vec]'s IST field without touching its registered
// handler. percpu.Init uses this to point DoubleFault at the per-CPU
// double-fault stack (TSS.IST[0]) on every CPU, independently of whatever
// handler HandleInterrupt has (or hasn't) installed for it.
func SetIST(vec InterruptNumber, ist uint8) {
	setGateIST(vec, ist)
}

// buildIDT fills every gate with its vector's stub address.
func buildIDT() {
	for vec := 0; vec < maxVectors; vec++ {
		addr := vecStubAddr(uint8(vec))
		idt[vec] = idtEntry{
			offsetLow:  uint16(addr),
			selector:   kernelCodeSegSel,
			ist:        0,
			typeAttr:   gateTypeInterrupt,
			offsetMid:  uint16(addr >> 16),
			offsetHigh: uint32(addr >> 32),
		}
	}
}

// saveRegsAndDispatch is called by commonStub with the two words it just
// pushed (vector, then the error-code-or-zero) sitting where a Registers
// value's Info field will end up; it materializes the full Registers
// snapshot and calls dispatchInterrupt. Implemented with limited assembly
// help (stack layout only) and otherwise in Go so register decoding reuses
// ordinary struct field access.
func saveRegsAndDispatch(vec uint8, regsPtr unsafe.Pointer) {
	regs := (*Registers)(regsPtr)
	dispatchInterrupt(InterruptNumber(vec), regs)
}
