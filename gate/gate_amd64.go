// Package gate implements the amd64 IDT, the register snapshot taken on
// entry to a trap/interrupt/syscall, and the do_exception-equivalent
// dispatch path described in spec.md §4.3: a per-vector assembly stub pushes
// the general-purpose registers into a Registers struct and jumps to Go,
// which decodes the error code, prints a symbolic backtrace, and panics —
// unless the fault address matches a registered extable fixup, in which
// case execution resumes there instead.
package gate

import (
	"io"
	"ktf/extable"
	"ktf/kfmt"
)

// Registers is the register snapshot taken by the per-vector assembly
// trampoline before it calls into dispatchInterrupt.
type Registers struct {
	RAX uint64
	RBX uint64
	RCX uint64
	RDX uint64
	RSI uint64
	RDI uint64
	RBP uint64
	R8  uint64
	R9  uint64
	R10 uint64
	R11 uint64
	R12 uint64
	R13 uint64
	R14 uint64
	R15 uint64

	// Info carries the exception error code for faults that push one, the
	// IRQ number for hardware interrupts, or the syscall number.
	Info uint64

	// RIP/CS/RFlags/RSP/SS are the interrupt frame the CPU pushes
	// automatically; IRETQ consumes it on return.
	RIP    uint64
	CS     uint64
	RFlags uint64
	RSP    uint64
	SS     uint64
}

// DumpTo writes a formatted dump of every register to w.
func (r *Registers) DumpTo(w io.Writer) {
	kfmt.Fprintf(w, "RAX = %16x RBX = %16x\n", r.RAX, r.RBX)
	kfmt.Fprintf(w, "RCX = %16x RDX = %16x\n", r.RCX, r.RDX)
	kfmt.Fprintf(w, "RSI = %16x RDI = %16x\n", r.RSI, r.RDI)
	kfmt.Fprintf(w, "RBP = %16x\n", r.RBP)
	kfmt.Fprintf(w, "R8  = %16x R9  = %16x\n", r.R8, r.R9)
	kfmt.Fprintf(w, "R10 = %16x R11 = %16x\n", r.R10, r.R11)
	kfmt.Fprintf(w, "R12 = %16x R13 = %16x\n", r.R12, r.R13)
	kfmt.Fprintf(w, "R14 = %16x R15 = %16x\n", r.R14, r.R15)
	kfmt.Fprintf(w, "\n")
	kfmt.Fprintf(w, "RIP = %16x CS  = %16x\n", r.RIP, r.CS)
	kfmt.Fprintf(w, "RSP = %16x SS  = %16x\n", r.RSP, r.SS)
	kfmt.Fprintf(w, "RFL = %16x\n", r.RFlags)
}

// InterruptNumber identifies an IDT vector.
type InterruptNumber uint8

const (
	DivideByZero        = InterruptNumber(0)
	NMI                 = InterruptNumber(2)
	Breakpoint          = InterruptNumber(3)
	Overflow            = InterruptNumber(4)
	BoundRangeExceeded  = InterruptNumber(5)
	InvalidOpcode       = InterruptNumber(6)
	DeviceNotAvailable  = InterruptNumber(7)
	DoubleFault         = InterruptNumber(8)
	InvalidTSS          = InterruptNumber(10)
	SegmentNotPresent   = InterruptNumber(11)
	StackSegmentFault   = InterruptNumber(12)
	GPFException        = InterruptNumber(13)
	PageFaultException  = InterruptNumber(14)
	FloatingPointExcept = InterruptNumber(16)
	AlignmentCheck      = InterruptNumber(17)
	MachineCheck        = InterruptNumber(18)
	SIMDFPException     = InterruptNumber(19)

	// firstIRQVector is where hardware IRQs (remapped off their legacy
	// 0x8/0x70 PIC vectors) and the IOAPIC redirection table start.
	firstIRQVector = InterruptNumber(32)
	maxVectors     = 256

	// FirstIRQVector is firstIRQVector, exported so package ioapic can
	// compute redirection-entry vectors (GSI + FirstIRQVector) without
	// duplicating the legacy-PIC-remap offset.
	FirstIRQVector = firstIRQVector
)

// hasErrorCode reports whether the CPU pushes an error code for vec, per the
// Intel SDM vol.3 table the original's idt.c switches on.
func hasErrorCode(vec InterruptNumber) bool {
	switch vec {
	case DoubleFault, InvalidTSS, SegmentNotPresent, StackSegmentFault, GPFException, PageFaultException, AlignmentCheck:
		return true
	default:
		return false
	}
}

var handlers [maxVectors]func(*Registers)

// Init installs the IDT and leaves every vector routed to the default
// handler (prints and panics) until HandleInterrupt overrides it.
func Init() {
	for i := range handlers {
		handlers[i] = defaultHandler
	}
	installIDT()
}

// HandleInterrupt routes vec to handler. istOffset selects an interrupt
// stack table entry (1-based; 0 means "use the current stack") — only
// DoubleFault normally needs one, to guarantee a handler runs on a known-good
// stack even after a stack-segment fault.
func HandleInterrupt(vec InterruptNumber, istOffset uint8, handler func(*Registers)) {
	handlers[vec] = handler
	setGateIST(vec, istOffset)
}

// dispatchInterrupt is called by the per-vector assembly trampoline
// (interruptGateEntries) with the vector number and the just-populated
// Registers snapshot. It implements spec.md §4.3's extable-scan-before-
// dispatch rule: an extable hit takes priority over the registered handler,
// letting fault-tolerant probes (cpu.RDMSRSafe, …) recover without ever
// reaching Go-level fault handling.
func dispatchInterrupt(vec InterruptNumber, regs *Registers) {
	if entry, ok := extable.Lookup(uintptr(regs.RIP)); ok {
		if entry.Callback == nil || entry.Callback(regs) {
			regs.RIP = uint64(entry.FixupAddr)
			return
		}
	}

	handlers[vec](regs)
}

// defaultHandler is installed for every vector that has no registered
// handler. It implements the fatal-panic regime from spec.md §7: dump all
// registers, the decoded error code, a symbolic backtrace, then panic.
func defaultHandler(regs *Registers) {
	w := kfmt.GetOutputSink()
	kfmt.Fprintf(w, "\nunhandled interrupt, error code = 0x%x\n", regs.Info)
	DecodeErrorCode(w, InterruptNumber(regs.Info), regs.Info)
	kfmt.Fprintf(w, "\nRegisters:\n")
	regs.DumpTo(w)
	kfmt.Fprintf(w, "\nBacktrace:\n")
	Backtrace(w, uintptr(regs.RSP))
	panic(errUnhandledInterrupt)
}
