package cpu

import "ktf/extable"

// MSR-related constants referenced by package apic/percpu; kept here since
// they are intrinsic to the RDMSR/WRMSR instruction pair, matching the
// original's include/arch/x86/processor.h MSR_* namespace.
const (
	// MSRAPICBase is IA32_APIC_BASE.
	MSRAPICBase = 0x1b
	// MSRTSCAux is IA32_TSC_AUX, written with the CPU id during percpu
	// init so that RDTSCP reveals the current processor (spec.md §4.3).
	MSRTSCAux = 0xc0000103
	// MSRX2APICBase is the first x2APIC register MSR; register r maps to
	// MSRX2APICBase + (r >> 4), per spec.md §6.
	MSRX2APICBase = 0x800
	// MSRGSBase backs the per-CPU block pointer: percpu.Current reads it
	// back via RDMSR, percpu.Init writes the block's address into it.
	MSRGSBase = 0xc0000101
)

// rdmsrRawSafe and wrmsrRawSafe are implemented in assembly. Each contains
// an inline ASM_EXTABLE-equivalent entry pairing the RDMSR/WRMSR
// instruction with a fixup label inside the same stub: on a #GP the
// exception handler's extable scan (package extable) resumes execution at
// that fixup, which sets ok=false and returns instead of re-raising the
// fault. This mirrors original_source's rdmsr_safe/wrmsr_safe exactly
// (spec.md §4.3, §7 regime 2) while keeping the Go-level call convention
// a plain two-value return.
func rdmsrRawSafe(msr uint32) (value uint64, ok bool)
func wrmsrRawSafe(msr uint32, value uint64) (ok bool)

// rdmsrFaultAddr/rdmsrFixupAddr and their wrmsr counterparts return the
// addresses of the rdmsr_fault/fixup_rdmsr (and wrmsr equivalents) labels in
// msr_amd64.s, letting init register them with package extable the same way
// the original's ASM_EXTABLE_HANDLER macro would at link time.
func rdmsrFaultAddr() uintptr
func rdmsrFixupAddr() uintptr
func wrmsrFaultAddr() uintptr
func wrmsrFixupAddr() uintptr

func init() {
	extable.Register(rdmsrFaultAddr(), rdmsrFixupAddr(), nil)
	extable.Register(wrmsrFaultAddr(), wrmsrFixupAddr(), nil)
}

// RDMSRSafe reads msr, returning ok=false (and an unchanged *value) if the
// read faults instead of crashing the kernel.
func RDMSRSafe(msr uint32, value *uint64) bool {
	v, ok := rdmsrRawSafe(msr)
	if !ok {
		return false
	}
	*value = v
	return true
}

// WRMSRSafe writes value to msr, returning false if the write faults.
func WRMSRSafe(msr uint32, value uint64) bool {
	return wrmsrRawSafe(msr, value)
}

// RDMSR reads msr, panicking if the read faults (msr does not exist).
// Provided for call sites that intentionally want a fatal fault on
// misuse, matching the original's non-"_safe" rdmsr/wrmsr.
func RDMSR(msr uint32) uint64 {
	v, ok := rdmsrRawSafe(msr)
	if !ok {
		panic("cpu: RDMSR faulted")
	}
	return v
}

// WRMSR writes value to msr.
func WRMSR(msr uint32, value uint64) {
	wrmsrRawSafe(msr, value)
}
