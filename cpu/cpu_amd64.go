// Package cpu wraps the handful of privileged amd64 instructions the rest
// of the substrate needs: control-register and MSR access, cpuid, the
// halt/interrupt-mask primitives, and TLB control. Grounded on
// src/gopheros/kernel/cpu/cpu_amd64.go; the safe-MSR pair and CurrentID
// are new, built to spec.md §4.3's fault-fixup and per-CPU-id contract.
package cpu

import "ktf/sync"

func init() {
	sync.SetRelaxFunc(Relax)
}

var cpuidFn = ID

// EnableInterrupts sets the IF flag (STI).
func EnableInterrupts()

// DisableInterrupts clears the IF flag (CLI).
func DisableInterrupts()

// Halt stops instruction execution until the next interrupt (HLT).
func Halt()

// Relax executes a PAUSE, the spin-loop hint spec.md §5 calls for
// ("tight loop with rep; nop").
func Relax()

// FlushTLBEntry invalidates the TLB entry for virtAddr (INVLPG).
func FlushTLBEntry(virtAddr uintptr)

// SwitchPDT loads pdtPhysAddr into CR3, flushing the entire TLB.
func SwitchPDT(pdtPhysAddr uintptr)

// ActivePDT returns the physical address currently loaded in CR3.
func ActivePDT() uintptr

// ReadCR2 returns the faulting address recorded by the last page fault.
func ReadCR2() uint64

// ReadCR0 returns the CR0 control register.
func ReadCR0() uint64

// WriteCR0 loads cr0 into CR0.
func WriteCR0(cr0 uint64)

// ID executes CPUID with EAX=leaf, ECX=0 and returns EAX/EBX/ECX/EDX.
func ID(leaf uint32) (uint32, uint32, uint32, uint32)

// rdtscpRaw executes RDTSCP and returns the full 64-bit TSC (RDX:RAX
// combined) and aux, the IA32_TSC_AUX value RDTSCP loads into ECX.
func rdtscpRaw() (tsc uint64, aux uint32)

// IsIntel reports whether cpuid leaf 0 reports the Intel vendor string.
func IsIntel() bool {
	_, ebx, ecx, edx := cpuidFn(0)
	return ebx == 0x756e6547 && // "Genu"
		edx == 0x49656e69 && // "ineI"
		ecx == 0x6c65746e // "ntel"
}

// CurrentID returns the logical CPU id of the calling processor, read back
// out of MSR_TSC_AUX via RDTSCP. percpu.Init writes this MSR once per CPU
// during bring-up (spec.md §4.3), so this is valid only after that point;
// before it, every CPU reads back 0 (the BSP's id).
func CurrentID() uint32 {
	_, aux := rdtscpRaw()
	return aux
}
