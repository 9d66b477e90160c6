// Package smp brings up application processors (APs) via the INIT-SIPI-SIPI
// sequence, per spec.md §4.6: allocate a top-of-stack, publish it and the
// target CPU id through module-global hand-off variables the AP entry stub
// reads, issue INIT-SIPI-SIPI through the local APIC's ICR, then spin on a
// shared call-in flag the AP flips once its own initialization path
// finishes. Grounded on original_source/smp/smp.c's boot_cpu/init_smp.
package smp

import (
	"io"
	"sync/atomic"

	"ktf/acpi"
	"ktf/apic"
	"ktf/cpu"
	"ktf/kernel"
	"ktf/kfmt"
	"ktf/mm"
	"ktf/mm/vmm"
)

// Hand-off variables: single-writer (BSP, during boot_cpu), single-reader
// (the AP about to run ap_start). spec.md §4.6 calls for a conventional
// smp_wmb before release and smp_rmb/busy-wait on the reader side; this
// codebase has no separate fence primitive, so sync/atomic's sequentially
// consistent stores/loads serve as the Go-idiomatic equivalent (on amd64,
// ordinary stores are already TSO-ordered — atomic gives the same guarantee
// portably and documents the hand-off as intentionally synchronized).
var (
	apCPUID  uint32
	apNewSP  uintptr
	apCR3    uintptr
	apCallin uint32
)

// ProcessorID returns the calling CPU's id, per
// original_source/include/smp/smp.h's smp_processor_id (an RDMSR of
// MSR_TSC_AUX, the same register percpu.Init seeds with the CPU's id).
func ProcessorID() uint32 {
	return uint32(cpu.RDMSR(cpu.MSRTSCAux))
}

// ApCPUID, ApStackTop and ApCR3 are read by the AP entry trampoline
// (assembly, not yet reachable from Go) after it lands at the SIPI vector;
// they report the values BootCPU published before issuing the IPIs.
func ApCPUID() uint32     { return atomic.LoadUint32(&apCPUID) }
func ApStackTop() uintptr { return apNewSP }
func ApCR3() uintptr      { return apCR3 }

// SignalCallin is invoked by the AP once its own trap/APIC/timer init is
// done, unblocking the BSP's BootCPU call that is waiting on it.
func SignalCallin() {
	atomic.StoreUint32(&apCallin, 1)
}

// sipiVector computes GET_SIPI_VECTOR(addr): the page number of the 16-bit
// real-mode AP entry trampoline, per spec.md §4.6 ("the startup vector
// equals ap_start >> 12").
func sipiVector(trampolinePhysAddr uintptr) uint8 {
	return uint8(trampolinePhysAddr >> mm.PageShift)
}

// BootCPU brings up one non-BSP CPU: allocates its boot stack, publishes
// the hand-off variables, and drives the INIT-SIPI-SIPI sequence against
// its local APIC, per original_source/smp/smp.c's boot_cpu. cr3 is the BSP's
// active page table root (every AP starts sharing it).  trampolinePhysAddr
// is the physical address of the 16-bit AP entry stub; the caller supplies
// it since producing the real-mode trampoline itself is outside this
// package (it lives in the boot assembly, like vecStubAddr does for gate).
func BootCPU(w io.Writer, target acpi.LAPICInfo, cr3, trampolinePhysAddr uintptr) *kernel.Error {
	if target.BSP {
		return nil
	}

	stackTop, err := vmm.GetFreePages(mm.Order2M, vmm.GFPKernel, vmm.FlagPresent|vmm.FlagRW)
	if err != nil {
		return err
	}
	stackTop += mm.Order2M.Size()

	atomic.StoreUint32(&apCallin, 0)
	apNewSP = stackTop
	apCR3 = cr3
	atomic.StoreUint32(&apCPUID, target.CPUID)

	kfmt.Fprintf(w, "smp: starting AP %d (APIC id %d)\n", target.CPUID, target.APICID)

	vector := sipiVector(trampolinePhysAddr)
	apic.SendIPI(target.APICID, 0, apic.DeliveryInit)
	apic.SendIPI(target.APICID, vector, apic.DeliveryStartup)
	apic.SendIPI(target.APICID, vector, apic.DeliveryStartup)
	apic.WaitReady()

	for atomic.LoadUint32(&apCallin) == 0 {
		cpu.Relax()
	}

	kfmt.Fprintf(w, "smp: AP %d done\n", target.CPUID)
	return nil
}

// BringUpAll calls BootCPU for every enabled non-BSP CPU in topo, one at a
// time — spec.md §4.6 is explicit that concurrent bring-up isn't attempted.
func BringUpAll(w io.Writer, topo *acpi.Topology, cr3, trampolinePhysAddr uintptr) *kernel.Error {
	kfmt.Fprintf(w, "smp: initializing SMP support (CPUs: %d)\n", len(topo.CPUs))
	for _, c := range topo.CPUs {
		if err := BootCPU(w, c, cr3, trampolinePhysAddr); err != nil {
			return err
		}
	}
	return nil
}
