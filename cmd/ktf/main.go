// Command ktf is the rt0 trampoline entrypoint: the only Go symbol visible
// to the boot assembly once it has switched the CPU to 64-bit long mode and
// set up a minimal stack. It exists purely to call into kmain.Start -
// without a real call site the Go compiler has no reason to keep that code
// in the final image.
//
// Grounded on _examples/gopher-os-gopher-os's boot.go/stub.go, collapsed
// into one file since this repository only ever had the one calling
// convention they represent two generations of (kernel.Kmain() with no
// arguments, then kmain.Kmain(multibootInfoPtr, kernelStart, kernelEnd)).
package main

import (
	"ktf/apic"
	"ktf/kmain"
)

// multibootInfoPtr, trampolinePhysAddr and bspAPICID are written by the
// boot assembly before it jumps here: the multiboot2 info pointer GRUB left
// in %rdi, the physical address the 16-bit AP entry stub was assembled at,
// and the BSP's own local APIC id read via CPUID leaf 0x1. They are package
// vars rather than main's arguments for the same reason stub.go uses one:
// a direct argument the compiler can see is live would let it inline and
// discard the rest of this package.
var (
	multibootInfoPtr   uintptr
	trampolinePhysAddr uintptr
	bspAPICID          uint8
)

// main calls into the kernel's actual entrypoint. It is not expected to
// return - kmain.Start only returns (with a *kernel.Error) on a boot
// failure, at which point the assembly trampoline halts the CPU.
func main() {
	kmain.Start(kmain.Config{
		MultibootInfoPtr:   multibootInfoPtr,
		TrampolinePhysAddr: trampolinePhysAddr,
		BSPAPICID:          bspAPICID,
		APICMode:           apic.ModeX2APIC,
	})
}
