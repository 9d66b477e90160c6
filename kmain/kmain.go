// Package kmain implements the BSP boot sequence described in spec.md §2's
// boot-flow table (stages 2-10; stage 1, the real->protected->long-mode
// promotion, is assembly that calls into Start once the CPU is already in
// 64-bit mode with a transient GDT/IDT/TSS live). Grounded on
// _examples/gopher-os-gopher-os's kernel/kmain package: Start plays the
// same trampoline-target role Kmain does there, wiring every subsystem
// package together in dependency order, with *kernel.Error living in a
// separate package from every subsystem to avoid an import cycle (kmain
// depends on pmm/vmm/acpi/..., each of which depends on kernel.Error, so
// kernel.Error's package cannot itself depend on them).
package kmain

import (
	"io"

	"ktf/acpi"
	"ktf/apic"
	"ktf/cmdline"
	"ktf/console"
	"ktf/cpu"
	"ktf/gate"
	"ktf/goruntime"
	"ktf/ioapic"
	"ktf/kernel"
	"ktf/kfmt"
	"ktf/mm/pmm"
	"ktf/mm/vmm"
	"ktf/mptables"
	"ktf/multiboot"
	"ktf/percpu"
	"ktf/regions"
	"ktf/sched"
	"ktf/smp"
)

var errKmainReturned = &kernel.Error{Module: "kmain", Message: "Start returned"}

// TestLookup resolves a name from the `tests=` cmdline option to a runnable
// task function. Test bodies are an external collaborator (spec.md §1 "the
// individual test bodies" are out of scope); production code installs a
// real registry here (e.g. from a symbol-table-backed test package) before
// calling Start. A nil TestLookup (the default) makes every requested test
// a no-op that immediately logs and returns.
var TestLookup func(name string) sched.Func

// Config bundles the inputs Start needs beyond the raw multiboot pointer:
// values that in a real boot come from the boot assembly (the trampoline's
// physical address, the BSP's own APIC id read before ACPI discovery runs)
// and are passed in explicitly here so Start stays testable without real
// hardware.
type Config struct {
	MultibootInfoPtr uintptr

	// TrampolinePhysAddr is where the 16-bit AP entry stub was placed by
	// the boot assembly; smp.BringUpAll needs it to compute the SIPI
	// vector.
	TrampolinePhysAddr uintptr

	// BSPAPICID is the calling CPU's local APIC id, used both to seed
	// percpu.Init's BSP block and to tag the matching MADT LAPIC entry
	// during ACPI/MP discovery.
	BSPAPICID uint8

	// APICMode selects xAPIC or x2APIC; spec.md §4.5 requires explicit
	// selection rather than probing.
	APICMode apic.Mode
}

// Start runs the boot sequence: multiboot/cmdline parsing, regions
// mapping, PMM/VMM bring-up, per-CPU + trap installation, ACPI/MP
// discovery, APIC/IOAPIC programming, SMP bring-up, and finally scheduling
// whatever `tests=` named. sched.RunTasks is the per-CPU worker loop
// (original's ap_startup calls it for every AP, smp/smp.go:64 in
// original_source) - the BSP itself never calls it. Instead the BSP
// schedules, busy-waits in sched.WaitForAllTasks until every task reaches
// DONE, then calls sched.Terminate so any AP still spinning in RunTasks
// exits its loop, and halts (spec.md §6 "Exit"). It returns a
// *kernel.Error only on a failure that happens before tasks start running.
func Start(cfg Config) *kernel.Error {
	console.Install()
	w := console.FanOut

	multiboot.SetInfoPtr(cfg.MultibootInfoPtr)
	multiboot.DiscoverAndLog(w)

	opts := cmdline.DefaultOptions
	cmdline.RegisterCore(&opts)
	cmdline.Parse(w, multiboot.CommandLine())

	kfmt.Printf("KTF - Kernel Test Framework!\n")

	regions.Discover()
	if err := regions.MapAll(); err != nil {
		return err
	}

	if err := pmm.Init(availableRanges(), reservedFn); err != nil {
		return err
	}
	if err := vmm.Init(); err != nil {
		return err
	}
	if err := goruntime.Init(); err != nil {
		return err
	}
	if err := regions.Reclaim(); err != nil {
		return err
	}

	gate.Init()
	if _, err := percpu.Init(0, cfg.BSPAPICID, true); err != nil {
		return err
	}

	topo, err := discoverTopology(w, cfg.BSPAPICID)
	if err != nil {
		return err
	}

	if err := apic.Init(w, cfg.APICMode); err != nil {
		return err
	}

	ioapics := make([]*ioapic.IOAPIC, 0, len(topo.IOAPICs))
	for _, info := range topo.IOAPICs {
		dev, err := ioapic.New(info)
		if err != nil {
			return err
		}
		ioapics = append(ioapics, dev)
	}
	ioapic.RouteOverrides(ioapics, topo, cfg.BSPAPICID)

	if err := smp.BringUpAll(w, topo, vmm.RootTable().Address(), cfg.TrampolinePhysAddr); err != nil {
		return err
	}

	sched.Init(w)
	scheduleRequestedTests(w, opts.Tests, uint32(len(topo.CPUs)))

	sched.WaitForAllTasks()
	sched.Terminate()

	kfmt.Printf("All tasks done.\n")
	cpu.DisableInterrupts()
	for {
		cpu.Halt()
	}
}

// discoverTopology tries ACPI first and falls back to the legacy MP-table
// path on failure, per spec.md §4.4's explicit fallback rule.
func discoverTopology(w io.Writer, bspAPICID uint8) (*acpi.Topology, *kernel.Error) {
	topo, err := acpi.Discover(w, 0, uint32(bspAPICID))
	if err == nil {
		return topo, nil
	}
	kfmt.Fprintf(w, "acpi: discovery failed (%s), falling back to MP tables\n", err.Message)
	return mptables.Discover(w)
}

// availableRanges converts every Multiboot AVAILABLE memory-map entry into
// a pmm.Range.
func availableRanges() []pmm.Range {
	var ranges []pmm.Range
	multiboot.VisitMemRegions(func(entry *multiboot.MemoryMapEntry) bool {
		if entry.Type == multiboot.MemAvailable {
			ranges = append(ranges, pmm.Range{
				Start: uintptr(entry.PhysAddress),
				End:   uintptr(entry.PhysAddress + entry.Length),
			})
		}
		return true
	})
	return ranges
}

// reservedFn reports whether physAddr falls inside a kernel section
// regions.Discover already mapped, per pmm.Init's ReservedFn contract.
func reservedFn(physAddr uintptr) bool {
	for _, r := range regions.Table {
		if physAddr >= regionPhysStart(r) && physAddr < regionPhysEnd(r) {
			return true
		}
	}
	return false
}

func regionPhysStart(r regions.Region) uintptr { return r.Start - windowBaseOf(r) }
func regionPhysEnd(r regions.Region) uintptr   { return r.End - windowBaseOf(r) }

func windowBaseOf(r regions.Region) uintptr {
	switch r.Window {
	case vmm.WindowUser:
		return 0x0000000000400000
	case vmm.WindowKernel:
		return 0xffffffff80000000
	default:
		return 0
	}
}

// scheduleRequestedTests parses the comma-separated `tests=` option,
// resolves each name through TestLookup, creates and schedules a task for
// it round-robin across nrCPUs. Unresolved names (TestLookup nil or a
// miss) are logged and skipped — running the named test bodies is outside
// this package's scope, per spec.md §1.
func scheduleRequestedTests(w io.Writer, testsOpt string, nrCPUs uint32) {
	if testsOpt == "" || nrCPUs == 0 {
		return
	}

	names := splitCommaList(testsOpt)
	for i, name := range names {
		if TestLookup == nil {
			kfmt.Fprintf(w, "kmain: no test registry installed, skipping %s\n", name)
			continue
		}
		fn := TestLookup(name)
		if fn == nil {
			kfmt.Fprintf(w, "kmain: unknown test %s\n", name)
			continue
		}

		task, err := sched.NewTask(w, name, fn, nil)
		if err != nil {
			kfmt.Fprintf(w, "kmain: failed to create task %s: %s\n", name, err.Message)
			continue
		}
		if err := sched.ScheduleTask(w, task, uint32(i)%nrCPUs, nrCPUs); err != nil {
			kfmt.Fprintf(w, "kmain: failed to schedule task %s: %s\n", name, err.Message)
		}
	}
}

func splitCommaList(s string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	return out
}
