package kfmt

import (
	"ktf/cpu"
	"ktf/kernel"
)

var (
	// cpuHaltFn is swapped out by tests. The default disables interrupts
	// and halts in a loop, so it never returns.
	cpuHaltFn = func() {
		cpu.DisableInterrupts()
		for {
			cpu.Halt()
		}
	}

	errRuntimePanic = &kernel.Error{Module: "rt", Message: "unknown cause"}
)

// Panic prints e (if non-nil) and the per-CPU "PANIC:" banner described in
// spec.md §7 regime 1, then halts the current CPU forever. Panic never
// returns; it is also the redirection target for the runtime's own panic().
func Panic(e interface{}) {
	var err *kernel.Error

	switch t := e.(type) {
	case *kernel.Error:
		err = t
	case string:
		panicString(t)
		return
	case error:
		errRuntimePanic.Message = t.Error()
		err = errRuntimePanic
	}

	Printf("\n-----------------------------------\n")
	if err != nil {
		Printf("[%s] unrecoverable error: %s\n", err.Module, err.Message)
	}
	Printf("*** PANIC: system halted ***")
	Printf("\n-----------------------------------\n")

	cpuHaltFn()
}

func panicString(msg string) {
	errRuntimePanic.Message = msg
	Panic(errRuntimePanic)
}
