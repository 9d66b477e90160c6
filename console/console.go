// Package console implements spec.md §9's console fan-out: a small
// fixed-capacity vector of sinks behind one global lock, matching the
// printk model "a single global lock around the shared vprintk buffer"
// (spec.md §5). Only the Sink interface and two concrete, non-hardware-
// specific sinks live here; UART, real framebuffer rendering and the
// keyboard driver are external collaborators (spec.md §1 Non-goals).
package console

import (
	"io"

	"ktf/kfmt"
	ktfsync "ktf/sync"
)

// Sink is anything printk-style output can be fanned out to. It is
// intentionally io.Writer-shaped so any *kfmt.Fprintf target works as a
// Sink without an adapter.
type Sink interface {
	Write(p []byte) (n int, err error)
}

// MaxSinks bounds the fixed-capacity sink vector; original_source's
// console.c registers at most a handful (VGA, one or two serial ports,
// QEMU debug console), so a small static array avoids needing a heap
// allocation this early in boot.
const MaxSinks = 8

var (
	lock  ktfsync.Spinlock
	sinks [MaxSinks]Sink
	count int
)

// Register adds sink to the fan-out vector and returns true, or returns
// false without modifying anything if the vector is already full.
func Register(sink Sink) bool {
	lock.Acquire()
	defer lock.Release()

	if count >= MaxSinks {
		return false
	}
	sinks[count] = sink
	count++
	return true
}

// Reset empties the fan-out vector; used by tests and by a from-scratch
// console reinitialization.
func Reset() {
	lock.Acquire()
	defer lock.Release()
	count = 0
}

// Write implements io.Writer, fanning p out to every registered sink under
// the single global console lock. It always reports len(p), nil — a
// single failing sink (e.g. a disconnected serial port) must not stop the
// others from receiving the line, matching printk's "best effort" fan-out.
func Write(p []byte) (int, error) {
	lock.Acquire()
	defer lock.Release()

	for i := 0; i < count; i++ {
		sinks[i].Write(p)
	}
	return len(p), nil
}

// Install points kfmt.Printf's output sink at this package's Write,
// draining anything buffered in kfmt's early ring buffer into the newly
// registered sinks.
func Install() {
	kfmt.SetOutputSink(FanOut)
}

type writerFunc func(p []byte) (int, error)

func (f writerFunc) Write(p []byte) (int, error) { return f(p) }

// FanOut is an io.Writer that fans every write out to the registered sink
// vector via Write. Use this wherever a single io.Writer target is needed
// (kmain passes it to every subsystem's trace-output parameter).
var FanOut io.Writer = writerFunc(Write)
