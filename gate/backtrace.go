package gate

import (
	"io"
	"ktf/kfmt"
	"unsafe"
)

const twoMiB = 1 << 21

// symbolForAddr resolves addr to a (name, offset-from-symbol-start, ok)
// triple. It defaults to "no symbol table available", under which no word
// resolves and Backtrace prints nothing. Only this package's tests replace
// it; no resolver built from the kernel ELF's symbol table is installed.
var symbolForAddr = func(addr uintptr) (string, uintptr, bool) { return "", 0, false }

// readWordFn reads one machine word from addr. It is a variable so tests can
// back it with a plain Go slice instead of dereferencing raw memory.
var readWordFn = func(addr uintptr) uintptr {
	return *(*uintptr)(unsafe.Pointer(addr))
}

// Backtrace walks every word from sp up to the end of its enclosing 2 MiB
// page, printing a symbol annotation for any word that resolves to a known
// function (spec.md §4.3). The 2 MiB bound matches the kernel's own mapping
// granularity: a saved stack pointer never legitimately points past the end
// of the page it started in, so stopping there bounds the walk without
// needing a frame-pointer chain.
func Backtrace(w io.Writer, sp uintptr) {
	pageEnd := (sp + twoMiB) &^ (twoMiB - 1)

	for addr := sp; addr < pageEnd; addr += 8 {
		word := readWordFn(addr)
		name, off, ok := symbolForAddr(word)
		if !ok {
			continue
		}
		kfmt.Fprintf(w, "0x%16x: %s + <0x%x>\n", word, name, off)
	}
}
