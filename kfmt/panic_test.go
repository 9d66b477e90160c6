package kfmt

import (
	"bytes"
	"ktf/kernel"
	"strings"
	"testing"
)

func TestPanicWithKernelError(t *testing.T) {
	defer func() { cpuHaltFn = func() {}; outputSink = nil }()

	var halted bool
	cpuHaltFn = func() { halted = true }

	var buf bytes.Buffer
	SetOutputSink(&buf)

	Panic(&kernel.Error{Module: "mm", Message: "out of frames"})

	if !halted {
		t.Fatal("expected Panic to halt the CPU")
	}
	if out := buf.String(); !strings.Contains(out, "[mm] unrecoverable error: out of frames") {
		t.Fatalf("expected panic banner to mention the error; got %q", out)
	}
}

func TestPanicWithString(t *testing.T) {
	defer func() { cpuHaltFn = func() {}; outputSink = nil }()

	var halted bool
	cpuHaltFn = func() { halted = true }

	var buf bytes.Buffer
	SetOutputSink(&buf)

	Panic("assertion failed")

	if !halted {
		t.Fatal("expected Panic to halt the CPU")
	}
	if out := buf.String(); !strings.Contains(out, "assertion failed") {
		t.Fatalf("expected panic banner to mention the message; got %q", out)
	}
}
