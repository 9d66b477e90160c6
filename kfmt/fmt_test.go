package kfmt

import (
	"bytes"
	"testing"
)

func TestPrintf(t *testing.T) {
	defer func() { outputSink = nil }()

	printfn := Printf

	specs := []struct {
		fn        func()
		expOutput string
	}{
		{func() { printfn("no args") }, "no args"},
		{func() { printfn("%t", true) }, "true"},
		{func() { printfn("%41t", false) }, "false"},
		{func() { printfn("%s arg", "STRING") }, "STRING arg"},
		{func() { printfn("%s arg", []byte("BYTES")) }, "BYTES arg"},
		{func() { printfn("'%4s'", "ABC") }, "' ABC'"},
		{func() { printfn("'%4s'", "ABCDE") }, "'ABCDE'"},
		{func() { printfn("uint: %d", uint8(10)) }, "uint: 10"},
		{func() { printfn("oct: %o", uint16(0777)) }, "oct: 777"},
		{func() { printfn("hex: 0x%x", uint32(0xbadf00d)) }, "hex: 0xbadf00d"},
		{func() { printfn("'%10d'", uint64(123)) }, "'       123'"},
		{func() { printfn("'0x%10x'", uint64(0xbadf00d)) }, "'0x000badf00d'"},
		{func() { printfn("signed: %d", int64(-42)) }, "signed: -42"},
		{func() { printfn("char: %c", byte('R')) }, "char: R"},
		{func() { printfn("%x %s", "oops", 1) }, "%!(WRONGTYPE) %!(WRONGTYPE)"},
		{func() { printfn("%d") }, "(MISSING)"},
		{func() { printfn("no verb", 1) }, "no verb%!(EXTRA)"},
		{func() { printfn("100%% literal") }, "100% literal"},
	}

	var buf bytes.Buffer
	SetOutputSink(&buf)
	for specIndex, spec := range specs {
		buf.Reset()
		spec.fn()
		if got := buf.String(); got != spec.expOutput {
			t.Errorf("[spec %d] expected output %q; got %q", specIndex, spec.expOutput, got)
		}
	}
}

func TestEarlyBufferDrain(t *testing.T) {
	defer func() { outputSink = nil; earlyBuf = ringBuffer{} }()

	outputSink = nil
	Printf("buffered")

	var buf bytes.Buffer
	SetOutputSink(&buf)
	if got := buf.String(); got != "buffered" {
		t.Fatalf("expected drained ring buffer contents %q, got %q", "buffered", got)
	}
}

func TestGetOutputSink(t *testing.T) {
	defer func() { outputSink = nil }()
	var buf bytes.Buffer
	SetOutputSink(&buf)
	if GetOutputSink() != &buf {
		t.Fatalf("GetOutputSink did not return the sink passed to SetOutputSink")
	}
}
