package kfmt

import (
	"bytes"
	"testing"
)

func TestPrefixWriter(t *testing.T) {
	var sink bytes.Buffer
	w := &PrefixWriter{Sink: &sink, Prefix: []byte("cpu0: ")}

	w.Write([]byte("boot\nready\n"))
	w.Write([]byte("partial"))

	exp := "cpu0: boot\ncpu0: ready\ncpu0: partial"
	if got := sink.String(); got != exp {
		t.Fatalf("expected %q; got %q", exp, got)
	}
}

func TestPrefixWriterEmptyWrite(t *testing.T) {
	var sink bytes.Buffer
	w := &PrefixWriter{Sink: &sink, Prefix: []byte(">> ")}

	n, err := w.Write(nil)
	if err != nil || n != 0 {
		t.Fatalf("expected (0, nil); got (%d, %v)", n, err)
	}
	if sink.Len() != 0 {
		t.Fatalf("expected no prefix to be emitted for an empty write")
	}
}
