package early

import "testing"

func resetScreen(buf []byte) {
	vgaBuf = buf
	col, row = 0, 0
	for i := range buf {
		buf[i] = 0
	}
}

func cellAt(buf []byte, r, c int) byte {
	return buf[(r*vgaCols+c)*2]
}

func TestPrintfLiteral(t *testing.T) {
	buf := make([]byte, vgaRows*vgaCols*2)
	resetScreen(buf)
	defer func() { vgaBuf = nil }()

	Printf("hi")
	if got := cellAt(buf, 0, 0); got != 'h' {
		t.Fatalf("cell(0,0) = %q, want 'h'", got)
	}
	if got := cellAt(buf, 0, 1); got != 'i' {
		t.Fatalf("cell(0,1) = %q, want 'i'", got)
	}
}

func TestPrintfVerbs(t *testing.T) {
	buf := make([]byte, vgaRows*vgaCols*2)
	resetScreen(buf)
	defer func() { vgaBuf = nil }()

	Printf("%s=%d/%x", "n", 10, 255)
	want := "n=10/ff"
	for i := 0; i < len(want); i++ {
		if got := cellAt(buf, 0, i); got != want[i] {
			t.Fatalf("cell(0,%d) = %q, want %q", i, got, want[i])
		}
	}
}

func TestPrintfNewlineAdvancesRow(t *testing.T) {
	buf := make([]byte, vgaRows*vgaCols*2)
	resetScreen(buf)
	defer func() { vgaBuf = nil }()

	Printf("a\nb")
	if got := cellAt(buf, 0, 0); got != 'a' {
		t.Fatalf("cell(0,0) = %q, want 'a'", got)
	}
	if got := cellAt(buf, 1, 0); got != 'b' {
		t.Fatalf("cell(1,0) = %q, want 'b'", got)
	}
}
