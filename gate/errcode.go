package gate

import (
	"io"
	"ktf/kfmt"
)

// DecodeErrorCode prints the human-readable decomposition of a trap's error
// code described in spec.md §4.3: page-fault flag characters for
// PageFaultException, or a segment-selector/TLB-index breakdown for the
// selector-bearing exceptions (#TS, #NP, #SS, #GP, #AC).
func DecodeErrorCode(w io.Writer, vec InterruptNumber, code uint64) {
	switch vec {
	case PageFaultException:
		decodePageFaultCode(w, code)
	case InvalidTSS, SegmentNotPresent, StackSegmentFault, GPFException, AlignmentCheck:
		decodeSelectorErrorCode(w, code)
	}
}

// decodePageFaultCode prints the P/W/U/X/I flag letters packed into a
// #PF error code (Intel SDM vol.3 §4.7): present, write (R for a read),
// user, reserved-bit set (X), instruction-fetch; a clear flag prints '-'.
func decodePageFaultCode(w io.Writer, code uint64) {
	flag := func(bit uint, set, unset byte) byte {
		if code&(1<<bit) != 0 {
			return set
		}
		return unset
	}
	kfmt.Fprintf(w, "[ %c%c%c%c%c ]",
		flag(0, 'P', '-'),
		flag(1, 'W', 'R'),
		flag(2, 'U', '-'),
		flag(3, 'X', '-'),
		flag(4, 'I', '-'),
	)
}

// decodeSelectorErrorCode prints the table indicator (GDT/IDT/LDT) and
// selector index packed into the error codes that carry a segment selector.
func decodeSelectorErrorCode(w io.Writer, code uint64) {
	extTable := code & 0x1
	tableBits := (code >> 1) & 0x3
	index := (code >> 3) & 0x1fff

	var table string
	switch tableBits {
	case 0:
		table = "GDT"
	case 1, 3:
		table = "IDT"
	case 2:
		table = "LDT"
	}

	kfmt.Fprintf(w, "[ external=%d table=%s index=%d ]", extTable, table, index)
}
