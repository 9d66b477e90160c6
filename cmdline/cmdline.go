// Package cmdline parses the whitespace-separated `key[=value]` token
// sequence the Multiboot loader hands the kernel as its command line
// (spec.md §6 "Command line"), against a linker-section-flavored table of
// registered parameters. Grounded on original_source/common/cmdline.c and
// include/cmdline.h's ktf_param table + bool synonym sets; the "linker
// section" storage is reproduced here as a plain package-level slice since
// Go has no portable equivalent of a custom `__cmdline` ELF section for
// ordinary data (only code can be placed with //go:linkname-style tricks,
// and the original's use of the section is just "a statically known list
// gathered before main runs" — a registered-at-init slice gives the same
// property without the section machinery).
package cmdline

import (
	"strconv"
	"strings"

	"ktf/kernel"
	"ktf/kfmt"
)

// Type is a registered parameter's storage kind, matching original's
// ktf_param.type enum {STRING, ULONG, BOOL}.
type Type uint8

const (
	TypeString Type = iota
	TypeULong
	TypeBool
)

// Param is one registered command-line parameter. Name must be unique;
// registering the same name twice is a programming error caught by Register.
type Param struct {
	Name string
	Type Type

	// Str, ULong and Bool are the parameter's storage cells. Only the one
	// matching Type is read by Parse; MaxLen bounds Str per original's
	// PARAM_MAX_LENGTH-capped strncpy behavior.
	Str    *string
	MaxLen int
	ULong  *uint64
	Bool   *bool
}

var params []*Param

var errDuplicateParam = &kernel.Error{Module: "cmdline", Message: "a parameter with this name is already registered"}

// Register adds p to the parameter table. Call during package init (each
// subsystem registers its own options), before Parse runs.
func Register(p *Param) *kernel.Error {
	for _, existing := range params {
		if existing.Name == p.Name {
			return errDuplicateParam
		}
	}
	params = append(params, p)
	return nil
}

// trueValues and falseValues are the ordered synonym sets spec.md's
// "Command line" section names verbatim.
var (
	trueValues  = []string{"yes", "on", "true", "enable", "1"}
	falseValues = []string{"no", "off", "false", "disable", "0"}
)

func parseBool(s string) bool {
	for _, v := range trueValues {
		if s == v {
			return true
		}
	}
	for _, v := range falseValues {
		if s == v {
			return false
		}
	}
	// Matches original_source's parse_bool: anything else is truthy,
	// since cmdline_parse feeds it "1" for a bare key with no '='.
	return true
}

// Parse tokenizes cmdline on whitespace and, for each `key[=value]` token,
// updates the registered Param whose Name matches key. A bare key (no '=')
// is treated as boolean true, per spec.md. Unknown keys are silently
// skipped — original_source does the same (the parameter table is simply
// not matched). w receives a warning line when a string value overflows
// its MaxLen, matching original's truncation warning.
func Parse(w kfmtWriter, line string) {
	for _, tok := range strings.Fields(line) {
		key, value, hasValue := strings.Cut(tok, "=")

		var p *Param
		for _, candidate := range params {
			if candidate.Name == key {
				p = candidate
				break
			}
		}
		if p == nil {
			continue
		}

		switch p.Type {
		case TypeString:
			if p.Str == nil {
				continue
			}
			v := value
			if !hasValue {
				v = ""
			}
			if p.MaxLen > 0 && len(v) >= p.MaxLen {
				kfmt.Fprintf(w, "WARNING: the commandline parameter value for %s does not fit "+
					"into the preallocated buffer (size %d >= %d)\n", p.Name, len(v), p.MaxLen)
				v = v[:p.MaxLen-1]
			}
			*p.Str = v
		case TypeULong:
			if p.ULong == nil {
				continue
			}
			n, _ := strconv.ParseUint(value, 0, 64)
			*p.ULong = n
		case TypeBool:
			if p.Bool == nil {
				continue
			}
			v := value
			if !hasValue {
				// A bare key (no '=') is treated as boolean true,
				// matching cmdline_parse's `!strcmp(optval, optkey) ? "1" : optval`.
				v = "1"
			}
			*p.Bool = parseBool(v)
		}
	}
}

type kfmtWriter interface {
	Write(p []byte) (n int, err error)
}
