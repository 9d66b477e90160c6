package cmdline

// Options holds every core boot-time flag spec.md §6 names ("Recognized
// core keys"), registered against Parse through Register in RegisterCore.
// Kept as a single struct (rather than package-level vars like original's
// opt_debug/opt_keyboard/...) so kmain.Start can pass one value around
// instead of importing this package's globals piecemeal.
type Options struct {
	Debug       bool
	Keyboard    bool
	PIT         bool
	APICTimer   bool
	HPET        bool
	FPU         bool
	QEMUConsole bool
	PowerOff    bool

	Com1, Com2, Com3, Com4 string

	Tests string
}

// DefaultOptions matches original_source/common/cmdline.c's static
// initializers.
var DefaultOptions = Options{
	Keyboard: true,
	PowerOff: true,
}

// RegisterCore registers every core key against Parse's table, backed by
// the fields of *opts, which Parse then fills in. It returns nothing;
// callers copy DefaultOptions and pass its address
// (`opts := cmdline.DefaultOptions; cmdline.RegisterCore(&opts)`).
func RegisterCore(opts *Options) {
	Register(&Param{Name: "debug", Type: TypeBool, Bool: &opts.Debug})
	Register(&Param{Name: "keyboard", Type: TypeBool, Bool: &opts.Keyboard})
	Register(&Param{Name: "pit", Type: TypeBool, Bool: &opts.PIT})
	Register(&Param{Name: "apic_timer", Type: TypeBool, Bool: &opts.APICTimer})
	Register(&Param{Name: "hpet", Type: TypeBool, Bool: &opts.HPET})
	Register(&Param{Name: "fpu", Type: TypeBool, Bool: &opts.FPU})
	Register(&Param{Name: "qemu_console", Type: TypeBool, Bool: &opts.QEMUConsole})
	Register(&Param{Name: "poweroff", Type: TypeBool, Bool: &opts.PowerOff})

	Register(&Param{Name: "com1", Type: TypeString, Str: &opts.Com1, MaxLen: 20})
	Register(&Param{Name: "com2", Type: TypeString, Str: &opts.Com2, MaxLen: 20})
	Register(&Param{Name: "com3", Type: TypeString, Str: &opts.Com3, MaxLen: 20})
	Register(&Param{Name: "com4", Type: TypeString, Str: &opts.Com4, MaxLen: 20})

	Register(&Param{Name: "tests", Type: TypeString, Str: &opts.Tests, MaxLen: 256})
}
