// Package kernel provides the allocation-free primitives shared by every
// other package in the substrate: the soft-failure Error type and the
// low-level memory builtins used before any allocator is available. The
// fatal-panic path lives in package kfmt.
package kernel

// Error describes a kernel error. All kernel errors are defined as package
// level variables that are pointers to this structure. This requirement
// stems from the fact that the Go allocator is not available to us this
// early in the boot process, so we cannot rely on errors.New.
type Error struct {
	// Module is the package where the error occurred.
	Module string

	// Message is the human readable error description.
	Message string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Message
}
