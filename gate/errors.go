package gate

import "ktf/kernel"

var errUnhandledInterrupt = &kernel.Error{Module: "gate", Message: "unhandled interrupt"}
