package ioapic

import "unsafe"

func volatilePtr(addr uintptr) unsafe.Pointer { return unsafe.Pointer(addr) }
