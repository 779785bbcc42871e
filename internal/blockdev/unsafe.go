package blockdev

import "unsafe"

// ptrAddr returns the numeric address of b, used only to synthesize a
// descriptor's Addr field in the hosted simulation (SPEC_FULL.md §0):
// there is no separate guest-physical address space, so a Go byte's own
// address stands in for it.
func ptrAddr(b *byte) uintptr {
	return uintptr(unsafe.Pointer(b))
}
