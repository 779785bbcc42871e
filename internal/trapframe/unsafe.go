package trapframe

import "unsafe"

// ptrOf exists only to give Publish/token something pointer-sized and
// stable to hand the scratch CSR; it never dereferences the result.
func ptrOf(f *Frame) unsafe.Pointer {
	return unsafe.Pointer(f)
}
