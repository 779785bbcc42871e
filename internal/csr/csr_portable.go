//go:build !riscv64

package csr

// Portable fallback used on every GOARCH except riscv64, so this package
// (and everything built on it) compiles and its tests run on a normal
// development host. There is no hardware TLB or WFI to drive here;
// identity mapping means fence.vma is a correctness no-op off-target, and
// WFI is a no-op rather than a true halt.
func fenceVMA() {}

func wfi() {}

func fenceRW() {}
