//go:build riscv64

package csr

// Declarations for the real riscv64 primitives implemented in
// csr_riscv64.s. These are only compiled when actually targeting the ISA
// the spec describes; every other GOARCH uses csr_portable.go so the rest
// of the module stays host-testable.

//go:noescape
func fenceVMA()

//go:noescape
func wfi()

//go:noescape
func fenceRW()
