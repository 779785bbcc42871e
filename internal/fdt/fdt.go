// Package fdt names the Flattened Device Tree parser spec.md §1 lists
// as an external collaborator: boot receives a1 = device-tree base
// address and needs to learn the hart count, UART MMIO base, PLIC MMIO
// base, and VirtIO MMIO bases from it. Parsing the DTB format itself is
// out of scope for this kernel's core; Tree is the named interface the
// boot path depends on instead.
package fdt

// Tree is whatever this kernel needs out of a parsed device tree.
type Tree interface {
	HartIDs() []uint64
	MMIOBase(nodeCompatible string) (base uint64, size uint64, ok bool)
}
