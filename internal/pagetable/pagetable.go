// Package pagetable names the page-table walker spec.md §1 lists as an
// external collaborator, scoped to identity mapping only (spec.md's
// Non-goals exclude virtual memory beyond that). This kernel never
// needs to translate an address, only to know that satp points at a
// table that maps every address to itself; Walker exists so boot code
// has a named type to hold even though nothing in this core calls a
// method on it yet.
package pagetable

// Walker is the identity-mapping page table this kernel's satp points
// at. RootPPN is the physical page number boot installs into satp.
type Walker interface {
	RootPPN() uint64
}
