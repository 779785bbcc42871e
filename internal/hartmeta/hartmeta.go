// Package hartmeta is the per-hart metadata registry from spec.md §3/§4.D:
// a concurrent, insertion-only-during-boot map of hartid -> HartMeta, each
// entry holding the hart's CSR core, PLIC handle, boot trap frame (behind
// a read-write lock so trap/scheduler paths can swap into it), and a
// panic-in-progress flag.
//
// Modeled as the lazily-initialized, boot-then-read-mostly singleton
// spec.md §9 calls for: NewRegistry is called once from the boot sequence,
// and every other access goes through the registry's own shared.Mutex.
package hartmeta

import (
	"fmt"

	"github.com/tinyrange/rvkernel/internal/csr"
	"github.com/tinyrange/rvkernel/internal/lock/shared"
	"github.com/tinyrange/rvkernel/internal/trapframe"
)

// PLICHandle is the minimal external-interrupt-controller surface a hart
// needs from its registry entry; spec.md §1 treats the PLIC register
// layout as an external collaborator, so this is a named interface, not
// an implementation.
type PLICHandle interface {
	Claim() uint32
	Complete(id uint32)
}

// HartMeta is one hart's registry entry (spec.md §3).
type HartMeta struct {
	HartID uint64
	Core   *csr.Core
	PLIC   PLICHandle

	bootFrameLock shared.RWMutex
	bootFrame     *trapframe.Frame

	panicking bool
}

// BootFrame returns the hart's boot trap frame under the read lock.
func (h *HartMeta) BootFrame() *trapframe.Frame {
	h.bootFrameLock.RLock(h.Core)
	defer h.bootFrameLock.RUnlock(h.Core)
	return h.bootFrame
}

// SetBootFrame installs the boot frame under the write lock. Called once
// during per-hart init.
func (h *HartMeta) SetBootFrame(f *trapframe.Frame) {
	h.bootFrameLock.Lock(h.Core)
	defer h.bootFrameLock.Unlock(h.Core)
	h.bootFrame = f
}

// SetPanicking/IsPanicking back the cross-hart panic flag spec.md §4.B
// checks on every trap entry.
func (h *HartMeta) SetPanicking()     { h.panicking = true }
func (h *HartMeta) IsPanicking() bool { return h.panicking }

// Registry is the global hartid -> HartMeta map. Every method takes the
// calling hart's *csr.Core explicitly so the shared-lock discipline
// (spec.md §4.C) disables interrupts on the hart actually doing the
// locking, not on some fixed "owner" hart.
type Registry struct {
	mu    shared.Mutex
	harts map[uint64]*HartMeta
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{harts: make(map[uint64]*HartMeta)}
}

// Insert adds a new hart's metadata. Insertion is boot-only per spec.md
// §4.D; Insert returns an error if the hartid is already registered.
func (r *Registry) Insert(core *csr.Core, m *HartMeta) error {
	r.mu.Lock(core)
	defer r.mu.Unlock(core)
	if _, exists := r.harts[m.HartID]; exists {
		return fmt.Errorf("hartmeta: hart %d already registered", m.HartID)
	}
	r.harts[m.HartID] = m
	return nil
}

// Get returns the metadata for hartID, or nil if it was never registered.
func (r *Registry) Get(core *csr.Core, hartID uint64) *HartMeta {
	r.mu.Lock(core)
	defer r.mu.Unlock(core)
	return r.harts[hartID]
}

// AnyPanicking reports whether any registered hart has raised the
// cross-hart panic flag, matching the dispatcher's first check in
// spec.md §4.B.
func (r *Registry) AnyPanicking(core *csr.Core) bool {
	r.mu.Lock(core)
	defer r.mu.Unlock(core)
	for _, m := range r.harts {
		if m.IsPanicking() {
			return true
		}
	}
	return false
}

// Count returns the number of registered harts.
func (r *Registry) Count(core *csr.Core) int {
	r.mu.Lock(core)
	defer r.mu.Unlock(core)
	return len(r.harts)
}
