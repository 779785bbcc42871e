// Package shared implements the default lock used throughout the kernel
// (spec.md §4.C family 2): a spin lock that additionally disables
// supervisor interrupts while held outside an interrupt context, so a
// timer preemption can never re-enter a scheduler that wants the same
// lock.
//
// Grounded directly on
// _examples/original_source/src/lock/shared/rwlock.rs, which wraps a
// RawSpinRwLock and calls write_sie(0) on acquire / write_sie(0x222) on
// release outside interrupt context; 0x222 is exactly
// csr.DefaultSIEMask (bits 1, 5, 9: SSIE | STIE | SEIP).
package shared

import (
	"github.com/tinyrange/rvkernel/internal/csr"
	"github.com/tinyrange/rvkernel/internal/lock/spin"
	"github.com/tinyrange/rvkernel/internal/trapframe"
)

// Mutex is the shared::Mutex from spec.md §4.C.
type Mutex struct {
	inner spin.Mutex
}

func (m *Mutex) Lock(core *csr.Core) {
	if !trapframe.IsInterruptContext(core) {
		core.DisableInterrupts()
		core.IncLockDepth()
	}
	m.inner.Lock()
}

func (m *Mutex) Unlock(core *csr.Core) {
	m.inner.Unlock()
	if !trapframe.IsInterruptContext(core) {
		if core.DecLockDepth() == 0 {
			core.RestoreInterrupts(csr.DefaultSIEMask)
		}
	}
}

// RWMutex is the shared::RwLock from spec.md §4.C.
type RWMutex struct {
	inner spin.RWMutex
}

func (l *RWMutex) enter(core *csr.Core) {
	if !trapframe.IsInterruptContext(core) {
		core.DisableInterrupts()
		core.IncLockDepth()
	}
}

func (l *RWMutex) leave(core *csr.Core) {
	if !trapframe.IsInterruptContext(core) {
		if core.DecLockDepth() == 0 {
			core.RestoreInterrupts(csr.DefaultSIEMask)
		}
	}
}

func (l *RWMutex) RLock(core *csr.Core) {
	l.enter(core)
	l.inner.RLock()
}

func (l *RWMutex) RUnlock(core *csr.Core) {
	l.inner.RUnlock()
	l.leave(core)
}

func (l *RWMutex) Lock(core *csr.Core) {
	l.enter(core)
	l.inner.Lock()
}

func (l *RWMutex) Unlock(core *csr.Core) {
	l.inner.Unlock()
	l.leave(core)
}
