// Package irq implements the interrupt::Mutex / interrupt::RwLock family
// from spec.md §4.C: a spin lock that asserts it is only ever taken from
// an interrupt context. Unlike shared locks it never touches sie: the
// trap handler has already masked interrupts for the hart simply by
// virtue of running, so there is nothing to disable.
package irq

import (
	"github.com/tinyrange/rvkernel/internal/csr"
	"github.com/tinyrange/rvkernel/internal/lock/spin"
	"github.com/tinyrange/rvkernel/internal/trapframe"
)

func assertInterruptContext(core *csr.Core) {
	if !trapframe.IsInterruptContext(core) {
		panic("irq: lock taken outside interrupt context")
	}
}

// Mutex is the interrupt::Mutex from spec.md §4.C.
type Mutex struct {
	inner spin.Mutex
}

func (m *Mutex) Lock(core *csr.Core) {
	assertInterruptContext(core)
	m.inner.Lock()
}

func (m *Mutex) Unlock() {
	m.inner.Unlock()
}

// RWMutex is the interrupt::RwLock from spec.md §4.C.
type RWMutex struct {
	inner spin.RWMutex
}

func (l *RWMutex) RLock(core *csr.Core) {
	assertInterruptContext(core)
	l.inner.RLock()
}

func (l *RWMutex) RUnlock() { l.inner.RUnlock() }

func (l *RWMutex) Lock(core *csr.Core) {
	assertInterruptContext(core)
	l.inner.Lock()
}

func (l *RWMutex) Unlock() { l.inner.Unlock() }
