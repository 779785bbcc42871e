// Package spin implements the busy-wait lock core every other lock family
// in this kernel builds on (spec.md §4.C: "spin::Mutex / spin::RwLock,
// pure busy-wait; safe to use inside interrupt context").
//
// Grounded on the original source's spin-backed RawRwLock
// (_examples/original_source/src/lock/shared/rwlock.rs wraps exactly this
// kind of raw spin lock) and on tinyrange-cc's habit of building small
// sync primitives on top of sync/atomic rather than reaching for a
// third-party lock package; none of the pack's dependencies offer a
// spin lock, and a true interrupt-context-safe lock cannot block on the
// runtime's futex path the way sync.Mutex does, so atomic CAS is the only
// correct primitive here, not a stylistic choice.
package spin

import "sync/atomic"

// Mutex is a busy-wait mutual-exclusion lock.
type Mutex struct {
	locked atomic.Bool
}

func (m *Mutex) Lock() {
	for !m.locked.CompareAndSwap(false, true) {
		// busy-wait: no OS thread parking is safe from interrupt context.
	}
}

func (m *Mutex) TryLock() bool {
	return m.locked.CompareAndSwap(false, true)
}

func (m *Mutex) Unlock() {
	m.locked.Store(false)
}

// RWMutex is a busy-wait single-writer/multi-reader lock. state is a
// signed counter so TryLock can detect "some reader holds it" without a
// separate writer flag colliding with reader accounting.
type RWMutex struct {
	state atomic.Int32 // 0 = free, -1 = held exclusively, >0 = reader count
}

const writerHeld int32 = -1

func (l *RWMutex) RLock() {
	for {
		s := l.state.Load()
		if s == writerHeld {
			continue
		}
		if l.state.CompareAndSwap(s, s+1) {
			return
		}
	}
}

func (l *RWMutex) TryRLock() bool {
	s := l.state.Load()
	if s == writerHeld {
		return false
	}
	return l.state.CompareAndSwap(s, s+1)
}

func (l *RWMutex) RUnlock() {
	l.state.Add(-1)
}

func (l *RWMutex) Lock() {
	for !l.state.CompareAndSwap(0, writerHeld) {
	}
}

func (l *RWMutex) TryLock() bool {
	return l.state.CompareAndSwap(0, writerHeld)
}

func (l *RWMutex) Unlock() {
	l.state.Store(0)
}
