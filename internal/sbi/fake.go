package sbi

import (
	"context"
	"sync"
)

// Fake is an in-memory Caller used by every test and by the hosted demo
// harness (cmd/rvkernel-sim), since this module cannot literally issue
// ecall outside a riscv64 target (SPEC_FULL.md §0).
type Fake struct {
	mu sync.Mutex

	TimerInstant uint64
	TimerCalls   int

	HartStatuses map[uint64]HartStatus
	ShutdownHit  bool

	// OnShutdown, if set, runs synchronously inside Shutdown; tests use
	// this to observe the system-fatal path without actually exiting.
	OnShutdown func()
}

// NewFake returns a Fake with hart 0 already marked started, matching a
// freshly booted single-hart QEMU virt machine.
func NewFake() *Fake {
	return &Fake{HartStatuses: map[uint64]HartStatus{0: HartStarted}}
}

func (f *Fake) SetTimer(_ context.Context, absoluteInstant uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.TimerInstant = absoluteInstant
	f.TimerCalls++
	return nil
}

func (f *Fake) HartStart(_ context.Context, hartID uint64, _, _ uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.HartStatuses == nil {
		f.HartStatuses = map[uint64]HartStatus{}
	}
	f.HartStatuses[hartID] = HartStarted
	return nil
}

func (f *Fake) HartGetStatus(_ context.Context, hartID uint64) (HartStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, ok := f.HartStatuses[hartID]
	if !ok {
		return HartStopped, nil
	}
	return st, nil
}

func (f *Fake) Shutdown(_ context.Context) error {
	f.mu.Lock()
	f.ShutdownHit = true
	hook := f.OnShutdown
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	return nil
}

var _ Caller = (*Fake)(nil)
