// Package sbi models the SBI call ABI spec.md §1 names as an external
// collaborator ("named interfaces only"): extension id in a7, function id
// in a6, arguments a0..a5, returning an (error, value) pair. The kernel
// depends only on Caller; Real issues the actual ecall on riscv64, and
// Fake backs every test and the hosted demo harness.
package sbi

import (
	"context"
)

// Caller is everything the kernel core needs from firmware: the timer
// extension (set_timer), the HSM extension (hart_start, hart_get_status),
// and the system-reset extension (shutdown), spec.md §6's "at minimum"
// list.
type Caller interface {
	SetTimer(ctx context.Context, absoluteInstant uint64) error
	HartStart(ctx context.Context, hartID uint64, startAddr, opaque uint64) error
	HartGetStatus(ctx context.Context, hartID uint64) (HartStatus, error)
	Shutdown(ctx context.Context) error
}

// HartStatus mirrors the HSM extension's hart_get_status values.
type HartStatus int

const (
	HartStarted HartStatus = iota
	HartStopped
	HartStartPending
	HartStopPending
)
