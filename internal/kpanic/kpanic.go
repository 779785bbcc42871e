// Package kpanic implements the three escalating fatal paths from
// spec.md §7: process-local (handled by the caller, not here),
// hart-fatal (double fault: log and hang the one hart), and
// system-fatal (panic on the boot hart, or any hart observing the global
// panic flag: log and SBI shutdown).
package kpanic

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// Global is set the instant any hart declares a system-fatal condition.
// Every trap dispatcher checks it first (spec.md §4.B: "if a cross-hart
// panic flag is set, panic immediately").
var Global atomic.Bool

// Shutdown is the SBI system-reset collaborator; wired by boot code to
// the real sbi.Caller, and to a no-op/observer in tests.
type Shutdown interface {
	Shutdown(ctx context.Context) error
}

// System declares a system-fatal condition: sets the global flag, logs,
// and calls Shutdown. It never returns under normal operation; in tests
// where Shutdown is a fake that doesn't exit the process, callers must
// still treat System as terminal and stop issuing kernel operations.
func System(ctx context.Context, log *slog.Logger, sd Shutdown, reason string, args ...any) {
	Global.Store(true)
	log.Error("system-fatal: "+reason, args...)
	if sd != nil {
		_ = sd.Shutdown(ctx)
	}
}

// Hart declares a hart-fatal condition (double fault): logs minimally and
// hangs the calling goroutine forever, modeling "hang the hart" since a
// hosted goroutine cannot literally halt the OS thread without starving
// other work scheduled on it.
func Hart(log *slog.Logger, reason string, args ...any) {
	log.Error("hart-fatal: "+reason, args...)
	select {}
}
