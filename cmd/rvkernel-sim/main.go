// Command rvkernel-sim is the hosted demo harness for this kernel core:
// it boots N simulated harts, spawns a handful of supervisor processes,
// and drives each hart's trap dispatcher through a bounded number of
// timer ticks, the same role tinyrange-cc's cmd/cc plays for its
// hypervisor: a runnable entry point that wires every subsystem
// together rather than a test.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"golang.org/x/sync/errgroup"

	"github.com/tinyrange/rvkernel/internal/bootcfg"
	"github.com/tinyrange/rvkernel/internal/csr"
	"github.com/tinyrange/rvkernel/internal/hartmeta"
	"github.com/tinyrange/rvkernel/internal/iwaker"
	"github.com/tinyrange/rvkernel/internal/klog"
	"github.com/tinyrange/rvkernel/internal/plic"
	"github.com/tinyrange/rvkernel/internal/process"
	"github.com/tinyrange/rvkernel/internal/sbi"
	"github.com/tinyrange/rvkernel/internal/syscall"
	"github.com/tinyrange/rvkernel/internal/timeout"
	"github.com/tinyrange/rvkernel/internal/timerqueue"
	"github.com/tinyrange/rvkernel/internal/trap"
)

func main() {
	if err := run(); err != nil {
		var exitErr *exitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.code)
		}
		fmt.Fprintf(os.Stderr, "rvkernel-sim: %v\n", err)
		os.Exit(1)
	}
}

// exitError carries a process exit code alongside the error that caused
// it, the same shape tinyrange-cc's cmd/cc uses for its *initx.ExitError
// so main can stay a thin os.Exit switch and run stays testable.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func run() error {
	hartCount := flag.Int("harts", 0, "number of simulated harts (0 = config default)")
	ticks := flag.Int("ticks", 20, "number of timer ticks to drive per hart before shutting down")
	flag.Parse()

	cfg := bootcfg.Default()
	if *hartCount > 0 {
		cfg.HartCount = *hartCount
	}

	log := klog.New(os.Stdout, 0)
	log.Info("booting", "harts", cfg.HartCount, "preemption_slice", cfg.PreemptionSlice)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	harts := hartmeta.NewRegistry()
	cores := make([]*csr.Core, cfg.HartCount)
	for i := range cores {
		core := &csr.Core{}
		core.WriteSie(csr.DefaultSIEMask) // boot enables interrupts before scheduling anything
		cores[i] = core
		meta := &hartmeta.HartMeta{HartID: uint64(i), Core: core, PLIC: fakeHartPLIC{}}
		if err := harts.Insert(core, meta); err != nil {
			return fmt.Errorf("boot: %w", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, core := range cores {
		hartID := uint64(i)
		g.Go(func() error {
			return runHart(gctx, klog.New(os.Stdout, hartID), harts, core, hartID, cfg, *ticks)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return &exitError{code: 1, err: fmt.Errorf("hart loop: %w", err)}
	}
	log.Info("all harts halted")
	return nil
}

// runHart boots one hart: builds its own scheduler, table and timer
// queue, spawns demo processes, then drives ticks worth of simulated
// timer interrupts through the trap dispatcher, letting the
// round-robin scheduler pick between them. Each hart is fully
// independent except for the shared hart registry, mirroring spec.md
// §3's split between per-hart state and the cross-hart registry.
func runHart(ctx context.Context, log *slog.Logger, harts *hartmeta.Registry, core *csr.Core, hartID uint64, cfg bootcfg.Config, ticks int) error {
	caller := sbi.NewFake()
	table := process.NewTable()
	tq := timerqueue.New(caller)
	sched := process.NewScheduler(table, tq, caller)
	router := plic.New(fakeController{})
	timeouts := timeout.NewRegistry()

	d := &trap.Dispatcher{
		Log:     log,
		Harts:   harts,
		Wakers:  &iwaker.Queue{},
		Timer:   tq,
		Sched:   sched,
		PLIC:    router,
		Timeout: timeouts,
	}

	spawnDemoProcesses(core, table, log)

	tq.Push(timerqueue.Event{Instant: cfg.PreemptionSlice, Cause: timerqueue.ContextSwitch})

	// RunSlice, driven through HandleTimer, calls Scheduler.Shutdown
	// itself once nothing but idles would remain (spec.md §4.G); the
	// tick budget below is just an upper bound on how long this hart is
	// willing to wait for that to happen on its own.
	i := 0
	for ; i < ticks && !caller.ShutdownHit; i++ {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		d.Enter(ctx, core, hartID, 0, trap.CauseTimer|1<<63)
	}

	log.Info("hart finished", "ticks_run", i, "shutdown", caller.ShutdownHit)
	return nil
}

// spawnDemoProcesses seeds the table with a few cooperative counters,
// standing in for the initial supervisor processes spec.md §2's
// data-flow summary says boot spawns before enabling interrupts. Every
// suspension point goes through syscall.Dispatch rather than calling
// rc.Yield directly, the same path a real supervisor process drives by
// raising SSIP (see internal/syscall's package doc for why this hosted
// build calls it directly instead).
func spawnDemoProcesses(core *csr.Core, table *process.Table, log *slog.Logger) {
	for i := 0; i < 3; i++ {
		n := i
		table.Spawn(core, false, fmt.Sprintf("counter-%d", n), uint64(n), func(rc *process.RunContext) {
			for round := 0; round < 5; round++ {
				log.Debug("counter tick", "process", n, "round", round)
				syscall.Dispatch(rc, core, log, syscall.Yield, [6]uint64{})
			}
			syscall.Dispatch(rc, core, log, syscall.Exit, [6]uint64{0})
		})
	}
}

// fakeHartPLIC satisfies hartmeta.PLICHandle for the demo harness, which
// has no real per-hart interrupt claim/complete source wired up.
type fakeHartPLIC struct{}

func (fakeHartPLIC) Claim() uint32   { return 0 }
func (fakeHartPLIC) Complete(uint32) {}

// fakeController satisfies plic.Controller the same way: nothing in the
// demo harness raises an external interrupt, so every claim is spurious.
type fakeController struct{}

func (fakeController) Claim(uint32) uint32     { return 0 }
func (fakeController) Complete(uint32, uint32) {}
