// Package syscall implements the in-kernel syscall dispatch from
// spec.md §4.I: the syscall number enum, Dispatch, and the reserved-number
// error path.
//
// On real hardware a process requests a kernel service by setting up its
// trap frame's argument registers and raising the supervisor-software
// interrupt (csr.Core.SetSSIP). In this hosted build there is no trap
// frame to decode arguments out of, so a process calls Dispatch directly
// from its own goroutine; the trap dispatcher's software-interrupt path
// only clears SSIP and does not call into this package.
package syscall

import (
	"fmt"
	"log/slog"

	"github.com/tinyrange/rvkernel/internal/csr"
	"github.com/tinyrange/rvkernel/internal/kpanic"
	"github.com/tinyrange/rvkernel/internal/process"
)

// Number is a syscall number, per spec.md §6.
type Number uint64

const (
	Exit  Number = 1
	Yield Number = 2

	Open      Number = 0x10
	Read      Number = 0x11
	Write     Number = 0x12
	Close     Number = 0x13
	Available Number = 0x14
	Seek      Number = 0x15
	Truncate  Number = 0x16
	Tell      Number = 0x17

	FutureCreate   Number = 0x20
	FutureComplete Number = 0x21
	FutureIsDone   Number = 0x22
	FutureAwait    Number = 0x23
	FutureClone    Number = 0x24
	FutureOr       Number = 0x25
)

func (n Number) String() string {
	switch n {
	case Exit:
		return "Exit"
	case Yield:
		return "Yield"
	case Open:
		return "Open"
	case Read:
		return "Read"
	case Write:
		return "Write"
	case Close:
		return "Close"
	case Available:
		return "Available"
	case Seek:
		return "Seek"
	case Truncate:
		return "Truncate"
	case Tell:
		return "Tell"
	case FutureCreate:
		return "FutureCreate"
	case FutureComplete:
		return "FutureComplete"
	case FutureIsDone:
		return "FutureIsDone"
	case FutureAwait:
		return "FutureAwait"
	case FutureClone:
		return "FutureClone"
	case FutureOr:
		return "FutureOr"
	default:
		return fmt.Sprintf("syscall(0x%x)", uint64(n))
	}
}

// ErrReserved is returned by Dispatch for a syscall number that spec.md
// names but leaves unimplemented: the file-descriptor and future-handle
// syscalls are reserved numbers with no backing subsystem, since the
// spec does not define a filesystem or a userspace future registry to
// back them against.
var ErrReserved = fmt.Errorf("syscall: number reserved, not implemented")

// ExitCode is the argument Exit expects in a0.
type ExitCode uint64

// Result carries a syscall's outcome back into the trap frame's return
// registers.
type Result struct {
	Value uint64
	Err   error
}

// Dispatch executes one syscall on behalf of p, reading its arguments
// out of args (the frame's a0..a5, per spec.md §6) and returning the
// value to place back in a0 plus any error.
//
// Exit and Yield are the only numbers with real semantics in this
// kernel; everything else returns ErrReserved rather than silently
// doing nothing, so a caller can tell "reserved" apart from "ran and
// returned zero".
//
// Per spec.md §4.I, issuing a syscall with interrupts disabled is
// fatal: it is how a process holding a shared-lock (lock/shared clears
// sie for the duration) ends up calling into the syscall path, which
// would deadlock against itself on a retry. Dispatch checks this before
// running anything else and escalates via kpanic.Hart rather than
// letting the call proceed.
func Dispatch(rc *process.RunContext, core *csr.Core, log *slog.Logger, n Number, args [6]uint64) Result {
	if core.ReadSie() == 0 {
		kpanic.Hart(log, "syscall issued with interrupts disabled", "pid", rc.Proc().PID, "syscall", n)
	}
	switch n {
	case Exit:
		rc.Exit(args[0]) // never returns
		return Result{}
	case Yield:
		rc.Yield()
		return Result{}
	default:
		return Result{Err: ErrReserved}
	}
}
