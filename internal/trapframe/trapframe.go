// Package trapframe models the TrapFrame from spec.md §3: the saved
// volatile state of a process (or a hart's boot context) plus the
// bookkeeping the trap handler and scheduler need.
//
// Re-architecture note (spec.md §9, "raw CSR-pointed shared mutable
// state"): rather than letting every caller dereference the scratch CSR
// unchecked, access to "whichever frame is current on this hart" goes
// through WithCurrent, a scoped operation that looks up the frame already
// published on the hart, checks the hartid invariant, runs the caller's
// function, and checks the invariant again afterwards. WithCurrent does
// not publish or retarget the scratch pointer itself; Publish and
// Retarget do that.
package trapframe

import (
	"fmt"
	"sync/atomic"

	"github.com/tinyrange/rvkernel/internal/csr"
)

// Flags is the bitset attached to a frame, per spec.md §3.
type Flags uint32

const (
	FlagInterruptContext Flags = 1 << iota
	FlagHasTrappedBefore
	FlagDoubleFaulting
	FlagIsCurrent
)

// NumGPR is the number of general-purpose integer register slots RV64
// exposes (x0..x31); x0 is hardwired to zero but is still saved/restored
// as a slot for addressing uniformity from assembly.
const NumGPR = 32

// Frame is a process's (or a hart's boot) trap frame. A Frame is always
// handled through a pointer; "pinned" in spec.md §3 is realized simply by
// never copying a Frame by value once it is live. Go's garbage collector
// does not relocate heap objects, so a *Frame's address is stable for the
// lifetime of the allocation without any separate pinning API.
type Frame struct {
	GPR [NumGPR]uint64
	PC  uint64

	hartID atomic.Uint64
	pid    atomic.Uint64

	// InterruptSP is the interrupt (kernel) stack pointer reloaded by the
	// trap entry sequence before the dispatcher is called.
	InterruptSP uint64

	flags atomic.Uint32
}

// New allocates a zeroed frame for hartID/pid. Processes get one at
// spawn time; each hart gets one boot frame at init time (spec.md §3
// lifecycle).
func New(hartID, pid uint64) *Frame {
	f := &Frame{}
	f.hartID.Store(hartID)
	f.pid.Store(pid)
	return f
}

func (f *Frame) HartID() uint64 { return f.hartID.Load() }
func (f *Frame) PID() uint64    { return f.pid.Load() }

// SetPID updates the owning pid. Boot frames keep pid 1 for their whole
// life; a process's frame gets its pid from New at spawn time.
func (f *Frame) SetPID(pid uint64) { f.pid.Store(pid) }

func (f *Frame) Flags() Flags        { return Flags(f.flags.Load()) }
func (f *Frame) SetFlag(fl Flags)    { f.orFlags(uint32(fl)) }
func (f *Frame) ClearFlag(fl Flags)  { f.andFlags(^uint32(fl)) }
func (f *Frame) HasFlag(fl Flags) bool {
	return f.flags.Load()&uint32(fl) != 0
}

func (f *Frame) orFlags(bits uint32) {
	for {
		old := f.flags.Load()
		if f.flags.CompareAndSwap(old, old|bits) {
			return
		}
	}
}

func (f *Frame) andFlags(mask uint32) {
	for {
		old := f.flags.Load()
		if f.flags.CompareAndSwap(old, old&mask) {
			return
		}
	}
}

// token is the implementation-defined value handed to csr.Core.PublishFrame;
// on the hosted build it's simply the frame's address reinterpreted as a
// uint64, which is all a portable "pointer" needs to be to round-trip.
func token(f *Frame) uint64 {
	return uint64(uintptr(ptrOf(f)))
}

// Publish makes f the hart's current frame by swapping the scratch CSR,
// per spec.md §3/§4.A, and sets f's IsCurrent flag. The previously
// published frame is replaced without being returned, and its IsCurrent
// flag is left as it was.
func Publish(core *csr.Core, f *Frame) {
	f.SetFlag(FlagIsCurrent)
	core.PublishFrame(token(f), f)
}

// Retarget republishes boot as current, clearing f's IsCurrent flag first.
// spec.md §3 requires this before destroying a frame that might be
// current: "if the current frame is about to be destroyed, the scratch
// CSR must first be retargeted at the per-hart boot frame."
func Retarget(core *csr.Core, f, boot *Frame) {
	if f != nil {
		f.ClearFlag(FlagIsCurrent)
	}
	Publish(core, boot)
}

// Current returns the frame currently published on core, or nil.
func Current(core *csr.Core) *Frame {
	fa := core.CurrentFrame()
	if fa == nil {
		return nil
	}
	f, ok := fa.(*Frame)
	if !ok {
		return nil
	}
	return f
}

// IsInterruptContext reports whether the frame currently published on
// core has FlagInterruptContext set, the question the shared and
// interrupt lock families (spec.md §4.C) need answered before deciding
// whether to touch sie.
func IsInterruptContext(core *csr.Core) bool {
	f := Current(core)
	return f != nil && f.HasFlag(FlagInterruptContext)
}

// WithCurrent runs fn with the frame that is current on core, checking
// the "current frame's hartid equals the executing hart" invariant from
// spec.md §3 both before and after fn runs. It is the scoped replacement
// for unchecked scratch-CSR dereferences described in spec.md §9.
func WithCurrent(core *csr.Core, hartID uint64, fn func(*Frame)) error {
	f := Current(core)
	if f == nil {
		return fmt.Errorf("trapframe: no frame published on hart %d", hartID)
	}
	if f.HartID() != hartID {
		return fmt.Errorf("trapframe: current frame hartid %d != executing hart %d", f.HartID(), hartID)
	}
	fn(f)
	if cur := Current(core); cur == nil || cur.HartID() != hartID {
		return fmt.Errorf("trapframe: hartid invariant broken on hart %d after callback", hartID)
	}
	return nil
}
