// Package csr exposes typed read/write access to the supervisor CSRs this
// kernel touches (sie, sip, sstatus, stvec, satp, sscratch) plus
// fence.vma, per spec.md §4.A.
//
// A real hart's CSR file is hart-local hardware; there is exactly one
// sie/sip/sstatus/sscratch per hart, and the hardware binds every csrr/
// csrw to whichever hart executes it. Hosting this kernel atop the
// ordinary Go runtime (see SPEC_FULL.md §0; a real freestanding boot
// is out of reach for the stock toolchain) means harts are goroutines,
// not physical threads, so the per-hart register file is modeled
// explicitly as a *Core value threaded through every call instead of
// addressed implicitly by "whichever hart is running now". This is the
// idiomatic-Go reading of "hart-local register": explicit state instead
// of thread-locals.
//
// load_hartid() in the spec reads the hartid out of the current trap
// frame via the scratch CSR; Core.LoadHartID mirrors that by reading the
// hartid out of the frame PublishFrame recorded together with the scratch
// value, rather than caching a separate hartid, so the invariant "the
// frame's hartid equals the executing hart" stays the single source of
// truth.
package csr

import "sync/atomic"

// FrameAccessor is satisfied by *trapframe.Frame; csr only needs to read
// the hartid field without importing the trapframe package (which itself
// depends on csr for the scratch-pointer type), breaking an import cycle.
type FrameAccessor interface {
	HartID() uint64
}

// Core is one hart's simulated supervisor CSR file.
type Core struct {
	sie      atomic.Uint64
	sip      atomic.Uint64
	sstatus  atomic.Uint64
	stvec    atomic.Uint64
	satp     atomic.Uint64
	sscratch atomic.Uint64 // holds the current TrapFrame's address (uintptr-sized)

	// currentFrame backs LoadHartID without requiring pointer<->uint64
	// round-tripping through unsafe.Pointer in portable builds.
	currentFrame atomic.Pointer[frameHolder]

	// lockDepth is the per-hart shared-lock nesting count from spec.md
	// §4.C: incremented on acquiring a shared lock outside interrupt
	// context, decremented on release; sie is restored only when it
	// returns to zero.
	lockDepth atomic.Int64
}

type frameHolder struct {
	frame FrameAccessor
}

// sstatus bits this kernel cares about (SIE: supervisor interrupt enable).
const (
	SstatusSIE uint64 = 1 << 1
)

// DefaultSIEMask is the "default sie mask" spec.md §4.H restores on every
// context switch and §4.C re-enables when a shared lock's count returns
// to zero: supervisor software, timer, and external interrupts.
const DefaultSIEMask uint64 = SIESSIE | SIESTIE | SIESEIP

const (
	SIESSIE uint64 = 1 << 1 // supervisor software interrupt enable
	SIESTIE uint64 = 1 << 5 // supervisor timer interrupt enable
	SIESEIP uint64 = 1 << 9 // supervisor external interrupt enable
)

func (c *Core) ReadSie() uint64  { return c.sie.Load() }
func (c *Core) WriteSie(v uint64) { c.sie.Store(v) }

func (c *Core) ReadSip() uint64   { return c.sip.Load() }
func (c *Core) WriteSip(v uint64) { c.sip.Store(v) }

// SIPSSIP is the supervisor-software-interrupt-pending bit, the trigger
// for the in-kernel syscall mechanism (spec.md §4.I); SetSSIP sets it and
// ClearSSIP clears it.
const SIPSSIP uint64 = 1 << 1

func (c *Core) SetSSIP() {
	for {
		old := c.sip.Load()
		if c.sip.CompareAndSwap(old, old|SIPSSIP) {
			return
		}
	}
}

func (c *Core) ClearSSIP() {
	for {
		old := c.sip.Load()
		if c.sip.CompareAndSwap(old, old&^SIPSSIP) {
			return
		}
	}
}

func (c *Core) ReadSstatus() uint64   { return c.sstatus.Load() }
func (c *Core) WriteSstatus(v uint64) { c.sstatus.Store(v) }

// DisableInterrupts clears SIE and returns the previous sie mask so the
// caller can restore it verbatim (used by lock/shared).
func (c *Core) DisableInterrupts() uint64 {
	return c.sie.Swap(0)
}

// RestoreInterrupts writes back a previously-saved sie mask.
func (c *Core) RestoreInterrupts(mask uint64) {
	c.sie.Store(mask)
}

func (c *Core) ReadStvec() uint64   { return c.stvec.Load() }
func (c *Core) WriteStvec(v uint64) { c.stvec.Store(v) }

func (c *Core) ReadSatp() uint64   { return c.satp.Load() }
func (c *Core) WriteSatp(v uint64) { c.satp.Store(v) }

func (c *Core) ReadSscratch() uint64   { return c.sscratch.Load() }
func (c *Core) WriteSscratch(v uint64) { c.sscratch.Store(v) }

// PublishFrame swaps the scratch CSR atomically and records which frame
// is current, implementing the invariant from spec.md §3: "the scratch
// CSR always holds a valid pointer to exactly one TrapFrame". raw is an
// implementation-defined token (the frame's address on assembly-backed
// targets; a pointer on hosted ones). Callers only ever pass back
// whatever they got from a prior PublishFrame/ReadSscratch.
func (c *Core) PublishFrame(raw uint64, frame FrameAccessor) uint64 {
	prev := c.sscratch.Swap(raw)
	c.currentFrame.Store(&frameHolder{frame: frame})
	return prev
}

// CurrentFrame returns the frame last published with PublishFrame, or nil
// before boot has published anything.
func (c *Core) CurrentFrame() FrameAccessor {
	h := c.currentFrame.Load()
	if h == nil {
		return nil
	}
	return h.frame
}

// LoadHartID returns the hartid by reading it out of the current trap
// frame (the one last published with PublishFrame), per spec.md §4.A;
// never a cached hartid.
func (c *Core) LoadHartID() uint64 {
	f := c.CurrentFrame()
	if f == nil {
		return 0
	}
	return f.HartID()
}

// IncLockDepth records entry into a shared-lock critical section and
// returns the new depth.
func (c *Core) IncLockDepth() int64 { return c.lockDepth.Add(1) }

// DecLockDepth records exit from a shared-lock critical section and
// returns the new depth.
func (c *Core) DecLockDepth() int64 { return c.lockDepth.Add(-1) }

// LockDepth returns the current shared-lock nesting depth.
func (c *Core) LockDepth() int64 { return c.lockDepth.Load() }

// FenceVMA executes a full TLB fence (sfence.vma x0, x0: every address,
// every address-space identifier).
// Identity mapping means this kernel never actually needs to invalidate
// a remapped translation, but the primitive is exposed because spec.md
// §4.A names it explicitly as part of the hart primitive surface.
func (c *Core) FenceVMA() {
	fenceVMA()
}

// WFI executes wait-for-interrupt, used by the scheduler's idle path
// (spec.md §4.G) to park a hart between timer ticks instead of spinning.
func (c *Core) WFI() {
	wfi()
}

// FenceRW issues a full read/write memory fence. spec.md §5 requires one
// on both the make_available and used-ring-poll paths around every
// VirtIO descriptor handoff.
func FenceRW() {
	fenceRW()
}
