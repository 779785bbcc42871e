// Package plic implements the external-interrupt router from spec.md
// §4.J: a concurrent map of interrupt-id -> handler closures, dispatched
// after the controller claims the highest-priority pending interrupt.
//
// The PLIC register layout itself (priority/pending/enable/threshold/
// claim-complete offsets, per spec.md §6) is named in spec.md §1 as an
// external collaborator; Controller is the named interface this package
// depends on, grounded on the register semantics tinyrange-cc's
// internal/hv/riscv/rv64/plic.go implements (claim clears pending and
// records the claimed source; complete clears the claimed record).
package plic

import (
	"github.com/tinyrange/rvkernel/internal/csr"
	"github.com/tinyrange/rvkernel/internal/lock/shared"
)

// Controller is the minimal PLIC hardware surface the router needs.
// Context is "1 + hartid*2" per spec.md §6 (the supervisor context);
// callers are responsible for selecting it.
type Controller interface {
	Claim(context uint32) uint32
	Complete(context uint32, id uint32)
}

// Handler is a registered interrupt callback.
type Handler func(id uint32)

type registration struct {
	id      uint32
	handler Handler
}

// Guard removes exactly the registration it was returned for when
// dropped, by pointer identity (spec.md §4.J / testable property 6).
type Guard struct {
	router *Router
	reg    *registration
}

// Router is the concurrent interrupt-id -> handlers map.
type Router struct {
	mu       shared.Mutex
	handlers map[uint32][]*registration
	ctrl     Controller
}

// New creates a Router backed by ctrl.
func New(ctrl Controller) *Router {
	return &Router{handlers: make(map[uint32][]*registration), ctrl: ctrl}
}

// Register appends fn as a handler for interrupt id and returns a Guard
// that removes exactly this registration when Drop(core) is called.
func (r *Router) Register(core *csr.Core, id uint32, fn Handler) *Guard {
	r.mu.Lock(core)
	defer r.mu.Unlock(core)
	reg := &registration{id: id, handler: fn}
	r.handlers[id] = append(r.handlers[id], reg)
	return &Guard{router: r, reg: reg}
}

// Drop unregisters g's handler, using core to drive the router's shared
// lock. Idempotent: dropping an already-dropped (or zero) guard is a
// no-op, and a subsequent interrupt with the same id will not invoke the
// removed handler (testable property 6).
func (g *Guard) Drop(core *csr.Core) {
	if g == nil || g.router == nil {
		return
	}
	r := g.router
	r.mu.Lock(core)
	defer r.mu.Unlock(core)
	list := r.handlers[g.reg.id]
	for i, reg := range list {
		if reg == g.reg {
			r.handlers[g.reg.id] = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	g.router = nil
}

// Dispatch claims the highest-priority pending interrupt on context,
// runs every handler registered for it, then completes it at the
// controller, per spec.md §4.B's external-interrupt cause.
func (r *Router) Dispatch(core *csr.Core, context uint32) {
	id := r.ctrl.Claim(context)
	if id == 0 {
		return // spurious claim; nothing pending
	}
	r.mu.Lock(core)
	list := append([]*registration(nil), r.handlers[id]...)
	r.mu.Unlock(core)

	for _, reg := range list {
		reg.handler(id)
	}
	r.ctrl.Complete(context, id)
}
