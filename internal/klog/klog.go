// Package klog provides the kernel-wide structured logger: log/slog with a
// handler that writes to the UART collaborator and colors the severity
// prefix with ANSI escapes, per spec.md §7 ("all logs go to the UART with
// ANSI coloring and a textual severity prefix").
//
// Grounded on tinyrange-cc's pervasive log/slog usage (e.g.
// internal/devices/virtio/mmio.go) and its terminal color helper
// (internal/term/terminal.go), which is why this package reaches for
// github.com/charmbracelet/x/ansi instead of hand-rolling escape codes.
package klog

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/charmbracelet/x/ansi"
)

// Writer is the subset of the UART collaborator klog needs. The real UART
// byte driver lives outside this module's scope (spec.md §1); anything
// satisfying io.Writer, including a 16550A driver, works here.
type Writer = io.Writer

// Handler is a slog.Handler that renders one colored line per record to a
// UART-like Writer. It is safe for concurrent use by multiple harts; the
// spec requires console output to remain legible when interleaved from
// several harts, so writes from every Handler (each hart has its own)
// are serialized with one package-wide mutex (sync.Mutex is adequate
// here: klog is never called from the innermost trap-save sequence, only
// from ordinary dispatcher/driver code that may already be running with
// interrupts masked).
type Handler struct {
	w      Writer
	attrs  []slog.Attr
	groups []string
}

// writeMu serializes record output across all Handlers.
var writeMu sync.Mutex

// NewHandler builds a klog.Handler writing to w.
func NewHandler(w Writer) *Handler {
	return &Handler{w: w}
}

var _ slog.Handler = (*Handler)(nil)

func (h *Handler) Enabled(context.Context, slog.Level) bool { return true }

func severityLabel(l slog.Level) string {
	switch {
	case l >= slog.LevelError:
		return "ERROR"
	case l >= slog.LevelWarn:
		return "WARN"
	case l >= slog.LevelInfo:
		return "INFO"
	default:
		return "DEBUG"
	}
}

// colorFor returns the SGR sequence for a severity level.
func colorFor(l slog.Level) string {
	switch {
	case l >= slog.LevelError:
		return ansi.SGR("1", "31") // bold red
	case l >= slog.LevelWarn:
		return ansi.SGR("33") // yellow
	case l >= slog.LevelInfo:
		return ansi.SGR("36") // cyan
	default:
		return ansi.SGR("90") // bright black
	}
}

func (h *Handler) Handle(_ context.Context, r slog.Record) error {
	label := severityLabel(r.Level)
	reset := ansi.SGR("0")

	writeMu.Lock()
	defer writeMu.Unlock()

	fmt.Fprintf(h.w, "%s[%-5s]%s %s", colorFor(r.Level), label, reset, r.Message)
	for _, a := range h.attrs {
		fmt.Fprintf(h.w, " %s=%v", a.Key, a.Value)
	}
	r.Attrs(func(a slog.Attr) bool {
		fmt.Fprintf(h.w, " %s=%v", a.Key, a.Value)
		return true
	})
	fmt.Fprintln(h.w)
	return nil
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	n := &Handler{w: h.w, groups: h.groups}
	n.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return n
}

func (h *Handler) WithGroup(name string) slog.Handler {
	n := &Handler{w: h.w, attrs: h.attrs}
	n.groups = append(append([]string{}, h.groups...), name)
	return n
}

// New returns a *slog.Logger bound to w, with a "hart" attribute so every
// log line is attributable to the hart that produced it.
func New(w Writer, hartID uint64) *slog.Logger {
	return slog.New(NewHandler(w)).With("hart", hartID)
}
