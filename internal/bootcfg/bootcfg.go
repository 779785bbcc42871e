// Package bootcfg is the kernel's ambient configuration surface: the
// handful of values the boot path needs before any subsystem can read
// a device tree (component out of scope per spec.md §1), gathered into
// one struct the way a hosted service reads flags/env before it starts
// listening.
package bootcfg

import "time"

// Config holds the boot-time parameters this kernel's hosted demo
// harness needs. On real hardware most of these would be parsed out of
// the FDT blob passed in a1; the hosted simulation takes them directly
// since internal/fdt is a named-interface stub (spec.md §1 lists the
// FDT parser as an external collaborator, out of scope for this core).
type Config struct {
	HartCount       int           `json:"hart_count"`
	PreemptionSlice uint64        `json:"preemption_slice_ticks"`
	BlockImagePath  string        `json:"block_image_path"`
	LogLevel        string        `json:"log_level"`
	ShutdownGrace   time.Duration `json:"shutdown_grace"`
}

// Default returns the configuration the demo harness boots with absent
// any overrides.
func Default() Config {
	return Config{
		HartCount:       1,
		PreemptionSlice: 10_000_000,
		LogLevel:        "info",
		ShutdownGrace:   2 * time.Second,
	}
}
