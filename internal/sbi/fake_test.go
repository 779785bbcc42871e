package sbi

import (
	"context"
	"testing"
)

func TestFakeShutdownHook(t *testing.T) {
	f := NewFake()
	hit := false
	f.OnShutdown = func() { hit = true }
	if err := f.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown returned error: %v", err)
	}
	if !hit || !f.ShutdownHit {
		t.Fatalf("shutdown hook/flag not observed")
	}
}

func TestFakeHartStartUpdatesStatus(t *testing.T) {
	f := NewFake()
	if err := f.HartStart(context.Background(), 1, 0x80000000, 0); err != nil {
		t.Fatalf("HartStart error: %v", err)
	}
	st, err := f.HartGetStatus(context.Background(), 1)
	if err != nil {
		t.Fatalf("HartGetStatus error: %v", err)
	}
	if st != HartStarted {
		t.Fatalf("status = %v, want HartStarted", st)
	}
}
