package timerqueue

import (
	"context"
	"testing"
)

type fakeSBI struct {
	lastInstant uint64
	calls       int
}

func (f *fakeSBI) SetTimer(_ context.Context, instant uint64) error {
	f.lastInstant = instant
	f.calls++
	return nil
}

func TestPopEarliestMonotonic(t *testing.T) {
	q := New(&fakeSBI{})
	q.Push(Event{Instant: 500, Cause: TimeoutFuture})
	q.Push(Event{Instant: 100, Cause: ContextSwitch})
	q.Push(Event{Instant: 300, Cause: TimeoutFuture})

	var last uint64
	for {
		ev, ok := q.PopEarliest()
		if !ok {
			break
		}
		if ev.Instant < last {
			t.Fatalf("PopEarliest returned %d after %d: not monotonic", ev.Instant, last)
		}
		last = ev.Instant
	}
}

func TestTieBreakContextSwitchFirst(t *testing.T) {
	q := New(&fakeSBI{})
	q.Push(Event{Instant: 100, Cause: TimeoutFuture})
	q.Push(Event{Instant: 100, Cause: ContextSwitch})

	ev, ok := q.PopEarliest()
	if !ok || ev.Cause != ContextSwitch {
		t.Fatalf("expected ContextSwitch to win the tie, got %+v ok=%v", ev, ok)
	}
}

func TestArmUsesEarliestInstant(t *testing.T) {
	sbi := &fakeSBI{}
	q := New(sbi)
	q.Push(Event{Instant: 900, Cause: ContextSwitch})
	q.Push(Event{Instant: 200, Cause: TimeoutFuture})

	if err := q.Arm(context.Background()); err != nil {
		t.Fatalf("Arm returned error: %v", err)
	}
	if sbi.lastInstant != 200 {
		t.Fatalf("Arm armed instant %d, want 200", sbi.lastInstant)
	}
}

func TestArmOnEmptyQueueErrors(t *testing.T) {
	q := New(&fakeSBI{})
	if err := q.Arm(context.Background()); err == nil {
		t.Fatalf("expected error arming an empty queue")
	}
}
