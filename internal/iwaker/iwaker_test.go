package iwaker

import "testing"

func TestDrainRunsFIFOOrder(t *testing.T) {
	var q Queue
	var order []int
	q.Push(func() { order = append(order, 1) })
	q.Push(func() { order = append(order, 2) })
	q.Drain()
	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Fatalf("unexpected order: %v", order)
	}
}

func TestDrainCapturesClosuresQueuedDuringDrain(t *testing.T) {
	var q Queue
	var ran []string
	q.Push(func() {
		ran = append(ran, "first")
		q.Push(func() { ran = append(ran, "nested") })
	})
	q.Drain()
	if len(ran) != 2 || ran[0] != "first" || ran[1] != "nested" {
		t.Fatalf("expected nested closure to run within same Drain, got %v", ran)
	}
	if q.Len() != 0 {
		t.Fatalf("queue should be empty after Drain converges")
	}
}
