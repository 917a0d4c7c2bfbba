package faucet

import (
	"context"
	"testing"
	"time"
)

func TestQueueDeduplicates(t *testing.T) {
	queue := NewPayoutQueue()

	if !queue.Enqueue("cosmos1xyz", "chainA") {
		t.Fatal("first enqueue should add an entry")
	}
	if queue.Enqueue("cosmos1xyz", "chainA") {
		t.Fatal("second enqueue of the same address must be a no-op")
	}
	if queue.Len() != 1 {
		t.Fatalf("expected exactly one entry, got %d", queue.Len())
	}
}

func TestQueueFIFO(t *testing.T) {
	queue := NewPayoutQueue()
	addresses := []string{"cosmos1a", "cosmos1b", "cosmos1c"}
	for _, addr := range addresses {
		queue.Enqueue(addr, "chainA")
	}
	// Re-enqueue of the first address must not change its position.
	queue.Enqueue("cosmos1a", "chainA")

	for _, want := range addresses {
		entry, ok := queue.Dequeue()
		if !ok {
			t.Fatalf("expected entry %s", want)
		}
		if entry.Address != want {
			t.Fatalf("expected %s, got %s", want, entry.Address)
		}
	}
	if _, ok := queue.Dequeue(); ok {
		t.Fatal("expected queue to be drained")
	}
}

func TestQueueAllowsReEnqueueAfterDequeue(t *testing.T) {
	queue := NewPayoutQueue()
	queue.Enqueue("cosmos1xyz", "chainA")
	if _, ok := queue.Dequeue(); !ok {
		t.Fatal("dequeue failed")
	}
	if !queue.Enqueue("cosmos1xyz", "chainA") {
		t.Fatal("address should be enqueueable again once dequeued")
	}
}

func TestQueueWaitWakesOnEnqueue(t *testing.T) {
	queue := NewPayoutQueue()
	done := make(chan error, 1)
	go func() {
		done <- queue.Wait(context.Background())
	}()

	time.Sleep(10 * time.Millisecond)
	queue.Enqueue("cosmos1xyz", "chainA")

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("wait: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("wait did not wake on enqueue")
	}
}

func TestQueueWaitHonoursContext(t *testing.T) {
	queue := NewPayoutQueue()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- queue.Wait(ctx)
	}()
	cancel()

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected context error")
		}
	case <-time.After(time.Second):
		t.Fatal("wait did not observe cancellation")
	}
}

func TestQueueWaitReturnsImmediatelyWhenNonEmpty(t *testing.T) {
	queue := NewPayoutQueue()
	queue.Enqueue("cosmos1xyz", "chainA")
	// Drain the wake signal to prove Wait checks the queue itself.
	select {
	case <-queue.wake:
	default:
	}
	if err := queue.Wait(context.Background()); err != nil {
		t.Fatalf("wait on non-empty queue: %v", err)
	}
}
