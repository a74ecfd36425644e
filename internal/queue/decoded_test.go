package queue

import (
	"context"
	"testing"
	"time"

	"github.com/esp-sensor-hub/bridge/internal/frame"
)

func TestDecodedQueueEnqueueDequeueOrder(t *testing.T) {
	q := NewDecodedQueue(4)
	for i := 0; i < 3; i++ {
		rec := &DecodedRecord{Header: frame.Header{Seq: uint16(i)}}
		if !q.EnqueueWithTimeout(rec, 10*time.Millisecond) {
			t.Fatalf("EnqueueWithTimeout(%d) = false, want true", i)
		}
	}

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		rec, ok := q.DequeueWithTimeout(ctx, 10*time.Millisecond)
		if !ok {
			t.Fatalf("DequeueWithTimeout(%d) ok = false", i)
		}
		if rec.Header.Seq != uint16(i) {
			t.Fatalf("Seq = %v, want %v (strict arrival order)", rec.Header.Seq, i)
		}
	}
}

func TestDecodedQueueDropsOldestWhenFull(t *testing.T) {
	q := NewDecodedQueue(1)
	first := &DecodedRecord{Header: frame.Header{Seq: 1}}
	second := &DecodedRecord{Header: frame.Header{Seq: 2}}

	if !q.EnqueueWithTimeout(first, 10*time.Millisecond) {
		t.Fatal("first EnqueueWithTimeout = false, want true")
	}
	if q.EnqueueWithTimeout(second, 10*time.Millisecond) {
		t.Fatal("second EnqueueWithTimeout = true, want false (oldest record evicted)")
	}

	rec, ok := q.DequeueWithTimeout(context.Background(), 10*time.Millisecond)
	if !ok || rec.Header.Seq != 2 {
		t.Fatalf("expected the newest record to survive the eviction, got %+v ok=%v", rec, ok)
	}
	if q.Depth() != 0 {
		t.Fatalf("Depth() = %d, want 0 (exactly one record survived)", q.Depth())
	}
}

func TestDecodedQueueDequeueTimeout(t *testing.T) {
	q := NewDecodedQueue(1)
	_, ok := q.DequeueWithTimeout(context.Background(), 10*time.Millisecond)
	if ok {
		t.Fatal("DequeueWithTimeout on an empty queue, want ok=false")
	}
}
