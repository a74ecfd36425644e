package queue

import (
	"context"
	"time"

	"github.com/esp-sensor-hub/bridge/internal/frame"
)

// DecodedRecord is what the receive pipeline hands to the publish
// pipeline: a decoded header, a copy of the payload bytes, and the
// link metadata observed at reception time.
type DecodedRecord struct {
	Header     frame.Header
	Payload    []byte
	RSSI       int8
	SNR        int8
	ReceivedAt time.Time
}

// DecodedQueue is the bounded, multi-producer/single-consumer channel
// carrying DecodedRecords from receive to publish, in strict FIFO
// arrival order. Overflow policy is drop-oldest: if the queue is still
// full after the enqueue timeout, the oldest queued record is evicted
// so the incoming one is admitted. Fresh traffic stays deliverable
// while the broker is down; what backlogs off the tail is the stalest.
type DecodedQueue struct {
	ch chan *DecodedRecord
}

// NewDecodedQueue returns a queue buffering up to capacity records.
func NewDecodedQueue(capacity int) *DecodedQueue {
	if capacity <= 0 {
		capacity = 64
	}
	return &DecodedQueue{ch: make(chan *DecodedRecord, capacity)}
}

// EnqueueWithTimeout enqueues rec, waiting up to timeout for room. If
// the queue is still full when the timeout elapses, the oldest queued
// record is evicted to make room and EnqueueWithTimeout reports false:
// rec itself was admitted, but a record was lost.
func (q *DecodedQueue) EnqueueWithTimeout(rec *DecodedRecord, timeout time.Duration) bool {
	select {
	case q.ch <- rec:
		return true
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case q.ch <- rec:
		return true
	case <-timer.C:
	}

	for {
		select {
		case q.ch <- rec:
			return false
		default:
			// Evict the head; the consumer may race us for it, which is
			// fine either way -- a slot opens.
			select {
			case <-q.ch:
			default:
			}
		}
	}
}

// Depth reports the approximate number of records waiting.
func (q *DecodedQueue) Depth() int {
	return len(q.ch)
}

// DequeueWithTimeout blocks for up to timeout waiting for the next
// record, in arrival order.
func (q *DecodedQueue) DequeueWithTimeout(ctx context.Context, timeout time.Duration) (*DecodedRecord, bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case rec := <-q.ch:
		return rec, true
	case <-timer.C:
		return nil, false
	case <-ctx.Done():
		return nil, false
	}
}
