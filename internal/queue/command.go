// Package queue implements the bounded command FIFO and the decoded-
// record queue that ties the receive and publish pipelines together.
//
// The command queue is backed by a mutex-guarded slice rather than a
// channel: its coalescing and expiry operations need to inspect and
// mutate arbitrary elements, something a channel cannot do. Channels are
// reserved for the decoded-record queue below, where strict FIFO
// hand-off -- not random-access mutation -- is all that is needed.
package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/esp-sensor-hub/bridge/internal/frame"
	"github.com/esp-sensor-hub/bridge/internal/radio"
)

// ErrQueueFull is returned by Enqueue when the command queue is already
// at capacity and the (target, type) pair is not already present.
var ErrQueueFull = errors.New("queue: command queue full")

// ErrBusy names the failure where the arbiter could not be acquired
// within its timeout. The queue's transmission path reports every
// failure as a false result and does not return this value.
var ErrBusy = errors.New("queue: radio arbiter busy")

// ErrRadioBusy names the failure where the driver's BUSY line never
// clears. Like ErrBusy, it is not returned by the queue's methods.
var ErrRadioBusy = errors.New("queue: radio busy line did not clear")

const (
	// DefaultCapacity is the bounded command queue size.
	DefaultCapacity = 10
	// DefaultExpiration is the hard expiration window for a queued command.
	DefaultExpiration = 5 * time.Minute

	retryQuietPeriod  = 50 * time.Millisecond
	busyClearPoll     = time.Millisecond
	busyClearTimeout  = time.Second
	postTransmitPause = 10 * time.Millisecond
	arbiterTimeout    = 5 * time.Second
)

// Entry is one queued command, addressed by (target, command type).
type Entry struct {
	Target      frame.DeviceID
	CommandType byte
	Params      []byte
	EnqueuedAt  time.Time
	Retries     int
}

// CommandQueue is the bounded, coalescing FIFO of pending commands.
type CommandQueue struct {
	mu         sync.Mutex
	entries    []*Entry
	capacity   int
	expiration time.Duration
	seq        uint16
}

// New returns an empty command queue. capacity <= 0 uses DefaultCapacity,
// expiration <= 0 uses DefaultExpiration.
func New(capacity int, expiration time.Duration) *CommandQueue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if expiration <= 0 {
		expiration = DefaultExpiration
	}
	return &CommandQueue{capacity: capacity, expiration: expiration}
}

// Enqueue adds or coalesces a command for target. An existing entry for
// the same (target, type) has its parameters replaced, retry counter
// reset to zero, and enqueue timestamp refreshed -- most-recent-wins,
// preventing duplicate accumulation. A brand new entry is appended if
// capacity allows, otherwise ErrQueueFull. Whenever an entry is stored,
// one immediate transmission is attempted: success removes the entry,
// a failure is silent and leaves it for RetryFor.
func (q *CommandQueue) Enqueue(arb *radio.Arbiter, target frame.DeviceID, cmdType byte, params []byte) error {
	q.mu.Lock()
	for _, e := range q.entries {
		if e.Target == target && e.CommandType == cmdType {
			e.Params = params
			e.Retries = 0
			e.EnqueuedAt = time.Now()
			q.mu.Unlock()
			if q.attempt(arb, e) {
				q.remove(e)
			}
			return nil
		}
	}
	if len(q.entries) >= q.capacity {
		q.mu.Unlock()
		return ErrQueueFull
	}
	e := &Entry{Target: target, CommandType: cmdType, Params: params, EnqueuedAt: time.Now()}
	q.entries = append(q.entries, e)
	q.mu.Unlock()

	if q.attempt(arb, e) {
		q.remove(e)
	}
	return nil
}

// ExpireOlderThan removes entries whose enqueue time is older than the
// queue's expiration window.
func (q *CommandQueue) ExpireOlderThan(now time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()
	kept := q.entries[:0]
	for _, e := range q.entries {
		if now.Sub(e.EnqueuedAt) < q.expiration {
			kept = append(kept, e)
		}
	}
	q.entries = kept
}

// RetryFor first expires stale entries, then retries every remaining
// entry targeting target: incrementing its retry counter and attempting
// transmission via the arbiter. A successful transmission removes the
// entry; a failure leaves it in place for the next trigger. A short
// quiet period separates consecutive retries to avoid radio
// back-pressure.
func (q *CommandQueue) RetryFor(arb *radio.Arbiter, target frame.DeviceID) {
	q.ExpireOlderThan(time.Now())

	q.mu.Lock()
	var targets []*Entry
	for _, e := range q.entries {
		if e.Target == target {
			targets = append(targets, e)
		}
	}
	q.mu.Unlock()

	for i, e := range targets {
		if i > 0 {
			time.Sleep(retryQuietPeriod)
		}
		q.mu.Lock()
		e.Retries++
		q.mu.Unlock()

		if q.attempt(arb, e) {
			q.remove(e)
		}
	}
}

func (q *CommandQueue) remove(target *Entry) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, e := range q.entries {
		if e == target {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			return
		}
	}
}

// Len reports the total number of queued commands across all targets.
func (q *CommandQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// SnapshotFor returns a copy of every entry currently queued for target,
// for the admin surface's pending-command view.
func (q *CommandQueue) SnapshotFor(target frame.DeviceID) []Entry {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []Entry
	for _, e := range q.entries {
		if e.Target == target {
			out = append(out, *e)
		}
	}
	return out
}

// attempt runs the transmission path for e and reports whether it
// succeeded: acquire the arbiter, wait for the BUSY line to clear,
// build the command frame, transmit, pause, restart receive.
func (q *CommandQueue) attempt(arb *radio.Arbiter, e *Entry) bool {
	ctx, cancel := context.WithTimeout(context.Background(), arbiterTimeout)
	defer cancel()

	lease, err := arb.Acquire(ctx)
	if err != nil {
		return false
	}

	deadline := time.Now().Add(busyClearTimeout)
	for lease.BusyLine() {
		if time.Now().After(deadline) {
			lease.Release()
			return false
		}
		time.Sleep(busyClearPoll)
	}

	q.mu.Lock()
	q.seq++
	seq := q.seq
	q.mu.Unlock()

	wire := frame.EncodeCommand(e.Target, seq, frame.CommandPayload{CommandType: e.CommandType, Parameter: e.Params})
	txErr := lease.Transmit(wire)

	time.Sleep(postTransmitPause)
	lease.Release()

	return txErr == nil
}
