// Package receive implements the radio-facing pipeline: poll the radio
// through the arbiter, decode, deduplicate, update the registry, hand
// the decoded record to the publish side, and acknowledge the sender.
package receive

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/esp-sensor-hub/bridge/internal/frame"
	"github.com/esp-sensor-hub/bridge/internal/metrics"
	"github.com/esp-sensor-hub/bridge/internal/queue"
	"github.com/esp-sensor-hub/bridge/internal/radio"
	"github.com/esp-sensor-hub/bridge/internal/registry"
)

const (
	pollTimeout    = 10 * time.Millisecond
	acquireTimeout = 250 * time.Millisecond
	enqueueTimeout = 100 * time.Millisecond
	statsInterval  = 30 * time.Second
)

// Pipeline is the receive loop. One instance runs on its own goroutine,
// started from cmd/bridge.
type Pipeline struct {
	arb      *radio.Arbiter
	reg      *registry.Registry
	out      *queue.DecodedQueue
	counters *metrics.Counters
	kick     func()

	ackSeq uint16

	receivedOK uint64
	dropped    uint64
	duplicates uint64
}

// New wires a pipeline. kick is called once per loop iteration to reset
// the process watchdog; pass a no-op in tests.
func New(arb *radio.Arbiter, reg *registry.Registry, out *queue.DecodedQueue, counters *metrics.Counters, kick func()) *Pipeline {
	if kick == nil {
		kick = func() {}
	}
	return &Pipeline{arb: arb, reg: reg, out: out, counters: counters, kick: kick}
}

// Run polls the radio until ctx is done. Every error is recovered
// locally: a bad frame is counted and dropped, a busy radio is retried
// on the next iteration, and nothing propagates to the caller.
func (p *Pipeline) Run(ctx context.Context) {
	stats := time.NewTicker(statsInterval)
	defer stats.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stats.C:
			p.emitStats()
		default:
		}

		p.kick()
		p.pollOnce()
	}
}

// pollOnce runs one iteration: acquire the arbiter, read, release, then
// process whatever came in.
func (p *Pipeline) pollOnce() {
	lease, err := p.arb.AcquireTimeout(acquireTimeout)
	if err != nil {
		// Command path is holding the radio; back off briefly.
		time.Sleep(pollTimeout)
		return
	}
	data, rxErr := lease.Receive(pollTimeout)
	rssi, snr := lease.LinkQuality()
	lease.Release()

	if rxErr != nil || len(data) == 0 {
		return
	}
	p.process(data, rssi, snr)
}

func (p *Pipeline) process(data []byte, rssi, snr int8) {
	f, err := frame.Decode(data)
	if err != nil {
		p.dropped++
		p.counters.Dropped.Inc()
		p.counters.DecodeErrors.WithLabelValues(decodeReason(err)).Inc()
		return
	}

	id, seq := f.Header.DeviceID, f.Header.Seq
	if p.reg.IsDuplicate(id, seq) {
		p.duplicates++
		p.counters.DuplicatesFiltered.Inc()
		return
	}

	p.reg.Observe(id, seq, rssi, snr)
	p.receivedOK++
	p.counters.ReceivedOK.Inc()

	rec := &queue.DecodedRecord{
		Header:     f.Header,
		Payload:    f.Payload,
		RSSI:       rssi,
		SNR:        snr,
		ReceivedAt: time.Now(),
	}
	if !p.out.EnqueueWithTimeout(rec, enqueueTimeout) {
		p.dropped++
		p.counters.Dropped.Inc()
		log.Printf("receive: decoded-record queue full, evicted oldest record for %s frame from %016X seq=%d",
			typeName(f.Header.Type), uint64(id), seq)
	}

	switch f.Header.Type {
	case frame.TypeReadings, frame.TypeStatus, frame.TypeEvent:
		p.sendAck(id, seq, rssi, snr)
	}
}

// sendAck transmits an ACK frame back to the device. Failure is logged
// and counted; the frame has already been accepted either way.
func (p *Pipeline) sendAck(id frame.DeviceID, seq uint16, rssi, snr int8) {
	lease, err := p.arb.AcquireTimeout(radio.DefaultAcquireTimeout)
	if err != nil {
		p.counters.AckFailures.Inc()
		log.Printf("receive: ack for %016X seq=%d skipped: %v", uint64(id), seq, err)
		return
	}
	defer lease.Release()

	p.ackSeq++
	wire := frame.EncodeAck(id, p.ackSeq, frame.AckPayload{
		AckedSeq: seq,
		Success:  true,
		RSSI:     rssi,
		SNR:      snr,
	})
	if err := lease.Transmit(wire); err != nil {
		p.counters.AckFailures.Inc()
		log.Printf("receive: ack for %016X seq=%d failed: %v", uint64(id), seq, err)
	}
}

func (p *Pipeline) emitStats() {
	p.counters.RegistrySize.Set(float64(len(p.reg.Snapshot())))
	p.counters.DecodedQueueDepth.Set(float64(p.out.Depth()))
	log.Printf("receive: ok=%d dropped=%d duplicates=%d", p.receivedOK, p.dropped, p.duplicates)
}

// decodeReason maps a codec sentinel to its metrics label.
func decodeReason(err error) string {
	switch {
	case errors.Is(err, frame.ErrFrameTooShort):
		return "frame-too-short"
	case errors.Is(err, frame.ErrBadMagic):
		return "bad-magic"
	case errors.Is(err, frame.ErrBadVersion):
		return "bad-version"
	case errors.Is(err, frame.ErrBadChecksum):
		return "bad-checksum"
	case errors.Is(err, frame.ErrTruncated):
		return "truncated"
	case errors.Is(err, frame.ErrPayloadSizeMismatch):
		return "payload-size-mismatch"
	case errors.Is(err, frame.ErrUnknownMessageType):
		return "unknown-type"
	default:
		return "other"
	}
}

func typeName(t byte) string {
	switch t {
	case frame.TypeReadings:
		return "readings"
	case frame.TypeStatus:
		return "status"
	case frame.TypeEvent:
		return "event"
	case frame.TypeCommand:
		return "command"
	case frame.TypeAck:
		return "ack"
	default:
		return "unknown"
	}
}
