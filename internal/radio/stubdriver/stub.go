// Package stubdriver is a host-side fake implementing radio.Driver,
// used in tests and local development in place of real radio hardware.
package stubdriver

import (
	"errors"
	"sync"
	"time"
)

// ErrNoFrame is returned by Receive when the timeout elapses with
// nothing queued.
var ErrNoFrame = errors.New("stubdriver: no frame available")

// Driver is an in-memory fake radio: Transmit appends to a log callers
// can inspect, and InjectReceive queues bytes for the next Receive call.
type Driver struct {
	mu        sync.Mutex
	rxQueue   [][]byte
	txLog     [][]byte
	busy      bool
	beginErr  error
	standbyFn func() error
	rssi      int8
	snr       int8
}

// New returns a ready stub driver.
func New() *Driver {
	return &Driver{}
}

func (d *Driver) Begin() error { return d.beginErr }

func (d *Driver) StandBy() error {
	d.mu.Lock()
	fn := d.standbyFn
	d.mu.Unlock()
	if fn != nil {
		return fn()
	}
	return nil
}

func (d *Driver) StartReceive() error { return nil }

// Transmit records the frame for later inspection via TxLog.
func (d *Driver) Transmit(frame []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	cp := make([]byte, len(frame))
	copy(cp, frame)
	d.txLog = append(d.txLog, cp)
	return nil
}

// Receive returns the next queued frame, or ErrNoFrame once timeout
// elapses with the queue empty.
func (d *Driver) Receive(timeout time.Duration) ([]byte, error) {
	deadline := time.Now().Add(timeout)
	for {
		d.mu.Lock()
		if len(d.rxQueue) > 0 {
			frame := d.rxQueue[0]
			d.rxQueue = d.rxQueue[1:]
			d.mu.Unlock()
			return frame, nil
		}
		d.mu.Unlock()

		if time.Now().After(deadline) {
			return nil, ErrNoFrame
		}
		time.Sleep(time.Millisecond)
	}
}

func (d *Driver) BusyLine() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.busy
}

// InjectReceive queues frame to be returned by a subsequent Receive call.
func (d *Driver) InjectReceive(frame []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	cp := make([]byte, len(frame))
	copy(cp, frame)
	d.rxQueue = append(d.rxQueue, cp)
}

// TxLog returns a copy of every frame handed to Transmit, in order.
func (d *Driver) TxLog() [][]byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([][]byte, len(d.txLog))
	for i, f := range d.txLog {
		cp := make([]byte, len(f))
		copy(cp, f)
		out[i] = cp
	}
	return out
}

// SetBusy controls what BusyLine reports.
func (d *Driver) SetBusy(busy bool) {
	d.mu.Lock()
	d.busy = busy
	d.mu.Unlock()
}

// FailStandBy makes every subsequent StandBy call return err, simulating
// a hardware fault for arbiter error-path tests.
func (d *Driver) FailStandBy(err error) {
	d.mu.Lock()
	d.standbyFn = func() error { return err }
	d.mu.Unlock()
}

// SetLinkQuality controls what LastRSSI/LastSNR report for subsequent
// reads, simulating the radio's per-packet signal quality report.
func (d *Driver) SetLinkQuality(rssi, snr int8) {
	d.mu.Lock()
	d.rssi, d.snr = rssi, snr
	d.mu.Unlock()
}

// LastRSSI implements radio.LinkQuality.
func (d *Driver) LastRSSI() int8 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.rssi
}

// LastSNR implements radio.LinkQuality.
func (d *Driver) LastSNR() int8 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.snr
}
