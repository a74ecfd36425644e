package radio

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// State is one point in the arbiter's RX/TX state machine.
type State int

const (
	StateInit State = iota
	StateStandby
	StateRX
	StateTXBusy
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateStandby:
		return "STANDBY"
	case StateRX:
		return "RX"
	case StateTXBusy:
		return "TX_BUSY"
	default:
		return "UNKNOWN"
	}
}

// ErrAcquireTimeout is returned by Acquire when ctx is done before the
// single radio permit becomes available.
var ErrAcquireTimeout = errors.New("radio: acquire timed out")

// DefaultAcquireTimeout bounds Acquire when the caller gives no
// explicit timeout.
const DefaultAcquireTimeout = 5 * time.Second

// Arbiter serializes every caller's access to a Driver behind a
// buffered-1 channel used as a binary semaphore -- the same "single
// mutex, no nested locking" guarantee a sync.Mutex gives, but one that
// lets Acquire respect a caller-supplied context/timeout, since
// sync.Mutex has no timed lock in Go.
type Arbiter struct {
	driver Driver
	sem    chan struct{}

	mu    sync.Mutex
	state State
}

// NewArbiter brings the driver up and leaves it in continuous-receive
// mode -- the resting state every Lease.Release returns to.
func NewArbiter(d Driver) (*Arbiter, error) {
	a := &Arbiter{driver: d, sem: make(chan struct{}, 1), state: StateInit}
	if err := d.Begin(); err != nil {
		return nil, fmt.Errorf("radio: begin: %w", err)
	}
	if err := a.enterReceive(); err != nil {
		return nil, err
	}
	a.sem <- struct{}{}
	return a, nil
}

// enterReceive drives STANDBY -> RX. On any failure the state is left in
// STANDBY, matching the "any error -> STANDBY" transition rule.
func (a *Arbiter) enterReceive() error {
	if err := a.driver.StandBy(); err != nil {
		a.setState(StateStandby)
		return fmt.Errorf("radio: standby: %w", err)
	}
	a.setState(StateStandby)
	if err := a.driver.StartReceive(); err != nil {
		return fmt.Errorf("radio: start receive: %w", err)
	}
	a.setState(StateRX)
	return nil
}

func (a *Arbiter) setState(s State) {
	a.mu.Lock()
	a.state = s
	a.mu.Unlock()
}

// State returns the arbiter's current state.
func (a *Arbiter) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Lease is the exclusive hold on the radio returned by Acquire. Callers
// must call Release exactly once, and must not use the Lease afterward.
type Lease struct {
	arbiter *Arbiter
}

// Acquire blocks until the single radio permit is available or ctx is
// done, transitioning RX -> STANDBY on success.
func (a *Arbiter) Acquire(ctx context.Context) (*Lease, error) {
	select {
	case <-a.sem:
	case <-ctx.Done():
		return nil, ErrAcquireTimeout
	}

	if err := a.driver.StandBy(); err != nil {
		a.setState(StateStandby)
		a.sem <- struct{}{}
		return nil, fmt.Errorf("radio: standby: %w", err)
	}
	a.setState(StateStandby)
	return &Lease{arbiter: a}, nil
}

// AcquireTimeout is a convenience wrapper around Acquire using a plain
// time.Duration instead of a context.
func (a *Arbiter) AcquireTimeout(timeout time.Duration) (*Lease, error) {
	if timeout <= 0 {
		timeout = DefaultAcquireTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return a.Acquire(ctx)
}

// Transmit sends frame, transitioning STANDBY -> TX_BUSY -> STANDBY.
func (l *Lease) Transmit(frame []byte) error {
	l.arbiter.setState(StateTXBusy)
	err := l.arbiter.driver.Transmit(frame)
	l.arbiter.setState(StateStandby)
	if err != nil {
		return fmt.Errorf("radio: transmit: %w", err)
	}
	return nil
}

// Receive polls the driver for an incoming frame while the lease is
// held. Callers acquire, read, and release on every poll cycle (the
// receive pipeline does not hold a lease across iterations), so the
// command queue's transmission path is never starved of the radio.
func (l *Lease) Receive(timeout time.Duration) ([]byte, error) {
	return l.arbiter.driver.Receive(timeout)
}

// BusyLine reports the driver's hardware busy/ready line.
func (l *Lease) BusyLine() bool {
	return l.arbiter.driver.BusyLine()
}

// LinkQuality is an optional capability a Driver may implement to report
// the received signal strength and quality of its most recent Receive
// call. Not every driver can report this; Pipeline falls back to zero
// values for ones that don't, the same optional-interface pattern as
// the standard library's http.Flusher.
type LinkQuality interface {
	LastRSSI() int8
	LastSNR() int8
}

// LinkQuality reports the driver's last observed RSSI/SNR if it
// implements the optional LinkQuality interface, or (0, 0) otherwise.
func (l *Lease) LinkQuality() (rssi, snr int8) {
	if lq, ok := l.arbiter.driver.(LinkQuality); ok {
		return lq.LastRSSI(), lq.LastSNR()
	}
	return 0, 0
}

// Release returns the radio to continuous-receive mode and frees the
// permit for the next caller. Holders must leave the radio in
// continuous-receive mode when they release it; Release enforces that
// regardless of what state the lease was left in.
func (l *Lease) Release() {
	a := l.arbiter
	if err := a.enterReceive(); err != nil {
		a.setState(StateStandby)
	}
	a.sem <- struct{}{}
}
