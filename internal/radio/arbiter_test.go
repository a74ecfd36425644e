package radio

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/esp-sensor-hub/bridge/internal/radio/stubdriver"
)

func TestNewArbiterEntersRX(t *testing.T) {
	a, err := NewArbiter(stubdriver.New())
	if err != nil {
		t.Fatalf("NewArbiter() error = %v", err)
	}
	if a.State() != StateRX {
		t.Fatalf("State() = %v, want RX", a.State())
	}
}

func TestAcquireTransmitRelease(t *testing.T) {
	drv := stubdriver.New()
	a, err := NewArbiter(drv)
	if err != nil {
		t.Fatalf("NewArbiter() error = %v", err)
	}

	lease, err := a.AcquireTimeout(time.Second)
	if err != nil {
		t.Fatalf("AcquireTimeout() error = %v", err)
	}
	if a.State() != StateStandby {
		t.Fatalf("State() after Acquire = %v, want STANDBY", a.State())
	}

	if err := lease.Transmit([]byte{1, 2, 3}); err != nil {
		t.Fatalf("Transmit() error = %v", err)
	}
	if got := drv.TxLog(); len(got) != 1 {
		t.Fatalf("TxLog() len = %v, want 1", len(got))
	}

	lease.Release()
	if a.State() != StateRX {
		t.Fatalf("State() after Release = %v, want RX", a.State())
	}
}

func TestAcquireIsExclusive(t *testing.T) {
	a, err := NewArbiter(stubdriver.New())
	if err != nil {
		t.Fatalf("NewArbiter() error = %v", err)
	}

	lease, err := a.AcquireTimeout(time.Second)
	if err != nil {
		t.Fatalf("AcquireTimeout() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = a.Acquire(ctx)
	if !errors.Is(err, ErrAcquireTimeout) {
		t.Fatalf("second Acquire() error = %v, want ErrAcquireTimeout while held", err)
	}

	lease.Release()

	lease2, err := a.AcquireTimeout(time.Second)
	if err != nil {
		t.Fatalf("Acquire() after Release error = %v", err)
	}
	lease2.Release()
}

func TestArbiterErrorLeavesStandby(t *testing.T) {
	drv := stubdriver.New()
	a, err := NewArbiter(drv)
	if err != nil {
		t.Fatalf("NewArbiter() error = %v", err)
	}

	lease, err := a.AcquireTimeout(time.Second)
	if err != nil {
		t.Fatalf("AcquireTimeout() error = %v", err)
	}

	drv.FailStandBy(errors.New("hardware fault"))
	lease.Release()
	if a.State() != StateStandby {
		t.Fatalf("State() after failed re-entry to RX = %v, want STANDBY", a.State())
	}
}

func TestReceiveReturnsInjectedFrame(t *testing.T) {
	drv := stubdriver.New()
	a, err := NewArbiter(drv)
	if err != nil {
		t.Fatalf("NewArbiter() error = %v", err)
	}
	drv.InjectReceive([]byte{9, 9, 9})

	lease, err := a.AcquireTimeout(time.Second)
	if err != nil {
		t.Fatalf("AcquireTimeout() error = %v", err)
	}
	defer lease.Release()

	frame, err := lease.Receive(100 * time.Millisecond)
	if err != nil {
		t.Fatalf("Receive() error = %v", err)
	}
	if len(frame) != 3 {
		t.Fatalf("Receive() = %v, want 3 bytes", frame)
	}
}
