// Package radio mediates exclusive access to the physical radio: a
// single mutual-exclusion point around a Driver, with an explicit
// RX/TX state machine.
package radio

import "time"

// Driver is the physical radio's interface contract. The bridge does
// not implement a real SPI/UART driver -- one is supplied at cmd/bridge
// startup. internal/radio/stubdriver is the host-side fake used in
// tests and local development.
type Driver interface {
	Begin() error
	StandBy() error
	StartReceive() error
	Transmit(frame []byte) error
	Receive(timeout time.Duration) ([]byte, error)
	BusyLine() bool
}
