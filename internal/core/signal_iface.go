package core

import "errors"

// Frame is a raw encoded envelope ready to be written to a transport.
type Frame []byte

var (
	ErrBackpressure = errors.New("backpressure")
	ErrConnClosed   = errors.New("connection closed")
)

// SignalConnection abstracts for a system messaging transport
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	// TrySend queues f without blocking. It returns ErrConnClosed once Close
	// has been called and ErrBackpressure when the outbound queue is full.
	TrySend(f Frame) error
	Close()
}
