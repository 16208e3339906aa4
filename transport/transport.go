// Package transport provides the abstract bidirectional byte channel the
// serprog driver speaks over: a serial port, a TCP socket, or (in tests) a
// pseudoterminal standing in for the remote programmer.
package transport

import "time"

// Transport is the capability set the driver needs from the underlying
// channel: blocking read/write, non-blocking read/write bounded by a
// timeout, best-effort discard of unread input, and close.
type Transport interface {
	// WriteBlocking writes all of data, blocking until it is accepted by
	// the channel or an error occurs.
	WriteBlocking(data []byte) error

	// ReadBlocking reads exactly len(data) bytes into data, blocking
	// until satisfied or an error occurs.
	ReadBlocking(data []byte) error

	// WriteTimeout attempts a non-blocking write of data, waiting up to
	// timeout for the channel to become writable.
	WriteTimeout(data []byte, timeout time.Duration) error

	// ReadTimeout attempts a non-blocking read into data, waiting up to
	// timeout for input to arrive. It returns the number of bytes
	// actually read, which may be less than len(data) (including zero)
	// if the timeout elapses first.
	ReadTimeout(data []byte, timeout time.Duration) (int, error)

	// Drain discards any bytes currently queued for read, best effort.
	Drain() error

	// Close releases the underlying channel. Closing twice is safe and
	// the second call returns ErrClosed.
	Close() error
}
