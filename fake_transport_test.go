package serprog

import (
	"errors"
	"time"
)

// fakeTransport is a fully synchronous, single-threaded stand-in for
// Transport: every byte the driver writes is appended to sent, and every
// read is satisfied from a preloaded toRead queue. Tests script toRead
// with exactly the bytes the device would have replied with, in order.
//
// This is deliberately not the PTY-backed transport.OpenFakeProgrammer:
// the pure state-machine tests here (stream window, coalescer, opbuf
// accounting) don't need a second goroutine playing the device, just a
// deterministic byte source.
type fakeTransport struct {
	sent   []byte
	toRead []byte
	closed bool
}

var errFakeExhausted = errors.New("fakeTransport: toRead exhausted")

func (f *fakeTransport) WriteBlocking(data []byte) error {
	f.sent = append(f.sent, data...)
	return nil
}

func (f *fakeTransport) ReadBlocking(data []byte) error {
	if len(f.toRead) < len(data) {
		return errFakeExhausted
	}
	copy(data, f.toRead[:len(data)])
	f.toRead = f.toRead[len(data):]
	return nil
}

func (f *fakeTransport) WriteTimeout(data []byte, _ time.Duration) error {
	return f.WriteBlocking(data)
}

func (f *fakeTransport) ReadTimeout(data []byte, _ time.Duration) (int, error) {
	if len(f.toRead) == 0 {
		return 0, nil
	}
	n := len(data)
	if n > len(f.toRead) {
		n = len(f.toRead)
	}
	copy(data, f.toRead[:n])
	f.toRead = f.toRead[n:]
	return n, nil
}

func (f *fakeTransport) Drain() error {
	// Real Drain() discards whatever the kernel's input queue happens to
	// hold at the moment it's called; this fake has no queue of its own
	// to race against, so scripted toRead bytes are left alone.
	return nil
}

func (f *fakeTransport) Close() error {
	f.closed = true
	return nil
}

// queueACKs appends n ACK bytes to toRead, the common case of "every
// queued op succeeds".
func (f *fakeTransport) queueACKs(n int) {
	for i := 0; i < n; i++ {
		f.toRead = append(f.toRead, respACK)
	}
}

// erroringTransport fails every call with a fixed error, for testing that
// a genuine transport failure aborts a sequence instead of being retried.
type erroringTransport struct {
	writeErr error
	readErr  error
}

func (e *erroringTransport) WriteBlocking(data []byte) error { return e.writeErr }
func (e *erroringTransport) ReadBlocking(data []byte) error  { return e.readErr }
func (e *erroringTransport) WriteTimeout(data []byte, _ time.Duration) error {
	return e.writeErr
}
func (e *erroringTransport) ReadTimeout(data []byte, _ time.Duration) (int, error) {
	return 0, e.readErr
}
func (e *erroringTransport) Drain() error { return nil }
func (e *erroringTransport) Close() error { return nil }

// newTestSession builds a Session over a fakeTransport with automatic
// availability checking disabled (every command is "available"), the way
// a test that isn't exercising Q_CMDMAP wants it.
func newTestSession() (*Session, *fakeTransport) {
	ft := &fakeTransport{}
	s := newSession(ft, nil)
	s.stream.init(s.serbufSize)
	return s, ft
}
