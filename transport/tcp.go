package transport

import (
	"net"
	"strings"
	"time"
)

// TCPConn implements Transport over a TCP socket, for the driver's "ip="
// configuration option. TCP_NODELAY is enabled on connect:
// the protocol is latency sensitive and sometimes does write-write-read
// (write-n) sequences, so Nagle's algorithm would add a round trip of
// delay to every small command.
type TCPConn struct {
	conn   *net.TCPConn
	closed bool
}

// ParseIPSpec validates an "ip=" option value of the form
// "<host>:<port>". Both parts must be non-empty.
func ParseIPSpec(spec string) (hostport string, err error) {
	host, port, ok := strings.Cut(spec, ":")
	if !ok || port == "" {
		return "", wrapErr("no port specified in ip="+spec, errInvalid)
	}
	if host == "" {
		return "", wrapErr("no host specified in ip="+spec, errInvalid)
	}
	return spec, nil
}

// DialTCP connects to hostport and enables TCP_NODELAY.
func DialTCP(hostport string) (*TCPConn, error) {
	conn, err := net.Dial("tcp", hostport)
	if err != nil {
		return nil, wrapErr("cannot connect to "+hostport, err)
	}
	tcpConn, ok := conn.(*net.TCPConn)
	if !ok {
		conn.Close()
		return nil, wrapErr("not a tcp connection", errInvalid)
	}
	if err := tcpConn.SetNoDelay(true); err != nil {
		tcpConn.Close()
		return nil, wrapErr("cannot set TCP_NODELAY", err)
	}
	return &TCPConn{conn: tcpConn}, nil
}

func (t *TCPConn) WriteBlocking(data []byte) error {
	if t.closed {
		return ErrClosed
	}
	if err := t.conn.SetWriteDeadline(time.Time{}); err != nil {
		return wrapErr("write", err)
	}
	for len(data) > 0 {
		n, err := t.conn.Write(data)
		if err != nil {
			return wrapErr("write", err)
		}
		data = data[n:]
	}
	return nil
}

func (t *TCPConn) ReadBlocking(data []byte) error {
	if t.closed {
		return ErrClosed
	}
	if err := t.conn.SetReadDeadline(time.Time{}); err != nil {
		return wrapErr("read", err)
	}
	for len(data) > 0 {
		n, err := t.conn.Read(data)
		if err != nil {
			return wrapErr("read", err)
		}
		data = data[n:]
	}
	return nil
}

func (t *TCPConn) WriteTimeout(data []byte, timeout time.Duration) error {
	if t.closed {
		return ErrClosed
	}
	if err := t.conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
		return wrapErr("write timeout", err)
	}
	defer t.conn.SetWriteDeadline(time.Time{})
	_, err := t.conn.Write(data)
	if err != nil {
		return wrapErr("write", err)
	}
	return nil
}

func (t *TCPConn) ReadTimeout(data []byte, timeout time.Duration) (int, error) {
	if t.closed {
		return 0, ErrClosed
	}
	if err := t.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return 0, wrapErr("read timeout", err)
	}
	defer t.conn.SetReadDeadline(time.Time{})
	n, err := t.conn.Read(data)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return n, nil
		}
		return n, wrapErr("read", err)
	}
	return n, nil
}

// Drain reads and discards whatever is immediately available without
// blocking.
func (t *TCPConn) Drain() error {
	if t.closed {
		return ErrClosed
	}
	buf := make([]byte, 256)
	for {
		if err := t.conn.SetReadDeadline(time.Now().Add(10 * time.Millisecond)); err != nil {
			return wrapErr("drain", err)
		}
		n, err := t.conn.Read(buf)
		t.conn.SetReadDeadline(time.Time{})
		if n == 0 || err != nil {
			return nil
		}
	}
}

func (t *TCPConn) Close() error {
	if t.closed {
		return ErrClosed
	}
	t.closed = true
	return wrapErr("close", t.conn.Close())
}

var errInvalid = errInvalidArg{}

type errInvalidArg struct{}

func (errInvalidArg) Error() string { return "invalid argument" }
