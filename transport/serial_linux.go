package transport

import (
	"strconv"
	"strings"
	"sync/atomic"
	"syscall"
	"time"
	"unsafe"

	"github.com/daedaluz/fdev/poll"
	ioctl "github.com/daedaluz/goioctl"
)

// Termios2 mirrors struct termios2 from <asm/termbits.h>: the extended
// form that carries explicit input/output speed fields, used to request
// an arbitrary baud rate via BOTHER instead of one of the fixed Bxxxxx
// constants.
type Termios2 struct {
	Iflag  IFlag
	Oflag  OFlag
	Cflag  CFlag
	Lflag  LFlag
	Line   byte
	Cc     [19]byte
	ISpeed uint32
	OSpeed uint32
}

type IFlag uint32
type OFlag uint32
type CFlag uint32
type LFlag uint32

const (
	ignbrk = IFlag(0000001)
	brkint = IFlag(0000002)
	parmrk = IFlag(0000010)
	istrip = IFlag(0000040)
	inlcr  = IFlag(0000100)
	igncr  = IFlag(0000200)
	icrnl  = IFlag(0000400)
	ixon   = IFlag(0002000)
)

const opost = OFlag(0000001)

const (
	echo   = LFlag(0000010)
	echonl = LFlag(0000100)
	icanon = LFlag(0000002)
	isig   = LFlag(0000001)
	iexten = LFlag(0100000)
)

const (
	csize  = CFlag(0000060)
	cs8    = CFlag(0000060)
	parenb = CFlag(0000400)
	cread  = CFlag(0000200)
	clocal = CFlag(0004000)
	cbaud  = CFlag(0010017)
	bother = CFlag(0010000)
)

func (t *Termios2) makeRaw() {
	t.Iflag &= ^(ignbrk | brkint | parmrk | istrip | inlcr | igncr | icrnl | ixon)
	t.Oflag &= ^opost
	t.Lflag &= ^(echo | echonl | icanon | isig | iexten)
	t.Cflag &= ^(csize | parenb)
	t.Cflag |= cs8
	t.Cflag |= cread | clocal
	t.Cc[6] = 1 // VMIN: return as soon as 1 byte is available
	t.Cc[5] = 0 // VTIME: no inter-byte timeout
}

func (t *Termios2) setCustomSpeed(baud uint32) {
	t.Cflag &= ^cbaud
	t.Cflag |= bother
	t.ISpeed = baud
	t.OSpeed = baud
}

// Port is a raw Linux tty fd configured for 8N1 at an arbitrary baud
// rate. One Port owns exactly one fd.
type Port struct {
	fd     int
	closed atomic.Bool
}

// OpenSerial opens path and configures it for raw 8N1 communication at
// baud, per the driver's "dev=<path>:<baud>" configuration option. baud
// is set via BOTHER/Termios2 so any rate the kernel driver accepts is
// usable, not just the fixed Bxxxxx table.
func OpenSerial(path string, baud uint32) (*Port, error) {
	fd, err := syscall.Open(path, syscall.O_RDWR|syscall.O_NOCTTY, 0)
	if err != nil {
		return nil, wrapErr("cannot open serial device "+path, err)
	}
	p := &Port{fd: fd}
	attrs := &Termios2{}
	if err := ioctl.Ioctl(uintptr(fd), tcgets2, uintptr(unsafe.Pointer(attrs))); err != nil {
		syscall.Close(fd)
		return nil, wrapErr("cannot read termios", err)
	}
	attrs.makeRaw()
	attrs.setCustomSpeed(baud)
	if err := ioctl.Ioctl(uintptr(fd), tcsets2, uintptr(unsafe.Pointer(attrs))); err != nil {
		syscall.Close(fd)
		return nil, wrapErr("cannot configure termios", err)
	}
	return p, nil
}

// ParseDevSpec splits a "dev=" option value of the form "<path>:<baud>"
// into its path and baud components. Both parts must be non-empty.
func ParseDevSpec(spec string) (path string, baud uint32, err error) {
	path, baudStr, ok := strings.Cut(spec, ":")
	if !ok || baudStr == "" {
		return "", 0, wrapErr("no baudrate specified in dev="+spec, syscall.EINVAL)
	}
	if path == "" {
		return "", 0, wrapErr("no device specified in dev="+spec, syscall.EINVAL)
	}
	b, err := strconv.ParseUint(baudStr, 10, 32)
	if err != nil {
		return "", 0, wrapErr("invalid baudrate in dev="+spec, err)
	}
	return path, uint32(b), nil
}

func (p *Port) WriteBlocking(data []byte) error {
	if p.closed.Load() {
		return ErrClosed
	}
	for len(data) > 0 {
		n, err := syscall.Write(p.fd, data)
		if err != nil {
			return wrapErr("write", err)
		}
		data = data[n:]
	}
	return nil
}

func (p *Port) ReadBlocking(data []byte) error {
	if p.closed.Load() {
		return ErrClosed
	}
	for len(data) > 0 {
		n, err := syscall.Read(p.fd, data)
		if err != nil {
			return wrapErr("read", err)
		}
		if n == 0 {
			return wrapErr("read", syscall.EIO)
		}
		data = data[n:]
	}
	return nil
}

// WriteTimeout writes data with the fd in non-blocking mode, retrying
// short writes until timeout elapses. The kernel's tty output queue
// normally swallows these few-byte writes immediately; the bound only
// matters when the line is wedged.
func (p *Port) WriteTimeout(data []byte, timeout time.Duration) error {
	if p.closed.Load() {
		return ErrClosed
	}
	if err := syscall.SetNonblock(p.fd, true); err != nil {
		return wrapErr("write timeout", err)
	}
	defer syscall.SetNonblock(p.fd, false)
	deadline := time.Now().Add(timeout)
	for len(data) > 0 {
		n, err := syscall.Write(p.fd, data)
		if err != nil && err != syscall.EAGAIN {
			return wrapErr("write", err)
		}
		if n > 0 {
			data = data[n:]
			continue
		}
		if time.Now().After(deadline) {
			return wrapErr("write", syscall.ETIMEDOUT)
		}
		time.Sleep(time.Millisecond)
	}
	return nil
}

func (p *Port) ReadTimeout(data []byte, timeout time.Duration) (int, error) {
	if p.closed.Load() {
		return 0, ErrClosed
	}
	if err := poll.WaitInput(p.fd, timeout); err != nil {
		return 0, nil // timeout elapsed with nothing to read: not an error
	}
	n, err := syscall.Read(p.fd, data)
	if err != nil {
		return 0, wrapErr("read", err)
	}
	return n, nil
}

// Drain discards bytes sitting in the kernel's input queue (TCFLSH,
// TCIFLUSH), the flush-incoming step the synchronizer uses right after
// its initial NOP burst.
func (p *Port) Drain() error {
	if p.closed.Load() {
		return ErrClosed
	}
	const tciflush = uintptr(0)
	return wrapErr("drain", ioctl.Ioctl(uintptr(p.fd), tcflsh, tciflush))
}

func (p *Port) Close() error {
	if !p.closed.Swap(true) {
		fd := p.fd
		p.fd = -1
		return wrapErr("close", syscall.Close(fd))
	}
	return ErrClosed
}
