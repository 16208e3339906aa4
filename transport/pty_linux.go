package transport

import (
	"syscall"
	"unsafe"

	ioctl "github.com/daedaluz/goioctl"
)

// OpenFakeProgrammer allocates a Unix98 pseudoterminal pair and returns the
// master end as a Transport (what the driver under test talks to) and the
// slave end as a raw *Port (what the test uses to play the part of the
// remote programmer: read the bytes the driver sent, write back
// ACK/NAK/payload). Both ends are put in raw mode so line discipline
// (echo, ONLCR, signal characters) never mangles protocol bytes.
func OpenFakeProgrammer() (driverSide Transport, programmerSide *Port, err error) {
	masterFD, err := syscall.Open("/dev/ptmx", syscall.O_RDWR|syscall.O_NOCTTY, 0)
	if err != nil {
		return nil, nil, wrapErr("cannot open /dev/ptmx", err)
	}
	master := &Port{fd: masterFD}

	var locked int32 = 0
	if err := ioctl.Ioctl(uintptr(masterFD), tiocsptlck, uintptr(unsafe.Pointer(&locked))); err != nil {
		master.Close()
		return nil, nil, wrapErr("cannot unlock pty", err)
	}

	var n uint32
	if err := ioctl.Ioctl(uintptr(masterFD), tiocgptn, uintptr(unsafe.Pointer(&n))); err != nil {
		master.Close()
		return nil, nil, wrapErr("cannot determine pty peer", err)
	}
	path := "/dev/pts/" + itoa(int(n))
	slaveFD, err := syscall.Open(path, syscall.O_RDWR|syscall.O_NOCTTY, 0)
	if err != nil {
		master.Close()
		return nil, nil, wrapErr("cannot open pty peer "+path, err)
	}
	slave := &Port{fd: slaveFD}

	for _, fd := range []int{masterFD, slaveFD} {
		attrs := &Termios2{}
		if err := ioctl.Ioctl(uintptr(fd), tcgets2, uintptr(unsafe.Pointer(attrs))); err != nil {
			master.Close()
			slave.Close()
			return nil, nil, wrapErr("cannot read pty termios", err)
		}
		attrs.makeRaw()
		if err := ioctl.Ioctl(uintptr(fd), tcsets2, uintptr(unsafe.Pointer(attrs))); err != nil {
			master.Close()
			slave.Close()
			return nil, nil, wrapErr("cannot set pty termios", err)
		}
	}

	return master, slave, nil
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
