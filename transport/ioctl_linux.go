package transport

import (
	ioctl "github.com/daedaluz/goioctl"
	"unsafe"
)

// Request codes for the termios/line-discipline/pty ioctls this package
// issues against a serial fd.
var (
	tcgets = uintptr(0x5401)
	tcsets = uintptr(0x5402)

	tcgets2 = ioctl.IOR('T', 0x2A, unsafe.Sizeof(Termios2{}))
	tcsets2 = ioctl.IOW('T', 0x2B, unsafe.Sizeof(Termios2{}))

	tcflsh = uintptr(0x540B)

	tiocmget = uintptr(0x5415)
	tiocmset = uintptr(0x5418)

	tiocswinsz = uintptr(0x5414)

	tiocgptn    = ioctl.IOR('T', 0x30, unsafe.Sizeof(uint32(0)))
	tiocsptlck  = ioctl.IOW('T', 0x31, unsafe.Sizeof(int32(0)))
	tiocgptpeer = ioctl.IO('T', 0x41)
)
