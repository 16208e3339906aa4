package serprog

import (
	"log"

	"github.com/kalipsoaqua/flashrom/transport"
)

// Default session-state values used before the device has been queried.
const (
	defaultSerbufSize = 16
	defaultOpbufSize  = 300
)

// Session owns all state for one driver instance: the transport, the
// stream window, the opbuf accounting, and the write coalescer. Every
// piece of state lives here so a test can construct many independent
// sessions over distinct fake transports.
//
// A Session is not safe for concurrent use; a chip operation must not be
// invoked while another is in progress, and there is no internal lock.
type Session struct {
	transport transport.Transport
	log       *log.Logger

	serbufSize uint16
	opbufSize  uint16
	cmdMap     commandMap

	// maxWriteN/maxReadN are the parallel-context interpretation of
	// Q_WRNMAXLEN/Q_RDNMAXLEN: 0 means "unsupported" for maxWriteN, and
	// "no limit" for maxReadN. SPI's own interpretation of the same two
	// queries is kept in spiMaxWrite/spiMaxRead so the two are never
	// conflated.
	maxWriteN uint32
	maxReadN  uint32

	busesSupported      BusType
	checkAvailAutomatic bool

	opbufUsage uint32

	prevWasWrite bool
	writeNAddr   uint32
	writeNBytes  uint32
	writeNBuf    []byte

	stream streamWindow

	spiMaxWrite uint32
	spiMaxRead  uint32

	closed bool
}

func newSession(t transport.Transport, logger *log.Logger) *Session {
	if logger == nil {
		logger = log.Default()
	}
	return &Session{
		transport:           t,
		log:                 logger,
		serbufSize:          defaultSerbufSize,
		opbufSize:           defaultOpbufSize,
		checkAvailAutomatic: false,
	}
}

func (s *Session) available(cmd byte) bool {
	if !s.checkAvailAutomatic {
		return true
	}
	return s.cmdMap.available(cmd)
}
