package serprog

// streamOpID identifies, for diagnostics only, which kind of command an
// in-flight stream-window entry corresponds to.
type streamOpID uint8

const (
	opNone streamOpID = iota
	opWriteB
	opWriteN
	opDelay
	opReadN
	opReadB
	opPoll
	opPollDly
	opExecOpbuf
	opSpiOp
)

var streamOpName = [...]string{
	opNone:      "none",
	opWriteB:    "write byte",
	opWriteN:    "write n bytes",
	opDelay:     "delay",
	opReadN:     "read n bytes",
	opReadB:     "read byte",
	opPoll:      "poll for chip ready",
	opPollDly:   "poll for chip ready w/ delay",
	opExecOpbuf: "execute operation buffer",
	opSpiOp:     "spi operation",
}

func (id streamOpID) String() string {
	if int(id) < len(streamOpName) {
		return streamOpName[id]
	}
	return "unknown"
}

const (
	streamOpSizeBits = 26
	streamOpSizeMask = 1<<streamOpSizeBits - 1
)

func packStreamOp(id streamOpID, size uint32) uint32 {
	return uint32(id)<<streamOpSizeBits | (size & streamOpSizeMask)
}

func unpackStreamOp(v uint32) (streamOpID, uint32) {
	return streamOpID(v >> streamOpSizeBits), v & streamOpSizeMask
}

// streamWindow is the host-side FIFO of (op_id, size) entries for commands
// currently in flight in the device's serial receive buffer. It is sized
// to serbufSize entries, which is always at
// least as large as the number of single-byte acks that could possibly be
// outstanding at once.
type streamWindow struct {
	entries []uint32
	woff    uint32
	roff    uint32

	transmitOps   int32
	transmitBytes int32
}

func (w *streamWindow) init(capacity uint16) {
	if capacity == 0 {
		capacity = 1
	}
	w.entries = make([]uint32, capacity)
	w.woff = 0
	w.roff = 0
	w.transmitOps = 0
	w.transmitBytes = 0
}

func (w *streamWindow) free() {
	w.entries = nil
	w.woff = 0
	w.roff = 0
	w.transmitOps = 0
	w.transmitBytes = 0
}

// put records that an op of the given id and size (including its opcode
// byte) has just been written to the channel.
func (w *streamWindow) put(id streamOpID, size uint32) {
	w.entries[w.woff] = packStreamOp(id, size)
	w.woff++
	if int(w.woff) >= len(w.entries) {
		w.woff = 0
	}
	w.transmitOps++
	w.transmitBytes += int32(size)
}

// get pops the oldest in-flight entry. Callers must only call this when
// transmitOps > 0.
func (w *streamWindow) get() (streamOpID, uint32) {
	v := w.entries[w.roff]
	w.roff++
	if int(w.roff) >= len(w.entries) {
		w.roff = 0
	}
	id, size := unpackStreamOp(v)
	w.transmitOps--
	w.transmitBytes -= int32(size)
	return id, size
}

// drainToFree blocks on acknowledgement reads until the device's serial
// receive buffer has at least targetFree bytes free, i.e. until
// transmitBytes <= serbufSize - targetFree.
func (s *Session) drainToFree(targetFree uint32) error {
	target := int32(s.serbufSize) - int32(targetFree)
	if target < 0 {
		target = 0
	}
	for s.stream.transmitOps > 0 && s.stream.transmitBytes > target {
		var ack [1]byte
		if err := s.transport.ReadBlocking(ack[:]); err != nil {
			return transportErr("drain ack", err)
		}
		id, _ := s.stream.get()
		switch ack[0] {
		case respNAK:
			return nakErr(id.String())
		case respACK:
			// expected, continue
		default:
			return desyncErr(id.String(), ack[0])
		}
	}
	if s.stream.transmitOps == 0 && s.stream.transmitBytes != 0 {
		s.log.Printf("serprog: stream accounting warning: %d bytes not accounted for, resetting",
			s.stream.transmitBytes)
		s.stream.transmitBytes = 0
	}
	return nil
}

// flushStream drains every outstanding acknowledgement.
func (s *Session) flushStream() error {
	return s.drainToFree(uint32(s.serbufSize))
}
