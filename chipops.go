package serprog

import (
	"time"
)

// flushPendingWrites forces any buffered coalesced write run and any
// queued-but-not-yet-executed opbuf entries out to the device without
// draining the stream's acknowledgements.
func (s *Session) flushPendingWrites() error {
	if s.opbufUsage > 0 || (s.maxWriteN != 0 && s.writeNBytes > 0) {
		return s.executeOpbufNoFlush()
	}
	return nil
}

// ReadByte reads a single byte at addr. Any pending writes are flushed
// to the device opbuf first, so the read never observes a state the
// device hasn't caught up to yet. A transport failure surfaces as an
// error rather than a garbage byte.
func (s *Session) ReadByte(addr uint32) (byte, error) {
	if err := s.flushPendingWrites(); err != nil {
		return 0, err
	}
	params := make([]byte, 3)
	putLE24(params, addr)
	if err := s.streamBufferOp(cmdRByte, params, opReadB); err != nil {
		return 0, err
	}
	if err := s.flushStream(); err != nil {
		return 0, err
	}
	var b [1]byte
	if err := s.transport.ReadBlocking(b[:]); err != nil {
		return 0, transportErr("read byte data", err)
	}
	return b[0], nil
}

// doReadN performs one R_NBYTES round trip without regard to maxReadN
// chunking.
func (s *Session) doReadN(buf []byte, addr uint32) error {
	if err := s.flushPendingWrites(); err != nil {
		return err
	}
	params := make([]byte, 6)
	putLE24(params, addr)
	putLE24(params[3:], uint32(len(buf)))
	if err := s.streamBufferOp(cmdRNBytes, params, opReadN); err != nil {
		return err
	}
	if err := s.flushStream(); err != nil {
		return err
	}
	if err := s.transport.ReadBlocking(buf); err != nil {
		return transportErr("read n-byte data", err)
	}
	return nil
}

// ReadBytes reads len(buf) bytes starting at addr, chunking the request
// by maxReadN (the device's advertised read-n limit) when the device
// reported one.
func (s *Session) ReadBytes(buf []byte, addr uint32) error {
	off := uint32(0)
	total := uint32(len(buf))
	for total-off > 0 {
		chunk := total - off
		if s.maxReadN != 0 && chunk > s.maxReadN {
			chunk = s.maxReadN
		}
		if err := s.doReadN(buf[off:off+chunk], addr+off); err != nil {
			return err
		}
		off += chunk
	}
	return nil
}

// SoftwarePoll is an injectable fallback used by Poll when the mask
// isn't single-bit or the device lacks O_POLL/O_POLL_DLY. Polling a chip
// status register by repeated ordinary reads is chip-specific logic that
// belongs to the surrounding flash-programming application, not this
// driver.
type SoftwarePoll func(s *Session, addr uint32, mask byte, dataOrToggle int, delay time.Duration) error

// Poll waits for the bit selected by mask at addr to reach the state
// described by dataOrToggle (negative: wait for 0, positive: wait for 1,
// zero: wait for the bit to toggle), accelerating the wait onto the
// device's O_POLL/O_POLL_DLY opcodes when mask selects exactly one bit
// and the device supports the relevant opcode. Otherwise it delegates to
// fallback.
func (s *Session) Poll(addr uint32, mask byte, dataOrToggle int, delay time.Duration, fallback SoftwarePoll) error {
	shift := singleBitShift(mask)
	pollCmd := byte(cmdOPoll)
	if delay > 0 {
		pollCmd = cmdOPollDly
	}
	if shift < 0 || !s.available(pollCmd) {
		if fallback == nil {
			return unavailableErr(pollCmd)
		}
		return fallback(s, addr, mask, dataOrToggle, delay)
	}

	if s.maxWriteN != 0 && s.writeNBytes != 0 {
		if err := s.passWriteN(); err != nil {
			return err
		}
	}

	flags := byte(shift) & pollShiftMask
	if dataOrToggle < 0 {
		flags |= pollFlagToggle0
	} else if dataOrToggle > 0 {
		flags |= pollFlagToggle1
	}

	// The flags byte above only ever carries 0x30|shift; the mask step
	// here narrows dataOrToggle to the tested bit without changing what
	// goes on the wire.
	if dataOrToggle > 0 {
		dataOrToggle &= int(mask)
	}

	if delay > 0 {
		params := make([]byte, 8)
		params[0] = flags
		putLE24(params[1:], addr)
		putLE32(params[4:], uint32(delay.Microseconds()))
		if err := s.checkAndReserve(9); err != nil {
			return err
		}
		if err := s.streamBufferOp(cmdOPollDly, params, opPollDly); err != nil {
			return err
		}
		s.opbufUsage += 9
	} else {
		params := make([]byte, 4)
		params[0] = flags
		putLE24(params[1:], addr)
		if err := s.checkAndReserve(5); err != nil {
			return err
		}
		if err := s.streamBufferOp(cmdOPoll, params, opPoll); err != nil {
			return err
		}
		s.opbufUsage += 5
	}

	// Software polling by repeated reads would force an exec roughly
	// once the opbuf was a third full; keep that natural exec point.
	if s.opbufUsage >= uint32(s.opbufSize)/3 {
		if err := s.executeOpbufNoFlush(); err != nil {
			return err
		}
	}
	return nil
}

// singleBitShift returns the bit position of mask's only set bit, or -1
// if mask is zero or has more than one bit set.
func singleBitShift(mask byte) int {
	if mask == 0 {
		return -1
	}
	if mask&(mask-1) != 0 {
		return -1
	}
	shift := 0
	for mask > 1 {
		mask >>= 1
		shift++
	}
	return shift
}

// Delay waits for usecs to elapse on the device's clock, using O_DELAY if
// the device supports it so the wait overlaps with other queued work,
// falling back to a local sleep (after flushing any queued opbuf
// operations) otherwise.
func (s *Session) Delay(usecs uint32) error {
	if s.maxWriteN != 0 && s.writeNBytes != 0 {
		if err := s.passWriteN(); err != nil {
			return err
		}
	}
	s.prevWasWrite = false

	if !s.available(cmdODelay) {
		if s.opbufUsage > 0 {
			if err := s.executeOpbuf(); err != nil {
				return err
			}
		}
		time.Sleep(time.Duration(usecs) * time.Microsecond)
		return nil
	}

	if err := s.checkAndReserve(5); err != nil {
		return err
	}
	params := make([]byte, 4)
	putLE32(params, usecs)
	if err := s.streamBufferOp(cmdODelay, params, opDelay); err != nil {
		return err
	}
	s.opbufUsage += 5
	return nil
}
