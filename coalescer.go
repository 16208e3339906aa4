package serprog

// WriteByte queues a byte store at addr. Consecutive calls at ascending
// contiguous addresses are merged into a single O_WRITEN, emitted only
// when contiguity breaks, the run hits maxWriteN, or something forces a
// flush (a read, a poll, a delay, or shutdown).
func (s *Session) WriteByte(addr uint32, val byte) error {
	if s.maxWriteN == 0 {
		if err := s.checkAndReserve(5); err != nil {
			return err
		}
		params := make([]byte, 4)
		putLE24(params, addr)
		params[3] = val
		if err := s.streamBufferOp(cmdOWriteB, params, opWriteB); err != nil {
			return err
		}
		s.opbufUsage += 5
		return nil
	}

	if s.prevWasWrite && addr == s.writeNAddr+s.writeNBytes {
		s.writeNBuf[s.writeNBytes] = val
		s.writeNBytes++
	} else {
		if s.prevWasWrite && s.writeNBytes > 0 {
			if err := s.passWriteN(); err != nil {
				return err
			}
		}
		s.prevWasWrite = true
		s.writeNAddr = addr
		s.writeNBytes = 1
		s.writeNBuf[0] = val
	}

	if err := s.checkAndReserve(7 + s.writeNBytes); err != nil {
		return err
	}
	if s.writeNBytes >= s.maxWriteN {
		if err := s.passWriteN(); err != nil {
			return err
		}
	}
	return nil
}

// passWriteN emits the pending coalesced write run. A single buffered
// byte is sent as O_WRITEB rather than paying the 7-byte O_WRITEN header
// for one byte of payload.
func (s *Session) passWriteN() error {
	if s.writeNBytes == 1 {
		params := make([]byte, 4)
		putLE24(params, s.writeNAddr)
		params[3] = s.writeNBuf[0]
		s.writeNBytes = 0
		s.prevWasWrite = false
		if err := s.streamBufferOp(cmdOWriteB, params, opWriteB); err != nil {
			return err
		}
		s.opbufUsage += 5
		return nil
	}

	total := 7 + s.writeNBytes
	if err := s.drainToFree(total); err != nil {
		return err
	}
	header := make([]byte, 7)
	header[0] = cmdOWriteN
	putLE24(header[1:], s.writeNBytes)
	putLE24(header[4:], s.writeNAddr)
	if err := s.transport.WriteBlocking(header); err != nil {
		return transportErr("write write-n header", err)
	}
	if err := s.transport.WriteBlocking(s.writeNBuf[:s.writeNBytes]); err != nil {
		return transportErr("write write-n payload", err)
	}
	s.stream.put(opWriteN, total)
	s.opbufUsage += total

	s.writeNBytes = 0
	s.prevWasWrite = false
	return nil
}
