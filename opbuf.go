package serprog

// checkAndReserve emits an early O_EXEC if queuing n more bytes would
// breach the device's opbuf capacity, keeping opbufUsage < opbufSize
// after every public operation returns.
func (s *Session) checkAndReserve(n uint32) error {
	if s.opbufUsage+n >= uint32(s.opbufSize) {
		s.log.Printf("serprog: warning: executing operation buffer early (usage %d + %d >= capacity %d)",
			s.opbufUsage, n, s.opbufSize)
		return s.executeOpbufNoFlush()
	}
	return nil
}

// executeOpbufNoFlush passes any pending coalesced write run to the
// device, then queues O_EXEC on the stream without draining it.
func (s *Session) executeOpbufNoFlush() error {
	if s.maxWriteN != 0 && s.writeNBytes != 0 {
		if err := s.passWriteN(); err != nil {
			return err
		}
	}
	if err := s.streamBufferOp(cmdOExec, nil, opExecOpbuf); err != nil {
		return err
	}
	s.opbufUsage = 0
	s.prevWasWrite = false
	return nil
}

// executeOpbuf executes the opbuf and then flushes the stream so the
// caller observes the device in a fully caught-up state.
func (s *Session) executeOpbuf() error {
	if err := s.executeOpbufNoFlush(); err != nil {
		return err
	}
	return s.flushStream()
}
