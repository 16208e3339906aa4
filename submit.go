package serprog

// streamBufferOp is the common submission pipeline for deferred-ack
// commands: check availability, ensure the device's serial
// buffer has room, write the command, and record it in the stream window.
func (s *Session) streamBufferOp(cmd byte, params []byte, id streamOpID) error {
	if !s.available(cmd) {
		return unavailableErr(cmd)
	}
	payload := make([]byte, 1+len(params))
	payload[0] = cmd
	copy(payload[1:], params)

	if err := s.drainToFree(uint32(len(payload))); err != nil {
		return err
	}
	if err := s.transport.WriteBlocking(payload); err != nil {
		return transportErr("write "+id.String(), err)
	}
	s.stream.put(id, uint32(len(payload)))
	return nil
}

// doCommand is the synchronous path used for Q_*/S_*/O_INIT: write the
// command and parameters, read one ACK/NAK byte, and on ACK read exactly
// retlen response bytes. The stream must already be empty before using
// this path; callers only use it during init/shutdown or right after an
// explicit flush.
func (s *Session) doCommand(cmd byte, params []byte, retlen int) ([]byte, error) {
	if !s.available(cmd) {
		return nil, unavailableErr(cmd)
	}
	payload := make([]byte, 1+len(params))
	payload[0] = cmd
	copy(payload[1:], params)

	if err := s.transport.WriteBlocking(payload); err != nil {
		return nil, transportErr("write command", err)
	}
	var c [1]byte
	if err := s.transport.ReadBlocking(c[:]); err != nil {
		return nil, transportErr("read ack", err)
	}
	if c[0] == respNAK {
		return nil, nakErr("command 0x" + hexByte(cmd))
	}
	if c[0] != respACK {
		return nil, desyncErr("command 0x"+hexByte(cmd), c[0])
	}
	if retlen == 0 {
		return nil, nil
	}
	ret := make([]byte, retlen)
	if err := s.transport.ReadBlocking(ret); err != nil {
		return nil, transportErr("read response", err)
	}
	return ret, nil
}

func hexByte(b byte) string {
	const hexDigits = "0123456789ABCDEF"
	return string([]byte{hexDigits[b>>4], hexDigits[b&0xF]})
}
