package serprog

import "time"

// synchronize brings the channel to a known "ready for next command"
// state, regardless of whatever the device thinks it was
// doing before (including mid-payload of a prior O_WRITEN).
//
// The initial burst of eight NOP bytes aborts any in-progress O_WRITEN:
// NOP is opcode 0, and the remote parser consumes pending payload bytes
// as if they were NOP commands. SYNCNOP is the only opcode that replies
// NAK, ACK, so observing that exact pair twice in a row confirms the
// host and device agree on frame boundaries.
func (s *Session) synchronize() error {
	nops := make([]byte, 8)
	if err := s.transport.WriteTimeout(nops, time.Second); err != nil {
		return transportErr("cannot synchronize: initial NOP burst", err)
	}
	time.Sleep(time.Second)
	s.transport.Drain() // best effort

	for attempt := 0; attempt < 8; attempt++ {
		if err := s.transport.WriteTimeout([]byte{cmdSyncNop}, time.Second); err != nil {
			return transportErr("cannot synchronize: syncnop", err)
		}
		matched, err := s.syncAttemptMatched()
		if err != nil {
			return transportErr("cannot synchronize", err)
		}
		if matched {
			return nil
		}
	}
	return configErr("cannot synchronize protocol - check communications and reset device")
}

// syncAttemptMatched runs one probe round: read up to 10 bytes (50ms
// timeout each) looking for NAK
// followed by ACK within 20ms; on a match, send another SYNCNOP and
// require the same NAK, ACK pair within 500ms + 100ms to declare success.
// A transport error aborts synchronization entirely; a plain timeout
// (no byte arrived) just means this round didn't match.
func (s *Session) syncAttemptMatched() (bool, error) {
	var c [1]byte
	for n := 0; n < 10; n++ {
		got, err := s.transport.ReadTimeout(c[:], 50*time.Millisecond)
		if err != nil {
			return false, err
		}
		if got == 0 || c[0] != respNAK {
			continue
		}
		got, err = s.transport.ReadTimeout(c[:], 20*time.Millisecond)
		if err != nil {
			return false, err
		}
		if got == 0 || c[0] != respACK {
			continue
		}
		if err := s.transport.WriteTimeout([]byte{cmdSyncNop}, time.Second); err != nil {
			return false, err
		}
		got, err = s.transport.ReadTimeout(c[:], 500*time.Millisecond)
		if err != nil {
			return false, err
		}
		if got == 0 || c[0] != respNAK {
			return false, nil
		}
		got, err = s.transport.ReadTimeout(c[:], 100*time.Millisecond)
		if err != nil {
			return false, err
		}
		if got == 0 || c[0] != respACK {
			return false, nil
		}
		return true, nil
	}
	return false, nil
}
