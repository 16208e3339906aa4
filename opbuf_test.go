package serprog

import "testing"

// Filling the opbuf to the point where the next op would no longer fit
// must trigger an early O_EXEC and reset the usage counter, so the device
// side never overflows.
func TestCheckAndReserveExecutesEarly(t *testing.T) {
	s, ft := newTestSession()
	s.opbufSize = 10

	if err := s.WriteByte(0x00, 0xA0); err != nil {
		t.Fatal(err)
	}
	if s.opbufUsage != 5 {
		t.Fatalf("opbufUsage = %d after one O_WRITEB, want 5", s.opbufUsage)
	}

	// 5 + 5 >= 10: the second write must push an O_EXEC out first.
	if err := s.WriteByte(0x01, 0xA1); err != nil {
		t.Fatal(err)
	}
	want := []byte{
		cmdOWriteB, 0x00, 0x00, 0x00, 0xA0,
		cmdOExec,
		cmdOWriteB, 0x01, 0x00, 0x00, 0xA1,
	}
	if string(ft.sent) != string(want) {
		t.Fatalf("sent = % X, want % X", ft.sent, want)
	}
	if s.opbufUsage != 5 {
		t.Fatalf("opbufUsage = %d after early exec + one queued write, want 5", s.opbufUsage)
	}
}

// After every public operation the usage counter stays strictly below the
// opbuf capacity, whatever mix of ops ran.
func TestOpbufUsageStaysBelowCapacity(t *testing.T) {
	s, ft := newTestSession()
	s.opbufSize = 32
	s.maxWriteN = 8
	s.writeNBuf = make([]byte, 8)
	ft.queueACKs(64)

	for i := uint32(0); i < 40; i++ {
		if err := s.WriteByte(0x100+i, byte(i)); err != nil {
			t.Fatalf("WriteByte #%d: %v", i, err)
		}
		if s.opbufUsage >= uint32(s.opbufSize) {
			t.Fatalf("opbufUsage = %d >= capacity %d after write #%d",
				s.opbufUsage, s.opbufSize, i)
		}
	}
	if err := s.Delay(100); err != nil {
		t.Fatalf("Delay: %v", err)
	}
	if s.opbufUsage >= uint32(s.opbufSize) {
		t.Fatalf("opbufUsage = %d >= capacity %d after delay", s.opbufUsage, s.opbufSize)
	}
}

// executeOpbuf drains the stream as well, leaving no outstanding acks.
func TestExecuteOpbufFlushesStream(t *testing.T) {
	s, ft := newTestSession()
	if err := s.WriteByte(0x10, 0x01); err != nil {
		t.Fatal(err)
	}
	ft.queueACKs(2) // O_WRITEB + O_EXEC
	if err := s.executeOpbuf(); err != nil {
		t.Fatalf("executeOpbuf: %v", err)
	}
	if s.opbufUsage != 0 {
		t.Fatalf("opbufUsage = %d, want 0", s.opbufUsage)
	}
	if s.stream.transmitOps != 0 || s.stream.transmitBytes != 0 {
		t.Fatalf("stream not drained: ops=%d bytes=%d", s.stream.transmitOps, s.stream.transmitBytes)
	}
}
