package serprog

import "testing"

func setupWriteSession(maxWriteN uint32) (*Session, *fakeTransport) {
	s, ft := newTestSession()
	s.maxWriteN = maxWriteN
	if maxWriteN > 0 {
		s.writeNBuf = make([]byte, maxWriteN)
	}
	return s, ft
}

// Contiguous writes coalesce into a single O_WRITEN frame.
func TestWriteByteCoalescesContiguousRun(t *testing.T) {
	s, ft := setupWriteSession(64)

	for i, v := range []byte{0xAA, 0xBB, 0xCC} {
		if err := s.WriteByte(0x1000+uint32(i), v); err != nil {
			t.Fatalf("WriteByte(%d): %v", i, err)
		}
	}
	if s.writeNBytes != 3 {
		t.Fatalf("writeNBytes = %d, want 3 (buffered, not yet emitted)", s.writeNBytes)
	}
	if len(ft.sent) != 0 {
		t.Fatalf("expected nothing on the wire yet, got %d bytes", len(ft.sent))
	}

	ft.queueACKs(2) // O_WRITEN ack + O_EXEC ack
	if err := s.executeOpbuf(); err != nil {
		t.Fatalf("executeOpbuf: %v", err)
	}

	want := []byte{
		cmdOWriteN, 3, 0, 0, // len24 = 3
		0x00, 0x10, 0x00, // addr24 = 0x1000
		0xAA, 0xBB, 0xCC,
		cmdOExec,
	}
	if string(ft.sent) != string(want) {
		t.Fatalf("sent = % X, want % X", ft.sent, want)
	}
}

// A break in contiguity flushes the pending run and starts a new one.
func TestWriteByteEmitsOnNonContiguousAddress(t *testing.T) {
	s, ft := setupWriteSession(64)

	if err := s.WriteByte(0x2000, 0x01); err != nil {
		t.Fatal(err)
	}
	ft.queueACKs(1) // O_WRITEB ack for the jump's trigger flush
	if err := s.WriteByte(0x3000, 0x02); err != nil {
		t.Fatal(err)
	}

	if s.writeNBytes != 1 || s.writeNAddr != 0x3000 {
		t.Fatalf("pending run = %d bytes at %#x, want 1 byte at 0x3000", s.writeNBytes, s.writeNAddr)
	}
	want := []byte{cmdOWriteB, 0x00, 0x20, 0x00, 0x01}
	if string(ft.sent) != string(want) {
		t.Fatalf("sent = % X, want % X", ft.sent, want)
	}
}

// maxWriteN == 0 means write-n is unsupported: every byte goes out as its
// own O_WRITEB immediately, never buffered.
func TestWriteByteDisabledWriteN(t *testing.T) {
	s, ft := setupWriteSession(0)

	ft.queueACKs(2)
	if err := s.WriteByte(0x42, 0x99); err != nil {
		t.Fatal(err)
	}
	if err := s.WriteByte(0x43, 0x98); err != nil {
		t.Fatal(err)
	}
	want := []byte{
		cmdOWriteB, 0x42, 0x00, 0x00, 0x99,
		cmdOWriteB, 0x43, 0x00, 0x00, 0x98,
	}
	if string(ft.sent) != string(want) {
		t.Fatalf("sent = % X, want % X", ft.sent, want)
	}
}

// A run that hits maxWriteN is emitted immediately rather than growing
// past the device's advertised limit.
func TestWriteByteEmitsAtMaxWriteN(t *testing.T) {
	s, ft := setupWriteSession(2)

	ft.queueACKs(1)
	if err := s.WriteByte(0x10, 1); err != nil {
		t.Fatal(err)
	}
	if err := s.WriteByte(0x11, 2); err != nil {
		t.Fatal(err)
	}
	if s.writeNBytes != 0 {
		t.Fatalf("writeNBytes = %d, want 0 (run emitted at the limit)", s.writeNBytes)
	}
	want := []byte{
		cmdOWriteN, 2, 0, 0,
		0x10, 0x00, 0x00,
		1, 2,
	}
	if string(ft.sent) != string(want) {
		t.Fatalf("sent = % X, want % X", ft.sent, want)
	}
}
