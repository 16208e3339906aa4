package serprog

import (
	"errors"
	"testing"
)

func TestSynchronizeSucceedsOnFirstAttempt(t *testing.T) {
	s, ft := newTestSession()
	ft.toRead = []byte{respNAK, respACK, respNAK, respACK}

	if err := s.synchronize(); err != nil {
		t.Fatalf("synchronize: %v", err)
	}

	if len(ft.sent) < 8 {
		t.Fatalf("expected at least the initial 8-byte NOP burst, sent %d bytes", len(ft.sent))
	}
	for _, b := range ft.sent[:8] {
		if b != cmdNop {
			t.Fatalf("initial burst byte = %#x, want NOP (0x00)", b)
		}
	}
}

// A channel preloaded with leftover garbage (stale acks, a half-sent
// response from a previous session) must still synchronize: the probe
// loop skips non-NAK bytes until the NAK, ACK pair shows up.
func TestSynchronizeSkipsGarbageBytes(t *testing.T) {
	s, ft := newTestSession()
	ft.toRead = []byte{0xDE, 0xAD, 0x42, respNAK, respACK, respNAK, respACK}

	if err := s.synchronize(); err != nil {
		t.Fatalf("synchronize: %v", err)
	}
	if len(ft.toRead) != 0 {
		t.Fatalf("%d bytes left unconsumed after synchronize", len(ft.toRead))
	}
}

func TestSynchronizeGivesUpAfterEightAttempts(t *testing.T) {
	s, _ := newTestSession()
	// No NAK/ACK bytes ever arrive: every attempt times out.
	err := s.synchronize()
	if err == nil {
		t.Fatal("expected an error when the device never replies")
	}
	if !errors.Is(err, ErrConfig) {
		t.Fatalf("expected ErrConfig (exhausted attempts), got %v", err)
	}
}

func TestSynchronizeAbortsOnTransportError(t *testing.T) {
	s, _ := newTestSession()
	s.transport = &erroringTransport{writeErr: errors.New("boom")}

	err := s.synchronize()
	if err == nil {
		t.Fatal("expected an error")
	}
	if !errors.Is(err, ErrTransport) {
		t.Fatalf("expected ErrTransport, got %v", err)
	}
}
