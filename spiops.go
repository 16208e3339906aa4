package serprog

import (
	"github.com/pkg/errors"
	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/spi"
)

// SendCommand issues an O_SPIOP transaction: write writecnt bytes from
// writeArr, then read readcnt bytes into readArr. Any queued parallel-bus
// opbuf work is flushed first, since SPI and parallel operations share
// the same device and the same stream window.
func (s *Session) SendCommand(writeArr []byte, readcnt uint32, readArr []byte) error {
	if s.opbufUsage > 0 || (s.maxWriteN != 0 && s.writeNBytes > 0) {
		if err := s.executeOpbufNoFlush(); err != nil {
			return err
		}
	}

	writecnt := uint32(len(writeArr))
	params := make([]byte, 6+writecnt)
	putLE24(params, writecnt)
	putLE24(params[3:], readcnt)
	copy(params[6:], writeArr)

	if err := s.streamBufferOp(cmdOSpiOp, params, opSpiOp); err != nil {
		return err
	}
	if readcnt == 0 {
		return nil
	}
	if err := s.flushStream(); err != nil {
		return err
	}
	if err := s.transport.ReadBlocking(readArr[:readcnt]); err != nil {
		return transportErr("spi read reply", err)
	}
	return nil
}

// ReadSPI reads len(buf) bytes of SPI flash starting at start, chunking
// the read by the device's advertised maximum SPI read size so a single
// O_SPIOP transaction never exceeds what the device can buffer.
func (s *Session) ReadSPI(buf []byte, start uint32) error {
	maxRead := s.spiMaxRead
	if maxRead == 0 {
		maxRead = 1<<24 - 1
	}
	off := uint32(0)
	total := uint32(len(buf))
	cmd := []byte{0x03} // conventional SPI read-data opcode
	for total-off > 0 {
		chunk := total - off
		if chunk > maxRead {
			chunk = maxRead
		}
		addr := start + off
		req := []byte{cmd[0], byte(addr >> 16), byte(addr >> 8), byte(addr)}
		if err := s.SendCommand(req, chunk, buf[off:off+chunk]); err != nil {
			return err
		}
		off += chunk
	}
	return nil
}

// spiConn adapts a Session's SPI operations to periph.io/x/conn/v3/spi's
// Conn interface, so chip drivers written against that ecosystem's SPI
// abstraction (as periph's own FTDI and sysfs masters are) can drive a
// remote serprog programmer exactly as they would a local SPI master.
type spiConn struct {
	session *Session
}

// SPIConn returns s as a periph.io spi.Conn. Every Tx maps to one
// O_SPIOP transaction: len(w) bytes written, len(r) bytes read back.
func (s *Session) SPIConn() spi.Conn {
	return &spiConn{session: s}
}

func (c *spiConn) String() string {
	return "serprog"
}

func (c *spiConn) Tx(w, r []byte) error {
	return c.session.SendCommand(w, uint32(len(r)), r)
}

// TxPackets runs each packet as its own O_SPIOP transaction. The device
// deasserts chip select at the end of every O_SPIOP, so a packet asking
// to keep CS asserted across the boundary cannot be honored.
func (c *spiConn) TxPackets(p []spi.Packet) error {
	for i := range p {
		if p[i].KeepCS {
			return errors.New("serprog: cannot hold CS across packets")
		}
		if err := c.session.SendCommand(p[i].W, uint32(len(p[i].R)), p[i].R); err != nil {
			return err
		}
	}
	return nil
}

func (c *spiConn) Duplex() conn.Duplex {
	// The wire protocol's O_SPIOP is a request/response transaction
	// (write then read), not full simultaneous duplex.
	return conn.Half
}
