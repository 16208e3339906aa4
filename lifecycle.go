package serprog

import (
	"log"
	"strconv"
	"strings"

	"github.com/kalipsoaqua/flashrom/transport"
)

// Options holds the configuration recognized from the host application's
// parameter mechanism. Parsing the surrounding "-p
// serprog:key=value,..." string into this struct is the caller's job;
// ParseOptions only resolves the three keys serprog itself understands.
type Options struct {
	// Dev is "dev=<path>:<baud>", mutually exclusive with IP.
	Dev string
	// IP is "ip=<host>:<port>", mutually exclusive with Dev.
	IP string
	// SpiSpeed is the raw "spispeed=<N>[k|M]" value, or empty if unset.
	SpiSpeed string
}

// ParseOptions validates that exactly one of "dev"/"ip" is present in
// params and carries "spispeed" through unparsed (spispeed is only
// meaningful once the device's bus support is known, during Init).
func ParseOptions(params map[string]string) (*Options, error) {
	dev, haveDev := params["dev"]
	ip, haveIP := params["ip"]
	if haveDev && haveIP {
		return nil, configErr("both host and device specified; use either dev= or ip= but not both")
	}
	if !haveDev && !haveIP {
		return nil, configErr("neither host nor device specified; use dev=/dev/device:baud or ip=ipaddr:port")
	}
	if haveDev && dev == "" {
		return nil, configErr("no device specified")
	}
	if haveIP && ip == "" {
		return nil, configErr("no host specified")
	}
	return &Options{Dev: dev, IP: ip, SpiSpeed: params["spispeed"]}, nil
}

// parseSPISpeed parses a "spispeed" value of the form "<N>[k|M]" into a
// frequency in Hz: a missing or unparseable number is an error, and
// anything beyond a single k/M suffix character is garbage.
func parseSPISpeed(raw string) (uint32, error) {
	suffix := byte(0)
	numPart := raw
	if len(raw) > 0 {
		last := raw[len(raw)-1]
		if last == 'k' || last == 'K' || last == 'M' || last == 'm' {
			suffix = last
			numPart = raw[:len(raw)-1]
		}
	}
	n, err := strconv.ParseUint(numPart, 10, 32)
	if err != nil {
		return 0, configErr("could not convert spispeed value %q", raw)
	}
	switch suffix {
	case 0:
		return uint32(n), nil
	case 'k', 'K':
		return uint32(n) * 1000, nil
	case 'M', 'm':
		return uint32(n) * 1000000, nil
	default:
		return 0, configErr("garbage following spispeed value %q", raw)
	}
}

// Open resolves opts into a concrete transport (serial or TCP) and
// performs the full init sequence.
func Open(opts *Options, logger *log.Logger) (*Session, error) {
	var t transport.Transport
	switch {
	case opts.Dev != "":
		path, baud, err := transport.ParseDevSpec(opts.Dev)
		if err != nil {
			return nil, configErr("%s", err)
		}
		port, err := transport.OpenSerial(path, baud)
		if err != nil {
			return nil, err
		}
		t = port
	case opts.IP != "":
		hostport, err := transport.ParseIPSpec(opts.IP)
		if err != nil {
			return nil, configErr("%s", err)
		}
		conn, err := transport.DialTCP(hostport)
		if err != nil {
			return nil, err
		}
		t = conn
	default:
		return nil, configErr("neither host nor device specified")
	}

	s, err := InitWithTransport(t, logger, opts.SpiSpeed)
	if err != nil {
		t.Close()
		return nil, err
	}
	return s, nil
}

// InitWithTransport runs the init sequence (synchronize, negotiate
// limits, configure buses, enable outputs) against an already-open
// transport. Exposed separately from Open so
// tests can drive the full init sequence over a fake programmer without
// a real serial device or socket.
func InitWithTransport(t transport.Transport, logger *log.Logger, spiSpeed string) (*Session, error) {
	s := newSession(t, logger)

	if err := s.synchronize(); err != nil {
		return nil, err
	}

	ifaceRaw, err := s.doCommand(cmdQIface, nil, 2)
	if err != nil {
		return nil, configErr("query interface version: %s", err)
	}
	iface := getLE16(ifaceRaw)
	if iface != 1 {
		return nil, configErr("unknown interface version: %d", iface)
	}

	cmdMapRaw, err := s.doCommand(cmdQCmdMap, nil, 32)
	if err != nil {
		return nil, configErr("query command map not supported: %s", err)
	}
	s.cmdMap.load(cmdMapRaw)
	s.checkAvailAutomatic = true

	busRaw, err := s.doCommand(cmdQBusType, nil, 1)
	if err != nil {
		s.log.Printf("serprog: warning: NAK to query supported buses, assuming parallel/LPC/FWH")
		s.busesSupported = busNonSPI
	} else {
		s.busesSupported = BusType(busRaw[0])
	}

	if s.busesSupported&BusSPI != 0 {
		if err := s.initSPI(spiSpeed); err != nil {
			return nil, err
		}
	}
	if s.busesSupported&busNonSPI != 0 {
		if err := s.initParallel(); err != nil {
			return nil, err
		}
	}

	if nameRaw, err := s.doCommand(cmdQPgmName, nil, 16); err != nil {
		s.log.Printf("serprog: warning: NAK to query programmer name")
	} else {
		s.log.Printf("serprog: programmer name is %q", strings.TrimRight(string(nameRaw), "\x00"))
	}

	if serbufRaw, err := s.doCommand(cmdQSerBuf, nil, 2); err != nil {
		s.log.Printf("serprog: warning: NAK to query serial buffer size")
	} else {
		s.serbufSize = getLE16(serbufRaw)
	}
	s.stream.init(s.serbufSize)

	if s.available(cmdOInit) {
		if !s.available(cmdOExec) {
			return nil, configErr("execute operation buffer not supported")
		}
		if _, err := s.doCommand(cmdOInit, nil, 0); err != nil {
			return nil, configErr("initialize operation buffer: %s", err)
		}
		if opbufRaw, err := s.doCommand(cmdQOpBuf, nil, 2); err != nil {
			s.log.Printf("serprog: warning: NAK to query operation buffer size")
		} else {
			s.opbufSize = getLE16(opbufRaw)
		}
	}

	if s.available(cmdSPinState) {
		if _, err := s.doCommand(cmdSPinState, []byte{1}, 0); err != nil {
			return nil, configErr("could not enable output buffers: %s", err)
		}
	} else {
		s.log.Printf("serprog: warning: programmer does not support toggling its output drivers")
	}

	s.prevWasWrite = false
	s.stream.transmitOps = 0
	s.stream.transmitBytes = 0
	s.opbufUsage = 0
	return s, nil
}

// initSPI negotiates the SPI side: switch the device bus to SPI, pull
// the SPI read/write limits, optionally set the clock, then restore the
// full supported bus set.
func (s *Session) initSPI(spiSpeed string) error {
	if !s.available(cmdOSpiOp) {
		return configErr("SPI operation not supported while the bustype is SPI")
	}
	if _, err := s.doCommand(cmdSBusType, []byte{byte(BusSPI)}, 0); err != nil {
		return err
	}

	if wr, err := s.doCommand(cmdQWrnMaxLen, nil, 3); err == nil {
		v := getLE24(wr)
		if v == 0 {
			v = 1<<24 - 1
		}
		s.spiMaxWrite = v
	}
	if rd, err := s.doCommand(cmdQRdnMaxLen, nil, 3); err == nil {
		v := getLE24(rd)
		if v == 0 {
			v = 1<<24 - 1
		}
		s.spiMaxRead = v
	}

	if spiSpeed != "" {
		hz, err := parseSPISpeed(spiSpeed)
		if err != nil {
			return err
		}
		buf := make([]byte, 4)
		putLE32(buf, hz)
		if !s.available(cmdSSpiFreq) {
			s.log.Printf("serprog: warning: setting the SPI clock rate is not supported")
		} else if actual, err := s.doCommand(cmdSSpiFreq, buf, 4); err != nil {
			s.log.Printf("serprog: warning: setting SPI clock rate to %d Hz failed: %s", hz, err)
		} else {
			s.log.Printf("serprog: requested SPI clock %d Hz, actual %d Hz", hz, getLE32(actual))
		}
	}

	_, err := s.doCommand(cmdSBusType, []byte{byte(s.busesSupported)}, 0)
	return err
}

// initParallel verifies the opcodes the parallel/LPC/FWH programming
// model needs and pulls the write-n/read-n limits.
func (s *Session) initParallel() error {
	for _, required := range []byte{cmdOInit, cmdODelay, cmdRByte, cmdRNBytes, cmdOWriteB} {
		if !s.available(required) {
			return configErr("required parallel command 0x%02X not supported", required)
		}
	}

	if wr, err := s.doCommand(cmdQWrnMaxLen, nil, 3); err != nil {
		s.log.Printf("serprog: write-n not supported")
		s.maxWriteN = 0
	} else if v := getLE24(wr); v == 0 {
		s.log.Printf("serprog: write-n not supported")
		s.maxWriteN = 0
	} else {
		s.maxWriteN = v
		s.writeNBuf = make([]byte, v)
	}

	if s.available(cmdQRdnMaxLen) {
		if rd, err := s.doCommand(cmdQRdnMaxLen, nil, 3); err == nil {
			s.maxReadN = getLE24(rd)
		} else {
			s.maxReadN = 0
		}
	}
	return nil
}

// Shutdown flushes any outstanding work, disables output drivers if
// supported, and releases the transport. Calling Shutdown a second time
// is a no-op.
func (s *Session) Shutdown() error {
	if s.closed {
		return nil
	}
	s.closed = true

	var firstErr error
	if s.opbufUsage > 0 || (s.maxWriteN != 0 && s.writeNBytes > 0) {
		if err := s.executeOpbuf(); err != nil {
			s.log.Printf("serprog: could not flush command buffer: %s", err)
			firstErr = err
		}
	}
	if s.available(cmdSPinState) {
		if _, err := s.doCommand(cmdSPinState, []byte{0}, 0); err != nil {
			s.log.Printf("serprog: warning: could not disable output buffers: %s", err)
		}
	}
	s.stream.free()
	s.writeNBuf = nil
	if err := s.transport.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// Map implements the parallel-bus memory mapping interface: it returns
// physAddr unchanged when it falls in the top 16 MiB (the
// common BIOS flash window), or ok=false otherwise. The returned address
// is never dereferenced by this driver; it flows into chip ops as a
// 24-bit chip address.
func Map(physAddr uint32) (mapped uint32, ok bool) {
	if physAddr&0xFF000000 == 0xFF000000 {
		return physAddr, true
	}
	return 0, false
}

// ChipAddr masks a mapped address down to the 24-bit chip address space
// serprog's wire opcodes use.
func ChipAddr(addr uint32) uint32 {
	return addr & 0xFFFFFF
}
