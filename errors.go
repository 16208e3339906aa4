package serprog

import (
	"fmt"

	"github.com/pkg/errors"
)

// Sentinel errors classifying protocol failures. Use errors.Is against
// these to classify a failure. A transport error's underlying cause is
// included in the message text only; errors.Cause and errors.Unwrap lead
// back to ErrTransport, not to that cause.
var (
	// ErrTransport marks an I/O failure on the underlying channel. Fatal
	// for the current operation.
	ErrTransport = errors.New("serprog: transport error")

	// ErrProtocolNAK marks a device NAK to a submitted command.
	ErrProtocolNAK = errors.New("serprog: device NAK")

	// ErrProtocolDesync marks a response byte that was neither ACK nor
	// NAK: the host and device have lost frame alignment.
	ErrProtocolDesync = errors.New("serprog: protocol desync")

	// ErrUnavailable marks a command refused by the automatic
	// availability check. Soft error: the caller may fall back.
	ErrUnavailable = errors.New("serprog: command not supported by device")

	// ErrConfig marks a bad configuration option.
	ErrConfig = errors.New("serprog: configuration error")
)

func transportErr(op string, cause error) error {
	return errors.Wrapf(ErrTransport, "%s: %s", op, cause)
}

func nakErr(opName string) error {
	return errors.Wrapf(ErrProtocolNAK, "op %s", opName)
}

func desyncErr(opName string, got byte) error {
	return errors.Wrapf(ErrProtocolDesync, "op %s: got 0x%02X", opName, got)
}

func unavailableErr(cmd byte) error {
	return errors.Wrapf(ErrUnavailable, "0x%02X", cmd)
}

func configErr(format string, args ...interface{}) error {
	return errors.Wrap(ErrConfig, fmt.Sprintf(format, args...))
}
