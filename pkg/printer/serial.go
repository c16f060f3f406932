package printer

import (
	"context"
	"fmt"

	"go.bug.st/serial"
)

// SerialConfig identifies the serial port the printer hangs off.
type SerialConfig struct {
	Port     string // e.g. /dev/ttyUSB0 or COM3
	BaudRate int
}

// SerialTransport writes raw bytes to an open serial port.
type SerialTransport struct {
	port serial.Port
	name string
}

// OpenSerial opens the port at the configured baud rate (9600 if unset).
func OpenSerial(cfg SerialConfig) (*SerialTransport, error) {
	baud := cfg.BaudRate
	if baud == 0 {
		baud = 9600
	}
	port, err := serial.Open(cfg.Port, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrDeviceNotFound, cfg.Port, err)
	}
	return &SerialTransport{port: port, name: cfg.Port}, nil
}

// Write sends the full sequence to the port. Serial writes are not
// interruptible mid-transfer, so cancellation is only honored between the
// context check and the write itself.
func (t *SerialTransport) Write(ctx context.Context, data []byte) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	n, err := t.port.Write(data)
	if err != nil {
		return n, fmt.Errorf("serial write to %s failed: %w", t.name, err)
	}
	if n < len(data) {
		return n, partialWriteError(n, len(data))
	}
	return n, nil
}

// Close closes the port.
func (t *SerialTransport) Close() error {
	return t.port.Close()
}
