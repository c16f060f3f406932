// Package printer provides duplex byte-stream transports to a physical
// receipt printer. A transport knows nothing about ESC/POS; it only moves
// bytes that were already encoded upstream.
package printer

import (
	"context"
	"errors"
	"fmt"
)

// Transport is the single operation the rest of the system sees. Setup
// (device claiming, port opening) happens in the constructors; after that a
// transport is write-only until closed.
type Transport interface {
	// Write sends the full byte sequence to the device. A short write is
	// reported via ErrPartialWrite and is NOT retried here; the caller
	// decides whether to retry or abort.
	Write(ctx context.Context, data []byte) (int, error)
	Close() error
}

// Transport-level failure modes.
var (
	ErrDeviceNotFound = errors.New("printer device not found")
	ErrClaimDenied    = errors.New("printer interface claim denied")
	ErrWriteTimeout   = errors.New("printer transfer timeout")
	ErrPartialWrite   = errors.New("partial write to printer")
)

// partialWriteError builds an ErrPartialWrite carrying the written count.
func partialWriteError(written, total int) error {
	return fmt.Errorf("%w: wrote %d of %d bytes", ErrPartialWrite, written, total)
}
