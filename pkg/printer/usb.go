package printer

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/gousb"
)

// USBConfig identifies the printer on the bus and the bulk-out endpoint to
// write to. Most ESC/POS printers expose endpoint 1 on the default interface.
type USBConfig struct {
	VendorID  uint16
	ProductID uint16
	Endpoint  int
}

// USBTransport writes to a claimed USB bulk-out endpoint.
type USBTransport struct {
	ctx     *gousb.Context
	dev     *gousb.Device
	intf    *gousb.Interface
	release func()
	out     *gousb.OutEndpoint
}

// OpenUSB finds the device by vendor/product id, claims its default
// interface and resolves the bulk-out endpoint. All claiming happens here,
// before the first Write.
func OpenUSB(cfg USBConfig) (*USBTransport, error) {
	ctx := gousb.NewContext()

	dev, err := ctx.OpenDeviceWithVIDPID(gousb.ID(cfg.VendorID), gousb.ID(cfg.ProductID))
	if err != nil {
		ctx.Close()
		return nil, fmt.Errorf("%w: %v", ErrDeviceNotFound, err)
	}
	if dev == nil {
		ctx.Close()
		return nil, fmt.Errorf("%w: no device %04x:%04x on bus", ErrDeviceNotFound, cfg.VendorID, cfg.ProductID)
	}

	// Detach any kernel driver holding the interface, then claim it.
	if err := dev.SetAutoDetach(true); err != nil {
		dev.Close()
		ctx.Close()
		return nil, fmt.Errorf("%w: %v", ErrClaimDenied, err)
	}

	intf, release, err := dev.DefaultInterface()
	if err != nil {
		dev.Close()
		ctx.Close()
		return nil, fmt.Errorf("%w: %v", ErrClaimDenied, err)
	}

	endpoint := cfg.Endpoint
	if endpoint == 0 {
		endpoint = 1
	}
	out, err := intf.OutEndpoint(endpoint)
	if err != nil {
		release()
		dev.Close()
		ctx.Close()
		return nil, fmt.Errorf("%w: no bulk-out endpoint %d: %v", ErrClaimDenied, endpoint, err)
	}

	return &USBTransport{ctx: ctx, dev: dev, intf: intf, release: release, out: out}, nil
}

// Write performs a bulk-out transfer of the full sequence.
func (t *USBTransport) Write(ctx context.Context, data []byte) (int, error) {
	n, err := t.out.WriteContext(ctx, data)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return n, fmt.Errorf("%w: %v", ErrWriteTimeout, err)
		}
		return n, fmt.Errorf("usb bulk transfer failed: %w", err)
	}
	if n < len(data) {
		return n, partialWriteError(n, len(data))
	}
	return n, nil
}

// Close releases the claimed interface and the device.
func (t *USBTransport) Close() error {
	if t.release != nil {
		t.release()
	}
	var errs []error
	if t.dev != nil {
		if err := t.dev.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if t.ctx != nil {
		if err := t.ctx.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("failed to close usb transport: %v", errs)
	}
	return nil
}
