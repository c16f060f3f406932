package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"salonpos/internal/gateway"
	"salonpos/internal/models"
)

// errOperatorCancelled marks a collect aborted by an explicit Cancel call,
// as opposed to a transport-level disconnect.
var errOperatorCancelled = errors.New("collection cancelled by operator")

// TerminalService owns the single card-present device handle and drives the
// connection state machine:
//
//	Uninitialized -> Initializing -> Ready -> Discovering -> Ready
//	Ready -> Connecting -> Connected -> Collecting -> Processing -> Connected
//	Connected -> Disconnected -> Ready (explicit or unexpected disconnect)
//
// No other component may address the device directly. All long operations
// take a context and leave the machine in a defined state on any exit path.
type TerminalService struct {
	gateway gateway.TerminalGateway

	mu            sync.Mutex
	state         models.ConnectionState
	device        *models.TerminalDevice
	collectCancel context.CancelCauseFunc

	discoverTimeout time.Duration
	connectTimeout  time.Duration
}

// NewTerminalService creates a state machine in Uninitialized bound to the
// remote terminal orchestration gateway.
func NewTerminalService(gw gateway.TerminalGateway) *TerminalService {
	return &TerminalService{
		gateway:         gw,
		state:           models.StateUninitialized,
		discoverTimeout: 5 * time.Second,
		connectTimeout:  10 * time.Second,
	}
}

// State returns the machine's current position.
func (s *TerminalService) State() models.ConnectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ConnectedDevice returns the currently connected device, if any.
func (s *TerminalService) ConnectedDevice() *models.TerminalDevice {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.device == nil {
		return nil
	}
	device := *s.device
	return &device
}

// Initialize obtains a connection credential from the remote service and
// moves the machine to Ready.
func (s *TerminalService) Initialize(ctx context.Context) error {
	s.mu.Lock()
	if s.state != models.StateUninitialized && s.state != models.StateDisconnected {
		s.mu.Unlock()
		return fmt.Errorf("cannot initialize from state %s", s.state)
	}
	s.state = models.StateInitializing
	s.mu.Unlock()

	_, err := s.gateway.CreateConnectionToken(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.state = models.StateUninitialized
		return fmt.Errorf("%w: failed to obtain connection token: %v", models.ErrDeviceUnavailable, err)
	}
	s.state = models.StateReady
	return nil
}

// Discover queries the remote service for reader candidates within a bounded
// timeout. An empty result is not an error. Valid from Ready, and from
// Disconnected so the operator can recover after losing a device.
func (s *TerminalService) Discover(ctx context.Context) ([]models.TerminalDevice, error) {
	s.mu.Lock()
	if s.state != models.StateReady && s.state != models.StateDisconnected {
		s.mu.Unlock()
		return nil, fmt.Errorf("discover is only valid from ready, current state is %s", s.state)
	}
	s.state = models.StateDiscovering
	s.mu.Unlock()

	dctx, cancel := context.WithTimeout(ctx, s.discoverTimeout)
	defer cancel()

	devices, err := s.gateway.ListReaders(dctx)

	s.mu.Lock()
	s.state = models.StateReady
	s.mu.Unlock()

	if err != nil {
		return nil, fmt.Errorf("%w: discovery failed: %v", models.ErrDeviceUnavailable, err)
	}
	return devices, nil
}

// Connect binds the machine to one discovered device. On failure the machine
// reverts to Ready with a reported reason.
func (s *TerminalService) Connect(ctx context.Context, device models.TerminalDevice) error {
	s.mu.Lock()
	if s.state != models.StateReady {
		state := s.state
		s.mu.Unlock()
		if state == models.StateConnected {
			return fmt.Errorf("%w: already connected to a reader", models.ErrDeviceBusy)
		}
		return fmt.Errorf("connect is only valid from ready, current state is %s", state)
	}
	s.state = models.StateConnecting
	s.mu.Unlock()

	cctx, cancel := context.WithTimeout(ctx, s.connectTimeout)
	defer cancel()

	// Confirm the reader is still registered and reachable before claiming it.
	readers, err := s.gateway.ListReaders(cctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.state = models.StateReady
		return fmt.Errorf("%w: device unreachable: %v", models.ErrDeviceUnavailable, err)
	}
	for _, r := range readers {
		if r.ID == device.ID {
			connected := r
			s.device = &connected
			s.state = models.StateConnected
			log.Printf("Terminal connected to reader %s (%s)", r.Label, r.ID)
			return nil
		}
	}
	s.state = models.StateReady
	return fmt.Errorf("%w: reader %s rejected or no longer registered", models.ErrDeviceUnavailable, device.ID)
}

// CollectPayment runs the three sub-steps of a card-present charge: create a
// remote payment intent, drive the reader to collect a presentment, then
// capture. Any failure aborts back to Connected with a typed error. Only one
// collection may run per device handle; concurrent calls are rejected.
func (s *TerminalService) CollectPayment(ctx context.Context, amount float64, currency string, metadata map[string]string) (*gateway.PaymentIntent, error) {
	s.mu.Lock()
	switch s.state {
	case models.StateConnected:
		// proceed
	case models.StateCollecting, models.StateProcessing:
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: a payment collection is already in flight", models.ErrDeviceBusy)
	default:
		state := s.state
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: no connected reader (state %s)", models.ErrDeviceUnavailable, state)
	}
	readerID := s.device.ID
	cctx, cancel := context.WithCancelCause(ctx)
	s.collectCancel = cancel
	s.state = models.StateCollecting
	s.mu.Unlock()

	defer func() {
		cancel(nil)
		s.mu.Lock()
		s.collectCancel = nil
		// An unexpected disconnect may have forced Disconnected while we
		// were in flight; only settle back to Connected from our own states.
		if s.state == models.StateCollecting || s.state == models.StateProcessing {
			s.state = models.StateConnected
		}
		s.mu.Unlock()
	}()

	amountMinor := int64(math.Round(amount * 100))

	intent, err := s.gateway.CreatePaymentIntent(cctx, amountMinor, currency, metadata)
	if err != nil {
		return nil, s.collectFailure(cctx, "", err)
	}

	if err := s.gateway.CollectPaymentMethod(cctx, readerID, intent.ID); err != nil {
		return nil, s.collectFailure(cctx, intent.ID, err)
	}

	s.mu.Lock()
	if s.state == models.StateCollecting {
		s.state = models.StateProcessing
	}
	s.mu.Unlock()

	captured, err := s.gateway.CapturePayment(cctx, intent.ID)
	if err != nil {
		return nil, s.collectFailure(cctx, intent.ID, err)
	}

	return captured, nil
}

// collectFailure translates a failed sub-step into the error taxonomy and
// voids the abandoned intent best-effort.
func (s *TerminalService) collectFailure(cctx context.Context, intentID string, err error) error {
	if intentID != "" {
		// Use a fresh short-lived context: cctx may already be cancelled.
		vctx, vcancel := context.WithTimeout(context.Background(), 5*time.Second)
		if cancelErr := s.gateway.CancelPaymentIntent(vctx, intentID); cancelErr != nil {
			log.Printf("Warning: failed to void abandoned payment intent %s: %v", intentID, cancelErr)
		}
		vcancel()
	}

	cause := context.Cause(cctx)
	switch {
	case errors.Is(cause, models.ErrDeviceUnavailable):
		return fmt.Errorf("%w: reader disconnected during collection", models.ErrDeviceUnavailable)
	case errors.Is(cause, errOperatorCancelled):
		return &models.PaymentError{Kind: models.PaymentCancelled, Reason: "collection cancelled by operator"}
	}

	var paymentErr *models.PaymentError
	if errors.As(err, &paymentErr) {
		return paymentErr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &models.PaymentError{Kind: models.PaymentTimeout, Reason: "card presentment timed out"}
	}
	return &models.PaymentError{Kind: models.PaymentNetwork, Reason: err.Error()}
}

// Cancel aborts an in-flight collection. Safe to call concurrently with
// CollectPayment; if the collection already completed there is nothing to do
// and ErrNothingToCancel reports that outcome.
func (s *TerminalService) Cancel(ctx context.Context) error {
	s.mu.Lock()
	if s.state != models.StateCollecting && s.state != models.StateProcessing {
		s.mu.Unlock()
		return models.ErrNothingToCancel
	}
	cancel := s.collectCancel
	var readerID string
	if s.device != nil {
		readerID = s.device.ID
	}
	s.mu.Unlock()

	// Best-effort remote abort; local cancellation wins regardless.
	if readerID != "" {
		if err := s.gateway.CancelCollection(ctx, readerID); err != nil {
			log.Printf("Warning: remote cancel on reader %s failed: %v", readerID, err)
		}
	}
	if cancel != nil {
		cancel(errOperatorCancelled)
	}
	return nil
}

// Disconnect releases the device. It always succeeds locally; the device is
// treated as unreachable afterwards even if remote teardown failed.
func (s *TerminalService) Disconnect(ctx context.Context) error {
	s.mu.Lock()
	if s.state != models.StateConnected {
		s.mu.Unlock()
		return fmt.Errorf("disconnect is only valid from connected, current state is %s", s.state)
	}
	device := s.device
	s.state = models.StateDisconnected
	s.device = nil
	s.mu.Unlock()

	if device != nil {
		log.Printf("Terminal disconnected from reader %s", device.ID)
	}

	// Disconnected settles into Ready: the operator can discover again.
	s.mu.Lock()
	s.state = models.StateReady
	s.mu.Unlock()
	return nil
}

// ReportDisconnect is the transport-level callback for an unexpected
// disconnect. It forces the machine to Disconnected from any connected state
// and resolves an in-flight collection with a device error so the order flow
// sees a failure instead of hanging.
func (s *TerminalService) ReportDisconnect(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case models.StateConnected, models.StateCollecting, models.StateProcessing:
		log.Printf("Unexpected reader disconnect: %s", reason)
		s.state = models.StateDisconnected
		s.device = nil
		if s.collectCancel != nil {
			s.collectCancel(models.ErrDeviceUnavailable)
		}
	}
}
