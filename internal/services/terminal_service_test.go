package services_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"salonpos/internal/gateway"
	"salonpos/internal/models"
	"salonpos/internal/services"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTerminalGateway is a hand-written in-memory stand-in for the remote
// terminal orchestration service. Behavior is overridden per test through
// the function fields.
type fakeTerminalGateway struct {
	mu sync.Mutex

	tokenErr   error
	readers    []models.TerminalDevice
	listErr    error
	collectFn  func(ctx context.Context, readerID, intentID string) error
	captureErr error

	cancelledIntents  []string
	cancelCollectHits int
}

func (g *fakeTerminalGateway) CreateConnectionToken(ctx context.Context) (string, error) {
	if g.tokenErr != nil {
		return "", g.tokenErr
	}
	return "tok_test", nil
}

func (g *fakeTerminalGateway) ListReaders(ctx context.Context) ([]models.TerminalDevice, error) {
	if g.listErr != nil {
		return nil, g.listErr
	}
	return g.readers, nil
}

func (g *fakeTerminalGateway) CreatePaymentIntent(ctx context.Context, amountMinor int64, currency string, metadata map[string]string) (*gateway.PaymentIntent, error) {
	return &gateway.PaymentIntent{ID: "pi_test", Amount: amountMinor, Currency: currency, Status: "requires_payment_method"}, nil
}

func (g *fakeTerminalGateway) CollectPaymentMethod(ctx context.Context, readerID, intentID string) error {
	if g.collectFn != nil {
		return g.collectFn(ctx, readerID, intentID)
	}
	return nil
}

func (g *fakeTerminalGateway) CapturePayment(ctx context.Context, intentID string) (*gateway.PaymentIntent, error) {
	if g.captureErr != nil {
		return nil, g.captureErr
	}
	return &gateway.PaymentIntent{ID: intentID, Status: "succeeded"}, nil
}

func (g *fakeTerminalGateway) CancelCollection(ctx context.Context, readerID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cancelCollectHits++
	return nil
}

func (g *fakeTerminalGateway) CancelPaymentIntent(ctx context.Context, intentID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cancelledIntents = append(g.cancelledIntents, intentID)
	return nil
}

func (g *fakeTerminalGateway) Refund(ctx context.Context, intentID string, amountMinor int64) (string, error) {
	return "re_test", nil
}

func (g *fakeTerminalGateway) voidedIntents() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.cancelledIntents...)
}

// connectedService fast-forwards a fresh machine to Connected.
func connectedService(t *testing.T, gw *fakeTerminalGateway) *services.TerminalService {
	t.Helper()
	if gw.readers == nil {
		gw.readers = []models.TerminalDevice{{ID: "rdr_1", Label: "Front desk"}}
	}
	svc := services.NewTerminalService(gw)
	require.NoError(t, svc.Initialize(context.Background()))
	require.NoError(t, svc.Connect(context.Background(), models.TerminalDevice{ID: "rdr_1"}))
	require.Equal(t, models.StateConnected, svc.State())
	return svc
}

func TestTerminalService_InitializeMovesToReady(t *testing.T) {
	svc := services.NewTerminalService(&fakeTerminalGateway{})
	assert.Equal(t, models.StateUninitialized, svc.State())

	assert.NoError(t, svc.Initialize(context.Background()))
	assert.Equal(t, models.StateReady, svc.State())
}

func TestTerminalService_InitializeFailureRevertsState(t *testing.T) {
	gw := &fakeTerminalGateway{tokenErr: errors.New("network down")}
	svc := services.NewTerminalService(gw)

	err := svc.Initialize(context.Background())
	assert.ErrorIs(t, err, models.ErrDeviceUnavailable)
	assert.Equal(t, models.StateUninitialized, svc.State())
}

func TestTerminalService_OperationsRejectedBeforeInitialize(t *testing.T) {
	svc := services.NewTerminalService(&fakeTerminalGateway{})

	_, err := svc.Discover(context.Background())
	assert.Error(t, err)

	err = svc.Connect(context.Background(), models.TerminalDevice{ID: "rdr_1"})
	assert.Error(t, err)

	_, err = svc.CollectPayment(context.Background(), 100, "nok", nil)
	assert.ErrorIs(t, err, models.ErrDeviceUnavailable)
}

func TestTerminalService_DiscoverEmptyResultIsNotAnError(t *testing.T) {
	svc := services.NewTerminalService(&fakeTerminalGateway{})
	require.NoError(t, svc.Initialize(context.Background()))

	devices, err := svc.Discover(context.Background())
	assert.NoError(t, err)
	assert.Empty(t, devices)
	assert.Equal(t, models.StateReady, svc.State())
}

func TestTerminalService_ConnectUnknownReaderRevertsToReady(t *testing.T) {
	gw := &fakeTerminalGateway{readers: []models.TerminalDevice{{ID: "rdr_other"}}}
	svc := services.NewTerminalService(gw)
	require.NoError(t, svc.Initialize(context.Background()))

	err := svc.Connect(context.Background(), models.TerminalDevice{ID: "rdr_missing"})
	assert.ErrorIs(t, err, models.ErrDeviceUnavailable)
	assert.Equal(t, models.StateReady, svc.State())
	assert.Nil(t, svc.ConnectedDevice())
}

func TestTerminalService_ConnectBindsDevice(t *testing.T) {
	svc := connectedService(t, &fakeTerminalGateway{})

	device := svc.ConnectedDevice()
	require.NotNil(t, device)
	assert.Equal(t, "rdr_1", device.ID)

	// A second connect while already bound is rejected as busy.
	err := svc.Connect(context.Background(), models.TerminalDevice{ID: "rdr_1"})
	assert.ErrorIs(t, err, models.ErrDeviceBusy)
}

func TestTerminalService_CollectPaymentHappyPath(t *testing.T) {
	gw := &fakeTerminalGateway{}
	svc := connectedService(t, gw)

	intent, err := svc.CollectPayment(context.Background(), 437.50, "nok", map[string]string{"tenant_id": "t1"})
	require.NoError(t, err)
	assert.Equal(t, "pi_test", intent.ID)
	assert.Equal(t, "succeeded", intent.Status)
	assert.Equal(t, models.StateConnected, svc.State())
}

func TestTerminalService_ConcurrentCollectIsRejected(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	gw := &fakeTerminalGateway{
		collectFn: func(ctx context.Context, readerID, intentID string) error {
			close(started)
			<-release
			return nil
		},
	}
	svc := connectedService(t, gw)

	done := make(chan error, 1)
	go func() {
		_, err := svc.CollectPayment(context.Background(), 100, "nok", nil)
		done <- err
	}()
	<-started

	_, err := svc.CollectPayment(context.Background(), 50, "nok", nil)
	assert.ErrorIs(t, err, models.ErrDeviceBusy)

	close(release)
	assert.NoError(t, <-done)
	assert.Equal(t, models.StateConnected, svc.State())
}

func TestTerminalService_CancelAbortsInFlightCollect(t *testing.T) {
	started := make(chan struct{})
	gw := &fakeTerminalGateway{
		collectFn: func(ctx context.Context, readerID, intentID string) error {
			close(started)
			<-ctx.Done()
			return context.Cause(ctx)
		},
	}
	svc := connectedService(t, gw)

	done := make(chan error, 1)
	go func() {
		_, err := svc.CollectPayment(context.Background(), 100, "nok", nil)
		done <- err
	}()
	<-started

	require.NoError(t, svc.Cancel(context.Background()))

	err := <-done
	var paymentErr *models.PaymentError
	require.ErrorAs(t, err, &paymentErr)
	assert.Equal(t, models.PaymentCancelled, paymentErr.Kind)
	assert.Equal(t, models.StateConnected, svc.State())

	// The abandoned intent is voided remotely.
	assert.Eventually(t, func() bool {
		return len(gw.voidedIntents()) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestTerminalService_CancelWithNothingInFlight(t *testing.T) {
	svc := connectedService(t, &fakeTerminalGateway{})

	err := svc.Cancel(context.Background())
	assert.ErrorIs(t, err, models.ErrNothingToCancel)
	assert.Equal(t, models.StateConnected, svc.State())
}

func TestTerminalService_DeclinedCardVoidsIntent(t *testing.T) {
	gw := &fakeTerminalGateway{
		collectFn: func(ctx context.Context, readerID, intentID string) error {
			return &models.PaymentError{Kind: models.PaymentDeclined, Reason: "card declined"}
		},
	}
	svc := connectedService(t, gw)

	_, err := svc.CollectPayment(context.Background(), 100, "nok", nil)
	var paymentErr *models.PaymentError
	require.ErrorAs(t, err, &paymentErr)
	assert.Equal(t, models.PaymentDeclined, paymentErr.Kind)
	assert.Equal(t, []string{"pi_test"}, gw.voidedIntents())
	assert.Equal(t, models.StateConnected, svc.State())
}

func TestTerminalService_ReportDisconnectMidCollect(t *testing.T) {
	started := make(chan struct{})
	gw := &fakeTerminalGateway{
		collectFn: func(ctx context.Context, readerID, intentID string) error {
			close(started)
			<-ctx.Done()
			return context.Cause(ctx)
		},
	}
	svc := connectedService(t, gw)

	done := make(chan error, 1)
	go func() {
		_, err := svc.CollectPayment(context.Background(), 100, "nok", nil)
		done <- err
	}()
	<-started

	svc.ReportDisconnect("usb cable pulled")

	err := <-done
	assert.ErrorIs(t, err, models.ErrDeviceUnavailable)
	assert.Equal(t, models.StateDisconnected, svc.State())
	assert.Nil(t, svc.ConnectedDevice())
}

func TestTerminalService_DisconnectSettlesToReady(t *testing.T) {
	svc := connectedService(t, &fakeTerminalGateway{})

	assert.NoError(t, svc.Disconnect(context.Background()))
	assert.Equal(t, models.StateReady, svc.State())
	assert.Nil(t, svc.ConnectedDevice())

	// The machine can discover and reconnect after a disconnect.
	devices, err := svc.Discover(context.Background())
	assert.NoError(t, err)
	assert.Len(t, devices, 1)
	assert.NoError(t, svc.Connect(context.Background(), devices[0]))
	assert.Equal(t, models.StateConnected, svc.State())
}
