package services_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"salonpos/internal/gateway"
	"salonpos/internal/models"
	"salonpos/internal/repositories"
	"salonpos/internal/services"
	"salonpos/pkg/rabbitmq"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCollector stands in for the terminal service.
type fakeCollector struct {
	err    error
	intent *gateway.PaymentIntent
}

func (c *fakeCollector) CollectPayment(ctx context.Context, amount float64, currency string, metadata map[string]string) (*gateway.PaymentIntent, error) {
	if c.err != nil {
		return nil, c.err
	}
	if c.intent != nil {
		return c.intent, nil
	}
	return &gateway.PaymentIntent{ID: "pi_test", Status: "succeeded"}, nil
}

// fakeQueue records published receipt jobs.
type fakeQueue struct {
	mu   sync.Mutex
	jobs []rabbitmq.ReceiptJob
	err  error
}

func (q *fakeQueue) PublishReceiptJob(job rabbitmq.ReceiptJob) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, job)
	return nil
}

func (q *fakeQueue) published() []rabbitmq.ReceiptJob {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]rabbitmq.ReceiptJob(nil), q.jobs...)
}

// fakeWallet is a hand-written wallet gateway double.
type fakeWallet struct {
	initiateErr error
	captured    []string
	refunded    []string
}

func (w *fakeWallet) InitiatePayment(ctx context.Context, amount float64, currency, orderRef, fallbackURL string) (*gateway.WalletSession, error) {
	if w.initiateErr != nil {
		return nil, w.initiateErr
	}
	return &gateway.WalletSession{RedirectURL: "https://wallet.example/pay/" + orderRef, Reference: "w_" + orderRef}, nil
}

func (w *fakeWallet) GetStatus(ctx context.Context, reference string) (string, error) {
	return "RESERVED", nil
}

func (w *fakeWallet) Capture(ctx context.Context, reference string, amount float64) error {
	w.captured = append(w.captured, reference)
	return nil
}

func (w *fakeWallet) Refund(ctx context.Context, reference string, amount float64) error {
	w.refunded = append(w.refunded, reference)
	return nil
}

func testCart(t *testing.T) *models.Cart {
	t.Helper()
	cart := models.NewCart(1)
	require.NoError(t, cart.AddLine(models.CartLine{
		Kind: models.ItemService, RefID: 10, Name: "Klipp dame", Quantity: 1, UnitPrice: 350.00, VATRate: 25,
	}))
	return cart
}

func TestCheckoutService_CashCheckout(t *testing.T) {
	repo := repositories.NewMockOrderRepository()
	queue := &fakeQueue{}
	svc := services.NewCheckoutService(repo, &fakeCollector{}, nil, nil, queue, "nok")

	result, err := svc.Checkout(context.Background(), "tenant-1", services.CheckoutRequest{
		Cart:          testCart(t),
		Method:        models.PayCash,
		CustomerEmail: "kunde@example.com",
	})
	require.NoError(t, err)

	assert.Equal(t, models.OrderCompleted, result.Order.Status)
	assert.Equal(t, int64(1), result.Order.OrderNumber)
	assert.Equal(t, 350.00, result.Order.Subtotal)
	assert.Equal(t, 87.50, result.Order.VATAmount)
	assert.Equal(t, 437.50, result.Order.Total)
	assert.Equal(t, models.PaymentCompleted, result.Payment.Status)
	assert.Equal(t, 437.50, result.Payment.Amount)
	assert.NotEmpty(t, result.Payment.Reference)
	assert.False(t, result.Replayed)

	jobs := queue.published()
	require.Len(t, jobs, 1)
	assert.Equal(t, result.Order.ID, jobs[0].OrderID)
	assert.Equal(t, []string{"print", "email"}, jobs[0].Channels)
	assert.Equal(t, "kunde@example.com", jobs[0].CustomerEmail)
}

func TestCheckoutService_RejectsEmptyCart(t *testing.T) {
	svc := services.NewCheckoutService(repositories.NewMockOrderRepository(), nil, nil, nil, nil, "nok")

	var validationErr *models.ValidationError

	_, err := svc.Checkout(context.Background(), "tenant-1", services.CheckoutRequest{
		Cart: models.NewCart(1), Method: models.PayCash,
	})
	assert.ErrorAs(t, err, &validationErr)

	cart := testCart(t)
	cart.SetEmployee(0)
	_, err = svc.Checkout(context.Background(), "tenant-1", services.CheckoutRequest{
		Cart: cart, Method: models.PayCash,
	})
	assert.ErrorAs(t, err, &validationErr)
}

func TestCheckoutService_CommitFailureLeavesNoRows(t *testing.T) {
	repo := repositories.NewMockOrderRepository()
	repo.CommitFault = func(step string) error {
		if step == "payment" {
			return errors.New("disk full")
		}
		return nil
	}
	svc := services.NewCheckoutService(repo, nil, nil, nil, &fakeQueue{}, "nok")

	_, err := svc.Checkout(context.Background(), "tenant-1", services.CheckoutRequest{
		Cart: testCart(t), Method: models.PayCash,
	})
	var persistErr *models.PersistenceError
	require.ErrorAs(t, err, &persistErr)

	// Nothing partial is visible after the rollback.
	orders, err := svc.GetOrders("tenant-1")
	require.NoError(t, err)
	assert.Empty(t, orders)

	// The failed attempt burned its order number; the next sale skips it.
	repo.CommitFault = nil
	result, err := svc.Checkout(context.Background(), "tenant-1", services.CheckoutRequest{
		Cart: testCart(t), Method: models.PayCash,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), result.Order.OrderNumber)
}

func TestCheckoutService_IdempotentRetry(t *testing.T) {
	repo := repositories.NewMockOrderRepository()
	queue := &fakeQueue{}
	svc := services.NewCheckoutService(repo, nil, nil, nil, queue, "nok")

	first, err := svc.Checkout(context.Background(), "tenant-1", services.CheckoutRequest{
		Cart: testCart(t), Method: models.PayCash, IdempotencyKey: "retry-abc",
	})
	require.NoError(t, err)

	second, err := svc.Checkout(context.Background(), "tenant-1", services.CheckoutRequest{
		Cart: testCart(t), Method: models.PayCash, IdempotencyKey: "retry-abc",
	})
	require.NoError(t, err)

	assert.True(t, second.Replayed)
	assert.Equal(t, first.Order.ID, second.Order.ID)
	assert.Equal(t, first.Order.OrderNumber, second.Order.OrderNumber)

	orders, err := svc.GetOrders("tenant-1")
	require.NoError(t, err)
	assert.Len(t, orders, 1)

	// The replay publishes no second receipt job.
	assert.Len(t, queue.published(), 1)
}

func TestCheckoutService_DeclinedCardLeavesNoRows(t *testing.T) {
	repo := repositories.NewMockOrderRepository()
	queue := &fakeQueue{}
	collector := &fakeCollector{err: &models.PaymentError{Kind: models.PaymentDeclined, Reason: "insufficient funds"}}
	svc := services.NewCheckoutService(repo, collector, nil, nil, queue, "nok")

	_, err := svc.Checkout(context.Background(), "tenant-1", services.CheckoutRequest{
		Cart: testCart(t), Method: models.PayCard,
	})
	var paymentErr *models.PaymentError
	require.ErrorAs(t, err, &paymentErr)
	assert.Equal(t, models.PaymentDeclined, paymentErr.Kind)

	orders, err := svc.GetOrders("tenant-1")
	require.NoError(t, err)
	assert.Empty(t, orders)
	assert.Empty(t, queue.published())
}

func TestCheckoutService_CardCheckoutRecordsIntentReference(t *testing.T) {
	repo := repositories.NewMockOrderRepository()
	collector := &fakeCollector{intent: &gateway.PaymentIntent{ID: "pi_777", Status: "succeeded"}}
	svc := services.NewCheckoutService(repo, collector, nil, nil, &fakeQueue{}, "nok")

	result, err := svc.Checkout(context.Background(), "tenant-1", services.CheckoutRequest{
		Cart: testCart(t), Method: models.PayCard,
	})
	require.NoError(t, err)
	assert.Equal(t, models.OrderCompleted, result.Order.Status)
	assert.Equal(t, "pi_777", result.Payment.ExternalReference)
}

func TestCheckoutService_QueueFailureDoesNotFailTheSale(t *testing.T) {
	repo := repositories.NewMockOrderRepository()
	queue := &fakeQueue{err: errors.New("broker unreachable")}
	svc := services.NewCheckoutService(repo, nil, nil, nil, queue, "nok")

	result, err := svc.Checkout(context.Background(), "tenant-1", services.CheckoutRequest{
		Cart: testCart(t), Method: models.PayCash,
	})
	require.NoError(t, err)
	assert.Equal(t, models.OrderCompleted, result.Order.Status)
}

func TestCheckoutService_WalletCheckoutAndCallback(t *testing.T) {
	repo := repositories.NewMockOrderRepository()
	queue := &fakeQueue{}
	wallet := &fakeWallet{}
	svc := services.NewCheckoutService(repo, nil, nil, wallet, queue, "nok")

	result, err := svc.Checkout(context.Background(), "tenant-1", services.CheckoutRequest{
		Cart: testCart(t), Method: models.PayWallet, FallbackURL: "https://salon.example/done",
	})
	require.NoError(t, err)

	assert.Equal(t, models.OrderPending, result.Order.Status)
	assert.Equal(t, models.PaymentPending, result.Payment.Status)
	assert.NotEmpty(t, result.RedirectURL)
	// No receipt until the payment settles.
	assert.Empty(t, queue.published())

	err = svc.CompleteWalletPayment(context.Background(), result.Payment.Reference, "RESERVED", "kunde@example.com")
	require.NoError(t, err)

	assert.Equal(t, []string{result.Payment.ExternalReference}, wallet.captured)

	order, err := repo.GetOrder("tenant-1", result.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderCompleted, order.Status)

	payment, err := repo.GetPayment(result.Payment.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentCompleted, payment.Status)

	require.Len(t, queue.published(), 1)

	// A duplicate callback is ignored without error.
	assert.NoError(t, svc.CompleteWalletPayment(context.Background(), result.Payment.Reference, "RESERVED", ""))
	assert.Len(t, queue.published(), 1)
}

func TestCheckoutService_WalletCallbackCancellation(t *testing.T) {
	repo := repositories.NewMockOrderRepository()
	svc := services.NewCheckoutService(repo, nil, nil, &fakeWallet{}, &fakeQueue{}, "nok")

	result, err := svc.Checkout(context.Background(), "tenant-1", services.CheckoutRequest{
		Cart: testCart(t), Method: models.PayWallet,
	})
	require.NoError(t, err)

	require.NoError(t, svc.CompleteWalletPayment(context.Background(), result.Payment.Reference, "CANCELLED", ""))

	order, err := repo.GetOrder("tenant-1", result.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderFailed, order.Status)

	payment, err := repo.GetPayment(result.Payment.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentFailed, payment.Status)
}

func TestCheckoutService_WalletInitiationFailureLeavesNoRows(t *testing.T) {
	repo := repositories.NewMockOrderRepository()
	wallet := &fakeWallet{initiateErr: fmt.Errorf("provider unavailable")}
	svc := services.NewCheckoutService(repo, nil, nil, wallet, &fakeQueue{}, "nok")

	_, err := svc.Checkout(context.Background(), "tenant-1", services.CheckoutRequest{
		Cart: testCart(t), Method: models.PayWallet,
	})
	var paymentErr *models.PaymentError
	require.ErrorAs(t, err, &paymentErr)
	assert.Equal(t, models.PaymentNetwork, paymentErr.Kind)

	orders, err := svc.GetOrders("tenant-1")
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestCheckoutService_RefundValidatesBalance(t *testing.T) {
	repo := repositories.NewMockOrderRepository()
	svc := services.NewCheckoutService(repo, nil, nil, nil, &fakeQueue{}, "nok")

	result, err := svc.Checkout(context.Background(), "tenant-1", services.CheckoutRequest{
		Cart: testCart(t), Method: models.PayCash,
	})
	require.NoError(t, err)

	// Over-balance refund is rejected.
	var validationErr *models.ValidationError
	_, err = svc.Refund(context.Background(), "tenant-1", result.Order.ID, 500.00, "changed mind")
	assert.ErrorAs(t, err, &validationErr)

	// Partial refund leaves the order completed with a reduced balance.
	refund, err := svc.Refund(context.Background(), "tenant-1", result.Order.ID, 100.00, "discount applied late")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentRefunded, refund.Status)
	assert.Equal(t, 100.00, refund.Amount)
	assert.NotNil(t, refund.OriginalPaymentID)
	assert.Equal(t, result.Payment.ID, *refund.OriginalPaymentID)

	balance, err := svc.RefundableBalance("tenant-1", result.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, 337.50, balance)

	order, err := repo.GetOrder("tenant-1", result.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderCompleted, order.Status)

	// Exhausting the balance flips the order to refunded.
	_, err = svc.Refund(context.Background(), "tenant-1", result.Order.ID, 337.50, "full reversal")
	require.NoError(t, err)

	balance, err = svc.RefundableBalance("tenant-1", result.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, 0.00, balance)

	order, err = repo.GetOrder("tenant-1", result.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderRefunded, order.Status)

	// Nothing left to refund.
	_, err = svc.Refund(context.Background(), "tenant-1", result.Order.ID, 1.00, "again")
	assert.ErrorAs(t, err, &validationErr)
}

func TestCheckoutService_WalletRefundGoesThroughGateway(t *testing.T) {
	repo := repositories.NewMockOrderRepository()
	wallet := &fakeWallet{}
	svc := services.NewCheckoutService(repo, nil, nil, wallet, &fakeQueue{}, "nok")

	result, err := svc.Checkout(context.Background(), "tenant-1", services.CheckoutRequest{
		Cart: testCart(t), Method: models.PayWallet,
	})
	require.NoError(t, err)
	require.NoError(t, svc.CompleteWalletPayment(context.Background(), result.Payment.Reference, "RESERVED", ""))

	refund, err := svc.Refund(context.Background(), "tenant-1", result.Order.ID, 437.50, "service complaint")
	require.NoError(t, err)
	assert.Equal(t, models.PayWallet, refund.Method)
	assert.Equal(t, []string{result.Payment.ExternalReference}, wallet.refunded)
}
