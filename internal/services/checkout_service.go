package services

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/bwmarrin/snowflake"

	"salonpos/internal/gateway"
	"salonpos/internal/models"
	"salonpos/internal/repositories"
	"salonpos/pkg/rabbitmq"
)

// CardCollector is the slice of the terminal service the checkout flow
// needs: collect a card-present payment and report a typed outcome.
type CardCollector interface {
	CollectPayment(ctx context.Context, amount float64, currency string, metadata map[string]string) (*gateway.PaymentIntent, error)
}

// ReceiptQueue publishes receipt delivery jobs. Satisfied by the rabbitmq
// client; mocked in tests.
type ReceiptQueue interface {
	PublishReceiptJob(job rabbitmq.ReceiptJob) error
}

// CheckoutRequest carries everything a single checkout needs beyond the cart.
type CheckoutRequest struct {
	Cart           *models.Cart
	Method         models.PaymentMethod
	IdempotencyKey string
	CustomerEmail  string
	// FallbackURL is where the wallet provider sends the customer after the
	// redirect flow finishes. Only used for wallet payments.
	FallbackURL string
}

// CheckoutResult is the outcome of a commit: the three durable rows, plus
// the redirect URL when a wallet flow was initiated.
type CheckoutResult struct {
	Order       models.Order       `json:"order"`
	Items       []models.OrderItem `json:"items"`
	Payment     models.Payment     `json:"payment"`
	RedirectURL string             `json:"redirect_url,omitempty"`
	Replayed    bool               `json:"replayed"`
}

// CheckoutService commits carts to durable orders. Payment is settled before
// anything is written: a declined card never leaves rows behind. Cash
// commits immediately; wallet commits Pending and completes via callback.
type CheckoutService struct {
	orderRepo repositories.OrderRepository
	terminal  CardCollector
	cardGw    gateway.TerminalGateway
	wallet    gateway.WalletGateway
	queue     ReceiptQueue
	node      *snowflake.Node
	currency  string
}

// NewCheckoutService creates a CheckoutService. terminal, cardGw, wallet and
// queue may be nil when the corresponding capability is not configured.
func NewCheckoutService(orderRepo repositories.OrderRepository, terminal CardCollector, cardGw gateway.TerminalGateway, wallet gateway.WalletGateway, queue ReceiptQueue, currency string) *CheckoutService {
	node, err := snowflake.NewNode(1)
	if err != nil {
		// Node id 1 is always in range; this cannot happen at runtime.
		panic(fmt.Sprintf("failed to create snowflake node: %v", err))
	}
	return &CheckoutService{
		orderRepo: orderRepo,
		terminal:  terminal,
		cardGw:    cardGw,
		wallet:    wallet,
		queue:     queue,
		node:      node,
		currency:  currency,
	}
}

// Checkout settles the payment and commits the cart as one order. A retried
// call with the same idempotency key returns the original result and writes
// nothing new.
func (s *CheckoutService) Checkout(ctx context.Context, tenantID string, req CheckoutRequest) (*CheckoutResult, error) {
	cart := req.Cart
	if cart == nil || len(cart.Lines) == 0 {
		return nil, &models.ValidationError{Field: "cart", Reason: "at least one line is required"}
	}
	if cart.EmployeeID == 0 {
		return nil, &models.ValidationError{Field: "employee_id", Reason: "an employee must be assigned"}
	}

	if req.IdempotencyKey != "" {
		existing, err := s.orderRepo.FindByIdempotencyKey(tenantID, req.IdempotencyKey)
		if err != nil {
			return nil, fmt.Errorf("idempotency lookup failed: %w", err)
		}
		if existing != nil {
			log.Printf("Checkout replayed for idempotency key %s, returning order %s", req.IdempotencyKey, existing.Order.ID)
			return &CheckoutResult{Order: existing.Order, Items: existing.Items, Payment: existing.Payment, Replayed: true}, nil
		}
	}

	totals := cart.Totals()
	now := time.Now()
	reference := s.node.Generate().String()

	bundle := &repositories.OrderBundle{
		Order: models.Order{
			TenantID:      tenantID,
			EmployeeID:    cart.EmployeeID,
			CustomerID:    cart.CustomerID,
			AppointmentID: cart.AppointmentID,
			OrderDate:     now.Format("2006-01-02"),
			OrderTime:     now.Format("15:04"),
			Subtotal:      totals.Subtotal,
			VATAmount:     totals.VATAmount,
			Total:         totals.Total,
			CreatedAt:     now,
			UpdatedAt:     now,
		},
		Payment: models.Payment{
			Method:    req.Method,
			Amount:    totals.Total,
			Currency:  s.currency,
			Reference: reference,
			CreatedAt: now,
		},
	}
	for _, line := range cart.Lines {
		bundle.Items = append(bundle.Items, models.OrderItem{
			Kind:      line.Kind,
			RefID:     line.RefID,
			Name:      line.Name,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
			VATRate:   line.VATRate,
			Total:     models.Round2(float64(line.Quantity) * line.UnitPrice),
		})
	}

	var redirectURL string

	// Settle the payment first. The order is never created for a failed
	// payment attempt; commit happens only after a successful outcome, or
	// immediately for cash.
	switch req.Method {
	case models.PayCash:
		bundle.Order.Status = models.OrderCompleted
		bundle.Payment.Status = models.PaymentCompleted

	case models.PayCard:
		if s.terminal == nil {
			return nil, fmt.Errorf("%w: no card terminal configured", models.ErrDeviceUnavailable)
		}
		intent, err := s.terminal.CollectPayment(ctx, totals.Total, s.currency, map[string]string{
			"tenant_id": tenantID,
			"reference": reference,
		})
		if err != nil {
			return nil, err
		}
		bundle.Order.Status = models.OrderCompleted
		bundle.Payment.Status = models.PaymentCompleted
		bundle.Payment.ExternalReference = intent.ID

	case models.PayWallet:
		if s.wallet == nil {
			return nil, fmt.Errorf("wallet payments are not configured")
		}
		session, err := s.wallet.InitiatePayment(ctx, totals.Total, s.currency, reference, req.FallbackURL)
		if err != nil {
			return nil, &models.PaymentError{Kind: models.PaymentNetwork, Reason: fmt.Sprintf("wallet initiation failed: %v", err)}
		}
		bundle.Order.Status = models.OrderPending
		bundle.Payment.Status = models.PaymentPending
		bundle.Payment.ExternalReference = session.Reference
		redirectURL = session.RedirectURL

	default:
		return nil, &models.ValidationError{Field: "method", Reason: fmt.Sprintf("unsupported payment method %s", req.Method)}
	}

	if err := s.orderRepo.CommitOrder(bundle, req.IdempotencyKey); err != nil {
		return nil, err
	}

	// Receipt delivery is fire-and-forget: a queue failure is logged and
	// never rolls the committed order back.
	if bundle.Order.Status == models.OrderCompleted {
		s.enqueueReceipt(bundle.Order, req.CustomerEmail)
	}

	return &CheckoutResult{
		Order:       bundle.Order,
		Items:       bundle.Items,
		Payment:     bundle.Payment,
		RedirectURL: redirectURL,
	}, nil
}

// enqueueReceipt publishes the delivery job for a completed order.
func (s *CheckoutService) enqueueReceipt(order models.Order, customerEmail string) {
	if s.queue == nil {
		return
	}
	channels := []string{string(models.ChannelPrint)}
	if customerEmail != "" {
		channels = append(channels, string(models.ChannelEmail))
	}
	job := rabbitmq.ReceiptJob{
		TenantID:      order.TenantID,
		OrderID:       order.ID,
		Channels:      channels,
		CustomerEmail: customerEmail,
	}
	if err := s.queue.PublishReceiptJob(job); err != nil {
		log.Printf("Warning: failed to enqueue receipt for order %s: %v", order.ID, err)
	}
}

// CompleteWalletPayment resolves a pending wallet payment from the
// provider's callback. Reserved funds are captured and the order completed;
// a cancelled or rejected flow marks both rows failed.
func (s *CheckoutService) CompleteWalletPayment(ctx context.Context, reference, remoteStatus string, customerEmail string) error {
	payment, err := s.orderRepo.GetPaymentByReference(reference)
	if err != nil {
		return fmt.Errorf("wallet callback for unknown reference %s: %w", reference, err)
	}
	if payment.Status != models.PaymentPending {
		// Duplicate callback; the first one already settled the payment.
		log.Printf("Ignoring wallet callback for %s in status %s", reference, payment.Status)
		return nil
	}

	switch remoteStatus {
	case "RESERVED", "RESERVE", "SALE":
		if s.wallet != nil && remoteStatus != "SALE" {
			if err := s.wallet.Capture(ctx, payment.ExternalReference, payment.Amount); err != nil {
				return fmt.Errorf("wallet capture failed for %s: %w", reference, err)
			}
		}
		if err := s.orderRepo.UpdatePaymentStatus(payment.ID, models.PaymentCompleted); err != nil {
			return err
		}
		if payment.OrderID != nil {
			if err := s.orderRepo.UpdateOrderStatus(payment.TenantID, *payment.OrderID, models.OrderCompleted); err != nil {
				return err
			}
			order, err := s.orderRepo.GetOrder(payment.TenantID, *payment.OrderID)
			if err == nil {
				s.enqueueReceipt(*order, customerEmail)
			}
		}
		return nil

	case "CANCELLED", "REJECTED", "FAILED":
		if err := s.orderRepo.UpdatePaymentStatus(payment.ID, models.PaymentFailed); err != nil {
			return err
		}
		if payment.OrderID != nil {
			return s.orderRepo.UpdateOrderStatus(payment.TenantID, *payment.OrderID, models.OrderFailed)
		}
		return nil

	default:
		return fmt.Errorf("unrecognized wallet status %q for reference %s", remoteStatus, reference)
	}
}

// RefundableBalance returns how much of an order's completed payments has
// not yet been refunded.
func (s *CheckoutService) RefundableBalance(tenantID, orderID string) (float64, error) {
	if _, err := s.orderRepo.GetOrder(tenantID, orderID); err != nil {
		return 0, err
	}
	payments, err := s.orderRepo.GetPaymentsByOrder(orderID)
	if err != nil {
		return 0, err
	}

	var completed, refunded float64
	for _, p := range payments {
		switch {
		case p.OriginalPaymentID != nil && p.Status == models.PaymentRefunded:
			refunded += p.Amount
		case p.Status == models.PaymentCompleted:
			completed += p.Amount
		}
	}
	return models.Round2(completed - refunded), nil
}

// Refund creates a new payment row referencing the original rather than
// mutating it. The amount must not exceed the remaining refundable balance;
// partial refunds may repeat until the balance is exhausted, at which point
// the order transitions to Refunded.
func (s *CheckoutService) Refund(ctx context.Context, tenantID, orderID string, amount float64, reason string) (*models.Payment, error) {
	if amount <= 0 {
		return nil, &models.ValidationError{Field: "amount", Reason: "must be positive"}
	}

	order, err := s.orderRepo.GetOrder(tenantID, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != models.OrderCompleted && order.Status != models.OrderRefunded {
		return nil, &models.ValidationError{Field: "order", Reason: fmt.Sprintf("cannot refund an order in status %s", order.Status)}
	}

	balance, err := s.RefundableBalance(tenantID, orderID)
	if err != nil {
		return nil, err
	}
	if amount > balance+0.001 {
		return nil, &models.ValidationError{
			Field:  "amount",
			Reason: fmt.Sprintf("refund %.2f exceeds remaining refundable balance %.2f", amount, balance),
		}
	}

	payments, err := s.orderRepo.GetPaymentsByOrder(orderID)
	if err != nil {
		return nil, err
	}
	var original *models.Payment
	for i := range payments {
		if payments[i].Status == models.PaymentCompleted && payments[i].OriginalPaymentID == nil {
			original = &payments[i]
			break
		}
	}
	if original == nil {
		return nil, fmt.Errorf("no completed payment found for order %s", orderID)
	}

	// Push the refund to the remote collaborator first; a remote failure
	// must not leave a local refund row behind.
	switch original.Method {
	case models.PayCard:
		if s.cardGw == nil {
			return nil, fmt.Errorf("%w: no card gateway configured for refund", models.ErrDeviceUnavailable)
		}
		amountMinor := int64(math.Round(amount * 100))
		if _, err := s.cardGw.Refund(ctx, original.ExternalReference, amountMinor); err != nil {
			return nil, err
		}
	case models.PayWallet:
		if s.wallet == nil {
			return nil, fmt.Errorf("wallet refunds are not configured")
		}
		if err := s.wallet.Refund(ctx, original.ExternalReference, amount); err != nil {
			return nil, &models.PaymentError{Kind: models.PaymentNetwork, Reason: fmt.Sprintf("wallet refund failed: %v", err)}
		}
	case models.PayCash:
		// Cash leaves no remote trail; the drawer handles it.
	}

	refund := &models.Payment{
		TenantID:          tenantID,
		OrderID:           original.OrderID,
		Method:            original.Method,
		Amount:            models.Round2(amount),
		Currency:          original.Currency,
		Status:            models.PaymentRefunded,
		Reference:         s.node.Generate().String(),
		ExternalReference: original.ExternalReference,
		OriginalPaymentID: &original.ID,
		Reason:            reason,
		CreatedAt:         time.Now(),
	}
	if err := s.orderRepo.CreatePayment(refund); err != nil {
		return nil, &models.PersistenceError{Op: "create refund", Err: err}
	}

	if models.Round2(balance-amount) <= 0 {
		if err := s.orderRepo.UpdateOrderStatus(tenantID, orderID, models.OrderRefunded); err != nil {
			log.Printf("Warning: refund recorded but order %s status update failed: %v", orderID, err)
		}
	}

	return refund, nil
}

// GetOrders lists a tenant's orders.
func (s *CheckoutService) GetOrders(tenantID string) ([]models.Order, error) {
	return s.orderRepo.GetOrdersByTenant(tenantID)
}

// GetOrderDetails loads one order with its items and payments.
func (s *CheckoutService) GetOrderDetails(tenantID, orderID string) (*models.Order, []models.OrderItem, []models.Payment, error) {
	order, err := s.orderRepo.GetOrder(tenantID, orderID)
	if err != nil {
		return nil, nil, nil, err
	}
	items, err := s.orderRepo.GetOrderItems(orderID)
	if err != nil {
		return nil, nil, nil, err
	}
	payments, err := s.orderRepo.GetPaymentsByOrder(orderID)
	if err != nil {
		return nil, nil, nil, err
	}
	return order, items, payments, nil
}
