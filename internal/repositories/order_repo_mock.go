package repositories

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"salonpos/internal/models"
)

// MockOrderRepository is an in-memory implementation of OrderRepository.
// The backing maps cannot give multi-row atomicity, so CommitOrder performs
// manual rollback: on any failure after partial writes it deletes what was
// written and surfaces one aggregated error.
type MockOrderRepository struct {
	orders      map[string]models.Order
	items       map[string][]models.OrderItem
	payments    map[string]models.Payment
	idempotency map[string]string // tenantID+"/"+key -> orderID
	counters    map[string]int64
	branding    map[string]models.TenantBranding
	mu          sync.RWMutex

	// CommitFault, when set, is invoked after each commit step ("order",
	// "items", "payment", "idempotency") and can inject a storage failure.
	CommitFault func(step string) error
}

// NewMockOrderRepository creates a new instance of MockOrderRepository.
func NewMockOrderRepository() *MockOrderRepository {
	return &MockOrderRepository{
		orders:      make(map[string]models.Order),
		items:       make(map[string][]models.OrderItem),
		payments:    make(map[string]models.Payment),
		idempotency: make(map[string]string),
		counters:    make(map[string]int64),
		branding:    make(map[string]models.TenantBranding),
	}
}

func (r *MockOrderRepository) fault(step string) error {
	if r.CommitFault != nil {
		return r.CommitFault(step)
	}
	return nil
}

// CommitOrder writes the bundle step by step, undoing everything written so
// far when a step fails. The consumed order number is NOT handed back: a
// failed attempt burns its number so numbers are never reused.
func (r *MockOrderRepository) CommitOrder(bundle *OrderBundle, idempotencyKey string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.counters[bundle.Order.TenantID]++
	bundle.Order.OrderNumber = r.counters[bundle.Order.TenantID]

	if bundle.Order.ID == "" {
		bundle.Order.ID = uuid.New().String()
	}
	bundle.Order.CreatedAt = time.Now()
	bundle.Order.UpdatedAt = time.Now()

	rollback := func() {
		delete(r.orders, bundle.Order.ID)
		delete(r.items, bundle.Order.ID)
		delete(r.payments, bundle.Payment.ID)
	}

	r.orders[bundle.Order.ID] = bundle.Order
	if err := r.fault("order"); err != nil {
		rollback()
		return &models.PersistenceError{Op: "commit order", Err: fmt.Errorf("order write failed, rolled back: %w", err)}
	}

	for i := range bundle.Items {
		if bundle.Items[i].ID == "" {
			bundle.Items[i].ID = uuid.New().String()
		}
		bundle.Items[i].OrderID = bundle.Order.ID
	}
	r.items[bundle.Order.ID] = append([]models.OrderItem(nil), bundle.Items...)
	if err := r.fault("items"); err != nil {
		rollback()
		return &models.PersistenceError{Op: "commit order", Err: fmt.Errorf("item write failed, rolled back: %w", err)}
	}

	if bundle.Payment.ID == "" {
		bundle.Payment.ID = uuid.New().String()
	}
	bundle.Payment.OrderID = &bundle.Order.ID
	bundle.Payment.TenantID = bundle.Order.TenantID
	bundle.Payment.CreatedAt = time.Now()
	r.payments[bundle.Payment.ID] = bundle.Payment
	if err := r.fault("payment"); err != nil {
		rollback()
		return &models.PersistenceError{Op: "commit order", Err: fmt.Errorf("payment write failed, rolled back: %w", err)}
	}

	if idempotencyKey != "" {
		r.idempotency[bundle.Order.TenantID+"/"+idempotencyKey] = bundle.Order.ID
		if err := r.fault("idempotency"); err != nil {
			delete(r.idempotency, bundle.Order.TenantID+"/"+idempotencyKey)
			rollback()
			return &models.PersistenceError{Op: "commit order", Err: fmt.Errorf("idempotency write failed, rolled back: %w", err)}
		}
	}

	return nil
}

// FindByIdempotencyKey returns the previously committed bundle for the key.
func (r *MockOrderRepository) FindByIdempotencyKey(tenantID, key string) (*OrderBundle, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	orderID, ok := r.idempotency[tenantID+"/"+key]
	if !ok {
		return nil, nil
	}
	order, ok := r.orders[orderID]
	if !ok {
		return nil, fmt.Errorf("idempotency key points at missing order %s", orderID)
	}

	bundle := &OrderBundle{Order: order, Items: append([]models.OrderItem(nil), r.items[orderID]...)}
	for _, p := range r.payments {
		if p.OrderID != nil && *p.OrderID == orderID {
			bundle.Payment = p
			break
		}
	}
	return bundle, nil
}

// GetOrder returns an order by ID scoped to a tenant.
func (r *MockOrderRepository) GetOrder(tenantID, orderID string) (*models.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	order, ok := r.orders[orderID]
	if !ok || order.TenantID != tenantID {
		return nil, fmt.Errorf("order with ID %s not found", orderID)
	}
	return &order, nil
}

// GetOrderItems returns the item snapshots of an order.
func (r *MockOrderRepository) GetOrderItems(orderID string) ([]models.OrderItem, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]models.OrderItem(nil), r.items[orderID]...), nil
}

// GetOrdersByTenant returns all orders of a tenant, newest first.
func (r *MockOrderRepository) GetOrdersByTenant(tenantID string) ([]models.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var orders []models.Order
	for _, order := range r.orders {
		if order.TenantID == tenantID {
			orders = append(orders, order)
		}
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].CreatedAt.After(orders[j].CreatedAt) })
	return orders, nil
}

// UpdateOrderStatus transitions an order's status.
func (r *MockOrderRepository) UpdateOrderStatus(tenantID, orderID string, status models.OrderStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	order, ok := r.orders[orderID]
	if !ok || order.TenantID != tenantID {
		return fmt.Errorf("order with ID %s not found for status update", orderID)
	}
	order.Status = status
	order.UpdatedAt = time.Now()
	r.orders[orderID] = order
	return nil
}

// CreatePayment inserts a standalone payment row.
func (r *MockOrderRepository) CreatePayment(payment *models.Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if payment.ID == "" {
		payment.ID = uuid.New().String()
	}
	payment.CreatedAt = time.Now()
	r.payments[payment.ID] = *payment
	return nil
}

// GetPayment returns a payment by ID.
func (r *MockOrderRepository) GetPayment(paymentID string) (*models.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	payment, ok := r.payments[paymentID]
	if !ok {
		return nil, fmt.Errorf("payment with ID %s not found", paymentID)
	}
	return &payment, nil
}

// GetPaymentsByOrder returns all payments recorded against an order.
func (r *MockOrderRepository) GetPaymentsByOrder(orderID string) ([]models.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var payments []models.Payment
	for _, p := range r.payments {
		if p.OrderID != nil && *p.OrderID == orderID {
			payments = append(payments, p)
		}
	}
	sort.Slice(payments, func(i, j int) bool { return payments[i].CreatedAt.Before(payments[j].CreatedAt) })
	return payments, nil
}

// GetPaymentByReference finds a payment by its internal reference.
func (r *MockOrderRepository) GetPaymentByReference(reference string) (*models.Payment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.payments {
		if p.Reference == reference {
			payment := p
			return &payment, nil
		}
	}
	return nil, fmt.Errorf("payment with reference %s not found", reference)
}

// UpdatePaymentStatus transitions a payment's status.
func (r *MockOrderRepository) UpdatePaymentStatus(paymentID string, status models.PaymentStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	payment, ok := r.payments[paymentID]
	if !ok {
		return fmt.Errorf("payment with ID %s not found for status update", paymentID)
	}
	payment.Status = status
	payment.UpdatedAt = time.Now()
	r.payments[paymentID] = payment
	return nil
}

// SetBranding seeds branding for a tenant (tests and local setups).
func (r *MockOrderRepository) SetBranding(branding models.TenantBranding) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.branding[branding.TenantID] = branding
}

// GetBranding returns the tenant's branding, or a minimal default.
func (r *MockOrderRepository) GetBranding(tenantID string) (*models.TenantBranding, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if branding, ok := r.branding[tenantID]; ok {
		return &branding, nil
	}
	return &models.TenantBranding{TenantID: tenantID, SalonName: "Salon"}, nil
}
