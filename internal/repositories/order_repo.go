package repositories

import (
	"salonpos/internal/models"
)

// OrderBundle groups the three rows written by one commit: the order header,
// the item snapshots and the payment record. Either all of them become
// visible or none do.
type OrderBundle struct {
	Order   models.Order
	Items   []models.OrderItem
	Payment models.Payment
}

// OrderRepository defines the interface for order, item and payment access.
// CommitOrder is the atomic unit; everything else is read or status-only.
type OrderRepository interface {
	// CommitOrder assigns the next per-tenant order number, writes the
	// order header, item snapshots and payment as one atomic unit, and
	// records the idempotency key when one is supplied.
	CommitOrder(bundle *OrderBundle, idempotencyKey string) error

	// FindByIdempotencyKey returns the bundle a previous commit with this
	// key produced, or (nil, nil) when the key is unused.
	FindByIdempotencyKey(tenantID, key string) (*OrderBundle, error)

	GetOrder(tenantID, orderID string) (*models.Order, error)
	GetOrderItems(orderID string) ([]models.OrderItem, error)
	GetOrdersByTenant(tenantID string) ([]models.Order, error)
	UpdateOrderStatus(tenantID, orderID string, status models.OrderStatus) error

	CreatePayment(payment *models.Payment) error
	GetPayment(paymentID string) (*models.Payment, error)
	GetPaymentsByOrder(orderID string) ([]models.Payment, error)
	GetPaymentByReference(reference string) (*models.Payment, error)
	UpdatePaymentStatus(paymentID string, status models.PaymentStatus) error
}

// BrandingRepository resolves the per-tenant receipt branding.
type BrandingRepository interface {
	GetBranding(tenantID string) (*models.TenantBranding, error)
}
