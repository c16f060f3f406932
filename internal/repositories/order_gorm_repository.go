package repositories

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"salonpos/internal/models"
)

// GORMOrderRepository is a GORM implementation of OrderRepository. The
// database provides multi-row atomicity, so CommitOrder is a plain
// transaction with a locked per-tenant counter row.
type GORMOrderRepository struct {
	db *gorm.DB
}

// NewGORMOrderRepository creates a new instance of GORMOrderRepository.
func NewGORMOrderRepository(db *gorm.DB) *GORMOrderRepository {
	return &GORMOrderRepository{
		db: db,
	}
}

// CommitOrder writes the order header, item snapshots and payment in one
// transaction. The tenant counter row is locked for the duration so order
// numbers stay monotonic and are never reused: a rolled back transaction
// also rolls the increment back.
func (r *GORMOrderRepository) CommitOrder(bundle *OrderBundle, idempotencyKey string) error {
	err := r.db.Transaction(func(tx *gorm.DB) error {
		var counter models.TenantCounter
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&counter, "tenant_id = ?", bundle.Order.TenantID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			counter = models.TenantCounter{TenantID: bundle.Order.TenantID}
			if err := tx.Create(&counter).Error; err != nil {
				return fmt.Errorf("failed to create tenant counter: %w", err)
			}
		} else if err != nil {
			return fmt.Errorf("failed to lock tenant counter: %w", err)
		}

		counter.LastOrderNumber++
		if err := tx.Save(&counter).Error; err != nil {
			return fmt.Errorf("failed to advance order number: %w", err)
		}
		bundle.Order.OrderNumber = counter.LastOrderNumber

		if bundle.Order.ID == "" {
			bundle.Order.ID = uuid.New().String()
		}
		if err := tx.Create(&bundle.Order).Error; err != nil {
			return fmt.Errorf("failed to create order header: %w", err)
		}

		for i := range bundle.Items {
			if bundle.Items[i].ID == "" {
				bundle.Items[i].ID = uuid.New().String()
			}
			bundle.Items[i].OrderID = bundle.Order.ID
		}
		if err := tx.Create(&bundle.Items).Error; err != nil {
			return fmt.Errorf("failed to create order items: %w", err)
		}

		if bundle.Payment.ID == "" {
			bundle.Payment.ID = uuid.New().String()
		}
		bundle.Payment.OrderID = &bundle.Order.ID
		bundle.Payment.TenantID = bundle.Order.TenantID
		if err := tx.Create(&bundle.Payment).Error; err != nil {
			return fmt.Errorf("failed to create payment: %w", err)
		}

		if idempotencyKey != "" {
			key := models.IdempotencyKey{
				TenantID:  bundle.Order.TenantID,
				Key:       idempotencyKey,
				OrderID:   bundle.Order.ID,
				CreatedAt: time.Now(),
			}
			if err := tx.Create(&key).Error; err != nil {
				return fmt.Errorf("failed to record idempotency key: %w", err)
			}
		}

		return nil
	})
	if err != nil {
		return &models.PersistenceError{Op: "commit order", Err: err}
	}
	return nil
}

// FindByIdempotencyKey loads the bundle written by a previous commit with
// this key, or (nil, nil) when the key has not been used.
func (r *GORMOrderRepository) FindByIdempotencyKey(tenantID, key string) (*OrderBundle, error) {
	var record models.IdempotencyKey
	err := r.db.First(&record, "tenant_id = ? AND key = ?", tenantID, key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up idempotency key: %w", err)
	}

	order, err := r.GetOrder(tenantID, record.OrderID)
	if err != nil {
		return nil, err
	}
	items, err := r.GetOrderItems(record.OrderID)
	if err != nil {
		return nil, err
	}
	payments, err := r.GetPaymentsByOrder(record.OrderID)
	if err != nil {
		return nil, err
	}

	bundle := &OrderBundle{Order: *order, Items: items}
	if len(payments) > 0 {
		bundle.Payment = payments[0]
	}
	return bundle, nil
}

// GetOrder retrieves a single order scoped to a tenant.
func (r *GORMOrderRepository) GetOrder(tenantID, orderID string) (*models.Order, error) {
	var order models.Order
	err := r.db.First(&order, "tenant_id = ? AND id = ?", tenantID, orderID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("order with ID %s not found", orderID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get order %s: %w", orderID, err)
	}
	return &order, nil
}

// GetOrderItems retrieves the item snapshots of an order.
func (r *GORMOrderRepository) GetOrderItems(orderID string) ([]models.OrderItem, error) {
	var items []models.OrderItem
	if err := r.db.Find(&items, "order_id = ?", orderID).Error; err != nil {
		return nil, fmt.Errorf("failed to get items for order %s: %w", orderID, err)
	}
	return items, nil
}

// GetOrdersByTenant retrieves all orders of a tenant, newest first.
func (r *GORMOrderRepository) GetOrdersByTenant(tenantID string) ([]models.Order, error) {
	var orders []models.Order
	if err := r.db.Order("created_at desc").Find(&orders, "tenant_id = ?", tenantID).Error; err != nil {
		return nil, fmt.Errorf("failed to get orders for tenant %s: %w", tenantID, err)
	}
	return orders, nil
}

// UpdateOrderStatus transitions an order's status.
func (r *GORMOrderRepository) UpdateOrderStatus(tenantID, orderID string, status models.OrderStatus) error {
	res := r.db.Model(&models.Order{}).
		Where("tenant_id = ? AND id = ?", tenantID, orderID).
		Updates(map[string]interface{}{"status": status, "updated_at": time.Now()})
	if res.Error != nil {
		return fmt.Errorf("failed to update order status: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("order with ID %s not found for status update", orderID)
	}
	return nil
}

// CreatePayment inserts a standalone payment row (refunds, wallet sessions).
func (r *GORMOrderRepository) CreatePayment(payment *models.Payment) error {
	if payment.ID == "" {
		payment.ID = uuid.New().String()
	}
	if err := r.db.Create(payment).Error; err != nil {
		return fmt.Errorf("failed to create payment: %w", err)
	}
	return nil
}

// GetPayment retrieves a payment by its ID.
func (r *GORMOrderRepository) GetPayment(paymentID string) (*models.Payment, error) {
	var payment models.Payment
	err := r.db.First(&payment, "id = ?", paymentID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("payment with ID %s not found", paymentID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment %s: %w", paymentID, err)
	}
	return &payment, nil
}

// GetPaymentsByOrder retrieves all payments recorded against an order.
func (r *GORMOrderRepository) GetPaymentsByOrder(orderID string) ([]models.Payment, error) {
	var payments []models.Payment
	if err := r.db.Order("created_at asc").Find(&payments, "order_id = ?", orderID).Error; err != nil {
		return nil, fmt.Errorf("failed to get payments for order %s: %w", orderID, err)
	}
	return payments, nil
}

// GetPaymentByReference finds a payment by its internal reference. Used by
// the wallet callback to resolve the pending session.
func (r *GORMOrderRepository) GetPaymentByReference(reference string) (*models.Payment, error) {
	var payment models.Payment
	err := r.db.First(&payment, "reference = ?", reference).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("payment with reference %s not found", reference)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment by reference %s: %w", reference, err)
	}
	return &payment, nil
}

// UpdatePaymentStatus transitions a payment's status.
func (r *GORMOrderRepository) UpdatePaymentStatus(paymentID string, status models.PaymentStatus) error {
	res := r.db.Model(&models.Payment{}).
		Where("id = ?", paymentID).
		Updates(map[string]interface{}{"status": status, "updated_at": time.Now()})
	if res.Error != nil {
		return fmt.Errorf("failed to update payment status: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("payment with ID %s not found for status update", paymentID)
	}
	return nil
}

// GORMBrandingRepository is a GORM implementation of BrandingRepository.
type GORMBrandingRepository struct {
	db *gorm.DB
}

// NewGORMBrandingRepository creates a new instance of GORMBrandingRepository.
func NewGORMBrandingRepository(db *gorm.DB) *GORMBrandingRepository {
	return &GORMBrandingRepository{db: db}
}

// GetBranding returns the tenant's receipt branding, or a minimal default
// when the tenant has not configured any.
func (r *GORMBrandingRepository) GetBranding(tenantID string) (*models.TenantBranding, error) {
	var branding models.TenantBranding
	err := r.db.First(&branding, "tenant_id = ?", tenantID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &models.TenantBranding{TenantID: tenantID, SalonName: "Salon"}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get branding for tenant %s: %w", tenantID, err)
	}
	return &branding, nil
}
