package models

import "time"

// OrderStatus is the lifecycle state of a committed order. Status transitions
// are the only permitted mutation on an order after commit.
type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderCompleted OrderStatus = "completed"
	OrderRefunded  OrderStatus = "refunded"
	OrderFailed    OrderStatus = "failed"
)

// PaymentMethod selects how an order is settled.
type PaymentMethod string

const (
	PayCash   PaymentMethod = "cash"
	PayCard   PaymentMethod = "card"
	PayWallet PaymentMethod = "wallet"
)

// PaymentStatus is the lifecycle state of a payment record.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
	PaymentRefunded  PaymentStatus = "refunded"
)

// Order is the durable record of a committed sale. Immutable once created,
// except for status transitions driven by the payment outcome.
type Order struct {
	ID            string      `json:"id" gorm:"primaryKey"`
	TenantID      string      `json:"tenant_id" gorm:"index"`
	OrderNumber   int64       `json:"order_number"`
	EmployeeID    int64       `json:"employee_id"`
	CustomerID    *int64      `json:"customer_id,omitempty"`
	AppointmentID *int64      `json:"appointment_id,omitempty"`
	OrderDate     string      `json:"order_date"` // YYYY-MM-DD
	OrderTime     string      `json:"order_time"` // HH:MM
	Subtotal      float64     `json:"subtotal"`
	VATAmount     float64     `json:"vat_amount"`
	Total         float64     `json:"total"`
	Status        OrderStatus `json:"status"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

// OrderItem is a snapshot of a cart line taken at commit time. Immutable.
type OrderItem struct {
	ID        string   `json:"id" gorm:"primaryKey"`
	OrderID   string   `json:"order_id" gorm:"index"`
	Kind      ItemKind `json:"kind"`
	RefID     int64    `json:"ref_id"`
	Name      string   `json:"name"`
	Quantity  int      `json:"quantity"`
	UnitPrice float64  `json:"unit_price"`
	VATRate   float64  `json:"vat_rate"`
	Total     float64  `json:"total"`
}

// Payment records money movement for an order. Refunds create a new Payment
// row referencing the original via OriginalPaymentID; existing rows are
// never mutated beyond their status.
type Payment struct {
	ID                string        `json:"id" gorm:"primaryKey"`
	TenantID          string        `json:"tenant_id" gorm:"index"`
	OrderID           *string       `json:"order_id,omitempty" gorm:"index"`
	AppointmentID     *int64        `json:"appointment_id,omitempty"`
	Method            PaymentMethod `json:"method"`
	Amount            float64       `json:"amount"`
	Currency          string        `json:"currency"`
	Status            PaymentStatus `json:"status"`
	Reference         string        `json:"reference"` // internal payment reference
	ExternalReference string        `json:"external_reference,omitempty"`
	OriginalPaymentID *string       `json:"original_payment_id,omitempty"`
	Reason            string        `json:"reason,omitempty"`
	CreatedAt         time.Time     `json:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at"`
}

// TenantCounter backs per-tenant monotonic order numbering. The row is locked
// and incremented inside the commit transaction so numbers are never reused.
type TenantCounter struct {
	TenantID        string `gorm:"primaryKey"`
	LastOrderNumber int64
}

// IdempotencyKey maps a client-supplied checkout key to the order it created,
// so a retried commit returns the original result instead of duplicating it.
type IdempotencyKey struct {
	TenantID  string `gorm:"primaryKey"`
	Key       string `gorm:"primaryKey"`
	OrderID   string
	CreatedAt time.Time
}
