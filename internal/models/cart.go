package models

import "math"

// ItemKind distinguishes the two sellable line types.
type ItemKind string

const (
	ItemService ItemKind = "service"
	ItemProduct ItemKind = "product"
)

// CartLine is a single sellable line in an in-progress sale. Lines are
// ephemeral: they exist only until the cart is committed or abandoned.
type CartLine struct {
	Kind      ItemKind `json:"kind" validate:"required,oneof=service product"`
	RefID     int64    `json:"ref_id" validate:"required"`
	Name      string   `json:"name" validate:"required"`
	Quantity  int      `json:"quantity" validate:"required,gt=0"`
	UnitPrice float64  `json:"unit_price" validate:"gte=0"`
	VATRate   float64  `json:"vat_rate" validate:"gte=0,lte=100"`
}

// CartTotals is the result of a full recomputation over the cart lines.
type CartTotals struct {
	Subtotal  float64 `json:"subtotal"`
	VATAmount float64 `json:"vat_amount"`
	Total     float64 `json:"total"`
}

// Cart holds the in-progress sale before commit. It is owned by a single
// checkout session (single writer), so it carries no locking of its own.
type Cart struct {
	Lines         []CartLine `json:"lines"`
	CustomerID    *int64     `json:"customer_id,omitempty"`
	AppointmentID *int64     `json:"appointment_id,omitempty"`
	EmployeeID    int64      `json:"employee_id"`
}

// NewCart returns an empty cart for the given employee.
func NewCart(employeeID int64) *Cart {
	return &Cart{EmployeeID: employeeID}
}

// validateLine rejects bad line data before any mutation happens, so a
// failed add never leaves a half-applied cart.
func validateLine(line CartLine) error {
	if line.Kind != ItemService && line.Kind != ItemProduct {
		return &ValidationError{Field: "kind", Reason: "must be service or product"}
	}
	if line.Name == "" {
		return &ValidationError{Field: "name", Reason: "must not be empty"}
	}
	if line.Quantity <= 0 {
		return &ValidationError{Field: "quantity", Reason: "must be a positive integer"}
	}
	if line.UnitPrice < 0 {
		return &ValidationError{Field: "unit_price", Reason: "must not be negative"}
	}
	if line.VATRate < 0 || line.VATRate > 100 {
		return &ValidationError{Field: "vat_rate", Reason: "must be between 0 and 100"}
	}
	return nil
}

// AddLine appends a validated line to the cart.
func (c *Cart) AddLine(line CartLine) error {
	if err := validateLine(line); err != nil {
		return err
	}
	c.Lines = append(c.Lines, line)
	return nil
}

// RemoveLine removes the line at the given index.
func (c *Cart) RemoveLine(index int) error {
	if index < 0 || index >= len(c.Lines) {
		return &ValidationError{Field: "index", Reason: "no such line"}
	}
	c.Lines = append(c.Lines[:index], c.Lines[index+1:]...)
	return nil
}

// SetQuantity changes the quantity of an existing line.
func (c *Cart) SetQuantity(index, quantity int) error {
	if index < 0 || index >= len(c.Lines) {
		return &ValidationError{Field: "index", Reason: "no such line"}
	}
	if quantity <= 0 {
		return &ValidationError{Field: "quantity", Reason: "must be a positive integer"}
	}
	c.Lines[index].Quantity = quantity
	return nil
}

// SetCustomer associates an optional customer with the sale.
func (c *Cart) SetCustomer(customerID int64) {
	c.CustomerID = &customerID
}

// SetEmployee assigns the employee responsible for the sale.
func (c *Cart) SetEmployee(employeeID int64) {
	c.EmployeeID = employeeID
}

// Clear empties the cart but keeps the employee assignment.
func (c *Cart) Clear() {
	c.Lines = nil
	c.CustomerID = nil
	c.AppointmentID = nil
}

// Totals recomputes subtotal, VAT and total from scratch on every call.
// The computation is deterministic for identical input; nothing is cached.
func (c *Cart) Totals() CartTotals {
	var totals CartTotals
	for _, line := range c.Lines {
		lineSubtotal := float64(line.Quantity) * line.UnitPrice
		totals.Subtotal += lineSubtotal
		totals.VATAmount += lineSubtotal * line.VATRate / 100
	}
	totals.Subtotal = Round2(totals.Subtotal)
	totals.VATAmount = Round2(totals.VATAmount)
	totals.Total = Round2(totals.Subtotal + totals.VATAmount)
	return totals
}

// Round2 rounds a monetary amount to two decimals.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
