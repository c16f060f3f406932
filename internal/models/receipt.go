package models

// ReceiptItem is one printed line item.
type ReceiptItem struct {
	Name      string
	Quantity  int
	UnitPrice float64
	Total     float64
}

// ReceiptData is everything needed to render a receipt. It is derived on
// demand from the order, its items and the tenant branding; never stored.
type ReceiptData struct {
	OrderNumber   int64
	Date          string
	Time          string
	SalonName     string
	SalonAddress  string
	SalonPhone    string
	Items         []ReceiptItem
	Subtotal      float64
	VATAmount     float64
	Total         float64
	PaymentMethod string
	CustomerName  string
	EmployeeName  string
	FooterText    string
	LogoURL       string // print channel ignores it; PDF/email may embed it
}

// DeliveryChannel names a receipt delivery target.
type DeliveryChannel string

const (
	ChannelPrint DeliveryChannel = "print"
	ChannelPDF   DeliveryChannel = "pdf"
	ChannelEmail DeliveryChannel = "email"
)

// DeliveryStatus is the per-channel outcome of a delivery attempt.
type DeliveryStatus string

const (
	DeliveryDelivered DeliveryStatus = "delivered"
	DeliveryFailed    DeliveryStatus = "failed"
	DeliverySkipped   DeliveryStatus = "skipped"
)

// ChannelResult reports one channel's outcome. Channels are independent:
// print failing while email succeeds is a valid end state.
type ChannelResult struct {
	Channel DeliveryChannel `json:"channel"`
	Status  DeliveryStatus  `json:"status"`
	Error   string          `json:"error,omitempty"`
}

// DeliveryReport aggregates the per-channel results for one receipt.
type DeliveryReport struct {
	OrderID string          `json:"order_id"`
	Results []ChannelResult `json:"results"`
}
