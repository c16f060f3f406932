package services

import (
	"context"
	"fmt"
	"log"

	"salonpos/internal/models"
	"salonpos/internal/repositories"
	"salonpos/pkg/escpos"
	"salonpos/pkg/printer"
	"salonpos/pkg/receiptpdf"
)

// Notifier mails a rendered receipt. Satisfied by the SMTP mailer; mocked in
// tests.
type Notifier interface {
	SendReceipt(toAddress, subject string, pdf []byte) error
}

// DeliveryService fans a committed order's receipt out over the requested
// channels. Channels are independent: one failing never blocks another, and
// the report carries every per-channel outcome.
type DeliveryService struct {
	orderRepo    repositories.OrderRepository
	brandingRepo repositories.BrandingRepository
	employeeRepo repositories.EmployeeRepository
	transport    printer.Transport // nil when no printer is attached
	notifier     Notifier          // nil when SMTP is not configured
	columnWidth  int
}

// NewDeliveryService creates a DeliveryService. transport and notifier may be
// nil; the corresponding channels then report failed or skipped.
func NewDeliveryService(orderRepo repositories.OrderRepository, brandingRepo repositories.BrandingRepository, employeeRepo repositories.EmployeeRepository, transport printer.Transport, notifier Notifier, columnWidth int) *DeliveryService {
	if columnWidth <= 0 {
		columnWidth = escpos.DefaultColumnWidth
	}
	return &DeliveryService{
		orderRepo:    orderRepo,
		brandingRepo: brandingRepo,
		employeeRepo: employeeRepo,
		transport:    transport,
		notifier:     notifier,
		columnWidth:  columnWidth,
	}
}

// ReceiptData assembles everything a renderer needs from the order, its items
// and the tenant branding. Derived on demand; never stored.
func (s *DeliveryService) ReceiptData(tenantID, orderID string) (*models.ReceiptData, error) {
	order, err := s.orderRepo.GetOrder(tenantID, orderID)
	if err != nil {
		return nil, err
	}
	items, err := s.orderRepo.GetOrderItems(orderID)
	if err != nil {
		return nil, err
	}
	branding, err := s.brandingRepo.GetBranding(tenantID)
	if err != nil {
		return nil, err
	}

	data := &models.ReceiptData{
		OrderNumber:  order.OrderNumber,
		Date:         order.OrderDate,
		Time:         order.OrderTime,
		SalonName:    branding.SalonName,
		SalonAddress: branding.Address,
		SalonPhone:   branding.Phone,
		Subtotal:     order.Subtotal,
		VATAmount:    order.VATAmount,
		Total:        order.Total,
		FooterText:   branding.FooterText,
		LogoURL:      branding.LogoURL,
	}
	for _, item := range items {
		data.Items = append(data.Items, models.ReceiptItem{
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			Total:     item.Total,
		})
	}

	payments, err := s.orderRepo.GetPaymentsByOrder(orderID)
	if err == nil {
		for _, p := range payments {
			if p.OriginalPaymentID == nil {
				data.PaymentMethod = displayMethod(p.Method)
				break
			}
		}
	}

	if employee, err := s.employeeRepo.GetByID(order.EmployeeID); err == nil {
		data.EmployeeName = employee.Name
	}

	return data, nil
}

// displayMethod maps the stored payment method to the label printed on the
// receipt.
func displayMethod(method models.PaymentMethod) string {
	switch method {
	case models.PayCash:
		return "Kontant"
	case models.PayCard:
		return "Kort"
	case models.PayWallet:
		return "Mobil"
	default:
		return string(method)
	}
}

// RenderPDF renders the receipt for one order as a PDF document.
func (s *DeliveryService) RenderPDF(tenantID, orderID string) ([]byte, error) {
	data, err := s.ReceiptData(tenantID, orderID)
	if err != nil {
		return nil, err
	}
	return receiptpdf.Render(*data)
}

// Deliver ships the receipt for one order over the requested channels and
// reports each channel's outcome. An unknown channel is reported as failed
// rather than aborting the rest.
func (s *DeliveryService) Deliver(ctx context.Context, tenantID, orderID string, channels []models.DeliveryChannel, customerEmail string) (*models.DeliveryReport, error) {
	data, err := s.ReceiptData(tenantID, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to assemble receipt for order %s: %w", orderID, err)
	}

	report := &models.DeliveryReport{OrderID: orderID}
	for _, channel := range channels {
		result := models.ChannelResult{Channel: channel}
		switch channel {
		case models.ChannelPrint:
			result = s.deliverPrint(ctx, *data)
		case models.ChannelPDF:
			if _, err := receiptpdf.Render(*data); err != nil {
				result.Status = models.DeliveryFailed
				result.Error = err.Error()
			} else {
				result.Status = models.DeliveryDelivered
			}
		case models.ChannelEmail:
			result = s.deliverEmail(*data, customerEmail)
		default:
			result.Status = models.DeliveryFailed
			result.Error = fmt.Sprintf("unknown delivery channel %q", channel)
		}
		report.Results = append(report.Results, result)
	}

	log.Printf("Receipt delivery for order %s: %s", orderID, summarize(report))
	return report, nil
}

func (s *DeliveryService) deliverPrint(ctx context.Context, data models.ReceiptData) models.ChannelResult {
	result := models.ChannelResult{Channel: models.ChannelPrint}
	if s.transport == nil {
		result.Status = models.DeliveryFailed
		result.Error = "no printer transport configured"
		return result
	}

	payload := escpos.EncodeReceipt(data, escpos.Options{
		ColumnWidth: s.columnWidth,
		FooterText:  data.FooterText,
	})
	if _, err := s.transport.Write(ctx, payload); err != nil {
		result.Status = models.DeliveryFailed
		result.Error = err.Error()
		return result
	}
	result.Status = models.DeliveryDelivered
	return result
}

func (s *DeliveryService) deliverEmail(data models.ReceiptData, customerEmail string) models.ChannelResult {
	result := models.ChannelResult{Channel: models.ChannelEmail}
	if customerEmail == "" {
		// No address on file is an expected state, not a failure.
		result.Status = models.DeliverySkipped
		return result
	}
	if s.notifier == nil {
		result.Status = models.DeliveryFailed
		result.Error = "no mailer configured"
		return result
	}

	pdf, err := receiptpdf.Render(data)
	if err != nil {
		result.Status = models.DeliveryFailed
		result.Error = err.Error()
		return result
	}
	subject := fmt.Sprintf("Kvittering #%06d fra %s", data.OrderNumber, data.SalonName)
	if err := s.notifier.SendReceipt(customerEmail, subject, pdf); err != nil {
		result.Status = models.DeliveryFailed
		result.Error = err.Error()
		return result
	}
	result.Status = models.DeliveryDelivered
	return result
}

func summarize(report *models.DeliveryReport) string {
	out := ""
	for i, r := range report.Results {
		if i > 0 {
			out += ", "
		}
		out += fmt.Sprintf("%s=%s", r.Channel, r.Status)
	}
	return out
}
