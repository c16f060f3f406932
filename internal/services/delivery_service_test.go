package services_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"salonpos/internal/models"
	"salonpos/internal/repositories"
	"salonpos/internal/services"
	"salonpos/pkg/printer"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTransport records everything written to the printer.
type fakeTransport struct {
	written []byte
	err     error
}

func (t *fakeTransport) Write(ctx context.Context, p []byte) (int, error) {
	if t.err != nil {
		return 0, t.err
	}
	t.written = append(t.written, p...)
	return len(p), nil
}

func (t *fakeTransport) Close() error { return nil }

// fakeNotifier records sent receipt emails.
type fakeNotifier struct {
	to      string
	subject string
	pdf     []byte
	err     error
}

func (n *fakeNotifier) SendReceipt(toAddress, subject string, pdf []byte) error {
	if n.err != nil {
		return n.err
	}
	n.to = toAddress
	n.subject = subject
	n.pdf = pdf
	return nil
}

// fakeEmployeeRepo resolves employee names for receipts.
type fakeEmployeeRepo struct {
	employees map[int64]*models.Employee
}

func (r *fakeEmployeeRepo) Create(employee *models.Employee) error { return nil }

func (r *fakeEmployeeRepo) GetByEmail(email string) (*models.Employee, error) {
	return nil, fmt.Errorf("employee with email %s not found", email)
}

func (r *fakeEmployeeRepo) GetByID(id int64) (*models.Employee, error) {
	if e, ok := r.employees[id]; ok {
		return e, nil
	}
	return nil, fmt.Errorf("employee with ID %d not found", id)
}

// seedOrder commits one cash order into the mock repository and returns it.
func seedOrder(t *testing.T, repo *repositories.MockOrderRepository) models.Order {
	t.Helper()
	bundle := &repositories.OrderBundle{
		Order: models.Order{
			TenantID:   "tenant-1",
			EmployeeID: 1,
			OrderDate:  "2026-08-31",
			OrderTime:  "14:30",
			Subtotal:   350.00,
			VATAmount:  87.50,
			Total:      437.50,
			Status:     models.OrderCompleted,
		},
		Items: []models.OrderItem{
			{Kind: models.ItemService, RefID: 10, Name: "Klipp dame", Quantity: 1, UnitPrice: 350.00, VATRate: 25, Total: 350.00},
		},
		Payment: models.Payment{
			Method: models.PayCash, Amount: 437.50, Currency: "nok",
			Status: models.PaymentCompleted, Reference: "ref-1",
		},
	}
	require.NoError(t, repo.CommitOrder(bundle, ""))
	return bundle.Order
}

func newDeliveryService(repo *repositories.MockOrderRepository, transport printer.Transport, notifier services.Notifier) *services.DeliveryService {
	employeeRepo := &fakeEmployeeRepo{employees: map[int64]*models.Employee{
		1: {ID: 1, TenantID: "tenant-1", Name: "Kari Frisør"},
	}}
	return services.NewDeliveryService(repo, repo, employeeRepo, transport, notifier, 32)
}

func TestDeliveryService_ReceiptDataAssembly(t *testing.T) {
	repo := repositories.NewMockOrderRepository()
	repo.SetBranding(models.TenantBranding{
		TenantID: "tenant-1", SalonName: "Salong Saks", Address: "Storgata 1", Phone: "22 33 44 55",
		FooterText: "Org.nr 987 654 321",
	})
	order := seedOrder(t, repo)
	svc := newDeliveryService(repo, nil, nil)

	data, err := svc.ReceiptData("tenant-1", order.ID)
	require.NoError(t, err)

	assert.Equal(t, order.OrderNumber, data.OrderNumber)
	assert.Equal(t, "Salong Saks", data.SalonName)
	assert.Equal(t, "Storgata 1", data.SalonAddress)
	assert.Equal(t, "Kontant", data.PaymentMethod)
	assert.Equal(t, "Kari Frisør", data.EmployeeName)
	assert.Equal(t, "Org.nr 987 654 321", data.FooterText)
	require.Len(t, data.Items, 1)
	assert.Equal(t, "Klipp dame", data.Items[0].Name)
	assert.Equal(t, 437.50, data.Total)
}

func TestDeliveryService_PrintDelivered(t *testing.T) {
	repo := repositories.NewMockOrderRepository()
	repo.SetBranding(models.TenantBranding{TenantID: "tenant-1", SalonName: "Salong Saks"})
	order := seedOrder(t, repo)
	transport := &fakeTransport{}
	svc := newDeliveryService(repo, transport, nil)

	report, err := svc.Deliver(context.Background(), "tenant-1", order.ID, []models.DeliveryChannel{models.ChannelPrint}, "")
	require.NoError(t, err)
	require.Len(t, report.Results, 1)
	assert.Equal(t, models.DeliveryDelivered, report.Results[0].Status)
	assert.Contains(t, string(transport.written), "Salong Saks")
}

func TestDeliveryService_PrintFailsEmailSkipped(t *testing.T) {
	repo := repositories.NewMockOrderRepository()
	order := seedOrder(t, repo)
	transport := &fakeTransport{err: errors.New("device not responding")}
	svc := newDeliveryService(repo, transport, &fakeNotifier{})

	report, err := svc.Deliver(context.Background(), "tenant-1", order.ID,
		[]models.DeliveryChannel{models.ChannelPrint, models.ChannelEmail}, "")
	require.NoError(t, err)
	require.Len(t, report.Results, 2)

	assert.Equal(t, models.ChannelPrint, report.Results[0].Channel)
	assert.Equal(t, models.DeliveryFailed, report.Results[0].Status)
	assert.Contains(t, report.Results[0].Error, "device not responding")

	// No address on file: skipped, not failed. One channel failing never
	// blocks the others from being attempted.
	assert.Equal(t, models.ChannelEmail, report.Results[1].Channel)
	assert.Equal(t, models.DeliverySkipped, report.Results[1].Status)
}

func TestDeliveryService_NoPrinterConfigured(t *testing.T) {
	repo := repositories.NewMockOrderRepository()
	order := seedOrder(t, repo)
	svc := newDeliveryService(repo, nil, nil)

	report, err := svc.Deliver(context.Background(), "tenant-1", order.ID, []models.DeliveryChannel{models.ChannelPrint}, "")
	require.NoError(t, err)
	assert.Equal(t, models.DeliveryFailed, report.Results[0].Status)
	assert.Contains(t, report.Results[0].Error, "no printer transport configured")
}

func TestDeliveryService_EmailDelivered(t *testing.T) {
	repo := repositories.NewMockOrderRepository()
	repo.SetBranding(models.TenantBranding{TenantID: "tenant-1", SalonName: "Salong Saks"})
	order := seedOrder(t, repo)
	notifier := &fakeNotifier{}
	svc := newDeliveryService(repo, nil, notifier)

	report, err := svc.Deliver(context.Background(), "tenant-1", order.ID,
		[]models.DeliveryChannel{models.ChannelEmail}, "kunde@example.com")
	require.NoError(t, err)
	assert.Equal(t, models.DeliveryDelivered, report.Results[0].Status)

	assert.Equal(t, "kunde@example.com", notifier.to)
	assert.Contains(t, notifier.subject, "Salong Saks")
	assert.NotEmpty(t, notifier.pdf)
	// PDF documents start with the %PDF magic.
	assert.Equal(t, "%PDF", string(notifier.pdf[:4]))
}

func TestDeliveryService_PDFChannel(t *testing.T) {
	repo := repositories.NewMockOrderRepository()
	order := seedOrder(t, repo)
	svc := newDeliveryService(repo, nil, nil)

	report, err := svc.Deliver(context.Background(), "tenant-1", order.ID, []models.DeliveryChannel{models.ChannelPDF}, "")
	require.NoError(t, err)
	assert.Equal(t, models.DeliveryDelivered, report.Results[0].Status)

	pdf, err := svc.RenderPDF("tenant-1", order.ID)
	require.NoError(t, err)
	assert.Equal(t, "%PDF", string(pdf[:4]))
}

func TestDeliveryService_UnknownChannel(t *testing.T) {
	repo := repositories.NewMockOrderRepository()
	order := seedOrder(t, repo)
	svc := newDeliveryService(repo, nil, nil)

	report, err := svc.Deliver(context.Background(), "tenant-1", order.ID, []models.DeliveryChannel{"fax"}, "")
	require.NoError(t, err)
	assert.Equal(t, models.DeliveryFailed, report.Results[0].Status)
	assert.Contains(t, report.Results[0].Error, "unknown delivery channel")
}

func TestDeliveryService_UnknownOrder(t *testing.T) {
	repo := repositories.NewMockOrderRepository()
	svc := newDeliveryService(repo, nil, nil)

	_, err := svc.Deliver(context.Background(), "tenant-1", "missing", []models.DeliveryChannel{models.ChannelPrint}, "")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}
