// Package receiptpdf renders a committed order as a tabular PDF receipt.
// It is deliberately independent of the thermal encoder: PDF layout works in
// millimetres and table cells, not printer columns.
package receiptpdf

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"

	"salonpos/internal/models"
)

// Render produces the PDF document for a receipt.
func Render(data models.ReceiptData) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()

	// Header block.
	pdf.SetFont("Helvetica", "B", 20)
	pdf.CellFormat(0, 10, tr(data.SalonName), "", 1, "C", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	if data.SalonAddress != "" {
		pdf.CellFormat(0, 5, tr(data.SalonAddress), "", 1, "C", false, 0, "")
	}
	if data.SalonPhone != "" {
		pdf.CellFormat(0, 5, tr("Tlf: "+data.SalonPhone), "", 1, "C", false, 0, "")
	}
	pdf.Ln(4)

	pdf.SetFont("Helvetica", "B", 14)
	pdf.CellFormat(0, 8, "KVITTERING", "T", 1, "C", false, 0, "")
	pdf.Ln(2)

	// Order metadata.
	pdf.SetFont("Helvetica", "", 10)
	pdf.CellFormat(0, 5, fmt.Sprintf("Ordre: #%06d", data.OrderNumber), "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 5, tr(fmt.Sprintf("Dato: %s %s", data.Date, data.Time)), "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 5, tr("Betaling: "+data.PaymentMethod), "", 1, "L", false, 0, "")
	if data.EmployeeName != "" {
		pdf.CellFormat(0, 5, tr("Betjent av: "+data.EmployeeName), "", 1, "L", false, 0, "")
	}
	if data.CustomerName != "" {
		pdf.CellFormat(0, 5, tr("Kunde: "+data.CustomerName), "", 1, "L", false, 0, "")
	}
	pdf.Ln(4)

	// Item table header.
	pdf.SetFont("Helvetica", "B", 10)
	pdf.CellFormat(90, 7, tr("Vare/Tjeneste"), "B", 0, "L", false, 0, "")
	pdf.CellFormat(20, 7, "Antall", "B", 0, "C", false, 0, "")
	pdf.CellFormat(35, 7, "Pris", "B", 0, "R", false, 0, "")
	pdf.CellFormat(45, 7, "Sum", "B", 1, "R", false, 0, "")

	pdf.SetFont("Helvetica", "", 10)
	for _, item := range data.Items {
		pdf.CellFormat(90, 6, tr(item.Name), "", 0, "L", false, 0, "")
		pdf.CellFormat(20, 6, fmt.Sprintf("%d", item.Quantity), "", 0, "C", false, 0, "")
		pdf.CellFormat(35, 6, fmt.Sprintf("%.2f kr", item.UnitPrice), "", 0, "R", false, 0, "")
		pdf.CellFormat(45, 6, fmt.Sprintf("%.2f kr", item.Total), "", 1, "R", false, 0, "")
	}
	pdf.Ln(2)

	// Totals block.
	pdf.CellFormat(145, 6, "Subtotal", "T", 0, "R", false, 0, "")
	pdf.CellFormat(45, 6, fmt.Sprintf("%.2f kr", data.Subtotal), "T", 1, "R", false, 0, "")
	pdf.CellFormat(145, 6, "MVA", "", 0, "R", false, 0, "")
	pdf.CellFormat(45, 6, fmt.Sprintf("%.2f kr", data.VATAmount), "", 1, "R", false, 0, "")
	pdf.SetFont("Helvetica", "B", 12)
	pdf.CellFormat(145, 8, "TOTAL", "T", 0, "R", false, 0, "")
	pdf.CellFormat(45, 8, fmt.Sprintf("%.2f kr", data.Total), "T", 1, "R", false, 0, "")
	pdf.Ln(6)

	// Footer.
	pdf.SetFont("Helvetica", "", 10)
	if data.FooterText != "" {
		pdf.CellFormat(0, 5, tr(data.FooterText), "", 1, "C", false, 0, "")
	}
	pdf.CellFormat(0, 5, tr("Takk for besøket! Velkommen tilbake!"), "", 1, "C", false, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to render receipt PDF: %w", err)
	}
	return buf.Bytes(), nil
}
