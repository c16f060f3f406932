package escpos_test

import (
	"bytes"
	"strings"
	"testing"

	"salonpos/internal/models"
	"salonpos/pkg/escpos"

	"github.com/stretchr/testify/assert"
)

func sampleReceipt() models.ReceiptData {
	return models.ReceiptData{
		OrderNumber:  42,
		Date:         "2026-08-31",
		Time:         "14:30",
		SalonName:    "Salong Saks",
		SalonAddress: "Storgata 1, Oslo",
		SalonPhone:   "22 33 44 55",
		Items: []models.ReceiptItem{
			{Name: "Klipp dame", Quantity: 1, UnitPrice: 350.00, Total: 350.00},
			{Name: "Shampoo", Quantity: 2, UnitPrice: 149.00, Total: 298.00},
		},
		Subtotal:      648.00,
		VATAmount:     162.00,
		Total:         810.00,
		PaymentMethod: "Kort",
	}
}

func TestBuilder_OpcodeSequences(t *testing.T) {
	out := escpos.NewBuilder().
		Init().
		AlignCenter().
		Bold(true).
		Text("X").
		Bold(false).
		Cut(escpos.CutFull).
		Build()

	expected := []byte{
		0x1b, 0x40, // initialize
		0x1b, 0x61, 0x01, // center
		0x1b, 0x45, 0x01, // bold on
		'X',
		0x1b, 0x45, 0x00, // bold off
		0x1d, 0x56, 0x00, // full cut
	}
	assert.Equal(t, expected, out)
}

func TestBuilder_OpenDrawerPulse(t *testing.T) {
	out := escpos.NewBuilder().OpenDrawer().Build()
	assert.Equal(t, []byte{0x1b, 0x70, 0x00, 0x19, 0xfa}, out)
}

func TestEncodeReceipt_IsDeterministic(t *testing.T) {
	data := sampleReceipt()

	first := escpos.EncodeReceipt(data, escpos.Options{})
	second := escpos.EncodeReceipt(data, escpos.Options{})

	assert.Equal(t, first, second)
	assert.NotEmpty(t, first)
}

func TestEncodeReceipt_ContainsExpectedContent(t *testing.T) {
	data := sampleReceipt()
	out := escpos.EncodeReceipt(data, escpos.Options{FooterText: "Org.nr 987 654 321"})
	text := string(out)

	assert.Contains(t, text, "Salong Saks")
	assert.Contains(t, text, "KVITTERING #000042")
	assert.Contains(t, text, "Dato: 2026-08-31  Tid: 14:30")
	assert.Contains(t, text, "Betaling: Kort")
	assert.Contains(t, text, "VARER/TJENESTER")
	assert.Contains(t, text, "Klipp dame")
	assert.Contains(t, text, "2 x 149.00 kr")
	assert.Contains(t, text, "Subtotal:")
	assert.Contains(t, text, "MVA:")
	assert.Contains(t, text, "TOTAL:")
	assert.Contains(t, text, "Org.nr 987 654 321")
	assert.Contains(t, text, "Takk for besøket!")

	// Starts with printer init, ends with feed and a full cut.
	assert.True(t, bytes.HasPrefix(out, []byte{0x1b, 0x40}))
	assert.True(t, bytes.HasSuffix(out, []byte{0x0a, 0x0a, 0x0a, 0x1d, 0x56, 0x00}))
}

func TestEncodeReceipt_TotalsAreRightAligned(t *testing.T) {
	const width = 32
	out := escpos.EncodeReceipt(sampleReceipt(), escpos.Options{ColumnWidth: width})

	for _, line := range strings.Split(string(out), "\n") {
		if strings.HasPrefix(line, "Subtotal:") || strings.HasPrefix(line, "MVA:") {
			assert.Len(t, line, width, "totals line %q must fill the column width", line)
			assert.True(t, strings.HasSuffix(line, " kr"), "totals line %q must end with the amount", line)
		}
	}
}

func TestEncodeReceipt_OversizedLabelKeepsOneSpace(t *testing.T) {
	data := sampleReceipt()
	data.Items = []models.ReceiptItem{
		{Name: "Hårprodukter i bulk", Quantity: 100, UnitPrice: 12345.67, Total: 1234567.00},
	}

	out := escpos.EncodeReceipt(data, escpos.Options{ColumnWidth: 32})
	text := string(out)

	// The qty/price and the total never collide even when the line overflows.
	assert.Contains(t, text, "100 x 12345.67 kr 1234567.00 kr")
}

func TestEncodeReceipt_DefaultsColumnWidth(t *testing.T) {
	out := escpos.EncodeReceipt(sampleReceipt(), escpos.Options{ColumnWidth: 0})
	assert.Contains(t, string(out), strings.Repeat("=", escpos.DefaultColumnWidth))
}
