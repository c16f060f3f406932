// Package escpos generates ESC/POS command sequences for 80mm thermal
// printers. The builder only appends opcodes and encoded text to an internal
// buffer; it holds no device state and performs no I/O.
package escpos

import (
	"fmt"
	"strings"

	"salonpos/internal/models"
)

// ESC/POS control bytes.
const (
	esc = 0x1b
	gs  = 0x1d
	lf  = 0x0a
)

// CutMode selects full or partial paper cut.
type CutMode byte

const (
	CutFull    CutMode = 0x00
	CutPartial CutMode = 0x01
)

// DefaultColumnWidth is the number of characters per line on 80mm stock.
const DefaultColumnWidth = 32

// Options configures receipt rendering. Branding is passed in explicitly;
// the encoder reads nothing from ambient state.
type Options struct {
	ColumnWidth int
	FooterText  string
}

// Builder accumulates an ESC/POS command sequence.
type Builder struct {
	buf []byte
}

// NewBuilder returns an empty builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Init resets the printer to its power-on state.
func (b *Builder) Init() *Builder {
	b.buf = append(b.buf, esc, 0x40)
	return b
}

// AlignLeft sets left justification.
func (b *Builder) AlignLeft() *Builder {
	b.buf = append(b.buf, esc, 0x61, 0x00)
	return b
}

// AlignCenter sets center justification.
func (b *Builder) AlignCenter() *Builder {
	b.buf = append(b.buf, esc, 0x61, 0x01)
	return b
}

// AlignRight sets right justification.
func (b *Builder) AlignRight() *Builder {
	b.buf = append(b.buf, esc, 0x61, 0x02)
	return b
}

// Bold toggles emphasized printing.
func (b *Builder) Bold(enable bool) *Builder {
	var v byte
	if enable {
		v = 0x01
	}
	b.buf = append(b.buf, esc, 0x45, v)
	return b
}

// Underline toggles underlined printing.
func (b *Builder) Underline(enable bool) *Builder {
	var v byte
	if enable {
		v = 0x01
	}
	b.buf = append(b.buf, esc, 0x2d, v)
	return b
}

// TextSize sets the character scale. Width and height are multipliers in
// 0..7, where 0 is normal and 1 doubles the dimension.
func (b *Builder) TextSize(width, height int) *Builder {
	size := byte((width&0x07)<<4 | height&0x07)
	b.buf = append(b.buf, gs, 0x21, size)
	return b
}

// DoubleSize doubles both width and height.
func (b *Builder) DoubleSize() *Builder { return b.TextSize(1, 1) }

// DoubleHeight doubles the height only.
func (b *Builder) DoubleHeight() *Builder { return b.TextSize(0, 1) }

// NormalSize restores the normal character scale.
func (b *Builder) NormalSize() *Builder { return b.TextSize(0, 0) }

// Text appends raw text without a trailing newline.
func (b *Builder) Text(s string) *Builder {
	b.buf = append(b.buf, []byte(s)...)
	return b
}

// Line appends text followed by a line feed.
func (b *Builder) Line(s string) *Builder {
	return b.Text(s + "\n")
}

// Feed emits n line feeds.
func (b *Builder) Feed(n int) *Builder {
	for i := 0; i < n; i++ {
		b.buf = append(b.buf, lf)
	}
	return b
}

// HR prints a horizontal rule of the given character across width columns.
func (b *Builder) HR(char string, width int) *Builder {
	return b.Line(strings.Repeat(char, width))
}

// Cut cuts the paper.
func (b *Builder) Cut(mode CutMode) *Builder {
	b.buf = append(b.buf, gs, 0x56, byte(mode))
	return b
}

// OpenDrawer sends the cash drawer kick pulse on pin 2.
func (b *Builder) OpenDrawer() *Builder {
	b.buf = append(b.buf, esc, 0x70, 0x00, 0x19, 0xfa)
	return b
}

// Build returns the accumulated command sequence.
func (b *Builder) Build() []byte {
	out := make([]byte, len(b.buf))
	copy(out, b.buf)
	return out
}

// padLine right-aligns value against label within width columns. The spacing
// never drops below one space, so an oversized label pushes the value out
// rather than colliding with it.
func padLine(label, value string, width int) string {
	spacing := width - len(label) - len(value)
	if spacing < 1 {
		spacing = 1
	}
	return label + strings.Repeat(" ", spacing) + value
}

// money formats a monetary amount with the currency suffix used on receipts.
func money(v float64) string {
	return fmt.Sprintf("%.2f kr", v)
}

// EncodeReceipt renders a complete receipt as an ESC/POS byte sequence.
// The output is deterministic: identical input yields identical bytes.
func EncodeReceipt(data models.ReceiptData, opts Options) []byte {
	width := opts.ColumnWidth
	if width <= 0 {
		width = DefaultColumnWidth
	}

	b := NewBuilder()
	b.Init()

	// Header: salon name large, bold, centered, then address/phone normal.
	if data.SalonName != "" {
		b.AlignCenter().DoubleSize().Bold(true).
			Line(data.SalonName).
			NormalSize().Bold(false)
	}
	if data.SalonAddress != "" {
		b.AlignCenter().Line(data.SalonAddress)
	}
	if data.SalonPhone != "" {
		b.AlignCenter().Line("Tel: " + data.SalonPhone)
	}

	b.Feed(1).HR("=", width).Feed(1)

	// Order metadata block.
	b.AlignLeft().Bold(true).
		Line(fmt.Sprintf("KVITTERING #%06d", data.OrderNumber)).
		Bold(false).
		Line(fmt.Sprintf("Dato: %s  Tid: %s", data.Date, data.Time)).
		Line("Betaling: " + data.PaymentMethod)
	if data.CustomerName != "" {
		b.Line("Kunde: " + data.CustomerName)
	}
	b.Feed(1).HR("-", width)

	// Itemized table. Each item prints its name on one line and the
	// quantity/price breakdown right-aligned against the line total.
	b.Bold(true).Line("VARER/TJENESTER").Bold(false).HR("-", width)
	for _, item := range data.Items {
		b.Line(item.Name)
		qtyPrice := fmt.Sprintf("%d x %s", item.Quantity, money(item.UnitPrice))
		b.Line("  " + padLine(qtyPrice, money(item.Total), width-2))
	}
	b.HR("-", width)

	// Totals block with a bold, double-height grand total.
	b.Line(padLine("Subtotal:", money(data.Subtotal), width)).
		Line(padLine("MVA:", money(data.VATAmount), width)).
		HR("=", width).
		Bold(true).DoubleHeight().
		Line(padLine("TOTAL:", money(data.Total), width)).
		NormalSize().Bold(false).
		HR("=", width)

	// Optional per-tenant footer, appended verbatim before the closing block.
	if opts.FooterText != "" {
		b.Feed(1).AlignCenter().Line(opts.FooterText)
	}

	b.Feed(1).AlignCenter().
		Line("Takk for besøket!").
		Line("Velkommen tilbake!").
		Feed(3).
		Cut(CutFull)

	return b.Build()
}
