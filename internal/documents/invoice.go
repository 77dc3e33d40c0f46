package documents

import (
	"fmt"
	"strconv"
	"time"

	"github.com/go-pdf/fpdf"

	"github.com/angelmondragon/groceryhub-backend/internal/orders"
)

var invoiceColumns = []column{
	{"Item", 76, "L"},
	{"Qty", 16, "R"},
	{"Unit price", 30, "R"},
	{"Discount", 30, "R"},
	{"Line total", 34, "R"},
}

func renderInvoice(store string, printedAt time.Time, order *orders.OrderDTO) *fpdf.Fpdf {
	pdf := newDocument("Invoice " + order.OrderNumber)
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()

	pdf.SetFont(fontFamily, "B", 16)
	pdf.CellFormat(120, 9, tr(store), "", 0, "L", false, 0, "")
	pdf.CellFormat(0, 9, "INVOICE", "", 1, "R", false, 0, "")

	pdf.SetFont(fontFamily, "", 10)
	meta := [][2]string{
		{"Order", order.OrderNumber},
		{"Date", order.PlacedAt.Format("2 Jan 2006 15:04")},
		{"Status", order.Status},
		{"Customer", order.CustomerName},
	}
	if order.CustomerPhone != nil {
		meta = append(meta, [2]string{"Phone", *order.CustomerPhone})
	}
	if order.DeliveryAddress != nil {
		meta = append(meta, [2]string{"Deliver to", *order.DeliveryAddress})
	}
	for _, kv := range meta {
		pdf.SetFont(fontFamily, "B", 10)
		pdf.CellFormat(28, 6, kv[0], "", 0, "L", false, 0, "")
		pdf.SetFont(fontFamily, "", 10)
		pdf.CellFormat(0, 6, tr(fit(pdf, kv[1], 150)), "", 1, "L", false, 0, "")
	}
	pdf.Ln(4)

	tableHeader(pdf, invoiceColumns)
	pdf.SetFont(fontFamily, "", 9)
	for i, item := range order.Items {
		if pdf.GetY()+rowHeight > pageBottom(pdf) {
			pdf.AddPage()
			tableHeader(pdf, invoiceColumns)
			pdf.SetFont(fontFamily, "", 9)
		}
		pdf.SetFillColor(244, 247, 245)
		name := fmt.Sprintf("%s %s (%s)", item.ItemCode, item.ProductName, item.Unit)
		values := []string{
			name,
			strconv.Itoa(item.Quantity),
			item.UnitPrice.StringFixed(2),
			item.DiscountAmount.StringFixed(2),
			item.LineTotal.StringFixed(2),
		}
		for c, col := range invoiceColumns {
			pdf.CellFormat(col.width, rowHeight, tr(fit(pdf, values[c], col.width-2)), "", 0, col.align, i%2 == 1, 0, "")
		}
		pdf.Ln(-1)
	}

	pdf.Ln(3)
	totals := [][2]string{
		{"Subtotal", order.Subtotal.StringFixed(2)},
		{"Discount", "-" + order.DiscountTotal.StringFixed(2)},
		{"Total", order.Total.StringFixed(2)},
	}
	for i, kv := range totals {
		style := ""
		if i == len(totals)-1 {
			style = "B"
		}
		pdf.SetFont(fontFamily, style, 10)
		pdf.CellFormat(152, 6, kv[0], "", 0, "R", false, 0, "")
		pdf.CellFormat(34, 6, kv[1], "", 1, "R", false, 0, "")
	}

	if order.Notes != nil {
		pdf.Ln(4)
		pdf.SetFont(fontFamily, "I", 9)
		pdf.MultiCell(0, 5, tr("Notes: "+*order.Notes), "", "L", false)
	}
	pdf.Ln(6)
	pdf.SetFont(fontFamily, "", 8)
	pdf.SetTextColor(110, 110, 110)
	pdf.CellFormat(0, 5, "Printed "+printedAt.Format("2 Jan 2006 15:04"), "", 1, "L", false, 0, "")
	return pdf
}
