package documents

import (
	"fmt"
	"time"

	"github.com/go-pdf/fpdf"
	"github.com/google/uuid"

	product "github.com/angelmondragon/groceryhub-backend/internal/products"
	"github.com/angelmondragon/groceryhub-backend/pkg/db/models"
	"github.com/angelmondragon/groceryhub-backend/pkg/pricing"
)

const (
	pageMargin = 12.0
	rowHeight  = 6.5
	fontFamily = "Helvetica"
)

type column struct {
	title string
	width float64
	align string
}

var priceListColumns = []column{
	{"Item code", 26, "L"},
	{"Name", 62, "L"},
	{"Unit", 16, "C"},
	{"Price", 26, "R"},
	{"Discount", 26, "R"},
	{"Final price", 30, "R"},
}

type priceRow struct {
	itemCode string
	name     string
	unit     string
	price    string
	discount string
	final    string
}

type categoryGroup struct {
	name string
	rows []priceRow
}

// groupByCategory keeps the order of rows, which arrive sorted by category.
func groupByCategory(rows []models.Product, now time.Time) []categoryGroup {
	var groups []categoryGroup
	index := map[uuid.UUID]int{}
	for i := range rows {
		p := &rows[i]
		pos, ok := index[p.CategoryID]
		if !ok {
			name := "Uncategorized"
			if p.Category != nil {
				name = p.Category.Name
			}
			groups = append(groups, categoryGroup{name: name})
			pos = len(groups) - 1
			index[p.CategoryID] = pos
		}
		quote := pricing.QuoteFor(p.Price, product.DiscountOf(p), now)
		discount := "-"
		if quote.HasActiveDiscount {
			discount = quote.DiscountLabel
		}
		groups[pos].rows = append(groups[pos].rows, priceRow{
			itemCode: p.ItemCode,
			name:     p.Name,
			unit:     p.Unit.String(),
			price:    quote.BasePrice.StringFixed(2),
			discount: discount,
			final:    quote.FinalPrice.StringFixed(2),
		})
	}
	return groups
}

func newDocument(title string) *fpdf.Fpdf {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(pageMargin, pageMargin, pageMargin)
	pdf.SetAutoPageBreak(true, 18)
	pdf.AliasNbPages("")
	pdf.SetTitle(title, true)
	pdf.SetFooterFunc(func() {
		pdf.SetY(-14)
		pdf.SetFont(fontFamily, "I", 8)
		pdf.SetTextColor(110, 110, 110)
		pdf.CellFormat(0, 8, fmt.Sprintf("Page %d of {nb}", pdf.PageNo()), "", 0, "C", false, 0, "")
	})
	return pdf
}

func renderPriceList(store string, now time.Time, groups []categoryGroup) *fpdf.Fpdf {
	pdf := newDocument(store + " price list")
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetHeaderFunc(func() {
		pdf.SetFont(fontFamily, "B", 16)
		pdf.SetTextColor(0, 0, 0)
		pdf.CellFormat(0, 9, tr(store), "", 1, "L", false, 0, "")
		pdf.SetFont(fontFamily, "", 10)
		pdf.CellFormat(0, 6, "Price list, "+now.Format("2 January 2006"), "", 1, "L", false, 0, "")
		pdf.Ln(3)
	})
	pdf.AddPage()

	if len(groups) == 0 {
		pdf.SetFont(fontFamily, "I", 10)
		pdf.CellFormat(0, rowHeight, "No products available.", "", 1, "L", false, 0, "")
		return pdf
	}

	for _, group := range groups {
		// keep a category title together with its table header and first row
		if pdf.GetY()+3*rowHeight+8 > pageBottom(pdf) {
			pdf.AddPage()
		}
		pdf.SetFont(fontFamily, "B", 12)
		pdf.SetTextColor(20, 90, 50)
		pdf.CellFormat(0, 8, tr(group.name), "", 1, "L", false, 0, "")
		tableHeader(pdf, priceListColumns)

		pdf.SetFont(fontFamily, "", 9)
		pdf.SetTextColor(0, 0, 0)
		for i, row := range group.rows {
			if pdf.GetY()+rowHeight > pageBottom(pdf) {
				pdf.AddPage()
				tableHeader(pdf, priceListColumns)
				pdf.SetFont(fontFamily, "", 9)
			}
			fill := i%2 == 1
			pdf.SetFillColor(244, 247, 245)
			values := []string{row.itemCode, row.name, row.unit, row.price, row.discount, row.final}
			for c, col := range priceListColumns {
				pdf.CellFormat(col.width, rowHeight, tr(fit(pdf, values[c], col.width-2)), "", 0, col.align, fill, 0, "")
			}
			pdf.Ln(-1)
		}
		pdf.Ln(4)
	}
	return pdf
}

func tableHeader(pdf *fpdf.Fpdf, columns []column) {
	pdf.SetFont(fontFamily, "B", 9)
	pdf.SetFillColor(32, 110, 64)
	pdf.SetTextColor(255, 255, 255)
	for _, col := range columns {
		pdf.CellFormat(col.width, rowHeight+0.5, col.title, "", 0, col.align, true, 0, "")
	}
	pdf.Ln(-1)
	pdf.SetTextColor(0, 0, 0)
}

func pageBottom(pdf *fpdf.Fpdf) float64 {
	_, height := pdf.GetPageSize()
	return height - 18
}

// fit shortens s with an ellipsis until it fits in width.
func fit(pdf *fpdf.Fpdf, s string, width float64) string {
	if pdf.GetStringWidth(s) <= width {
		return s
	}
	runes := []rune(s)
	for len(runes) > 0 {
		runes = runes[:len(runes)-1]
		candidate := string(runes) + "..."
		if pdf.GetStringWidth(candidate) <= width {
			return candidate
		}
	}
	return ""
}
