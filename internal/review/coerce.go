package review

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/angelmondragon/invoice-review/pkg/db/models"
	"github.com/shopspring/decimal"
)

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006/01/02",
	"01/02/2006",
}

// Cell is one editable grid value as the reviewer typed it. It accepts JSON
// strings, numbers and null.
type Cell struct {
	raw string
	set bool
}

// NewCell wraps a typed value.
func NewCell(value string) Cell {
	return Cell{raw: value, set: true}
}

func (c *Cell) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*c = Cell{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*c = Cell{raw: s, set: true}
		return nil
	}
	*c = Cell{raw: string(data), set: true}
	return nil
}

func (c Cell) MarshalJSON() ([]byte, error) {
	if !c.set {
		return []byte("null"), nil
	}
	return json.Marshal(c.raw)
}

func (c Cell) String() string {
	return c.raw
}

// Decimal coerces the cell to a number; blank or unparseable values are null.
func (c Cell) Decimal() decimal.NullDecimal {
	value := strings.TrimSpace(c.raw)
	if !c.set || value == "" {
		return decimal.NullDecimal{}
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: d, Valid: true}
}

// Date coerces the cell to a calendar date; blank or unparseable values are nil.
func (c Cell) Date() *time.Time {
	value := strings.TrimSpace(c.raw)
	if !c.set || value == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
			return &day
		}
	}
	return nil
}

// ItemRow is one row of the editable item grid.
type ItemRow struct {
	ProductName string `json:"product_name"`
	Quantity    Cell   `json:"quantity"`
	UnitPrice   Cell   `json:"unit_price"`
	TotalPrice  Cell   `json:"total_price"`
}

// TotalsRow is the editable totals row.
type TotalsRow struct {
	InvoiceDate Cell `json:"invoice_date"`
	Subtotal    Cell `json:"subtotal"`
	Tax         Cell `json:"tax"`
	Total       Cell `json:"total"`
}

// CoerceItems stamps invoiceID on every row and coerces numeric columns.
// Rows with no content at all are dropped.
func CoerceItems(invoiceID string, rows []ItemRow) []models.LineItem {
	items := make([]models.LineItem, 0, len(rows))
	for _, row := range rows {
		item := models.LineItem{
			InvoiceID:   invoiceID,
			ProductName: strings.TrimSpace(row.ProductName),
			Quantity:    row.Quantity.Decimal(),
			UnitPrice:   row.UnitPrice.Decimal(),
			TotalPrice:  row.TotalPrice.Decimal(),
		}
		if item.ProductName == "" && !item.Quantity.Valid && !item.UnitPrice.Valid && !item.TotalPrice.Valid {
			continue
		}
		items = append(items, item)
	}
	return items
}

// CoerceTotals stamps invoiceID and coerces the totals row. A nil row yields nil.
func CoerceTotals(invoiceID string, row *TotalsRow) *models.Totals {
	if row == nil {
		return nil
	}
	return &models.Totals{
		InvoiceID:   invoiceID,
		InvoiceDate: row.InvoiceDate.Date(),
		Subtotal:    row.Subtotal.Decimal(),
		Tax:         row.Tax.Decimal(),
		Total:       row.Total.Decimal(),
	}
}
