package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// LineItem is the shared item shape of the transactional, extracted and gold tables.
type LineItem struct {
	InvoiceID   string              `gorm:"column:invoice_id;not null;index" json:"invoice_id"`
	ProductName string              `gorm:"column:product_name" json:"product_name"`
	Quantity    decimal.NullDecimal `gorm:"column:quantity;type:numeric(12,2)" json:"quantity"`
	UnitPrice   decimal.NullDecimal `gorm:"column:unit_price;type:numeric(12,2)" json:"unit_price"`
	TotalPrice  decimal.NullDecimal `gorm:"column:total_price;type:numeric(12,2)" json:"total_price"`
}

// Totals is the shared header shape of the transactional, extracted and gold totals tables.
type Totals struct {
	InvoiceID   string              `gorm:"column:invoice_id;not null" json:"invoice_id"`
	InvoiceDate *time.Time          `gorm:"column:invoice_date;type:date" json:"invoice_date"`
	Subtotal    decimal.NullDecimal `gorm:"column:subtotal;type:numeric(12,2)" json:"subtotal"`
	Tax         decimal.NullDecimal `gorm:"column:tax;type:numeric(12,2)" json:"tax"`
	Total       decimal.NullDecimal `gorm:"column:total;type:numeric(12,2)" json:"total"`
}

// TransactItem is a line of the purchasing system's record of an invoice.
type TransactItem struct {
	LineItem `gorm:"embedded"`
}

func (TransactItem) TableName() string { return "transact_items" }

// TransactTotals is the purchasing system's invoice header.
type TransactTotals struct {
	Totals `gorm:"embedded"`
}

func (TransactTotals) TableName() string { return "transact_totals" }

// DocAIItem is a line extracted from the scanned invoice document.
type DocAIItem struct {
	LineItem `gorm:"embedded"`
}

func (DocAIItem) TableName() string { return "docai_invoice_items" }

// DocAITotals is the extracted header; FileName names the source document in staging.
type DocAITotals struct {
	Totals   `gorm:"embedded"`
	FileName string `gorm:"column:file_name" json:"file_name"`
}

func (DocAITotals) TableName() string { return "docai_invoice_totals" }
