package models

import "time"

// ReviewStamp records who confirmed a gold row and when.
type ReviewStamp struct {
	ReviewedBy string    `gorm:"column:reviewed_by;not null" json:"reviewed_by"`
	ReviewedAt time.Time `gorm:"column:reviewed_timestamp;not null" json:"reviewed_timestamp"`
	Notes      string    `gorm:"column:notes" json:"notes"`
}

// GoldItem is a confirmed invoice line.
type GoldItem struct {
	LineItem    `gorm:"embedded"`
	ReviewStamp `gorm:"embedded"`
}

func (GoldItem) TableName() string { return "gold_invoice_items" }

// GoldTotals is the confirmed invoice header; at most one row exists per invoice.
type GoldTotals struct {
	Totals      `gorm:"embedded"`
	ReviewStamp `gorm:"embedded"`
}

func (GoldTotals) TableName() string { return "gold_invoice_totals" }
