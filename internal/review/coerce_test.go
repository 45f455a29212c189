package review

import (
	"encoding/json"
	"testing"
)

func TestCellAcceptsStringsNumbersAndNull(t *testing.T) {
	var row ItemRow
	payload := `{"product_name":" Widget ","quantity":"3","unit_price":5.25,"total_price":null}`
	if err := json.Unmarshal([]byte(payload), &row); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	items := CoerceItems("INV-1", []ItemRow{row})
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}
	item := items[0]
	if item.InvoiceID != "INV-1" || item.ProductName != "Widget" {
		t.Fatalf("unexpected item %+v", item)
	}
	if !item.Quantity.Valid || item.Quantity.Decimal.String() != "3" {
		t.Fatalf("unexpected quantity %+v", item.Quantity)
	}
	if !item.UnitPrice.Valid || item.UnitPrice.Decimal.String() != "5.25" {
		t.Fatalf("unexpected unit price %+v", item.UnitPrice)
	}
	if item.TotalPrice.Valid {
		t.Fatalf("null total price must stay null, got %+v", item.TotalPrice)
	}
}

func TestUnparseableValuesBecomeNull(t *testing.T) {
	items := CoerceItems("INV-1", []ItemRow{
		{ProductName: "Bolt", Quantity: NewCell("ten"), UnitPrice: NewCell("$1.00"), TotalPrice: NewCell(" 10.00 ")},
		{},
	})
	if len(items) != 1 {
		t.Fatalf("blank rows must be dropped, got %d items", len(items))
	}
	if items[0].Quantity.Valid || items[0].UnitPrice.Valid {
		t.Fatalf("unparseable numbers must be null, got %+v", items[0])
	}
	if !items[0].TotalPrice.Valid || items[0].TotalPrice.Decimal.StringFixed(2) != "10.00" {
		t.Fatalf("unexpected total price %+v", items[0].TotalPrice)
	}
}

func TestCoerceTotals(t *testing.T) {
	if CoerceTotals("INV-1", nil) != nil {
		t.Fatal("nil totals row must stay nil")
	}
	totals := CoerceTotals("INV-1", &TotalsRow{
		InvoiceDate: NewCell("03/15/2025"),
		Subtotal:    NewCell("100"),
		Tax:         NewCell("n/a"),
		Total:       NewCell("108.25"),
	})
	if totals.InvoiceDate == nil || totals.InvoiceDate.Format("2006-01-02") != "2025-03-15" {
		t.Fatalf("unexpected date %v", totals.InvoiceDate)
	}
	if totals.Tax.Valid {
		t.Fatal("unparseable tax must be null")
	}
	if totals.Total.Decimal.String() != "108.25" {
		t.Fatalf("unexpected total %s", totals.Total.Decimal)
	}

	bad := CoerceTotals("INV-1", &TotalsRow{InvoiceDate: NewCell("yesterday")})
	if bad.InvoiceDate != nil {
		t.Fatalf("unparseable date must be nil, got %v", bad.InvoiceDate)
	}
}

func TestCellMarshalRoundTrip(t *testing.T) {
	data, err := json.Marshal(TotalsRow{Total: NewCell("12.5")})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `{"invoice_date":null,"subtotal":null,"tax":null,"total":"12.5"}` {
		t.Fatalf("unexpected json %s", data)
	}
}
