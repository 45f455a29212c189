package validators

import (
	"net/http/httptest"
	"strings"
	"testing"

	pkgerrors "github.com/angelmondragon/invoice-review/pkg/errors"
)

type submitBody struct {
	Source string `json:"source" validate:"required,oneof=transactional extracted"`
	Notes  string `json:"notes" validate:"max=5"`
}

func TestDecodeJSONBody(t *testing.T) {
	req := httptest.NewRequest("POST", "/", strings.NewReader(`{"source":"extracted","notes":"ok"}`))
	var body submitBody
	if err := DecodeJSONBody(req, &body); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if body.Source != "extracted" {
		t.Fatalf("unexpected source %q", body.Source)
	}
}

func TestDecodeJSONBodyReportsFieldErrors(t *testing.T) {
	req := httptest.NewRequest("POST", "/", strings.NewReader(`{"source":"manual","notes":"far too long"}`))
	var body submitBody
	err := DecodeJSONBody(req, &body)
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	details, ok := typed.Details().(map[string]string)
	if !ok {
		t.Fatalf("unexpected details %T", typed.Details())
	}
	if details["source"] != "must be one of: transactional extracted" {
		t.Fatalf("unexpected source message %q", details["source"])
	}
	if details["notes"] != "must be at most 5" {
		t.Fatalf("unexpected notes message %q", details["notes"])
	}
}

func TestDecodeJSONBodyRejectsUnknownFields(t *testing.T) {
	req := httptest.NewRequest("POST", "/", strings.NewReader(`{"source":"extracted","extra":1}`))
	var body submitBody
	if err := DecodeJSONBody(req, &body); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestQueryParsers(t *testing.T) {
	req := httptest.NewRequest("GET", "/?refresh=true&page=3&status=Reviewed", nil)
	if v, err := ParseQueryBool(req, "refresh", false); err != nil || !v {
		t.Fatalf("expected refresh=true, got %v %v", v, err)
	}
	if v := QueryString(req, "status", "Pending Review"); v != "Reviewed" {
		t.Fatalf("unexpected status %q", v)
	}
	if v := QueryString(req, "missing", "Pending Review"); v != "Pending Review" {
		t.Fatalf("unexpected default %q", v)
	}

	bad := httptest.NewRequest("GET", "/?refresh=maybe", nil)
	if _, err := ParseQueryBool(bad, "refresh", false); err == nil {
		t.Fatal("expected error for bad bool")
	}
}

func TestSanitizeString(t *testing.T) {
	if got := SanitizeString("  INV-1  ", 3); got != "INV" {
		t.Fatalf("unexpected %q", got)
	}
	if got := SanitizeString("qty\x00 fixed\nline two", 0); got != "qty fixed\nline two" {
		t.Fatalf("unexpected %q", got)
	}
	if got := SanitizeString("Größe", 3); got != "Grö" {
		t.Fatalf("expected rune-safe truncation, got %q", got)
	}
}

type correctionBody struct {
	Number string `json:"corrected_invoice_number" validate:"omitempty,max=64,invoice_number"`
}

func TestInvoiceNumberTag(t *testing.T) {
	for _, ok := range []string{"", "INV-2024/001", "A1.b_2#3"} {
		if err := ValidateStruct(&correctionBody{Number: ok}); err != nil {
			t.Fatalf("expected %q to be accepted, got %v", ok, err)
		}
	}
	for _, bad := range []string{"-INV", "INV 1", "INV;DROP"} {
		if err := ValidateStruct(&correctionBody{Number: bad}); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
			t.Fatalf("expected %q to be rejected, got %v", bad, err)
		}
	}
}

func TestDecodeJSONBodyRejectsTrailingObjects(t *testing.T) {
	req := httptest.NewRequest("POST", "/", strings.NewReader(`{"source":"extracted"}{"source":"extracted"}`))
	var body submitBody
	if err := DecodeJSONBody(req, &body); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
