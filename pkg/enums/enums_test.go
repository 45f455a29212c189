package enums

import "testing"

func TestParseReviewFilter(t *testing.T) {
	cases := map[string]string{
		"":                 "Pending Review",
		"all":              "All",
		"reviewed":         "Reviewed",
		" Auto-reconciled": "Auto-reconciled",
	}
	for in, want := range cases {
		got, err := ParseReviewFilter(in)
		if err != nil {
			t.Fatalf("ParseReviewFilter(%q) unexpected error: %v", in, err)
		}
		if got != want {
			t.Fatalf("ParseReviewFilter(%q) = %q, want %q", in, got, want)
		}
	}
	if _, err := ParseReviewFilter("Approved"); err == nil {
		t.Fatal("expected unknown status to be rejected")
	}
}

func TestParseSubmissionSource(t *testing.T) {
	if got, err := ParseSubmissionSource("Extracted"); err != nil || got != SourceExtracted {
		t.Fatalf("unexpected result %q err=%v", got, err)
	}
	if _, err := ParseSubmissionSource("gold"); err == nil {
		t.Fatal("expected invalid source error")
	}
}

func TestOutboxEventTypes(t *testing.T) {
	if !EventInvoiceReviewed.IsValid() || !AggregateDocument.IsValid() {
		t.Fatal("expected known outbox values to be valid")
	}
	if _, err := ParseOutboxEventType("order_created"); err == nil {
		t.Fatal("expected unknown event type error")
	}
}
