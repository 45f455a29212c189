package logger

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
)

func TestLoggerErrorIncludesContextFields(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "test", Level: ParseLevel("debug"), Output: buf})

	ctx := context.Background()
	ctx = log.WithRequestID(ctx, "req-123")
	ctx = log.WithInvoiceID(ctx, "INV-1")

	log.Error(ctx, "boom", errors.New("boom"))

	for _, field := range []string{"\"request_id\"", "\"invoice_id\"", "\"stack\""} {
		if !bytes.Contains(buf.Bytes(), []byte(field)) {
			t.Fatalf("expected %s in entry=%s", field, buf.String())
		}
	}
}

func TestLoggerWarnStackToggle(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "test", Output: buf})
	log.Warn(context.Background(), "quiet")
	if bytes.Contains(buf.Bytes(), []byte("\"stack\"")) {
		t.Fatalf("did not expect stack when warn stack disabled")
	}

	buf.Reset()
	log = New(Options{ServiceName: "test", Output: buf, WarnStack: true})
	log.Warn(context.Background(), "loud")
	if !bytes.Contains(buf.Bytes(), []byte("\"stack\"")) {
		t.Fatalf("expected stack when warn stack enabled")
	}
}

func TestParseLevelDefaults(t *testing.T) {
	if lvl := ParseLevel(""); lvl != zerolog.InfoLevel {
		t.Fatalf("expected default info level, got %v", lvl)
	}
	if lvl := ParseLevel("invalid"); lvl != zerolog.InfoLevel {
		t.Fatalf("invalid level should fallback to info, got %v", lvl)
	}
	if lvl := ParseLevel(" WARN "); lvl != zerolog.WarnLevel {
		t.Fatalf("expected warn level, got %v", lvl)
	}
}

func TestNilLoggerIsNoop(t *testing.T) {
	var log *Logger
	ctx := log.WithInvoiceID(context.Background(), "INV-1")
	if ctx == nil {
		t.Fatal("expected context to be returned unchanged")
	}
	log.Info(ctx, "ignored")
	log.Error(ctx, "ignored", errors.New("boom"))
}

func TestScopedFieldsDoNotLeakToParent(t *testing.T) {
	buf := &bytes.Buffer{}
	log := New(Options{ServiceName: "test", Output: buf})

	parent := log.WithReviewer(context.Background(), "alice")
	_ = log.WithInvoiceID(parent, "INV-9")
	log.Info(parent, "parent entry")

	if !bytes.Contains(buf.Bytes(), []byte(`"reviewer":"alice"`)) {
		t.Fatalf("expected reviewer field, got %s", buf.String())
	}
	if bytes.Contains(buf.Bytes(), []byte("INV-9")) {
		t.Fatalf("child field leaked into parent entry: %s", buf.String())
	}
}
