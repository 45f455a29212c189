package summarizer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/invoice-review/internal/reviewsession"
	"github.com/angelmondragon/invoice-review/pkg/db/models"
	pkgerrors "github.com/angelmondragon/invoice-review/pkg/errors"
	"github.com/angelmondragon/invoice-review/pkg/logger"
	"github.com/angelmondragon/invoice-review/pkg/metrics"
)

const (
	promptTemplate = "Based on the following item mismatch details for invoice %s, please provide a concise summary of the differences. " +
		"Focus on the types of mismatches and affected items or amounts, do not use the words expected or actual."

	emptyResponseText = "Could not retrieve summary."
)

// Completer turns a prompt into generated text.
type Completer interface {
	Complete(ctx context.Context, model, prompt string) (string, error)
}

// MismatchSource reads the recorded mismatch text of an invoice.
type MismatchSource interface {
	MismatchDetails(ctx context.Context, table, invoiceID string) (string, error)
}

// SessionStore is the part of the review session store the summarizer uses.
type SessionStore interface {
	Load(ctx context.Context, sessionID string) (*reviewsession.State, error)
	Update(ctx context.Context, sessionID string, fn func(*reviewsession.State) error) (*reviewsession.State, error)
}

// Summary is the reviewer-facing mismatch summary.
type Summary struct {
	InvoiceID string    `json:"invoice_id"`
	Text      string    `json:"text"`
	Failed    bool      `json:"failed"`
	Cached    bool      `json:"cached"`
	At        time.Time `json:"computed_at"`
}

// Service produces mismatch summaries, memoized per reviewer session.
type Service interface {
	Summarize(ctx context.Context, sessionID, invoiceID string, refresh bool) (*Summary, error)
	Generate(ctx context.Context, invoiceID string) *Summary
}

type ServiceParams struct {
	Source    MismatchSource
	Completer Completer
	Sessions  SessionStore
	Model     string
	Logger    *logger.Logger
	Metrics   *metrics.ReviewMetrics
	Clock     func() time.Time
}

type service struct {
	source    MismatchSource
	completer Completer
	sessions  SessionStore
	model     string
	logg      *logger.Logger
	metrics   *metrics.ReviewMetrics
	now       func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Source == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "mismatch source required")
	}
	if params.Completer == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "completer required")
	}
	if params.Sessions == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "session store required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "logger required")
	}
	if strings.TrimSpace(params.Model) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "completion model required")
	}
	now := params.Clock
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &service{
		source:    params.Source,
		completer: params.Completer,
		sessions:  params.Sessions,
		model:     strings.TrimSpace(params.Model),
		logg:      params.Logger,
		metrics:   params.Metrics,
		now:       now,
	}, nil
}

// Summarize returns the session's memoized summary for invoiceID, generating
// and remembering a new one when the session processed a different invoice
// or refresh is set.
func (s *service) Summarize(ctx context.Context, sessionID, invoiceID string, refresh bool) (*Summary, error) {
	invoiceID = strings.TrimSpace(invoiceID)
	if invoiceID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invoice id is required")
	}
	state, err := s.sessions.Load(ctx, sessionID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load review session")
	}

	if cached, ok := state.Summary(invoiceID); ok && !refresh {
		s.metrics.CacheLookup("summary", "hit")
		return &Summary{
			InvoiceID: invoiceID,
			Text:      cached.Text,
			Failed:    cached.Failed,
			Cached:    true,
			At:        cached.ComputedAt,
		}, nil
	}
	s.metrics.CacheLookup("summary", "miss")

	// The completion call is slow; other requests of this session may write
	// meanwhile, so only the summary is applied to the state as it is now.
	selected := state.ProcessedInvoiceID
	summary := s.Generate(ctx, invoiceID)
	_, err = s.sessions.Update(ctx, sessionID, func(current *reviewsession.State) error {
		if current.ProcessedInvoiceID != selected && current.ProcessedInvoiceID != invoiceID {
			// The reviewer moved to another invoice while this one was summarized.
			return nil
		}
		current.RememberSummary(invoiceID, summary.Text, summary.Failed, summary.At)
		return nil
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save review session")
	}
	return summary, nil
}

// Generate builds a summary without consulting the session. Failures are
// reported in the summary text, never as an error.
func (s *service) Generate(ctx context.Context, invoiceID string) *Summary {
	ctx = s.logg.WithInvoiceID(ctx, invoiceID)
	summary := &Summary{InvoiceID: invoiceID, At: s.now()}

	details, err := s.mismatchDetails(ctx, invoiceID)
	if err != nil {
		s.logg.Error(ctx, "failed to read mismatch details", err)
		s.metrics.ObserveCompletion("error", 0)
		summary.Text = fmt.Sprintf("Error reading mismatch details: %v", err)
		summary.Failed = true
		return summary
	}
	if details == "" {
		s.metrics.ObserveCompletion("skipped", 0)
		summary.Text = fmt.Sprintf("No item mismatch details found for Invoice ID: %s.", invoiceID)
		return summary
	}

	started := time.Now()
	text, err := s.completer.Complete(ctx, s.model, BuildPrompt(invoiceID, details))
	took := time.Since(started)
	switch {
	case err != nil:
		s.logg.Error(ctx, "completion service failed", err)
		s.metrics.ObserveCompletion("error", took)
		summary.Text = fmt.Sprintf("Error calling completion service: %v", err)
		summary.Failed = true
	case strings.TrimSpace(text) == "":
		s.metrics.ObserveCompletion("empty", took)
		summary.Text = emptyResponseText
	default:
		s.metrics.ObserveCompletion("ok", took)
		summary.Text = strings.TrimSpace(text)
	}
	return summary
}

// mismatchDetails joins the item and totals mismatch text, skipping empty parts.
func (s *service) mismatchDetails(ctx context.Context, invoiceID string) (string, error) {
	var parts []string
	for _, table := range []string{models.ReconcileItemsTable, models.ReconcileTotalsTable} {
		details, err := s.source.MismatchDetails(ctx, table, invoiceID)
		if err != nil {
			return "", fmt.Errorf("%s: %w", table, err)
		}
		if trimmed := strings.TrimSpace(details); trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return strings.Join(parts, "\n"), nil
}

// BuildPrompt renders the completion prompt for an invoice.
func BuildPrompt(invoiceID, details string) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf(promptTemplate, invoiceID))
	b.WriteString("\n\nMismatch details:\n---\n")
	b.WriteString(details)
	b.WriteString("\n---")
	return b.String()
}
