package review

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/invoice-review/internal/bronze"
	"github.com/angelmondragon/invoice-review/internal/reconciliation"
	"github.com/angelmondragon/invoice-review/internal/reviewsession"
	"github.com/angelmondragon/invoice-review/pkg/db/models"
	"github.com/angelmondragon/invoice-review/pkg/enums"
	pkgerrors "github.com/angelmondragon/invoice-review/pkg/errors"
	"github.com/angelmondragon/invoice-review/pkg/logger"
	"github.com/angelmondragon/invoice-review/pkg/metrics"
	"github.com/angelmondragon/invoice-review/pkg/outbox"
	"github.com/angelmondragon/invoice-review/pkg/outbox/payloads"
	"gorm.io/gorm"
)

const (
	WarningNoItems  = "No item data to submit."
	WarningNoTotals = "No total data to submit."
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// SessionStore is the part of the review session store the editor uses.
type SessionStore interface {
	Load(ctx context.Context, sessionID string) (*reviewsession.State, error)
	Update(ctx context.Context, sessionID string, fn func(*reviewsession.State) error) (*reviewsession.State, error)
}

// Reviewer is the acting identity of a request.
type Reviewer struct {
	Name      string
	Role      string
	SessionID string
}

// Surface is everything the reviewer needs to review one invoice.
type Surface struct {
	InvoiceID  string                       `json:"invoice_id"`
	Bronze     *bronze.Record               `json:"bronze"`
	Summary    *reviewsession.CachedSummary `json:"summary,omitempty"`
	Document   reviewsession.DocumentState  `json:"document"`
	Draft      *reviewsession.Draft         `json:"draft"`
	DraftSaved bool                         `json:"draft_saved"`
}

// DraftInput replaces the editable transactional grid.
type DraftInput struct {
	Items  []ItemRow  `json:"items"`
	Totals *TotalsRow `json:"totals"`
}

// SubmitRequest confirms one source as the gold copy. Items and Totals
// override the saved draft for the transactional source.
type SubmitRequest struct {
	Source                 string     `json:"source" validate:"required,oneof=transactional extracted"`
	Notes                  string     `json:"notes" validate:"max=2000"`
	CorrectedInvoiceNumber string     `json:"corrected_invoice_number" validate:"omitempty,max=64,invoice_number"`
	Items                  []ItemRow  `json:"items,omitempty"`
	Totals                 *TotalsRow `json:"totals,omitempty"`
}

// SubmitResult reports a committed review and the refreshed pending queue.
type SubmitResult struct {
	InvoiceID  string                 `json:"invoice_id"`
	Source     enums.SubmissionSource `json:"source"`
	ReviewedBy string                 `json:"reviewed_by"`
	ReviewedAt time.Time              `json:"reviewed_at"`
	ItemCount  int                    `json:"item_count"`
	RowsMarked int64                  `json:"reconcile_rows_marked"`
	Queue      *reconciliation.Queue  `json:"pending_queue,omitempty"`
	Warnings   []string               `json:"warnings,omitempty"`
}

// Service is the review editor and submitter.
type Service interface {
	Surface(ctx context.Context, sessionID, invoiceID string) (*Surface, error)
	SaveDraft(ctx context.Context, sessionID, invoiceID string, input DraftInput) (*reviewsession.Draft, error)
	Submit(ctx context.Context, reviewer Reviewer, invoiceID string, req SubmitRequest) (*SubmitResult, error)
}

type ServiceParams struct {
	Repo     Repository
	Tx       txRunner
	Bronze   bronze.Service
	Queue    reconciliation.Service
	Sessions SessionStore
	Outbox   outbox.Emitter
	Locker   Locker
	Logger   *logger.Logger
	Metrics  *metrics.ReviewMetrics
	Clock    func() time.Time
}

type service struct {
	repo     Repository
	tx       txRunner
	bronze   bronze.Service
	queue    reconciliation.Service
	sessions SessionStore
	outbox   outbox.Emitter
	locker   Locker
	logg     *logger.Logger
	metrics  *metrics.ReviewMetrics
	now      func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.Repo == nil:
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "gold repository required")
	case params.Tx == nil:
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "transaction runner required")
	case params.Bronze == nil:
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "bronze reader required")
	case params.Queue == nil:
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "reconciliation service required")
	case params.Sessions == nil:
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "session store required")
	case params.Outbox == nil:
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "outbox emitter required")
	case params.Locker == nil:
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "submission lock required")
	case params.Logger == nil:
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "logger required")
	}
	now := params.Clock
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &service{
		repo:     params.Repo,
		tx:       params.Tx,
		bronze:   params.Bronze,
		queue:    params.Queue,
		sessions: params.Sessions,
		outbox:   params.Outbox,
		locker:   params.Locker,
		logg:     params.Logger,
		metrics:  params.Metrics,
		now:      now,
	}, nil
}

// Surface selects invoiceID for the session and returns its review surface.
// Without a saved draft the editable grid is seeded from the transactional records.
func (s *service) Surface(ctx context.Context, sessionID, invoiceID string) (*Surface, error) {
	invoiceID, err := requireInvoiceID(invoiceID)
	if err != nil {
		return nil, err
	}
	state, err := s.loadState(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if state.ProcessedInvoiceID != invoiceID {
		state, err = s.updateState(ctx, sessionID, func(current *reviewsession.State) error {
			current.SelectInvoice(invoiceID)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	record, err := s.bronze.Read(ctx, invoiceID)
	if err != nil {
		return nil, err
	}

	surface := &Surface{
		InvoiceID: invoiceID,
		Bronze:    record,
		Document:  state.Document,
	}
	if summary, ok := state.Summary(invoiceID); ok {
		surface.Summary = summary
	}
	if draft, ok := state.DraftFor(invoiceID); ok {
		surface.Draft = draft
		surface.DraftSaved = true
	} else {
		surface.Draft = seedDraft(invoiceID, record)
	}
	return surface, nil
}

// SaveDraft coerces the grid and stores it as the session's draft.
func (s *service) SaveDraft(ctx context.Context, sessionID, invoiceID string, input DraftInput) (*reviewsession.Draft, error) {
	invoiceID, err := requireInvoiceID(invoiceID)
	if err != nil {
		return nil, err
	}
	draft := reviewsession.Draft{
		InvoiceID: invoiceID,
		Items:     CoerceItems(invoiceID, input.Items),
		Totals:    CoerceTotals(invoiceID, input.Totals),
		EditedAt:  s.now(),
	}
	state, err := s.updateState(ctx, sessionID, func(current *reviewsession.State) error {
		current.SetDraft(draft)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return state.Draft, nil
}

// Submit writes the chosen source as the invoice's gold copy and marks its
// reconciliation rows Reviewed, all in one transaction.
func (s *service) Submit(ctx context.Context, reviewer Reviewer, invoiceID string, req SubmitRequest) (*SubmitResult, error) {
	invoiceID, err := requireInvoiceID(invoiceID)
	if err != nil {
		return nil, err
	}
	source, err := enums.ParseSubmissionSource(req.Source)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid submission source")
	}
	ctx = s.logg.WithInvoiceID(ctx, invoiceID)
	ctx = s.logg.WithField(ctx, "source", source)

	state, err := s.loadState(ctx, reviewer.SessionID)
	if err != nil {
		return nil, err
	}

	items, totals, err := s.resolveRecords(ctx, state, invoiceID, source, req)
	if err != nil {
		return nil, err
	}
	if warnings := validateRecords(items, totals); len(warnings) > 0 {
		s.metrics.Submission(string(source), "invalid")
		return nil, pkgerrors.New(pkgerrors.CodeValidation, strings.Join(warnings, " ")).
			WithDetails(map[string]any{"warnings": warnings})
	}

	lease, ok, err := s.locker.Acquire(ctx, invoiceID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "acquire submission lock")
	}
	if !ok {
		s.metrics.Submission(string(source), "conflict")
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "a submission for this invoice is already in progress").
			WithDetails(map[string]any{"invoice_id": invoiceID})
	}
	defer func() {
		if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
			s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "release submission lock failed")
		}
	}()

	reviewedBy := stampName(reviewer)
	reviewedAt := s.now()
	notes := strings.TrimSpace(req.Notes)
	stamp := models.ReviewStamp{ReviewedBy: reviewedBy, ReviewedAt: reviewedAt, Notes: notes}

	goldItems := make([]models.GoldItem, 0, len(items))
	for _, item := range items {
		item.InvoiceID = invoiceID
		goldItems = append(goldItems, models.GoldItem{LineItem: item, ReviewStamp: stamp})
	}
	goldTotals := models.GoldTotals{Totals: *totals, ReviewStamp: stamp}
	goldTotals.InvoiceID = invoiceID

	result := &SubmitResult{
		InvoiceID:  invoiceID,
		Source:     source,
		ReviewedBy: reviewedBy,
		ReviewedAt: reviewedAt,
		ItemCount:  len(goldItems),
	}

	step := ""
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		step = "gold_items"
		if err := repo.ReplaceGoldItems(ctx, invoiceID, goldItems); err != nil {
			return err
		}
		step = "gold_totals"
		if err := repo.UpsertGoldTotals(ctx, goldTotals); err != nil {
			return err
		}
		step = "review_status"
		marked, err := repo.MarkReviewed(ctx, invoiceID, ReviewUpdate{
			ReviewedBy:             reviewedBy,
			ReviewedAt:             reviewedAt,
			Notes:                  notes,
			CorrectedInvoiceNumber: strings.TrimSpace(req.CorrectedInvoiceNumber),
		})
		if err != nil {
			return err
		}
		result.RowsMarked = marked
		step = "outbox"
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventInvoiceReviewed,
			AggregateType: enums.AggregateInvoice,
			AggregateID:   invoiceID,
			Actor:         &outbox.ActorRef{Reviewer: reviewedBy, Role: reviewer.Role, SessionID: reviewer.SessionID},
			OccurredAt:    reviewedAt,
			Data: payloads.InvoiceReviewedEvent{
				InvoiceID:              invoiceID,
				Source:                 source,
				ReviewedBy:             reviewedBy,
				ReviewedAt:             reviewedAt,
				ItemCount:              len(goldItems),
				Total:                  totalString(totals),
				CorrectedInvoiceNumber: strings.TrimSpace(req.CorrectedInvoiceNumber),
			},
		})
	})
	if err != nil {
		s.metrics.Submission(string(source), "error")
		return nil, pkgerrors.Wrap(pkgerrors.ClassifyDB(err, pkgerrors.CodeDependency), err, "Error submitting review").
			WithDetails(map[string]any{"step": step})
	}
	s.metrics.Submission(string(source), "ok")
	s.logg.Info(s.logg.WithField(ctx, "reviewed_by", reviewedBy), "invoice review submitted")

	if err := s.queue.Invalidate(ctx); err != nil {
		s.logg.Error(ctx, "queue cache invalidation failed", err)
		result.Warnings = append(result.Warnings, "The review queue may be stale for a few minutes.")
	}

	if _, err := s.updateState(ctx, reviewer.SessionID, func(current *reviewsession.State) error {
		current.ForgetInvoice(invoiceID)
		return nil
	}); err != nil {
		s.logg.Error(ctx, "clearing review session failed", err)
	}

	queue, err := s.queue.Queue(ctx, string(enums.ReviewStatusPending))
	if err != nil {
		s.logg.Error(ctx, "reloading pending queue failed", err)
	} else {
		result.Queue = queue
		if queue.Warning != "" {
			result.Warnings = append(result.Warnings, queue.Warning)
		}
	}
	return result, nil
}

// resolveRecords picks the items and totals for source. Transactional
// records come from the request, then the saved draft, then the
// transactional tables; extracted records always come from the DocAI tables.
func (s *service) resolveRecords(ctx context.Context, state *reviewsession.State, invoiceID string, source enums.SubmissionSource, req SubmitRequest) ([]models.LineItem, *models.Totals, error) {
	if source == enums.SourceTransactional {
		if req.Items != nil || req.Totals != nil {
			return CoerceItems(invoiceID, req.Items), CoerceTotals(invoiceID, req.Totals), nil
		}
		if draft, ok := state.DraftFor(invoiceID); ok {
			return draft.Items, draft.Totals, nil
		}
	}

	record, err := s.bronze.Read(ctx, invoiceID)
	if err != nil {
		return nil, nil, err
	}
	if source == enums.SourceExtracted {
		var totals *models.Totals
		if len(record.DocAITotals) > 0 {
			t := record.DocAITotals[0].Totals
			totals = &t
		}
		return record.DocAIItems, totals, nil
	}
	draft := seedDraft(invoiceID, record)
	return draft.Items, draft.Totals, nil
}

func validateRecords(items []models.LineItem, totals *models.Totals) []string {
	var warnings []string
	if len(items) == 0 {
		warnings = append(warnings, WarningNoItems)
	}
	if totals == nil {
		warnings = append(warnings, WarningNoTotals)
	}
	return warnings
}

func seedDraft(invoiceID string, record *bronze.Record) *reviewsession.Draft {
	draft := &reviewsession.Draft{InvoiceID: invoiceID, Items: []models.LineItem{}}
	if record == nil {
		return draft
	}
	draft.Items = append(draft.Items, record.TransactItems...)
	if len(record.TransactTotals) > 0 {
		t := record.TransactTotals[0]
		draft.Totals = &t
	}
	return draft
}

func stampName(reviewer Reviewer) string {
	if name := strings.TrimSpace(reviewer.Name); name != "" {
		return name
	}
	return strings.TrimSpace(reviewer.Role)
}

func totalString(totals *models.Totals) string {
	if totals == nil || !totals.Total.Valid {
		return ""
	}
	return totals.Total.Decimal.StringFixed(2)
}

func requireInvoiceID(invoiceID string) (string, error) {
	invoiceID = strings.TrimSpace(invoiceID)
	if invoiceID == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "invoice id is required")
	}
	return invoiceID, nil
}

func (s *service) loadState(ctx context.Context, sessionID string) (*reviewsession.State, error) {
	state, err := s.sessions.Load(ctx, sessionID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load review session")
	}
	return state, nil
}

func (s *service) updateState(ctx context.Context, sessionID string, fn func(*reviewsession.State) error) (*reviewsession.State, error) {
	state, err := s.sessions.Update(ctx, sessionID, fn)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, fmt.Errorf("session %s: %w", sessionID, err), "save review session")
	}
	return state, nil
}
