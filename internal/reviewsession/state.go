// Package reviewsession holds the per-reviewer-session state that survives
// between requests: the selected invoice, its memoized summary, the document
// viewer position and the unsaved review draft.
package reviewsession

import (
	"strings"
	"time"

	"github.com/angelmondragon/invoice-review/pkg/db/models"
)

// DocumentState tracks the document open in the viewer.
type DocumentState struct {
	Path      string `json:"path"`
	FileName  string `json:"file_name"`
	Page      int    `json:"page"`
	PageCount int    `json:"page_count"`
}

// Loaded reports whether a document is currently open.
func (d DocumentState) Loaded() bool {
	return d.Path != "" && d.PageCount > 0
}

// CachedSummary is the memoized mismatch summary for ProcessedInvoiceID.
type CachedSummary struct {
	Text       string    `json:"text"`
	Failed     bool      `json:"failed"`
	ComputedAt time.Time `json:"computed_at"`
}

// Draft is the reviewer's unsaved edit of the transactional grid.
type Draft struct {
	InvoiceID string            `json:"invoice_id"`
	Items     []models.LineItem `json:"items"`
	Totals    *models.Totals    `json:"totals,omitempty"`
	EditedAt  time.Time         `json:"edited_at"`
}

// State is everything remembered for one reviewer session.
type State struct {
	SessionID          string         `json:"session_id"`
	ProcessedInvoiceID string         `json:"processed_invoice_id"`
	CachedSummary      *CachedSummary `json:"cached_summary,omitempty"`
	Document           DocumentState  `json:"document"`
	Draft              *Draft         `json:"draft,omitempty"`
	UpdatedAt          time.Time      `json:"updated_at"`
}

// New returns the empty state of a fresh session.
func New(sessionID string) *State {
	return &State{SessionID: sessionID}
}

// SelectInvoice makes invoiceID the processed invoice. Switching invoices
// drops the memoized summary and any draft for the previous invoice.
// It reports whether the selection changed.
func (s *State) SelectInvoice(invoiceID string) bool {
	invoiceID = strings.TrimSpace(invoiceID)
	if invoiceID == s.ProcessedInvoiceID {
		return false
	}
	s.ProcessedInvoiceID = invoiceID
	s.CachedSummary = nil
	if s.Draft != nil && s.Draft.InvoiceID != invoiceID {
		s.Draft = nil
	}
	return true
}

// Summary returns the memoized summary when it belongs to invoiceID.
func (s *State) Summary(invoiceID string) (*CachedSummary, bool) {
	if s.CachedSummary == nil || s.ProcessedInvoiceID == "" || s.ProcessedInvoiceID != invoiceID {
		return nil, false
	}
	return s.CachedSummary, true
}

// RememberSummary memoizes text for invoiceID, selecting it if needed.
func (s *State) RememberSummary(invoiceID, text string, failed bool, at time.Time) {
	s.SelectInvoice(invoiceID)
	s.CachedSummary = &CachedSummary{Text: text, Failed: failed, ComputedAt: at}
}

func (s *State) ClearSummary() {
	s.CachedSummary = nil
}

// OpenDocument records a freshly loaded document at page 0.
func (s *State) OpenDocument(path, fileName string, pageCount int) {
	s.Document = DocumentState{Path: path, FileName: fileName, PageCount: pageCount}
}

func (s *State) ResetDocument() {
	s.Document = DocumentState{}
}

// SetDraft replaces the draft; the invoice id is always the processed invoice.
func (s *State) SetDraft(draft Draft) {
	s.SelectInvoice(draft.InvoiceID)
	copied := draft
	s.Draft = &copied
}

func (s *State) ClearDraft() {
	s.Draft = nil
}

// ForgetInvoice drops the memoized summary and draft of invoiceID once it is
// submitted. State belonging to another invoice is left alone.
func (s *State) ForgetInvoice(invoiceID string) {
	if s.ProcessedInvoiceID == invoiceID {
		s.ClearSummary()
	}
	if _, ok := s.DraftFor(invoiceID); ok {
		s.ClearDraft()
	}
}

// DraftFor returns the draft when it was made for invoiceID.
func (s *State) DraftFor(invoiceID string) (*Draft, bool) {
	if s.Draft == nil || s.Draft.InvoiceID != invoiceID {
		return nil, false
	}
	return s.Draft, true
}
