package bronze

import (
	"context"
	"fmt"
	"strings"

	"github.com/angelmondragon/invoice-review/pkg/db/models"
	pkgerrors "github.com/angelmondragon/invoice-review/pkg/errors"
	"github.com/angelmondragon/invoice-review/pkg/logger"
	"go.uber.org/multierr"
)

// Section names one bronze table.
type Section string

const (
	SectionTransactItems  Section = "transact_items"
	SectionTransactTotals Section = "transact_totals"
	SectionDocAIItems     Section = "docai_invoice_items"
	SectionDocAITotals    Section = "docai_invoice_totals"
)

// Sections lists the bronze tables in display order.
func Sections() []Section {
	return []Section{SectionTransactItems, SectionTransactTotals, SectionDocAIItems, SectionDocAITotals}
}

// NoDataMessage is shown in place of an empty section.
func NoDataMessage(section Section) string {
	return fmt.Sprintf("No data found in %s for this invoice.", strings.ToUpper(string(section)))
}

// Record is everything the bronze tables hold for one invoice.
type Record struct {
	InvoiceID      string               `json:"invoice_id"`
	TransactItems  []models.LineItem    `json:"transact_items"`
	TransactTotals []models.Totals      `json:"transact_totals"`
	DocAIItems     []models.LineItem    `json:"docai_items"`
	DocAITotals    []models.DocAITotals `json:"docai_totals"`
	FileName       string               `json:"file_name"`
	NoData         map[Section]string   `json:"no_data,omitempty"`
	Warnings       []string             `json:"warnings,omitempty"`
}

// Service reads bronze records.
type Service interface {
	Read(ctx context.Context, invoiceID string) (*Record, error)
}

type service struct {
	repo Repository
	logg *logger.Logger
}

func NewService(repo Repository, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "bronze repository required")
	}
	if logg == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "logger required")
	}
	return &service{repo: repo, logg: logg}, nil
}

// Read fetches each bronze table independently. A failing table becomes a
// warning with an empty section; the other sections are still returned.
// An empty invoice id performs no lookup.
func (s *service) Read(ctx context.Context, invoiceID string) (*Record, error) {
	invoiceID = strings.TrimSpace(invoiceID)
	record := &Record{
		InvoiceID:      invoiceID,
		TransactItems:  []models.LineItem{},
		TransactTotals: []models.Totals{},
		DocAIItems:     []models.LineItem{},
		DocAITotals:    []models.DocAITotals{},
		NoData:         map[Section]string{},
	}
	if invoiceID == "" {
		return record, nil
	}

	var errs error
	if rows, err := s.repo.TransactItems(ctx, invoiceID); err != nil {
		errs = multierr.Append(errs, sectionError(SectionTransactItems, err))
	} else if rows != nil {
		record.TransactItems = rows
	}
	if rows, err := s.repo.TransactTotals(ctx, invoiceID); err != nil {
		errs = multierr.Append(errs, sectionError(SectionTransactTotals, err))
	} else if rows != nil {
		record.TransactTotals = rows
	}
	if rows, err := s.repo.DocAIItems(ctx, invoiceID); err != nil {
		errs = multierr.Append(errs, sectionError(SectionDocAIItems, err))
	} else if rows != nil {
		record.DocAIItems = rows
	}
	if rows, err := s.repo.DocAITotals(ctx, invoiceID); err != nil {
		errs = multierr.Append(errs, sectionError(SectionDocAITotals, err))
	} else if rows != nil {
		record.DocAITotals = rows
	}

	if errs != nil {
		ctx = s.logg.WithInvoiceID(ctx, invoiceID)
		s.logg.Error(ctx, "bronze read partially failed", errs)
		for _, err := range multierr.Errors(errs) {
			record.Warnings = append(record.Warnings, err.Error())
		}
	}

	if len(record.DocAITotals) > 0 {
		record.FileName = strings.TrimSpace(record.DocAITotals[0].FileName)
	}
	sizes := map[Section]int{
		SectionTransactItems:  len(record.TransactItems),
		SectionTransactTotals: len(record.TransactTotals),
		SectionDocAIItems:     len(record.DocAIItems),
		SectionDocAITotals:    len(record.DocAITotals),
	}
	for _, section := range Sections() {
		if sizes[section] == 0 {
			record.NoData[section] = NoDataMessage(section)
		}
	}
	return record, nil
}

func sectionError(section Section, err error) error {
	return fmt.Errorf("Error fetching data from %s: %w", strings.ToUpper(string(section)), err)
}
