package dashboard

import (
	"context"
	"errors"

	pkgerrors "github.com/angelmondragon/invoice-review/pkg/errors"
	"github.com/angelmondragon/invoice-review/pkg/logger"
	"github.com/shopspring/decimal"
)

// UnavailableMessage is shown in place of the metrics when they cannot be computed.
const UnavailableMessage = "Could not retrieve or calculate reconciliation metrics."

// ErrMetricsUnavailable is returned when the aggregate query fails.
var ErrMetricsUnavailable = errors.New("reconciliation metrics unavailable")

// Metrics summarises how much of the invoice population has a gold copy.
type Metrics struct {
	TotalInvoiceCount      int64           `json:"total_invoice_count"`
	GrandTotalAmount       decimal.Decimal `json:"grand_total_amount"`
	ReconciledInvoiceCount int64           `json:"reconciled_invoice_count"`
	TotalReconciledAmount  decimal.Decimal `json:"total_reconciled_amount"`
	ReconciledInvoiceRatio float64         `json:"reconciled_invoice_ratio"`
	ReconciledAmountRatio  float64         `json:"reconciled_amount_ratio"`
	AutoReconciledCount    int64           `json:"count_auto_reconciled"`
}

type Service interface {
	Metrics(ctx context.Context) (*Metrics, error)
}

type service struct {
	repo Repository
	logg *logger.Logger
}

func NewService(repo Repository, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "dashboard repository required")
	}
	if logg == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "logger required")
	}
	return &service{repo: repo, logg: logg}, nil
}

// Metrics runs the aggregate and derives the ratios. Any query failure is
// logged and reported as ErrMetricsUnavailable.
func (s *service) Metrics(ctx context.Context) (*Metrics, error) {
	agg, err := s.repo.Aggregates(ctx)
	if err != nil {
		s.logg.Error(ctx, "reconciliation metrics query failed", err)
		return nil, ErrMetricsUnavailable
	}
	return Derive(*agg), nil
}

// Derive turns raw aggregates into metrics. NULL sums count as zero and each
// ratio is zero when its denominator is zero.
func Derive(agg Aggregates) *Metrics {
	grand := valueOrZero(agg.GrandTotalAmount)
	reconciled := valueOrZero(agg.TotalReconciledAmount)

	m := &Metrics{
		TotalInvoiceCount:      agg.TotalInvoiceCount,
		GrandTotalAmount:       grand,
		ReconciledInvoiceCount: agg.ReconciledInvoiceCount,
		TotalReconciledAmount:  reconciled,
		AutoReconciledCount:    agg.AutoReconciledInvoiceCount,
	}
	if agg.TotalInvoiceCount > 0 {
		m.ReconciledInvoiceRatio = float64(agg.ReconciledInvoiceCount) / float64(agg.TotalInvoiceCount)
	}
	if !grand.IsZero() {
		m.ReconciledAmountRatio = reconciled.Div(grand).InexactFloat64()
	}
	return m
}

func valueOrZero(v decimal.NullDecimal) decimal.Decimal {
	if !v.Valid {
		return decimal.Zero
	}
	return v.Decimal
}
