package reconciliation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/invoice-review/pkg/db/models"
	"github.com/angelmondragon/invoice-review/pkg/enums"
	pkgerrors "github.com/angelmondragon/invoice-review/pkg/errors"
	"github.com/angelmondragon/invoice-review/pkg/logger"
	"github.com/angelmondragon/invoice-review/pkg/metrics"
	"github.com/redis/go-redis/v9"
)

const cacheName = "reconcile_queue"

// Queue is the reviewer work list for one status filter.
type Queue struct {
	Status       string                   `json:"status"`
	InvoiceIDs   []string                 `json:"invoice_ids"`
	Entries      []QueueEntry             `json:"entries"`
	ItemResults  []models.ReconcileResult `json:"item_results"`
	TotalResults []models.ReconcileResult `json:"total_results"`
	Warning      string                   `json:"warning,omitempty"`
	LoadedAt     time.Time                `json:"loaded_at"`
}

// Cache is the slice of the redis client the queue cache needs.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	DelPattern(ctx context.Context, pattern string) (int, error)
	QueueKey(status string) string
	QueuePattern() string
}

// Service serves the reconciliation queue.
type Service interface {
	Queue(ctx context.Context, status string) (*Queue, error)
	Invalidate(ctx context.Context) error
}

type ServiceParams struct {
	Repo    Repository
	Cache   Cache
	TTL     time.Duration
	Logger  *logger.Logger
	Metrics *metrics.ReviewMetrics
	Clock   func() time.Time
}

type service struct {
	repo    Repository
	cache   Cache
	ttl     time.Duration
	logg    *logger.Logger
	metrics *metrics.ReviewMetrics
	now     func() time.Time
}

// NewService wires the queue reader. Cache may be nil, in which case every
// call reads the warehouse.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "reconciliation repository required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "logger required")
	}
	if params.Cache != nil && params.TTL <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "queue cache ttl must be positive")
	}
	now := params.Clock
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &service{
		repo:    params.Repo,
		cache:   params.Cache,
		ttl:     params.TTL,
		logg:    params.Logger,
		metrics: params.Metrics,
		now:     now,
	}, nil
}

// Queue returns distinct invoice IDs for the filter, most recently reconciled
// first, plus the full result rows. Warehouse failures degrade to an empty
// queue carrying a warning; only an invalid filter is an error.
func (s *service) Queue(ctx context.Context, status string) (*Queue, error) {
	filter, err := enums.ParseReviewFilter(status)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid review status filter").
			WithDetails(map[string]any{"allowed": append(statusNames(), enums.ReviewFilterAll)})
	}
	ctx = s.logg.WithField(ctx, "review_filter", filter)

	if cached, ok := s.readCache(ctx, filter); ok {
		return cached, nil
	}

	queue, err := s.load(ctx, filter)
	if err != nil {
		s.logg.Error(ctx, "failed to load reconciliation queue", err)
		return &Queue{
			Status:       filter,
			InvoiceIDs:   []string{},
			Entries:      []QueueEntry{},
			ItemResults:  []models.ReconcileResult{},
			TotalResults: []models.ReconcileResult{},
			Warning:      fmt.Sprintf("Error loading reconcile data: %v", err),
			LoadedAt:     s.now(),
		}, nil
	}

	s.writeCache(ctx, filter, queue)
	return queue, nil
}

func (s *service) load(ctx context.Context, filter string) (*Queue, error) {
	entries, err := s.repo.QueueEntries(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("queue entries: %w", err)
	}
	items, err := s.repo.Results(ctx, models.ReconcileItemsTable, filter)
	if err != nil {
		return nil, fmt.Errorf("item results: %w", err)
	}
	totals, err := s.repo.Results(ctx, models.ReconcileTotalsTable, filter)
	if err != nil {
		return nil, fmt.Errorf("total results: %w", err)
	}
	if entries == nil {
		entries = []QueueEntry{}
	}
	if items == nil {
		items = []models.ReconcileResult{}
	}
	if totals == nil {
		totals = []models.ReconcileResult{}
	}
	return &Queue{
		Status:       filter,
		InvoiceIDs:   DistinctInvoiceIDs(entries),
		Entries:      entries,
		ItemResults:  items,
		TotalResults: totals,
		LoadedAt:     s.now(),
	}, nil
}

// DistinctInvoiceIDs keeps the first occurrence of each invoice ID in input order.
func DistinctInvoiceIDs(entries []QueueEntry) []string {
	seen := make(map[string]struct{}, len(entries))
	ids := make([]string, 0, len(entries))
	for _, entry := range entries {
		if _, ok := seen[entry.InvoiceID]; ok {
			continue
		}
		seen[entry.InvoiceID] = struct{}{}
		ids = append(ids, entry.InvoiceID)
	}
	return ids
}

// Invalidate drops every cached queue so the next read hits the warehouse.
func (s *service) Invalidate(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	deleted, err := s.cache.DelPattern(ctx, s.cache.QueuePattern())
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "invalidate reconciliation queue cache")
	}
	s.logg.Info(s.logg.WithField(ctx, "keys_deleted", deleted), "reconciliation queue cache invalidated")
	return nil
}

func (s *service) readCache(ctx context.Context, filter string) (*Queue, bool) {
	if s.cache == nil {
		return nil, false
	}
	raw, err := s.cache.Get(ctx, s.cache.QueueKey(filter))
	if err != nil {
		if errors.Is(err, redis.Nil) {
			s.metrics.CacheLookup(cacheName, "miss")
		} else {
			s.metrics.CacheLookup(cacheName, "error")
			s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "queue cache read failed")
		}
		return nil, false
	}
	var queue Queue
	if err := json.Unmarshal([]byte(raw), &queue); err != nil {
		s.metrics.CacheLookup(cacheName, "error")
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "queue cache entry unreadable")
		return nil, false
	}
	s.metrics.CacheLookup(cacheName, "hit")
	return &queue, true
}

func (s *service) writeCache(ctx context.Context, filter string, queue *Queue) {
	if s.cache == nil {
		return
	}
	payload, err := json.Marshal(queue)
	if err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "queue cache encode failed")
		return
	}
	if err := s.cache.Set(ctx, s.cache.QueueKey(filter), payload, s.ttl); err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "queue cache write failed")
	}
}

func statusNames() []string {
	var names []string
	for _, status := range enums.ReviewStatuses() {
		names = append(names, status.String())
	}
	return names
}
