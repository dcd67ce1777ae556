package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kelsos/safes-dump/internal/client"
	"github.com/kelsos/safes-dump/internal/config"
	"github.com/kelsos/safes-dump/internal/logger"
	"github.com/kelsos/safes-dump/internal/metrics"
	"github.com/kelsos/safes-dump/internal/models"
)

// ErrMissingSafes is returned when a response has no `data.safes` member at all.
// An empty `safes` list is the end of pagination, a missing one is not.
var ErrMissingSafes = errors.New("response is missing data.safes")

// PageEvent describes one fetched page
type PageEvent struct {
	Page     int
	Cursor   Cursor
	Count    int
	Total    int
	Duration time.Duration
}

// PageObserver is notified after every page, including the final empty one
type PageObserver func(PageEvent)

// SafeService pages through all safes of the subgraph
type SafeService struct {
	client     *client.APIClient
	metrics    *metrics.Metrics
	pageSize   int
	pagination config.Pagination
	observer   PageObserver
}

// NewSafeService creates a new safe service
func NewSafeService(apiClient *client.APIClient, cfg *config.Config, m *metrics.Metrics) *SafeService {
	return &SafeService{
		client:     apiClient,
		metrics:    m,
		pageSize:   cfg.PageSize,
		pagination: cfg.Pagination,
	}
}

// OnPage registers an observer for page progress
func (s *SafeService) OnPage(observer PageObserver) {
	s.observer = observer
}

// FetchPage requests the page at cursor. An empty, non-nil slice means there are no more safes.
func (s *SafeService) FetchPage(ctx context.Context, cursor Cursor) ([]models.Safe, error) {
	start := time.Now()
	response, err := client.Query[models.SafesPage](ctx, s.client, cursor.Query(), cursor.Variables(s.pageSize))
	elapsed := time.Since(start)
	if err != nil {
		s.metrics.ObserveRequest(metrics.StatusError, elapsed)
		return nil, fmt.Errorf("failed to fetch safes at %s: %w", cursor, err)
	}

	if response.Data == nil || response.Data.Safes == nil {
		s.metrics.ObserveRequest(metrics.StatusError, elapsed)
		return nil, fmt.Errorf("failed to fetch safes at %s: %w", cursor, ErrMissingSafes)
	}

	s.metrics.ObserveRequest(metrics.StatusOK, elapsed)
	return *response.Data.Safes, nil
}

// FetchAll follows the cursor until an empty page and returns every safe in the order received
func (s *SafeService) FetchAll(ctx context.Context) ([]models.Safe, error) {
	cursor := NewCursor(s.pagination)
	safes := make([]models.Safe, 0)

	for page := 1; ; page++ {
		logger.Info("Fetching page %d (%s)", page, cursor)

		start := time.Now()
		batch, err := s.FetchPage(ctx, cursor)
		if err != nil {
			return nil, err
		}

		safes = append(safes, batch...)
		s.metrics.ObservePage(len(batch))
		s.notify(PageEvent{
			Page:     page,
			Cursor:   cursor,
			Count:    len(batch),
			Total:    len(safes),
			Duration: time.Since(start),
		})

		if len(batch) == 0 {
			logger.Info("Reached end of safes after %d pages, %d safes in total", page, len(safes))
			return safes, nil
		}

		logger.Debug("Got %d safes, %d so far", len(batch), len(safes))
		if len(batch) < s.pageSize {
			logger.Debug("Page %d was short (%d < %d)", page, len(batch), s.pageSize)
		}

		cursor, err = cursor.Next(batch, s.pageSize)
		if err != nil {
			return nil, err
		}
	}
}

func (s *SafeService) notify(event PageEvent) {
	if s.observer != nil {
		s.observer(event)
	}
}
