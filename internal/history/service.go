// Package history reconstructs the ordered recent-trade view served to the
// live dashboard. Every call is a fresh query against the store.
package history

import (
	"context"
	"errors"
	"fmt"

	"tradeview/internal/models"
	"tradeview/internal/storage"
	"tradeview/pkg/metrics"
)

// Limit bounds accepted by GetHistory.
const (
	MinLimit = 1
	MaxLimit = 10000
)

// ErrInvalidLimit is returned when the requested row count is outside
// [MinLimit, MaxLimit].
var ErrInvalidLimit = errors.New("invalid limit")

// Service answers recent-history queries for one symbol at a time.
type Service struct {
	store storage.TradeStore
}

// NewService creates a history service backed by store.
func NewService(store storage.TradeStore) *Service {
	return &Service{store: store}
}

// GetHistory returns the most recent limit trades for symbol in
// chronological order. An empty window is a valid answer, not an error:
// callers render a "no data" state for it.
func (s *Service) GetHistory(ctx context.Context, symbol string, limit int) (models.HistoryWindow, error) {
	if limit < MinLimit || limit > MaxLimit {
		return nil, fmt.Errorf("%w: %d not in [%d, %d]", ErrInvalidLimit, limit, MinLimit, MaxLimit)
	}

	timer := metrics.NewTimer()
	window, err := s.store.QueryRecent(ctx, symbol, limit)
	if err != nil {
		timer.ObserveDuration(metrics.QueryDuration.WithLabelValues("error"))
		return nil, fmt.Errorf("query recent trades: %w", err)
	}
	timer.ObserveDuration(metrics.QueryDuration.WithLabelValues("success"))

	if window == nil {
		window = models.HistoryWindow{}
	}
	return window, nil
}
