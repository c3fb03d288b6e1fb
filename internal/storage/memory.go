package storage

import (
	"context"
	"sort"
	"sync"

	"tradeview/internal/models"
)

// MemoryStore is an in-memory TradeStore with the same idempotency and
// ordering semantics as the Postgres implementation. It backs the test
// suites of every package that talks to the store.
type MemoryStore struct {
	mu      sync.RWMutex
	trades  map[string]*models.StoredTrade // keyed by dedup key
	cursors map[cursorKey]*models.Cursor
}

type cursorKey struct {
	topic     string
	groupID   string
	partition int
}

var _ TradeStore = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		trades:  make(map[string]*models.StoredTrade),
		cursors: make(map[cursorKey]*models.Cursor),
	}
}

// UpsertTrades inserts trades, ignoring dedup key duplicates.
func (s *MemoryStore) UpsertTrades(ctx context.Context, trades []*models.StoredTrade) error {
	return s.UpsertBatch(ctx, trades, nil)
}

// UpsertBatch inserts trades and cursors under one lock, mirroring the
// transactional write of the Postgres store.
func (s *MemoryStore) UpsertBatch(ctx context.Context, trades []*models.StoredTrade, cursors []*models.Cursor) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range trades {
		if _, exists := s.trades[t.DedupKey]; exists {
			continue
		}
		copied := *t
		s.trades[t.DedupKey] = &copied
	}
	for _, c := range cursors {
		copied := *c
		s.cursors[cursorKey{c.Topic, c.GroupID, c.Partition}] = &copied
	}
	return nil
}

// QueryRecent returns the latest limit trades for symbol ascending by
// trade time.
func (s *MemoryStore) QueryRecent(ctx context.Context, symbol string, limit int) (models.HistoryWindow, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	matched := make([]*models.StoredTrade, 0)
	for _, t := range s.trades {
		if t.Symbol == symbol {
			copied := *t
			matched = append(matched, &copied)
		}
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].TradeTime.Equal(matched[j].TradeTime) {
			return matched[i].DedupKey < matched[j].DedupKey
		}
		return matched[i].TradeTime.Before(matched[j].TradeTime)
	})

	if len(matched) > limit {
		matched = matched[len(matched)-limit:]
	}
	return models.HistoryWindow(matched), nil
}

// SaveCursors persists cursor positions.
func (s *MemoryStore) SaveCursors(ctx context.Context, cursors []*models.Cursor) error {
	return s.UpsertBatch(ctx, nil, cursors)
}

// LoadCursors returns saved positions for a topic and group.
func (s *MemoryStore) LoadCursors(ctx context.Context, topic, groupID string) ([]*models.Cursor, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var cursors []*models.Cursor
	for key, c := range s.cursors {
		if key.topic == topic && key.groupID == groupID {
			copied := *c
			cursors = append(cursors, &copied)
		}
	}
	sort.Slice(cursors, func(i, j int) bool { return cursors[i].Partition < cursors[j].Partition })
	return cursors, nil
}

// Count returns the number of stored trades. Test helper.
func (s *MemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.trades)
}

// Ping always succeeds.
func (s *MemoryStore) Ping(ctx context.Context) error { return ctx.Err() }

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }
