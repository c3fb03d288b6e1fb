// Package storage provides durable, queryable, idempotent storage for trade
// events plus the consumer cursor that travels with them.
package storage

import (
	"context"
	"errors"

	"tradeview/internal/models"
)

// Failure classes surfaced by implementations. Callers classify with
// errors.Is.
var (
	// ErrUnavailable means the backend is temporarily unreachable.
	// Callers retry with backoff.
	ErrUnavailable = errors.New("store unavailable")

	// ErrCorrupt means the backend state is inconsistent (integrity
	// violation outside the dedup path, unreadable rows). Fatal: callers
	// must stop rather than silently continue.
	ErrCorrupt = errors.New("store corrupt")
)

// TradeStore is the contract for persisting and querying trades.
// Implementations must be safe for concurrent readers alongside one writer,
// without assuming there is only one writer.
type TradeStore interface {
	// UpsertTrades inserts a batch of trades. Re-inserting a dedup key is
	// a no-op: for any key, at most one row exists afterwards.
	UpsertTrades(ctx context.Context, trades []*models.StoredTrade) error

	// UpsertBatch inserts trades and advances the cursors in a single
	// transaction, so a crash can never persist one without the other.
	UpsertBatch(ctx context.Context, trades []*models.StoredTrade, cursors []*models.Cursor) error

	// QueryRecent returns the most recent limit trades for symbol,
	// ascending by trade time. An unknown symbol yields an empty slice.
	QueryRecent(ctx context.Context, symbol string, limit int) (models.HistoryWindow, error)

	// SaveCursors persists bus read positions outside a trade batch
	// (used for the final cursor flush on shutdown).
	SaveCursors(ctx context.Context, cursors []*models.Cursor) error

	// LoadCursors returns the saved positions for a topic and group,
	// one per partition. Empty on first run.
	LoadCursors(ctx context.Context, topic, groupID string) ([]*models.Cursor, error)

	// Ping verifies connectivity.
	Ping(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}
