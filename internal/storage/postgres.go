package storage

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"tradeview/internal/models"
)

// PostgresStore implements TradeStore on a pgx connection pool.
// Idempotency comes from the unique dedup_key constraint: redelivered
// trades hit ON CONFLICT DO NOTHING and still count as success.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// Compile-time interface check.
var _ TradeStore = (*PostgresStore)(nil)

// PostgresConfig holds pool tuning for the store connection.
type PostgresConfig struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// NewPostgresStore opens a connection pool and verifies connectivity.
func NewPostgresStore(ctx context.Context, cfg PostgresConfig) (*PostgresStore, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}

	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolConfig.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(pingCtx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", classify(err))
	}

	return &PostgresStore{pool: pool}, nil
}

const insertTradeSQL = `
	INSERT INTO trades (dedup_key, symbol, trade_time, price, quantity, ingested_at)
	VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (dedup_key) DO NOTHING
`

const upsertCursorSQL = `
	INSERT INTO consumer_cursors (topic, group_id, partition, last_offset, updated_at)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (topic, group_id, partition)
	DO UPDATE SET last_offset = EXCLUDED.last_offset, updated_at = EXCLUDED.updated_at
`

// UpsertTrades inserts a batch of trades, collapsing dedup key duplicates.
func (s *PostgresStore) UpsertTrades(ctx context.Context, trades []*models.StoredTrade) error {
	return s.UpsertBatch(ctx, trades, nil)
}

// UpsertBatch writes trades and cursors atomically. Either everything in the
// batch becomes durable or nothing does.
func (s *PostgresStore) UpsertBatch(ctx context.Context, trades []*models.StoredTrade, cursors []*models.Cursor) error {
	if len(trades) == 0 && len(cursors) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", classify(err))
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, t := range trades {
		batch.Queue(insertTradeSQL, t.DedupKey, t.Symbol, t.TradeTime, t.Price, t.Quantity, t.IngestedAt)
	}
	for _, c := range cursors {
		batch.Queue(upsertCursorSQL, c.Topic, c.GroupID, c.Partition, c.Offset, c.UpdatedAt)
	}

	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("upsert batch: %w", classify(err))
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", classify(err))
	}
	return nil
}

// QueryRecent returns the latest limit trades for symbol in chronological
// order. The inner query walks the (symbol, trade_time DESC) index; the
// outer one flips the slice back to ascending for rendering.
func (s *PostgresStore) QueryRecent(ctx context.Context, symbol string, limit int) (models.HistoryWindow, error) {
	query := `
		SELECT dedup_key, symbol, trade_time, price, quantity, ingested_at
		FROM (
			SELECT dedup_key, symbol, trade_time, price, quantity, ingested_at
			FROM trades
			WHERE symbol = $1
			ORDER BY trade_time DESC, dedup_key DESC
			LIMIT $2
		) recent
		ORDER BY trade_time ASC, dedup_key ASC
	`

	rows, err := s.pool.Query(ctx, query, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent: %w", classify(err))
	}
	defer rows.Close()

	window := make(models.HistoryWindow, 0, limit)
	for rows.Next() {
		var t models.StoredTrade
		if err := rows.Scan(&t.DedupKey, &t.Symbol, &t.TradeTime, &t.Price, &t.Quantity, &t.IngestedAt); err != nil {
			return nil, fmt.Errorf("scan trade: %w", ErrCorrupt)
		}
		window = append(window, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trades: %w", classify(err))
	}

	return window, nil
}

// SaveCursors persists cursor positions outside a trade batch.
func (s *PostgresStore) SaveCursors(ctx context.Context, cursors []*models.Cursor) error {
	return s.UpsertBatch(ctx, nil, cursors)
}

// LoadCursors returns the saved read positions for a topic and group.
func (s *PostgresStore) LoadCursors(ctx context.Context, topic, groupID string) ([]*models.Cursor, error) {
	query := `
		SELECT topic, group_id, partition, last_offset, updated_at
		FROM consumer_cursors
		WHERE topic = $1 AND group_id = $2
		ORDER BY partition ASC
	`

	rows, err := s.pool.Query(ctx, query, topic, groupID)
	if err != nil {
		return nil, fmt.Errorf("load cursors: %w", classify(err))
	}
	defer rows.Close()

	var cursors []*models.Cursor
	for rows.Next() {
		var c models.Cursor
		if err := rows.Scan(&c.Topic, &c.GroupID, &c.Partition, &c.Offset, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan cursor: %w", ErrCorrupt)
		}
		cursors = append(cursors, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cursors: %w", classify(err))
	}

	return cursors, nil
}

// Ping verifies connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return classify(err)
	}
	return nil
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// classify maps driver errors onto the store failure classes. Connection
// and resource problems are transient; integrity and internal errors are
// corruption. The dedup path never reaches here: duplicate keys are
// swallowed by ON CONFLICT.
func classify(err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		class := pgErr.Code
		if len(class) >= 2 {
			class = class[:2]
		}
		switch class {
		case "08", "53", "57": // connection, resources, operator intervention
			return fmt.Errorf("%w: %s", ErrUnavailable, pgErr.Message)
		case "22", "23", "58", "XX": // data, integrity, system, internal
			return fmt.Errorf("%w: %s (%s)", ErrCorrupt, pgErr.Message, pgErr.Code)
		}
		return err
	}

	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if strings.Contains(err.Error(), "connection refused") || strings.Contains(err.Error(), "closed pool") {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	return err
}
