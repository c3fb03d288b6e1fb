// Package consumer drains the trade topic into the store. Delivery is
// at-least-once into the store with exactly-once effect: offsets are only
// committed after a durable write, and the store collapses redeliveries by
// dedup key.
package consumer

import (
	"context"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"tradeview/internal/decoder"
	"tradeview/internal/models"
	"tradeview/internal/storage"
	"tradeview/pkg/metrics"
)

// Reader is the slice of kafka.Reader the consumer depends on.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Config holds consumer tuning.
type Config struct {
	// Topic and GroupID identify the cursor rows in the store.
	Topic   string
	GroupID string

	// BatchSize is the maximum number of trades accumulated before a flush.
	BatchSize int

	// BatchTimeout bounds both the poll wait and the time a partial batch
	// may sit unflushed.
	BatchTimeout time.Duration
}

// Consumer runs the ingestion loop. One instance is the sole writer to the
// store; the store contract does not rely on that.
type Consumer struct {
	reader  Reader
	store   storage.TradeStore
	logger  *logrus.Logger
	cfg     Config
	backoff Backoff

	// retry is the backoff template for store writes; copied per flush so
	// each retry sequence starts fresh.
	retry Backoff

	// committed tracks, per partition, the highest offset durably stored.
	// Loaded from the cursor table at startup so a crash between store
	// commit and bus commit does not re-ingest the covered messages.
	committed map[int]int64
}

// New creates a consumer with injected dependencies.
func New(reader Reader, store storage.TradeStore, logger *logrus.Logger, cfg Config) *Consumer {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 200
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = time.Second
	}
	return &Consumer{
		reader:    reader,
		store:     store,
		logger:    logger,
		cfg:       cfg,
		backoff:   Backoff{Base: time.Second, Max: 30 * time.Second},
		retry:     Backoff{Base: time.Second, Max: 30 * time.Second},
		committed: make(map[int]int64),
	}
}

// Start runs the ingestion loop until ctx is cancelled. On shutdown the
// in-flight batch is flushed and its cursor persisted before the reader is
// closed, so no acknowledged message is lost.
//
// Per cycle: poll with a bounded wait, decode, accumulate; flush on batch
// size or timeout. A flush writes trades and cursor in one transaction,
// retried with capped backoff while the store is unavailable, and commits
// bus offsets only afterwards. Store corruption is the only fatal error.
func (c *Consumer) Start(ctx context.Context) error {
	if err := c.loadCursors(ctx); err != nil {
		return err
	}

	c.logger.WithFields(logrus.Fields{
		"topic":         c.cfg.Topic,
		"group_id":      c.cfg.GroupID,
		"batch_size":    c.cfg.BatchSize,
		"batch_timeout": c.cfg.BatchTimeout,
	}).Info("Starting ingestion loop")

	batchTrades := make([]*models.StoredTrade, 0, c.cfg.BatchSize)
	batchMsgs := make([]kafka.Message, 0, c.cfg.BatchSize)

	ticker := time.NewTicker(c.cfg.BatchTimeout)
	defer ticker.Stop()

	flush := func() error {
		err := c.flush(ctx, batchTrades, batchMsgs)
		batchTrades = batchTrades[:0]
		batchMsgs = batchMsgs[:0]
		ticker.Reset(c.cfg.BatchTimeout)
		return err
	}

	defer func() {
		if err := c.reader.Close(); err != nil {
			c.logger.WithError(err).Error("Error closing reader")
		}
	}()

	for {
		select {
		case <-ctx.Done():
			// Shutdown: finish the in-flight batch with a fresh context
			// so the final write is not cancelled mid-flight.
			flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			err := c.flush(flushCtx, batchTrades, batchMsgs)
			if err != nil {
				c.logger.WithError(err).Error("Final flush failed")
				return err
			}
			c.logger.Info("Ingestion loop stopped cleanly")
			return nil

		case <-ticker.C:
			if err := flush(); err != nil {
				return err
			}

		default:
			fetchCtx, cancel := context.WithTimeout(ctx, c.cfg.BatchTimeout)
			msg, err := c.reader.FetchMessage(fetchCtx)
			cancel()

			if err != nil {
				if errors.Is(err, context.DeadlineExceeded) {
					continue // quiet topic, loop again
				}
				if errors.Is(err, context.Canceled) {
					continue // picked up by the ctx.Done branch
				}
				c.logger.WithError(err).Warn("Bus fetch failed, backing off")
				if waitErr := c.backoff.Wait(ctx); waitErr != nil {
					continue
				}
				continue
			}
			c.backoff.Reset()

			if last, ok := c.committed[msg.Partition]; ok && msg.Offset <= last {
				metrics.MessagesSkipped.WithLabelValues("replayed").Inc()
				continue
			}

			event, err := decoder.Decode(msg.Value)
			if err != nil {
				metrics.MessagesSkipped.WithLabelValues("decode_error").Inc()
				c.logger.WithError(err).WithFields(logrus.Fields{
					"partition": msg.Partition,
					"offset":    msg.Offset,
				}).Warn("Dropping undecodable message")
				continue
			}

			batchTrades = append(batchTrades, &models.StoredTrade{
				TradeEvent: *event,
				IngestedAt: time.Now(),
			})
			batchMsgs = append(batchMsgs, msg)

			if len(batchTrades) >= c.cfg.BatchSize {
				if err := flush(); err != nil {
					return err
				}
			}
		}
	}
}

// flush writes the batch and its cursor transactionally, then commits the
// bus offsets. Transient store failures are retried with backoff until the
// write sticks or ctx is cancelled; corruption aborts the consumer.
func (c *Consumer) flush(ctx context.Context, trades []*models.StoredTrade, msgs []kafka.Message) error {
	if len(trades) == 0 {
		return nil
	}

	cursors := c.cursorsFor(msgs)
	timer := metrics.NewTimer()

	retry := c.retry
	for {
		err := c.store.UpsertBatch(ctx, trades, cursors)
		if err == nil {
			break
		}
		if errors.Is(err, storage.ErrCorrupt) {
			c.logger.WithError(err).Error("Store corruption detected, stopping")
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		metrics.FlushRetries.Inc()
		c.logger.WithError(err).WithField("batch_size", len(trades)).
			Warn("Store write failed, retrying")
		if waitErr := retry.Wait(ctx); waitErr != nil {
			return waitErr
		}
	}
	timer.ObserveDuration(metrics.FlushDuration)

	for _, cur := range cursors {
		c.committed[cur.Partition] = cur.Offset
	}
	for _, t := range trades {
		metrics.TradesIngested.WithLabelValues(t.Symbol).Inc()
	}

	// Offsets move only after the durable write above.
	if err := c.reader.CommitMessages(ctx, msgs...); err != nil {
		c.logger.WithError(err).Warn("Failed to commit offsets, dedup will absorb redelivery")
	}

	c.logger.WithField("batch_size", len(trades)).Debug("Flushed batch")
	return nil
}

// cursorsFor reduces a batch to one cursor per partition at the highest
// offset seen.
func (c *Consumer) cursorsFor(msgs []kafka.Message) []*models.Cursor {
	highest := make(map[int]int64)
	for _, m := range msgs {
		if off, ok := highest[m.Partition]; !ok || m.Offset > off {
			highest[m.Partition] = m.Offset
		}
	}

	now := time.Now()
	cursors := make([]*models.Cursor, 0, len(highest))
	for partition, offset := range highest {
		cursors = append(cursors, &models.Cursor{
			Topic:     c.cfg.Topic,
			GroupID:   c.cfg.GroupID,
			Partition: partition,
			Offset:    offset,
			UpdatedAt: now,
		})
	}
	return cursors
}

// loadCursors restores the per-partition resume positions. The store being
// down at startup is retried like any other transient failure.
func (c *Consumer) loadCursors(ctx context.Context) error {
	retry := c.retry
	for {
		cursors, err := c.store.LoadCursors(ctx, c.cfg.Topic, c.cfg.GroupID)
		if err == nil {
			for _, cur := range cursors {
				c.committed[cur.Partition] = cur.Offset
				c.logger.WithFields(logrus.Fields{
					"partition": cur.Partition,
					"offset":    cur.Offset,
				}).Info("Resuming from stored cursor")
			}
			return nil
		}
		if errors.Is(err, storage.ErrCorrupt) {
			return err
		}
		c.logger.WithError(err).Warn("Cursor load failed, retrying")
		if waitErr := retry.Wait(ctx); waitErr != nil {
			return waitErr
		}
	}
}
