// Package liveview keeps remote viewers in sync with the store. A single
// refresh loop recomputes the current view on a fixed tick and on selection
// changes; both trigger paths share one code path so the trend overlay can
// never diverge between them.
package liveview

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"tradeview/internal/history"
	"tradeview/internal/models"
	"tradeview/internal/trend"
	"tradeview/pkg/metrics"
)

// ErrUnknownSymbol is returned when a selection names a symbol outside the
// configured set.
var ErrUnknownSymbol = errors.New("unknown symbol")

// Renderer receives every freshly computed snapshot. Implementations must
// not block for long; slow viewers are their own problem to shed.
type Renderer interface {
	Render(snapshot *models.Snapshot)
}

// Selection is the viewer-adjustable part of the live view.
type Selection struct {
	Symbol string `json:"symbol"`
	Limit  int    `json:"limit"`
}

// Config holds controller tuning.
type Config struct {
	// Interval is the refresh tick. Default 5s.
	Interval time.Duration

	// WindowSize is the moving-average window. Default trend.DefaultWindowSize.
	WindowSize int

	// Symbols is the set of selectable symbols.
	Symbols []string

	// DefaultSymbol and DefaultLimit form the initial selection.
	DefaultSymbol string
	DefaultLimit  int
}

// Controller drives the periodic recompute-and-emit cycle. Reads are served
// from whatever the store holds at tick time; a trade written concurrently
// with a tick is picked up by the next one.
type Controller struct {
	history  *history.Service
	renderer Renderer
	logger   *logrus.Logger
	cfg      Config

	// limiter bounds immediate refreshes from rapid selection changes so
	// a fidgety viewer cannot hammer the store between ticks.
	limiter *rate.Limiter

	changes chan struct{}

	mu        sync.RWMutex
	selection Selection
	last      *models.Snapshot
}

// NewController creates a controller with the initial selection taken from
// cfg defaults.
func NewController(historySvc *history.Service, renderer Renderer, logger *logrus.Logger, cfg Config) *Controller {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Second
	}
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = trend.DefaultWindowSize
	}

	return &Controller{
		history:  historySvc,
		renderer: renderer,
		logger:   logger,
		cfg:      cfg,
		limiter:  rate.NewLimiter(rate.Every(200*time.Millisecond), 3),
		changes:  make(chan struct{}, 1),
		selection: Selection{
			Symbol: cfg.DefaultSymbol,
			Limit:  cfg.DefaultLimit,
		},
	}
}

// Run executes the refresh loop until ctx is cancelled. One snapshot is
// emitted immediately so viewers never wait a full interval for first paint.
func (c *Controller) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()

	c.refresh(ctx)

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Live view stopped")
			return nil
		case <-ticker.C:
			c.refresh(ctx)
		case <-c.changes:
			if c.limiter.Allow() {
				c.refresh(ctx)
			}
			// Otherwise the next tick renders the new selection.
		}
	}
}

// SetSelection validates and applies a viewer's symbol/limit choice and
// requests an immediate refresh.
func (c *Controller) SetSelection(symbol string, limit int) error {
	if limit < history.MinLimit || limit > history.MaxLimit {
		return fmt.Errorf("%w: %d", history.ErrInvalidLimit, limit)
	}
	if !c.supported(symbol) {
		return fmt.Errorf("%w: %q", ErrUnknownSymbol, symbol)
	}

	c.mu.Lock()
	c.selection = Selection{Symbol: symbol, Limit: limit}
	c.mu.Unlock()

	// Coalesce: one pending change request is enough.
	select {
	case c.changes <- struct{}{}:
	default:
	}
	return nil
}

// Selection returns the current viewer selection.
func (c *Controller) Selection() Selection {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.selection
}

// Latest returns the most recent successfully computed snapshot, or nil
// before the first one. When a tick fails, the previous snapshot stays
// available so the view degrades instead of stalling.
func (c *Controller) Latest() *models.Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.last
}

// Symbols returns the configured symbol set.
func (c *Controller) Symbols() []string {
	return c.cfg.Symbols
}

// refresh runs one full query-aggregate-emit cycle for the current
// selection. Failures are logged and swallowed: the loop must outlive a
// degraded store.
func (c *Controller) refresh(ctx context.Context) {
	sel := c.Selection()

	snapshot, err := BuildSnapshot(ctx, c.history, sel.Symbol, sel.Limit, c.cfg.WindowSize)
	if err != nil {
		metrics.SnapshotTicks.WithLabelValues("error").Inc()
		c.logger.WithError(err).WithField("symbol", sel.Symbol).
			Warn("Refresh failed, keeping previous snapshot")
		return
	}
	metrics.SnapshotTicks.WithLabelValues("success").Inc()

	c.mu.Lock()
	c.last = snapshot
	c.mu.Unlock()

	c.renderer.Render(snapshot)
}

func (c *Controller) supported(symbol string) bool {
	for _, s := range c.cfg.Symbols {
		if s == symbol {
			return true
		}
	}
	return false
}

// BuildSnapshot queries the window, computes the trend overlay when enough
// points exist, and assembles a render-ready snapshot. Shared by the refresh
// loop and the per-request history endpoint so every viewer gets identical
// semantics.
func BuildSnapshot(ctx context.Context, historySvc *history.Service, symbol string, limit, windowSize int) (*models.Snapshot, error) {
	window, err := historySvc.GetHistory(ctx, symbol, limit)
	if err != nil {
		return nil, err
	}

	var points []models.TrendPoint
	if len(window) >= windowSize {
		points = trend.Compute(window, windowSize)
	}

	return &models.Snapshot{
		Symbol:      symbol,
		Limit:       limit,
		Window:      window,
		Trend:       points,
		Caption:     fmt.Sprintf("Currently showing last %d trades.", limit),
		GeneratedAt: time.Now(),
	}, nil
}
