package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TrendPoint is one moving-average value aligned with a HistoryWindow entry.
// A point exists only once enough prior prices are available to fill the
// averaging window.
type TrendPoint struct {
	// Index is the position in the HistoryWindow this point belongs to.
	Index int `json:"index"`

	// TradeTime mirrors the trade time of the aligned window entry.
	TradeTime time.Time `json:"trade_time"`

	// Average is the arithmetic mean of the trailing window of prices.
	Average decimal.Decimal `json:"average"`
}

// Snapshot is one fully computed, render-ready payload for the live view.
// Each snapshot is built from a fresh query; nothing is cached between ticks.
type Snapshot struct {
	// Symbol is the symbol the snapshot was computed for.
	Symbol string `json:"symbol"`

	// Limit is the row limit that produced the window.
	Limit int `json:"limit"`

	// Window is the ordered recent history backing the chart.
	Window HistoryWindow `json:"window"`

	// Trend is the moving-average overlay. Empty when the window holds
	// fewer points than the averaging window size.
	Trend []TrendPoint `json:"trend"`

	// Caption is a human-readable description of the current limit,
	// rendered under the chart controls.
	Caption string `json:"caption"`

	// GeneratedAt is when this snapshot was computed.
	GeneratedAt time.Time `json:"generated_at"`
}
