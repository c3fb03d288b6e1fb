// Package models defines the domain models shared across the application.
package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TradeEvent is one executed market transaction as reported by the upstream
// feed. Events are immutable facts: they are created by the decoder and never
// modified afterwards.
type TradeEvent struct {
	// Symbol is the trading pair the trade was executed on (e.g. "BTCUSDT").
	Symbol string `json:"symbol"`

	// TradeTime is when the trade occurred on the exchange.
	// Not guaranteed monotonic per symbol; the query layer re-orders.
	TradeTime time.Time `json:"trade_time"`

	// Price is the execution price in quote currency. Always positive.
	Price decimal.Decimal `json:"price"`

	// Quantity is the executed base amount. Always positive.
	Quantity decimal.Decimal `json:"quantity"`

	// DedupKey is unique per true trade, typically the exchange-assigned
	// trade id. Redelivered messages carry the same key and collapse to a
	// single stored row.
	DedupKey string `json:"dedup_key"`
}

// StoredTrade is a TradeEvent once it has been durably persisted.
type StoredTrade struct {
	TradeEvent

	// IngestedAt is when the trade was written to the store.
	IngestedAt time.Time `json:"ingested_at"`
}

// HistoryWindow is the most recent trades for one symbol, ascending by
// TradeTime. It is recomputed on every request and never persisted.
type HistoryWindow []*StoredTrade

// Prices returns the price column of the window, in window order.
func (w HistoryWindow) Prices() []decimal.Decimal {
	prices := make([]decimal.Decimal, len(w))
	for i, t := range w {
		prices[i] = t.Price
	}
	return prices
}
