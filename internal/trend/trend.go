// Package trend computes a rolling moving average over an ordered history
// window. The computation is pure and deterministic; nothing is cached
// between calls.
package trend

import (
	"github.com/shopspring/decimal"

	"tradeview/internal/models"
)

// DefaultWindowSize matches the MA(10) overlay of the live view.
const DefaultWindowSize = 10

// Compute returns one TrendPoint per window entry that has at least
// windowSize-1 predecessors. Point i is the arithmetic mean of prices
// [i-windowSize+1, i]. A single running sum keeps the pass O(n).
//
// Returns nil when the window is shorter than windowSize or windowSize is
// not positive.
func Compute(window models.HistoryWindow, windowSize int) []models.TrendPoint {
	if windowSize <= 0 || len(window) < windowSize {
		return nil
	}

	prices := window.Prices()
	points := make([]models.TrendPoint, 0, len(window)-windowSize+1)
	size := decimal.NewFromInt(int64(windowSize))

	sum := decimal.Zero
	for i, price := range prices {
		sum = sum.Add(price)
		if i >= windowSize {
			sum = sum.Sub(prices[i-windowSize])
		}
		if i >= windowSize-1 {
			points = append(points, models.TrendPoint{
				Index:     i,
				TradeTime: window[i].TradeTime,
				Average:   sum.Div(size),
			})
		}
	}

	return points
}
