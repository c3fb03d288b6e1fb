// Package decoder turns raw bus payloads into validated trade events.
// Decoding is pure: a payload either yields a TradeEvent or a typed error,
// and failures never halt the caller.
package decoder

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"tradeview/internal/models"
)

// Decode failure classes. Callers classify with errors.Is; every decode
// failure is non-fatal and should be logged and skipped.
var (
	// ErrMalformedPayload means the payload is not valid JSON or misses
	// required fields entirely.
	ErrMalformedPayload = errors.New("malformed payload")

	// ErrMissingDedupKey means the payload carries no trade id.
	ErrMissingDedupKey = errors.New("missing dedup key")

	// ErrInvalidNumericField means price or quantity is absent,
	// non-positive, or not a number.
	ErrInvalidNumericField = errors.New("invalid numeric field")

	// ErrInvalidTimestamp means the trade time could not be parsed.
	ErrInvalidTimestamp = errors.New("invalid timestamp")
)

// payload is the wire format of one trade message on the bus.
// Price and quantity arrive as JSON numbers or quoted decimal strings.
type payload struct {
	TradeID  string          `json:"trade_id"`
	Symbol   string          `json:"symbol"`
	Price    json.RawMessage `json:"price"`
	Quantity json.RawMessage `json:"quantity"`
	Time     string          `json:"time"`
}

// timeFormats are the timestamp layouts seen on the feed, tried in order.
var timeFormats = []string{
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// Decode parses and validates a single raw bus message.
func Decode(raw []byte) (*models.TradeEvent, error) {
	var p payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	if p.Symbol == "" {
		return nil, fmt.Errorf("%w: empty symbol", ErrMalformedPayload)
	}
	if p.TradeID == "" {
		return nil, ErrMissingDedupKey
	}

	price, err := parseDecimal("price", p.Price)
	if err != nil {
		return nil, err
	}
	quantity, err := parseDecimal("quantity", p.Quantity)
	if err != nil {
		return nil, err
	}

	tradeTime, err := parseTime(p.Time)
	if err != nil {
		return nil, err
	}

	return &models.TradeEvent{
		Symbol:    p.Symbol,
		TradeTime: tradeTime,
		Price:     price,
		Quantity:  quantity,
		DedupKey:  p.TradeID,
	}, nil
}

// parseDecimal accepts a JSON number or a quoted decimal string and rejects
// missing or non-positive values.
func parseDecimal(field string, raw json.RawMessage) (decimal.Decimal, error) {
	if len(raw) == 0 {
		return decimal.Zero, fmt.Errorf("%w: %s is missing", ErrInvalidNumericField, field)
	}

	var d decimal.Decimal
	if err := json.Unmarshal(raw, &d); err != nil {
		return decimal.Zero, fmt.Errorf("%w: %s: %v", ErrInvalidNumericField, field, err)
	}

	if !d.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: %s must be positive, got %s", ErrInvalidNumericField, field, d)
	}

	return d, nil
}

func parseTime(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("%w: time is missing", ErrInvalidTimestamp)
	}

	for _, format := range timeFormats {
		if t, err := time.Parse(format, value); err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("%w: unable to parse %q with any known format", ErrInvalidTimestamp, value)
}
