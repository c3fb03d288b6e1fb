package models

import "time"

// Cursor marks the last bus position whose messages are durably stored.
// It is persisted in the same transaction as the trades it covers, so a
// restart resumes without losing data; anything redelivered past the cursor
// is absorbed by dedup.
type Cursor struct {
	// Topic is the bus topic the cursor belongs to.
	Topic string `json:"topic"`

	// GroupID is the consumer group the cursor belongs to.
	GroupID string `json:"group_id"`

	// Partition is the topic partition.
	Partition int `json:"partition"`

	// Offset is the highest offset committed to the store for Partition.
	Offset int64 `json:"offset"`

	// UpdatedAt is when the cursor was last advanced.
	UpdatedAt time.Time `json:"updated_at"`
}
