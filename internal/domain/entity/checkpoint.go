package entity

import (
	"encoding/json"
	"fmt"
	"time"
)

// Checkpoint is the durable record of a resumable run: the terminal result of
// every completed item keyed by its item key, the last known stats and the
// time the document was written.
type Checkpoint[T, R any] struct {
	ProcessedItems map[string]ExecutionResult[T, R]
	Stats          ExecutionStats
	Timestamp      time.Time
}

// NewCheckpoint returns an empty checkpoint.
func NewCheckpoint[T, R any]() Checkpoint[T, R] {
	return Checkpoint[T, R]{ProcessedItems: make(map[string]ExecutionResult[T, R])}
}

type checkpointWire[T, R any] struct {
	ProcessedItems map[string]ExecutionResult[T, R] `json:"processed_items"`
	Stats          ExecutionStats                   `json:"stats"`
	Timestamp      string                           `json:"timestamp"`
}

// MarshalJSON implements json.Marshaler.
func (c Checkpoint[T, R]) MarshalJSON() ([]byte, error) {
	items := c.ProcessedItems
	if items == nil {
		items = map[string]ExecutionResult[T, R]{}
	}
	return json.Marshal(checkpointWire[T, R]{
		ProcessedItems: items,
		Stats:          c.Stats,
		Timestamp:      FormatTimestamp(c.Timestamp),
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (c *Checkpoint[T, R]) UnmarshalJSON(data []byte) error {
	var w checkpointWire[T, R]
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	ts, err := ParseTimestamp(w.Timestamp)
	if err != nil {
		return fmt.Errorf("checkpoint timestamp: %w", err)
	}
	if w.ProcessedItems == nil {
		w.ProcessedItems = make(map[string]ExecutionResult[T, R])
	}
	*c = Checkpoint[T, R]{
		ProcessedItems: w.ProcessedItems,
		Stats:          w.Stats,
		Timestamp:      ts,
	}
	return nil
}

// CheckpointInfo describes a stored checkpoint without its document.
type CheckpointInfo struct {
	Name      string
	ItemCount int
	UpdatedAt time.Time
}
