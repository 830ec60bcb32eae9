// Package entity defines the core domain types shared by the batch engine, the
// checkpoint store and the result exporters: the per-item ExecutionResult and the
// aggregate ExecutionStats of a run, together with their wire encodings.
package entity

import (
	"encoding/json"
	"fmt"
	"time"
)

// naiveISOLayout is the naive ISO-8601 layout (no zone) found in checkpoints written
// by older tooling. Such timestamps are interpreted as UTC.
const naiveISOLayout = "2006-01-02T15:04:05.999999"

// ExecutionResult is the terminal outcome of one scheduled item.
// It is created exactly once per scheduled item and never modified afterwards.
// Result is meaningful only when Success is true; Error only when it is false.
type ExecutionResult[T, R any] struct {
	Item           T
	Success        bool
	Result         R
	Error          string
	RetryCount     int
	ProcessingTime time.Duration
	Timestamp      time.Time
}

// NewSuccess builds a successful result stamped with the current UTC time.
func NewSuccess[T, R any](item T, result R, retryCount int, processingTime time.Duration) ExecutionResult[T, R] {
	return ExecutionResult[T, R]{
		Item:           item,
		Success:        true,
		Result:         result,
		RetryCount:     retryCount,
		ProcessingTime: processingTime,
		Timestamp:      time.Now().UTC(),
	}
}

// NewFailure builds a failed result stamped with the current UTC time.
func NewFailure[T, R any](item T, errMsg string, retryCount int, processingTime time.Duration) ExecutionResult[T, R] {
	return ExecutionResult[T, R]{
		Item:           item,
		Success:        false,
		Error:          errMsg,
		RetryCount:     retryCount,
		ProcessingTime: processingTime,
		Timestamp:      time.Now().UTC(),
	}
}

// executionResultWire is the serialized shape of an ExecutionResult:
// {item, success, result, error, retry_count, processing_time, timestamp}.
// processing_time is expressed in seconds.
type executionResultWire[T, R any] struct {
	Item           T       `json:"item" yaml:"item"`
	Success        bool    `json:"success" yaml:"success"`
	Result         *R      `json:"result" yaml:"result"`
	Error          *string `json:"error" yaml:"error"`
	RetryCount     int     `json:"retry_count" yaml:"retry_count"`
	ProcessingTime float64 `json:"processing_time" yaml:"processing_time"`
	Timestamp      string  `json:"timestamp" yaml:"timestamp"`
}

func (r ExecutionResult[T, R]) wire() executionResultWire[T, R] {
	w := executionResultWire[T, R]{
		Item:           r.Item,
		Success:        r.Success,
		RetryCount:     r.RetryCount,
		ProcessingTime: r.ProcessingTime.Seconds(),
		Timestamp:      FormatTimestamp(r.Timestamp),
	}
	if r.Success {
		res := r.Result
		w.Result = &res
	} else {
		msg := r.Error
		w.Error = &msg
	}
	return w
}

// MarshalJSON implements json.Marshaler.
func (r ExecutionResult[T, R]) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.wire())
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *ExecutionResult[T, R]) UnmarshalJSON(data []byte) error {
	var w executionResultWire[T, R]
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	ts, err := ParseTimestamp(w.Timestamp)
	if err != nil {
		return fmt.Errorf("execution result timestamp: %w", err)
	}

	*r = ExecutionResult[T, R]{
		Item:           w.Item,
		Success:        w.Success,
		RetryCount:     w.RetryCount,
		ProcessingTime: secondsToDuration(w.ProcessingTime),
		Timestamp:      ts,
	}
	if w.Result != nil {
		r.Result = *w.Result
	}
	if w.Error != nil {
		r.Error = *w.Error
	}
	return nil
}

// MarshalYAML implements yaml.Marshaler with the same field names as the JSON form.
func (r ExecutionResult[T, R]) MarshalYAML() (interface{}, error) {
	return r.wire(), nil
}

// ExecutionStats holds aggregate counters for one engine run.
// TotalItems counts scheduled items, so TotalItems == SuccessfulItems + FailedItems
// once the run is complete. AverageProcessingTime is set by Finalize.
type ExecutionStats struct {
	TotalItems            int
	SuccessfulItems       int
	FailedItems           int
	SkippedItems          int
	TotalProcessingTime   time.Duration
	AverageProcessingTime time.Duration
	StartTime             time.Time
	EndTime               time.Time
}

// NewExecutionStats returns zeroed stats with StartTime set to now.
func NewExecutionStats() ExecutionStats {
	return ExecutionStats{StartTime: time.Now().UTC()}
}

// Record adds one terminal result to the counters.
func (s *ExecutionStats) Record(success bool, processingTime time.Duration) {
	s.TotalItems++
	if success {
		s.SuccessfulItems++
	} else {
		s.FailedItems++
	}
	s.TotalProcessingTime += processingTime
}

// Finalize stamps EndTime and computes the average processing time over
// successful items. The average stays zero when nothing succeeded.
func (s *ExecutionStats) Finalize(end time.Time) {
	s.EndTime = end.UTC()
	if s.SuccessfulItems > 0 {
		s.AverageProcessingTime = s.TotalProcessingTime / time.Duration(s.SuccessfulItems)
	}
}

// Finished reports whether Finalize has been called.
func (s ExecutionStats) Finished() bool {
	return !s.EndTime.IsZero()
}

type executionStatsWire struct {
	TotalItems            int     `json:"total_items" yaml:"total_items"`
	SuccessfulItems       int     `json:"successful_items" yaml:"successful_items"`
	FailedItems           int     `json:"failed_items" yaml:"failed_items"`
	SkippedItems          int     `json:"skipped_items" yaml:"skipped_items"`
	TotalProcessingTime   float64 `json:"total_processing_time" yaml:"total_processing_time"`
	AverageProcessingTime float64 `json:"average_processing_time" yaml:"average_processing_time"`
	StartTime             string  `json:"start_time" yaml:"start_time"`
	EndTime               *string `json:"end_time" yaml:"end_time"`
}

func (s ExecutionStats) wire() executionStatsWire {
	w := executionStatsWire{
		TotalItems:            s.TotalItems,
		SuccessfulItems:       s.SuccessfulItems,
		FailedItems:           s.FailedItems,
		SkippedItems:          s.SkippedItems,
		TotalProcessingTime:   s.TotalProcessingTime.Seconds(),
		AverageProcessingTime: s.AverageProcessingTime.Seconds(),
		StartTime:             FormatTimestamp(s.StartTime),
	}
	if s.Finished() {
		end := FormatTimestamp(s.EndTime)
		w.EndTime = &end
	}
	return w
}

// MarshalJSON implements json.Marshaler.
func (s ExecutionStats) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.wire())
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *ExecutionStats) UnmarshalJSON(data []byte) error {
	var w executionStatsWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	start, err := ParseTimestamp(w.StartTime)
	if err != nil {
		return fmt.Errorf("stats start_time: %w", err)
	}
	var end time.Time
	if w.EndTime != nil {
		if end, err = ParseTimestamp(*w.EndTime); err != nil {
			return fmt.Errorf("stats end_time: %w", err)
		}
	}

	*s = ExecutionStats{
		TotalItems:            w.TotalItems,
		SuccessfulItems:       w.SuccessfulItems,
		FailedItems:           w.FailedItems,
		SkippedItems:          w.SkippedItems,
		TotalProcessingTime:   secondsToDuration(w.TotalProcessingTime),
		AverageProcessingTime: secondsToDuration(w.AverageProcessingTime),
		StartTime:             start,
		EndTime:               end,
	}
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (s ExecutionStats) MarshalYAML() (interface{}, error) {
	return s.wire(), nil
}

// FormatTimestamp renders t as ISO-8601 in UTC. The zero time renders as "".
func FormatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// ParseTimestamp accepts RFC 3339 timestamps and naive ISO-8601 timestamps
// (interpreted as UTC). The empty string parses to the zero time.
func ParseTimestamp(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.ParseInLocation(naiveISOLayout, s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid ISO-8601 timestamp %q", s)
	}
	return t, nil
}

func secondsToDuration(sec float64) time.Duration {
	return time.Duration(sec * float64(time.Second))
}
