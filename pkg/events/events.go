package events

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Event is the base interface for analysis events. Payloads stay small and
// JSON friendly so they can be stored, published and replayed.
type Event interface {
	ID() string
	Type() string
	PlaceID() string
	RunID() string
	Timestamp() time.Time
	MarshalData() ([]byte, error)
}

// Base contains common event metadata.
type Base struct {
	EventID string    `json:"event_id"`
	Run     string    `json:"run_id"`
	Place   string    `json:"external_place_id"`
	Ts      time.Time `json:"ts"`
}

// NewBase stamps a fresh event id and the current time.
func NewBase(runID, placeID string) Base {
	return Base{EventID: uuid.NewString(), Run: runID, Place: placeID, Ts: time.Now().UTC()}
}

func (b Base) ID() string           { return b.EventID }
func (b Base) RunID() string        { return b.Run }
func (b Base) PlaceID() string      { return b.Place }
func (b Base) Timestamp() time.Time { return b.Ts }

const (
	TypeBatchSucceeded = "analysis.batch_succeeded"
	TypeBatchFailed    = "analysis.batch_failed"
	TypeRunCompleted   = "analysis.run_completed"
)

// BatchSucceeded is emitted once a batch's analyses are persisted.
type BatchSucceeded struct {
	Base
	Batch            int      `json:"batch"`
	ReviewIDs        []string `json:"review_ids"`
	Analyzed         int      `json:"analyzed"`
	Attempts         int      `json:"attempts"`
	PromptTokens     int      `json:"prompt_tokens"`
	CompletionTokens int      `json:"completion_tokens"`
}

func (e BatchSucceeded) Type() string                 { return TypeBatchSucceeded }
func (e BatchSucceeded) MarshalData() ([]byte, error) { return json.Marshal(e) }

// BatchFailed is emitted when a batch ends in the terminal failed state.
type BatchFailed struct {
	Base
	Batch      int      `json:"batch"`
	ReviewIDs  []string `json:"review_ids"`
	Attempts   int      `json:"attempts"`
	StatusCode int      `json:"status_code,omitempty"`
	Reason     string   `json:"reason"`
}

func (e BatchFailed) Type() string                 { return TypeBatchFailed }
func (e BatchFailed) MarshalData() ([]byte, error) { return json.Marshal(e) }

// RunCompleted closes a run with its summary counters.
type RunCompleted struct {
	Base
	Analyzed      int      `json:"analyzed"`
	TotalFound    int      `json:"total_reviews_found"`
	Batches       int      `json:"batches"`
	FailedBatches int      `json:"failed_batches"`
	Unprocessed   []string `json:"unprocessed_review_ids,omitempty"`
	CostUSD       float64  `json:"cost_usd"`
	DurationMs    int64    `json:"duration_ms"`
}

func (e RunCompleted) Type() string                 { return TypeRunCompleted }
func (e RunCompleted) MarshalData() ([]byte, error) { return json.Marshal(e) }

// Publisher delivers events somewhere durable or external.
type Publisher interface {
	Publish(ctx context.Context, ev ...Event) error
}

// EventStore defines persistence and replay.
// Implementations must guarantee ordering per place.
type EventStore interface {
	Publisher
	ListByPlace(ctx context.Context, placeID string, limit int) ([]StoredEvent, error)
	Replay(ctx context.Context, placeID string) (*RunState, error)
}

// Fanout publishes to every publisher and joins their errors. One failing
// sink does not stop delivery to the others.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, ev ...Event) error {
	var errs []error
	for _, p := range f {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, ev...); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Nop drops events.
type Nop struct{}

func (Nop) Publish(context.Context, ...Event) error { return nil }

// StoredEvent is a durable representation.
// Seq is a monotonic order within the DB (BIGSERIAL / AUTO_INCREMENT).
type StoredEvent struct {
	Seq     int64           `json:"seq"`
	ID      string          `json:"id"`
	RunID   string          `json:"run_id"`
	PlaceID string          `json:"external_place_id"`
	Type    string          `json:"type"`
	Ts      time.Time       `json:"ts"`
	Data    json.RawMessage `json:"data"`
}

// RunState is the per-place view rebuilt from events: the latest run and
// running totals across all runs.
type RunState struct {
	PlaceID            string     `json:"external_place_id"`
	Runs               int        `json:"runs"`
	LastRunID          string     `json:"last_run_id,omitempty"`
	LastRunAt          *time.Time `json:"last_run_at,omitempty"`
	LastAnalyzed       int        `json:"last_analyzed"`
	LastFailedBatches  int        `json:"last_failed_batches"`
	LastFailureReason  string     `json:"last_failure_reason,omitempty"`
	TotalAnalyzed      int        `json:"total_analyzed"`
	TotalFailedBatches int        `json:"total_failed_batches"`
	TotalCostUSD       float64    `json:"total_cost_usd"`
}

// Replay applies events in order and rebuilds state. Undecodable payloads are
// skipped.
func Replay(placeID string, events []StoredEvent) *RunState {
	st := &RunState{PlaceID: placeID}
	for _, se := range events {
		switch se.Type {
		case TypeBatchFailed:
			var ev BatchFailed
			if json.Unmarshal(se.Data, &ev) != nil {
				continue
			}
			st.LastFailureReason = ev.Reason
		case TypeRunCompleted:
			var ev RunCompleted
			if json.Unmarshal(se.Data, &ev) != nil {
				continue
			}
			at := se.Ts
			st.Runs++
			st.LastRunID = se.RunID
			st.LastRunAt = &at
			st.LastAnalyzed = ev.Analyzed
			st.LastFailedBatches = ev.FailedBatches
			if ev.FailedBatches == 0 {
				st.LastFailureReason = ""
			}
			st.TotalAnalyzed += ev.Analyzed
			st.TotalFailedBatches += ev.FailedBatches
			st.TotalCostUSD += ev.CostUSD
		}
	}
	return st
}
