package analyzer

import (
	"fmt"
	"time"
)

// BatchState is the lifecycle of one upstream batch.
type BatchState int

const (
	Pending BatchState = iota
	Sent
	Retrying
	Succeeded
	FailedTerminal
)

func (s BatchState) String() string {
	switch s {
	case Pending:
		return "pending"
	case Sent:
		return "sent"
	case Retrying:
		return "retrying"
	case Succeeded:
		return "succeeded"
	case FailedTerminal:
		return "failed"
	default:
		return "unknown"
	}
}

var transitions = map[BatchState][]BatchState{
	Pending:  {Sent, FailedTerminal},
	Sent:     {Succeeded, Retrying, FailedTerminal},
	Retrying: {Sent, FailedTerminal},
}

// Batch is one group of reviews sent in a single model request.
type Batch struct {
	Index    int
	Items    []item
	State    BatchState
	Attempts int
	Delays   []time.Duration
	Err      error
}

func newBatch(index int, items []item) *Batch {
	return &Batch{Index: index, Items: items, State: Pending}
}

// Transition moves the batch to next or returns an error for a move the
// lifecycle does not allow. Entering Sent counts an attempt.
func (b *Batch) Transition(next BatchState) error {
	for _, allowed := range transitions[b.State] {
		if allowed == next {
			b.State = next
			if next == Sent {
				b.Attempts++
			}
			return nil
		}
	}
	return fmt.Errorf("batch %d: illegal transition %s -> %s", b.Index, b.State, next)
}

func (b *Batch) Done() bool { return b.State == Succeeded || b.State == FailedTerminal }

func (b *Batch) ReviewIDs() []string {
	ids := make([]string, len(b.Items))
	for i, it := range b.Items {
		ids[i] = it.ID
	}
	return ids
}
