package queue

import "time"

// Priority selects the scheduling tier for a queued write. It is a closed
// set: every tier has its own dispatch cadence and retry ceiling.
type Priority int

const (
	// PriorityCritical items are dispatched immediately, one at a time.
	// One retry only: critical operations should fail fast rather than
	// mask problems behind patience.
	PriorityCritical Priority = iota

	// PriorityNormal items are batched on a short fixed interval.
	PriorityNormal

	// PriorityLow items run during idle periods in small batches. Five
	// retries: low-priority work succeeds through patience, not speed.
	PriorityLow
)

// MaxRetries returns the retry ceiling for the tier.
func (p Priority) MaxRetries() int {
	switch p {
	case PriorityCritical:
		return 1
	case PriorityNormal:
		return 3
	default:
		return 5
	}
}

func (p Priority) String() string {
	switch p {
	case PriorityCritical:
		return "critical"
	case PriorityNormal:
		return "normal"
	case PriorityLow:
		return "low"
	default:
		return "unknown"
	}
}

// Op distinguishes the two durable operations a queue item can carry.
type Op int

const (
	// OpPut stores the item's value under its key.
	OpPut Op = iota

	// OpDelete removes the item's key.
	OpDelete
)

func (o Op) String() string {
	if o == OpDelete {
		return "delete"
	}
	return "put"
}

// Item is one queued write. Its lifecycle is owned by the queue: callers
// only ever observe items through events.
type Item struct {
	ID         string
	Priority   Priority
	Op         Op
	Key        string
	Value      []byte
	Retries    int
	EnqueuedAt time.Time
	LastErr    error
}

// EventType identifies a queue lifecycle transition.
type EventType int

const (
	// EventEnqueued fires when an item is accepted.
	EventEnqueued EventType = iota
	// EventProcessing fires when an item's attempt starts.
	EventProcessing
	// EventCompleted fires when an item's write succeeds.
	EventCompleted
	// EventRetry fires when an attempt failed and a retry is scheduled.
	EventRetry
	// EventFailed fires when an item exhausts its retry ceiling.
	EventFailed
	// EventDropped fires when capacity shedding discards an item.
	EventDropped
)

func (t EventType) String() string {
	switch t {
	case EventEnqueued:
		return "enqueued"
	case EventProcessing:
		return "processing"
	case EventCompleted:
		return "completed"
	case EventRetry:
		return "retry"
	case EventFailed:
		return "failed"
	case EventDropped:
		return "dropped"
	default:
		return "unknown"
	}
}

// Event carries one lifecycle transition to subscribers. Events are the
// only way callers observe asynchronous outcomes; Enqueue is
// fire-and-forget by design.
type Event struct {
	Type EventType
	Item *Item
}
