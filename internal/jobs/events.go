package jobs

import (
	"sync"
	"time"

	"github.com/samber/lo"

	"longform-transcriber/internal/domain"
)

// EventType classifies messages emitted during job execution.
type EventType string

const (
	EventTypeStatus   EventType = "status"
	EventTypeProgress EventType = "progress"
	EventTypePartial  EventType = "partial"
	EventTypeLog      EventType = "log"
	EventTypeResult   EventType = "result"
	EventTypeError    EventType = "error"
)

// Event is a sequenced payload consumed by UI subscribers.
type Event struct {
	Seq         int64                  `json:"seq"`
	Timestamp   time.Time              `json:"timestamp"`
	JobID       string                 `json:"jobId"`
	Type        EventType              `json:"type"`
	Status      domain.JobStatus       `json:"status,omitempty"`
	Message     string                 `json:"message,omitempty"`
	Command     string                 `json:"command,omitempty"`
	Args        []string               `json:"args,omitempty"`
	ExitCode    int                    `json:"exitCode,omitempty"`
	Stdout      string                 `json:"stdout,omitempty"`
	Stderr      string                 `json:"stderr,omitempty"`
	TextPath    string                 `json:"textPath,omitempty"`
	SummaryPath string                 `json:"summaryPath,omitempty"`
	Progress    *domain.StageProgress  `json:"progress,omitempty"`
	Partial     *domain.PartialOutcome `json:"partial,omitempty"`
}

// EventBus keeps a bounded history of job events so a reloaded UI can
// catch up by sequence number.
type EventBus struct {
	mu        sync.RWMutex
	nextSeq   int64
	maxEvents int
	events    []Event
}

// NewEventBus creates a bounded in-memory event buffer.
func NewEventBus(maxEvents int) *EventBus {
	if maxEvents <= 0 {
		maxEvents = 500
	}

	return &EventBus{
		maxEvents: maxEvents,
		events:    make([]Event, 0, maxEvents),
	}
}

// Publish appends one event and assigns sequence and timestamp.
func (b *EventBus) Publish(event Event) Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextSeq++
	event.Seq = b.nextSeq
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	b.events = append(b.events, event)
	if len(b.events) > b.maxEvents {
		trim := len(b.events) - b.maxEvents
		b.events = append([]Event(nil), b.events[trim:]...)
	}

	return event
}

// Since returns events with sequence strictly greater than seq.
func (b *EventBus) Since(seq int64) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return lo.Filter(b.events, func(event Event, _ int) bool {
		return event.Seq > seq
	})
}

// ForJob returns one job's events with sequence strictly greater than seq.
func (b *EventBus) ForJob(jobID string, seq int64) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return lo.Filter(b.events, func(event Event, _ int) bool {
		return event.JobID == jobID && event.Seq > seq
	})
}

// Last returns the newest retained event of eventType for jobID.
func (b *EventBus) Last(jobID string, eventType EventType) (Event, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for i := len(b.events) - 1; i >= 0; i-- {
		if b.events[i].JobID == jobID && b.events[i].Type == eventType {
			return b.events[i], true
		}
	}
	return Event{}, false
}
