package jobs

import (
	"testing"

	"longform-transcriber/internal/domain"
)

// TestEventBusSince verifies incremental event reads by sequence.
func TestEventBusSince(t *testing.T) {
	bus := NewEventBus(3)
	bus.Publish(Event{Type: EventTypeStatus, Message: "1"})
	bus.Publish(Event{Type: EventTypeStatus, Message: "2"})
	bus.Publish(Event{Type: EventTypeStatus, Message: "3"})

	events := bus.Since(1)
	if len(events) != 2 {
		t.Fatalf("len = %d, want 2", len(events))
	}
	if events[0].Seq != 2 || events[1].Seq != 3 {
		t.Fatalf("unexpected seqs: %+v", events)
	}
}

// TestEventBusCapsHistory verifies buffer limit trimming behavior.
func TestEventBusCapsHistory(t *testing.T) {
	bus := NewEventBus(2)
	bus.Publish(Event{Message: "1"})
	bus.Publish(Event{Message: "2"})
	bus.Publish(Event{Message: "3"})

	events := bus.Since(0)
	if len(events) != 2 {
		t.Fatalf("len = %d, want 2", len(events))
	}
	if events[0].Message != "2" || events[1].Message != "3" {
		t.Fatalf("unexpected events: %+v", events)
	}
}

// TestEventBusKeepsPayloads verifies progress and partial payloads survive.
func TestEventBusKeepsPayloads(t *testing.T) {
	bus := NewEventBus(10)
	bus.Publish(Event{Type: EventTypeProgress, Progress: &domain.StageProgress{CurrentChunk: 2, TotalChunks: 5}})
	bus.Publish(Event{Type: EventTypePartial, Partial: &domain.PartialOutcome{SuccessRate: 60}})

	events := bus.Since(0)
	if len(events) != 2 {
		t.Fatalf("len = %d, want 2", len(events))
	}
	if events[0].Progress == nil || events[0].Progress.CurrentChunk != 2 {
		t.Fatalf("progress payload = %+v", events[0].Progress)
	}
	if events[1].Partial == nil || events[1].Partial.SuccessRate != 60 {
		t.Fatalf("partial payload = %+v", events[1].Partial)
	}
	if events[1].Timestamp.IsZero() {
		t.Fatal("timestamp should be assigned")
	}
}

// TestEventBusForJobAndLast verifies job-scoped reads.
func TestEventBusForJobAndLast(t *testing.T) {
	bus := NewEventBus(10)
	bus.Publish(Event{JobID: "job-a", Type: EventTypeStatus, Status: domain.JobStatusChunking})
	bus.Publish(Event{JobID: "job-b", Type: EventTypeStatus, Status: domain.JobStatusChunking})
	bus.Publish(Event{JobID: "job-a", Type: EventTypePartial, Message: "first"})
	bus.Publish(Event{JobID: "job-a", Type: EventTypePartial, Message: "second"})

	events := bus.ForJob("job-a", 1)
	if len(events) != 2 {
		t.Fatalf("len = %d, want 2", len(events))
	}
	for _, event := range events {
		if event.JobID != "job-a" {
			t.Fatalf("unexpected job id %q", event.JobID)
		}
	}

	last, ok := bus.Last("job-a", EventTypePartial)
	if !ok || last.Message != "second" {
		t.Fatalf("last = %+v, %v; want second partial", last, ok)
	}
	if _, ok := bus.Last("job-b", EventTypeResult); ok {
		t.Fatal("job-b has no result event")
	}
	if events := NewEventBus(1).Since(0); len(events) != 0 {
		t.Fatalf("empty bus returned %d events", len(events))
	}
}
