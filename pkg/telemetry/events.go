package telemetry

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event represents a structured provisioning event. The sequencer publishes
// events instead of writing to the console; the CLI presentation layer and
// the run-history store subscribe.
type Event struct {
	// ID is the unique identifier for this event.
	ID string `json:"id"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// Type is the event type.
	Type string `json:"type"`

	// RunID is the associated provisioning run ID.
	RunID string `json:"run_id,omitempty"`

	// Phase is the provisioning phase the event belongs to, if any.
	Phase string `json:"phase,omitempty"`

	// Resource is the remote resource the event refers to, if any.
	Resource string `json:"resource,omitempty"`

	// Message is a human-readable event message.
	Message string `json:"message"`

	// Level is the event severity level (info, warning, error).
	Level string `json:"level"`

	// Data contains additional event-specific data.
	Data map[string]interface{} `json:"data,omitempty"`
}

// EventType constants for provisioning events.
const (
	EventTypeRunStarted     = "run.started"
	EventTypeRunCompleted   = "run.completed"
	EventTypeRunFailed      = "run.failed"
	EventTypePhaseStarted   = "phase.started"
	EventTypePhaseCompleted = "phase.completed"
	EventTypePhaseSkipped   = "phase.skipped"
	EventTypeStep           = "step"
	EventTypeRetryWait      = "retry.wait"
	EventTypeWarning        = "warning"
	EventTypeError          = "error"
	EventTypeFatal          = "fatal"
)

// EventLevel constants for event severity.
const (
	EventLevelInfo    = "info"
	EventLevelWarning = "warning"
	EventLevelError   = "error"
)

// EventSubscriber is a function that handles events.
type EventSubscriber func(event Event)

// EventSink receives provisioning events and delivers them to subscribers.
// Delivery is synchronous and in subscription order: a CLI run is a single
// logical thread of control and events must render in causal order.
type EventSink struct {
	mu          sync.RWMutex
	subscribers []EventSubscriber
}

// NewEventSink creates an empty event sink.
func NewEventSink() *EventSink {
	return &EventSink{}
}

// Subscribe registers a subscriber for all future events.
func (s *EventSink) Subscribe(fn EventSubscriber) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribers = append(s.subscribers, fn)
}

// Publish delivers an event to every subscriber. Missing ID and timestamp
// fields are filled in.
func (s *EventSink) Publish(event Event) {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.Level == "" {
		event.Level = EventLevelInfo
	}

	s.mu.RLock()
	subs := s.subscribers
	s.mu.RUnlock()

	for _, fn := range subs {
		fn(event)
	}
}

// PhaseStarted publishes a phase.started event.
func (s *EventSink) PhaseStarted(runID, phase string) {
	s.Publish(Event{
		Type:    EventTypePhaseStarted,
		RunID:   runID,
		Phase:   phase,
		Message: fmt.Sprintf("Phase %s started", phase),
	})
}

// PhaseCompleted publishes a phase.completed event.
func (s *EventSink) PhaseCompleted(runID, phase string, duration time.Duration) {
	s.Publish(Event{
		Type:    EventTypePhaseCompleted,
		RunID:   runID,
		Phase:   phase,
		Message: fmt.Sprintf("Phase %s completed", phase),
		Data: map[string]interface{}{
			"duration": duration.Seconds(),
		},
	})
}

// PhaseSkipped publishes a phase.skipped event. Skipping is a policy
// outcome, not a failure, so the level stays info.
func (s *EventSink) PhaseSkipped(runID, phase, reason string) {
	s.Publish(Event{
		Type:    EventTypePhaseSkipped,
		RunID:   runID,
		Phase:   phase,
		Message: fmt.Sprintf("Phase %s skipped: %s", phase, reason),
		Data: map[string]interface{}{
			"reason": reason,
		},
	})
}

// Step publishes a step event within a phase.
func (s *EventSink) Step(runID, phase, message string) {
	s.Publish(Event{
		Type:    EventTypeStep,
		RunID:   runID,
		Phase:   phase,
		Message: message,
	})
}

// RetryWait publishes a retry countdown tick so the operator can follow an
// in-progress wait.
func (s *EventSink) RetryWait(runID, phase string, attempt, maxAttempts int, remaining time.Duration) {
	s.Publish(Event{
		Type:    EventTypeRetryWait,
		RunID:   runID,
		Phase:   phase,
		Message: fmt.Sprintf("Attempt %d/%d failed, retrying in %s", attempt, maxAttempts, remaining),
		Data: map[string]interface{}{
			"attempt":      attempt,
			"max_attempts": maxAttempts,
			"remaining":    remaining.Seconds(),
		},
	})
}

// Warning publishes a warning event.
func (s *EventSink) Warning(runID, phase, message string) {
	s.Publish(Event{
		Type:    EventTypeWarning,
		RunID:   runID,
		Phase:   phase,
		Message: message,
		Level:   EventLevelWarning,
	})
}

// Fatal publishes a fatal event ending the run.
func (s *EventSink) Fatal(runID, phase string, err error) {
	s.Publish(Event{
		Type:    EventTypeFatal,
		RunID:   runID,
		Phase:   phase,
		Message: err.Error(),
		Level:   EventLevelError,
	})
}
