package stores

import "time"

// RunStatus represents the status of a provisioning run
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
)

// PhaseOutcome represents the recorded outcome of a single phase
type PhaseOutcome string

const (
	PhaseOutcomeSucceeded PhaseOutcome = "succeeded"
	PhaseOutcomeFailed    PhaseOutcome = "failed"
	PhaseOutcomeSkipped   PhaseOutcome = "skipped"
)

// Run represents one provisioning run against a tenant
type Run struct {
	ID          string     `json:"id"`
	TenantID    string     `json:"tenant_id"`
	Status      RunStatus  `json:"status"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Error       *string    `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// PhaseRecord represents the recorded outcome of one phase within a run
type PhaseRecord struct {
	ID         string       `json:"id"`
	RunID      string       `json:"run_id"`
	Phase      string       `json:"phase"`
	Outcome    PhaseOutcome `json:"outcome"`
	Detail     string       `json:"detail,omitempty"`
	RecordedAt time.Time    `json:"recorded_at"`
}

// EventRecord represents a persisted provisioning event
type EventRecord struct {
	ID        string    `json:"id"`
	RunID     string    `json:"run_id"`
	Phase     string    `json:"phase,omitempty"`
	Type      string    `json:"type"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}
