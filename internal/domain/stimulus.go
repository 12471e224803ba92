package domain

import "time"

// StimulusOutcome is the terminal state of a scheduling request.
type StimulusOutcome string

const (
	OutcomeFired     StimulusOutcome = "fired"
	OutcomeMissed    StimulusOutcome = "missed"
	OutcomeFailed    StimulusOutcome = "failed"
	OutcomeCancelled StimulusOutcome = "cancelled"
)

// StimulusRecord is the audit entry written to the event journal.
type StimulusRecord struct {
	RunID    string          `json:"run_id"`
	Channel  int             `json:"channel"`
	Target   time.Time       `json:"target"`
	FiredAt  time.Time       `json:"fired_at,omitempty"`
	Outcome  StimulusOutcome `json:"outcome"`
	Lateness time.Duration   `json:"lateness"`
	Error    string          `json:"error,omitempty"`
}
