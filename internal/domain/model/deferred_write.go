package model

import "time"

const (
	DeferredSubmissionResults = "submission_results"
	DeferredUserProgress      = "user_progress"
)

// DeferredWrite is a best-effort persistence step that failed inline and is
// queued for replay by the persistence worker.
type DeferredWrite struct {
	ID        string             `json:"id"`
	Kind      string             `json:"kind"`
	Attempts  int                `json:"attempts"`
	LastError string             `json:"last_error,omitempty"`
	CreatedAt time.Time          `json:"created_at"`
	Results   []SubmissionResult `json:"results,omitempty"`
	Progress  *ProgressOutcome   `json:"progress,omitempty"`
}

// ProgressOutcome is the input of one progress fold.
type ProgressOutcome struct {
	UserID    string    `json:"user_id"`
	ProblemID string    `json:"problem_id"`
	Score     int       `json:"score"`
	Passed    bool      `json:"passed"`
	At        time.Time `json:"at"`
}
