package model

import "time"

const (
	SubmissionOutputLimit   = 500
	ResultActualOutputLimit = 1000
)

// Submission is written once per submit call and never modified.
type Submission struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	ProblemID    string    `json:"problem_id"`
	LanguageSlug string    `json:"language_slug"`
	Code         string    `json:"code"`
	Passed       bool      `json:"passed"`
	Score        int       `json:"score"`
	Output       string    `json:"output"`
	CreatedAt    time.Time `json:"created_at"`
}

type SubmissionResult struct {
	ID           string    `json:"id"`
	SubmissionID string    `json:"submission_id"`
	TestCaseID   string    `json:"testcase_id"`
	Passed       bool      `json:"passed"`
	ActualOutput string    `json:"actual_output"`
	RuntimeMs    int64     `json:"runtime_ms"`
	CreatedAt    time.Time `json:"created_at"`
}

// SubmissionDetail is a stored submission together with its per-case results.
type SubmissionDetail struct {
	Submission
	Results []SubmissionResult `json:"results"`
}

// Truncate cuts s to at most limit characters (runes, not bytes).
func Truncate(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	n := 0
	for i := range s {
		if n == limit {
			return s[:i]
		}
		n++
	}
	return s
}
