package model

import "time"

type ProblemDifficulty string

const (
	DifficultyEasy   ProblemDifficulty = "easy"
	DifficultyMedium ProblemDifficulty = "medium"
	DifficultyHard   ProblemDifficulty = "hard"
)

type Problem struct {
	ID          string            `json:"id"`
	Slug        string            `json:"slug"`
	Title       string            `json:"title"`
	Description string            `json:"description,omitempty"`
	Difficulty  ProblemDifficulty `json:"difficulty"`
	Tags        []string          `json:"tags"`
	CreatedAt   *time.Time        `json:"created_at,omitempty"`
}

// TestCase belongs to exactly one problem. Sample cases are visible to
// unauthenticated "run" requests; the rest are only used on submit.
type TestCase struct {
	ID             string `json:"id"`
	ProblemID      string `json:"problem_id"`
	Input          string `json:"input"`
	ExpectedOutput string `json:"expected_output"`
	IsSample       bool   `json:"is_sample"`
	Points         int    `json:"points"`
}

// ProblemSummary is a problem list entry, optionally enriched with the
// caller's progress.
type ProblemSummary struct {
	ID         string            `json:"id"`
	Title      string            `json:"title"`
	Slug       string            `json:"slug"`
	Difficulty ProblemDifficulty `json:"difficulty"`
	Tags       []string          `json:"tags"`
	Solved     *bool             `json:"solved,omitempty"`
	BestScore  *int              `json:"best_score,omitempty"`
	Attempts   *int              `json:"attempts,omitempty"`
}
