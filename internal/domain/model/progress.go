package model

import "time"

// UserProgress is the per-(user, problem) rollup. Solved never goes back to
// false, BestScore is a running maximum and Attempts only grows.
type UserProgress struct {
	ID               string     `json:"id"`
	UserID           string     `json:"user_id"`
	ProblemID        string     `json:"problem_id"`
	Solved           bool       `json:"solved"`
	BestScore        int        `json:"best_score"`
	Attempts         int        `json:"attempts"`
	LastSubmissionAt *time.Time `json:"last_submission_at,omitempty"`
	CreatedAt        *time.Time `json:"created_at,omitempty"`
}

// ProgressChange describes how one graded submission moves a progress record.
// Fields left nil are unchanged.
type ProgressChange struct {
	Attempts         int
	LastSubmissionAt time.Time
	Solved           *bool
	BestScore        *int
}

// FoldSubmission applies one graded submission to p.
func (p UserProgress) FoldSubmission(score int, passed bool, at time.Time) (UserProgress, ProgressChange) {
	change := ProgressChange{Attempts: p.Attempts + 1, LastSubmissionAt: at}
	if passed && !p.Solved {
		solved := true
		change.Solved = &solved
	}
	if score > p.BestScore {
		best := score
		change.BestScore = &best
	}

	next := p
	next.Attempts = change.Attempts
	next.LastSubmissionAt = &at
	if change.Solved != nil {
		next.Solved = true
	}
	if change.BestScore != nil {
		next.BestScore = *change.BestScore
	}
	return next, change
}

// FirstProgress is the record created on a user's first submission to a problem.
func FirstProgress(id, userID, problemID string, score int, passed bool, at time.Time) UserProgress {
	return UserProgress{
		ID:               id,
		UserID:           userID,
		ProblemID:        problemID,
		Solved:           passed,
		BestScore:        score,
		Attempts:         1,
		LastSubmissionAt: &at,
		CreatedAt:        &at,
	}
}
