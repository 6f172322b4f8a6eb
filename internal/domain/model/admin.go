package model

import "time"

type AdminStats struct {
	TotalUsers            int `json:"total_users"`
	TotalProblems         int `json:"total_problems"`
	TotalSubmissions      int `json:"total_submissions"`
	SuccessfulSubmissions int `json:"successful_submissions"`
}

type UserSummary struct {
	ID             string     `json:"id"`
	Username       string     `json:"username"`
	DisplayName    string     `json:"display_name"`
	CreatedAt      *time.Time `json:"created_at,omitempty"`
	ProblemsSolved int        `json:"problems_solved"`
	TotalAttempts  int        `json:"total_attempts"`
}
