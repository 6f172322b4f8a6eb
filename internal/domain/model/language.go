package model

// Language maps a public slug to the identifier understood by the remote executor.
type Language struct {
	Slug        string `json:"slug"`
	Name        string `json:"name,omitempty"`
	ExecutorKey string `json:"executor_key"`
}
