package model

import "time"

type Task struct {
	ID          int64      `json:"id"`
	Description string     `json:"description"`
	Due         *time.Time `json:"due"`
	Completed   bool       `json:"completed"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// State is "done" once the task has been enabled and "open" otherwise.
func (t Task) State() string {
	if t.Completed {
		return "done"
	}
	return "open"
}

func (t Task) DueLabel() string {
	if t.Due == nil {
		return "none"
	}
	return t.Due.Format("2006-01-02")
}
