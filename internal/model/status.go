// internal/model/status.go
package model

// Status is the lifecycle state of a campaign.
type Status string

const (
	StatusDraft      Status = "draft"
	StatusScheduled  Status = "scheduled"
	StatusInProgress Status = "in_progress"
	StatusPaused     Status = "paused"
	StatusStopped    Status = "stopped"
	StatusCompleted  Status = "completed"
)

// transitions is the single source of truth for legal status changes.
// Every mutation path consults this table; there are no per-action
// status checks duplicating it.
var transitions = map[Status][]Status{
	StatusDraft:      {StatusScheduled, StatusInProgress, StatusStopped},
	StatusScheduled:  {StatusInProgress, StatusPaused, StatusStopped, StatusCompleted},
	StatusInProgress: {StatusPaused, StatusStopped, StatusCompleted},
	StatusPaused:     {StatusScheduled, StatusStopped, StatusCompleted},
	StatusStopped:    {StatusDraft, StatusScheduled},
	StatusCompleted:  {StatusDraft},
}

// Valid reports whether s is one of the known campaign statuses.
func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// CanTransitionTo reports whether the move from s to target is legal.
func (s Status) CanTransitionTo(target Status) bool {
	for _, t := range transitions[s] {
		if t == target {
			return true
		}
	}
	return false
}

// AllStatuses returns every known status, for validation and tests.
func AllStatuses() []Status {
	return []Status{
		StatusDraft,
		StatusScheduled,
		StatusInProgress,
		StatusPaused,
		StatusStopped,
		StatusCompleted,
	}
}
