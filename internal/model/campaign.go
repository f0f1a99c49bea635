// internal/model/campaign.go
package model

import "time"

type Campaign struct {
	ID              int              `db:"id" json:"id"`
	Name            string           `db:"name" json:"name"`
	Description     string           `db:"description" json:"description"`
	Channels        []string         `db:"channels" json:"channels"`
	Status          Status           `db:"status" json:"status"`
	StartDate       *time.Time       `db:"start_date" json:"start_date,omitempty"`
	EndDate         *time.Time       `db:"end_date" json:"end_date,omitempty"`
	ScheduleOptions *ScheduleOptions `db:"schedule_options" json:"schedule_options,omitempty"`
	NextRunAt       *time.Time       `db:"next_run_at" json:"next_run_at,omitempty"`
	CreatedAt       time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt       *time.Time       `db:"updated_at" json:"updated_at,omitempty"`
}

// ScheduleOptions is the scheduler's configuration for a campaign. The
// registry stores it opaquely; only the scheduler interprets it.
type ScheduleOptions struct {
	StartAt    string `json:"start_at"`               // RFC3339
	Frequency  string `json:"frequency,omitempty"`    // once, hourly, daily, weekly, monthly
	Hour       int    `json:"hour,omitempty"`         // 0-23, for daily/weekly/monthly
	Minute     int    `json:"minute,omitempty"`       // 0-59
	DayOfWeek  int    `json:"day_of_week,omitempty"`  // 0=Sunday
	DayOfMonth int    `json:"day_of_month,omitempty"` // 1-28
	BatchSize  int    `json:"batch_size,omitempty"`   // recipients per dispatch cycle
	Throttle   int    `json:"throttle,omitempty"`     // concurrent sends within a cycle
}

const (
	FrequencyOnce    = "once"
	FrequencyHourly  = "hourly"
	FrequencyDaily   = "daily"
	FrequencyWeekly  = "weekly"
	FrequencyMonthly = "monthly"
)

// Recurring reports whether the options describe a repeating schedule.
func (o *ScheduleOptions) Recurring() bool {
	return o != nil && o.Frequency != "" && o.Frequency != FrequencyOnce
}
