// internal/service/scheduler.go
package service

import (
	"context"
	"log/slog"
	"time"

	appErrors "github.com/unclebandit/outreach-engine/internal/errors"
	"github.com/unclebandit/outreach-engine/internal/model"
	"github.com/unclebandit/outreach-engine/internal/queue"
	"github.com/unclebandit/outreach-engine/internal/repository"
)

// ScheduleGraceWindow is how far in the past a one-shot start instant
// may lie and still be accepted; anything older is a validation error.
const ScheduleGraceWindow = 60 * time.Second

// Scheduler turns (campaign, schedule options) pairs into durable due
// instants on the campaign row and fires dispatch jobs when they
// arrive. The due instant lives in the database, so restarts and missed
// wake-ups recover on the next poll: an overdue scheduled campaign is
// dispatched immediately rather than skipped.
type Scheduler struct {
	Campaigns    repository.CampaignRepositoryInterface
	Queue        queue.Queue
	Logger       *slog.Logger
	PollInterval time.Duration
	ClaimLimit   int

	// Now is injectable for tests; defaults to time.Now.
	Now func() time.Time
}

func (s *Scheduler) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Schedule validates the options, computes the first due instant, and
// persists options + due instant + the scheduled status in one write.
// If that write fails the campaign never reads as scheduled.
func (s *Scheduler) Schedule(campaignID int, opts *model.ScheduleOptions) error {
	next, err := s.firstRun(opts)
	if err != nil {
		return err
	}

	if err := s.Campaigns.SetSchedule(campaignID, opts, &next, model.StatusScheduled); err != nil {
		if _, ok := err.(*appErrors.NotFoundError); ok {
			return err
		}
		return appErrors.NewSchedulerUnavailable(err)
	}
	return nil
}

// Reschedule re-registers a campaign with its stored options, used on
// resume. An overdue one-shot becomes due now instead of failing the
// grace check.
func (s *Scheduler) Reschedule(campaignID int, opts *model.ScheduleOptions) error {
	if opts == nil {
		// Nothing to re-arm; the campaign just returns to scheduled.
		return s.Campaigns.SetSchedule(campaignID, nil, nil, model.StatusScheduled)
	}

	start, err := time.Parse(time.RFC3339, opts.StartAt)
	if err != nil {
		return appErrors.NewValidation("start_at", "not a valid RFC3339 timestamp")
	}

	now := s.now()
	next := start
	if !next.After(now) {
		if opts.Recurring() {
			next = s.nextOccurrence(opts, now)
		} else {
			next = now
		}
	}

	if err := s.Campaigns.SetSchedule(campaignID, opts, &next, model.StatusScheduled); err != nil {
		if _, ok := err.(*appErrors.NotFoundError); ok {
			return err
		}
		return appErrors.NewSchedulerUnavailable(err)
	}
	return nil
}

// Cancel removes any pending commitment. Idempotent; safe when nothing
// is scheduled.
func (s *Scheduler) Cancel(campaignID int) error {
	return s.Campaigns.ClearSchedule(campaignID)
}

func (s *Scheduler) firstRun(opts *model.ScheduleOptions) (time.Time, error) {
	if opts == nil {
		return time.Time{}, appErrors.NewValidation("schedule_options", "required")
	}
	if opts.StartAt == "" {
		return time.Time{}, appErrors.NewValidation("start_at", "required")
	}

	start, err := time.Parse(time.RFC3339, opts.StartAt)
	if err != nil {
		return time.Time{}, appErrors.NewValidation("start_at", "not a valid RFC3339 timestamp")
	}

	switch opts.Frequency {
	case "", model.FrequencyOnce, model.FrequencyHourly, model.FrequencyDaily,
		model.FrequencyWeekly, model.FrequencyMonthly:
	default:
		return time.Time{}, appErrors.NewValidation("frequency", "unknown frequency "+opts.Frequency)
	}

	now := s.now()
	if start.Before(now.Add(-ScheduleGraceWindow)) {
		if !opts.Recurring() {
			return time.Time{}, appErrors.NewValidation("start_at", "start instant is in the past")
		}
		// Recurring schedules roll forward to the next occurrence.
		return s.nextOccurrence(opts, now), nil
	}

	return start, nil
}

// nextOccurrence computes the first instant strictly after from that
// matches the recurrence rule.
func (s *Scheduler) nextOccurrence(opts *model.ScheduleOptions, from time.Time) time.Time {
	switch opts.Frequency {
	case model.FrequencyHourly:
		next := from.Truncate(time.Hour).Add(time.Duration(opts.Minute) * time.Minute)
		if !next.After(from) {
			next = next.Add(time.Hour)
		}
		return next

	case model.FrequencyDaily:
		next := time.Date(from.Year(), from.Month(), from.Day(), opts.Hour, opts.Minute, 0, 0, from.Location())
		if !next.After(from) {
			next = next.AddDate(0, 0, 1)
		}
		return next

	case model.FrequencyWeekly:
		next := time.Date(from.Year(), from.Month(), from.Day(), opts.Hour, opts.Minute, 0, 0, from.Location())
		daysAhead := (opts.DayOfWeek - int(from.Weekday()) + 7) % 7
		next = next.AddDate(0, 0, daysAhead)
		if !next.After(from) {
			next = next.AddDate(0, 0, 7)
		}
		return next

	case model.FrequencyMonthly:
		day := opts.DayOfMonth
		if day < 1 {
			day = 1
		}
		next := time.Date(from.Year(), from.Month(), day, opts.Hour, opts.Minute, 0, 0, from.Location())
		if !next.After(from) {
			next = next.AddDate(0, 1, 0)
		}
		return next

	default:
		return from
	}
}

// Start runs the poll loop until the context is cancelled. Due
// campaigns are handed to the dispatch queue; the loop itself never
// blocks on delivery work.
func (s *Scheduler) Start(ctx context.Context) {
	s.Logger.Info("scheduler started", slog.Duration("poll_interval", s.PollInterval))

	ticker := time.NewTicker(s.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.Logger.Info("scheduler stopped")
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

// tick fires every campaign whose due instant has arrived. The status
// filter in the query plus the dispatcher's own re-validation keep a
// paused, stopped, or deleted campaign from being dispatched after the
// fact.
func (s *Scheduler) tick() {
	now := s.now()
	limit := s.ClaimLimit
	if limit < 1 {
		limit = 50
	}

	due, err := s.Campaigns.DueCampaigns(now, limit)
	if err != nil {
		s.Logger.Error("failed to load due campaigns", slog.Any("error", err))
		return
	}

	for _, c := range due {
		if c.EndDate != nil && c.EndDate.Before(now) {
			s.Logger.Info("campaign reached its end date",
				slog.Int("campaign_id", c.ID))
			if err := s.Campaigns.UpdateStatus(c.ID, model.StatusCompleted); err != nil {
				s.Logger.Error("failed to complete expired campaign",
					slog.Int("campaign_id", c.ID), slog.Any("error", err))
				continue
			}
			if err := s.Campaigns.ClearSchedule(c.ID); err != nil {
				s.Logger.Error("failed to clear schedule",
					slog.Int("campaign_id", c.ID), slog.Any("error", err))
			}
			continue
		}

		if err := queue.PublishDispatch(s.Queue, c.ID); err != nil {
			// Leave next_run_at in place so the next tick retries.
			s.Logger.Error("failed to enqueue dispatch",
				slog.Int("campaign_id", c.ID), slog.Any("error", err))
			continue
		}
		s.Logger.Info("campaign due, dispatch enqueued", slog.Int("campaign_id", c.ID))

		if c.ScheduleOptions.Recurring() {
			next := s.nextOccurrence(c.ScheduleOptions, now)
			if err := s.Campaigns.SetNextRun(c.ID, &next); err != nil {
				s.Logger.Error("failed to re-arm recurrence",
					slog.Int("campaign_id", c.ID), slog.Any("error", err))
			}
		} else {
			if err := s.Campaigns.SetNextRun(c.ID, nil); err != nil {
				s.Logger.Error("failed to clear due instant",
					slog.Int("campaign_id", c.ID), slog.Any("error", err))
			}
		}
	}
}
