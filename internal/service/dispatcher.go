// internal/service/dispatcher.go
package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/unclebandit/outreach-engine/internal/metrics"
	"github.com/unclebandit/outreach-engine/internal/model"
	"github.com/unclebandit/outreach-engine/internal/repository"
	"github.com/unclebandit/outreach-engine/internal/sender"
)

// ErrDispatchInProgress means another dispatch cycle holds the
// campaign's execution lease.
var ErrDispatchInProgress = errors.New("dispatch already in progress for this campaign")

// Dispatcher executes dispatch cycles: resolve pending recipients,
// render each channel's template, drive delivery through the channel
// senders, and record per-recipient outcomes. It is the only writer of
// campaign_recipients status.
type Dispatcher struct {
	Campaigns repository.CampaignRepositoryInterface
	Members   repository.CampaignRecipientRepositoryInterface
	Templates repository.MessageTemplateRepositoryInterface
	Attempts  repository.DeliveryAttemptRepositoryInterface
	Senders   *sender.Registry
	Logger    *slog.Logger

	BatchSize   int
	Throttle    int
	SendTimeout time.Duration
	LeaseTTL    time.Duration

	// Now is injectable for tests; defaults to time.Now.
	Now func() time.Time
}

func (d *Dispatcher) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// RunCycle executes one dispatch cycle. The caller's view of the
// campaign status is not trusted: everything is re-validated after the
// execution lease is claimed.
func (d *Dispatcher) RunCycle(ctx context.Context, campaignID int) error {
	started := d.now()

	token := uuid.New()
	claimed, err := d.Campaigns.ClaimLease(campaignID, token, started, d.LeaseTTL)
	if err != nil {
		return err
	}
	if !claimed {
		d.Logger.Info("dispatch skipped, lease held elsewhere", slog.Int("campaign_id", campaignID))
		return ErrDispatchInProgress
	}
	defer func() {
		if err := d.Campaigns.ReleaseLease(campaignID, token); err != nil {
			d.Logger.Error("failed to release dispatch lease",
				slog.Int("campaign_id", campaignID), slog.Any("error", err))
		}
	}()

	c, err := d.Campaigns.GetByID(campaignID)
	if err != nil {
		// Deleted since scheduling: the cycle is a no-op.
		d.Logger.Warn("dispatch target gone", slog.Int("campaign_id", campaignID), slog.Any("error", err))
		metrics.DispatchCycleDuration.WithLabelValues("noop").Observe(time.Since(started).Seconds())
		return nil
	}

	if !dispatchable(c.Status) {
		d.Logger.Info("campaign not dispatchable, skipping cycle",
			slog.Int("campaign_id", c.ID), slog.String("status", string(c.Status)))
		metrics.DispatchCycleDuration.WithLabelValues("noop").Observe(time.Since(started).Seconds())
		return nil
	}

	// Immutable template snapshot for this run. Channels without a
	// template are skipped and reported, not fatal.
	templates, err := d.templateSnapshot(c)
	if err != nil {
		return err
	}
	if len(templates) == 0 {
		d.Logger.Warn("no channel has a template, nothing to dispatch",
			slog.Int("campaign_id", c.ID))
		metrics.DispatchCycleDuration.WithLabelValues("noop").Observe(time.Since(started).Seconds())
		return nil
	}

	if c.Status != model.StatusInProgress {
		if err := d.Campaigns.UpdateStatus(c.ID, model.StatusInProgress); err != nil {
			return err
		}
	}

	batchSize := d.BatchSize
	throttle := d.Throttle
	singleBatch := false
	if opts := c.ScheduleOptions; opts != nil {
		if opts.BatchSize > 0 {
			// A configured batch size throttles the cycle to one
			// batch; the scheduler's poll picks up the remainder.
			batchSize = opts.BatchSize
			singleBatch = true
		}
		if opts.Throttle > 0 {
			throttle = opts.Throttle
		}
	}
	if batchSize < 1 {
		batchSize = 50
	}
	if throttle < 1 {
		throttle = 10
	}

	for {
		batch, err := d.Members.PendingBatch(c.ID, batchSize)
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			break
		}

		if d.processBatch(ctx, c, templates, batch, throttle) == 0 {
			// No outcome row was written, so the next PendingBatch
			// would return these same recipients again. Abort the
			// cycle instead of looping on a broken write path.
			d.Logger.Error("no recipient outcome could be recorded, aborting cycle",
				slog.Int("campaign_id", c.ID), slog.Int("batch", len(batch)))
			metrics.DispatchCycleDuration.WithLabelValues("halted").Observe(time.Since(started).Seconds())
			return errors.New("dispatch cycle made no progress")
		}

		if singleBatch {
			break
		}

		// Pause/stop is observed here, at the batch boundary.
		cur, err := d.Campaigns.GetByID(c.ID)
		if err != nil {
			return err
		}
		if cur.Status != model.StatusInProgress {
			d.Logger.Info("dispatch halted by status change",
				slog.Int("campaign_id", c.ID), slog.String("status", string(cur.Status)))
			metrics.DispatchCycleDuration.WithLabelValues("halted").Observe(time.Since(started).Seconds())
			return nil
		}
	}

	pending, err := d.Members.PendingCount(c.ID)
	if err != nil {
		return err
	}
	switch {
	case pending == 0:
		if err := d.Campaigns.UpdateStatus(c.ID, model.StatusCompleted); err != nil {
			return err
		}
	case singleBatch && !c.ScheduleOptions.Recurring():
		// The campaign stays in_progress; the scheduler's poll picks
		// up in_progress rows with a due instant. A recurring schedule
		// already carries its next occurrence, a one-shot has to be
		// re-armed here or the remaining batches would never run.
		next := d.now()
		if err := d.Campaigns.SetNextRun(c.ID, &next); err != nil {
			return err
		}
	}

	// Authoritative rollup from the join rows, never from counters
	// accumulated during the cycle.
	rollup, err := d.Members.CountByStatus(c.ID)
	if err != nil {
		return err
	}
	d.Logger.Info("dispatch cycle finished",
		slog.Int("campaign_id", c.ID),
		slog.Int("total", rollup.Total),
		slog.Int("sent", rollup.Sent),
		slog.Int("failed", rollup.Failed),
		slog.Int("pending", rollup.Pending),
	)
	metrics.DispatchCycleDuration.WithLabelValues("ok").Observe(time.Since(started).Seconds())

	return nil
}

// dispatchable statuses: a fresh execute (draft or paused), a due
// schedule, or a continuation of an interrupted run. Stopped and
// completed campaigns never dispatch.
func dispatchable(s model.Status) bool {
	switch s {
	case model.StatusDraft, model.StatusPaused, model.StatusScheduled, model.StatusInProgress:
		return true
	default:
		return false
	}
}

func (d *Dispatcher) templateSnapshot(c *model.Campaign) (map[string]*model.MessageTemplate, error) {
	all, err := d.Templates.ListByCampaign(c.ID)
	if err != nil {
		return nil, err
	}

	byChannel := make(map[string]*model.MessageTemplate, len(all))
	for _, t := range all {
		byChannel[t.Channel] = t
	}

	snapshot := make(map[string]*model.MessageTemplate, len(c.Channels))
	for _, ch := range c.Channels {
		t, ok := byChannel[ch]
		if !ok {
			d.Logger.Warn("channel has no template, skipping for this run",
				slog.Int("campaign_id", c.ID), slog.String("channel", ch))
			metrics.ChannelsSkipped.WithLabelValues("no_template").Inc()
			continue
		}
		snapshot[ch] = t
	}
	return snapshot, nil
}

// processBatch fans the batch out across the throttle and returns how
// many recipients had their outcome row written.
func (d *Dispatcher) processBatch(ctx context.Context, c *model.Campaign, templates map[string]*model.MessageTemplate, batch []*model.Recipient, throttle int) int {
	var wg sync.WaitGroup
	var recorded atomic.Int64
	sem := make(chan struct{}, throttle)

	for _, rec := range batch {
		wg.Add(1)
		go func(rec *model.Recipient) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			if d.processRecipient(ctx, c, templates, rec) {
				recorded.Add(1)
			}
		}(rec)
	}

	wg.Wait()
	return int(recorded.Load())
}

// processRecipient attempts every channel the recipient is reachable
// on. The join row ends sent when at least one channel succeeded,
// failed otherwise. Per-channel outcomes land in the attempts log.
// Returns whether the join row write went through.
func (d *Dispatcher) processRecipient(ctx context.Context, c *model.Campaign, templates map[string]*model.MessageTemplate, rec *model.Recipient) bool {
	var anySent, anyFailed bool

	for _, ch := range c.Channels {
		t, ok := templates[ch]
		if !ok {
			continue // skipped for this run
		}

		contact, ok := rec.ContactFor(ch)
		if !ok {
			d.recordAttempt(c.ID, rec.ID, ch, model.RecipientFailed, model.ReasonMissingContact)
			continue
		}

		err := d.send(ctx, ch, t, rec, contact)
		if err != nil {
			anyFailed = true
			d.recordAttempt(c.ID, rec.ID, ch, model.RecipientFailed, err.Error())
			continue
		}
		anySent = true
		d.recordAttempt(c.ID, rec.ID, ch, model.RecipientSent, "")
	}

	status := model.RecipientFailed
	reason := model.ReasonMissingContact
	switch {
	case anySent:
		status = model.RecipientSent
		reason = ""
	case anyFailed:
		reason = model.ReasonSendFailed
	}

	if err := d.Members.UpdateStatus(c.ID, rec.ID, status, reason, d.now()); err != nil {
		d.Logger.Error("failed to record recipient outcome",
			slog.Int("campaign_id", c.ID),
			slog.Int("recipient_id", rec.ID),
			slog.Any("error", err),
		)
		return false
	}
	return true
}

func (d *Dispatcher) send(ctx context.Context, channel string, t *model.MessageTemplate, rec *model.Recipient, contact string) error {
	snd, ok := d.Senders.For(channel)
	if !ok {
		return errors.New("no sender registered for channel " + channel)
	}

	subject, body := RenderForRecipient(t, rec)

	sctx, cancel := context.WithTimeout(ctx, d.SendTimeout)
	defer cancel()

	return snd.Send(sctx, sender.Message{
		Channel: channel,
		Subject: subject,
		Body:    body,
		Contact: contact,
	})
}

func (d *Dispatcher) recordAttempt(campaignID, recipientID int, channel string, status model.RecipientStatus, detail string) {
	metrics.SendOutcomes.WithLabelValues(channel, string(status)).Inc()

	attempt := &model.DeliveryAttempt{
		CampaignID:  campaignID,
		RecipientID: recipientID,
		Channel:     channel,
		Status:      status,
		ErrorDetail: detail,
		AttemptedAt: d.now(),
	}
	if err := d.Attempts.Record(attempt); err != nil {
		// The attempts log is best-effort; the join row stays authoritative.
		d.Logger.Error("failed to record delivery attempt",
			slog.Int("campaign_id", campaignID),
			slog.Int("recipient_id", recipientID),
			slog.String("channel", channel),
			slog.Any("error", err),
		)
	}
}
