package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/unclebandit/outreach-engine/internal/model"
	"github.com/unclebandit/outreach-engine/internal/sender"
)

type stubSender struct {
	mu   sync.Mutex
	sent []sender.Message
	fn   func(msg sender.Message) error
}

func (s *stubSender) Send(ctx context.Context, msg sender.Message) error {
	s.mu.Lock()
	s.sent = append(s.sent, msg)
	fn := s.fn
	s.mu.Unlock()
	if fn != nil {
		return fn(msg)
	}
	return nil
}

func (s *stubSender) sentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

type dispatcherFixture struct {
	campaigns *fakeCampaignRepo
	members   *fakeMemberRepo
	templates *fakeTemplateRepo
	attempts  *fakeAttemptRepo
	send      *stubSender
	d         *Dispatcher
}

func newDispatcherFixture() *dispatcherFixture {
	f := &dispatcherFixture{
		campaigns: newFakeCampaignRepo(),
		members:   newFakeMemberRepo(),
		templates: &fakeTemplateRepo{},
		attempts:  &fakeAttemptRepo{},
		send:      &stubSender{},
	}

	reg := sender.NewRegistry()
	for _, ch := range model.AllChannels() {
		reg.Register(ch, f.send)
	}

	f.d = &Dispatcher{
		Campaigns:   f.campaigns,
		Members:     f.members,
		Templates:   f.templates,
		Attempts:    f.attempts,
		Senders:     reg,
		Logger:      testLogger(),
		BatchSize:   50,
		Throttle:    4,
		SendTimeout: time.Second,
		LeaseTTL:    time.Minute,
	}
	return f
}

func (f *dispatcherFixture) addCampaign(id int, status model.Status, channels ...string) {
	f.campaigns.put(model.Campaign{
		ID:       id,
		Name:     "promo",
		Channels: channels,
		Status:   status,
	})
}

func (f *dispatcherFixture) addTemplate(campaignID int, channel, body string) {
	f.templates.Create(&model.MessageTemplate{
		CampaignID:   campaignID,
		Channel:      channel,
		Subject:      "hi {name}",
		BodyTemplate: body,
	})
}

func (f *dispatcherFixture) addRecipient(campaignID, id int, email, phone string) {
	f.members.attach(campaignID, &model.Recipient{
		ID:    id,
		Name:  fmt.Sprintf("recipient-%d", id),
		Email: email,
		Phone: phone,
	})
}

func TestRunCycleDeliversAndCompletes(t *testing.T) {
	f := newDispatcherFixture()
	f.addCampaign(1, model.StatusDraft, model.ChannelEmail)
	f.addTemplate(1, model.ChannelEmail, "hello {name}")
	f.addRecipient(1, 1, "a@example.com", "")
	f.addRecipient(1, 2, "b@example.com", "")

	if err := f.d.RunCycle(context.Background(), 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	c, _ := f.campaigns.GetByID(1)
	if c.Status != model.StatusCompleted {
		t.Errorf("status = %s, want completed", c.Status)
	}
	if f.send.sentCount() != 2 {
		t.Errorf("sends = %d, want 2", f.send.sentCount())
	}

	rollup, _ := f.members.CountByStatus(1)
	if rollup.Sent != 2 || rollup.Failed != 0 || rollup.Pending != 0 {
		t.Errorf("rollup = %+v", rollup)
	}
	if len(f.attempts.attempts) != 2 {
		t.Errorf("attempts = %d, want 2", len(f.attempts.attempts))
	}
}

func TestRunCycleRendersRecipientVariables(t *testing.T) {
	f := newDispatcherFixture()
	f.addCampaign(1, model.StatusDraft, model.ChannelEmail)
	f.addTemplate(1, model.ChannelEmail, "hello {name}")
	f.addRecipient(1, 1, "a@example.com", "")

	if err := f.d.RunCycle(context.Background(), 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if f.send.sent[0].Body != "hello recipient-1" {
		t.Errorf("body = %q", f.send.sent[0].Body)
	}
	if f.send.sent[0].Contact != "a@example.com" {
		t.Errorf("contact = %q", f.send.sent[0].Contact)
	}
}

func TestRunCyclePartialChannelFailureCountsAsSent(t *testing.T) {
	f := newDispatcherFixture()
	f.addCampaign(1, model.StatusDraft, model.ChannelEmail, model.ChannelSMS)
	f.addTemplate(1, model.ChannelEmail, "hello")
	f.addTemplate(1, model.ChannelSMS, "hello")
	f.addRecipient(1, 1, "a@example.com", "+254700000001")

	f.send.fn = func(msg sender.Message) error {
		if msg.Channel == model.ChannelSMS {
			return errors.New("carrier rejected")
		}
		return nil
	}

	if err := f.d.RunCycle(context.Background(), 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	row := f.members.row(1, 1)
	if row.status != model.RecipientSent {
		t.Errorf("one successful channel should mark the recipient sent, got %s", row.status)
	}

	channels, _ := f.attempts.ChannelMetrics(1)
	for _, cm := range channels {
		switch cm.Channel {
		case model.ChannelEmail:
			if cm.Sent != 1 {
				t.Errorf("email sent = %d, want 1", cm.Sent)
			}
		case model.ChannelSMS:
			if cm.Failed != 1 {
				t.Errorf("sms failed = %d, want 1", cm.Failed)
			}
		}
	}
}

func TestRunCycleAllChannelsFail(t *testing.T) {
	f := newDispatcherFixture()
	f.addCampaign(1, model.StatusDraft, model.ChannelEmail)
	f.addTemplate(1, model.ChannelEmail, "hello")
	f.addRecipient(1, 1, "a@example.com", "")

	f.send.fn = func(sender.Message) error { return errors.New("smtp down") }

	if err := f.d.RunCycle(context.Background(), 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	row := f.members.row(1, 1)
	if row.status != model.RecipientFailed || row.reason != model.ReasonSendFailed {
		t.Errorf("row = %s/%q, want failed/%q", row.status, row.reason, model.ReasonSendFailed)
	}

	// A run where everyone failed still completes: nothing is pending.
	c, _ := f.campaigns.GetByID(1)
	if c.Status != model.StatusCompleted {
		t.Errorf("status = %s, want completed", c.Status)
	}
}

func TestRunCycleMissingContact(t *testing.T) {
	f := newDispatcherFixture()
	f.addCampaign(1, model.StatusDraft, model.ChannelSMS)
	f.addTemplate(1, model.ChannelSMS, "hello")
	f.addRecipient(1, 1, "a@example.com", "") // no phone

	if err := f.d.RunCycle(context.Background(), 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	row := f.members.row(1, 1)
	if row.status != model.RecipientFailed || row.reason != model.ReasonMissingContact {
		t.Errorf("row = %s/%q, want failed/%q", row.status, row.reason, model.ReasonMissingContact)
	}
	if f.send.sentCount() != 0 {
		t.Errorf("no send should be attempted without a contact")
	}
}

func TestRunCycleZeroRecipientsCompletes(t *testing.T) {
	f := newDispatcherFixture()
	f.addCampaign(1, model.StatusDraft, model.ChannelEmail)
	f.addTemplate(1, model.ChannelEmail, "hello")

	if err := f.d.RunCycle(context.Background(), 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	c, _ := f.campaigns.GetByID(1)
	if c.Status != model.StatusCompleted {
		t.Errorf("status = %s, want completed", c.Status)
	}
}

func TestRunCycleLeaseHeld(t *testing.T) {
	f := newDispatcherFixture()
	f.addCampaign(1, model.StatusDraft, model.ChannelEmail)
	f.addTemplate(1, model.ChannelEmail, "hello")
	f.addRecipient(1, 1, "a@example.com", "")

	claimed, _ := f.campaigns.ClaimLease(1, uuid.New(), time.Now(), time.Minute)
	if !claimed {
		t.Fatal("setup: expected to claim the lease")
	}

	err := f.d.RunCycle(context.Background(), 1)
	if !errors.Is(err, ErrDispatchInProgress) {
		t.Errorf("got %v, want ErrDispatchInProgress", err)
	}
	if f.send.sentCount() != 0 {
		t.Errorf("no sends while another cycle holds the lease")
	}
}

func TestRunCycleExpiredLeaseIsTakenOver(t *testing.T) {
	f := newDispatcherFixture()
	f.addCampaign(1, model.StatusDraft, model.ChannelEmail)
	f.addTemplate(1, model.ChannelEmail, "hello")
	f.addRecipient(1, 1, "a@example.com", "")

	// A lease from a crashed worker, long expired.
	f.campaigns.ClaimLease(1, uuid.New(), time.Now().Add(-time.Hour), time.Minute)

	if err := f.d.RunCycle(context.Background(), 1); err != nil {
		t.Fatalf("expired lease should be claimable: %v", err)
	}
	if f.send.sentCount() != 1 {
		t.Errorf("sends = %d, want 1", f.send.sentCount())
	}
}

func TestRunCycleSkipsNonDispatchableStatus(t *testing.T) {
	for _, status := range []model.Status{model.StatusStopped, model.StatusCompleted} {
		f := newDispatcherFixture()
		f.addCampaign(1, status, model.ChannelEmail)
		f.addTemplate(1, model.ChannelEmail, "hello")
		f.addRecipient(1, 1, "a@example.com", "")

		if err := f.d.RunCycle(context.Background(), 1); err != nil {
			t.Fatalf("%s: unexpected error: %v", status, err)
		}
		if f.send.sentCount() != 0 {
			t.Errorf("%s: no sends expected", status)
		}
		c, _ := f.campaigns.GetByID(1)
		if c.Status != status {
			t.Errorf("%s: status changed to %s", status, c.Status)
		}
	}
}

func TestRunCycleDispatchesPausedCampaign(t *testing.T) {
	f := newDispatcherFixture()
	f.addCampaign(1, model.StatusPaused, model.ChannelEmail)
	f.addTemplate(1, model.ChannelEmail, "hello")
	f.addRecipient(1, 1, "a@example.com", "")

	if err := f.d.RunCycle(context.Background(), 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if f.send.sentCount() != 1 {
		t.Errorf("sends = %d, want 1", f.send.sentCount())
	}
	c, _ := f.campaigns.GetByID(1)
	if c.Status != model.StatusCompleted {
		t.Errorf("status = %s, want completed", c.Status)
	}
}

func TestRunCycleDeletedCampaignIsNoop(t *testing.T) {
	f := newDispatcherFixture()
	if err := f.d.RunCycle(context.Background(), 99); err != nil {
		t.Fatalf("a vanished campaign should not error the worker: %v", err)
	}
}

func TestRunCycleNoTemplatesLeavesStatusUnchanged(t *testing.T) {
	f := newDispatcherFixture()
	f.addCampaign(1, model.StatusScheduled, model.ChannelEmail)
	f.addRecipient(1, 1, "a@example.com", "")

	if err := f.d.RunCycle(context.Background(), 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	c, _ := f.campaigns.GetByID(1)
	if c.Status != model.StatusScheduled {
		t.Errorf("status = %s, want scheduled", c.Status)
	}
	row := f.members.row(1, 1)
	if row.status != model.RecipientPending {
		t.Errorf("recipient should stay pending, got %s", row.status)
	}
}

func TestRunCycleSkipsChannelWithoutTemplate(t *testing.T) {
	f := newDispatcherFixture()
	f.addCampaign(1, model.StatusDraft, model.ChannelEmail, model.ChannelSMS)
	f.addTemplate(1, model.ChannelEmail, "hello")
	// no sms template
	f.addRecipient(1, 1, "a@example.com", "+254700000001")

	if err := f.d.RunCycle(context.Background(), 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if f.send.sentCount() != 1 {
		t.Fatalf("sends = %d, want 1 (email only)", f.send.sentCount())
	}
	if f.send.sent[0].Channel != model.ChannelEmail {
		t.Errorf("channel = %s, want email", f.send.sent[0].Channel)
	}
	row := f.members.row(1, 1)
	if row.status != model.RecipientSent {
		t.Errorf("row = %s, want sent", row.status)
	}
}

func TestRunCycleSingleBatchRecurringStaysInProgress(t *testing.T) {
	f := newDispatcherFixture()
	next := time.Now().Add(time.Hour)
	f.campaigns.put(model.Campaign{
		ID:       1,
		Channels: []string{model.ChannelEmail},
		Status:   model.StatusScheduled,
		ScheduleOptions: &model.ScheduleOptions{
			StartAt:   time.Now().Format(time.RFC3339),
			Frequency: model.FrequencyHourly,
			BatchSize: 2,
		},
		NextRunAt: &next,
	})
	f.addTemplate(1, model.ChannelEmail, "hello")
	for i := 1; i <= 5; i++ {
		f.addRecipient(1, i, fmt.Sprintf("r%d@example.com", i), "")
	}

	if err := f.d.RunCycle(context.Background(), 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if f.send.sentCount() != 2 {
		t.Errorf("sends = %d, want one batch of 2", f.send.sentCount())
	}
	pending, _ := f.members.PendingCount(1)
	if pending != 3 {
		t.Errorf("pending = %d, want 3", pending)
	}
	c, _ := f.campaigns.GetByID(1)
	if c.Status != model.StatusInProgress {
		t.Errorf("status = %s, want in_progress between batches", c.Status)
	}

	// The poll still claims it at the next occurrence.
	due, _ := f.campaigns.DueCampaigns(next.Add(time.Minute), 10)
	if len(due) != 1 || due[0].ID != 1 {
		t.Errorf("due = %v, want campaign 1 claimable at its next occurrence", due)
	}
}

func TestRunCycleSingleBatchOneShotReArmsDuePoll(t *testing.T) {
	f := newDispatcherFixture()
	now := time.Date(2026, 8, 10, 12, 0, 0, 0, time.UTC)
	f.d.Now = fixedClock(now)

	// A one-shot whose due instant the scheduler already cleared when
	// it fired this cycle.
	f.campaigns.put(model.Campaign{
		ID:       1,
		Channels: []string{model.ChannelEmail},
		Status:   model.StatusScheduled,
		ScheduleOptions: &model.ScheduleOptions{
			StartAt:   now.Format(time.RFC3339),
			Frequency: model.FrequencyOnce,
			BatchSize: 2,
		},
	})
	f.addTemplate(1, model.ChannelEmail, "hello")
	for i := 1; i <= 3; i++ {
		f.addRecipient(1, i, fmt.Sprintf("r%d@example.com", i), "")
	}

	if err := f.d.RunCycle(context.Background(), 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	pending, _ := f.members.PendingCount(1)
	if pending != 1 {
		t.Errorf("pending = %d, want 1", pending)
	}
	c, _ := f.campaigns.GetByID(1)
	if c.Status != model.StatusInProgress {
		t.Errorf("status = %s, want in_progress", c.Status)
	}
	if c.NextRunAt == nil || !c.NextRunAt.Equal(now) {
		t.Fatalf("next_run_at = %v, want re-armed to %v", c.NextRunAt, now)
	}

	// A second cycle drains the remainder and completes.
	if err := f.d.RunCycle(context.Background(), 1); err != nil {
		t.Fatalf("second cycle: %v", err)
	}
	c, _ = f.campaigns.GetByID(1)
	if c.Status != model.StatusCompleted {
		t.Errorf("status = %s, want completed after the remainder", c.Status)
	}
}

func TestRunCycleAbortsWhenOutcomesCannotBeRecorded(t *testing.T) {
	f := newDispatcherFixture()
	f.d.BatchSize = 2
	f.addCampaign(1, model.StatusDraft, model.ChannelEmail)
	f.addTemplate(1, model.ChannelEmail, "hello")
	for i := 1; i <= 6; i++ {
		f.addRecipient(1, i, fmt.Sprintf("r%d@example.com", i), "")
	}
	f.members.updateStatusErr = errors.New("disk full")

	err := f.d.RunCycle(context.Background(), 1)
	if err == nil {
		t.Fatal("a cycle that cannot persist outcomes must error, not loop")
	}
	if f.send.sentCount() != 2 {
		t.Errorf("sends = %d, want only the first batch before aborting", f.send.sentCount())
	}
}

func TestRunCycleHaltsWhenPausedBetweenBatches(t *testing.T) {
	f := newDispatcherFixture()
	f.d.BatchSize = 2
	f.addCampaign(1, model.StatusDraft, model.ChannelEmail)
	f.addTemplate(1, model.ChannelEmail, "hello")
	for i := 1; i <= 6; i++ {
		f.addRecipient(1, i, fmt.Sprintf("r%d@example.com", i), "")
	}

	// Pause lands during the first batch; the boundary check must see it.
	var once sync.Once
	f.send.fn = func(sender.Message) error {
		once.Do(func() {
			f.campaigns.UpdateStatus(1, model.StatusPaused)
		})
		return nil
	}

	if err := f.d.RunCycle(context.Background(), 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if f.send.sentCount() != 2 {
		t.Errorf("sends = %d, want only the first batch", f.send.sentCount())
	}
	pending, _ := f.members.PendingCount(1)
	if pending != 4 {
		t.Errorf("pending = %d, want 4", pending)
	}
	c, _ := f.campaigns.GetByID(1)
	if c.Status != model.StatusPaused {
		t.Errorf("status = %s, want paused", c.Status)
	}
}

func TestRunCycleReleasesLease(t *testing.T) {
	f := newDispatcherFixture()
	f.addCampaign(1, model.StatusDraft, model.ChannelEmail)
	f.addTemplate(1, model.ChannelEmail, "hello")

	if err := f.d.RunCycle(context.Background(), 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	claimed, _ := f.campaigns.ClaimLease(1, uuid.New(), time.Now(), time.Minute)
	if !claimed {
		t.Error("lease should be free after the cycle")
	}
}
