// internal/service/campaign_service.go
package service

import (
	"log/slog"
	"strings"
	"time"

	appErrors "github.com/unclebandit/outreach-engine/internal/errors"
	"github.com/unclebandit/outreach-engine/internal/model"
	"github.com/unclebandit/outreach-engine/internal/queue"
	"github.com/unclebandit/outreach-engine/internal/repository"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// CampaignService owns the campaign lifecycle: CRUD, the status state
// machine, membership, templates, and the hand-off to the scheduler
// and dispatch queue.
type CampaignService struct {
	Campaigns  repository.CampaignRepositoryInterface
	Recipients repository.RecipientRepositoryInterface
	Members    repository.CampaignRecipientRepositoryInterface
	Templates  repository.MessageTemplateRepositoryInterface
	Scheduler  *Scheduler
	Queue      queue.Queue
	Logger     *slog.Logger
}

type CreateCampaignInput struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Channels    []string   `json:"channels"`
	StartDate   *time.Time `json:"start_date"`
	EndDate     *time.Time `json:"end_date"`
}

type UpdateCampaignInput struct {
	Name        *string       `json:"name"`
	Description *string       `json:"description"`
	Channels    []string      `json:"channels"`
	StartDate   *time.Time    `json:"start_date"`
	EndDate     *time.Time    `json:"end_date"`
	Status      *model.Status `json:"status"`
}

func (s *CampaignService) Create(input CreateCampaignInput) (*model.Campaign, error) {
	if strings.TrimSpace(input.Name) == "" {
		return nil, appErrors.NewValidation("name", "is required")
	}
	channels, err := normalizeChannels(input.Channels)
	if err != nil {
		return nil, err
	}
	if err := validateDates(input.StartDate, input.EndDate); err != nil {
		return nil, err
	}

	c := &model.Campaign{
		Name:        strings.TrimSpace(input.Name),
		Description: input.Description,
		Channels:    channels,
		Status:      model.StatusDraft,
		StartDate:   input.StartDate,
		EndDate:     input.EndDate,
	}
	if err := s.Campaigns.Create(c); err != nil {
		return nil, err
	}

	s.Logger.Info("campaign created", slog.Int("campaign_id", c.ID), slog.String("name", c.Name))
	return c, nil
}

func (s *CampaignService) Get(id int) (*model.Campaign, error) {
	return s.Campaigns.GetByID(id)
}

func (s *CampaignService) Update(id int, input UpdateCampaignInput) (*model.Campaign, error) {
	c, err := s.Campaigns.GetByID(id)
	if err != nil {
		return nil, err
	}

	if input.Name != nil {
		if strings.TrimSpace(*input.Name) == "" {
			return nil, appErrors.NewValidation("name", "cannot be empty")
		}
		c.Name = strings.TrimSpace(*input.Name)
	}
	if input.Description != nil {
		c.Description = *input.Description
	}
	if input.Channels != nil {
		channels, err := normalizeChannels(input.Channels)
		if err != nil {
			return nil, err
		}
		c.Channels = channels
	}
	if input.StartDate != nil {
		c.StartDate = input.StartDate
	}
	if input.EndDate != nil {
		c.EndDate = input.EndDate
	}
	if err := validateDates(c.StartDate, c.EndDate); err != nil {
		return nil, err
	}

	if input.Status != nil && *input.Status != c.Status {
		if !input.Status.Valid() {
			return nil, appErrors.NewValidation("status", "unknown status "+string(*input.Status))
		}
		if !c.Status.CanTransitionTo(*input.Status) {
			return nil, appErrors.NewInvalidTransition(c.Status, *input.Status)
		}
		c.Status = *input.Status
	}

	if err := s.Campaigns.Update(c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *CampaignService) Delete(id int) error {
	c, err := s.Campaigns.GetByID(id)
	if err != nil {
		return err
	}
	if c.Status == model.StatusScheduled || c.Status == model.StatusInProgress {
		return appErrors.NewInvalidState("delete", c.Status)
	}
	return s.Campaigns.Delete(id)
}

func (s *CampaignService) List(page, pageSize int, search string, status model.Status) ([]*model.Campaign, int, error) {
	if status != "" && !status.Valid() {
		return nil, 0, appErrors.NewValidation("status", "unknown status "+string(status))
	}
	offset, limit := pagination(page, pageSize)
	return s.Campaigns.List(offset, limit, search, status)
}

// Schedule registers a recurrence or one-shot schedule and moves the
// campaign to scheduled.
func (s *CampaignService) Schedule(id int, opts *model.ScheduleOptions) (*model.Campaign, error) {
	c, err := s.Campaigns.GetByID(id)
	if err != nil {
		return nil, err
	}
	if !c.Status.CanTransitionTo(model.StatusScheduled) {
		return nil, appErrors.NewInvalidTransition(c.Status, model.StatusScheduled)
	}
	if err := s.Scheduler.Schedule(id, opts); err != nil {
		return nil, err
	}
	return s.Campaigns.GetByID(id)
}

// ExecuteNow enqueues an immediate dispatch cycle. The status flip to
// in_progress happens inside the cycle, after the lease is claimed. A
// paused campaign may be executed directly without resuming its
// schedule first.
func (s *CampaignService) ExecuteNow(id int) error {
	c, err := s.Campaigns.GetByID(id)
	if err != nil {
		return err
	}
	switch c.Status {
	case model.StatusDraft, model.StatusPaused, model.StatusScheduled:
	default:
		return appErrors.NewInvalidState("execute", c.Status)
	}
	if err := queue.PublishDispatch(s.Queue, id); err != nil {
		return err
	}
	s.Logger.Info("dispatch enqueued", slog.Int("campaign_id", id))
	return nil
}

func (s *CampaignService) Pause(id int) (*model.Campaign, error) {
	c, err := s.Campaigns.GetByID(id)
	if err != nil {
		return nil, err
	}
	if !c.Status.CanTransitionTo(model.StatusPaused) {
		return nil, appErrors.NewInvalidTransition(c.Status, model.StatusPaused)
	}
	if err := s.Campaigns.UpdateStatus(id, model.StatusPaused); err != nil {
		return nil, err
	}
	c.Status = model.StatusPaused
	return c, nil
}

// Resume re-arms the stored schedule of a paused campaign. Occurrences
// missed while paused collapse into a single immediate run.
func (s *CampaignService) Resume(id int) (*model.Campaign, error) {
	c, err := s.Campaigns.GetByID(id)
	if err != nil {
		return nil, err
	}
	if c.Status != model.StatusPaused {
		return nil, appErrors.NewInvalidState("resume", c.Status)
	}
	if c.ScheduleOptions == nil {
		return nil, appErrors.NewValidation("schedule_options", "campaign has no stored schedule to resume")
	}
	if err := s.Scheduler.Reschedule(id, c.ScheduleOptions); err != nil {
		return nil, err
	}
	return s.Campaigns.GetByID(id)
}

func (s *CampaignService) Stop(id int) (*model.Campaign, error) {
	c, err := s.Campaigns.GetByID(id)
	if err != nil {
		return nil, err
	}
	if !c.Status.CanTransitionTo(model.StatusStopped) {
		return nil, appErrors.NewInvalidTransition(c.Status, model.StatusStopped)
	}
	if err := s.Scheduler.Cancel(id); err != nil {
		return nil, err
	}
	if err := s.Campaigns.UpdateStatus(id, model.StatusStopped); err != nil {
		return nil, err
	}
	c.Status = model.StatusStopped
	c.NextRunAt = nil
	return c, nil
}

type RecipientInput struct {
	Name       string        `json:"name"`
	Email      string        `json:"email"`
	Phone      string        `json:"phone"`
	ChannelIDs model.JSONMap `json:"channel_ids"`
}

// AddRecipients matches each entry to an existing recipient by email
// or phone, creating one when no match exists, and attaches it to the
// campaign. Already-attached recipients are skipped; the returned
// count covers newly attached rows only.
func (s *CampaignService) AddRecipients(campaignID int, inputs []RecipientInput) (int, error) {
	c, err := s.Campaigns.GetByID(campaignID)
	if err != nil {
		return 0, err
	}
	if c.Status == model.StatusCompleted {
		return 0, appErrors.NewInvalidState("add recipients", c.Status)
	}
	if len(inputs) == 0 {
		return 0, appErrors.NewValidation("recipients", "at least one recipient is required")
	}

	added := 0
	for _, input := range inputs {
		if input.Email == "" && input.Phone == "" {
			return added, appErrors.NewValidation("recipients", "each recipient needs an email or a phone")
		}

		rec, err := s.Recipients.FindByContact(input.Email, input.Phone)
		if err != nil {
			return added, err
		}
		switch {
		case rec == nil:
			rec = &model.Recipient{
				Name:       input.Name,
				Email:      input.Email,
				Phone:      input.Phone,
				ChannelIDs: input.ChannelIDs,
			}
			if err := s.Recipients.Create(rec); err != nil {
				return added, err
			}
		case enrichRecipient(rec, input):
			if err := s.Recipients.Update(rec); err != nil {
				return added, err
			}
		}

		attached, err := s.Members.Add(campaignID, rec.ID)
		if err != nil {
			return added, err
		}
		if attached {
			added++
		}
	}

	s.Logger.Info("recipients added", slog.Int("campaign_id", campaignID), slog.Int("added", added))
	return added, nil
}

func (s *CampaignService) RemoveRecipients(campaignID int, recipientIDs []int) (int, error) {
	c, err := s.Campaigns.GetByID(campaignID)
	if err != nil {
		return 0, err
	}
	if c.Status == model.StatusInProgress {
		return 0, appErrors.NewInvalidState("remove recipients", c.Status)
	}
	if len(recipientIDs) == 0 {
		return 0, appErrors.NewValidation("recipient_ids", "at least one recipient id is required")
	}
	return s.Members.Remove(campaignID, recipientIDs)
}

func (s *CampaignService) ListRecipients(campaignID, page, pageSize int, status model.RecipientStatus, search string) ([]*model.CampaignRecipientDetail, int, error) {
	if _, err := s.Campaigns.GetByID(campaignID); err != nil {
		return nil, 0, err
	}
	switch status {
	case "", model.RecipientPending, model.RecipientSent, model.RecipientFailed:
	default:
		return nil, 0, appErrors.NewValidation("status", "unknown recipient status "+string(status))
	}
	offset, limit := pagination(page, pageSize)
	return s.Members.List(campaignID, offset, limit, status, search)
}

// ResetRecipients moves failed (and optionally sent) members back to
// pending so the campaign can be re-run.
func (s *CampaignService) ResetRecipients(campaignID int, includeSent bool) (int, error) {
	c, err := s.Campaigns.GetByID(campaignID)
	if err != nil {
		return 0, err
	}
	if c.Status == model.StatusInProgress {
		return 0, appErrors.NewInvalidState("reset recipients", c.Status)
	}
	return s.Members.Reset(campaignID, includeSent)
}

type MessageTemplateInput struct {
	Channel           string        `json:"channel"`
	Subject           string        `json:"subject"`
	BodyTemplate      string        `json:"body_template"`
	TemplateVariables model.JSONMap `json:"template_variables"`
}

type MessageTemplateUpdate struct {
	Subject           *string       `json:"subject"`
	BodyTemplate      *string       `json:"body_template"`
	TemplateVariables model.JSONMap `json:"template_variables"`
}

func (s *CampaignService) CreateMessage(campaignID int, input MessageTemplateInput) (*model.MessageTemplate, error) {
	c, err := s.Campaigns.GetByID(campaignID)
	if err != nil {
		return nil, err
	}
	channel := strings.ToLower(strings.TrimSpace(input.Channel))
	if !containsChannel(c.Channels, channel) {
		return nil, appErrors.NewValidation("channel", "campaign does not use channel "+channel)
	}
	if strings.TrimSpace(input.BodyTemplate) == "" {
		return nil, appErrors.NewValidation("body_template", "is required")
	}

	t := &model.MessageTemplate{
		CampaignID:        campaignID,
		Channel:           channel,
		Subject:           input.Subject,
		BodyTemplate:      input.BodyTemplate,
		TemplateVariables: input.TemplateVariables,
	}
	if err := s.Templates.Create(t); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *CampaignService) UpdateMessage(campaignID, templateID int, input MessageTemplateUpdate) (*model.MessageTemplate, error) {
	t, err := s.Templates.GetByID(campaignID, templateID)
	if err != nil {
		return nil, err
	}
	if input.Subject != nil {
		t.Subject = *input.Subject
	}
	if input.BodyTemplate != nil {
		if strings.TrimSpace(*input.BodyTemplate) == "" {
			return nil, appErrors.NewValidation("body_template", "cannot be empty")
		}
		t.BodyTemplate = *input.BodyTemplate
	}
	if input.TemplateVariables != nil {
		t.TemplateVariables = input.TemplateVariables
	}
	if err := s.Templates.Update(t); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *CampaignService) DeleteMessage(campaignID, templateID int) error {
	if _, err := s.Campaigns.GetByID(campaignID); err != nil {
		return err
	}
	return s.Templates.Delete(campaignID, templateID)
}

func (s *CampaignService) ListMessages(campaignID int) ([]*model.MessageTemplate, error) {
	if _, err := s.Campaigns.GetByID(campaignID); err != nil {
		return nil, err
	}
	return s.Templates.ListByCampaign(campaignID)
}

// RenderPreview renders a channel's template, optionally against a
// concrete recipient and optionally with an override body, without
// touching delivery state.
func (s *CampaignService) RenderPreview(campaignID int, channel string, recipientID int, overrideBody *string) (subject, body string, err error) {
	c, err := s.Campaigns.GetByID(campaignID)
	if err != nil {
		return "", "", err
	}
	channel = strings.ToLower(strings.TrimSpace(channel))
	if !containsChannel(c.Channels, channel) {
		return "", "", appErrors.NewValidation("channel", "campaign does not use channel "+channel)
	}

	t, err := s.Templates.GetByChannel(campaignID, channel)
	if err != nil {
		return "", "", err
	}
	if t == nil {
		return "", "", appErrors.NewNotFound("message template", campaignID)
	}
	if overrideBody != nil {
		preview := *t
		preview.BodyTemplate = *overrideBody
		t = &preview
	}

	if recipientID > 0 {
		rec, err := s.Recipients.GetByID(recipientID)
		if err != nil {
			return "", "", err
		}
		subject, body = RenderForRecipient(t, rec)
		return subject, body, nil
	}

	vars := map[string]string(t.TemplateVariables)
	return RenderTemplate(t.Subject, vars), RenderTemplate(t.BodyTemplate, vars), nil
}

// enrichRecipient fills gaps on a matched recipient from the incoming
// entry. Existing values are never overwritten.
func enrichRecipient(rec *model.Recipient, input RecipientInput) bool {
	changed := false
	if rec.Name == "" && input.Name != "" {
		rec.Name = input.Name
		changed = true
	}
	if rec.Email == "" && input.Email != "" {
		rec.Email = input.Email
		changed = true
	}
	if rec.Phone == "" && input.Phone != "" {
		rec.Phone = input.Phone
		changed = true
	}
	for channel, id := range input.ChannelIDs {
		if id == "" || rec.ChannelIDs[channel] != "" {
			continue
		}
		if rec.ChannelIDs == nil {
			rec.ChannelIDs = model.JSONMap{}
		}
		rec.ChannelIDs[channel] = id
		changed = true
	}
	return changed
}

func normalizeChannels(channels []string) ([]string, error) {
	if len(channels) == 0 {
		return nil, appErrors.NewValidation("channels", "at least one channel is required")
	}
	seen := make(map[string]bool, len(channels))
	out := make([]string, 0, len(channels))
	for _, ch := range channels {
		ch = strings.ToLower(strings.TrimSpace(ch))
		if !model.KnownChannel(ch) {
			return nil, appErrors.NewValidation("channels", "unknown channel "+ch)
		}
		if seen[ch] {
			continue
		}
		seen[ch] = true
		out = append(out, ch)
	}
	return out, nil
}

func validateDates(start, end *time.Time) error {
	if start != nil && end != nil && end.Before(*start) {
		return appErrors.NewValidation("end_date", "must not be before start_date")
	}
	return nil
}

func containsChannel(channels []string, channel string) bool {
	for _, ch := range channels {
		if ch == channel {
			return true
		}
	}
	return false
}

func pagination(page, pageSize int) (offset, limit int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return (page - 1) * pageSize, pageSize
}
