// internal/errors/errors.go
package appErrors

import (
	"fmt"

	"github.com/unclebandit/outreach-engine/internal/model"
)

// ValidationError reports malformed input. Surfaced synchronously,
// never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func NewValidation(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// InvalidTransitionError reports a status change not in the transition
// table, carrying both ends for diagnostics.
type InvalidTransitionError struct {
	From model.Status
	To   model.Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot change status from %q to %q", e.From, e.To)
}

func NewInvalidTransition(from, to model.Status) error {
	return &InvalidTransitionError{From: from, To: to}
}

// InvalidStateError reports an action that is illegal for the campaign's
// current status (e.g. deleting an active campaign).
type InvalidStateError struct {
	Action string
	Status model.Status
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s campaign with status %q", e.Action, e.Status)
}

func NewInvalidState(action string, status model.Status) error {
	return &InvalidStateError{Action: action, Status: status}
}

// NotFoundError reports a missing campaign, message, or recipient.
type NotFoundError struct {
	Resource string
	ID       int
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s with ID %d not found", e.Resource, e.ID)
}

func NewNotFound(resource string, id int) error {
	return &NotFoundError{Resource: resource, ID: id}
}

// DuplicateChannelError reports a second template for a channel that
// already has one on the campaign.
type DuplicateChannelError struct {
	CampaignID int
	Channel    string
}

func (e *DuplicateChannelError) Error() string {
	return fmt.Sprintf("campaign %d already has a template for channel %q", e.CampaignID, e.Channel)
}

func NewDuplicateChannel(campaignID int, channel string) error {
	return &DuplicateChannelError{CampaignID: campaignID, Channel: channel}
}

// SchedulerUnavailableError reports that the durable timer commitment
// could not be persisted; the status change is rolled back.
type SchedulerUnavailableError struct {
	Err error
}

func (e *SchedulerUnavailableError) Error() string {
	return fmt.Sprintf("scheduler unavailable: %v", e.Err)
}

func (e *SchedulerUnavailableError) Unwrap() error { return e.Err }

func NewSchedulerUnavailable(err error) error {
	return &SchedulerUnavailableError{Err: err}
}
