// internal/model/campaign_recipient.go
package model

import "time"

// RecipientStatus is the per-campaign delivery state of a recipient.
type RecipientStatus string

const (
	RecipientPending RecipientStatus = "pending"
	RecipientSent    RecipientStatus = "sent"
	RecipientFailed  RecipientStatus = "failed"
)

// Failure reason codes recorded on the join row.
const (
	ReasonMissingContact = "missing contact info"
	ReasonSendFailed     = "send failed"
)

// CampaignRecipient joins a recipient to a campaign and carries the
// delivery status for that pair. Unique per (campaign_id, recipient_id);
// retries overwrite the row, they never duplicate it.
type CampaignRecipient struct {
	CampaignID    int             `db:"campaign_id" json:"campaign_id"`
	RecipientID   int             `db:"recipient_id" json:"recipient_id"`
	Status        RecipientStatus `db:"status" json:"status"`
	FailureReason string          `db:"failure_reason" json:"failure_reason,omitempty"`
	AddedAt       time.Time       `db:"added_at" json:"added_at"`
	LastAttemptAt *time.Time      `db:"last_attempt_at" json:"last_attempt_at,omitempty"`
}

// CampaignRecipientDetail is the listing view: recipient fields joined
// with the per-campaign status.
type CampaignRecipientDetail struct {
	RecipientID   int             `json:"recipient_id"`
	Name          string          `json:"name"`
	Email         string          `json:"email,omitempty"`
	Phone         string          `json:"phone,omitempty"`
	Status        RecipientStatus `json:"status"`
	FailureReason string          `json:"failure_reason,omitempty"`
	AddedAt       time.Time       `json:"added_at"`
	LastAttemptAt *time.Time      `json:"last_attempt_at,omitempty"`
}
