// internal/model/delivery_attempt.go
package model

import "time"

// DeliveryAttempt records one send attempt for a (campaign, recipient,
// channel) triple. It is append-only and feeds per-channel metrics.
type DeliveryAttempt struct {
	ID          int             `db:"id" json:"id"`
	CampaignID  int             `db:"campaign_id" json:"campaign_id"`
	RecipientID int             `db:"recipient_id" json:"recipient_id"`
	Channel     string          `db:"channel" json:"channel"`
	Status      RecipientStatus `db:"status" json:"status"`
	ErrorDetail string          `db:"error_detail" json:"error_detail,omitempty"`
	AttemptedAt time.Time       `db:"attempted_at" json:"attempted_at"`
}
