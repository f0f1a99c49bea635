// internal/model/message_template.go
package model

import "time"

// MessageTemplate is the per-channel message for a campaign. At most one
// template exists per (campaign, channel) pair.
type MessageTemplate struct {
	ID                int        `db:"id" json:"id"`
	CampaignID        int        `db:"campaign_id" json:"campaign_id"`
	Channel           string     `db:"channel" json:"channel"`
	Subject           string     `db:"subject" json:"subject,omitempty"`
	BodyTemplate      string     `db:"body_template" json:"body_template"`
	TemplateVariables JSONMap    `db:"template_variables" json:"template_variables,omitempty"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt         *time.Time `db:"updated_at" json:"updated_at,omitempty"`
}
