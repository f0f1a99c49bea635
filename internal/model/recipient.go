// internal/model/recipient.go
package model

import "time"

// Recipient is a long-lived contact, reusable across campaigns.
// ChannelIDs maps a channel name to a platform-specific handle, e.g.
// {"telegram": "@alice", "linkedin": "alice-smith"}.
type Recipient struct {
	ID         int        `db:"id" json:"id"`
	Name       string     `db:"name" json:"name"`
	Email      string     `db:"email" json:"email,omitempty"`
	Phone      string     `db:"phone" json:"phone,omitempty"`
	ChannelIDs JSONMap    `db:"channel_ids" json:"channel_ids,omitempty"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt  *time.Time `db:"updated_at" json:"updated_at,omitempty"`
}

// ContactFor returns the contact address required to reach the recipient
// on the given channel, and whether one is present.
func (r *Recipient) ContactFor(channel string) (string, bool) {
	switch channel {
	case ChannelEmail:
		return r.Email, r.Email != ""
	case ChannelSMS, ChannelWhatsApp:
		return r.Phone, r.Phone != ""
	default:
		id, ok := r.ChannelIDs[channel]
		return id, ok && id != ""
	}
}
