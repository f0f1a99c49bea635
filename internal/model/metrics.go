// internal/model/metrics.go
package model

// CampaignMetrics is the per-campaign rollup. Always recomputed from
// campaign_recipients rows; never a source of truth.
type CampaignMetrics struct {
	CampaignID int `json:"campaign_id"`
	Total      int `json:"total"`
	Sent       int `json:"sent"`
	Failed     int `json:"failed"`
	Pending    int `json:"pending"`
}

// ChannelMetrics is the per-channel rollup, computed from the
// delivery_attempts log.
type ChannelMetrics struct {
	Channel   string `json:"channel"`
	Attempted int    `json:"attempted"`
	Sent      int    `json:"sent"`
	Failed    int    `json:"failed"`
}
