package repository

import (
	"database/sql"

	"github.com/unclebandit/outreach-engine/internal/model"
)

type DeliveryAttemptRepositoryInterface interface {
	Record(a *model.DeliveryAttempt) error
	ChannelMetrics(campaignID int) ([]*model.ChannelMetrics, error)
}

type DeliveryAttemptRepository struct {
	DB *sql.DB
}

func (r *DeliveryAttemptRepository) Record(a *model.DeliveryAttempt) error {
	query := `
        INSERT INTO delivery_attempts (campaign_id, recipient_id, channel, status, error_detail, attempted_at)
        VALUES ($1, $2, $3, $4, $5, $6)
        RETURNING id
    `
	return r.DB.QueryRow(query,
		a.CampaignID, a.RecipientID, a.Channel, a.Status, a.ErrorDetail, a.AttemptedAt,
	).Scan(&a.ID)
}

func (r *DeliveryAttemptRepository) ChannelMetrics(campaignID int) ([]*model.ChannelMetrics, error) {
	query := `
        SELECT channel,
               COUNT(*),
               COUNT(CASE WHEN status=$1 THEN 1 END),
               COUNT(CASE WHEN status=$2 THEN 1 END)
        FROM delivery_attempts
        WHERE campaign_id=$3
        GROUP BY channel
        ORDER BY channel
    `
	rows, err := r.DB.Query(query, model.RecipientSent, model.RecipientFailed, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	metrics := []*model.ChannelMetrics{}
	for rows.Next() {
		m := &model.ChannelMetrics{}
		if err := rows.Scan(&m.Channel, &m.Attempted, &m.Sent, &m.Failed); err != nil {
			return nil, err
		}
		metrics = append(metrics, m)
	}
	return metrics, rows.Err()
}

var _ DeliveryAttemptRepositoryInterface = (*DeliveryAttemptRepository)(nil)
