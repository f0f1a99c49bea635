package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/unclebandit/outreach-engine/internal/model"
)

type CampaignRecipientRepositoryInterface interface {
	Add(campaignID, recipientID int) (bool, error)
	Remove(campaignID int, recipientIDs []int) (int, error)
	List(campaignID, offset, limit int, status model.RecipientStatus, search string) ([]*model.CampaignRecipientDetail, int, error)
	PendingBatch(campaignID, limit int) ([]*model.Recipient, error)
	PendingCount(campaignID int) (int, error)
	UpdateStatus(campaignID, recipientID int, status model.RecipientStatus, reason string, attemptedAt time.Time) error
	Reset(campaignID int, includeSent bool) (int, error)
	CountByStatus(campaignID int) (*model.CampaignMetrics, error)
}

type CampaignRecipientRepository struct {
	DB *sql.DB
}

// Add creates the join row in pending state. Idempotent: a second add
// for the same pair is a no-op and reports false.
func (r *CampaignRecipientRepository) Add(campaignID, recipientID int) (bool, error) {
	query := `
        INSERT INTO campaign_recipients (campaign_id, recipient_id, status, added_at)
        VALUES ($1, $2, $3, NOW())
        ON CONFLICT (campaign_id, recipient_id) DO NOTHING
    `
	res, err := r.DB.Exec(query, campaignID, recipientID, model.RecipientPending)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *CampaignRecipientRepository) Remove(campaignID int, recipientIDs []int) (int, error) {
	query := `DELETE FROM campaign_recipients WHERE campaign_id=$1 AND recipient_id = ANY($2)`
	res, err := r.DB.Exec(query, campaignID, pq.Array(recipientIDs))
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (r *CampaignRecipientRepository) List(campaignID, offset, limit int, status model.RecipientStatus, search string) ([]*model.CampaignRecipientDetail, int, error) {
	where := ` WHERE cr.campaign_id=$1`
	args := []any{campaignID}
	argPos := 2

	if status != "" {
		where += fmt.Sprintf(" AND cr.status=$%d", argPos)
		args = append(args, status)
		argPos++
	}
	if search != "" {
		where += fmt.Sprintf(" AND (r.name ILIKE $%d OR r.email ILIKE $%d OR r.phone ILIKE $%d)", argPos, argPos, argPos)
		args = append(args, "%"+search+"%")
		argPos++
	}

	base := ` FROM recipients r JOIN campaign_recipients cr ON r.id = cr.recipient_id` + where

	query := `SELECT r.id, r.name, r.email, r.phone, cr.status, cr.failure_reason, cr.added_at, cr.last_attempt_at` +
		base + fmt.Sprintf(" ORDER BY cr.added_at DESC LIMIT $%d OFFSET $%d", argPos, argPos+1)

	rows, err := r.DB.Query(query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	details := []*model.CampaignRecipientDetail{}
	for rows.Next() {
		d := &model.CampaignRecipientDetail{}
		if err := rows.Scan(&d.RecipientID, &d.Name, &d.Email, &d.Phone, &d.Status, &d.FailureReason, &d.AddedAt, &d.LastAttemptAt); err != nil {
			return nil, 0, err
		}
		details = append(details, d)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int
	if err := r.DB.QueryRow(`SELECT COUNT(*)`+base, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	return details, total, nil
}

// PendingBatch loads one bounded batch of recipients still waiting for
// delivery, oldest first.
func (r *CampaignRecipientRepository) PendingBatch(campaignID, limit int) ([]*model.Recipient, error) {
	query := `
        SELECT r.id, r.name, r.email, r.phone, r.channel_ids, r.created_at, r.updated_at
        FROM recipients r
        JOIN campaign_recipients cr ON r.id = cr.recipient_id
        WHERE cr.campaign_id=$1 AND cr.status=$2
        ORDER BY cr.added_at ASC
        LIMIT $3
    `
	rows, err := r.DB.Query(query, campaignID, model.RecipientPending, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	recipients := []*model.Recipient{}
	for rows.Next() {
		rec, err := scanRecipient(rows)
		if err != nil {
			return nil, err
		}
		recipients = append(recipients, rec)
	}
	return recipients, rows.Err()
}

func (r *CampaignRecipientRepository) PendingCount(campaignID int) (int, error) {
	var count int
	err := r.DB.QueryRow(
		`SELECT COUNT(*) FROM campaign_recipients WHERE campaign_id=$1 AND status=$2`,
		campaignID, model.RecipientPending,
	).Scan(&count)
	return count, err
}

func (r *CampaignRecipientRepository) UpdateStatus(campaignID, recipientID int, status model.RecipientStatus, reason string, attemptedAt time.Time) error {
	query := `
        UPDATE campaign_recipients
        SET status=$1, failure_reason=$2, last_attempt_at=$3
        WHERE campaign_id=$4 AND recipient_id=$5
    `
	_, err := r.DB.Exec(query, status, reason, attemptedAt, campaignID, recipientID)
	return err
}

// Reset flips failed rows (and sent rows too, when includeSent) back to
// pending so an explicit re-run can pick them up.
func (r *CampaignRecipientRepository) Reset(campaignID int, includeSent bool) (int, error) {
	statuses := []string{string(model.RecipientFailed)}
	if includeSent {
		statuses = append(statuses, string(model.RecipientSent))
	}

	query := `
        UPDATE campaign_recipients
        SET status=$1, failure_reason='', last_attempt_at=NULL
        WHERE campaign_id=$2 AND status = ANY($3)
    `
	res, err := r.DB.Exec(query, model.RecipientPending, campaignID, pq.Array(statuses))
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (r *CampaignRecipientRepository) CountByStatus(campaignID int) (*model.CampaignMetrics, error) {
	query := `SELECT status, COUNT(*) FROM campaign_recipients WHERE campaign_id=$1 GROUP BY status`
	rows, err := r.DB.Query(query, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	m := &model.CampaignMetrics{CampaignID: campaignID}
	for rows.Next() {
		var status model.RecipientStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		switch status {
		case model.RecipientSent:
			m.Sent = count
		case model.RecipientFailed:
			m.Failed = count
		case model.RecipientPending:
			m.Pending = count
		}
		m.Total += count
	}
	return m, rows.Err()
}

var _ CampaignRecipientRepositoryInterface = (*CampaignRecipientRepository)(nil)
