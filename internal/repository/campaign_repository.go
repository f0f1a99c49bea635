package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	appErrors "github.com/unclebandit/outreach-engine/internal/errors"
	"github.com/unclebandit/outreach-engine/internal/model"
)

type CampaignRepositoryInterface interface {
	// Campaign CRUD
	Create(c *model.Campaign) error
	GetByID(id int) (*model.Campaign, error)
	Update(c *model.Campaign) error
	UpdateStatus(campaignID int, status model.Status) error
	Delete(id int) error
	List(offset, limit int, search string, status model.Status) ([]*model.Campaign, int, error)

	// Scheduling commitments
	SetSchedule(campaignID int, opts *model.ScheduleOptions, nextRun *time.Time, status model.Status) error
	SetNextRun(campaignID int, nextRun *time.Time) error
	ClearSchedule(campaignID int) error
	DueCampaigns(now time.Time, limit int) ([]*model.Campaign, error)

	// Dispatch lease
	ClaimLease(campaignID int, token uuid.UUID, now time.Time, ttl time.Duration) (bool, error)
	ReleaseLease(campaignID int, token uuid.UUID) error
}

type CampaignRepository struct {
	DB *sql.DB
}

const campaignColumns = `id, name, description, channels, status, start_date, end_date, schedule_options, next_run_at, created_at, updated_at`

func scanCampaign(row interface{ Scan(...any) error }) (*model.Campaign, error) {
	var c model.Campaign
	var channels pq.StringArray
	var opts []byte
	err := row.Scan(
		&c.ID, &c.Name, &c.Description, &channels, &c.Status,
		&c.StartDate, &c.EndDate, &opts, &c.NextRunAt,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.Channels = channels
	if opts != nil {
		c.ScheduleOptions = &model.ScheduleOptions{}
		if err := json.Unmarshal(opts, c.ScheduleOptions); err != nil {
			return nil, fmt.Errorf("decode schedule_options for campaign %d: %w", c.ID, err)
		}
	}
	return &c, nil
}

// ====================== Campaign CRUD ======================

func (r *CampaignRepository) Create(c *model.Campaign) error {
	c.CreatedAt = time.Now()
	if c.Status == "" {
		c.Status = model.StatusDraft
	}
	query := `
        INSERT INTO campaigns (name, description, channels, status, start_date, end_date, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        RETURNING id
    `
	return r.DB.QueryRow(query,
		c.Name, c.Description, pq.Array(c.Channels), c.Status,
		c.StartDate, c.EndDate, c.CreatedAt,
	).Scan(&c.ID)
}

func (r *CampaignRepository) GetByID(id int) (*model.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE id=$1`
	c, err := scanCampaign(r.DB.QueryRow(query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.NewNotFound("campaign", id)
		}
		return nil, err
	}
	return c, nil
}

func (r *CampaignRepository) Update(c *model.Campaign) error {
	query := `
        UPDATE campaigns
        SET name=$1, description=$2, channels=$3, status=$4, start_date=$5, end_date=$6, updated_at=NOW()
        WHERE id=$7
    `
	res, err := r.DB.Exec(query,
		c.Name, c.Description, pq.Array(c.Channels), c.Status,
		c.StartDate, c.EndDate, c.ID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return appErrors.NewNotFound("campaign", c.ID)
	}
	return err
}

func (r *CampaignRepository) UpdateStatus(campaignID int, status model.Status) error {
	query := `UPDATE campaigns SET status=$1, updated_at=NOW() WHERE id=$2`
	res, err := r.DB.Exec(query, status, campaignID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return appErrors.NewNotFound("campaign", campaignID)
	}
	return err
}

// Delete removes the campaign and everything it owns. Shared recipient
// rows are untouched.
func (r *CampaignRepository) Delete(id int) error {
	tx, err := r.DB.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, q := range []string{
		`DELETE FROM delivery_attempts WHERE campaign_id=$1`,
		`DELETE FROM campaign_recipients WHERE campaign_id=$1`,
		`DELETE FROM message_templates WHERE campaign_id=$1`,
	} {
		if _, err := tx.Exec(q, id); err != nil {
			return err
		}
	}

	res, err := tx.Exec(`DELETE FROM campaigns WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return appErrors.NewNotFound("campaign", id)
	}

	return tx.Commit()
}

func (r *CampaignRepository) List(offset, limit int, search string, status model.Status) ([]*model.Campaign, int, error) {
	where := ` WHERE 1=1`
	args := []any{}
	argPos := 1

	if search != "" {
		where += fmt.Sprintf(" AND (name ILIKE $%d OR description ILIKE $%d)", argPos, argPos)
		args = append(args, "%"+search+"%")
		argPos++
	}
	if status != "" {
		where += fmt.Sprintf(" AND status=$%d", argPos)
		args = append(args, status)
		argPos++
	}

	query := `SELECT ` + campaignColumns + ` FROM campaigns` + where +
		fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", argPos, argPos+1)

	rows, err := r.DB.Query(query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	campaigns := []*model.Campaign{}
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, 0, err
		}
		campaigns = append(campaigns, c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int
	if err := r.DB.QueryRow(`SELECT COUNT(*) FROM campaigns`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	return campaigns, total, nil
}

// ====================== Scheduling commitments ======================

// SetSchedule persists the schedule options, the next due instant, and
// the status flip in one statement, so a campaign never reads as
// scheduled without a durable commitment behind it.
func (r *CampaignRepository) SetSchedule(campaignID int, opts *model.ScheduleOptions, nextRun *time.Time, status model.Status) error {
	var raw []byte
	if opts != nil {
		var err error
		raw, err = json.Marshal(opts)
		if err != nil {
			return err
		}
	}

	query := `
        UPDATE campaigns
        SET schedule_options=$1, next_run_at=$2, status=$3, updated_at=NOW()
        WHERE id=$4
    `
	res, err := r.DB.Exec(query, raw, nextRun, status, campaignID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return appErrors.NewNotFound("campaign", campaignID)
	}
	return err
}

func (r *CampaignRepository) SetNextRun(campaignID int, nextRun *time.Time) error {
	query := `UPDATE campaigns SET next_run_at=$1, updated_at=NOW() WHERE id=$2`
	_, err := r.DB.Exec(query, nextRun, campaignID)
	return err
}

// ClearSchedule cancels any pending commitment. Idempotent.
func (r *CampaignRepository) ClearSchedule(campaignID int) error {
	query := `UPDATE campaigns SET next_run_at=NULL, updated_at=NOW() WHERE id=$1`
	_, err := r.DB.Exec(query, campaignID)
	return err
}

// DueCampaigns returns campaigns whose due instant has arrived. An
// in_progress row with a due instant is a batch-bounded run waiting
// for its next batch, so it is claimable alongside scheduled rows.
func (r *CampaignRepository) DueCampaigns(now time.Time, limit int) ([]*model.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns
        WHERE status IN ($1, $2) AND next_run_at IS NOT NULL AND next_run_at <= $3
        ORDER BY next_run_at ASC
        LIMIT $4`

	rows, err := r.DB.Query(query, model.StatusScheduled, model.StatusInProgress, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	campaigns := []*model.Campaign{}
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, err
		}
		campaigns = append(campaigns, c)
	}
	return campaigns, rows.Err()
}

// ====================== Dispatch lease ======================

// ClaimLease takes the per-campaign execution lease in a single
// check-and-set statement. Returns false when another dispatch cycle
// holds a live lease.
func (r *CampaignRepository) ClaimLease(campaignID int, token uuid.UUID, now time.Time, ttl time.Duration) (bool, error) {
	query := `
        UPDATE campaigns
        SET lease_token=$1, lease_expires_at=$2
        WHERE id=$3 AND (lease_token IS NULL OR lease_expires_at < $4)
    `
	res, err := r.DB.Exec(query, token, now.Add(ttl), campaignID, now)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ReleaseLease frees the lease, but only for its holder.
func (r *CampaignRepository) ReleaseLease(campaignID int, token uuid.UUID) error {
	query := `
        UPDATE campaigns
        SET lease_token=NULL, lease_expires_at=NULL
        WHERE id=$1 AND lease_token=$2
    `
	_, err := r.DB.Exec(query, campaignID, token)
	return err
}

var _ CampaignRepositoryInterface = (*CampaignRepository)(nil)
