package repository

import (
	"database/sql"
	"time"

	"github.com/lib/pq"

	appErrors "github.com/unclebandit/outreach-engine/internal/errors"
	"github.com/unclebandit/outreach-engine/internal/model"
)

type MessageTemplateRepositoryInterface interface {
	Create(t *model.MessageTemplate) error
	GetByID(campaignID, id int) (*model.MessageTemplate, error)
	GetByChannel(campaignID int, channel string) (*model.MessageTemplate, error)
	ListByCampaign(campaignID int) ([]*model.MessageTemplate, error)
	Update(t *model.MessageTemplate) error
	Delete(campaignID, id int) error
}

type MessageTemplateRepository struct {
	DB *sql.DB
}

const templateColumns = `id, campaign_id, channel, subject, body_template, template_variables, created_at, updated_at`

func scanTemplate(row interface{ Scan(...any) error }) (*model.MessageTemplate, error) {
	var t model.MessageTemplate
	err := row.Scan(
		&t.ID, &t.CampaignID, &t.Channel, &t.Subject, &t.BodyTemplate,
		&t.TemplateVariables, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *MessageTemplateRepository) Create(t *model.MessageTemplate) error {
	t.CreatedAt = time.Now()
	query := `
        INSERT INTO message_templates (campaign_id, channel, subject, body_template, template_variables, created_at)
        VALUES ($1, $2, $3, $4, $5, $6)
        RETURNING id
    `
	err := r.DB.QueryRow(query,
		t.CampaignID, t.Channel, t.Subject, t.BodyTemplate, t.TemplateVariables, t.CreatedAt,
	).Scan(&t.ID)
	if err != nil {
		// unique_violation on (campaign_id, channel)
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return appErrors.NewDuplicateChannel(t.CampaignID, t.Channel)
		}
		return err
	}
	return nil
}

func (r *MessageTemplateRepository) GetByID(campaignID, id int) (*model.MessageTemplate, error) {
	query := `SELECT ` + templateColumns + ` FROM message_templates WHERE id=$1 AND campaign_id=$2`
	t, err := scanTemplate(r.DB.QueryRow(query, id, campaignID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.NewNotFound("message template", id)
		}
		return nil, err
	}
	return t, nil
}

// GetByChannel returns nil without error when the channel has no
// template yet.
func (r *MessageTemplateRepository) GetByChannel(campaignID int, channel string) (*model.MessageTemplate, error) {
	query := `SELECT ` + templateColumns + ` FROM message_templates WHERE campaign_id=$1 AND channel=$2`
	t, err := scanTemplate(r.DB.QueryRow(query, campaignID, channel))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return t, nil
}

func (r *MessageTemplateRepository) ListByCampaign(campaignID int) ([]*model.MessageTemplate, error) {
	query := `SELECT ` + templateColumns + ` FROM message_templates WHERE campaign_id=$1 ORDER BY channel`
	rows, err := r.DB.Query(query, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	templates := []*model.MessageTemplate{}
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		templates = append(templates, t)
	}
	return templates, rows.Err()
}

func (r *MessageTemplateRepository) Update(t *model.MessageTemplate) error {
	query := `
        UPDATE message_templates
        SET subject=$1, body_template=$2, template_variables=$3, updated_at=NOW()
        WHERE id=$4 AND campaign_id=$5
    `
	res, err := r.DB.Exec(query, t.Subject, t.BodyTemplate, t.TemplateVariables, t.ID, t.CampaignID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return appErrors.NewNotFound("message template", t.ID)
	}
	return err
}

func (r *MessageTemplateRepository) Delete(campaignID, id int) error {
	res, err := r.DB.Exec(`DELETE FROM message_templates WHERE id=$1 AND campaign_id=$2`, id, campaignID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return appErrors.NewNotFound("message template", id)
	}
	return err
}

var _ MessageTemplateRepositoryInterface = (*MessageTemplateRepository)(nil)
