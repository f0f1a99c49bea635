package repository

import (
	"database/sql"
	"time"

	appErrors "github.com/unclebandit/outreach-engine/internal/errors"
	"github.com/unclebandit/outreach-engine/internal/model"
)

type RecipientRepositoryInterface interface {
	GetByID(id int) (*model.Recipient, error)
	FindByContact(email, phone string) (*model.Recipient, error)
	Create(rec *model.Recipient) error
	Update(rec *model.Recipient) error
}

type RecipientRepository struct {
	DB *sql.DB
}

const recipientColumns = `id, name, email, phone, channel_ids, created_at, updated_at`

func scanRecipient(row interface{ Scan(...any) error }) (*model.Recipient, error) {
	var rec model.Recipient
	err := row.Scan(
		&rec.ID, &rec.Name, &rec.Email, &rec.Phone, &rec.ChannelIDs,
		&rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *RecipientRepository) GetByID(id int) (*model.Recipient, error) {
	query := `SELECT ` + recipientColumns + ` FROM recipients WHERE id=$1`
	rec, err := scanRecipient(r.DB.QueryRow(query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.NewNotFound("recipient", id)
		}
		return nil, err
	}
	return rec, nil
}

// FindByContact matches an existing contact by email or phone. Returns
// nil without error when no match exists.
func (r *RecipientRepository) FindByContact(email, phone string) (*model.Recipient, error) {
	query := `SELECT ` + recipientColumns + ` FROM recipients
        WHERE (email <> '' AND email=$1) OR (phone <> '' AND phone=$2)
        LIMIT 1`
	rec, err := scanRecipient(r.DB.QueryRow(query, email, phone))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return rec, nil
}

func (r *RecipientRepository) Create(rec *model.Recipient) error {
	rec.CreatedAt = time.Now()
	query := `
        INSERT INTO recipients (name, email, phone, channel_ids, created_at)
        VALUES ($1, $2, $3, $4, $5)
        RETURNING id
    `
	return r.DB.QueryRow(query,
		rec.Name, rec.Email, rec.Phone, rec.ChannelIDs, rec.CreatedAt,
	).Scan(&rec.ID)
}

// Update fills in newly learned contact fields; empty inputs leave the
// stored value alone.
func (r *RecipientRepository) Update(rec *model.Recipient) error {
	query := `
        UPDATE recipients
        SET name=COALESCE(NULLIF($1, ''), name),
            email=COALESCE(NULLIF($2, ''), email),
            phone=COALESCE(NULLIF($3, ''), phone),
            channel_ids=COALESCE($4, channel_ids),
            updated_at=NOW()
        WHERE id=$5
    `
	_, err := r.DB.Exec(query, rec.Name, rec.Email, rec.Phone, rec.ChannelIDs, rec.ID)
	return err
}

var _ RecipientRepositoryInterface = (*RecipientRepository)(nil)
