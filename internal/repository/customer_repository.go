package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/unclebandit/outreach-backend/internal/model"
)

type ContactRepositoryInterface interface {
	Create(ctx context.Context, c model.Contact) (int, error)
	ListAll(ctx context.Context) ([]model.Contact, error)
}

// ContactRepository stores imported leads in Postgres. Attributes are
// kept as JSONB so any CSV column survives the round trip.
type ContactRepository struct {
	DB *sql.DB
}

func (r *ContactRepository) Create(ctx context.Context, c model.Contact) (int, error) {
	attrs, err := json.Marshal(c)
	if err != nil {
		return 0, fmt.Errorf("encode contact: %w", err)
	}
	var id int
	query := `INSERT INTO contacts (email, attributes) VALUES ($1, $2) RETURNING id`
	if err := r.DB.QueryRowContext(ctx, query, c.Email(), attrs).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

func (r *ContactRepository) ListAll(ctx context.Context) ([]model.Contact, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT attributes FROM contacts ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	contacts := []model.Contact{}
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		c := model.Contact{}
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, fmt.Errorf("decode contact: %w", err)
		}
		contacts = append(contacts, c)
	}
	return contacts, rows.Err()
}
