package contacts

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

// PostgresRepo reads and writes the contacts table.
// Assumes UNIQUE (workspace_id, phone) so concurrent webhook deliveries converge.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

const contactColumns = `id, workspace_id, COALESCE(name, ''), COALESCE(phone, ''), COALESCE(email, ''),
       COALESCE(profile_image_url, ''), created_at, updated_at`

func scanContact(row interface{ Scan(...any) error }) (Contact, error) {
	var c Contact
	err := row.Scan(&c.ID, &c.WorkspaceID, &c.Name, &c.Phone, &c.Email, &c.ProfileImageURL, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Contact{}, ErrNotFound
		}
		return Contact{}, err
	}
	return c, nil
}

func (r *PostgresRepo) Get(ctx context.Context, workspaceID, id string) (Contact, error) {
	q := `SELECT ` + contactColumns + ` FROM contacts WHERE workspace_id = $1 AND id = $2`
	return scanContact(r.db.QueryRowContext(ctx, q, workspaceID, id))
}

func (r *PostgresRepo) FindByPhone(ctx context.Context, workspaceID, phone string) (Contact, error) {
	q := `SELECT ` + contactColumns + ` FROM contacts WHERE workspace_id = $1 AND phone = $2 LIMIT 1`
	return scanContact(r.db.QueryRowContext(ctx, q, workspaceID, phone))
}

// Create inserts the contact; on a phone conflict it returns the existing row.
func (r *PostgresRepo) Create(ctx context.Context, c Contact) (Contact, error) {
	if c.WorkspaceID == "" {
		return Contact{}, ErrInvalidArgument
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	q := `
INSERT INTO contacts (id, workspace_id, name, phone, email, profile_image_url, created_at, updated_at)
VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), NULLIF($6, ''), $7, $7)
ON CONFLICT (workspace_id, phone) DO UPDATE SET updated_at = contacts.updated_at
RETURNING ` + contactColumns
	return scanContact(r.db.QueryRowContext(ctx, q, c.ID, c.WorkspaceID, c.Name, c.Phone, c.Email, c.ProfileImageURL, now))
}
