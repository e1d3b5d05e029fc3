package pipeline

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/google/uuid"

	"crm-platform/pkg/utils"
)

// PostgresRepo reads pipelines/pipeline_columns and writes pipeline_cards.
//
// The one-open-card rule is backed by:
//
//	CREATE UNIQUE INDEX pipeline_cards_one_open
//	  ON pipeline_cards (contact_id, pipeline_id) WHERE status = 'aberto';
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

const openCardIndex = "pipeline_cards_one_open"

func (r *PostgresRepo) GetPipeline(ctx context.Context, workspaceID, id string) (Pipeline, error) {
	const q = `
SELECT id, workspace_id, name, is_active, created_at
FROM pipelines
WHERE workspace_id = $1 AND id = $2
`
	return scanPipeline(r.db.QueryRowContext(ctx, q, workspaceID, id))
}

func (r *PostgresRepo) FirstActivePipeline(ctx context.Context, workspaceID string) (Pipeline, error) {
	const q = `
SELECT id, workspace_id, name, is_active, created_at
FROM pipelines
WHERE workspace_id = $1 AND is_active = true
ORDER BY created_at ASC, id ASC
LIMIT 1
`
	return scanPipeline(r.db.QueryRowContext(ctx, q, workspaceID))
}

func scanPipeline(row *sql.Row) (Pipeline, error) {
	var p Pipeline
	if err := row.Scan(&p.ID, &p.WorkspaceID, &p.Name, &p.Active, &p.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Pipeline{}, ErrNotFound
		}
		return Pipeline{}, err
	}
	return p, nil
}

func (r *PostgresRepo) ListColumns(ctx context.Context, pipelineID string) ([]Column, error) {
	const q = `
SELECT id, pipeline_id, name, COALESCE(color, ''), order_position, created_at
FROM pipeline_columns
WHERE pipeline_id = $1
ORDER BY order_position ASC, id ASC
`
	rows, err := r.db.QueryContext(ctx, q, pipelineID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Column
	for rows.Next() {
		var c Column
		if err := rows.Scan(&c.ID, &c.PipelineID, &c.Name, &c.Color, &c.OrderPosition, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) GetColumn(ctx context.Context, pipelineID, columnID string) (Column, error) {
	const q = `
SELECT id, pipeline_id, name, COALESCE(color, ''), order_position, created_at
FROM pipeline_columns
WHERE pipeline_id = $1 AND id = $2
`
	var c Column
	err := r.db.QueryRowContext(ctx, q, pipelineID, columnID).Scan(&c.ID, &c.PipelineID, &c.Name, &c.Color, &c.OrderPosition, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Column{}, ErrNotFound
		}
		return Column{}, err
	}
	return c, nil
}

// Tags travel as JSON text to avoid driver-specific array scanning.
const cardColumns = `id, workspace_id, pipeline_id, column_id, contact_id, conversation_id, responsible_user_id,
       status, COALESCE(value, 0), COALESCE(title, ''), COALESCE(description, ''),
       COALESCE(array_to_json(tags), '[]'::json)::text, created_at, updated_at`

func scanCard(row interface{ Scan(...any) error }) (Card, error) {
	var (
		c              Card
		convID, userID sql.NullString
		tags           string
	)
	err := row.Scan(&c.ID, &c.WorkspaceID, &c.PipelineID, &c.ColumnID, &c.ContactID, &convID, &userID,
		&c.Status, &c.Value, &c.Title, &c.Description, &tags, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Card{}, ErrNotFound
		}
		return Card{}, err
	}
	c.ConversationID = utils.StringPtr(convID)
	c.ResponsibleUserID = utils.StringPtr(userID)
	if err := json.Unmarshal([]byte(tags), &c.Tags); err != nil {
		return Card{}, err
	}
	if c.Tags == nil {
		c.Tags = []string{}
	}
	return c, nil
}

func (r *PostgresRepo) FindOpenCard(ctx context.Context, pipelineID, contactID string) (Card, error) {
	q := `SELECT ` + cardColumns + ` FROM pipeline_cards
WHERE pipeline_id = $1 AND contact_id = $2 AND status = 'aberto'
LIMIT 1`
	return scanCard(r.db.QueryRowContext(ctx, q, pipelineID, contactID))
}

func (r *PostgresRepo) GetCard(ctx context.Context, workspaceID, id string) (Card, error) {
	q := `SELECT ` + cardColumns + ` FROM pipeline_cards WHERE workspace_id = $1 AND id = $2`
	return scanCard(r.db.QueryRowContext(ctx, q, workspaceID, id))
}

func (r *PostgresRepo) ListCards(ctx context.Context, pipelineID string) ([]Card, error) {
	q := `SELECT ` + cardColumns + ` FROM pipeline_cards WHERE pipeline_id = $1 ORDER BY created_at ASC`
	rows, err := r.db.QueryContext(ctx, q, pipelineID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Card
	for rows.Next() {
		c, err := scanCard(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func tagsJSON(tags []string) (string, error) {
	if tags == nil {
		tags = []string{}
	}
	b, err := json.Marshal(tags)
	return string(b), err
}

func (r *PostgresRepo) CreateCard(ctx context.Context, c Card) (Card, error) {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	tags, err := tagsJSON(c.Tags)
	if err != nil {
		return Card{}, err
	}
	q := `
INSERT INTO pipeline_cards (id, workspace_id, pipeline_id, column_id, contact_id, conversation_id,
  responsible_user_id, status, value, title, description, tags, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11,
  ARRAY(SELECT jsonb_array_elements_text($12::jsonb)), $13, $14)
RETURNING ` + cardColumns
	out, err := scanCard(r.db.QueryRowContext(ctx, q,
		c.ID, c.WorkspaceID, c.PipelineID, c.ColumnID, c.ContactID,
		utils.NullString(c.ConversationID), utils.NullString(c.ResponsibleUserID),
		c.Status, c.Value, c.Title, c.Description, tags, c.CreatedAt, c.UpdatedAt))
	if utils.IsUniqueViolation(err, openCardIndex) {
		return Card{}, ErrOpenCardExists
	}
	return out, err
}

func (r *PostgresRepo) UpdateCard(ctx context.Context, c Card) (Card, error) {
	tags, err := tagsJSON(c.Tags)
	if err != nil {
		return Card{}, err
	}
	q := `
UPDATE pipeline_cards SET
  column_id = $3,
  conversation_id = $4,
  responsible_user_id = $5,
  status = $6,
  value = $7,
  title = $8,
  description = $9,
  tags = ARRAY(SELECT jsonb_array_elements_text($10::jsonb)),
  updated_at = $11
WHERE workspace_id = $1 AND id = $2
RETURNING ` + cardColumns
	out, err := scanCard(r.db.QueryRowContext(ctx, q,
		c.WorkspaceID, c.ID, c.ColumnID,
		utils.NullString(c.ConversationID), utils.NullString(c.ResponsibleUserID),
		c.Status, c.Value, c.Title, c.Description, tags, c.UpdatedAt))
	if utils.IsUniqueViolation(err, openCardIndex) {
		return Card{}, ErrOpenCardExists
	}
	return out, err
}
