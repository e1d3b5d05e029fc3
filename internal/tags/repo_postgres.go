package tags

import (
	"context"
	"database/sql"
	"errors"
)

// PostgresRepo uses tags, conversation_tags and contact_tags.
// Link tables have PRIMARY KEY (owner_id, tag_id), so inserts are idempotent.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) GetTag(ctx context.Context, workspaceID, id string) (Tag, error) {
	const q = `SELECT id, workspace_id, name, COALESCE(color, '') FROM tags WHERE workspace_id = $1 AND id = $2`
	var t Tag
	if err := r.db.QueryRowContext(ctx, q, workspaceID, id).Scan(&t.ID, &t.WorkspaceID, &t.Name, &t.Color); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Tag{}, ErrNotFound
		}
		return Tag{}, err
	}
	return t, nil
}

func (r *PostgresRepo) AddConversationTag(ctx context.Context, workspaceID, conversationID, tagID string) (bool, error) {
	const q = `
INSERT INTO conversation_tags (conversation_id, tag_id, workspace_id, created_at)
VALUES ($1, $2, $3, now())
ON CONFLICT (conversation_id, tag_id) DO NOTHING
`
	return affected(r.db.ExecContext(ctx, q, conversationID, tagID, workspaceID))
}

func (r *PostgresRepo) RemoveConversationTag(ctx context.Context, workspaceID, conversationID, tagID string) (bool, error) {
	const q = `DELETE FROM conversation_tags WHERE workspace_id = $1 AND conversation_id = $2 AND tag_id = $3`
	return affected(r.db.ExecContext(ctx, q, workspaceID, conversationID, tagID))
}

func (r *PostgresRepo) ListConversationTags(ctx context.Context, workspaceID, conversationID string) ([]Tag, error) {
	const q = `
SELECT t.id, t.workspace_id, t.name, COALESCE(t.color, '')
FROM conversation_tags ct
JOIN tags t ON t.id = ct.tag_id
WHERE t.workspace_id = $1 AND ct.conversation_id = $2
ORDER BY t.name ASC
`
	return r.list(ctx, q, workspaceID, conversationID)
}

func (r *PostgresRepo) AddContactTag(ctx context.Context, workspaceID, contactID, tagID string) (bool, error) {
	const q = `
INSERT INTO contact_tags (contact_id, tag_id, workspace_id, created_at)
VALUES ($1, $2, $3, now())
ON CONFLICT (contact_id, tag_id) DO NOTHING
`
	return affected(r.db.ExecContext(ctx, q, contactID, tagID, workspaceID))
}

func (r *PostgresRepo) ListContactTags(ctx context.Context, workspaceID, contactID string) ([]Tag, error) {
	const q = `
SELECT t.id, t.workspace_id, t.name, COALESCE(t.color, '')
FROM contact_tags ct
JOIN tags t ON t.id = ct.tag_id
WHERE t.workspace_id = $1 AND ct.contact_id = $2
ORDER BY t.name ASC
`
	return r.list(ctx, q, workspaceID, contactID)
}

func (r *PostgresRepo) list(ctx context.Context, q string, args ...any) ([]Tag, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Tag
	for rows.Next() {
		var t Tag
		if err := rows.Scan(&t.ID, &t.WorkspaceID, &t.Name, &t.Color); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func affected(res sql.Result, err error) (bool, error) {
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
