package history

import (
	"context"
	"database/sql"

	"crm-platform/pkg/utils"
)

// PostgresRepo writes to:
// - conversation_assignments (INSERT-only)
// - conversation_agent_history (INSERT-only)
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) AppendAssignment(ctx context.Context, e Entry) error {
	const q = `
INSERT INTO conversation_assignments (
  id, workspace_id, conversation_id, action,
  from_assigned_user_id, to_assigned_user_id, from_queue_id, to_queue_id,
  changed_by, changed_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
`
	_, err := r.db.ExecContext(ctx, q,
		e.ID,
		e.WorkspaceID,
		e.ConversationID,
		e.Action,
		utils.NullString(e.FromUserID),
		utils.NullString(e.ToUserID),
		utils.NullString(e.FromQueueID),
		utils.NullString(e.ToQueueID),
		utils.NullString(&e.ChangedBy),
		e.ChangedAt,
	)
	return err
}

func (r *PostgresRepo) AppendAgent(ctx context.Context, e AgentEntry) error {
	const q = `
INSERT INTO conversation_agent_history (
  id, workspace_id, conversation_id, agent_id, action, changed_by, changed_at
) VALUES ($1,$2,$3,$4,$5,$6,$7)
`
	_, err := r.db.ExecContext(ctx, q,
		e.ID,
		e.WorkspaceID,
		e.ConversationID,
		utils.NullString(e.AgentID),
		e.Action,
		utils.NullString(&e.ChangedBy),
		e.ChangedAt,
	)
	return err
}
