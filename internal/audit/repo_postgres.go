package audit

import (
	"context"
	"database/sql"

	"crm-platform/pkg/utils"
)

// PostgresRepo writes to audit_events, which carries an INSERT-only grant.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) Append(ctx context.Context, e Event) error {
	var metadata *string
	if e.Metadata != "" {
		metadata = &e.Metadata
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO audit_events
			(id, workspace_id, type, actor_user_id, actor_role, ip_address,
			 card_id, conversation_id, message, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10::jsonb, $11)`,
		e.ID, e.WorkspaceID, string(e.Type),
		utils.NullString(&e.ActorUserID), utils.NullString(&e.ActorRole), utils.NullString(&e.IPAddress),
		utils.NullString(&e.CardID), utils.NullString(&e.ConversationID), utils.NullString(&e.Message),
		utils.NullString(metadata), e.CreatedAt,
	)
	return err
}
