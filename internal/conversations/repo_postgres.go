package conversations

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"crm-platform/pkg/utils"
)

// PostgresRepo reads and writes conversations, queues and connections.
//
// Assumes a partial unique index so concurrent webhooks converge on one thread:
//
//	CREATE UNIQUE INDEX conversations_one_open
//	  ON conversations (contact_id, connection_id) WHERE status = 'open';
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

const conversationColumns = `id, workspace_id, contact_id, connection_id, status,
       queue_id, assigned_user_id, assigned_at, agent_active_id, COALESCE(agente_ativo, false),
       created_at, updated_at`

func scanConversation(row interface{ Scan(...any) error }) (Conversation, error) {
	var (
		c                        Conversation
		queueID, userID, agentID sql.NullString
		assignedAt               sql.NullTime
	)
	err := row.Scan(&c.ID, &c.WorkspaceID, &c.ContactID, &c.ConnectionID, &c.Status,
		&queueID, &userID, &assignedAt, &agentID, &c.AgentActive,
		&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Conversation{}, ErrNotFound
		}
		return Conversation{}, err
	}
	c.QueueID = utils.StringPtr(queueID)
	c.AssignedUserID = utils.StringPtr(userID)
	c.AgentActiveID = utils.StringPtr(agentID)
	if assignedAt.Valid {
		t := assignedAt.Time
		c.AssignedAt = &t
	}
	return c, nil
}

func (r *PostgresRepo) Get(ctx context.Context, workspaceID, id string) (Conversation, error) {
	q := `SELECT ` + conversationColumns + ` FROM conversations WHERE workspace_id = $1 AND id = $2`
	return scanConversation(r.db.QueryRowContext(ctx, q, workspaceID, id))
}

func (r *PostgresRepo) FindOpen(ctx context.Context, workspaceID, contactID, connectionID string) (Conversation, error) {
	q := `SELECT ` + conversationColumns + ` FROM conversations
WHERE workspace_id = $1 AND contact_id = $2 AND connection_id = $3 AND status = 'open'
ORDER BY created_at DESC
LIMIT 1`
	return scanConversation(r.db.QueryRowContext(ctx, q, workspaceID, contactID, connectionID))
}

func (r *PostgresRepo) Create(ctx context.Context, c Conversation) (Conversation, bool, error) {
	if c.WorkspaceID == "" || c.ContactID == "" || c.ConnectionID == "" {
		return Conversation{}, false, ErrInvalidArgument
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	q := `
INSERT INTO conversations (id, workspace_id, contact_id, connection_id, status,
  queue_id, agent_active_id, agente_ativo, created_at, updated_at)
VALUES ($1, $2, $3, $4, 'open', $5, $6, $7, $8, $8)
ON CONFLICT (contact_id, connection_id) WHERE status = 'open' DO NOTHING
RETURNING ` + conversationColumns
	created, err := scanConversation(r.db.QueryRowContext(ctx, q,
		c.ID, c.WorkspaceID, c.ContactID, c.ConnectionID,
		utils.NullString(c.QueueID), utils.NullString(c.AgentActiveID), c.AgentActive, now))
	if err == nil {
		return created, true, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Conversation{}, false, err
	}
	// DO NOTHING returned no row: someone else holds the open conversation.
	existing, err := r.FindOpen(ctx, c.WorkspaceID, c.ContactID, c.ConnectionID)
	if err != nil {
		return Conversation{}, false, err
	}
	return existing, false, nil
}

func (r *PostgresRepo) ApplyAssignment(ctx context.Context, workspaceID, id string, u AssignmentUpdate) (Conversation, error) {
	args := []any{workspaceID, id, u.UpdatedAt}
	sets := []string{"updated_at = $3"}
	set := func(col string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if u.SetQueue {
		set("queue_id", utils.NullString(u.QueueID))
	}
	if u.SetAgent {
		set("agent_active_id", utils.NullString(u.AgentActiveID))
		set("agente_ativo", u.AgentActive)
	}
	if u.SetUser {
		set("assigned_user_id", utils.NullString(u.AssignedUserID))
		if u.AssignedAt != nil {
			set("assigned_at", *u.AssignedAt)
		}
	}
	q := `UPDATE conversations SET ` + strings.Join(sets, ", ") + `
WHERE workspace_id = $1 AND id = $2
RETURNING ` + conversationColumns
	return scanConversation(r.db.QueryRowContext(ctx, q, args...))
}

func (r *PostgresRepo) GetQueue(ctx context.Context, workspaceID, id string) (Queue, error) {
	const q = `
SELECT id, workspace_id, name, ai_agent_id, COALESCE(distribution_type, 'nao_distribuir')
FROM queues
WHERE workspace_id = $1 AND id = $2
`
	var (
		out     Queue
		agentID sql.NullString
	)
	err := r.db.QueryRowContext(ctx, q, workspaceID, id).Scan(&out.ID, &out.WorkspaceID, &out.Name, &agentID, &out.DistributionType)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Queue{}, ErrNotFound
		}
		return Queue{}, err
	}
	out.AIAgentID = utils.StringPtr(agentID)

	const mq = `
SELECT user_id, COALESCE(weight, 1)
FROM queue_users
WHERE queue_id = $1
ORDER BY order_position ASC, user_id ASC
`
	rows, err := r.db.QueryContext(ctx, mq, id)
	if err != nil {
		return Queue{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var m QueueMember
		if err := rows.Scan(&m.UserID, &m.Weight); err != nil {
			return Queue{}, err
		}
		out.Members = append(out.Members, m)
	}
	return out, rows.Err()
}

const connectionColumns = `id, workspace_id, COALESCE(name, ''), default_queue_id, default_pipeline_id`

func scanConnection(row interface{ Scan(...any) error }) (Connection, error) {
	var (
		c                   Connection
		queueID, pipelineID sql.NullString
	)
	if err := row.Scan(&c.ID, &c.WorkspaceID, &c.Name, &queueID, &pipelineID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Connection{}, ErrNotFound
		}
		return Connection{}, err
	}
	c.DefaultQueueID = utils.StringPtr(queueID)
	c.DefaultPipelineID = utils.StringPtr(pipelineID)
	return c, nil
}

func (r *PostgresRepo) GetConnection(ctx context.Context, workspaceID, id string) (Connection, error) {
	q := `SELECT ` + connectionColumns + ` FROM connections WHERE workspace_id = $1 AND id = $2`
	return scanConnection(r.db.QueryRowContext(ctx, q, workspaceID, id))
}

func (r *PostgresRepo) LookupConnection(ctx context.Context, id string) (Connection, error) {
	q := `SELECT ` + connectionColumns + ` FROM connections WHERE id = $1`
	return scanConnection(r.db.QueryRowContext(ctx, q, id))
}
