package cache

import (
	"context"
	"database/sql"
)

// PostgresUserLoader reads workspace_members joined with users.
type PostgresUserLoader struct {
	db *sql.DB
}

func NewPostgresUserLoader(db *sql.DB) *PostgresUserLoader { return &PostgresUserLoader{db: db} }

func (l *PostgresUserLoader) ListWorkspaceUsers(ctx context.Context, workspaceID string) ([]User, error) {
	const q = `
SELECT u.id, wm.workspace_id, COALESCE(u.name, ''), COALESCE(u.email, ''), wm.role, wm.is_active
FROM workspace_members wm
JOIN users u ON u.id = wm.user_id
WHERE wm.workspace_id = $1
ORDER BY u.name ASC, u.id ASC
`
	rows, err := l.db.QueryContext(ctx, q, workspaceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []User
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.WorkspaceID, &u.Name, &u.Email, &u.Role, &u.Active); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}
