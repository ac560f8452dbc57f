package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var slugDisallowed = regexp.MustCompile(`[^a-z0-9]+`)

func slugify(name string) string {
	s := slugDisallowed.ReplaceAllString(strings.ToLower(name), "-")
	s = strings.Trim(s, "-")
	if s == "" {
		s = "workspace"
	}
	return s
}

// CreateWorkspace creates a workspace owned by ownerID, adds the owner as a
// member and creates its #general channel.
func (d *DB) CreateWorkspace(ctx context.Context, name, description, ownerID string) (*Workspace, *Channel, error) {
	now := d.timestamp()
	ws := &Workspace{
		ID:          newID(),
		Name:        name,
		Slug:        slugify(name) + "-" + newID()[:8],
		Description: description,
		OwnerID:     ownerID,
		CreatedAt:   now,
	}
	general := &Channel{
		ID:          newID(),
		WorkspaceID: ws.ID,
		Name:        "general",
		Description: "This is the one channel that will always include everyone.",
		CreatedBy:   ownerID,
		CreatedAt:   now,
	}

	err := d.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO workspaces (id, name, slug, description, owner_id, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, ws.ID, ws.Name, ws.Slug, ws.Description, ws.OwnerID, formatTime(now)); err != nil {
			return fmt.Errorf("insert workspace: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO workspace_members (workspace_id, user_id, role, joined_at)
			VALUES (?, ?, 'owner', ?)
		`, ws.ID, ownerID, formatTime(now)); err != nil {
			return fmt.Errorf("insert owner membership: %w", err)
		}
		if err := insertChannel(ctx, tx, general); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("create workspace %s: %w", name, err)
	}
	return ws, general, nil
}

// GetWorkspace returns a workspace by id.
func (d *DB) GetWorkspace(ctx context.Context, id string) (*Workspace, error) {
	var (
		ws      Workspace
		created string
	)
	err := d.db.QueryRowContext(ctx, `
		SELECT id, name, slug, description, owner_id, created_at
		FROM workspaces WHERE id = ?
	`, id).Scan(&ws.ID, &ws.Name, &ws.Slug, &ws.Description, &ws.OwnerID, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get workspace %s: %w", id, err)
	}
	ws.CreatedAt = parseTime(created)
	return &ws, nil
}

// ListWorkspaces returns the workspaces userID belongs to.
func (d *DB) ListWorkspaces(ctx context.Context, userID string) ([]*Workspace, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT w.id, w.name, w.slug, w.description, w.owner_id, w.created_at
		FROM workspaces w
		JOIN workspace_members wm ON wm.workspace_id = w.id
		WHERE wm.user_id = ?
		ORDER BY w.created_at
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list workspaces: %w", err)
	}
	defer rows.Close()

	var out []*Workspace
	for rows.Next() {
		var (
			ws      Workspace
			created string
		)
		if err := rows.Scan(&ws.ID, &ws.Name, &ws.Slug, &ws.Description, &ws.OwnerID, &created); err != nil {
			return nil, err
		}
		ws.CreatedAt = parseTime(created)
		out = append(out, &ws)
	}
	return out, rows.Err()
}

// WorkspaceIDsForUser returns the ids of all workspaces userID belongs to.
func (d *DB) WorkspaceIDsForUser(ctx context.Context, userID string) ([]string, error) {
	rows, err := d.db.QueryContext(ctx,
		"SELECT workspace_id FROM workspace_members WHERE user_id = ?", userID)
	if err != nil {
		return nil, fmt.Errorf("list workspace ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// AddWorkspaceMember adds userID to a workspace and to all of its public
// channels. Adding an existing member is a no-op.
func (d *DB) AddWorkspaceMember(ctx context.Context, workspaceID, userID string) error {
	err := d.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO workspace_members (workspace_id, user_id, role, joined_at)
			VALUES (?, ?, 'member', ?)
		`, workspaceID, userID, formatTime(d.timestamp())); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO channel_members (channel_id, user_id)
			SELECT id, ? FROM channels WHERE workspace_id = ? AND is_private = 0
		`, userID, workspaceID)
		return err
	})
	if err != nil {
		return fmt.Errorf("add workspace member: %w", err)
	}
	return nil
}

// IsWorkspaceMember reports whether userID belongs to workspaceID.
func (d *DB) IsWorkspaceMember(ctx context.Context, workspaceID, userID string) (bool, error) {
	var n int
	err := d.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM workspace_members WHERE workspace_id = ? AND user_id = ?",
		workspaceID, userID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check workspace member: %w", err)
	}
	return n > 0, nil
}
