package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// SetOnline upserts the presence record of userID to online and refreshes
// its last activity, leaving any custom status untouched.
func (d *DB) SetOnline(ctx context.Context, userID string) (*Presence, error) {
	return d.setStatusOnly(ctx, userID, StatusOnline)
}

// SetOffline upserts the presence record of userID to offline.
func (d *DB) SetOffline(ctx context.Context, userID string) (*Presence, error) {
	return d.setStatusOnly(ctx, userID, StatusOffline)
}

func (d *DB) setStatusOnly(ctx context.Context, userID, status string) (*Presence, error) {
	now := formatTime(d.timestamp())
	if _, err := d.db.ExecContext(ctx, `
		INSERT INTO user_presence (user_id, status, last_activity)
		VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			status = excluded.status,
			last_activity = excluded.last_activity
	`, userID, status, now); err != nil {
		return nil, fmt.Errorf("set presence %s: %w", status, err)
	}
	return d.GetPresence(ctx, userID)
}

// SetStatus upserts the full presence record of userID.
func (d *DB) SetStatus(ctx context.Context, userID, status, customStatus, emoji string) (*Presence, error) {
	if status == "" {
		status = StatusOnline
	}
	if _, err := d.db.ExecContext(ctx, `
		INSERT INTO user_presence (user_id, status, custom_status, status_emoji, last_activity)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			status = excluded.status,
			custom_status = excluded.custom_status,
			status_emoji = excluded.status_emoji,
			last_activity = excluded.last_activity
	`, userID, status, customStatus, emoji, formatTime(d.timestamp())); err != nil {
		return nil, fmt.Errorf("set status: %w", err)
	}
	return d.GetPresence(ctx, userID)
}

// GetPresence returns the presence record of userID.
func (d *DB) GetPresence(ctx context.Context, userID string) (*Presence, error) {
	var (
		p    Presence
		last string
	)
	err := d.db.QueryRowContext(ctx, `
		SELECT user_id, status, custom_status, status_emoji, last_activity
		FROM user_presence WHERE user_id = ?
	`, userID).Scan(&p.UserID, &p.Status, &p.CustomStatus, &p.StatusEmoji, &last)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get presence: %w", err)
	}
	p.LastActivity = parseTime(last)
	return &p, nil
}

// ListWorkspacePresence returns every member of a workspace with their
// presence. Members without a record are reported offline.
func (d *DB) ListWorkspacePresence(ctx context.Context, workspaceID string) ([]*MemberPresence, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT u.id, u.username, u.avatar,
		       COALESCE(p.status, 'offline'), COALESCE(p.custom_status, ''),
		       COALESCE(p.status_emoji, ''), p.last_activity
		FROM workspace_members wm
		JOIN users u ON u.id = wm.user_id
		LEFT JOIN user_presence p ON p.user_id = u.id
		WHERE wm.workspace_id = ?
		ORDER BY u.username
	`, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("list presence: %w", err)
	}
	defer rows.Close()

	out := make([]*MemberPresence, 0)
	for rows.Next() {
		var (
			m    MemberPresence
			last sql.NullString
		)
		if err := rows.Scan(&m.UserID, &m.Username, &m.Avatar, &m.Status, &m.CustomStatus, &m.StatusEmoji, &last); err != nil {
			return nil, err
		}
		if last.Valid {
			t := parseTime(last.String)
			m.LastActivity = &t
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}
