package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

func insertChannel(ctx context.Context, tx *sql.Tx, ch *Channel) error {
	private := 0
	if ch.IsPrivate {
		private = 1
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO channels (id, workspace_id, name, description, topic, is_private, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, ch.ID, ch.WorkspaceID, ch.Name, ch.Description, ch.Topic, private, ch.CreatedBy, formatTime(ch.CreatedAt)); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert channel %s: %w", ch.Name, ErrConflict)
		}
		return fmt.Errorf("insert channel %s: %w", ch.Name, err)
	}

	// Public channels include every workspace member; private ones start
	// with just the creator.
	if ch.IsPrivate {
		_, err := tx.ExecContext(ctx,
			"INSERT OR IGNORE INTO channel_members (channel_id, user_id) VALUES (?, ?)",
			ch.ID, ch.CreatedBy)
		return err
	}
	_, err := tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO channel_members (channel_id, user_id)
		SELECT ?, user_id FROM workspace_members WHERE workspace_id = ?
	`, ch.ID, ch.WorkspaceID)
	return err
}

// CreateChannel creates a channel in a workspace.
func (d *DB) CreateChannel(ctx context.Context, workspaceID, name, description string, private bool, createdBy string) (*Channel, error) {
	ch := &Channel{
		ID:          newID(),
		WorkspaceID: workspaceID,
		Name:        name,
		Description: description,
		IsPrivate:   private,
		CreatedBy:   createdBy,
		CreatedAt:   d.timestamp(),
	}
	if err := d.withTx(ctx, func(tx *sql.Tx) error {
		return insertChannel(ctx, tx, ch)
	}); err != nil {
		return nil, err
	}
	return ch, nil
}

// GetChannel returns a channel by id.
func (d *DB) GetChannel(ctx context.Context, id string) (*Channel, error) {
	var (
		ch      Channel
		private int
		created string
	)
	err := d.db.QueryRowContext(ctx, `
		SELECT id, workspace_id, name, description, topic, is_private, created_by, created_at
		FROM channels WHERE id = ?
	`, id).Scan(&ch.ID, &ch.WorkspaceID, &ch.Name, &ch.Description, &ch.Topic, &private, &ch.CreatedBy, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get channel %s: %w", id, err)
	}
	ch.IsPrivate = private != 0
	ch.CreatedAt = parseTime(created)
	return &ch, nil
}

// ListChannels returns the channels of a workspace visible to userID:
// every public channel plus the private ones userID is a member of.
func (d *DB) ListChannels(ctx context.Context, workspaceID, userID string) ([]*Channel, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT c.id, c.workspace_id, c.name, c.description, c.topic, c.is_private, c.created_by, c.created_at
		FROM channels c
		WHERE c.workspace_id = ?
		  AND (c.is_private = 0 OR EXISTS (
			SELECT 1 FROM channel_members cm WHERE cm.channel_id = c.id AND cm.user_id = ?))
		ORDER BY c.name
	`, workspaceID, userID)
	if err != nil {
		return nil, fmt.Errorf("list channels: %w", err)
	}
	defer rows.Close()

	var out []*Channel
	for rows.Next() {
		var (
			ch      Channel
			private int
			created string
		)
		if err := rows.Scan(&ch.ID, &ch.WorkspaceID, &ch.Name, &ch.Description, &ch.Topic, &private, &ch.CreatedBy, &created); err != nil {
			return nil, err
		}
		ch.IsPrivate = private != 0
		ch.CreatedAt = parseTime(created)
		out = append(out, &ch)
	}
	return out, rows.Err()
}

// AddChannelMember adds userID to a channel. Existing members are ignored.
func (d *DB) AddChannelMember(ctx context.Context, channelID, userID string) error {
	if _, err := d.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO channel_members (channel_id, user_id) VALUES (?, ?)",
		channelID, userID); err != nil {
		return fmt.Errorf("add channel member: %w", err)
	}
	return nil
}

// CanAccessChannel reports whether userID may read channelID: explicit
// channel members always can; public channels are open to every member of
// the owning workspace. A missing channel yields ErrNotFound.
func (d *DB) CanAccessChannel(ctx context.Context, channelID, userID string) (bool, error) {
	var ok int
	err := d.db.QueryRowContext(ctx, `
		SELECT CASE
			WHEN EXISTS (SELECT 1 FROM channel_members WHERE channel_id = c.id AND user_id = ?) THEN 1
			WHEN c.is_private = 0 AND EXISTS (
				SELECT 1 FROM workspace_members WHERE workspace_id = c.workspace_id AND user_id = ?) THEN 1
			ELSE 0 END
		FROM channels c WHERE c.id = ?
	`, userID, userID, channelID).Scan(&ok)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, ErrNotFound
		}
		return false, fmt.Errorf("check channel access: %w", err)
	}
	return ok == 1, nil
}

// CreateDMConversation returns the conversation between two users, creating
// it when it does not exist yet. The pair is unordered.
func (d *DB) CreateDMConversation(ctx context.Context, userA, userB string) (*DMConversation, error) {
	u1, u2 := userA, userB
	if u2 < u1 {
		u1, u2 = u2, u1
	}
	if existing, err := d.findDM(ctx, u1, u2); err == nil {
		return existing, nil
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	c := &DMConversation{ID: newID(), User1ID: u1, User2ID: u2, CreatedAt: d.timestamp()}
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO dm_conversations (id, user1_id, user2_id, created_at) VALUES (?, ?, ?, ?)
	`, c.ID, c.User1ID, c.User2ID, formatTime(c.CreatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return d.findDM(ctx, u1, u2)
		}
		return nil, fmt.Errorf("create dm conversation: %w", err)
	}
	return c, nil
}

func (d *DB) findDM(ctx context.Context, u1, u2 string) (*DMConversation, error) {
	return scanDM(d.db.QueryRowContext(ctx, `
		SELECT id, user1_id, user2_id, created_at FROM dm_conversations
		WHERE user1_id = ? AND user2_id = ?
	`, u1, u2))
}

// GetDMConversation returns a DM conversation by id.
func (d *DB) GetDMConversation(ctx context.Context, id string) (*DMConversation, error) {
	return scanDM(d.db.QueryRowContext(ctx, `
		SELECT id, user1_id, user2_id, created_at FROM dm_conversations WHERE id = ?
	`, id))
}

func scanDM(row *sql.Row) (*DMConversation, error) {
	var (
		c       DMConversation
		created string
	)
	if err := row.Scan(&c.ID, &c.User1ID, &c.User2ID, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get dm conversation: %w", err)
	}
	c.CreatedAt = parseTime(created)
	return &c, nil
}

// ListDMConversations returns every conversation userID participates in.
func (d *DB) ListDMConversations(ctx context.Context, userID string) ([]*DMConversation, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT id, user1_id, user2_id, created_at FROM dm_conversations
		WHERE user1_id = ? OR user2_id = ?
		ORDER BY created_at DESC
	`, userID, userID)
	if err != nil {
		return nil, fmt.Errorf("list dm conversations: %w", err)
	}
	defer rows.Close()

	var out []*DMConversation
	for rows.Next() {
		var (
			c       DMConversation
			created string
		)
		if err := rows.Scan(&c.ID, &c.User1ID, &c.User2ID, &created); err != nil {
			return nil, err
		}
		c.CreatedAt = parseTime(created)
		out = append(out, &c)
	}
	return out, rows.Err()
}

// IsDMParticipant reports whether userID is one of the two participants of
// conversationID. A missing conversation yields ErrNotFound.
func (d *DB) IsDMParticipant(ctx context.Context, conversationID, userID string) (bool, error) {
	c, err := d.GetDMConversation(ctx, conversationID)
	if err != nil {
		return false, err
	}
	return c.User1ID == userID || c.User2ID == userID, nil
}
