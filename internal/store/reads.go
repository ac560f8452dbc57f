package store

import (
	"context"
	"fmt"
)

// MarkChannelRead moves the read marker of userID in channelID to now.
func (d *DB) MarkChannelRead(ctx context.Context, userID, channelID string) error {
	if _, err := d.db.ExecContext(ctx, `
		INSERT INTO channel_reads (user_id, channel_id, last_read_at) VALUES (?, ?, ?)
		ON CONFLICT(user_id, channel_id) DO UPDATE SET last_read_at = excluded.last_read_at
	`, userID, channelID, formatTime(d.timestamp())); err != nil {
		return fmt.Errorf("mark channel read: %w", err)
	}
	return nil
}

// MarkDMRead moves the read marker of userID in a direct conversation to now.
func (d *DB) MarkDMRead(ctx context.Context, userID, conversationID string) error {
	if _, err := d.db.ExecContext(ctx, `
		INSERT INTO dm_reads (user_id, dm_conversation_id, last_read_at) VALUES (?, ?, ?)
		ON CONFLICT(user_id, dm_conversation_id) DO UPDATE SET last_read_at = excluded.last_read_at
	`, userID, conversationID, formatTime(d.timestamp())); err != nil {
		return fmt.Errorf("mark dm read: %w", err)
	}
	return nil
}

// UnreadCounts returns, for every channel of a workspace visible to userID,
// the number of messages by other users created after the user's marker.
func (d *DB) UnreadCounts(ctx context.Context, workspaceID, userID string) ([]*UnreadCount, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT c.id,
		       COUNT(CASE WHEN m.created_at > COALESCE(cr.last_read_at, '') AND m.user_id != ? THEN 1 END)
		FROM channels c
		LEFT JOIN channel_reads cr ON cr.channel_id = c.id AND cr.user_id = ?
		LEFT JOIN messages m ON m.channel_id = c.id
		WHERE c.workspace_id = ?
		  AND (c.is_private = 0 OR EXISTS (
			SELECT 1 FROM channel_members cm WHERE cm.channel_id = c.id AND cm.user_id = ?))
		GROUP BY c.id
		ORDER BY c.name
	`, userID, userID, workspaceID, userID)
	if err != nil {
		return nil, fmt.Errorf("unread counts: %w", err)
	}
	defer rows.Close()

	out := make([]*UnreadCount, 0)
	for rows.Next() {
		var u UnreadCount
		if err := rows.Scan(&u.ChannelID, &u.UnreadCount); err != nil {
			return nil, err
		}
		out = append(out, &u)
	}
	return out, rows.Err()
}
