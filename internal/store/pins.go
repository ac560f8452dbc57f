package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// PinMessage records that userID pinned a message in its own conversation.
// Pinning an already pinned message keeps the original record.
func (d *DB) PinMessage(ctx context.Context, messageID, userID string) (*Pin, error) {
	msg, err := d.GetMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	p := &Pin{
		MessageID:        msg.ID,
		ChannelID:        msg.ChannelID,
		DMConversationID: msg.DMConversationID,
		PinnedBy:         userID,
		PinnedAt:         d.timestamp(),
	}
	if _, err := d.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO pinned_messages (message_id, channel_id, dm_conversation_id, pinned_by_user_id, pinned_at)
		VALUES (?, ?, ?, ?, ?)
	`, p.MessageID, nullString(p.ChannelID), nullString(p.DMConversationID), p.PinnedBy, formatTime(p.PinnedAt)); err != nil {
		return nil, fmt.Errorf("pin message %s: %w", messageID, err)
	}
	return d.GetPin(ctx, messageID)
}

// UnpinMessage removes the pin record of a message, if any.
func (d *DB) UnpinMessage(ctx context.Context, messageID string) error {
	if _, err := d.db.ExecContext(ctx, "DELETE FROM pinned_messages WHERE message_id = ?", messageID); err != nil {
		return fmt.Errorf("unpin message %s: %w", messageID, err)
	}
	return nil
}

// GetPin returns the pin record of a message.
func (d *DB) GetPin(ctx context.Context, messageID string) (*Pin, error) {
	var (
		p           Pin
		channelID   sql.NullString
		dmID        sql.NullString
		pinnedAtStr string
	)
	err := d.db.QueryRowContext(ctx, `
		SELECT message_id, channel_id, dm_conversation_id, pinned_by_user_id, pinned_at
		FROM pinned_messages WHERE message_id = ?
	`, messageID).Scan(&p.MessageID, &channelID, &dmID, &p.PinnedBy, &pinnedAtStr)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get pin %s: %w", messageID, err)
	}
	p.ChannelID = channelID.String
	p.DMConversationID = dmID.String
	p.PinnedAt = parseTime(pinnedAtStr)
	return &p, nil
}

// ListChannelPins returns the pinned messages of a channel, newest pin first.
func (d *DB) ListChannelPins(ctx context.Context, channelID string) ([]*PinnedMessage, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT `+messageViewColumns+`, p.pinned_at, p.pinned_by_user_id, COALESCE(pu.username, '')
		FROM pinned_messages p
		JOIN messages m ON m.id = p.message_id
		LEFT JOIN users u ON u.id = m.user_id
		LEFT JOIN users pu ON pu.id = p.pinned_by_user_id
		WHERE p.channel_id = ?
		ORDER BY p.pinned_at DESC
	`, channelID)
	if err != nil {
		return nil, fmt.Errorf("list pins: %w", err)
	}
	defer rows.Close()

	out := make([]*PinnedMessage, 0)
	for rows.Next() {
		var (
			pm       PinnedMessage
			pinnedAt string
		)
		v, err := scanMessageView(pinScanner{rows: rows, extra: []any{&pinnedAt, &pm.PinnedBy, &pm.PinnedByUsername}})
		if err != nil {
			return nil, err
		}
		pm.MessageView = *v
		pm.PinnedAt = parseTime(pinnedAt)
		out = append(out, &pm)
	}
	return out, rows.Err()
}

// pinScanner appends the pin columns to a message view scan.
type pinScanner struct {
	rows  *sql.Rows
	extra []any
}

func (s pinScanner) Scan(dest ...any) error {
	return s.rows.Scan(append(dest, s.extra...)...)
}
