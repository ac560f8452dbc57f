package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ToggleReaction adds the (message, user, emoji) reaction, or removes it
// when it already exists. It reports whether the reaction was removed.
func (d *DB) ToggleReaction(ctx context.Context, messageID, userID, emoji string) (*Reaction, bool, error) {
	var (
		r       *Reaction
		removed bool
	)
	err := d.withTx(ctx, func(tx *sql.Tx) error {
		var existing string
		err := tx.QueryRowContext(ctx, `
			SELECT id FROM message_reactions WHERE message_id = ? AND user_id = ? AND emoji = ?
		`, messageID, userID, emoji).Scan(&existing)
		switch {
		case err == nil:
			if _, err := tx.ExecContext(ctx, "DELETE FROM message_reactions WHERE id = ?", existing); err != nil {
				return err
			}
			removed = true
			r = &Reaction{ID: existing, MessageID: messageID, UserID: userID, Emoji: emoji}
			return nil
		case !errors.Is(err, sql.ErrNoRows):
			return err
		}

		r = &Reaction{ID: newID(), MessageID: messageID, UserID: userID, Emoji: emoji, CreatedAt: d.timestamp()}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO message_reactions (id, message_id, user_id, emoji, created_at) VALUES (?, ?, ?, ?, ?)
		`, r.ID, r.MessageID, r.UserID, r.Emoji, formatTime(r.CreatedAt))
		return err
	})
	if err != nil {
		return nil, false, fmt.Errorf("toggle reaction: %w", err)
	}
	return r, removed, nil
}

// ListReactions returns the reactions of a message grouped by emoji.
func (d *DB) ListReactions(ctx context.Context, messageID string) (map[string][]*Reaction, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT r.id, r.message_id, r.user_id, COALESCE(u.username, ''), r.emoji, r.created_at
		FROM message_reactions r LEFT JOIN users u ON u.id = r.user_id
		WHERE r.message_id = ?
		ORDER BY r.created_at
	`, messageID)
	if err != nil {
		return nil, fmt.Errorf("list reactions: %w", err)
	}
	defer rows.Close()

	grouped := make(map[string][]*Reaction)
	for rows.Next() {
		var (
			r       Reaction
			created string
		)
		if err := rows.Scan(&r.ID, &r.MessageID, &r.UserID, &r.Username, &r.Emoji, &created); err != nil {
			return nil, err
		}
		r.CreatedAt = parseTime(created)
		grouped[r.Emoji] = append(grouped[r.Emoji], &r)
	}
	return grouped, rows.Err()
}
