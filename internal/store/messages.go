package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"time"
)

const messageViewColumns = `
	m.id, m.channel_id, m.dm_conversation_id, m.thread_id, m.user_id, m.content,
	m.file_url, m.file_name, m.created_at, m.edited_at,
	COALESCE(u.username, 'User'), COALESCE(u.avatar, ''),
	(SELECT COUNT(*) FROM messages r WHERE r.thread_id = m.id)`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessageView(row rowScanner) (*MessageView, error) {
	var (
		v                       MessageView
		channelID, dmID, thread sql.NullString
		fileURL, fileName       sql.NullString
		created                 string
		edited                  sql.NullString
	)
	if err := row.Scan(&v.ID, &channelID, &dmID, &thread, &v.UserID, &v.Content,
		&fileURL, &fileName, &created, &edited,
		&v.Username, &v.Avatar, &v.ReplyCount); err != nil {
		return nil, err
	}
	v.ChannelID = channelID.String
	v.DMConversationID = dmID.String
	v.ThreadID = thread.String
	v.FileURL = fileURL.String
	v.FileName = fileName.String
	v.CreatedAt = parseTime(created)
	if edited.Valid {
		t := parseTime(edited.String)
		v.EditedAt = &t
	}
	return &v, nil
}

// CreateMessage persists m with a fresh id and a server-assigned creation
// time, overwriting whatever the caller put in those fields.
func (d *DB) CreateMessage(ctx context.Context, m *Message) error {
	if (m.ChannelID == "") == (m.DMConversationID == "") {
		return fmt.Errorf("create message: exactly one of channel and dm conversation required")
	}
	m.ID = newID()
	m.CreatedAt = d.timestamp()
	m.EditedAt = nil

	_, err := d.db.ExecContext(ctx, `
		INSERT INTO messages (id, channel_id, dm_conversation_id, thread_id, user_id, content, file_url, file_name, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, m.ID, nullString(m.ChannelID), nullString(m.DMConversationID), nullString(m.ThreadID),
		m.UserID, m.Content, nullString(m.FileURL), nullString(m.FileName), formatTime(m.CreatedAt))
	if err != nil {
		return fmt.Errorf("create message: %w", err)
	}
	d.log.Debug("message_saved", "id", m.ID, "user", m.UserID)
	return nil
}

// GetMessage returns a message with its author's display fields.
func (d *DB) GetMessage(ctx context.Context, id string) (*MessageView, error) {
	v, err := scanMessageView(d.db.QueryRowContext(ctx, `
		SELECT `+messageViewColumns+`
		FROM messages m LEFT JOIN users u ON u.id = m.user_id
		WHERE m.id = ?
	`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get message %s: %w", id, err)
	}
	return v, nil
}

// UpdateMessageContent replaces a message's content and stamps its edit
// time, returning that time.
func (d *DB) UpdateMessageContent(ctx context.Context, id, content string) (time.Time, error) {
	editedAt := d.timestamp()
	res, err := d.db.ExecContext(ctx,
		"UPDATE messages SET content = ?, edited_at = ? WHERE id = ?",
		content, formatTime(editedAt), id)
	if err != nil {
		return time.Time{}, fmt.Errorf("update message %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return time.Time{}, ErrNotFound
	}
	return editedAt, nil
}

// DeleteMessage removes a message together with its reactions, its pin
// record and its thread replies (with their own reactions and pins). It
// returns the ids of the replies removed with it.
func (d *DB) DeleteMessage(ctx context.Context, id string) ([]string, error) {
	var replies []string
	err := d.withTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, "SELECT id FROM messages WHERE thread_id = ? ORDER BY created_at", id)
		if err != nil {
			return err
		}
		for rows.Next() {
			var rid string
			if err := rows.Scan(&rid); err != nil {
				_ = rows.Close()
				return err
			}
			replies = append(replies, rid)
		}
		if err := rows.Err(); err != nil {
			_ = rows.Close()
			return err
		}
		if err := rows.Close(); err != nil {
			return err
		}

		steps := []string{
			"DELETE FROM message_reactions WHERE message_id = ? OR message_id IN (SELECT id FROM messages WHERE thread_id = ?)",
			"DELETE FROM pinned_messages WHERE message_id = ? OR message_id IN (SELECT id FROM messages WHERE thread_id = ?)",
			"DELETE FROM messages WHERE thread_id = ? OR id = ?",
		}
		for i, q := range steps {
			res, err := tx.ExecContext(ctx, q, id, id)
			if err != nil {
				return err
			}
			if i == len(steps)-1 {
				if n, _ := res.RowsAffected(); n == 0 {
					return ErrNotFound
				}
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("delete message %s: %w", id, err)
	}
	return replies, nil
}

// ListChannelMessages returns the most recent top-level messages of a
// channel in ascending creation order.
func (d *DB) ListChannelMessages(ctx context.Context, channelID string, limit int) ([]*MessageView, error) {
	return d.listMessages(ctx, "m.channel_id = ? AND m.thread_id IS NULL", channelID, limit)
}

// ListDMMessages returns the most recent top-level messages of a direct
// conversation in ascending creation order.
func (d *DB) ListDMMessages(ctx context.Context, conversationID string, limit int) ([]*MessageView, error) {
	return d.listMessages(ctx, "m.dm_conversation_id = ? AND m.thread_id IS NULL", conversationID, limit)
}

// ListThreadReplies returns the replies to a parent message in ascending
// creation order.
func (d *DB) ListThreadReplies(ctx context.Context, parentID string, limit int) ([]*MessageView, error) {
	return d.listMessages(ctx, "m.thread_id = ?", parentID, limit)
}

func (d *DB) listMessages(ctx context.Context, where, arg string, limit int) ([]*MessageView, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := d.db.QueryContext(ctx, `
		SELECT `+messageViewColumns+`
		FROM messages m LEFT JOIN users u ON u.id = m.user_id
		WHERE `+where+`
		ORDER BY m.created_at DESC, m.rowid DESC
		LIMIT ?
	`, arg, limit)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	out := make([]*MessageView, 0)
	for rows.Next() {
		v, err := scanMessageView(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	slices.Reverse(out)
	return out, nil
}
