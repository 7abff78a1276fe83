package database

import (
	"context"
	"fmt"
	"time"

	"chatrelay/internal/models"
)

// CreateMessage stores msg, encrypting its body when encryption is enabled.
func (d *Database) CreateMessage(ctx context.Context, msg *models.Message) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	body, err := d.encryptor.Encrypt(msg.Body)
	if err != nil {
		return fmt.Errorf("failed to encrypt message body: %w", err)
	}

	return withRetry(ctx, "create message", func() error {
		_, err := d.db.ExecContext(ctx,
			`INSERT INTO messages (id, conversation_id, sender_id, body, created_at) VALUES (?, ?, ?, ?, ?)`,
			msg.ID, msg.ConversationID, msg.SenderID, body, msg.CreatedAt,
		)
		return err
	})
}

// ListMessages returns a conversation's messages in the order they were
// stored.
func (d *Database) ListMessages(ctx context.Context, conversationID string) ([]models.Message, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT id, conversation_id, sender_id, body, created_at FROM messages
		 WHERE conversation_id = ?
		 ORDER BY created_at, rowid`,
		conversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	msgs := make([]models.Message, 0)
	for rows.Next() {
		var m models.Message
		var body string
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.SenderID, &body, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		m.Body, err = d.encryptor.Decrypt(body)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt message %s: %w", m.ID, err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate messages: %w", err)
	}
	return msgs, nil
}
