package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"chatrelay/internal/models"
)

const conversationColumns = `id, member_a, member_b, created_at`

func scanConversation(row interface{ Scan(...any) error }) (*models.Conversation, error) {
	c := &models.Conversation{}
	if err := row.Scan(&c.ID, &c.Members[0], &c.Members[1], &c.CreatedAt); err != nil {
		return nil, err
	}
	return c, nil
}

func (d *Database) CreateConversation(ctx context.Context, conv *models.Conversation) error {
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = time.Now().UTC()
	}

	return withRetry(ctx, "create conversation", func() error {
		_, err := d.db.ExecContext(ctx,
			`INSERT INTO conversations (`+conversationColumns+`) VALUES (?, ?, ?, ?)`,
			conv.ID, conv.Members[0], conv.Members[1], conv.CreatedAt,
		)
		return err
	})
}

// GetConversation returns nil when id is unknown.
func (d *Database) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	row := d.db.QueryRowContext(ctx, `SELECT `+conversationColumns+` FROM conversations WHERE id = ?`, id)
	conv, err := scanConversation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	return conv, nil
}

// FindConversation returns the oldest conversation between a and b in either
// member order, or nil.
func (d *Database) FindConversation(ctx context.Context, a, b string) (*models.Conversation, error) {
	row := d.db.QueryRowContext(ctx,
		`SELECT `+conversationColumns+` FROM conversations
		 WHERE (member_a = ? AND member_b = ?) OR (member_a = ? AND member_b = ?)
		 ORDER BY created_at, id LIMIT 1`,
		a, b, b, a,
	)
	conv, err := scanConversation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find conversation: %w", err)
	}
	return conv, nil
}

// ListConversationsForUser returns every conversation userID is a member of.
func (d *Database) ListConversationsForUser(ctx context.Context, userID string) ([]models.Conversation, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT `+conversationColumns+` FROM conversations
		 WHERE member_a = ? OR member_b = ?
		 ORDER BY created_at, id`,
		userID, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	convs := make([]models.Conversation, 0)
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		convs = append(convs, *conv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate conversations: %w", err)
	}
	return convs, nil
}
