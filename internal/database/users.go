package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"chatrelay/internal/models"
)

const userColumns = `id, full_name, email, password_hash, token, created_at`

func scanUser(row interface{ Scan(...any) error }) (*models.User, error) {
	u := &models.User{}
	if err := row.Scan(&u.ID, &u.FullName, &u.Email, &u.PasswordHash, &u.Token, &u.CreatedAt); err != nil {
		return nil, err
	}
	return u, nil
}

// CreateUser inserts user. ErrDuplicateEmail is returned when the email is
// taken, compared case-insensitively.
func (d *Database) CreateUser(ctx context.Context, user *models.User) error {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	err := withRetry(ctx, "create user", func() error {
		_, err := d.db.ExecContext(ctx,
			`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
			user.ID, user.FullName, user.Email, user.PasswordHash, user.Token, user.CreatedAt,
		)
		return err
	})
	if isUniqueViolation(err) {
		return ErrDuplicateEmail
	}
	return err
}

// GetUserByID returns nil when no user has id.
func (d *Database) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	row := d.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// GetUserByEmail looks email up case-insensitively and returns nil when no
// user has it.
func (d *Database) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	row := d.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = ? COLLATE NOCASE`, email)
	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}
	return user, nil
}

// UpdateUserToken stores the most recently issued session token.
func (d *Database) UpdateUserToken(ctx context.Context, id, token string) error {
	return withRetry(ctx, "update user token", func() error {
		res, err := d.db.ExecContext(ctx, `UPDATE users SET token = ? WHERE id = ?`, token, id)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("user %s not found", id)
		}
		return nil
	})
}

// ListUsersExcept returns every user but excludeID, oldest first.
func (d *Database) ListUsersExcept(ctx context.Context, excludeID string) ([]models.User, error) {
	return d.queryUsers(ctx,
		`SELECT `+userColumns+` FROM users WHERE id != ? ORDER BY created_at, id`,
		excludeID,
	)
}

// SearchUsersByEmail returns users whose email contains term, ignoring case,
// excluding excludeID.
func (d *Database) SearchUsersByEmail(ctx context.Context, term, excludeID string) ([]models.User, error) {
	pattern := "%" + escapeLike(strings.ToLower(term)) + "%"
	return d.queryUsers(ctx,
		`SELECT `+userColumns+` FROM users
		 WHERE lower(email) LIKE ? ESCAPE '\' AND id != ?
		 ORDER BY email`,
		pattern, excludeID,
	)
}

func (d *Database) queryUsers(ctx context.Context, query string, args ...any) ([]models.User, error) {
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	users := make([]models.User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, *user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate users: %w", err)
	}
	return users, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
