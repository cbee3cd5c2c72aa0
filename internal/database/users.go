package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/mattn/go-sqlite3"

	"remindr/internal/models"
)

// CreateUser inserts a new user. A duplicate email returns models.ErrEmailTaken.
func (db *DB) CreateUser(ctx context.Context, u *models.User) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO users (id, name, email, password_hash, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		u.ID, u.Name, strings.ToLower(u.Email), u.PasswordHash, formatTime(u.CreatedAt))
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
			return models.ErrEmailTaken
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// GetUserByEmail looks a user up by email, case-insensitively.
func (db *DB) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return db.getUser(ctx, `SELECT id, name, email, password_hash, created_at FROM users WHERE email = ?`,
		strings.ToLower(email))
}

// GetUserByID looks a user up by id.
func (db *DB) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	return db.getUser(ctx, `SELECT id, name, email, password_hash, created_at FROM users WHERE id = ?`, id)
}

func (db *DB) getUser(ctx context.Context, query string, arg string) (*models.User, error) {
	var (
		u         models.User
		createdAt string
	)
	err := db.QueryRowContext(ctx, query, arg).Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	if u.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &u, nil
}
