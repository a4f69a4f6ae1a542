package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"fixly/internal/models"
)

func (db *DB) CreateUser(ctx context.Context, user *models.User) error {
	query := `INSERT INTO users (id, name, phone, role, created_at, updated_at)
              VALUES (?, ?, ?, ?, ?, ?)`
	now := time.Now()
	_, err := db.ExecContext(ctx, query,
		user.ID,
		user.Name,
		user.Phone,
		user.Role,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	user.CreatedAt = now
	user.UpdatedAt = now
	return nil
}

func (db *DB) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT id, name, phone, role, created_at, updated_at
              FROM users WHERE id = ?`

	var u models.User
	err := db.QueryRowContext(ctx, query, id).Scan(
		&u.ID, &u.Name, &u.Phone, &u.Role, &u.CreatedAt, &u.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &u, nil
}

func (db *DB) UpdateUserRole(ctx context.Context, id, role string) error {
	query := `UPDATE users SET role = ?, updated_at = ? WHERE id = ?`
	_, err := db.ExecContext(ctx, query, role, time.Now(), id)
	return err
}
