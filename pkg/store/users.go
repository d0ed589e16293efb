// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/luxfi/flashbid/pkg/model"
)

const userColumns = `user_id, email, username, password_hash, weight, status, is_admin, created_at`

func scanUser(row pgx.Row) (*model.User, error) {
	var u model.User
	err := row.Scan(&u.UserID, &u.Email, &u.Username, &u.PasswordHash,
		&u.Weight, &u.Status, &u.IsAdmin, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: scan user: %w", err)
	}
	return &u, nil
}

// CreateUser inserts a new user. The unique email constraint maps to
// ErrEmailTaken.
func (s *Store) CreateUser(ctx context.Context, u *model.User) error {
	if u.UserID == uuid.Nil {
		u.UserID = uuid.New()
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO users (user_id, email, username, password_hash, weight, status, is_admin)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at`,
		u.UserID, u.Email, u.Username, u.PasswordHash, u.Weight, u.Status, u.IsAdmin)

	if err := row.Scan(&u.CreatedAt); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrEmailTaken
		}
		return fmt.Errorf("store: create user: %w", err)
	}
	return nil
}

// UserByEmail fetches a user by email.
func (s *Store) UserByEmail(ctx context.Context, email string) (*model.User, error) {
	return scanUser(s.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1`, email))
}

// UserByID fetches a user by id.
func (s *Store) UserByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	return scanUser(s.pool.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE user_id = $1`, id))
}
