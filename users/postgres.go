// Copyright (c) 2024-2025 Darcy Buskermolen <darcy@dbitech.ca>
// SPDX-License-Identifier: BSD-3-Clause

package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/VA7DBI/authAPI/config"
	"github.com/lib/pq"
)

// PostgresDirectory implements Directory on PostgreSQL. Both lookup queries
// take a single parameter and return, in order: id, username, password_hash,
// avatar, is_admin, is_verified, verification_type. The create query takes
// those columns minus id, in the same order, and returns the new id.
type PostgresDirectory struct {
	db          *sql.DB
	byIDQuery   string
	byNameQuery string
	createQuery string
}

// unique_violation
const pqUniqueViolation = "23505"

func NewPostgresDirectory(cfg *config.Config) (*PostgresDirectory, error) {
	connStr := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Auth.Postgres.Host,
		cfg.Auth.Postgres.Port,
		cfg.Auth.Postgres.User,
		cfg.Auth.Postgres.Password,
		cfg.Auth.Postgres.DBName,
		cfg.Auth.Postgres.SSLMode,
	)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("postgres connection failed: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}

	return newPostgresDirectory(db, cfg), nil
}

func newPostgresDirectory(db *sql.DB, cfg *config.Config) *PostgresDirectory {
	return &PostgresDirectory{
		db:          db,
		byIDQuery:   cfg.Auth.Postgres.UserByIDQuery,
		byNameQuery: cfg.Auth.Postgres.UserByNameQuery,
		createQuery: cfg.Auth.Postgres.CreateUserQuery,
	}
}

func (d *PostgresDirectory) GetByID(ctx context.Context, id string) (*User, error) {
	return d.queryUser(ctx, d.byIDQuery, id)
}

func (d *PostgresDirectory) GetByUsername(ctx context.Context, username string) (*User, error) {
	return d.queryUser(ctx, d.byNameQuery, username)
}

func (d *PostgresDirectory) Create(ctx context.Context, u *User) (*User, error) {
	var verification sql.NullString
	if u.VerificationType != nil {
		verification = sql.NullString{String: *u.VerificationType, Valid: true}
	}

	stored := *u
	err := d.db.QueryRowContext(ctx, d.createQuery,
		u.Username,
		u.PasswordHash,
		sql.NullString{String: u.Avatar, Valid: u.Avatar != ""},
		u.IsAdmin,
		u.IsVerified,
		verification,
	).Scan(&stored.ID)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
			return nil, ErrUsernameTaken
		}
		return nil, fmt.Errorf("user insert failed: %w", err)
	}
	return &stored, nil
}

func (d *PostgresDirectory) queryUser(ctx context.Context, query, arg string) (*User, error) {
	var (
		u            User
		avatar       sql.NullString
		verification sql.NullString
	)
	err := d.db.QueryRowContext(ctx, query, arg).Scan(
		&u.ID,
		&u.Username,
		&u.PasswordHash,
		&avatar,
		&u.IsAdmin,
		&u.IsVerified,
		&verification,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("user lookup failed: %w", err)
	}

	u.Avatar = avatar.String
	if verification.Valid {
		u.VerificationType = &verification.String
	}
	return &u, nil
}

func (d *PostgresDirectory) Close() error {
	return d.db.Close()
}
