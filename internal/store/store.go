// Package store is the PostgreSQL-backed persistence layer for users and
// channels, the external DB collaborator the rest of the system treats
// as a black box. It uses database/sql with github.com/lib/pq as the
// driver, matching the driver choice already present across the
// reference corpus's own persistence-layer code.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/chatmesh/chatmesh/internal/apperr"
)

// Schema is the DDL this package expects; applied out of band by an
// operator or migration tool, not by this package at runtime.
const Schema = `
CREATE TABLE IF NOT EXISTS users (
    id            TEXT PRIMARY KEY,
    name          TEXT NOT NULL,
    password_hash TEXT NOT NULL,
    created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS channels (
    id         SERIAL PRIMARY KEY,
    name       TEXT NOT NULL,
    limit_num  INT NOT NULL CHECK (limit_num >= 1),
    owner_id   TEXT NOT NULL REFERENCES users(id)
);
`

// User is a row of the users table.
type User struct {
	ID           string
	Name         string
	PasswordHash string
}

// Channel is a row of the channels table.
type Channel struct {
	ID      int64
	Name    string
	Limit   int
	OwnerID string
}

// Store wraps a *sql.DB with the queries the manager needs.
type Store struct {
	db *sql.DB
}

// Open connects to Postgres at dsn and bounds the pool to maxConns,
// matching the db.max_connections configuration option.
func Open(dsn string, maxConns int) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}
	if maxConns > 0 {
		db.SetMaxOpenConns(maxConns)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error { return s.db.Close() }

// CreateUser inserts a new user row. A duplicate id maps to a Validate
// error rather than a raw SQL error, so callers don't need to sniff
// driver-specific constraint-violation codes.
func (s *Store) CreateUser(ctx context.Context, id, name, passwordHash string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, name, password_hash) VALUES ($1, $2, $3)`,
		id, name, passwordHash,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperr.New(apperr.Validate, "user_id already registered")
		}
		return apperr.Wrap(apperr.DbError, "insert user", err)
	}
	return nil
}

// GetUser looks up a user by id.
func (s *Store) GetUser(ctx context.Context, id string) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, password_hash FROM users WHERE id = $1`, id,
	)
	var u User
	if err := row.Scan(&u.ID, &u.Name, &u.PasswordHash); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.New(apperr.UserNotFound, "no such user")
		}
		return nil, apperr.Wrap(apperr.DbError, "query user", err)
	}
	return &u, nil
}

// CreateChannel inserts a new channel row, returning it hydrated with
// its server-assigned id.
func (s *Store) CreateChannel(ctx context.Context, name string, limit int, ownerID string) (*Channel, error) {
	row := s.db.QueryRowContext(ctx,
		`INSERT INTO channels (name, limit_num, owner_id) VALUES ($1, $2, $3) RETURNING id`,
		name, limit, ownerID,
	)
	var id int64
	if err := row.Scan(&id); err != nil {
		return nil, apperr.Wrap(apperr.DbError, "insert channel", err)
	}
	return &Channel{ID: id, Name: name, Limit: limit, OwnerID: ownerID}, nil
}

// GetChannel looks up a channel by id.
func (s *Store) GetChannel(ctx context.Context, id int64) (*Channel, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, limit_num, owner_id FROM channels WHERE id = $1`, id,
	)
	var c Channel
	if err := row.Scan(&c.ID, &c.Name, &c.Limit, &c.OwnerID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.New(apperr.ChannelNotFound, "no such channel")
		}
		return nil, apperr.Wrap(apperr.DbError, "query channel", err)
	}
	return &c, nil
}

// ListChannels returns every channel, or just the one matching id if
// id != 0, matching the List RPC's "id == 0 means all" convention.
func (s *Store) ListChannels(ctx context.Context, id int64) ([]*Channel, error) {
	if id != 0 {
		c, err := s.GetChannel(ctx, id)
		if err != nil {
			if ae, ok := apperr.Of(err); ok && ae.Kind == apperr.ChannelNotFound {
				return []*Channel{}, nil
			}
			return nil, err
		}
		return []*Channel{c}, nil
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id, name, limit_num, owner_id FROM channels ORDER BY id`)
	if err != nil {
		return nil, apperr.Wrap(apperr.DbError, "list channels", err)
	}
	defer rows.Close()

	var out []*Channel
	for rows.Next() {
		var c Channel
		if err := rows.Scan(&c.ID, &c.Name, &c.Limit, &c.OwnerID); err != nil {
			return nil, apperr.Wrap(apperr.DbError, "scan channel", err)
		}
		out = append(out, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(apperr.DbError, "list channels", err)
	}
	return out, nil
}

// DeleteChannel removes channel id after checking requesterID owns it.
func (s *Store) DeleteChannel(ctx context.Context, id int64, requesterID string) error {
	c, err := s.GetChannel(ctx, id)
	if err != nil {
		return err
	}
	if c.OwnerID != requesterID {
		return apperr.New(apperr.PermissionDenied, "requester does not own this channel")
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM channels WHERE id = $1`, id); err != nil {
		return apperr.Wrap(apperr.DbError, "delete channel", err)
	}
	return nil
}

// isUniqueViolation reports whether err is a Postgres unique-constraint
// violation (SQLSTATE 23505), without importing lib/pq's error type
// directly at every call site.
func isUniqueViolation(err error) bool {
	return sqlStateIs(err, "23505")
}
