package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/KeyWizardDev/keywizard/internal/apperror"
	"github.com/KeyWizardDev/keywizard/internal/model"
	"github.com/KeyWizardDev/keywizard/internal/repository"
)

// compile-time check that *Store implements repository.UserRepository
var _ repository.UserRepository = (*Store)(nil)

// Upsert inserts or updates a user based on their Google account ID.
//
// Unlike the SQLite version's two-step lookup, Postgres has first-class upsert
// syntax: INSERT ... ON CONFLICT (google_id) DO UPDATE. The RETURNING clause
// hands back the canonical id and created_at in the same round-trip, whether
// the row was inserted or updated — so the internal ID stays stable across
// logins without a separate SELECT.
func (s *Store) Upsert(ctx context.Context, user *model.User) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO users (google_id, username, email, avatar_url)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (google_id) DO UPDATE
		 SET username = EXCLUDED.username,
		     email = EXCLUDED.email,
		     avatar_url = EXCLUDED.avatar_url
		 RETURNING id, created_at`,
		user.GoogleID,
		user.Username,
		user.Email,
		user.AvatarURL,
	).Scan(&user.ID, &user.CreatedAt)
	if err != nil {
		return fmt.Errorf("postgres: upserting user: %w", err)
	}
	return nil
}

// GetUserByID retrieves a user by their internal ID.
// Returns apperror.ErrNotFound if no user exists with that ID.
func (s *Store) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	var u model.User

	err := s.pool.QueryRow(ctx,
		`SELECT id, google_id, username, email, avatar_url, created_at
		 FROM users WHERE id = $1`,
		id,
	).Scan(
		&u.ID,
		&u.GoogleID,
		&u.Username,
		&u.Email,
		&u.AvatarURL,
		&u.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperror.NotFound("user", id)
		}
		return nil, fmt.Errorf("postgres: getting user %d: %w", id, err)
	}

	return &u, nil
}
