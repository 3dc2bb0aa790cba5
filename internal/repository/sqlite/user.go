package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/KeyWizardDev/keywizard/internal/apperror"
	"github.com/KeyWizardDev/keywizard/internal/model"
	"github.com/KeyWizardDev/keywizard/internal/repository"
)

// compile-time check that *DB implements repository.UserRepository
var _ repository.UserRepository = (*DB)(nil)

// Upsert inserts or updates a user based on their Google account ID.
//
// A user row is created exactly once — on the first successful login — and is
// never deleted. On every later login we refresh the mutable profile fields
// (username, email, avatar) in case the user changed them on Google. The
// internal ID and created_at never change.
//
// We look up the existing row first rather than using INSERT OR REPLACE:
// REPLACE would delete-and-reinsert, which both changes the rowid and, with
// foreign keys on, would cascade into packages rows. The two-step form keeps
// the internal ID stable, which every issued JWT depends on.
func (db *DB) Upsert(ctx context.Context, user *model.User) error {
	var (
		existingID int64
		createdAt  time.Time
	)
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, created_at FROM users WHERE google_id = ?`, user.GoogleID,
	).Scan(&existingID, &createdAt)

	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("sqlite: looking up user by google_id: %w", err)
	}

	if existingID != 0 {
		// Returning user — refresh their profile in case it changed on Google
		user.ID = existingID
		user.CreatedAt = createdAt
		_, err = db.conn.ExecContext(ctx,
			`UPDATE users SET username = ?, email = ?, avatar_url = ?
			 WHERE id = ?`,
			user.Username,
			user.Email,
			user.AvatarURL,
			user.ID,
		)
		if err != nil {
			return fmt.Errorf("sqlite: updating user %d: %w", user.ID, err)
		}
		return nil
	}

	// First login — INSERT and read back the generated integer key
	user.CreatedAt = time.Now()
	result, err := db.conn.ExecContext(ctx,
		`INSERT INTO users (google_id, username, email, avatar_url, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		user.GoogleID,
		user.Username,
		user.Email,
		user.AvatarURL,
		user.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting user: %w", err)
	}

	// LastInsertId returns the AUTOINCREMENT key the engine assigned.
	user.ID, err = result.LastInsertId()
	if err != nil {
		return fmt.Errorf("sqlite: reading new user id: %w", err)
	}

	return nil
}

// GetUserByID retrieves a user by their internal ID.
// Returns apperror.ErrNotFound if no user exists with that ID.
func (db *DB) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	var u model.User

	err := db.conn.QueryRowContext(ctx,
		`SELECT id, google_id, username, email, avatar_url, created_at
		 FROM users WHERE id = ?`,
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
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("user", id)
		}
		return nil, fmt.Errorf("sqlite: getting user %d: %w", id, err)
	}

	return &u, nil
}
