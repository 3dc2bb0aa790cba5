// Package model defines the data structures used throughout the application.
// In Go, we use structs to represent our data — similar to classes in other languages,
// but without inheritance. Go favours composition over inheritance.
package model

import "time"

// User represents a registered user account.
//
// We use Google OAuth as the identity provider, so the primary external
// identifier is the Google account ID (a string of digits). Internally we use
// an autoincrement integer primary key, which is what the JWT and the
// packages table reference.
//
// WHY GoogleID string (not int64)?
// Google account IDs are 21-digit numbers delivered as JSON strings. They can
// exceed the safe integer range of JavaScript clients, so both Google and we
// treat them as opaque strings. The UNIQUE constraint on google_id in the DB
// ensures one Google account maps to exactly one app account — a User is
// created once, on first login, and never deleted.
//
// WHY Email string (not *string)?
// The OAuth userinfo response always carries the account email for the scopes
// we request. AvatarURL however can be absent, so its zero value (empty
// string) means "no avatar" — simpler than a nullable pointer and safe to
// render.
type User struct {
	ID        int64     `json:"id"        db:"id"`
	GoogleID  string    `json:"-"         db:"google_id"` // never exposed over the API
	Username  string    `json:"username"  db:"username"`  // display name from the Google profile
	Email     string    `json:"email"     db:"email"`
	AvatarURL string    `json:"avatarUrl" db:"avatar_url"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}
