package model

import "time"

// Shortcut is one key-combination → action mapping inside a package.
//
// Shortcuts are not a standalone table — they exist only as elements of a
// Package's ordered sequence, serialized as a single JSON text column. The
// shape is fixed: anything beyond these three fields is rejected at the HTTP
// boundary. Order is insertion order and is preserved; duplicate key
// combinations within one package are allowed (the DB doesn't know or care).
type Shortcut struct {
	Key         string `json:"key"`         // e.g. "Ctrl+Shift+P"
	Action      string `json:"action"`      // e.g. "Open command palette"
	Description string `json:"description"` // optional free text
}

// Author is the live-joined display identity of a package's owner.
//
// This is NOT stored on the packages table — it's joined from users on every
// read so listings always reflect the author's current profile. Compare with
// Package.AuthorName below, which is frozen at creation time.
type Author struct {
	Username  string `json:"username"`
	AvatarURL string `json:"avatarUrl"`
}

// Package represents a named, owned collection of keyboard shortcuts.
//
// OWNERSHIP:
// AuthorID references the owning user and is immutable after creation — there
// is no transfer-of-ownership operation. Only the owner may update or delete
// the package, and a delete is a hard delete (no tombstone).
//
// TWO AUTHOR NAMES?
// AuthorName is a denormalized copy of the owner's display name captured at
// creation time (historical attribution). Author is joined fresh on every
// read and tracks the owner's current profile. Both are exposed so the client
// can choose which to show.
type Package struct {
	ID          int64      `json:"id"          db:"id"`
	Name        string     `json:"name"        db:"name"`
	Description string     `json:"description" db:"description"`
	Category    string     `json:"category"    db:"category"`
	Shortcuts   []Shortcut `json:"shortcuts"   db:"shortcuts"` // stored as a JSON text blob
	ImageRef    string     `json:"imageRef"    db:"image_ref"` // opaque reference from the upload collaborator
	AuthorID    int64      `json:"authorId"    db:"author_id"`
	AuthorName  string     `json:"authorName"  db:"author_name"` // frozen at creation
	Author      Author     `json:"author"`                       // live-joined, not a column
	Downloads   int64      `json:"downloads"   db:"downloads"`
	Rating      float64    `json:"rating"      db:"rating"`
	CreatedAt   time.Time  `json:"createdAt"   db:"created_at"`
	UpdatedAt   time.Time  `json:"updatedAt"   db:"updated_at"`
}
