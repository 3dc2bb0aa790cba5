// Package repository defines the storage interfaces the rest of the app
// programs against. Concrete implementations live in the sqlite and postgres
// sub-packages; tests use hand-written in-memory mocks.
package repository

import (
	"context"

	"github.com/KeyWizardDev/keywizard/internal/model"
)

// UserRepository stores user accounts keyed by their Google identity.
//
// There is deliberately no Delete — users are created exactly once, on first
// successful login, and never removed by any code path.
type UserRepository interface {
	// Upsert creates the user on first login (keyed by GoogleID) or refreshes
	// the mutable profile fields (username, email, avatar) on later logins.
	// Fills in ID and CreatedAt on the passed struct.
	Upsert(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id int64) (*model.User, error)
}

// PackageRepository is the CRUD surface over the packages table.
//
// All read operations return rows live-joined with the author's current
// username and avatar. List returns the complete set, newest-created-first
// with id as the tie-break — no pagination, by contract.
type PackageRepository interface {
	Create(ctx context.Context, pkg *model.Package) error
	GetByID(ctx context.Context, id int64) (*model.Package, error)
	List(ctx context.Context) ([]model.Package, error)
	// Update performs a full-record replacement of the mutable fields
	// (name, description, category, image ref, shortcuts) and bumps
	// updated_at. Returns apperror.ErrNotFound if the row is gone.
	Update(ctx context.Context, pkg *model.Package) error
	Delete(ctx context.Context, id int64) error
	// IncrementDownloads atomically bumps the download counter and returns
	// the fresh joined row.
	IncrementDownloads(ctx context.Context, id int64) (*model.Package, error)
}
