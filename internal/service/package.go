package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/KeyWizardDev/keywizard/internal/apperror"
	"github.com/KeyWizardDev/keywizard/internal/auth"
	"github.com/KeyWizardDev/keywizard/internal/live"
	"github.com/KeyWizardDev/keywizard/internal/model"
	"github.com/KeyWizardDev/keywizard/internal/repository"
)

// Broadcaster is the slice of the live hub the package service needs: publish
// a change event, fire-and-forget. Defined here (consumer side) so tests can
// substitute a recording fake without touching the real hub.
type Broadcaster interface {
	Publish(kind string, payload any)
}

// PackageService owns the shortcut-package business rules:
//
//   - WHO may mutate: only the author. The ownership check lives here, not in
//     the handler and not in SQL, so it is enforced the same way for every
//     transport.
//   - WHAT a mutation means: Update is a full replacement of the editable
//     fields; Delete is hard and permanent; Download only bumps a counter.
//   - WHEN the world hears about it: every successful mutation publishes one
//     event to the broadcaster, strictly after the database write succeeded.
//     Failed operations publish nothing.
type PackageService struct {
	packages  repository.PackageRepository
	broadcast Broadcaster
	logger    *slog.Logger
}

// NewPackageService creates a PackageService with all required dependencies.
func NewPackageService(packages repository.PackageRepository, broadcast Broadcaster, logger *slog.Logger) *PackageService {
	return &PackageService{
		packages:  packages,
		broadcast: broadcast,
		logger:    logger,
	}
}

// List returns every package in the catalog, newest first. The full set —
// this API has no pagination; clients render the whole catalog and filter
// locally.
func (s *PackageService) List(ctx context.Context) ([]model.Package, error) {
	return s.packages.List(ctx)
}

// GetByID returns a single package with its author's current profile joined
// in. Public — no identity required.
func (s *PackageService) GetByID(ctx context.Context, id int64) (*model.Package, error) {
	return s.packages.GetByID(ctx, id)
}

// Create validates and stores a new package on behalf of identity, then
// broadcasts it.
//
// The service stamps authorship itself (AuthorID from the verified identity,
// AuthorName frozen from the identity's current username) — client-supplied
// author fields never survive. Downloads and rating start at zero regardless
// of input.
func (s *PackageService) Create(ctx context.Context, identity auth.Identity, pkg *model.Package) (*model.Package, error) {
	if pkg.Name == "" {
		return nil, apperror.ValidationFailed("name", "name is required")
	}

	pkg.AuthorID = identity.UserID
	pkg.AuthorName = identity.Username
	pkg.Downloads = 0
	pkg.Rating = 0

	if err := s.packages.Create(ctx, pkg); err != nil {
		return nil, fmt.Errorf("service/package: creating package: %w", err)
	}

	// Re-read so the returned (and broadcast) row carries the joined author
	// profile, exactly as a later GET would see it.
	created, err := s.packages.GetByID(ctx, pkg.ID)
	if err != nil {
		return nil, fmt.Errorf("service/package: reading back package %d: %w", pkg.ID, err)
	}

	s.logger.Info("package created",
		slog.Int64("packageID", created.ID),
		slog.Int64("authorID", identity.UserID),
	)
	s.broadcast.Publish(live.EventCreated, created)

	return created, nil
}

// Update replaces a package's editable fields (name, description, category,
// shortcuts, image ref) and broadcasts the new state.
//
// OWNERSHIP GUARD: we fetch the current row and compare its author_id against
// the caller's verified identity. The check always runs against fresh storage
// state — never against anything the client sent. Non-authors get
// ErrForbidden; a missing package surfaces as ErrNotFound (the guard can't
// run without a row to guard).
//
// Downloads, rating, and authorship are NOT part of the replacement set: they
// are carried forward from the stored row untouched.
func (s *PackageService) Update(ctx context.Context, identity auth.Identity, id int64, incoming *model.Package) (*model.Package, error) {
	if incoming.Name == "" {
		return nil, apperror.ValidationFailed("name", "name is required")
	}

	current, err := s.packages.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.AuthorID != identity.UserID {
		return nil, apperror.Forbidden("only the author can modify this package")
	}

	current.Name = incoming.Name
	current.Description = incoming.Description
	current.Category = incoming.Category
	current.Shortcuts = incoming.Shortcuts
	current.ImageRef = incoming.ImageRef

	if err := s.packages.Update(ctx, current); err != nil {
		return nil, fmt.Errorf("service/package: updating package %d: %w", id, err)
	}

	updated, err := s.packages.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("service/package: reading back package %d: %w", id, err)
	}

	s.logger.Info("package updated",
		slog.Int64("packageID", id),
		slog.Int64("authorID", identity.UserID),
	)
	s.broadcast.Publish(live.EventUpdated, updated)

	return updated, nil
}

// Delete permanently removes a package after the same ownership guard as
// Update, then broadcasts the removal (payload is just the id — the row is
// gone).
//
// Deletion is idempotent from the client's point of view only in that a
// second attempt cleanly reports ErrNotFound — it is NOT silently ignored,
// and no second event is published. Two concurrent deletes race at the
// storage layer: the DELETE that affects zero rows comes back NotFound.
func (s *PackageService) Delete(ctx context.Context, identity auth.Identity, id int64) error {
	current, err := s.packages.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if current.AuthorID != identity.UserID {
		return apperror.Forbidden("only the author can delete this package")
	}

	if err := s.packages.Delete(ctx, id); err != nil {
		return err
	}

	s.logger.Info("package deleted",
		slog.Int64("packageID", id),
		slog.Int64("authorID", identity.UserID),
	)
	s.broadcast.Publish(live.EventDeleted, live.DeletedPayload{ID: id})

	return nil
}

// Download records one download of the package and broadcasts the updated
// row so every connected client sees the new counter. Public — downloading
// requires no account, and there is no per-user dedup: every call counts.
func (s *PackageService) Download(ctx context.Context, id int64) (*model.Package, error) {
	pkg, err := s.packages.IncrementDownloads(ctx, id)
	if err != nil {
		return nil, err
	}

	s.broadcast.Publish(live.EventUpdated, pkg)

	return pkg, nil
}
