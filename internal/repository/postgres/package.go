package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/KeyWizardDev/keywizard/internal/apperror"
	"github.com/KeyWizardDev/keywizard/internal/model"
	"github.com/KeyWizardDev/keywizard/internal/repository"
)

// compile-time check that *Store implements repository.PackageRepository
var _ repository.PackageRepository = (*Store)(nil)

// selectJoined mirrors the SQLite query: every read joins the author's
// current username and avatar, while author_name stays frozen at creation.
const selectJoined = `
	SELECT p.id, p.name, p.description, p.category, p.shortcuts, p.image_ref,
	       p.author_id, p.author_name, p.downloads, p.rating,
	       p.created_at, p.updated_at,
	       u.username, u.avatar_url
	FROM packages p
	JOIN users u ON u.id = p.author_id`

func marshalShortcuts(shortcuts []model.Shortcut) ([]byte, error) {
	if shortcuts == nil {
		shortcuts = []model.Shortcut{}
	}
	blob, err := json.Marshal(shortcuts)
	if err != nil {
		return nil, fmt.Errorf("marshalling shortcuts: %w", err)
	}
	return blob, nil
}

func scanPackage(row pgx.Row) (*model.Package, error) {
	var (
		p    model.Package
		blob []byte
	)
	err := row.Scan(
		&p.ID, &p.Name, &p.Description, &p.Category, &blob, &p.ImageRef,
		&p.AuthorID, &p.AuthorName, &p.Downloads, &p.Rating,
		&p.CreatedAt, &p.UpdatedAt,
		&p.Author.Username, &p.Author.AvatarURL,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(blob, &p.Shortcuts); err != nil {
		return nil, fmt.Errorf("unmarshalling shortcuts for package %d: %w", p.ID, err)
	}
	return &p, nil
}

// Create inserts a new package, returning its generated ID via RETURNING.
func (s *Store) Create(ctx context.Context, pkg *model.Package) error {
	now := time.Now()
	pkg.CreatedAt = now
	pkg.UpdatedAt = now

	blob, err := marshalShortcuts(pkg.Shortcuts)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}

	err = s.pool.QueryRow(ctx,
		`INSERT INTO packages (name, description, category, shortcuts, image_ref,
		                       author_id, author_name, downloads, rating, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, 0, 0, $8, $9)
		 RETURNING id`,
		pkg.Name,
		pkg.Description,
		pkg.Category,
		blob,
		pkg.ImageRef,
		pkg.AuthorID,
		pkg.AuthorName,
		pkg.CreatedAt,
		pkg.UpdatedAt,
	).Scan(&pkg.ID)
	if err != nil {
		return fmt.Errorf("postgres: creating package: %w", err)
	}

	return nil
}

// GetByID retrieves a single package joined with its author's current profile.
func (s *Store) GetByID(ctx context.Context, id int64) (*model.Package, error) {
	row := s.pool.QueryRow(ctx, selectJoined+` WHERE p.id = $1`, id)

	pkg, err := scanPackage(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperror.NotFound("package", id)
		}
		return nil, fmt.Errorf("postgres: getting package %d: %w", id, err)
	}

	return pkg, nil
}

// List returns every package, newest-created-first, id as tie-break.
// No pagination — the API contract returns the full set.
func (s *Store) List(ctx context.Context) ([]model.Package, error) {
	rows, err := s.pool.Query(ctx,
		selectJoined+` ORDER BY p.created_at DESC, p.id DESC`)
	if err != nil {
		return nil, fmt.Errorf("postgres: listing packages: %w", err)
	}
	defer rows.Close()

	packages := []model.Package{}
	for rows.Next() {
		pkg, err := scanPackage(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scanning package row: %w", err)
		}
		packages = append(packages, *pkg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterating packages: %w", err)
	}

	return packages, nil
}

// Update replaces the full mutable record (name, description, category,
// shortcuts, image ref) and bumps updated_at. RowsAffected 0 means the row
// vanished between the ownership check and this write — a normal NotFound.
func (s *Store) Update(ctx context.Context, pkg *model.Package) error {
	pkg.UpdatedAt = time.Now()

	blob, err := marshalShortcuts(pkg.Shortcuts)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE packages
		 SET name = $1, description = $2, category = $3, shortcuts = $4, image_ref = $5, updated_at = $6
		 WHERE id = $7`,
		pkg.Name,
		pkg.Description,
		pkg.Category,
		blob,
		pkg.ImageRef,
		pkg.UpdatedAt,
		pkg.ID,
	)
	if err != nil {
		return fmt.Errorf("postgres: updating package %d: %w", pkg.ID, err)
	}

	if tag.RowsAffected() == 0 {
		return apperror.NotFound("package", pkg.ID)
	}

	return nil
}

// Delete permanently removes a package. Hard delete — no tombstone.
func (s *Store) Delete(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM packages WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("postgres: deleting package %d: %w", id, err)
	}

	if tag.RowsAffected() == 0 {
		return apperror.NotFound("package", id)
	}

	return nil
}

// IncrementDownloads bumps the counter in a single UPDATE (no read-modify-write
// in Go, so concurrent downloads can't lose increments) and returns the fresh
// joined row.
func (s *Store) IncrementDownloads(ctx context.Context, id int64) (*model.Package, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE packages SET downloads = downloads + 1 WHERE id = $1`,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: incrementing downloads for package %d: %w", id, err)
	}

	if tag.RowsAffected() == 0 {
		return nil, apperror.NotFound("package", id)
	}

	return s.GetByID(ctx, id)
}
