package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/KeyWizardDev/keywizard/internal/apperror"
	"github.com/KeyWizardDev/keywizard/internal/model"
	"github.com/KeyWizardDev/keywizard/internal/repository"
)

// COMPILE-TIME INTERFACE CHECK:
// `var _ X = (*Y)(nil)` assigns a nil *Y to a variable of interface type X.
// If *Y doesn't implement X, the compiler errors immediately instead of at
// some distant call site. Standard practice for interface implementations.
var _ repository.PackageRepository = (*DB)(nil)

// selectJoined is the shared SELECT for all package reads.
//
// THE LIVE JOIN:
// u.username and u.avatar_url come from the users table at read time, so a
// package always displays its author's *current* profile. p.author_name is the
// display name frozen when the package was created — both are returned, and
// the model documents which is which.
const selectJoined = `
	SELECT p.id, p.name, p.description, p.category, p.shortcuts, p.image_ref,
	       p.author_id, p.author_name, p.downloads, p.rating,
	       p.created_at, p.updated_at,
	       u.username, u.avatar_url
	FROM packages p
	JOIN users u ON u.id = p.author_id`

// marshalShortcuts serializes a shortcut sequence into the TEXT column value.
// nil is normalized to an empty array so the column never holds SQL NULL or
// the string "null".
func marshalShortcuts(shortcuts []model.Shortcut) (string, error) {
	if shortcuts == nil {
		shortcuts = []model.Shortcut{}
	}
	blob, err := json.Marshal(shortcuts)
	if err != nil {
		return "", fmt.Errorf("marshalling shortcuts: %w", err)
	}
	return string(blob), nil
}

// scanPackage reads one joined row into a model.Package.
// The column order must match selectJoined exactly.
func scanPackage(row interface{ Scan(...any) error }) (*model.Package, error) {
	var (
		p    model.Package
		blob string
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

	if err := json.Unmarshal([]byte(blob), &p.Shortcuts); err != nil {
		return nil, fmt.Errorf("unmarshalling shortcuts for package %d: %w", p.ID, err)
	}
	return &p, nil
}

// Create inserts a new package and fills in its generated ID and timestamps.
//
// The caller (the service layer) has already stamped AuthorID and AuthorName
// from the authenticated identity. The Author display fields are NOT filled in
// here — callers that need the joined row (which is all of them) fetch it back
// with GetByID, the same query every other read uses.
func (db *DB) Create(ctx context.Context, pkg *model.Package) error {
	now := time.Now()
	pkg.CreatedAt = now
	pkg.UpdatedAt = now

	blob, err := marshalShortcuts(pkg.Shortcuts)
	if err != nil {
		return fmt.Errorf("sqlite: %w", err)
	}

	// PARAMETERIZED QUERIES (the ? placeholders):
	// Never build SQL with string concatenation — the driver escapes the
	// values, which is what prevents SQL injection.
	result, err := db.conn.ExecContext(ctx,
		`INSERT INTO packages (name, description, category, shortcuts, image_ref,
		                       author_id, author_name, downloads, rating, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, 0, 0, ?, ?)`,
		pkg.Name,
		pkg.Description,
		pkg.Category,
		blob,
		pkg.ImageRef,
		pkg.AuthorID,
		pkg.AuthorName,
		pkg.CreatedAt,
		pkg.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: creating package: %w", err)
	}

	pkg.ID, err = result.LastInsertId()
	if err != nil {
		return fmt.Errorf("sqlite: reading new package id: %w", err)
	}

	return nil
}

// GetByID retrieves a single package joined with its author's current profile.
//
// sql.ErrNoRows is not really an error — it just means "no matching row
// exists". We translate it to the app's NotFound error so the handler knows to
// return 404. Translating database errors into domain errors at this boundary
// keeps SQL details out of every other layer.
func (db *DB) GetByID(ctx context.Context, id int64) (*model.Package, error) {
	row := db.conn.QueryRowContext(ctx, selectJoined+` WHERE p.id = ?`, id)

	pkg, err := scanPackage(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("package", id)
		}
		return nil, fmt.Errorf("sqlite: getting package %d: %w", id, err)
	}

	return pkg, nil
}

// List returns every package, newest-created-first.
//
// NO PAGINATION, BY CONTRACT:
// The API returns the full set; clients hold the whole list and reconcile it
// against live events. Ties on created_at (same timestamp granularity) are
// broken by id descending so the order is deterministic and testable.
func (db *DB) List(ctx context.Context) ([]model.Package, error) {
	rows, err := db.conn.QueryContext(ctx,
		selectJoined+` ORDER BY p.created_at DESC, p.id DESC`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing packages: %w", err)
	}
	// sql.Rows holds a pool connection — always close it, or the pool leaks.
	defer rows.Close()

	packages := []model.Package{}
	for rows.Next() {
		pkg, err := scanPackage(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning package row: %w", err)
		}
		packages = append(packages, *pkg)
	}

	// rows.Err() catches errors that happened DURING iteration
	// (e.g. the connection dropping mid-scan).
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating packages: %w", err)
	}

	return packages, nil
}

// Update replaces the full mutable record of an existing package.
//
// FULL REPLACEMENT, NOT MERGE:
// name, description, category, image_ref, and the entire shortcut sequence are
// all overwritten together. A previously-set description that the caller omits
// is cleared — fields never silently survive an update. downloads, rating,
// author_id, author_name, and created_at are untouched.
//
// RowsAffected() == 0 means the WHERE clause matched nothing: the package was
// deleted between the caller's ownership check and this write. That race is a
// normal NotFound outcome, not a crash.
func (db *DB) Update(ctx context.Context, pkg *model.Package) error {
	pkg.UpdatedAt = time.Now()

	blob, err := marshalShortcuts(pkg.Shortcuts)
	if err != nil {
		return fmt.Errorf("sqlite: %w", err)
	}

	result, err := db.conn.ExecContext(ctx,
		`UPDATE packages
		 SET name = ?, description = ?, category = ?, shortcuts = ?, image_ref = ?, updated_at = ?
		 WHERE id = ?`,
		pkg.Name,
		pkg.Description,
		pkg.Category,
		blob,
		pkg.ImageRef,
		pkg.UpdatedAt,
		pkg.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating package %d: %w", pkg.ID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("package", pkg.ID)
	}

	return nil
}

// Delete permanently removes a package. Hard delete — no tombstone.
// Same RowsAffected pattern as Update for detecting "already gone".
func (db *DB) Delete(ctx context.Context, id int64) error {
	result, err := db.conn.ExecContext(ctx,
		`DELETE FROM packages WHERE id = ?`,
		id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: deleting package %d: %w", id, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("package", id)
	}

	return nil
}

// IncrementDownloads bumps the download counter by one and returns the fresh
// joined row.
//
// The increment happens inside the UPDATE statement (downloads = downloads+1),
// so concurrent downloads serialize at the storage engine and none are lost —
// no read-modify-write in Go.
func (db *DB) IncrementDownloads(ctx context.Context, id int64) (*model.Package, error) {
	result, err := db.conn.ExecContext(ctx,
		`UPDATE packages SET downloads = downloads + 1 WHERE id = ?`,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: incrementing downloads for package %d: %w", id, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return nil, apperror.NotFound("package", id)
	}

	return db.GetByID(ctx, id)
}
