package service

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sort"
	"testing"
	"time"

	"github.com/KeyWizardDev/keywizard/internal/apperror"
	"github.com/KeyWizardDev/keywizard/internal/auth"
	"github.com/KeyWizardDev/keywizard/internal/live"
	"github.com/KeyWizardDev/keywizard/internal/model"
)

// =========================================================================
// FAKES AND HELPERS
// =========================================================================

// fakePackageRepo is an in-memory implementation of repository.PackageRepository.
type fakePackageRepo struct {
	packages map[int64]*model.Package
	nextID   int64
	// set to simulate storage failures
	createErr error
	updateErr error
}

func newFakePackageRepo() *fakePackageRepo {
	return &fakePackageRepo{
		packages: make(map[int64]*model.Package),
		nextID:   1,
	}
}

func (f *fakePackageRepo) Create(ctx context.Context, pkg *model.Package) error {
	if f.createErr != nil {
		return f.createErr
	}
	pkg.ID = f.nextID
	f.nextID++
	now := time.Now()
	pkg.CreatedAt = now
	pkg.UpdatedAt = now
	copied := *pkg
	f.packages[pkg.ID] = &copied
	return nil
}

func (f *fakePackageRepo) GetByID(ctx context.Context, id int64) (*model.Package, error) {
	pkg, ok := f.packages[id]
	if !ok {
		return nil, apperror.NotFound("package", id)
	}
	copied := *pkg
	return &copied, nil
}

func (f *fakePackageRepo) List(ctx context.Context) ([]model.Package, error) {
	out := []model.Package{}
	for _, pkg := range f.packages {
		out = append(out, *pkg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (f *fakePackageRepo) Update(ctx context.Context, pkg *model.Package) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	if _, ok := f.packages[pkg.ID]; !ok {
		return apperror.NotFound("package", pkg.ID)
	}
	pkg.UpdatedAt = time.Now()
	copied := *pkg
	f.packages[pkg.ID] = &copied
	return nil
}

func (f *fakePackageRepo) Delete(ctx context.Context, id int64) error {
	if _, ok := f.packages[id]; !ok {
		return apperror.NotFound("package", id)
	}
	delete(f.packages, id)
	return nil
}

func (f *fakePackageRepo) IncrementDownloads(ctx context.Context, id int64) (*model.Package, error) {
	pkg, ok := f.packages[id]
	if !ok {
		return nil, apperror.NotFound("package", id)
	}
	pkg.Downloads++
	copied := *pkg
	return &copied, nil
}

// recordingBroadcaster captures every published event so tests can assert on
// exactly what was (and was not) broadcast.
type recordingBroadcaster struct {
	events []live.Event
}

func (r *recordingBroadcaster) Publish(kind string, payload any) {
	r.events = append(r.events, live.Event{Kind: kind, Payload: payload})
}

func newTestPackageService(repo *fakePackageRepo) (*PackageService, *recordingBroadcaster) {
	broadcast := &recordingBroadcaster{}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	return NewPackageService(repo, broadcast, logger), broadcast
}

var (
	alice = auth.Identity{UserID: 1, Email: "alice@example.com", Username: "alice"}
	bob   = auth.Identity{UserID: 2, Email: "bob@example.com", Username: "bob"}
)

// createTestPackage seeds one package owned by the given identity.
func createTestPackage(t *testing.T, svc *PackageService, owner auth.Identity, name string) *model.Package {
	t.Helper()
	pkg, err := svc.Create(context.Background(), owner, &model.Package{
		Name:     name,
		Category: "editor",
		Shortcuts: []model.Shortcut{
			{Key: "Ctrl+P", Action: "open-file", Description: "Open a file"},
		},
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	return pkg
}

// =========================================================================
// CREATE TESTS
// =========================================================================

func TestPackageCreate_StampsAuthorship(t *testing.T) {
	repo := newFakePackageRepo()
	svc, broadcast := newTestPackageService(repo)

	// Client tries to claim someone else's authorship and fake counters
	pkg, err := svc.Create(context.Background(), alice, &model.Package{
		Name:       "vim-basics",
		AuthorID:   999,
		AuthorName: "mallory",
		Downloads:  5000,
		Rating:     4.9,
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if pkg.AuthorID != alice.UserID {
		t.Errorf("AuthorID = %d, want the verified identity %d", pkg.AuthorID, alice.UserID)
	}
	if pkg.AuthorName != "alice" {
		t.Errorf("AuthorName = %q, want %q", pkg.AuthorName, "alice")
	}
	if pkg.Downloads != 0 || pkg.Rating != 0 {
		t.Errorf("Downloads/Rating = %d/%.1f, want 0/0 on creation", pkg.Downloads, pkg.Rating)
	}

	if len(broadcast.events) != 1 || broadcast.events[0].Kind != live.EventCreated {
		t.Errorf("broadcast = %+v, want exactly one %q event", broadcast.events, live.EventCreated)
	}
}

func TestPackageCreate_RequiresName(t *testing.T) {
	repo := newFakePackageRepo()
	svc, broadcast := newTestPackageService(repo)

	_, err := svc.Create(context.Background(), alice, &model.Package{Name: ""})
	if !errors.Is(err, apperror.ErrValidation) {
		t.Fatalf("Create() error = %v, want ErrValidation", err)
	}
	if len(broadcast.events) != 0 {
		t.Error("failed Create() must not broadcast")
	}
}

func TestPackageCreate_NoBroadcastOnStorageFailure(t *testing.T) {
	repo := newFakePackageRepo()
	repo.createErr = errors.New("disk full")
	svc, broadcast := newTestPackageService(repo)

	_, err := svc.Create(context.Background(), alice, &model.Package{Name: "x"})
	if err == nil {
		t.Fatal("Create() should propagate storage errors")
	}
	if len(broadcast.events) != 0 {
		t.Error("failed Create() must not broadcast")
	}
}

// =========================================================================
// UPDATE TESTS (OWNERSHIP GUARD)
// =========================================================================

func TestPackageUpdate_AuthorCanEdit(t *testing.T) {
	repo := newFakePackageRepo()
	svc, broadcast := newTestPackageService(repo)
	pkg := createTestPackage(t, svc, alice, "vim-basics")

	updated, err := svc.Update(context.Background(), alice, pkg.ID, &model.Package{
		Name:     "vim-advanced",
		Category: "editor",
	})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	if updated.Name != "vim-advanced" {
		t.Errorf("Name = %q, want %q", updated.Name, "vim-advanced")
	}
	// Full replacement: fields absent from the request are cleared...
	if len(updated.Shortcuts) != 0 {
		t.Errorf("Shortcuts = %v, want cleared by full replacement", updated.Shortcuts)
	}
	// ...but authorship and counters are never part of the replacement set
	if updated.AuthorID != alice.UserID {
		t.Errorf("AuthorID changed to %d", updated.AuthorID)
	}

	last := broadcast.events[len(broadcast.events)-1]
	if last.Kind != live.EventUpdated {
		t.Errorf("last broadcast kind = %q, want %q", last.Kind, live.EventUpdated)
	}
}

func TestPackageUpdate_NonAuthorForbidden(t *testing.T) {
	repo := newFakePackageRepo()
	svc, broadcast := newTestPackageService(repo)
	pkg := createTestPackage(t, svc, alice, "vim-basics")
	before := len(broadcast.events)

	_, err := svc.Update(context.Background(), bob, pkg.ID, &model.Package{Name: "stolen"})
	if !errors.Is(err, apperror.ErrForbidden) {
		t.Fatalf("Update() by non-author error = %v, want ErrForbidden", err)
	}

	// Nothing changed, nothing broadcast
	unchanged, _ := svc.GetByID(context.Background(), pkg.ID)
	if unchanged.Name != "vim-basics" {
		t.Errorf("Name = %q after forbidden update, want untouched", unchanged.Name)
	}
	if len(broadcast.events) != before {
		t.Error("forbidden Update() must not broadcast")
	}
}

func TestPackageUpdate_MissingPackage(t *testing.T) {
	repo := newFakePackageRepo()
	svc, _ := newTestPackageService(repo)

	_, err := svc.Update(context.Background(), alice, 9999, &model.Package{Name: "x"})
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Fatalf("Update() error = %v, want ErrNotFound", err)
	}
}

func TestPackageUpdate_PreservesDownloads(t *testing.T) {
	repo := newFakePackageRepo()
	svc, _ := newTestPackageService(repo)
	pkg := createTestPackage(t, svc, alice, "vim-basics")

	if _, err := svc.Download(context.Background(), pkg.ID); err != nil {
		t.Fatalf("Download() error = %v", err)
	}

	updated, err := svc.Update(context.Background(), alice, pkg.ID, &model.Package{Name: "renamed"})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if updated.Downloads != 1 {
		t.Errorf("Downloads = %d after update, want the counter carried forward (1)", updated.Downloads)
	}
}

// =========================================================================
// DELETE TESTS
// =========================================================================

func TestPackageDelete_AuthorCanDelete(t *testing.T) {
	repo := newFakePackageRepo()
	svc, broadcast := newTestPackageService(repo)
	pkg := createTestPackage(t, svc, alice, "vim-basics")

	if err := svc.Delete(context.Background(), alice, pkg.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	if _, err := svc.GetByID(context.Background(), pkg.ID); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetByID() after delete error = %v, want ErrNotFound", err)
	}

	last := broadcast.events[len(broadcast.events)-1]
	if last.Kind != live.EventDeleted {
		t.Errorf("last broadcast kind = %q, want %q", last.Kind, live.EventDeleted)
	}
	payload, ok := last.Payload.(live.DeletedPayload)
	if !ok || payload.ID != pkg.ID {
		t.Errorf("deleted payload = %+v, want just the id %d", last.Payload, pkg.ID)
	}
}

func TestPackageDelete_NonAuthorForbidden(t *testing.T) {
	repo := newFakePackageRepo()
	svc, _ := newTestPackageService(repo)
	pkg := createTestPackage(t, svc, alice, "vim-basics")

	err := svc.Delete(context.Background(), bob, pkg.ID)
	if !errors.Is(err, apperror.ErrForbidden) {
		t.Fatalf("Delete() by non-author error = %v, want ErrForbidden", err)
	}

	// Still there
	if _, err := svc.GetByID(context.Background(), pkg.ID); err != nil {
		t.Errorf("package should survive a forbidden delete, GetByID() error = %v", err)
	}
}

func TestPackageDelete_SecondDeleteIsNotFound(t *testing.T) {
	repo := newFakePackageRepo()
	svc, broadcast := newTestPackageService(repo)
	pkg := createTestPackage(t, svc, alice, "vim-basics")

	if err := svc.Delete(context.Background(), alice, pkg.ID); err != nil {
		t.Fatalf("first Delete() error = %v", err)
	}
	before := len(broadcast.events)

	err := svc.Delete(context.Background(), alice, pkg.ID)
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Fatalf("second Delete() error = %v, want ErrNotFound", err)
	}
	if len(broadcast.events) != before {
		t.Error("second Delete() must not broadcast again")
	}
}

// =========================================================================
// DOWNLOAD TESTS
// =========================================================================

func TestPackageDownload_IncrementsAndBroadcasts(t *testing.T) {
	repo := newFakePackageRepo()
	svc, broadcast := newTestPackageService(repo)
	pkg := createTestPackage(t, svc, alice, "vim-basics")

	for want := int64(1); want <= 3; want++ {
		got, err := svc.Download(context.Background(), pkg.ID)
		if err != nil {
			t.Fatalf("Download() error = %v", err)
		}
		if got.Downloads != want {
			t.Errorf("Downloads = %d, want %d", got.Downloads, want)
		}
	}

	last := broadcast.events[len(broadcast.events)-1]
	if last.Kind != live.EventUpdated {
		t.Errorf("download broadcast kind = %q, want %q", last.Kind, live.EventUpdated)
	}
}

func TestPackageDownload_NotFound(t *testing.T) {
	repo := newFakePackageRepo()
	svc, broadcast := newTestPackageService(repo)

	_, err := svc.Download(context.Background(), 9999)
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Fatalf("Download() error = %v, want ErrNotFound", err)
	}
	if len(broadcast.events) != 0 {
		t.Error("failed Download() must not broadcast")
	}
}
