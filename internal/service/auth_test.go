package service

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/KeyWizardDev/keywizard/internal/apperror"
	"github.com/KeyWizardDev/keywizard/internal/auth"
	"github.com/KeyWizardDev/keywizard/internal/model"
)

// =========================================================================
// FAKES AND HELPERS
// =========================================================================

// fakeUserRepo is an in-memory implementation of repository.UserRepository.
// Using a fake (not a mock framework) keeps tests dependency-free and easy
// to read — you can see exactly what the fake does.
type fakeUserRepo struct {
	users      map[int64]*model.User  // keyed by internal ID
	byGoogleID map[string]*model.User // keyed by Google ID (for Upsert)
	nextID     int64
	// set to a non-nil error to simulate a database failure
	upsertErr  error
	getByIDErr error
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{
		users:      make(map[int64]*model.User),
		byGoogleID: make(map[string]*model.User),
		nextID:     1,
	}
}

func (f *fakeUserRepo) Upsert(ctx context.Context, user *model.User) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	if existing, ok := f.byGoogleID[user.GoogleID]; ok {
		// UPDATE path — keep ID, refresh profile fields
		existing.Username = user.Username
		existing.Email = user.Email
		existing.AvatarURL = user.AvatarURL
		// Reflect changes back into the caller's struct
		*user = *existing
	} else {
		// INSERT path — assign a new ID
		user.ID = f.nextID
		f.nextID++
		user.CreatedAt = time.Now()
		copied := *user
		f.users[user.ID] = &copied
		f.byGoogleID[user.GoogleID] = &copied
	}
	return nil
}

func (f *fakeUserRepo) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	if f.getByIDErr != nil {
		return nil, f.getByIDErr
	}
	u, ok := f.users[id]
	if !ok {
		return nil, apperror.NotFound("user", id)
	}
	return u, nil
}

// newTestAuthService returns an AuthService wired with fake dependencies.
// The TokenService uses a short secret, suitable for tests only.
func newTestAuthService(t *testing.T, repo *fakeUserRepo) *AuthService {
	t.Helper()

	ts, err := auth.NewTokenService("test-secret-at-least-16-chars!!")
	if err != nil {
		t.Fatalf("NewTokenService: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	return NewAuthService(repo, ts, logger)
}

// =========================================================================
// LoginOrRegisterGoogle TESTS
// =========================================================================

func TestLoginOrRegisterGoogle_NewUser(t *testing.T) {
	repo := newFakeUserRepo()
	svc := newTestAuthService(t, repo)

	profile := &auth.GoogleUser{
		ID:        "108234567890123456789",
		Name:      "Ada Lovelace",
		Email:     "ada@example.com",
		AvatarURL: "https://lh3.googleusercontent.com/a/ada",
	}

	result, err := svc.LoginOrRegisterGoogle(context.Background(), profile)
	if err != nil {
		t.Fatalf("LoginOrRegisterGoogle() error = %v", err)
	}

	if result.User == nil {
		t.Fatal("LoginOrRegisterGoogle() returned nil User")
	}
	if result.Token == "" {
		t.Fatal("LoginOrRegisterGoogle() returned empty Token")
	}
	if result.User.Username != "Ada Lovelace" {
		t.Errorf("User.Username = %q, want %q", result.User.Username, "Ada Lovelace")
	}
	if result.User.ID == 0 {
		t.Error("User.ID should be set after upsert")
	}
}

func TestLoginOrRegisterGoogle_ExistingUserGetsUpdatedProfile(t *testing.T) {
	repo := newFakeUserRepo()
	svc := newTestAuthService(t, repo)

	firstLogin := &auth.GoogleUser{ID: "g-99", Name: "old-name", Email: "old@email.com"}
	first, err := svc.LoginOrRegisterGoogle(context.Background(), firstLogin)
	if err != nil {
		t.Fatalf("first login error: %v", err)
	}

	// Second login with updated profile
	secondLogin := &auth.GoogleUser{ID: "g-99", Name: "new-name", Email: "new@email.com"}
	result, err := svc.LoginOrRegisterGoogle(context.Background(), secondLogin)
	if err != nil {
		t.Fatalf("second login error: %v", err)
	}

	if result.User.Username != "new-name" {
		t.Errorf("User.Username after update = %q, want %q", result.User.Username, "new-name")
	}
	if result.User.ID != first.User.ID {
		t.Errorf("second login ID = %d, want stable %d", result.User.ID, first.User.ID)
	}
}

func TestLoginOrRegisterGoogle_TokenIsValidJWT(t *testing.T) {
	repo := newFakeUserRepo()
	svc := newTestAuthService(t, repo)

	result, err := svc.LoginOrRegisterGoogle(context.Background(), &auth.GoogleUser{
		ID: "g-1", Name: "testuser", Email: "test@example.com",
	})
	if err != nil {
		t.Fatalf("LoginOrRegisterGoogle() error = %v", err)
	}

	// Validate the token we issued against the same TokenService
	identity, err := svc.tokens.Validate(result.Token)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if identity.UserID != result.User.ID {
		t.Errorf("token subject = %d, want %d", identity.UserID, result.User.ID)
	}
}

func TestLoginOrRegisterGoogle_NilProfile(t *testing.T) {
	repo := newFakeUserRepo()
	svc := newTestAuthService(t, repo)

	_, err := svc.LoginOrRegisterGoogle(context.Background(), nil)
	if err == nil {
		t.Fatal("LoginOrRegisterGoogle() should return error for nil profile")
	}
}

func TestLoginOrRegisterGoogle_RepositoryError(t *testing.T) {
	repo := newFakeUserRepo()
	repo.upsertErr = errors.New("database is on fire")
	svc := newTestAuthService(t, repo)

	_, err := svc.LoginOrRegisterGoogle(context.Background(), &auth.GoogleUser{ID: "g-1", Name: "user"})
	if err == nil {
		t.Fatal("LoginOrRegisterGoogle() should propagate repository errors")
	}
}

// =========================================================================
// GetUserByID TESTS
// =========================================================================

func TestGetUserByID_Found(t *testing.T) {
	repo := newFakeUserRepo()
	svc := newTestAuthService(t, repo)

	// Register a user first so we have a valid ID
	result, err := svc.LoginOrRegisterGoogle(context.Background(), &auth.GoogleUser{
		ID: "g-7", Name: "findme", Email: "findme@example.com",
	})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}

	user, err := svc.GetUserByID(context.Background(), result.User.ID)
	if err != nil {
		t.Fatalf("GetUserByID() error = %v", err)
	}
	if user.Username != "findme" {
		t.Errorf("user.Username = %q, want %q", user.Username, "findme")
	}
}

func TestGetUserByID_InvalidID(t *testing.T) {
	repo := newFakeUserRepo()
	svc := newTestAuthService(t, repo)

	_, err := svc.GetUserByID(context.Background(), 0)
	if err == nil {
		t.Fatal("GetUserByID() should return error for non-positive ID")
	}
}

func TestGetUserByID_NotFound(t *testing.T) {
	repo := newFakeUserRepo()
	svc := newTestAuthService(t, repo)

	_, err := svc.GetUserByID(context.Background(), 424242)
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Fatalf("GetUserByID() error = %v, want ErrNotFound", err)
	}
}
