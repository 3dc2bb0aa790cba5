package sqlite

import (
	"context"
	"errors"
	"testing"

	"github.com/KeyWizardDev/keywizard/internal/apperror"
	"github.com/KeyWizardDev/keywizard/internal/model"
)

// =========================================================================
// UPSERT TESTS
// =========================================================================

func TestUserUpsert_CreatesOnFirstLogin(t *testing.T) {
	db := newTestDB(t)

	user := &model.User{
		GoogleID:  "108234567890123456789",
		Username:  "ada",
		Email:     "ada@example.com",
		AvatarURL: "https://lh3.googleusercontent.com/a/ada",
	}

	if err := db.Upsert(context.Background(), user); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}

	if user.ID == 0 {
		t.Error("Upsert() did not set user.ID")
	}
	if user.CreatedAt.IsZero() {
		t.Error("Upsert() did not set user.CreatedAt")
	}
}

func TestUserUpsert_SecondLoginKeepsID(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	first := &model.User{
		GoogleID: "g-stable",
		Username: "ada",
		Email:    "ada@example.com",
	}
	if err := db.Upsert(ctx, first); err != nil {
		t.Fatalf("first Upsert() error = %v", err)
	}

	// Same Google account logs in again with a changed profile
	second := &model.User{
		GoogleID:  "g-stable",
		Username:  "ada-lovelace",
		Email:     "ada@example.com",
		AvatarURL: "https://lh3.googleusercontent.com/a/new",
	}
	if err := db.Upsert(ctx, second); err != nil {
		t.Fatalf("second Upsert() error = %v", err)
	}

	// The account is created exactly once: the internal ID must be stable
	if second.ID != first.ID {
		t.Errorf("second Upsert() ID = %d, want the original %d", second.ID, first.ID)
	}

	// ...and the profile fields refreshed
	found, err := db.GetUserByID(ctx, first.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if found.Username != "ada-lovelace" {
		t.Errorf("Username = %q, want refreshed %q", found.Username, "ada-lovelace")
	}
	if found.AvatarURL != "https://lh3.googleusercontent.com/a/new" {
		t.Errorf("AvatarURL = %q, not refreshed", found.AvatarURL)
	}
}

func TestUserUpsert_DistinctAccountsGetDistinctRows(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	a := &model.User{GoogleID: "g-a", Username: "a", Email: "a@example.com"}
	b := &model.User{GoogleID: "g-b", Username: "b", Email: "b@example.com"}

	if err := db.Upsert(ctx, a); err != nil {
		t.Fatalf("Upsert(a) error = %v", err)
	}
	if err := db.Upsert(ctx, b); err != nil {
		t.Fatalf("Upsert(b) error = %v", err)
	}

	if a.ID == b.ID {
		t.Error("distinct Google accounts received the same internal ID")
	}
}

// =========================================================================
// GET BY ID TESTS
// =========================================================================

func TestUserGetByID(t *testing.T) {
	db := newTestDB(t)
	user := createTestUser(t, db, "g-1", "ada")

	found, err := db.GetUserByID(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}

	if found.GoogleID != "g-1" {
		t.Errorf("GoogleID = %q, want %q", found.GoogleID, "g-1")
	}
	if found.Username != "ada" {
		t.Errorf("Username = %q, want %q", found.Username, "ada")
	}
	if found.Email != "ada@example.com" {
		t.Errorf("Email = %q, want %q", found.Email, "ada@example.com")
	}
}

func TestUserGetByID_NotFound(t *testing.T) {
	db := newTestDB(t)

	_, err := db.GetUserByID(context.Background(), 9999)
	if err == nil {
		t.Fatal("GetByID() should have returned an error for nonexistent ID")
	}
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetByID() error = %v, want ErrNotFound", err)
	}
}
