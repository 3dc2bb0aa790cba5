// Package service — authentication business logic.
//
// AuthService is the business logic layer for authentication. It sits between
// the HTTP handlers and the repository/auth utilities:
//
//	AuthHandler (HTTP) → AuthService (business rules) → UserRepository (DB)
//	                   ↘ TokenService (JWT)
//
// KEY RESPONSIBILITIES:
//   - Orchestrate the Google OAuth callback: upsert the user, issue a token
//   - Encapsulate all auth rules in one place, away from HTTP concerns
//   - Be easily testable with mock dependencies
//
// There is no password path: the only way into KeyWizard is a verified Google
// identity, so there is nothing here about hashing or credential storage.
package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/KeyWizardDev/keywizard/internal/auth"
	"github.com/KeyWizardDev/keywizard/internal/model"
	"github.com/KeyWizardDev/keywizard/internal/repository"
)

// AuthService handles the authentication business logic.
//
// DEPENDENCIES (injected via NewAuthService):
//   - users   repository.UserRepository → read/write user records
//   - tokens  *auth.TokenService        → generate/validate JWTs
//   - logger  *slog.Logger              → structured logging
type AuthService struct {
	users  repository.UserRepository
	tokens *auth.TokenService
	logger *slog.Logger
}

// NewAuthService creates an AuthService with all required dependencies.
// Call this in server.go when wiring the dependency graph.
func NewAuthService(users repository.UserRepository, tokens *auth.TokenService, logger *slog.Logger) *AuthService {
	return &AuthService{
		users:  users,
		tokens: tokens,
		logger: logger,
	}
}

// AuthResult is returned by authentication operations.
// It bundles the user record and the issued JWT together so the caller
// (the HTTP handler) can set the cookie and respond in one step.
type AuthResult struct {
	User  *model.User
	Token string
}

// LoginOrRegisterGoogle handles the Google OAuth callback.
//
// After the handler exchanges the authorization code for a GoogleUser
// profile, it calls this method to:
//
//  1. Upsert the user (create on first sign-in, update on later sign-ins)
//  2. Generate a JWT for the authenticated user
//  3. Return both so the handler can set the HttpOnly cookie and redirect
//
// WHY UPSERT (not insert + check conflict)?
// Google's subject ID is stable and unique, so we always upsert on
// (google_id). First sign-in → INSERT; later sign-ins → UPDATE the username,
// email, and avatar in case they changed on the Google side. The account is
// created exactly once and its internal ID never changes — that ID is what
// the token is minted against and what package ownership points at.
//
// WHAT THIS METHOD DOES NOT DO:
//   - It does NOT set cookies (that's the handler's job — HTTP concern)
//   - It does NOT read HTTP requests
//   - It is NOT tied to Chi or any routing framework
func (s *AuthService) LoginOrRegisterGoogle(ctx context.Context, profile *auth.GoogleUser) (*AuthResult, error) {
	if profile == nil {
		return nil, fmt.Errorf("service/auth: Google user must not be nil")
	}

	// Build the user model from the Google profile.
	// The repository's Upsert fills in ID and CreatedAt.
	user := &model.User{
		GoogleID:  profile.ID,
		Username:  profile.Name,
		Email:     profile.Email,
		AvatarURL: profile.AvatarURL,
	}

	if err := s.users.Upsert(ctx, user); err != nil {
		return nil, fmt.Errorf("service/auth: upserting user (googleID=%s): %w", profile.ID, err)
	}

	s.logger.Info("user authenticated via Google",
		slog.Int64("userID", user.ID),
		slog.String("username", user.Username),
	)

	token, err := s.tokens.Generate(user)
	if err != nil {
		return nil, fmt.Errorf("service/auth: generating token for user %d: %w", user.ID, err)
	}

	return &AuthResult{
		User:  user,
		Token: token,
	}, nil
}

// GetUserByID returns the user for the given internal ID.
//
// Used by the /api/me handler to look up the full user record after the
// middleware validates the JWT and extracts the userID from the token's
// Subject claim.
func (s *AuthService) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	if id <= 0 {
		return nil, fmt.Errorf("service/auth: user ID must be positive")
	}

	user, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("service/auth: fetching user %d: %w", id, err)
	}

	return user, nil
}
