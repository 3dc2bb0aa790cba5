package config

import "testing"

// t.Setenv automatically restores the previous value when the test ends,
// so these tests don't leak env vars into each other.

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("DB_PATH", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Port != 8080 {
		t.Errorf("Port = %d, want default 8080", cfg.Port)
	}
	if cfg.DBPath != "data/keywizard.db" {
		t.Errorf("DBPath = %q, want default %q", cfg.DBPath, "data/keywizard.db")
	}
	if cfg.UploadDir != "data/uploads" {
		t.Errorf("UploadDir = %q, want default %q", cfg.UploadDir, "data/uploads")
	}
}

func TestLoad_ReadsEnvironment(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/keywizard")
	t.Setenv("JWT_SECRET", "test-secret-at-least-16-chars!!")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Port != 9000 {
		t.Errorf("Port = %d, want 9000", cfg.Port)
	}
	if cfg.DatabaseURL != "postgres://localhost:5432/keywizard" {
		t.Errorf("DatabaseURL = %q, not read from env", cfg.DatabaseURL)
	}
	if cfg.JWTSecret != "test-secret-at-least-16-chars!!" {
		t.Errorf("JWTSecret = %q, not read from env", cfg.JWTSecret)
	}
}

func TestLoad_RejectsBadPort(t *testing.T) {
	t.Setenv("PORT", "70000")

	if _, err := Load(); err == nil {
		t.Fatal("Load() should reject an out-of-range PORT")
	}
}
