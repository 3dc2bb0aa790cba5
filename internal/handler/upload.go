package handler

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/KeyWizardDev/keywizard/internal/apperror"
	"github.com/KeyWizardDev/keywizard/internal/auth"
)

// maxUploadBytes caps package images at 5 MB. Plenty for a screenshot of a
// cheat sheet, small enough that a single client can't fill the disk quickly.
const maxUploadBytes = 5 << 20

// allowedImageExtensions is the whitelist for uploaded package images.
// Matching by extension (not sniffed content type) keeps served files
// predictable: what lands on disk is exactly what /uploads/ will serve.
var allowedImageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".webp": true,
}

// UploadHandler stores package images on local disk.
//
// Files are written under the configured upload directory with a random UUID
// filename (original names are untrusted and may collide), and the handler
// returns the public path clients put into a package's imageRef field. The
// files themselves are served by the /uploads/* static route.
type UploadHandler struct {
	uploadDir string
	logger    *slog.Logger
}

// NewUploadHandler creates an UploadHandler writing into uploadDir.
func NewUploadHandler(uploadDir string, logger *slog.Logger) *UploadHandler {
	return &UploadHandler{
		uploadDir: uploadDir,
		logger:    logger,
	}
}

// HandleUpload accepts a multipart form with an "image" field.
//
// HTTP: POST /api/upload
// Auth: Required — only signed-in users publish packages, so only they
// need to attach images
//
// Response: {"imageRef": "/uploads/<uuid>.<ext>"}
func (h *UploadHandler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	if _, ok := auth.IdentityFromContext(r.Context()); !ok {
		writeError(w, apperror.Unauthorized())
		return
	}

	// MaxBytesReader makes oversized uploads fail mid-read instead of
	// buffering gigabytes before we get a say.
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	file, header, err := r.FormFile("image")
	if err != nil {
		writeError(w, apperror.ValidationFailed("image", "missing or unreadable image field"))
		return
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if !allowedImageExtensions[ext] {
		writeError(w, apperror.ValidationFailed("image", fmt.Sprintf("unsupported image type %q", ext)))
		return
	}

	// Random filename: never trust client filenames, never collide.
	name := uuid.NewString() + ext
	destPath := filepath.Join(h.uploadDir, name)

	dest, err := os.Create(destPath)
	if err != nil {
		h.logger.Error("creating upload file",
			slog.String("path", destPath),
			slog.String("error", err.Error()),
		)
		writeError(w, fmt.Errorf("storing upload: %w", err))
		return
	}
	defer dest.Close()

	if _, err := io.Copy(dest, file); err != nil {
		// Partial write — remove the fragment so /uploads/ never serves it
		os.Remove(destPath)
		h.logger.Error("writing upload file",
			slog.String("path", destPath),
			slog.String("error", err.Error()),
		)
		writeError(w, fmt.Errorf("storing upload: %w", err))
		return
	}

	h.logger.Info("image uploaded",
		slog.String("file", name),
		slog.Int64("bytes", header.Size),
	)

	writeJSON(w, http.StatusCreated, map[string]string{
		"imageRef": "/uploads/" + name,
	})
}
