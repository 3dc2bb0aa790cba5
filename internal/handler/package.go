package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/KeyWizardDev/keywizard/internal/apperror"
	"github.com/KeyWizardDev/keywizard/internal/auth"
	"github.com/KeyWizardDev/keywizard/internal/model"
	"github.com/KeyWizardDev/keywizard/internal/service"
)

// PackageHandler exposes the shortcut-package catalog over HTTP.
//
// ENDPOINT MAP:
//   - GET    /api/packages              → HandleList     (public)
//   - GET    /api/packages/{id}         → HandleGet      (public)
//   - POST   /api/packages              → HandleCreate   (auth required)
//   - PUT    /api/packages/{id}         → HandleUpdate   (auth + ownership)
//   - DELETE /api/packages/{id}         → HandleDelete   (auth + ownership)
//   - POST   /api/packages/{id}/download → HandleDownload (public)
//
// The handler is a thin translation layer: decode and validate the request,
// pull the identity from context, call the service, map the result (or the
// domain error) back onto HTTP. All business rules live in the service.
type PackageHandler struct {
	packages *service.PackageService
	validate *validator.Validate
	logger   *slog.Logger
}

// NewPackageHandler creates a PackageHandler with its dependencies.
func NewPackageHandler(packages *service.PackageService, logger *slog.Logger) *PackageHandler {
	return &PackageHandler{
		packages: packages,
		validate: validator.New(),
		logger:   logger,
	}
}

// shortcutRequest is one binding in a create/update request. The shape is
// fixed: exactly these three fields, all strings.
type shortcutRequest struct {
	Key         string `json:"key" validate:"required"`
	Action      string `json:"action" validate:"required"`
	Description string `json:"description"`
}

// packageRequest is the body for both create and update. The two operations
// accept the same editable fields; update treats them as a full replacement.
//
// Note what is NOT here: author fields, downloads, rating. Authorship comes
// from the verified identity, counters belong to the server. A client that
// sends them anyway gets a 400 from DisallowUnknownFields — better an
// explicit error than silently ignoring fields the caller thought mattered.
type packageRequest struct {
	Name        string            `json:"name" validate:"required,max=200"`
	Description string            `json:"description" validate:"max=2000"`
	Category    string            `json:"category" validate:"max=100"`
	Shortcuts   []shortcutRequest `json:"shortcuts" validate:"dive"`
	ImageRef    string            `json:"imageRef" validate:"max=500"`
}

// decodePackageRequest reads, decodes, and validates a package body.
func (h *PackageHandler) decodePackageRequest(r *http.Request) (*packageRequest, error) {
	var req packageRequest

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		return nil, apperror.ValidationFailed("body", "invalid JSON: "+err.Error())
	}

	if err := h.validate.Struct(&req); err != nil {
		// Report the first failing field — enough for the client to fix it.
		if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
			return nil, apperror.ValidationFailed(verrs[0].Field(), "failed validation rule: "+verrs[0].Tag())
		}
		return nil, apperror.ValidationFailed("body", err.Error())
	}

	return &req, nil
}

// toModel converts the validated request into the domain model.
func (req *packageRequest) toModel() *model.Package {
	shortcuts := make([]model.Shortcut, len(req.Shortcuts))
	for i, s := range req.Shortcuts {
		shortcuts[i] = model.Shortcut{
			Key:         s.Key,
			Action:      s.Action,
			Description: s.Description,
		}
	}
	return &model.Package{
		Name:        req.Name,
		Description: req.Description,
		Category:    req.Category,
		Shortcuts:   shortcuts,
		ImageRef:    req.ImageRef,
	}
}

// packageIDParam parses the {id} URL parameter.
func packageIDParam(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, apperror.ValidationFailed("id", "id must be a positive integer")
	}
	return id, nil
}

// HandleList returns the full catalog, newest first.
//
// HTTP: GET /api/packages
// Auth: None — browsing is public
//
// The response is always a JSON array, [] when the catalog is empty. No
// pagination: the catalog is the unit clients work with.
func (h *PackageHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	packages, err := h.packages.List(r.Context())
	if err != nil {
		h.logger.Error("listing packages", slog.String("error", err.Error()))
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, packages)
}

// HandleGet returns a single package.
//
// HTTP: GET /api/packages/{id}
// Auth: None
func (h *PackageHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, err := packageIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}

	pkg, err := h.packages.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, pkg)
}

// HandleCreate publishes a new package owned by the caller.
//
// HTTP: POST /api/packages
// Auth: Required
//
// Returns 201 with the stored package, including its server-assigned ID and
// the authorship stamped from the caller's identity.
func (h *PackageHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthorized())
		return
	}

	req, err := h.decodePackageRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}

	created, err := h.packages.Create(r.Context(), identity, req.toModel())
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, created)
}

// HandleUpdate replaces a package's editable fields.
//
// HTTP: PUT /api/packages/{id}
// Auth: Required; only the author succeeds (403 otherwise)
func (h *PackageHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthorized())
		return
	}

	id, err := packageIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}

	req, err := h.decodePackageRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}

	updated, err := h.packages.Update(r.Context(), identity, id, req.toModel())
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, updated)
}

// HandleDelete permanently removes a package.
//
// HTTP: DELETE /api/packages/{id}
// Auth: Required; only the author succeeds (403 otherwise)
//
// A delete of an already-deleted package is a plain 404 — including when two
// deletes race: the loser sees NotFound, never a 500.
func (h *PackageHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthorized())
		return
	}

	id, err := packageIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := h.packages.Delete(r.Context(), identity, id); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "package deleted"})
}

// HandleDownload records a download and returns the updated package.
//
// HTTP: POST /api/packages/{id}/download
// Auth: None — anyone can download, every call counts
func (h *PackageHandler) HandleDownload(w http.ResponseWriter, r *http.Request) {
	id, err := packageIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}

	pkg, err := h.packages.Download(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, pkg)
}
