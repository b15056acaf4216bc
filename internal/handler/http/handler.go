package http

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"link-tracker/internal/domain"
	"link-tracker/internal/service"
	"link-tracker/pkg/logger"
	"link-tracker/pkg/validator"

	"github.com/go-chi/chi/v5"
)

// maxConvertBody caps the /convert request body
const maxConvertBody = 1 << 20

// Converter turns a destination into an appended or redirect URL
type Converter interface {
	Convert(ctx context.Context, req service.ConvertRequest) (*service.ConvertResult, error)
}

// Tracker records a visit and returns the page to show
type Tracker interface {
	Visit(ctx context.Context, slug, ip, userAgent, referer string) (*service.HoldingPage, error)
}

// Handler holds dependencies for HTTP handlers
type Handler struct {
	converter Converter
	tracker   Tracker
	hookToken string
	logger    *logger.Logger
}

// NewHandler creates a new HTTP handler. An empty hookToken disables the
// shared-secret check on /convert.
func NewHandler(converter Converter, tracker Tracker, hookToken string, log *slog.Logger) *Handler {
	return &Handler{
		converter: converter,
		tracker:   tracker,
		hookToken: hookToken,
		logger:    &logger.Logger{Logger: log},
	}
}

// requestLogger tags lines with the request ID and route
func (h *Handler) requestLogger(r *http.Request) *logger.Logger {
	return h.logger.WithContext(r.Context()).WithFields(map[string]interface{}{
		"method": r.Method,
		"path":   r.URL.Path,
	})
}

type ConvertRequest struct {
	URL        string         `json:"url"`
	Prefer     string         `json:"prefer,omitempty"`
	Identifier string         `json:"identifier,omitempty"`
	Name       string         `json:"name,omitempty"`
	Meta       map[string]any `json:"meta,omitempty"`
}

type AppendResponse struct {
	Mode        domain.ConversionMode `json:"mode"`
	AppendedURL string                `json:"appended_url"`
}

type RedirectResponse struct {
	Mode     domain.ConversionMode `json:"mode"`
	ShortURL string                `json:"short_url"`
	Slug     string                `json:"slug"`
}

// Convert handles POST /convert
func (h *Handler) Convert(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(r) {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req ConvertRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxConvertBody)).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid json")
		return
	}
	defer r.Body.Close()

	result, err := h.converter.Convert(r.Context(), service.ConvertRequest{
		URL:        req.URL,
		Prefer:     validator.ParsePrefer(req.Prefer),
		Identifier: strings.TrimSpace(req.Identifier),
		Name:       req.Name,
		Meta:       req.Meta,
	})
	switch {
	case errors.Is(err, domain.ErrMissingURL):
		respondError(w, http.StatusBadRequest, "missing url")
		return
	case errors.Is(err, validator.ErrInvalidURL):
		respondError(w, http.StatusBadRequest, "invalid url")
		return
	case err != nil:
		h.requestLogger(r).Error("Failed to convert URL", "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	if result.Mode == domain.ModeAppend {
		respondJSON(w, http.StatusOK, AppendResponse{Mode: result.Mode, AppendedURL: result.URL})
		return
	}
	respondJSON(w, http.StatusCreated, RedirectResponse{Mode: result.Mode, ShortURL: result.URL, Slug: result.Slug})
}

// Visit handles GET /r/{slug}
func (h *Handler) Visit(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")

	page, err := h.tracker.Visit(r.Context(), slug, extractIP(r), r.UserAgent(), r.Referer())
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			respondError(w, http.StatusNotFound, "not found")
			return
		}
		h.requestLogger(r).Error("Failed to resolve slug", "slug", slug, "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
		return
	}

	renderHoldingPage(w, page, h.requestLogger(r).Logger)
}

// HealthCheck handles GET /health/live
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   time.Now().Format(time.RFC3339),
	})
}

// authorized checks the shared secret in x-hook-token, falling back to Authorization
func (h *Handler) authorized(r *http.Request) bool {
	if h.hookToken == "" {
		return true
	}
	provided := r.Header.Get("X-Hook-Token")
	if provided == "" {
		provided = r.Header.Get("Authorization")
	}
	return subtle.ConstantTimeCompare([]byte(provided), []byte(h.hookToken)) == 1
}
