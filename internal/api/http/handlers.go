package http

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httplog/v2"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	"urlshort/internal/config"
	"urlshort/internal/database"
	"urlshort/internal/models"
	"urlshort/internal/service"
	"urlshort/pkg/response"
)

// handlePing handles health check requests to ensure the server is running.
func handlePing(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "pong")
}

// shortenRequest represents the request payload for creating a shortened URL.
type shortenRequest struct {
	URL        string `json:"url" validate:"required,url"`
	CustomCode string `json:"custom_code,omitempty"`
}

// shortenResponse represents the response payload for a created short URL.
type shortenResponse struct {
	ShortCode   string    `json:"short_code"`
	OriginalURL string    `json:"original_url"`
	ShortURL    string    `json:"short_url"`
	CreatedAt   time.Time `json:"created_at"`
}

// analyticsResponse represents the analytics payload for a short URL.
type analyticsResponse struct {
	ShortCode      string    `json:"short_code"`
	OriginalURL    string    `json:"original_url"`
	Clicks         int64     `json:"clicks"`
	CreatedAt      time.Time `json:"created_at"`
	LastAccessedAt time.Time `json:"last_accessed_at"`
}

// healthResponse represents the health payload, exposing the stored URL
// count and the active feature flags.
type healthResponse struct {
	Status   string          `json:"status"`
	URLCount int64           `json:"url_count"`
	Features config.Features `json:"features"`
}

func shortURL(baseURL, shortCode string) string {
	return strings.TrimSuffix(baseURL, "/") + "/" + shortCode
}

// handleShortenURL handles POST requests to shorten a URL.
//
// The request must contain a valid URL and may carry a custom short code
// when that feature is enabled. The handler validates the input, calls the
// URL shortening service, and returns the short link with its metadata.
func handleShortenURL(svc URLService, validate *validator.Validate, baseURL string) http.HandlerFunc {
	const op = "api.http.handleShortenURL"

	return func(w http.ResponseWriter, r *http.Request) {
		var req shortenRequest

		if err := render.DecodeJSON(r.Body, &req); err != nil {
			if errors.Is(err, io.EOF) {
				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, response.EmptyRequestBodyResponse)
				return
			}

			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.BadRequestResponse)
			return
		}

		if err := validate.Struct(req); err != nil {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.ValidationErrorResponse(err))
			return
		}

		url, err := svc.ShortenURL(r.Context(), req.URL, req.CustomCode)
		if err != nil {
			switch {
			case errors.Is(err, service.ErrInvalidURL), errors.Is(err, service.ErrInvalidCustomCode):
				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, response.BadRequestResponse)
			case errors.Is(err, service.ErrCustomCodesDisabled):
				render.Status(r, http.StatusForbidden)
				render.JSON(w, r, response.FeatureDisabledResponse)
			case errors.Is(err, database.ErrShortCodeExists):
				render.Status(r, http.StatusConflict)
				render.JSON(w, r, response.ShortCodeConflictResponse)
			default:
				httplog.LogEntrySetFields(r.Context(), map[string]any{"op": op, "err": err})

				render.Status(r, http.StatusInternalServerError)
				render.JSON(w, r, response.ServerErrorResponse)
			}
			return
		}

		render.Status(r, http.StatusCreated)
		render.JSON(w, r, shortenResponse{
			ShortCode:   url.ShortCode,
			OriginalURL: url.OriginalURL,
			ShortURL:    shortURL(baseURL, url.ShortCode),
			CreatedAt:   url.CreatedAt,
		})
	}
}

// handleRedirect handles GET requests on a short code and redirects to the
// original URL with a permanent redirect.
func handleRedirect(svc URLService) http.HandlerFunc {
	const op = "api.http.handleRedirect"

	return func(w http.ResponseWriter, r *http.Request) {
		shortCode := chi.URLParam(r, "shortCode")

		url, err := svc.ResolveShortCode(r.Context(), shortCode)
		if err != nil {
			if errors.Is(err, database.ErrURLNotFound) {
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, response.ResourceNotFoundResponse)
				return
			}

			httplog.LogEntrySetFields(r.Context(), map[string]any{"op": op, "err": err})

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, response.ServerErrorResponse)
			return
		}

		http.Redirect(w, r, url.OriginalURL, http.StatusMovedPermanently)
	}
}

// handleDeleteURL handles DELETE requests for a short code. A repeated
// delete of the same code returns 404 without error.
func handleDeleteURL(svc URLService) http.HandlerFunc {
	const op = "api.http.handleDeleteURL"

	return func(w http.ResponseWriter, r *http.Request) {
		shortCode := chi.URLParam(r, "shortCode")

		if err := svc.DeleteURL(r.Context(), shortCode); err != nil {
			if errors.Is(err, database.ErrURLNotFound) {
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, response.ResourceNotFoundResponse)
				return
			}

			httplog.LogEntrySetFields(r.Context(), map[string]any{"op": op, "err": err})

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, response.ServerErrorResponse)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

// handleGetAnalytics handles GET requests for the analytics of a short
// code. Returns 403 when the analytics feature is disabled.
func handleGetAnalytics(svc URLService) http.HandlerFunc {
	const op = "api.http.handleGetAnalytics"

	return func(w http.ResponseWriter, r *http.Request) {
		shortCode := chi.URLParam(r, "shortCode")

		url, err := svc.GetURLStats(r.Context(), shortCode)
		if err != nil {
			switch {
			case errors.Is(err, service.ErrAnalyticsDisabled):
				render.Status(r, http.StatusForbidden)
				render.JSON(w, r, response.FeatureDisabledResponse)
			case errors.Is(err, database.ErrURLNotFound):
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, response.ResourceNotFoundResponse)
			default:
				httplog.LogEntrySetFields(r.Context(), map[string]any{"op": op, "err": err})

				render.Status(r, http.StatusInternalServerError)
				render.JSON(w, r, response.ServerErrorResponse)
			}
			return
		}

		render.Status(r, http.StatusOK)
		render.JSON(w, r, toAnalyticsResponse(url))
	}
}

func toAnalyticsResponse(url *models.URL) analyticsResponse {
	return analyticsResponse{
		ShortCode:      url.ShortCode,
		OriginalURL:    url.OriginalURL,
		Clicks:         url.Clicks,
		CreatedAt:      url.CreatedAt,
		LastAccessedAt: url.UpdatedAt,
	}
}

// handleHealth reports process health along with the stored URL count and
// the feature flags the instance is running with.
func handleHealth(svc URLService, features config.Features) http.HandlerFunc {
	const op = "api.http.handleHealth"

	return func(w http.ResponseWriter, r *http.Request) {
		count, err := svc.URLCount(r.Context())
		if err != nil {
			httplog.LogEntrySetFields(r.Context(), map[string]any{"op": op, "err": err})

			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, response.ServerErrorResponse)
			return
		}

		render.Status(r, http.StatusOK)
		render.JSON(w, r, healthResponse{
			Status:   "healthy",
			URLCount: count,
			Features: features,
		})
	}
}
