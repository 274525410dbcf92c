package http

import (
	"context"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httplog/v2"
	"github.com/go-playground/validator/v10"

	"urlshort/internal/config"
	"urlshort/internal/models"
	"urlshort/internal/ratelimit"
)

// URLService defines the core URL shortening operations exposed over HTTP.
type URLService interface {
	// ShortenURL creates a shortened version of the provided original URL.
	// An empty customCode means a code is generated.
	ShortenURL(ctx context.Context, originalURL, customCode string) (*models.URL, error)

	// ResolveShortCode retrieves the original URL for a given short code,
	// counting the click when analytics is enabled.
	ResolveShortCode(ctx context.Context, shortCode string) (*models.URL, error)

	// GetURLStats retrieves the analytics of the URL associated with the
	// short code without counting a click.
	GetURLStats(ctx context.Context, shortCode string) (*models.URL, error)

	// DeleteURL removes the URL and invalidates its cached copy.
	DeleteURL(ctx context.Context, shortCode string) error

	// URLCount returns the number of stored URLs.
	URLCount(ctx context.Context) (int64, error)
}

// RouterConfig carries the request-surface configuration: the public base
// URL used to build short links, the feature flags reported by the health
// endpoint, and the optional rate limiter.
type RouterConfig struct {
	BaseURL  string
	Features config.Features
	Limiter  *ratelimit.SlidingWindow
}

// getValidate initializes a new validator instance for validating incoming request payloads.
// It customizes tag name extraction from struct fields to match JSON tags.
func getValidate() *validator.Validate {
	validate := validator.New()

	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return validate
}

// NewRouter initializes and returns a new HTTP router with all routes and middleware configured.
func NewRouter(logger *httplog.Logger, urlSvc URLService, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*"},
		AllowedMethods:   []string{"POST", "GET", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Accept"},
		AllowCredentials: false,
		MaxAge:           84600,
	}))
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(httplog.RequestLogger(logger))
	r.Use(middleware.Recoverer)

	if cfg.Features.RateLimiting && cfg.Limiter != nil {
		r.Use(rateLimit(cfg.Limiter))
	}

	r.Get("/{shortCode}", handleRedirect(urlSvc))

	r.Route("/api", func(r chi.Router) {
		validate := getValidate()

		r.Get("/ping", handlePing)
		r.Get("/health", handleHealth(urlSvc, cfg.Features))

		r.With(middleware.AllowContentType("application/json")).
			Post("/shorten", handleShortenURL(urlSvc, validate, cfg.BaseURL))

		r.Delete("/urls/{shortCode}", handleDeleteURL(urlSvc))
		r.Get("/analytics/{shortCode}", handleGetAnalytics(urlSvc))
	})

	return r
}
