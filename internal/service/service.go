package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"urlshort/internal/cache"
	"urlshort/internal/database"
	"urlshort/internal/models"
)

// shortCodeAlphabet is the 62-symbol alphabet short codes are drawn from.
// With the default length of 7 the code space is 62^7, so collisions are
// rare but possible; the retry loop below handles them.
const shortCodeAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

const (
	defaultShortCodeLength = 7
	defaultCacheTTL        = time.Hour

	// maxRetries bounds the generation loop. Small because the collision
	// probability per attempt is low.
	maxRetries = 5
)

var (
	// ErrMaxRetriesExceeded is returned when no free short code was found
	// within the attempt budget.
	ErrMaxRetriesExceeded = errors.New("maximum retries exceeded for generating short code")
	// ErrInvalidURL is returned when the original URL is not an absolute
	// http or https URL.
	ErrInvalidURL = errors.New("invalid url")
	// ErrInvalidCustomCode is returned when a custom short code doesn't
	// match the allowed format. Checked before any store access.
	ErrInvalidCustomCode = errors.New("invalid custom code")
	// ErrCustomCodesDisabled is returned when a custom code is supplied
	// while the custom codes feature is off.
	ErrCustomCodesDisabled = errors.New("custom codes are disabled")
	// ErrAnalyticsDisabled is returned when analytics is requested while
	// the analytics feature is off.
	ErrAnalyticsDisabled = errors.New("analytics is disabled")
)

var customCodeRegexp = regexp.MustCompile(`^[a-zA-Z0-9_-]{3,20}$`)

// URLRepository defines the record store operations the service relies on.
// The store is the single source of truth; its unique constraint on
// short_code is the correctness guarantee for code allocation.
type URLRepository interface {
	// Create inserts a new shortened URL. It returns
	// database.ErrShortCodeExists when the code is already taken.
	Create(ctx context.Context, shortCode, originalURL string) (*models.URL, error)

	// GetByShortCode retrieves a URL without mutating it.
	GetByShortCode(ctx context.Context, shortCode string) (*models.URL, error)

	// IncrementClicks atomically increments the click counter and returns
	// the updated record.
	IncrementClicks(ctx context.Context, shortCode string) (*models.URL, error)

	// Delete removes a URL by its short code.
	Delete(ctx context.Context, shortCode string) error

	// Count returns the number of stored URLs.
	Count(ctx context.Context) (int64, error)
}

// URLCache defines the best-effort cache in front of the record store.
// Every error from these methods is absorbed by the service: a Get error
// counts as a miss, a Set or Delete error as a no-op.
type URLCache interface {
	Get(ctx context.Context, shortCode string) (*models.URL, error)
	Set(ctx context.Context, url *models.URL, ttl time.Duration) error
	Delete(ctx context.Context, shortCode string) error
}

// URLService implements the code-generation-and-consistency core: short
// code allocation, the cache-aside read/delete protocol, and the
// analytics click counting.
type URLService struct {
	repo            URLRepository
	cache           URLCache
	logger          *slog.Logger
	shortCodeLength int
	cacheTTL        time.Duration
	analytics       bool
	customCodes     bool
}

type Option func(*URLService)

// WithCache enables the cache-aside path with the given cache and entry TTL.
func WithCache(cache URLCache, ttl time.Duration) Option {
	return func(s *URLService) {
		s.cache = cache
		if ttl > 0 {
			s.cacheTTL = ttl
		}
	}
}

// WithAnalytics enables click counting on resolve and the stats endpoint.
func WithAnalytics() Option {
	return func(s *URLService) {
		s.analytics = true
	}
}

// WithCustomCodes allows callers to supply their own short codes.
func WithCustomCodes() Option {
	return func(s *URLService) {
		s.customCodes = true
	}
}

func WithShortCodeLength(n int) Option {
	return func(s *URLService) {
		if n > 0 {
			s.shortCodeLength = n
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *URLService) {
		s.logger = logger
	}
}

// NewURLService creates a URLService backed by the given repository.
// Without options the service runs with length-7 codes, no cache, and
// analytics and custom codes disabled.
func NewURLService(repo URLRepository, opts ...Option) *URLService {
	s := &URLService{
		repo:            repo,
		logger:          slog.Default(),
		shortCodeLength: defaultShortCodeLength,
		cacheTTL:        defaultCacheTTL,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// ShortenURL creates a shortened URL for originalURL. When customCode is
// empty a unique code is allocated, retrying on collisions up to the
// attempt budget. A non-empty customCode bypasses generation but goes
// through the same existence check and constraint-violation fallback; a
// taken custom code fails with database.ErrShortCodeExists and is never
// retried.
func (s *URLService) ShortenURL(ctx context.Context, originalURL, customCode string) (*models.URL, error) {
	const op = "service.URLService.ShortenURL"

	originalURL = strings.TrimSpace(originalURL)
	if !isValidURL(originalURL) {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidURL)
	}

	if customCode != "" {
		return s.shortenWithCustomCode(ctx, originalURL, customCode)
	}

	for i := 0; i < maxRetries; i++ {
		shortCode, err := gonanoid.Generate(shortCodeAlphabet, s.shortCodeLength)
		if err != nil {
			return nil, fmt.Errorf("%s: failed to generate short code: %w", op, err)
		}

		// Existence check is an optimization only; the unique constraint
		// on insert is what makes concurrent allocation safe.
		if _, err := s.repo.GetByShortCode(ctx, shortCode); err == nil {
			s.logger.Warn("short code collision", slog.String("short_code", shortCode))
			continue
		} else if !errors.Is(err, database.ErrURLNotFound) {
			return nil, fmt.Errorf("%s: failed to check short code: %w", op, err)
		}

		url, err := s.repo.Create(ctx, shortCode, originalURL)
		if err != nil {
			if errors.Is(err, database.ErrShortCodeExists) {
				s.logger.Warn("short code collision on insert", slog.String("short_code", shortCode))
				continue
			}

			return nil, fmt.Errorf("%s: failed to shorten url: %w", op, err)
		}

		return url, nil
	}

	return nil, fmt.Errorf("%s: %w", op, ErrMaxRetriesExceeded)
}

func (s *URLService) shortenWithCustomCode(ctx context.Context, originalURL, customCode string) (*models.URL, error) {
	const op = "service.URLService.shortenWithCustomCode"

	if !s.customCodes {
		return nil, fmt.Errorf("%s: %w", op, ErrCustomCodesDisabled)
	}
	if !customCodeRegexp.MatchString(customCode) {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidCustomCode)
	}

	if _, err := s.repo.GetByShortCode(ctx, customCode); err == nil {
		return nil, fmt.Errorf("%s: %w", op, database.ErrShortCodeExists)
	} else if !errors.Is(err, database.ErrURLNotFound) {
		return nil, fmt.Errorf("%s: failed to check custom code: %w", op, err)
	}

	url, err := s.repo.Create(ctx, customCode, originalURL)
	if err != nil {
		// A racing insert of the same custom code is a deterministic
		// conflict, not a transient one.
		return nil, fmt.Errorf("%s: failed to shorten url: %w", op, err)
	}

	return url, nil
}

// ResolveShortCode returns the URL for a short code, following the
// cache-aside protocol: a cache hit returns immediately with the click
// increment issued fire-and-forget; a miss reads the store (incrementing
// synchronously when analytics is on) and populates the cache with the
// freshly read value before returning.
func (s *URLService) ResolveShortCode(ctx context.Context, shortCode string) (*models.URL, error) {
	const op = "service.URLService.ResolveShortCode"

	if s.cache != nil {
		url, err := s.cache.Get(ctx, shortCode)
		if err == nil {
			if s.analytics {
				// Detached from the request: the read already returned and
				// a failed increment must not affect the caller.
				go func() {
					if _, err := s.repo.IncrementClicks(context.Background(), shortCode); err != nil {
						s.logger.Error("async click increment failed",
							slog.String("short_code", shortCode), slog.Any("err", err))
					}
				}()
			}

			return url, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			s.logger.Warn("cache get failed, falling back to store", slog.Any("err", err))
		}
	}

	var url *models.URL
	var err error
	if s.analytics {
		url, err = s.repo.IncrementClicks(ctx, shortCode)
	} else {
		url, err = s.repo.GetByShortCode(ctx, shortCode)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: failed to resolve short code: %w", op, err)
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, url, s.cacheTTL); err != nil {
			s.logger.Warn("cache set failed", slog.Any("err", err))
		}
	}

	return url, nil
}

// GetURLStats returns the analytics view of a short code without
// incrementing its click count.
func (s *URLService) GetURLStats(ctx context.Context, shortCode string) (*models.URL, error) {
	const op = "service.URLService.GetURLStats"

	if !s.analytics {
		return nil, fmt.Errorf("%s: %w", op, ErrAnalyticsDisabled)
	}

	url, err := s.repo.GetByShortCode(ctx, shortCode)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to get url stats: %w", op, err)
	}

	return url, nil
}

// DeleteURL removes a short code from the store and invalidates its cache
// entry before returning, so a read after delete never sees the stale copy.
func (s *URLService) DeleteURL(ctx context.Context, shortCode string) error {
	const op = "service.URLService.DeleteURL"

	if err := s.repo.Delete(ctx, shortCode); err != nil {
		return fmt.Errorf("%s: failed to delete url: %w", op, err)
	}

	if s.cache != nil {
		if err := s.cache.Delete(ctx, shortCode); err != nil {
			s.logger.Warn("cache invalidation failed", slog.String("short_code", shortCode), slog.Any("err", err))
		}
	}

	return nil
}

// URLCount returns the number of stored URLs, exposed by the health endpoint.
func (s *URLService) URLCount(ctx context.Context) (int64, error) {
	const op = "service.URLService.URLCount"

	count, err := s.repo.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("%s: failed to count urls: %w", op, err)
	}

	return count, nil
}

func isValidURL(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}

	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
