package models

import "time"

// URL represents a shortened URL and its associated metadata.
type URL struct {
	// ID is the unique identifier for the shortened URL record.
	ID int64
	// ShortCode is the short code associated with the original URL.
	ShortCode string
	// OriginalURL is the original, full-length URL that the short code points to.
	// It is immutable after creation.
	OriginalURL string
	// Clicks tracks the number of times the shortened URL has been resolved.
	// It never decreases.
	Clicks int64
	// CreatedAt is the timestamp indicating when the shortened URL was created.
	CreatedAt time.Time
	// UpdatedAt is the timestamp of the last click increment.
	UpdatedAt time.Time
}
