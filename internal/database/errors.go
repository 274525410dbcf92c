package database

import "errors"

var (
	// ErrShortCodeExists is returned when an attempt is made to insert
	// a shortened URL with a short code that is already taken. For generated
	// codes the caller retries with a fresh code; for custom codes the
	// conflict is deterministic and surfaced to the client.
	ErrShortCodeExists = errors.New("short code exists")
	// ErrURLNotFound is returned when an attempt is made to retrieve
	// a URL using a short code that doesn't exist.
	ErrURLNotFound = errors.New("url not found")
)
