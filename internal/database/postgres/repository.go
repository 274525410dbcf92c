package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"urlshort/internal/database"
	"urlshort/internal/models"
)

type urlRecord struct {
	ID          int64     `db:"id"`
	ShortCode   string    `db:"short_code"`
	OriginalURL string    `db:"original_url"`
	Clicks      int64     `db:"clicks"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

func (r *urlRecord) ToURL() *models.URL {
	return &models.URL{
		ID:          r.ID,
		ShortCode:   r.ShortCode,
		OriginalURL: r.OriginalURL,
		Clicks:      r.Clicks,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

// URLRepository provides access to the urls table. All operations are
// single-statement and atomic at the row level.
type URLRepository struct {
	db *sqlx.DB
}

func NewURLRepository(db *sqlx.DB) *URLRepository {
	return &URLRepository{
		db: db,
	}
}

// Create inserts a new url record. The insert fails atomically with
// database.ErrShortCodeExists when the short code is already taken,
// rather than silently overwriting.
func (r *URLRepository) Create(ctx context.Context, shortCode, originalURL string) (*models.URL, error) {
	const op = "database.postgres.URLRepository.Create"

	rec := new(urlRecord)
	query := `INSERT INTO urls(short_code, original_url)
		VALUES ($1, $2)
		RETURNING *`

	err := r.db.GetContext(ctx, rec, query, shortCode, originalURL)
	if err != nil {
		if isUniqueViolationError(err) {
			return nil, fmt.Errorf("%s: %w", op, database.ErrShortCodeExists)
		}

		return nil, fmt.Errorf("%s: failed to create url record: %w", op, err)
	}

	return rec.ToURL(), nil
}

// GetByShortCode retrieves a url record without touching its click count.
func (r *URLRepository) GetByShortCode(ctx context.Context, shortCode string) (*models.URL, error) {
	const op = "database.postgres.URLRepository.GetByShortCode"

	rec := new(urlRecord)
	query := `SELECT * FROM urls
		WHERE short_code = $1`

	err := r.db.GetContext(ctx, rec, query, shortCode)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%s: %w", op, database.ErrURLNotFound)
		}

		return nil, fmt.Errorf("%s: failed to get url record: %w", op, err)
	}

	return rec.ToURL(), nil
}

// IncrementClicks atomically increments the click counter and returns the
// updated record in one statement. A separate read+write from the caller
// would lose increments under concurrent resolves of a hot code.
func (r *URLRepository) IncrementClicks(ctx context.Context, shortCode string) (*models.URL, error) {
	const op = "database.postgres.URLRepository.IncrementClicks"

	rec := new(urlRecord)
	query := `UPDATE urls
		SET clicks = clicks + 1, updated_at = now()
		WHERE short_code = $1
		RETURNING *`

	err := r.db.GetContext(ctx, rec, query, shortCode)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%s: %w", op, database.ErrURLNotFound)
		}

		return nil, fmt.Errorf("%s: failed to increment clicks: %w", op, err)
	}

	return rec.ToURL(), nil
}

// Delete removes a url record. Deleting an unknown short code returns
// database.ErrURLNotFound, so a second delete is a clean not-found.
func (r *URLRepository) Delete(ctx context.Context, shortCode string) error {
	const op = "database.postgres.URLRepository.Delete"

	query := `DELETE FROM urls
		WHERE short_code = $1`

	res, err := r.db.ExecContext(ctx, query, shortCode)
	if err != nil {
		return fmt.Errorf("%s: failed to delete url record: %w", op, err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: failed to get affected rows: %w", op, err)
	}
	if rows == 0 {
		return fmt.Errorf("%s: %w", op, database.ErrURLNotFound)
	}

	return nil
}

// Count returns the number of stored urls.
func (r *URLRepository) Count(ctx context.Context) (int64, error) {
	const op = "database.postgres.URLRepository.Count"

	var count int64
	query := `SELECT COUNT(*) FROM urls`

	if err := r.db.GetContext(ctx, &count, query); err != nil {
		return 0, fmt.Errorf("%s: failed to count url records: %w", op, err)
	}

	return count, nil
}
