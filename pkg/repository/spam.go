package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/umputun/newsdigest/pkg/domain"
)

// SpamRepository handles spam flags
type SpamRepository struct {
	db *sqlx.DB
}

// NewSpamRepository creates a new spam repository
func NewSpamRepository(db *sqlx.DB) *SpamRepository {
	return &SpamRepository{db: db}
}

// ReportSpam stores a spam flag, reporting the same url again refreshes it
func (r *SpamRepository) ReportSpam(ctx context.Context, rep domain.SpamReport) error {
	if rep.URL == "" {
		return fmt.Errorf("report spam: empty url")
	}
	return withRetry(ctx, func() error {
		query := `
			INSERT INTO spam_reports (url, origin, title, reason, reported_at)
			VALUES (:url, :origin, :title, :reason, CURRENT_TIMESTAMP)
			ON CONFLICT(url) DO UPDATE SET
				origin = excluded.origin,
				title = excluded.title,
				reason = excluded.reason,
				reported_at = excluded.reported_at
		`
		if _, err := r.db.NamedExecContext(ctx, query, rep); err != nil {
			if isLockError(err) {
				return err // retry
			}
			return &criticalError{err: fmt.Errorf("report spam: %w", err)}
		}
		return nil
	})
}

// UnreportSpam removes the spam flag, removing a missing flag is not an error
func (r *SpamRepository) UnreportSpam(ctx context.Context, url string) error {
	return withRetry(ctx, func() error {
		if _, err := r.db.ExecContext(ctx, "DELETE FROM spam_reports WHERE url = ?", url); err != nil {
			if isLockError(err) {
				return err // retry
			}
			return &criticalError{err: fmt.Errorf("unreport spam: %w", err)}
		}
		return nil
	})
}

// SpamURLs returns all flagged urls
func (r *SpamRepository) SpamURLs(ctx context.Context) ([]string, error) {
	var urls []string
	if err := r.db.SelectContext(ctx, &urls, "SELECT url FROM spam_reports ORDER BY url"); err != nil {
		return nil, fmt.Errorf("get spam urls: %w", err)
	}
	return urls, nil
}

// SpamReport is a stored spam flag with its report time
type SpamReport struct {
	domain.SpamReport
	ReportedAt time.Time `db:"reported_at" json:"reported_at"`
}

// SpamReports returns flags for the origin, newest first. Empty origin returns all of them.
func (r *SpamRepository) SpamReports(ctx context.Context, origin string) ([]SpamReport, error) {
	query := "SELECT url, origin, title, reason, reported_at FROM spam_reports"
	args := []any{}
	if origin != "" {
		query += " WHERE origin = ?"
		args = append(args, origin)
	}
	query += " ORDER BY reported_at DESC, url"

	var res []SpamReport
	if err := r.db.SelectContext(ctx, &res, query, args...); err != nil {
		return nil, fmt.Errorf("get spam reports: %w", err)
	}
	return res, nil
}
