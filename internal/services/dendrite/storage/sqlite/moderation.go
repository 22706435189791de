package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/louisbranch/dendrite/internal/services/dendrite/domain"
	"github.com/louisbranch/dendrite/internal/services/dendrite/storage"
)

// SampleUnmoderatedVariant walks domain.ModerationSamplePlan from draw and
// returns the first candidate in rand order.
func (s *Store) SampleUnmoderatedVariant(ctx context.Context, draw float64) (domain.VariantRef, domain.Variant, error) {
	if err := s.ready(ctx); err != nil {
		return domain.VariantRef{}, domain.Variant{}, err
	}
	for _, step := range domain.ModerationSamplePlan {
		query := `SELECT story_id, page_id,` + variantColumns + ` FROM variants WHERE `
		if step.Unmoderated {
			query += `moderator_reputation_sum = 0 AND `
		}
		if step.Below {
			query += `rand < ?`
		} else {
			query += `rand >= ?`
		}
		query += ` ORDER BY rand, story_id, page_id, id LIMIT 1`

		var storyID, pageID string
		row := prefixedRow{row: s.sqlDB.QueryRowContext(ctx, query, draw), prefix: []any{&storyID, &pageID}}
		variantID, variant, err := scanVariant(row)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return domain.VariantRef{}, domain.Variant{}, fmt.Errorf("sample variant: %w", err)
		}
		return domain.PageRef{StoryID: storyID, PageID: pageID}.Variant(variantID), variant, nil
	}
	return domain.VariantRef{}, domain.Variant{}, fmt.Errorf("variant to moderate: %w", storage.ErrNotFound)
}

// prefixedRow scans leading columns into prefix before handing the rest to
// the caller's destinations.
type prefixedRow struct {
	row    rowScanner
	prefix []any
}

func (r prefixedRow) Scan(dest ...any) error {
	return r.row.Scan(append(append([]any{}, r.prefix...), dest...)...)
}

// SaveModerationJob replaces the moderator's current assignment.
func (s *Store) SaveModerationJob(ctx context.Context, job domain.ModerationJob) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	job.ModeratorID = strings.TrimSpace(job.ModeratorID)
	if job.ModeratorID == "" {
		return fmt.Errorf("moderator id is required")
	}
	if !job.Variant.Valid() {
		return fmt.Errorf("moderation job variant is required")
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = s.now()
	}
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO moderator_jobs (moderator_id, story_id, page_id, variant_id, created_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(moderator_id) DO UPDATE SET
	story_id = excluded.story_id,
	page_id = excluded.page_id,
	variant_id = excluded.variant_id,
	created_at = excluded.created_at
`, job.ModeratorID, job.Variant.StoryID, job.Variant.PageID, job.Variant.VariantID, toMillis(job.CreatedAt))
	if err != nil {
		return fmt.Errorf("save moderation job: %w", err)
	}
	return nil
}

// GetModerationJob returns the moderator's current assignment.
func (s *Store) GetModerationJob(ctx context.Context, moderatorID string) (domain.ModerationJob, error) {
	if err := s.ready(ctx); err != nil {
		return domain.ModerationJob{}, err
	}
	var (
		job       = domain.ModerationJob{ModeratorID: moderatorID}
		createdAt int64
	)
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT story_id, page_id, variant_id, created_at FROM moderator_jobs WHERE moderator_id = ?`,
		moderatorID,
	).Scan(&job.Variant.StoryID, &job.Variant.PageID, &job.Variant.VariantID, &createdAt)
	if err != nil {
		return domain.ModerationJob{}, notFound(err, "moderation job for "+moderatorID)
	}
	job.CreatedAt = fromMillis(createdAt)
	return job, nil
}

// ClearModerationJob drops the moderator's assignment. Clearing a moderator
// with no job is not an error.
func (s *Store) ClearModerationJob(ctx context.Context, moderatorID string) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if _, err := s.sqlDB.ExecContext(ctx, `DELETE FROM moderator_jobs WHERE moderator_id = ?`, moderatorID); err != nil {
		return fmt.Errorf("clear moderation job: %w", err)
	}
	return nil
}

// SaveModerationReport inserts one reader report.
func (s *Store) SaveModerationReport(ctx context.Context, report domain.ModerationReport) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	report.ID = strings.TrimSpace(report.ID)
	if report.ID == "" {
		return fmt.Errorf("report id is required")
	}
	if report.CreatedAt.IsZero() {
		report.CreatedAt = s.now()
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO moderation_reports (id, variant, created_at) VALUES (?, ?, ?)`,
		report.ID, report.Variant, toMillis(report.CreatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("moderation report %s: %w", report.ID, storage.ErrConflict)
		}
		return fmt.Errorf("save moderation report: %w", err)
	}
	return nil
}

// ListModerationReports lists reports oldest first.
func (s *Store) ListModerationReports(ctx context.Context, limit int) ([]domain.ModerationReport, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT id, variant, created_at FROM moderation_reports ORDER BY created_at, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list moderation reports: %w", err)
	}
	defer rows.Close()

	reports := make([]domain.ModerationReport, 0, limit)
	for rows.Next() {
		var (
			report    domain.ModerationReport
			createdAt int64
		)
		if err := rows.Scan(&report.ID, &report.Variant, &createdAt); err != nil {
			return nil, fmt.Errorf("scan moderation report: %w", err)
		}
		report.CreatedAt = fromMillis(createdAt)
		reports = append(reports, report)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate moderation reports: %w", err)
	}
	return reports, nil
}
