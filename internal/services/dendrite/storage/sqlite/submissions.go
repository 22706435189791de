package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/louisbranch/dendrite/internal/services/dendrite/domain"
	"github.com/louisbranch/dendrite/internal/services/dendrite/storage"
)

// SavePageSubmission inserts one pending page submission.
func (s *Store) SavePageSubmission(ctx context.Context, submission domain.PageSubmission) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	submission.ID = strings.TrimSpace(submission.ID)
	if submission.ID == "" {
		return fmt.Errorf("submission id is required")
	}
	options, err := encodeOptions(submission.Options)
	if err != nil {
		return err
	}
	if submission.CreatedAt.IsZero() {
		submission.CreatedAt = s.now()
	}

	_, err = s.sqlDB.ExecContext(ctx, `
INSERT INTO page_submissions (
	id,
	incoming_option_full_name,
	page_number,
	content,
	author,
	author_id,
	options_json,
	processed,
	created_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
`,
		submission.ID,
		submission.IncomingOptionFullName,
		submission.PageNumber,
		submission.Content,
		submission.Author,
		submission.AuthorID,
		options,
		boolToInt(submission.Processed),
		toMillis(submission.CreatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("page submission %s: %w", submission.ID, storage.ErrConflict)
		}
		return fmt.Errorf("save page submission: %w", err)
	}
	return nil
}

// SaveStorySubmission inserts one pending story submission.
func (s *Store) SaveStorySubmission(ctx context.Context, submission domain.StorySubmission) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	submission.ID = strings.TrimSpace(submission.ID)
	if submission.ID == "" {
		return fmt.Errorf("submission id is required")
	}
	options, err := encodeOptions(submission.Options)
	if err != nil {
		return err
	}
	if submission.CreatedAt.IsZero() {
		submission.CreatedAt = s.now()
	}

	_, err = s.sqlDB.ExecContext(ctx, `
INSERT INTO story_submissions (
	id,
	title,
	content,
	author,
	author_id,
	options_json,
	processed,
	created_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
`,
		submission.ID,
		submission.Title,
		submission.Content,
		submission.Author,
		submission.AuthorID,
		options,
		boolToInt(submission.Processed),
		toMillis(submission.CreatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("story submission %s: %w", submission.ID, storage.ErrConflict)
		}
		return fmt.Errorf("save story submission: %w", err)
	}
	return nil
}

// SaveModerationRating inserts one pending moderation rating.
func (s *Store) SaveModerationRating(ctx context.Context, rating domain.ModerationRating) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	rating.ID = strings.TrimSpace(rating.ID)
	if rating.ID == "" {
		return fmt.Errorf("rating id is required")
	}
	if rating.RatedAt.IsZero() {
		rating.RatedAt = s.now()
	}
	var approved sql.NullBool
	if rating.IsApproved != nil {
		approved = sql.NullBool{Bool: *rating.IsApproved, Valid: true}
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO moderation_ratings (
	id,
	moderator_id,
	variant_id,
	is_approved,
	rated_at,
	processed
) VALUES (?, ?, ?, ?, ?, ?)
`,
		rating.ID,
		rating.ModeratorID,
		rating.VariantID,
		approved,
		toMillis(rating.RatedAt),
		boolToInt(rating.Processed),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("moderation rating %s: %w", rating.ID, storage.ErrConflict)
		}
		return fmt.Errorf("save moderation rating: %w", err)
	}
	return nil
}

const pageSubmissionColumns = `
	id,
	incoming_option_full_name,
	page_number,
	content,
	author,
	author_id,
	options_json,
	processed,
	created_at`

const storySubmissionColumns = `
	id,
	title,
	content,
	author,
	author_id,
	options_json,
	processed,
	created_at`

// GetPageSubmission returns one page submission.
func (s *Store) GetPageSubmission(ctx context.Context, id string) (domain.PageSubmission, error) {
	if err := s.ready(ctx); err != nil {
		return domain.PageSubmission{}, err
	}
	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT`+pageSubmissionColumns+` FROM page_submissions WHERE id = ?`, id)
	submission, err := scanPageSubmission(row)
	if err != nil {
		return domain.PageSubmission{}, notFound(err, "page submission "+id)
	}
	return submission, nil
}

// GetStorySubmission returns one story submission.
func (s *Store) GetStorySubmission(ctx context.Context, id string) (domain.StorySubmission, error) {
	if err := s.ready(ctx); err != nil {
		return domain.StorySubmission{}, err
	}
	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT`+storySubmissionColumns+` FROM story_submissions WHERE id = ?`, id)
	submission, err := scanStorySubmission(row)
	if err != nil {
		return domain.StorySubmission{}, notFound(err, "story submission "+id)
	}
	return submission, nil
}

// ListPendingPageSubmissions lists unprocessed page submissions due at now,
// oldest first.
func (s *Store) ListPendingPageSubmissions(ctx context.Context, limit int, now time.Time) ([]domain.PageSubmission, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT`+pageSubmissionColumns+` FROM page_submissions
WHERE processed = 0 AND next_attempt_at <= ?
ORDER BY created_at, id
LIMIT ?
`, toMillis(now), limit)
	if err != nil {
		return nil, fmt.Errorf("list pending page submissions: %w", err)
	}
	defer rows.Close()

	submissions := make([]domain.PageSubmission, 0, limit)
	for rows.Next() {
		submission, err := scanPageSubmission(rows)
		if err != nil {
			return nil, fmt.Errorf("scan page submission: %w", err)
		}
		submissions = append(submissions, submission)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate page submissions: %w", err)
	}
	return submissions, nil
}

// ListPendingStorySubmissions lists unprocessed story submissions due at
// now, oldest first.
func (s *Store) ListPendingStorySubmissions(ctx context.Context, limit int, now time.Time) ([]domain.StorySubmission, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT`+storySubmissionColumns+` FROM story_submissions
WHERE processed = 0 AND next_attempt_at <= ?
ORDER BY created_at, id
LIMIT ?
`, toMillis(now), limit)
	if err != nil {
		return nil, fmt.Errorf("list pending story submissions: %w", err)
	}
	defer rows.Close()

	submissions := make([]domain.StorySubmission, 0, limit)
	for rows.Next() {
		submission, err := scanStorySubmission(rows)
		if err != nil {
			return nil, fmt.Errorf("scan story submission: %w", err)
		}
		submissions = append(submissions, submission)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate story submissions: %w", err)
	}
	return submissions, nil
}

// ListPendingModerationRatings lists unprocessed ratings due at now, oldest
// first.
func (s *Store) ListPendingModerationRatings(ctx context.Context, limit int, now time.Time) ([]domain.ModerationRating, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT id, moderator_id, variant_id, is_approved, rated_at, processed
FROM moderation_ratings
WHERE processed = 0 AND next_attempt_at <= ?
ORDER BY rated_at, id
LIMIT ?
`, toMillis(now), limit)
	if err != nil {
		return nil, fmt.Errorf("list pending moderation ratings: %w", err)
	}
	defer rows.Close()

	ratings := make([]domain.ModerationRating, 0, limit)
	for rows.Next() {
		var (
			rating    domain.ModerationRating
			approved  sql.NullBool
			ratedAt   int64
			processed int
		)
		if err := rows.Scan(&rating.ID, &rating.ModeratorID, &rating.VariantID, &approved, &ratedAt, &processed); err != nil {
			return nil, fmt.Errorf("scan moderation rating: %w", err)
		}
		if approved.Valid {
			value := approved.Bool
			rating.IsApproved = &value
		}
		rating.RatedAt = fromMillis(ratedAt)
		rating.Processed = processed != 0
		ratings = append(ratings, rating)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate moderation ratings: %w", err)
	}
	return ratings, nil
}

// MarkPageSubmissionProcessed stamps a page submission processed outside any batch.
func (s *Store) MarkPageSubmissionProcessed(ctx context.Context, id string) error {
	return s.markProcessed(ctx, "page_submissions", id)
}

// MarkStorySubmissionProcessed stamps a story submission processed outside any batch.
func (s *Store) MarkStorySubmissionProcessed(ctx context.Context, id string) error {
	return s.markProcessed(ctx, "story_submissions", id)
}

// MarkModerationRatingProcessed stamps a moderation rating processed.
func (s *Store) MarkModerationRatingProcessed(ctx context.Context, id string) error {
	return s.markProcessed(ctx, "moderation_ratings", id)
}

// DeferPageSubmission hides a pending page submission until until.
func (s *Store) DeferPageSubmission(ctx context.Context, id string, until time.Time) error {
	return s.deferPending(ctx, "page_submissions", id, until)
}

// DeferStorySubmission hides a pending story submission until until.
func (s *Store) DeferStorySubmission(ctx context.Context, id string, until time.Time) error {
	return s.deferPending(ctx, "story_submissions", id, until)
}

// DeferModerationRating hides a pending moderation rating until until.
func (s *Store) DeferModerationRating(ctx context.Context, id string, until time.Time) error {
	return s.deferPending(ctx, "moderation_ratings", id, until)
}

func (s *Store) deferPending(ctx context.Context, table, id string, until time.Time) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	result, err := s.sqlDB.ExecContext(ctx,
		`UPDATE `+table+` SET next_attempt_at = ? WHERE id = ?`, toMillis(until), id)
	if err != nil {
		return fmt.Errorf("defer %s: %w", table, err)
	}
	return requireRow(result, table+" "+id)
}

func (s *Store) markProcessed(ctx context.Context, table, id string) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	result, err := s.sqlDB.ExecContext(ctx, `UPDATE `+table+` SET processed = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("mark %s processed: %w", table, err)
	}
	return requireRow(result, table+" "+id)
}

func scanPageSubmission(row rowScanner) (domain.PageSubmission, error) {
	var (
		submission domain.PageSubmission
		options    string
		processed  int
		createdAt  int64
	)
	if err := row.Scan(
		&submission.ID,
		&submission.IncomingOptionFullName,
		&submission.PageNumber,
		&submission.Content,
		&submission.Author,
		&submission.AuthorID,
		&options,
		&processed,
		&createdAt,
	); err != nil {
		return domain.PageSubmission{}, err
	}
	decoded, err := decodeOptions(options)
	if err != nil {
		return domain.PageSubmission{}, err
	}
	submission.Options = decoded
	submission.Processed = processed != 0
	submission.CreatedAt = fromMillis(createdAt)
	return submission, nil
}

func scanStorySubmission(row rowScanner) (domain.StorySubmission, error) {
	var (
		submission domain.StorySubmission
		options    string
		processed  int
		createdAt  int64
	)
	if err := row.Scan(
		&submission.ID,
		&submission.Title,
		&submission.Content,
		&submission.Author,
		&submission.AuthorID,
		&options,
		&processed,
		&createdAt,
	); err != nil {
		return domain.StorySubmission{}, err
	}
	decoded, err := decodeOptions(options)
	if err != nil {
		return domain.StorySubmission{}, err
	}
	submission.Options = decoded
	submission.Processed = processed != 0
	submission.CreatedAt = fromMillis(createdAt)
	return submission, nil
}

func encodeOptions(options []string) (string, error) {
	if options == nil {
		options = []string{}
	}
	data, err := json.Marshal(options)
	if err != nil {
		return "", fmt.Errorf("encode options: %w", err)
	}
	return string(data), nil
}

func decodeOptions(raw string) ([]string, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var options []string
	if err := json.Unmarshal([]byte(raw), &options); err != nil {
		return nil, fmt.Errorf("decode options: %w", err)
	}
	return options, nil
}

