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

const variantColumns = `
	id,
	name,
	content,
	author_id,
	author_name,
	incoming_option,
	moderator_reputation_sum,
	moderation_rating_count,
	visibility,
	rand,
	dirty,
	created_at`

const optionColumns = `
	id,
	content,
	position,
	target_story_id,
	target_page_id,
	created_at`

// GetStory returns one story.
func (s *Store) GetStory(ctx context.Context, ref domain.StoryRef) (domain.Story, error) {
	if err := s.ready(ctx); err != nil {
		return domain.Story{}, err
	}
	var (
		story      domain.Story
		rootPageID string
		createdAt  int64
	)
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT title, root_page_id, created_at FROM stories WHERE id = ?`,
		ref.StoryID,
	).Scan(&story.Title, &rootPageID, &createdAt)
	if err != nil {
		return domain.Story{}, notFound(err, "story "+ref.StoryID)
	}
	story.RootPage = ref.Page(rootPageID)
	story.CreatedAt = fromMillis(createdAt)
	return story, nil
}

// GetPage returns one page.
func (s *Store) GetPage(ctx context.Context, ref domain.PageRef) (domain.Page, error) {
	if err := s.ready(ctx); err != nil {
		return domain.Page{}, err
	}
	var (
		page      domain.Page
		createdAt int64
	)
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT number, incoming_option, created_at FROM pages WHERE story_id = ? AND id = ?`,
		ref.StoryID, ref.PageID,
	).Scan(&page.Number, &page.IncomingOption, &createdAt)
	if err != nil {
		return domain.Page{}, notFound(err, "page "+ref.Path())
	}
	page.CreatedAt = fromMillis(createdAt)
	return page, nil
}

// FindPageByNumber looks a page up by its global number.
func (s *Store) FindPageByNumber(ctx context.Context, number int) (domain.PageRef, domain.Page, error) {
	if err := s.ready(ctx); err != nil {
		return domain.PageRef{}, domain.Page{}, err
	}
	var (
		ref       domain.PageRef
		page      domain.Page
		createdAt int64
	)
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT story_id, id, number, incoming_option, created_at FROM pages WHERE number = ? LIMIT 1`,
		number,
	).Scan(&ref.StoryID, &ref.PageID, &page.Number, &page.IncomingOption, &createdAt)
	if err != nil {
		return domain.PageRef{}, domain.Page{}, notFound(err, fmt.Sprintf("page number %d", number))
	}
	page.CreatedAt = fromMillis(createdAt)
	return ref, page, nil
}

// GetVariant returns one variant.
func (s *Store) GetVariant(ctx context.Context, ref domain.VariantRef) (domain.Variant, error) {
	if err := s.ready(ctx); err != nil {
		return domain.Variant{}, err
	}
	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT`+variantColumns+` FROM variants WHERE story_id = ? AND page_id = ? AND id = ?`,
		ref.StoryID, ref.PageID, ref.VariantID,
	)
	_, variant, err := scanVariant(row)
	if err != nil {
		return domain.Variant{}, notFound(err, "variant "+ref.Path())
	}
	return variant, nil
}

// LatestVariantName returns the page's greatest variant name in base-26
// order, or "" when the page has no variants.
func (s *Store) LatestVariantName(ctx context.Context, page domain.PageRef) (string, error) {
	if err := s.ready(ctx); err != nil {
		return "", err
	}
	var name string
	err := s.sqlDB.QueryRowContext(ctx, `
SELECT name FROM variants
WHERE story_id = ? AND page_id = ?
ORDER BY length(name) DESC, name DESC
LIMIT 1
`, page.StoryID, page.PageID).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("latest variant name: %w", err)
	}
	return name, nil
}

// FindVariantByName looks a variant up by its name within a page.
func (s *Store) FindVariantByName(ctx context.Context, page domain.PageRef, name string) (domain.VariantRef, domain.Variant, error) {
	if err := s.ready(ctx); err != nil {
		return domain.VariantRef{}, domain.Variant{}, err
	}
	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT`+variantColumns+` FROM variants WHERE story_id = ? AND page_id = ? AND name = ? LIMIT 1`,
		page.StoryID, page.PageID, name,
	)
	variantID, variant, err := scanVariant(row)
	if err != nil {
		return domain.VariantRef{}, domain.Variant{}, notFound(err, "variant "+name+" of "+page.Path())
	}
	return page.Variant(variantID), variant, nil
}

// GetOption returns one option.
func (s *Store) GetOption(ctx context.Context, ref domain.OptionRef) (domain.Option, error) {
	if err := s.ready(ctx); err != nil {
		return domain.Option{}, err
	}
	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT`+optionColumns+` FROM options WHERE story_id = ? AND page_id = ? AND variant_id = ? AND id = ?`,
		ref.StoryID, ref.PageID, ref.VariantID, ref.OptionID,
	)
	_, option, err := scanOption(row)
	if err != nil {
		return domain.Option{}, notFound(err, "option "+ref.Path())
	}
	return option, nil
}

// FindOptionByPosition looks an option up by its position within a variant.
func (s *Store) FindOptionByPosition(ctx context.Context, variant domain.VariantRef, position int) (domain.OptionRef, domain.Option, error) {
	if err := s.ready(ctx); err != nil {
		return domain.OptionRef{}, domain.Option{}, err
	}
	row := s.sqlDB.QueryRowContext(ctx, `
SELECT`+optionColumns+` FROM options
WHERE story_id = ? AND page_id = ? AND variant_id = ? AND position = ?
ORDER BY created_at, id
LIMIT 1
`, variant.StoryID, variant.PageID, variant.VariantID, position)
	optionID, option, err := scanOption(row)
	if err != nil {
		return domain.OptionRef{}, domain.Option{}, notFound(err, fmt.Sprintf("option %d of %s", position, variant.Path()))
	}
	return variant.Option(optionID), option, nil
}

// ListOptions lists a variant's options by position.
func (s *Store) ListOptions(ctx context.Context, variant domain.VariantRef) ([]domain.Option, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT`+optionColumns+` FROM options
WHERE story_id = ? AND page_id = ? AND variant_id = ?
ORDER BY position, id
`, variant.StoryID, variant.PageID, variant.VariantID)
	if err != nil {
		return nil, fmt.Errorf("list options: %w", err)
	}
	defer rows.Close()

	var options []domain.Option
	for rows.Next() {
		_, option, err := scanOption(rows)
		if err != nil {
			return nil, fmt.Errorf("scan option: %w", err)
		}
		options = append(options, option)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate options: %w", err)
	}
	return options, nil
}

// GetAuthor returns one author record.
func (s *Store) GetAuthor(ctx context.Context, authorID string) (domain.Author, error) {
	if err := s.ready(ctx); err != nil {
		return domain.Author{}, err
	}
	authorID = strings.TrimSpace(authorID)
	if authorID == "" {
		return domain.Author{}, fmt.Errorf("author id is required")
	}
	var author domain.Author
	err := s.sqlDB.QueryRowContext(ctx, `SELECT uuid FROM authors WHERE id = ?`, authorID).Scan(&author.UUID)
	if err != nil {
		return domain.Author{}, notFound(err, "author "+authorID)
	}
	return author, nil
}

// GetStoryStats returns one story's counters.
func (s *Store) GetStoryStats(ctx context.Context, storyID string) (domain.StoryStats, error) {
	if err := s.ready(ctx); err != nil {
		return domain.StoryStats{}, err
	}
	var stats domain.StoryStats
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT variant_count FROM story_stats WHERE story_id = ?`, storyID,
	).Scan(&stats.VariantCount)
	if err != nil {
		return domain.StoryStats{}, notFound(err, "story stats "+storyID)
	}
	return stats, nil
}

// UpdateVariantVisibility writes moderation-driven variant state.
func (s *Store) UpdateVariantVisibility(ctx context.Context, ref domain.VariantRef, update domain.VisibilityUpdate) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	result, err := s.sqlDB.ExecContext(ctx, `
UPDATE variants SET
	visibility = ?,
	moderation_rating_count = ?,
	moderator_reputation_sum = ?
WHERE story_id = ? AND page_id = ? AND id = ?
`,
		update.Visibility,
		update.ModerationRatingCount,
		update.ModeratorReputationSum,
		ref.StoryID, ref.PageID, ref.VariantID,
	)
	if err != nil {
		return fmt.Errorf("update variant visibility: %w", err)
	}
	return requireRow(result, "variant "+ref.Path())
}

func scanVariant(row rowScanner) (string, domain.Variant, error) {
	var (
		id        string
		variant   domain.Variant
		dirty     int
		createdAt int64
	)
	if err := row.Scan(
		&id,
		&variant.Name,
		&variant.Content,
		&variant.AuthorID,
		&variant.AuthorName,
		&variant.IncomingOption,
		&variant.ModeratorReputationSum,
		&variant.ModerationRatingCount,
		&variant.Visibility,
		&variant.Rand,
		&dirty,
		&createdAt,
	); err != nil {
		return "", domain.Variant{}, err
	}
	variant.Dirty = dirty != 0
	variant.CreatedAt = fromMillis(createdAt)
	return id, variant, nil
}

func scanOption(row rowScanner) (string, domain.Option, error) {
	var (
		id            string
		option        domain.Option
		targetStoryID sql.NullString
		targetPageID  sql.NullString
		createdAt     int64
	)
	if err := row.Scan(
		&id,
		&option.Content,
		&option.Position,
		&targetStoryID,
		&targetPageID,
		&createdAt,
	); err != nil {
		return "", domain.Option{}, err
	}
	if targetStoryID.Valid && targetPageID.Valid {
		option.TargetPage = &domain.PageRef{StoryID: targetStoryID.String, PageID: targetPageID.String}
	}
	option.CreatedAt = fromMillis(createdAt)
	return id, option, nil
}

func requireRow(result sql.Result, what string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%s: %w", what, storage.ErrNotFound)
	}
	return nil
}
