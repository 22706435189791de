package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/louisbranch/dendrite/internal/services/dendrite/domain"
	"github.com/louisbranch/dendrite/internal/services/dendrite/storage"
)

type batchOp func(ctx context.Context, tx *sql.Tx, now int64) error

// Batch queues graph writes and applies them in one transaction.
type Batch struct {
	store *Store
	ops   []batchOp
}

// NewBatch starts an empty write batch.
func (s *Store) NewBatch() storage.Batch {
	return &Batch{store: s}
}

func (b *Batch) queue(op batchOp) {
	b.ops = append(b.ops, op)
}

// CreateStory queues a story insert.
func (b *Batch) CreateStory(ref domain.StoryRef, story domain.Story) {
	b.queue(func(ctx context.Context, tx *sql.Tx, now int64) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO stories (id, title, root_page_id, created_at) VALUES (?, ?, ?, ?)`,
			ref.StoryID, story.Title, story.RootPage.PageID, now,
		)
		return execError("create story "+ref.StoryID, err)
	})
}

// CreatePage queues a page insert. A taken page number fails the commit with
// storage.ErrConflict.
func (b *Batch) CreatePage(ref domain.PageRef, page domain.Page) {
	b.queue(func(ctx context.Context, tx *sql.Tx, now int64) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO pages (story_id, id, number, incoming_option, created_at) VALUES (?, ?, ?, ?, ?)`,
			ref.StoryID, ref.PageID, page.Number, page.IncomingOption, now,
		)
		return execError("create page "+ref.Path(), err)
	})
}

// CreateVariant queues a variant insert.
func (b *Batch) CreateVariant(ref domain.VariantRef, variant domain.Variant) {
	b.queue(func(ctx context.Context, tx *sql.Tx, now int64) error {
		_, err := tx.ExecContext(ctx, `
INSERT INTO variants (
	story_id,
	page_id,
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
	created_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`,
			ref.StoryID,
			ref.PageID,
			ref.VariantID,
			variant.Name,
			variant.Content,
			variant.AuthorID,
			variant.AuthorName,
			variant.IncomingOption,
			variant.ModeratorReputationSum,
			variant.ModerationRatingCount,
			variant.Visibility,
			variant.Rand,
			boolToInt(variant.Dirty),
			now,
		)
		return execError("create variant "+ref.Path(), err)
	})
}

// CreateOption queues an option insert.
func (b *Batch) CreateOption(ref domain.OptionRef, option domain.Option) {
	b.queue(func(ctx context.Context, tx *sql.Tx, now int64) error {
		var targetStoryID, targetPageID sql.NullString
		if option.TargetPage != nil {
			targetStoryID = sql.NullString{String: option.TargetPage.StoryID, Valid: true}
			targetPageID = sql.NullString{String: option.TargetPage.PageID, Valid: true}
		}
		_, err := tx.ExecContext(ctx, `
INSERT INTO options (
	story_id,
	page_id,
	variant_id,
	id,
	content,
	position,
	target_story_id,
	target_page_id,
	created_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
`,
			ref.StoryID,
			ref.PageID,
			ref.VariantID,
			ref.OptionID,
			option.Content,
			option.Position,
			targetStoryID,
			targetPageID,
			now,
		)
		return execError("create option "+ref.Path(), err)
	})
}

// ResolveOption queues the back-fill of an option's target page. Only an
// unresolved option, or one whose target page no longer exists, is updated;
// an option another commit already resolved fails the batch with
// storage.ErrConflict.
func (b *Batch) ResolveOption(ref domain.OptionRef, target domain.PageRef) {
	b.queue(func(ctx context.Context, tx *sql.Tx, _ int64) error {
		result, err := tx.ExecContext(ctx, `
UPDATE options SET target_story_id = ?, target_page_id = ?
WHERE story_id = ? AND page_id = ? AND variant_id = ? AND id = ?
	AND (
		target_page_id IS NULL
		OR NOT EXISTS (
			SELECT 1 FROM pages
			WHERE pages.story_id = options.target_story_id AND pages.id = options.target_page_id
		)
	)
`, target.StoryID, target.PageID, ref.StoryID, ref.PageID, ref.VariantID, ref.OptionID)
		if err != nil {
			return execError("resolve option "+ref.Path(), err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if affected == 1 {
			return nil
		}
		var exists int
		err = tx.QueryRowContext(ctx,
			`SELECT 1 FROM options WHERE story_id = ? AND page_id = ? AND variant_id = ? AND id = ?`,
			ref.StoryID, ref.PageID, ref.VariantID, ref.OptionID,
		).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("option %s: %w", ref.Path(), storage.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("check option %s: %w", ref.Path(), err)
		}
		return fmt.Errorf("option %s already resolved: %w", ref.Path(), storage.ErrConflict)
	})
}

// IncrementStoryStats queues a merge increment of the story's variant count.
func (b *Batch) IncrementStoryStats(storyID string, delta int) {
	b.queue(func(ctx context.Context, tx *sql.Tx, _ int64) error {
		_, err := tx.ExecContext(ctx, `
INSERT INTO story_stats (story_id, variant_count) VALUES (?, ?)
ON CONFLICT(story_id) DO UPDATE SET variant_count = variant_count + excluded.variant_count
`, storyID, delta)
		return execError("increment story stats "+storyID, err)
	})
}

// SetStoryStats queues an overwrite of the story's counters.
func (b *Batch) SetStoryStats(storyID string, stats domain.StoryStats) {
	b.queue(func(ctx context.Context, tx *sql.Tx, _ int64) error {
		_, err := tx.ExecContext(ctx, `
INSERT INTO story_stats (story_id, variant_count) VALUES (?, ?)
ON CONFLICT(story_id) DO UPDATE SET variant_count = excluded.variant_count
`, storyID, stats.VariantCount)
		return execError("set story stats "+storyID, err)
	})
}

// MarkVariantDirty queues the re-render signal on a variant.
func (b *Batch) MarkVariantDirty(ref domain.VariantRef) {
	b.queue(func(ctx context.Context, tx *sql.Tx, _ int64) error {
		result, err := tx.ExecContext(ctx,
			`UPDATE variants SET dirty = 1 WHERE story_id = ? AND page_id = ? AND id = ?`,
			ref.StoryID, ref.PageID, ref.VariantID,
		)
		if err != nil {
			return execError("mark variant dirty "+ref.Path(), err)
		}
		return requireRow(result, "variant "+ref.Path())
	})
}

// CreateAuthor queues an author insert that keeps an existing record.
func (b *Batch) CreateAuthor(authorID string, author domain.Author) {
	b.queue(func(ctx context.Context, tx *sql.Tx, now int64) error {
		_, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO authors (id, uuid, created_at) VALUES (?, ?, ?)`,
			authorID, author.UUID, now,
		)
		return execError("create author "+authorID, err)
	})
}

// MarkPageSubmissionProcessed queues the guarded processed marker.
func (b *Batch) MarkPageSubmissionProcessed(id string) {
	b.queue(guardProcessed("page_submissions", id))
}

// MarkStorySubmissionProcessed queues the guarded processed marker.
func (b *Batch) MarkStorySubmissionProcessed(id string) {
	b.queue(guardProcessed("story_submissions", id))
}

// Commit applies every queued write in one transaction, or none of them.
func (b *Batch) Commit(ctx context.Context) error {
	if err := b.store.ready(ctx); err != nil {
		return err
	}
	if len(b.ops) == 0 {
		return nil
	}

	tx, err := b.store.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin batch: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	now := b.store.timestamp()
	for _, op := range b.ops {
		if err := op(ctx, tx, now); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	b.ops = nil
	return nil
}

// guardProcessed flips processed from 0 to 1 and fails the batch with
// storage.ErrAlreadyProcessed when another delivery already did.
func guardProcessed(table, id string) batchOp {
	return func(ctx context.Context, tx *sql.Tx, _ int64) error {
		result, err := tx.ExecContext(ctx,
			`UPDATE `+table+` SET processed = 1 WHERE id = ? AND processed = 0`, id)
		if err != nil {
			return fmt.Errorf("mark %s processed: %w", table, err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if affected == 1 {
			return nil
		}
		var exists int
		err = tx.QueryRowContext(ctx, `SELECT 1 FROM `+table+` WHERE id = ?`, id).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%s %s: %w", table, id, storage.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("check %s: %w", table, err)
		}
		return fmt.Errorf("%s %s: %w", table, id, storage.ErrAlreadyProcessed)
	}
}

func execError(what string, err error) error {
	if err == nil {
		return nil
	}
	if isUniqueViolation(err) {
		return fmt.Errorf("%s: %w: %v", what, storage.ErrConflict, err)
	}
	return fmt.Errorf("%s: %w", what, err)
}
