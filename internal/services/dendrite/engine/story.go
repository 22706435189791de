package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/louisbranch/dendrite/internal/platform/id"
	"github.com/louisbranch/dendrite/internal/services/dendrite/domain"
	"github.com/louisbranch/dendrite/internal/services/dendrite/storage"
	"go.opentelemetry.io/otel/attribute"
)

// MaterializeOptions carries caller context for a story submission.
type MaterializeOptions struct {
	// StoryID, when set, names the new story ahead of the submission id.
	StoryID string
}

// StoryResult describes one processed story submission.
type StoryResult struct {
	Outcome    Outcome
	Story      domain.StoryRef
	Page       domain.PageRef
	Variant    domain.VariantRef
	PageNumber int
}

// NewStoryMaterializer creates a story, its root page, the root variant "a",
// and its options from one story submission.
type NewStoryMaterializer struct {
	store     storage.Store
	allocator *PageNumberAllocator
	newID     id.Generator
	random    func() float64
}

// NewNewStoryMaterializer builds a materializer. A nil newID uses id.NewUUID.
func NewNewStoryMaterializer(store storage.Store, allocator *PageNumberAllocator, newID id.Generator, random func() float64) (*NewStoryMaterializer, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if allocator == nil {
		return nil, fmt.Errorf("page number allocator is required")
	}
	if random == nil {
		return nil, fmt.Errorf("random source is required")
	}
	if newID == nil {
		newID = id.NewUUID
	}
	return &NewStoryMaterializer{store: store, allocator: allocator, newID: newID, random: random}, nil
}

// Materialize applies one story submission at most once. The story id is
// opts.StoryID, else the submission id, else a fresh id.
func (m *NewStoryMaterializer) Materialize(ctx context.Context, submission domain.StorySubmission, opts MaterializeOptions) (result StoryResult, err error) {
	ctx, span := tracer.Start(ctx, "engine.MaterializeStory")
	span.SetAttributes(attribute.String("dendrite.submission_id", submission.ID))
	defer func() { endSpan(span, err) }()

	if submission.Processed {
		return StoryResult{Outcome: OutcomeSkipped}, nil
	}

	story := domain.StoryRef{StoryID: firstNonEmpty(opts.StoryID, submission.ID)}
	if story.StoryID == "" {
		story.StoryID = m.newID()
	}

	for attempt := 0; ; attempt++ {
		result, err = m.commit(ctx, story, submission)
		switch {
		case err == nil:
			span.SetAttributes(attribute.String("dendrite.story_id", story.StoryID))
			return result, nil
		case errors.Is(err, storage.ErrAlreadyProcessed):
			return StoryResult{Outcome: OutcomeSkipped, Story: story}, nil
		case errors.Is(err, storage.ErrConflict) && attempt < maxConflictRetries:
			continue
		default:
			return StoryResult{}, err
		}
	}
}

func (m *NewStoryMaterializer) commit(ctx context.Context, story domain.StoryRef, submission domain.StorySubmission) (StoryResult, error) {
	page := story.Page(m.newID())
	variant := page.Variant(m.newID())

	number, err := m.allocator.Allocate(ctx)
	if err != nil {
		return StoryResult{}, err
	}
	bootstrapAuthor, err := needsAuthor(ctx, m.store, submission.AuthorID)
	if err != nil {
		return StoryResult{}, err
	}

	batch := m.store.NewBatch()
	if submission.ID != "" {
		batch.MarkStorySubmissionProcessed(submission.ID)
	}
	batch.CreateStory(story, domain.Story{Title: submission.Title, RootPage: page})
	batch.CreatePage(page, domain.Page{Number: number})
	queueVariant(batch, variant, domain.Variant{
		Name:       domain.FirstVariantName,
		Content:    submission.Content,
		AuthorID:   submission.AuthorID,
		AuthorName: submission.Author,
		Rand:       m.random(),
	}, submission.Options, m.newID)
	batch.SetStoryStats(story.StoryID, domain.StoryStats{VariantCount: 1})
	if bootstrapAuthor {
		batch.CreateAuthor(submission.AuthorID, domain.Author{UUID: m.newID()})
	}

	if err := batch.Commit(ctx); err != nil {
		return StoryResult{}, err
	}
	return StoryResult{
		Outcome:    OutcomeApplied,
		Story:      story,
		Page:       page,
		Variant:    variant,
		PageNumber: number,
	}, nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
