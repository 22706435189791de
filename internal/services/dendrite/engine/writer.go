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

// GraphWriter assembles and commits the batch for one accepted page
// submission.
type GraphWriter struct {
	store  storage.Store
	newID  id.Generator
	random func() float64
}

// NewGraphWriter builds a writer. A nil newID uses id.NewUUID.
func NewGraphWriter(store storage.Store, newID id.Generator, random func() float64) (*GraphWriter, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if random == nil {
		return nil, fmt.Errorf("random source is required")
	}
	if newID == nil {
		newID = id.NewUUID
	}
	return &GraphWriter{store: store, newID: newID, random: random}, nil
}

// Commit writes the submission's variant at the resolved page. The variant
// reuses the submission id when there is one. Nothing is applied unless the
// whole batch commits; storage.ErrAlreadyProcessed means an earlier delivery
// already applied this submission.
func (w *GraphWriter) Commit(ctx context.Context, res Resolution, submission domain.PageSubmission) (ref domain.VariantRef, err error) {
	ctx, span := tracer.Start(ctx, "engine.CommitVariant")
	span.SetAttributes(
		attribute.String("dendrite.submission_id", submission.ID),
		attribute.String("dendrite.page", res.Page.Path()),
	)
	defer func() { endSpan(span, err) }()

	if !res.Page.Valid() {
		return domain.VariantRef{}, fmt.Errorf("resolved page is required")
	}

	name := domain.FirstVariantName
	if res.NewPage == nil {
		latest, err := w.store.LatestVariantName(ctx, res.Page)
		if err != nil {
			return domain.VariantRef{}, fmt.Errorf("latest variant name: %w", err)
		}
		name = domain.IncrementVariantName(latest)
	}

	bootstrapAuthor, err := needsAuthor(ctx, w.store, submission.AuthorID)
	if err != nil {
		return domain.VariantRef{}, err
	}

	variantID := strings.TrimSpace(submission.ID)
	if variantID == "" {
		variantID = w.newID()
	}
	ref = res.Page.Variant(variantID)

	batch := w.store.NewBatch()
	if submission.ID != "" {
		batch.MarkPageSubmissionProcessed(submission.ID)
	}
	if res.NewPage != nil {
		batch.CreatePage(res.Page, *res.NewPage)
	}
	if res.BackfillOption != nil {
		batch.ResolveOption(*res.BackfillOption, res.Page)
	}
	queueVariant(batch, ref, domain.Variant{
		Name:           name,
		Content:        submission.Content,
		AuthorID:       submission.AuthorID,
		AuthorName:     submission.Author,
		IncomingOption: res.IncomingOption,
		Rand:           w.random(),
	}, submission.Options, w.newID)
	batch.IncrementStoryStats(res.Story.StoryID, 1)
	if res.Origin != nil {
		batch.MarkVariantDirty(*res.Origin)
	}
	if bootstrapAuthor {
		batch.CreateAuthor(submission.AuthorID, domain.Author{UUID: w.newID()})
	}

	if err := batch.Commit(ctx); err != nil {
		return domain.VariantRef{}, err
	}
	span.SetAttributes(attribute.String("dendrite.variant_name", name))
	return ref, nil
}

// queueVariant queues the variant and its non-empty options, positioned in
// submission order.
func queueVariant(batch storage.Batch, ref domain.VariantRef, variant domain.Variant, options []string, newID id.Generator) {
	batch.CreateVariant(ref, variant)
	for position, content := range domain.NonEmptyOptions(options) {
		batch.CreateOption(ref.Option(newID()), domain.Option{
			Content:  content,
			Position: position,
		})
	}
}

// needsAuthor reports whether authorID has no author record yet. The read is
// not part of the batch: two first submissions by one author may both
// bootstrap it, and the stores treat that as idempotent.
func needsAuthor(ctx context.Context, graph storage.GraphReader, authorID string) (bool, error) {
	if strings.TrimSpace(authorID) == "" {
		return false, nil
	}
	_, err := graph.GetAuthor(ctx, authorID)
	if errors.Is(err, storage.ErrNotFound) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("get author: %w", err)
	}
	return false, nil
}
