package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/louisbranch/dendrite/internal/services/dendrite/domain"
	"github.com/louisbranch/dendrite/internal/services/dendrite/storage"
)

// Outcome is the result of handling one submission.
type Outcome int

const (
	// OutcomeApplied means the submission's writes committed.
	OutcomeApplied Outcome = iota
	// OutcomeSkipped means an earlier delivery already applied it.
	OutcomeSkipped
	// OutcomeRejected means it was marked processed with no other effect.
	OutcomeRejected
)

func (o Outcome) String() string {
	switch o {
	case OutcomeApplied:
		return "applied"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeRejected:
		return "rejected"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// maxConflictRetries bounds re-resolution after a commit lost a uniqueness
// race (page number or variant name) to a concurrent writer. Every lost race
// means another writer committed, so N concurrent writers need at most N-1
// retries each.
const maxConflictRetries = 16

// PageResult describes one processed page submission.
type PageResult struct {
	Outcome    Outcome
	Variant    domain.VariantRef
	PageNumber int
	// Reason is set for rejected submissions.
	Reason error
}

// PageProcessor applies page submissions: resolve, then commit.
type PageProcessor struct {
	store    storage.Store
	resolver *SubmissionResolver
	writer   *GraphWriter
}

// NewPageProcessor wires a processor from its parts.
func NewPageProcessor(store storage.Store, resolver *SubmissionResolver, writer *GraphWriter) (*PageProcessor, error) {
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if resolver == nil {
		return nil, fmt.Errorf("submission resolver is required")
	}
	if writer == nil {
		return nil, fmt.Errorf("graph writer is required")
	}
	return &PageProcessor{store: store, resolver: resolver, writer: writer}, nil
}

// Process applies one page submission at most once. Store failures are
// returned unchanged with nothing applied.
func (p *PageProcessor) Process(ctx context.Context, submission domain.PageSubmission) (PageResult, error) {
	if submission.Processed {
		return PageResult{Outcome: OutcomeSkipped}, nil
	}

	for attempt := 0; ; attempt++ {
		res, err := p.resolver.Resolve(ctx, submission)
		if errors.Is(err, ErrSubmissionRejected) {
			if markErr := p.markRejected(ctx, submission.ID); markErr != nil {
				return PageResult{}, markErr
			}
			return PageResult{Outcome: OutcomeRejected, Reason: err}, nil
		}
		if err != nil {
			return PageResult{}, err
		}

		ref, err := p.writer.Commit(ctx, res, submission)
		switch {
		case err == nil:
			return PageResult{Outcome: OutcomeApplied, Variant: ref, PageNumber: res.PageNumber}, nil
		case errors.Is(err, storage.ErrAlreadyProcessed):
			return PageResult{Outcome: OutcomeSkipped}, nil
		case errors.Is(err, storage.ErrConflict) && attempt < maxConflictRetries:
			continue
		default:
			return PageResult{}, err
		}
	}
}

func (p *PageProcessor) markRejected(ctx context.Context, submissionID string) error {
	if submissionID == "" {
		return nil
	}
	err := p.store.MarkPageSubmissionProcessed(ctx, submissionID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("mark rejected submission processed: %w", err)
	}
	return nil
}
