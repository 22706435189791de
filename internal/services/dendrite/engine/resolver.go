package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/louisbranch/dendrite/internal/platform/id"
	"github.com/louisbranch/dendrite/internal/services/dendrite/domain"
	"github.com/louisbranch/dendrite/internal/services/dendrite/storage"
	"go.opentelemetry.io/otel/attribute"
)

// ErrSubmissionRejected indicates a submission that can never apply: an
// ambiguous or missing selector, or a reference to an option or page that
// does not exist. Rejected submissions are marked processed with no other
// effect.
var ErrSubmissionRejected = errors.New("submission rejected")

func reject(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrSubmissionRejected, fmt.Sprintf(format, args...))
}

// Resolution is where a page submission attaches.
type Resolution struct {
	Story      domain.StoryRef
	Page       domain.PageRef
	PageNumber int
	// Origin is the variant that offered the followed option; nil for
	// direct-page submissions.
	Origin *domain.VariantRef
	// IncomingOption is the followed option's full name.
	IncomingOption string
	// NewPage is set when Page must be created in the same batch.
	NewPage *domain.Page
	// BackfillOption is set when the followed option must be pointed at Page.
	BackfillOption *domain.OptionRef
}

// SubmissionResolver classifies page submissions and finds or plans their
// target page.
type SubmissionResolver struct {
	graph     storage.GraphReader
	allocator *PageNumberAllocator
	newID     id.Generator
}

// NewSubmissionResolver builds a resolver. A nil newID uses id.NewUUID.
func NewSubmissionResolver(graph storage.GraphReader, allocator *PageNumberAllocator, newID id.Generator) (*SubmissionResolver, error) {
	if graph == nil {
		return nil, fmt.Errorf("graph reader is required")
	}
	if allocator == nil {
		return nil, fmt.Errorf("page number allocator is required")
	}
	if newID == nil {
		newID = id.NewUUID
	}
	return &SubmissionResolver{graph: graph, allocator: allocator, newID: newID}, nil
}

// Resolve returns the submission's attachment point. Errors wrapping
// ErrSubmissionRejected mean the submission must be marked processed and
// dropped; any other error is a store failure and is safe to retry.
func (r *SubmissionResolver) Resolve(ctx context.Context, submission domain.PageSubmission) (res Resolution, err error) {
	ctx, span := tracer.Start(ctx, "engine.ResolveSubmission")
	span.SetAttributes(attribute.String("dendrite.submission_id", submission.ID))
	defer func() { endSpan(span, err) }()

	hasOption := submission.HasOptionSelector()
	hasPage := submission.HasPageSelector()
	switch {
	case hasOption && hasPage:
		return Resolution{}, reject("both incoming option and page number are set")
	case hasOption:
		return r.resolveOption(ctx, submission.IncomingOptionFullName)
	case hasPage:
		return r.resolvePage(ctx, submission.PageNumber)
	default:
		return Resolution{}, reject("neither incoming option nor page number is set")
	}
}

func (r *SubmissionResolver) resolveOption(ctx context.Context, fullName string) (Resolution, error) {
	optionRef, err := domain.ParseOptionPath(fullName)
	if err != nil {
		return Resolution{}, reject("incoming option %q: %v", fullName, err)
	}
	option, err := r.graph.GetOption(ctx, optionRef)
	if errors.Is(err, storage.ErrNotFound) {
		return Resolution{}, reject("incoming option %s not found", optionRef.Path())
	}
	if err != nil {
		return Resolution{}, fmt.Errorf("get incoming option: %w", err)
	}

	origin := optionRef.Variant()
	res := Resolution{
		Story:          origin.Page().Story(),
		Origin:         &origin,
		IncomingOption: optionRef.Path(),
	}

	if option.TargetPage != nil {
		page, err := r.graph.GetPage(ctx, *option.TargetPage)
		switch {
		case err == nil:
			res.Story = option.TargetPage.Story()
			res.Page = *option.TargetPage
			res.PageNumber = page.Number
			return res, nil
		case !errors.Is(err, storage.ErrNotFound):
			return Resolution{}, fmt.Errorf("get option target page: %w", err)
		}
	}

	number, err := r.allocator.Allocate(ctx)
	if err != nil {
		return Resolution{}, err
	}
	res.Page = res.Story.Page(r.newID())
	res.PageNumber = number
	res.NewPage = &domain.Page{Number: number, IncomingOption: optionRef.Path()}
	res.BackfillOption = &optionRef
	return res, nil
}

func (r *SubmissionResolver) resolvePage(ctx context.Context, number int) (Resolution, error) {
	if number < 0 {
		return Resolution{}, reject("invalid page number %d", number)
	}
	pageRef, page, err := r.graph.FindPageByNumber(ctx, number)
	if errors.Is(err, storage.ErrNotFound) {
		return Resolution{}, reject("page number %d not found", number)
	}
	if err != nil {
		return Resolution{}, fmt.Errorf("find page %d: %w", number, err)
	}
	return Resolution{
		Story:      pageRef.Story(),
		Page:       pageRef,
		PageNumber: page.Number,
	}, nil
}
