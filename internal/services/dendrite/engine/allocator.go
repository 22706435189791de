package engine

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/louisbranch/dendrite/internal/services/dendrite/domain"
	"github.com/louisbranch/dendrite/internal/services/dendrite/storage"
	"go.opentelemetry.io/otel/attribute"
)

const (
	// DefaultMaxAllocationDepth bounds the doubling probe; at depth 48 the
	// sampling range already holds 2^48 numbers.
	DefaultMaxAllocationDepth = 48
	// maxAllocationDepth keeps every candidate exactly representable as a
	// float64 draw scaled by 2^depth.
	maxAllocationDepth = 52
)

// ErrAllocationExhausted indicates every probe up to the depth cap collided.
var ErrAllocationExhausted = errors.New("page number allocation exhausted")

// PageLookup finds pages by their global number.
type PageLookup interface {
	FindPageByNumber(ctx context.Context, number int) (domain.PageRef, domain.Page, error)
}

// PageNumberAllocator draws collision-free page numbers without a global
// counter. Each probe picks floor(r * 2^depth) + 1 and the range doubles on
// every collision.
type PageNumberAllocator struct {
	pages    PageLookup
	random   func() float64
	maxDepth int
}

// NewPageNumberAllocator builds an allocator. A zero maxDepth selects
// DefaultMaxAllocationDepth.
func NewPageNumberAllocator(pages PageLookup, random func() float64, maxDepth int) (*PageNumberAllocator, error) {
	if pages == nil {
		return nil, fmt.Errorf("page lookup is required")
	}
	if random == nil {
		return nil, fmt.Errorf("random source is required")
	}
	if maxDepth == 0 {
		maxDepth = DefaultMaxAllocationDepth
	}
	if maxDepth < 0 || maxDepth > maxAllocationDepth {
		return nil, fmt.Errorf("max allocation depth %d out of range: want 1 to %d, or 0 for the default", maxDepth, maxAllocationDepth)
	}
	return &PageNumberAllocator{pages: pages, random: random, maxDepth: maxDepth}, nil
}

// Allocate returns a page number no existing page uses.
func (a *PageNumberAllocator) Allocate(ctx context.Context) (int, error) {
	number, _, err := a.AllocateWithDepth(ctx)
	return number, err
}

// AllocateWithDepth returns a free page number and the probe depth that
// found it. Store errors propagate unchanged.
func (a *PageNumberAllocator) AllocateWithDepth(ctx context.Context) (number int, depth int, err error) {
	ctx, span := tracer.Start(ctx, "engine.AllocatePageNumber")
	defer func() {
		span.SetAttributes(attribute.Int("dendrite.page_number", number), attribute.Int("dendrite.allocation_depth", depth))
		endSpan(span, err)
	}()

	for depth = 0; depth <= a.maxDepth; depth++ {
		if err := ctx.Err(); err != nil {
			return 0, depth, err
		}
		candidate := Candidate(a.random(), depth)
		_, _, err := a.pages.FindPageByNumber(ctx, candidate)
		if errors.Is(err, storage.ErrNotFound) {
			return candidate, depth, nil
		}
		if err != nil {
			return 0, depth, fmt.Errorf("probe page number %d: %w", candidate, err)
		}
	}
	return 0, a.maxDepth, fmt.Errorf("%w after depth %d", ErrAllocationExhausted, a.maxDepth)
}

// Candidate maps a draw in [0,1) to a page number in [1, 2^depth].
func Candidate(draw float64, depth int) int {
	return int(math.Floor(draw*math.Exp2(float64(depth)))) + 1
}
