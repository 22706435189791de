package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/louisbranch/dendrite/internal/random"
	"github.com/louisbranch/dendrite/internal/services/dendrite/domain"
	"github.com/louisbranch/dendrite/internal/services/dendrite/storage"
)

// memPages is an in-memory page-number index with atomic reservation.
type memPages struct {
	mu     sync.Mutex
	taken  map[int]bool
	probes int
	err    error
}

func newMemPages(taken ...int) *memPages {
	p := &memPages{taken: map[int]bool{}}
	for _, n := range taken {
		p.taken[n] = true
	}
	return p
}

func (p *memPages) FindPageByNumber(_ context.Context, number int) (domain.PageRef, domain.Page, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.probes++
	if p.err != nil {
		return domain.PageRef{}, domain.Page{}, p.err
	}
	if p.taken[number] {
		return domain.PageRef{StoryID: "s", PageID: "p"}, domain.Page{Number: number}, nil
	}
	return domain.PageRef{}, domain.Page{}, storage.ErrNotFound
}

func (p *memPages) reserve(number int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.taken[number] {
		return false
	}
	p.taken[number] = true
	return true
}

func TestCandidate(t *testing.T) {
	tests := []struct {
		draw  float64
		depth int
		want  int
	}{
		{draw: 0, depth: 0, want: 1},
		{draw: 0.999, depth: 0, want: 1},
		{draw: 0.5, depth: 1, want: 2},
		{draw: 0.9, depth: 3, want: 8},
		{draw: 0.25, depth: 4, want: 5},
	}
	for _, tt := range tests {
		if got := Candidate(tt.draw, tt.depth); got != tt.want {
			t.Fatalf("Candidate(%v, %d) = %d, want %d", tt.draw, tt.depth, got, tt.want)
		}
	}
}

func TestAllocateReturnsFirstFreeCandidate(t *testing.T) {
	allocator := mustAllocator(t, newMemPages(), random.Fixed(0.7), 0)

	number, depth, err := allocator.AllocateWithDepth(context.Background())
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if number != 1 || depth != 0 {
		t.Fatalf("allocate = (%d, depth %d), want (1, depth 0)", number, depth)
	}
}

func TestAllocateDoublesRangeOnCollision(t *testing.T) {
	pages := newMemPages(1, 2, 3, 4)
	allocator := mustAllocator(t, pages, random.Fixed(0, 0.5, 0.9, 0.9), 0)

	number, depth, err := allocator.AllocateWithDepth(context.Background())
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if number != 8 || depth != 3 {
		t.Fatalf("allocate = (%d, depth %d), want (8, depth 3)", number, depth)
	}
	if pages.probes != 4 {
		t.Fatalf("probes = %d, want 4", pages.probes)
	}
}

func TestAllocateDepthGrowsOnlyOnCollision(t *testing.T) {
	draws := []float64{0.1, 0.6, 0.3}

	_, freeDepth, err := mustAllocator(t, newMemPages(), random.Fixed(draws...), 0).AllocateWithDepth(context.Background())
	if err != nil {
		t.Fatalf("allocate on empty store: %v", err)
	}
	_, busyDepth, err := mustAllocator(t, newMemPages(1), random.Fixed(draws...), 0).AllocateWithDepth(context.Background())
	if err != nil {
		t.Fatalf("allocate on seeded store: %v", err)
	}
	if freeDepth != 0 || busyDepth != 1 {
		t.Fatalf("depths = (%d, %d), want (0, 1)", freeDepth, busyDepth)
	}
}

func TestAllocateExhausted(t *testing.T) {
	pages := newMemPages(1)
	allocator := mustAllocator(t, pages, random.Fixed(0), 3)

	_, err := allocator.Allocate(context.Background())
	if !errors.Is(err, ErrAllocationExhausted) {
		t.Fatalf("allocate err = %v, want ErrAllocationExhausted", err)
	}
	if pages.probes != 4 {
		t.Fatalf("probes = %d, want 4", pages.probes)
	}
}

func TestAllocatePropagatesLookupError(t *testing.T) {
	pages := newMemPages()
	boom := errors.New("deadline exceeded")
	pages.err = boom

	_, err := mustAllocator(t, pages, random.Fixed(0.2), 0).Allocate(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("allocate err = %v, want %v", err, boom)
	}
}

func TestAllocateHonorsCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := mustAllocator(t, newMemPages(), random.Fixed(0.2), 0).Allocate(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("allocate err = %v, want context.Canceled", err)
	}
}

func TestConcurrentAllocationsAreUnique(t *testing.T) {
	const seeded = 16
	const workers = 32
	var taken []int
	for n := 1; n <= seeded; n++ {
		taken = append(taken, n)
	}
	pages := newMemPages(taken...)
	allocator := mustAllocator(t, pages, random.SeededFloat64Source(3), 0)

	results := make(chan int, workers)
	errs := make(chan error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				number, err := allocator.Allocate(context.Background())
				if err != nil {
					errs <- err
					return
				}
				if pages.reserve(number) {
					results <- number
					return
				}
			}
		}()
	}
	wg.Wait()
	close(results)
	close(errs)

	for err := range errs {
		t.Fatalf("allocate: %v", err)
	}
	seen := map[int]bool{}
	for number := range results {
		if number <= seeded {
			t.Fatalf("allocated seeded number %d", number)
		}
		if seen[number] {
			t.Fatalf("number %d allocated twice", number)
		}
		seen[number] = true
	}
	if len(seen) != workers {
		t.Fatalf("allocated %d numbers, want %d", len(seen), workers)
	}
}

func TestNewPageNumberAllocatorValidation(t *testing.T) {
	if _, err := NewPageNumberAllocator(nil, random.Fixed(0), 0); err == nil {
		t.Fatal("expected nil lookup to be rejected")
	}
	if _, err := NewPageNumberAllocator(newMemPages(), nil, 0); err == nil {
		t.Fatal("expected nil random source to be rejected")
	}
	if _, err := NewPageNumberAllocator(newMemPages(), random.Fixed(0), 53); err == nil {
		t.Fatal("expected depth above 52 to be rejected")
	}
	_, err := NewPageNumberAllocator(newMemPages(), random.Fixed(0), -1)
	if err == nil {
		t.Fatal("expected negative depth to be rejected")
	}
	if msg := err.Error(); !strings.Contains(msg, "-1") || !strings.Contains(msg, "0 for the default") {
		t.Fatalf("depth error = %q, want the value and the default hint", msg)
	}

	allocator, err := NewPageNumberAllocator(newMemPages(), random.Fixed(0), 0)
	if err != nil {
		t.Fatalf("zero depth: %v", err)
	}
	if allocator.maxDepth != DefaultMaxAllocationDepth {
		t.Fatalf("zero depth = %d, want default %d", allocator.maxDepth, DefaultMaxAllocationDepth)
	}
	if _, err := NewPageNumberAllocator(newMemPages(), random.Fixed(0), maxAllocationDepth); err != nil {
		t.Fatalf("depth %d: %v", maxAllocationDepth, err)
	}
}

func mustAllocator(t *testing.T, pages PageLookup, draw func() float64, maxDepth int) *PageNumberAllocator {
	t.Helper()
	allocator, err := NewPageNumberAllocator(pages, draw, maxDepth)
	if err != nil {
		t.Fatalf("new allocator: %v", err)
	}
	return allocator
}
