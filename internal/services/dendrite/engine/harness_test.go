package engine

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/louisbranch/dendrite/internal/platform/id"
	"github.com/louisbranch/dendrite/internal/random"
	"github.com/louisbranch/dendrite/internal/services/dendrite/domain"
	"github.com/louisbranch/dendrite/internal/services/dendrite/storage"
	"github.com/louisbranch/dendrite/internal/services/dendrite/storage/sqlite"
)

type harness struct {
	db         *sqlite.Store
	store      *faultyStore
	pages      *PageProcessor
	stories    *NewStoryMaterializer
	visibility *VisibilityUpdater
}

type harnessOptions struct {
	allocatorRandom func() float64
	newID           id.Generator
}

func newHarness(t *testing.T, opts harnessOptions) *harness {
	t.Helper()
	db := openStore(t)
	store := &faultyStore{Store: db}

	if opts.allocatorRandom == nil {
		opts.allocatorRandom = random.SeededFloat64Source(7)
	}
	allocator, err := NewPageNumberAllocator(store, opts.allocatorRandom, 0)
	if err != nil {
		t.Fatalf("new allocator: %v", err)
	}
	variantRandom := random.SeededFloat64Source(11)
	resolver, err := NewSubmissionResolver(store, allocator, opts.newID)
	if err != nil {
		t.Fatalf("new resolver: %v", err)
	}
	writer, err := NewGraphWriter(store, opts.newID, variantRandom)
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}
	pages, err := NewPageProcessor(store, resolver, writer)
	if err != nil {
		t.Fatalf("new page processor: %v", err)
	}
	stories, err := NewNewStoryMaterializer(store, allocator, opts.newID, variantRandom)
	if err != nil {
		t.Fatalf("new story materializer: %v", err)
	}
	visibility, err := NewVisibilityUpdater(store)
	if err != nil {
		t.Fatalf("new visibility updater: %v", err)
	}
	return &harness{db: db, store: store, pages: pages, stories: stories, visibility: visibility}
}

func openStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "dendrite.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatalf("close store: %v", err)
		}
	})
	return store
}

// seedStory saves and materializes a story with options "Left" and "Right".
func (h *harness) seedStory(t *testing.T, submissionID string) StoryResult {
	t.Helper()
	ctx := context.Background()
	submission := domain.StorySubmission{
		ID:      submissionID,
		Title:   "The Cellar",
		Content: "Stairs lead down.",
		Author:  "Ana",
		Options: []string{"Left", "Right"},
	}
	if err := h.db.SaveStorySubmission(ctx, submission); err != nil {
		t.Fatalf("save story submission: %v", err)
	}
	result, err := h.stories.Materialize(ctx, submission, MaterializeOptions{})
	if err != nil {
		t.Fatalf("materialize story: %v", err)
	}
	if result.Outcome != OutcomeApplied {
		t.Fatalf("seed outcome = %v, want applied", result.Outcome)
	}
	return result
}

// savePage persists a pending page submission and returns it.
func (h *harness) savePage(t *testing.T, submission domain.PageSubmission) domain.PageSubmission {
	t.Helper()
	if err := h.db.SavePageSubmission(context.Background(), submission); err != nil {
		t.Fatalf("save page submission: %v", err)
	}
	return submission
}

func (h *harness) option(t *testing.T, variant domain.VariantRef, position int) (domain.OptionRef, domain.Option) {
	t.Helper()
	ref, option, err := h.db.FindOptionByPosition(context.Background(), variant, position)
	if err != nil {
		t.Fatalf("find option %d: %v", position, err)
	}
	return ref, option
}

func (h *harness) variantCount(t *testing.T, storyID string) int {
	t.Helper()
	stats, err := h.db.GetStoryStats(context.Background(), storyID)
	if err != nil {
		t.Fatalf("get story stats: %v", err)
	}
	return stats.VariantCount
}

func (h *harness) pageProcessed(t *testing.T, submissionID string) bool {
	t.Helper()
	submission, err := h.db.GetPageSubmission(context.Background(), submissionID)
	if err != nil {
		t.Fatalf("get page submission: %v", err)
	}
	return submission.Processed
}

// faultyStore wraps the SQLite store with failure injection.
type faultyStore struct {
	*sqlite.Store

	mu        sync.Mutex
	findErr   error
	commitErr error
	// hidden page numbers are reported free once, simulating a concurrent
	// writer that claims the number between probe and commit.
	hidden map[int]bool
	// unresolved options read as having no target once, simulating a
	// concurrent writer that back-fills them between read and commit.
	unresolved map[string]bool
	commits    int
}

func (f *faultyStore) GetOption(ctx context.Context, ref domain.OptionRef) (domain.Option, error) {
	option, err := f.Store.GetOption(ctx, ref)
	f.mu.Lock()
	stale := f.unresolved[ref.Path()]
	delete(f.unresolved, ref.Path())
	f.mu.Unlock()
	if err == nil && stale {
		option.TargetPage = nil
	}
	return option, err
}

func (f *faultyStore) FindPageByNumber(ctx context.Context, number int) (domain.PageRef, domain.Page, error) {
	f.mu.Lock()
	findErr := f.findErr
	hide := f.hidden[number]
	if hide {
		delete(f.hidden, number)
	}
	f.mu.Unlock()

	if findErr != nil {
		return domain.PageRef{}, domain.Page{}, findErr
	}
	if hide {
		return domain.PageRef{}, domain.Page{}, storage.ErrNotFound
	}
	return f.Store.FindPageByNumber(ctx, number)
}

func (f *faultyStore) NewBatch() storage.Batch {
	return &faultyBatch{Batch: f.Store.NewBatch(), store: f}
}

func (f *faultyStore) commitCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.commits
}

type faultyBatch struct {
	storage.Batch
	store *faultyStore
}

func (b *faultyBatch) Commit(ctx context.Context) error {
	b.store.mu.Lock()
	b.store.commits++
	commitErr := b.store.commitErr
	b.store.mu.Unlock()
	if commitErr != nil {
		return commitErr
	}
	return b.Batch.Commit(ctx)
}
