package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/louisbranch/dendrite/internal/services/dendrite/domain"
	"github.com/louisbranch/dendrite/internal/services/dendrite/storage"
)

func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open("  "); err == nil {
		t.Fatal("expected empty path to be rejected")
	}
}

func TestBatchCommitCreatesStorySubtree(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()
	fixedNow(store, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))

	seedStory(t, store, "s1", "p1", 7)

	story, err := store.GetStory(ctx, domain.StoryRef{StoryID: "s1"})
	if err != nil {
		t.Fatalf("get story: %v", err)
	}
	if story.Title != "Lost Keys" || story.RootPage != (domain.PageRef{StoryID: "s1", PageID: "p1"}) {
		t.Fatalf("story = %+v", story)
	}
	if !story.CreatedAt.Equal(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)) {
		t.Fatalf("created at = %v", story.CreatedAt)
	}

	ref, page, err := store.FindPageByNumber(ctx, 7)
	if err != nil {
		t.Fatalf("find page: %v", err)
	}
	if ref != (domain.PageRef{StoryID: "s1", PageID: "p1"}) || page.Number != 7 {
		t.Fatalf("page = %+v %+v", ref, page)
	}

	variantRef, variant, err := store.FindVariantByName(ctx, ref, "a")
	if err != nil {
		t.Fatalf("find variant: %v", err)
	}
	if variantRef.VariantID != "v1" || variant.Content != "It was dark." || variant.Rand != 0.25 {
		t.Fatalf("variant = %+v %+v", variantRef, variant)
	}

	options, err := store.ListOptions(ctx, variantRef)
	if err != nil {
		t.Fatalf("list options: %v", err)
	}
	if len(options) != 2 || options[0].Content != "Go left" || options[1].Position != 1 {
		t.Fatalf("options = %+v", options)
	}
	if options[0].Resolved() {
		t.Fatal("expected new option to be unresolved")
	}

	stats, err := store.GetStoryStats(ctx, "s1")
	if err != nil {
		t.Fatalf("get stats: %v", err)
	}
	if stats.VariantCount != 1 {
		t.Fatalf("variant count = %d, want 1", stats.VariantCount)
	}
}

func TestBatchCommitRejectsTakenPageNumber(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()
	seedStory(t, store, "s1", "p1", 3)

	batch := store.NewBatch()
	batch.CreatePage(domain.PageRef{StoryID: "s1", PageID: "p2"}, domain.Page{Number: 3})
	batch.IncrementStoryStats("s1", 1)
	err := batch.Commit(ctx)
	if !errors.Is(err, storage.ErrConflict) {
		t.Fatalf("commit err = %v, want ErrConflict", err)
	}

	stats, err := store.GetStoryStats(ctx, "s1")
	if err != nil {
		t.Fatalf("get stats: %v", err)
	}
	if stats.VariantCount != 1 {
		t.Fatalf("variant count = %d, want 1 after rolled back batch", stats.VariantCount)
	}
}

func TestBatchProcessedGuard(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()
	seedStory(t, store, "s1", "p1", 1)

	if err := store.SavePageSubmission(ctx, domain.PageSubmission{ID: "sub-1", PageNumber: 1, Content: "x"}); err != nil {
		t.Fatalf("save submission: %v", err)
	}

	first := store.NewBatch()
	first.IncrementStoryStats("s1", 1)
	first.MarkPageSubmissionProcessed("sub-1")
	if err := first.Commit(ctx); err != nil {
		t.Fatalf("first commit: %v", err)
	}

	second := store.NewBatch()
	second.IncrementStoryStats("s1", 1)
	second.MarkPageSubmissionProcessed("sub-1")
	if err := second.Commit(ctx); !errors.Is(err, storage.ErrAlreadyProcessed) {
		t.Fatalf("second commit err = %v, want ErrAlreadyProcessed", err)
	}

	stats, err := store.GetStoryStats(ctx, "s1")
	if err != nil {
		t.Fatalf("get stats: %v", err)
	}
	if stats.VariantCount != 2 {
		t.Fatalf("variant count = %d, want 2", stats.VariantCount)
	}

	missing := store.NewBatch()
	missing.MarkPageSubmissionProcessed("nope")
	if err := missing.Commit(ctx); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("missing commit err = %v, want ErrNotFound", err)
	}
}

func TestLatestVariantNameUsesBase26Order(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()
	seedStory(t, store, "s1", "p1", 1)
	page := domain.PageRef{StoryID: "s1", PageID: "p1"}

	batch := store.NewBatch()
	for i, name := range []string{"z", "aa", "b"} {
		batch.CreateVariant(page.Variant("extra-"+name), domain.Variant{Name: name, Rand: float64(i) / 10})
	}
	if err := batch.Commit(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}

	latest, err := store.LatestVariantName(ctx, page)
	if err != nil {
		t.Fatalf("latest variant name: %v", err)
	}
	if latest != "aa" {
		t.Fatalf("latest = %q, want %q", latest, "aa")
	}

	empty, err := store.LatestVariantName(ctx, domain.PageRef{StoryID: "s1", PageID: "none"})
	if err != nil {
		t.Fatalf("latest variant name on empty page: %v", err)
	}
	if empty != "" {
		t.Fatalf("latest on empty page = %q", empty)
	}
}

func TestBatchCommitRejectsDuplicateVariantName(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()
	seedStory(t, store, "s1", "p1", 1)

	batch := store.NewBatch()
	batch.CreateVariant(domain.VariantRef{StoryID: "s1", PageID: "p1", VariantID: "v2"}, domain.Variant{Name: "a"})
	if err := batch.Commit(ctx); !errors.Is(err, storage.ErrConflict) {
		t.Fatalf("commit err = %v, want ErrConflict", err)
	}
}

func TestResolveOptionAndMarkDirty(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()
	seedStory(t, store, "s1", "p1", 1)
	variant := domain.VariantRef{StoryID: "s1", PageID: "p1", VariantID: "v1"}

	optionRef, option, err := store.FindOptionByPosition(ctx, variant, 1)
	if err != nil {
		t.Fatalf("find option: %v", err)
	}
	if option.Content != "Go right" {
		t.Fatalf("option = %+v", option)
	}

	target := domain.PageRef{StoryID: "s1", PageID: "p2"}
	batch := store.NewBatch()
	batch.CreatePage(target, domain.Page{Number: 2, IncomingOption: optionRef.Path()})
	batch.ResolveOption(optionRef, target)
	batch.MarkVariantDirty(variant)
	if err := batch.Commit(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}

	resolved, err := store.GetOption(ctx, optionRef)
	if err != nil {
		t.Fatalf("get option: %v", err)
	}
	if resolved.TargetPage == nil || *resolved.TargetPage != target {
		t.Fatalf("target page = %+v, want %+v", resolved.TargetPage, target)
	}

	got, err := store.GetVariant(ctx, variant)
	if err != nil {
		t.Fatalf("get variant: %v", err)
	}
	if !got.Dirty {
		t.Fatal("expected variant to be dirty")
	}

	page, err := store.GetPage(ctx, target)
	if err != nil {
		t.Fatalf("get page: %v", err)
	}
	if page.IncomingOption != optionRef.Path() {
		t.Fatalf("incoming option = %q", page.IncomingOption)
	}
}

func TestResolveOptionRejectsResolvedOption(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()
	seedStory(t, store, "s1", "p1", 1)
	variant := domain.VariantRef{StoryID: "s1", PageID: "p1", VariantID: "v1"}
	optionRef, _, err := store.FindOptionByPosition(ctx, variant, 0)
	if err != nil {
		t.Fatalf("find option: %v", err)
	}

	first := domain.PageRef{StoryID: "s1", PageID: "p2"}
	batch := store.NewBatch()
	batch.CreatePage(first, domain.Page{Number: 2, IncomingOption: optionRef.Path()})
	batch.ResolveOption(optionRef, first)
	if err := batch.Commit(ctx); err != nil {
		t.Fatalf("first commit: %v", err)
	}

	second := domain.PageRef{StoryID: "s1", PageID: "p3"}
	late := store.NewBatch()
	late.CreatePage(second, domain.Page{Number: 3, IncomingOption: optionRef.Path()})
	late.ResolveOption(optionRef, second)
	if err := late.Commit(ctx); !errors.Is(err, storage.ErrConflict) {
		t.Fatalf("second commit err = %v, want ErrConflict", err)
	}

	option, err := store.GetOption(ctx, optionRef)
	if err != nil {
		t.Fatalf("get option: %v", err)
	}
	if option.TargetPage == nil || *option.TargetPage != first {
		t.Fatalf("target page = %+v, want %+v", option.TargetPage, first)
	}
	if _, err := store.GetPage(ctx, second); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("get losing page err = %v, want ErrNotFound", err)
	}
}

func TestResolveOptionReplacesDanglingTarget(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()
	seedStory(t, store, "s1", "p1", 1)
	variant := domain.VariantRef{StoryID: "s1", PageID: "p1", VariantID: "v1"}
	optionRef := variant.Option("dangling")
	gone := domain.PageRef{StoryID: "s1", PageID: "gone"}

	batch := store.NewBatch()
	batch.CreateOption(optionRef, domain.Option{Content: "Fall", Position: 5, TargetPage: &gone})
	if err := batch.Commit(ctx); err != nil {
		t.Fatalf("create option: %v", err)
	}

	target := domain.PageRef{StoryID: "s1", PageID: "p2"}
	resolve := store.NewBatch()
	resolve.CreatePage(target, domain.Page{Number: 2, IncomingOption: optionRef.Path()})
	resolve.ResolveOption(optionRef, target)
	if err := resolve.Commit(ctx); err != nil {
		t.Fatalf("resolve dangling option: %v", err)
	}

	missing := store.NewBatch()
	missing.ResolveOption(variant.Option("missing"), target)
	if err := missing.Commit(ctx); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("missing option err = %v, want ErrNotFound", err)
	}
}

func TestCreateAuthorKeepsFirstRecord(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()

	for _, uuid := range []string{"first", "second"} {
		batch := store.NewBatch()
		batch.CreateAuthor("author-1", domain.Author{UUID: uuid})
		if err := batch.Commit(ctx); err != nil {
			t.Fatalf("commit %s: %v", uuid, err)
		}
	}

	author, err := store.GetAuthor(ctx, "author-1")
	if err != nil {
		t.Fatalf("get author: %v", err)
	}
	if author.UUID != "first" {
		t.Fatalf("author uuid = %q, want %q", author.UUID, "first")
	}
	if _, err := store.GetAuthor(ctx, "author-2"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("missing author err = %v, want ErrNotFound", err)
	}
}

func TestUpdateVariantVisibility(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()
	seedStory(t, store, "s1", "p1", 1)
	ref := domain.VariantRef{StoryID: "s1", PageID: "p1", VariantID: "v1"}

	update := domain.VisibilityUpdate{Visibility: 0.75, ModerationRatingCount: 4, ModeratorReputationSum: 4}
	if err := store.UpdateVariantVisibility(ctx, ref, update); err != nil {
		t.Fatalf("update visibility: %v", err)
	}
	variant, err := store.GetVariant(ctx, ref)
	if err != nil {
		t.Fatalf("get variant: %v", err)
	}
	if variant.Visibility != 0.75 || variant.ModerationRatingCount != 4 || variant.ModeratorReputationSum != 4 {
		t.Fatalf("variant = %+v", variant)
	}

	missing := domain.VariantRef{StoryID: "s1", PageID: "p1", VariantID: "nope"}
	if err := store.UpdateVariantVisibility(ctx, missing, update); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("missing variant err = %v, want ErrNotFound", err)
	}
}

func TestSubmissionLifecycle(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	if err := store.SavePageSubmission(ctx, domain.PageSubmission{
		ID:                     "later",
		IncomingOptionFullName: "stories/s/pages/p/variants/v/options/o",
		Options:                []string{"one", "two"},
		CreatedAt:              base.Add(time.Minute),
	}); err != nil {
		t.Fatalf("save later: %v", err)
	}
	if err := store.SavePageSubmission(ctx, domain.PageSubmission{ID: "earlier", PageNumber: 4, CreatedAt: base}); err != nil {
		t.Fatalf("save earlier: %v", err)
	}
	if err := store.SavePageSubmission(ctx, domain.PageSubmission{ID: "earlier"}); !errors.Is(err, storage.ErrConflict) {
		t.Fatalf("duplicate save err = %v, want ErrConflict", err)
	}

	pending, err := store.ListPendingPageSubmissions(ctx, 10, base.Add(time.Hour))
	if err != nil {
		t.Fatalf("list pending: %v", err)
	}
	if len(pending) != 2 || pending[0].ID != "earlier" || pending[1].ID != "later" {
		t.Fatalf("pending = %+v", pending)
	}
	if len(pending[1].Options) != 2 || pending[1].Options[1] != "two" {
		t.Fatalf("options = %+v", pending[1].Options)
	}

	if err := store.MarkPageSubmissionProcessed(ctx, "earlier"); err != nil {
		t.Fatalf("mark processed: %v", err)
	}
	got, err := store.GetPageSubmission(ctx, "earlier")
	if err != nil {
		t.Fatalf("get submission: %v", err)
	}
	if !got.Processed {
		t.Fatal("expected submission to be processed")
	}
	if err := store.MarkPageSubmissionProcessed(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("mark missing err = %v, want ErrNotFound", err)
	}

	pending, err = store.ListPendingPageSubmissions(ctx, 10, base.Add(time.Hour))
	if err != nil {
		t.Fatalf("list pending again: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != "later" {
		t.Fatalf("pending after mark = %+v", pending)
	}
}

func TestStorySubmissionAndRatings(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()

	if err := store.SaveStorySubmission(ctx, domain.StorySubmission{ID: "story-1", Title: "T", Options: []string{"a"}}); err != nil {
		t.Fatalf("save story submission: %v", err)
	}
	got, err := store.GetStorySubmission(ctx, "story-1")
	if err != nil {
		t.Fatalf("get story submission: %v", err)
	}
	if got.Title != "T" || len(got.Options) != 1 || got.Processed {
		t.Fatalf("story submission = %+v", got)
	}

	approved := true
	if err := store.SaveModerationRating(ctx, domain.ModerationRating{ID: "r1", ModeratorID: "m", VariantID: "/stories/s/pages/p/variants/v", IsApproved: &approved}); err != nil {
		t.Fatalf("save rating: %v", err)
	}
	if err := store.SaveModerationRating(ctx, domain.ModerationRating{ID: "r2", ModeratorID: "m", VariantID: "x"}); err != nil {
		t.Fatalf("save rating without verdict: %v", err)
	}
	ratings, err := store.ListPendingModerationRatings(ctx, 10, time.Now())
	if err != nil {
		t.Fatalf("list ratings: %v", err)
	}
	if len(ratings) != 2 {
		t.Fatalf("ratings len = %d, want 2", len(ratings))
	}
	byID := map[string]domain.ModerationRating{}
	for _, rating := range ratings {
		byID[rating.ID] = rating
	}
	if byID["r1"].IsApproved == nil || !*byID["r1"].IsApproved {
		t.Fatalf("r1 = %+v", byID["r1"])
	}
	if byID["r2"].IsApproved != nil {
		t.Fatalf("r2 = %+v", byID["r2"])
	}

	if err := store.MarkModerationRatingProcessed(ctx, "r1"); err != nil {
		t.Fatalf("mark rating: %v", err)
	}
	ratings, err = store.ListPendingModerationRatings(ctx, 10, time.Now())
	if err != nil {
		t.Fatalf("list ratings again: %v", err)
	}
	if len(ratings) != 1 || ratings[0].ID != "r2" {
		t.Fatalf("ratings = %+v", ratings)
	}
}

func TestRecordListAndCountAttempts(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()
	now := time.Date(2026, 2, 21, 23, 30, 0, 0, time.UTC)

	for i, outcome := range []string{"retry", "retry", "succeeded"} {
		if err := store.RecordAttempt(ctx, storage.AttemptRecord{
			EventID:      "sub-1",
			EventType:    "page_submission",
			Consumer:     "processor-1",
			Outcome:      outcome,
			AttemptCount: int32(i + 1),
			CreatedAt:    now.Add(time.Duration(i) * time.Minute),
		}); err != nil {
			t.Fatalf("record attempt %d: %v", i, err)
		}
	}

	attempts, err := store.ListAttempts(ctx, 10)
	if err != nil {
		t.Fatalf("list attempts: %v", err)
	}
	if len(attempts) != 3 || attempts[0].Outcome != "succeeded" {
		t.Fatalf("attempts = %+v", attempts)
	}

	retries, err := store.CountAttempts(ctx, "page_submission", "sub-1", "retry")
	if err != nil {
		t.Fatalf("count retries: %v", err)
	}
	if retries != 2 {
		t.Fatalf("retries = %d, want 2", retries)
	}
	all, err := store.CountAttempts(ctx, "page_submission", "sub-1", "")
	if err != nil {
		t.Fatalf("count all: %v", err)
	}
	if all != 3 {
		t.Fatalf("all = %d, want 3", all)
	}

	// Counts are scoped to the event type.
	if err := store.RecordAttempt(ctx, storage.AttemptRecord{
		EventID:   "sub-1",
		EventType: "moderation_rating",
		Consumer:  "processor-1",
		Outcome:   "retry",
		CreatedAt: now,
	}); err != nil {
		t.Fatalf("record rating attempt: %v", err)
	}
	retries, err = store.CountAttempts(ctx, "page_submission", "sub-1", "retry")
	if err != nil {
		t.Fatalf("count retries after rating attempt: %v", err)
	}
	if retries != 2 {
		t.Fatalf("page retries = %d, want 2", retries)
	}
	ratingRetries, err := store.CountAttempts(ctx, "moderation_rating", "sub-1", "")
	if err != nil {
		t.Fatalf("count rating attempts: %v", err)
	}
	if ratingRetries != 1 {
		t.Fatalf("rating attempts = %d, want 1", ratingRetries)
	}

	if err := store.RecordAttempt(ctx, storage.AttemptRecord{}); err == nil {
		t.Fatal("expected validation error for empty attempt")
	}
}

func TestDeferHidesSubmissionUntilDue(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	if err := store.SavePageSubmission(ctx, domain.PageSubmission{ID: "page-1", PageNumber: 1, CreatedAt: base}); err != nil {
		t.Fatalf("save page submission: %v", err)
	}
	if err := store.SaveStorySubmission(ctx, domain.StorySubmission{ID: "story-1", Title: "T", CreatedAt: base}); err != nil {
		t.Fatalf("save story submission: %v", err)
	}
	if err := store.SaveModerationRating(ctx, domain.ModerationRating{ID: "rating-1", ModeratorID: "m", VariantID: "x", RatedAt: base}); err != nil {
		t.Fatalf("save rating: %v", err)
	}

	until := base.Add(10 * time.Second)
	if err := store.DeferPageSubmission(ctx, "page-1", until); err != nil {
		t.Fatalf("defer page submission: %v", err)
	}
	if err := store.DeferStorySubmission(ctx, "story-1", until); err != nil {
		t.Fatalf("defer story submission: %v", err)
	}
	if err := store.DeferModerationRating(ctx, "rating-1", until); err != nil {
		t.Fatalf("defer rating: %v", err)
	}
	if err := store.DeferPageSubmission(ctx, "missing", until); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("defer missing err = %v, want ErrNotFound", err)
	}

	early := base.Add(5 * time.Second)
	pages, err := store.ListPendingPageSubmissions(ctx, 10, early)
	if err != nil {
		t.Fatalf("list pages early: %v", err)
	}
	stories, err := store.ListPendingStorySubmissions(ctx, 10, early)
	if err != nil {
		t.Fatalf("list stories early: %v", err)
	}
	ratings, err := store.ListPendingModerationRatings(ctx, 10, early)
	if err != nil {
		t.Fatalf("list ratings early: %v", err)
	}
	if len(pages) != 0 || len(stories) != 0 || len(ratings) != 0 {
		t.Fatalf("early listing = %d pages, %d stories, %d ratings", len(pages), len(stories), len(ratings))
	}

	pages, err = store.ListPendingPageSubmissions(ctx, 10, until)
	if err != nil {
		t.Fatalf("list pages when due: %v", err)
	}
	stories, err = store.ListPendingStorySubmissions(ctx, 10, until)
	if err != nil {
		t.Fatalf("list stories when due: %v", err)
	}
	ratings, err = store.ListPendingModerationRatings(ctx, 10, until)
	if err != nil {
		t.Fatalf("list ratings when due: %v", err)
	}
	if len(pages) != 1 || len(stories) != 1 || len(ratings) != 1 {
		t.Fatalf("due listing = %d pages, %d stories, %d ratings", len(pages), len(stories), len(ratings))
	}
}

func TestSampleUnmoderatedVariantFollowsPlan(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()

	if _, _, err := store.SampleUnmoderatedVariant(ctx, 0.5); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("empty sample err = %v, want ErrNotFound", err)
	}

	page := domain.StoryRef{StoryID: "s1"}.Page("p1")
	batch := store.NewBatch()
	batch.CreateStory(page.Story(), domain.Story{Title: "T", RootPage: page})
	batch.CreatePage(page, domain.Page{Number: 1})
	batch.CreateVariant(page.Variant("low"), domain.Variant{Name: "a", Rand: 0.1})
	batch.CreateVariant(page.Variant("mid"), domain.Variant{Name: "b", Rand: 0.4})
	batch.CreateVariant(page.Variant("high"), domain.Variant{Name: "c", Rand: 0.8})
	if err := batch.Commit(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}

	tests := []struct {
		draw float64
		want string
	}{
		{draw: 0.3, want: "mid"},
		{draw: 0.9, want: "low"},
		{draw: 0.0, want: "low"},
	}
	for _, tc := range tests {
		ref, variant, err := store.SampleUnmoderatedVariant(ctx, tc.draw)
		if err != nil {
			t.Fatalf("sample %v: %v", tc.draw, err)
		}
		if ref != page.Variant(tc.want) || variant.Name == "" {
			t.Fatalf("sample %v = %+v %+v, want %s", tc.draw, ref, variant, tc.want)
		}
	}

	// Rated variants are only picked once nothing unrated is left.
	rated := domain.VisibilityUpdate{Visibility: 1, ModerationRatingCount: 1, ModeratorReputationSum: 1}
	if err := store.UpdateVariantVisibility(ctx, page.Variant("mid"), rated); err != nil {
		t.Fatalf("rate mid: %v", err)
	}
	ref, _, err := store.SampleUnmoderatedVariant(ctx, 0.3)
	if err != nil {
		t.Fatalf("sample after rating: %v", err)
	}
	if ref != page.Variant("high") {
		t.Fatalf("sample after rating = %+v, want high", ref)
	}
	for _, id := range []string{"low", "high"} {
		if err := store.UpdateVariantVisibility(ctx, page.Variant(id), rated); err != nil {
			t.Fatalf("rate %s: %v", id, err)
		}
	}
	ref, _, err = store.SampleUnmoderatedVariant(ctx, 0.3)
	if err != nil {
		t.Fatalf("sample all rated: %v", err)
	}
	if ref != page.Variant("mid") {
		t.Fatalf("sample all rated = %+v, want mid", ref)
	}
}

func TestModerationJobLifecycle(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	fixedNow(store, now)

	if _, err := store.GetModerationJob(ctx, "mod-1"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("get missing job err = %v, want ErrNotFound", err)
	}

	first := domain.StoryRef{StoryID: "s"}.Page("p").Variant("v1")
	second := domain.StoryRef{StoryID: "s"}.Page("p").Variant("v2")
	if err := store.SaveModerationJob(ctx, domain.ModerationJob{ModeratorID: "mod-1", Variant: first}); err != nil {
		t.Fatalf("save job: %v", err)
	}
	if err := store.SaveModerationJob(ctx, domain.ModerationJob{ModeratorID: "mod-1", Variant: second}); err != nil {
		t.Fatalf("replace job: %v", err)
	}
	job, err := store.GetModerationJob(ctx, "mod-1")
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if job.Variant != second || !job.CreatedAt.Equal(now) {
		t.Fatalf("job = %+v", job)
	}
	if err := store.SaveModerationJob(ctx, domain.ModerationJob{ModeratorID: "mod-2"}); err == nil {
		t.Fatal("expected job without variant to be rejected")
	}

	if err := store.ClearModerationJob(ctx, "mod-1"); err != nil {
		t.Fatalf("clear job: %v", err)
	}
	if _, err := store.GetModerationJob(ctx, "mod-1"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("get cleared job err = %v, want ErrNotFound", err)
	}
	if err := store.ClearModerationJob(ctx, "mod-1"); err != nil {
		t.Fatalf("clear job twice: %v", err)
	}
}

func TestSaveModerationReport(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()

	report := domain.ModerationReport{ID: "rep-1", Variant: "/stories/s/pages/p/variants/v"}
	if err := store.SaveModerationReport(ctx, report); err != nil {
		t.Fatalf("save report: %v", err)
	}
	if err := store.SaveModerationReport(ctx, report); !errors.Is(err, storage.ErrConflict) {
		t.Fatalf("duplicate report err = %v, want ErrConflict", err)
	}
	reports, err := store.ListModerationReports(ctx, 10)
	if err != nil {
		t.Fatalf("list reports: %v", err)
	}
	if len(reports) != 1 || reports[0].Variant != report.Variant {
		t.Fatalf("reports = %+v", reports)
	}
}

func TestMethodsHonorCanceledContext(t *testing.T) {
	store := openTempStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := store.GetStory(ctx, domain.StoryRef{StoryID: "s"}); !errors.Is(err, context.Canceled) {
		t.Fatalf("get story err = %v, want context.Canceled", err)
	}
	if err := store.NewBatch().Commit(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("commit err = %v, want context.Canceled", err)
	}
}

func TestNilStoreIsNotConfigured(t *testing.T) {
	var store *Store
	if _, err := store.GetPage(context.Background(), domain.PageRef{}); err == nil {
		t.Fatal("expected nil store to fail")
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close nil store: %v", err)
	}
}

func openTempStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "dendrite.db")
	store, err := Open(path)
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

func fixedNow(store *Store, now time.Time) {
	store.now = func() time.Time { return now }
}

// seedStory commits a story whose root page has variant "v1" named "a" with
// two unresolved options.
func seedStory(t *testing.T, store *Store, storyID, pageID string, number int) {
	t.Helper()
	story := domain.StoryRef{StoryID: storyID}
	page := story.Page(pageID)
	variant := page.Variant("v1")

	batch := store.NewBatch()
	batch.CreateStory(story, domain.Story{Title: "Lost Keys", RootPage: page})
	batch.CreatePage(page, domain.Page{Number: number})
	batch.CreateVariant(variant, domain.Variant{Name: "a", Content: "It was dark.", AuthorName: "Ana", Rand: 0.25})
	batch.CreateOption(variant.Option("o1"), domain.Option{Content: "Go left", Position: 0})
	batch.CreateOption(variant.Option("o2"), domain.Option{Content: "Go right", Position: 1})
	batch.SetStoryStats(storyID, domain.StoryStats{VariantCount: 1})
	if err := batch.Commit(context.Background()); err != nil {
		t.Fatalf("seed story: %v", err)
	}
}
