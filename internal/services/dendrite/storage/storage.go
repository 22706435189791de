// Package storage defines the document-store contracts consumed by the
// Dendrite graph engine.
//
// Implementations live in subpackages: sqlite for local deployments and
// firestore for the hosted document database.
//
// Common error types:
//   - ErrNotFound: requested document is missing
//   - ErrAlreadyProcessed: a batch tried to mark an already processed
//     submission; nothing in the batch was applied
//   - ErrConflict: a uniqueness constraint rejected the batch (for example
//     a page number claimed concurrently)
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/louisbranch/dendrite/internal/services/dendrite/domain"
)

var (
	// ErrNotFound indicates a requested document is missing.
	ErrNotFound = errors.New("record not found")
	// ErrAlreadyProcessed indicates a submission was processed by an earlier delivery.
	ErrAlreadyProcessed = errors.New("submission already processed")
	// ErrConflict indicates a batch violated a uniqueness constraint.
	ErrConflict = errors.New("record conflict")
)

// GraphReader reads narrative graph documents.
type GraphReader interface {
	GetStory(ctx context.Context, ref domain.StoryRef) (domain.Story, error)
	GetPage(ctx context.Context, ref domain.PageRef) (domain.Page, error)
	GetVariant(ctx context.Context, ref domain.VariantRef) (domain.Variant, error)
	GetOption(ctx context.Context, ref domain.OptionRef) (domain.Option, error)
	GetAuthor(ctx context.Context, authorID string) (domain.Author, error)
	GetStoryStats(ctx context.Context, storyID string) (domain.StoryStats, error)
	// FindPageByNumber looks a page up across every story.
	FindPageByNumber(ctx context.Context, number int) (domain.PageRef, domain.Page, error)
	// LatestVariantName returns the page's greatest variant name in base-26
	// order, or "" when the page has no variants.
	LatestVariantName(ctx context.Context, page domain.PageRef) (string, error)
	FindVariantByName(ctx context.Context, page domain.PageRef, name string) (domain.VariantRef, domain.Variant, error)
	FindOptionByPosition(ctx context.Context, variant domain.VariantRef, position int) (domain.OptionRef, domain.Option, error)
	ListOptions(ctx context.Context, variant domain.VariantRef) ([]domain.Option, error)
	// SampleUnmoderatedVariant picks a variant for moderation following
	// domain.ModerationSamplePlan from draw, a value in [0,1). It returns
	// ErrNotFound when the graph has no variants.
	SampleUnmoderatedVariant(ctx context.Context, draw float64) (domain.VariantRef, domain.Variant, error)
}

// SubmissionStore persists pending submissions and their processed markers.
type SubmissionStore interface {
	SavePageSubmission(ctx context.Context, submission domain.PageSubmission) error
	SaveStorySubmission(ctx context.Context, submission domain.StorySubmission) error
	SaveModerationRating(ctx context.Context, rating domain.ModerationRating) error
	GetPageSubmission(ctx context.Context, id string) (domain.PageSubmission, error)
	GetStorySubmission(ctx context.Context, id string) (domain.StorySubmission, error)
	// The ListPending* methods return unprocessed records due at now, oldest
	// first.
	ListPendingPageSubmissions(ctx context.Context, limit int, now time.Time) ([]domain.PageSubmission, error)
	ListPendingStorySubmissions(ctx context.Context, limit int, now time.Time) ([]domain.StorySubmission, error)
	ListPendingModerationRatings(ctx context.Context, limit int, now time.Time) ([]domain.ModerationRating, error)
	// The Defer* methods hide a pending record from listings until until.
	DeferPageSubmission(ctx context.Context, id string, until time.Time) error
	DeferStorySubmission(ctx context.Context, id string, until time.Time) error
	DeferModerationRating(ctx context.Context, id string, until time.Time) error
	// The Mark* methods are direct updates outside any batch.
	MarkPageSubmissionProcessed(ctx context.Context, id string) error
	MarkStorySubmissionProcessed(ctx context.Context, id string) error
	MarkModerationRatingProcessed(ctx context.Context, id string) error
}

// ModerationStore persists moderator assignments and reader reports.
type ModerationStore interface {
	// SaveModerationJob replaces the moderator's current assignment.
	SaveModerationJob(ctx context.Context, job domain.ModerationJob) error
	GetModerationJob(ctx context.Context, moderatorID string) (domain.ModerationJob, error)
	ClearModerationJob(ctx context.Context, moderatorID string) error
	SaveModerationReport(ctx context.Context, report domain.ModerationReport) error
}

// VisibilityStore writes moderation-driven variant state.
type VisibilityStore interface {
	UpdateVariantVisibility(ctx context.Context, ref domain.VariantRef, update domain.VisibilityUpdate) error
}

// Batch queues writes that commit atomically. Queue methods never perform
// I/O; every effect becomes visible only when Commit succeeds. Timestamps
// are assigned by the store at commit.
type Batch interface {
	CreateStory(ref domain.StoryRef, story domain.Story)
	CreatePage(ref domain.PageRef, page domain.Page)
	CreateVariant(ref domain.VariantRef, variant domain.Variant)
	CreateOption(ref domain.OptionRef, option domain.Option)
	// ResolveOption back-fills the option's target page. Commit fails with
	// ErrConflict when another commit already resolved the option to a page
	// that exists.
	ResolveOption(ref domain.OptionRef, target domain.PageRef)
	// IncrementStoryStats upserts the story's stats with merge semantics.
	IncrementStoryStats(storyID string, delta int)
	SetStoryStats(storyID string, stats domain.StoryStats)
	MarkVariantDirty(ref domain.VariantRef)
	// CreateAuthor keeps an existing author record untouched where the
	// backend can express that.
	CreateAuthor(authorID string, author domain.Author)
	// MarkPageSubmissionProcessed and MarkStorySubmissionProcessed guard the
	// batch: when the submission is already processed at commit time Commit
	// returns ErrAlreadyProcessed and applies nothing.
	MarkPageSubmissionProcessed(id string)
	MarkStorySubmissionProcessed(id string)
	Commit(ctx context.Context) error
}

// Store is the full document store used by the engine.
type Store interface {
	GraphReader
	SubmissionStore
	VisibilityStore
	ModerationStore
	NewBatch() Batch
}

// AttemptRecord is one durable processing outcome record.
type AttemptRecord struct {
	ID           int64
	EventID      string
	EventType    string
	Consumer     string
	Outcome      string
	AttemptCount int32
	LastError    string
	CreatedAt    time.Time
}

// AttemptStore persists processing attempt records.
type AttemptStore interface {
	RecordAttempt(ctx context.Context, attempt AttemptRecord) error
	ListAttempts(ctx context.Context, limit int) ([]AttemptRecord, error)
	// CountAttempts returns how many attempts exist for one event of one
	// type and outcome; an empty outcome counts every attempt.
	CountAttempts(ctx context.Context, eventType, eventID, outcome string) (int, error)
}
