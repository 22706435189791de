package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/louisbranch/dendrite/internal/services/dendrite/domain"
	"github.com/louisbranch/dendrite/internal/services/dendrite/engine"
	"github.com/louisbranch/dendrite/internal/services/dendrite/storage"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	defaultConsumer      = "dendrite-processor"
	defaultPollInterval  = 2 * time.Second
	defaultBatchSize     = 25
	defaultRetryBackoff  = 5 * time.Second
	defaultRetryMaxDelay = 5 * time.Minute
)

// Event types recorded with each attempt.
const (
	EventPageSubmission   = "dendrite.page_submission"
	EventStorySubmission  = "dendrite.story_submission"
	EventModerationRating = "dendrite.moderation_rating"
)

// Attempt outcomes.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeSkipped   = "skipped"
	OutcomeRetry     = "retry"
	OutcomeDead      = "dead"
)

var tracer = otel.Tracer("github.com/louisbranch/dendrite/internal/services/dendrite/app")

// Config controls loop behavior.
type Config struct {
	Consumer     string
	PollInterval time.Duration
	BatchSize    int

	// RetryBackoff is the delay after the first failed attempt; each later
	// failure doubles it up to RetryMaxDelay.
	RetryBackoff  time.Duration
	RetryMaxDelay time.Duration
}

func (c Config) normalized() Config {
	c.Consumer = strings.TrimSpace(c.Consumer)
	if c.Consumer == "" {
		c.Consumer = defaultConsumer
	}
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaultBatchSize
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = defaultRetryBackoff
	}
	if c.RetryMaxDelay <= 0 {
		c.RetryMaxDelay = defaultRetryMaxDelay
	}
	if c.RetryMaxDelay < c.RetryBackoff {
		c.RetryMaxDelay = c.RetryBackoff
	}
	return c
}

// retryDelay is the backoff after the attempt-th failure.
func (c Config) retryDelay(attempt int) time.Duration {
	if attempt <= 0 {
		attempt = 1
	}
	delay := c.RetryBackoff
	for i := 1; i < attempt; i++ {
		if delay >= c.RetryMaxDelay/2 {
			return c.RetryMaxDelay
		}
		delay *= 2
	}
	if delay > c.RetryMaxDelay {
		return c.RetryMaxDelay
	}
	return delay
}

// PendingStore lists due work, defers failed events, and marks dead events
// processed.
type PendingStore interface {
	ListPendingPageSubmissions(ctx context.Context, limit int, now time.Time) ([]domain.PageSubmission, error)
	ListPendingStorySubmissions(ctx context.Context, limit int, now time.Time) ([]domain.StorySubmission, error)
	ListPendingModerationRatings(ctx context.Context, limit int, now time.Time) ([]domain.ModerationRating, error)
	DeferPageSubmission(ctx context.Context, id string, until time.Time) error
	DeferStorySubmission(ctx context.Context, id string, until time.Time) error
	DeferModerationRating(ctx context.Context, id string, until time.Time) error
	MarkPageSubmissionProcessed(ctx context.Context, id string) error
	MarkStorySubmissionProcessed(ctx context.Context, id string) error
	MarkModerationRatingProcessed(ctx context.Context, id string) error
}

// PageProcessor applies one page submission.
type PageProcessor interface {
	Process(ctx context.Context, submission domain.PageSubmission) (engine.PageResult, error)
}

// StoryMaterializer applies one story submission.
type StoryMaterializer interface {
	Materialize(ctx context.Context, submission domain.StorySubmission, opts engine.MaterializeOptions) (engine.StoryResult, error)
}

// VisibilityApplier applies one moderation rating.
type VisibilityApplier interface {
	Apply(ctx context.Context, rating domain.ModerationRating) (*domain.VisibilityUpdate, error)
}

// Handlers groups the engine entry points the loop dispatches to.
type Handlers struct {
	Pages      PageProcessor
	Stories    StoryMaterializer
	Visibility VisibilityApplier
}

// Summary counts attempt outcomes of one pass.
type Summary struct {
	Succeeded int
	Skipped   int
	Retried   int
	Dead      int
}

func (s *Summary) add(outcome string) {
	switch outcome {
	case OutcomeSucceeded:
		s.Succeeded++
	case OutcomeSkipped:
		s.Skipped++
	case OutcomeRetry:
		s.Retried++
	case OutcomeDead:
		s.Dead++
	}
}

// Total is the number of events handled.
func (s Summary) Total() int {
	return s.Succeeded + s.Skipped + s.Retried + s.Dead
}

// Loop polls pending submissions and ratings and hands them to the engine.
// Events are processed one at a time. A failed event stays pending and is
// hidden from polls until its backoff elapses; only permanent failures are
// dead-lettered.
type Loop struct {
	store    PendingStore
	attempts storage.AttemptStore
	handlers Handlers
	cfg      Config
	now      func() time.Time
}

// New builds a loop. A nil clock uses time.Now.
func New(store PendingStore, attempts storage.AttemptStore, handlers Handlers, cfg Config, now func() time.Time) (*Loop, error) {
	if store == nil {
		return nil, errors.New("pending store is required")
	}
	if attempts == nil {
		return nil, errors.New("attempt store is required")
	}
	if handlers.Pages == nil || handlers.Stories == nil || handlers.Visibility == nil {
		return nil, errors.New("page, story and visibility handlers are required")
	}
	if now == nil {
		now = time.Now
	}
	return &Loop{store: store, attempts: attempts, handlers: handlers, cfg: cfg.normalized(), now: now}, nil
}

// Run processes pending work every poll interval until ctx ends.
func (l *Loop) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.cfg.PollInterval)
	defer ticker.Stop()
	for {
		if _, err := l.RunOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			log.Printf("dendrite loop pass: %v", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// RunOnce handles up to BatchSize events of each kind: stories first, so
// pages submitted against a new story's options find them, then pages, then
// ratings.
func (l *Loop) RunOnce(ctx context.Context) (Summary, error) {
	var summary Summary
	now := l.now().UTC()

	stories, err := l.store.ListPendingStorySubmissions(ctx, l.cfg.BatchSize, now)
	if err != nil {
		return summary, fmt.Errorf("list pending story submissions: %w", err)
	}
	for _, submission := range stories {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		summary.add(l.handle(ctx, l.storyEvent(submission)))
	}

	pages, err := l.store.ListPendingPageSubmissions(ctx, l.cfg.BatchSize, now)
	if err != nil {
		return summary, fmt.Errorf("list pending page submissions: %w", err)
	}
	for _, submission := range pages {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		summary.add(l.handle(ctx, l.pageEvent(submission)))
	}

	ratings, err := l.store.ListPendingModerationRatings(ctx, l.cfg.BatchSize, now)
	if err != nil {
		return summary, fmt.Errorf("list pending moderation ratings: %w", err)
	}
	for _, rating := range ratings {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		summary.add(l.handle(ctx, l.ratingEvent(rating)))
	}
	return summary, nil
}

// event is one unit of pending work. apply returns the outcome of a
// successful attempt; retry hides the record until a later time and dead
// marks it so it is not polled again.
type event struct {
	id    string
	kind  string
	apply func(ctx context.Context) (string, string, error)
	retry func(ctx context.Context, until time.Time) error
	dead  func(ctx context.Context) error
}

func (l *Loop) pageEvent(submission domain.PageSubmission) event {
	return event{
		id:   submission.ID,
		kind: EventPageSubmission,
		apply: func(ctx context.Context) (string, string, error) {
			result, err := l.handlers.Pages.Process(ctx, submission)
			if err != nil {
				return "", "", err
			}
			switch result.Outcome {
			case engine.OutcomeApplied:
				return OutcomeSucceeded, "", nil
			case engine.OutcomeRejected:
				return OutcomeSkipped, errorText(result.Reason), nil
			default:
				return OutcomeSkipped, "", nil
			}
		},
		retry: func(ctx context.Context, until time.Time) error {
			return l.store.DeferPageSubmission(ctx, submission.ID, until)
		},
		dead: func(ctx context.Context) error {
			return l.store.MarkPageSubmissionProcessed(ctx, submission.ID)
		},
	}
}

func (l *Loop) storyEvent(submission domain.StorySubmission) event {
	return event{
		id:   submission.ID,
		kind: EventStorySubmission,
		apply: func(ctx context.Context) (string, string, error) {
			result, err := l.handlers.Stories.Materialize(ctx, submission, engine.MaterializeOptions{})
			if errors.Is(err, storage.ErrNotFound) {
				return "", "", Permanent(err)
			}
			if err != nil {
				return "", "", err
			}
			if result.Outcome == engine.OutcomeApplied {
				return OutcomeSucceeded, "", nil
			}
			return OutcomeSkipped, "", nil
		},
		retry: func(ctx context.Context, until time.Time) error {
			return l.store.DeferStorySubmission(ctx, submission.ID, until)
		},
		dead: func(ctx context.Context) error {
			return l.store.MarkStorySubmissionProcessed(ctx, submission.ID)
		},
	}
}

// ratingEvent applies the verdict and then marks the rating processed. A
// failure between the two re-applies the verdict on the next pass.
func (l *Loop) ratingEvent(rating domain.ModerationRating) event {
	return event{
		id:   rating.ID,
		kind: EventModerationRating,
		apply: func(ctx context.Context) (string, string, error) {
			update, err := l.handlers.Visibility.Apply(ctx, rating)
			if err != nil {
				return "", "", err
			}
			if err := l.store.MarkModerationRatingProcessed(ctx, rating.ID); err != nil {
				return "", "", fmt.Errorf("mark rating processed: %w", err)
			}
			if update == nil {
				return OutcomeSkipped, "no visibility update", nil
			}
			return OutcomeSucceeded, "", nil
		},
		retry: func(ctx context.Context, until time.Time) error {
			return l.store.DeferModerationRating(ctx, rating.ID, until)
		},
		dead: func(ctx context.Context) error {
			return l.store.MarkModerationRatingProcessed(ctx, rating.ID)
		},
	}
}

// handle runs one attempt and records its outcome.
func (l *Loop) handle(ctx context.Context, ev event) string {
	ctx, span := tracer.Start(ctx, ev.kind)
	defer span.End()
	span.SetAttributes(attribute.String("dendrite.event_id", ev.id))

	previous, err := l.attempts.CountAttempts(ctx, ev.kind, ev.id, "")
	if err != nil {
		log.Printf("count attempts for %s %s: %v", ev.kind, ev.id, err)
		previous = 0
	}
	attemptCount := previous + 1

	outcome, note, applyErr := ev.apply(ctx)
	if applyErr != nil {
		span.RecordError(applyErr)
		span.SetStatus(codes.Error, applyErr.Error())
		note = applyErr.Error()
		outcome = OutcomeRetry
		if IsPermanent(applyErr) {
			outcome = OutcomeDead
			if err := ev.dead(ctx); err != nil {
				log.Printf("mark dead %s %s: %v", ev.kind, ev.id, err)
				outcome = OutcomeRetry
			}
		}
		if outcome == OutcomeRetry {
			until := l.now().UTC().Add(l.cfg.retryDelay(attemptCount))
			if err := ev.retry(ctx, until); err != nil {
				log.Printf("defer %s %s: %v", ev.kind, ev.id, err)
			}
			note = fmt.Sprintf("%s (next attempt at %s)", note, until.Format(time.RFC3339))
		}
	}
	span.SetAttributes(attribute.String("dendrite.outcome", outcome))

	if err := l.attempts.RecordAttempt(ctx, storage.AttemptRecord{
		EventID:      ev.id,
		EventType:    ev.kind,
		Consumer:     l.cfg.Consumer,
		Outcome:      outcome,
		AttemptCount: int32(attemptCount),
		LastError:    note,
		CreatedAt:    l.now().UTC(),
	}); err != nil {
		log.Printf("record attempt for %s %s: %v", ev.kind, ev.id, err)
	}

	traceID := ""
	if sc := span.SpanContext(); sc.HasTraceID() {
		traceID = " trace=" + sc.TraceID().String()
	}
	if note != "" {
		log.Printf("%s %s attempt=%d outcome=%s%s: %s", ev.kind, ev.id, attemptCount, outcome, traceID, note)
	} else {
		log.Printf("%s %s attempt=%d outcome=%s%s", ev.kind, ev.id, attemptCount, outcome, traceID)
	}
	return outcome
}

func errorText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
