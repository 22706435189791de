package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/louisbranch/dendrite/internal/services/dendrite/domain"
	"github.com/louisbranch/dendrite/internal/services/dendrite/storage"
	"google.golang.org/api/iterator"
)

// nextAttemptField holds the time a deferred queue document is due again.
const nextAttemptField = "nextAttemptAt"

// SavePageSubmission creates one pending page submission.
func (s *Store) SavePageSubmission(ctx context.Context, submission domain.PageSubmission) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	id := strings.TrimSpace(submission.ID)
	if id == "" {
		return fmt.Errorf("submission id is required")
	}
	options := submission.Options
	if options == nil {
		options = []string{}
	}
	data := map[string]any{
		"incomingOptionFullName": submission.IncomingOptionFullName,
		"pageNumber":             submission.PageNumber,
		"content":                submission.Content,
		"author":                 submission.Author,
		"authorId":               submission.AuthorID,
		"options":                options,
		"processed":              submission.Processed,
		"createdAt":              createdAtValue(submission.CreatedAt.IsZero(), submission.CreatedAt),
	}
	return s.create(ctx, s.client.Collection(pageSubmissionsCollection).Doc(id), data)
}

// SaveStorySubmission creates one pending story submission.
func (s *Store) SaveStorySubmission(ctx context.Context, submission domain.StorySubmission) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	id := strings.TrimSpace(submission.ID)
	if id == "" {
		return fmt.Errorf("submission id is required")
	}
	options := submission.Options
	if options == nil {
		options = []string{}
	}
	data := map[string]any{
		"title":     submission.Title,
		"content":   submission.Content,
		"author":    submission.Author,
		"authorId":  submission.AuthorID,
		"options":   options,
		"processed": submission.Processed,
		"createdAt": createdAtValue(submission.CreatedAt.IsZero(), submission.CreatedAt),
	}
	return s.create(ctx, s.client.Collection(storySubmissionCollection).Doc(id), data)
}

// SaveModerationRating creates one pending moderation rating.
func (s *Store) SaveModerationRating(ctx context.Context, rating domain.ModerationRating) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	id := strings.TrimSpace(rating.ID)
	if id == "" {
		return fmt.Errorf("rating id is required")
	}
	data := map[string]any{
		"moderatorId": rating.ModeratorID,
		"variantId":   rating.VariantID,
		"isApproved":  rating.IsApproved,
		"processed":   rating.Processed,
		"ratedAt":     createdAtValue(rating.RatedAt.IsZero(), rating.RatedAt),
	}
	return s.create(ctx, s.client.Collection(ratingsCollection).Doc(id), data)
}

func (s *Store) create(ctx context.Context, ref *firestore.DocumentRef, data map[string]any) error {
	if _, err := ref.Create(ctx, data); err != nil {
		if isConflict(err) {
			return fmt.Errorf("%s: %w", relativePath(ref), storage.ErrConflict)
		}
		return fmt.Errorf("create %s: %w", relativePath(ref), err)
	}
	return nil
}

func createdAtValue(useServer bool, value any) any {
	if useServer {
		return firestore.ServerTimestamp
	}
	return value
}

// GetPageSubmission returns one page submission.
func (s *Store) GetPageSubmission(ctx context.Context, id string) (domain.PageSubmission, error) {
	if err := s.ready(ctx); err != nil {
		return domain.PageSubmission{}, err
	}
	snap, err := s.get(ctx, s.client.Collection(pageSubmissionsCollection).Doc(id))
	if err != nil {
		return domain.PageSubmission{}, err
	}
	return decodePageSubmission(snap)
}

// GetStorySubmission returns one story submission.
func (s *Store) GetStorySubmission(ctx context.Context, id string) (domain.StorySubmission, error) {
	if err := s.ready(ctx); err != nil {
		return domain.StorySubmission{}, err
	}
	snap, err := s.get(ctx, s.client.Collection(storySubmissionCollection).Doc(id))
	if err != nil {
		return domain.StorySubmission{}, err
	}
	return decodeStorySubmission(snap)
}

// pending lists unprocessed documents in orderField order, skipping those
// deferred past now. Queue documents written before deferral existed carry
// no nextAttemptAt and are always due.
func (s *Store) pending(ctx context.Context, collection, orderField string, limit int, now time.Time) ([]*firestore.DocumentSnapshot, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}
	iter := s.client.Collection(collection).
		Where("processed", "==", false).
		OrderBy(orderField, firestore.Asc).
		Documents(ctx)
	defer iter.Stop()

	snaps := make([]*firestore.DocumentSnapshot, 0, limit)
	for len(snaps) < limit {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list pending %s: %w", collection, err)
		}
		if next, ok := snap.Data()[nextAttemptField].(time.Time); ok && next.After(now) {
			continue
		}
		snaps = append(snaps, snap)
	}
	return snaps, nil
}

// ListPendingPageSubmissions lists due page submissions oldest first.
func (s *Store) ListPendingPageSubmissions(ctx context.Context, limit int, now time.Time) ([]domain.PageSubmission, error) {
	snaps, err := s.pending(ctx, pageSubmissionsCollection, "createdAt", limit, now)
	if err != nil {
		return nil, err
	}
	submissions := make([]domain.PageSubmission, 0, len(snaps))
	for _, snap := range snaps {
		submission, err := decodePageSubmission(snap)
		if err != nil {
			return nil, err
		}
		submissions = append(submissions, submission)
	}
	return submissions, nil
}

// ListPendingStorySubmissions lists due story submissions oldest first.
func (s *Store) ListPendingStorySubmissions(ctx context.Context, limit int, now time.Time) ([]domain.StorySubmission, error) {
	snaps, err := s.pending(ctx, storySubmissionCollection, "createdAt", limit, now)
	if err != nil {
		return nil, err
	}
	submissions := make([]domain.StorySubmission, 0, len(snaps))
	for _, snap := range snaps {
		submission, err := decodeStorySubmission(snap)
		if err != nil {
			return nil, err
		}
		submissions = append(submissions, submission)
	}
	return submissions, nil
}

// ListPendingModerationRatings lists due ratings oldest first.
func (s *Store) ListPendingModerationRatings(ctx context.Context, limit int, now time.Time) ([]domain.ModerationRating, error) {
	snaps, err := s.pending(ctx, ratingsCollection, "ratedAt", limit, now)
	if err != nil {
		return nil, err
	}
	ratings := make([]domain.ModerationRating, 0, len(snaps))
	for _, snap := range snaps {
		var doc ratingDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode moderation rating %s: %w", snap.Ref.ID, err)
		}
		ratings = append(ratings, domain.ModerationRating{
			ID:          snap.Ref.ID,
			ModeratorID: doc.ModeratorID,
			VariantID:   doc.VariantID,
			IsApproved:  doc.IsApproved,
			RatedAt:     doc.RatedAt,
			Processed:   doc.Processed,
		})
	}
	return ratings, nil
}

// MarkPageSubmissionProcessed stamps a page submission processed outside any batch.
func (s *Store) MarkPageSubmissionProcessed(ctx context.Context, id string) error {
	return s.markProcessed(ctx, pageSubmissionsCollection, id)
}

// MarkStorySubmissionProcessed stamps a story submission processed outside any batch.
func (s *Store) MarkStorySubmissionProcessed(ctx context.Context, id string) error {
	return s.markProcessed(ctx, storySubmissionCollection, id)
}

// MarkModerationRatingProcessed stamps a moderation rating processed.
func (s *Store) MarkModerationRatingProcessed(ctx context.Context, id string) error {
	return s.markProcessed(ctx, ratingsCollection, id)
}

// DeferPageSubmission hides a page submission from listings until until.
func (s *Store) DeferPageSubmission(ctx context.Context, id string, until time.Time) error {
	return s.deferPending(ctx, pageSubmissionsCollection, id, until)
}

// DeferStorySubmission hides a story submission from listings until until.
func (s *Store) DeferStorySubmission(ctx context.Context, id string, until time.Time) error {
	return s.deferPending(ctx, storySubmissionCollection, id, until)
}

// DeferModerationRating hides a rating from listings until until.
func (s *Store) DeferModerationRating(ctx context.Context, id string, until time.Time) error {
	return s.deferPending(ctx, ratingsCollection, id, until)
}

func (s *Store) deferPending(ctx context.Context, collection, id string, until time.Time) error {
	return s.update(ctx, collection, id, "defer", firestore.Update{Path: nextAttemptField, Value: until.UTC()})
}

func (s *Store) markProcessed(ctx context.Context, collection, id string) error {
	return s.update(ctx, collection, id, "mark processed", firestore.Update{Path: "processed", Value: true})
}

func (s *Store) update(ctx context.Context, collection, id, action string, update firestore.Update) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	ref := s.client.Collection(collection).Doc(id)
	if _, err := ref.Update(ctx, []firestore.Update{update}); err != nil {
		if isNotFound(err) {
			return fmt.Errorf("%s: %w", relativePath(ref), storage.ErrNotFound)
		}
		return fmt.Errorf("%s %s: %w", action, relativePath(ref), err)
	}
	return nil
}
