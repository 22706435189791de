package firestore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/louisbranch/dendrite/internal/services/dendrite/storage"
)

// RecordAttempt persists one processing attempt.
func (s *Store) RecordAttempt(ctx context.Context, attempt storage.AttemptRecord) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	attempt.EventID = strings.TrimSpace(attempt.EventID)
	attempt.EventType = strings.TrimSpace(attempt.EventType)
	attempt.Consumer = strings.TrimSpace(attempt.Consumer)
	attempt.Outcome = strings.TrimSpace(attempt.Outcome)
	attempt.LastError = strings.TrimSpace(attempt.LastError)
	if attempt.EventID == "" {
		return fmt.Errorf("event id is required")
	}
	if attempt.EventType == "" {
		return fmt.Errorf("event type is required")
	}
	if attempt.Consumer == "" {
		return fmt.Errorf("consumer is required")
	}
	if attempt.Outcome == "" {
		return fmt.Errorf("outcome is required")
	}
	if attempt.CreatedAt.IsZero() {
		attempt.CreatedAt = time.Now().UTC()
	}

	_, _, err := s.client.Collection(attemptsCollection).Add(ctx, attemptDoc{
		EventID:      attempt.EventID,
		EventType:    attempt.EventType,
		Consumer:     attempt.Consumer,
		Outcome:      attempt.Outcome,
		AttemptCount: attempt.AttemptCount,
		LastError:    attempt.LastError,
		CreatedAt:    attempt.CreatedAt.UTC(),
	})
	if err != nil {
		return fmt.Errorf("record attempt: %w", err)
	}
	return nil
}

// ListAttempts lists newest-first attempt records. Firestore document ids
// are not numeric, so ID stays zero.
func (s *Store) ListAttempts(ctx context.Context, limit int) ([]storage.AttemptRecord, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}
	snaps, err := s.client.Collection(attemptsCollection).
		OrderBy("createdAt", firestore.Desc).
		Limit(limit).
		Documents(ctx).
		GetAll()
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	records := make([]storage.AttemptRecord, 0, len(snaps))
	for _, snap := range snaps {
		var doc attemptDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode attempt %s: %w", snap.Ref.ID, err)
		}
		records = append(records, storage.AttemptRecord{
			EventID:      doc.EventID,
			EventType:    doc.EventType,
			Consumer:     doc.Consumer,
			Outcome:      doc.Outcome,
			AttemptCount: doc.AttemptCount,
			LastError:    doc.LastError,
			CreatedAt:    doc.CreatedAt.UTC(),
		})
	}
	return records, nil
}

// CountAttempts counts attempts for one event, optionally filtered by outcome.
func (s *Store) CountAttempts(ctx context.Context, eventType, eventID, outcome string) (int, error) {
	if err := s.ready(ctx); err != nil {
		return 0, err
	}
	q := s.client.Collection(attemptsCollection).
		Where("eventType", "==", eventType).
		Where("eventId", "==", eventID)
	if outcome != "" {
		q = q.Where("outcome", "==", outcome)
	}
	snaps, err := q.Documents(ctx).GetAll()
	if err != nil {
		return 0, fmt.Errorf("count attempts: %w", err)
	}
	return len(snaps), nil
}
