// Package firestore provides a Cloud Firestore narrative graph store.
//
// Documents keep the collection layout and field names the hosted Dendrite
// deployment already uses: stories/{id}/pages/{id}/variants/{id}/options/{id},
// storyStats/{storyId}, authors/{authorId}, moderators/{moderatorId}, and
// the pageFormSubmissions, storyFormSubmissions, and moderationRatings queues.
package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/firestore"
	"github.com/louisbranch/dendrite/internal/services/dendrite/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	storyStatsCollection      = "storyStats"
	authorsCollection         = "authors"
	pageSubmissionsCollection = "pageFormSubmissions"
	storySubmissionCollection = "storyFormSubmissions"
	ratingsCollection         = "moderationRatings"
	attemptsCollection        = "processingAttempts"
	moderatorsCollection      = "moderators"
	reportsCollection         = "moderationReports"
)

// Store persists the narrative graph in Firestore.
type Store struct {
	client *firestore.Client
}

// Open connects to the project's default database.
func Open(ctx context.Context, projectID string, opts ...option.ClientOption) (*Store, error) {
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		return nil, fmt.Errorf("firestore project is required")
	}
	client, err := firestore.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("open firestore client: %w", err)
	}
	return &Store{client: client}, nil
}

// New wraps an existing client.
func New(client *firestore.Client) *Store {
	return &Store{client: client}
}

// Close releases the Firestore client.
func (s *Store) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

func (s *Store) ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.client == nil {
		return fmt.Errorf("storage is not configured")
	}
	return nil
}

func (s *Store) doc(path string) *firestore.DocumentRef {
	return s.client.Doc(path)
}

// relativePath strips the resource-name prefix Firestore puts on references.
func relativePath(ref *firestore.DocumentRef) string {
	if ref == nil {
		return ""
	}
	path := ref.Path
	if i := strings.Index(path, "/documents/"); i >= 0 {
		path = path[i+len("/documents/"):]
	}
	return strings.Trim(path, "/")
}

func isNotFound(err error) bool {
	return status.Code(err) == codes.NotFound
}

func isConflict(err error) bool {
	return status.Code(err) == codes.AlreadyExists
}

// get reads one document and maps a missing document to storage.ErrNotFound.
func (s *Store) get(ctx context.Context, ref *firestore.DocumentRef) (*firestore.DocumentSnapshot, error) {
	snap, err := ref.Get(ctx)
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%s: %w", relativePath(ref), storage.ErrNotFound)
		}
		return nil, fmt.Errorf("get %s: %w", relativePath(ref), err)
	}
	return snap, nil
}

// first returns the first document of q, or storage.ErrNotFound.
func first(ctx context.Context, q firestore.Query, what string) (*firestore.DocumentSnapshot, error) {
	iter := q.Limit(1).Documents(ctx)
	defer iter.Stop()
	snap, err := iter.Next()
	if errors.Is(err, iterator.Done) {
		return nil, fmt.Errorf("%s: %w", what, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", what, err)
	}
	return snap, nil
}

var (
	_ storage.Store        = (*Store)(nil)
	_ storage.AttemptStore = (*Store)(nil)
)
