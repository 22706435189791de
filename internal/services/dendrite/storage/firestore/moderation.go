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
)

type moderatorDoc struct {
	Variant   *firestore.DocumentRef `firestore:"variant"`
	CreatedAt time.Time              `firestore:"createdAt"`
}

type reportDoc struct {
	Variant   string    `firestore:"variant"`
	CreatedAt time.Time `firestore:"createdAt"`
}

// SampleUnmoderatedVariant walks domain.ModerationSamplePlan over the
// variants collection group from draw.
func (s *Store) SampleUnmoderatedVariant(ctx context.Context, draw float64) (domain.VariantRef, domain.Variant, error) {
	if err := s.ready(ctx); err != nil {
		return domain.VariantRef{}, domain.Variant{}, err
	}
	for _, step := range domain.ModerationSamplePlan {
		q := s.client.CollectionGroup(domain.CollectionVariants).Query
		if step.Unmoderated {
			q = q.Where("moderatorReputationSum", "==", 0)
		}
		if step.Below {
			q = q.Where("rand", "<", draw)
		} else {
			q = q.Where("rand", ">=", draw)
		}
		snap, err := first(ctx, q.OrderBy("rand", firestore.Asc), "variant to moderate")
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return domain.VariantRef{}, domain.Variant{}, err
		}
		ref, err := domain.ParseVariantPath(relativePath(snap.Ref))
		if err != nil {
			return domain.VariantRef{}, domain.Variant{}, err
		}
		variant, err := decodeVariant(snap)
		if err != nil {
			return domain.VariantRef{}, domain.Variant{}, err
		}
		return ref, variant, nil
	}
	return domain.VariantRef{}, domain.Variant{}, fmt.Errorf("variant to moderate: %w", storage.ErrNotFound)
}

// SaveModerationJob writes moderators/{id}, replacing any earlier job.
func (s *Store) SaveModerationJob(ctx context.Context, job domain.ModerationJob) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	moderatorID := strings.TrimSpace(job.ModeratorID)
	if moderatorID == "" {
		return fmt.Errorf("moderator id is required")
	}
	if !job.Variant.Valid() {
		return fmt.Errorf("moderation job variant is required")
	}
	ref := s.client.Collection(moderatorsCollection).Doc(moderatorID)
	data := map[string]any{
		"variant":   s.doc(job.Variant.Path()),
		"createdAt": createdAtValue(job.CreatedAt.IsZero(), job.CreatedAt),
	}
	if _, err := ref.Set(ctx, data); err != nil {
		return fmt.Errorf("save moderation job %s: %w", relativePath(ref), err)
	}
	return nil
}

// GetModerationJob reads moderators/{id}. A moderator document without a
// variant has no job.
func (s *Store) GetModerationJob(ctx context.Context, moderatorID string) (domain.ModerationJob, error) {
	if err := s.ready(ctx); err != nil {
		return domain.ModerationJob{}, err
	}
	snap, err := s.get(ctx, s.client.Collection(moderatorsCollection).Doc(moderatorID))
	if err != nil {
		return domain.ModerationJob{}, err
	}
	var doc moderatorDoc
	if err := snap.DataTo(&doc); err != nil {
		return domain.ModerationJob{}, fmt.Errorf("decode moderator %s: %w", moderatorID, err)
	}
	if doc.Variant == nil {
		return domain.ModerationJob{}, fmt.Errorf("moderation job for %s: %w", moderatorID, storage.ErrNotFound)
	}
	variant, err := domain.ParseVariantPath(relativePath(doc.Variant))
	if err != nil {
		return domain.ModerationJob{}, fmt.Errorf("decode moderator %s variant: %w", moderatorID, err)
	}
	return domain.ModerationJob{ModeratorID: moderatorID, Variant: variant, CreatedAt: doc.CreatedAt}, nil
}

// ClearModerationJob deletes moderators/{id}. Deleting a missing document
// succeeds.
func (s *Store) ClearModerationJob(ctx context.Context, moderatorID string) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	ref := s.client.Collection(moderatorsCollection).Doc(moderatorID)
	if _, err := ref.Delete(ctx); err != nil {
		return fmt.Errorf("clear moderation job %s: %w", relativePath(ref), err)
	}
	return nil
}

// SaveModerationReport creates moderationReports/{id}.
func (s *Store) SaveModerationReport(ctx context.Context, report domain.ModerationReport) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	id := strings.TrimSpace(report.ID)
	if id == "" {
		return fmt.Errorf("report id is required")
	}
	data := map[string]any{
		"variant":   report.Variant,
		"createdAt": createdAtValue(report.CreatedAt.IsZero(), report.CreatedAt),
	}
	return s.create(ctx, s.client.Collection(reportsCollection).Doc(id), data)
}

// ListModerationReports lists reports oldest first.
func (s *Store) ListModerationReports(ctx context.Context, limit int) ([]domain.ModerationReport, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}
	snaps, err := s.client.Collection(reportsCollection).
		OrderBy("createdAt", firestore.Asc).
		Limit(limit).
		Documents(ctx).
		GetAll()
	if err != nil {
		return nil, fmt.Errorf("list moderation reports: %w", err)
	}
	reports := make([]domain.ModerationReport, 0, len(snaps))
	for _, snap := range snaps {
		var doc reportDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode moderation report %s: %w", snap.Ref.ID, err)
		}
		reports = append(reports, domain.ModerationReport{ID: snap.Ref.ID, Variant: doc.Variant, CreatedAt: doc.CreatedAt})
	}
	return reports, nil
}
