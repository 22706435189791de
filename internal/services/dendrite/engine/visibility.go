package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/louisbranch/dendrite/internal/services/dendrite/domain"
	"github.com/louisbranch/dendrite/internal/services/dendrite/storage"
)

// VariantVisibilityStore reads a variant and writes its moderation state.
type VariantVisibilityStore interface {
	GetVariant(ctx context.Context, ref domain.VariantRef) (domain.Variant, error)
	storage.VisibilityStore
}

// VisibilityUpdater folds moderation ratings into variant visibility.
type VisibilityUpdater struct {
	store VariantVisibilityStore
}

// NewVisibilityUpdater builds an updater.
func NewVisibilityUpdater(store VariantVisibilityStore) (*VisibilityUpdater, error) {
	if store == nil {
		return nil, fmt.Errorf("visibility store is required")
	}
	return &VisibilityUpdater{store: store}, nil
}

// Apply writes the variant's next visibility for one rating and returns it.
// It returns nil without writing when the rating has no verdict or names a
// malformed or missing variant.
func (u *VisibilityUpdater) Apply(ctx context.Context, rating domain.ModerationRating) (*domain.VisibilityUpdate, error) {
	if rating.IsApproved == nil {
		return nil, nil
	}
	ref, err := domain.ParseVariantPath(rating.VariantID)
	if err != nil {
		return nil, nil
	}
	variant, err := u.store.GetVariant(ctx, ref)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get rated variant: %w", err)
	}

	update := domain.NextVisibility(variant, *rating.IsApproved)
	if err := u.store.UpdateVariantVisibility(ctx, ref, update); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("update variant visibility: %w", err)
	}
	return &update, nil
}
