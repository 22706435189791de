package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/firestore"
	"github.com/louisbranch/dendrite/internal/services/dendrite/domain"
	"github.com/louisbranch/dendrite/internal/services/dendrite/storage"
	"google.golang.org/api/iterator"
)

// GetStory returns one story.
func (s *Store) GetStory(ctx context.Context, ref domain.StoryRef) (domain.Story, error) {
	if err := s.ready(ctx); err != nil {
		return domain.Story{}, err
	}
	snap, err := s.get(ctx, s.doc(ref.Path()))
	if err != nil {
		return domain.Story{}, err
	}
	var doc storyDoc
	if err := snap.DataTo(&doc); err != nil {
		return domain.Story{}, fmt.Errorf("decode story %s: %w", ref.StoryID, err)
	}
	story := domain.Story{Title: doc.Title, CreatedAt: doc.CreatedAt}
	if doc.RootPage != nil {
		root, err := domain.ParsePagePath(relativePath(doc.RootPage))
		if err != nil {
			return domain.Story{}, fmt.Errorf("decode story %s root page: %w", ref.StoryID, err)
		}
		story.RootPage = root
	}
	return story, nil
}

// GetPage returns one page.
func (s *Store) GetPage(ctx context.Context, ref domain.PageRef) (domain.Page, error) {
	if err := s.ready(ctx); err != nil {
		return domain.Page{}, err
	}
	snap, err := s.get(ctx, s.doc(ref.Path()))
	if err != nil {
		return domain.Page{}, err
	}
	return decodePage(snap)
}

// FindPageByNumber queries the pages collection group by number.
func (s *Store) FindPageByNumber(ctx context.Context, number int) (domain.PageRef, domain.Page, error) {
	if err := s.ready(ctx); err != nil {
		return domain.PageRef{}, domain.Page{}, err
	}
	snap, err := first(ctx, s.pagesByNumber(number), fmt.Sprintf("page number %d", number))
	if err != nil {
		return domain.PageRef{}, domain.Page{}, err
	}
	ref, err := domain.ParsePagePath(relativePath(snap.Ref))
	if err != nil {
		return domain.PageRef{}, domain.Page{}, err
	}
	page, err := decodePage(snap)
	if err != nil {
		return domain.PageRef{}, domain.Page{}, err
	}
	return ref, page, nil
}

func (s *Store) pagesByNumber(number int) firestore.Query {
	return s.client.CollectionGroup(domain.CollectionPages).Where("number", "==", number)
}

// GetVariant returns one variant.
func (s *Store) GetVariant(ctx context.Context, ref domain.VariantRef) (domain.Variant, error) {
	if err := s.ready(ctx); err != nil {
		return domain.Variant{}, err
	}
	snap, err := s.get(ctx, s.doc(ref.Path()))
	if err != nil {
		return domain.Variant{}, err
	}
	return decodeVariant(snap)
}

// LatestVariantName scans the page's variant names and returns the greatest
// in base-26 order. Firestore orders strings lexically, which would rank "z"
// above "aa", so the comparison happens here.
func (s *Store) LatestVariantName(ctx context.Context, page domain.PageRef) (string, error) {
	if err := s.ready(ctx); err != nil {
		return "", err
	}
	iter := s.doc(page.Path()).Collection(domain.CollectionVariants).Select("name").Documents(ctx)
	defer iter.Stop()

	var names []string
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("list variant names: %w", err)
		}
		name, err := snap.DataAt("name")
		if err != nil {
			continue
		}
		if value, ok := name.(string); ok {
			names = append(names, value)
		}
	}
	return domain.LatestVariantName(names), nil
}

// FindVariantByName looks a variant up by its name within a page.
func (s *Store) FindVariantByName(ctx context.Context, page domain.PageRef, name string) (domain.VariantRef, domain.Variant, error) {
	if err := s.ready(ctx); err != nil {
		return domain.VariantRef{}, domain.Variant{}, err
	}
	q := s.doc(page.Path()).Collection(domain.CollectionVariants).Where("name", "==", name)
	snap, err := first(ctx, q, "variant "+name+" of "+page.Path())
	if err != nil {
		return domain.VariantRef{}, domain.Variant{}, err
	}
	variant, err := decodeVariant(snap)
	if err != nil {
		return domain.VariantRef{}, domain.Variant{}, err
	}
	return page.Variant(snap.Ref.ID), variant, nil
}

// GetOption returns one option.
func (s *Store) GetOption(ctx context.Context, ref domain.OptionRef) (domain.Option, error) {
	if err := s.ready(ctx); err != nil {
		return domain.Option{}, err
	}
	snap, err := s.get(ctx, s.doc(ref.Path()))
	if err != nil {
		return domain.Option{}, err
	}
	return decodeOption(snap)
}

// FindOptionByPosition looks an option up by its position within a variant.
func (s *Store) FindOptionByPosition(ctx context.Context, variant domain.VariantRef, position int) (domain.OptionRef, domain.Option, error) {
	if err := s.ready(ctx); err != nil {
		return domain.OptionRef{}, domain.Option{}, err
	}
	q := s.doc(variant.Path()).Collection(domain.CollectionOptions).Where("position", "==", position)
	snap, err := first(ctx, q, fmt.Sprintf("option %d of %s", position, variant.Path()))
	if err != nil {
		return domain.OptionRef{}, domain.Option{}, err
	}
	option, err := decodeOption(snap)
	if err != nil {
		return domain.OptionRef{}, domain.Option{}, err
	}
	return variant.Option(snap.Ref.ID), option, nil
}

// ListOptions lists a variant's options by position.
func (s *Store) ListOptions(ctx context.Context, variant domain.VariantRef) ([]domain.Option, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	snaps, err := s.doc(variant.Path()).Collection(domain.CollectionOptions).
		OrderBy("position", firestore.Asc).
		Documents(ctx).
		GetAll()
	if err != nil {
		return nil, fmt.Errorf("list options: %w", err)
	}
	options := make([]domain.Option, 0, len(snaps))
	for _, snap := range snaps {
		option, err := decodeOption(snap)
		if err != nil {
			return nil, err
		}
		options = append(options, option)
	}
	return options, nil
}

// GetAuthor returns one author record.
func (s *Store) GetAuthor(ctx context.Context, authorID string) (domain.Author, error) {
	if err := s.ready(ctx); err != nil {
		return domain.Author{}, err
	}
	authorID = strings.TrimSpace(authorID)
	if authorID == "" {
		return domain.Author{}, fmt.Errorf("author id is required")
	}
	snap, err := s.get(ctx, s.client.Collection(authorsCollection).Doc(authorID))
	if err != nil {
		return domain.Author{}, err
	}
	var author struct {
		UUID string `firestore:"uuid"`
	}
	if err := snap.DataTo(&author); err != nil {
		return domain.Author{}, fmt.Errorf("decode author %s: %w", authorID, err)
	}
	return domain.Author{UUID: author.UUID}, nil
}

// GetStoryStats returns one story's counters.
func (s *Store) GetStoryStats(ctx context.Context, storyID string) (domain.StoryStats, error) {
	if err := s.ready(ctx); err != nil {
		return domain.StoryStats{}, err
	}
	snap, err := s.get(ctx, s.client.Collection(storyStatsCollection).Doc(storyID))
	if err != nil {
		return domain.StoryStats{}, err
	}
	var stats struct {
		VariantCount int `firestore:"variantCount"`
	}
	if err := snap.DataTo(&stats); err != nil {
		return domain.StoryStats{}, fmt.Errorf("decode story stats %s: %w", storyID, err)
	}
	return domain.StoryStats{VariantCount: stats.VariantCount}, nil
}

// UpdateVariantVisibility writes moderation-driven variant state.
func (s *Store) UpdateVariantVisibility(ctx context.Context, ref domain.VariantRef, update domain.VisibilityUpdate) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	_, err := s.doc(ref.Path()).Update(ctx, []firestore.Update{
		{Path: "visibility", Value: update.Visibility},
		{Path: "moderationRatingCount", Value: update.ModerationRatingCount},
		{Path: "moderatorReputationSum", Value: update.ModeratorReputationSum},
	})
	if err != nil {
		if isNotFound(err) {
			return fmt.Errorf("variant %s: %w", ref.Path(), storage.ErrNotFound)
		}
		return fmt.Errorf("update variant visibility: %w", err)
	}
	return nil
}
