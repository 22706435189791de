package firestore

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"
	"github.com/louisbranch/dendrite/internal/services/dendrite/domain"
	"github.com/louisbranch/dendrite/internal/services/dendrite/storage"
)

// batchOp is one queued write. Firestore transactions require every read
// before the first write, so check runs for all ops before any apply.
type batchOp struct {
	check func(tx *firestore.Transaction) error
	apply func(tx *firestore.Transaction) error
}

// Batch queues graph writes and commits them in one transaction.
type Batch struct {
	store *Store
	ops   []batchOp
}

// NewBatch starts an empty write batch.
func (s *Store) NewBatch() storage.Batch {
	return &Batch{store: s}
}

func (b *Batch) write(apply func(tx *firestore.Transaction) error) {
	b.ops = append(b.ops, batchOp{apply: apply})
}

// CreateStory queues a story create.
func (b *Batch) CreateStory(ref domain.StoryRef, story domain.Story) {
	doc := b.store.doc(ref.Path())
	root := b.store.doc(story.RootPage.Path())
	b.write(func(tx *firestore.Transaction) error {
		return tx.Create(doc, map[string]any{
			"title":     story.Title,
			"rootPage":  root,
			"createdAt": firestore.ServerTimestamp,
		})
	})
}

// CreatePage queues a page create. The page number is checked against the
// pages collection group inside the transaction; a taken number fails the
// commit with storage.ErrConflict.
func (b *Batch) CreatePage(ref domain.PageRef, page domain.Page) {
	doc := b.store.doc(ref.Path())
	var incoming *firestore.DocumentRef
	if page.IncomingOption != "" {
		incoming = b.store.doc(page.IncomingOption)
	}
	b.ops = append(b.ops, batchOp{
		check: func(tx *firestore.Transaction) error {
			snaps, err := tx.Documents(b.store.pagesByNumber(page.Number).Limit(1)).GetAll()
			if err != nil {
				return fmt.Errorf("check page number %d: %w", page.Number, err)
			}
			if len(snaps) > 0 {
				return fmt.Errorf("page number %d: %w", page.Number, storage.ErrConflict)
			}
			return nil
		},
		apply: func(tx *firestore.Transaction) error {
			return tx.Create(doc, map[string]any{
				"number":         page.Number,
				"incomingOption": incoming,
				"createdAt":      firestore.ServerTimestamp,
			})
		},
	})
}

// CreateVariant queues a variant create. A name already used on the page
// fails the commit with storage.ErrConflict.
func (b *Batch) CreateVariant(ref domain.VariantRef, variant domain.Variant) {
	doc := b.store.doc(ref.Path())
	siblings := b.store.doc(ref.Page().Path()).Collection(domain.CollectionVariants)
	b.ops = append(b.ops, batchOp{
		check: func(tx *firestore.Transaction) error {
			snaps, err := tx.Documents(siblings.Where("name", "==", variant.Name).Limit(1)).GetAll()
			if err != nil {
				return fmt.Errorf("check variant name %s of %s: %w", variant.Name, ref.Page().Path(), err)
			}
			if len(snaps) > 0 {
				return fmt.Errorf("variant name %s of %s: %w", variant.Name, ref.Page().Path(), storage.ErrConflict)
			}
			return nil
		},
		apply: func(tx *firestore.Transaction) error {
			data := map[string]any{
				"name":                   variant.Name,
				"content":                variant.Content,
				"authorId":               variant.AuthorID,
				"authorName":             variant.AuthorName,
				"incomingOption":         variant.IncomingOption,
				"moderatorReputationSum": variant.ModeratorReputationSum,
				"moderationRatingCount":  variant.ModerationRatingCount,
				"visibility":             variant.Visibility,
				"rand":                   variant.Rand,
				"createdAt":              firestore.ServerTimestamp,
			}
			if variant.AuthorID == "" {
				data["authorId"] = nil
			}
			if variant.Dirty {
				data["dirty"] = nil
			}
			return tx.Create(doc, data)
		},
	})
}

// CreateOption queues an option create.
func (b *Batch) CreateOption(ref domain.OptionRef, option domain.Option) {
	doc := b.store.doc(ref.Path())
	b.write(func(tx *firestore.Transaction) error {
		data := map[string]any{
			"content":   option.Content,
			"position":  option.Position,
			"createdAt": firestore.ServerTimestamp,
		}
		if option.TargetPage != nil {
			data["targetPage"] = b.store.doc(option.TargetPage.Path())
		}
		return tx.Create(doc, data)
	})
}

// ResolveOption queues the back-fill of an option's target page. The option
// must still be unresolved, or point at a page that no longer exists, when
// the transaction reads it; otherwise the commit fails with
// storage.ErrConflict.
func (b *Batch) ResolveOption(ref domain.OptionRef, target domain.PageRef) {
	doc := b.store.doc(ref.Path())
	page := b.store.doc(target.Path())
	b.ops = append(b.ops, batchOp{
		check: func(tx *firestore.Transaction) error {
			snap, err := tx.Get(doc)
			if err != nil {
				if isNotFound(err) {
					return fmt.Errorf("option %s: %w", ref.Path(), storage.ErrNotFound)
				}
				return fmt.Errorf("read option %s: %w", ref.Path(), err)
			}
			current, err := snap.DataAt("targetPage")
			if err != nil {
				return nil
			}
			existing, ok := current.(*firestore.DocumentRef)
			if !ok || existing == nil {
				return nil
			}
			if _, err := tx.Get(existing); err != nil {
				if isNotFound(err) {
					return nil
				}
				return fmt.Errorf("read option %s target: %w", ref.Path(), err)
			}
			return fmt.Errorf("option %s already resolved: %w", ref.Path(), storage.ErrConflict)
		},
		apply: func(tx *firestore.Transaction) error {
			return tx.Update(doc, []firestore.Update{{Path: "targetPage", Value: page}})
		},
	})
}

// IncrementStoryStats queues a merge increment of the story's variant count.
func (b *Batch) IncrementStoryStats(storyID string, delta int) {
	doc := b.store.client.Collection(storyStatsCollection).Doc(storyID)
	b.write(func(tx *firestore.Transaction) error {
		return tx.Set(doc, map[string]any{"variantCount": firestore.Increment(delta)}, firestore.MergeAll)
	})
}

// SetStoryStats queues an overwrite of the story's counters.
func (b *Batch) SetStoryStats(storyID string, stats domain.StoryStats) {
	doc := b.store.client.Collection(storyStatsCollection).Doc(storyID)
	b.write(func(tx *firestore.Transaction) error {
		return tx.Set(doc, map[string]any{"variantCount": stats.VariantCount})
	})
}

// MarkVariantDirty queues the re-render signal: a null dirty field.
func (b *Batch) MarkVariantDirty(ref domain.VariantRef) {
	doc := b.store.doc(ref.Path())
	b.write(func(tx *firestore.Transaction) error {
		return tx.Update(doc, []firestore.Update{{Path: "dirty", Value: nil}})
	})
}

// CreateAuthor queues an author write. Concurrent first sightings of the same
// author overwrite each other with equivalent records.
func (b *Batch) CreateAuthor(authorID string, author domain.Author) {
	doc := b.store.client.Collection(authorsCollection).Doc(authorID)
	b.write(func(tx *firestore.Transaction) error {
		return tx.Set(doc, map[string]any{"uuid": author.UUID})
	})
}

// MarkPageSubmissionProcessed queues the guarded processed marker.
func (b *Batch) MarkPageSubmissionProcessed(id string) {
	b.ops = append(b.ops, b.guardProcessed(pageSubmissionsCollection, id))
}

// MarkStorySubmissionProcessed queues the guarded processed marker.
func (b *Batch) MarkStorySubmissionProcessed(id string) {
	b.ops = append(b.ops, b.guardProcessed(storySubmissionCollection, id))
}

func (b *Batch) guardProcessed(collection, id string) batchOp {
	doc := b.store.client.Collection(collection).Doc(id)
	return batchOp{
		check: func(tx *firestore.Transaction) error {
			snap, err := tx.Get(doc)
			if err != nil {
				if isNotFound(err) {
					return fmt.Errorf("%s: %w", relativePath(doc), storage.ErrNotFound)
				}
				return fmt.Errorf("read %s: %w", relativePath(doc), err)
			}
			processed, err := snap.DataAt("processed")
			if err == nil && processed == true {
				return fmt.Errorf("%s: %w", relativePath(doc), storage.ErrAlreadyProcessed)
			}
			return nil
		},
		apply: func(tx *firestore.Transaction) error {
			return tx.Update(doc, []firestore.Update{{Path: "processed", Value: true}})
		},
	}
}

// Commit applies every queued write in one transaction, or none of them.
func (b *Batch) Commit(ctx context.Context) error {
	if err := b.store.ready(ctx); err != nil {
		return err
	}
	if len(b.ops) == 0 {
		return nil
	}
	err := b.store.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		for _, op := range b.ops {
			if op.check == nil {
				continue
			}
			if err := op.check(tx); err != nil {
				return err
			}
		}
		for _, op := range b.ops {
			if err := op.apply(tx); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrAlreadyProcessed),
			errors.Is(err, storage.ErrConflict),
			errors.Is(err, storage.ErrNotFound):
			return err
		case isConflict(err):
			return fmt.Errorf("commit batch: %w: %v", storage.ErrConflict, err)
		case isNotFound(err):
			return fmt.Errorf("commit batch: %w: %v", storage.ErrNotFound, err)
		}
		return fmt.Errorf("commit batch: %w", err)
	}
	b.ops = nil
	return nil
}
