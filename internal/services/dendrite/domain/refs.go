package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Collection names used in document paths.
const (
	CollectionStories  = "stories"
	CollectionPages    = "pages"
	CollectionVariants = "variants"
	CollectionOptions  = "options"
)

// ErrInvalidPath indicates a document path that does not name the expected
// kind of graph node.
var ErrInvalidPath = errors.New("invalid document path")

// StoryRef identifies a story.
type StoryRef struct {
	StoryID string
}

// Path returns the story document path.
func (r StoryRef) Path() string {
	return CollectionStories + "/" + r.StoryID
}

// Valid reports whether every identifier is set.
func (r StoryRef) Valid() bool {
	return validSegments(r.StoryID)
}

// Page returns a reference to a page owned by the story.
func (r StoryRef) Page(pageID string) PageRef {
	return PageRef{StoryID: r.StoryID, PageID: pageID}
}

// PageRef identifies a page inside its story.
type PageRef struct {
	StoryID string
	PageID  string
}

// Story returns the owning story.
func (r PageRef) Story() StoryRef {
	return StoryRef{StoryID: r.StoryID}
}

// Path returns the page document path.
func (r PageRef) Path() string {
	return r.Story().Path() + "/" + CollectionPages + "/" + r.PageID
}

// Valid reports whether every identifier is set.
func (r PageRef) Valid() bool {
	return validSegments(r.StoryID, r.PageID)
}

// Variant returns a reference to a variant of the page.
func (r PageRef) Variant(variantID string) VariantRef {
	return VariantRef{StoryID: r.StoryID, PageID: r.PageID, VariantID: variantID}
}

// VariantRef identifies a variant inside its page.
type VariantRef struct {
	StoryID   string
	PageID    string
	VariantID string
}

// Page returns the owning page.
func (r VariantRef) Page() PageRef {
	return PageRef{StoryID: r.StoryID, PageID: r.PageID}
}

// Path returns the variant document path.
func (r VariantRef) Path() string {
	return r.Page().Path() + "/" + CollectionVariants + "/" + r.VariantID
}

// Valid reports whether every identifier is set.
func (r VariantRef) Valid() bool {
	return validSegments(r.StoryID, r.PageID, r.VariantID)
}

// Option returns a reference to an option offered by the variant.
func (r VariantRef) Option(optionID string) OptionRef {
	return OptionRef{StoryID: r.StoryID, PageID: r.PageID, VariantID: r.VariantID, OptionID: optionID}
}

// OptionRef identifies an option inside its variant. Its path is the
// option's full name as carried by page submissions.
type OptionRef struct {
	StoryID   string
	PageID    string
	VariantID string
	OptionID  string
}

// Variant returns the owning variant.
func (r OptionRef) Variant() VariantRef {
	return VariantRef{StoryID: r.StoryID, PageID: r.PageID, VariantID: r.VariantID}
}

// Path returns the option document path.
func (r OptionRef) Path() string {
	return r.Variant().Path() + "/" + CollectionOptions + "/" + r.OptionID
}

// Valid reports whether every identifier is set.
func (r OptionRef) Valid() bool {
	return validSegments(r.StoryID, r.PageID, r.VariantID, r.OptionID)
}

// ParseStoryPath parses "stories/{s}".
func ParseStoryPath(path string) (StoryRef, error) {
	ids, err := parsePath(path, CollectionStories)
	if err != nil {
		return StoryRef{}, err
	}
	return StoryRef{StoryID: ids[0]}, nil
}

// ParsePagePath parses "stories/{s}/pages/{p}".
func ParsePagePath(path string) (PageRef, error) {
	ids, err := parsePath(path, CollectionStories, CollectionPages)
	if err != nil {
		return PageRef{}, err
	}
	return PageRef{StoryID: ids[0], PageID: ids[1]}, nil
}

// ParseVariantPath parses "stories/{s}/pages/{p}/variants/{v}".
func ParseVariantPath(path string) (VariantRef, error) {
	ids, err := parsePath(path, CollectionStories, CollectionPages, CollectionVariants)
	if err != nil {
		return VariantRef{}, err
	}
	return VariantRef{StoryID: ids[0], PageID: ids[1], VariantID: ids[2]}, nil
}

// ParseOptionPath parses "stories/{s}/pages/{p}/variants/{v}/options/{o}".
func ParseOptionPath(path string) (OptionRef, error) {
	ids, err := parsePath(path, CollectionStories, CollectionPages, CollectionVariants, CollectionOptions)
	if err != nil {
		return OptionRef{}, err
	}
	return OptionRef{StoryID: ids[0], PageID: ids[1], VariantID: ids[2], OptionID: ids[3]}, nil
}

// parsePath accepts relative paths, paths with a leading slash, and fully
// qualified Firestore resource names ("projects/.../documents/stories/...").
func parsePath(path string, collections ...string) ([]string, error) {
	trimmed := strings.TrimSpace(path)
	if idx := strings.Index(trimmed, "/documents/"); idx >= 0 {
		trimmed = trimmed[idx+len("/documents/"):]
	}
	trimmed = strings.Trim(trimmed, "/")
	segments := strings.Split(trimmed, "/")
	if len(segments) != 2*len(collections) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPath, path)
	}
	ids := make([]string, 0, len(collections))
	for i, collection := range collections {
		if segments[2*i] != collection {
			return nil, fmt.Errorf("%w: %q: expected %s collection", ErrInvalidPath, path, collection)
		}
		id := segments[2*i+1]
		if !validSegments(id) {
			return nil, fmt.Errorf("%w: %q: empty %s id", ErrInvalidPath, path, collection)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func validSegments(ids ...string) bool {
	for _, id := range ids {
		if strings.TrimSpace(id) == "" || strings.Contains(id, "/") {
			return false
		}
	}
	return true
}
