package domain

import (
	"strings"
	"time"
)

// PageSubmission asks for a new variant on an existing or new page.
//
// Exactly one selector must be set: IncomingOptionFullName (the option path
// the reader followed) or PageNumber (an existing page). A zero PageNumber
// means the selector is absent.
type PageSubmission struct {
	ID                     string
	IncomingOptionFullName string
	PageNumber             int
	Content                string
	Author                 string
	AuthorID               string
	Options                []string
	Processed              bool
	CreatedAt              time.Time
}

// HasOptionSelector reports whether the submission names an incoming option.
func (s PageSubmission) HasOptionSelector() bool {
	return strings.TrimSpace(s.IncomingOptionFullName) != ""
}

// HasPageSelector reports whether the submission names a page number.
func (s PageSubmission) HasPageSelector() bool {
	return s.PageNumber != 0
}

// StorySubmission asks for a new story with a root page.
type StorySubmission struct {
	ID        string
	Title     string
	Content   string
	Author    string
	AuthorID  string
	Options   []string
	Processed bool
	CreatedAt time.Time
}

// ModerationRating is one moderator verdict on a variant.
type ModerationRating struct {
	ID          string
	ModeratorID string
	// VariantID is the variant document path, optionally with a leading slash.
	VariantID string
	// IsApproved is nil when the payload carried no verdict.
	IsApproved *bool
	RatedAt    time.Time
	Processed  bool
}

// NonEmptyOptions drops blank option texts, preserving order.
func NonEmptyOptions(options []string) []string {
	out := make([]string, 0, len(options))
	for _, option := range options {
		if strings.TrimSpace(option) == "" {
			continue
		}
		out = append(out, option)
	}
	return out
}
