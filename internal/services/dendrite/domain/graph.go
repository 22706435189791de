package domain

import "time"

// Story is the root of a narrative.
type Story struct {
	Title     string
	RootPage  PageRef
	CreatedAt time.Time
}

// Page is a narrative position. Number is unique across every story.
type Page struct {
	Number int
	// IncomingOption is the full name of the option that led here; empty for
	// a root page.
	IncomingOption string
	CreatedAt      time.Time
}

// Variant is one authored rendition of a page.
type Variant struct {
	Name                   string
	Content                string
	AuthorID               string
	AuthorName             string
	IncomingOption         string
	ModeratorReputationSum int
	ModerationRatingCount  int
	Visibility             float64
	// Rand is drawn from [0,1) at creation for unweighted sampling.
	Rand float64
	// Dirty is set when a downstream render of the variant is stale.
	Dirty     bool
	CreatedAt time.Time
}

// Option is a continuation offered by a variant.
type Option struct {
	Content  string
	Position int
	// TargetPage is nil until a submission creates or names the page.
	TargetPage *PageRef
	CreatedAt  time.Time
}

// Resolved reports whether the option already points at a page.
func (o Option) Resolved() bool {
	return o.TargetPage != nil
}

// Author records that an author id has been observed.
type Author struct {
	UUID string
}

// StoryStats aggregates per-story counters.
type StoryStats struct {
	VariantCount int
}
