package domain

import "time"

// ModerationJob is the variant currently assigned to a moderator. A
// moderator holds at most one job; rating it clears the assignment.
type ModerationJob struct {
	ModeratorID string
	Variant     VariantRef
	CreatedAt   time.Time
}

// ModerationReport is a reader's request to have a variant looked at.
type ModerationReport struct {
	ID string
	// Variant is the reported variant as the reader gave it.
	Variant   string
	CreatedAt time.Time
}

// SampleStep is one query of the moderation sampling plan.
type SampleStep struct {
	// Unmoderated restricts candidates to variants no moderator rated yet.
	Unmoderated bool
	// Below selects rand < draw instead of rand >= draw.
	Below bool
}

// ModerationSamplePlan is the order in which candidates are searched: the
// first unmoderated variant at or after the draw in rand order, wrapping to
// the start, then the same over every variant.
var ModerationSamplePlan = []SampleStep{
	{Unmoderated: true},
	{Unmoderated: true, Below: true},
	{},
	{Below: true},
}
