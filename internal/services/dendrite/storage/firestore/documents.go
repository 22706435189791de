package firestore

import (
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/louisbranch/dendrite/internal/services/dendrite/domain"
)

type storyDoc struct {
	Title     string                 `firestore:"title"`
	RootPage  *firestore.DocumentRef `firestore:"rootPage"`
	CreatedAt time.Time              `firestore:"createdAt"`
}

type pageDoc struct {
	Number         int                    `firestore:"number"`
	IncomingOption *firestore.DocumentRef `firestore:"incomingOption"`
	CreatedAt      time.Time              `firestore:"createdAt"`
}

type variantDoc struct {
	Name                   string    `firestore:"name"`
	Content                string    `firestore:"content"`
	AuthorID               string    `firestore:"authorId"`
	AuthorName             string    `firestore:"authorName"`
	IncomingOption         string    `firestore:"incomingOption"`
	ModeratorReputationSum int       `firestore:"moderatorReputationSum"`
	ModerationRatingCount  int       `firestore:"moderationRatingCount"`
	Visibility             float64   `firestore:"visibility"`
	Rand                   float64   `firestore:"rand"`
	CreatedAt              time.Time `firestore:"createdAt"`
}

type optionDoc struct {
	Content    string                 `firestore:"content"`
	Position   int                    `firestore:"position"`
	TargetPage *firestore.DocumentRef `firestore:"targetPage"`
	CreatedAt  time.Time              `firestore:"createdAt"`
}

type pageSubmissionDoc struct {
	IncomingOptionFullName string    `firestore:"incomingOptionFullName"`
	PageNumber             int       `firestore:"pageNumber"`
	Content                string    `firestore:"content"`
	Author                 string    `firestore:"author"`
	AuthorID               string    `firestore:"authorId"`
	Options                []string  `firestore:"options"`
	Processed              bool      `firestore:"processed"`
	CreatedAt              time.Time `firestore:"createdAt"`
}

type storySubmissionDoc struct {
	Title     string    `firestore:"title"`
	Content   string    `firestore:"content"`
	Author    string    `firestore:"author"`
	AuthorID  string    `firestore:"authorId"`
	Options   []string  `firestore:"options"`
	Processed bool      `firestore:"processed"`
	CreatedAt time.Time `firestore:"createdAt"`
}

type ratingDoc struct {
	ModeratorID string    `firestore:"moderatorId"`
	VariantID   string    `firestore:"variantId"`
	IsApproved  *bool     `firestore:"isApproved"`
	RatedAt     time.Time `firestore:"ratedAt"`
	Processed   bool      `firestore:"processed"`
}

type attemptDoc struct {
	EventID      string    `firestore:"eventId"`
	EventType    string    `firestore:"eventType"`
	Consumer     string    `firestore:"consumer"`
	Outcome      string    `firestore:"outcome"`
	AttemptCount int32     `firestore:"attemptCount"`
	LastError    string    `firestore:"lastError"`
	CreatedAt    time.Time `firestore:"createdAt"`
}

func decodeVariant(snap *firestore.DocumentSnapshot) (domain.Variant, error) {
	var doc variantDoc
	if err := snap.DataTo(&doc); err != nil {
		return domain.Variant{}, fmt.Errorf("decode variant %s: %w", relativePath(snap.Ref), err)
	}
	// The dirty marker is a null field: presence means dirty.
	_, dirty := snap.Data()["dirty"]
	return domain.Variant{
		Name:                   doc.Name,
		Content:                doc.Content,
		AuthorID:               doc.AuthorID,
		AuthorName:             doc.AuthorName,
		IncomingOption:         doc.IncomingOption,
		ModeratorReputationSum: doc.ModeratorReputationSum,
		ModerationRatingCount:  doc.ModerationRatingCount,
		Visibility:             doc.Visibility,
		Rand:                   doc.Rand,
		Dirty:                  dirty,
		CreatedAt:              doc.CreatedAt,
	}, nil
}

func decodeOption(snap *firestore.DocumentSnapshot) (domain.Option, error) {
	var doc optionDoc
	if err := snap.DataTo(&doc); err != nil {
		return domain.Option{}, fmt.Errorf("decode option %s: %w", relativePath(snap.Ref), err)
	}
	option := domain.Option{
		Content:   doc.Content,
		Position:  doc.Position,
		CreatedAt: doc.CreatedAt,
	}
	if doc.TargetPage != nil {
		target, err := domain.ParsePagePath(relativePath(doc.TargetPage))
		if err != nil {
			return domain.Option{}, fmt.Errorf("decode option %s target: %w", relativePath(snap.Ref), err)
		}
		option.TargetPage = &target
	}
	return option, nil
}

func decodePage(snap *firestore.DocumentSnapshot) (domain.Page, error) {
	var doc pageDoc
	if err := snap.DataTo(&doc); err != nil {
		return domain.Page{}, fmt.Errorf("decode page %s: %w", relativePath(snap.Ref), err)
	}
	return domain.Page{
		Number:         doc.Number,
		IncomingOption: relativePath(doc.IncomingOption),
		CreatedAt:      doc.CreatedAt,
	}, nil
}

func decodePageSubmission(snap *firestore.DocumentSnapshot) (domain.PageSubmission, error) {
	var doc pageSubmissionDoc
	if err := snap.DataTo(&doc); err != nil {
		return domain.PageSubmission{}, fmt.Errorf("decode page submission %s: %w", snap.Ref.ID, err)
	}
	return domain.PageSubmission{
		ID:                     snap.Ref.ID,
		IncomingOptionFullName: doc.IncomingOptionFullName,
		PageNumber:             doc.PageNumber,
		Content:                doc.Content,
		Author:                 doc.Author,
		AuthorID:               doc.AuthorID,
		Options:                doc.Options,
		Processed:              doc.Processed,
		CreatedAt:              doc.CreatedAt,
	}, nil
}

func decodeStorySubmission(snap *firestore.DocumentSnapshot) (domain.StorySubmission, error) {
	var doc storySubmissionDoc
	if err := snap.DataTo(&doc); err != nil {
		return domain.StorySubmission{}, fmt.Errorf("decode story submission %s: %w", snap.Ref.ID, err)
	}
	return domain.StorySubmission{
		ID:        snap.Ref.ID,
		Title:     doc.Title,
		Content:   doc.Content,
		Author:    doc.Author,
		AuthorID:  doc.AuthorID,
		Options:   doc.Options,
		Processed: doc.Processed,
		CreatedAt: doc.CreatedAt,
	}, nil
}
