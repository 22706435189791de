// Package intake validates raw submissions and stores them as pending work
// for the graph engine.
//
// Validation failures are coded errors from internal/platform/errors so
// transports can map them to a status and a localized message. Nothing is
// persisted for a rejected request.
package intake

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	apperrors "github.com/louisbranch/dendrite/internal/platform/errors"
	"github.com/louisbranch/dendrite/internal/platform/id"
	"github.com/louisbranch/dendrite/internal/random"
	"github.com/louisbranch/dendrite/internal/services/dendrite/domain"
)

// Store is the storage surface used by intake.
type Store interface {
	OptionFinder
	GetVariant(ctx context.Context, ref domain.VariantRef) (domain.Variant, error)
	LatestVariantName(ctx context.Context, page domain.PageRef) (string, error)
	SavePageSubmission(ctx context.Context, submission domain.PageSubmission) error
	SaveStorySubmission(ctx context.Context, submission domain.StorySubmission) error
	SaveModerationRating(ctx context.Context, rating domain.ModerationRating) error
	SampleUnmoderatedVariant(ctx context.Context, draw float64) (domain.VariantRef, domain.Variant, error)
	SaveModerationJob(ctx context.Context, job domain.ModerationJob) error
	GetModerationJob(ctx context.Context, moderatorID string) (domain.ModerationJob, error)
	ClearModerationJob(ctx context.Context, moderatorID string) error
	SaveModerationReport(ctx context.Context, report domain.ModerationReport) error
}

// PageRequest is a raw new-page form. Exactly one of IncomingOption and Page
// must be non-blank.
type PageRequest struct {
	IncomingOption string
	Page           string
	Content        string
	Author         string
	Options        []string
	Authorization  string
}

// StoryRequest is a raw new-story form.
type StoryRequest struct {
	Title         string
	Content       string
	Author        string
	Options       []string
	Authorization string
}

// RatingRequest is a moderator verdict. A blank VariantID rates the
// moderator's assigned job.
type RatingRequest struct {
	VariantID     string
	IsApproved    *bool
	Authorization string
}

// AssignRequest asks for a variant to moderate.
type AssignRequest struct {
	Authorization string
}

// ReportRequest flags a variant for moderation.
type ReportRequest struct {
	Variant string
}

// Service accepts submissions.
type Service struct {
	store   Store
	authors AuthorResolver
	newID   id.Generator
	draw    func() float64
}

// Option configures a Service.
type Option func(*Service)

// WithDraw sets the source of moderation sampling draws.
func WithDraw(draw func() float64) Option {
	return func(s *Service) {
		s.draw = draw
	}
}

// NewService builds an intake service. A nil resolver treats every request
// as anonymous; a nil generator uses random UUIDs.
func NewService(store Store, authors AuthorResolver, newID id.Generator, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("intake store is required")
	}
	if authors == nil {
		authors = Anonymous{}
	}
	if newID == nil {
		newID = id.NewUUID
	}
	s := &Service{store: store, authors: authors, newID: newID}
	for _, opt := range opts {
		opt(s)
	}
	if s.draw == nil {
		draw, err := random.NewFloat64Source()
		if err != nil {
			return nil, fmt.Errorf("seed moderation draws: %w", err)
		}
		s.draw = draw
	}
	return s, nil
}

// SubmitPage validates a new-page request and stores a pending submission.
func (s *Service) SubmitPage(ctx context.Context, req PageRequest) (domain.PageSubmission, error) {
	incoming := normalizeShort(req.IncomingOption)
	page := normalizeShort(req.Page)
	if (incoming == "") == (page == "") {
		return domain.PageSubmission{}, apperrors.New(
			apperrors.CodeSubmissionSelectorAmbiguous,
			"must provide exactly one of incoming option or page",
		)
	}

	submission := domain.PageSubmission{
		ID:       s.newID(),
		Content:  normalizeContent(req.Content),
		Author:   normalizeAuthor(req.Author),
		AuthorID: s.authors.ResolveAuthorID(ctx, req.Authorization),
		Options:  normalizeOptions(req.Options),
	}
	if incoming != "" {
		fullName, err := s.resolveIncomingOption(ctx, incoming)
		if err != nil {
			return domain.PageSubmission{}, err
		}
		submission.IncomingOptionFullName = fullName
	} else {
		number, err := s.resolvePage(ctx, page)
		if err != nil {
			return domain.PageSubmission{}, err
		}
		submission.PageNumber = number
	}

	if err := s.store.SavePageSubmission(ctx, submission); err != nil {
		return domain.PageSubmission{}, apperrors.Wrap(apperrors.CodeStoreUnavailable, "save page submission", err)
	}
	return submission, nil
}

func (s *Service) resolveIncomingOption(ctx context.Context, value string) (string, error) {
	metadata := map[string]string{"Option": value}
	ref, err := ParseOptionReference(value)
	if err != nil {
		return "", apperrors.WithMetadata(apperrors.CodeIncomingOptionInvalid, "invalid incoming option", metadata)
	}
	optionRef, err := ResolveOptionReference(ctx, s.store, ref)
	if isNotFound(err) {
		return "", apperrors.WithMetadata(apperrors.CodeIncomingOptionNotFound, "incoming option not found", metadata)
	}
	if err != nil {
		return "", apperrors.Wrap(apperrors.CodeStoreUnavailable, "resolve incoming option", err)
	}
	return optionRef.Path(), nil
}

// resolvePage accepts only pages that already carry a variant.
func (s *Service) resolvePage(ctx context.Context, value string) (int, error) {
	metadata := map[string]string{"Page": value}
	number, err := strconv.Atoi(value)
	if err != nil || number <= 0 {
		return 0, apperrors.WithMetadata(apperrors.CodePageInvalid, "invalid page", metadata)
	}
	pageRef, _, err := s.store.FindPageByNumber(ctx, number)
	if isNotFound(err) {
		return 0, apperrors.WithMetadata(apperrors.CodePageNotFound, "page not found", metadata)
	}
	if err != nil {
		return 0, apperrors.Wrap(apperrors.CodeStoreUnavailable, "find page", err)
	}
	latest, err := s.store.LatestVariantName(ctx, pageRef)
	if err != nil {
		return 0, apperrors.Wrap(apperrors.CodeStoreUnavailable, "find page variants", err)
	}
	if latest == "" {
		return 0, apperrors.WithMetadata(apperrors.CodePageNotFound, "page has no variants", metadata)
	}
	return number, nil
}

// SubmitStory validates a new-story request and stores a pending submission.
func (s *Service) SubmitStory(ctx context.Context, req StoryRequest) (domain.StorySubmission, error) {
	submission := domain.StorySubmission{
		ID:       s.newID(),
		Title:    normalizeTitle(req.Title),
		Content:  normalizeContent(req.Content),
		Author:   normalizeAuthor(req.Author),
		AuthorID: s.authors.ResolveAuthorID(ctx, req.Authorization),
		Options:  normalizeOptions(req.Options),
	}
	if err := s.store.SaveStorySubmission(ctx, submission); err != nil {
		return domain.StorySubmission{}, apperrors.Wrap(apperrors.CodeStoreUnavailable, "save story submission", err)
	}
	return submission, nil
}

// SubmitRating records a moderator verdict. The moderator comes from the
// bearer token and the variant must exist. Without a variant the rating
// applies to the moderator's assigned job, which is then cleared.
func (s *Service) SubmitRating(ctx context.Context, req RatingRequest) (domain.ModerationRating, error) {
	moderatorID := s.authors.ResolveAuthorID(ctx, req.Authorization)
	if moderatorID == "" {
		return domain.ModerationRating{}, apperrors.New(apperrors.CodeModeratorMissing, "missing or invalid authorization")
	}
	if req.IsApproved == nil {
		return domain.ModerationRating{}, apperrors.New(apperrors.CodeVerdictMissing, "missing verdict")
	}

	variantPath := strings.TrimSpace(req.VariantID)
	fromJob := variantPath == ""
	var ref domain.VariantRef
	if fromJob {
		job, err := s.store.GetModerationJob(ctx, moderatorID)
		if isNotFound(err) {
			return domain.ModerationRating{}, apperrors.New(apperrors.CodeModerationJobMissing, "no moderation job")
		}
		if err != nil {
			return domain.ModerationRating{}, apperrors.Wrap(apperrors.CodeStoreUnavailable, "get moderation job", err)
		}
		ref = job.Variant
		variantPath = ref.Path()
	} else {
		parsed, err := domain.ParseVariantPath(variantPath)
		if err != nil {
			return domain.ModerationRating{}, apperrors.WithMetadata(apperrors.CodeVariantInvalid, "invalid variant",
				map[string]string{"Variant": variantPath})
		}
		ref = parsed
	}
	metadata := map[string]string{"Variant": variantPath}
	if _, err := s.store.GetVariant(ctx, ref); err != nil {
		if isNotFound(err) {
			return domain.ModerationRating{}, apperrors.WithMetadata(apperrors.CodeVariantNotFound, "variant not found", metadata)
		}
		return domain.ModerationRating{}, apperrors.Wrap(apperrors.CodeStoreUnavailable, "get variant", err)
	}

	approved := *req.IsApproved
	rating := domain.ModerationRating{
		ID:          s.newID(),
		ModeratorID: moderatorID,
		VariantID:   ref.Path(),
		IsApproved:  &approved,
	}
	if err := s.store.SaveModerationRating(ctx, rating); err != nil {
		return domain.ModerationRating{}, apperrors.Wrap(apperrors.CodeStoreUnavailable, "save moderation rating", err)
	}
	if fromJob {
		if err := s.store.ClearModerationJob(ctx, moderatorID); err != nil {
			return domain.ModerationRating{}, apperrors.Wrap(apperrors.CodeStoreUnavailable, "clear moderation job", err)
		}
	}
	return rating, nil
}

// AssignModerationJob samples a variant for the moderator, preferring ones
// nobody rated yet, and records it as the moderator's job.
func (s *Service) AssignModerationJob(ctx context.Context, req AssignRequest) (domain.ModerationJob, error) {
	moderatorID := s.authors.ResolveAuthorID(ctx, req.Authorization)
	if moderatorID == "" {
		return domain.ModerationJob{}, apperrors.New(apperrors.CodeModeratorMissing, "missing or invalid authorization")
	}
	ref, _, err := s.store.SampleUnmoderatedVariant(ctx, s.draw())
	if isNotFound(err) {
		return domain.ModerationJob{}, apperrors.New(apperrors.CodeNothingToModerate, "no variants to moderate")
	}
	if err != nil {
		return domain.ModerationJob{}, apperrors.Wrap(apperrors.CodeStoreUnavailable, "sample variant", err)
	}
	job := domain.ModerationJob{ModeratorID: moderatorID, Variant: ref}
	if err := s.store.SaveModerationJob(ctx, job); err != nil {
		return domain.ModerationJob{}, apperrors.Wrap(apperrors.CodeStoreUnavailable, "save moderation job", err)
	}
	return job, nil
}

// ReportForModeration stores a reader's report. The variant is kept as
// given after trimming; it is not resolved.
func (s *Service) ReportForModeration(ctx context.Context, req ReportRequest) (domain.ModerationReport, error) {
	variant := strings.TrimSpace(req.Variant)
	if variant == "" {
		return domain.ModerationReport{}, apperrors.New(apperrors.CodeReportVariantMissing, "missing variant")
	}
	report := domain.ModerationReport{ID: s.newID(), Variant: variant}
	if err := s.store.SaveModerationReport(ctx, report); err != nil {
		return domain.ModerationReport{}, apperrors.Wrap(apperrors.CodeStoreUnavailable, "save moderation report", err)
	}
	return report, nil
}

// Describe renders err for a submitter. Uncoded errors read as the store
// being unavailable.
func Describe(err error, locale string) string {
	var coded *apperrors.Error
	if errors.As(err, &coded) {
		return coded.LocalizedMessage(locale)
	}
	return apperrors.New(apperrors.CodeStoreUnavailable, fmt.Sprint(err)).LocalizedMessage(locale)
}
