// Package errors provides coded errors with localized user messages.
package errors

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Submission selector errors
	CodeSubmissionSelectorAmbiguous Code = "SUBMISSION_SELECTOR_AMBIGUOUS"
	CodeIncomingOptionInvalid       Code = "INCOMING_OPTION_INVALID"
	CodeIncomingOptionNotFound      Code = "INCOMING_OPTION_NOT_FOUND"
	CodePageInvalid                 Code = "PAGE_INVALID"
	CodePageNotFound                Code = "PAGE_NOT_FOUND"

	// Moderation errors
	CodeModeratorMissing     Code = "MODERATOR_MISSING"
	CodeVariantInvalid       Code = "VARIANT_INVALID"
	CodeVariantNotFound      Code = "VARIANT_NOT_FOUND"
	CodeVerdictMissing       Code = "VERDICT_MISSING"
	CodeModerationJobMissing Code = "MODERATION_JOB_MISSING"
	CodeNothingToModerate    Code = "NOTHING_TO_MODERATE"
	CodeReportVariantMissing Code = "REPORT_VARIANT_MISSING"

	// Storage errors
	CodeNotFound         Code = "NOT_FOUND"
	CodeStoreUnavailable Code = "STORE_UNAVAILABLE"
)

// Kind groups codes by how a caller should react to them.
type Kind int

const (
	// KindInternal errors are not the submitter's fault; retrying may help.
	KindInternal Kind = iota
	// KindInvalidArgument errors reject malformed input.
	KindInvalidArgument
	// KindNotFound errors reference something that does not exist.
	KindNotFound
)

// Kind classifies the code.
func (c Code) Kind() Kind {
	switch c {
	case CodeSubmissionSelectorAmbiguous,
		CodeIncomingOptionInvalid,
		CodePageInvalid,
		CodeModeratorMissing,
		CodeVariantInvalid,
		CodeVerdictMissing,
		CodeReportVariantMissing:
		return KindInvalidArgument

	case CodeIncomingOptionNotFound,
		CodePageNotFound,
		CodeVariantNotFound,
		CodeModerationJobMissing,
		CodeNothingToModerate,
		CodeNotFound:
		return KindNotFound

	default:
		return KindInternal
	}
}
