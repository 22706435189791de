package i18n

// Error codes must match the codes defined in internal/platform/errors/codes.go.
// These are duplicated as strings to avoid an import cycle.
const (
	CodeSubmissionSelectorAmbiguous = "SUBMISSION_SELECTOR_AMBIGUOUS"
	CodeIncomingOptionInvalid       = "INCOMING_OPTION_INVALID"
	CodeIncomingOptionNotFound      = "INCOMING_OPTION_NOT_FOUND"
	CodePageInvalid                 = "PAGE_INVALID"
	CodePageNotFound                = "PAGE_NOT_FOUND"
	CodeModeratorMissing            = "MODERATOR_MISSING"
	CodeVariantInvalid              = "VARIANT_INVALID"
	CodeVariantNotFound             = "VARIANT_NOT_FOUND"
	CodeVerdictMissing              = "VERDICT_MISSING"
	CodeModerationJobMissing        = "MODERATION_JOB_MISSING"
	CodeNothingToModerate           = "NOTHING_TO_MODERATE"
	CodeReportVariantMissing        = "REPORT_VARIANT_MISSING"
	CodeNotFound                    = "NOT_FOUND"
	CodeStoreUnavailable            = "STORE_UNAVAILABLE"
)

var enUSCatalog = &Catalog{
	locale: BaseLocale,
	messages: map[Code]string{
		CodeSubmissionSelectorAmbiguous: "Must provide exactly one of incoming option or page",
		CodeIncomingOptionInvalid:       "Invalid incoming option {{.Option}}",
		CodeIncomingOptionNotFound:      "Incoming option {{.Option}} not found",
		CodePageInvalid:                 "Invalid page {{.Page}}",
		CodePageNotFound:                "Page {{.Page}} not found",
		CodeModeratorMissing:            "Moderator is required",
		CodeVariantInvalid:              "Invalid variant {{.Variant}}",
		CodeVariantNotFound:             "Variant {{.Variant}} not found",
		CodeVerdictMissing:              "Missing or invalid isApproved",
		CodeModerationJobMissing:        "No moderation job assigned",
		CodeNothingToModerate:           "There is nothing to moderate right now",
		CodeReportVariantMissing:        "Missing or invalid variant",
		CodeNotFound:                    "Not found",
		CodeStoreUnavailable:            "The story archive is unavailable, try again later",
	},
}
