package domain

// VisibilityUpdate is the variant state written after one moderation rating.
type VisibilityUpdate struct {
	Visibility             float64
	ModerationRatingCount  int
	ModeratorReputationSum int
}

// RatingValue maps a moderator verdict to its numeric rating.
func RatingValue(approved bool) float64 {
	if approved {
		return 1
	}
	return 0
}

// CalculateVisibility folds one rating into the variant's running score:
//
//	(visibility * reputationSum + rating) / (ratingCount + 1)
//
// A zero denominator yields 0.
func CalculateVisibility(variant Variant, rating float64) float64 {
	numerator := variant.Visibility*float64(variant.ModeratorReputationSum) + rating
	denominator := float64(variant.ModerationRatingCount + 1)
	if denominator == 0 {
		return 0
	}
	return numerator / denominator
}

// NextVisibility computes the full update for one verdict.
func NextVisibility(variant Variant, approved bool) VisibilityUpdate {
	return VisibilityUpdate{
		Visibility:             CalculateVisibility(variant, RatingValue(approved)),
		ModerationRatingCount:  variant.ModerationRatingCount + 1,
		ModeratorReputationSum: variant.ModeratorReputationSum + 1,
	}
}
