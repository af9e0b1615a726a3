// Package ranking computes the personalized feed score and the
// non-personalized trending score for farmer posts.
//
// Basic Usage:
//
//	// Load calibration profiles (typically at startup)
//	profiles, err := ranking.LoadCalibration("configs/ranking.calibration.json")
//	if err != nil {
//		log.Warn("using default weights", "error", err)
//	}
//
//	// Score one candidate for one viewer
//	weights := profiles.Get(requestedProfile)
//	breakdown := ranking.ScorePost(viewer, candidate, time.Now(), weights)
//
//	// Score for the trending view
//	score := ranking.TrendingScore(candidate, time.Now(), weights)
//
// Feed Score:
//
// The feed score is a weighted sum of four sub-scores, each clamped to
// [0, 1]: relevance (crop, location, role and experience match between the
// viewer and the post's author), engagement (interaction volume with a
// logarithmic time decay), recency (bucketed age) and trust (verification,
// badges, helpfulness). The four top-level weights sum to 1.0, so the total
// is in [0, 1] as well.
//
// All scorers are pure functions over their arguments. They never fail:
// negative counters clamp to zero and missing profile fields fall back to a
// neutral value.
//
// Calibration:
//
// Weights and thresholds are an immutable Weights value passed into every
// call. The calibration file holds a default profile and any number of named
// profiles for A/B tests; fields a profile omits keep their default value.
// See configs/ranking.calibration.json.
package ranking
