package engine

import (
	"math"

	"credtrust/internal/verification/models"
)

// Aggregate returns round(Σ w·c / Σ w) over non-skipped results. ok is false
// when nothing scorable remains.
func Aggregate(results []models.MethodResult, weights map[models.Method]float64) (overall int, ok bool) {
	var weighted, total float64
	for _, r := range results {
		if !r.Scorable() {
			continue
		}
		w := weights[r.Method]
		weighted += w * float64(r.Confidence)
		total += w
	}
	if total == 0 {
		return 0, false
	}
	return int(math.Round(weighted / total)), true
}

// Classify maps an overall confidence onto its verdict band.
func Classify(overall int, t Thresholds) models.Verdict {
	switch {
	case overall >= t.Verified:
		return models.VerdictVerified
	case overall >= t.PartiallyVerified:
		return models.VerdictPartiallyVerified
	case overall >= t.Questionable:
		return models.VerdictQuestionable
	default:
		return models.VerdictFailed
	}
}
