package quiz

import "math"

// aggregate combines per-question results into attempt totals. The total
// only counts points already earned; subjective questions contribute
// nothing until a grader acts on them.
type aggregateResult struct {
	TotalScore  float64
	Percentage  float64
	NeedsManual bool
}

func aggregate(q Quiz, a Attempt) aggregateResult {
	var total float64
	for _, ans := range a.Answers {
		total += ans.PointsEarned
	}
	return aggregateResult{
		TotalScore:  total,
		Percentage:  percentOf(total, q.TotalPoints()),
		NeedsManual: q.NeedsManualGrading(),
	}
}

// percentOf returns score/total*100 rounded to one decimal, or 0 when the
// quiz has no points at all.
func percentOf(score, totalPoints float64) float64 {
	if totalPoints <= 0 {
		return 0
	}
	return math.Round(score/totalPoints*1000) / 10
}
