package analytics

import (
	"math"
	"sort"

	"github.com/ashita-ai/keisoku/internal/model"
)

// Detection thresholds. The z-score gate applies to the time-series
// heuristic; the percent-delta gates apply to the dimensional outlier
// heuristics (1.5 means the observed cost is at least 2.5x the mean).
const (
	zScoreThreshold        = 2.0
	projectDeltaThreshold  = 1.5
	categoryDeltaThreshold = 1.25

	severityHighScore   = 3.5
	severityMediumScore = 2.5
)

// DetectAnomalies applies three independent heuristics to aggregates
// already computed for one query window and returns the merged list
// sorted descending by score:
//
//   - spike/drop: z-score of the last period bucket's cost against the
//     mean and population standard deviation of all earlier buckets
//   - project_outlier: a project's cost far above the all-project mean
//   - category_outlier: same shape over category buckets, lower threshold
func DetectAnomalies(period []model.PeriodBucket, projects []model.ProjectBucket, categories []model.CategoryBucket, categoryType model.CategoryType) []model.Anomaly {
	anomalies := []model.Anomaly{}
	anomalies = append(anomalies, detectSpikeDrop(period)...)
	anomalies = append(anomalies, detectProjectOutliers(projects)...)
	anomalies = append(anomalies, detectCategoryOutliers(categories, categoryType)...)

	sort.SliceStable(anomalies, func(i, j int) bool {
		return anomalies[i].Score > anomalies[j].Score
	})
	return anomalies
}

// detectSpikeDrop scores the most recent bucket against its own history.
// Needs at least three buckets: two for history, one to observe. A flat
// history (zero standard deviation) cannot be scored meaningfully, so it
// emits nothing regardless of the observed value.
func detectSpikeDrop(period []model.PeriodBucket) []model.Anomaly {
	if len(period) < 3 {
		return nil
	}

	observed := period[len(period)-1]
	historical := period[:len(period)-1]

	var sum float64
	for _, b := range historical {
		sum += b.CostUSD
	}
	mean := sum / float64(len(historical))

	var variance float64
	for _, b := range historical {
		d := b.CostUSD - mean
		variance += d * d
	}
	stdDev := math.Sqrt(variance / float64(len(historical)))
	if stdDev == 0 {
		return nil
	}

	zScore := (observed.CostUSD - mean) / stdDev
	score := math.Abs(zScore)
	if score < zScoreThreshold {
		return nil
	}

	kind := model.AnomalySpike
	if zScore < 0 {
		kind = model.AnomalyDrop
	}

	bucketStart := observed.BucketStart
	bucketEnd := observed.BucketEnd
	return []model.Anomaly{{
		Kind:            kind,
		Severity:        severityForScore(score),
		Score:           score,
		BucketStart:     &bucketStart,
		Timestamp:       &bucketEnd,
		ExpectedCostUSD: mean,
		ObservedCostUSD: observed.CostUSD,
		DeltaCostUSD:    observed.CostUSD - mean,
		PercentDelta:    toPercentDelta(observed.CostUSD, mean),
	}}
}

// detectProjectOutliers flags projects whose cost sits far above the mean
// across all projects. The mean includes the candidate itself, so it is
// invariant across the loop; a non-positive mean short-circuits the whole
// heuristic.
func detectProjectOutliers(projects []model.ProjectBucket) []model.Anomaly {
	if len(projects) == 0 {
		return nil
	}

	var sum float64
	for _, p := range projects {
		sum += p.CostUSD
	}
	mean := sum / float64(len(projects))
	if mean <= 0 {
		return nil
	}

	var anomalies []model.Anomaly
	for _, p := range projects {
		delta := toPercentDelta(p.CostUSD, mean)
		if delta < projectDeltaThreshold {
			continue
		}
		score := math.Max(2, delta*2)
		project := p.Project
		anomalies = append(anomalies, model.Anomaly{
			Kind:            model.AnomalyProjectOutlier,
			Severity:        severityForScore(score),
			Score:           score,
			Project:         &project,
			ExpectedCostUSD: mean,
			ObservedCostUSD: p.CostUSD,
			DeltaCostUSD:    p.CostUSD - mean,
			PercentDelta:    delta,
		})
	}
	return anomalies
}

// detectCategoryOutliers is the project heuristic over category buckets
// with a lower emission threshold; emitted anomalies also carry the
// category type so callers know which dimension was grouped.
func detectCategoryOutliers(categories []model.CategoryBucket, categoryType model.CategoryType) []model.Anomaly {
	if len(categories) == 0 {
		return nil
	}

	var sum float64
	for _, c := range categories {
		sum += c.CostUSD
	}
	mean := sum / float64(len(categories))
	if mean <= 0 {
		return nil
	}

	var anomalies []model.Anomaly
	for _, c := range categories {
		delta := toPercentDelta(c.CostUSD, mean)
		if delta < categoryDeltaThreshold {
			continue
		}
		score := math.Max(2, delta*2)
		category := c.Category
		ct := categoryType
		anomalies = append(anomalies, model.Anomaly{
			Kind:            model.AnomalyCategoryOutlier,
			Severity:        severityForScore(score),
			Score:           score,
			Category:        &category,
			CategoryType:    &ct,
			ExpectedCostUSD: mean,
			ObservedCostUSD: c.CostUSD,
			DeltaCostUSD:    c.CostUSD - mean,
			PercentDelta:    delta,
		})
	}
	return anomalies
}

// toPercentDelta normalizes the deviation of observed from expected.
// A non-positive expectation makes a ratio meaningless: both non-positive
// yields 0, a positive observation against a non-positive expectation
// yields 1.
func toPercentDelta(observed, expected float64) float64 {
	if expected <= 0 {
		if observed <= 0 {
			return 0
		}
		return 1
	}
	return (observed - expected) / expected
}

func severityForScore(score float64) model.Severity {
	switch {
	case score >= severityHighScore:
		return model.SeverityHigh
	case score >= severityMediumScore:
		return model.SeverityMedium
	}
	return model.SeverityLow
}
