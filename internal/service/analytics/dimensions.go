package analytics

import (
	"sort"

	"github.com/ashita-ai/keisoku/internal/model"
)

// AggregateByProject groups rows by the project resolved for their task.
// Rows whose task has no entry in the projects map fall under
// model.UnassignedProject. No range filtering happens here; callers pass
// rows already scoped to the query window.
//
// Only projects with at least one contributing row appear. Output is
// sorted descending by cost; ties keep first-seen row order.
func AggregateByProject(rows []model.TelemetryRecord, projects map[string]string) []model.ProjectBucket {
	buckets := []model.ProjectBucket{}
	index := make(map[string]int)

	for _, row := range rows {
		key, ok := projects[row.TaskID]
		if !ok || key == "" {
			key = model.UnassignedProject
		}
		i, seen := index[key]
		if !seen {
			i = len(buckets)
			index[key] = i
			buckets = append(buckets, model.ProjectBucket{Project: key})
		}
		buckets[i].Entries++
		buckets[i].InputTokens += row.InputTokens
		buckets[i].OutputTokens += row.OutputTokens
		buckets[i].CostUSD += row.EstimatedCostUSD
	}

	sort.SliceStable(buckets, func(i, j int) bool {
		return buckets[i].CostUSD > buckets[j].CostUSD
	})
	return buckets
}

// AggregateByCategory groups rows by agent name or model name depending on
// categoryType. Each row lands in exactly one bucket per call. Output is
// sorted descending by cost; ties keep first-seen row order.
func AggregateByCategory(rows []model.TelemetryRecord, categoryType model.CategoryType) []model.CategoryBucket {
	buckets := []model.CategoryBucket{}
	index := make(map[string]int)

	for _, row := range rows {
		key := row.Agent
		if categoryType == model.CategoryModel {
			key = row.Model
		}
		i, seen := index[key]
		if !seen {
			i = len(buckets)
			index[key] = i
			buckets = append(buckets, model.CategoryBucket{Category: key})
		}
		buckets[i].Entries++
		buckets[i].InputTokens += row.InputTokens
		buckets[i].OutputTokens += row.OutputTokens
		buckets[i].CostUSD += row.EstimatedCostUSD
	}

	sort.SliceStable(buckets, func(i, j int) bool {
		return buckets[i].CostUSD > buckets[j].CostUSD
	})
	return buckets
}
