package analytics

import (
	"testing"

	"github.com/ashita-ai/keisoku/internal/model"
)

func taskRow(taskID, agent, modelName string, cost float64) model.TelemetryRecord {
	return model.TelemetryRecord{
		TaskID:           taskID,
		Agent:            agent,
		Model:            modelName,
		InputTokens:      10,
		OutputTokens:     5,
		EstimatedCostUSD: cost,
		TimestampMs:      1_700_000_000_000,
	}
}

func TestAggregateByProject(t *testing.T) {
	rows := []model.TelemetryRecord{
		taskRow("t1", "planner", "gpt-4o", 1),
		taskRow("t1", "planner", "gpt-4o", 2),
		taskRow("t2", "coder", "gpt-4o", 10),
		taskRow("t3", "coder", "gpt-4o", 4), // unmapped task
		taskRow("", "coder", "gpt-4o", 1),   // no task at all
	}
	projects := map[string]string{"t1": "alpha", "t2": "beta"}

	buckets := AggregateByProject(rows, projects)

	if len(buckets) != 3 {
		t.Fatalf("expected 3 project buckets, got %d", len(buckets))
	}

	// Sorted descending by cost: beta(10), unassigned(5), alpha(3).
	if buckets[0].Project != "beta" || buckets[0].CostUSD != 10 {
		t.Errorf("bucket 0 = %s/%v, want beta/10", buckets[0].Project, buckets[0].CostUSD)
	}
	if buckets[1].Project != model.UnassignedProject || buckets[1].CostUSD != 5 {
		t.Errorf("bucket 1 = %s/%v, want unassigned/5", buckets[1].Project, buckets[1].CostUSD)
	}
	if buckets[2].Project != "alpha" || buckets[2].CostUSD != 3 || buckets[2].Entries != 2 {
		t.Errorf("bucket 2 = %s/%v/%d, want alpha/3/2", buckets[2].Project, buckets[2].CostUSD, buckets[2].Entries)
	}
}

func TestAggregateByProjectEmptyMappingValue(t *testing.T) {
	rows := []model.TelemetryRecord{taskRow("t1", "planner", "gpt-4o", 1)}

	// An empty project label counts as unassigned.
	buckets := AggregateByProject(rows, map[string]string{"t1": ""})

	if len(buckets) != 1 || buckets[0].Project != model.UnassignedProject {
		t.Fatalf("expected a single unassigned bucket, got %+v", buckets)
	}
}

func TestAggregateByCategoryAgent(t *testing.T) {
	rows := []model.TelemetryRecord{
		taskRow("t1", "planner", "gpt-4o", 1),
		taskRow("t2", "coder", "claude-sonnet", 5),
		taskRow("t3", "planner", "claude-sonnet", 2),
	}

	buckets := AggregateByCategory(rows, model.CategoryAgent)

	if len(buckets) != 2 {
		t.Fatalf("expected 2 agent buckets, got %d", len(buckets))
	}
	if buckets[0].Category != "coder" || buckets[0].CostUSD != 5 {
		t.Errorf("bucket 0 = %s/%v, want coder/5", buckets[0].Category, buckets[0].CostUSD)
	}
	if buckets[1].Category != "planner" || buckets[1].CostUSD != 3 || buckets[1].Entries != 2 {
		t.Errorf("bucket 1 = %s/%v/%d, want planner/3/2", buckets[1].Category, buckets[1].CostUSD, buckets[1].Entries)
	}
}

func TestAggregateByCategoryModel(t *testing.T) {
	rows := []model.TelemetryRecord{
		taskRow("t1", "planner", "gpt-4o", 1),
		taskRow("t2", "coder", "claude-sonnet", 5),
	}

	buckets := AggregateByCategory(rows, model.CategoryModel)

	if len(buckets) != 2 {
		t.Fatalf("expected 2 model buckets, got %d", len(buckets))
	}
	if buckets[0].Category != "claude-sonnet" {
		t.Errorf("bucket 0 = %s, want claude-sonnet", buckets[0].Category)
	}
}

func TestAggregateStableTieOrder(t *testing.T) {
	rows := []model.TelemetryRecord{
		taskRow("t1", "first", "m", 2),
		taskRow("t2", "second", "m", 2),
	}

	buckets := AggregateByCategory(rows, model.CategoryAgent)

	// Equal costs keep first-seen order.
	if buckets[0].Category != "first" || buckets[1].Category != "second" {
		t.Errorf("tie order = [%s, %s], want [first, second]", buckets[0].Category, buckets[1].Category)
	}
}

func TestAggregateEmptyRows(t *testing.T) {
	if got := AggregateByProject(nil, nil); len(got) != 0 {
		t.Errorf("expected no project buckets for empty rows, got %d", len(got))
	}
	if got := AggregateByCategory(nil, model.CategoryAgent); len(got) != 0 {
		t.Errorf("expected no category buckets for empty rows, got %d", len(got))
	}
}
