// Package model defines the core domain types for Keisoku.
//
// Types use strong typing (UUIDs, int64 epoch milliseconds, enums) and
// avoid interface{} wherever possible. Wire field names match the names
// used in validation error messages so callers can correlate the two.
package model

import (
	"time"

	"github.com/google/uuid"
)

// TelemetryRecord is one per-run token/cost measurement for an agent.
// Append-only. Never mutated or deleted once written.
type TelemetryRecord struct {
	ID               uuid.UUID `json:"id"`
	OrgID            uuid.UUID `json:"-"` // Set from JWT claims, not from request body.
	TaskID           string    `json:"taskId"`
	Agent            string    `json:"agent"`
	Model            string    `json:"model"`
	InputTokens      int64     `json:"inputTokens"`
	OutputTokens     int64     `json:"outputTokens"`
	EstimatedCostUSD float64   `json:"estimatedCostUsd"`
	TimestampMs      int64     `json:"timestamp"`
	RunID            *string   `json:"runId,omitempty"`
	SessionKey       *string   `json:"sessionKey,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
}

// Granularity is the fixed bucket width used to slice a time range.
type Granularity string

const (
	GranularityHour Granularity = "hour"
	GranularityDay  Granularity = "day"
	GranularityWeek Granularity = "week"
)

// SizeMs returns the bucket width in milliseconds, or 0 for an unknown
// granularity.
func (g Granularity) SizeMs() int64 {
	switch g {
	case GranularityHour:
		return 3_600_000
	case GranularityDay:
		return 86_400_000
	case GranularityWeek:
		return 604_800_000
	}
	return 0
}

// CategoryType selects the grouping dimension for category aggregation.
type CategoryType string

const (
	CategoryAgent CategoryType = "agent"
	CategoryModel CategoryType = "model"
)

// UnassignedProject is the grouping key for rows whose task has no
// project mapping.
const UnassignedProject = "unassigned"

// PeriodBucket is one fixed-width time interval with accumulated sums.
// BucketStart/BucketEnd form an inclusive millisecond interval
// [start, start+width-1]; buckets in a series are contiguous and gap-free.
type PeriodBucket struct {
	BucketStart  int64   `json:"bucketStart"`
	BucketEnd    int64   `json:"bucketEnd"`
	Label        string  `json:"label"`
	Entries      int64   `json:"entries"`
	InputTokens  int64   `json:"inputTokens"`
	OutputTokens int64   `json:"outputTokens"`
	CostUSD      float64 `json:"costUsd"`
}

// ProjectBucket accumulates sums for one resolved project.
type ProjectBucket struct {
	Project      string  `json:"project"`
	Entries      int64   `json:"entries"`
	InputTokens  int64   `json:"inputTokens"`
	OutputTokens int64   `json:"outputTokens"`
	CostUSD      float64 `json:"costUsd"`
}

// CategoryBucket accumulates sums for one agent or model value.
type CategoryBucket struct {
	Category     string  `json:"category"`
	Entries      int64   `json:"entries"`
	InputTokens  int64   `json:"inputTokens"`
	OutputTokens int64   `json:"outputTokens"`
	CostUSD      float64 `json:"costUsd"`
}
