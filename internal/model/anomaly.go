package model

// AnomalyKind identifies which heuristic produced an anomaly.
type AnomalyKind string

const (
	AnomalySpike           AnomalyKind = "spike"
	AnomalyDrop            AnomalyKind = "drop"
	AnomalyProjectOutlier  AnomalyKind = "project_outlier"
	AnomalyCategoryOutlier AnomalyKind = "category_outlier"
)

// Severity buckets an anomaly score for display purposes.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Anomaly is one detected cost anomaly. Computed fresh on every query,
// never persisted. Score is >= 0; larger means more anomalous.
//
// BucketStart/Timestamp are set for time-series anomalies (spike/drop);
// Project or Category+CategoryType for dimensional outliers.
type Anomaly struct {
	Kind             AnomalyKind   `json:"kind"`
	Severity         Severity      `json:"severity"`
	Score            float64       `json:"score"`
	BucketStart      *int64        `json:"bucketStart,omitempty"`
	Timestamp        *int64        `json:"timestamp,omitempty"`
	Project          *string       `json:"project,omitempty"`
	Category         *string       `json:"category,omitempty"`
	CategoryType     *CategoryType `json:"categoryType,omitempty"`
	ExpectedCostUSD  float64       `json:"expectedCostUsd"`
	ObservedCostUSD  float64       `json:"observedCostUsd"`
	DeltaCostUSD     float64       `json:"deltaCostUsd"`
	PercentDelta     float64       `json:"percentDelta"`
}
