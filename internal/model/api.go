package model

import (
	"time"

	"github.com/google/uuid"
)

// APIResponse is the standard response envelope for all HTTP API responses.
type APIResponse struct {
	Data any          `json:"data,omitempty"`
	Meta ResponseMeta `json:"meta"`
}

// APIError is the standard error response envelope.
type APIError struct {
	Error ErrorDetail  `json:"error"`
	Meta  ResponseMeta `json:"meta"`
}

// ResponseMeta contains request metadata included in every response.
type ResponseMeta struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorDetail describes an API error.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorCode constants for standard API error codes.
const (
	ErrCodeInvalidInput  = "INVALID_INPUT"
	ErrCodeUnauthorized  = "UNAUTHORIZED"
	ErrCodeForbidden     = "FORBIDDEN"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeInternalError = "INTERNAL_ERROR"
	ErrCodeRateLimited   = "RATE_LIMITED"
)

// RecordTelemetryRequest is the request body for POST /v1/telemetry.
//
// Numeric fields are float64 so the validation gate can reject fractional,
// NaN, and infinite values with deterministic messages instead of relying
// on JSON decoding behavior.
type RecordTelemetryRequest struct {
	TaskID           string   `json:"taskId"`
	Agent            string   `json:"agent"`
	Model            string   `json:"model"`
	InputTokens      float64  `json:"inputTokens"`
	OutputTokens     float64  `json:"outputTokens"`
	EstimatedCostUSD float64  `json:"estimatedCostUsd"`
	Timestamp        *float64 `json:"timestamp,omitempty"`
	RunID            *string  `json:"runId,omitempty"`
	SessionKey       *string  `json:"sessionKey,omitempty"`
}

// RecordTelemetryResponse is the response for POST /v1/telemetry.
type RecordTelemetryResponse struct {
	ID uuid.UUID `json:"id"`
}

// EntriesResponse is the response for the list-by-task and list-by-run
// endpoints. Entries are ordered by timestamp descending.
type EntriesResponse struct {
	Entries []TelemetryRecord `json:"entries"`
	Limit   int               `json:"limit"`
}

// AnalyticsTotals summarizes all rows matched by an analytics query.
// UniqueProjects counts distinct resolved project labels, including
// "unassigned" when any matched row lacks a project mapping.
type AnalyticsTotals struct {
	Entries        int64   `json:"entries"`
	InputTokens    int64   `json:"inputTokens"`
	OutputTokens   int64   `json:"outputTokens"`
	CostUSD        float64 `json:"costUsd"`
	UniqueProjects int     `json:"uniqueProjects"`
}

// AnalyticsReport is the response for GET /v1/analytics.
type AnalyticsReport struct {
	StartMs      int64            `json:"startMs"`
	EndMs        int64            `json:"endMs"`
	Granularity  Granularity      `json:"granularity"`
	CategoryType CategoryType     `json:"categoryType"`
	Totals       AnalyticsTotals  `json:"totals"`
	Period       []PeriodBucket   `json:"period"`
	Projects     []ProjectBucket  `json:"projects"`
	Categories   []CategoryBucket `json:"categories"`
}

// AnomalyReport is the response for GET /v1/analytics/anomalies.
type AnomalyReport struct {
	StartMs      int64        `json:"startMs"`
	EndMs        int64        `json:"endMs"`
	Granularity  Granularity  `json:"granularity"`
	CategoryType CategoryType `json:"categoryType"`
	Anomalies    []Anomaly    `json:"anomalies"`
}

// AuthTokenRequest is the request body for POST /auth/token.
type AuthTokenRequest struct {
	AgentID string `json:"agent_id"`
	APIKey  string `json:"api_key"`
}

// AuthTokenResponse is the response for POST /auth/token.
type AuthTokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// HealthResponse is the response for GET /health.
type HealthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	Postgres string `json:"postgres"`
	Uptime   int64  `json:"uptime_seconds"`
}
