// Package ingest implements the telemetry write path: a validation gate
// that normalizes one incoming record and appends it through the row
// source port, plus the indexed read operations (by task, by run).
//
// Validation runs in a fixed field order so error messages are
// deterministic for a given invalid input. A failed record is never
// partially written.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/ashita-ai/keisoku/internal/model"
)

// Field limits for incoming telemetry records. Lengths count runes.
const (
	maxAgentLen      = 80
	maxModelLen      = 120
	maxOptionalLen   = 200 // runId, sessionKey
	defaultListLimit = 50
	maxListLimit     = 200
)

// RowSource is the write-and-indexed-read port onto the telemetry store.
// InsertEntry assigns the record's identifier; list queries return rows
// ordered by timestamp descending, capped at limit.
type RowSource interface {
	InsertEntry(ctx context.Context, rec model.TelemetryRecord) (uuid.UUID, error)
	ListEntriesByTask(ctx context.Context, orgID uuid.UUID, taskID string, limit int) ([]model.TelemetryRecord, error)
	ListEntriesByRun(ctx context.Context, orgID uuid.UUID, runID string, limit int) ([]model.TelemetryRecord, error)
}

// Service is the validation gate in front of the row source.
type Service struct {
	rows   RowSource
	logger *slog.Logger
	now    func() time.Time // injectable for tests
}

// New creates an ingest service.
func New(rows RowSource, logger *slog.Logger) *Service {
	return &Service{rows: rows, logger: logger, now: time.Now}
}

// Record validates and normalizes one telemetry record and appends it.
// Returns the assigned identifier. The identity check runs before any
// field validation; validation order is agent, model, inputTokens,
// outputTokens, estimatedCostUsd, timestamp, runId, sessionKey.
func (s *Service) Record(ctx context.Context, ident *model.Identity, req model.RecordTelemetryRequest) (uuid.UUID, error) {
	if ident == nil {
		return uuid.Nil, model.ErrUnauthenticated
	}

	agent := strings.TrimSpace(req.Agent)
	if agent == "" {
		return uuid.Nil, model.ValidationError("agent must be a non-empty string")
	}
	if utf8.RuneCountInString(agent) > maxAgentLen {
		return uuid.Nil, model.ValidationError("agent must be <= 80 characters")
	}

	modelName := strings.TrimSpace(req.Model)
	if modelName == "" {
		return uuid.Nil, model.ValidationError("model must be a non-empty string")
	}
	if utf8.RuneCountInString(modelName) > maxModelLen {
		return uuid.Nil, model.ValidationError("model must be <= 120 characters")
	}

	if !isNonNegativeInteger(req.InputTokens) {
		return uuid.Nil, model.ValidationError("inputTokens must be a non-negative integer")
	}
	if !isNonNegativeInteger(req.OutputTokens) {
		return uuid.Nil, model.ValidationError("outputTokens must be a non-negative integer")
	}

	if math.IsNaN(req.EstimatedCostUSD) || math.IsInf(req.EstimatedCostUSD, 0) || req.EstimatedCostUSD < 0 {
		return uuid.Nil, model.ValidationError("estimatedCostUsd must be a non-negative number")
	}

	timestampMs := s.now().UTC().UnixMilli()
	if req.Timestamp != nil {
		if !isNonNegativeInteger(*req.Timestamp) {
			return uuid.Nil, model.ValidationError("timestamp must be a non-negative integer")
		}
		timestampMs = int64(*req.Timestamp)
	}

	runID, err := normalizeOptional("runId", req.RunID)
	if err != nil {
		return uuid.Nil, err
	}
	sessionKey, err := normalizeOptional("sessionKey", req.SessionKey)
	if err != nil {
		return uuid.Nil, err
	}

	id, err := s.rows.InsertEntry(ctx, model.TelemetryRecord{
		OrgID:            ident.OrgID,
		TaskID:           strings.TrimSpace(req.TaskID),
		Agent:            agent,
		Model:            modelName,
		InputTokens:      int64(req.InputTokens),
		OutputTokens:     int64(req.OutputTokens),
		EstimatedCostUSD: req.EstimatedCostUSD,
		TimestampMs:      timestampMs,
		RunID:            runID,
		SessionKey:       sessionKey,
	})
	if err != nil {
		return uuid.Nil, fmt.Errorf("ingest: insert entry: %w", err)
	}
	return id, nil
}

// ListByTask returns rows for a task, newest first. A nil limit means the
// caller did not supply one.
func (s *Service) ListByTask(ctx context.Context, ident *model.Identity, taskID string, limit *int) ([]model.TelemetryRecord, int, error) {
	if ident == nil {
		return nil, 0, model.ErrUnauthenticated
	}
	n, err := normalizeLimit(limit)
	if err != nil {
		return nil, 0, err
	}
	rows, err := s.rows.ListEntriesByTask(ctx, ident.OrgID, taskID, n)
	if err != nil {
		return nil, 0, fmt.Errorf("ingest: list by task: %w", err)
	}
	return rows, n, nil
}

// ListByRun returns rows for a run, newest first. The run id is subject to
// the same non-empty and length validation as on write.
func (s *Service) ListByRun(ctx context.Context, ident *model.Identity, runID string, limit *int) ([]model.TelemetryRecord, int, error) {
	if ident == nil {
		return nil, 0, model.ErrUnauthenticated
	}
	runID = strings.TrimSpace(runID)
	if runID == "" {
		return nil, 0, model.ValidationError("runId must be a non-empty string")
	}
	if utf8.RuneCountInString(runID) > maxOptionalLen {
		return nil, 0, model.ValidationError("runId must be <= 200 characters")
	}
	n, err := normalizeLimit(limit)
	if err != nil {
		return nil, 0, err
	}
	rows, err := s.rows.ListEntriesByRun(ctx, ident.OrgID, runID, n)
	if err != nil {
		return nil, 0, fmt.Errorf("ingest: list by run: %w", err)
	}
	return rows, n, nil
}

// isNonNegativeInteger rejects NaN, infinities, negatives, and fractional
// values. Zero is valid.
func isNonNegativeInteger(v float64) bool {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return false
	}
	return v >= 0 && v == math.Trunc(v)
}

// normalizeOptional trims an optional string field and converts
// empty-after-trim to absent. Length is checked after trimming.
func normalizeOptional(field string, v *string) (*string, error) {
	if v == nil {
		return nil, nil
	}
	trimmed := strings.TrimSpace(*v)
	if utf8.RuneCountInString(trimmed) > maxOptionalLen {
		return nil, model.ValidationError(field + " must be <= 200 characters")
	}
	if trimmed == "" {
		return nil, nil
	}
	return &trimmed, nil
}

// normalizeLimit applies the default and hard ceiling. Nil means the
// caller did not supply a limit; an explicit non-positive value, zero
// included, is rejected.
func normalizeLimit(limit *int) (int, error) {
	if limit == nil {
		return defaultListLimit, nil
	}
	if *limit < 1 {
		return 0, model.ValidationError("limit must be >= 1")
	}
	if *limit > maxListLimit {
		return maxListLimit, nil
	}
	return *limit, nil
}
