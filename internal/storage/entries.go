package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ashita-ai/keisoku/internal/model"
)

// InsertEntry appends one telemetry record and returns its assigned id.
// Entries are append-only; there is no update or delete path.
func (db *DB) InsertEntry(ctx context.Context, rec model.TelemetryRecord) (uuid.UUID, error) {
	rec.ID = uuid.New()
	rec.CreatedAt = time.Now().UTC()

	_, err := db.pool.Exec(ctx,
		`INSERT INTO telemetry_entries
		   (id, org_id, task_id, agent, model, input_tokens, output_tokens,
		    estimated_cost_usd, ts_ms, run_id, session_key, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		rec.ID, rec.OrgID, rec.TaskID, rec.Agent, rec.Model,
		rec.InputTokens, rec.OutputTokens, rec.EstimatedCostUSD,
		rec.TimestampMs, rec.RunID, rec.SessionKey, rec.CreatedAt,
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("storage: insert entry: %w", err)
	}
	return rec.ID, nil
}

const entryColumns = `id, org_id, task_id, agent, model, input_tokens, output_tokens,
	estimated_cost_usd, ts_ms, run_id, session_key, created_at`

// ListEntriesByTask returns entries for a task within an org, newest
// first, capped at limit.
func (db *DB) ListEntriesByTask(ctx context.Context, orgID uuid.UUID, taskID string, limit int) ([]model.TelemetryRecord, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+entryColumns+`
		 FROM telemetry_entries
		 WHERE org_id = $1 AND task_id = $2
		 ORDER BY ts_ms DESC
		 LIMIT $3`,
		orgID, taskID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list entries by task: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// ListEntriesByRun returns entries for a run within an org, newest first,
// capped at limit.
func (db *DB) ListEntriesByRun(ctx context.Context, orgID uuid.UUID, runID string, limit int) ([]model.TelemetryRecord, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+entryColumns+`
		 FROM telemetry_entries
		 WHERE org_id = $1 AND run_id = $2
		 ORDER BY ts_ms DESC
		 LIMIT $3`,
		orgID, runID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: list entries by run: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// QueryEntriesRange returns all entries in the inclusive millisecond
// range, oldest first. Unbounded — analytics consumes the full set.
func (db *DB) QueryEntriesRange(ctx context.Context, orgID uuid.UUID, startMs, endMs int64) ([]model.TelemetryRecord, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT `+entryColumns+`
		 FROM telemetry_entries
		 WHERE org_id = $1 AND ts_ms BETWEEN $2 AND $3
		 ORDER BY ts_ms ASC`,
		orgID, startMs, endMs,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: query entries range: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

func scanEntries(rows pgx.Rows) ([]model.TelemetryRecord, error) {
	var entries []model.TelemetryRecord
	for rows.Next() {
		var e model.TelemetryRecord
		if err := rows.Scan(
			&e.ID, &e.OrgID, &e.TaskID, &e.Agent, &e.Model,
			&e.InputTokens, &e.OutputTokens, &e.EstimatedCostUSD,
			&e.TimestampMs, &e.RunID, &e.SessionKey, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("storage: scan entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
