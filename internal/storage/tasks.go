package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ResolveProjects returns the project label for each of the given task
// ids within an org. Task ids with no mapping are simply absent from the
// result; callers decide the fallback.
func (db *DB) ResolveProjects(ctx context.Context, orgID uuid.UUID, taskIDs []string) (map[string]string, error) {
	if len(taskIDs) == 0 {
		return map[string]string{}, nil
	}

	rows, err := db.pool.Query(ctx,
		`SELECT task_id, project
		 FROM tasks
		 WHERE org_id = $1 AND task_id = ANY($2) AND project <> ''`,
		orgID, taskIDs,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve projects: %w", err)
	}
	defer rows.Close()

	projects := make(map[string]string)
	for rows.Next() {
		var taskID, project string
		if err := rows.Scan(&taskID, &project); err != nil {
			return nil, fmt.Errorf("storage: scan task project: %w", err)
		}
		projects[taskID] = project
	}
	return projects, rows.Err()
}

// UpsertTask records or updates a task's project assignment. The kanban
// side owns task lifecycle; this exists for seeding and tests.
func (db *DB) UpsertTask(ctx context.Context, orgID uuid.UUID, taskID, project string) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO tasks (org_id, task_id, project, updated_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (org_id, task_id) DO UPDATE SET project = $3, updated_at = $4`,
		orgID, taskID, project, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("storage: upsert task: %w", err)
	}
	return nil
}
