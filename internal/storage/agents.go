package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ashita-ai/keisoku/internal/model"
)

// GetAgentsByAgentIDGlobal returns all agents with the given agent_id
// across orgs. Token issuance verifies the presented API key against each
// candidate's hash.
func (db *DB) GetAgentsByAgentIDGlobal(ctx context.Context, agentID string) ([]model.Agent, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, org_id, agent_id, role, api_key_hash, created_at
		 FROM agents WHERE agent_id = $1`,
		agentID,
	)
	if err != nil {
		return nil, fmt.Errorf("storage: get agents by agent_id: %w", err)
	}
	defer rows.Close()

	var agents []model.Agent
	for rows.Next() {
		var a model.Agent
		if err := rows.Scan(&a.ID, &a.OrgID, &a.AgentID, &a.Role, &a.APIKeyHash, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("storage: scan agent: %w", err)
		}
		agents = append(agents, a)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	if len(agents) == 0 {
		return nil, ErrNotFound
	}
	return agents, nil
}

// CreateAgent registers a new agent within an org.
func (db *DB) CreateAgent(ctx context.Context, orgID uuid.UUID, agentID string, role model.AgentRole, apiKeyHash string) (model.Agent, error) {
	a := model.Agent{
		ID:         uuid.New(),
		OrgID:      orgID,
		AgentID:    agentID,
		Role:       role,
		APIKeyHash: apiKeyHash,
		CreatedAt:  time.Now().UTC(),
	}
	_, err := db.pool.Exec(ctx,
		`INSERT INTO agents (id, org_id, agent_id, role, api_key_hash, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		a.ID, a.OrgID, a.AgentID, string(a.Role), a.APIKeyHash, a.CreatedAt,
	)
	if err != nil {
		return model.Agent{}, fmt.Errorf("storage: create agent: %w", err)
	}
	return a, nil
}

// EnsureDefaultOrg returns the id of the named organization, creating it
// if missing. Used at startup for the admin seed.
func (db *DB) EnsureDefaultOrg(ctx context.Context, name string) (uuid.UUID, error) {
	var id uuid.UUID
	err := db.pool.QueryRow(ctx,
		`SELECT id FROM organizations WHERE name = $1`, name,
	).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, fmt.Errorf("storage: get org: %w", err)
	}

	id = uuid.New()
	if _, err := db.pool.Exec(ctx,
		`INSERT INTO organizations (id, name, created_at) VALUES ($1, $2, $3)`,
		id, name, time.Now().UTC(),
	); err != nil {
		return uuid.Nil, fmt.Errorf("storage: create org: %w", err)
	}
	return id, nil
}
