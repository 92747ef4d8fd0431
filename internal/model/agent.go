package model

import (
	"time"

	"github.com/google/uuid"
)

// AgentRole controls what API surface an agent may call.
type AgentRole string

const (
	RoleReader AgentRole = "reader" // query endpoints only
	RoleAgent  AgentRole = "agent"  // reader + telemetry ingestion
	RoleAdmin  AgentRole = "admin"  // everything
)

// RoleRank returns a comparable rank for a role. Unknown roles rank lowest.
func RoleRank(r AgentRole) int {
	switch r {
	case RoleReader:
		return 1
	case RoleAgent:
		return 2
	case RoleAdmin:
		return 3
	}
	return 0
}

// RoleAtLeast reports whether role has at least the rank of min.
func RoleAtLeast(role, min AgentRole) bool {
	return RoleRank(role) >= RoleRank(min)
}

// Agent is a registered API caller.
type Agent struct {
	ID         uuid.UUID `json:"id"`
	OrgID      uuid.UUID `json:"org_id"`
	AgentID    string    `json:"agent_id"`
	Role       AgentRole `json:"role"`
	APIKeyHash string    `json:"-"`
	CreatedAt  time.Time `json:"created_at"`
}

// Identity is the authenticated caller context passed to service
// operations. A nil *Identity means the caller is unauthenticated.
type Identity struct {
	AgentID string
	OrgID   uuid.UUID
	Role    AgentRole
}
