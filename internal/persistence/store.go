// Package persistence declares the row-level persistence contracts spec §6
// names without mandating a schema. internal/persistence/databases supplies
// the Postgres implementation; callers (blackboard, dispatcher, trajectory,
// session) depend only on these interfaces.
package persistence

import (
	"context"

	"dialectic/internal/domain"
)

// BlackboardStore persists a Blackboard's authoritative state and its
// point-in-time snapshots.
type BlackboardStore interface {
	SaveState(ctx context.Context, snap domain.BlackboardSnapshot) error
	LoadState(ctx context.Context, blackboardID string) (domain.BlackboardSnapshot, error)
	CreateSnapshot(ctx context.Context, snap domain.BlackboardSnapshot) error
	GetSnapshots(ctx context.Context, blackboardID string, fromCycle, toCycle int) ([]domain.BlackboardSnapshot, error)
	DeleteBlackboard(ctx context.Context, blackboardID string) error
}

// ContributionStore persists one row per invoked agent per cycle.
type ContributionStore interface {
	SaveContribution(ctx context.Context, blackboardID string, c domain.AgentContribution) error
	ListContributions(ctx context.Context, blackboardID string, cycleNumber int) ([]domain.AgentContribution, error)
}

// TrajectoryStore persists embedded claim snapshots and their transitions.
type TrajectoryStore interface {
	SaveTrajectoryPoint(ctx context.Context, blackboardID string, p domain.TrajectoryPoint) error
	PreviousTrajectoryPoint(ctx context.Context, blackboardID string, beforeCycle int) (domain.TrajectoryPoint, bool, error)
	RecentTrajectoryPoints(ctx context.Context, blackboardID string, limit int) ([]domain.TrajectoryPoint, error)
	SaveTransition(ctx context.Context, blackboardID string, t domain.ClaimTransition) error
	GetTransition(ctx context.Context, blackboardID string, toCycle int) (domain.ClaimTransition, bool, error)
}

// SummaryStore persists per-cycle claim summaries.
type SummaryStore interface {
	SaveSummary(ctx context.Context, blackboardID string, s domain.ClaimSummary) error
}

// CostStore persists the LLM cost ledger.
type CostStore interface {
	SaveCost(ctx context.Context, blackboardID string, c domain.LlmCost) error
	TotalCost(ctx context.Context, blackboardID string) (float64, error)
}

// Store aggregates every persistence contract a session needs. The Postgres
// implementation in internal/persistence/databases satisfies all of these
// against the 9 logical tables of spec §6.
type Store interface {
	BlackboardStore
	ContributionStore
	TrajectoryStore
	SummaryStore
	CostStore
}
