// Package arbiter implements the pure acceptance function of spec §4.2: it
// turns a heterogeneous set of agent results into an ordered set of accepted
// contributions, without ever touching the Blackboard itself.
package arbiter

import (
	"strings"

	"dialectic/internal/domain"
)

// RoleExplorer etc. name the roles the Arbiter has bespoke rules for; all
// other roles fall through to the generic valid-only rule.
const (
	RoleExplorer  = "explorer"
	RoleCritic    = "critic"
	RoleConnector = "connector"
)

// Output is a role-specific parsed agent result. Role-specific fields are
// carried as a generic map so the Arbiter stays decoupled from the roles
// package's concrete schema types.
type Output struct {
	Valid  bool
	Fields map[string]string
}

// Result is one agent's outcome for the cycle: either a concrete output, or
// an error recorded by the dispatcher (spec §4.2 "results is an ordered
// sequence of either errors or tuples").
type Result struct {
	Role         string
	Model        string
	Output       Output
	ProposedDelta float64
	Err          error

	// DeclarationOrder is the roster position this agent was dispatched at,
	// used to break ties deterministically (spec §4.2, §4.6).
	DeclarationOrder int
}

// Accepted is one accepted contribution, carrying its role's unmodified
// proposed delta (spec §4.2: "Proposed deltas are passed through unchanged").
type Accepted struct {
	Role             string
	Model            string
	Output           Output
	SupportDelta     float64
	DeclarationOrder int
}

// roleOrder fixes the deterministic APPLY order: Explorer, Critic, Connector,
// then all others in declaration order (spec §4.2).
var roleOrder = map[string]int{
	RoleExplorer:  0,
	RoleCritic:    1,
	RoleConnector: 2,
}

// Evaluate runs the acceptance rules of spec §4.2 over results and returns
// the accepted contributions in deterministic APPLY order.
func Evaluate(results []Result, _ domain.BlackboardSnapshot) []Accepted {
	var explorers, critics, connectors, others []Result
	for _, r := range results {
		if r.Err != nil {
			continue
		}
		switch r.Role {
		case RoleExplorer:
			explorers = append(explorers, r)
		case RoleCritic:
			critics = append(critics, r)
		case RoleConnector:
			connectors = append(connectors, r)
		default:
			others = append(others, r)
		}
	}

	var accepted []Accepted

	// Critic acceptance is evaluated first so Explorer can check collisions
	// against it, even though APPLY order places Explorer before Critic.
	acceptedCritics := make([]Result, 0, len(critics))
	for _, c := range critics {
		if c.Output.Valid {
			acceptedCritics = append(acceptedCritics, c)
		}
	}

	for _, e := range explorers {
		if explorerCollides(e, acceptedCritics) {
			continue
		}
		accepted = append(accepted, toAccepted(e))
	}
	for _, c := range acceptedCritics {
		accepted = append(accepted, toAccepted(c))
	}
	for _, c := range connectors {
		if c.Output.Valid {
			accepted = append(accepted, toAccepted(c))
		}
	}
	for _, o := range others {
		if o.Output.Valid {
			accepted = append(accepted, toAccepted(o))
		}
	}

	return accepted
}

// explorerCollides implements the strict, case/trim-insensitive exact-match
// collision rule of spec §4.2 rule 1.
func explorerCollides(explorer Result, acceptedCritics []Result) bool {
	newClaim := strings.TrimSpace(explorer.Output.Fields["new_claim"])
	if len(newClaim) < 5 {
		return false
	}
	for _, c := range acceptedCritics {
		target := strings.TrimSpace(c.Output.Fields["target_premise"])
		if len(target) < 5 {
			continue
		}
		if strings.EqualFold(target, newClaim) {
			return true
		}
	}
	return false
}

func toAccepted(r Result) Accepted {
	return Accepted{
		Role:             r.Role,
		Model:            r.Model,
		Output:           r.Output,
		SupportDelta:     r.ProposedDelta,
		DeclarationOrder: r.DeclarationOrder,
	}
}
