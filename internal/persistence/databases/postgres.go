package databases

import (
	"context"
	"encoding/json"
	"errors"

	"dialectic/internal/dialecticerr"
	"dialectic/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store persists the 9 logical record families of spec §6 to Postgres. It is
// grounded on the teacher's schema-and-query style (internal/auth.Store):
// one InitSchema migration in CREATE TABLE IF NOT EXISTS / ALTER TABLE ADD
// COLUMN IF NOT EXISTS form, plain $N-parameterized queries, no ORM.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wraps an already-opened pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// InitSchema creates every table this store needs if it does not yet exist.
func (s *Store) InitSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS blackboards (
  id TEXT PRIMARY KEY,
  current_claim TEXT,
  support_strength DOUBLE PRECISION NOT NULL DEFAULT 0.5,
  active_objection TEXT,
  analogy_of_record TEXT,
  frontier_pool JSONB NOT NULL DEFAULT '{}',
  cemetery JSONB NOT NULL DEFAULT '[]',
  graduated_claims JSONB NOT NULL DEFAULT '[]',
  cycle_count INTEGER NOT NULL DEFAULT 0,
  embedding JSONB NOT NULL DEFAULT '[]',
  translator_frameworks_used JSONB NOT NULL DEFAULT '{}',
  cost_limit_usd DOUBLE PRECISION,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS blackboard_snapshots (
  id BIGSERIAL PRIMARY KEY,
  blackboard_id TEXT NOT NULL REFERENCES blackboards(id) ON DELETE CASCADE,
  cycle_count INTEGER NOT NULL,
  state JSONB NOT NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS agent_contributions (
  id TEXT PRIMARY KEY,
  blackboard_id TEXT NOT NULL REFERENCES blackboards(id) ON DELETE CASCADE,
  cycle_number INTEGER NOT NULL,
  agent_role TEXT NOT NULL,
  model_used TEXT NOT NULL,
  input_prompt TEXT NOT NULL,
  output_text TEXT NOT NULL,
  accepted BOOLEAN NOT NULL DEFAULT false,
  support_delta DOUBLE PRECISION NOT NULL DEFAULT 0,
  insertion_seq INTEGER NOT NULL DEFAULT 0,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS cemetery_entries (
  id BIGSERIAL PRIMARY KEY,
  blackboard_id TEXT NOT NULL REFERENCES blackboards(id) ON DELETE CASCADE,
  claim TEXT NOT NULL,
  cause_of_death TEXT NOT NULL,
  final_support DOUBLE PRECISION NOT NULL,
  cycle_killed INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS frontier_ideas (
  id TEXT PRIMARY KEY,
  blackboard_id TEXT NOT NULL REFERENCES blackboards(id) ON DELETE CASCADE,
  idea_text TEXT NOT NULL,
  sponsor_ids JSONB NOT NULL DEFAULT '[]',
  cycles_alive INTEGER NOT NULL DEFAULT 0,
  activated BOOLEAN NOT NULL DEFAULT false
);
CREATE TABLE IF NOT EXISTS trajectory_points (
  id BIGSERIAL PRIMARY KEY,
  blackboard_id TEXT NOT NULL REFERENCES blackboards(id) ON DELETE CASCADE,
  cycle_number INTEGER NOT NULL,
  embedding_vector JSONB NOT NULL,
  claim_text TEXT NOT NULL,
  support_strength DOUBLE PRECISION NOT NULL
);
CREATE TABLE IF NOT EXISTS claim_transitions (
  id BIGSERIAL PRIMARY KEY,
  blackboard_id TEXT NOT NULL REFERENCES blackboards(id) ON DELETE CASCADE,
  from_cycle INTEGER NOT NULL,
  to_cycle INTEGER NOT NULL,
  previous_claim TEXT NOT NULL,
  new_claim TEXT NOT NULL,
  trigger_agent TEXT NOT NULL,
  trigger_contribution_id TEXT NOT NULL,
  change_type TEXT NOT NULL,
  diff_additions JSONB NOT NULL DEFAULT '[]',
  diff_removals JSONB NOT NULL DEFAULT '[]',
  UNIQUE(blackboard_id, to_cycle)
);
CREATE TABLE IF NOT EXISTS claim_summaries (
  id BIGSERIAL PRIMARY KEY,
  blackboard_id TEXT NOT NULL REFERENCES blackboards(id) ON DELETE CASCADE,
  cycle_number INTEGER NOT NULL,
  context TEXT NOT NULL DEFAULT '',
  evolution_narrative TEXT NOT NULL DEFAULT '',
  addressed_objections JSONB NOT NULL DEFAULT '{}',
  remaining_gaps JSONB NOT NULL DEFAULT '{}',
  UNIQUE(blackboard_id, cycle_number)
);
CREATE TABLE IF NOT EXISTS llm_costs (
  id BIGSERIAL PRIMARY KEY,
  blackboard_id TEXT NOT NULL REFERENCES blackboards(id) ON DELETE CASCADE,
  cycle_number INTEGER NOT NULL,
  agent_role TEXT NOT NULL,
  model_used TEXT NOT NULL,
  input_tokens INTEGER NOT NULL DEFAULT 0,
  output_tokens INTEGER NOT NULL DEFAULT 0,
  cost_usd DOUBLE PRECISION NOT NULL DEFAULT 0,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`)
	if err != nil {
		return dialecticerr.New(dialecticerr.Persist, "postgres.InitSchema", err)
	}
	_, _ = s.pool.Exec(ctx, `ALTER TABLE blackboards ADD COLUMN IF NOT EXISTS cost_limit_usd DOUBLE PRECISION`)
	return nil
}

// SaveState upserts the Blackboard's authoritative row (spec §4.1 save_state).
func (s *Store) SaveState(ctx context.Context, snap domain.BlackboardSnapshot) error {
	frontier, err := json.Marshal(snap.FrontierPool)
	if err != nil {
		return dialecticerr.New(dialecticerr.Persist, "postgres.SaveState", err)
	}
	cemetery, _ := json.Marshal(snap.Cemetery)
	graduated, _ := json.Marshal(snap.GraduatedClaims)
	embedding, _ := json.Marshal(snap.Embedding)
	frameworksUsed, _ := json.Marshal(setToSlice(snap.TranslatorFrameworksUsed))

	_, err = s.pool.Exec(ctx, `
INSERT INTO blackboards(id, current_claim, support_strength, active_objection, analogy_of_record,
  frontier_pool, cemetery, graduated_claims, cycle_count, embedding, translator_frameworks_used,
  cost_limit_usd, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,now())
ON CONFLICT (id) DO UPDATE SET
  current_claim=EXCLUDED.current_claim,
  support_strength=EXCLUDED.support_strength,
  active_objection=EXCLUDED.active_objection,
  analogy_of_record=EXCLUDED.analogy_of_record,
  frontier_pool=EXCLUDED.frontier_pool,
  cemetery=EXCLUDED.cemetery,
  graduated_claims=EXCLUDED.graduated_claims,
  cycle_count=EXCLUDED.cycle_count,
  embedding=EXCLUDED.embedding,
  translator_frameworks_used=EXCLUDED.translator_frameworks_used,
  cost_limit_usd=EXCLUDED.cost_limit_usd,
  updated_at=now()
`, snap.BlackboardID, snap.CurrentClaim, snap.SupportStrength, snap.ActiveObjection, snap.AnalogyOfRecord,
		frontier, cemetery, graduated, snap.CycleCount, embedding, frameworksUsed,
		snap.CostLimitUSD, snap.CreatedAt)
	if err != nil {
		return dialecticerr.New(dialecticerr.Persist, "postgres.SaveState", err)
	}
	return nil
}

// LoadState reads back a Blackboard's authoritative row (spec §4.1 load_state).
func (s *Store) LoadState(ctx context.Context, blackboardID string) (domain.BlackboardSnapshot, error) {
	var (
		snap                                                           domain.BlackboardSnapshot
		frontier, cemetery, graduated, embedding, frameworksUsed []byte
	)
	row := s.pool.QueryRow(ctx, `
SELECT id, current_claim, support_strength, active_objection, analogy_of_record,
  frontier_pool, cemetery, graduated_claims, cycle_count, embedding, translator_frameworks_used,
  cost_limit_usd, created_at, updated_at
FROM blackboards WHERE id=$1
`, blackboardID)
	err := row.Scan(&snap.BlackboardID, &snap.CurrentClaim, &snap.SupportStrength, &snap.ActiveObjection,
		&snap.AnalogyOfRecord, &frontier, &cemetery, &graduated, &snap.CycleCount, &embedding,
		&frameworksUsed, &snap.CostLimitUSD, &snap.CreatedAt, &snap.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.BlackboardSnapshot{}, dialecticerr.New(dialecticerr.Validation, "postgres.LoadState", err)
	}
	if err != nil {
		return domain.BlackboardSnapshot{}, dialecticerr.New(dialecticerr.Persist, "postgres.LoadState", err)
	}

	_ = json.Unmarshal(frontier, &snap.FrontierPool)
	_ = json.Unmarshal(cemetery, &snap.Cemetery)
	_ = json.Unmarshal(graduated, &snap.GraduatedClaims)
	_ = json.Unmarshal(embedding, &snap.Embedding)
	var frameworks []string
	_ = json.Unmarshal(frameworksUsed, &frameworks)
	snap.TranslatorFrameworksUsed = sliceToSet(frameworks)
	return snap, nil
}

// CreateSnapshot appends a point-in-time copy of the full state (spec §4.4 PERSIST).
func (s *Store) CreateSnapshot(ctx context.Context, snap domain.BlackboardSnapshot) error {
	state, err := json.Marshal(snap)
	if err != nil {
		return dialecticerr.New(dialecticerr.Persist, "postgres.CreateSnapshot", err)
	}
	_, err = s.pool.Exec(ctx, `
INSERT INTO blackboard_snapshots(blackboard_id, cycle_count, state) VALUES ($1,$2,$3)
`, snap.BlackboardID, snap.CycleCount, state)
	if err != nil {
		return dialecticerr.New(dialecticerr.Persist, "postgres.CreateSnapshot", err)
	}
	return nil
}

// GetSnapshots returns every snapshot in [fromCycle, toCycle] for a Blackboard.
func (s *Store) GetSnapshots(ctx context.Context, blackboardID string, fromCycle, toCycle int) ([]domain.BlackboardSnapshot, error) {
	rows, err := s.pool.Query(ctx, `
SELECT state FROM blackboard_snapshots
WHERE blackboard_id=$1 AND cycle_count BETWEEN $2 AND $3
ORDER BY cycle_count ASC
`, blackboardID, fromCycle, toCycle)
	if err != nil {
		return nil, dialecticerr.New(dialecticerr.Persist, "postgres.GetSnapshots", err)
	}
	defer rows.Close()

	var out []domain.BlackboardSnapshot
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, dialecticerr.New(dialecticerr.Persist, "postgres.GetSnapshots", err)
		}
		var snap domain.BlackboardSnapshot
		if err := json.Unmarshal(raw, &snap); err != nil {
			return nil, dialecticerr.New(dialecticerr.Persist, "postgres.GetSnapshots", err)
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

// DeleteBlackboard removes a Blackboard and every child row that references it.
func (s *Store) DeleteBlackboard(ctx context.Context, blackboardID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM blackboards WHERE id=$1`, blackboardID)
	if err != nil {
		return dialecticerr.New(dialecticerr.Persist, "postgres.DeleteBlackboard", err)
	}
	return nil
}

// SaveContribution inserts one agent contribution row (spec §4.4 APPLY).
func (s *Store) SaveContribution(ctx context.Context, blackboardID string, c domain.AgentContribution) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO agent_contributions(id, blackboard_id, cycle_number, agent_role, model_used,
  input_prompt, output_text, accepted, support_delta, insertion_seq)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
ON CONFLICT (id) DO NOTHING
`, c.ID, blackboardID, c.CycleNumber, c.AgentRole, c.ModelUsed, c.InputPrompt, c.OutputText,
		c.Accepted, c.SupportDelta, c.InsertionSeq)
	if err != nil {
		return dialecticerr.New(dialecticerr.Persist, "postgres.SaveContribution", err)
	}
	return nil
}

// ListContributions returns every contribution row for one cycle.
func (s *Store) ListContributions(ctx context.Context, blackboardID string, cycleNumber int) ([]domain.AgentContribution, error) {
	rows, err := s.pool.Query(ctx, `
SELECT id, cycle_number, agent_role, model_used, input_prompt, output_text, accepted, support_delta, insertion_seq
FROM agent_contributions WHERE blackboard_id=$1 AND cycle_number=$2 ORDER BY insertion_seq ASC
`, blackboardID, cycleNumber)
	if err != nil {
		return nil, dialecticerr.New(dialecticerr.Persist, "postgres.ListContributions", err)
	}
	defer rows.Close()

	var out []domain.AgentContribution
	for rows.Next() {
		var c domain.AgentContribution
		if err := rows.Scan(&c.ID, &c.CycleNumber, &c.AgentRole, &c.ModelUsed, &c.InputPrompt,
			&c.OutputText, &c.Accepted, &c.SupportDelta, &c.InsertionSeq); err != nil {
			return nil, dialecticerr.New(dialecticerr.Persist, "postgres.ListContributions", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// SaveTrajectoryPoint appends one embedded claim snapshot (spec §4.6).
func (s *Store) SaveTrajectoryPoint(ctx context.Context, blackboardID string, p domain.TrajectoryPoint) error {
	vec, err := json.Marshal(p.EmbeddingVector)
	if err != nil {
		return dialecticerr.New(dialecticerr.Persist, "postgres.SaveTrajectoryPoint", err)
	}
	_, err = s.pool.Exec(ctx, `
INSERT INTO trajectory_points(blackboard_id, cycle_number, embedding_vector, claim_text, support_strength)
VALUES ($1,$2,$3,$4,$5)
`, blackboardID, p.CycleNumber, vec, p.ClaimText, p.SupportStrength)
	if err != nil {
		return dialecticerr.New(dialecticerr.Persist, "postgres.SaveTrajectoryPoint", err)
	}
	return nil
}

// PreviousTrajectoryPoint returns the most recent point strictly before beforeCycle.
func (s *Store) PreviousTrajectoryPoint(ctx context.Context, blackboardID string, beforeCycle int) (domain.TrajectoryPoint, bool, error) {
	var p domain.TrajectoryPoint
	var vec []byte
	row := s.pool.QueryRow(ctx, `
SELECT cycle_number, embedding_vector, claim_text, support_strength
FROM trajectory_points WHERE blackboard_id=$1 AND cycle_number < $2
ORDER BY cycle_number DESC LIMIT 1
`, blackboardID, beforeCycle)
	err := row.Scan(&p.CycleNumber, &vec, &p.ClaimText, &p.SupportStrength)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.TrajectoryPoint{}, false, nil
	}
	if err != nil {
		return domain.TrajectoryPoint{}, false, dialecticerr.New(dialecticerr.Persist, "postgres.PreviousTrajectoryPoint", err)
	}
	_ = json.Unmarshal(vec, &p.EmbeddingVector)
	return p, true, nil
}

// RecentTrajectoryPoints returns the most recent limit points, oldest first.
func (s *Store) RecentTrajectoryPoints(ctx context.Context, blackboardID string, limit int) ([]domain.TrajectoryPoint, error) {
	rows, err := s.pool.Query(ctx, `
SELECT cycle_number, embedding_vector, claim_text, support_strength
FROM trajectory_points WHERE blackboard_id=$1 ORDER BY cycle_number DESC LIMIT $2
`, blackboardID, limit)
	if err != nil {
		return nil, dialecticerr.New(dialecticerr.Persist, "postgres.RecentTrajectoryPoints", err)
	}
	defer rows.Close()

	var out []domain.TrajectoryPoint
	for rows.Next() {
		var p domain.TrajectoryPoint
		var vec []byte
		if err := rows.Scan(&p.CycleNumber, &vec, &p.ClaimText, &p.SupportStrength); err != nil {
			return nil, dialecticerr.New(dialecticerr.Persist, "postgres.RecentTrajectoryPoints", err)
		}
		_ = json.Unmarshal(vec, &p.EmbeddingVector)
		out = append(out, p)
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, rows.Err()
}

// SaveTransition upserts a claim transition (unique per blackboard+to_cycle, spec §6).
func (s *Store) SaveTransition(ctx context.Context, blackboardID string, t domain.ClaimTransition) error {
	additions, _ := json.Marshal(t.DiffAdditions)
	removals, _ := json.Marshal(t.DiffRemovals)
	_, err := s.pool.Exec(ctx, `
INSERT INTO claim_transitions(blackboard_id, from_cycle, to_cycle, previous_claim, new_claim,
  trigger_agent, trigger_contribution_id, change_type, diff_additions, diff_removals)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
ON CONFLICT (blackboard_id, to_cycle) DO UPDATE SET
  from_cycle=EXCLUDED.from_cycle,
  previous_claim=EXCLUDED.previous_claim,
  new_claim=EXCLUDED.new_claim,
  trigger_agent=EXCLUDED.trigger_agent,
  trigger_contribution_id=EXCLUDED.trigger_contribution_id,
  change_type=EXCLUDED.change_type,
  diff_additions=EXCLUDED.diff_additions,
  diff_removals=EXCLUDED.diff_removals
`, blackboardID, t.FromCycle, t.ToCycle, t.PreviousClaim, t.NewClaim, t.TriggerAgent,
		t.TriggerContributionID, string(t.ChangeType), additions, removals)
	if err != nil {
		return dialecticerr.New(dialecticerr.Persist, "postgres.SaveTransition", err)
	}
	return nil
}

// GetTransition returns the transition landing on toCycle, if any.
func (s *Store) GetTransition(ctx context.Context, blackboardID string, toCycle int) (domain.ClaimTransition, bool, error) {
	var t domain.ClaimTransition
	var changeType string
	var additions, removals []byte
	row := s.pool.QueryRow(ctx, `
SELECT from_cycle, to_cycle, previous_claim, new_claim, trigger_agent, trigger_contribution_id,
  change_type, diff_additions, diff_removals
FROM claim_transitions WHERE blackboard_id=$1 AND to_cycle=$2
`, blackboardID, toCycle)
	err := row.Scan(&t.FromCycle, &t.ToCycle, &t.PreviousClaim, &t.NewClaim, &t.TriggerAgent,
		&t.TriggerContributionID, &changeType, &additions, &removals)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ClaimTransition{}, false, nil
	}
	if err != nil {
		return domain.ClaimTransition{}, false, dialecticerr.New(dialecticerr.Persist, "postgres.GetTransition", err)
	}
	t.ChangeType = domain.ChangeType(changeType)
	_ = json.Unmarshal(additions, &t.DiffAdditions)
	_ = json.Unmarshal(removals, &t.DiffRemovals)
	return t, true, nil
}

// SaveSummary upserts a per-cycle claim summary (unique per blackboard+cycle, spec §6).
func (s *Store) SaveSummary(ctx context.Context, blackboardID string, sum domain.ClaimSummary) error {
	addressed, _ := json.Marshal(sum.AddressedObjections)
	gaps, _ := json.Marshal(sum.RemainingGaps)
	_, err := s.pool.Exec(ctx, `
INSERT INTO claim_summaries(blackboard_id, cycle_number, context, evolution_narrative,
  addressed_objections, remaining_gaps)
VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (blackboard_id, cycle_number) DO UPDATE SET
  context=EXCLUDED.context,
  evolution_narrative=EXCLUDED.evolution_narrative,
  addressed_objections=EXCLUDED.addressed_objections,
  remaining_gaps=EXCLUDED.remaining_gaps
`, blackboardID, sum.CycleNumber, sum.Context, sum.EvolutionNarrative, addressed, gaps)
	if err != nil {
		return dialecticerr.New(dialecticerr.Persist, "postgres.SaveSummary", err)
	}
	return nil
}

// SaveCost appends one ledger row for an LLM call (spec §6 llm_costs).
func (s *Store) SaveCost(ctx context.Context, blackboardID string, c domain.LlmCost) error {
	_, err := s.pool.Exec(ctx, `
INSERT INTO llm_costs(blackboard_id, cycle_number, agent_role, model_used, input_tokens, output_tokens, cost_usd)
VALUES ($1,$2,$3,$4,$5,$6,$7)
`, blackboardID, c.CycleNumber, c.AgentRole, c.ModelUsed, c.InputTokens, c.OutputTokens, c.CostUSD)
	if err != nil {
		return dialecticerr.New(dialecticerr.Persist, "postgres.SaveCost", err)
	}
	return nil
}

// TotalCost sums every ledger row for a Blackboard (spec §4.5 cost ceiling check).
func (s *Store) TotalCost(ctx context.Context, blackboardID string) (float64, error) {
	var total float64
	row := s.pool.QueryRow(ctx, `SELECT COALESCE(SUM(cost_usd), 0) FROM llm_costs WHERE blackboard_id=$1`, blackboardID)
	if err := row.Scan(&total); err != nil {
		return 0, dialecticerr.New(dialecticerr.Persist, "postgres.TotalCost", err)
	}
	return total, nil
}

func setToSlice(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func sliceToSet(s []string) map[string]struct{} {
	out := make(map[string]struct{}, len(s))
	for _, v := range s {
		out[v] = struct{}{}
	}
	return out
}
