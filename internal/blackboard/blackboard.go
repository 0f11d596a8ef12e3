// Package blackboard implements the authoritative per-session state object
// described in spec §3/§4.1: the current claim, its support strength, and
// the child collections (frontier pool, cemetery, graduated claims) that
// accumulate around it. A Blackboard is owned by exactly one Cycle Runner
// task; concurrent readers only ever see the immutable snapshot returned by
// GetState.
package blackboard

import (
	"context"
	"sort"
	"time"

	"dialectic/internal/dialecticerr"
	"dialectic/internal/domain"
	"dialectic/internal/persistence"

	"github.com/rs/zerolog/log"
)

const (
	// SupportFloor is the death threshold (spec §3).
	SupportFloor = 0.2
	// SupportGraduation is the graduation threshold (spec §3).
	SupportGraduation = 0.85
	// SupportCeiling is the hard ceiling (spec §3).
	SupportCeiling = 0.9
	// SupportInitial is the seed support strength for a new claim.
	SupportInitial = 0.5
)

// Blackboard is the mutable, single-writer session state. All exported
// mutators are intended to be called only from the owning Cycle Runner task.
type Blackboard struct {
	id    string
	store persistence.Store

	currentClaim             *string
	supportStrength          float64
	activeObjection          *string
	analogyOfRecord          *string
	frontierPool             map[string]*domain.FrontierIdea
	cemetery                 []domain.CemeteryEntry
	graduatedClaims          []domain.GraduatedClaim
	cycleCount               int
	embedding                []float32
	translatorFrameworksUsed map[string]struct{}
	costLimitUSD             *float64

	createdAt time.Time
	updatedAt time.Time
}

// New creates a fresh Blackboard seeded with claim, ready for session start.
func New(id string, store persistence.Store, seedClaim string, costLimitUSD *float64) *Blackboard {
	now := time.Now()
	claim := seedClaim
	return &Blackboard{
		id:                       id,
		store:                    store,
		currentClaim:             &claim,
		supportStrength:          SupportInitial,
		frontierPool:             make(map[string]*domain.FrontierIdea),
		translatorFrameworksUsed: make(map[string]struct{}),
		costLimitUSD:             costLimitUSD,
		createdAt:                now,
		updatedAt:                now,
	}
}

// FromSnapshot reconstructs a Blackboard from a previously persisted
// snapshot, e.g. on session resume (load_state, spec §4.1).
func FromSnapshot(store persistence.Store, snap domain.BlackboardSnapshot) *Blackboard {
	b := &Blackboard{
		id:                       snap.BlackboardID,
		store:                    store,
		currentClaim:             snap.CurrentClaim,
		supportStrength:          snap.SupportStrength,
		activeObjection:          snap.ActiveObjection,
		analogyOfRecord:          snap.AnalogyOfRecord,
		frontierPool:             make(map[string]*domain.FrontierIdea, len(snap.FrontierPool)),
		cemetery:                 append([]domain.CemeteryEntry(nil), snap.Cemetery...),
		graduatedClaims:          append([]domain.GraduatedClaim(nil), snap.GraduatedClaims...),
		cycleCount:               snap.CycleCount,
		embedding:                append([]float32(nil), snap.Embedding...),
		translatorFrameworksUsed: make(map[string]struct{}, len(snap.TranslatorFrameworksUsed)),
		costLimitUSD:             snap.CostLimitUSD,
		createdAt:                snap.CreatedAt,
		updatedAt:                snap.UpdatedAt,
	}
	for id, idea := range snap.FrontierPool {
		cp := idea
		cp.SponsorIDs = make(map[string]struct{}, len(idea.SponsorIDs))
		for s := range idea.SponsorIDs {
			cp.SponsorIDs[s] = struct{}{}
		}
		b.frontierPool[id] = &cp
	}
	for f := range snap.TranslatorFrameworksUsed {
		b.translatorFrameworksUsed[f] = struct{}{}
	}
	return b
}

// ID returns the blackboard's stable identifier.
func (b *Blackboard) ID() string { return b.id }

// GetState returns an immutable snapshot of the current state (spec §4.1).
func (b *Blackboard) GetState() domain.BlackboardSnapshot {
	fp := make(map[string]domain.FrontierIdea, len(b.frontierPool))
	for id, idea := range b.frontierPool {
		cp := *idea
		cp.SponsorIDs = make(map[string]struct{}, len(idea.SponsorIDs))
		for s := range idea.SponsorIDs {
			cp.SponsorIDs[s] = struct{}{}
		}
		fp[id] = cp
	}
	frameworks := make(map[string]struct{}, len(b.translatorFrameworksUsed))
	for f := range b.translatorFrameworksUsed {
		frameworks[f] = struct{}{}
	}
	return domain.BlackboardSnapshot{
		BlackboardID:             b.id,
		CurrentClaim:             copyStrPtr(b.currentClaim),
		SupportStrength:          b.supportStrength,
		ActiveObjection:          copyStrPtr(b.activeObjection),
		AnalogyOfRecord:          copyStrPtr(b.analogyOfRecord),
		FrontierPool:             fp,
		Cemetery:                 append([]domain.CemeteryEntry(nil), b.cemetery...),
		GraduatedClaims:          append([]domain.GraduatedClaim(nil), b.graduatedClaims...),
		CycleCount:               b.cycleCount,
		Embedding:                append([]float32(nil), b.embedding...),
		TranslatorFrameworksUsed: frameworks,
		CostLimitUSD:             b.costLimitUSD,
		CreatedAt:                b.createdAt,
		UpdatedAt:                b.updatedAt,
	}
}

// UpdateClaim replaces current_claim without touching support (spec §4.1).
func (b *Blackboard) UpdateClaim(text string) {
	b.currentClaim = &text
	b.touch()
}

// SetActiveObjection sets or clears active_objection.
func (b *Blackboard) SetActiveObjection(text *string) {
	b.activeObjection = copyStrPtr(text)
	b.touch()
}

// SetAnalogy sets or clears analogy_of_record.
func (b *Blackboard) SetAnalogy(text *string) {
	b.analogyOfRecord = copyStrPtr(text)
	b.touch()
}

// SetEmbedding records the current claim's opaque embedding vector.
func (b *Blackboard) SetEmbedding(v []float32) {
	b.embedding = append([]float32(nil), v...)
	b.touch()
}

// Embedding returns the current claim's embedding, if any.
func (b *Blackboard) Embedding() []float32 { return append([]float32(nil), b.embedding...) }

// IncrementCycle bumps cycle_count. Required before any mutation whose
// semantics reference the cycle index (spec §4.1).
func (b *Blackboard) IncrementCycle() int {
	b.cycleCount++
	b.touch()
	return b.cycleCount
}

// CycleCount returns the current cycle index.
func (b *Blackboard) CycleCount() int { return b.cycleCount }

// SupportStrength returns the current support value.
func (b *Blackboard) SupportStrength() float64 { return b.supportStrength }

// CurrentClaim returns the current claim text, or nil if dead/graduated.
func (b *Blackboard) CurrentClaim() *string { return copyStrPtr(b.currentClaim) }

// CostLimitUSD returns the configured hard budget, if any.
func (b *Blackboard) CostLimitUSD() *float64 {
	if b.costLimitUSD == nil {
		return nil
	}
	v := *b.costLimitUSD
	return &v
}

// UpdateSupport applies the authoritative clamping/graduation/death rule
// (spec §4.1, "Clamping rule"). Order matters: graduation is checked before
// the ceiling, and death before the ceiling — this ordering is preserved
// per spec §9 Open Question (1).
func (b *Blackboard) UpdateSupport(delta float64) domain.SupportUpdateOutcome {
	old := b.supportStrength
	proposed := old + delta

	outcome := domain.SupportUpdateOutcome{Old: old}

	switch {
	case proposed >= SupportGraduation:
		b.supportStrength = SupportGraduation
		b.graduate()
		outcome.Graduated = true
	case proposed <= SupportFloor:
		b.supportStrength = SupportFloor
		b.kill("Support decay below threshold")
		outcome.Died = true
		outcome.DeathCause = "Support decay below threshold"
	case proposed >= SupportCeiling:
		b.supportStrength = SupportCeiling
	default:
		b.supportStrength = proposed
	}

	outcome.New = b.supportStrength
	b.touch()
	return outcome
}

func (b *Blackboard) graduate() {
	claim := ""
	if b.currentClaim != nil {
		claim = *b.currentClaim
	}
	b.graduatedClaims = append(b.graduatedClaims, domain.GraduatedClaim{
		Claim:        claim,
		FinalSupport: b.supportStrength,
		CycleNumber:  b.cycleCount,
	})
	b.currentClaim = nil
}

// KillClaim force-moves the current claim to the cemetery (spec §4.1).
func (b *Blackboard) KillClaim(cause string) {
	b.kill(cause)
	b.touch()
}

func (b *Blackboard) kill(cause string) {
	claim := ""
	if b.currentClaim != nil {
		claim = *b.currentClaim
	}
	b.cemetery = append([]domain.CemeteryEntry{{
		Claim:        claim,
		CauseOfDeath: cause,
		FinalSupport: b.supportStrength,
		CycleKilled:  b.cycleCount,
	}}, b.cemetery...)
	b.currentClaim = nil
}

// GetNextTranslatorFramework returns the first framework in the fixed
// ordered list that has not been recorded; once exhausted it returns the
// head without clearing recorded state (spec §4.1).
func (b *Blackboard) GetNextTranslatorFramework() string {
	for _, f := range domain.TranslatorFrameworks {
		if _, used := b.translatorFrameworksUsed[f]; !used {
			return f
		}
	}
	return domain.TranslatorFrameworks[0]
}

// RecordTranslatorFramework marks f as used.
func (b *Blackboard) RecordTranslatorFramework(f string) {
	b.translatorFrameworksUsed[f] = struct{}{}
	b.touch()
}

// SaveContribution persists one agent's contribution row for this
// blackboard (spec §4.4 APPLY "persist the contribution row").
func (b *Blackboard) SaveContribution(ctx context.Context, c domain.AgentContribution) error {
	if err := b.store.SaveContribution(ctx, b.id, c); err != nil {
		log.Ctx(ctx).Error().Err(err).Str("blackboard_id", b.id).Msg("save_contribution failed")
		return dialecticerr.New(dialecticerr.Persist, "blackboard.SaveContribution", err)
	}
	return nil
}

// PersistState saves the blackboard record. Failures are logged and the
// in-memory state remains authoritative (spec §4.1 "Failure semantics").
func (b *Blackboard) PersistState(ctx context.Context) error {
	if err := b.store.SaveState(ctx, b.GetState()); err != nil {
		log.Ctx(ctx).Error().Err(err).Str("blackboard_id", b.id).Msg("persist_state failed, retrying next cycle")
		return dialecticerr.New(dialecticerr.Persist, "blackboard.PersistState", err)
	}
	return nil
}

// CreateSnapshot writes a point-in-time snapshot keyed by the current cycle.
func (b *Blackboard) CreateSnapshot(ctx context.Context) error {
	if err := b.store.CreateSnapshot(ctx, b.GetState()); err != nil {
		log.Ctx(ctx).Error().Err(err).Str("blackboard_id", b.id).Msg("create_snapshot failed")
		return dialecticerr.New(dialecticerr.Persist, "blackboard.CreateSnapshot", err)
	}
	return nil
}

// LoadState loads a Blackboard by id from the store.
func LoadState(ctx context.Context, store persistence.Store, id string) (*Blackboard, error) {
	snap, err := store.LoadState(ctx, id)
	if err != nil {
		return nil, dialecticerr.New(dialecticerr.Persist, "blackboard.LoadState", err)
	}
	return FromSnapshot(store, snap), nil
}

// GetSnapshots returns persisted snapshots in [fromCycle, toCycle].
func (b *Blackboard) GetSnapshots(ctx context.Context, fromCycle, toCycle int) ([]domain.BlackboardSnapshot, error) {
	snaps, err := b.store.GetSnapshots(ctx, b.id, fromCycle, toCycle)
	if err != nil {
		return nil, dialecticerr.New(dialecticerr.Persist, "blackboard.GetSnapshots", err)
	}
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].CycleCount < snaps[j].CycleCount })
	return snaps, nil
}

func (b *Blackboard) touch() { b.updatedAt = time.Now() }

func copyStrPtr(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
