package blackboard

import (
	"crypto/sha256"
	"encoding/hex"
	"math/rand"
	"sort"
	"strings"

	"dialectic/internal/domain"
)

// IdeaID computes the stable content hash spec §3 requires for frontier idea
// identity: SHA-256 of idea_text, hex, upper-case.
func IdeaID(ideaText string) string {
	sum := sha256.Sum256([]byte(ideaText))
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}

// AddFrontierIdea inserts or re-sponsors an idea (spec §4.3 "add").
func (b *Blackboard) AddFrontierIdea(ideaText, sponsorID string) *domain.FrontierIdea {
	id := IdeaID(ideaText)
	idea, ok := b.frontierPool[id]
	if !ok {
		idea = &domain.FrontierIdea{
			ID:         id,
			IdeaText:   ideaText,
			SponsorIDs: map[string]struct{}{sponsorID: {}},
		}
		b.frontierPool[id] = idea
		b.touch()
		return idea
	}
	if _, already := idea.SponsorIDs[sponsorID]; !already {
		idea.SponsorIDs[sponsorID] = struct{}{}
		b.touch()
	}
	return idea
}

// GetEligibleFrontiers returns entries with sponsor_count >= 2 and not
// activated (spec §4.3 "eligible").
func (b *Blackboard) GetEligibleFrontiers() []*domain.FrontierIdea {
	var out []*domain.FrontierIdea
	for _, idea := range b.frontierPool {
		if idea.SponsorCount() >= 2 && !idea.Activated {
			out = append(out, idea)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ActivateFrontier flips activated=true. Fails if absent or already
// activated (spec §4.3 "activate").
func (b *Blackboard) ActivateFrontier(id string) bool {
	idea, ok := b.frontierPool[id]
	if !ok || idea.Activated {
		return false
	}
	idea.Activated = true
	b.touch()
	return true
}

// AgeFrontiers increments cycles_alive for every entry and retires (deletes)
// any whose post-increment value exceeds 10 (spec §4.3 "age").
func (b *Blackboard) AgeFrontiers() {
	for id, idea := range b.frontierPool {
		idea.CyclesAlive++
		if idea.CyclesAlive > 10 {
			delete(b.frontierPool, id)
		}
	}
	b.touch()
}

// SelectWeightedFrontier samples an eligible entry with probability
// proportional to w(entry) = sponsor_count / max(1, cycles_alive); when
// cycles_alive == 0, w = sponsor_count * 1.0 (spec §4.3 "select_weighted").
// rng is injectable for deterministic tests; pass nil to use the package
// default source.
func (b *Blackboard) SelectWeightedFrontier(rng *rand.Rand) *domain.FrontierIdea {
	eligible := b.GetEligibleFrontiers()
	if len(eligible) == 0 {
		return nil
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(rand.Int63()))
	}
	weights := make([]float64, len(eligible))
	total := 0.0
	for i, idea := range eligible {
		denom := idea.CyclesAlive
		if denom < 1 {
			denom = 1
		}
		weights[i] = float64(idea.SponsorCount()) / float64(denom)
		total += weights[i]
	}
	if total <= 0 {
		return eligible[0]
	}
	r := rng.Float64() * total
	acc := 0.0
	for i, w := range weights {
		acc += w
		if r <= acc {
			return eligible[i]
		}
	}
	return eligible[len(eligible)-1]
}
