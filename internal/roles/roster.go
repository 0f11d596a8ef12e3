package roles

// Roster computes the cycle's agent roles per spec §4.4 READ phase.
// cycleCount is the index of the cycle about to run (1-based, matching
// increment_cycle happening before roster selection). supportStrength below
// 0.4, stagnation, and perturbationFired are the conditional triggers.
func Roster(cycleCount int, supportStrength float64, stagnation, perturbationFired bool) []string {
	roster := []string{Explorer, Critic, Summarizer}

	if cycleCount%3 == 0 {
		roster = append(roster, Connector, Steelman, Operationalizer, Quantifier)
	}
	if cycleCount%5 == 0 {
		roster = append(roster, Reducer, BoundaryHunter, Translator, Historian)
	}
	if supportStrength < 0.4 {
		roster = append(roster, GraveKeeper)
	}
	if stagnation {
		roster = append(roster, Cartographer)
	}
	if perturbationFired {
		roster = append(roster, Perturber)
	}
	return roster
}
