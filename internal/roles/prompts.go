package roles

import "fmt"

const baseContext = "Current claim: %q\nSupport strength: %.2f\nActive objection: %s\nAnalogy of record: %s\nCycle: %d\n\n"

func base(p Prompt) string {
	objection := p.ActiveObjection
	if objection == "" {
		objection = "none"
	}
	analogy := p.AnalogyOfRecord
	if analogy == "" {
		analogy = "none"
	}
	return fmt.Sprintf(baseContext, p.Claim, p.SupportStrength, objection, analogy, p.CycleCount)
}

func explorerPrompt(p Prompt) string {
	return base(p) + "As Explorer, propose a refined or alternative claim that extends the current reasoning. " +
		`Respond as JSON: {"new_claim": string, "sponsored_idea": string}.`
}

func criticPrompt(p Prompt) string {
	return base(p) + "As Critic, attack a specific premise of the claim, not the claim's conclusion as a whole. " +
		`Respond as JSON: {"target_premise": string, "objection": string, "valid": bool}. ` +
		"Set valid=false if your objection targets the conclusion rather than a premise."
}

func connectorPrompt(p Prompt) string {
	return base(p) + "As Connector, draw an analogy to a different domain with a concrete, testable mapping. " +
		`Respond as JSON: {"analogy": string, "testable_mapping": string, "valid": bool}. ` +
		"Set valid=false if you cannot state a testable mapping."
}

func steelmanPrompt(p Prompt) string {
	return base(p) + "As Steelman, construct the strongest version of either the claim or its strongest objection, whichever needs it more. " +
		`Respond as JSON: {"argument": string, "strengthens_claim": bool, "valid": bool}.`
}

func operationalizerPrompt(p Prompt) string {
	return base(p) + "As Operationalizer, propose a concrete operational definition or measurement procedure for a vague term in the claim. " +
		`Respond as JSON: {"note": string, "valid": bool}.`
}

func quantifierPrompt(p Prompt) string {
	return base(p) + "As Quantifier, attach a rough numeric estimate or bound to a claim component. " +
		`Respond as JSON: {"estimate": string, "strengthens_claim": bool, "valid": bool}. ` +
		"Set strengthens_claim=true if the estimate tightens support for the claim, false if it undercuts it."
}

func reducerPrompt(p Prompt) string {
	return base(p) + "As Reducer, restate the claim in the fewest possible words without losing its testable content. " +
		`Respond as JSON: {"note": string, "valid": bool}.`
}

func boundaryHunterPrompt(p Prompt) string {
	return base(p) + "As Boundary Hunter, identify a concrete edge case where the claim plausibly fails. " +
		`Respond as JSON: {"note": string, "valid": bool}.`
}

func translatorPrompt(p Prompt) string {
	framework := p.TranslatorFramework
	if framework == "" {
		framework = "physics"
	}
	return base(p) + fmt.Sprintf("As Translator, reframe the claim in terms of %s. ", framework) +
		`Respond as JSON: {"framework": string, "reframing": string, "valid": bool}.`
}

func historianPrompt(p Prompt) string {
	return base(p) + "As Historian, note a historical precedent or prior debate relevant to this claim. " +
		`Respond as JSON: {"note": string, "valid": bool}.`
}

func graveKeeperPrompt(p Prompt) string {
	return base(p) + "As Grave Keeper, argue the claim should be abandoned given its low support strength. " +
		`Respond as JSON: {"note": string, "valid": bool}.`
}

func cartographerPrompt(p Prompt) string {
	stagnation := "no"
	if p.StagnationSignal {
		stagnation = "yes"
	}
	return base(p) + fmt.Sprintf("As Cartographer, map the debate's current shape. Stagnation detected: %s. ", stagnation) +
		`Respond as JSON: {"note": string, "valid": bool}.`
}

func perturberPrompt(p Prompt) string {
	seed := p.PerturbationSeed
	if seed == "" {
		seed = "(no frontier idea activated)"
	}
	return base(p) + fmt.Sprintf("As Perturber, inject this frontier idea into the debate: %q. ", seed) +
		`Respond as JSON: {"note": string, "valid": bool}.`
}

func summarizerPrompt(p Prompt) string {
	return base(p) + "As Summarizer, narrate how the claim evolved this cycle and list addressed objections and remaining gaps. " +
		`Respond as JSON: {"narrative": string, "addressed_objections": object, "remaining_gaps": object, "valid": bool}.`
}
