package payout

// =============================================================================
// TIER CLASSIFIER
// =============================================================================

// tierRequirement is the minimum activity for a tier. Both must hold.
type tierRequirement struct {
	tier  Tier
	days  int
	hours float64
}

// Checked highest first; the first match wins.
var tierRequirements = []tierRequirement{
	{tier: Tier3, days: 20, hours: 40},
	{tier: Tier2, days: 14, hours: 30},
	{tier: Tier1, days: 7, hours: 15},
}

// Classify returns the tier reached with the given days and hours active.
// Inputs are expected to be coerced already (see factory.Coerce*); negative
// values simply fail every requirement.
func Classify(days int, hours float64) Tier {
	for _, req := range tierRequirements {
		if days >= req.days && hours >= req.hours {
			return req.tier
		}
	}
	return Tier0
}

// PaidTier applies the contract override: with CollapseLowTiers every tier
// from 1 up is paid and displayed as tier 3.
func PaidTier(raw Tier, cfg ContractConfig) Tier {
	if cfg.CollapseLowTiers && raw >= Tier1 {
		return Tier3
	}
	return raw
}
