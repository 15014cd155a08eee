package engine

// HouseRules holds configurable game rule settings.
type HouseRules struct {
	HandSize          uint8 // cards held while the game is active; 0 treated as 5
	StartingSeat      int8  // -1 = chosen from the seed
	RequireHomeChoice bool  // if true, an ambiguous forward move must name enter/pass
}

// DefaultHouseRules returns the standard table rules.
func DefaultHouseRules() HouseRules {
	return HouseRules{
		HandSize:          5,
		StartingSeat:      -1,
		RequireHomeChoice: false,
	}
}

// handSize returns the effective hand size, treating 0 as 5.
func (r *HouseRules) handSize() uint8 {
	if r.HandSize == 0 || r.HandSize > MaxHandSize {
		return MaxHandSize
	}
	return r.HandSize
}
