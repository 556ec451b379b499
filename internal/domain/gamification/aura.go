package gamification

import "fmt"

// Aura is the motivational tier derived from a streak.
type Aura string

const (
	AuraInactive  Aura = "inactive"
	AuraWeak      Aura = "weak"
	AuraStable    Aura = "stable"
	AuraStrong    Aura = "strong"
	AuraLegendary Aura = "legendary"
)

// auraLadder lists tiers from lowest to highest.
var auraLadder = []Aura{AuraInactive, AuraWeak, AuraStable, AuraStrong, AuraLegendary}

// Inclusive lower bounds of each tier.
const (
	WeakThreshold      = 1
	StableThreshold    = 3
	StrongThreshold    = 7
	LegendaryThreshold = 14
)

// Classify maps a streak length to its tier, checking thresholds highest first.
func Classify(streak int) Aura {
	switch {
	case streak >= LegendaryThreshold:
		return AuraLegendary
	case streak >= StrongThreshold:
		return AuraStrong
	case streak >= StableThreshold:
		return AuraStable
	case streak >= WeakThreshold:
		return AuraWeak
	default:
		return AuraInactive
	}
}

// Level returns the tier's position on the ladder, 0 for inactive.
// Unknown values are treated as inactive.
func (a Aura) Level() int {
	for i, t := range auraLadder {
		if t == a {
			return i
		}
	}
	return 0
}

// IsHigh reports whether the tier is strong or legendary.
func (a Aura) IsHigh() bool {
	return a == AuraStrong || a == AuraLegendary
}

// IsValid reports whether a is one of the known tiers.
func (a Aura) IsValid() bool {
	for _, t := range auraLadder {
		if t == a {
			return true
		}
	}
	return false
}

// ParseAura parses a tier name.
func ParseAura(s string) (Aura, error) {
	a := Aura(s)
	if !a.IsValid() {
		return AuraInactive, fmt.Errorf("unknown aura %q", s)
	}
	return a, nil
}

// Degrade drops a tier by two levels, never below inactive.
func Degrade(a Aura) Aura {
	lvl := a.Level() - 2
	if lvl < 0 {
		lvl = 0
	}
	return auraLadder[lvl]
}

// Recompute derives the tier after a streak change. With degrade disabled
// the tier always follows the streak. With degrade enabled a broken streak
// softens a stable or better tier by two levels instead of resetting it.
func Recompute(previous Aura, streak int, degrade bool) Aura {
	fresh := Classify(streak)
	if !degrade || streak > 0 {
		return fresh
	}
	if previous.Level() > AuraWeak.Level() {
		return Degrade(previous)
	}
	return fresh
}
