package game

// Formula maps attacker and defender stats plus base power to damage.
type Formula func(attacker, defender Stats, power int) int

var formulas = map[Category]Formula{
	CategoryNormal:  normalDamage,
	CategorySpecial: specialDamage,
	CategoryStatus:  statusDamage,
}

func rawDamage(attacker Stats, power int) int {
	return attacker.Attack * power / 100
}

func normalDamage(attacker, defender Stats, power int) int {
	return max(1, rawDamage(attacker, power)-defender.Defense)
}

// special attacks only see half of the defender's defense
func specialDamage(attacker, defender Stats, power int) int {
	return max(1, rawDamage(attacker, power)-defender.Defense/2)
}

// Status moves hit for the attacker's raw attack stat, ignoring power and defense.
func statusDamage(attacker, _ Stats, _ int) int {
	return attacker.Attack
}

// KnownCategory reports whether c has a formula.
func KnownCategory(c Category) bool {
	_, ok := formulas[c]
	return ok
}

// ComputeDamage resolves a single deterministic hit. Normal and special
// damage is floored at 1; status damage is not clamped.
func ComputeDamage(attacker, defender Stats, a Attack) int {
	f, ok := formulas[a.Category]
	if !ok {
		return 0
	}
	return f(attacker, defender, a.BasePower)
}
