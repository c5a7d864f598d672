package city

// Dice is the source of randomness used by the simulation.
// *math/rand.Rand satisfies it; tests substitute scripted rolls.
type Dice interface {
	Intn(n int) int
	Float64() float64
}

// Between returns a uniform integer in [lo, hi].
func Between(d Dice, lo, hi int) int {
	if hi <= lo {
		return lo
	}
	return lo + d.Intn(hi-lo+1)
}

// Pick returns a uniform element of items. Panics on an empty slice.
func Pick[T any](d Dice, items []T) T {
	return items[d.Intn(len(items))]
}
