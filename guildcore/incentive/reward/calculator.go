// Package reward converts a member's in-game power and level into a payout
// amount through two independently configured range tables.
package reward

import "math"

// Calculate sizes a payout from its base amount and two metrics, each looked
// up in its own table:
//
//	amount = base + base*coef(tableA, metricA) + base*coef(tableB, metricB)
//
// The result is rounded to 2 decimal places, half away from zero on the cent
// boundary. A zero base always yields zero regardless of coefficients. The
// function is total over its numeric domain; negative bases are the caller's
// validation problem, not ours.
func Calculate(base, metricA, metricB float64, tableA, tableB Table) float64 {
	amount := base + base*tableA.Coefficient(metricA) + base*tableB.Coefficient(metricB)
	return roundCents(amount)
}

// roundCents rounds half away from zero at the second decimal. math.Round
// already rounds halves away from zero for both signs, which also pins down
// the behavior for negative totals produced by unusual coefficient configs.
func roundCents(x float64) float64 {
	return math.Round(x*100) / 100
}
